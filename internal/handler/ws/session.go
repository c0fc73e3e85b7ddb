package ws

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	models "collabsync/internal/domain/models/collab"
	"collabsync/internal/protocol"

	"github.com/gorilla/websocket"
)

// Session is one websocket connection. It is the room Member for every
// document the connection joins.
type Session struct {
	id           string
	user         models.UserRef
	conn         *websocket.Conn
	writeTimeout time.Duration
	pingInterval time.Duration
	logger       *slog.Logger

	send      chan protocol.Envelope
	closed    chan struct{}
	closeOnce sync.Once

	mu    sync.Mutex
	rooms map[string]struct{}
}

func newSession(id string, user models.UserRef, conn *websocket.Conn, cfg *Config, logger *slog.Logger) *Session {
	pingInterval := cfg.KeepAliveInterval
	if pingInterval <= 0 {
		pingInterval = DefaultConfig().KeepAliveInterval
	}
	return &Session{
		id:           id,
		user:         user,
		conn:         conn,
		writeTimeout: cfg.WriteTimeout,
		pingInterval: pingInterval,
		logger:       logger.With("session_id", id, "user_id", user.ID),
		send:         make(chan protocol.Envelope, cfg.SendQueue),
		closed:       make(chan struct{}),
		rooms:        make(map[string]struct{}),
	}
}

// SessionID identifies the connection
func (s *Session) SessionID() string {
	return s.id
}

// Send queues env for the writer. A full queue closes the connection: the
// client is too slow to keep up and will resync on reconnect.
func (s *Session) Send(env protocol.Envelope) bool {
	select {
	case <-s.closed:
		return false
	default:
	}

	select {
	case s.send <- env:
		return true
	default:
		s.logger.Warn("outbound queue full, closing connection", "event", env.Event)
		s.close()
		return false
	}
}

func (s *Session) close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

// writeLoop owns all writes on the connection, keep-alive pings included.
// It closes the connection on exit, which unblocks the reader.
func (s *Session) writeLoop() {
	ticker := time.NewTicker(s.pingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case env := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := s.conn.WriteJSON(env); err != nil {
				s.logger.Debug("write failed", "error", err)
				s.close()
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Debug("ping failed", "error", err)
				s.close()
				return
			}
		case <-s.closed:
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.writeTimeout))
			return
		}
	}
}

func (s *Session) track(documentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[documentID] = struct{}{}
}

func (s *Session) untrack(documentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, documentID)
}

// joined returns the tracked documents in a stable order
func (s *Session) joined() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
