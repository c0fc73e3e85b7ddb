package ws

import (
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	models "collabsync/internal/domain/models/collab"
	"collabsync/internal/protocol"

	"github.com/gorilla/websocket"
)

func TestSession_SendClosesWhenQueueFull(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SendQueue = 2
	s := newSession("s1", models.UserRef{ID: "u1"}, nil, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))

	env := protocol.Envelope{Event: protocol.EventContentUpdated}
	if !s.Send(env) || !s.Send(env) {
		t.Fatal("Send() rejected while queue had room")
	}
	if s.Send(env) {
		t.Fatal("Send() accepted beyond queue capacity")
	}

	select {
	case <-s.closed:
	default:
		t.Fatal("overflow did not close the session")
	}
	if s.Send(env) {
		t.Error("Send() accepted after close")
	}
}

func TestSession_TracksRooms(t *testing.T) {
	s := newSession("s1", models.UserRef{ID: "u1"}, nil, DefaultConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.track("b")
	s.track("a")
	s.track("b")
	s.untrack("c")

	got := s.joined()
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("joined() = %v, want [a b]", got)
	}
}

func TestSession_PingsIdleConnection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.KeepAliveInterval = 10 * time.Millisecond
	srv := newTestServer(t, cfg)
	c := srv.dial(t, "alice")

	var pings atomic.Int32
	c.conn.SetPingHandler(func(data string) error {
		pings.Add(1)
		return c.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	// pings are only delivered while reading; nothing else arrives
	c.conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	if _, _, err := c.conn.ReadMessage(); err == nil {
		t.Fatal("ReadMessage() returned a data frame on an idle connection")
	}
	if got := pings.Load(); got < 2 {
		t.Errorf("pings = %d, want at least 2", got)
	}
}
