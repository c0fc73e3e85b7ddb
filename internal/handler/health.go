package handler

import (
	"context"
	"net/http"
	"time"

	"collabsync/internal/httputil"
)

// RoomCounter reports how many rooms are live
type RoomCounter interface {
	ActiveRooms(ctx context.Context) (int, error)
}

// HealthHandler answers liveness probes
type HealthHandler struct {
	rooms   RoomCounter
	started time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(rooms RoomCounter) *HealthHandler {
	return &HealthHandler{rooms: rooms, started: time.Now()}
}

// HealthCheck reports status and live room count
// GET /health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), time.Second)
	defer cancel()

	rooms, err := h.rooms.ActiveRooms(ctx)
	if err != nil {
		httputil.RespondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "ok",
		"active_rooms": rooms,
		"uptime":       time.Since(h.started).Round(time.Second).String(),
	})
}
