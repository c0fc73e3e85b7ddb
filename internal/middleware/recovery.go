package middleware

import (
	"bufio"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"

	"github.com/felixge/httpsnoop"

	"collabsync/internal/httputil"
)

// Recovery turns a handler panic into a logged 500. When the handler had
// already started its response, or hijacked the connection for a websocket,
// nothing more is written.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := false
			tracked := httpsnoop.Wrap(w, httpsnoop.Hooks{
				WriteHeader: func(next httpsnoop.WriteHeaderFunc) httpsnoop.WriteHeaderFunc {
					return func(code int) {
						started = true
						next(code)
					}
				},
				Write: func(next httpsnoop.WriteFunc) httpsnoop.WriteFunc {
					return func(b []byte) (int, error) {
						started = true
						return next(b)
					}
				},
				Hijack: func(next httpsnoop.HijackFunc) httpsnoop.HijackFunc {
					return func() (net.Conn, *bufio.ReadWriter, error) {
						started = true
						return next()
					}
				},
			})

			defer func() {
				if p := recover(); p != nil {
					logger.Error("panic recovered",
						"error", p,
						"method", r.Method,
						"path", r.URL.Path,
						"response_started", started,
						"stack", string(debug.Stack()),
					)
					if !started {
						httputil.RespondError(w, http.StatusInternalServerError, "internal server error")
					}
				}
			}()

			next.ServeHTTP(tracked, r)
		})
	}
}
