package middleware

import (
	"net/http"

	"github.com/expressrelay/auction-server/internal/hub"
	"github.com/expressrelay/auction-server/internal/resterr"
)

// WebSocketConnectionLimit rejects a new /ws upgrade once the Subscription
// Hub is at its configured MaxWebsocketConns, per spec.md §7's Rate error
// kind ("too many WebSocket connections"). The slot is acquired here,
// before the upgrade handshake; handleWebSocket releases it again through
// Hub.ReleaseUnservedConnection when the upgrade fails.
func WebSocketConnectionLimit(h *hub.Hub) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := h.TryAcquire(); err != nil {
				WriteError(w, resterr.TooManyConnections(err.Error()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
