package api

import (
	"net/http"

	"nhooyr.io/websocket"

	"github.com/expressrelay/auction-server/internal/hub"
)

// handleWebSocket upgrades the request and runs the connection's actor loop
// until it closes, grounded on
// josephblackelite-nhbchain/rpc/ws.go's accept-then-serve shape. The
// connection slot was already reserved by middleware.WebSocketConnectionLimit;
// Connection.Serve registers/unregisters it with the hub around the loop.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		s.cfg.Hub.ReleaseUnservedConnection()
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "connection closed") }()

	c := hub.NewConnection(s.cfg.Hub, conn, 0)
	if err := c.Serve(r.Context(), s.cfg.PingInterval); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "stream error")
	}
}
