// Package api implements the external HTTP/WebSocket surface described in
// spec.md §6: the REST bid/opportunity/quote endpoints and the /ws
// subscription upgrade, composed as a chi router.
//
// Grounded on josephblackelite-nhbchain/gateway/routes/router.go's
// sub-router-per-concern shape and rpc/ws.go's accept-then-serve pattern,
// narrowed from a reverse proxy to handlers calling straight into this
// server's own components.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/expressrelay/auction-server/internal/api/middleware"
	"github.com/expressrelay/auction-server/internal/auction"
	"github.com/expressrelay/auction-server/internal/entities"
	"github.com/expressrelay/auction-server/internal/hub"
	"github.com/expressrelay/auction-server/internal/opportunity"
	"github.com/expressrelay/auction-server/internal/quote"
	"github.com/expressrelay/auction-server/internal/store"
	"github.com/expressrelay/auction-server/internal/verifier"
)

// ChainComponents bundles the per-chain components a bid or quote request
// is dispatched to once its chain_id is known.
type ChainComponents struct {
	Verifier *verifier.Verifier
	Manager  *auction.Manager
}

// Config wires a Server to its shared and per-chain components.
type Config struct {
	Opportunities *opportunity.Store
	Chains        map[entities.ChainID]ChainComponents
	Hub           *hub.Hub
	Auth          *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Store         *store.Recorder
	CORS          middleware.CORSConfig
	PingInterval  time.Duration
}

// Server holds every dependency the HTTP handlers need.
type Server struct {
	cfg Config
}

// NewServer constructs a Server from cfg.
func NewServer(cfg Config) *Server {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.RateLimiter == nil {
		cfg.RateLimiter = middleware.NewRateLimiter(5, 10)
	}
	return &Server{cfg: cfg}
}

// Router builds the chi handler serving spec.md §6's full surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.CORS(s.cfg.CORS))

	r.Route("/v1", func(v1 chi.Router) {
		v1.With(s.cfg.Auth.Optional, s.cfg.RateLimiter.Middleware).Post("/bids", s.handleSubmitBid)
		v1.With(s.cfg.Auth.Required).Get("/{chain_id}/bids", s.handleListBids)

		v1.Route("/opportunities", func(o chi.Router) {
			o.With(s.cfg.Auth.Required, s.cfg.RateLimiter.Middleware).Post("/", s.handleCreateOpportunity)
			o.With(s.cfg.Auth.Optional).Get("/", s.handleListOpportunities)
			o.With(s.cfg.Auth.Required).Delete("/", s.handleRemoveOpportunities)
			o.With(s.cfg.Auth.Optional, s.cfg.RateLimiter.Middleware).Post("/quote", s.handleQuote)
		})

		v1.Handle("/ws", middleware.WebSocketConnectionLimit(s.cfg.Hub)(http.HandlerFunc(s.handleWebSocket)))
	})

	return r
}

func (s *Server) chain(chainID entities.ChainID) (ChainComponents, bool) {
	c, ok := s.cfg.Chains[chainID]
	return c, ok
}
