package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"

	"github.com/expressrelay/auction-server/internal/api/middleware"
	"github.com/expressrelay/auction-server/internal/entities"
	"github.com/expressrelay/auction-server/internal/quote"
	"github.com/expressrelay/auction-server/internal/resterr"
)

// submitBidRequest is the POST /v1/bids body (spec.md §6): a chain id and a
// base64-encoded, partially-signed versioned transaction.
type submitBidRequest struct {
	ChainID     entities.ChainID `json:"chain_id"`
	Transaction string           `json:"transaction"`
}

type submitBidResponse struct {
	ID string `json:"id"`
}

func (s *Server) handleSubmitBid(w http.ResponseWriter, r *http.Request) {
	var req submitBidRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	chain, ok := s.chain(req.ChainID)
	if !ok {
		middleware.WriteError(w, resterr.BadParameters("unknown chain_id %q", req.ChainID))
		return
	}

	tx, ok := decodeTransaction(w, req.Transaction)
	if !ok {
		return
	}

	profileID, _ := middleware.ProfileID(r.Context())
	create := entities.BidCreate{ChainID: req.ChainID, ProfileID: profileID, Transaction: tx}

	chainData, tag, amount, err := chain.Verifier.VerifyBid(r.Context(), create)
	if err != nil {
		writeComponentError(w, err)
		return
	}

	now := time.Now()
	bid := &entities.Bid{
		ID:                entities.NewBidID(),
		ChainID:           req.ChainID,
		Amount:            amount,
		ProfileID:         profileID,
		InitiationTime:    now,
		ChainData:         chainData,
		PermissionKey:     chainData.GetPermissionKey(tag),
		InstructionTag:    tag,
		Status:            entities.BidStatusPending,
		StatusUpdatedTime: now,
	}
	chain.Manager.SubmitBid(bid)
	if err := s.cfg.Store.RecordBid(bid); err != nil {
		middleware.WriteError(w, resterr.TemporarilyUnavailable(err))
		return
	}

	writeJSON(w, http.StatusOK, submitBidResponse{ID: bid.ID.String()})
}

func (s *Server) handleListBids(w http.ResponseWriter, r *http.Request) {
	chainID := entities.ChainID(chi.URLParam(r, "chain_id"))
	if _, ok := s.chain(chainID); !ok {
		middleware.WriteError(w, resterr.NotFound("unknown chain_id %q", chainID))
		return
	}

	profileID, ok := middleware.ProfileID(r.Context())
	if !ok {
		middleware.WriteError(w, resterr.Unauthorized("bids can only be listed for an authenticated profile"))
		return
	}

	from := time.Unix(0, 0)
	if raw := r.URL.Query().Get("from_time"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			middleware.WriteError(w, resterr.BadParameters("invalid from_time: %v", err))
			return
		}
		from = parsed
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			middleware.WriteError(w, resterr.BadParameters("invalid limit"))
			return
		}
		limit = parsed
	}

	chain, _ := s.chain(chainID)
	bids := chain.Manager.ListBidsByProfile(profileID, from, limit)
	writeJSON(w, http.StatusOK, bids)
}

func (s *Server) handleCreateOpportunity(w http.ResponseWriter, r *http.Request) {
	var opp entities.Opportunity
	if !decodeJSON(w, r, &opp) {
		return
	}
	if program, ok := middleware.Program(r.Context()); ok && program != string(opp.Program) {
		middleware.WriteError(w, resterr.Forbidden("profile is not bound to program "+string(opp.Program)))
		return
	}

	if opp.Swap != nil {
		if err := opp.Swap.ReconcileFees(); err != nil {
			middleware.WriteError(w, resterr.BadParameters(err.Error()))
			return
		}
	}

	if err := s.cfg.Opportunities.Add(&opp); err != nil {
		middleware.WriteError(w, resterr.BadParameters(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, opp)
}

func (s *Server) handleListOpportunities(w http.ResponseWriter, r *http.Request) {
	chainID := entities.ChainID(r.URL.Query().Get("chain_id"))
	if chainID == "" {
		middleware.WriteError(w, resterr.BadParameters("chain_id is required"))
		return
	}

	if r.URL.Query().Get("mode") == "historical" {
		from, to := time.Time{}, time.Now()
		if raw := r.URL.Query().Get("from_time"); raw != "" {
			parsed, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				middleware.WriteError(w, resterr.BadParameters("invalid from_time: %v", err))
				return
			}
			from = parsed
		}
		limit := 20
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				middleware.WriteError(w, resterr.BadParameters("invalid limit"))
				return
			}
			limit = parsed
		}
		writeJSON(w, http.StatusOK, s.cfg.Opportunities.GetByTimeWindow(chainID, from, to, limit))
		return
	}

	writeJSON(w, http.StatusOK, s.cfg.Opportunities.GetLive(chainID))
}

func (s *Server) handleRemoveOpportunities(w http.ResponseWriter, r *http.Request) {
	chainID := entities.ChainID(r.URL.Query().Get("chain_id"))
	program := entities.Program(r.URL.Query().Get("program"))
	if chainID == "" || program == "" {
		middleware.WriteError(w, resterr.BadParameters("chain_id and program are required"))
		return
	}
	if bound, ok := middleware.Program(r.Context()); ok && !middleware.IsAdmin(r.Context()) && bound != string(program) {
		middleware.WriteError(w, resterr.Forbidden("profile is not bound to program "+string(program)))
		return
	}
	removed := s.cfg.Opportunities.RemoveByProgram(chainID, program)
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req entities.QuoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ProfileID, _ = middleware.ProfileID(r.Context())

	chain, ok := s.chain(req.ChainID)
	if !ok {
		middleware.WriteError(w, resterr.BadParameters("unknown chain_id %q", req.ChainID))
		return
	}

	svc := quote.New(s.cfg.Opportunities, chain.Manager)
	q, err := svc.GetQuote(r.Context(), req)
	if err != nil {
		if err == quote.ErrQuoteNotFound {
			middleware.WriteError(w, resterr.NotFound("no quote available"))
			return
		}
		writeComponentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer func() { _ = r.Body.Close() }()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		middleware.WriteError(w, resterr.BadParameters("invalid request body: %v", err))
		return false
	}
	return true
}

func decodeTransaction(w http.ResponseWriter, encoded string) (*solana.Transaction, bool) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		middleware.WriteError(w, resterr.BadParameters("invalid base64 transaction: %v", err))
		return nil, false
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		middleware.WriteError(w, resterr.BadParameters("invalid transaction encoding: %v", err))
		return nil, false
	}
	return tx, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeComponentError unwraps a *resterr.Error from a component boundary;
// any other error (should not happen given the package contracts) maps to
// an opaque infrastructure failure rather than leaking internals.
func writeComponentError(w http.ResponseWriter, err error) {
	if rerr, ok := err.(*resterr.Error); ok {
		middleware.WriteError(w, rerr)
		return
	}
	middleware.WriteError(w, resterr.TemporarilyUnavailable(err))
}
