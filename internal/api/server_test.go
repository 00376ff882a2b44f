package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/expressrelay/auction-server/internal/api/middleware"
	"github.com/expressrelay/auction-server/internal/entities"
	"github.com/expressrelay/auction-server/internal/hub"
	"github.com/expressrelay/auction-server/internal/opportunity"
	"github.com/expressrelay/auction-server/internal/resterr"
)

const testJWTSecret = "test-secret"

func testServer(t *testing.T) *Server {
	t.Helper()
	h := hub.New(10)
	opps := opportunity.New(h)
	auth := middleware.NewAuthenticator(middleware.Config{
		JWTSecret:         testJWTSecret,
		JWTIssuer:         "auction-server",
		AdminSecret:       "admin-secret",
		ProgramsByProfile: map[string]string{"profile-1": string(entities.ProgramLimo)},
	})
	return NewServer(Config{
		Opportunities: opps,
		Chains:        map[entities.ChainID]ChainComponents{},
		Hub:           h,
		Auth:          auth,
	})
}

func profileToken(t *testing.T, sub string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"iss": "auction-server",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signed
}

func TestCreateAndListLiveOpportunity(t *testing.T) {
	s := testServer(t)
	router := s.Router()

	opp := entities.Opportunity{
		ChainID:           "solana-mainnet-beta",
		Program:           entities.ProgramLimo,
		PermissionAccount: solana.NewWallet().PublicKey(),
		RouterAccount:     solana.NewWallet().PublicKey(),
	}
	body, err := json.Marshal(opp)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/opportunities/", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+profileToken(t, "profile-1"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	listReq := httptest.NewRequest(http.MethodGet, "/v1/opportunities/?chain_id=solana-mainnet-beta", nil)
	listRec := httptest.NewRecorder()
	router.ServeHTTP(listRec, listReq)
	require.Equal(t, http.StatusOK, listRec.Code)

	var live []entities.Opportunity
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &live))
	require.Len(t, live, 1)
}

func testSwapServer(t *testing.T) *Server {
	t.Helper()
	h := hub.New(10)
	opps := opportunity.New(h)
	auth := middleware.NewAuthenticator(middleware.Config{
		JWTSecret:         testJWTSecret,
		JWTIssuer:         "auction-server",
		AdminSecret:       "admin-secret",
		ProgramsByProfile: map[string]string{"profile-1": string(entities.ProgramSwap)},
	})
	return NewServer(Config{
		Opportunities: opps,
		Chains:        map[entities.ChainID]ChainComponents{},
		Hub:           h,
		Auth:          auth,
	})
}

func TestCreateSwapOpportunityReconcilesDeprecatedBpsFees(t *testing.T) {
	s := testSwapServer(t)
	router := s.Router()

	referralBps := uint32(50)
	body, err := json.Marshal(entities.Opportunity{
		ChainID:           "solana-mainnet-beta",
		Program:           entities.ProgramSwap,
		PermissionAccount: solana.NewWallet().PublicKey(),
		RouterAccount:     solana.NewWallet().PublicKey(),
		Swap: &entities.OpportunitySwapSvm{
			TokenIn:         entities.TokenAmountSvm{Mint: solana.NewWallet().PublicKey()},
			TokenOut:        entities.TokenAmountSvm{Mint: solana.NewWallet().PublicKey()},
			ReferralFeeBps:  &referralBps,
		},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/opportunities/", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+profileToken(t, "profile-1"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var created entities.Opportunity
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, uint64(5_000), created.Swap.ReferralFeePpm)
	require.Nil(t, created.Swap.ReferralFeeBps)
}

func TestCreateSwapOpportunityRejectsMismatchedBpsAndPpmFees(t *testing.T) {
	s := testSwapServer(t)
	router := s.Router()

	referralBps := uint32(50)
	body, err := json.Marshal(entities.Opportunity{
		ChainID:           "solana-mainnet-beta",
		Program:           entities.ProgramSwap,
		PermissionAccount: solana.NewWallet().PublicKey(),
		RouterAccount:     solana.NewWallet().PublicKey(),
		Swap: &entities.OpportunitySwapSvm{
			TokenIn:        entities.TokenAmountSvm{Mint: solana.NewWallet().PublicKey()},
			TokenOut:       entities.TokenAmountSvm{Mint: solana.NewWallet().PublicKey()},
			ReferralFeeBps: &referralBps,
			ReferralFeePpm: 1, // disagrees with 50 bps == 5000 ppm
		},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/opportunities/", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+profileToken(t, "profile-1"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, resterr.KindInput.HTTPStatus(), rec.Code)
}

func TestCreateOpportunityRejectsUnboundProgram(t *testing.T) {
	s := testServer(t)
	router := s.Router()

	opp := entities.Opportunity{
		ChainID:           "solana-mainnet-beta",
		Program:           entities.ProgramSwap,
		PermissionAccount: solana.NewWallet().PublicKey(),
		RouterAccount:     solana.NewWallet().PublicKey(),
	}
	body, err := json.Marshal(opp)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/opportunities/", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+profileToken(t, "profile-1"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateOpportunityRequiresAuth(t *testing.T) {
	s := testServer(t)
	router := s.Router()

	req := httptest.NewRequest(http.MethodPost, "/v1/opportunities/", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSubmitBidUnknownChainReturnsBadParameters(t *testing.T) {
	s := testServer(t)
	router := s.Router()

	body, err := json.Marshal(submitBidRequest{ChainID: "unknown-chain", Transaction: "invalid"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/bids", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, resterr.KindInput.HTTPStatus(), rec.Code)
}

func TestRemoveOpportunitiesRejectsWrongProfile(t *testing.T) {
	s := testServer(t)
	router := s.Router()

	req := httptest.NewRequest(http.MethodDelete, "/v1/opportunities/?chain_id=solana-mainnet-beta&program=swap", nil)
	req.Header.Set("Authorization", "Bearer "+profileToken(t, "profile-1"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRemoveOpportunitiesAllowsAdmin(t *testing.T) {
	s := testServer(t)
	router := s.Router()

	req := httptest.NewRequest(http.MethodDelete, "/v1/opportunities/?chain_id=solana-mainnet-beta&program=swap", nil)
	req.Header.Set("Authorization", "Bearer admin-secret")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
