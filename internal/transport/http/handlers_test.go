package httptransport

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/suite"

	admissionservice "covercheck/internal/admission/service"
	"covercheck/internal/admission/store/window"
	"covercheck/internal/consensus"
	"covercheck/internal/ledger"
	"covercheck/internal/platform/logger"
	"covercheck/internal/retention"
	"covercheck/internal/submission"
	"covercheck/internal/sybil"
	"covercheck/internal/verification/store"
	"covercheck/pkg/identity"
	"covercheck/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
	store  *store.MemoryStore
	router http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	log := logger.New()
	s.store = store.NewMemoryStore()

	windowStore := window.NewMemoryStore()
	admitter, err := admissionservice.New(windowStore, windowStore)
	s.Require().NoError(err)

	consensusSvc, err := consensus.New(s.store)
	s.Require().NoError(err)

	guard, err := sybil.New(s.store)
	s.Require().NoError(err)

	submissionSvc, err := submission.New(s.store, admitter, guard, consensusSvc)
	s.Require().NoError(err)

	ledgerSvc, err := ledger.New(s.store, consensusSvc)
	s.Require().NoError(err)

	retentionJob, err := retention.NewJob(s.store, consensusSvc)
	s.Require().NoError(err)

	deriver := identity.NewDeriver("handler-test-salt")
	handler := New(log, submissionSvc, ledgerSvc, consensusSvc, retentionJob, admitter, deriver)
	s.router = NewRouter(handler)
}

func boolPtr(b bool) *bool { return &b }

func claimBody(pair string) submitRequest {
	return submitRequest{
		ProviderKey: "prov-" + pair,
		PlanKey:     "plan-" + pair,
		Accepted:    boolPtr(true),
		Provenance:  "COMMUNITY",
	}
}

func (s *HandlerSuite) TestSubmitVerification() {
	s.Run("valid claim is created", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/verifications", claimBody("ok"))
		req.Header.Set("X-Forwarded-For", "203.0.113.10")
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		resp := testutil.UnmarshalResponse[submitResponse](s.T(), rr)
		s.NotEmpty(resp.ClaimID)
		s.Equal("PENDING", resp.Status)
		s.Positive(resp.ConfidenceScore)
	})

	s.Run("missing accepted field is invalid input", func() {
		body := claimBody("noflag")
		body.Accepted = nil
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/verifications", body)
		req.Header.Set("X-Forwarded-For", "203.0.113.11")
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_input")
	})

	s.Run("malformed json is invalid input", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/verifications", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.12")
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_input")
	})

	s.Run("repeat claim for a pair conflicts", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/verifications", claimBody("dup"))
		req.Header.Set("X-Forwarded-For", "203.0.113.13")
		testutil.AssertStatus(s.T(), testutil.DoRequest(s.router, req), http.StatusCreated)

		req = testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/verifications", claimBody("dup"))
		req.Header.Set("X-Forwarded-For", "203.0.113.13")
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "conflict")
	})

	s.Run("eleventh submission is rate limited", func() {
		for i := range 10 {
			req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/verifications", claimBody(fmt.Sprintf("rl-%d", i)))
			req.Header.Set("X-Forwarded-For", "203.0.113.14")
			testutil.AssertStatus(s.T(), testutil.DoRequest(s.router, req), http.StatusCreated)
		}

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/verifications", claimBody("rl-over"))
		req.Header.Set("X-Forwarded-For", "203.0.113.14")
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatusAndError(s.T(), rr, http.StatusTooManyRequests, "rate_limited")
	})

	s.Run("filled honeypot field succeeds without persisting", func() {
		body := claimBody("bot")
		body.Website = "http://spam.example"
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/verifications", body)
		req.Header.Set("X-Forwarded-For", "203.0.113.15")
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatus(s.T(), rr, http.StatusCreated)

		getReq := testutil.NewRequest(s.T(), http.MethodGet, "/api/acceptance/prov-bot/plan-bot")
		getReq.Header.Set("X-Forwarded-For", "203.0.113.16")
		getRR := testutil.DoRequest(s.router, getReq)
		testutil.AssertStatus(s.T(), getRR, http.StatusOK)
		resp := testutil.UnmarshalResponse[acceptanceResponse](s.T(), getRR)
		s.Equal(0, resp.VerificationCount)
	})
}

func (s *HandlerSuite) TestCastVote() {
	submitClaim := func(pair, addr string) string {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/verifications", claimBody(pair))
		req.Header.Set("X-Forwarded-For", addr)
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		return testutil.UnmarshalResponse[submitResponse](s.T(), rr).ClaimID
	}

	s.Run("vote on a live claim is applied", func() {
		claimID := submitClaim("vote", "203.0.113.20")

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/verifications/"+claimID+"/votes",
			voteRequest{Direction: "up"})
		req.Header.Set("X-Forwarded-For", "203.0.113.21")
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		resp := testutil.UnmarshalResponse[voteResponse](s.T(), rr)
		s.True(resp.Applied)
		s.False(resp.Replaced)
		s.InDelta(1.0, resp.AgreementRatio, 0.001)
	})

	s.Run("repeat vote in the same direction conflicts", func() {
		claimID := submitClaim("revote", "203.0.113.22")

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/verifications/"+claimID+"/votes",
			voteRequest{Direction: "UP"})
		req.Header.Set("X-Forwarded-For", "203.0.113.23")
		testutil.AssertStatus(s.T(), testutil.DoRequest(s.router, req), http.StatusOK)

		req = testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/verifications/"+claimID+"/votes",
			voteRequest{Direction: "UP"})
		req.Header.Set("X-Forwarded-For", "203.0.113.23")
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "conflict")
	})

	s.Run("invalid direction is invalid input", func() {
		claimID := submitClaim("baddir", "203.0.113.24")

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/verifications/"+claimID+"/votes",
			voteRequest{Direction: "SIDEWAYS"})
		req.Header.Set("X-Forwarded-For", "203.0.113.25")
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_input")
	})

	s.Run("malformed claim id is invalid input", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/verifications/not-a-uuid/votes",
			voteRequest{Direction: "UP"})
		req.Header.Set("X-Forwarded-For", "203.0.113.26")
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_input")
	})

	s.Run("vote on an unknown claim is not found", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost,
			"/api/verifications/6a76e9bb-92a1-4bf0-bbb6-2f52a19f1a1b/votes",
			voteRequest{Direction: "UP"})
		req.Header.Set("X-Forwarded-For", "203.0.113.27")
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	})
}

func (s *HandlerSuite) TestGetAcceptance() {
	s.Run("unknown pair reads neutral pending", func() {
		req := testutil.NewRequest(s.T(), http.MethodGet, "/api/acceptance/prov-x/plan-x")
		req.Header.Set("X-Forwarded-For", "203.0.113.30")
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		resp := testutil.UnmarshalResponse[acceptanceResponse](s.T(), rr)
		s.Equal("PENDING", resp.Status)
		s.Equal(0, resp.VerificationCount)
		s.Equal("prov-x", resp.ProviderKey)
	})

	s.Run("known pair reads its aggregate", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/verifications", claimBody("read"))
		req.Header.Set("X-Forwarded-For", "203.0.113.31")
		testutil.AssertStatus(s.T(), testutil.DoRequest(s.router, req), http.StatusCreated)

		getReq := testutil.NewRequest(s.T(), http.MethodGet, "/api/acceptance/prov-read/plan-read")
		getReq.Header.Set("X-Forwarded-For", "203.0.113.32")
		rr := testutil.DoRequest(s.router, getReq)

		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		resp := testutil.UnmarshalResponse[acceptanceResponse](s.T(), rr)
		s.Equal("PENDING", resp.Status)
		s.Equal(1, resp.VerificationCount)
		s.Positive(resp.ConfidenceScore)
	})
}

func (s *HandlerSuite) TestAdminRetention() {
	s.Run("expiration stats", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/admin/retention/expiration-stats"))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		resp := testutil.UnmarshalResponse[retention.ExpirationStats](s.T(), rr)
		s.Equal(0, resp.ExpiredClaims)
	})

	s.Run("retention stats", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/admin/retention/stats"))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		resp := testutil.UnmarshalResponse[retention.RetentionStats](s.T(), rr)
		s.GreaterOrEqual(resp.TotalClaims, 0)
	})

	s.Run("cleanup dry run", func() {
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost,
			"/admin/retention/cleanup", retentionRequest{DryRun: true}))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		resp := testutil.UnmarshalResponse[retention.CleanupResult](s.T(), rr)
		s.True(resp.DryRun)
	})

	s.Run("cleanup with empty body runs for real", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodPost, "/admin/retention/cleanup"))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		resp := testutil.UnmarshalResponse[retention.CleanupResult](s.T(), rr)
		s.False(resp.DryRun)
	})

	s.Run("recalculate dry run", func() {
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost,
			"/admin/retention/recalculate", retentionRequest{DryRun: true}))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		resp := testutil.UnmarshalResponse[retention.RecalcResult](s.T(), rr)
		s.True(resp.DryRun)
	})
}

func (s *HandlerSuite) TestHealthz() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/healthz"))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
}

func (s *HandlerSuite) TestMetrics() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/metrics"))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
}
