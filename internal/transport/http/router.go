// Package httptransport is the thin HTTP layer. Handlers delegate to the
// domain services and never embed pipeline logic; transport concerns stay
// isolated here.
package httptransport

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	admissionservice "covercheck/internal/admission/service"
	"covercheck/internal/consensus"
	"covercheck/internal/ledger"
	"covercheck/internal/platform/middleware"
	"covercheck/internal/retention"
	"covercheck/internal/submission"
	dErrors "covercheck/pkg/domain-errors"
	"covercheck/pkg/identity"
)

// Handler carries the wired services for all endpoints.
type Handler struct {
	logger     *slog.Logger
	submission *submission.Service
	ledger     *ledger.Service
	consensus  *consensus.Service
	retention  *retention.Job
	admission  *admissionservice.Service
	deriver    *identity.Deriver
}

// New creates the HTTP handler set.
func New(
	logger *slog.Logger,
	submissionSvc *submission.Service,
	ledgerSvc *ledger.Service,
	consensusSvc *consensus.Service,
	retentionJob *retention.Job,
	admissionSvc *admissionservice.Service,
	deriver *identity.Deriver,
) *Handler {
	return &Handler{
		logger:     logger,
		submission: submissionSvc,
		ledger:     ledgerSvc,
		consensus:  consensusSvc,
		retention:  retentionJob,
		admission:  admissionSvc,
		deriver:    deriver,
	}
}

// NewRouter wires all endpoints with the standard middleware chain.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(h.logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(h.logger))
	r.Use(middleware.ClientIdentity(h.deriver))

	r.Route("/api", func(r chi.Router) {
		r.Post("/verifications", h.handleSubmit)
		r.Post("/verifications/{claimID}/votes", h.handleVote)
		r.Get("/acceptance/{providerKey}/{planKey}", h.handleAcceptance)
	})

	r.Route("/admin/retention", func(r chi.Router) {
		r.Post("/cleanup", h.handleCleanup)
		r.Post("/recalculate", h.handleRecalculate)
		r.Get("/expiration-stats", h.handleExpirationStats)
		r.Get("/stats", h.handleRetentionStats)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// writeError centralizes domain error translation to HTTP responses so every
// handler returns the same JSON error envelope.
func writeError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	writeJSON(w, dErrors.ToHTTPStatus(code), map[string]string{
		"error":   string(code),
		"message": dErrors.MessageOf(err),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
