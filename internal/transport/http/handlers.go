package httptransport

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	admissionconfig "covercheck/internal/admission/config"
	"covercheck/internal/submission"
	"covercheck/internal/sybil"
	"covercheck/internal/verification/models"
	dErrors "covercheck/pkg/domain-errors"
	"covercheck/pkg/requestcontext"
)

const maxBodyBytes = 64 << 10

type submitRequest struct {
	ProviderKey    string `json:"provider_key"`
	PlanKey        string `json:"plan_key"`
	Accepted       *bool  `json:"accepted"`
	Provenance     string `json:"provenance"`
	Specialty      string `json:"specialty"`
	Contact        string `json:"contact"`
	AbuseGateToken string `json:"abuse_gate_token"`
	// Website is a hidden form field legitimate clients leave empty.
	Website string `json:"website"`
}

type submitResponse struct {
	ClaimID         string `json:"claim_id"`
	Status          string `json:"status"`
	ConfidenceScore int    `json:"confidence_score"`
	Degraded        bool   `json:"degraded,omitempty"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Accepted == nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "accepted is required"))
		return
	}

	ctx := r.Context()
	if req.Contact != "" {
		ctx = requestcontext.WithContactIdentity(ctx, h.deriver.Contact(req.Contact))
	}

	res, err := h.submission.Submit(ctx, submission.Request{
		ProviderKey: strings.TrimSpace(req.ProviderKey),
		PlanKey:     strings.TrimSpace(req.PlanKey),
		Accepted:    *req.Accepted,
		Provenance:  models.ParseProvenance(req.Provenance),
		Specialty:   strings.TrimSpace(req.Specialty),
		Identities: sybil.Identities{
			Network: requestcontext.NetworkIdentity(ctx),
			Contact: requestcontext.ContactIdentity(ctx),
		},
		AbuseGateToken: req.AbuseGateToken,
		HoneypotField:  req.Website,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, submitResponse{
		ClaimID:         res.ClaimID.String(),
		Status:          string(res.Status),
		ConfidenceScore: res.ConfidenceScore,
		Degraded:        res.Degraded,
	})
}

type voteRequest struct {
	Direction string `json:"direction"`
}

type voteResponse struct {
	Applied        bool    `json:"applied"`
	Replaced       bool    `json:"replaced"`
	AgreementRatio float64 `json:"agreement_ratio"`
}

func (h *Handler) handleVote(w http.ResponseWriter, r *http.Request) {
	claimID, err := uuid.Parse(chi.URLParam(r, "claimID"))
	if err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid claim id"))
		return
	}
	var req voteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	direction := models.VoteDirection(strings.ToUpper(strings.TrimSpace(req.Direction)))
	if !direction.IsValid() {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "direction must be UP or DOWN"))
		return
	}

	ctx := r.Context()
	voter := requestcontext.NetworkIdentity(ctx)
	if voter == "" {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "voter identity could not be derived"))
		return
	}
	if err := h.checkAdmission(w, r, voter, admissionconfig.TierVote); err != nil {
		return
	}

	res, err := h.ledger.CastVote(ctx, claimID, voter, direction)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, voteResponse{
		Applied:        res.Applied,
		Replaced:       res.Replaced,
		AgreementRatio: res.AgreementRatio,
	})
}

type acceptanceResponse struct {
	ProviderKey       string    `json:"provider_key"`
	PlanKey           string    `json:"plan_key"`
	Status            string    `json:"status"`
	ConfidenceScore   int       `json:"confidence_score"`
	ConfidenceLevel   string    `json:"confidence_level"`
	VerificationCount int       `json:"verification_count"`
	AgreementRatio    float64   `json:"agreement_ratio"`
	LastVerifiedAt    time.Time `json:"last_verified_at,omitzero"`
	UpdatedAt         time.Time `json:"updated_at,omitzero"`
}

func (h *Handler) handleAcceptance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := requestcontext.NetworkIdentity(ctx)
	if caller != "" {
		if err := h.checkAdmission(w, r, caller, admissionconfig.TierSearch); err != nil {
			return
		}
	}

	agg, err := h.consensus.GetAcceptance(ctx, chi.URLParam(r, "providerKey"), chi.URLParam(r, "planKey"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acceptanceResponse{
		ProviderKey:       agg.ProviderKey,
		PlanKey:           agg.PlanKey,
		Status:            string(agg.Status),
		ConfidenceScore:   agg.ConfidenceScore,
		ConfidenceLevel:   agg.ConfidenceLevel,
		VerificationCount: agg.VerificationCount,
		AgreementRatio:    agg.AgreementRatio,
		LastVerifiedAt:    agg.LastVerifiedAt,
		UpdatedAt:         agg.UpdatedAt,
	})
}

// checkAdmission runs one tier check and writes the rate-limit response on
// denial. A nil return means the request may proceed.
func (h *Handler) checkAdmission(w http.ResponseWriter, r *http.Request, identity, tier string) error {
	res, err := h.admission.Check(r.Context(), identity, tier)
	if err != nil {
		writeError(w, err)
		return err
	}
	if !res.Allowed {
		w.Header().Set("Retry-After", res.ResetAt.UTC().Format(http.TimeFormat))
		err := dErrors.New(dErrors.CodeRateLimited, "rate limit exceeded")
		writeError(w, err)
		return err
	}
	return nil
}

type retentionRequest struct {
	DryRun    bool `json:"dry_run"`
	BatchSize int  `json:"batch_size"`
	Limit     int  `json:"limit"`
}

func (h *Handler) handleCleanup(w http.ResponseWriter, r *http.Request) {
	var req retentionRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
	}
	res, err := h.retention.CleanupExpired(r.Context(), req.DryRun, req.BatchSize)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	var req retentionRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
	}
	res, err := h.retention.RecalculateConfidence(r.Context(), req.DryRun, req.Limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleExpirationStats(w http.ResponseWriter, r *http.Request) {
	res, err := h.retention.ExpirationStats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleRetentionStats(w http.ResponseWriter, r *http.Request) {
	res, err := h.retention.RetentionStats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid request body")
	}
	return nil
}
