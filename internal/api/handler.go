package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/verdantgoods/riskd/internal/chargeback"
	"github.com/verdantgoods/riskd/internal/domain"
	"github.com/verdantgoods/riskd/internal/repository"
	"github.com/verdantgoods/riskd/internal/rules"
	"github.com/verdantgoods/riskd/internal/scoring"
	"github.com/verdantgoods/riskd/internal/validation"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	scorer    *scoring.Scorer
	analyzer  *chargeback.Analyzer
	ruleStore *rules.Store
	repo      domain.Repository
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(scorer *scoring.Scorer, analyzer *chargeback.Analyzer, ruleStore *rules.Store, repo domain.Repository, version string) *Handler {
	return &Handler{
		scorer:    scorer,
		analyzer:  analyzer,
		ruleStore: ruleStore,
		repo:      repo,
		version:   version,
	}
}

// Health returns server liveness and version.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": h.version,
	})
}

// Ready reports whether the server can serve scoring traffic. Scoring
// cannot proceed without storage, so a failed ping means not ready.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Ping(r.Context()); err != nil {
		slog.Error("readiness check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"ready": "false",
			"error": "storage unavailable",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ScoreTransaction handles POST /api/v1/transactions/score.
func (h *Handler) ScoreTransaction(w http.ResponseWriter, r *http.Request) {
	var req domain.ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	if !h.validate(w, &req) {
		return
	}

	assessment, err := h.scorer.Score(r.Context(), &req)
	if err != nil {
		slog.Error("scoring failed",
			"transaction_id", req.TransactionID,
			"trace_id", GetTraceID(r.Context()),
			"error", err)
		writeError(w, http.StatusServiceUnavailable, "scoring unavailable")
		return
	}

	writeJSON(w, http.StatusOK, assessment)
}

// ScoreBatch handles POST /api/v1/transactions/batch-score. The whole
// payload is validated before any item is scored, so a malformed item
// rejects the batch without partial writes.
func (h *Handler) ScoreBatch(w http.ResponseWriter, r *http.Request) {
	var req domain.BatchScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	if !h.validate(w, &req) {
		return
	}

	result, err := h.scorer.ScoreBatch(r.Context(), &req)
	if err != nil {
		slog.Error("batch scoring failed",
			"size", len(req.Transactions),
			"trace_id", GetTraceID(r.Context()),
			"error", err)
		writeError(w, http.StatusServiceUnavailable, "scoring unavailable")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GetTransaction handles GET /api/v1/transactions/{id}.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "id")

	tx, err := h.repo.GetTransaction(r.Context(), txID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "transaction not found")
			return
		}
		slog.Error("failed to get transaction", "transaction_id", txID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load transaction")
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// ListRules handles GET /api/v1/rules. Returns every rule, active and
// inactive, ordered by ascending priority.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	ruleList, err := h.ruleStore.List(r.Context())
	if err != nil {
		slog.Error("failed to list rules", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list rules")
		return
	}
	if ruleList == nil {
		ruleList = []*domain.Rule{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules": ruleList,
	})
}

// CreateRule handles POST /api/v1/rules.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req domain.RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	if !h.validate(w, &req) {
		return
	}

	// Struct tags cannot check condition operators or the
	// value/value_field exclusivity, so those run separately.
	if err := req.Validate(); err != nil {
		writeValidationError(w, &validation.ValidationError{
			Errors: map[string]string{"conditions": err.Error()},
		})
		return
	}

	rule, err := h.ruleStore.Create(r.Context(), &req)
	if err != nil {
		slog.Error("failed to create rule", "name", req.Name, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save rule")
		return
	}

	writeJSON(w, http.StatusCreated, rule)
}

// GetRule handles GET /api/v1/rules/{id}.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	rule, err := h.ruleStore.Get(r.Context(), ruleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "rule not found")
			return
		}
		slog.Error("failed to get rule", "rule_id", ruleID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load rule")
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

// AnalyzeChargebacks handles GET /api/v1/chargebacks/analysis.
func (h *Handler) AnalyzeChargebacks(w http.ResponseWriter, r *http.Request) {
	startDate := r.URL.Query().Get("start_date")
	endDate := r.URL.Query().Get("end_date")

	fields := make(map[string]string)
	if startDate != "" {
		if _, err := time.Parse("2006-01-02", startDate); err != nil {
			fields["start_date"] = "must be a date in YYYY-MM-DD format"
		}
	}
	if endDate != "" {
		if _, err := time.Parse("2006-01-02", endDate); err != nil {
			fields["end_date"] = "must be a date in YYYY-MM-DD format"
		}
	}
	if len(fields) > 0 {
		writeValidationError(w, &validation.ValidationError{Errors: fields})
		return
	}

	report, err := h.analyzer.Analyze(r.Context(), startDate, endDate)
	if err != nil {
		slog.Error("chargeback analysis failed", "start_date", startDate, "end_date", endDate, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to analyze chargebacks")
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// RecordChargeback handles POST /api/v1/chargebacks.
func (h *Handler) RecordChargeback(w http.ResponseWriter, r *http.Request) {
	var req domain.ChargebackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	if !h.validate(w, &req) {
		return
	}

	cb, err := h.analyzer.Record(r.Context(), &req)
	if err != nil {
		slog.Error("failed to record chargeback", "transaction_id", req.TransactionID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to record chargeback")
		return
	}

	writeJSON(w, http.StatusCreated, cb)
}

// validate runs struct-tag validation and writes the 422 response on
// failure. Returns true when the payload is valid.
func (h *Handler) validate(w http.ResponseWriter, payload interface{}) bool {
	err := validation.ValidateStruct(payload)
	if err == nil {
		return true
	}

	var verr *validation.ValidationError
	if errors.As(err, &verr) {
		writeValidationError(w, verr)
		return false
	}

	slog.Error("validation failed unexpectedly", "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
	return false
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

func writeValidationError(w http.ResponseWriter, verr *validation.ValidationError) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
		"error":  "Validation failed",
		"fields": verr.Errors,
	})
}
