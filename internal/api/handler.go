package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kudoshq/shrike/internal/activity"
	"github.com/kudoshq/shrike/internal/audit"
	"github.com/kudoshq/shrike/internal/detect"
	"github.com/kudoshq/shrike/internal/domain"
	"github.com/kudoshq/shrike/internal/repository"
)

// GlobalTenantID is used for custom rules that apply to all tenants.
const GlobalTenantID = "*"

// Handler holds dependencies for API handlers.
type Handler struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	engine   *detect.Engine
	rules    *detect.RuleSet
	activity *activity.Service
	sink     *audit.Sink
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *detect.Engine, rules *detect.RuleSet, act *activity.Service, sink *audit.Sink, version string) *Handler {
	return &Handler{
		repo:     repo,
		cache:    cache,
		bus:      bus,
		engine:   engine,
		rules:    rules,
		activity: act,
		sink:     sink,
		version:  version,
	}
}

// CreateRecognitionResponse is the response for POST /recognitions.
type CreateRecognitionResponse struct {
	RecognitionID  string             `json:"recognitionId"`
	Decision       string             `json:"decision"`
	IsAbusive      bool               `json:"isAbusive"`
	Severity       domain.Severity    `json:"severity"`
	AdjustedWeight *float64           `json:"adjustedWeight,omitempty"`
	ReasonCodes    []string           `json:"reasonCodes"`
	Flags          []domain.AbuseFlag `json:"flags,omitempty"`
	Metadata       struct {
		TraceID    string `json:"traceId"`
		DurationMs int64  `json:"durationMs"`
		Version    string `json:"version"`
	} `json:"metadata"`
}

// CreateRecognition handles POST /recognitions. The recognition runs through
// abuse detection before it is stored; an abusive verdict adjusts the stored
// weight but never blocks the submission.
func (h *Handler) CreateRecognition(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	// Parse request
	var req domain.RecognitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	// Validate required fields
	if req.GiverID == "" || req.RecipientID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "giverId and recipientId are required",
		})
		return
	}
	if req.GiverID == req.RecipientID {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "self-recognition is not allowed",
		})
		return
	}
	if req.Weight <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "weight must be positive",
		})
		return
	}
	if req.EvidenceCount < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "evidenceCount must not be negative",
		})
		return
	}

	rec := req.ToRecognition()
	rec.ID = uuid.New().String()
	rec.TenantID = tenantID

	// Evaluate before storing so the adjusted weight lands in the row.
	result := h.engine.Evaluate(ctx, rec)
	if result.IsAbusive {
		rec.AdjustedWeight = result.AdjustedWeight
	}

	if err := h.repo.SaveRecognition(ctx, tenantID, rec); err != nil {
		slog.Error("failed to save recognition",
			"recognition_id", rec.ID,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save recognition",
		})
		return
	}

	if h.activity != nil {
		// The stored row changed the giver's counts; drop the cached
		// values so the next evaluation sees it.
		h.activity.InvalidateCounts(ctx, tenantID, rec)

		// Operational counter; the authoritative frequency signal is the
		// repository query inside the engine.
		if _, err := h.activity.RecordSubmission(ctx, tenantID, rec.GiverID); err != nil {
			slog.Warn("failed to record submission counter",
				"giver_id", rec.GiverID,
				"error", err,
			)
		}
	}

	h.publishEvaluated(r, tenantID, rec, result)

	resp := CreateRecognitionResponse{
		RecognitionID:  rec.ID,
		Decision:       domain.DecisionFor(result),
		IsAbusive:      result.IsAbusive,
		Severity:       result.Severity,
		AdjustedWeight: result.AdjustedWeight,
		ReasonCodes:    result.ReasonCodes,
		Flags:          result.Flags,
	}
	resp.Metadata.TraceID = traceID
	resp.Metadata.DurationMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusCreated, resp)
}

// publishEvaluated notifies downstream consumers of the verdict. Best-effort.
func (h *Handler) publishEvaluated(r *http.Request, tenantID string, rec *domain.Recognition, result *domain.DetectionResult) {
	if h.bus == nil {
		return
	}

	payload, err := json.Marshal(map[string]any{
		"recognitionId": rec.ID,
		"giverId":       rec.GiverID,
		"recipientId":   rec.RecipientID,
		"decision":      domain.DecisionFor(result),
		"isAbusive":     result.IsAbusive,
		"severity":      result.Severity,
	})
	if err != nil {
		return
	}

	if err := h.bus.Publish(r.Context(), tenantID, domain.TopicRecognitionEvaluated, payload); err != nil {
		slog.Warn("failed to publish evaluated event",
			"recognition_id", rec.ID,
			"error", err,
		)
	}
}

// GetRecognition retrieves a recognition by ID.
func (h *Handler) GetRecognition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	recID := chi.URLParam(r, "id")

	rec, err := h.repo.GetRecognition(ctx, tenantID, recID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "recognition not found",
			})
			return
		}
		slog.Error("failed to get recognition", "id", recID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get recognition",
		})
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// ListRecognitionFlags retrieves the flags raised for one recognition.
func (h *Handler) ListRecognitionFlags(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	recID := chi.URLParam(r, "id")

	flags, err := h.repo.ListFlagsByRecognition(ctx, tenantID, recID)
	if err != nil {
		slog.Error("failed to list flags", "recognition_id", recID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list flags",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"flags": flags,
		"count": len(flags),
	})
}

// ListFlags returns the moderation queue: flags in a lifecycle state,
// oldest first. Defaults to PENDING.
func (h *Handler) ListFlags(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	status := domain.FlagStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = domain.FlagPending
	}
	if !domain.ValidFlagStatus(status) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "unknown flag status",
		})
		return
	}

	limit := queryInt(r, "limit", 100)

	flags, err := h.repo.ListFlagsByStatus(ctx, tenantID, status, limit)
	if err != nil {
		slog.Error("failed to list flags by status", "status", status, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list flags",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"flags":  flags,
		"count":  len(flags),
		"status": status,
	})
}

// UpdateFlagStatusRequest is the request body for PATCH /flags/{id}.
type UpdateFlagStatusRequest struct {
	Status     domain.FlagStatus `json:"status"`
	ReviewedBy string            `json:"reviewedBy"`
}

// UpdateFlagStatus transitions a flag through its moderation lifecycle and
// records the transition in the audit log.
func (h *Handler) UpdateFlagStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	flagID := chi.URLParam(r, "id")

	var req UpdateFlagStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if !domain.ValidFlagStatus(req.Status) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "unknown flag status",
		})
		return
	}
	if req.ReviewedBy == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "reviewedBy is required",
		})
		return
	}

	if err := h.repo.UpdateFlagStatus(ctx, tenantID, flagID, req.Status, req.ReviewedBy); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "flag not found",
			})
			return
		}
		slog.Error("failed to update flag status", "flag_id", flagID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to update flag status",
		})
		return
	}

	if h.sink != nil {
		meta := domain.AuditMetadata{Status: string(req.Status)}
		if err := h.sink.Audit(ctx, tenantID, domain.EventFlagStatusChanged, req.ReviewedBy, flagID, meta); err != nil {
			slog.Warn("failed to audit flag status change",
				"flag_id", flagID,
				"error", err,
			)
		}
	}

	slog.Info("flag status updated",
		"flag_id", flagID,
		"status", req.Status,
		"tenant_id", tenantID,
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"flagId": flagID,
		"status": req.Status,
	})
}

// Leaderboard ranks recipients by effective recognition weight.
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	days := queryInt(r, "days", 30)
	limit := queryInt(r, "limit", 20)
	since := time.Now().AddDate(0, 0, -days)

	entries, err := h.repo.Leaderboard(ctx, tenantID, since, limit)
	if err != nil {
		slog.Error("failed to build leaderboard", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to build leaderboard",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"days":    days,
		"count":   len(entries),
	})
}

// ListAuditEntries retrieves recent audit entries.
func (h *Handler) ListAuditEntries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	hours := queryInt(r, "hours", 24)
	limit := queryInt(r, "limit", 100)
	since := time.Now().Add(-time.Duration(hours) * time.Hour)

	entries, err := h.repo.ListAuditEntries(ctx, tenantID, since, limit)
	if err != nil {
		slog.Error("failed to list audit entries", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list audit entries",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// ListRules returns all enabled custom rules.
// Rules are loaded from the database at startup and can be reloaded via POST /rules/reload.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rules, err := h.repo.ListRules(ctx, GlobalTenantID)
	if err != nil {
		slog.Error("failed to list rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list rules",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rules":  rules,
		"count":  len(rules),
		"loaded": h.rules.Len(),
	})
}

// GetRule retrieves a custom rule by ID.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ruleID := chi.URLParam(r, "id")

	rule, err := h.repo.GetRule(ctx, GlobalTenantID, ruleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "rule not found",
			})
			return
		}
		slog.Error("failed to get rule", "id", ruleID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get rule",
		})
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

// CreateRuleRequest is the request body for creating a custom rule.
type CreateRuleRequest struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Expression  string          `json:"expression"`
	FlagType    domain.FlagType `json:"flagType,omitempty"`
	Severity    domain.Severity `json:"severity,omitempty"`
	Enabled     bool            `json:"enabled"`
}

// CreateRule validates and saves a custom rule to the database.
// After saving, call POST /rules/reload to hot-reload into the engine.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	rule := &domain.RuleConfig{
		ID:          req.ID,
		TenantID:    GlobalTenantID,
		Name:        req.Name,
		Description: req.Description,
		Expression:  req.Expression,
		FlagType:    req.FlagType,
		Severity:    req.Severity,
		Enabled:     req.Enabled,
	}

	// Validate CEL expression before persisting
	if err := h.rules.Validate(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid rule expression: " + err.Error(),
		})
		return
	}

	if err := h.repo.SaveRule(ctx, GlobalTenantID, rule); err != nil {
		slog.Error("failed to save rule", "id", rule.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save rule",
		})
		return
	}

	slog.Info("rule created", "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":    rule,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// ReloadRules reloads all rules from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dbRules, err := h.repo.ListRules(ctx, GlobalTenantID)
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.rules.Reload(dbRules); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("rules reloaded from database", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   len(dbRules),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
