package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/veridoc/harrier/internal/batch"
	"github.com/veridoc/harrier/internal/domain"
	"github.com/veridoc/harrier/internal/pipeline"
	"github.com/veridoc/harrier/internal/rules"
)

// GlobalTenantID is used for rules that apply to all tenants.
const GlobalTenantID = "*"

// Handler holds dependencies for API handlers.
type Handler struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	engine   *rules.Engine
	pipeline *pipeline.Pipeline
	detector *batch.Detector
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, p *pipeline.Pipeline, detector *batch.Detector, version string) *Handler {
	return &Handler{
		repo:     repo,
		cache:    cache,
		bus:      bus,
		engine:   engine,
		pipeline: p,
		detector: detector,
		version:  version,
	}
}

// Evaluate handles POST /documents/evaluate requests.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	var req domain.DocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Type == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "type is required",
		})
		return
	}
	if len(req.Fields) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "fields is required",
		})
		return
	}

	docID := uuid.New().String()

	resp, err := h.pipeline.Evaluate(ctx, tenantID, docID, traceID, req.Type, req.Fields)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownDocumentType) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		slog.Error("document evaluation failed", "doc_id", docID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "evaluation failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetDocument retrieves a document by ID.
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	docID := chi.URLParam(r, "id")

	doc, err := h.repo.GetDocument(ctx, tenantID, docID)
	if err != nil {
		writeNotFound(w, "document", docID, err)
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

// GetAssessment retrieves an assessment by ID.
func (h *Handler) GetAssessment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	assessmentID := chi.URLParam(r, "id")

	a, err := h.repo.GetAssessment(ctx, tenantID, assessmentID)
	if err != nil {
		writeNotFound(w, "assessment", assessmentID, err)
		return
	}

	writeJSON(w, http.StatusOK, a)
}

// GetDecision retrieves a decision by ID.
func (h *Handler) GetDecision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	decisionID := chi.URLParam(r, "id")

	d, err := h.repo.GetDecision(ctx, tenantID, decisionID)
	if err != nil {
		writeNotFound(w, "decision", decisionID, err)
		return
	}

	writeJSON(w, http.StatusOK, d)
}

// EntityResponse is the response for GET /entities/{name}.
type EntityResponse struct {
	Entity          *domain.EntityRecord `json:"entity"`
	Class           domain.EntityClass   `json:"class"`
	RecentDecisions []*domain.Decision   `json:"recentDecisions,omitempty"`
}

// GetEntity retrieves an entity's history by name. The name is normalized the
// same way the pipeline normalizes it, so any case/whitespace variant works.
func (h *Handler) GetEntity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	name := domain.NormalizeEntityName(chi.URLParam(r, "name"))

	if name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "entity name is required",
		})
		return
	}

	entity, err := h.repo.GetEntityByName(ctx, tenantID, name)
	if err != nil {
		writeNotFound(w, "entity", name, err)
		return
	}

	decisions, err := h.repo.ListDecisionsByEntity(ctx, tenantID, name, 10)
	if err != nil {
		slog.Error("failed to list decisions for entity", "entity", name, "error", err)
	}

	writeJSON(w, http.StatusOK, EntityResponse{
		Entity:          entity,
		Class:           entity.Class(),
		RecentDecisions: decisions,
	})
}

// BatchResponse is the response for POST /batch/analyze. Flagged carries only
// the outlier rows, each with its fraud reason.
type BatchResponse struct {
	Report  *domain.BatchReport        `json:"report"`
	Flagged []domain.TransactionRecord `json:"flagged,omitempty"`
}

// AnalyzeBatch handles POST /batch/analyze requests.
func (h *Handler) AnalyzeBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var b domain.Batch
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	report, records, err := h.detector.Analyze(ctx, tenantID, &b)
	if err != nil {
		var schemaErr *batch.SchemaError
		if errors.As(err, &schemaErr) {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":          schemaErr.Error(),
				"missingColumns": schemaErr.MissingColumns,
				"rowErrors":      schemaErr.RowErrors,
			})
			return
		}
		slog.Error("batch analysis failed", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "batch analysis failed",
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveBatchReport(ctx, tenantID, report); err != nil {
			slog.Error("failed to save batch report", "report_id", report.ID, "error", err)
		}
	}

	if h.bus != nil {
		payload, _ := json.Marshal(report)
		if err := h.bus.Publish(ctx, tenantID, domain.TopicBatchCompleted, payload); err != nil {
			slog.Error("failed to publish batch report", "report_id", report.ID, "error", err)
		}
	}

	flagged := make([]domain.TransactionRecord, 0, report.FlaggedCount)
	for _, rec := range records {
		if rec.Outlier {
			flagged = append(flagged, rec)
		}
	}

	writeJSON(w, http.StatusOK, BatchResponse{
		Report:  report,
		Flagged: flagged,
	})
}

// GetBatchReport retrieves a batch report by ID.
func (h *Handler) GetBatchReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	reportID := chi.URLParam(r, "id")

	report, err := h.repo.GetBatchReport(ctx, tenantID, reportID)
	if err != nil {
		writeNotFound(w, "batch report", reportID, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

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

// ListRules returns all loaded rules from the engine.
// Rules are loaded from the database at startup and can be reloaded via POST /rules/reload.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loadedRules := h.engine.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]any{
		"rules": loadedRules,
		"count": len(loadedRules),
	})
}

// GetRule retrieves a rule by ID from the loaded engine rules.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	for _, rule := range h.engine.GetLoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateRuleRequest is the request body for creating a pattern rule.
type CreateRuleRequest struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Scope       domain.RuleScope `json:"scope"`
	Expression  string           `json:"expression"`
	Points      float64          `json:"points,omitempty"`
	Label       string           `json:"label,omitempty"`
	Priority    int              `json:"priority,omitempty"`
	Enabled     bool             `json:"enabled"`
}

// CreateRule creates a new pattern rule and saves it to the database.
// Rules are saved globally (tenant_id = "*") so they apply to all tenants.
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

	rule := &domain.PatternRule{
		ID:          req.ID,
		TenantID:    GlobalTenantID,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1.0.0",
		Scope:       req.Scope,
		Expression:  req.Expression,
		Points:      req.Points,
		Label:       req.Label,
		Priority:    req.Priority,
		Enabled:     req.Enabled,
	}

	// Compile against the scope's environment before persisting.
	if err := h.engine.ValidateRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SavePatternRule(ctx, GlobalTenantID, rule); err != nil {
			slog.Error("failed to save pattern rule", "id", rule.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	slog.Info("pattern rule created", "id", rule.ID, "name", rule.Name, "scope", rule.Scope)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":    rule,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// ReloadRules reloads all rules from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	dbRules, err := h.repo.ListPatternRules(ctx, GlobalTenantID, "")
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.engine.ReloadRules(dbRules); err != nil {
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

func writeNotFound(w http.ResponseWriter, kind, id string, err error) {
	if !errors.Is(err, domain.ErrNotFound) {
		slog.Error("lookup failed", "kind", kind, "id", id, "error", err)
	}
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": kind + " not found",
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
