// Package pipeline runs a document through the full evaluation sequence:
// normalization, pattern rules, component scoring, entity history, decision.
// The HTTP handler and the async worker both drive the same Pipeline, so the
// two paths cannot drift apart.
package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/veridoc/harrier/internal/decision"
	"github.com/veridoc/harrier/internal/domain"
	"github.com/veridoc/harrier/internal/history"
	"github.com/veridoc/harrier/internal/normalize"
	"github.com/veridoc/harrier/internal/rules"
	"github.com/veridoc/harrier/internal/scoring"
)

// EngineVersion identifies the scoring engine build in response metadata.
const EngineVersion = "harrier-1.0"

// duplicateNumberWindow bounds how long a document number counts toward the
// duplicate-detection counter.
const duplicateNumberWindow = 24 * time.Hour

// Pipeline evaluates documents. Safe for concurrent use.
type Pipeline struct {
	normalizer *normalize.Normalizer
	engine     *rules.Engine
	scorer     *scoring.Scorer
	decider    *decision.Engine
	history    *history.Store
	repo       domain.Repository
	cache      domain.Cache
	bus        domain.EventBus
	logger     *slog.Logger
	now        func() time.Time
}

// New assembles a Pipeline. repo, cache and bus may be nil (evaluation still
// runs; persistence, duplicate-number counting and event publication are
// skipped respectively).
func New(
	normalizer *normalize.Normalizer,
	engine *rules.Engine,
	scorer *scoring.Scorer,
	decider *decision.Engine,
	hist *history.Store,
	repo domain.Repository,
	cache domain.Cache,
	bus domain.EventBus,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		normalizer: normalizer,
		engine:     engine,
		scorer:     scorer,
		decider:    decider,
		history:    hist,
		repo:       repo,
		cache:      cache,
		bus:        bus,
		logger:     logger,
		now:        time.Now,
	}
}

// Evaluate processes one raw document field map and returns the full
// assessment response. The entity class is read before the decision and the
// decision is applied to the entity's counters after, so a document never
// influences its own classification.
func (p *Pipeline) Evaluate(ctx context.Context, tenantID, docID, traceID string, docType string, raw map[string]any) (*domain.AssessmentResponse, error) {
	start := p.now()

	// 1. Normalize into the canonical feature record.
	rec, err := p.normalizer.Normalize(docID, tenantID, docType, raw)
	if err != nil {
		return nil, err
	}
	normalizeMs := time.Since(start).Milliseconds()

	entityName := primaryEntity(rec)

	// 2. Pattern rules, then the six-component scorer.
	scoringStart := p.now()
	activation := rules.DocumentActivation(rec, p.now(), p.countDocumentNumber(ctx, tenantID, rec))
	patternScore, matches := p.engine.ScoreDocument(ctx, activation)

	assessment, err := p.scorer.Score(ctx, rec, domain.NormalizeEntityName(entityName), patternScore)
	if err != nil {
		return nil, err
	}
	scoringMs := time.Since(scoringStart).Milliseconds()

	if len(matches) > 0 {
		p.logger.Debug("pattern rules matched",
			"document_id", docID,
			"tenant_id", tenantID,
			"matches", len(matches),
			"pattern_score", patternScore,
		)
	}

	// 3. Classify the entity on history as it stood before this document.
	decisionStart := p.now()
	class, _, warning := p.history.Classify(ctx, tenantID, entityName)
	if warning != "" {
		assessment.Warnings = append(assessment.Warnings, warning)
	}

	// 4. Decide.
	dec, err := p.decider.Decide(assessment, class, entityName)
	if err != nil {
		return nil, err
	}

	// 5. Fold the decision back into the entity's history.
	if _, err := p.history.Apply(ctx, tenantID, entityName, dec.Recommendation, p.now().UTC()); err != nil {
		p.logger.Error("failed to apply decision to entity history",
			"document_id", docID,
			"tenant_id", tenantID,
			"entity", entityName,
			"error", err,
		)
	}
	decisionMs := time.Since(decisionStart).Milliseconds()

	// 6. Persist. Evaluation results take priority over storage failures.
	if p.repo != nil {
		doc := documentFromRecord(rec, entityName, raw, p.now().UTC())
		if err := p.repo.SaveDocument(ctx, tenantID, doc); err != nil {
			p.logger.Error("failed to save document", "document_id", docID, "error", err)
		}
		if err := p.repo.SaveAssessment(ctx, tenantID, assessment); err != nil {
			p.logger.Error("failed to save assessment", "assessment_id", assessment.ID, "error", err)
		}
		if err := p.repo.SaveDecision(ctx, tenantID, dec); err != nil {
			p.logger.Error("failed to save decision", "decision_id", dec.ID, "error", err)
		}
	}

	// 7. Publish.
	if p.bus != nil {
		p.publish(ctx, tenantID, domain.TopicDocumentScored, assessment)
		p.publish(ctx, tenantID, domain.TopicDecision, dec)
		if dec.Recommendation != domain.RecommendApprove {
			p.publish(ctx, tenantID, domain.TopicAlert, dec)
		}
	}

	totalMs := time.Since(start).Milliseconds()

	p.logger.Info("document evaluated",
		"document_id", docID,
		"tenant_id", tenantID,
		"type", docType,
		"score", assessment.OverallScore,
		"entity_class", class,
		"recommendation", dec.Recommendation,
		"duration_ms", totalMs,
	)

	return &domain.AssessmentResponse{
		AssessmentID:        assessment.ID,
		DocumentID:          docID,
		TenantID:            tenantID,
		OverallScore:        assessment.OverallScore,
		Components:          assessment.Components,
		SeverityByComponent: assessment.SeverityByComponent,
		Recommendation:      dec.Recommendation,
		EntityClass:         class,
		Rationale:           dec.Rationale,
		Warnings:            assessment.Warnings,
		Metadata: domain.ProcessingMetadata{
			TraceID:       traceID,
			NormalizeMs:   normalizeMs,
			ScoringMs:     scoringMs,
			DecisionMs:    decisionMs,
			TotalMs:       totalMs,
			EngineVersion: EngineVersion,
		},
	}, nil
}

func (p *Pipeline) publish(ctx context.Context, tenantID, topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		p.logger.Error("failed to marshal event payload", "topic", topic, "error", err)
		return
	}
	if err := p.bus.Publish(ctx, tenantID, topic, payload); err != nil {
		p.logger.Error("failed to publish event", "topic", topic, "error", err)
	}
}

// countDocumentNumber increments the per-tenant counter for the document's
// identifying number and returns the running count within the window. Zero
// when the document carries no number or no cache is wired; a counter failure
// degrades to zero instead of failing the evaluation.
func (p *Pipeline) countDocumentNumber(ctx context.Context, tenantID string, rec *domain.FeatureRecord) int64 {
	if p.cache == nil {
		return 0
	}
	field := domain.FieldDocumentNumber
	if rec.Type == domain.DocTypeMoneyOrder {
		field = domain.FieldSerialNumber
	}
	num := strings.ToLower(strings.TrimSpace(rec.Text(field)))
	if num == "" {
		return 0
	}
	key := "docnum:" + string(rec.Type) + ":" + num
	n, err := p.cache.IncrementCounter(ctx, tenantID, key, duplicateNumberWindow)
	if err != nil {
		p.logger.Warn("duplicate-number counter unavailable",
			"tenant_id", tenantID,
			"document_id", rec.DocumentID,
			"error", err,
		)
		return 0
	}
	return n
}

// primaryEntity names the party a document's history and baseline are keyed
// on: the employer for paystubs, otherwise the extracted entity name with the
// payee as fallback.
func primaryEntity(rec *domain.FeatureRecord) string {
	if rec.Type == domain.DocTypePaystub {
		if name := rec.Text(domain.FieldEmployer); name != "" {
			return name
		}
	}
	if name := rec.Text(domain.FieldEntityName); name != "" {
		return name
	}
	return rec.Text(domain.FieldPayee)
}

func documentFromRecord(rec *domain.FeatureRecord, entityName string, raw map[string]any, at time.Time) *domain.Document {
	amountField := domain.FieldAmount
	if rec.Type == domain.DocTypePaystub {
		amountField = domain.FieldGrossPay
	}
	amount := 0.0
	currency := ""
	if fv := rec.Field(amountField); fv.Present && !rec.HasAnomaly(domain.AnomalyUnparsableAmount, amountField) {
		amount = fv.Number
		currency = fv.Currency
	}
	return &domain.Document{
		ID:         rec.DocumentID,
		TenantID:   rec.TenantID,
		Type:       rec.Type,
		EntityName: entityName,
		Amount:     amount,
		Currency:   currency,
		RawFields:  raw,
		CreatedAt:  at,
	}
}
