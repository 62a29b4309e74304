package worker

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/veridoc/harrier/internal/bus"
	"github.com/veridoc/harrier/internal/decision"
	"github.com/veridoc/harrier/internal/domain"
	"github.com/veridoc/harrier/internal/history"
	"github.com/veridoc/harrier/internal/normalize"
	"github.com/veridoc/harrier/internal/pipeline"
	"github.com/veridoc/harrier/internal/rules"
	"github.com/veridoc/harrier/internal/scoring"
)

// nullRepo satisfies the entity subset the pipeline needs without storage.
type nullRepo struct {
	domain.Repository
}

func (nullRepo) SaveDocument(ctx context.Context, tenantID string, doc *domain.Document) error {
	return nil
}

func (nullRepo) SaveAssessment(ctx context.Context, tenantID string, a *domain.RiskAssessment) error {
	return nil
}

func (nullRepo) SaveDecision(ctx context.Context, tenantID string, d *domain.Decision) error {
	return nil
}

func (nullRepo) GetEntityByName(ctx context.Context, tenantID, normalizedName string) (*domain.EntityRecord, error) {
	return nil, domain.ErrNotFound
}

func (nullRepo) ApplyDecision(ctx context.Context, tenantID, name string, rec domain.Recommendation, at time.Time) (*domain.EntityRecord, error) {
	return nil, nil
}

func newTestPipeline(t *testing.T, eventBus domain.EventBus) *pipeline.Pipeline {
	t.Helper()

	cfg := domain.DefaultConfig()

	engine, err := rules.NewEngine(4)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	t.Cleanup(func() { engine.Close() })
	if err := engine.LoadRules(rules.DefaultDocumentRules()); err != nil {
		t.Fatalf("LoadRules failed: %v", err)
	}

	return pipeline.New(
		normalize.New(cfg.Scoring),
		engine,
		scoring.New(cfg.Scoring, nil),
		decision.New(cfg.Decision),
		history.NewStore(nullRepo{}, nil),
		nullRepo{},
		nil,
		eventBus,
		nil,
	)
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	p := newTestPipeline(t, eventBus)

	t.Run("StartAndStop", func(t *testing.T) {
		w := NewWorker(eventBus, p)

		cfg := Config{
			TenantIDs: []string{"tenant-001"},
		}

		if err := w.Start(cfg); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := w.GetStats()
		if stats.SubscriptionCount != 1 {
			t.Errorf("expected 1 subscription, got %d", stats.SubscriptionCount)
		}

		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}

		stats = w.GetStats()
		if stats.SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("ProcessDocument", func(t *testing.T) {
		w := NewWorker(eventBus, p)

		cfg := Config{
			TenantIDs: []string{"tenant-test"},
		}
		w.Start(cfg)
		defer w.Stop()

		var decisionReceived atomic.Bool
		var decisionPayload []byte

		eventBus.Subscribe(context.Background(), "tenant-test", domain.TopicDecision, func(ctx context.Context, msg *domain.Message) error {
			decisionPayload = msg.Payload
			decisionReceived.Store(true)
			return nil
		})

		// Allow subscriptions to be active
		time.Sleep(50 * time.Millisecond)

		docMsg := DocumentMessage{
			DocID:    "doc-001",
			TenantID: "tenant-test",
			TraceID:  "trace-001",
			Type:     "check",
			Fields: map[string]any{
				"bank_name":   "First National Bank",
				"payee":       "Acme Supplies",
				"amount":      "$1,250.37",
				"date":        time.Now().AddDate(0, 0, -10).Format("2006-01-02"),
				"signature":   true,
				"entity_name": "John Doe",
			},
		}

		payload, _ := json.Marshal(docMsg)
		if err := eventBus.Publish(context.Background(), "tenant-test", domain.TopicDocumentReceived, payload); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		// Wait for processing
		time.Sleep(100 * time.Millisecond)

		if !decisionReceived.Load() {
			t.Fatal("expected decision to be published")
		}

		var dec domain.Decision
		if err := json.Unmarshal(decisionPayload, &dec); err != nil {
			t.Fatalf("failed to parse decision: %v", err)
		}

		if dec.DocumentID != "doc-001" {
			t.Errorf("expected document ID 'doc-001', got '%s'", dec.DocumentID)
		}
		if dec.TenantID != "tenant-test" {
			t.Errorf("expected tenantID 'tenant-test', got '%s'", dec.TenantID)
		}
		if dec.Recommendation != domain.RecommendApprove {
			t.Errorf("clean check should be approved, got %s", dec.Recommendation)
		}
	})

	t.Run("AlertPublished", func(t *testing.T) {
		w := NewWorker(eventBus, p)

		cfg := Config{
			TenantIDs: []string{"tenant-alert"},
		}
		w.Start(cfg)
		defer w.Stop()

		var alertReceived atomic.Bool

		eventBus.Subscribe(context.Background(), "tenant-alert", domain.TopicAlert, func(ctx context.Context, msg *domain.Message) error {
			alertReceived.Store(true)
			return nil
		})

		time.Sleep(50 * time.Millisecond)

		// A future-dated check missing every other critical field scores
		// past the escalation threshold.
		docMsg := DocumentMessage{
			DocID:    "doc-alert",
			TenantID: "tenant-alert",
			Type:     "check",
			Fields: map[string]any{
				"date": time.Now().AddDate(0, 6, 0).Format("2006-01-02"),
			},
		}

		payload, _ := json.Marshal(docMsg)
		eventBus.Publish(context.Background(), "tenant-alert", domain.TopicDocumentReceived, payload)

		time.Sleep(100 * time.Millisecond)

		if !alertReceived.Load() {
			t.Error("expected alert to be published for high-risk document")
		}
	})

	t.Run("MultiTenant", func(t *testing.T) {
		w := NewWorker(eventBus, p)

		cfg := Config{
			TenantIDs: []string{"tenant-a", "tenant-b"},
		}
		w.Start(cfg)
		defer w.Stop()

		stats := w.GetStats()
		if stats.SubscriptionCount != 2 {
			t.Errorf("expected 2 subscriptions for 2 tenants, got %d", stats.SubscriptionCount)
		}
	})
}

func TestDocumentMessageParsing(t *testing.T) {
	msg := DocumentMessage{
		DocID:    "doc-123",
		TenantID: "tenant-001",
		TraceID:  "trace-456",
		Type:     "money_order",
		Fields: map[string]any{
			"issuer": "Western Union",
			"amount": 450.0,
		},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var parsed DocumentMessage
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if parsed.DocID != msg.DocID {
		t.Errorf("expected DocID '%s', got '%s'", msg.DocID, parsed.DocID)
	}
	if parsed.Type != msg.Type {
		t.Errorf("expected Type '%s', got '%s'", msg.Type, parsed.Type)
	}
	if parsed.Fields["issuer"] != "Western Union" {
		t.Errorf("fields not preserved: %v", parsed.Fields)
	}
}
