package repository

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/veridoc/harrier/internal/domain"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestDocumentRoundtrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	doc := &domain.Document{
		ID:         "doc-1",
		TenantID:   "t1",
		Type:       domain.DocTypeCheck,
		EntityName: "ACME Corp",
		Amount:     1250.00,
		Currency:   "USD",
		RawFields:  map[string]any{"payee": "Jane Smith"},
		CreatedAt:  time.Now().UTC().Truncate(time.Second),
	}

	if err := repo.SaveDocument(ctx, "t1", doc); err != nil {
		t.Fatalf("SaveDocument failed: %v", err)
	}

	got, err := repo.GetDocument(ctx, "t1", "doc-1")
	if err != nil {
		t.Fatalf("GetDocument failed: %v", err)
	}
	if got.Type != domain.DocTypeCheck || got.Amount != 1250.00 || got.EntityName != "ACME Corp" {
		t.Errorf("document mismatch: %+v", got)
	}
	if got.RawFields["payee"] != "Jane Smith" {
		t.Errorf("raw fields not preserved: %v", got.RawFields)
	}

	t.Run("tenant isolation", func(t *testing.T) {
		_, err := repo.GetDocument(ctx, "t2", "doc-1")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound for different tenant, got: %v", err)
		}
	})

	t.Run("missing tenant rejected", func(t *testing.T) {
		if err := repo.SaveDocument(ctx, "", doc); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got: %v", err)
		}
	})
}

func TestAssessmentRoundtrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	a := &domain.RiskAssessment{
		ID:           "a-1",
		TenantID:     "t1",
		DocumentID:   "doc-1",
		Type:         domain.DocTypeCheck,
		OverallScore: 11.5,
		Components: []domain.RiskComponent{
			{Name: domain.ComponentDateAnomaly, Weight: 0.15, RawScore: 50},
			{Name: domain.ComponentSignature, Weight: 0.10, RawScore: 40},
		},
		SeverityByComponent: map[string]domain.Severity{
			domain.ComponentDateAnomaly: domain.SeverityMedium,
			domain.ComponentSignature:   domain.SeverityMedium,
		},
		Warnings:  []string{"amount baseline unavailable"},
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}

	if err := repo.SaveAssessment(ctx, "t1", a); err != nil {
		t.Fatalf("SaveAssessment failed: %v", err)
	}

	got, err := repo.GetAssessment(ctx, "t1", "a-1")
	if err != nil {
		t.Fatalf("GetAssessment failed: %v", err)
	}
	if got.OverallScore != 11.5 {
		t.Errorf("overall score: expected 11.5, got %v", got.OverallScore)
	}
	if len(got.Components) != 2 {
		t.Errorf("expected 2 components, got %d", len(got.Components))
	}
	if got.SeverityByComponent[domain.ComponentDateAnomaly] != domain.SeverityMedium {
		t.Errorf("severity map not preserved: %v", got.SeverityByComponent)
	}
	if len(got.Warnings) != 1 {
		t.Errorf("warnings not preserved: %v", got.Warnings)
	}
}

func TestDecisionsByEntity(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, rec := range []domain.Recommendation{
		domain.RecommendApprove, domain.RecommendEscalate, domain.RecommendReject,
	} {
		d := &domain.Decision{
			ID:             "d-" + string(rec),
			TenantID:       "t1",
			DocumentID:     "doc-1",
			EntityName:     "Jane SMITH",
			EntityClass:    domain.ClassNew,
			Recommendation: rec,
			OverallScore:   float64(10 * i),
			Rationale:      "test",
			CreatedAt:      base.Add(time.Duration(i) * time.Hour),
		}
		if err := repo.SaveDecision(ctx, "t1", d); err != nil {
			t.Fatalf("SaveDecision failed: %v", err)
		}
	}

	decisions, err := repo.ListDecisionsByEntity(ctx, "t1", "jane smith", 10)
	if err != nil {
		t.Fatalf("ListDecisionsByEntity failed: %v", err)
	}
	if len(decisions) != 3 {
		t.Fatalf("expected 3 decisions, got %d", len(decisions))
	}
	if decisions[0].Recommendation != domain.RecommendReject {
		t.Errorf("expected newest first, got %s", decisions[0].Recommendation)
	}

	got, err := repo.GetDecision(ctx, "t1", "d-REJECT")
	if err != nil {
		t.Fatalf("GetDecision failed: %v", err)
	}
	if got.EntityClass != domain.ClassNew {
		t.Errorf("entity class not preserved: %s", got.EntityClass)
	}
}

func TestApplyDecision(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	t.Run("lookup never creates", func(t *testing.T) {
		_, err := repo.GetEntityByName(ctx, "t1", "jane smith")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got: %v", err)
		}
	})

	// First approval creates a clean record.
	e, err := repo.ApplyDecision(ctx, "t1", "Jane Smith", domain.RecommendApprove, at)
	if err != nil {
		t.Fatalf("ApplyDecision failed: %v", err)
	}
	if e.FraudCount != 0 || e.EscalateCount != 0 || e.HasFraudHistory {
		t.Errorf("approval must not mark fraud: %+v", e)
	}
	if e.Class() != domain.ClassRepeatClean {
		t.Errorf("expected REPEAT_CLEAN after approval, got %s", e.Class())
	}

	// Rejections and escalations increment their counters.
	if _, err := repo.ApplyDecision(ctx, "t1", "jane  SMITH", domain.RecommendReject, at.Add(time.Hour)); err != nil {
		t.Fatalf("ApplyDecision failed: %v", err)
	}
	e, err = repo.ApplyDecision(ctx, "t1", "Jane Smith", domain.RecommendEscalate, at.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("ApplyDecision failed: %v", err)
	}
	if e.FraudCount != 1 || e.EscalateCount != 1 {
		t.Errorf("expected counters 1/1, got %d/%d", e.FraudCount, e.EscalateCount)
	}
	if !e.HasFraudHistory || e.Class() != domain.ClassRepeatFraud {
		t.Errorf("expected REPEAT_FRAUD, got %s", e.Class())
	}
	if e.LastRecommendation != domain.RecommendEscalate {
		t.Errorf("last recommendation: got %s", e.LastRecommendation)
	}

	// A later approval never clears history.
	e, err = repo.ApplyDecision(ctx, "t1", "Jane Smith", domain.RecommendApprove, at.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("ApplyDecision failed: %v", err)
	}
	if e.FraudCount != 1 || e.EscalateCount != 1 || !e.HasFraudHistory {
		t.Errorf("counters must be monotonic: %+v", e)
	}

	t.Run("tenant isolation", func(t *testing.T) {
		_, err := repo.GetEntityByName(ctx, "t2", "jane smith")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("entity must not leak across tenants: %v", err)
		}
	})
}

func TestApplyDecisionFraudHistoryOnlyOnReject(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	// Escalations raise the counter but never the fraud-history flag.
	e, err := repo.ApplyDecision(ctx, "t1", "Acme Corp", domain.RecommendEscalate, at)
	if err != nil {
		t.Fatalf("ApplyDecision failed: %v", err)
	}
	if e.HasFraudHistory {
		t.Error("escalation must not set fraud history")
	}
	if e.EscalateCount != 1 {
		t.Errorf("expected escalate count 1, got %d", e.EscalateCount)
	}
	if e.Class() != domain.ClassRepeatFraud {
		t.Errorf("escalation still classifies REPEAT_FRAUD, got %s", e.Class())
	}

	e, err = repo.ApplyDecision(ctx, "t1", "Acme Corp", domain.RecommendEscalate, at.Add(time.Hour))
	if err != nil {
		t.Fatalf("ApplyDecision failed: %v", err)
	}
	if e.HasFraudHistory {
		t.Error("repeated escalations must not set fraud history")
	}

	// The first rejection sets the flag, and it stays set.
	e, err = repo.ApplyDecision(ctx, "t1", "Acme Corp", domain.RecommendReject, at.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("ApplyDecision failed: %v", err)
	}
	if !e.HasFraudHistory {
		t.Error("rejection must set fraud history")
	}

	e, err = repo.ApplyDecision(ctx, "t1", "Acme Corp", domain.RecommendApprove, at.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("ApplyDecision failed: %v", err)
	}
	if !e.HasFraudHistory {
		t.Error("fraud history must persist after a later approval")
	}
}

func TestAmountStats(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	t.Run("no history", func(t *testing.T) {
		_, err := repo.AmountStats(ctx, "t1", "acme corp", domain.DocTypeCheck)
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got: %v", err)
		}
	})

	for i, amount := range []float64{100, 200, 300} {
		doc := &domain.Document{
			ID:         "doc-" + string(rune('a'+i)),
			TenantID:   "t1",
			Type:       domain.DocTypeCheck,
			EntityName: "ACME Corp",
			Amount:     amount,
			Currency:   "USD",
			CreatedAt:  time.Now().UTC(),
		}
		if err := repo.SaveDocument(ctx, "t1", doc); err != nil {
			t.Fatalf("SaveDocument failed: %v", err)
		}
	}
	// Different type must not pollute the baseline.
	other := &domain.Document{
		ID: "doc-z", TenantID: "t1", Type: domain.DocTypePaystub,
		EntityName: "ACME Corp", Amount: 99999, CreatedAt: time.Now().UTC(),
	}
	if err := repo.SaveDocument(ctx, "t1", other); err != nil {
		t.Fatalf("SaveDocument failed: %v", err)
	}

	stats, err := repo.AmountStats(ctx, "t1", "acme corp", domain.DocTypeCheck)
	if err != nil {
		t.Fatalf("AmountStats failed: %v", err)
	}
	if stats.Count != 3 {
		t.Errorf("count: expected 3, got %d", stats.Count)
	}
	if math.Abs(stats.Mean-200) > 1e-6 {
		t.Errorf("mean: expected 200, got %v", stats.Mean)
	}
	// Population std of {100,200,300} = sqrt(20000/3).
	want := math.Sqrt(20000.0 / 3.0)
	if math.Abs(stats.StdDev-want) > 1e-6 {
		t.Errorf("stddev: expected %v, got %v", want, stats.StdDev)
	}
}

func TestPatternRules(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	docRule := &domain.PatternRule{
		ID: "r-doc", TenantID: "t1", Name: "doc rule", Version: "1.0.0",
		Scope: domain.ScopeDocument, Expression: "amount > 100.0",
		Points: 20, Enabled: true,
	}
	batchHigh := &domain.PatternRule{
		ID: "r-batch-2", TenantID: "t1", Name: "later", Version: "1.0.0",
		Scope: domain.ScopeBatch, Expression: "true",
		Label: domain.ReasonUnclassified, Priority: 150, Enabled: true,
	}
	batchLow := &domain.PatternRule{
		ID: "r-batch-1", TenantID: "t1", Name: "earlier", Version: "1.0.0",
		Scope: domain.ScopeBatch, Expression: "z_score > 3.0",
		Label: domain.ReasonAmountSpike, Priority: 70, Enabled: true,
	}
	for _, rule := range []*domain.PatternRule{docRule, batchHigh, batchLow} {
		if err := repo.SavePatternRule(ctx, "t1", rule); err != nil {
			t.Fatalf("SavePatternRule failed: %v", err)
		}
	}

	t.Run("get latest enabled", func(t *testing.T) {
		got, err := repo.GetPatternRule(ctx, "t1", "r-doc")
		if err != nil {
			t.Fatalf("GetPatternRule failed: %v", err)
		}
		if got.Points != 20 || got.Scope != domain.ScopeDocument {
			t.Errorf("rule mismatch: %+v", got)
		}
	})

	t.Run("upsert same version", func(t *testing.T) {
		docRule.Points = 35
		if err := repo.SavePatternRule(ctx, "t1", docRule); err != nil {
			t.Fatalf("SavePatternRule failed: %v", err)
		}
		got, err := repo.GetPatternRule(ctx, "t1", "r-doc")
		if err != nil {
			t.Fatalf("GetPatternRule failed: %v", err)
		}
		if got.Points != 35 {
			t.Errorf("expected updated points 35, got %v", got.Points)
		}
	})

	t.Run("list by scope in priority order", func(t *testing.T) {
		rules, err := repo.ListPatternRules(ctx, "t1", domain.ScopeBatch)
		if err != nil {
			t.Fatalf("ListPatternRules failed: %v", err)
		}
		if len(rules) != 2 {
			t.Fatalf("expected 2 batch rules, got %d", len(rules))
		}
		if rules[0].ID != "r-batch-1" || rules[1].ID != "r-batch-2" {
			t.Errorf("expected priority order, got %s then %s", rules[0].ID, rules[1].ID)
		}
	})

	t.Run("list all scopes", func(t *testing.T) {
		rules, err := repo.ListPatternRules(ctx, "t1", "")
		if err != nil {
			t.Fatalf("ListPatternRules failed: %v", err)
		}
		if len(rules) != 3 {
			t.Errorf("expected 3 rules, got %d", len(rules))
		}
	})

	t.Run("disabled rules are invisible", func(t *testing.T) {
		docRule.Enabled = false
		if err := repo.SavePatternRule(ctx, "t1", docRule); err != nil {
			t.Fatalf("SavePatternRule failed: %v", err)
		}
		if _, err := repo.GetPatternRule(ctx, "t1", "r-doc"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound for disabled rule, got: %v", err)
		}
	})
}

func TestBatchReportRoundtrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	report := &domain.BatchReport{
		ID:                "b-1",
		TenantID:          "t1",
		RowCount:          100,
		FlaggedCount:      10,
		ContaminationRate: 0.10,
		Breakdown: []domain.PatternBreakdown{
			{Label: domain.ReasonAmountSpike, Count: 6, Percentage: 60, TotalAmount: 120000},
			{Label: domain.ReasonUnclassified, Count: 4, Percentage: 40, TotalAmount: 800},
		},
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		ProcessMs: 42,
	}

	if err := repo.SaveBatchReport(ctx, "t1", report); err != nil {
		t.Fatalf("SaveBatchReport failed: %v", err)
	}

	got, err := repo.GetBatchReport(ctx, "t1", "b-1")
	if err != nil {
		t.Fatalf("GetBatchReport failed: %v", err)
	}
	if got.RowCount != 100 || got.FlaggedCount != 10 {
		t.Errorf("report mismatch: %+v", got)
	}
	if len(got.Breakdown) != 2 || got.Breakdown[0].Label != domain.ReasonAmountSpike {
		t.Errorf("breakdown not preserved: %+v", got.Breakdown)
	}

	if _, err := repo.GetBatchReport(ctx, "t2", "b-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound for different tenant, got: %v", err)
	}
}
