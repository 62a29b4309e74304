package scoring

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/veridoc/harrier/internal/domain"
)

type stubBaselines struct {
	stats *domain.AmountStats
	err   error
}

func (s *stubBaselines) Baseline(ctx context.Context, tenantID, entityKey string, docType domain.DocumentType) (*domain.AmountStats, error) {
	return s.stats, s.err
}

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestScorer(baselines BaselineProvider) *Scorer {
	s := New(domain.DefaultScoringConfig(), baselines)
	s.now = func() time.Time { return testNow }
	return s
}

func textField(v string) domain.FieldValue {
	return domain.FieldValue{Kind: domain.FieldKindText, Present: true, Text: v, Confidence: -1}
}

func moneyField(v float64) domain.FieldValue {
	return domain.FieldValue{Kind: domain.FieldKindMoney, Present: true, Number: v, Currency: "USD", Confidence: -1}
}

func dateField(t time.Time) domain.FieldValue {
	return domain.FieldValue{Kind: domain.FieldKindDate, Present: true, Date: t, Confidence: -1}
}

func boolField(state string) domain.FieldValue {
	return domain.FieldValue{
		Kind: domain.FieldKindBool, Present: true,
		Text: state, Bool: state == "true", Confidence: -1,
	}
}

// completeCheck returns a check record with every critical field present and
// unremarkable.
func completeCheck() *domain.FeatureRecord {
	return &domain.FeatureRecord{
		DocumentID: "doc-1",
		TenantID:   "t1",
		Type:       domain.DocTypeCheck,
		Fields: map[string]domain.FieldValue{
			domain.FieldBankName:  textField("First National Bank"),
			domain.FieldPayee:     textField("Jane Smith"),
			domain.FieldAmount:    moneyField(500),
			domain.FieldDate:      dateField(testNow.AddDate(0, 0, -10)),
			domain.FieldSignature: boolField("true"),
		},
		NormalizedAt: testNow,
	}
}

func component(t *testing.T, a *domain.RiskAssessment, name string) domain.RiskComponent {
	t.Helper()
	for _, c := range a.Components {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("component %s not found", name)
	return domain.RiskComponent{}
}

func TestScoreCleanCheck(t *testing.T) {
	s := newTestScorer(nil)

	a, err := s.Score(context.Background(), completeCheck(), "jane smith", 0)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}

	if a.OverallScore != 0 {
		t.Errorf("clean document: expected overall 0, got %v", a.OverallScore)
	}
	if len(a.Components) != 6 {
		t.Errorf("expected 6 components, got %d", len(a.Components))
	}
	for name, sev := range a.SeverityByComponent {
		if sev != domain.SeverityLow {
			t.Errorf("component %s: expected LOW, got %s", name, sev)
		}
	}
}

func TestScoreFutureDateAndMissingSignature(t *testing.T) {
	s := newTestScorer(nil)

	rec := completeCheck()
	rec.Fields[domain.FieldDate] = dateField(testNow.AddDate(0, 1, 0))
	rec.Fields[domain.FieldSignature] = boolField("false")

	a, err := s.Score(context.Background(), rec, "jane smith", 0)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}

	date := component(t, a, domain.ComponentDateAnomaly)
	if date.RawScore != 50 {
		t.Errorf("future date: expected raw 50, got %v", date.RawScore)
	}
	if got := date.Contribution(); got != 7.5 {
		t.Errorf("date contribution: expected 7.5, got %v", got)
	}
	if a.SeverityByComponent[domain.ComponentDateAnomaly] != domain.SeverityMedium {
		t.Errorf("7.5 contribution should be MEDIUM")
	}

	sig := component(t, a, domain.ComponentSignature)
	if sig.RawScore != 40 {
		t.Errorf("absent signature: expected raw 40, got %v", sig.RawScore)
	}
	if got := sig.Contribution(); got != 4.0 {
		t.Errorf("signature contribution: expected 4.0, got %v", got)
	}
	if a.SeverityByComponent[domain.ComponentSignature] != domain.SeverityMedium {
		t.Errorf("4.0 contribution should be MEDIUM")
	}

	if a.OverallScore != 11.5 {
		t.Errorf("expected overall 11.5, got %v", a.OverallScore)
	}
}

func TestScoreMissingCriticalFields(t *testing.T) {
	s := newTestScorer(nil)

	// Check has 4 critical fields; drop two of them.
	rec := completeCheck()
	delete(rec.Fields, domain.FieldBankName)
	delete(rec.Fields, domain.FieldPayee)

	a, err := s.Score(context.Background(), rec, "", 0)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	mf := component(t, a, domain.ComponentMissingFields)
	if mf.RawScore != 50 {
		t.Errorf("2 of 4 critical missing: expected raw 50, got %v", mf.RawScore)
	}
	if a.SeverityByComponent[domain.ComponentMissingFields] != domain.SeverityHigh {
		t.Errorf("contribution 15.0 should be HIGH")
	}
}

func TestScoreUnscorableDefaultsToMaxRisk(t *testing.T) {
	s := newTestScorer(nil)

	t.Run("missing date", func(t *testing.T) {
		rec := completeCheck()
		delete(rec.Fields, domain.FieldDate)

		a, err := s.Score(context.Background(), rec, "", 0)
		if err != nil {
			t.Fatalf("Score failed: %v", err)
		}
		if got := component(t, a, domain.ComponentDateAnomaly).RawScore; got != 100 {
			t.Errorf("missing date should score max risk, got %v", got)
		}
		if len(a.Warnings) == 0 {
			t.Error("expected a warning for the scoring default")
		}
	})

	t.Run("unparsable amount", func(t *testing.T) {
		rec := completeCheck()
		rec.Fields[domain.FieldAmount] = domain.FieldValue{
			Kind: domain.FieldKindMoney, Present: true, Raw: "twelve dollars", Confidence: -1,
		}
		rec.Anomalies = []string{domain.AnomalyUnparsableAmount + ":" + domain.FieldAmount}

		a, err := s.Score(context.Background(), rec, "", 0)
		if err != nil {
			t.Fatalf("Score failed: %v", err)
		}
		if got := component(t, a, domain.ComponentAmountAnomaly).RawScore; got != 100 {
			t.Errorf("unparsable amount should score max risk, got %v", got)
		}
	})

	t.Run("negative amount", func(t *testing.T) {
		rec := completeCheck()
		rec.Fields[domain.FieldAmount] = moneyField(-250)

		a, err := s.Score(context.Background(), rec, "", 0)
		if err != nil {
			t.Fatalf("Score failed: %v", err)
		}
		if got := component(t, a, domain.ComponentAmountAnomaly).RawScore; got != 100 {
			t.Errorf("negative amount should score max risk, got %v", got)
		}
		if len(a.Warnings) == 0 {
			t.Error("expected a warning for the scoring default")
		}
	})

	t.Run("zero amount", func(t *testing.T) {
		rec := completeCheck()
		rec.Fields[domain.FieldAmount] = moneyField(0)

		a, err := s.Score(context.Background(), rec, "", 0)
		if err != nil {
			t.Fatalf("Score failed: %v", err)
		}
		if got := component(t, a, domain.ComponentAmountAnomaly).RawScore; got != 100 {
			t.Errorf("zero amount should score max risk, got %v", got)
		}
	})
}

func TestScoreAmountAgainstBaseline(t *testing.T) {
	baselines := &stubBaselines{stats: &domain.AmountStats{Count: 20, Mean: 500, StdDev: 100}}
	s := newTestScorer(baselines)

	tests := []struct {
		name   string
		amount float64
		want   float64
	}{
		// z = |amount-500|/100; raw = z/3*50
		{"at the mean", 500, 0},
		{"one sigma", 600, 50.0 / 3},
		{"at threshold", 800, 50},
		{"double threshold saturates", 1200, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := completeCheck()
			rec.Fields[domain.FieldAmount] = moneyField(tt.amount)

			a, err := s.Score(context.Background(), rec, "jane smith", 0)
			if err != nil {
				t.Fatalf("Score failed: %v", err)
			}
			got := component(t, a, domain.ComponentAmountAnomaly).RawScore
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("amount %v: expected raw %v, got %v", tt.amount, tt.want, got)
			}
		})
	}
}

func TestScoreAmountInsufficientBaseline(t *testing.T) {
	baselines := &stubBaselines{stats: &domain.AmountStats{Count: 2, Mean: 500, StdDev: 100}}
	s := newTestScorer(baselines)

	rec := completeCheck()
	rec.Fields[domain.FieldAmount] = moneyField(50000)

	a, err := s.Score(context.Background(), rec, "jane smith", 0)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if got := component(t, a, domain.ComponentAmountAnomaly).RawScore; got != 0 {
		t.Errorf("below min samples the baseline must not apply, got %v", got)
	}
}

func TestScorePaystubNetExceedsGross(t *testing.T) {
	s := newTestScorer(nil)

	rec := &domain.FeatureRecord{
		DocumentID: "doc-1",
		TenantID:   "t1",
		Type:       domain.DocTypePaystub,
		Fields: map[string]domain.FieldValue{
			domain.FieldEmployer: textField("Initech"),
			domain.FieldEmployee: textField("Peter Gibbons"),
			domain.FieldGrossPay: moneyField(2000),
			domain.FieldNetPay:   moneyField(2600),
			domain.FieldDate:     dateField(testNow.AddDate(0, 0, -3)),
		},
	}

	a, err := s.Score(context.Background(), rec, "", 0)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if got := component(t, a, domain.ComponentAmountAnomaly).RawScore; got != 80 {
		t.Errorf("net > gross: expected raw 80, got %v", got)
	}
}

func TestScoreTextQuality(t *testing.T) {
	s := newTestScorer(nil)

	rec := completeCheck()
	// Two fields below the 0.70 threshold, three above or without confidence.
	f := rec.Fields[domain.FieldPayee]
	f.Confidence = 0.35 // shortfall 0.35/0.70 -> 50
	rec.Fields[domain.FieldPayee] = f
	f = rec.Fields[domain.FieldBankName]
	f.Confidence = 0.95
	rec.Fields[domain.FieldBankName] = f

	a, err := s.Score(context.Background(), rec, "", 0)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	// Average over the two fields with confidence: (50 + 0) / 2.
	if got := component(t, a, domain.ComponentTextQuality).RawScore; math.Abs(got-25) > 1e-9 {
		t.Errorf("expected text quality 25, got %v", got)
	}
}

func TestScorePatternClamped(t *testing.T) {
	s := newTestScorer(nil)

	a, err := s.Score(context.Background(), completeCheck(), "", 140)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if got := component(t, a, domain.ComponentPatternAnomaly).RawScore; got != 100 {
		t.Errorf("pattern score must clamp to 100, got %v", got)
	}
}

func TestScoreUnknownType(t *testing.T) {
	s := newTestScorer(nil)

	rec := completeCheck()
	rec.Type = "invoice"
	if _, err := s.Score(context.Background(), rec, "", 0); err == nil {
		t.Fatal("expected error for unknown document type")
	}
}

func TestClassifySeverityBoundaries(t *testing.T) {
	tests := []struct {
		contribution float64
		want         domain.Severity
	}{
		{8.1, domain.SeverityHigh},
		{8.0, domain.SeverityMedium}, // inclusive upper bound
		{3.0, domain.SeverityMedium}, // inclusive lower bound
		{2.9, domain.SeverityLow},
		{0, domain.SeverityLow},
		{100, domain.SeverityHigh},
	}
	for _, tt := range tests {
		if got := ClassifySeverity(tt.contribution); got != tt.want {
			t.Errorf("ClassifySeverity(%v): expected %s, got %s", tt.contribution, tt.want, got)
		}
	}
}

func TestWeightsSumToOne(t *testing.T) {
	for _, dt := range domain.KnownDocumentTypes() {
		weights, ok := WeightsFor(dt)
		if !ok {
			t.Fatalf("no weight table for %s", dt)
		}
		if len(weights) != len(domain.ComponentNames()) {
			t.Errorf("%s: weight table must cover all components", dt)
		}
		sum := 0.0
		for name, w := range weights {
			if w <= 0 || w > 1 {
				t.Errorf("%s/%s: weight %v out of (0,1]", dt, name, w)
			}
			sum += w
		}
		if math.Abs(sum-1.0) > 1e-9 {
			t.Errorf("%s: weights sum to %v, want 1.0", dt, sum)
		}
	}
}

// TestOverallScoreMonotonicity raises one component's raw score at a time
// from a zero-scoring baseline and checks the overall score never decreases.
func TestOverallScoreMonotonicity(t *testing.T) {
	s := newTestScorer(nil)

	base, err := s.Score(context.Background(), completeCheck(), "", 0)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}

	tests := []struct {
		name         string
		component    string
		mutate       func(rec *domain.FeatureRecord)
		patternScore float64
	}{
		{
			name:      "missing_fields",
			component: domain.ComponentMissingFields,
			mutate:    func(rec *domain.FeatureRecord) { delete(rec.Fields, domain.FieldBankName) },
		},
		{
			name:      "amount_anomaly",
			component: domain.ComponentAmountAnomaly,
			mutate: func(rec *domain.FeatureRecord) {
				rec.Fields[domain.FieldAmount] = moneyField(-1)
			},
		},
		{
			name:      "date_anomaly",
			component: domain.ComponentDateAnomaly,
			mutate: func(rec *domain.FeatureRecord) {
				rec.Fields[domain.FieldDate] = dateField(testNow.AddDate(0, 2, 0))
			},
		},
		{
			name:      "signature",
			component: domain.ComponentSignature,
			mutate: func(rec *domain.FeatureRecord) {
				rec.Fields[domain.FieldSignature] = boolField("false")
			},
		},
		{
			name:      "text_quality",
			component: domain.ComponentTextQuality,
			mutate: func(rec *domain.FeatureRecord) {
				f := rec.Fields[domain.FieldPayee]
				f.Confidence = 0.2
				rec.Fields[domain.FieldPayee] = f
			},
		},
		{
			name:         "pattern_anomaly",
			component:    domain.ComponentPatternAnomaly,
			mutate:       func(rec *domain.FeatureRecord) {},
			patternScore: 60,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := completeCheck()
			tt.mutate(rec)

			a, err := s.Score(context.Background(), rec, "", tt.patternScore)
			if err != nil {
				t.Fatalf("Score failed: %v", err)
			}

			raised := component(t, a, tt.component).RawScore
			if raised <= component(t, base, tt.component).RawScore {
				t.Fatalf("mutation did not raise %s (raw %v)", tt.component, raised)
			}
			if a.OverallScore < base.OverallScore {
				t.Errorf("raising %s decreased overall: %v -> %v",
					tt.component, base.OverallScore, a.OverallScore)
			}
		})
	}
}

func TestOverallScoreRounding(t *testing.T) {
	s := newTestScorer(nil)

	rec := completeCheck()
	f := rec.Fields[domain.FieldPayee]
	f.Confidence = 0.5 // only field with confidence: raw 0.2/0.7*100 = 28.571...
	rec.Fields[domain.FieldPayee] = f

	a, err := s.Score(context.Background(), rec, "", 0)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	// 28.571... x 0.10 = 2.857... -> rounds to 2.9
	if a.OverallScore != 2.9 {
		t.Errorf("expected overall rounded to one decimal (2.9), got %v", a.OverallScore)
	}
}
