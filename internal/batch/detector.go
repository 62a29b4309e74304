// Package batch implements the batch anomaly detector: schema validation,
// in-batch feature engineering, contamination-rate outlier flagging, and the
// fraud-reason cascade. Two identical batches always produce identical
// reports; nothing here depends on wall-clock state or iteration order.
package batch

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/veridoc/harrier/internal/domain"
)

// OutlierClassifier labels one flagged row from its feature activation. The
// rules engine's batch cascade implements this.
type OutlierClassifier interface {
	ClassifyOutlier(activation map[string]any) (label, ruleID string)
}

// Detector runs batch anomaly detection. Safe for concurrent use.
type Detector struct {
	cfg        domain.BatchConfig
	classifier OutlierClassifier
	logger     *slog.Logger
	now        func() time.Time
}

// NewDetector builds a detector over the given classifier.
func NewDetector(cfg domain.BatchConfig, classifier OutlierClassifier, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ContaminationRate <= 0 || cfg.ContaminationRate >= 1 {
		cfg.ContaminationRate = 0.10
	}
	if cfg.VelocityWindow <= 0 {
		cfg.VelocityWindow = time.Hour
	}
	return &Detector{
		cfg:        cfg,
		classifier: classifier,
		logger:     logger,
		now:        time.Now,
	}
}

// Ensemble weights for the anomaly score. The amount signals dominate;
// velocity and structural flags refine the ranking.
const (
	weightGlobalZ    = 0.45
	weightEntityZ    = 0.30
	weightVelocity   = 0.15
	weightStructural = 0.10
)

// Analyze validates, scores and labels one batch. The returned records are in
// input row order with detector outputs filled in. A schema failure returns a
// *SchemaError and no partial results.
func (d *Detector) Analyze(ctx context.Context, tenantID string, b *domain.Batch) (*domain.BatchReport, []domain.TransactionRecord, error) {
	start := d.now()

	records, err := parseBatch(b)
	if err != nil {
		return nil, nil, err
	}

	features := engineerFeatures(records, d.cfg.VelocityWindow)
	for i := range records {
		records[i].AnomalyScore = anomalyScore(&features[i])
	}

	flagOutliers(records, d.cfg.ContaminationRate)

	flagged := 0
	for i := range records {
		if !records[i].Outlier {
			continue
		}
		flagged++
		label, ruleID := d.classifier.ClassifyOutlier(activation(&records[i], &features[i]))
		records[i].FraudReason = label
		d.logger.Debug("outlier labeled",
			"tenant_id", tenantID, "row_id", records[i].ID,
			"label", label, "rule_id", ruleID,
			"anomaly_score", records[i].AnomalyScore)
	}

	report := &domain.BatchReport{
		ID:                uuid.New().String(),
		TenantID:          tenantID,
		RowCount:          len(records),
		FlaggedCount:      flagged,
		ContaminationRate: d.cfg.ContaminationRate,
		Breakdown:         breakdown(records, flagged),
		CreatedAt:         start.UTC(),
		ProcessMs:         time.Since(start).Milliseconds(),
	}
	return report, records, nil
}

// anomalyScore combines the engineered features into a 0-100 score with a
// fixed-weight ensemble. z signals saturate at 3 sigma, velocity at 10
// transactions per window.
func anomalyScore(f *rowFeatures) float64 {
	structural := 0.0
	if f.isRound {
		structural += 0.5
	}
	if f.duplicateCount > 0 {
		structural += 0.5
	}

	s := weightGlobalZ*math.Min(f.zGlobal/3.0, 1) +
		weightEntityZ*math.Min(f.zEntity/3.0, 1) +
		weightVelocity*math.Min(float64(f.velocity)/10.0, 1) +
		weightStructural*structural
	return math.Round(s*100*1000) / 1000
}

// flagOutliers marks the top ceil(contamination x N) rows by anomaly score.
// Ties break on row ID so the flagged set is stable across runs.
func flagOutliers(records []domain.TransactionRecord, contamination float64) {
	n := len(records)
	k := int(math.Ceil(contamination * float64(n)))
	if k <= 0 {
		return
	}
	if k > n {
		k = n
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ra, rb := records[order[a]], records[order[b]]
		if ra.AnomalyScore != rb.AnomalyScore {
			return ra.AnomalyScore > rb.AnomalyScore
		}
		return ra.ID < rb.ID
	})
	for _, idx := range order[:k] {
		records[idx].Outlier = true
	}
}

// activation builds the CEL variable bindings for the cascade.
func activation(r *domain.TransactionRecord, f *rowFeatures) map[string]any {
	return map[string]any{
		"id":                 r.ID,
		"entity_id":          r.EntityID,
		"merchant":           r.Merchant,
		"category":           r.Category,
		"country":            r.Country,
		"home_country":       f.homeCountry,
		"amount":             r.Amount,
		"hour":               f.hour,
		"z_score":            f.zEntity,
		"is_round":           f.isRound,
		"velocity":           f.velocity,
		"entity_txn_count":   f.entityTxnCount,
		"duplicate_count":    f.duplicateCount,
		"country_changed":    f.countryChanged,
		"seconds_since_prev": f.secondsSincePrev,
		"gap_days":           f.gapDays,
	}
}

// breakdown aggregates flagged rows per fraud reason, in taxonomy order,
// omitting reasons with no rows.
func breakdown(records []domain.TransactionRecord, flagged int) []domain.PatternBreakdown {
	if flagged == 0 {
		return nil
	}

	counts := make(map[string]int)
	amounts := make(map[string]float64)
	for i := range records {
		if !records[i].Outlier {
			continue
		}
		counts[records[i].FraudReason]++
		amounts[records[i].FraudReason] += records[i].Amount
	}

	var out []domain.PatternBreakdown
	for _, label := range domain.FraudReasons() {
		n := counts[label]
		if n == 0 {
			continue
		}
		out = append(out, domain.PatternBreakdown{
			Label:       label,
			Count:       n,
			Percentage:  math.Round(float64(n)/float64(flagged)*100*10) / 10,
			TotalAmount: math.Round(amounts[label]*100) / 100,
		})
	}
	return out
}
