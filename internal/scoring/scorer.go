// Package scoring turns a normalized feature record into a risk assessment:
// six fixed component scores on a 0-100 scale, combined by per-type weights
// into a single overall score, with per-component severity buckets.
package scoring

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/veridoc/harrier/internal/domain"
	"github.com/veridoc/harrier/internal/normalize"
)

const maxRiskScore = 100.0

// BaselineProvider supplies the per-entity amount baseline used by the
// amount-anomaly scorer. Implementations may be backed by cache, repository,
// or both; a nil *AmountStats with nil error means no baseline exists yet.
type BaselineProvider interface {
	Baseline(ctx context.Context, tenantID, entityKey string, docType domain.DocumentType) (*domain.AmountStats, error)
}

// Scorer computes risk assessments. Safe for concurrent use.
type Scorer struct {
	cfg       domain.ScoringConfig
	schemas   map[domain.DocumentType]*normalize.Schema
	baselines BaselineProvider
	now       func() time.Time
}

// New builds a Scorer. baselines may be nil; the amount-anomaly component
// then runs on its heuristics alone.
func New(cfg domain.ScoringConfig, baselines BaselineProvider) *Scorer {
	return &Scorer{
		cfg:       cfg,
		schemas:   normalize.Schemas(),
		baselines: baselines,
		now:       time.Now,
	}
}

// Score produces the assessment for one feature record. patternScore is the
// pattern-anomaly raw score computed by the rule engine, clamped to [0,100]
// here. entityKey is the normalized entity name used for baseline lookups;
// empty when the document carries no entity.
func (s *Scorer) Score(ctx context.Context, rec *domain.FeatureRecord, entityKey string, patternScore float64) (*domain.RiskAssessment, error) {
	weights, ok := WeightsFor(rec.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownDocumentType, rec.Type)
	}
	schema, ok := s.schemas[rec.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownDocumentType, rec.Type)
	}

	var warnings []string
	raw := map[string]float64{}

	raw[domain.ComponentMissingFields] = s.scoreMissingFields(schema, rec)

	amountScore, amountWarnings := s.scoreAmount(ctx, rec, entityKey)
	raw[domain.ComponentAmountAnomaly] = amountScore
	warnings = append(warnings, amountWarnings...)

	dateScore, dateWarnings := s.scoreDate(rec)
	raw[domain.ComponentDateAnomaly] = dateScore
	warnings = append(warnings, dateWarnings...)

	raw[domain.ComponentSignature] = s.scoreSignature(rec)
	raw[domain.ComponentTextQuality] = s.scoreTextQuality(rec)
	raw[domain.ComponentPatternAnomaly] = clamp(patternScore, 0, maxRiskScore)

	components := make([]domain.RiskComponent, 0, len(raw))
	severities := make(map[string]domain.Severity, len(raw))
	overall := 0.0
	for _, name := range domain.ComponentNames() {
		c := domain.RiskComponent{
			Name:     name,
			Weight:   weights[name],
			RawScore: raw[name],
		}
		components = append(components, c)
		severities[name] = ClassifySeverity(c.Contribution())
		overall += c.Contribution()
	}

	return &domain.RiskAssessment{
		ID:                  uuid.New().String(),
		TenantID:            rec.TenantID,
		DocumentID:          rec.DocumentID,
		Type:                rec.Type,
		OverallScore:        round1(overall),
		Components:          components,
		SeverityByComponent: severities,
		Warnings:            warnings,
		CreatedAt:           s.now().UTC(),
	}, nil
}

// scoreMissingFields scores the fraction of the type's critical fields that
// carry the not-present sentinel.
func (s *Scorer) scoreMissingFields(schema *normalize.Schema, rec *domain.FeatureRecord) float64 {
	critical := schema.CriticalFields()
	if len(critical) == 0 {
		return 0
	}
	missing := 0
	for _, name := range critical {
		if !rec.Has(name) {
			missing++
		}
	}
	return float64(missing) / float64(len(critical)) * maxRiskScore
}

// scoreAmount scores the primary monetary amount against the entity's
// statistical baseline. An unscorable amount (missing, unparsable, or not
// positive) defaults to maximum risk rather than silently passing.
func (s *Scorer) scoreAmount(ctx context.Context, rec *domain.FeatureRecord, entityKey string) (float64, []string) {
	field := primaryAmountField(rec.Type)
	fv := rec.Field(field)

	if !fv.Present {
		return maxRiskScore, []string{fmt.Sprintf("amount unscorable: %s missing", field)}
	}
	if rec.HasAnomaly(domain.AnomalyUnparsableAmount, field) {
		return maxRiskScore, []string{fmt.Sprintf("amount unscorable: %s unparsable", field)}
	}

	amount := fv.Number
	if amount <= 0 {
		return maxRiskScore, []string{fmt.Sprintf("amount unscorable: %s not positive", field)}
	}

	score := 0.0
	var warnings []string

	// Paystub internal consistency: net pay exceeding gross pay.
	if rec.Type == domain.DocTypePaystub {
		net := rec.Field(domain.FieldNetPay)
		if net.Present && !rec.HasAnomaly(domain.AnomalyUnparsableAmount, domain.FieldNetPay) && net.Number > amount {
			score = math.Max(score, 80)
		}
	}

	if entityKey == "" || s.baselines == nil {
		return score, warnings
	}

	stats, err := s.baselines.Baseline(ctx, rec.TenantID, entityKey, rec.Type)
	if err != nil {
		return score, append(warnings, "amount baseline unavailable: "+err.Error())
	}
	if stats == nil || stats.Count < s.cfg.BaselineMinSamples {
		return score, warnings
	}

	if stats.StdDev == 0 {
		if amount != stats.Mean {
			score = math.Max(score, 60)
		}
		return score, warnings
	}

	z := math.Abs(amount-stats.Mean) / stats.StdDev
	// z at the threshold scores 50; twice the threshold saturates at 100.
	zScore := z / s.cfg.AmountZScoreThreshold * 50
	return math.Max(score, clamp(zScore, 0, maxRiskScore)), warnings
}

// scoreDate applies the date-anomaly point values from policy: penalties for
// future dates and dates before the plausibility floor, and a full penalty
// when the date exists but cannot be parsed. A missing date is unscorable and
// defaults to maximum risk.
func (s *Scorer) scoreDate(rec *domain.FeatureRecord) (float64, []string) {
	fv := rec.Field(domain.FieldDate)
	if !fv.Present {
		return maxRiskScore, []string{"date unscorable: date missing"}
	}
	if rec.HasAnomaly(domain.AnomalyUnparsableDate, domain.FieldDate) || fv.Date.IsZero() {
		return clamp(s.cfg.DateUnparsablePenalty, 0, maxRiskScore),
			[]string{"date unscorable: date unparsable"}
	}

	score := 0.0
	now := s.now().UTC()
	if fv.Date.After(now) {
		score += s.cfg.DateFuturePenalty
	}
	if fv.Date.Before(s.cfg.MinPlausibleDate) {
		score += s.cfg.DateBeforeMinPenalty
	}

	// Pay period sanity for paystubs: end before start.
	if rec.Type == domain.DocTypePaystub {
		start := rec.Field(domain.FieldPayPeriodStart)
		end := rec.Field(domain.FieldPayPeriodEnd)
		if start.Present && end.Present && !start.Date.IsZero() && !end.Date.IsZero() && end.Date.Before(start.Date) {
			score += 40
		}
	}

	return clamp(score, 0, maxRiskScore), nil
}

// scoreSignature is tri-state: detected clears the component, explicit
// absence takes the full penalty, and an uncertain or unreported detection
// takes the intermediate penalty.
func (s *Scorer) scoreSignature(rec *domain.FeatureRecord) float64 {
	fv := rec.Field(domain.FieldSignature)
	if !fv.Present || fv.Text == "uncertain" {
		return clamp(s.cfg.SignatureUncertainPenalty, 0, maxRiskScore)
	}
	if fv.Bool {
		return 0
	}
	return clamp(s.cfg.SignatureMissingPenalty, 0, maxRiskScore)
}

// scoreTextQuality averages the confidence shortfall across all present
// fields that carry extraction confidence. Fields at or above the threshold
// contribute zero; a record with no confidence information scores zero.
func (s *Scorer) scoreTextQuality(rec *domain.FeatureRecord) float64 {
	threshold := s.cfg.TextConfidenceThreshold
	if threshold <= 0 {
		return 0
	}

	total := 0.0
	counted := 0
	for _, fv := range rec.Fields {
		if !fv.Present || fv.Confidence < 0 {
			continue
		}
		counted++
		if fv.Confidence < threshold {
			total += (threshold - fv.Confidence) / threshold * maxRiskScore
		}
	}
	if counted == 0 {
		return 0
	}
	return clamp(total/float64(counted), 0, maxRiskScore)
}

// primaryAmountField names the monetary field the amount-anomaly component
// scores for each type.
func primaryAmountField(t domain.DocumentType) string {
	if t == domain.DocTypePaystub {
		return domain.FieldGrossPay
	}
	return domain.FieldAmount
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
