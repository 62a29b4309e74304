package scoring

import "github.com/veridoc/harrier/internal/domain"

// Per-type component weights. Each table covers the full fixed component set
// and sums to exactly 1.0; the overall score stays on the same 0-100 scale as
// the raw component scores.
var weightTables = map[domain.DocumentType]map[string]float64{
	domain.DocTypeCheck: {
		domain.ComponentMissingFields:  0.30,
		domain.ComponentAmountAnomaly:  0.25,
		domain.ComponentDateAnomaly:    0.15,
		domain.ComponentSignature:      0.10,
		domain.ComponentTextQuality:    0.10,
		domain.ComponentPatternAnomaly: 0.10,
	},
	domain.DocTypeMoneyOrder: {
		domain.ComponentMissingFields:  0.25,
		domain.ComponentAmountAnomaly:  0.25,
		domain.ComponentDateAnomaly:    0.15,
		domain.ComponentSignature:      0.10,
		domain.ComponentTextQuality:    0.15,
		domain.ComponentPatternAnomaly: 0.10,
	},
	domain.DocTypePaystub: {
		domain.ComponentMissingFields:  0.30,
		domain.ComponentAmountAnomaly:  0.30,
		domain.ComponentDateAnomaly:    0.15,
		domain.ComponentSignature:      0.05,
		domain.ComponentTextQuality:    0.10,
		domain.ComponentPatternAnomaly: 0.10,
	},
}

// WeightsFor returns the component weight table for a document type.
func WeightsFor(t domain.DocumentType) (map[string]float64, bool) {
	w, ok := weightTables[t]
	return w, ok
}

// Severity cut points on a component's weighted contribution. The medium band
// is inclusive on both ends: a contribution of exactly 8.0 is MEDIUM, not HIGH.
const (
	severityHighAbove     = 8.0
	severityMediumAtLeast = 3.0
)

// ClassifySeverity buckets a weighted contribution.
func ClassifySeverity(contribution float64) domain.Severity {
	switch {
	case contribution > severityHighAbove:
		return domain.SeverityHigh
	case contribution >= severityMediumAtLeast:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}
