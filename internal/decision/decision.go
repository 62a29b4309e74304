// Package decision maps a risk assessment plus entity class onto one
// recommendation. The policy is a set of per-class threshold tables built
// from configuration, evaluated by a single generic band walk; no class has
// bespoke decision code.
package decision

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/veridoc/harrier/internal/domain"
)

// band is one row of a threshold table: scores at or above Min (as a
// fraction of the 0-100 scale) take Rec, unless an earlier band claimed them.
type band struct {
	Min float64
	Rec domain.Recommendation
}

// table is a descending-ordered list of bands; the final band has Min 0 so
// every score lands somewhere.
type table []band

// Engine holds the compiled per-class tables. Immutable after construction.
type Engine struct {
	tables map[domain.EntityClass]table
	now    func() time.Time
}

// New builds the decision engine from the configured cut points. Lower
// bounds are inclusive: a REPEAT_FRAUD entity at exactly the escalate
// threshold is rejected, and a NEW entity at exactly the threshold escalates.
func New(cfg domain.DecisionConfig) *Engine {
	return &Engine{
		tables: map[domain.EntityClass]table{
			// Any prior fraud signal removes the middle ground: the same
			// threshold that escalates a new entity rejects a repeat one.
			domain.ClassRepeatFraud: {
				{Min: cfg.EscalateThreshold, Rec: domain.RecommendReject},
				{Min: 0, Rec: domain.RecommendApprove},
			},
			domain.ClassRepeatClean: {
				{Min: cfg.RejectThreshold, Rec: domain.RecommendReject},
				{Min: cfg.EscalateThreshold, Rec: domain.RecommendEscalate},
				{Min: 0, Rec: domain.RecommendApprove},
			},
			domain.ClassNew: {
				{Min: cfg.EscalateThreshold, Rec: domain.RecommendEscalate},
				{Min: 0, Rec: domain.RecommendApprove},
			},
		},
		now: time.Now,
	}
}

// Decide produces the decision for an assessment. entityName may be empty
// when the document carried no entity; the class is then NEW by definition.
func (e *Engine) Decide(a *domain.RiskAssessment, class domain.EntityClass, entityName string) (*domain.Decision, error) {
	tbl, ok := e.tables[class]
	if !ok {
		return nil, fmt.Errorf("%w: unknown entity class %q", domain.ErrInvalidInput, class)
	}

	frac := a.OverallScore / 100.0
	rec, rationale := tbl.match(frac, class)

	return &domain.Decision{
		ID:             uuid.New().String(),
		TenantID:       a.TenantID,
		DocumentID:     a.DocumentID,
		EntityName:     entityName,
		EntityClass:    class,
		Recommendation: rec,
		OverallScore:   a.OverallScore,
		Rationale:      rationale,
		CreatedAt:      e.now().UTC(),
	}, nil
}

func (t table) match(frac float64, class domain.EntityClass) (domain.Recommendation, string) {
	upper := ""
	for _, b := range t {
		if frac >= b.Min {
			bandStr := fmt.Sprintf("[%.2f, +inf)", b.Min)
			if upper != "" {
				bandStr = fmt.Sprintf("[%.2f, %s)", b.Min, upper)
			}
			return b.Rec, fmt.Sprintf("%s entity, score %.2f in band %s -> %s",
				class, frac, bandStr, b.Rec)
		}
		upper = fmt.Sprintf("%.2f", b.Min)
	}
	// Unreachable with a well-formed table (the last band has Min 0).
	last := t[len(t)-1]
	return last.Rec, fmt.Sprintf("%s entity, score %.2f below all bands -> %s", class, frac, last.Rec)
}
