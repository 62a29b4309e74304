package domain

// RuleScope separates the two places CEL pattern rules run.
type RuleScope string

const (
	// ScopeDocument rules feed the pattern-anomaly component: matched
	// rules add Points to the component score, capped at 100.
	ScopeDocument RuleScope = "document"

	// ScopeBatch rules form the fraud-reason cascade: the first matching
	// rule, in Priority order, labels a flagged transaction.
	ScopeBatch RuleScope = "batch"
)

// PatternRule is a CEL-backed detection rule. Document-scope rules are
// structural irregularity checks on a feature record; batch-scope rules are
// the label cascade over engineered transaction features.
type PatternRule struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenantId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Version     string    `json:"version"`
	Scope       RuleScope `json:"scope"`

	// Expression is a CEL expression returning bool, evaluated against
	// the activation the rules engine builds for the scope.
	Expression string `json:"expression"`

	// Points is the score added to the pattern-anomaly component when a
	// document-scope rule matches.
	Points float64 `json:"points,omitempty"`

	// Label is the fraud reason a batch-scope rule assigns; Priority is
	// its cascade position (lower runs first).
	Label    string `json:"label,omitempty"`
	Priority int    `json:"priority,omitempty"`

	Enabled bool `json:"enabled"`
}
