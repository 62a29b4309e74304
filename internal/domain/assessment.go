package domain

import (
	"time"
)

// Risk component names. Every document type is scored on exactly this set.
const (
	ComponentMissingFields  = "missing_fields"
	ComponentAmountAnomaly  = "amount_anomaly"
	ComponentDateAnomaly    = "date_anomaly"
	ComponentSignature      = "signature"
	ComponentTextQuality    = "text_quality"
	ComponentPatternAnomaly = "pattern_anomaly"
)

// ComponentNames returns the fixed scoring categories in presentation order.
func ComponentNames() []string {
	return []string{
		ComponentMissingFields,
		ComponentAmountAnomaly,
		ComponentDateAnomaly,
		ComponentSignature,
		ComponentTextQuality,
		ComponentPatternAnomaly,
	}
}

// RiskComponent is one independently scored risk category.
type RiskComponent struct {
	Name     string  `json:"name"`
	Weight   float64 `json:"weight"`   // (0,1]; per-type weights sum to 1.0
	RawScore float64 `json:"rawScore"` // [0,100]
}

// Contribution is the component's effect on the overall score. Severity is
// bucketed on this, not on the raw score.
func (c RiskComponent) Contribution() float64 {
	return c.RawScore * c.Weight
}

// Severity buckets a component's contribution to the overall score.
type Severity string

const (
	SeverityHigh   Severity = "HIGH"
	SeverityMedium Severity = "MEDIUM"
	SeverityLow    Severity = "LOW"
)

// RiskAssessment is the complete scoring result for one document.
type RiskAssessment struct {
	ID         string       `json:"id"`
	TenantID   string       `json:"tenantId"`
	DocumentID string       `json:"documentId"`
	Type       DocumentType `json:"type"`

	// OverallScore = Σ(rawScore_i × weight_i), rounded to one decimal.
	OverallScore float64 `json:"overallScore"`

	Components          []RiskComponent     `json:"components"`
	SeverityByComponent map[string]Severity `json:"severityByComponent"`

	// Warnings carries non-fatal scoring conditions (scoring defaults,
	// degraded history lookups) surfaced to the caller.
	Warnings []string `json:"warnings,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// Recommendation is the decision engine's output.
type Recommendation string

const (
	RecommendApprove  Recommendation = "APPROVE"
	RecommendReject   Recommendation = "REJECT"
	RecommendEscalate Recommendation = "ESCALATE"
)

// Decision maps an assessment plus entity history onto one recommendation.
// Produced once per document/entity pairing; immutable.
type Decision struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenantId"`
	DocumentID string `json:"documentId"`

	EntityName  string      `json:"entityName,omitempty"`
	EntityClass EntityClass `json:"entityClass"`

	Recommendation Recommendation `json:"recommendation"`
	OverallScore   float64        `json:"overallScore"`

	// Rationale names the deciding score band and entity class.
	Rationale string `json:"rationale"`

	CreatedAt time.Time `json:"createdAt"`
}

// AssessmentResponse is the API response for a document evaluation.
type AssessmentResponse struct {
	AssessmentID        string              `json:"assessmentId"`
	DocumentID          string              `json:"documentId"`
	TenantID            string              `json:"tenantId"`
	OverallScore        float64             `json:"overallScore"`
	Components          []RiskComponent     `json:"components"`
	SeverityByComponent map[string]Severity `json:"severityByComponent"`
	Recommendation      Recommendation      `json:"recommendation"`
	EntityClass         EntityClass         `json:"entityClass"`
	Rationale           string              `json:"rationale"`
	Warnings            []string            `json:"warnings,omitempty"`
	Metadata            ProcessingMetadata  `json:"metadata"`
}

// ProcessingMetadata contains pipeline timing information.
type ProcessingMetadata struct {
	TraceID       string `json:"traceId"`
	NormalizeMs   int64  `json:"normalizeMs"`
	ScoringMs     int64  `json:"scoringMs"`
	DecisionMs    int64  `json:"decisionMs"`
	TotalMs       int64  `json:"totalMs"`
	EngineVersion string `json:"engineVersion"`
}
