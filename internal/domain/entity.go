package domain

import (
	"strings"
	"time"
)

// EntityClass is derived from an entity's prior decision history and selects
// the decision threshold table.
type EntityClass string

const (
	// ClassNew means no record exists for the entity.
	ClassNew EntityClass = "NEW"

	// ClassRepeatClean means a record exists with no fraud or escalation
	// history.
	ClassRepeatClean EntityClass = "REPEAT_CLEAN"

	// ClassRepeatFraud means the entity has at least one prior REJECT or
	// ESCALATE on record.
	ClassRepeatFraud EntityClass = "REPEAT_FRAUD"
)

// EntityRecord holds per-entity decision history. It is the only persistent,
// shared, mutable state the scoring core relies on. Counters are monotonically
// non-decreasing; records are never deleted by this core.
type EntityRecord struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	// Name as first seen; NormalizedName is the store key.
	Name           string `json:"name"`
	NormalizedName string `json:"normalizedName"`

	HasFraudHistory bool `json:"hasFraudHistory"`
	FraudCount      int  `json:"fraudCount"`
	EscalateCount   int  `json:"escalateCount"`

	LastRecommendation Recommendation `json:"lastRecommendation,omitempty"`
	LastAnalysisDate   time.Time      `json:"lastAnalysisDate"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Class derives the entity class from the record's counters.
func (e *EntityRecord) Class() EntityClass {
	if e == nil {
		return ClassNew
	}
	if e.FraudCount > 0 || e.EscalateCount > 0 {
		return ClassRepeatFraud
	}
	return ClassRepeatClean
}

// NormalizeEntityName produces the case- and whitespace-insensitive key used
// for entity lookups: lowercased, with runs of whitespace collapsed to one
// space and surrounding whitespace trimmed.
func NormalizeEntityName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}
