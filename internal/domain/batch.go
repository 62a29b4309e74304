package domain

import (
	"time"
)

// Batch is a tabular transaction dataset submitted to the anomaly detector.
// Columns name the fields; every row has one string cell per column. The
// batch is processed as one unit: a missing or malformed required column
// fails the whole batch before any row is scored.
type Batch struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Required and optional batch column names. Identifying columns are optional
// but increase feature quality.
const (
	ColAmount    = "amount"
	ColTimestamp = "timestamp"
	ColID        = "id"
	ColEntityID  = "entity_id"
	ColMerchant  = "merchant"
	ColCategory  = "category"
	ColCountry   = "country"
)

// TransactionRecord is one parsed batch row plus its detector outputs.
type TransactionRecord struct {
	ID        string    `json:"id"`
	EntityID  string    `json:"entityId,omitempty"`
	Merchant  string    `json:"merchant,omitempty"`
	Category  string    `json:"category,omitempty"`
	Country   string    `json:"country,omitempty"`
	Amount    float64   `json:"amount"`
	Timestamp time.Time `json:"timestamp"`

	AnomalyScore float64 `json:"anomalyScore"`
	Outlier      bool    `json:"outlier"`

	// FraudReason is one label from the fixed taxonomy; empty for
	// unflagged rows.
	FraudReason string `json:"fraudReason,omitempty"`
}

// Fraud-reason taxonomy for flagged batch rows. The cascade in the batch
// package assigns exactly one of these per outlier, in this priority order
// (authentication and identity signals rank above amount signals; the last
// entry is the unconditional fallback).
const (
	ReasonAccountTakeover     = "account_takeover"
	ReasonNewDeviceHighValue  = "new_device_high_value"
	ReasonImpossibleTravel    = "impossible_travel"
	ReasonCardTesting         = "card_testing"
	ReasonDuplicateTxn        = "duplicate_transaction"
	ReasonStructuring         = "structuring"
	ReasonAmountSpike         = "amount_spike"
	ReasonMicroProbe          = "micro_probe"
	ReasonRoundAmount         = "round_amount"
	ReasonVelocityBurst       = "velocity_burst"
	ReasonCrossBorder         = "cross_border"
	ReasonLocationChange      = "location_change"
	ReasonOffHours            = "off_hours"
	ReasonDormantReactivation = "dormant_reactivation"
	ReasonUnclassified        = "unclassified_anomaly"
)

// FraudReasons returns the full taxonomy in cascade priority order.
func FraudReasons() []string {
	return []string{
		ReasonAccountTakeover,
		ReasonNewDeviceHighValue,
		ReasonImpossibleTravel,
		ReasonCardTesting,
		ReasonDuplicateTxn,
		ReasonStructuring,
		ReasonAmountSpike,
		ReasonMicroProbe,
		ReasonRoundAmount,
		ReasonVelocityBurst,
		ReasonCrossBorder,
		ReasonLocationChange,
		ReasonOffHours,
		ReasonDormantReactivation,
		ReasonUnclassified,
	}
}

// PatternBreakdown aggregates flagged rows for one fraud reason. Derived per
// batch run, never stored incrementally.
type PatternBreakdown struct {
	Label       string  `json:"label"`
	Count       int     `json:"count"`
	Percentage  float64 `json:"percentage"` // of all flagged rows
	TotalAmount float64 `json:"totalAmount"`
}

// BatchReport is the result of one batch anomaly detection run.
type BatchReport struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	RowCount          int     `json:"rowCount"`
	FlaggedCount      int     `json:"flaggedCount"`
	ContaminationRate float64 `json:"contaminationRate"`

	Breakdown []PatternBreakdown `json:"breakdown"`

	CreatedAt time.Time `json:"createdAt"`
	ProcessMs int64     `json:"processMs"`
}
