// Package domain defines the core interfaces and types for Harrier.
package domain

import (
	"time"
)

// DocumentType identifies the canonical schema a document is normalized against.
type DocumentType string

const (
	DocTypeCheck      DocumentType = "check"
	DocTypeMoneyOrder DocumentType = "money_order"
	DocTypePaystub    DocumentType = "paystub"
)

// KnownDocumentTypes lists every type the normalizer accepts.
func KnownDocumentTypes() []DocumentType {
	return []DocumentType{DocTypeCheck, DocTypeMoneyOrder, DocTypePaystub}
}

// Document is the persisted record of a submitted document.
type Document struct {
	ID       string       `json:"id"`
	TenantID string       `json:"tenantId"`
	Type     DocumentType `json:"type"`

	// EntityName is the party the document is attributed to (payer,
	// account holder, employer), as extracted. Empty when extraction
	// could not identify one.
	EntityName string `json:"entityName,omitempty"`

	// Amount is the primary monetary amount, NaN-free; zero when absent.
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency,omitempty"`

	// RawFields is the extraction-source field map as received.
	RawFields map[string]any `json:"rawFields,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// FieldKind describes the parsed type of a canonical field value.
type FieldKind string

const (
	FieldKindText   FieldKind = "text"
	FieldKindNumber FieldKind = "number"
	FieldKindBool   FieldKind = "bool"
	FieldKindDate   FieldKind = "date"
	FieldKindMoney  FieldKind = "money"
)

// FieldValue is one canonical field in a FeatureRecord. Present is false for
// the "not present" sentinel; callers must check it before reading a value,
// since a missing field never defaults to a misleading zero or false.
type FieldValue struct {
	Kind    FieldKind `json:"kind"`
	Present bool      `json:"present"`

	Text     string    `json:"text,omitempty"`
	Number   float64   `json:"number,omitempty"`
	Bool     bool      `json:"bool,omitempty"`
	Date     time.Time `json:"date,omitempty"`
	Currency string    `json:"currency,omitempty"`

	// Raw preserves the original extracted text for audit.
	Raw string `json:"raw,omitempty"`

	// Confidence is the extraction confidence in [0,1]; negative when the
	// extraction source provided none.
	Confidence float64 `json:"confidence"`
}

// Normalization anomaly markers attached to a FeatureRecord.
const (
	AnomalyUnparsableDate   = "unparsable_date"
	AnomalyUnparsableAmount = "unparsable_amount"
	AnomalyDuplicateField   = "duplicate_field"
)

// FeatureRecord is the canonical, per-document-type feature record produced
// by the normalizer. It is created once per document and immutable afterward.
type FeatureRecord struct {
	DocumentID string       `json:"documentId"`
	TenantID   string       `json:"tenantId"`
	Type       DocumentType `json:"type"`

	Fields map[string]FieldValue `json:"fields"`

	// Anomalies records normalization-level irregularities, formatted as
	// "<marker>:<field>" (e.g. "unparsable_date:date").
	Anomalies []string `json:"anomalies,omitempty"`

	NormalizedAt time.Time `json:"normalizedAt"`
}

// Field returns the canonical field value; the zero FieldValue (Present
// false) when the field was never declared or never seen.
func (r *FeatureRecord) Field(name string) FieldValue {
	if r.Fields == nil {
		return FieldValue{}
	}
	return r.Fields[name]
}

// Has reports whether a canonical field is present.
func (r *FeatureRecord) Has(name string) bool {
	return r.Field(name).Present
}

// Text returns the text value of a present field, "" otherwise.
func (r *FeatureRecord) Text(name string) string {
	f := r.Field(name)
	if !f.Present {
		return ""
	}
	return f.Text
}

// HasAnomaly reports whether the record carries the given normalization
// anomaly marker for the given field.
func (r *FeatureRecord) HasAnomaly(marker, field string) bool {
	want := marker + ":" + field
	for _, a := range r.Anomalies {
		if a == want {
			return true
		}
	}
	return false
}

// DocumentRequest is the API request payload for document evaluation.
type DocumentRequest struct {
	Type   string         `json:"type"`
	Fields map[string]any `json:"fields"`
}

// Canonical field names shared across document types. Per-type schemas in the
// normalize package map extraction-source synonyms onto these.
const (
	FieldAmount         = "amount"
	FieldDate           = "date"
	FieldEntityName     = "entity_name"
	FieldPayee          = "payee"
	FieldBankName       = "bank_name"
	FieldAccountNumber  = "account_number"
	FieldRoutingNumber  = "routing_number"
	FieldDocumentNumber = "document_number"
	FieldSignature      = "signature_present"
	FieldMemo           = "memo"
	FieldIssuer         = "issuer"
	FieldSerialNumber   = "serial_number"
	FieldEmployer       = "employer"
	FieldEmployee       = "employee"
	FieldPayPeriodStart = "pay_period_start"
	FieldPayPeriodEnd   = "pay_period_end"
	FieldGrossPay       = "gross_pay"
	FieldNetPay         = "net_pay"
	FieldYTDGross       = "ytd_gross"
)
