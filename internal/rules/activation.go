package rules

import (
	"time"

	"github.com/veridoc/harrier/internal/domain"
	"github.com/veridoc/harrier/internal/normalize"
)

// DocumentActivation builds the CEL variable bindings for document-scope
// rules from a feature record. Absent fields are omitted from the fields map;
// scalar convenience variables default to zero values. docNumberSeen is the
// running count of the document's identifying number within the
// duplicate-detection window, zero when no counter is available.
func DocumentActivation(rec *domain.FeatureRecord, now time.Time, docNumberSeen int64) map[string]any {
	fields := make(map[string]any, len(rec.Fields))
	for name, fv := range rec.Fields {
		if !fv.Present {
			continue
		}
		switch fv.Kind {
		case domain.FieldKindText:
			fields[name] = fv.Text
		case domain.FieldKindNumber, domain.FieldKindMoney:
			fields[name] = fv.Number
		case domain.FieldKindBool:
			fields[name] = fv.Bool
		case domain.FieldKindDate:
			if !fv.Date.IsZero() {
				fields[name] = fv.Date.Format(time.RFC3339)
			}
		}
	}

	amountField := domain.FieldAmount
	if rec.Type == domain.DocTypePaystub {
		amountField = domain.FieldGrossPay
	}
	amount := 0.0
	currency := ""
	if fv := rec.Field(amountField); fv.Present {
		amount = fv.Number
		currency = fv.Currency
	}

	hasSignature := false
	if fv := rec.Field(domain.FieldSignature); fv.Present && fv.Text != "uncertain" {
		hasSignature = fv.Bool
	}

	daysOld := 0.0
	if fv := rec.Field(domain.FieldDate); fv.Present && !fv.Date.IsZero() {
		daysOld = now.UTC().Sub(fv.Date).Hours() / 24
	}

	missing := 0
	if schema, ok := normalize.Schemas()[rec.Type]; ok {
		for _, name := range schema.CriticalFields() {
			if !rec.Has(name) {
				missing++
			}
		}
	}

	return map[string]any{
		"fields":          fields,
		"doc_type":        string(rec.Type),
		"amount":          amount,
		"currency":        currency,
		"entity_name":     rec.Text(domain.FieldEntityName),
		"payee":           rec.Text(domain.FieldPayee),
		"has_signature":   hasSignature,
		"anomaly_count":   len(rec.Anomalies),
		"missing_count":   missing,
		"days_old":        daysOld,
		"doc_number_seen": docNumberSeen,
	}
}
