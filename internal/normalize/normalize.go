// Package normalize converts raw extraction-source field maps into canonical
// per-type feature records. Synonym collapsing, value coercion and the
// "not present" sentinel all live here so downstream scorers only ever see
// typed fields under canonical names.
package normalize

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/veridoc/harrier/internal/domain"
)

// Error reports a document that could not be normalized at all. Field-level
// problems never produce an Error; they become anomaly markers on the record.
type Error struct {
	DocType string
	Reason  string
	wrapped error
}

func (e *Error) Error() string {
	return fmt.Sprintf("normalize %q: %s", e.DocType, e.Reason)
}

func (e *Error) Unwrap() error { return e.wrapped }

// dateLayouts are the accepted document date formats, tried in order.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"02 Jan 2006",
	time.RFC3339,
}

// currencySymbols maps leading currency symbols to ISO codes.
var currencySymbols = map[string]string{
	"$": "USD",
	"€": "EUR",
	"£": "GBP",
	"¥": "JPY",
}

// Normalizer binds raw extraction maps to canonical schemas.
type Normalizer struct {
	schemas         map[domain.DocumentType]*Schema
	defaultCurrency string
}

// New builds a Normalizer over the canonical schema set.
func New(cfg domain.ScoringConfig) *Normalizer {
	cur := cfg.DefaultCurrency
	if cur == "" {
		cur = "USD"
	}
	return &Normalizer{
		schemas:         Schemas(),
		defaultCurrency: cur,
	}
}

// Schema returns the canonical schema for a document type.
func (n *Normalizer) Schema(t domain.DocumentType) (*Schema, bool) {
	s, ok := n.schemas[t]
	return s, ok
}

// Normalize binds a raw extraction field map to the canonical schema for the
// given document type. Unknown types fail with an Error wrapping
// domain.ErrUnknownDocumentType; everything else succeeds, recording
// unparsable or conflicting values as anomaly markers instead of failing.
func (n *Normalizer) Normalize(docID, tenantID string, docType string, raw map[string]any) (*domain.FeatureRecord, error) {
	schema, ok := n.schemas[domain.DocumentType(docType)]
	if !ok {
		return nil, &Error{
			DocType: docType,
			Reason:  "unsupported document type",
			wrapped: domain.ErrUnknownDocumentType,
		}
	}

	keys := normalizeKeys(raw)
	rec := &domain.FeatureRecord{
		DocumentID:   docID,
		TenantID:     tenantID,
		Type:         schema.Type,
		Fields:       make(map[string]domain.FieldValue, len(schema.Fields)),
		NormalizedAt: time.Now().UTC(),
	}

	globalConf := lookupConfidence(keys, "ocr_confidence", "confidence")

	for _, spec := range schema.Fields {
		names := append([]string{spec.Name}, spec.Synonyms...)

		var (
			chosen   any
			found    bool
			distinct int
		)
		seen := make(map[string]bool)
		for _, name := range names {
			v, ok := keys[name]
			if !ok || isEmpty(v) {
				continue
			}
			if !found {
				chosen = v
				found = true
			}
			s := fmt.Sprint(v)
			if !seen[s] {
				seen[s] = true
				distinct++
			}
		}
		if !found {
			// Not-present sentinel: the field is simply absent from the
			// record, never a zero value.
			continue
		}
		if distinct > 1 {
			rec.Anomalies = append(rec.Anomalies, domain.AnomalyDuplicateField+":"+spec.Name)
		}

		fv := n.coerce(spec, chosen)
		fv.Confidence = fieldConfidence(keys, spec.Name, globalConf)

		switch {
		case spec.Kind == domain.FieldKindDate && fv.Present && fv.Date.IsZero():
			rec.Anomalies = append(rec.Anomalies, domain.AnomalyUnparsableDate+":"+spec.Name)
		case spec.Kind == domain.FieldKindMoney && fv.Present && fv.Currency == "":
			rec.Anomalies = append(rec.Anomalies, domain.AnomalyUnparsableAmount+":"+spec.Name)
		}

		rec.Fields[spec.Name] = fv
	}

	return rec, nil
}

// coerce converts one raw value to the spec's kind. A value that cannot be
// parsed stays Present with only Raw set, so scorers can distinguish
// "missing" from "present but unusable".
func (n *Normalizer) coerce(spec FieldSpec, v any) domain.FieldValue {
	fv := domain.FieldValue{Kind: spec.Kind, Present: true, Raw: rawString(v)}

	switch spec.Kind {
	case domain.FieldKindText:
		fv.Text = strings.TrimSpace(rawString(v))

	case domain.FieldKindNumber:
		if f, ok := toFloat(v); ok {
			fv.Number = f
		}

	case domain.FieldKindBool:
		state, ok := toBoolState(v)
		if !ok {
			fv.Text = "uncertain"
			break
		}
		fv.Text = state
		fv.Bool = state == "true"

	case domain.FieldKindDate:
		if t, ok := toDate(v); ok {
			fv.Date = t
		}

	case domain.FieldKindMoney:
		if amount, currency, ok := n.parseMoney(v); ok {
			fv.Number = amount
			fv.Currency = currency
		}
	}
	return fv
}

// parseMoney coerces a monetary value to a {value, currency} pair. Numeric
// inputs take the default currency. String inputs may carry a leading symbol
// or a three-letter code on either side; thousands separators and a
// parenthesized negative are accepted.
func (n *Normalizer) parseMoney(v any) (float64, string, bool) {
	if f, ok := toFloat(v); ok {
		return f, n.defaultCurrency, true
	}

	s := strings.TrimSpace(rawString(v))
	if s == "" {
		return 0, "", false
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	currency := ""
	for sym, code := range currencySymbols {
		if strings.HasPrefix(s, sym) {
			currency = code
			s = strings.TrimSpace(strings.TrimPrefix(s, sym))
			break
		}
	}
	if currency == "" {
		if code, rest, ok := trimCurrencyCode(s); ok {
			currency = code
			s = rest
		}
	}

	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	if strings.HasPrefix(s, "-") {
		negative = true
		s = s[1:]
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, "", false
	}
	if negative {
		f = -f
	}
	if currency == "" {
		currency = n.defaultCurrency
	}
	return f, currency, true
}

// trimCurrencyCode strips a three-letter ISO code from either end of s.
func trimCurrencyCode(s string) (code, rest string, ok bool) {
	check := func(c string) bool {
		if len(c) != 3 {
			return false
		}
		for _, r := range c {
			if r < 'A' || r > 'Z' {
				return false
			}
		}
		return true
	}
	fields := strings.Fields(s)
	if len(fields) == 2 {
		if c := strings.ToUpper(fields[0]); check(c) {
			return c, fields[1], true
		}
		if c := strings.ToUpper(fields[1]); check(c) {
			return c, fields[0], true
		}
	}
	return "", s, false
}

func toDate(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), true
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.UTC(), true
			}
		}
	}
	return time.Time{}, false
}

// toBoolState parses tri-state detection values: "true", "false", or not
// parseable (uncertain).
func toBoolState(v any) (string, bool) {
	switch b := v.(type) {
	case bool:
		if b {
			return "true", true
		}
		return "false", true
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "yes", "y", "1", "detected", "present", "signed":
			return "true", true
		case "false", "no", "n", "0", "absent", "missing", "unsigned":
			return "false", true
		}
	case float64:
		if b == 1 {
			return "true", true
		}
		if b == 0 {
			return "false", true
		}
	}
	return "", false
}

func toFloat(v any) (float64, bool) {
	switch f := v.(type) {
	case float64:
		return f, true
	case float32:
		return float64(f), true
	case int:
		return float64(f), true
	case int64:
		return float64(f), true
	case json.Number:
		parsed, err := f.Float64()
		return parsed, err == nil
	}
	return 0, false
}

func rawString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

// normalizeKeys rewrites raw map keys into canonical form: lowercase with
// spaces and dashes collapsed to underscores. The first raw key wins on
// collision.
func normalizeKeys(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		nk := normalizeKey(k)
		if _, exists := out[nk]; !exists || isEmpty(out[nk]) {
			out[nk] = v
		}
	}
	return out
}

func normalizeKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	k = strings.ReplaceAll(k, "-", "_")
	k = strings.ReplaceAll(k, " ", "_")
	return k
}

// fieldConfidence resolves the extraction confidence for a canonical field:
// a "<field>_confidence" key wins over the document-level confidence.
// Returns a negative value when neither is available.
func fieldConfidence(keys map[string]any, field string, global float64) float64 {
	if c := lookupConfidence(keys, field+"_confidence"); c >= 0 {
		return c
	}
	return global
}

func lookupConfidence(keys map[string]any, names ...string) float64 {
	for _, name := range names {
		if v, ok := keys[name]; ok {
			if f, ok := toFloat(v); ok && f >= 0 && f <= 1 {
				return f
			}
		}
	}
	return -1
}
