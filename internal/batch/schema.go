package batch

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/veridoc/harrier/internal/domain"
)

// SchemaError reports a batch that failed validation. The batch is rejected
// as a whole before any row is scored; partial results are never produced.
type SchemaError struct {
	MissingColumns []string
	RowErrors      []string
}

func (e *SchemaError) Error() string {
	var parts []string
	if len(e.MissingColumns) > 0 {
		parts = append(parts, "missing required columns: "+strings.Join(e.MissingColumns, ", "))
	}
	if len(e.RowErrors) > 0 {
		parts = append(parts, fmt.Sprintf("%d malformed rows (first: %s)", len(e.RowErrors), e.RowErrors[0]))
	}
	if len(parts) == 0 {
		return "batch schema error"
	}
	return "batch schema error: " + strings.Join(parts, "; ")
}

// maxRowErrors bounds how many per-row messages a SchemaError accumulates.
const maxRowErrors = 20

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseBatch validates the batch against the required schema and parses every
// row. Any missing required column or malformed required value fails the
// whole batch with a *SchemaError.
func parseBatch(b *domain.Batch) ([]domain.TransactionRecord, error) {
	if b == nil || len(b.Rows) == 0 {
		return nil, &SchemaError{RowErrors: []string{"batch has no rows"}}
	}

	colIdx := make(map[string]int, len(b.Columns))
	for i, name := range b.Columns {
		colIdx[strings.ToLower(strings.TrimSpace(name))] = i
	}

	schemaErr := &SchemaError{}
	for _, required := range []string{domain.ColAmount, domain.ColTimestamp} {
		if _, ok := colIdx[required]; !ok {
			schemaErr.MissingColumns = append(schemaErr.MissingColumns, required)
		}
	}
	if len(schemaErr.MissingColumns) > 0 {
		return nil, schemaErr
	}

	cell := func(row []string, col string) string {
		idx, ok := colIdx[col]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	records := make([]domain.TransactionRecord, 0, len(b.Rows))
	for i, row := range b.Rows {
		if len(row) != len(b.Columns) {
			addRowError(schemaErr, i, fmt.Sprintf("expected %d cells, got %d", len(b.Columns), len(row)))
			continue
		}

		amount, err := strconv.ParseFloat(cell(row, domain.ColAmount), 64)
		if err != nil {
			addRowError(schemaErr, i, "unparsable amount "+strconv.Quote(cell(row, domain.ColAmount)))
			continue
		}
		ts, ok := parseTimestamp(cell(row, domain.ColTimestamp))
		if !ok {
			addRowError(schemaErr, i, "unparsable timestamp "+strconv.Quote(cell(row, domain.ColTimestamp)))
			continue
		}

		id := cell(row, domain.ColID)
		if id == "" {
			id = fmt.Sprintf("row-%d", i)
		}

		records = append(records, domain.TransactionRecord{
			ID:        id,
			EntityID:  cell(row, domain.ColEntityID),
			Merchant:  cell(row, domain.ColMerchant),
			Category:  cell(row, domain.ColCategory),
			Country:   strings.ToUpper(cell(row, domain.ColCountry)),
			Amount:    amount,
			Timestamp: ts,
		})
	}

	if len(schemaErr.RowErrors) > 0 {
		return nil, schemaErr
	}
	return records, nil
}

func addRowError(e *SchemaError, row int, msg string) {
	if len(e.RowErrors) < maxRowErrors {
		e.RowErrors = append(e.RowErrors, fmt.Sprintf("row %d: %s", row, msg))
	}
}

func parseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	// Unix seconds are common in exported transaction logs.
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil && secs > 0 {
		return time.Unix(secs, 0).UTC(), true
	}
	return time.Time{}, false
}
