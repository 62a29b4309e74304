package rules

import "github.com/veridoc/harrier/internal/domain"

// Default rule sets, seeded at startup for the global tenant ("*") when the
// repository holds no rules yet. Installations override these per tenant.

// DefaultDocumentRules returns the built-in structural irregularity rules
// feeding the pattern-anomaly component.
func DefaultDocumentRules() []*domain.PatternRule {
	return []*domain.PatternRule{
		{
			ID:          "doc-self-payment",
			TenantID:    "*",
			Name:        "Self payment",
			Description: "Payee matches the paying entity",
			Version:     "1.0.0",
			Scope:       domain.ScopeDocument,
			Expression:  `payee != "" && entity_name != "" && payee == entity_name`,
			Points:      25,
			Enabled:     true,
		},
		{
			ID:          "doc-high-value-unsigned",
			TenantID:    "*",
			Name:        "High value without signature",
			Description: "Large amount with no detected signature",
			Version:     "1.0.0",
			Scope:       domain.ScopeDocument,
			Expression:  `amount > 5000.0 && !has_signature`,
			Points:      30,
			Enabled:     true,
		},
		{
			ID:          "doc-round-amount",
			TenantID:    "*",
			Name:        "Suspiciously round amount",
			Description: "Whole multiple of 100 at or above 1000",
			Version:     "1.0.0",
			Scope:       domain.ScopeDocument,
			Expression:  `amount >= 1000.0 && amount == double(int(amount)) && int(amount) % 100 == 0`,
			Points:      20,
			Enabled:     true,
		},
		{
			ID:          "doc-stale-date",
			TenantID:    "*",
			Name:        "Stale document",
			Description: "Document dated more than 180 days ago",
			Version:     "1.0.0",
			Scope:       domain.ScopeDocument,
			Expression:  `days_old > 180.0`,
			Points:      15,
			Enabled:     true,
		},
		{
			ID:          "doc-duplicate-number",
			TenantID:    "*",
			Name:        "Duplicate document number",
			Description: "Document number already seen for this tenant within the detection window",
			Version:     "1.0.0",
			Scope:       domain.ScopeDocument,
			Expression:  `doc_number_seen >= 2`,
			Points:      35,
			Enabled:     true,
		},
		{
			ID:          "doc-extraction-anomalies",
			TenantID:    "*",
			Name:        "Extraction anomalies",
			Description: "Normalization recorded duplicate or unparsable fields",
			Version:     "1.0.0",
			Scope:       domain.ScopeDocument,
			Expression:  `anomaly_count >= 2`,
			Points:      20,
			Enabled:     true,
		},
	}
}

// DefaultBatchRules returns the built-in fraud-reason cascade. Priority
// encodes the taxonomy order: identity and authentication signals outrank
// amount signals, and the unconditional fallback runs last.
func DefaultBatchRules() []*domain.PatternRule {
	type entry struct {
		label string
		expr  string
		desc  string
	}
	entries := []entry{
		{domain.ReasonAccountTakeover,
			`country_changed && velocity >= 3 && z_score > 2.0`,
			"Location change with burst activity at unusual value"},
		{domain.ReasonNewDeviceHighValue,
			`entity_txn_count <= 1 && z_score > 2.0`,
			"First activity for the entity at unusually high value"},
		{domain.ReasonImpossibleTravel,
			`country_changed && seconds_since_prev > 0 && seconds_since_prev < 3600`,
			"Country change within an hour of the previous transaction"},
		{domain.ReasonCardTesting,
			`amount < 2.0 && velocity >= 5`,
			"Rapid run of tiny authorizations"},
		{domain.ReasonDuplicateTxn,
			`duplicate_count > 0 && seconds_since_prev >= 0 && seconds_since_prev < 300`,
			"Same entity, amount and merchant within five minutes"},
		{domain.ReasonStructuring,
			`amount >= 9000.0 && amount < 10000.0`,
			"Amount just under the reporting threshold"},
		{domain.ReasonAmountSpike,
			`z_score > 3.0`,
			"Amount far outside the entity's pattern"},
		{domain.ReasonMicroProbe,
			`amount < 1.0`,
			"Sub-dollar probe transaction"},
		{domain.ReasonRoundAmount,
			`is_round && amount >= 1000.0`,
			"Large round amount"},
		{domain.ReasonVelocityBurst,
			`velocity >= 10`,
			"High transaction velocity in the window"},
		{domain.ReasonCrossBorder,
			`country != "" && home_country != "" && country != home_country`,
			"Transaction outside the entity's home country"},
		{domain.ReasonLocationChange,
			`country_changed`,
			"Country differs from the previous transaction"},
		{domain.ReasonOffHours,
			`hour < 6 || hour >= 23`,
			"Activity outside normal hours"},
		{domain.ReasonDormantReactivation,
			`gap_days > 90.0`,
			"Entity active again after a long dormant period"},
		{domain.ReasonUnclassified,
			`true`,
			"Outlier with no matching pattern"},
	}

	rules := make([]*domain.PatternRule, 0, len(entries))
	for i, en := range entries {
		rules = append(rules, &domain.PatternRule{
			ID:          "batch-" + en.label,
			TenantID:    "*",
			Name:        en.label,
			Description: en.desc,
			Version:     "1.0.0",
			Scope:       domain.ScopeBatch,
			Expression:  en.expr,
			Label:       en.label,
			Priority:    (i + 1) * 10,
			Enabled:     true,
		})
	}
	return rules
}
