// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/veridoc/harrier/internal/domain"
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveDocument stores a document with tenant isolation. The entity key is
// derived here so baseline queries can match history store lookups.
func (r *SQLRepository) SaveDocument(ctx context.Context, tenantID string, doc *domain.Document) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	rawFields, _ := json.Marshal(doc.RawFields)

	query := `
		INSERT INTO documents (
			id, tenant_id, type, entity_name, entity_key,
			amount, currency, raw_fields, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		doc.ID, tenantID, doc.Type,
		doc.EntityName, domain.NormalizeEntityName(doc.EntityName),
		doc.Amount, doc.Currency,
		string(rawFields), doc.CreatedAt,
	)
	return err
}

// GetDocument retrieves a document by ID with tenant isolation.
func (r *SQLRepository) GetDocument(ctx context.Context, tenantID string, docID string) (*domain.Document, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, type, entity_name, amount, currency, raw_fields, created_at
		FROM documents
		WHERE tenant_id = ? AND id = ?
	`

	var doc domain.Document
	var rawFields string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, docID).Scan(
		&doc.ID, &doc.TenantID, &doc.Type, &doc.EntityName,
		&doc.Amount, &doc.Currency, &rawFields, &doc.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if rawFields != "" {
		json.Unmarshal([]byte(rawFields), &doc.RawFields)
	}

	return &doc, nil
}

// SaveAssessment stores a risk assessment with tenant isolation.
func (r *SQLRepository) SaveAssessment(ctx context.Context, tenantID string, a *domain.RiskAssessment) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	components, _ := json.Marshal(a.Components)
	severities, _ := json.Marshal(a.SeverityByComponent)
	warnings, _ := json.Marshal(a.Warnings)

	query := `
		INSERT INTO assessments (
			id, tenant_id, document_id, type, overall_score,
			components, severities, warnings, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		a.ID, tenantID, a.DocumentID, a.Type, a.OverallScore,
		string(components), string(severities), string(warnings), a.CreatedAt,
	)
	return err
}

// GetAssessment retrieves an assessment by ID with tenant isolation.
func (r *SQLRepository) GetAssessment(ctx context.Context, tenantID string, assessmentID string) (*domain.RiskAssessment, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, document_id, type, overall_score,
			   components, severities, warnings, created_at
		FROM assessments
		WHERE tenant_id = ? AND id = ?
	`

	var a domain.RiskAssessment
	var components, severities, warnings string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, assessmentID).Scan(
		&a.ID, &a.TenantID, &a.DocumentID, &a.Type, &a.OverallScore,
		&components, &severities, &warnings, &a.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(components), &a.Components)
	json.Unmarshal([]byte(severities), &a.SeverityByComponent)
	json.Unmarshal([]byte(warnings), &a.Warnings)

	return &a, nil
}

// SaveDecision stores a decision with tenant isolation.
func (r *SQLRepository) SaveDecision(ctx context.Context, tenantID string, d *domain.Decision) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		INSERT INTO decisions (
			id, tenant_id, document_id, entity_name, entity_key,
			entity_class, recommendation, overall_score, rationale, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		d.ID, tenantID, d.DocumentID,
		d.EntityName, domain.NormalizeEntityName(d.EntityName),
		d.EntityClass, d.Recommendation, d.OverallScore, d.Rationale, d.CreatedAt,
	)
	return err
}

// GetDecision retrieves a decision by ID with tenant isolation.
func (r *SQLRepository) GetDecision(ctx context.Context, tenantID string, decisionID string) (*domain.Decision, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, document_id, entity_name, entity_class,
			   recommendation, overall_score, rationale, created_at
		FROM decisions
		WHERE tenant_id = ? AND id = ?
	`

	var d domain.Decision
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, decisionID).Scan(
		&d.ID, &d.TenantID, &d.DocumentID, &d.EntityName, &d.EntityClass,
		&d.Recommendation, &d.OverallScore, &d.Rationale, &d.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDecisionsByEntity retrieves recent decisions for an entity, newest first.
func (r *SQLRepository) ListDecisionsByEntity(ctx context.Context, tenantID string, normalizedName string, limit int) ([]*domain.Decision, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, tenant_id, document_id, entity_name, entity_class,
			   recommendation, overall_score, rationale, created_at
		FROM decisions
		WHERE tenant_id = ? AND entity_key = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, normalizedName, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var decisions []*domain.Decision
	for rows.Next() {
		var d domain.Decision
		if err := rows.Scan(
			&d.ID, &d.TenantID, &d.DocumentID, &d.EntityName, &d.EntityClass,
			&d.Recommendation, &d.OverallScore, &d.Rationale, &d.CreatedAt,
		); err != nil {
			return nil, err
		}
		decisions = append(decisions, &d)
	}

	return decisions, rows.Err()
}

// GetEntityByName retrieves an entity record by normalized name with tenant
// isolation. Lookups never create records.
func (r *SQLRepository) GetEntityByName(ctx context.Context, tenantID string, normalizedName string) (*domain.EntityRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, normalized_name, has_fraud_history,
			   fraud_count, escalate_count, last_recommendation,
			   last_analysis_date, created_at, updated_at
		FROM entities
		WHERE tenant_id = ? AND normalized_name = ?
	`

	var e domain.EntityRecord
	var hasFraud int
	var lastRec sql.NullString

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, normalizedName).Scan(
		&e.ID, &e.TenantID, &e.Name, &e.NormalizedName, &hasFraud,
		&e.FraudCount, &e.EscalateCount, &lastRec,
		&e.LastAnalysisDate, &e.CreatedAt, &e.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	e.HasFraudHistory = hasFraud == 1
	if lastRec.Valid {
		e.LastRecommendation = domain.Recommendation(lastRec.String)
	}
	return &e, nil
}

// ApplyDecision records a decision outcome against an entity in one atomic
// upsert: counters are SQL increments against the stored row, never
// read-modify-write in the application, so concurrent writers cannot lose
// updates.
func (r *SQLRepository) ApplyDecision(ctx context.Context, tenantID string, name string, rec domain.Recommendation, at time.Time) (*domain.EntityRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}
	key := domain.NormalizeEntityName(name)
	if key == "" {
		return nil, fmt.Errorf("%w: entity name is required", domain.ErrInvalidInput)
	}

	fraudDelta := 0
	escalateDelta := 0
	switch rec {
	case domain.RecommendReject:
		fraudDelta = 1
	case domain.RecommendEscalate:
		escalateDelta = 1
	}
	// Only rejections mark fraud history; escalations count separately.
	hasFraud := 0
	if fraudDelta > 0 {
		hasFraud = 1
	}

	query := `
		INSERT INTO entities (
			id, tenant_id, name, normalized_name, has_fraud_history,
			fraud_count, escalate_count, last_recommendation,
			last_analysis_date, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, normalized_name) DO UPDATE SET
			fraud_count = fraud_count + excluded.fraud_count,
			escalate_count = escalate_count + excluded.escalate_count,
			has_fraud_history = CASE
				WHEN fraud_count + excluded.fraud_count > 0
				THEN 1 ELSE 0 END,
			last_recommendation = excluded.last_recommendation,
			last_analysis_date = excluded.last_analysis_date,
			updated_at = excluded.updated_at
	`

	at = at.UTC()
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		uuid.New().String(), tenantID, name, key, hasFraud,
		fraudDelta, escalateDelta, string(rec),
		at, at, at,
	)
	if err != nil {
		return nil, err
	}

	return r.GetEntityByName(ctx, tenantID, key)
}

// AmountStats returns the amount baseline for an entity's prior documents of
// the given type, computed from the first two moments so it works identically
// on SQLite and PostgreSQL.
func (r *SQLRepository) AmountStats(ctx context.Context, tenantID string, normalizedName string, docType domain.DocumentType) (*domain.AmountStats, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT COUNT(*), COALESCE(AVG(amount), 0), COALESCE(AVG(amount * amount), 0)
		FROM documents
		WHERE tenant_id = ? AND entity_key = ? AND type = ? AND amount > 0
	`

	var count int64
	var mean, meanSq float64
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, normalizedName, docType).
		Scan(&count, &mean, &meanSq)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, domain.ErrNotFound
	}

	variance := meanSq - mean*mean
	if variance < 0 {
		variance = 0
	}
	return &domain.AmountStats{
		Count:  count,
		Mean:   mean,
		StdDev: math.Sqrt(variance),
	}, nil
}

// SavePatternRule stores a pattern rule with tenant isolation, upserting on
// (id, tenant, version).
func (r *SQLRepository) SavePatternRule(ctx context.Context, tenantID string, rule *domain.PatternRule) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO pattern_rules (
			id, tenant_id, name, description, version, scope,
			expression, points, label, priority, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			scope = excluded.scope,
			expression = excluded.expression,
			points = excluded.points,
			label = excluded.label,
			priority = excluded.priority,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description,
		rule.Version, rule.Scope, rule.Expression,
		rule.Points, rule.Label, rule.Priority, enabled,
		now, now,
	)
	return err
}

// GetPatternRule retrieves the latest enabled version of a rule with tenant
// isolation.
func (r *SQLRepository) GetPatternRule(ctx context.Context, tenantID string, ruleID string) (*domain.PatternRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, scope,
			   expression, points, label, priority, enabled
		FROM pattern_rules
		WHERE tenant_id = ? AND id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	var rule domain.PatternRule
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID).Scan(
		&rule.ID, &rule.TenantID, &rule.Name, &rule.Description,
		&rule.Version, &rule.Scope, &rule.Expression,
		&rule.Points, &rule.Label, &rule.Priority, &enabled,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rule.Enabled = enabled == 1
	return &rule, nil
}

// ListPatternRules retrieves all enabled rules for a tenant, optionally
// filtered by scope. Batch-scope rules come back in cascade priority order.
func (r *SQLRepository) ListPatternRules(ctx context.Context, tenantID string, scope domain.RuleScope) ([]*domain.PatternRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, scope,
			   expression, points, label, priority, enabled
		FROM pattern_rules
		WHERE tenant_id = ? AND enabled = 1
	`
	args := []any{tenantID}
	if scope != "" {
		query += " AND scope = ?"
		args = append(args, scope)
	}
	query += " ORDER BY priority, id"

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.PatternRule
	for rows.Next() {
		var rule domain.PatternRule
		var enabled int
		if err := rows.Scan(
			&rule.ID, &rule.TenantID, &rule.Name, &rule.Description,
			&rule.Version, &rule.Scope, &rule.Expression,
			&rule.Points, &rule.Label, &rule.Priority, &enabled,
		); err != nil {
			return nil, err
		}
		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// SaveBatchReport stores a batch report with tenant isolation.
func (r *SQLRepository) SaveBatchReport(ctx context.Context, tenantID string, report *domain.BatchReport) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	breakdown, _ := json.Marshal(report.Breakdown)

	query := `
		INSERT INTO batch_reports (
			id, tenant_id, row_count, flagged_count, contamination_rate,
			breakdown, created_at, process_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		report.ID, tenantID, report.RowCount, report.FlaggedCount,
		report.ContaminationRate, string(breakdown), report.CreatedAt, report.ProcessMs,
	)
	return err
}

// GetBatchReport retrieves a batch report by ID with tenant isolation.
func (r *SQLRepository) GetBatchReport(ctx context.Context, tenantID string, reportID string) (*domain.BatchReport, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, row_count, flagged_count, contamination_rate,
			   breakdown, created_at, process_ms
		FROM batch_reports
		WHERE tenant_id = ? AND id = ?
	`

	var report domain.BatchReport
	var breakdown string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, reportID).Scan(
		&report.ID, &report.TenantID, &report.RowCount, &report.FlaggedCount,
		&report.ContaminationRate, &breakdown, &report.CreatedAt, &report.ProcessMs,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(breakdown), &report.Breakdown)
	return &report, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
