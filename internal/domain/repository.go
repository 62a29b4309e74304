package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Document operations
	SaveDocument(ctx context.Context, tenantID string, doc *Document) error
	GetDocument(ctx context.Context, tenantID string, docID string) (*Document, error)

	// Assessment and decision results
	SaveAssessment(ctx context.Context, tenantID string, a *RiskAssessment) error
	GetAssessment(ctx context.Context, tenantID string, assessmentID string) (*RiskAssessment, error)
	SaveDecision(ctx context.Context, tenantID string, d *Decision) error
	GetDecision(ctx context.Context, tenantID string, decisionID string) (*Decision, error)
	ListDecisionsByEntity(ctx context.Context, tenantID string, normalizedName string, limit int) ([]*Decision, error)

	// Entity history. GetEntityByName returns ErrNotFound when the entity
	// is unknown; lookups never create records. ApplyDecision performs
	// the create-or-increment write atomically (counters are SQL
	// increments, not read-modify-write in the application).
	GetEntityByName(ctx context.Context, tenantID string, normalizedName string) (*EntityRecord, error)
	ApplyDecision(ctx context.Context, tenantID string, name string, rec Recommendation, at time.Time) (*EntityRecord, error)

	// AmountStats returns the amount baseline for an entity's prior
	// documents of the given type.
	AmountStats(ctx context.Context, tenantID string, normalizedName string, docType DocumentType) (*AmountStats, error)

	// Pattern rule configuration
	SavePatternRule(ctx context.Context, tenantID string, rule *PatternRule) error
	GetPatternRule(ctx context.Context, tenantID string, ruleID string) (*PatternRule, error)
	ListPatternRules(ctx context.Context, tenantID string, scope RuleScope) ([]*PatternRule, error)

	// Batch reports
	SaveBatchReport(ctx context.Context, tenantID string, report *BatchReport) error
	GetBatchReport(ctx context.Context, tenantID string, reportID string) (*BatchReport, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// AmountStats is the statistical baseline for an entity's document amounts.
type AmountStats struct {
	Count  int64   `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stdDev"`
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
