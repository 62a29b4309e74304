package repository

// Schema definitions for Harrier.
// Compatible with both SQLite and PostgreSQL.

const schemaDocuments = `
CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    type TEXT NOT NULL,
    entity_name TEXT,
    entity_key TEXT,
    amount REAL NOT NULL DEFAULT 0,
    currency TEXT,
    raw_fields TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_tenant ON documents(tenant_id);
CREATE INDEX IF NOT EXISTS idx_documents_entity ON documents(tenant_id, entity_key, type);
`

const schemaAssessments = `
CREATE TABLE IF NOT EXISTS assessments (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    document_id TEXT NOT NULL,
    type TEXT NOT NULL,
    overall_score REAL NOT NULL,
    components TEXT NOT NULL,
    severities TEXT NOT NULL,
    warnings TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assessments_tenant ON assessments(tenant_id);
CREATE INDEX IF NOT EXISTS idx_assessments_document ON assessments(tenant_id, document_id);
`

const schemaDecisions = `
CREATE TABLE IF NOT EXISTS decisions (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    document_id TEXT NOT NULL,
    entity_name TEXT,
    entity_key TEXT,
    entity_class TEXT NOT NULL,
    recommendation TEXT NOT NULL,
    overall_score REAL NOT NULL,
    rationale TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_tenant ON decisions(tenant_id);
CREATE INDEX IF NOT EXISTS idx_decisions_entity ON decisions(tenant_id, entity_key, created_at);
`

const schemaEntities = `
CREATE TABLE IF NOT EXISTS entities (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    normalized_name TEXT NOT NULL,
    has_fraud_history INTEGER NOT NULL DEFAULT 0,
    fraud_count INTEGER NOT NULL DEFAULT 0,
    escalate_count INTEGER NOT NULL DEFAULT 0,
    last_recommendation TEXT,
    last_analysis_date TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, normalized_name)
);

CREATE INDEX IF NOT EXISTS idx_entities_tenant ON entities(tenant_id);
`

const schemaPatternRules = `
CREATE TABLE IF NOT EXISTS pattern_rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    scope TEXT NOT NULL,
    expression TEXT NOT NULL,
    points REAL NOT NULL DEFAULT 0,
    label TEXT,
    priority INTEGER NOT NULL DEFAULT 0,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_pattern_rules_tenant ON pattern_rules(tenant_id);
CREATE INDEX IF NOT EXISTS idx_pattern_rules_scope ON pattern_rules(tenant_id, scope, enabled);
`

const schemaBatchReports = `
CREATE TABLE IF NOT EXISTS batch_reports (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    row_count INTEGER NOT NULL,
    flagged_count INTEGER NOT NULL,
    contamination_rate REAL NOT NULL,
    breakdown TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    process_ms INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_batch_reports_tenant ON batch_reports(tenant_id);
CREATE INDEX IF NOT EXISTS idx_batch_reports_created ON batch_reports(tenant_id, created_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaDocuments,
		schemaAssessments,
		schemaDecisions,
		schemaEntities,
		schemaPatternRules,
		schemaBatchReports,
	}
}
