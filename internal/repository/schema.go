package repository

// Schema definitions for the Shrike database.
// Compatible with both SQLite and PostgreSQL.

const schemaRecognitions = `
CREATE TABLE IF NOT EXISTS recognitions (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    giver_id TEXT NOT NULL,
    recipient_id TEXT NOT NULL,
    giver_role TEXT NOT NULL,
    reason TEXT NOT NULL,
    normalized_reason TEXT NOT NULL,
    weight REAL NOT NULL,
    adjusted_weight REAL,
    evidence_count INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_recognitions_tenant ON recognitions(tenant_id);
CREATE INDEX IF NOT EXISTS idx_recognitions_pair ON recognitions(tenant_id, giver_id, recipient_id, created_at);
CREATE INDEX IF NOT EXISTS idx_recognitions_giver ON recognitions(tenant_id, giver_id, created_at);
CREATE INDEX IF NOT EXISTS idx_recognitions_recipient ON recognitions(tenant_id, recipient_id, created_at);
CREATE INDEX IF NOT EXISTS idx_recognitions_reason ON recognitions(tenant_id, giver_id, normalized_reason, created_at);
`

const schemaAbuseFlags = `
CREATE TABLE IF NOT EXISTS abuse_flags (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    recognition_id TEXT NOT NULL,
    flag_type TEXT NOT NULL,
    severity TEXT NOT NULL,
    description TEXT NOT NULL,
    detection_method TEXT NOT NULL,
    metadata TEXT NOT NULL,
    flagged_by TEXT NOT NULL,
    flagged_at TIMESTAMP NOT NULL,
    status TEXT NOT NULL,
    reviewed_by TEXT,
    reviewed_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_abuse_flags_tenant ON abuse_flags(tenant_id);
CREATE INDEX IF NOT EXISTS idx_abuse_flags_recognition ON abuse_flags(tenant_id, recognition_id);
CREATE INDEX IF NOT EXISTS idx_abuse_flags_status ON abuse_flags(tenant_id, status, flagged_at);
`

const schemaAuditLog = `
CREATE TABLE IF NOT EXISTS audit_log (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    event_code TEXT NOT NULL,
    actor_hash TEXT NOT NULL,
    target_hash TEXT,
    metadata TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_log_tenant ON audit_log(tenant_id, created_at);
CREATE INDEX IF NOT EXISTS idx_audit_log_event ON audit_log(tenant_id, event_code);
`

const schemaAbuseRules = `
CREATE TABLE IF NOT EXISTS abuse_rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    expression TEXT NOT NULL,
    flag_type TEXT NOT NULL,
    severity TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_abuse_rules_tenant ON abuse_rules(tenant_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaRecognitions,
		schemaAbuseFlags,
		schemaAuditLog,
		schemaAbuseRules,
	}
}
