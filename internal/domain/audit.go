package domain

import "time"

// Audit event codes.
const (
	EventAbuseFlagged      = "ABUSE_FLAGGED"
	EventFlagStatusChanged = "FLAG_STATUS_CHANGED"
)

// AuditEntry is a privacy-preserving operational record. Actor and target
// identifiers are one-way hashed before the entry is constructed; raw ids
// never reach the audit log.
type AuditEntry struct {
	ID        string        `json:"id"`
	TenantID  string        `json:"tenantId"`
	EventCode string        `json:"eventCode"`
	ActorHash string        `json:"actorHash"`
	TargetHash string       `json:"targetHash,omitempty"`
	Metadata  AuditMetadata `json:"metadata"`
	CreatedAt time.Time     `json:"createdAt"`
}

// AuditMetadata summarizes the detection outcome an audit entry records.
type AuditMetadata struct {
	FlagCount      int      `json:"flagCount,omitempty"`
	Severity       Severity `json:"severity,omitempty"`
	OriginalWeight float64  `json:"originalWeight,omitempty"`
	AdjustedWeight float64  `json:"adjustedWeight,omitempty"`
	Status         string   `json:"status,omitempty"`
}
