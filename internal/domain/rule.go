package domain

import "time"

// RuleConfig defines an admin-configured custom abuse rule.
// The CEL expression is evaluated against the recognition's attributes plus
// the aggregate counts gathered for the built-in detectors; a true result
// emits a flag with the configured type and severity.
type RuleConfig struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description"`

	// Expression is a CEL expression returning bool. Available variables:
	// weight, evidence_count, giver_role, reason_length, pair_count,
	// mutual_count, daily_count, weekly_count, duplicate_count.
	Expression string `json:"expression"`

	// FlagType and Severity of the emitted flag. Defaults: MANUAL / MEDIUM.
	FlagType FlagType `json:"flagType"`
	Severity Severity `json:"severity"`

	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}
