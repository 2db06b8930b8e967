// Package domain defines the core interfaces and types for Shrike.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
//
// The Count* methods are the read contract the abuse engine depends on;
// everything else serves the creation workflow, the moderation subsystem,
// and the leaderboard.
type Repository interface {
	// Recognition operations
	SaveRecognition(ctx context.Context, tenantID string, rec *Recognition) error
	GetRecognition(ctx context.Context, tenantID string, recognitionID string) (*Recognition, error)
	UpdateRecognitionWeight(ctx context.Context, tenantID string, recognitionID string, adjusted float64) error

	// Aggregate counts consumed by the detectors
	CountPair(ctx context.Context, tenantID string, giverID, recipientID string, since time.Time) (int64, error)
	CountByGiver(ctx context.Context, tenantID string, giverID string, since time.Time) (int64, error)
	CountDuplicateReason(ctx context.Context, tenantID string, giverID string, normalizedReason string, since time.Time) (int64, error)

	// Flag lifecycle
	SaveFlags(ctx context.Context, tenantID string, flags []*AbuseFlag) error
	ListFlagsByRecognition(ctx context.Context, tenantID string, recognitionID string) ([]*AbuseFlag, error)
	ListFlagsByStatus(ctx context.Context, tenantID string, status FlagStatus, limit int) ([]*AbuseFlag, error)
	UpdateFlagStatus(ctx context.Context, tenantID string, flagID string, status FlagStatus, reviewedBy string) error

	// Audit log
	SaveAuditEntry(ctx context.Context, tenantID string, entry *AuditEntry) error
	ListAuditEntries(ctx context.Context, tenantID string, since time.Time, limit int) ([]*AuditEntry, error)

	// Custom rule configuration
	SaveRule(ctx context.Context, tenantID string, rule *RuleConfig) error
	GetRule(ctx context.Context, tenantID string, ruleID string) (*RuleConfig, error)
	ListRules(ctx context.Context, tenantID string) ([]*RuleConfig, error)

	// Leaderboard aggregation over effective weights
	Leaderboard(ctx context.Context, tenantID string, since time.Time, limit int) ([]LeaderboardEntry, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
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
