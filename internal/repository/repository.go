// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kudoshq/shrike/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
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

// SaveRecognition stores a recognition with tenant isolation. The reason is
// normalized at write time so duplicate-content queries are a plain equality
// match.
func (r *SQLRepository) SaveRecognition(ctx context.Context, tenantID string, rec *domain.Recognition) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO recognitions (
			id, tenant_id, giver_id, recipient_id, giver_role,
			reason, normalized_reason, weight, adjusted_weight,
			evidence_count, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rec.ID, tenantID, rec.GiverID, rec.RecipientID, string(rec.GiverRole),
		rec.Reason, domain.NormalizeReason(rec.Reason), rec.Weight, rec.AdjustedWeight,
		rec.EvidenceCount, rec.CreatedAt,
	)
	return err
}

// GetRecognition retrieves a recognition by ID with tenant isolation.
func (r *SQLRepository) GetRecognition(ctx context.Context, tenantID string, recognitionID string) (*domain.Recognition, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, giver_id, recipient_id, giver_role,
		       reason, weight, adjusted_weight, evidence_count, created_at
		FROM recognitions
		WHERE tenant_id = ? AND id = ?
	`

	var rec domain.Recognition
	var role string
	var adjusted sql.NullFloat64

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, recognitionID).Scan(
		&rec.ID, &rec.TenantID, &rec.GiverID, &rec.RecipientID, &role,
		&rec.Reason, &rec.Weight, &adjusted, &rec.EvidenceCount, &rec.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rec.GiverRole = domain.GiverRole(role)
	if adjusted.Valid {
		rec.AdjustedWeight = &adjusted.Float64
	}

	return &rec, nil
}

// UpdateRecognitionWeight records the re-weighting decided by the creation
// workflow after an abusive verdict.
func (r *SQLRepository) UpdateRecognitionWeight(ctx context.Context, tenantID string, recognitionID string, adjusted float64) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `UPDATE recognitions SET adjusted_weight = ? WHERE tenant_id = ? AND id = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), adjusted, tenantID, recognitionID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// CountPair counts giver→recipient recognitions since the given time.
func (r *SQLRepository) CountPair(ctx context.Context, tenantID string, giverID, recipientID string, since time.Time) (int64, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT COUNT(*) FROM recognitions
		WHERE tenant_id = ? AND giver_id = ? AND recipient_id = ? AND created_at >= ?
	`

	var count int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, giverID, recipientID, since).Scan(&count)
	return count, err
}

// CountByGiver counts all recognitions the giver issued since the given time.
func (r *SQLRepository) CountByGiver(ctx context.Context, tenantID string, giverID string, since time.Time) (int64, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT COUNT(*) FROM recognitions
		WHERE tenant_id = ? AND giver_id = ? AND created_at >= ?
	`

	var count int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, giverID, since).Scan(&count)
	return count, err
}

// CountDuplicateReason counts the giver's recent recognitions whose
// normalized reason matches.
func (r *SQLRepository) CountDuplicateReason(ctx context.Context, tenantID string, giverID string, normalizedReason string, since time.Time) (int64, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT COUNT(*) FROM recognitions
		WHERE tenant_id = ? AND giver_id = ? AND normalized_reason = ? AND created_at >= ?
	`

	var count int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, giverID, normalizedReason, since).Scan(&count)
	return count, err
}

// SaveFlags stores flag records in one transaction.
func (r *SQLRepository) SaveFlags(ctx context.Context, tenantID string, flags []*domain.AbuseFlag) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if len(flags) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := r.rebind(`
		INSERT INTO abuse_flags (
			id, tenant_id, recognition_id, flag_type, severity,
			description, detection_method, metadata, flagged_by,
			flagged_at, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	for _, f := range flags {
		metadata, _ := json.Marshal(f.Metadata)
		if _, err := tx.ExecContext(ctx, query,
			f.ID, tenantID, f.RecognitionID, string(f.Type), string(f.Severity),
			f.Description, string(f.Method), string(metadata), f.FlaggedBy,
			f.FlaggedAt, string(f.Status),
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListFlagsByRecognition retrieves flags for one recognition in flag order.
func (r *SQLRepository) ListFlagsByRecognition(ctx context.Context, tenantID string, recognitionID string) ([]*domain.AbuseFlag, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, recognition_id, flag_type, severity,
		       description, detection_method, metadata, flagged_by,
		       flagged_at, status, reviewed_by
		FROM abuse_flags
		WHERE tenant_id = ? AND recognition_id = ?
		ORDER BY flagged_at, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, recognitionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanFlags(rows)
}

// ListFlagsByStatus retrieves flags in a lifecycle state, oldest first, for
// the moderation queue.
func (r *SQLRepository) ListFlagsByStatus(ctx context.Context, tenantID string, status domain.FlagStatus, limit int) ([]*domain.AbuseFlag, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, tenant_id, recognition_id, flag_type, severity,
		       description, detection_method, metadata, flagged_by,
		       flagged_at, status, reviewed_by
		FROM abuse_flags
		WHERE tenant_id = ? AND status = ?
		ORDER BY flagged_at
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanFlags(rows)
}

// UpdateFlagStatus transitions a flag's lifecycle state.
func (r *SQLRepository) UpdateFlagStatus(ctx context.Context, tenantID string, flagID string, status domain.FlagStatus, reviewedBy string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if !domain.ValidFlagStatus(status) {
		return fmt.Errorf("%w: unknown flag status %q", ErrInvalidInput, status)
	}

	query := `
		UPDATE abuse_flags
		SET status = ?, reviewed_by = ?, reviewed_at = ?
		WHERE tenant_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		string(status), reviewedBy, time.Now().UTC(), tenantID, flagID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveAuditEntry stores an audit entry with tenant isolation.
func (r *SQLRepository) SaveAuditEntry(ctx context.Context, tenantID string, entry *domain.AuditEntry) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	metadata, _ := json.Marshal(entry.Metadata)

	query := `
		INSERT INTO audit_log (id, tenant_id, event_code, actor_hash, target_hash, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		entry.ID, tenantID, entry.EventCode, entry.ActorHash, entry.TargetHash,
		string(metadata), entry.CreatedAt,
	)
	return err
}

// ListAuditEntries retrieves audit entries since a time, newest first.
func (r *SQLRepository) ListAuditEntries(ctx context.Context, tenantID string, since time.Time, limit int) ([]*domain.AuditEntry, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, tenant_id, event_code, actor_hash, target_hash, metadata, created_at
		FROM audit_log
		WHERE tenant_id = ? AND created_at >= ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var target sql.NullString
		var metadata string

		if err := rows.Scan(&e.ID, &e.TenantID, &e.EventCode, &e.ActorHash, &target, &metadata, &e.CreatedAt); err != nil {
			return nil, err
		}

		e.TargetHash = target.String
		json.Unmarshal([]byte(metadata), &e.Metadata)
		entries = append(entries, &e)
	}

	return entries, rows.Err()
}

// SaveRule stores a custom abuse rule, upserting on id.
func (r *SQLRepository) SaveRule(ctx context.Context, tenantID string, rule *domain.RuleConfig) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO abuse_rules (
			id, tenant_id, name, description, expression, flag_type, severity, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			flag_type = excluded.flag_type,
			severity = excluded.severity,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description, rule.Expression,
		string(rule.FlagType), string(rule.Severity), enabled, now, now,
	)
	return err
}

// GetRule retrieves a custom rule with tenant isolation.
func (r *SQLRepository) GetRule(ctx context.Context, tenantID string, ruleID string) (*domain.RuleConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, expression, flag_type, severity, enabled, created_at, updated_at
		FROM abuse_rules
		WHERE tenant_id = ? AND id = ?
	`

	rule, err := scanRule(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rule, err
}

// ListRules retrieves all enabled custom rules for a tenant.
func (r *SQLRepository) ListRules(ctx context.Context, tenantID string) ([]*domain.RuleConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, expression, flag_type, severity, enabled, created_at, updated_at
		FROM abuse_rules
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.RuleConfig
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

// Leaderboard ranks recipients by effective weight (adjusted when present)
// over the window.
func (r *SQLRepository) Leaderboard(ctx context.Context, tenantID string, since time.Time, limit int) ([]domain.LeaderboardEntry, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT recipient_id,
		       SUM(COALESCE(adjusted_weight, weight)) AS score,
		       COUNT(*) AS recognitions
		FROM recognitions
		WHERE tenant_id = ? AND created_at >= ?
		GROUP BY recipient_id
		ORDER BY score DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LeaderboardEntry
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.RecipientID, &e.Score, &e.Recognitions); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*domain.RuleConfig, error) {
	var rule domain.RuleConfig
	var flagType, severity string
	var enabled int

	err := row.Scan(
		&rule.ID, &rule.TenantID, &rule.Name, &rule.Description, &rule.Expression,
		&flagType, &severity, &enabled, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rule.FlagType = domain.FlagType(flagType)
	rule.Severity = domain.Severity(severity)
	rule.Enabled = enabled == 1
	return &rule, nil
}

func scanFlags(rows *sql.Rows) ([]*domain.AbuseFlag, error) {
	var flags []*domain.AbuseFlag
	for rows.Next() {
		var f domain.AbuseFlag
		var flagType, severity, method, status, metadata string
		var reviewedBy sql.NullString

		if err := rows.Scan(
			&f.ID, &f.TenantID, &f.RecognitionID, &flagType, &severity,
			&f.Description, &method, &metadata, &f.FlaggedBy,
			&f.FlaggedAt, &status, &reviewedBy,
		); err != nil {
			return nil, err
		}

		f.Type = domain.FlagType(flagType)
		f.Severity = domain.Severity(severity)
		f.Method = domain.DetectionMethod(method)
		f.Status = domain.FlagStatus(status)
		f.ReviewedBy = reviewedBy.String
		json.Unmarshal([]byte(metadata), &f.Metadata)
		flags = append(flags, &f)
	}

	return flags, rows.Err()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

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
