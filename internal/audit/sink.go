package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kudoshq/shrike/internal/domain"
)

// Sink writes flags and audit entries for abusive verdicts and notifies the
// moderation side over the event bus. All errors are returned to the caller
// (the orchestrator), which logs and swallows them; a failed write never
// changes a verdict already delivered.
type Sink struct {
	repo   domain.Repository
	bus    domain.EventBus
	hasher *Hasher
}

// NewSink creates a sink. bus may be nil when no event fan-out is wanted.
func NewSink(repo domain.Repository, bus domain.EventBus, hasher *Hasher) *Sink {
	return &Sink{repo: repo, bus: bus, hasher: hasher}
}

// Persist stores one PENDING flag record per flag and publishes flag.created
// events, plus an alert event for HIGH and CRITICAL verdicts.
func (s *Sink) Persist(ctx context.Context, tenantID, recognitionID string, flags []domain.AbuseFlag, severity domain.Severity) error {
	if len(flags) == 0 {
		return nil
	}

	records := make([]*domain.AbuseFlag, len(flags))
	for i := range flags {
		f := flags[i]
		f.ID = uuid.New().String()
		f.TenantID = tenantID
		f.RecognitionID = recognitionID
		records[i] = &f
	}

	if err := s.repo.SaveFlags(ctx, tenantID, records); err != nil {
		return fmt.Errorf("save flags: %w", err)
	}

	s.publishFlagEvents(ctx, tenantID, records, severity)
	return nil
}

// Audit writes one privacy-preserving audit entry. Raw identifiers are
// hashed here, at the last boundary before storage.
func (s *Sink) Audit(ctx context.Context, tenantID, eventCode, actorID, targetID string, meta domain.AuditMetadata) error {
	entry := &domain.AuditEntry{
		ID:         uuid.New().String(),
		TenantID:   tenantID,
		EventCode:  eventCode,
		ActorHash:  s.hasher.HashID(actorID),
		TargetHash: s.hasher.HashID(targetID),
		Metadata:   meta,
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.repo.SaveAuditEntry(ctx, tenantID, entry); err != nil {
		return fmt.Errorf("save audit entry: %w", err)
	}
	return nil
}

// publishFlagEvents is best-effort notification; the durable record is the
// flag row already written.
func (s *Sink) publishFlagEvents(ctx context.Context, tenantID string, flags []*domain.AbuseFlag, severity domain.Severity) {
	if s.bus == nil {
		return
	}

	for _, f := range flags {
		payload, err := json.Marshal(f)
		if err != nil {
			continue
		}
		if err := s.bus.Publish(ctx, tenantID, domain.TopicFlagCreated, payload); err != nil {
			slog.Warn("failed to publish flag event",
				"flag_id", f.ID,
				"recognition_id", f.RecognitionID,
				"error", err,
			)
		}
	}

	if severity == domain.SeverityHigh || severity == domain.SeverityCritical {
		payload, _ := json.Marshal(map[string]any{
			"recognitionId": flags[0].RecognitionID,
			"severity":      severity,
			"flagCount":     len(flags),
		})
		if err := s.bus.Publish(ctx, tenantID, domain.TopicAlert, payload); err != nil {
			slog.Warn("failed to publish alert",
				"recognition_id", flags[0].RecognitionID,
				"error", err,
			)
		}
	}
}
