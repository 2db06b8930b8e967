package detect

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/kudoshq/shrike/internal/domain"
)

// ContentDetector catches low-effort or copy-pasted recognition text.
type ContentDetector struct {
	cfg domain.DetectionConfig
}

// NewContentDetector creates a content detector.
func NewContentDetector(cfg domain.DetectionConfig) *ContentDetector {
	return &ContentDetector{cfg: cfg}
}

func (d *ContentDetector) Name() string { return "content" }

// Check flags reasons shorter than the minimum length and reasons that
// near-duplicate the giver's recent recognitions. Both can fire on the same
// event.
func (d *ContentDetector) Check(ctx context.Context, rec *domain.Recognition, reader ActivityReader) ([]domain.AbuseFlag, error) {
	var flags []domain.AbuseFlag

	length := utf8.RuneCountInString(rec.Reason)
	if length < d.cfg.MinReasonLength {
		flags = append(flags, domain.AbuseFlag{
			Type:        domain.FlagContent,
			Severity:    domain.SeverityLow,
			Description: fmt.Sprintf("reason is %d characters (minimum %d)", length, d.cfg.MinReasonLength),
			Method:      domain.MethodAutomatic,
			Metadata: domain.FlagMetadata{
				ReasonLength:    length,
				MinReasonLength: d.cfg.MinReasonLength,
			},
		})
	}

	window := time.Duration(d.cfg.DuplicateWindowDays) * 24 * time.Hour
	duplicates, err := reader.DuplicateReasonCount(ctx, rec.TenantID, rec.GiverID, rec.Reason, window)
	if err != nil {
		return nil, fmt.Errorf("content duplicate count: %w", err)
	}

	if duplicates >= int64(d.cfg.MaxDuplicateReason) {
		flags = append(flags, domain.AbuseFlag{
			Type:        domain.FlagContent,
			Severity:    domain.SeverityMedium,
			Description: fmt.Sprintf("reason duplicated %d times in %d days", duplicates, d.cfg.DuplicateWindowDays),
			Method:      domain.MethodAutomatic,
			Metadata: domain.FlagMetadata{
				WindowDays:     d.cfg.DuplicateWindowDays,
				DuplicateCount: duplicates,
				DuplicateLimit: d.cfg.MaxDuplicateReason,
			},
		})
	}

	return flags, nil
}
