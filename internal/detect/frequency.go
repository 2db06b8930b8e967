package detect

import (
	"context"
	"fmt"
	"time"

	"github.com/kudoshq/shrike/internal/domain"
)

// FrequencyDetector caps how often a single giver can issue recognitions,
// independent of recipient.
type FrequencyDetector struct {
	cfg domain.DetectionConfig
}

// NewFrequencyDetector creates a frequency detector.
func NewFrequencyDetector(cfg domain.DetectionConfig) *FrequencyDetector {
	return &FrequencyDetector{cfg: cfg}
}

func (d *FrequencyDetector) Name() string { return "frequency" }

// Check queries the giver's totals over rolling 24h and 7-day windows. The
// daily and weekly checks are independent; both can fire on one event. A
// weekly breach is CRITICAL outright: sustained volume, not a burst.
func (d *FrequencyDetector) Check(ctx context.Context, rec *domain.Recognition, reader ActivityReader) ([]domain.AbuseFlag, error) {
	dailyCount, err := reader.GiverCount(ctx, rec.TenantID, rec.GiverID, 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("frequency daily count: %w", err)
	}

	weeklyCount, err := reader.GiverCount(ctx, rec.TenantID, rec.GiverID, 7*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("frequency weekly count: %w", err)
	}

	var flags []domain.AbuseFlag

	if dailyCount >= int64(d.cfg.DailyLimit) {
		severity := domain.SeverityMedium
		if float64(dailyCount) >= 1.5*float64(d.cfg.DailyLimit) {
			severity = domain.SeverityHigh
		}
		flags = append(flags, domain.AbuseFlag{
			Type:        domain.FlagFrequency,
			Severity:    severity,
			Description: fmt.Sprintf("%d recognitions in 24 hours (limit %d)", dailyCount, d.cfg.DailyLimit),
			Method:      domain.MethodAutomatic,
			Metadata: domain.FlagMetadata{
				DailyCount: dailyCount,
				DailyLimit: d.cfg.DailyLimit,
			},
		})
	}

	if weeklyCount >= int64(d.cfg.WeeklyLimit) {
		flags = append(flags, domain.AbuseFlag{
			Type:        domain.FlagFrequency,
			Severity:    domain.SeverityCritical,
			Description: fmt.Sprintf("%d recognitions in 7 days (limit %d)", weeklyCount, d.cfg.WeeklyLimit),
			Method:      domain.MethodAutomatic,
			Metadata: domain.FlagMetadata{
				WeeklyCount: weeklyCount,
				WeeklyLimit: d.cfg.WeeklyLimit,
			},
		})
	}

	return flags, nil
}
