package detect

import (
	"context"
	"fmt"
	"time"

	"github.com/kudoshq/shrike/internal/domain"
)

// ReciprocityDetector catches "I'll praise you, you praise me" gaming
// between a specific giver/recipient pair.
type ReciprocityDetector struct {
	cfg domain.DetectionConfig
}

// NewReciprocityDetector creates a reciprocity detector.
func NewReciprocityDetector(cfg domain.DetectionConfig) *ReciprocityDetector {
	return &ReciprocityDetector{cfg: cfg}
}

func (d *ReciprocityDetector) Name() string { return "reciprocity" }

// Check queries the giver→recipient and recipient→giver counts over the
// rolling window. All thresholds are inclusive: a count exactly at the
// threshold fires.
func (d *ReciprocityDetector) Check(ctx context.Context, rec *domain.Recognition, reader ActivityReader) ([]domain.AbuseFlag, error) {
	window := time.Duration(d.cfg.ReciprocityWindowDays) * 24 * time.Hour

	pairCount, err := reader.PairCount(ctx, rec.TenantID, rec.GiverID, rec.RecipientID, window)
	if err != nil {
		return nil, fmt.Errorf("reciprocity pair count: %w", err)
	}

	mutualCount, err := reader.MutualCount(ctx, rec.TenantID, rec.GiverID, rec.RecipientID, window)
	if err != nil {
		return nil, fmt.Errorf("reciprocity mutual count: %w", err)
	}

	var flags []domain.AbuseFlag

	if pairCount >= int64(d.cfg.ReciprocityThreshold) {
		severity := domain.SeverityMedium
		if pairCount >= int64(2*d.cfg.ReciprocityThreshold) {
			severity = domain.SeverityHigh
		}
		flags = append(flags, domain.AbuseFlag{
			Type:     domain.FlagReciprocity,
			Severity: severity,
			Description: fmt.Sprintf("%d recognitions to the same recipient in %d days",
				pairCount, d.cfg.ReciprocityWindowDays),
			Method: domain.MethodAutomatic,
			Metadata: domain.FlagMetadata{
				WindowDays: d.cfg.ReciprocityWindowDays,
				PairCount:  pairCount,
				PairLimit:  d.cfg.ReciprocityThreshold,
			},
		})
	}

	// Bidirectional exchange is a stronger signal than one-directional
	// frequency and can co-exist with the flag above.
	if mutualCount >= int64(d.cfg.MutualExchangeThreshold) &&
		pairCount >= int64(d.cfg.MutualExchangeThreshold) {
		flags = append(flags, domain.AbuseFlag{
			Type:     domain.FlagReciprocity,
			Severity: domain.SeverityHigh,
			Description: fmt.Sprintf("mutual exchange: %d given, %d received within %d days",
				pairCount, mutualCount, d.cfg.ReciprocityWindowDays),
			Method: domain.MethodAutomatic,
			Metadata: domain.FlagMetadata{
				WindowDays:  d.cfg.ReciprocityWindowDays,
				PairCount:   pairCount,
				MutualCount: mutualCount,
				MutualLimit: d.cfg.MutualExchangeThreshold,
			},
		})
	}

	return flags, nil
}
