package detect

import (
	"context"
	"fmt"

	"github.com/kudoshq/shrike/internal/domain"
)

// WeightDetector catches inflated recognition weight not backed by evidence
// or role norms. It performs no datastore queries; everything it needs is on
// the event itself.
type WeightDetector struct {
	cfg domain.DetectionConfig
}

// NewWeightDetector creates a weight-manipulation detector.
func NewWeightDetector(cfg domain.DetectionConfig) *WeightDetector {
	return &WeightDetector{cfg: cfg}
}

func (d *WeightDetector) Name() string { return "weight" }

// Check runs two sub-checks in order. The evidenceless-high-weight check
// takes precedence: when it fires, the role-variance check is skipped for
// the event, so at most one WEIGHT_MANIPULATION flag is emitted per
// evaluation. Evidence suppresses both checks entirely.
func (d *WeightDetector) Check(ctx context.Context, rec *domain.Recognition, _ ActivityReader) ([]domain.AbuseFlag, error) {
	if rec.EvidenceCount > 0 {
		return nil, nil
	}

	if rec.Weight > d.cfg.HighWeightThreshold {
		severity := domain.SeverityMedium
		if rec.Weight >= d.cfg.SevereWeightThreshold {
			severity = domain.SeverityHigh
		}
		return []domain.AbuseFlag{{
			Type:        domain.FlagWeightManipulation,
			Severity:    severity,
			Description: fmt.Sprintf("weight %.2f with no evidence (threshold %.2f)", rec.Weight, d.cfg.HighWeightThreshold),
			Method:      domain.MethodAutomatic,
			Metadata: domain.FlagMetadata{
				Weight:        rec.Weight,
				EvidenceCount: rec.EvidenceCount,
			},
		}}, nil
	}

	expected := rec.GiverRole.ExpectedWeight()
	if rec.Weight > expected && rec.Weight-expected > d.cfg.WeightVariance {
		return []domain.AbuseFlag{{
			Type:        domain.FlagWeightManipulation,
			Severity:    domain.SeverityMedium,
			Description: fmt.Sprintf("weight %.2f exceeds %s baseline %.2f with no evidence", rec.Weight, rec.GiverRole, expected),
			Method:      domain.MethodAutomatic,
			Metadata: domain.FlagMetadata{
				Weight:         rec.Weight,
				ExpectedWeight: expected,
				EvidenceCount:  rec.EvidenceCount,
			},
		}}, nil
	}

	return nil, nil
}
