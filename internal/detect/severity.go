package detect

import "github.com/kudoshq/shrike/internal/domain"

// Aggregator reduces a flag set to a total score and a severity bucket.
// Aggregation is a plain sum, so it is commutative: detector execution order
// never changes the resulting bucket.
type Aggregator struct {
	cfg domain.DetectionConfig
}

// NewAggregator creates a severity aggregator.
func NewAggregator(cfg domain.DetectionConfig) *Aggregator {
	return &Aggregator{cfg: cfg}
}

// Score sums the configured point value of every flag's severity.
func (a *Aggregator) Score(flags []domain.AbuseFlag) int {
	total := 0
	for _, f := range flags {
		total += a.cfg.SeverityPoints[f.Severity]
	}
	return total
}

// Bucket maps a total score to a severity bucket.
func (a *Aggregator) Bucket(score int) domain.Severity {
	switch {
	case score >= a.cfg.CriticalScore:
		return domain.SeverityCritical
	case score >= a.cfg.HighScore:
		return domain.SeverityHigh
	case score >= a.cfg.MediumScore:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}

// Aggregate returns the bucket for a flag set directly.
func (a *Aggregator) Aggregate(flags []domain.AbuseFlag) domain.Severity {
	return a.Bucket(a.Score(flags))
}
