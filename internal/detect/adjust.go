package detect

import (
	"math"

	"github.com/kudoshq/shrike/internal/domain"
)

// Adjuster translates the abuse signal into an economic penalty on the
// recognition's weight.
type Adjuster struct {
	cfg domain.DetectionConfig
}

// NewAdjuster creates a weight adjuster.
func NewAdjuster(cfg domain.DetectionConfig) *Adjuster {
	return &Adjuster{cfg: cfg}
}

// Apply multiplies the original weight by the configured factor of each
// flag's type, in flag order, then clamps to the floor and rounds to two
// decimal places. Flag types without a configured factor leave the weight
// untouched, so penalties can never increase it.
func (a *Adjuster) Apply(weight float64, flags []domain.AbuseFlag) float64 {
	adjusted := weight
	for _, f := range flags {
		if factor, ok := a.cfg.PenaltyFactors[f.Type]; ok {
			adjusted *= factor
		}
	}
	if adjusted < a.cfg.WeightFloor {
		adjusted = a.cfg.WeightFloor
	}
	return math.Round(adjusted*100) / 100
}
