// Package detect implements the recognition abuse detection engine: four
// threshold-based signal detectors, a severity aggregator, a multiplicative
// weight adjuster, and the orchestrator tying them together with fail-open
// error semantics.
package detect

import (
	"context"
	"time"

	"github.com/kudoshq/shrike/internal/domain"
)

// ActivityReader provides the read-only aggregate counts the detectors
// consume. Implementations query the recognition datastore; errors are
// surfaced unchanged so the orchestrator can apply the fail-open policy.
type ActivityReader interface {
	// PairCount returns how many recognitions giver issued to recipient
	// within the window.
	PairCount(ctx context.Context, tenantID, giverID, recipientID string, window time.Duration) (int64, error)

	// MutualCount returns how many recognitions flowed back from recipient
	// to giver within the window.
	MutualCount(ctx context.Context, tenantID, giverID, recipientID string, window time.Duration) (int64, error)

	// GiverCount returns how many recognitions the giver issued to anyone
	// within the window.
	GiverCount(ctx context.Context, tenantID, giverID string, window time.Duration) (int64, error)

	// DuplicateReasonCount returns how many recent recognitions by the same
	// giver carry near-identical reason text.
	DuplicateReasonCount(ctx context.Context, tenantID, giverID, reason string, window time.Duration) (int64, error)
}

// Detector inspects one recognition and returns zero or more candidate
// flags. Implementations are side-effect-free given their inputs and safe
// for concurrent use.
type Detector interface {
	Name() string
	Check(ctx context.Context, rec *domain.Recognition, reader ActivityReader) ([]domain.AbuseFlag, error)
}

// Counts bundles the aggregate numbers gathered for one evaluation, for
// consumers that need them all at once (custom rules).
type Counts struct {
	Pair      int64
	Mutual    int64
	Daily     int64
	Weekly    int64
	Duplicate int64
}
