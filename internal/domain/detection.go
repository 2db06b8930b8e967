package domain

import "time"

// DetectionResult is the engine's verdict for one evaluated recognition.
type DetectionResult struct {
	IsAbusive bool        `json:"isAbusive"`
	Flags     []AbuseFlag `json:"flags"`
	Severity  Severity    `json:"severity"`

	// AdjustedWeight is present iff IsAbusive; otherwise the original
	// weight stands.
	AdjustedWeight *float64 `json:"adjustedWeight,omitempty"`

	// ReasonCodes holds one human-readable string per flag, in flag order,
	// for user-facing messaging.
	ReasonCodes []string `json:"reasonCodes"`

	Metadata DetectionMetadata `json:"metadata"`
}

// DetectionMetadata contains processing information for one evaluation.
type DetectionMetadata struct {
	TraceID       string    `json:"traceId,omitempty"`
	EvaluatedAt   time.Time `json:"evaluatedAt"`
	DurationMs    int64     `json:"durationMs"`
	DetectorsRun  int       `json:"detectorsRun"`
	FailedOpen    bool      `json:"failedOpen,omitempty"`
	EngineVersion string    `json:"engineVersion"`
}

// Decision statuses the recognition-creation workflow derives from a result.
const (
	DecisionPass     = "PASS"     // store as-is
	DecisionAdjusted = "ADJUSTED" // store with adjusted weight
	DecisionReview   = "REVIEW"   // adjusted and routed to manual review
)

// DecisionFor maps a result to the action the creation workflow takes.
// CRITICAL verdicts are routed to manual review on top of re-weighting.
func DecisionFor(res *DetectionResult) string {
	switch {
	case !res.IsAbusive:
		return DecisionPass
	case res.Severity == SeverityCritical:
		return DecisionReview
	default:
		return DecisionAdjusted
	}
}

// reasonCodes maps each flag type to a static user-facing string.
var reasonCodes = map[FlagType]string{
	FlagReciprocity:        "Repeated recognition exchange between the same pair",
	FlagFrequency:          "Recognition volume exceeds allowed limits",
	FlagContent:            "Recognition reason is too short or duplicated",
	FlagWeightManipulation: "Recognition weight is not justified by evidence or role",
	FlagEvidence:           "Recognition evidence is missing or inconsistent",
	FlagManual:             "Recognition matched a custom abuse rule",
}

// ReasonCodeFor returns the user-facing reason string for a flag type.
func ReasonCodeFor(t FlagType) string {
	if code, ok := reasonCodes[t]; ok {
		return code
	}
	return "Recognition flagged for review"
}
