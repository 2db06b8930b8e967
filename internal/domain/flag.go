package domain

import "time"

// FlagType identifies which abuse signal produced a flag.
type FlagType string

const (
	FlagReciprocity        FlagType = "RECIPROCITY"
	FlagFrequency          FlagType = "FREQUENCY"
	FlagContent            FlagType = "CONTENT"
	FlagWeightManipulation FlagType = "WEIGHT_MANIPULATION"
	// FlagEvidence is reserved for evidence-related flags. No built-in
	// detector emits it, but the weight adjuster supports it so manual and
	// custom-rule flags of this type are penalized correctly.
	FlagEvidence FlagType = "EVIDENCE"
	FlagManual   FlagType = "MANUAL"
)

// Severity is the ordinal seriousness bucket of a flag or verdict.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Rank returns the ordinal position of a severity, for monotonicity
// comparisons. Unknown severities rank below LOW.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// DetectionMethod records how a flag was raised.
type DetectionMethod string

const (
	MethodAutomatic DetectionMethod = "AUTOMATIC"
	MethodManual    DetectionMethod = "MANUAL"
)

// FlagStatus is the moderation lifecycle state of a flag. The engine always
// creates flags in PENDING; later transitions are owned by the moderation
// subsystem.
type FlagStatus string

const (
	FlagPending   FlagStatus = "PENDING"
	FlagReviewed  FlagStatus = "REVIEWED"
	FlagResolved  FlagStatus = "RESOLVED"
	FlagDismissed FlagStatus = "DISMISSED"
)

// ValidFlagStatus reports whether s is a known lifecycle state.
func ValidFlagStatus(s FlagStatus) bool {
	switch s {
	case FlagPending, FlagReviewed, FlagResolved, FlagDismissed:
		return true
	}
	return false
}

// SystemActor is the flaggedBy value for automatic flags.
const SystemActor = "SYSTEM"

// AbuseFlag asserts that a specific abuse signal fired for a specific
// recognition.
type AbuseFlag struct {
	ID            string          `json:"id,omitempty"`
	TenantID      string          `json:"tenantId,omitempty"`
	RecognitionID string          `json:"recognitionId,omitempty"`
	Type          FlagType        `json:"flagType"`
	Severity      Severity        `json:"severity"`
	Description   string          `json:"description"`
	Method        DetectionMethod `json:"detectionMethod"`
	Metadata      FlagMetadata    `json:"metadata"`
	FlaggedBy     string          `json:"flaggedBy"`
	FlaggedAt     time.Time       `json:"flaggedAt"`
	Status        FlagStatus      `json:"status"`
	ReviewedBy    string          `json:"reviewedBy,omitempty"`
}

// FlagMetadata captures the raw numbers a flag was derived from, so the
// decision can be reconstructed for audit without re-querying the datastore.
// Each detector fills only the fields it measured.
type FlagMetadata struct {
	WindowDays int `json:"windowDays,omitempty"`

	// Reciprocity
	PairCount   int64 `json:"pairCount,omitempty"`
	MutualCount int64 `json:"mutualCount,omitempty"`
	PairLimit   int   `json:"pairLimit,omitempty"`
	MutualLimit int   `json:"mutualLimit,omitempty"`

	// Frequency
	DailyCount  int64 `json:"dailyCount,omitempty"`
	WeeklyCount int64 `json:"weeklyCount,omitempty"`
	DailyLimit  int   `json:"dailyLimit,omitempty"`
	WeeklyLimit int   `json:"weeklyLimit,omitempty"`

	// Content
	ReasonLength    int   `json:"reasonLength,omitempty"`
	MinReasonLength int   `json:"minReasonLength,omitempty"`
	DuplicateCount  int64 `json:"duplicateCount,omitempty"`
	DuplicateLimit  int   `json:"duplicateLimit,omitempty"`

	// Weight manipulation
	Weight         float64 `json:"weight,omitempty"`
	ExpectedWeight float64 `json:"expectedWeight,omitempty"`
	EvidenceCount  int     `json:"evidenceCount,omitempty"`

	// Custom rules
	RuleID string `json:"ruleId,omitempty"`
}
