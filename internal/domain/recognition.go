package domain

import (
	"strings"
	"time"
)

// GiverRole determines the expected baseline weight of a recognition.
type GiverRole string

const (
	RoleUser    GiverRole = "USER"
	RoleManager GiverRole = "MANAGER"
	RoleAdmin   GiverRole = "ADMIN"
)

// ExpectedWeight returns the baseline recognition weight for a role.
// Unknown roles fall back to the USER baseline.
func (r GiverRole) ExpectedWeight() float64 {
	switch r {
	case RoleManager:
		return 1.5
	case RoleAdmin:
		return 2.0
	default:
		return 1.0
	}
}

// Recognition represents a peer recognition event.
type Recognition struct {
	// Core identifiers
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	// Parties involved
	GiverID     string    `json:"giverId"`
	RecipientID string    `json:"recipientId"`
	GiverRole   GiverRole `json:"giverRole"`

	// Content
	Reason        string  `json:"reason"`
	Weight        float64 `json:"weight"`
	EvidenceCount int     `json:"evidenceCount"`

	// AdjustedWeight is set when abuse detection re-weighted the event.
	// Leaderboard scoring uses AdjustedWeight when present, Weight otherwise.
	AdjustedWeight *float64 `json:"adjustedWeight,omitempty"`

	// Temporal
	CreatedAt time.Time `json:"createdAt"`
}

// EffectiveWeight returns the weight counted toward aggregate scores.
func (r *Recognition) EffectiveWeight() float64 {
	if r.AdjustedWeight != nil {
		return *r.AdjustedWeight
	}
	return r.Weight
}

// RecognitionRequest is the API request payload for creating a recognition.
type RecognitionRequest struct {
	GiverID       string  `json:"giverId"`
	RecipientID   string  `json:"recipientId"`
	GiverRole     string  `json:"giverRole"`
	Reason        string  `json:"reason"`
	Weight        float64 `json:"weight"`
	EvidenceCount int     `json:"evidenceCount"`
}

// ToRecognition converts a request to a Recognition domain object.
func (r *RecognitionRequest) ToRecognition() *Recognition {
	role := GiverRole(strings.ToUpper(r.GiverRole))
	if role != RoleManager && role != RoleAdmin {
		role = RoleUser
	}
	return &Recognition{
		GiverID:       r.GiverID,
		RecipientID:   r.RecipientID,
		GiverRole:     role,
		Reason:        r.Reason,
		Weight:        r.Weight,
		EvidenceCount: r.EvidenceCount,
		CreatedAt:     time.Now().UTC(),
	}
}

// LeaderboardEntry is one row of the recipient activity ranking.
type LeaderboardEntry struct {
	RecipientID  string  `json:"recipientId"`
	Score        float64 `json:"score"`
	Recognitions int64   `json:"recognitions"`
}

// NormalizeReason canonicalizes reason text for duplicate-content matching:
// lowercased, whitespace collapsed, trimmed.
func NormalizeReason(reason string) string {
	return strings.Join(strings.Fields(strings.ToLower(reason)), " ")
}
