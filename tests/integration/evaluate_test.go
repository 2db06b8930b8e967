//go:build integration
// +build integration

// Package integration provides end-to-end tests for the Shrike recognition
// abuse detection engine.
//
// These tests verify the COMPLETE evaluation pipeline:
//
//	Recognition → Detectors → Severity → Weight Adjustment → Flags
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// UNDERSTANDING THE DOMAIN:
//
// 1. RECOGNITION: A kudos event from a giver to a recipient, carrying a
//    reason, a weight, and optional evidence attachments.
//
// 2. DETECTOR: A built-in abuse pattern check:
//   - RECIPROCITY: the same pair exchanging recognition back and forth
//   - FREQUENCY: a giver exceeding daily/weekly volume limits
//   - CONTENT: reasons that are too short or copy-pasted
//   - WEIGHT_MANIPULATION: inflated weights without evidence
//
// 3. SEVERITY: Flags score LOW=1, MEDIUM=5, HIGH=10, CRITICAL=20. The sum
//    maps to an overall severity (≥20 CRITICAL, ≥10 HIGH, ≥5 MEDIUM).
//
// 4. ADJUSTMENT: Each flag type multiplies the stored weight by its penalty
//    factor. The floor is 0.1; the submission is never rejected.
//
// 5. DECISION: PASS (clean), ADJUSTED (re-weighted), or REVIEW (CRITICAL,
//    routed to the moderation queue).
//
// These tests expect a fresh server with no custom rules loaded; each test
// uses distinct giver IDs so frequency windows don't bleed between tests.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL  string
	TenantID string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("SHRIKE_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{
		BaseURL:  baseURL,
		TenantID: "test-tenant",
	}
}

// ============================================================================
// API Request/Response Types (matching Shrike's API contract)
// ============================================================================

// RecognitionRequest is the payload sent to POST /recognitions
type RecognitionRequest struct {
	GiverID       string  `json:"giverId"`
	RecipientID   string  `json:"recipientId"`
	GiverRole     string  `json:"giverRole"`
	Reason        string  `json:"reason"`
	Weight        float64 `json:"weight"`
	EvidenceCount int     `json:"evidenceCount"`
}

// RecognitionResponse is the verdict returned by POST /recognitions
type RecognitionResponse struct {
	RecognitionID  string   `json:"recognitionId"`
	Decision       string   `json:"decision"`
	IsAbusive      bool     `json:"isAbusive"`
	Severity       string   `json:"severity"`
	AdjustedWeight *float64 `json:"adjustedWeight"`
	ReasonCodes    []string `json:"reasonCodes"`
	Flags          []struct {
		Type     string `json:"type"`
		Severity string `json:"severity"`
	} `json:"flags"`
	Metadata struct {
		TraceID    string `json:"traceId"`
		DurationMs int64  `json:"durationMs"`
		Version    string `json:"version"`
	} `json:"metadata"`
}

func submitRecognition(t *testing.T, cfg TestConfig, reqBody RecognitionRequest) (*RecognitionResponse, int) {
	t.Helper()

	body, err := json.Marshal(reqBody)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, cfg.BaseURL+"/recognitions", bytes.NewBuffer(body))
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", cfg.TenantID)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed (is the server running at %s?): %v", cfg.BaseURL, err)
	}
	defer resp.Body.Close()

	var result RecognitionResponse
	if resp.StatusCode == http.StatusCreated {
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
	}

	return &result, resp.StatusCode
}

// uniqueID builds per-run IDs so repeated test runs against the same server
// don't accumulate frequency history.
func uniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

func TestCleanRecognition_Pass(t *testing.T) {
	cfg := getTestConfig()

	resp, code := submitRecognition(t, cfg, RecognitionRequest{
		GiverID:       uniqueID("giver"),
		RecipientID:   uniqueID("recipient"),
		GiverRole:     "user",
		Reason:        "Walked the new hires through the deployment pipeline",
		Weight:        1.0,
		EvidenceCount: 1,
	})

	if code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", code)
	}
	if resp.IsAbusive {
		t.Errorf("expected clean verdict, got flags %v", resp.Flags)
	}
	if resp.Decision != "PASS" {
		t.Errorf("expected PASS, got %s", resp.Decision)
	}
	if resp.Severity != "LOW" {
		t.Errorf("expected LOW severity, got %s", resp.Severity)
	}
	if resp.AdjustedWeight != nil {
		t.Errorf("expected no adjustment, got %.2f", *resp.AdjustedWeight)
	}
}

func TestInflatedWeight_Adjusted(t *testing.T) {
	cfg := getTestConfig()

	resp, code := submitRecognition(t, cfg, RecognitionRequest{
		GiverID:       uniqueID("giver"),
		RecipientID:   uniqueID("recipient"),
		GiverRole:     "user",
		Reason:        "Completely rebuilt the analytics dashboard stack",
		Weight:        3.5,
		EvidenceCount: 0,
	})

	if code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", code)
	}
	if !resp.IsAbusive {
		t.Fatal("expected abusive verdict for evidenceless 3.5 weight")
	}
	if resp.Decision != "ADJUSTED" {
		t.Errorf("expected ADJUSTED, got %s", resp.Decision)
	}
	if len(resp.Flags) != 1 || resp.Flags[0].Type != "WEIGHT_MANIPULATION" {
		t.Fatalf("expected one WEIGHT_MANIPULATION flag, got %v", resp.Flags)
	}
	if resp.Flags[0].Severity != "HIGH" {
		t.Errorf("expected HIGH flag, got %s", resp.Flags[0].Severity)
	}
	// 3.5 * 0.3 = 1.05
	if resp.AdjustedWeight == nil || *resp.AdjustedWeight != 1.05 {
		t.Errorf("expected adjusted weight 1.05, got %v", resp.AdjustedWeight)
	}
}

func TestEvidenceSuppressesWeightCheck(t *testing.T) {
	cfg := getTestConfig()

	resp, code := submitRecognition(t, cfg, RecognitionRequest{
		GiverID:       uniqueID("giver"),
		RecipientID:   uniqueID("recipient"),
		GiverRole:     "user",
		Reason:        "Shipped the customer-facing billing revamp end to end",
		Weight:        3.5,
		EvidenceCount: 2,
	})

	if code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", code)
	}
	if resp.IsAbusive {
		t.Errorf("evidence-backed weight must not be flagged, got %v", resp.Flags)
	}
}

func TestShortReason_LowSeverity(t *testing.T) {
	cfg := getTestConfig()

	resp, code := submitRecognition(t, cfg, RecognitionRequest{
		GiverID:       uniqueID("giver"),
		RecipientID:   uniqueID("recipient"),
		GiverRole:     "user",
		Reason:        "Good job",
		Weight:        1.0,
		EvidenceCount: 0,
	})

	if code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", code)
	}
	if !resp.IsAbusive {
		t.Fatal("expected content flag for a 8-character reason")
	}
	if len(resp.Flags) != 1 || resp.Flags[0].Type != "CONTENT" {
		t.Fatalf("expected one CONTENT flag, got %v", resp.Flags)
	}
	if resp.Severity != "LOW" {
		t.Errorf("expected LOW severity, got %s", resp.Severity)
	}
	// 1.0 * 0.9
	if resp.AdjustedWeight == nil || *resp.AdjustedWeight != 0.9 {
		t.Errorf("expected adjusted weight 0.90, got %v", resp.AdjustedWeight)
	}
}

func TestReasonAtMinimumLength_NoFlag(t *testing.T) {
	cfg := getTestConfig()

	resp, code := submitRecognition(t, cfg, RecognitionRequest{
		GiverID:       uniqueID("giver"),
		RecipientID:   uniqueID("recipient"),
		GiverRole:     "user",
		Reason:        "exactly twenty chars", // 20 runes, inclusive boundary
		Weight:        1.0,
		EvidenceCount: 0,
	})

	if code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", code)
	}
	if resp.IsAbusive {
		t.Errorf("20-character reason must pass, got flags %v", resp.Flags)
	}
}

func TestReciprocityRing_Flagged(t *testing.T) {
	cfg := getTestConfig()

	giver := uniqueID("ring-a")
	recipient := uniqueID("ring-b")

	// Build up pair history: five prior recognitions hit the threshold,
	// the sixth is the one under test.
	for i := 0; i < 5; i++ {
		_, code := submitRecognition(t, cfg, RecognitionRequest{
			GiverID:       giver,
			RecipientID:   recipient,
			GiverRole:     "user",
			Reason:        fmt.Sprintf("Helped me untangle review backlog item %d", i),
			Weight:        1.0,
			EvidenceCount: 1,
		})
		if code != http.StatusCreated {
			t.Fatalf("setup submission %d failed: %d", i, code)
		}
	}

	resp, code := submitRecognition(t, cfg, RecognitionRequest{
		GiverID:       giver,
		RecipientID:   recipient,
		GiverRole:     "user",
		Reason:        "Yet another great collaboration this sprint",
		Weight:        1.0,
		EvidenceCount: 1,
	})

	if code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", code)
	}
	if !resp.IsAbusive {
		t.Fatal("expected reciprocity flag after 5 prior pair recognitions")
	}

	found := false
	for _, f := range resp.Flags {
		if f.Type == "RECIPROCITY" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a RECIPROCITY flag, got %v", resp.Flags)
	}
	if resp.AdjustedWeight == nil || *resp.AdjustedWeight >= 1.0 {
		t.Errorf("expected reduced weight, got %v", resp.AdjustedWeight)
	}
}

func TestDailyFlood_Flagged(t *testing.T) {
	cfg := getTestConfig()

	giver := uniqueID("flooder")

	// Ten prior recognitions to distinct recipients reach the daily limit.
	for i := 0; i < 10; i++ {
		_, code := submitRecognition(t, cfg, RecognitionRequest{
			GiverID:       giver,
			RecipientID:   uniqueID("recipient"),
			GiverRole:     "user",
			Reason:        fmt.Sprintf("Thanks for the thorough review of change %d", i),
			Weight:        1.0,
			EvidenceCount: 1,
		})
		if code != http.StatusCreated {
			t.Fatalf("setup submission %d failed: %d", i, code)
		}
	}

	resp, code := submitRecognition(t, cfg, RecognitionRequest{
		GiverID:       giver,
		RecipientID:   uniqueID("recipient"),
		GiverRole:     "user",
		Reason:        "One more recognition to tip past the daily limit",
		Weight:        1.0,
		EvidenceCount: 1,
	})

	if code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", code)
	}
	if !resp.IsAbusive {
		t.Fatal("expected frequency flag past the daily limit")
	}

	found := false
	for _, f := range resp.Flags {
		if f.Type == "FREQUENCY" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a FREQUENCY flag, got %v", resp.Flags)
	}
}

func TestDuplicateReasons_Flagged(t *testing.T) {
	cfg := getTestConfig()

	giver := uniqueID("copier")
	reason := "Great work on the thing as always my friend"

	// Three prior submissions with the same reason text (case varies).
	variants := []string{reason, "  " + reason + "  ", "GREAT work on the thing as always my friend"}
	for i, text := range variants {
		_, code := submitRecognition(t, cfg, RecognitionRequest{
			GiverID:       giver,
			RecipientID:   uniqueID("recipient"),
			GiverRole:     "user",
			Reason:        text,
			Weight:        1.0,
			EvidenceCount: 1,
		})
		if code != http.StatusCreated {
			t.Fatalf("setup submission %d failed: %d", i, code)
		}
	}

	resp, code := submitRecognition(t, cfg, RecognitionRequest{
		GiverID:       giver,
		RecipientID:   uniqueID("recipient"),
		GiverRole:     "user",
		Reason:        reason,
		Weight:        1.0,
		EvidenceCount: 1,
	})

	if code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", code)
	}
	if !resp.IsAbusive {
		t.Fatal("expected content flag for duplicated reason text")
	}

	found := false
	for _, f := range resp.Flags {
		if f.Type == "CONTENT" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a CONTENT flag, got %v", resp.Flags)
	}
}

func TestSelfRecognition_Error(t *testing.T) {
	cfg := getTestConfig()

	giver := uniqueID("narcissist")
	_, code := submitRecognition(t, cfg, RecognitionRequest{
		GiverID:       giver,
		RecipientID:   giver,
		GiverRole:     "user",
		Reason:        "I am honestly my own best collaborator here",
		Weight:        1.0,
		EvidenceCount: 0,
	})

	if code != http.StatusBadRequest {
		t.Errorf("expected status 400 for self-recognition, got %d", code)
	}
}

func TestZeroWeight_Error(t *testing.T) {
	cfg := getTestConfig()

	_, code := submitRecognition(t, cfg, RecognitionRequest{
		GiverID:       uniqueID("giver"),
		RecipientID:   uniqueID("recipient"),
		GiverRole:     "user",
		Reason:        "Weight of zero should be rejected outright",
		Weight:        0,
		EvidenceCount: 0,
	})

	if code != http.StatusBadRequest {
		t.Errorf("expected status 400 for zero weight, got %d", code)
	}
}

func TestMissingTenantHeader_Error(t *testing.T) {
	cfg := getTestConfig()

	body, _ := json.Marshal(RecognitionRequest{
		GiverID:     uniqueID("giver"),
		RecipientID: uniqueID("recipient"),
		Reason:      "No tenant header accompanies this submission",
		Weight:      1.0,
	})

	req, err := http.NewRequest(http.MethodPost, cfg.BaseURL+"/recognitions", bytes.NewBuffer(body))
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	// No X-Tenant-ID header

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected status 400 without tenant header, got %d", resp.StatusCode)
	}
}

func TestResponseMetadata(t *testing.T) {
	cfg := getTestConfig()

	resp, code := submitRecognition(t, cfg, RecognitionRequest{
		GiverID:       uniqueID("giver"),
		RecipientID:   uniqueID("recipient"),
		GiverRole:     "manager",
		Reason:        "Coached the team through the platform migration",
		Weight:        1.5,
		EvidenceCount: 1,
	})

	if code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", code)
	}
	if resp.RecognitionID == "" {
		t.Error("expected recognitionId in response")
	}
	if resp.Metadata.TraceID == "" {
		t.Error("expected traceId in metadata")
	}
	if resp.Metadata.Version == "" {
		t.Error("expected version in metadata")
	}
}
