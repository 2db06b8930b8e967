// Benchmark tool for testing Shrike against labeled recognition data.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/recognitions.csv -url http://localhost:8080
//
// This tool:
//   1. Reads labeled recognition data (with abuse labels)
//   2. Sends each recognition to Shrike for evaluation
//   3. Compares Shrike's verdict (isAbusive) with the actual labels
//   4. Calculates precision, recall, F1-score, and confusion matrix
//
// Expected CSV columns:
//   giver_id,recipient_id,giver_role,reason,weight,evidence_count,is_abusive
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LabeledRecognition represents a row from the labeled dataset.
type LabeledRecognition struct {
	GiverID       string
	RecipientID   string
	GiverRole     string
	Reason        string
	Weight        float64
	EvidenceCount int
	IsAbusive     bool
}

// RecognitionRequest is the Shrike API request format.
type RecognitionRequest struct {
	GiverID       string  `json:"giverId"`
	RecipientID   string  `json:"recipientId"`
	GiverRole     string  `json:"giverRole"`
	Reason        string  `json:"reason"`
	Weight        float64 `json:"weight"`
	EvidenceCount int     `json:"evidenceCount"`
}

// RecognitionResponse is the Shrike API response format.
type RecognitionResponse struct {
	RecognitionID  string   `json:"recognitionId"`
	Decision       string   `json:"decision"`
	IsAbusive      bool     `json:"isAbusive"`
	Severity       string   `json:"severity"`
	AdjustedWeight *float64 `json:"adjustedWeight,omitempty"`
	ReasonCodes    []string `json:"reasonCodes"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TruePositives  int64 // Abusive detected as abusive
	FalsePositives int64 // Legitimate detected as abusive
	TrueNegatives  int64 // Legitimate passed
	FalseNegatives int64 // Abusive passed (missed abuse!)

	TotalProcessed int64
	TotalAbusive   int64
	TotalLegit     int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to labeled recognition CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Shrike base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	limit := flag.Int("limit", 10000, "Maximum recognitions to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	abusiveOnly := flag.Bool("abusive-only", false, "Only test abusive recognitions")
	sampleRate := flag.Float64("sample", 1.0, "Sample rate for legitimate rows (0.0-1.0)")
	verbose := flag.Bool("verbose", false, "Print each recognition result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/recognitions.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║         SHRIKE BENCHMARK - Recognition Abuse Detection        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Shrike URL:  %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Printf("Abusive Only: %v\n", *abusiveOnly)
	fmt.Printf("Sample Rate: %.2f\n", *sampleRate)
	fmt.Println()

	// Check Shrike is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Shrike not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Shrike is running:")
		fmt.Println("  cd shrike && go run cmd/shrike/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Shrike is healthy")

	// Read labeled data
	fmt.Printf("\nReading labeled data from %s...\n", *csvPath)
	recognitions, err := readLabeledCSV(*csvPath, *limit, *abusiveOnly, *sampleRate)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d recognitions\n", len(recognitions))

	// Count abusive vs legitimate
	abusiveCount := 0
	for _, rec := range recognitions {
		if rec.IsAbusive {
			abusiveCount++
		}
	}
	fmt.Printf("  - Abusive:    %d (%.2f%%)\n", abusiveCount, 100*float64(abusiveCount)/float64(len(recognitions)))
	fmt.Printf("  - Legitimate: %d (%.2f%%)\n", len(recognitions)-abusiveCount, 100*float64(len(recognitions)-abusiveCount)/float64(len(recognitions)))

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(recognitions, *baseURL, *tenantID, *workers, *verbose)
	duration := time.Since(startTime)

	// Print results
	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readLabeledCSV(path string, limit int, abusiveOnly bool, sampleRate float64) ([]LabeledRecognition, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	// Read header
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	// Map column indices
	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}

	for _, required := range []string{"giver_id", "recipient_id", "weight", "is_abusive"} {
		if _, ok := colIndex[required]; !ok {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}

	var recognitions []LabeledRecognition
	sampleCounter := 0

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		isAbusive := record[colIndex["is_abusive"]] == "1"

		// Apply filters
		if abusiveOnly && !isAbusive {
			continue
		}

		// Sample legitimate rows
		if !isAbusive && sampleRate < 1.0 {
			sampleCounter++
			if float64(sampleCounter%100)/100.0 >= sampleRate {
				continue
			}
		}

		weight, _ := strconv.ParseFloat(record[colIndex["weight"]], 64)

		rec := LabeledRecognition{
			GiverID:     record[colIndex["giver_id"]],
			RecipientID: record[colIndex["recipient_id"]],
			Weight:      weight,
			IsAbusive:   isAbusive,
		}
		if i, ok := colIndex["giver_role"]; ok {
			rec.GiverRole = record[i]
		}
		if i, ok := colIndex["reason"]; ok {
			rec.Reason = record[i]
		}
		if i, ok := colIndex["evidence_count"]; ok {
			rec.EvidenceCount, _ = strconv.Atoi(record[i])
		}

		recognitions = append(recognitions, rec)

		if limit > 0 && len(recognitions) >= limit {
			break
		}
	}

	return recognitions, nil
}

func runBenchmark(recognitions []LabeledRecognition, baseURL, tenantID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	// Create work channel
	work := make(chan LabeledRecognition, 100)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for rec := range work {
				start := time.Now()
				result, err := evaluateRecognition(client, baseURL, tenantID, rec)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", rec.GiverID, err)
					}
					continue
				}

				// Track actual labels
				if rec.IsAbusive {
					atomic.AddInt64(&metrics.TotalAbusive, 1)
				} else {
					atomic.AddInt64(&metrics.TotalLegit, 1)
				}

				// Calculate confusion matrix
				predicted := result.IsAbusive
				actual := rec.IsAbusive

				if predicted && actual {
					atomic.AddInt64(&metrics.TruePositives, 1)
				} else if predicted && !actual {
					atomic.AddInt64(&metrics.FalsePositives, 1)
				} else if !predicted && !actual {
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				} else { // !predicted && actual
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					status := "✓"
					if (predicted && !actual) || (!predicted && actual) {
						status = "✗"
					}
					name := rec.GiverID
					if len(name) > 10 {
						name = name[:10]
					}
					fmt.Printf("%s %-10s | Weight: %5.2f | Evidence: %2d | Abusive: %-5v | Shrike: %-5v (%s)\n",
						status,
						name,
						rec.Weight,
						rec.EvidenceCount,
						rec.IsAbusive,
						result.IsAbusive,
						result.Severity,
					)
				}
			}
		}()
	}

	// Send work
	for _, rec := range recognitions {
		work <- rec
	}
	close(work)

	// Wait for completion
	wg.Wait()

	return metrics
}

func evaluateRecognition(client *http.Client, baseURL, tenantID string, rec LabeledRecognition) (*RecognitionResponse, error) {
	req := RecognitionRequest{
		GiverID:       rec.GiverID,
		RecipientID:   rec.RecipientID,
		GiverRole:     rec.GiverRole,
		Reason:        rec.Reason,
		Weight:        rec.Weight,
		EvidenceCount: rec.EvidenceCount,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/recognitions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result RecognitionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 DATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Abusive:    %d\n", m.TotalAbusive)
	fmt.Printf("   Total Legitimate: %d\n", m.TotalLegit)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\n📈 CONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                  Abusive      Clean")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("   Actual  A  │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              ├──────────┼──────────┤")
	fmt.Printf("           L  │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              └──────────┴──────────┘")

	// Calculate metrics
	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	accuracy := float64(0)
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	fmt.Printf("\n🎯 DETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of flagged, how many were actually abusive)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of abusive, how many did we catch)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)
	fmt.Printf("   Accuracy:   %.4f  (overall correct predictions)\n", accuracy)

	// Detection rate analysis
	fmt.Printf("\n🔍 DETECTION ANALYSIS\n")
	if m.TotalAbusive > 0 {
		detectionRate := float64(m.TruePositives) / float64(m.TotalAbusive) * 100
		missRate := float64(m.FalseNegatives) / float64(m.TotalAbusive) * 100
		fmt.Printf("   Abuse Detected:    %d / %d (%.2f%%)\n", m.TruePositives, m.TotalAbusive, detectionRate)
		fmt.Printf("   Abuse Missed:      %d / %d (%.2f%%) ⚠️\n", m.FalseNegatives, m.TotalAbusive, missRate)
	}
	if m.TotalLegit > 0 {
		falseAlarmRate := float64(m.FalsePositives) / float64(m.TotalLegit) * 100
		fmt.Printf("   False Alarms:      %d / %d (%.2f%%)\n", m.FalsePositives, m.TotalLegit, falseAlarmRate)
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		rps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f rec/sec\n", rps)
	}

	// Interpretation
	fmt.Printf("\n💡 INTERPRETATION\n")
	if recall >= 0.9 {
		fmt.Println("   ✅ Excellent recall - catching most abuse")
	} else if recall >= 0.7 {
		fmt.Println("   ⚠️  Good recall - but missing some abuse")
	} else if recall >= 0.5 {
		fmt.Println("   ⚠️  Moderate recall - significant abuse being missed")
	} else {
		fmt.Println("   ❌ Poor recall - most abuse is being missed!")
	}

	if precision >= 0.5 {
		fmt.Println("   ✅ Good precision - flags are meaningful")
	} else if precision >= 0.2 {
		fmt.Println("   ⚠️  Low precision - many false alarms")
	} else {
		fmt.Println("   ❌ Very low precision - mostly false alarms")
	}

	fmt.Println()
}
