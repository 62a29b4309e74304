// Benchmark tool for testing Harrier against labeled document data.
//
// Usage:
//
//	go run cmd/benchmark/main.go -csv /path/to/documents.csv -url http://localhost:8080
//	go run cmd/benchmark/main.go -synthetic 5000 -url http://localhost:8080
//
// This tool:
//  1. Reads labeled document data (or generates a synthetic set)
//  2. Sends each document to Harrier for evaluation
//  3. Compares Harrier's recommendation with the fraud labels
//  4. Calculates precision, recall, F1-score, and confusion matrix
//
// The CSV needs an is_fraud column (1/0) and a type column; every other
// column is passed through as a document field.
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LabeledDocument is one benchmark input: raw fields plus the ground truth.
type LabeledDocument struct {
	Type    string
	Fields  map[string]any
	IsFraud bool
}

// EvaluateRequest is the Harrier API request format.
type EvaluateRequest struct {
	Type   string         `json:"type"`
	Fields map[string]any `json:"fields"`
}

// EvaluateResponse is the subset of the Harrier response the benchmark reads.
type EvaluateResponse struct {
	AssessmentID   string  `json:"assessmentId"`
	OverallScore   float64 `json:"overallScore"`
	Recommendation string  `json:"recommendation"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TruePositives  int64 // Fraud flagged (REJECT or ESCALATE)
	FalsePositives int64 // Non-fraud flagged
	TrueNegatives  int64 // Non-fraud approved
	FalseNegatives int64 // Fraud approved (missed fraud!)

	TotalProcessed int64
	TotalFraud     int64
	TotalNonFraud  int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

func main() {
	csvPath := flag.String("csv", "", "Path to labeled documents CSV file")
	synthetic := flag.Int("synthetic", 0, "Generate N synthetic documents instead of reading a CSV")
	baseURL := flag.String("url", "http://localhost:8080", "Harrier base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	limit := flag.Int("limit", 10000, "Maximum documents to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	fraudRate := flag.Float64("fraud-rate", 0.05, "Fraud fraction for synthetic generation")
	seed := flag.Int64("seed", 1, "Random seed for synthetic generation")
	verbose := flag.Bool("verbose", false, "Print each document result")
	flag.Parse()

	if *csvPath == "" && *synthetic == 0 {
		fmt.Println("Usage: benchmark -csv /path/to/documents.csv [-url http://localhost:8080]")
		fmt.Println("       benchmark -synthetic 5000 [-fraud-rate 0.05]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("===============================================================")
	fmt.Println("        HARRIER BENCHMARK - Document Fraud Detection")
	fmt.Println("===============================================================")
	if *csvPath != "" {
		fmt.Printf("\nCSV File:    %s\n", *csvPath)
	} else {
		fmt.Printf("\nSynthetic:   %d documents (fraud rate %.2f, seed %d)\n", *synthetic, *fraudRate, *seed)
	}
	fmt.Printf("Harrier URL: %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Harrier not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Harrier is running:")
		fmt.Println("  go run cmd/harrier/main.go")
		os.Exit(1)
	}
	fmt.Println("Harrier is healthy")

	var docs []LabeledDocument
	var err error
	if *csvPath != "" {
		fmt.Printf("\nReading documents from %s...\n", *csvPath)
		docs, err = readDocumentsCSV(*csvPath, *limit)
		if err != nil {
			fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
			os.Exit(1)
		}
	} else {
		docs = generateSynthetic(*synthetic, *fraudRate, *seed)
	}
	fmt.Printf("Loaded %d documents\n", len(docs))

	fraudCount := 0
	for _, d := range docs {
		if d.IsFraud {
			fraudCount++
		}
	}
	fmt.Printf("  - Fraud:     %d (%.2f%%)\n", fraudCount, 100*float64(fraudCount)/float64(len(docs)))
	fmt.Printf("  - Non-fraud: %d (%.2f%%)\n", len(docs)-fraudCount, 100*float64(len(docs)-fraudCount)/float64(len(docs)))

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(docs, *baseURL, *tenantID, *workers, *verbose)
	duration := time.Since(startTime)

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

func readDocumentsCSV(path string, limit int) ([]LabeledDocument, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}

	typeIdx, fraudIdx := -1, -1
	for i, col := range header {
		switch col {
		case "type":
			typeIdx = i
		case "is_fraud":
			fraudIdx = i
		}
	}
	if typeIdx < 0 || fraudIdx < 0 {
		return nil, fmt.Errorf("CSV must have type and is_fraud columns, got %v", header)
	}

	var docs []LabeledDocument
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		fields := make(map[string]any, len(header))
		for i, col := range header {
			if i == typeIdx || i == fraudIdx || i >= len(record) || record[i] == "" {
				continue
			}
			fields[col] = record[i]
		}

		docs = append(docs, LabeledDocument{
			Type:    record[typeIdx],
			Fields:  fields,
			IsFraud: record[fraudIdx] == "1",
		})

		if limit > 0 && len(docs) >= limit {
			break
		}
	}

	return docs, nil
}

var benchPayees = []string{
	"Acme Supplies", "Northwind Traders", "Globex LLC", "Initech",
	"Stark Industries", "Wayne Enterprises", "Hooli", "Pied Piper",
}

// generateSynthetic builds a labeled mix of clean documents and documents
// carrying known fraud signatures (future dates, missing criticals,
// self-payments, round high amounts without signature).
func generateSynthetic(n int, fraudRate float64, seed int64) []LabeledDocument {
	rng := rand.New(rand.NewSource(seed))
	docs := make([]LabeledDocument, 0, n)

	for i := 0; i < n; i++ {
		payee := benchPayees[rng.Intn(len(benchPayees))]
		entity := fmt.Sprintf("Entity %03d", rng.Intn(200))

		if rng.Float64() < fraudRate {
			// One of several fraud signatures.
			fields := map[string]any{"entity_name": entity}
			switch rng.Intn(4) {
			case 0: // future-dated, missing everything else
				fields["date"] = time.Now().AddDate(0, rng.Intn(6)+1, 0).Format("2006-01-02")
			case 1: // self-payment
				fields["bank_name"] = "First National Bank"
				fields["payee"] = entity
				fields["amount"] = fmt.Sprintf("%.2f", 100+rng.Float64()*900)
				fields["date"] = time.Now().AddDate(0, 0, -rng.Intn(30)).Format("2006-01-02")
				fields["signature"] = true
			case 2: // round high amount, unsigned
				fields["bank_name"] = "First National Bank"
				fields["payee"] = payee
				fields["amount"] = fmt.Sprintf("%d000.00", rng.Intn(9)+6)
				fields["date"] = time.Now().AddDate(0, 0, -rng.Intn(30)).Format("2006-01-02")
				fields["signature"] = false
			default: // stale, unsigned, no amount
				fields["bank_name"] = "First National Bank"
				fields["payee"] = payee
				fields["date"] = time.Now().AddDate(-1, -rng.Intn(12), 0).Format("2006-01-02")
			}
			docs = append(docs, LabeledDocument{Type: "check", Fields: fields, IsFraud: true})
			continue
		}

		docs = append(docs, LabeledDocument{
			Type: "check",
			Fields: map[string]any{
				"bank_name":   "First National Bank",
				"payee":       payee,
				"amount":      fmt.Sprintf("%.2f", 50+rng.Float64()*2400),
				"date":        time.Now().AddDate(0, 0, -rng.Intn(90)).Format("2006-01-02"),
				"signature":   true,
				"entity_name": entity,
			},
			IsFraud: false,
		})
	}

	return docs
}

func runBenchmark(docs []LabeledDocument, baseURL, tenantID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan LabeledDocument, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for doc := range work {
				start := time.Now()
				result, err := evaluateDocument(client, baseURL, tenantID, doc)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %v\n", err)
					}
					continue
				}

				if doc.IsFraud {
					atomic.AddInt64(&metrics.TotalFraud, 1)
				} else {
					atomic.AddInt64(&metrics.TotalNonFraud, 1)
				}

				// Anything short of an approval counts as flagged.
				predicted := result.Recommendation != "APPROVE"
				actual := doc.IsFraud

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
					status := "ok  "
					if predicted != actual {
						status = "MISS"
					}
					fmt.Printf("%s type=%-11s fraud=%-5v harrier=%-8s score=%.1f\n",
						status, doc.Type, doc.IsFraud, result.Recommendation, result.OverallScore)
				}
			}
		}()
	}

	for _, doc := range docs {
		work <- doc
	}
	close(work)

	wg.Wait()

	return metrics
}

func evaluateDocument(client *http.Client, baseURL, tenantID string, doc LabeledDocument) (*EvaluateResponse, error) {
	body, err := json.Marshal(EvaluateRequest{Type: doc.Type, Fields: doc.Fields})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/documents/evaluate", bytes.NewReader(body))
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

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result EvaluateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n===============================================================")
	fmt.Println("                     BENCHMARK RESULTS")
	fmt.Println("===============================================================")

	fmt.Printf("\nDATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Fraud:      %d\n", m.TotalFraud)
	fmt.Printf("   Total Non-Fraud:  %d\n", m.TotalNonFraud)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\nCONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                  FLAGGED    APPROVED")
	fmt.Printf("   Actual  F   %9d  %9d   (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Printf("          NF   %9d  %9d   (FP, TN)\n", m.FalsePositives, m.TrueNegatives)

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

	fmt.Printf("\nDETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of flagged, how many were actual fraud)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of fraud, how many did we catch)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)
	fmt.Printf("   Accuracy:   %.4f  (overall correct predictions)\n", accuracy)

	fmt.Printf("\nDETECTION ANALYSIS\n")
	if m.TotalFraud > 0 {
		detectionRate := float64(m.TruePositives) / float64(m.TotalFraud) * 100
		missRate := float64(m.FalseNegatives) / float64(m.TotalFraud) * 100
		fmt.Printf("   Fraud Detected:    %d / %d (%.2f%%)\n", m.TruePositives, m.TotalFraud, detectionRate)
		fmt.Printf("   Fraud Missed:      %d / %d (%.2f%%)\n", m.FalseNegatives, m.TotalFraud, missRate)
	}
	if m.TotalNonFraud > 0 {
		falseAlarmRate := float64(m.FalsePositives) / float64(m.TotalNonFraud) * 100
		fmt.Printf("   False Alarms:      %d / %d (%.2f%%)\n", m.FalsePositives, m.TotalNonFraud, falseAlarmRate)
	}

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		dps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f docs/sec\n", dps)
	}

	fmt.Println()
}
