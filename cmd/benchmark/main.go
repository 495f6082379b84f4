// Benchmark tool for load-testing the riskd scoring endpoint.
//
// Usage:
//   go run cmd/benchmark/main.go -url http://localhost:8080 -n 5000 -workers 10
//
// This tool:
//  1. Generates a mixed stream of quiet and risky synthetic transactions
//  2. Sends each one to POST /api/v1/transactions/score with N workers
//  3. Reports decision distribution, latency percentiles, and throughput
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// ScoreRequest matches the riskd scoring API contract.
type ScoreRequest struct {
	TransactionID   string  `json:"transaction_id"`
	Email           string  `json:"email"`
	CardBIN         string  `json:"card_bin"`
	CardLastFour    string  `json:"card_last_four"`
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
	BillingCountry  string  `json:"billing_country"`
	ShippingCountry string  `json:"shipping_country"`
	IPCountry       string  `json:"ip_country"`
	ProductCategory string  `json:"product_category"`
	CustomerID      string  `json:"customer_id,omitempty"`
	IsFirstPurchase bool    `json:"is_first_purchase"`
}

// ScoreResponse is the assessment riskd returns.
type ScoreResponse struct {
	TransactionID     string `json:"transaction_id"`
	RiskScore         int    `json:"risk_score"`
	RiskLevel         string `json:"risk_level"`
	RecommendedAction string `json:"recommended_action"`
	ScoredAt          string `json:"scored_at"`
}

// benchTransaction is a generated request plus the profile it was drawn from.
type benchTransaction struct {
	Request ScoreRequest
	Risky   bool
}

// Metrics tracks benchmark results.
type Metrics struct {
	Approved     int64
	ManualReview int64
	Rejected     int64

	LevelLow      int64
	LevelMedium   int64
	LevelHigh     int64
	LevelCritical int64

	TotalProcessed int64
	TotalRisky     int64
	TotalQuiet     int64
	TotalErrors    int64

	FlaggedRisky int64 // risky profile, action != APPROVE
	FlaggedQuiet int64 // quiet profile, action != APPROVE

	mu        sync.Mutex
	latencies []time.Duration
}

func (m *Metrics) recordLatency(d time.Duration) {
	m.mu.Lock()
	m.latencies = append(m.latencies, d)
	m.mu.Unlock()
}

func main() {
	// Parse flags
	baseURL := flag.String("url", "http://localhost:8080", "riskd base URL")
	count := flag.Int("n", 5000, "Number of transactions to send")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each transaction result")
	flag.Parse()

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║            RISKD BENCHMARK - Synthetic Order Stream           ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nriskd URL:    %s\n", *baseURL)
	fmt.Printf("Transactions: %d\n", *count)
	fmt.Printf("Workers:      %d\n", *workers)
	fmt.Println()

	// Check riskd is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: riskd not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure riskd is running:")
		fmt.Println("  go run cmd/riskd/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ riskd is healthy")

	// Generate traffic
	fmt.Printf("\nGenerating %d transactions (~20%% risky profile)...\n", *count)
	transactions := generateTraffic(*count)
	riskyCount := 0
	for _, tx := range transactions {
		if tx.Risky {
			riskyCount++
		}
	}
	fmt.Printf("✓ Generated %d transactions\n", len(transactions))
	fmt.Printf("  - Risky: %d (%.2f%%)\n", riskyCount, 100*float64(riskyCount)/float64(len(transactions)))
	fmt.Printf("  - Quiet: %d (%.2f%%)\n", len(transactions)-riskyCount, 100*float64(len(transactions)-riskyCount)/float64(len(transactions)))

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(transactions, *baseURL, *workers, *verbose)
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

var (
	quietFirstNames = []string{"maria", "james", "sofia", "david", "emma", "lucas", "olivia", "noah", "ava", "liam"}
	quietLastNames  = []string{"santos", "miller", "garcia", "chen", "patel", "kim", "novak", "silva", "brown", "lopez"}
	quietDomains    = []string{"gmail.com", "yahoo.com", "outlook.com", "hotmail.com", "icloud.com"}
	quietBINs       = []string{"411111", "424242", "401288", "455673"}
	quietCategories = []string{"apparel", "home_goods"}

	riskyDomains = []string{"temp-mail.org", "guerrillamail.com", "mailinator.com"}
	riskyBINs    = []string{"510510", "340000"}
	countries    = []string{"BR", "MX", "CO"}
)

// generateTraffic builds a shuffled mix of two profiles. Quiet orders look
// like repeat customers buying apparel; risky orders combine the signals the
// scorer is designed to catch (disposable email, cross-border, high-value
// first purchase). Risky emails are drawn from a small pool so velocity
// accumulates over the run.
func generateTraffic(count int) []benchTransaction {
	runStamp := time.Now().UnixNano()
	rng := rand.New(rand.NewSource(runStamp))

	// Small pool of repeat risky identities for the velocity signal.
	riskyEmails := make([]string, 10)
	for i := range riskyEmails {
		riskyEmails[i] = fmt.Sprintf("burst%d_%d@%s", i, runStamp%100000, riskyDomains[i%len(riskyDomains)])
	}

	transactions := make([]benchTransaction, 0, count)
	for i := 0; i < count; i++ {
		id := fmt.Sprintf("bench_%d_%05d", runStamp%100000, i)
		risky := rng.Float64() < 0.20

		var req ScoreRequest
		if risky {
			billing := countries[rng.Intn(len(countries))]
			shipping := countries[rng.Intn(len(countries))]
			req = ScoreRequest{
				TransactionID:   id,
				Email:           riskyEmails[rng.Intn(len(riskyEmails))],
				CardBIN:         riskyBINs[rng.Intn(len(riskyBINs))],
				CardLastFour:    fmt.Sprintf("%04d", rng.Intn(10000)),
				Amount:          400 + rng.Float64()*500,
				Currency:        "USD",
				BillingCountry:  billing,
				ShippingCountry: shipping,
				IPCountry:       "US",
				ProductCategory: "electronics",
				IsFirstPurchase: true,
			}
		} else {
			name := fmt.Sprintf("%s.%s%d", quietFirstNames[rng.Intn(len(quietFirstNames))],
				quietLastNames[rng.Intn(len(quietLastNames))], rng.Intn(1000))
			req = ScoreRequest{
				TransactionID:   id,
				Email:           fmt.Sprintf("%s@%s", name, quietDomains[rng.Intn(len(quietDomains))]),
				CardBIN:         quietBINs[rng.Intn(len(quietBINs))],
				CardLastFour:    fmt.Sprintf("%04d", rng.Intn(10000)),
				Amount:          40 + rng.Float64()*140,
				Currency:        "USD",
				BillingCountry:  "US",
				ShippingCountry: "US",
				IPCountry:       "US",
				ProductCategory: quietCategories[rng.Intn(len(quietCategories))],
				CustomerID:      fmt.Sprintf("cust_bench_%04d", rng.Intn(2000)),
				IsFirstPurchase: rng.Float64() < 0.25,
			}
		}

		transactions = append(transactions, benchTransaction{Request: req, Risky: risky})
	}

	return transactions
}

func runBenchmark(transactions []benchTransaction, baseURL string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	// Create work channel
	work := make(chan benchTransaction, 100)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for tx := range work {
				start := time.Now()
				result, err := scoreTransaction(client, baseURL, tx.Request)
				elapsed := time.Since(start)

				metrics.recordLatency(elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", tx.Request.TransactionID, err)
					}
					continue
				}

				if tx.Risky {
					atomic.AddInt64(&metrics.TotalRisky, 1)
				} else {
					atomic.AddInt64(&metrics.TotalQuiet, 1)
				}

				flagged := result.RecommendedAction != "APPROVE"
				switch result.RecommendedAction {
				case "APPROVE":
					atomic.AddInt64(&metrics.Approved, 1)
				case "MANUAL_REVIEW":
					atomic.AddInt64(&metrics.ManualReview, 1)
				case "REJECT":
					atomic.AddInt64(&metrics.Rejected, 1)
				}

				switch result.RiskLevel {
				case "LOW":
					atomic.AddInt64(&metrics.LevelLow, 1)
				case "MEDIUM":
					atomic.AddInt64(&metrics.LevelMedium, 1)
				case "HIGH":
					atomic.AddInt64(&metrics.LevelHigh, 1)
				case "CRITICAL":
					atomic.AddInt64(&metrics.LevelCritical, 1)
				}

				if flagged && tx.Risky {
					atomic.AddInt64(&metrics.FlaggedRisky, 1)
				} else if flagged && !tx.Risky {
					atomic.AddInt64(&metrics.FlaggedQuiet, 1)
				}

				if verbose {
					profile := "quiet"
					if tx.Risky {
						profile = "risky"
					}
					fmt.Printf("%-18s | %-11s | $%8.2f | %-5s | %-8s (%3d) %-13s | %v\n",
						tx.Request.TransactionID,
						tx.Request.ProductCategory,
						tx.Request.Amount,
						profile,
						result.RiskLevel,
						result.RiskScore,
						result.RecommendedAction,
						elapsed.Round(time.Millisecond),
					)
				}
			}
		}()
	}

	// Send work
	for _, tx := range transactions {
		work <- tx
	}
	close(work)

	// Wait for completion
	wg.Wait()

	return metrics
}

func scoreTransaction(client *http.Client, baseURL string, req ScoreRequest) (*ScoreResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/api/v1/transactions/score", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result ScoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

// percentile returns the given percentile from a sorted latency slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 TRAFFIC\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Risky Profile:    %d\n", m.TotalRisky)
	fmt.Printf("   Quiet Profile:    %d\n", m.TotalQuiet)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	scored := m.Approved + m.ManualReview + m.Rejected
	pct := func(n int64) float64 {
		if scored == 0 {
			return 0
		}
		return 100 * float64(n) / float64(scored)
	}

	fmt.Printf("\n📈 DECISION DISTRIBUTION\n")
	fmt.Printf("   APPROVE:        %8d  (%.2f%%)\n", m.Approved, pct(m.Approved))
	fmt.Printf("   MANUAL_REVIEW:  %8d  (%.2f%%)\n", m.ManualReview, pct(m.ManualReview))
	fmt.Printf("   REJECT:         %8d  (%.2f%%)\n", m.Rejected, pct(m.Rejected))
	fmt.Printf("\n   LOW: %d  MEDIUM: %d  HIGH: %d  CRITICAL: %d\n",
		m.LevelLow, m.LevelMedium, m.LevelHigh, m.LevelCritical)

	fmt.Printf("\n🔍 PROFILE ANALYSIS\n")
	if m.TotalRisky > 0 {
		caughtRate := 100 * float64(m.FlaggedRisky) / float64(m.TotalRisky)
		fmt.Printf("   Risky Flagged:   %d / %d (%.2f%%)\n", m.FlaggedRisky, m.TotalRisky, caughtRate)
	}
	if m.TotalQuiet > 0 {
		falseAlarmRate := 100 * float64(m.FlaggedQuiet) / float64(m.TotalQuiet)
		fmt.Printf("   Quiet Flagged:   %d / %d (%.2f%%)  (false alarms)\n", m.FlaggedQuiet, m.TotalQuiet, falseAlarmRate)
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))

	m.mu.Lock()
	latencies := make([]time.Duration, len(m.latencies))
	copy(latencies, m.latencies)
	m.mu.Unlock()
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	if len(latencies) > 0 {
		var sum time.Duration
		for _, d := range latencies {
			sum += d
		}
		avg := sum / time.Duration(len(latencies))
		tps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %v\n", avg.Round(time.Microsecond))
		fmt.Printf("   p50 Latency:      %v\n", percentile(latencies, 0.50).Round(time.Microsecond))
		fmt.Printf("   p95 Latency:      %v\n", percentile(latencies, 0.95).Round(time.Microsecond))
		fmt.Printf("   p99 Latency:      %v\n", percentile(latencies, 0.99).Round(time.Microsecond))
		fmt.Printf("   Throughput:       %.2f tx/sec\n", tps)
	}

	// Interpretation
	fmt.Printf("\n💡 INTERPRETATION\n")
	if m.TotalRisky > 0 {
		caughtRate := float64(m.FlaggedRisky) / float64(m.TotalRisky)
		if caughtRate >= 0.9 {
			fmt.Println("   ✅ Excellent catch rate on risky profiles")
		} else if caughtRate >= 0.7 {
			fmt.Println("   ⚠️  Good catch rate - some risky orders slip through")
		} else {
			fmt.Println("   ❌ Low catch rate - tune rules or signal weights")
		}
	}
	if m.TotalQuiet > 0 {
		falseAlarmRate := float64(m.FlaggedQuiet) / float64(m.TotalQuiet)
		if falseAlarmRate <= 0.05 {
			fmt.Println("   ✅ False alarm rate is low - reviews stay manageable")
		} else if falseAlarmRate <= 0.15 {
			fmt.Println("   ⚠️  Noticeable false alarms - review queue will grow")
		} else {
			fmt.Println("   ❌ High false alarm rate - quiet orders are being flagged")
		}
	}

	fmt.Println()
}
