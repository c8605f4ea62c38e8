package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
)

var loadtestFlags struct {
	baseURL     string
	concurrency int
	duration    time.Duration
	location    string
	limit       int
}

var loadQueries = []string{
	"backend developer skilled in python",
	"senior golang engineer distributed systems",
	"data engineer spark pipelines",
	"machine learning engineer nlp",
	"frontend developer react typescript",
	"devops engineer kubernetes terraform",
	"site reliability engineer on call",
	"java spring microservices",
	"mobile developer ios swift",
	"product analyst sql dashboards",
	"security engineer cloud iam",
	"embedded c firmware engineer",
}

var loadtestCmd = &cobra.Command{
	Use:   "loadtest",
	Short: "Drive POST /api/v1/recommend with concurrent workers and report latency",
	RunE: func(cmd *cobra.Command, _ []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "=== Job Match Load Test ===")
		fmt.Fprintf(out, "Target:      %s\n", loadtestFlags.baseURL)
		fmt.Fprintf(out, "Concurrency: %d\n", loadtestFlags.concurrency)
		fmt.Fprintf(out, "Duration:    %s\n", loadtestFlags.duration)
		fmt.Fprintf(out, "Queries:     %d unique\n\n", len(loadQueries))

		ctx, cancel := context.WithTimeout(cmd.Context(), loadtestFlags.duration)
		defer cancel()
		stats := runLoad(ctx, loadtestFlags.baseURL, loadtestFlags.concurrency, loadtestFlags.location, loadtestFlags.limit)
		stats.report(out, loadtestFlags.duration)
		if stats.total.Load() == 0 {
			return fmt.Errorf("no requests completed; is %s up?", loadtestFlags.baseURL)
		}
		return nil
	},
}

func init() {
	f := loadtestCmd.Flags()
	f.StringVar(&loadtestFlags.baseURL, "url", "http://localhost:8080", "base URL of a jobmatch serve instance")
	f.IntVar(&loadtestFlags.concurrency, "concurrency", 10, "number of concurrent workers")
	f.DurationVar(&loadtestFlags.duration, "duration", 30*time.Second, "test duration")
	f.StringVar(&loadtestFlags.location, "location", "", "location filter sent with every query")
	f.IntVar(&loadtestFlags.limit, "limit", 10, "limit sent with every query")
	rootCmd.AddCommand(loadtestCmd)
}

type loadStats struct {
	total   atomic.Int64
	success atomic.Int64
	failed  atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration
	codes     map[int]int64
}

func (s *loadStats) record(took time.Duration, code int, err error) {
	s.total.Add(1)
	if err != nil {
		s.failed.Add(1)
		return
	}
	if code >= 200 && code < 300 {
		s.success.Add(1)
	} else {
		s.failed.Add(1)
	}
	s.mu.Lock()
	s.latencies = append(s.latencies, took)
	s.codes[code]++
	s.mu.Unlock()
}

func runLoad(ctx context.Context, baseURL string, workers int, location string, limit int) *loadStats {
	stats := &loadStats{codes: make(map[int]int64)}
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        workers * 2,
			MaxIdleConnsPerHost: workers * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	endpoint := baseURL + "/api/v1/recommend"

	var wg sync.WaitGroup
	for w := range workers {
		wg.Go(func() {
			for i := w; ctx.Err() == nil; i++ {
				body, _ := json.Marshal(map[string]any{
					"query_text": loadQueries[i%len(loadQueries)],
					"location":   location,
					"limit":      limit,
				})
				req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
				if err != nil {
					stats.record(0, 0, err)
					return
				}
				req.Header.Set("Content-Type", "application/json")

				start := time.Now()
				resp, err := client.Do(req)
				took := time.Since(start)
				if err != nil {
					if ctx.Err() == nil {
						stats.record(took, 0, err)
					}
					continue
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				stats.record(took, resp.StatusCode, nil)
			}
		})
	}
	wg.Wait()
	return stats
}

func (s *loadStats) report(w io.Writer, duration time.Duration) {
	total := s.total.Load()
	failed := s.failed.Load()
	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Total Requests:  %d\n", total)
	fmt.Fprintf(w, "Successful:      %d\n", s.success.Load())
	fmt.Fprintf(w, "Errors:          %d\n", failed)
	if total > 0 {
		fmt.Fprintf(w, "Error Rate:      %.2f%%\n", float64(failed)/float64(total)*100)
		fmt.Fprintf(w, "Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	latencies := slices.Clone(s.latencies)
	slices.Sort(latencies)
	if n := len(latencies); n > 0 {
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(n)
		var sq float64
		for _, l := range latencies {
			d := float64(l - avg)
			sq += d * d
		}
		fmt.Fprintln(w, "\n=== Latency ===")
		fmt.Fprintf(w, "Min:    %s\n", latencies[0])
		fmt.Fprintf(w, "Avg:    %s\n", avg)
		for _, p := range []float64{50, 90, 95, 99} {
			fmt.Fprintf(w, "P%-2.0f:    %s\n", p, latencyPercentile(latencies, p))
		}
		fmt.Fprintf(w, "Max:    %s\n", latencies[n-1])
		fmt.Fprintf(w, "StdDev: %s\n", time.Duration(math.Sqrt(sq/float64(n))))
	}

	fmt.Fprintln(w, "\n=== Status Codes ===")
	codes := make([]int, 0, len(s.codes))
	for code := range s.codes {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "  %d: %d\n", code, s.codes[code])
	}
}

// latencyPercentile uses the nearest-rank method on sorted.
func latencyPercentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
