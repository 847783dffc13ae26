// Command loadtest drives concurrent traffic at a running searcher and
// prints throughput, latency percentiles and a status-code breakdown.
//
// Queries come from a TREC topics file when --topics is given, otherwise
// from a small built-in list. The expand endpoint runs three retrievals per
// request, so it is the interesting one to measure; --endpoint=search gives
// the plain-ranking baseline.
//
// Usage:
//
//	loadtest --url http://localhost:8080 --endpoint expand --topics topics.301-350 -n 16 -d 1m
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/trec"
)

var defaultQueries = []string{
	"hubble telescope achievements",
	"international organized crime",
	"poliomyelitis and post-polio",
	"airbus subsidies",
	"counterfeiting money",
	"cult lifestyles",
	"nobel prize winners",
	"tropical storms",
	"alternative medicine",
	"black bear attacks",
}

func main() {
	baseURL := pflag.String("url", "http://localhost:8080", "base URL of the search service")
	endpoint := pflag.String("endpoint", "expand", "endpoint to exercise: search or expand")
	topicsPath := pflag.StringP("topics", "t", "", "TREC topics file to draw queries from")
	fields := pflag.StringSlice("fields", []string{trec.FieldTitle}, "topic fields joined into each query")
	concurrency := pflag.IntP("concurrency", "n", 10, "number of concurrent workers")
	duration := pflag.DurationP("duration", "d", 30*time.Second, "test duration")
	limit := pflag.Int("limit", 10, "results requested per query")
	pflag.Parse()

	if *endpoint != "search" && *endpoint != "expand" {
		fmt.Fprintf(os.Stderr, "unknown endpoint %q\n", *endpoint)
		os.Exit(2)
	}
	queries := defaultQueries
	if *topicsPath != "" {
		topics, err := trec.ReadTopics(*topicsPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "reading topics: %v\n", err)
			os.Exit(1)
		}
		queries = topicQueries(topics, *fields)
	}
	if len(queries) == 0 {
		fmt.Fprintln(os.Stderr, "no queries to send")
		os.Exit(1)
	}

	target := fmt.Sprintf("%s/api/v1/%s", *baseURL, *endpoint)
	fmt.Println("=== Causal Feedback Search Load Test ===")
	fmt.Printf("Target:      %s\n", target)
	fmt.Printf("Concurrency: %d\n", *concurrency)
	fmt.Printf("Duration:    %s\n", *duration)
	fmt.Printf("Queries:     %d unique\n", len(queries))
	fmt.Println()

	stats := run(target, queries, *limit, *concurrency, *duration)
	stats.Report(os.Stdout, *duration)
	if stats.Total() == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func topicQueries(topics []trec.Topic, fields []string) []string {
	queries := make([]string, 0, len(topics))
	for _, t := range topics {
		if q := t.Query(fields...); q != "" {
			queries = append(queries, q)
		}
	}
	return queries
}

func requestURL(target, query string, limit int) string {
	v := url.Values{}
	v.Set("q", query)
	v.Set("limit", fmt.Sprint(limit))
	return target + "?" + v.Encode()
}

func run(target string, queries []string, limit, concurrency int, duration time.Duration) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        concurrency * 2,
			MaxIdleConnsPerHost: concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < concurrency; w++ {
		g.Go(func() error {
			for i := w; ctx.Err() == nil; i++ {
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL(target, queries[i%len(queries)], limit), nil)
				if err != nil {
					return err
				}
				start := time.Now()
				resp, err := client.Do(req)
				elapsed := time.Since(start)
				if err != nil {
					if ctx.Err() == nil {
						stats.RecordRequest(elapsed, 0, err)
					}
					continue
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				stats.RecordRequest(elapsed, resp.StatusCode, nil)
			}
			return nil
		})
	}

	fmt.Print("Running")
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	if err := g.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "\nworker failed: %v\n", err)
	}
	fmt.Println(" done!")
	fmt.Println()
	return stats
}
