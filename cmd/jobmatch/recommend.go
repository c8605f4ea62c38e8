package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/app"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/export"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/ranker"
)

var recommendFlags struct {
	postings string
	query    string
	location string
	limit    int
	csvPath  string
	noCache  bool
}

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Rank postings from a file for one query and print or export them",
	RunE:  runRecommend,
}

func init() {
	f := recommendCmd.Flags()
	f.StringVar(&recommendFlags.postings, "postings", "", "postings file (JSON array, JSONL or JSearch response; .gz, .zst and .lz4 accepted; - for stdin)")
	f.StringVarP(&recommendFlags.query, "query", "q", "", "free-text description of the wanted job")
	f.StringVarP(&recommendFlags.location, "location", "l", "", "case-insensitive location filter")
	f.IntVarP(&recommendFlags.limit, "limit", "n", 0, "number of results (defaults to recommend.defaultLimit)")
	f.StringVar(&recommendFlags.csvPath, "csv", "", "also write results as CSV to this path (- for stdout)")
	f.BoolVar(&recommendFlags.noCache, "no-cache", false, "skip the Redis embedding cache")
	_ = recommendCmd.MarkFlagRequired("query")
	rootCmd.AddCommand(recommendCmd)
}

func runRecommend(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if recommendFlags.postings != "" {
		cfg.Source.Kind = "file"
		cfg.Source.Path = recommendFlags.postings
	}
	limit := recommendFlags.limit
	if limit <= 0 {
		limit = cfg.Recommend.DefaultLimit
	}
	limit = min(limit, cfg.Recommend.MaxResults)

	ctx := cmd.Context()
	engine, err := app.Build(ctx, cfg, app.Options{SkipRedis: recommendFlags.noCache})
	if err != nil {
		return err
	}
	defer engine.Close()

	if _, err := engine.LoadConfigured(ctx); err != nil {
		return err
	}
	results, err := engine.Service.Recommend(ctx, recommendFlags.query, recommendFlags.location, limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printResults(out, results)
	if recommendFlags.csvPath == "" {
		return nil
	}
	if recommendFlags.csvPath == "-" {
		return export.WriteCSV(out, results)
	}
	f, err := os.Create(recommendFlags.csvPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", recommendFlags.csvPath, err)
	}
	if err := export.WriteCSV(f, results); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nwrote %d results to %s\n", len(results), recommendFlags.csvPath)
	return nil
}

func printResults(w io.Writer, results []ranker.RankedResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "no matching postings")
		return
	}
	for _, r := range results {
		p := r.Posting
		fmt.Fprintf(w, "%2d. %s", r.Rank, p.Title)
		if p.Company != "" {
			fmt.Fprintf(w, " at %s", p.Company)
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "    score %.4f (%.2f%%)  %s  posted %s\n",
			r.Score, export.MatchPercent(r.Score), p.Location, export.FormatDate(p.PostedAt))
		if p.URL != "" {
			fmt.Fprintf(w, "    %s\n", p.URL)
		}
	}
}
