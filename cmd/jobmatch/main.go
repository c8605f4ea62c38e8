// Command jobmatch serves and queries the semantic job-matching engine.
//
// Usage:
//
//	jobmatch serve [--config configs/development.yaml]
//	jobmatch recommend --postings jobs.json --query "backend python" [--location remote] [--csv out.csv]
//	jobmatch cache purge
//	jobmatch analytics
//	jobmatch version
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
