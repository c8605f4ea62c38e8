// Package export writes recommendation shortlists in formats people open in
// spreadsheets.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/ranker"
)

// DateLayout is the day-month-year layout used for posted dates.
const DateLayout = "02 Jan 2006"

var header = []string{"Title", "Company", "Location", "Score", "Match %", "Posted", "Link"}

// WriteCSV writes results in rank order with a header row.
func WriteCSV(w io.Writer, results []ranker.RankedResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, r := range results {
		p := r.Posting
		row := []string{
			p.Title,
			p.Company,
			p.Location,
			strconv.FormatFloat(r.Score, 'f', 4, 64),
			strconv.FormatFloat(MatchPercent(r.Score), 'f', 2, 64),
			FormatDate(p.PostedAt),
			p.URL,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing csv row for %s: %w", p.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// MatchPercent converts a cosine score to a percentage rounded to two
// decimals.
func MatchPercent(score float64) float64 {
	return math.Round(score*100*100) / 100
}

// FormatDate renders t with DateLayout, or "N/A" for the zero time.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return "N/A"
	}
	return t.UTC().Format(DateLayout)
}
