package source

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/index"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// FileSource reads postings from a JSON file. The file may hold a JSON
// array, JSON lines, or job-search API envelopes of the form
// {"data": [...]}, in any mix. Files ending in .gz, .zst or .lz4 are
// decompressed. The path "-" reads standard input.
type FileSource struct {
	path   string
	logger *slog.Logger
}

func NewFileSource(path string) *FileSource {
	return &FileSource{
		path:   path,
		logger: slog.Default().With("component", "file-source"),
	}
}

func (s *FileSource) Name() string { return "file:" + s.path }

func (s *FileSource) Load(ctx context.Context) ([]index.PostingData, error) {
	var f io.Reader = os.Stdin
	if s.path != "-" {
		file, err := os.Open(s.path)
		if err != nil {
			return nil, fmt.Errorf("opening postings file: %w", err)
		}
		defer file.Close()
		f = file
	}

	r, closeFn, err := decompress(s.path, f)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", s.path, err)
	}
	defer closeFn()

	out, err := s.decode(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.path, err)
	}
	s.logger.Info("postings loaded", "path", s.path, "count", len(out))
	return out, nil
}

func (s *FileSource) decode(ctx context.Context, r io.Reader) ([]index.PostingData, error) {
	dec := json.NewDecoder(bufio.NewReader(r))
	var out []index.PostingData
	for n := 0; ; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return nil, fmt.Errorf("value %d: %w", n+1, err)
		}
		recs, err := parseValue(raw)
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", n+1, err)
		}
		for _, rec := range recs {
			if d, ok := s.toData(rec); ok {
				out = append(out, d)
			}
		}
	}
}

func parseValue(raw json.RawMessage) ([]record, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var recs []record
		if err := json.Unmarshal(raw, &recs); err != nil {
			return nil, err
		}
		return recs, nil
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	if rec.Data != nil {
		return rec.Data, nil
	}
	return []record{rec}, nil
}

// record accepts both the engine's own field names and the job-search API
// names.
type record struct {
	ID           string `json:"id"`
	JobID        string `json:"job_id"`
	Title        string `json:"title"`
	JobTitle     string `json:"job_title"`
	Description  string `json:"description"`
	JobDesc      string `json:"job_description"`
	Location     string `json:"location"`
	JobCity      string `json:"job_city"`
	JobState     string `json:"job_state"`
	JobCountry   string `json:"job_country"`
	Company      string `json:"company"`
	EmployerName string `json:"employer_name"`
	URL          string `json:"url"`
	ApplyLink    string `json:"job_apply_link"`
	PostedAt     string `json:"posted_at"`
	JobPostedAt  string `json:"job_posted_at_datetime_utc"`

	Data []record `json:"data"`
}

func (s *FileSource) toData(r record) (index.PostingData, bool) {
	d := index.PostingData{
		ID:          first(r.ID, r.JobID),
		Title:       first(r.Title, r.JobTitle),
		Description: first(r.Description, r.JobDesc),
		Location:    first(r.Location, joinNonEmpty(", ", r.JobCity, r.JobState, r.JobCountry)),
		Company:     first(r.Company, r.EmployerName),
		URL:         first(r.URL, r.ApplyLink),
	}
	if d.Title == "" && d.Description == "" && d.ID == "" {
		return d, false
	}
	posted, err := parseTime(first(r.PostedAt, r.JobPostedAt))
	if err != nil {
		s.logger.Warn("ignoring posted date", "id", d.ID, "error", err)
	}
	d.PostedAt = posted
	return d, true
}

func first(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func joinNonEmpty(sep string, vals ...string) string {
	parts := make([]string, 0, len(vals))
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, sep)
}

func decompress(path string, r io.Reader) (io.Reader, func(), error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return zr, func() { zr.Close() }, nil
	case ".zst":
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return zr, zr.Close, nil
	case ".lz4":
		return lz4.NewReader(r), func() {}, nil
	default:
		return r, func() {}, nil
	}
}
