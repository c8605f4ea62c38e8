// Package source loads raw posting records at startup from a file or a
// PostgreSQL table.
package source

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/postgres"
)

// Source yields unvalidated posting records; the index validates them.
type Source interface {
	Load(ctx context.Context) ([]index.PostingData, error)
	Name() string
}

// Open returns the source selected by cfg.Kind, or nil for "none". db is
// only used, and must be non-nil, for the postgres kind.
func Open(cfg config.SourceConfig, db *postgres.Client) (Source, error) {
	switch cfg.Kind {
	case "", "none":
		return nil, nil
	case "file":
		return NewFileSource(cfg.Path), nil
	case "postgres":
		if db == nil {
			return nil, fmt.Errorf("postgres source requires a database connection")
		}
		src, err := NewPostgresSource(db, cfg.Table)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Kind)
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// parseTime accepts RFC 3339, naive ISO 8601 timestamps (read as UTC) and
// plain dates. Blank input is the zero time.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
