package source

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/postgres"
	"github.com/lib/pq"
)

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// PostgresSource reads postings from a table with the columns id, title,
// description, location, company, url and posted_at. Only id and title must
// be non-null.
type PostgresSource struct {
	db     *postgres.Client
	table  string
	logger *slog.Logger
}

// NewPostgresSource validates table, which may be schema-qualified.
func NewPostgresSource(db *postgres.Client, table string) (*PostgresSource, error) {
	quoted, err := quoteTable(table)
	if err != nil {
		return nil, err
	}
	return &PostgresSource{
		db:     db,
		table:  quoted,
		logger: slog.Default().With("component", "postgres-source"),
	}, nil
}

func (s *PostgresSource) Name() string { return "postgres:" + s.table }

func (s *PostgresSource) Load(ctx context.Context) ([]index.PostingData, error) {
	var out []index.PostingData
	err := s.db.InReadTx(ctx, func(tx *sql.Tx) error {
		var count int
		if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM `+s.table).Scan(&count); err != nil {
			return fmt.Errorf("counting postings: %w", err)
		}
		out = make([]index.PostingData, 0, count)

		rows, err := tx.QueryContext(ctx,
			`SELECT id, title,
			        COALESCE(description, ''), COALESCE(location, ''),
			        COALESCE(company, ''), COALESCE(url, ''), posted_at
			 FROM `+s.table+` ORDER BY id`)
		if err != nil {
			return fmt.Errorf("querying postings: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				d      index.PostingData
				posted sql.NullTime
			)
			if err := rows.Scan(&d.ID, &d.Title, &d.Description, &d.Location, &d.Company, &d.URL, &posted); err != nil {
				return fmt.Errorf("scanning posting row: %w", err)
			}
			if posted.Valid {
				d.PostedAt = posted.Time.UTC()
			}
			out = append(out, d)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("postings loaded", "table", s.table, "count", len(out))
	return out, nil
}

// quoteTable quotes each part of a possibly schema-qualified table name.
func quoteTable(table string) (string, error) {
	if !tableNameRe.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	parts := strings.Split(table, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, "."), nil
}
