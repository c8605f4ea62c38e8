package source

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/config"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const arrayDoc = `[
  {"id": "a", "title": "Python backend engineer", "description": "Django APIs", "location": "Remote", "posted_at": "2025-08-27T10:00:00Z"},
  {"id": "b", "title": "Java engineer", "location": "Onsite-NYC"}
]`

const jsonlDoc = `{"id": "a", "title": "Python backend engineer"}
{"id": "b", "title": "Java engineer", "posted_at": "2025-08-27"}
`

const envelopeDoc = `{"status": "OK", "data": [
  {"job_id": "j1", "job_title": "Data analyst", "job_description": "SQL and dashboards",
   "job_city": "Chennai", "job_state": "Tamil Nadu", "job_country": "IN",
   "employer_name": "Acme", "job_apply_link": "https://example.com/apply",
   "job_posted_at_datetime_utc": "2025-08-27T00:00:00.000Z"}
]}`

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestFileSourceArray(t *testing.T) {
	got, err := NewFileSource(writeFile(t, "postings.json", []byte(arrayDoc))).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "Django APIs", got[0].Description)
	assert.Equal(t, time.Date(2025, 8, 27, 10, 0, 0, 0, time.UTC), got[0].PostedAt)
	assert.True(t, got[1].PostedAt.IsZero())
}

func TestFileSourceJSONLines(t *testing.T) {
	got, err := NewFileSource(writeFile(t, "postings.jsonl", []byte(jsonlDoc))).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Java engineer", got[1].Title)
	assert.Equal(t, time.Date(2025, 8, 27, 0, 0, 0, 0, time.UTC), got[1].PostedAt)
}

func TestFileSourceAPIEnvelope(t *testing.T) {
	got, err := NewFileSource(writeFile(t, "search.json", []byte(envelopeDoc))).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	d := got[0]
	assert.Equal(t, "j1", d.ID)
	assert.Equal(t, "Data analyst", d.Title)
	assert.Equal(t, "Chennai, Tamil Nadu, IN", d.Location)
	assert.Equal(t, "Acme", d.Company)
	assert.Equal(t, "https://example.com/apply", d.URL)
	assert.Equal(t, 2025, d.PostedAt.Year())
}

func TestFileSourceCompressed(t *testing.T) {
	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	_, err := zw.Write([]byte(arrayDoc))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	got, err := NewFileSource(writeFile(t, "postings.json.gz", gz.Bytes())).Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 2)

	var zs bytes.Buffer
	enc, err := zstd.NewWriter(&zs)
	require.NoError(t, err)
	_, err = enc.Write([]byte(jsonlDoc))
	require.NoError(t, err)
	require.NoError(t, enc.Close())

	got, err = NewFileSource(writeFile(t, "postings.jsonl.zst", zs.Bytes())).Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 2)

	var lz bytes.Buffer
	lw := lz4.NewWriter(&lz)
	_, err = lw.Write([]byte(arrayDoc))
	require.NoError(t, err)
	require.NoError(t, lw.Close())

	got, err = NewFileSource(writeFile(t, "postings.json.lz4", lz.Bytes())).Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestFileSourceBadDateIsIgnored(t *testing.T) {
	doc := `{"id": "a", "title": "x", "posted_at": "last tuesday"}`
	got, err := NewFileSource(writeFile(t, "p.json", []byte(doc))).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].PostedAt.IsZero())
}

func TestFileSourceErrors(t *testing.T) {
	_, err := NewFileSource(filepath.Join(t.TempDir(), "missing.json")).Load(context.Background())
	assert.Error(t, err)

	_, err = NewFileSource(writeFile(t, "bad.json", []byte(`[{"id": "a",`))).Load(context.Background())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "value 1"))
}

func TestParseTime(t *testing.T) {
	for _, in := range []string{"2025-08-27T10:00:00Z", "2025-08-27T10:00:00", "2025-08-27 10:00:00"} {
		got, err := parseTime(in)
		require.NoError(t, err, in)
		assert.Equal(t, time.Date(2025, 8, 27, 10, 0, 0, 0, time.UTC), got, in)
	}
	zero, err := parseTime("  ")
	require.NoError(t, err)
	assert.True(t, zero.IsZero())
}

func TestQuoteTable(t *testing.T) {
	q, err := quoteTable("postings")
	require.NoError(t, err)
	assert.Equal(t, `"postings"`, q)

	q, err = quoteTable("jobs.postings")
	require.NoError(t, err)
	assert.Equal(t, `"jobs"."postings"`, q)

	_, err = quoteTable("postings; DROP TABLE x")
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	src, err := Open(config.SourceConfig{Kind: "none"}, nil)
	require.NoError(t, err)
	assert.Nil(t, src)

	src, err = Open(config.SourceConfig{Kind: "file", Path: "p.json"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "file:p.json", src.Name())

	_, err = Open(config.SourceConfig{Kind: "postgres", Table: "postings"}, nil)
	assert.Error(t, err)
}

func TestSampleDataLoads(t *testing.T) {
	got, err := NewFileSource(filepath.Join("..", "..", "data", "postings.json")).Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 6)
	for _, d := range got {
		assert.NotEmpty(t, d.ID)
		assert.NotEmpty(t, d.Title)
	}
}
