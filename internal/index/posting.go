package index

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/keywords"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/textnorm"
	apperrors "github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/errors"
	"github.com/google/uuid"
)

const (
	maxIDLength          = 255
	maxTitleLength       = 1024
	maxDescriptionLength = 1 << 20
)

// Posting is a fully indexed job posting. Postings are never mutated after
// they become visible; Update swaps in a new value.
type Posting struct {
	ID          string             `json:"id"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Location    string             `json:"location"`
	Company     string             `json:"company,omitempty"`
	URL         string             `json:"url,omitempty"`
	PostedAt    time.Time          `json:"posted_at,omitzero"`
	Keywords    []keywords.Keyword `json:"keywords"`
	Embedding   []float32          `json:"-"`
	IndexedAt   time.Time          `json:"indexed_at"`
}

// PostingData is a raw posting record at the ingestion boundary.
type PostingData struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Company     string    `json:"company"`
	URL         string    `json:"url"`
	PostedAt    time.Time `json:"posted_at,omitzero"`
}

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		names = append(names, field)
	}
	slices.Sort(names)
	parts := make([]string, len(names))
	for i, field := range names {
		parts[i] = fmt.Sprintf("%s: %s", field, e.Fields[field])
	}
	return "invalid posting: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return apperrors.ErrInvalidArgument }

// Normalize trims fields, assigns a UUID when ID is empty and validates the
// record. It returns the cleaned copy.
func (d PostingData) Normalize() (PostingData, error) {
	d.ID = strings.TrimSpace(d.ID)
	d.Title = strings.TrimSpace(d.Title)
	d.Description = strings.TrimSpace(d.Description)
	d.Location = NormalizeLocation(d.Location)
	d.Company = strings.TrimSpace(d.Company)
	d.URL = strings.TrimSpace(d.URL)

	errs := make(map[string]string)
	if d.ID == "" {
		d.ID = uuid.NewString()
	} else if len(d.ID) > maxIDLength {
		errs["id"] = fmt.Sprintf("id must be at most %d characters", maxIDLength)
	}
	if d.Title == "" {
		errs["title"] = "title is required"
	} else if len(d.Title) > maxTitleLength {
		errs["title"] = fmt.Sprintf("title must be at most %d characters", maxTitleLength)
	}
	if len(d.Description) > maxDescriptionLength {
		errs["description"] = fmt.Sprintf("description must be at most %d bytes", maxDescriptionLength)
	}
	if len(errs) > 0 {
		return d, &ValidationError{Fields: errs}
	}
	return d, nil
}

// Text is the text embedded for a posting.
func (d PostingData) Text() string {
	if d.Description == "" {
		return d.Title
	}
	return d.Title + ". " + d.Description
}

// NormalizeLocation lower-cases and collapses whitespace so that location
// filters compare case-insensitively.
func NormalizeLocation(loc string) string {
	return textnorm.Normalize(loc)
}

// Data returns the record a posting was built from.
func (p *Posting) Data() PostingData {
	return PostingData{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Location:    p.Location,
		Company:     p.Company,
		URL:         p.URL,
		PostedAt:    p.PostedAt,
	}
}
