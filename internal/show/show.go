// Package show defines the canonical anime show record and the
// normalizers that produce it from the wire shapes we ingest:
// the rich AniDB JSON payload, the legacy AniDB XML payload, and
// the bulk-export tabular shape.
package show

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validation sentinel errors. Wrapped with field context by Validate
// and the parse functions; check with errors.Is.
var (
	// ErrMissingField indicates a required field was absent from a payload.
	ErrMissingField = errors.New("missing required field")

	// ErrInvalidField indicates a field value violates a record invariant.
	ErrInvalidField = errors.New("invalid field value")
)

// MinYear is the earliest plausible air year. Anything below it is rejected.
const MinYear = 1900

// MaxRating is the upper bound of the internal rating scale
// (external 0-10 scale stored as x100 integer).
const MaxRating = 1000

// Record is the canonical normalized show entity.
//
// LocalID is the stable key used inside the vector index; ExternalID is
// the AniDB identifier used to address the external metadata service.
// A Record is mutable until converted to a Document, after which the
// Document is a value copy and the Record no longer matters.
type Record struct {
	LocalID    string `json:"local_id"`
	ExternalID int    `json:"external_id"`

	Title     string   `json:"title"`
	AltTitles []string `json:"alt_titles"`

	Description string   `json:"description"`
	Tags        []string `json:"tags"`

	EpisodeCountNormal  int `json:"episode_count_normal"`
	EpisodeCountSpecial int `json:"episode_count_special"`

	AirDate   *time.Time `json:"air_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
	BeginYear *int       `json:"begin_year,omitempty"`
	EndYear   *int       `json:"end_year,omitempty"`

	Rating          int `json:"rating"`
	VoteCount       int `json:"vote_count"`
	AvgReviewRating int `json:"avg_review_rating"`
	ReviewCount     int `json:"review_count"`

	ANNID         *int    `json:"ann_id,omitempty"`
	CrunchyrollID *string `json:"crunchyroll_id,omitempty"`
	WikipediaID   *string `json:"wikipedia_id,omitempty"`

	// Relations and Similar hold serialized JSON lists of
	// {id, type/approval, title} records. Never empty strings;
	// "[]" when absent.
	Relations string `json:"relations"`
	Similar   string `json:"similar"`
}

// Validate checks all record invariants. Parse functions call it before
// returning, so a Record obtained from this package is always valid.
func (r *Record) Validate() error {
	if strings.TrimSpace(r.LocalID) == "" {
		return fmt.Errorf("%w: local_id", ErrMissingField)
	}
	if r.ExternalID <= 0 {
		return fmt.Errorf("%w: external_id", ErrMissingField)
	}
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("%w: title", ErrMissingField)
	}
	if r.EpisodeCountNormal < 0 {
		return fmt.Errorf("%w: episode_count_normal must be non-negative, got %d", ErrInvalidField, r.EpisodeCountNormal)
	}
	if r.EpisodeCountSpecial < 0 {
		return fmt.Errorf("%w: episode_count_special must be non-negative, got %d", ErrInvalidField, r.EpisodeCountSpecial)
	}
	if r.Rating < 0 || r.Rating > MaxRating {
		return fmt.Errorf("%w: rating must be within [0, %d], got %d", ErrInvalidField, MaxRating, r.Rating)
	}
	if r.VoteCount < 0 {
		return fmt.Errorf("%w: vote_count must be non-negative, got %d", ErrInvalidField, r.VoteCount)
	}
	if r.AvgReviewRating < 0 {
		return fmt.Errorf("%w: avg_review_rating must be non-negative, got %d", ErrInvalidField, r.AvgReviewRating)
	}
	if r.ReviewCount < 0 {
		return fmt.Errorf("%w: review_count must be non-negative, got %d", ErrInvalidField, r.ReviewCount)
	}
	if r.BeginYear != nil && *r.BeginYear < MinYear {
		return fmt.Errorf("%w: begin_year %d before %d", ErrInvalidField, *r.BeginYear, MinYear)
	}
	if r.EndYear != nil && *r.EndYear < MinYear {
		return fmt.Errorf("%w: end_year %d before %d", ErrInvalidField, *r.EndYear, MinYear)
	}
	if r.BeginYear != nil && r.EndYear != nil && *r.EndYear < *r.BeginYear {
		return fmt.Errorf("%w: end_year %d before begin_year %d", ErrInvalidField, *r.EndYear, *r.BeginYear)
	}
	if r.ANNID != nil && *r.ANNID <= 0 {
		return fmt.Errorf("%w: ann_id must be positive, got %d", ErrInvalidField, *r.ANNID)
	}
	return nil
}

// normalize trims strings, dedupes list fields, converts empty optional
// strings to absent, and fills Relations/Similar defaults. Called by the
// parse functions before Validate.
func (r *Record) normalize() {
	r.LocalID = strings.TrimSpace(r.LocalID)
	r.Title = strings.TrimSpace(r.Title)
	r.AltTitles = dedupeFold(r.AltTitles)
	r.Tags = dedupeFold(r.Tags)
	r.CrunchyrollID = emptyToNil(r.CrunchyrollID)
	r.WikipediaID = emptyToNil(r.WikipediaID)
	if strings.TrimSpace(r.Relations) == "" {
		r.Relations = "[]"
	}
	if strings.TrimSpace(r.Similar) == "" {
		r.Similar = "[]"
	}
}

// emptyToNil maps nil or whitespace-only optional strings to absent.
func emptyToNil(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// Document is the indexable projection of a Record: the embedding text
// plus metadata for the vector store. Metadata may still contain slice
// values here; the vector store flattens non-scalars before insert.
type Document struct {
	LocalID  string
	Content  string
	Metadata map[string]any
}

// maxAliasesInContent caps how many alternate titles go into the
// embedding text. Long-running franchises can carry dozens of aliases
// that would drown the synopsis.
const maxAliasesInContent = 5

// Document converts the record into its indexable form.
func (r *Record) Document() Document {
	metadata := map[string]any{
		"local_id":              r.LocalID,
		"external_id":           r.ExternalID,
		"title":                 r.Title,
		"alt_titles":            r.AltTitles,
		"tags":                  r.Tags,
		"episode_count_normal":  r.EpisodeCountNormal,
		"episode_count_special": r.EpisodeCountSpecial,
		"rating":                r.Rating,
		"vote_count":            r.VoteCount,
		"avg_review_rating":     r.AvgReviewRating,
		"review_count":          r.ReviewCount,
		"relations":             r.Relations,
		"similar":               r.Similar,
	}
	if r.AirDate != nil {
		metadata["air_date"] = r.AirDate.Format(time.RFC3339)
	}
	if r.EndDate != nil {
		metadata["end_date"] = r.EndDate.Format(time.RFC3339)
	}
	if r.BeginYear != nil {
		metadata["begin_year"] = *r.BeginYear
	}
	if r.EndYear != nil {
		metadata["end_year"] = *r.EndYear
	}
	if r.ANNID != nil {
		metadata["ann_id"] = *r.ANNID
	}
	if r.CrunchyrollID != nil {
		metadata["crunchyroll_id"] = *r.CrunchyrollID
	}
	if r.WikipediaID != nil {
		metadata["wikipedia_id"] = *r.WikipediaID
	}

	return Document{
		LocalID:  r.LocalID,
		Content:  r.contentText(),
		Metadata: metadata,
	}
}

// contentText builds the text that gets embedded. Field order matters
// for retrieval quality: title and aliases first, then synopsis, then
// the structured facts.
func (r *Record) contentText() string {
	parts := []string{r.Title}

	if len(r.AltTitles) > 0 {
		aliases := r.AltTitles
		if len(aliases) > maxAliasesInContent {
			aliases = aliases[:maxAliasesInContent]
		}
		parts = append(parts, "Also known as: "+strings.Join(aliases, ", "))
	}
	if r.Description != "" {
		parts = append(parts, r.Description)
	}
	if len(r.Tags) > 0 {
		parts = append(parts, "Tags: "+strings.Join(r.Tags, ", "))
	}
	if r.EpisodeCountNormal > 0 {
		parts = append(parts, fmt.Sprintf("Episodes: %d", r.EpisodeCountNormal))
	}
	if r.BeginYear != nil {
		yearStr := fmt.Sprintf("%d", *r.BeginYear)
		if r.EndYear != nil && *r.EndYear != *r.BeginYear {
			yearStr = fmt.Sprintf("%d-%d", *r.BeginYear, *r.EndYear)
		}
		parts = append(parts, "Year: "+yearStr)
	}

	return strings.Join(parts, "\n\n")
}
