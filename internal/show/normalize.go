package show

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// payload is the canonical intermediate both wire adapters produce.
// fromPayload is the single place records are constructed and
// validated, so the two upstream shapes cannot drift apart.
type payload struct {
	externalID  int
	title       string
	altTitles   []string
	description string
	tags        []string

	episodeCountNormal  int
	episodeCountSpecial int

	airDate   *time.Time
	endDate   *time.Time
	beginYear *int
	endYear   *int

	rating          int
	voteCount       int
	avgReviewRating int
	reviewCount     int

	annID         *int
	crunchyrollID *string
	wikipediaID   *string

	relations string
	similar   string
}

// fromPayload assembles and validates a Record. The external id doubles
// as the local id for externally fetched records; bulk-import rows carry
// their own local id and use RecordFromRow instead.
func fromPayload(p payload) (*Record, error) {
	r := &Record{
		LocalID:             strconv.Itoa(p.externalID),
		ExternalID:          p.externalID,
		Title:               p.title,
		AltTitles:           p.altTitles,
		Description:         CleanDescription(p.description),
		Tags:                p.tags,
		EpisodeCountNormal:  p.episodeCountNormal,
		EpisodeCountSpecial: p.episodeCountSpecial,
		AirDate:             p.airDate,
		EndDate:             p.endDate,
		BeginYear:           p.beginYear,
		EndYear:             p.endYear,
		Rating:              p.rating,
		VoteCount:           p.voteCount,
		AvgReviewRating:     p.avgReviewRating,
		ReviewCount:         p.reviewCount,
		ANNID:               p.annID,
		CrunchyrollID:       p.crunchyrollID,
		WikipediaID:         p.wikipediaID,
		Relations:           p.relations,
		Similar:             p.similar,
	}
	r.normalize()
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// ParseDetails normalizes a raw details payload of either wire shape.
// The external service returns JSON from its current API and XML from
// the legacy one; the first non-space byte tells them apart.
func ParseDetails(data []byte) (*Record, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty details payload", ErrMissingField)
	}
	if trimmed[0] == '<' {
		return ParseDetailsXML(data)
	}
	return ParseDetailsJSON(data)
}

// detailsJSON mirrors the rich JSON payload returned by the metadata
// service's details tool.
type detailsJSON struct {
	AID    int    `json:"aid"`
	Title  string `json:"title"`
	Titles []struct {
		Title string `json:"title"`
		Type  string `json:"type"`
	} `json:"titles"`
	Synopsis string `json:"synopsis"`
	Tags     []struct {
		Name string `json:"name"`
	} `json:"tags"`
	EpisodeCountNormal  int     `json:"episode_count_normal"`
	EpisodeCountSpecial int     `json:"episode_count_special"`
	StartDate           string  `json:"start_date"`
	EndDate             string  `json:"end_date"`
	BeginYear           *int    `json:"begin_year"`
	EndYear             *int    `json:"end_year"`
	ANNID               *int    `json:"ann_id"`
	CrunchyrollID       *string `json:"crunchyroll_id"`
	WikipediaID         *string `json:"wikipedia_id"`
	Ratings             struct {
		Permanent      float64 `json:"permanent"`
		PermanentCount int     `json:"permanent_count"`
		Review         float64 `json:"review"`
		ReviewCount    int     `json:"review_count"`
	} `json:"ratings"`
	RelatedAnime []json.RawMessage `json:"related_anime"`
	SimilarAnime []json.RawMessage `json:"similar_anime"`
}

// ParseDetailsJSON normalizes the rich JSON shape into a Record.
// Missing aid or title fails with a validation error naming the field;
// everything else defaults. Out-of-range ratings and unparseable dates
// degrade rather than fail.
func ParseDetailsJSON(data []byte) (*Record, error) {
	var raw detailsJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding details JSON: %w", err)
	}

	var alts []string
	for _, t := range raw.Titles {
		if t.Title != "" && t.Type != "main" {
			alts = append(alts, t.Title)
		}
	}
	var tags []string
	for _, t := range raw.Tags {
		if t.Name != "" {
			tags = append(tags, t.Name)
		}
	}

	return fromPayload(payload{
		externalID:          raw.AID,
		title:               raw.Title,
		altTitles:           alts,
		description:         raw.Synopsis,
		tags:                tags,
		episodeCountNormal:  raw.EpisodeCountNormal,
		episodeCountSpecial: raw.EpisodeCountSpecial,
		airDate:             parseDate(raw.StartDate),
		endDate:             parseDate(raw.EndDate),
		beginYear:           raw.BeginYear,
		endYear:             raw.EndYear,
		rating:              scaleRating(raw.Ratings.Permanent),
		voteCount:           raw.Ratings.PermanentCount,
		avgReviewRating:     scaleRating(raw.Ratings.Review),
		reviewCount:         raw.Ratings.ReviewCount,
		annID:               raw.ANNID,
		crunchyrollID:       raw.CrunchyrollID,
		wikipediaID:         raw.WikipediaID,
		relations:           marshalList(raw.RelatedAnime),
		similar:             marshalList(raw.SimilarAnime),
	})
}

// scaleRating converts an external 0-10 rating to the internal 0-1000
// integer scale. Out-of-range inputs clamp instead of failing: rating
// quality never gates record validity.
func scaleRating(v float64) int {
	scaled := int(math.Round(v * 100))
	if scaled < 0 {
		return 0
	}
	if scaled > MaxRating {
		return MaxRating
	}
	return scaled
}

// detailsDateLayouts are the timestamp formats seen across the external
// service's two APIs and the bulk export.
var detailsDateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseDate parses a date string permissively. Empty or unparseable
// input resolves to absent, never an error.
func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range detailsDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// marshalList reserializes a raw JSON list, defaulting to "[]".
func marshalList(items []json.RawMessage) string {
	if len(items) == 0 {
		return "[]"
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// encodeEntries serializes structured relation entries, defaulting to "[]".
func encodeEntries[T any](entries []T) string {
	if len(entries) == 0 {
		return "[]"
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return "[]"
	}
	return string(data)
}
