package show

import (
	"fmt"
	"strings"
)

// Row is one record of the bulk shows export, a flat pipe-delimited
// snapshot of the same data the details APIs serve.
type Row struct {
	AnimeID             int     `json:"AnimeID"`
	AniDBAnimeID        int     `json:"AniDB_AnimeID"`
	MainTitle           string  `json:"MainTitle"`
	AllTitles           string  `json:"AllTitles"`
	AllTags             string  `json:"AllTags"`
	Description         string  `json:"Description"`
	EpisodeCountNormal  int     `json:"EpisodeCountNormal"`
	EpisodeCountSpecial int     `json:"EpisodeCountSpecial"`
	AirDate             string  `json:"AirDate"`
	EndDate             string  `json:"EndDate"`
	BeginYear           *int    `json:"BeginYear"`
	EndYear             *int    `json:"EndYear"`
	Rating              int     `json:"Rating"`
	VoteCount           int     `json:"VoteCount"`
	AvgReviewRating     int     `json:"AvgReviewRating"`
	ReviewCount         int     `json:"ReviewCount"`
	ANNID               *int    `json:"ANNID"`
	CrunchyrollID       *string `json:"CrunchyrollID"`
	WikipediaID         *string `json:"Wikipedia_ID"`
	Relations           string  `json:"Relations"`
	Similar             string  `json:"Similar"`
}

// RecordFromRow normalizes a bulk-export row. Rows carry their own
// catalog id distinct from the external id, and ratings already on the
// 0-1000 scale. Alias lists often repeat the main title; normalization
// drops the duplicate.
func RecordFromRow(row Row) (*Record, error) {
	if row.AnimeID <= 0 {
		return nil, fmt.Errorf("%w: AnimeID", ErrMissingField)
	}
	title := strings.TrimSpace(row.MainTitle)
	if title == "" {
		return nil, fmt.Errorf("%w: MainTitle", ErrMissingField)
	}

	alts := SplitPipe(row.AllTitles)
	filtered := alts[:0]
	for _, alt := range alts {
		if !strings.EqualFold(alt, title) {
			filtered = append(filtered, alt)
		}
	}

	r := &Record{
		LocalID:             fmt.Sprintf("%d", row.AnimeID),
		ExternalID:          row.AniDBAnimeID,
		Title:               title,
		AltTitles:           filtered,
		Description:         CleanDescription(row.Description),
		Tags:                SplitPipe(row.AllTags),
		EpisodeCountNormal:  row.EpisodeCountNormal,
		EpisodeCountSpecial: row.EpisodeCountSpecial,
		AirDate:             parseDate(row.AirDate),
		EndDate:             parseDate(row.EndDate),
		BeginYear:           row.BeginYear,
		EndYear:             row.EndYear,
		Rating:              clampRating(row.Rating),
		VoteCount:           row.VoteCount,
		AvgReviewRating:     clampRating(row.AvgReviewRating),
		ReviewCount:         row.ReviewCount,
		ANNID:               row.ANNID,
		CrunchyrollID:       row.CrunchyrollID,
		WikipediaID:         row.WikipediaID,
		Relations:           row.Relations,
		Similar:             row.Similar,
	}
	r.normalize()
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func clampRating(v int) int {
	if v < 0 {
		return 0
	}
	if v > MaxRating {
		return MaxRating
	}
	return v
}
