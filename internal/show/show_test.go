package show

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func validRecord() *Record {
	return &Record{
		LocalID:    "17",
		ExternalID: 17,
		Title:      "Neon Genesis Evangelion",
		Relations:  "[]",
		Similar:    "[]",
	}
}

func TestRecordValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Record)
		wantErr error
	}{
		{
			name:   "valid minimal record",
			mutate: func(r *Record) {},
		},
		{
			name:    "missing local id",
			mutate:  func(r *Record) { r.LocalID = "  " },
			wantErr: ErrMissingField,
		},
		{
			name:    "missing external id",
			mutate:  func(r *Record) { r.ExternalID = 0 },
			wantErr: ErrMissingField,
		},
		{
			name:    "missing title",
			mutate:  func(r *Record) { r.Title = "" },
			wantErr: ErrMissingField,
		},
		{
			name:    "negative episode count",
			mutate:  func(r *Record) { r.EpisodeCountNormal = -1 },
			wantErr: ErrInvalidField,
		},
		{
			name:    "rating above scale",
			mutate:  func(r *Record) { r.Rating = MaxRating + 1 },
			wantErr: ErrInvalidField,
		},
		{
			name:   "rating at upper bound",
			mutate: func(r *Record) { r.Rating = MaxRating },
		},
		{
			name:    "begin year before minimum",
			mutate:  func(r *Record) { r.BeginYear = intPtr(MinYear - 1) },
			wantErr: ErrInvalidField,
		},
		{
			name:   "begin year at minimum",
			mutate: func(r *Record) { r.BeginYear = intPtr(MinYear) },
		},
		{
			name: "end year before begin year",
			mutate: func(r *Record) {
				r.BeginYear = intPtr(2005)
				r.EndYear = intPtr(2004)
			},
			wantErr: ErrInvalidField,
		},
		{
			name: "end year equal to begin year",
			mutate: func(r *Record) {
				r.BeginYear = intPtr(2005)
				r.EndYear = intPtr(2005)
			},
		},
		{
			name:    "non-positive ann id",
			mutate:  func(r *Record) { r.ANNID = intPtr(0) },
			wantErr: ErrInvalidField,
		},
		{
			name:    "negative vote count",
			mutate:  func(r *Record) { r.VoteCount = -5 },
			wantErr: ErrInvalidField,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRecord()
			tt.mutate(r)
			err := r.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRecordNormalizeDefaults(t *testing.T) {
	r := validRecord()
	r.Relations = ""
	r.Similar = "  "
	r.AltTitles = []string{"Evangelion", " evangelion ", "EVA", "Evangelion"}
	r.CrunchyrollID = strPtr("  ")

	r.normalize()

	if r.Relations != "[]" {
		t.Errorf("Relations = %q, want %q", r.Relations, "[]")
	}
	if r.Similar != "[]" {
		t.Errorf("Similar = %q, want %q", r.Similar, "[]")
	}
	if r.CrunchyrollID != nil {
		t.Errorf("CrunchyrollID = %v, want nil", *r.CrunchyrollID)
	}
	want := []string{"Evangelion", "EVA"}
	if len(r.AltTitles) != len(want) {
		t.Fatalf("AltTitles = %v, want %v", r.AltTitles, want)
	}
	for i := range want {
		if r.AltTitles[i] != want[i] {
			t.Errorf("AltTitles[%d] = %q, want %q", i, r.AltTitles[i], want[i])
		}
	}
}

func TestDocumentContent(t *testing.T) {
	air := time.Date(1995, 10, 4, 0, 0, 0, 0, time.UTC)
	r := &Record{
		LocalID:            "17",
		ExternalID:         17,
		Title:              "Neon Genesis Evangelion",
		AltTitles:          []string{"Evangelion", "EVA", "NGE", "Shinseiki Evangelion", "Evangelion TV", "EvaTV", "Seventh"},
		Description:        "Teenagers pilot biomechanical units against beings called Angels.",
		Tags:               []string{"mecha", "psychological"},
		EpisodeCountNormal: 26,
		AirDate:            &air,
		BeginYear:          intPtr(1995),
		EndYear:            intPtr(1996),
		Relations:          "[]",
		Similar:            "[]",
	}

	doc := r.Document()

	if doc.LocalID != "17" {
		t.Errorf("LocalID = %q, want %q", doc.LocalID, "17")
	}
	if !strings.HasPrefix(doc.Content, "Neon Genesis Evangelion") {
		t.Errorf("content should start with the title, got %q", doc.Content)
	}
	if strings.Contains(doc.Content, "EvaTV") || strings.Contains(doc.Content, "Seventh") {
		t.Errorf("content includes aliases past the cap: %q", doc.Content)
	}
	if !strings.Contains(doc.Content, "Also known as: Evangelion") {
		t.Errorf("content missing alias line: %q", doc.Content)
	}
	if !strings.Contains(doc.Content, "Tags: mecha, psychological") {
		t.Errorf("content missing tag line: %q", doc.Content)
	}
	if !strings.Contains(doc.Content, "Episodes: 26") {
		t.Errorf("content missing episode line: %q", doc.Content)
	}
	if !strings.Contains(doc.Content, "Year: 1995-1996") {
		t.Errorf("content missing year range: %q", doc.Content)
	}

	if got := doc.Metadata["external_id"]; got != 17 {
		t.Errorf("metadata external_id = %v, want 17", got)
	}
	if got := doc.Metadata["air_date"]; got != "1995-10-04T00:00:00Z" {
		t.Errorf("metadata air_date = %v", got)
	}
	if _, ok := doc.Metadata["ann_id"]; ok {
		t.Error("metadata should omit absent ann_id")
	}
}

func TestDocumentContentSingleYear(t *testing.T) {
	r := validRecord()
	r.BeginYear = intPtr(2019)
	r.EndYear = intPtr(2019)

	doc := r.Document()
	if !strings.Contains(doc.Content, "Year: 2019") {
		t.Errorf("content missing single year: %q", doc.Content)
	}
	if strings.Contains(doc.Content, "2019-2019") {
		t.Errorf("equal years should render once: %q", doc.Content)
	}
}
