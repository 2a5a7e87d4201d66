package show

import (
	"errors"
	"testing"
)

const detailsJSONSample = `{
	"aid": 30,
	"title": "Shinseiki Evangelion",
	"titles": [
		{"title": "Shinseiki Evangelion", "type": "main"},
		{"title": "Neon Genesis Evangelion", "type": "official"},
		{"title": "NGE", "type": "short"}
	],
	"synopsis": "In the year 2015, [i]Angels[/i] attack Tokyo-3.",
	"tags": [{"name": "mecha"}, {"name": "psychological"}],
	"episode_count_normal": 26,
	"episode_count_special": 2,
	"start_date": "1995-10-04",
	"end_date": "1996-03-27",
	"begin_year": 1995,
	"end_year": 1996,
	"ann_id": 49,
	"wikipedia_id": "Neon_Genesis_Evangelion",
	"ratings": {
		"permanent": 8.22,
		"permanent_count": 10305,
		"review": 8.61,
		"review_count": 28
	},
	"related_anime": [{"aid": 32, "type": "sequel", "title": "Evangelion: Death & Rebirth"}],
	"similar_anime": []
}`

func TestParseDetailsJSON(t *testing.T) {
	r, err := ParseDetailsJSON([]byte(detailsJSONSample))
	if err != nil {
		t.Fatalf("ParseDetailsJSON: %v", err)
	}

	if r.LocalID != "30" || r.ExternalID != 30 {
		t.Errorf("ids = (%q, %d), want (30, 30)", r.LocalID, r.ExternalID)
	}
	if r.Title != "Shinseiki Evangelion" {
		t.Errorf("Title = %q", r.Title)
	}
	if len(r.AltTitles) != 2 || r.AltTitles[0] != "Neon Genesis Evangelion" {
		t.Errorf("AltTitles = %v, want the two non-main titles", r.AltTitles)
	}
	if r.Description != "In the year 2015, Angels attack Tokyo-3." {
		t.Errorf("Description = %q, want BBCode stripped", r.Description)
	}
	if r.Rating != 822 {
		t.Errorf("Rating = %d, want 822 (8.22 x100)", r.Rating)
	}
	if r.VoteCount != 10305 {
		t.Errorf("VoteCount = %d", r.VoteCount)
	}
	if r.AvgReviewRating != 861 {
		t.Errorf("AvgReviewRating = %d, want 861", r.AvgReviewRating)
	}
	if r.AirDate == nil || r.AirDate.Year() != 1995 {
		t.Errorf("AirDate = %v", r.AirDate)
	}
	if r.ANNID == nil || *r.ANNID != 49 {
		t.Errorf("ANNID = %v", r.ANNID)
	}
	if r.CrunchyrollID != nil {
		t.Errorf("CrunchyrollID = %v, want absent", *r.CrunchyrollID)
	}
	if r.Relations == "[]" {
		t.Error("Relations should carry the related_anime entries")
	}
	if r.Similar != "[]" {
		t.Errorf("Similar = %q, want empty list default", r.Similar)
	}
}

func TestParseDetailsJSONMissingTitle(t *testing.T) {
	_, err := ParseDetailsJSON([]byte(`{"aid": 30}`))
	if !errors.Is(err, ErrMissingField) {
		t.Fatalf("err = %v, want ErrMissingField", err)
	}
}

func TestParseDetailsJSONMalformed(t *testing.T) {
	if _, err := ParseDetailsJSON([]byte(`{"aid": `)); err == nil {
		t.Fatal("expected decode error")
	}
}

const detailsXMLSample = `<anime id="30" restricted="false">
	<titles>
		<title type="main" xml:lang="x-jat">Shinseiki Evangelion</title>
		<title type="official" xml:lang="en">Neon Genesis Evangelion</title>
	</titles>
	<episodecount>26</episodecount>
	<startdate>1995-10-04</startdate>
	<enddate>1996-03-27</enddate>
	<description>In the year 2015, Angels attack Tokyo-3.</description>
	<ratings>
		<permanent count="10305">8.22</permanent>
		<review count="28">8.61</review>
	</ratings>
	<resources>
		<resource type="1"><externalentity><identifier>49</identifier></externalentity></resource>
		<resource type="6"><externalentity><identifier>Neon_Genesis_Evangelion</identifier></externalentity></resource>
		<resource type="28"><externalentity><identifier>neon-genesis-evangelion</identifier></externalentity></resource>
	</resources>
	<tags>
		<tag id="36" weight="400"><name>mecha</name></tag>
		<tag id="2841" weight="500"><name>psychological</name></tag>
	</tags>
	<relatedanime>
		<anime id="32" type="Sequel">Evangelion: Death &amp; Rebirth</anime>
	</relatedanime>
	<similaranime>
		<anime id="2376">RahXephon</anime>
	</similaranime>
</anime>`

func TestParseDetailsXML(t *testing.T) {
	r, err := ParseDetailsXML([]byte(detailsXMLSample))
	if err != nil {
		t.Fatalf("ParseDetailsXML: %v", err)
	}

	if r.ExternalID != 30 {
		t.Errorf("ExternalID = %d", r.ExternalID)
	}
	if r.Title != "Shinseiki Evangelion" {
		t.Errorf("Title = %q, want the main-typed title", r.Title)
	}
	if len(r.AltTitles) != 1 || r.AltTitles[0] != "Neon Genesis Evangelion" {
		t.Errorf("AltTitles = %v", r.AltTitles)
	}
	if r.EpisodeCountNormal != 26 {
		t.Errorf("EpisodeCountNormal = %d", r.EpisodeCountNormal)
	}
	if r.Rating != 822 || r.VoteCount != 10305 {
		t.Errorf("rating = (%d, %d), want (822, 10305)", r.Rating, r.VoteCount)
	}
	if r.BeginYear == nil || *r.BeginYear != 1995 {
		t.Errorf("BeginYear = %v, want derived from startdate", r.BeginYear)
	}
	if r.EndYear == nil || *r.EndYear != 1996 {
		t.Errorf("EndYear = %v", r.EndYear)
	}
	if r.ANNID == nil || *r.ANNID != 49 {
		t.Errorf("ANNID = %v, want from type-1 resource", r.ANNID)
	}
	if r.WikipediaID == nil || *r.WikipediaID != "Neon_Genesis_Evangelion" {
		t.Errorf("WikipediaID = %v", r.WikipediaID)
	}
	if r.CrunchyrollID == nil || *r.CrunchyrollID != "neon-genesis-evangelion" {
		t.Errorf("CrunchyrollID = %v", r.CrunchyrollID)
	}
	if len(r.Tags) != 2 {
		t.Errorf("Tags = %v", r.Tags)
	}
	if r.Relations == "[]" || r.Similar == "[]" {
		t.Errorf("relations/similar should carry entries: %q / %q", r.Relations, r.Similar)
	}
}

func TestParseDetailsSniffsShape(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr bool
	}{
		{name: "json shape", data: detailsJSONSample},
		{name: "xml shape", data: "  \n" + detailsXMLSample},
		{name: "empty payload", data: "   ", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ParseDetails([]byte(tt.data))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDetails: %v", err)
			}
			if r.ExternalID != 30 {
				t.Errorf("ExternalID = %d, want 30", r.ExternalID)
			}
		})
	}
}

func TestRecordFromRow(t *testing.T) {
	row := Row{
		AnimeID:             101,
		AniDBAnimeID:        30,
		MainTitle:           "Shinseiki Evangelion",
		AllTitles:           "Shinseiki Evangelion|Neon Genesis Evangelion|NGE|nge",
		AllTags:             "mecha|psychological|mecha",
		Description:         "In the year 2015,  Angels attack   Tokyo-3.",
		EpisodeCountNormal:  26,
		EpisodeCountSpecial: 2,
		AirDate:             "1995-10-04 00:00:00",
		EndDate:             "1996-03-27 00:00:00",
		BeginYear:           intPtr(1995),
		EndYear:             intPtr(1996),
		Rating:              822,
		VoteCount:           10305,
		ANNID:               intPtr(49),
	}

	r, err := RecordFromRow(row)
	if err != nil {
		t.Fatalf("RecordFromRow: %v", err)
	}

	if r.LocalID != "101" {
		t.Errorf("LocalID = %q, want the catalog id", r.LocalID)
	}
	if r.ExternalID != 30 {
		t.Errorf("ExternalID = %d", r.ExternalID)
	}
	if len(r.AltTitles) != 2 {
		t.Errorf("AltTitles = %v, want main title and duplicates dropped", r.AltTitles)
	}
	if len(r.Tags) != 2 {
		t.Errorf("Tags = %v, want deduped", r.Tags)
	}
	if r.Description != "In the year 2015, Angels attack Tokyo-3." {
		t.Errorf("Description = %q, want space runs collapsed", r.Description)
	}
	if r.AirDate == nil || r.AirDate.Month() != 10 {
		t.Errorf("AirDate = %v", r.AirDate)
	}
	if r.Relations != "[]" || r.Similar != "[]" {
		t.Errorf("relations/similar defaults = %q / %q", r.Relations, r.Similar)
	}
}

func TestRecordFromRowMissingFields(t *testing.T) {
	if _, err := RecordFromRow(Row{MainTitle: "x", AniDBAnimeID: 1}); !errors.Is(err, ErrMissingField) {
		t.Errorf("missing AnimeID: err = %v", err)
	}
	if _, err := RecordFromRow(Row{AnimeID: 1, AniDBAnimeID: 1}); !errors.Is(err, ErrMissingField) {
		t.Errorf("missing MainTitle: err = %v", err)
	}
}

func TestScaleRatingClamps(t *testing.T) {
	tests := []struct {
		in   float64
		want int
	}{
		{0, 0},
		{8.22, 822},
		{8.226, 823},
		{10, 1000},
		{10.5, 1000},
		{-1, 0},
	}
	for _, tt := range tests {
		if got := scaleRating(tt.in); got != tt.want {
			t.Errorf("scaleRating(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
