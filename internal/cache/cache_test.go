package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anidex/anidex/internal/show"
	"github.com/anidex/anidex/internal/testutil"
)

func testRecord(t *testing.T, externalID int, title string) *show.Record {
	t.Helper()
	r := &show.Record{
		LocalID:    "1000",
		ExternalID: externalID,
		Title:      title,
		Relations:  "[]",
		Similar:    "[]",
	}
	require.NoError(t, r.Validate())
	return r
}

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), testutil.DiscardLogger())
	require.NoError(t, err)
	return s
}

func TestOpenCreatesIndex(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, testutil.DiscardLogger())
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "index.json"))
	require.NoError(t, err)

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Shows)
	assert.False(t, stats.Created.IsZero())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := openStore(t)
	want := testRecord(t, 30, "Shinseiki Evangelion")

	require.NoError(t, s.Save(want, "mcp"))

	ok, err := s.Exists(30)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.Load(30)
	require.NoError(t, err)
	assert.Equal(t, want.Title, got.Title)
	assert.Equal(t, want.LocalID, got.LocalID)
	assert.Equal(t, want.ExternalID, got.ExternalID)
}

func TestSaveLoadRoundTripFullRecord(t *testing.T) {
	s := openStore(t)

	airDate := time.Date(1995, 10, 4, 0, 0, 0, 0, time.UTC)
	endDate := time.Date(1996, 3, 27, 0, 0, 0, 0, time.UTC)
	beginYear, endYear := 1995, 1996
	annID := 49
	crunchyrollID := "neon-genesis-evangelion"
	wikipediaID := "Neon_Genesis_Evangelion"

	want := &show.Record{
		LocalID:             "1000",
		ExternalID:          30,
		Title:               "Shinseiki Evangelion",
		AltTitles:           []string{"Neon Genesis Evangelion", "NGE"},
		Description:         "In 2015, humanity wages war against beings called Angels.",
		Tags:                []string{"mecha", "psychological"},
		EpisodeCountNormal:  26,
		EpisodeCountSpecial: 2,
		AirDate:             &airDate,
		EndDate:             &endDate,
		BeginYear:           &beginYear,
		EndYear:             &endYear,
		Rating:              822,
		VoteCount:           10305,
		AvgReviewRating:     871,
		ReviewCount:         112,
		ANNID:               &annID,
		CrunchyrollID:       &crunchyrollID,
		WikipediaID:         &wikipediaID,
		Relations:           `[{"id":32,"type":"sequel","title":"Death & Rebirth"}]`,
		Similar:             `[{"id":247,"approval":80,"title":"RahXephon"}]`,
	}
	require.NoError(t, want.Validate())
	require.NoError(t, s.Save(want, "mcp"))

	got, err := s.Load(30)
	require.NoError(t, err)
	assert.Equal(t, want, got, "every field must survive a save/load cycle")
}

func TestReadsServeFromLoadedIndex(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Save(testRecord(t, 30, "Evangelion"), "mcp"))

	// Reads go through the index loaded at Open and updated on Save;
	// removing the file on disk must not affect them.
	require.NoError(t, os.Remove(filepath.Join(s.Dir(), "index.json")))

	ok, err := s.Exists(30)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.Load(30)
	require.NoError(t, err)
	assert.Equal(t, "Evangelion", got.Title)

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Shows)

	records, err := s.LoadAll()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestSaveReplacesEntry(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Save(testRecord(t, 30, "Old Title"), "mcp"))
	require.NoError(t, s.Save(testRecord(t, 30, "New Title"), "mcp"))

	got, err := s.Load(30)
	require.NoError(t, err)
	assert.Equal(t, "New Title", got.Title)

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Shows)
}

func TestLoadMissReturnsErrNotCached(t *testing.T) {
	s := openStore(t)

	_, err := s.Load(999)
	assert.ErrorIs(t, err, ErrNotCached)

	ok, err := s.Exists(999)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoadMissingFileIsMiss(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Save(testRecord(t, 30, "Evangelion"), "mcp"))
	require.NoError(t, os.Remove(filepath.Join(s.Dir(), "show_30.json")))

	_, err := s.Load(30)
	assert.ErrorIs(t, err, ErrNotCached)
}

func TestLoadCorruptFileFails(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Save(testRecord(t, 30, "Evangelion"), "mcp"))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "show_30.json"), []byte("{not json"), 0o644))

	_, err := s.Load(30)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotCached)
}

func TestSaveRejectsInvalidRecord(t *testing.T) {
	s := openStore(t)
	r := &show.Record{LocalID: "1", ExternalID: 30} // no title

	err := s.Save(r, "mcp")
	assert.ErrorIs(t, err, show.ErrMissingField)
}

func TestLoadAllSkipsCorruptEntries(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Save(testRecord(t, 30, "Evangelion"), "mcp"))
	require.NoError(t, s.Save(testRecord(t, 32, "Death & Rebirth"), "mcp"))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "show_32.json"), []byte("{not json"), 0o644))

	records, err := s.LoadAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Evangelion", records[0].Title)
}

func TestReopenSeesExistingEntries(t *testing.T) {
	dir := t.TempDir()
	logger := testutil.DiscardLogger()

	s, err := Open(dir, logger)
	require.NoError(t, err)
	require.NoError(t, s.Save(testRecord(t, 30, "Evangelion"), "mcp"))

	reopened, err := Open(dir, logger)
	require.NoError(t, err)
	ok, err := reopened.Exists(30)
	require.NoError(t, err)
	assert.True(t, ok)
}
