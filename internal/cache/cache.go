// Package cache is a file-backed store for normalized show records
// fetched from the external metadata service. Each record lives in its
// own JSON file; a single index file maps external ids to entries so
// membership checks never touch the record files.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/anidex/anidex/internal/show"
)

// indexVersion is bumped when the on-disk layout changes.
const indexVersion = 1

const (
	indexFile = "index.json"
	lockFile  = "index.lock"
)

// ErrNotCached indicates no cache entry exists for the requested id.
// Callers treat it as a miss, not a failure.
var ErrNotCached = errors.New("show not cached")

// indexEntry is one row of the index file.
type indexEntry struct {
	Title   string    `json:"title"`
	LocalID string    `json:"local_id"`
	File    string    `json:"file"`
	Updated time.Time `json:"updated"`
}

// index is the on-disk index document. Keys of Shows are external ids
// in decimal form.
type index struct {
	Version int                   `json:"version"`
	Created time.Time             `json:"created"`
	Shows   map[string]indexEntry `json:"shows"`
}

// entry is the per-show file layout: the record plus fetch provenance.
type entry struct {
	FetchedAt time.Time    `json:"fetched_at"`
	Source    string       `json:"source"`
	Record    *show.Record `json:"record"`
}

// Store persists fetched show records under a single directory. The
// index is loaded once at Open and held in memory, so membership
// checks cost a map lookup, not I/O. Index mutations take a file lock
// and re-read the file first, so concurrent processes sharing the
// cache directory do not clobber each other's entries.
type Store struct {
	dir    string
	lock   *flock.Flock
	logger *slog.Logger

	mu  sync.RWMutex
	idx *index
}

// Open prepares a cache store rooted at dir, creating the directory
// and an empty index if they do not exist yet, and loads the index
// into memory.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	s := &Store{
		dir:    dir,
		lock:   flock.New(filepath.Join(dir, lockFile)),
		logger: logger,
	}

	if _, err := os.Stat(s.indexPath()); errors.Is(err, os.ErrNotExist) {
		s.idx = &index{
			Version: indexVersion,
			Created: time.Now().UTC(),
			Shows:   map[string]indexEntry{},
		}
		if err := s.writeIndex(s.idx); err != nil {
			return nil, err
		}
		return s, nil
	} else if err != nil {
		return nil, fmt.Errorf("checking cache index: %w", err)
	}

	idx, err := s.readIndexFile()
	if err != nil {
		return nil, err
	}
	s.idx = idx
	return s, nil
}

// Dir returns the cache root directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) indexPath() string { return filepath.Join(s.dir, indexFile) }

func (s *Store) recordPath(externalID int) string {
	return filepath.Join(s.dir, fmt.Sprintf("show_%d.json", externalID))
}

// readIndexFile parses the index from disk. Used at Open and inside
// Save under the file lock; reads elsewhere go through the in-memory
// copy.
func (s *Store) readIndexFile() (*index, error) {
	data, err := os.ReadFile(s.indexPath())
	if err != nil {
		return nil, fmt.Errorf("reading cache index: %w", err)
	}
	var idx index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("decoding cache index: %w", err)
	}
	if idx.Shows == nil {
		idx.Shows = map[string]indexEntry{}
	}
	return &idx, nil
}

// writeIndex replaces the index file atomically: write a temp file in
// the same directory, then rename over the old index.
func (s *Store) writeIndex(idx *index) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding cache index: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, "index-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp index: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp index: %w", err)
	}
	if err := os.Rename(tmpName, s.indexPath()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing cache index: %w", err)
	}
	return nil
}

// Exists reports whether a record for the external id is present in
// the index. A pure in-memory lookup; it does not verify the record
// file.
func (s *Store) Exists(externalID int) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.idx.Shows[strconv.Itoa(externalID)]
	return ok, nil
}

// Save writes the record to its own file and registers it in the
// index under the file lock. Saving an id that already exists replaces
// the previous entry.
func (s *Store) Save(r *show.Record, source string) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("caching show: %w", err)
	}

	data, err := json.MarshalIndent(entry{
		FetchedAt: time.Now().UTC(),
		Source:    source,
		Record:    r,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding show %d: %w", r.ExternalID, err)
	}
	path := s.recordPath(r.ExternalID)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing show %d: %w", r.ExternalID, err)
	}

	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("locking cache index: %w", err)
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			s.logger.Warn("unlocking cache index", "error", err)
		}
	}()

	// Re-read under the lock so entries written by other processes
	// since Open are merged, not overwritten.
	idx, err := s.readIndexFile()
	if err != nil {
		return err
	}
	idx.Shows[strconv.Itoa(r.ExternalID)] = indexEntry{
		Title:   r.Title,
		LocalID: r.LocalID,
		File:    filepath.Base(path),
		Updated: time.Now().UTC(),
	}
	if err := s.writeIndex(idx); err != nil {
		return err
	}

	s.mu.Lock()
	s.idx = idx
	s.mu.Unlock()
	return nil
}

// Load returns the cached record for the external id. A missing entry
// or a missing record file is a miss (ErrNotCached); a present but
// unreadable record file is an error.
func (s *Store) Load(externalID int) (*show.Record, error) {
	s.mu.RLock()
	ent, ok := s.idx.Shows[strconv.Itoa(externalID)]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("show %d: %w", externalID, ErrNotCached)
	}

	data, err := os.ReadFile(filepath.Join(s.dir, ent.File))
	if errors.Is(err, os.ErrNotExist) {
		// Index said yes but the file is gone. Treat as a miss so the
		// caller refetches and heals the entry.
		s.logger.Warn("cache index entry without record file",
			"external_id", externalID, "file", ent.File)
		return nil, fmt.Errorf("show %d: %w", externalID, ErrNotCached)
	}
	if err != nil {
		return nil, fmt.Errorf("reading cached show %d: %w", externalID, err)
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decoding cached show %d: %w", externalID, err)
	}
	if e.Record == nil {
		return nil, fmt.Errorf("decoding cached show %d: entry has no record", externalID)
	}
	return e.Record, nil
}

// LoadAll returns every readable cached record. Entries that fail to
// load are logged and skipped rather than failing the whole scan, so a
// single corrupt file cannot block a reindex.
func (s *Store) LoadAll() ([]*show.Record, error) {
	s.mu.RLock()
	keys := make([]string, 0, len(s.idx.Shows))
	for key := range s.idx.Shows {
		keys = append(keys, key)
	}
	s.mu.RUnlock()

	records := make([]*show.Record, 0, len(keys))
	for _, key := range keys {
		externalID, err := strconv.Atoi(key)
		if err != nil {
			s.logger.Warn("skipping malformed cache index key", "key", key)
			continue
		}
		r, err := s.Load(externalID)
		if err != nil {
			s.logger.Warn("skipping unreadable cache entry",
				"external_id", externalID, "error", err)
			continue
		}
		records = append(records, r)
	}
	return records, nil
}

// Stats summarizes the cache for status output.
type Stats struct {
	Shows   int
	Created time.Time
	Dir     string
}

// Stats reports the entry count and index age.
func (s *Store) Stats() (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Shows:   len(s.idx.Shows),
		Created: s.idx.Created,
		Dir:     s.dir,
	}, nil
}
