package orchestrator

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"openfeeder-sidecar/models"
)

const tombstoneFIFOCap = 1000

// TombstoneStore is a durable `{url: deleted_at_iso}` map, FIFO-capped at
// 1000 entries with the oldest evicted first.
type TombstoneStore struct {
	mu   sync.RWMutex
	path string
	data map[string]string
}

// NewTombstoneStore loads any existing tombstone file at path; a missing or
// corrupt file starts empty.
func NewTombstoneStore(path string) *TombstoneStore {
	s := &TombstoneStore{path: path, data: map[string]string{}}
	raw, err := os.ReadFile(path)
	if err != nil {
		return s
	}
	var loaded map[string]string
	if err := json.Unmarshal(raw, &loaded); err != nil {
		log.Warn().Str("path", path).Err(err).Msg("tombstone file unreadable, starting empty")
		return s
	}
	s.data = loaded
	return s
}

// Add records a deletion tombstone for url at the current time and
// persists the store to disk, evicting the oldest entries once the count
// exceeds 1000.
func (s *TombstoneStore) Add(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[url] = time.Now().UTC().Format(time.RFC3339)
	s.evictLocked()
	s.saveLocked()
}

// evictLocked keeps the newest 1000 entries sorted by deleted_at. Callers
// must hold the write lock.
func (s *TombstoneStore) evictLocked() {
	if len(s.data) <= tombstoneFIFOCap {
		return
	}
	type entry struct {
		url       string
		deletedAt string
	}
	entries := make([]entry, 0, len(s.data))
	for url, deletedAt := range s.data {
		entries = append(entries, entry{url, deletedAt})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].deletedAt < entries[j].deletedAt })

	kept := entries[len(entries)-tombstoneFIFOCap:]
	s.data = make(map[string]string, len(kept))
	for _, e := range kept {
		s.data[e.url] = e.deletedAt
	}
}

// saveLocked persists the store to disk, best-effort (a write failure is
// logged, never returned — tombstone durability is not on the request
// critical path). Callers must hold the write lock.
func (s *TombstoneStore) saveLocked() {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		log.Warn().Str("path", s.path).Err(err).Msg("could not create tombstone directory")
		return
	}
	raw, err := json.Marshal(s.data)
	if err != nil {
		log.Warn().Err(err).Msg("could not marshal tombstones")
		return
	}
	if err := os.WriteFile(s.path, raw, 0o644); err != nil {
		log.Warn().Str("path", s.path).Err(err).Msg("could not persist tombstones")
	}
}

// Since returns tombstones where deleted_at >= sinceTS, for sync-mode
// deleted-page lists.
func (s *TombstoneStore) Since(sinceTS time.Time) []models.Tombstone {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Tombstone
	for url, deletedAtISO := range s.data {
		deletedAt, err := time.Parse(time.RFC3339, deletedAtISO)
		if err != nil {
			continue
		}
		if !deletedAt.Before(sinceTS) {
			out = append(out, models.Tombstone{URL: url, DeletedAt: deletedAtISO})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeletedAt < out[j].DeletedAt })
	return out
}
