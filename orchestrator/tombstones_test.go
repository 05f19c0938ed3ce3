package orchestrator

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTombstoneStoreAddAndSince(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tombstones.json")
	store := NewTombstoneStore(path)

	checkpoint := time.Now().Add(-time.Second)
	store.Add("https://example.com/deleted-page")

	results := store.Since(checkpoint)
	require.Len(t, results, 1)
	assert.Equal(t, "https://example.com/deleted-page", results[0].URL)

	future := time.Now().Add(24 * time.Hour)
	assert.Empty(t, store.Since(future))
}

func TestTombstoneStorePersistsAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tombstones.json")
	store := NewTombstoneStore(path)
	store.Add("https://example.com/a")

	reloaded := NewTombstoneStore(path)
	results := reloaded.Since(time.Now().Add(-time.Hour))
	require.Len(t, results, 1)
	assert.Equal(t, "https://example.com/a", results[0].URL)
}

func TestTombstoneStoreMissingFileStartsEmpty(t *testing.T) {
	store := NewTombstoneStore(filepath.Join(t.TempDir(), "does-not-exist.json"))
	assert.Empty(t, store.Since(time.Time{}))
}

func TestTombstoneStoreEvictsOldestAbove1000(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tombstones.json")
	store := NewTombstoneStore(path)

	for i := 0; i < 1005; i++ {
		store.Add(fmt.Sprintf("https://example.com/page-%d", i))
		time.Sleep(time.Microsecond)
	}

	store.mu.RLock()
	count := len(store.data)
	store.mu.RUnlock()
	assert.LessOrEqual(t, count, tombstoneFIFOCap)
}
