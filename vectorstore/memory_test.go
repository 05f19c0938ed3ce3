package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreUpsertAndGetByID(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	rec := Record{ID: "a", Vector: []float32{1, 0, 0}, Text: "hello", Metadata: map[string]any{"url": "https://x"}}
	require.NoError(t, s.Upsert(ctx, CollectionChunks, rec))

	got, ok, err := s.GetByID(ctx, CollectionChunks, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello", got.Text)

	_, ok, err = s.GetByID(ctx, CollectionPages, "a")
	require.NoError(t, err)
	assert.False(t, ok, "collections are isolated")
}

func TestMemoryStoreDeleteWhere(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Upsert(ctx, CollectionChunks, Record{ID: "a", Vector: []float32{1, 0}, Metadata: map[string]any{"url": "u1"}}))
	require.NoError(t, s.Upsert(ctx, CollectionChunks, Record{ID: "b", Vector: []float32{0, 1}, Metadata: map[string]any{"url": "u1"}}))
	require.NoError(t, s.Upsert(ctx, CollectionChunks, Record{ID: "c", Vector: []float32{1, 1}, Metadata: map[string]any{"url": "u2"}}))

	require.NoError(t, s.DeleteWhere(ctx, CollectionChunks, map[string]any{"url": "u1"}))

	remaining, err := s.GetByWhere(ctx, CollectionChunks, nil)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "c", remaining[0].ID)
}

func TestMemoryStoreQueryOrdersByDistance(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Upsert(ctx, CollectionChunks, Record{ID: "same", Vector: []float32{1, 0}}))
	require.NoError(t, s.Upsert(ctx, CollectionChunks, Record{ID: "orthogonal", Vector: []float32{0, 1}}))
	require.NoError(t, s.Upsert(ctx, CollectionChunks, Record{ID: "opposite", Vector: []float32{-1, 0}}))

	results, err := s.Query(ctx, CollectionChunks, []float32{1, 0}, 3, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "same", results[0].Record.ID)
	assert.InDelta(t, 0.0, results[0].Distance, 1e-9)
	assert.Equal(t, "opposite", results[2].Record.ID)
	assert.InDelta(t, 2.0, results[2].Distance, 1e-9)
}

func TestMemoryStoreQueryRespectsK(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Upsert(ctx, CollectionChunks, Record{ID: string(rune('a' + i)), Vector: []float32{float32(i), 1}}))
	}
	results, err := s.Query(ctx, CollectionChunks, []float32{0, 1}, 2, nil)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

var _ Store = (*MemoryStore)(nil)
var _ Store = (*SQLiteStore)(nil)
