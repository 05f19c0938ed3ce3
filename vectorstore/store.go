// Package vectorstore is the low-level persistence abstraction backing the
// vector index.
// It knows nothing about pages, chunks or OpenFeeder semantics — just ids,
// vectors, text and metadata, grouped into named collections.
package vectorstore

import "context"

// Collection names the two logical collections kept: one row per chunk,
// one row per page.
type Collection string

const (
	CollectionChunks Collection = "chunks"
	CollectionPages  Collection = "pages"
)

// Record is a single stored item: an id, its embedding, the source text,
// and an arbitrary metadata bag used both for denormalised retrieval and
// for equality filters on GetByWhere/DeleteWhere.
type Record struct {
	ID       string
	Vector   []float32
	Text     string
	Metadata map[string]any
}

// QueryResult pairs a Record with its cosine distance to the query vector
// (lower is closer).
type QueryResult struct {
	Record   Record
	Distance float64
}

// Store is the backing-implementation contract: upsert, delete-by-key,
// delete-by-where, get-by-id, get-by-where, and nearest-neighbour query
// under cosine distance with an optional metadata equality filter.
type Store interface {
	Upsert(ctx context.Context, coll Collection, record Record) error
	DeleteByID(ctx context.Context, coll Collection, id string) error
	DeleteWhere(ctx context.Context, coll Collection, where map[string]any) error
	GetByID(ctx context.Context, coll Collection, id string) (Record, bool, error)
	GetByWhere(ctx context.Context, coll Collection, where map[string]any) ([]Record, error)
	Query(ctx context.Context, coll Collection, vector []float32, k int, where map[string]any) ([]QueryResult, error)
	Close() error
}

// matchesWhere reports whether record's metadata satisfies every equality
// condition in where.
func matchesWhere(metadata map[string]any, where map[string]any) bool {
	for k, v := range where {
		if metadata[k] != v {
			return false
		}
	}
	return true
}
