package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/rs/zerolog/log"
)

// SQLiteStore backs Store with SQLite plus the sqlite-vec extension: one
// metadata table per collection and one dynamically-dimensioned vec0
// virtual table per collection for the embeddings themselves.
type SQLiteStore struct {
	conn *sql.DB
	dims map[Collection]int
}

// Open creates or attaches to a SQLite database at path, loading the
// sqlite-vec extension and ensuring the metadata tables exist.
func Open(path string) (*SQLiteStore, error) {
	sqlite_vec.Auto()

	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	var version string
	if err := conn.QueryRow("SELECT vec_version()").Scan(&version); err != nil {
		return nil, fmt.Errorf("sqlite-vec not available: %w", err)
	}
	log.Info().Str("sqlite_vec_version", version).Msg("vectorstore opened")

	store := &SQLiteStore{conn: conn, dims: map[Collection]int{}}
	if err := store.createMetadataTables(); err != nil {
		return nil, err
	}
	if err := store.loadExistingDims(); err != nil {
		return nil, err
	}
	return store, nil
}

var vecDimRe = regexp.MustCompile(`FLOAT\[(\d+)\]`)

// loadExistingDims recovers the embedding dimension of vec tables created in
// an earlier process lifetime, so queries work before the first upsert after
// a restart.
func (s *SQLiteStore) loadExistingDims() error {
	for _, coll := range []Collection{CollectionChunks, CollectionPages} {
		var createSQL string
		err := s.conn.QueryRow(
			`SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?`, vecTable(coll),
		).Scan(&createSQL)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to inspect vec table for %s: %w", coll, err)
		}
		if m := vecDimRe.FindStringSubmatch(createSQL); m != nil {
			dim, _ := strconv.Atoi(m[1])
			s.dims[coll] = dim
		}
	}
	return nil
}

func (s *SQLiteStore) createMetadataTables() error {
	for _, coll := range []Collection{CollectionChunks, CollectionPages} {
		sqlStmt := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			text TEXT NOT NULL,
			metadata TEXT NOT NULL
		)`, metadataTable(coll))
		if _, err := s.conn.Exec(sqlStmt); err != nil {
			return fmt.Errorf("failed to create metadata table for %s: %w", coll, err)
		}
	}
	return nil
}

func metadataTable(coll Collection) string { return "meta_" + string(coll) }
func vecTable(coll Collection) string      { return "vec_" + string(coll) }

// ensureVecTable creates the vec0 virtual table for coll with the given
// dimension the first time it is needed. vec0 tables need the dimension up
// front, and we only learn it from the first vector we see.
func (s *SQLiteStore) ensureVecTable(coll Collection, dim int) error {
	if existing, ok := s.dims[coll]; ok {
		if existing != dim {
			return fmt.Errorf("embedding dimension mismatch for %s: table is %d, got %d", coll, existing, dim)
		}
		return nil
	}

	sqlStmt := fmt.Sprintf(`
	CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(
		id TEXT PRIMARY KEY,
		embedding FLOAT[%d] distance_metric=cosine
	)`, vecTable(coll), dim)
	if _, err := s.conn.Exec(sqlStmt); err != nil {
		return fmt.Errorf("failed to create vec table for %s (dim %d): %w", coll, dim, err)
	}
	s.dims[coll] = dim
	return nil
}

func (s *SQLiteStore) Upsert(_ context.Context, coll Collection, record Record) error {
	if len(record.Vector) == 0 {
		return fmt.Errorf("upsert %s/%s: empty vector", coll, record.ID)
	}
	if err := s.ensureVecTable(coll, len(record.Vector)); err != nil {
		return err
	}

	metadataJSON, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	metaSQL := fmt.Sprintf(`INSERT OR REPLACE INTO %s (id, text, metadata) VALUES (?, ?, ?)`, metadataTable(coll))
	if _, err := tx.Exec(metaSQL, record.ID, record.Text, string(metadataJSON)); err != nil {
		return fmt.Errorf("failed to upsert metadata: %w", err)
	}

	vecSQL := fmt.Sprintf(`INSERT OR REPLACE INTO %s (id, embedding) VALUES (?, ?)`, vecTable(coll))
	if _, err := tx.Exec(vecSQL, record.ID, vectorLiteral(record.Vector)); err != nil {
		return fmt.Errorf("failed to upsert embedding: %w", err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) DeleteByID(_ context.Context, coll Collection, id string) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, metadataTable(coll)), id); err != nil {
		return fmt.Errorf("failed to delete metadata: %w", err)
	}
	if _, err := tx.Exec(fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, vecTable(coll)), id); err != nil {
		return fmt.Errorf("failed to delete embedding: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) DeleteWhere(ctx context.Context, coll Collection, where map[string]any) error {
	matches, err := s.GetByWhere(ctx, coll, where)
	if err != nil {
		return err
	}
	for _, rec := range matches {
		if err := s.DeleteByID(ctx, coll, rec.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) GetByID(_ context.Context, coll Collection, id string) (Record, bool, error) {
	var text, metadataJSON string
	err := s.conn.QueryRow(
		fmt.Sprintf(`SELECT text, metadata FROM %s WHERE id = ?`, metadataTable(coll)), id,
	).Scan(&text, &metadataJSON)
	if err == sql.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("failed to get record: %w", err)
	}

	var metadata map[string]any
	if err := json.Unmarshal([]byte(metadataJSON), &metadata); err != nil {
		return Record{}, false, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return Record{ID: id, Text: text, Metadata: metadata}, true, nil
}

func (s *SQLiteStore) GetByWhere(_ context.Context, coll Collection, where map[string]any) ([]Record, error) {
	rows, err := s.conn.Query(fmt.Sprintf(`SELECT id, text, metadata FROM %s ORDER BY id`, metadataTable(coll)))
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var id, text, metadataJSON string
		if err := rows.Scan(&id, &text, &metadataJSON); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		var metadata map[string]any
		if err := json.Unmarshal([]byte(metadataJSON), &metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
		if matchesWhere(metadata, where) {
			out = append(out, Record{ID: id, Text: text, Metadata: metadata})
		}
	}
	return out, nil
}

// Query runs a cosine-distance nearest-neighbour search via the vec0
// virtual table's MATCH operator. A non-empty where filter is pushed into
// the KNN query as an `id IN (...)` pre-filter, so the k nearest rows are
// chosen within the filtered set rather than truncated globally first.
func (s *SQLiteStore) Query(ctx context.Context, coll Collection, vector []float32, k int, where map[string]any) ([]QueryResult, error) {
	if _, ok := s.dims[coll]; !ok {
		return nil, nil // nothing has ever been upserted into this collection
	}

	args := []any{vectorLiteral(vector), k}
	idFilter := ""
	if len(where) > 0 {
		matches, err := s.GetByWhere(ctx, coll, where)
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			return nil, nil
		}
		placeholders := make([]string, len(matches))
		for i, rec := range matches {
			placeholders[i] = "?"
			args = append(args, rec.ID)
		}
		idFilter = " AND v.id IN (" + strings.Join(placeholders, ",") + ")"
	}

	querySQL := fmt.Sprintf(`
		SELECT v.id, v.distance, m.text, m.metadata
		FROM %s v
		JOIN %s m ON m.id = v.id
		WHERE v.embedding MATCH ? AND k = ?%s
		ORDER BY v.distance`, vecTable(coll), metadataTable(coll), idFilter)

	rows, err := s.conn.Query(querySQL, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query nearest neighbours: %w", err)
	}
	defer rows.Close()

	var out []QueryResult
	for rows.Next() {
		var id string
		var distance float64
		var text, metadataJSON string
		if err := rows.Scan(&id, &distance, &text, &metadataJSON); err != nil {
			return nil, fmt.Errorf("failed to scan query row: %w", err)
		}
		var metadata map[string]any
		if err := json.Unmarshal([]byte(metadataJSON), &metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
		out = append(out, QueryResult{Record: Record{ID: id, Text: text, Metadata: metadata}, Distance: distance})
	}
	return out, nil
}

func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

// vectorLiteral renders a float32 vector as the bracketed string literal
// sqlite-vec expects, e.g. "[0.1,0.2,0.3]".
func vectorLiteral(v []float32) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(float64(f), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
