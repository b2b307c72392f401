// Copyright 2025 The RAGSEARCH Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/munbongshin/RAGSEARCH/pkg/search"
)

// PostgresStore keeps chunks in PostgreSQL with a pgvector column for the
// dense side and a tsvector column for the lexical side.
type PostgresStore struct {
	db        *sql.DB
	dimension int
}

const createCollectionsSchemaSQL = `
CREATE TABLE IF NOT EXISTS collections (
    id SERIAL PRIMARY KEY,
    name VARCHAR(63) NOT NULL UNIQUE,
    creator_id INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL
)`

const createChunksSchemaSQL = `
CREATE TABLE IF NOT EXISTS chunks (
    id UUID PRIMARY KEY,
    collection_id INTEGER NOT NULL REFERENCES collections(id),
    content TEXT NOT NULL,
    source TEXT NOT NULL,
    page INTEGER NOT NULL,
    processed_at TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL,
    embedding vector(%d),
    search_vector tsvector
)`

const createChunksIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_chunks_collection ON chunks(collection_id)`

const createChunksSourceIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_chunks_collection_source ON chunks(collection_id, source)`

const createChunksFTSIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_chunks_search_vector ON chunks USING GIN(search_vector)`

const createChunksANNIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_chunks_embedding ON chunks
USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`

// NewPostgresStore opens the store over an existing connection and
// initializes the schema.
func NewPostgresStore(db *sql.DB, dimension int) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", dimension)
	}

	s := &PostgresStore{db: db, dimension: dimension}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	statements := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		createCollectionsSchemaSQL,
		fmt.Sprintf(createChunksSchemaSQL, s.dimension),
		createChunksIndexSQL,
		createChunksSourceIndexSQL,
		createChunksFTSIndexSQL,
		createChunksANNIndexSQL,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) CreateCollection(ctx context.Context, name string, creatorID int) (int, error) {
	if err := ValidateCollectionName(name); err != nil {
		return 0, err
	}

	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM collections WHERE name = $1)", name).Scan(&exists)
	if err != nil {
		return 0, fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return 0, NewAlreadyExistsError(name)
	}

	var id int
	err = s.db.QueryRowContext(ctx,
		"INSERT INTO collections (name, creator_id, created_at) VALUES ($1, $2, $3) RETURNING id",
		name, creatorID, time.Now().UTC()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create collection: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) DeleteCollection(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Rollback if not committed

	var id int
	err = tx.QueryRowContext(ctx, "SELECT id FROM collections WHERE name = $1", name).Scan(&id)
	if err == sql.ErrNoRows {
		return NewNotFoundError(name)
	}
	if err != nil {
		return fmt.Errorf("failed to get collection: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE collection_id = $1", id); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM collections WHERE id = $1", id); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}

	return tx.Commit()
}

func (s *PostgresStore) GetCollection(ctx context.Context, name string) (*Collection, error) {
	var c Collection
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, creator_id, created_at FROM collections WHERE name = $1",
		name).Scan(&c.ID, &c.Name, &c.CreatorID, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, NewNotFoundError(name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get collection: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) ListCollections(ctx context.Context) ([]Collection, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, creator_id, created_at FROM collections ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer rows.Close()

	var collections []Collection
	for rows.Next() {
		var c Collection
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatorID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan collection: %w", err)
		}
		collections = append(collections, c)
	}
	return collections, rows.Err()
}

// InsertChunks validates and writes a batch inside one transaction.
// Records failing validation (empty content, wrong dimension) are skipped
// and counted; a database error aborts the whole batch.
func (s *PostgresStore) InsertChunks(ctx context.Context, collectionID int, records []ChunkRecord) (int, int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Rollback if not committed

	stored, failed := 0, 0
	now := time.Now().UTC()

	for _, rec := range records {
		if strings.TrimSpace(rec.Content) == "" || len(rec.Vector) != s.dimension {
			failed++
			continue
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO chunks (id, collection_id, content, source, page, processed_at, created_at, embedding, search_vector)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8::vector, to_tsvector('simple', $3))`,
			uuid.NewString(), collectionID, rec.Content,
			rec.Metadata.Source, rec.Metadata.Page, rec.Metadata.ProcessedAt, now,
			vectorLiteral(rec.Vector))
		if err != nil {
			return 0, 0, fmt.Errorf("failed to insert chunk: %w", err)
		}
		stored++
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return stored, failed, nil
}

func (s *PostgresStore) DeleteBySource(ctx context.Context, collectionID int, source string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM chunks WHERE collection_id = $1 AND source = $2", collectionID, source)
	if err != nil {
		return 0, fmt.Errorf("failed to delete by source: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return int(n), nil
}

func (s *PostgresStore) Sources(ctx context.Context, collectionID int, substr string) ([]string, error) {
	query := "SELECT DISTINCT source FROM chunks WHERE collection_id = $1"
	args := []any{collectionID}
	if substr != "" {
		query += " AND source ILIKE $2"
		args = append(args, "%"+substr+"%")
	}
	query += " ORDER BY source"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var sources []string
	for rows.Next() {
		var src string
		if err := rows.Scan(&src); err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

func (s *PostgresStore) Pages(ctx context.Context, collectionID int, source string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(DISTINCT page) FROM chunks WHERE collection_id = $1 AND source = $2",
		collectionID, source).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pages: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) PageContent(ctx context.Context, collectionID int, source string, page int) (string, error) {
	var content sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT string_agg(content, E'\n' ORDER BY created_at)
		FROM chunks WHERE collection_id = $1 AND source = $2 AND page = $3`,
		collectionID, source, page).Scan(&content)
	if err != nil {
		return "", fmt.Errorf("failed to get page content: %w", err)
	}
	return content.String, nil
}

func (s *PostgresStore) SourceContent(ctx context.Context, collectionID int, source string) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, source, page, processed_at, created_at
		FROM chunks WHERE collection_id = $1 AND source = $2
		ORDER BY page, created_at`, collectionID, source)
	if err != nil {
		return nil, fmt.Errorf("failed to get source content: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

func (s *PostgresStore) RecentChunks(ctx context.Context, collectionID, limit int) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, source, page, processed_at, created_at
		FROM chunks WHERE collection_id = $1
		ORDER BY created_at DESC LIMIT $2`, collectionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent chunks: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

func (s *PostgresStore) SourceExists(ctx context.Context, collectionID int, source string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM chunks WHERE collection_id = $1 AND source = $2)",
		collectionID, source).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check source: %w", err)
	}
	return exists, nil
}

// hybridSearchSQL ranks lexically and densely in two CTEs joined on chunk
// id. Lexical rank is ts_rank_cd normalized into [0,1]; the dense side is
// cosine similarity over the ANN index.
const hybridSearchSQL = `
WITH fts AS (
    SELECT c.id, c.collection_id, c.content, c.source, c.page, c.created_at,
           GREATEST(0, LEAST(1, ts_rank_cd(c.search_vector, q) / 2.0)) AS lexical,
           ts_headline('simple', c.content, q,
               'StartSel = <mark>, StopSel = </mark>, MaxWords=75, MinWords=25') AS snippet
    FROM chunks c, to_tsquery('simple', $2) q
    WHERE c.collection_id = ANY($1) AND c.search_vector @@ q
),
vec AS (
    SELECT c.id, c.collection_id, c.content, c.source, c.page, c.created_at,
           1 - (c.embedding <=> $3::vector) AS vscore
    FROM chunks c
    WHERE c.collection_id = ANY($1)
    ORDER BY c.embedding <=> $3::vector
    LIMIT $4
)
SELECT
    COALESCE(f.collection_id, v.collection_id),
    COALESCE(f.content, v.content),
    COALESCE(f.source, v.source),
    COALESCE(f.page, v.page),
    COALESCE(f.created_at, v.created_at),
    f.snippet, f.lexical, v.vscore
FROM fts f FULL OUTER JOIN vec v ON f.id = v.id`

const vectorOnlySearchSQL = `
SELECT c.collection_id, c.content, c.source, c.page, c.created_at,
       NULL, NULL, 1 - (c.embedding <=> $2::vector) AS vscore
FROM chunks c
WHERE c.collection_id = ANY($1)
ORDER BY c.embedding <=> $2::vector
LIMIT $3`

func (s *PostgresStore) Search(ctx context.Context, req SearchRequest) ([]SearchResult, error) {
	if len(req.CollectionIDs) == 0 || len(req.QueryVector) != s.dimension {
		return nil, nil
	}

	ids := make([]int64, len(req.CollectionIDs))
	for i, id := range req.CollectionIDs {
		ids[i] = int64(id)
	}
	// Over-fetch on the dense side so the combined filter still has
	// enough candidates after thresholding.
	fetch := req.Limit * 4
	if fetch < 20 {
		fetch = 20
	}

	var rows *sql.Rows
	var err error
	if req.TSQuery != "" {
		rows, err = s.db.QueryContext(ctx, hybridSearchSQL,
			pq.Array(ids), req.TSQuery, vectorLiteral(req.QueryVector), fetch)
	} else {
		rows, err = s.db.QueryContext(ctx, vectorOnlySearchSQL,
			pq.Array(ids), vectorLiteral(req.QueryVector), fetch)
	}
	if err != nil {
		return nil, search.NewSearchError("store", "search", "query failed", req.QueryText, err)
	}
	defer rows.Close()

	type scored struct {
		SearchResult
		createdAt time.Time
	}
	var candidates []scored
	for rows.Next() {
		var r scored
		var snippet sql.NullString
		var lexical, vscore sql.NullFloat64
		if err := rows.Scan(&r.CollectionID, &r.Content, &r.Source, &r.Page,
			&r.createdAt, &snippet, &lexical, &vscore); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}

		if !search.IsCandidate(lexical.Float64, vscore.Float64, req.ScoreMin,
			lexical.Valid, vscore.Valid) {
			continue
		}

		r.Snippet = snippet.String
		r.LexicalScore = lexical.Float64
		r.VectorScore = vscore.Float64
		r.Score = search.Fuse(lexical.Float64, vscore.Float64, lexical.Valid, vscore.Valid)
		if r.Score < req.ScoreMin {
			continue
		}
		candidates = append(candidates, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read results: %w", err)
	}

	if req.Sources != nil {
		kept := candidates[:0]
		for _, c := range candidates {
			if sourceAllowed(req.Sources, c.CollectionID, c.Source) {
				kept = append(kept, c)
			}
		}
		candidates = kept
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		if candidates[i].VectorScore != candidates[j].VectorScore {
			return candidates[i].VectorScore > candidates[j].VectorScore
		}
		if candidates[i].LexicalScore != candidates[j].LexicalScore {
			return candidates[i].LexicalScore > candidates[j].LexicalScore
		}
		return candidates[i].createdAt.Before(candidates[j].createdAt)
	})

	if req.Limit > 0 && len(candidates) > req.Limit {
		candidates = candidates[:req.Limit]
	}

	results := make([]SearchResult, len(candidates))
	for i, c := range candidates {
		results[i] = c.SearchResult
	}
	return results, nil
}

// sourceAllowed checks a (collection, source) pair against the filter
// set. A nil set allows everything; a present but empty entry allows
// nothing from that collection.
func sourceAllowed(sources map[int][]string, collectionID int, source string) bool {
	if sources == nil {
		return true
	}
	for _, s := range sources[collectionID] {
		if s == source {
			return true
		}
	}
	return false
}

func scanChunks(rows *sql.Rows) ([]Chunk, error) {
	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.Content, &c.Metadata.Source, &c.Metadata.Page,
			&c.Metadata.ProcessedAt, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// vectorLiteral renders a float32 slice as a pgvector input literal.
func vectorLiteral(vec []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
