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
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"

	"github.com/munbongshin/RAGSEARCH/pkg/search"
)

// ChromemStore is the embedded single-node backend. Vectors live in a
// chromem database; chunk bookkeeping (sources, pages, insertion order)
// lives in a JSON sidecar so the store can answer browsing queries that
// chromem's similarity API cannot.
//
// Lexical ranking is computed in process from keyword term frequency, so
// hybrid scoring behaves the same as the PostgreSQL backend.
type ChromemStore struct {
	db          *chromem.DB
	persistPath string
	dimension   int

	mu          sync.RWMutex
	meta        *chromemMeta
	collections map[string]*chromem.Collection

	embeddingFunc chromem.EmbeddingFunc
}

type docMeta struct {
	Source      string    `json:"source"`
	Page        int       `json:"page"`
	Seq         int       `json:"seq"`
	ProcessedAt time.Time `json:"processed_at"`
	CreatedAt   time.Time `json:"created_at"`
}

type collMeta struct {
	ID        int                `json:"id"`
	Name      string             `json:"name"`
	CreatorID int                `json:"creator_id"`
	CreatedAt time.Time          `json:"created_at"`
	NextSeq   int                `json:"next_seq"`
	Docs      map[string]docMeta `json:"docs"`
}

type chromemMeta struct {
	NextID      int                  `json:"next_id"`
	Collections map[string]*collMeta `json:"collections"`
}

// NewChromemStore opens (or creates) an embedded store. An empty path
// keeps everything in memory.
func NewChromemStore(path string, dimension int) (*ChromemStore, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", dimension)
	}

	var db *chromem.DB
	if path != "" {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create persist directory: %w", err)
		}
		dbPath := filepath.Join(path, "vectors.gob")
		if _, statErr := os.Stat(dbPath); statErr == nil {
			loaded, err := chromem.NewPersistentDB(dbPath, false)
			if err != nil {
				slog.Warn("failed to load existing vector database, creating new",
					"path", dbPath, "error", err)
				db = chromem.NewDB()
			} else {
				db = loaded
				slog.Info("loaded vector database from file", "path", dbPath)
			}
		} else {
			db = chromem.NewDB()
		}
	} else {
		db = chromem.NewDB()
	}

	s := &ChromemStore{
		db:          db,
		persistPath: path,
		dimension:   dimension,
		meta:        &chromemMeta{NextID: 1, Collections: make(map[string]*collMeta)},
		collections: make(map[string]*chromem.Collection),
		// Vectors are always pre-computed; chromem must never embed.
		embeddingFunc: func(ctx context.Context, text string) ([]float32, error) {
			return nil, fmt.Errorf("embedding function called but vectors are pre-computed")
		},
	}

	if path != "" {
		if err := s.loadMeta(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *ChromemStore) metaPath() string {
	return filepath.Join(s.persistPath, "meta.json")
}

func (s *ChromemStore) loadMeta() error {
	data, err := os.ReadFile(s.metaPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read store metadata: %w", err)
	}
	if err := json.Unmarshal(data, s.meta); err != nil {
		return fmt.Errorf("failed to parse store metadata: %w", err)
	}
	return nil
}

// persist flushes vectors and metadata when persistence is enabled.
// Callers must hold the write lock.
func (s *ChromemStore) persist() error {
	if s.persistPath == "" {
		return nil
	}

	if err := s.db.Export(filepath.Join(s.persistPath, "vectors.gob"), false, ""); err != nil {
		return fmt.Errorf("failed to persist vectors: %w", err)
	}

	data, err := json.Marshal(s.meta)
	if err != nil {
		return fmt.Errorf("failed to marshal store metadata: %w", err)
	}
	if err := os.WriteFile(s.metaPath(), data, 0o644); err != nil {
		return fmt.Errorf("failed to write store metadata: %w", err)
	}
	return nil
}

// getCollection gets or creates the chromem collection handle.
// Callers must hold at least the read lock.
func (s *ChromemStore) getCollection(name string) (*chromem.Collection, error) {
	if col, ok := s.collections[name]; ok {
		return col, nil
	}
	col, err := s.db.GetOrCreateCollection(name, nil, s.embeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("failed to get/create collection %q: %w", name, err)
	}
	s.collections[name] = col
	return col, nil
}

func (s *ChromemStore) collByID(id int) (*collMeta, bool) {
	for _, cm := range s.meta.Collections {
		if cm.ID == id {
			return cm, true
		}
	}
	return nil, false
}

func (s *ChromemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persist()
}

func (s *ChromemStore) CreateCollection(ctx context.Context, name string, creatorID int) (int, error) {
	if err := ValidateCollectionName(name); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.meta.Collections[name]; ok {
		return 0, NewAlreadyExistsError(name)
	}
	if _, err := s.getCollection(name); err != nil {
		return 0, err
	}

	cm := &collMeta{
		ID:        s.meta.NextID,
		Name:      name,
		CreatorID: creatorID,
		CreatedAt: time.Now().UTC(),
		NextSeq:   1,
		Docs:      make(map[string]docMeta),
	}
	s.meta.NextID++
	s.meta.Collections[name] = cm

	if err := s.persist(); err != nil {
		return 0, err
	}
	return cm.ID, nil
}

func (s *ChromemStore) DeleteCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.meta.Collections[name]; !ok {
		return NewNotFoundError(name)
	}
	if err := s.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	delete(s.collections, name)
	delete(s.meta.Collections, name)

	return s.persist()
}

func (s *ChromemStore) GetCollection(ctx context.Context, name string) (*Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cm, ok := s.meta.Collections[name]
	if !ok {
		return nil, NewNotFoundError(name)
	}
	return &Collection{ID: cm.ID, Name: cm.Name, CreatorID: cm.CreatorID, CreatedAt: cm.CreatedAt}, nil
}

func (s *ChromemStore) ListCollections(ctx context.Context) ([]Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	collections := make([]Collection, 0, len(s.meta.Collections))
	for _, cm := range s.meta.Collections {
		collections = append(collections, Collection{
			ID: cm.ID, Name: cm.Name, CreatorID: cm.CreatorID, CreatedAt: cm.CreatedAt,
		})
	}
	sort.Slice(collections, func(i, j int) bool { return collections[i].Name < collections[j].Name })
	return collections, nil
}

func (s *ChromemStore) InsertChunks(ctx context.Context, collectionID int, records []ChunkRecord) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cm, ok := s.collByID(collectionID)
	if !ok {
		return 0, 0, NewNotFoundError(strconv.Itoa(collectionID))
	}
	col, err := s.getCollection(cm.Name)
	if err != nil {
		return 0, 0, err
	}

	now := time.Now().UTC()
	var docs []chromem.Document
	var metas []docMeta
	failed := 0

	for _, rec := range records {
		if strings.TrimSpace(rec.Content) == "" || len(rec.Vector) != s.dimension {
			failed++
			continue
		}
		docs = append(docs, chromem.Document{
			ID:      uuid.NewString(),
			Content: rec.Content,
			Metadata: map[string]string{
				"source": rec.Metadata.Source,
				"page":   strconv.Itoa(rec.Metadata.Page),
			},
			Embedding: rec.Vector,
		})
		metas = append(metas, docMeta{
			Source:      rec.Metadata.Source,
			Page:        rec.Metadata.Page,
			ProcessedAt: rec.Metadata.ProcessedAt,
			CreatedAt:   now,
		})
	}

	if len(docs) > 0 {
		if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
			return 0, 0, fmt.Errorf("failed to insert chunks: %w", err)
		}
		for i, doc := range docs {
			metas[i].Seq = cm.NextSeq
			cm.NextSeq++
			cm.Docs[doc.ID] = metas[i]
		}
	}

	if err := s.persist(); err != nil {
		slog.Warn("failed to persist after insert", "error", err)
	}
	return len(docs), failed, nil
}

func (s *ChromemStore) DeleteBySource(ctx context.Context, collectionID int, source string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cm, ok := s.collByID(collectionID)
	if !ok {
		return 0, NewNotFoundError(strconv.Itoa(collectionID))
	}
	col, err := s.getCollection(cm.Name)
	if err != nil {
		return 0, err
	}

	var ids []string
	for id, dm := range cm.Docs {
		if dm.Source == source {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if err := col.Delete(ctx, nil, nil, ids...); err != nil {
		return 0, fmt.Errorf("failed to delete by source: %w", err)
	}
	for _, id := range ids {
		delete(cm.Docs, id)
	}

	if err := s.persist(); err != nil {
		slog.Warn("failed to persist after delete", "error", err)
	}
	return len(ids), nil
}

func (s *ChromemStore) Sources(ctx context.Context, collectionID int, substr string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cm, ok := s.collByID(collectionID)
	if !ok {
		return nil, NewNotFoundError(strconv.Itoa(collectionID))
	}

	seen := make(map[string]bool)
	var sources []string
	needle := strings.ToLower(substr)
	for _, dm := range cm.Docs {
		if seen[dm.Source] {
			continue
		}
		if substr != "" && !strings.Contains(strings.ToLower(dm.Source), needle) {
			continue
		}
		seen[dm.Source] = true
		sources = append(sources, dm.Source)
	}
	sort.Strings(sources)
	return sources, nil
}

func (s *ChromemStore) Pages(ctx context.Context, collectionID int, source string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cm, ok := s.collByID(collectionID)
	if !ok {
		return 0, NewNotFoundError(strconv.Itoa(collectionID))
	}

	pages := make(map[int]bool)
	for _, dm := range cm.Docs {
		if dm.Source == source {
			pages[dm.Page] = true
		}
	}
	return len(pages), nil
}

func (s *ChromemStore) PageContent(ctx context.Context, collectionID int, source string, page int) (string, error) {
	chunks, err := s.sortedChunks(ctx, collectionID, func(dm docMeta) bool {
		return dm.Source == source && dm.Page == page
	})
	if err != nil {
		return "", err
	}

	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Content
	}
	return strings.Join(parts, "\n"), nil
}

func (s *ChromemStore) SourceContent(ctx context.Context, collectionID int, source string) ([]Chunk, error) {
	return s.sortedChunks(ctx, collectionID, func(dm docMeta) bool {
		return dm.Source == source
	})
}

func (s *ChromemStore) RecentChunks(ctx context.Context, collectionID, limit int) ([]Chunk, error) {
	chunks, err := s.sortedChunks(ctx, collectionID, func(docMeta) bool { return true })
	if err != nil {
		return nil, err
	}

	// sortedChunks orders by page then insertion; recency wants newest
	// first.
	sort.Slice(chunks, func(i, j int) bool {
		return chunks[i].CreatedAt.After(chunks[j].CreatedAt)
	})
	if limit > 0 && len(chunks) > limit {
		chunks = chunks[:limit]
	}
	return chunks, nil
}

func (s *ChromemStore) SourceExists(ctx context.Context, collectionID int, source string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cm, ok := s.collByID(collectionID)
	if !ok {
		return false, NewNotFoundError(strconv.Itoa(collectionID))
	}
	for _, dm := range cm.Docs {
		if dm.Source == source {
			return true, nil
		}
	}
	return false, nil
}

// sortedChunks loads the chunks matching the predicate, ordered by page
// then insertion sequence.
func (s *ChromemStore) sortedChunks(ctx context.Context, collectionID int, match func(docMeta) bool) ([]Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cm, ok := s.collByID(collectionID)
	if !ok {
		return nil, NewNotFoundError(strconv.Itoa(collectionID))
	}
	col, err := s.getCollection(cm.Name)
	if err != nil {
		return nil, err
	}

	type entry struct {
		id string
		dm docMeta
	}
	var entries []entry
	for id, dm := range cm.Docs {
		if match(dm) {
			entries = append(entries, entry{id: id, dm: dm})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].dm.Page != entries[j].dm.Page {
			return entries[i].dm.Page < entries[j].dm.Page
		}
		return entries[i].dm.Seq < entries[j].dm.Seq
	})

	chunks := make([]Chunk, 0, len(entries))
	for _, e := range entries {
		doc, err := col.GetByID(ctx, e.id)
		if err != nil {
			continue
		}
		chunks = append(chunks, Chunk{
			ID:      e.id,
			Content: doc.Content,
			Metadata: Metadata{
				Source:      e.dm.Source,
				Page:        e.dm.Page,
				ProcessedAt: e.dm.ProcessedAt,
			},
			CreatedAt: e.dm.CreatedAt,
		})
	}
	return chunks, nil
}

func (s *ChromemStore) Search(ctx context.Context, req SearchRequest) ([]SearchResult, error) {
	if len(req.CollectionIDs) == 0 || len(req.QueryVector) != s.dimension {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	fetch := req.Limit * 4
	if fetch < 20 {
		fetch = 20
	}

	type scored struct {
		SearchResult
		seq int
	}
	var candidates []scored

	for _, id := range req.CollectionIDs {
		cm, ok := s.collByID(id)
		if !ok {
			continue
		}
		col, err := s.getCollection(cm.Name)
		if err != nil {
			return nil, err
		}

		n := fetch
		if count := col.Count(); n > count {
			n = count
		}
		if n == 0 {
			continue
		}

		results, err := col.QueryEmbedding(ctx, req.QueryVector, n, nil, nil)
		if err != nil {
			return nil, search.NewSearchError("store", "search", "query failed", req.QueryText, err)
		}

		for _, r := range results {
			dm := cm.Docs[r.ID]
			vector := search.Clamp(float64(r.Similarity))
			lexical := lexicalScore(r.Content, req.Keywords)
			hasLexical := lexical > 0

			if !search.IsCandidate(lexical, vector, req.ScoreMin, hasLexical, true) {
				continue
			}
			score := search.Fuse(lexical, vector, hasLexical, true)
			if score < req.ScoreMin {
				continue
			}
			if !sourceAllowed(req.Sources, id, dm.Source) {
				continue
			}

			candidates = append(candidates, scored{
				SearchResult: SearchResult{
					CollectionID: id,
					Content:      r.Content,
					Source:       dm.Source,
					Page:         dm.Page,
					Snippet:      markSnippet(r.Content, req.Keywords),
					LexicalScore: lexical,
					VectorScore:  vector,
					Score:        score,
				},
				seq: dm.Seq,
			})
		}
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
		return candidates[i].seq < candidates[j].seq
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

// lexicalScore is an in-process stand-in for ts_rank_cd: per keyword,
// occurrences count up to a saturation of three, normalized so a text
// matching every keyword repeatedly scores 1.
func lexicalScore(content string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	lower := strings.ToLower(content)

	total := 0.0
	for _, kw := range keywords {
		count := strings.Count(lower, strings.ToLower(kw))
		if count > 3 {
			count = 3
		}
		total += float64(count) / 3
	}
	return search.Clamp(total / float64(len(keywords)))
}

// snippetWindow is the word budget around the first keyword hit.
const snippetWindow = 75

// markSnippet highlights keyword hits with <mark> tags inside a window of
// words around the first hit.
func markSnippet(content string, keywords []string) string {
	if len(keywords) == 0 {
		return ""
	}

	words := strings.Fields(content)
	first := -1
	for i, w := range words {
		if matchesAny(w, keywords) {
			first = i
			break
		}
	}
	if first < 0 {
		return ""
	}

	start := first - snippetWindow/3
	if start < 0 {
		start = 0
	}
	end := start + snippetWindow
	if end > len(words) {
		end = len(words)
	}

	out := make([]string, 0, end-start)
	for _, w := range words[start:end] {
		if matchesAny(w, keywords) {
			out = append(out, "<mark>"+w+"</mark>")
		} else {
			out = append(out, w)
		}
	}
	return strings.Join(out, " ")
}

func matchesAny(word string, keywords []string) bool {
	lower := strings.ToLower(word)
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
