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

// Package ingest runs the document pipeline: extract pages, chunk them,
// embed each chunk, and write the batch to the store. Re-ingesting a
// source first deletes its previous chunks; chunks are never updated in
// place.
package ingest

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/munbongshin/RAGSEARCH/pkg/chunk"
	"github.com/munbongshin/RAGSEARCH/pkg/embedder"
	"github.com/munbongshin/RAGSEARCH/pkg/extract"
	"github.com/munbongshin/RAGSEARCH/pkg/store"
)

// Report is the outcome of one ingest.
type Report struct {
	Source  string `json:"source"`
	Stored  int    `json:"stored"`
	Failed  int    `json:"failed"`
	Deleted int    `json:"deleted"`
}

// DeleteReport is the outcome of a multi-source delete.
type DeleteReport struct {
	Successful   []string `json:"successful"`
	Failed       []string `json:"failed"`
	DeletedCount int      `json:"deleted_count"`
}

// Ingestor is the sole writer that creates chunks.
type Ingestor struct {
	registry *extract.Registry
	chunker  chunk.Chunker
	embed    embedder.Provider
	store    store.Store
	workers  int64
	logger   *slog.Logger
}

// New creates an ingestor. workers bounds concurrent embedding calls.
func New(registry *extract.Registry, chunker chunk.Chunker, embed embedder.Provider,
	st store.Store, workers int, logger *slog.Logger) *Ingestor {
	if workers <= 0 {
		workers = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		registry: registry,
		chunker:  chunker,
		embed:    embed,
		store:    st,
		workers:  int64(workers),
		logger:   logger,
	}
}

// Ingest processes one uploaded file into a collection. Individual chunk
// failures are logged and skipped; a store failure aborts the whole
// ingest with zero stored.
func (g *Ingestor) Ingest(ctx context.Context, collectionID int, filename string, data []byte) (*Report, error) {
	source := filepath.Base(filename)
	report := &Report{Source: source}

	pages, err := g.registry.Extract(data, filename)
	if err != nil {
		return nil, err
	}

	type pending struct {
		content string
		page    int
	}
	var work []pending
	for _, page := range pages {
		for _, piece := range g.chunker.Chunk(page.Content) {
			work = append(work, pending{content: piece, page: page.Page})
		}
	}
	if len(work) == 0 {
		return nil, extract.NewNoTextError(filename)
	}

	// Embed concurrently under a bounded semaphore; order is preserved
	// by index.
	processedAt := time.Now().UTC()
	records := make([]store.ChunkRecord, len(work))
	failed := make([]bool, len(work))

	sem := semaphore.NewWeighted(g.workers)
	var wg sync.WaitGroup
	for i, w := range work {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		wg.Add(1)
		go func(i int, w pending) {
			defer wg.Done()
			defer sem.Release(1)

			vec, err := g.embed.EmbedOne(ctx, w.content)
			if err != nil {
				g.logger.Warn("chunk embedding failed, skipping",
					"source", source, "page", w.page, "error", err)
				failed[i] = true
				return
			}
			records[i] = store.ChunkRecord{
				Content: w.content,
				Metadata: store.Metadata{
					Source:      source,
					Page:        w.page,
					ProcessedAt: processedAt,
				},
				Vector: vec,
			}
		}(i, w)
	}
	wg.Wait()

	batch := make([]store.ChunkRecord, 0, len(records))
	for i, rec := range records {
		if failed[i] {
			report.Failed++
			continue
		}
		batch = append(batch, rec)
	}

	// Re-ingestion replaces: old chunks of the source go first.
	deleted, err := g.store.DeleteBySource(ctx, collectionID, source)
	if err != nil {
		return nil, err
	}
	report.Deleted = deleted

	stored, storeFailed, err := g.store.InsertChunks(ctx, collectionID, batch)
	if err != nil {
		return nil, err
	}
	report.Stored = stored
	report.Failed += storeFailed

	g.logger.Info("ingest finished", "source", source,
		"stored", report.Stored, "failed", report.Failed, "deleted", report.Deleted)
	return report, nil
}

// DeleteSources removes every chunk of each named source, reporting
// per-source success. Sources with no stored chunks count as failed.
func (g *Ingestor) DeleteSources(ctx context.Context, collectionID int, sources []string) (*DeleteReport, error) {
	report := &DeleteReport{}
	for _, source := range sources {
		exists, err := g.store.SourceExists(ctx, collectionID, source)
		if err != nil {
			return nil, err
		}
		if !exists {
			report.Failed = append(report.Failed, source)
			continue
		}

		n, err := g.store.DeleteBySource(ctx, collectionID, source)
		if err != nil {
			return nil, err
		}
		report.Successful = append(report.Successful, source)
		report.DeletedCount += n
	}
	return report, nil
}
