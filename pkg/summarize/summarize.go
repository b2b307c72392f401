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

// Package summarize runs map-reduce summarization over stored document
// chunks and reports its progress as an event stream. Validation and
// chunk gathering happen up front so oversized inputs can be rejected
// before any model call; the stream itself is driven by the consumer and
// stops when the context is cancelled.
package summarize

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/munbongshin/RAGSEARCH/pkg/chunk"
	"github.com/munbongshin/RAGSEARCH/pkg/config"
	"github.com/munbongshin/RAGSEARCH/pkg/llm"
	"github.com/munbongshin/RAGSEARCH/pkg/store"
)

// EventType tags a stream event.
type EventType string

const (
	Progress EventType = "progress"
	Info     EventType = "info"
	Error    EventType = "error"
	Summary  EventType = "summary"
)

// Event is one frame of the summarization stream. Value holds a percent
// for Progress, a message for Info and Error, and a SummaryValue for the
// terminal Summary event.
type Event struct {
	Type  EventType `json:"type"`
	Value any       `json:"value"`
}

// SummaryValue is the payload of the terminal event: the summary split
// into word-bounded pages.
type SummaryValue struct {
	TotalPages int            `json:"total_pages"`
	Pages      []string       `json:"pages"`
	Metadata   map[string]any `json:"metadata"`
}

// TooLargeError rejects inputs beyond the page/chunk guard.
type TooLargeError struct {
	Pages  int
	Chunks int
}

func (e *TooLargeError) Error() string {
	if e.Pages > 0 {
		return fmt.Sprintf("document set spans %d pages, exceeding the summarization limit", e.Pages)
	}
	return fmt.Sprintf("document set splits into %d chunks, exceeding the summarization limit", e.Chunks)
}

// ProviderResolver resolves a chat backend by name. *llm.Manager
// satisfies it.
type ProviderResolver interface {
	Get(name string) (llm.Provider, error)
}

// Request names the documents to summarize and the backend to use. Page
// zero means whole sources; a positive page restricts the input to that
// page of each source.
type Request struct {
	CollectionID int
	Collection   string
	Sources      []string
	Page         int
	Backend      string
	Model        string
}

const (
	mapPromptFormat = "다음 텍스트를 요약해주세요. 주요 포인트만 추출하여 간단명료하게 작성하세요:\n\n%s\n\n요약:"
	pieceRetries    = 5
)

// Summarizer drives the map-reduce flow.
type Summarizer struct {
	store    store.Store
	llms     ProviderResolver
	splitter *chunk.TokenSplitter
	cfg      config.SummarizerConfig
	logger   *slog.Logger
}

// New creates a summarizer. cfg must carry defaults already applied.
func New(st store.Store, llms ProviderResolver, cfg config.SummarizerConfig, logger *slog.Logger) (*Summarizer, error) {
	splitter, err := chunk.NewTokenSplitter(cfg.PieceTokens, cfg.PieceOverlap)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{store: st, llms: llms, splitter: splitter, cfg: cfg, logger: logger}, nil
}

// Run validates and gathers the input synchronously, then returns the
// event stream. A TooLargeError, an unknown backend, or a store failure
// is reported as the error; everything after that flows through the
// channel, which is closed when the stream ends.
func (s *Summarizer) Run(ctx context.Context, req Request) (<-chan Event, error) {
	provider, err := s.llms.Get(req.Backend)
	if err != nil {
		return nil, err
	}

	text, totalPages, err := s.gather(ctx, req)
	if err != nil {
		return nil, err
	}
	if totalPages > s.cfg.MaxPages {
		return nil, &TooLargeError{Pages: totalPages}
	}

	pieces := s.splitter.Split(text)
	if len(pieces) > s.cfg.MaxChunks {
		return nil, &TooLargeError{Chunks: len(pieces)}
	}

	events := make(chan Event)
	go s.run(ctx, provider, req, pieces, events)
	return events, nil
}

func (s *Summarizer) gather(ctx context.Context, req Request) (string, int, error) {
	var parts []string
	totalPages := 0

	for _, source := range req.Sources {
		if req.Page > 0 {
			content, err := s.store.PageContent(ctx, req.CollectionID, source, req.Page)
			if err != nil {
				return "", 0, err
			}
			parts = append(parts, content)
			totalPages++
			continue
		}

		pages, err := s.store.Pages(ctx, req.CollectionID, source)
		if err != nil {
			return "", 0, err
		}
		totalPages += pages

		chunks, err := s.store.SourceContent(ctx, req.CollectionID, source)
		if err != nil {
			return "", 0, err
		}
		for _, c := range chunks {
			parts = append(parts, c.Content)
		}
	}

	return strings.Join(parts, "\n\n"), totalPages, nil
}

func (s *Summarizer) run(ctx context.Context, provider llm.Provider, req Request, pieces []string, events chan<- Event) {
	defer close(events)

	emit := func(e Event) bool {
		select {
		case events <- e:
			return true
		case <-ctx.Done():
			return false
		}
	}

	// Map phase. Cancellation is checked between pieces; a piece that
	// keeps failing is reported and skipped.
	summaries := make([]string, 0, len(pieces))
	for i, piece := range pieces {
		if ctx.Err() != nil {
			return
		}

		out, err := s.summarizePiece(ctx, provider, req.Model, piece, emit)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !emit(Event{Type: Error, Value: fmt.Sprintf("chunk %d failed to summarize: %v", i+1, err)}) {
				return
			}
			continue
		}
		summaries = append(summaries, out)

		if !emit(Event{Type: Progress, Value: float64(i+1) / float64(len(pieces)) * 100}) {
			return
		}
	}

	if len(summaries) == 0 {
		emit(Event{Type: Error, Value: "no chunk could be summarized"})
		return
	}

	// Reduce phase: one extra pass when the concatenation is too long.
	final := strings.Join(summaries, "\n\n")
	if len(strings.Fields(final)) > s.cfg.ReduceWords {
		if !emit(Event{Type: Info, Value: "compressing combined summary"}) {
			return
		}
		reduced, err := provider.Chat(ctx, llm.ChatRequest{
			Model:    req.Model,
			Messages: []llm.Message{{Role: "user", Content: fmt.Sprintf(mapPromptFormat, final)}},
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("reduce pass failed, keeping concatenated summary", "error", err)
		} else {
			final = reduced
		}
	}

	pages := paginate(final, s.cfg.PageWords)
	emit(Event{Type: Summary, Value: SummaryValue{
		TotalPages: len(pages),
		Pages:      pages,
		Metadata: map[string]any{
			"collection":   req.Collection,
			"sources":      req.Sources,
			"model":        fmt.Sprintf("%s-%s", provider.Name(), req.Model),
			"page_size":    s.cfg.PageWords,
			"total_chunks": len(pieces),
		},
	}})
}

func (s *Summarizer) summarizePiece(ctx context.Context, provider llm.Provider, model, piece string,
	emit func(Event) bool) (string, error) {

	var lastErr error
	for attempt := 1; attempt <= pieceRetries; attempt++ {
		out, err := provider.Chat(ctx, llm.ChatRequest{
			Model:    model,
			Messages: []llm.Message{{Role: "user", Content: fmt.Sprintf(mapPromptFormat, piece)}},
		})
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", err
		}

		if !emit(Event{Type: Info, Value: fmt.Sprintf("summarization error (attempt %d/%d): %v", attempt, pieceRetries, err)}) {
			return "", ctx.Err()
		}
		if attempt < pieceRetries {
			select {
			case <-time.After(time.Duration(attempt) * time.Second):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	return "", lastErr
}

// paginate splits text into pages of at most pageWords words.
func paginate(text string, pageWords int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{text}
	}

	var pages []string
	for start := 0; start < len(words); start += pageWords {
		end := start + pageWords
		if end > len(words) {
			end = len(words)
		}
		pages = append(pages, strings.Join(words[start:end], " "))
	}
	return pages
}
