package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/munbongshin/RAGSEARCH/pkg/config"
	"github.com/munbongshin/RAGSEARCH/pkg/llm"
	"github.com/munbongshin/RAGSEARCH/pkg/store"
)

// fakeProvider summarizes by prefixing, failing the first failFirst
// calls.
type fakeProvider struct {
	calls     atomic.Int32
	failFirst int32
}

func (f *fakeProvider) Name() string { return "Fake" }

func (f *fakeProvider) Chat(ctx context.Context, req llm.ChatRequest) (string, error) {
	if f.calls.Add(1) <= f.failFirst {
		return "", errors.New("backend hiccup")
	}
	content := req.Messages[len(req.Messages)-1].Content
	return fmt.Sprintf("summary#%d(%d chars)", f.calls.Load(), len(content)), nil
}

func (f *fakeProvider) Models(ctx context.Context) ([]string, error) {
	return []string{"m"}, nil
}

type fakeResolver struct{ p llm.Provider }

func (r fakeResolver) Get(name string) (llm.Provider, error) {
	if name != "" && name != "fake" {
		return nil, fmt.Errorf("unknown LLM backend: %s", name)
	}
	return r.p, nil
}

func testCfg() config.SummarizerConfig {
	return config.SummarizerConfig{
		MaxPages:     100,
		MaxChunks:    100,
		PieceTokens:  50,
		PieceOverlap: 5,
		ReduceWords:  10240,
		PageWords:    2048,
	}
}

func seededStore(t *testing.T, pages int) (store.Store, int) {
	t.Helper()

	st, err := store.NewChromemStore("", 4)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	collID, err := st.CreateCollection(ctx, "docs", 1)
	require.NoError(t, err)

	recs := make([]store.ChunkRecord, 0, pages)
	for p := 1; p <= pages; p++ {
		recs = append(recs, store.ChunkRecord{
			Content:  fmt.Sprintf("page %d talks about quarterly revenue and market share.", p),
			Metadata: store.Metadata{Source: "report.pdf", Page: p, ProcessedAt: time.Now()},
			Vector:   []float32{1, 0, 0, 0},
		})
	}
	stored, failed, err := st.InsertChunks(ctx, collID, recs)
	require.NoError(t, err)
	require.Equal(t, pages, stored)
	require.Zero(t, failed)

	return st, collID
}

func collect(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	for e := range events {
		out = append(out, e)
	}
	return out
}

func TestRunEmitsProgressAndSummary(t *testing.T) {
	ctx := context.Background()
	st, collID := seededStore(t, 3)

	s, err := New(st, fakeResolver{&fakeProvider{}}, testCfg(), nil)
	require.NoError(t, err)

	events, err := s.Run(ctx, Request{
		CollectionID: collID,
		Collection:   "docs",
		Sources:      []string{"report.pdf"},
		Backend:      "fake",
		Model:        "m",
	})
	require.NoError(t, err)

	all := collect(t, events)
	require.NotEmpty(t, all)

	last := all[len(all)-1]
	require.Equal(t, Summary, last.Type)

	sv, ok := last.Value.(SummaryValue)
	require.True(t, ok)
	assert.Equal(t, 1, sv.TotalPages)
	require.Len(t, sv.Pages, 1)
	assert.Contains(t, sv.Pages[0], "summary#")
	assert.Equal(t, "Fake-m", sv.Metadata["model"])
	assert.Equal(t, []string{"report.pdf"}, sv.Metadata["sources"])

	var lastProgress float64
	for _, e := range all[:len(all)-1] {
		require.Equal(t, Progress, e.Type)
		pct := e.Value.(float64)
		assert.Greater(t, pct, lastProgress)
		lastProgress = pct
	}
	assert.InDelta(t, 100, lastProgress, 0.01)
}

func TestRunRejectsTooManyPages(t *testing.T) {
	ctx := context.Background()
	st, collID := seededStore(t, 3)

	cfg := testCfg()
	cfg.MaxPages = 2
	s, err := New(st, fakeResolver{&fakeProvider{}}, cfg, nil)
	require.NoError(t, err)

	_, err = s.Run(ctx, Request{CollectionID: collID, Sources: []string{"report.pdf"}, Backend: "fake"})
	var tooLarge *TooLargeError
	require.ErrorAs(t, err, &tooLarge)
	assert.Equal(t, 3, tooLarge.Pages)
}

func TestRunRejectsTooManyChunks(t *testing.T) {
	ctx := context.Background()
	st, collID := seededStore(t, 5)

	cfg := testCfg()
	cfg.MaxChunks = 1
	cfg.PieceTokens = 10
	cfg.PieceOverlap = 2
	s, err := New(st, fakeResolver{&fakeProvider{}}, cfg, nil)
	require.NoError(t, err)

	_, err = s.Run(ctx, Request{CollectionID: collID, Sources: []string{"report.pdf"}, Backend: "fake"})
	var tooLarge *TooLargeError
	require.ErrorAs(t, err, &tooLarge)
	assert.Greater(t, tooLarge.Chunks, 1)
}

func TestRunRejectsUnknownBackend(t *testing.T) {
	ctx := context.Background()
	st, collID := seededStore(t, 1)

	s, err := New(st, fakeResolver{&fakeProvider{}}, testCfg(), nil)
	require.NoError(t, err)

	_, err = s.Run(ctx, Request{CollectionID: collID, Sources: []string{"report.pdf"}, Backend: "claude"})
	require.Error(t, err)
}

func TestRunRetriesTransientFailure(t *testing.T) {
	ctx := context.Background()
	st, collID := seededStore(t, 1)

	s, err := New(st, fakeResolver{&fakeProvider{failFirst: 1}}, testCfg(), nil)
	require.NoError(t, err)

	events, err := s.Run(ctx, Request{
		CollectionID: collID,
		Sources:      []string{"report.pdf"},
		Backend:      "fake",
		Model:        "m",
	})
	require.NoError(t, err)

	all := collect(t, events)
	var sawInfo, sawSummary bool
	for _, e := range all {
		switch e.Type {
		case Info:
			sawInfo = true
		case Summary:
			sawSummary = true
		}
	}
	assert.True(t, sawInfo, "transient failure should surface an info event")
	assert.True(t, sawSummary)
}

func TestRunPageMode(t *testing.T) {
	ctx := context.Background()
	st, collID := seededStore(t, 3)

	s, err := New(st, fakeResolver{&fakeProvider{}}, testCfg(), nil)
	require.NoError(t, err)

	events, err := s.Run(ctx, Request{
		CollectionID: collID,
		Sources:      []string{"report.pdf"},
		Page:         2,
		Backend:      "fake",
		Model:        "m",
	})
	require.NoError(t, err)

	all := collect(t, events)
	last := all[len(all)-1]
	require.Equal(t, Summary, last.Type)
}

func TestRunCancellation(t *testing.T) {
	st, collID := seededStore(t, 20)

	cfg := testCfg()
	cfg.PieceTokens = 15
	cfg.PieceOverlap = 2
	s, err := New(st, fakeResolver{&fakeProvider{}}, cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	events, err := s.Run(ctx, Request{
		CollectionID: collID,
		Sources:      []string{"report.pdf"},
		Backend:      "fake",
		Model:        "m",
	})
	require.NoError(t, err)

	// Consume one event, then walk away.
	first, ok := <-events
	require.True(t, ok)
	require.Equal(t, Progress, first.Type)
	cancel()

	for e := range events {
		assert.NotEqual(t, Summary, e.Type, "summary must not arrive after cancellation")
	}
}

func TestPaginate(t *testing.T) {
	pages := paginate(strings.Repeat("word ", 10), 4)
	require.Len(t, pages, 3)
	assert.Equal(t, "word word word word", pages[0])
	assert.Equal(t, "word word", pages[2])

	assert.Equal(t, []string{""}, paginate("", 4))
}
