package ingest

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/munbongshin/RAGSEARCH/pkg/chunk"
	"github.com/munbongshin/RAGSEARCH/pkg/extract"
	"github.com/munbongshin/RAGSEARCH/pkg/store"
)

// flakyEmbedder fails for texts containing a marker.
type flakyEmbedder struct {
	dim int
}

func (f *flakyEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	if strings.Contains(text, "POISON") {
		return nil, errors.New("model crashed")
	}
	vec := make([]float32, f.dim)
	vec[0] = 1
	return vec, nil
}

func (f *flakyEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, err := f.EmbedOne(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (f *flakyEmbedder) Dimension() int { return f.dim }

func newTestIngestor(t *testing.T) (*Ingestor, store.Store, int) {
	t.Helper()

	st, err := store.NewChromemStore("", 4)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	collID, err := st.CreateCollection(ctx, "docs", 1)
	require.NoError(t, err)

	ing := New(extract.NewRegistry(), chunk.New(chunk.Config{ChunkSize: 64, ChunkOverlap: 8}),
		&flakyEmbedder{dim: 4}, st, 2, slog.Default())
	return ing, st, collID
}

func TestIngestStoresChunks(t *testing.T) {
	ctx := context.Background()
	ing, st, collID := newTestIngestor(t)

	text := strings.Repeat("the quarterly report covers revenue and costs. ", 10)
	report, err := ing.Ingest(ctx, collID, "/uploads/q3.txt", []byte(text))
	require.NoError(t, err)

	assert.Equal(t, "q3.txt", report.Source)
	assert.Greater(t, report.Stored, 1)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, 0, report.Deleted)

	exists, err := st.SourceExists(ctx, collID, "q3.txt")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestIngestSkipsFailedChunks(t *testing.T) {
	ctx := context.Background()
	ing, _, collID := newTestIngestor(t)

	text := "good paragraph here.\n\nPOISON paragraph that fails.\n\nanother good one."
	report, err := ing.Ingest(ctx, collID, "mixed.txt", []byte(text))
	require.NoError(t, err)

	assert.Greater(t, report.Stored, 0)
	assert.Greater(t, report.Failed, 0)
}

func TestReingestReplacesSource(t *testing.T) {
	ctx := context.Background()
	ing, st, collID := newTestIngestor(t)

	first, err := ing.Ingest(ctx, collID, "doc.txt", []byte("original content of the document"))
	require.NoError(t, err)
	require.Greater(t, first.Stored, 0)

	second, err := ing.Ingest(ctx, collID, "doc.txt", []byte("revised content"))
	require.NoError(t, err)
	assert.Equal(t, first.Stored, second.Deleted)

	chunks, err := st.SourceContent(ctx, collID, "doc.txt")
	require.NoError(t, err)
	require.Len(t, chunks, second.Stored)
	assert.Contains(t, chunks[0].Content, "revised")
}

func TestIngestUnsupportedFormat(t *testing.T) {
	ctx := context.Background()
	ing, _, collID := newTestIngestor(t)

	_, err := ing.Ingest(ctx, collID, "binary.exe", []byte{0x4d, 0x5a})
	var extErr *extract.ExtractionError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, extract.UnsupportedFormat, extErr.Kind)
}

func TestDeleteSources(t *testing.T) {
	ctx := context.Background()
	ing, _, collID := newTestIngestor(t)

	_, err := ing.Ingest(ctx, collID, "a.txt", []byte("content of file a"))
	require.NoError(t, err)
	_, err = ing.Ingest(ctx, collID, "b.txt", []byte("content of file b"))
	require.NoError(t, err)

	report, err := ing.DeleteSources(ctx, collID, []string{"a.txt", "missing.txt", "b.txt"})
	require.NoError(t, err)

	assert.Equal(t, []string{"a.txt", "b.txt"}, report.Successful)
	assert.Equal(t, []string{"missing.txt"}, report.Failed)
	assert.Greater(t, report.DeletedCount, 1)
}
