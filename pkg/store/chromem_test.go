package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 4

func newTestStore(t *testing.T) *ChromemStore {
	t.Helper()
	s, err := NewChromemStore("", testDim)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func vec(a, b, c, d float32) []float32 {
	return []float32{a, b, c, d}
}

func record(content, source string, page int, v []float32) ChunkRecord {
	return ChunkRecord{
		Content:  content,
		Metadata: Metadata{Source: source, Page: page, ProcessedAt: time.Now()},
		Vector:   v,
	}
}

func TestCreateCollection(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateCollection(ctx, "policies", 7)
	require.NoError(t, err)
	assert.Equal(t, 1, id)

	col, err := s.GetCollection(ctx, "policies")
	require.NoError(t, err)
	assert.Equal(t, 7, col.CreatorID)

	_, err = s.CreateCollection(ctx, "policies", 7)
	assert.True(t, IsKind(err, AlreadyExists))

	_, err = s.CreateCollection(ctx, "x", 7)
	assert.True(t, IsKind(err, InvalidName))
}

func TestDeleteCollection(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.CreateCollection(ctx, "temp", 1)
	require.NoError(t, err)

	require.NoError(t, s.DeleteCollection(ctx, "temp"))
	assert.True(t, IsKind(s.DeleteCollection(ctx, "temp"), NotFound))
	_, err = s.GetCollection(ctx, "temp")
	assert.True(t, IsKind(err, NotFound))
}

func TestInsertChunksCountsFailures(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateCollection(ctx, "docs", 1)
	require.NoError(t, err)

	stored, failed, err := s.InsertChunks(ctx, id, []ChunkRecord{
		record("valid chunk", "a.pdf", 1, vec(1, 0, 0, 0)),
		record("", "a.pdf", 1, vec(1, 0, 0, 0)),                        // empty content
		record("wrong dim", "a.pdf", 1, []float32{1, 0}),               // dimension mismatch
		record("another valid chunk", "a.pdf", 2, vec(0, 1, 0, 0)),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, stored)
	assert.Equal(t, 2, failed)
}

func TestSourceBrowsing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateCollection(ctx, "docs", 1)
	require.NoError(t, err)

	_, _, err = s.InsertChunks(ctx, id, []ChunkRecord{
		record("alpha page one", "report.pdf", 1, vec(1, 0, 0, 0)),
		record("alpha page one more", "report.pdf", 1, vec(0, 1, 0, 0)),
		record("alpha page two", "report.pdf", 2, vec(0, 0, 1, 0)),
		record("beta content", "notes.txt", 1, vec(0, 0, 0, 1)),
	})
	require.NoError(t, err)

	sources, err := s.Sources(ctx, id, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"notes.txt", "report.pdf"}, sources)

	sources, err = s.Sources(ctx, id, "REPORT")
	require.NoError(t, err)
	assert.Equal(t, []string{"report.pdf"}, sources)

	pages, err := s.Pages(ctx, id, "report.pdf")
	require.NoError(t, err)
	assert.Equal(t, 2, pages)

	content, err := s.PageContent(ctx, id, "report.pdf", 1)
	require.NoError(t, err)
	assert.Equal(t, "alpha page one\nalpha page one more", content)

	chunks, err := s.SourceContent(ctx, id, "report.pdf")
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, 1, chunks[0].Metadata.Page)
	assert.Equal(t, 2, chunks[2].Metadata.Page)

	exists, err := s.SourceExists(ctx, id, "report.pdf")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = s.SourceExists(ctx, id, "missing.pdf")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDeleteBySource(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateCollection(ctx, "docs", 1)
	require.NoError(t, err)

	_, _, err = s.InsertChunks(ctx, id, []ChunkRecord{
		record("one", "gone.pdf", 1, vec(1, 0, 0, 0)),
		record("two", "gone.pdf", 2, vec(0, 1, 0, 0)),
		record("keep", "kept.pdf", 1, vec(0, 0, 1, 0)),
	})
	require.NoError(t, err)

	n, err := s.DeleteBySource(ctx, id, "gone.pdf")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.DeleteBySource(ctx, id, "gone.pdf")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	sources, err := s.Sources(ctx, id, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"kept.pdf"}, sources)
}

func TestRecentChunks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateCollection(ctx, "docs", 1)
	require.NoError(t, err)

	_, _, err = s.InsertChunks(ctx, id, []ChunkRecord{
		record("first", "a.txt", 1, vec(1, 0, 0, 0)),
		record("second", "a.txt", 2, vec(0, 1, 0, 0)),
		record("third", "a.txt", 3, vec(0, 0, 1, 0)),
	})
	require.NoError(t, err)

	chunks, err := s.RecentChunks(ctx, id, 2)
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
}

func TestHybridSearch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateCollection(ctx, "docs", 1)
	require.NoError(t, err)

	_, _, err = s.InsertChunks(ctx, id, []ChunkRecord{
		record("the disaster recovery procedure requires offsite backups", "dr.pdf", 1, vec(1, 0, 0, 0)),
		record("lunch menu for the cafeteria", "menu.txt", 1, vec(0, 0, 0, 1)),
	})
	require.NoError(t, err)

	results, err := s.Search(ctx, SearchRequest{
		CollectionIDs: []int{id},
		QueryText:     "disaster recovery",
		Keywords:      []string{"disaster", "recovery"},
		QueryVector:   vec(1, 0, 0, 0),
		Limit:         5,
		ScoreMin:      0.5,
	})
	require.NoError(t, err)
	require.NotEmpty(t, results)

	top := results[0]
	assert.Equal(t, "dr.pdf", top.Source)
	assert.Greater(t, top.LexicalScore, 0.0)
	assert.Greater(t, top.VectorScore, 0.9)
	assert.GreaterOrEqual(t, top.Score, 0.5)
	assert.Contains(t, top.Snippet, "<mark>")
}

func TestSearchSourceFilter(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateCollection(ctx, "docs", 1)
	require.NoError(t, err)

	_, _, err = s.InsertChunks(ctx, id, []ChunkRecord{
		record("matching text in allowed source", "allowed.pdf", 1, vec(1, 0, 0, 0)),
		record("matching text in blocked source", "blocked.pdf", 1, vec(1, 0, 0, 0)),
	})
	require.NoError(t, err)

	results, err := s.Search(ctx, SearchRequest{
		CollectionIDs: []int{id},
		Keywords:      []string{"matching"},
		QueryVector:   vec(1, 0, 0, 0),
		Limit:         5,
		ScoreMin:      0.3,
		Sources:       map[int][]string{id: {"allowed.pdf"}},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "allowed.pdf", results[0].Source)
}

func TestSearchScoreThreshold(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateCollection(ctx, "docs", 1)
	require.NoError(t, err)

	_, _, err = s.InsertChunks(ctx, id, []ChunkRecord{
		record("completely unrelated content", "x.txt", 1, vec(0, 0, 0, 1)),
	})
	require.NoError(t, err)

	// Orthogonal vector and no keyword hits: nothing clears the bar.
	results, err := s.Search(ctx, SearchRequest{
		CollectionIDs: []int{id},
		Keywords:      []string{"absent"},
		QueryVector:   vec(1, 0, 0, 0),
		Limit:         5,
		ScoreMin:      0.5,
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestValidateCollectionName(t *testing.T) {
	valid := []string{"docs", "my-collection", "a_b_c", "abc123", "a.b.c"}
	for _, name := range valid {
		assert.NoError(t, ValidateCollectionName(name), name)
	}

	invalid := []string{
		"ab",            // too short
		"-starts-bad",   // starts with hyphen
		"ends-bad-",     // ends with hyphen
		"has space",     // whitespace
		"a..b",          // consecutive periods
		"192.168.0.1",   // IPv4 address
		"한국어이름",     // non-ASCII
	}
	for _, name := range invalid {
		assert.True(t, IsKind(ValidateCollectionName(name), InvalidName), name)
	}
}

func TestVectorLiteral(t *testing.T) {
	assert.Equal(t, "[1,0.5,-2]", vectorLiteral([]float32{1, 0.5, -2}))
	assert.Equal(t, "[]", vectorLiteral(nil))
}

func TestLexicalScore(t *testing.T) {
	assert.Equal(t, 0.0, lexicalScore("anything", nil))
	assert.Equal(t, 0.0, lexicalScore("no hits here", []string{"absent"}))

	full := lexicalScore("backup backup backup policy policy policy", []string{"backup", "policy"})
	assert.Equal(t, 1.0, full)

	partial := lexicalScore("only backup mentioned", []string{"backup", "policy"})
	assert.Greater(t, partial, 0.0)
	assert.Less(t, partial, 1.0)
}

func TestMarkSnippet(t *testing.T) {
	snippet := markSnippet("the backup procedure is documented here", []string{"backup"})
	assert.Contains(t, snippet, "<mark>backup</mark>")

	assert.Empty(t, markSnippet("nothing relevant", []string{"absent"}))
	assert.Empty(t, markSnippet("anything", nil))
}
