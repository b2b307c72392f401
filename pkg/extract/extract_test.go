package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/korean"
)

func TestRegistryRoutesByExtension(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		filename string
		want     string
	}{
		{"notes.txt", "TextExtractor"},
		{"readme.md", "TextExtractor"},
		{"page.html", "HTMLExtractor"},
		{"report.pdf", "PDFExtractor"},
		{"memo.docx", "WordExtractor"},
		{"data.xlsx", "SpreadsheetExtractor"},
		{"deck.pptx", "PresentationExtractor"},
		{"doc.hwp", "HWPExtractor"},
	}
	for _, tt := range tests {
		e, err := r.ForFile(tt.filename)
		require.NoError(t, err, tt.filename)
		assert.Equal(t, tt.want, e.Name(), tt.filename)
	}
}

func TestRegistryUnsupportedFormat(t *testing.T) {
	r := NewRegistry()
	_, err := r.ForFile("binary.exe")

	var extErr *ExtractionError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, UnsupportedFormat, extErr.Kind)
}

func TestExtractPlainText(t *testing.T) {
	r := NewRegistry()

	records, err := r.Extract([]byte("hello   world\r\nsecond line"), "/tmp/uploads/notes.txt")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "notes.txt", records[0].Source)
	assert.Equal(t, 1, records[0].Page)
	assert.Equal(t, "hello world\nsecond line", records[0].Content)
}

func TestExtractEmptyFileReportsNoText(t *testing.T) {
	r := NewRegistry()
	_, err := r.Extract([]byte("   \n  "), "empty.txt")

	var extErr *ExtractionError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, NoTextExtracted, extErr.Kind)
}

func TestDecodeTextCP949Fallback(t *testing.T) {
	encoded, err := korean.EUCKR.NewEncoder().Bytes([]byte("한국어 문서"))
	require.NoError(t, err)

	decoded, err := DecodeText(encoded, "legacy.txt")
	require.NoError(t, err)
	assert.Equal(t, "한국어 문서", decoded)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"collapses spaces", "a   b\t\tc", "a b c"},
		{"keeps newlines", "a\n\nb", "a\n\nb"},
		{"windows line endings", "a\r\nb", "a\nb"},
		{"strips control chars", "a\x01\x02b", "ab"},
		{"trims", "  a  ", "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestMarkdownStripping(t *testing.T) {
	md := "# Title\n\nSome **bold** and [a link](https://example.com).\n\n> quoted\n"
	e := NewTextExtractor()

	records, err := e.Extract([]byte(md), "doc.md")
	require.NoError(t, err)
	require.Len(t, records, 1)

	content := records[0].Content
	assert.Contains(t, content, "Title")
	assert.Contains(t, content, "bold")
	assert.Contains(t, content, "a link")
	assert.NotContains(t, content, "#")
	assert.NotContains(t, content, "**")
	assert.NotContains(t, content, "https://example.com")
}

func TestHTMLExtraction(t *testing.T) {
	page := `<html><head><style>p{color:red}</style><script>alert(1)</script></head>
<body><h1>Heading</h1><p>First paragraph.</p><p>Second.</p></body></html>`

	r := NewRegistry()
	records, err := r.Extract([]byte(page), "page.html")
	require.NoError(t, err)
	require.Len(t, records, 1)

	content := records[0].Content
	assert.Contains(t, content, "Heading")
	assert.Contains(t, content, "First paragraph.")
	assert.Contains(t, content, "Second.")
	assert.NotContains(t, content, "alert")
	assert.NotContains(t, content, "color:red")
	// Block boundaries become paragraph breaks.
	assert.Contains(t, content, "\n")
}

func TestRenderTables(t *testing.T) {
	rows := [][]string{
		{"free text line"},
		{"name", "amount"},
		{"alpha", "10"},
		{"beta", "20"},
		{"trailing note"},
	}

	table := renderTables(rows)
	assert.Contains(t, table, "| name | amount |")
	assert.Contains(t, table, "| --- | --- |")
	assert.Contains(t, table, "| alpha | 10 |")
	assert.NotContains(t, table, "free text")
}

func TestRenderTablesIgnoresSingleRows(t *testing.T) {
	rows := [][]string{
		{"text"},
		{"a", "b"},
		{"only one aligned row follows nothing"},
	}
	assert.Empty(t, renderTables(rows))
}

func TestSerializeRowPromotesKeyColumns(t *testing.T) {
	header := []string{"notes", "id", "value"}
	row := []string{"something", "A-1", "42"}

	line := serializeRow(header, row, []int{1})
	assert.True(t, len(line) > 0)
	assert.Less(t, strings.Index(line, `"id"`), strings.Index(line, `"notes"`))
	assert.Contains(t, line, `"value": "42"`)
}

func TestKeyColumnsFallsBackToFirst(t *testing.T) {
	header := []string{"a", "b"}
	body := [][]string{{"", ""}, {"", ""}}

	assert.Equal(t, []int{0}, keyColumns(header, body))
}

func TestKeyColumnsPrefersUniqueCompleteColumn(t *testing.T) {
	header := []string{"category", "id"}
	body := [][]string{
		{"x", "001"},
		{"x", "002"},
		{"x", "003"},
		{"x", "004"},
	}

	keys := keyColumns(header, body)
	assert.Contains(t, keys, 1)
}

func TestDocxParagraphs(t *testing.T) {
	content := `<w:document><w:body>
<w:p><w:r><w:t>First paragraph.</w:t></w:r></w:p>
<w:p><w:r><w:t>Second </w:t></w:r><w:r><w:t>paragraph.</w:t></w:r></w:p>
</w:body></w:document>`

	paras := docxParagraphs(content)
	require.Len(t, paras, 2)
	assert.Equal(t, "First paragraph.", paras[0])
	assert.Equal(t, "Second paragraph.", paras[1])
}

func TestSlideText(t *testing.T) {
	slide := []byte(`<p:sld><p:txBody>
<a:p><a:r><a:t>Slide title</a:t></a:r></a:p>
<a:p><a:r><a:t>Bullet one</a:t></a:r></a:p>
</p:txBody></p:sld>`)

	text := slideText(slide)
	assert.Contains(t, text, "Slide title")
	assert.Contains(t, text, "Bullet one")
}
