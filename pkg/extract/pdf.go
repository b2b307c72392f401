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

package extract

import (
	"bytes"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFExtractor emits one page record per PDF page. Rows whose glyphs
// cluster into multiple aligned cells are additionally rendered as a
// Markdown table appended to the page text.
type PDFExtractor struct{}

func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

func (e *PDFExtractor) Name() string {
	return "PDFExtractor"
}

func (e *PDFExtractor) CanExtract(filename string) bool {
	return hasExt(filename, ".pdf")
}

func (e *PDFExtractor) Priority() int {
	return 10
}

func (e *PDFExtractor) Extract(data []byte, filename string) ([]PageRecord, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, NewCorruptFileError(filename, err)
	}

	var records []PageRecord
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		rows, err := page.GetTextByRow()
		if err != nil {
			// A single unreadable page should not sink the document.
			continue
		}

		var cellRows [][]string
		for _, row := range rows {
			cellRows = append(cellRows, rowCells(row))
		}

		text := renderRows(cellRows)
		if table := renderTables(cellRows); table != "" {
			text += "\n\n" + table
		}

		records = append(records, PageRecord{Page: i, Content: text})
	}

	return records, nil
}

// cellGap is the horizontal distance, in text-space units, beyond which
// two glyph runs are treated as separate cells.
const cellGap = 18.0

// rowCells merges a row's glyph runs into cells, splitting where the
// horizontal gap exceeds cellGap.
func rowCells(row *pdf.Row) []string {
	var cells []string
	var current strings.Builder
	prevEnd := -1.0

	for _, t := range row.Content {
		if prevEnd >= 0 && t.X-prevEnd > cellGap && strings.TrimSpace(current.String()) != "" {
			cells = append(cells, strings.TrimSpace(current.String()))
			current.Reset()
		}
		current.WriteString(t.S)
		prevEnd = t.X + t.W
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		cells = append(cells, s)
	}
	return cells
}

func renderRows(cellRows [][]string) string {
	var lines []string
	for _, cells := range cellRows {
		if line := strings.TrimSpace(strings.Join(cells, " ")); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// renderTables finds runs of two or more consecutive rows with the same
// cell count (at least two cells) and renders each run as a Markdown
// table.
func renderTables(cellRows [][]string) string {
	var tables []string
	start := -1

	flush := func(end int) {
		if start < 0 || end-start < 2 {
			start = -1
			return
		}
		var b strings.Builder
		for i := start; i < end; i++ {
			b.WriteString("| " + strings.Join(cellRows[i], " | ") + " |\n")
			if i == start {
				sep := make([]string, len(cellRows[i]))
				for j := range sep {
					sep[j] = "---"
				}
				b.WriteString("| " + strings.Join(sep, " | ") + " |\n")
			}
		}
		tables = append(tables, strings.TrimRight(b.String(), "\n"))
		start = -1
	}

	for i, cells := range cellRows {
		switch {
		case len(cells) < 2:
			flush(i)
		case start < 0:
			start = i
		case len(cells) != len(cellRows[start]):
			flush(i)
			start = i
		}
	}
	flush(len(cellRows))

	return strings.Join(tables, "\n\n")
}
