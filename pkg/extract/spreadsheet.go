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
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"
)

// SpreadsheetExtractor emits one page record per worksheet. Rows are
// serialized as one JSON object per line, with "key" columns promoted to
// the front so identifying fields survive chunk truncation.
type SpreadsheetExtractor struct{}

func NewSpreadsheetExtractor() *SpreadsheetExtractor {
	return &SpreadsheetExtractor{}
}

func (e *SpreadsheetExtractor) Name() string {
	return "SpreadsheetExtractor"
}

func (e *SpreadsheetExtractor) CanExtract(filename string) bool {
	return hasExt(filename, ".xlsx", ".xlsm", ".xls")
}

func (e *SpreadsheetExtractor) Priority() int {
	return 10
}

func (e *SpreadsheetExtractor) Extract(data []byte, filename string) ([]PageRecord, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, NewCorruptFileError(filename, err)
	}
	defer f.Close()

	var records []PageRecord
	for i, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) < 2 {
			continue
		}

		header := rows[0]
		body := rows[1:]
		keyCols := keyColumns(header, body)

		var b strings.Builder
		fmt.Fprintf(&b, "### %s\n", sheet)
		for _, row := range body {
			if line := serializeRow(header, row, keyCols); line != "" {
				b.WriteString(line)
				b.WriteString("\n")
			}
		}

		records = append(records, PageRecord{Page: i + 1, Content: b.String()})
	}

	return records, nil
}

// serializeRow renders a row as a JSON object string with key columns
// first, then the rest in sheet order. Empty cells are skipped.
func serializeRow(header, row []string, keyCols []int) string {
	isKey := make(map[int]bool, len(keyCols))
	for _, c := range keyCols {
		isKey[c] = true
	}

	order := append([]int{}, keyCols...)
	for c := range header {
		if !isKey[c] {
			order = append(order, c)
		}
	}

	var parts []string
	for _, c := range order {
		if c >= len(row) || strings.TrimSpace(row[c]) == "" {
			continue
		}
		name := strings.TrimSpace(header[c])
		if name == "" {
			name = fmt.Sprintf("col%d", c+1)
		}
		key, _ := json.Marshal(name)
		val, _ := json.Marshal(strings.TrimSpace(row[c]))
		parts = append(parts, string(key)+": "+string(val))
	}
	if len(parts) == 0 {
		return ""
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// keyColumns scores each column by uniqueness, completeness, pattern
// consistency, and how often its values are referenced from other
// columns. Columns at or above the 70th percentile of the normalized
// score are keys; if none qualify the first column is.
func keyColumns(header []string, body [][]string) []int {
	n := len(header)
	if n == 0 {
		return nil
	}

	cells := func(col int) []string {
		var out []string
		for _, row := range body {
			if col < len(row) {
				if v := strings.TrimSpace(row[col]); v != "" {
					out = append(out, v)
				}
			}
		}
		return out
	}

	// Value occurrence counts across the whole sheet, for the reference
	// frequency factor.
	occurrences := make(map[string]int)
	for _, row := range body {
		for _, cell := range row {
			if v := strings.TrimSpace(cell); v != "" {
				occurrences[v]++
			}
		}
	}

	scores := make([]float64, n)
	for col := 0; col < n; col++ {
		values := cells(col)
		if len(values) == 0 {
			continue
		}

		distinct := make(map[string]bool)
		referenced := 0
		for _, v := range values {
			distinct[v] = true
			if occurrences[v] > 1 {
				referenced++
			}
		}

		uniqueness := float64(len(distinct)) / float64(len(values))
		completeness := float64(len(values)) / float64(len(body))
		consistency := patternConsistency(values)
		refFreq := float64(referenced) / float64(len(values))
		if refFreq == 0 {
			// Never-referenced values still identify the row.
			refFreq = 0.5
		}

		scores[col] = uniqueness * completeness * consistency * refFreq
	}

	// Normalize to [0, 1].
	max := 0.0
	for _, s := range scores {
		if s > max {
			max = s
		}
	}
	if max == 0 {
		return []int{0}
	}
	for i := range scores {
		scores[i] /= max
	}

	sorted := append([]float64{}, scores...)
	sort.Float64s(sorted)
	threshold := sorted[(len(sorted)*70)/100]

	var keys []int
	for col, s := range scores {
		if s >= threshold && s > 0 {
			keys = append(keys, col)
		}
	}
	if len(keys) == 0 {
		keys = []int{0}
	}
	return keys
}

var (
	numericRe = regexp.MustCompile(`^-?[\d,.]+$`)
	dateRe    = regexp.MustCompile(`^\d{4}[-/.]\d{1,2}[-/.]\d{1,2}`)
)

// patternConsistency is the fraction of values sharing the column's
// dominant shape class (numeric, date, or free text).
func patternConsistency(values []string) float64 {
	counts := map[string]int{}
	for _, v := range values {
		switch {
		case numericRe.MatchString(v):
			counts["numeric"]++
		case dateRe.MatchString(v):
			counts["date"]++
		default:
			counts["text"]++
		}
	}
	best := 0
	for _, c := range counts {
		if c > best {
			best = c
		}
	}
	return float64(best) / float64(len(values))
}
