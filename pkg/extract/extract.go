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

// Package extract turns uploaded documents into ordered page records of
// plain text. Each supported format has its own extractor; a registry
// routes by file extension.
package extract

import (
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/korean"
)

// PageRecord is one page of extracted text. For formats without native
// pages the number is a synthetic monotonic integer starting at 1.
type PageRecord struct {
	Source  string `json:"source"`
	Page    int    `json:"page"`
	Content string `json:"content"`
}

// Extractor handles one or more file formats.
type Extractor interface {
	// Name identifies the extractor in logs.
	Name() string
	// CanExtract checks if this extractor handles the filename.
	CanExtract(filename string) bool
	// Extract produces page records from the raw file bytes.
	Extract(data []byte, filename string) ([]PageRecord, error)
	// Priority orders extractors when several can handle a file;
	// higher wins.
	Priority() int
}

// Registry routes files to extractors.
type Registry struct {
	extractors []Extractor
}

// NewRegistry creates a registry with all built-in extractors.
func NewRegistry() *Registry {
	r := &Registry{}
	r.Register(NewTextExtractor())
	r.Register(NewHTMLExtractor())
	r.Register(NewPDFExtractor())
	r.Register(NewWordExtractor())
	r.Register(NewSpreadsheetExtractor())
	r.Register(NewPresentationExtractor())
	r.Register(NewHWPExtractor())
	return r
}

// Register adds an extractor, keeping the list sorted by priority.
func (r *Registry) Register(e Extractor) {
	r.extractors = append(r.extractors, e)
	sort.SliceStable(r.extractors, func(i, j int) bool {
		return r.extractors[i].Priority() > r.extractors[j].Priority()
	})
}

// ForFile returns the highest-priority extractor for the filename, or an
// UnsupportedFormat error.
func (r *Registry) ForFile(filename string) (Extractor, error) {
	for _, e := range r.extractors {
		if e.CanExtract(filename) {
			return e, nil
		}
	}
	return nil, NewUnsupportedFormatError(filename)
}

// Extract routes the file to its extractor and normalizes every record.
// The record source is the filename basename.
func (r *Registry) Extract(data []byte, filename string) ([]PageRecord, error) {
	e, err := r.ForFile(filename)
	if err != nil {
		return nil, err
	}

	records, err := e.Extract(data, filename)
	if err != nil {
		return nil, err
	}

	source := filepath.Base(filename)
	out := records[:0]
	for _, rec := range records {
		rec.Source = source
		rec.Content = Normalize(rec.Content)
		if rec.Content != "" {
			out = append(out, rec)
		}
	}
	if len(out) == 0 {
		return nil, NewNoTextError(filename)
	}
	return out, nil
}

// Normalize collapses whitespace runs that contain no newline into a
// single space, normalizes line endings, and strips control characters
// below U+0020 except newline.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var b strings.Builder
	b.Grow(len(text))

	spacePending := false
	for _, r := range text {
		switch {
		case r == '\n':
			spacePending = false
			b.WriteRune('\n')
		case r == ' ' || r == '\t':
			spacePending = true
		case r < 0x20:
			// drop other control characters
		default:
			if spacePending && b.Len() > 0 {
				b.WriteRune(' ')
			}
			spacePending = false
			b.WriteRune(r)
		}
	}

	return strings.TrimSpace(b.String())
}

// DecodeText interprets raw bytes as UTF-8, falling back to CP949 for
// legacy Korean documents. Bytes that fail both decodes return a
// DecodeError.
func DecodeText(data []byte, filename string) (string, error) {
	if utf8.Valid(data) {
		return string(data), nil
	}
	decoded, err := korean.EUCKR.NewDecoder().Bytes(data)
	if err != nil {
		return "", NewDecodeError(filename, err)
	}
	return string(decoded), nil
}

func hasExt(filename string, exts ...string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}
