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
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

// HWPExtractor handles Hangul word processor files. When a LibreOffice
// binary is on PATH the file is converted to PDF and routed through the
// PDF extractor; otherwise readable text is scraped into a single record.
type HWPExtractor struct {
	pdf       *PDFExtractor
	converter string
}

func NewHWPExtractor() *HWPExtractor {
	converter := ""
	for _, candidate := range []string{"soffice", "libreoffice"} {
		if path, err := exec.LookPath(candidate); err == nil {
			converter = path
			break
		}
	}
	return &HWPExtractor{pdf: NewPDFExtractor(), converter: converter}
}

func (e *HWPExtractor) Name() string {
	return "HWPExtractor"
}

func (e *HWPExtractor) CanExtract(filename string) bool {
	return hasExt(filename, ".hwp", ".hwpx")
}

func (e *HWPExtractor) Priority() int {
	return 10
}

func (e *HWPExtractor) Extract(data []byte, filename string) ([]PageRecord, error) {
	if e.converter != "" {
		if records, err := e.viaPDF(data, filename); err == nil {
			return records, nil
		}
		// Conversion failed; fall through to the text scrape.
	}

	text := scrapeReadableText(data)
	if strings.TrimSpace(text) == "" {
		return nil, NewNoTextError(filename)
	}
	return []PageRecord{{Page: 1, Content: text}}, nil
}

func (e *HWPExtractor) viaPDF(data []byte, filename string) ([]PageRecord, error) {
	dir, err := os.MkdirTemp("", "hwp-convert-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	src := filepath.Join(dir, filepath.Base(filename))
	if err := os.WriteFile(src, data, 0o600); err != nil {
		return nil, err
	}

	cmd := exec.Command(e.converter, "--headless", "--convert-to", "pdf", "--outdir", dir, src)
	cmd.WaitDelay = 2 * time.Minute
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("conversion failed: %w", err)
	}

	converted := strings.TrimSuffix(src, filepath.Ext(src)) + ".pdf"
	pdfData, err := os.ReadFile(converted)
	if err != nil {
		return nil, err
	}
	return e.pdf.Extract(pdfData, filename)
}

// scrapeReadableText pulls printable character runs out of the raw bytes,
// trying UTF-16LE first (the HWP body text encoding) and keeping runs of
// at least four characters.
func scrapeReadableText(data []byte) string {
	var b strings.Builder
	var run []rune

	flush := func() {
		if len(run) >= 4 {
			b.WriteString(string(run))
			b.WriteString("\n")
		}
		run = run[:0]
	}

	for i := 0; i+1 < len(data); i += 2 {
		r := rune(uint16(data[i]) | uint16(data[i+1])<<8)
		if unicode.IsPrint(r) && r != unicode.ReplacementChar {
			run = append(run, r)
		} else {
			flush()
		}
	}
	flush()

	return b.String()
}
