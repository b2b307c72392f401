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
	"encoding/xml"
	"io"
	"strings"

	"github.com/nguyenthenguyen/docx"
)

// wordPageSize is the accumulated paragraph length that closes a synthetic
// page. Word documents carry no page boundaries in their markup.
const wordPageSize = 1000

// WordExtractor reads .docx paragraphs and groups them into synthetic
// pages of roughly wordPageSize characters.
type WordExtractor struct{}

func NewWordExtractor() *WordExtractor {
	return &WordExtractor{}
}

func (e *WordExtractor) Name() string {
	return "WordExtractor"
}

func (e *WordExtractor) CanExtract(filename string) bool {
	return hasExt(filename, ".docx")
}

func (e *WordExtractor) Priority() int {
	return 10
}

func (e *WordExtractor) Extract(data []byte, filename string) ([]PageRecord, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, NewCorruptFileError(filename, err)
	}
	defer doc.Close()

	paragraphs := docxParagraphs(doc.Editable().GetContent())

	var records []PageRecord
	var current strings.Builder
	page := 1

	flush := func() {
		text := strings.TrimSpace(current.String())
		if text != "" {
			records = append(records, PageRecord{Page: page, Content: text})
			page++
		}
		current.Reset()
	}

	for _, para := range paragraphs {
		if current.Len() > 0 {
			current.WriteString("\n")
		}
		current.WriteString(para)
		if len([]rune(current.String())) > wordPageSize {
			flush()
		}
	}
	flush()

	return records, nil
}

// docxParagraphs walks the document XML collecting text runs (w:t) and
// closing a paragraph at each w:p end element.
func docxParagraphs(content string) []string {
	dec := xml.NewDecoder(strings.NewReader(content))

	var paragraphs []string
	var current strings.Builder
	inText := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if s := strings.TrimSpace(current.String()); s != "" {
					paragraphs = append(paragraphs, s)
				}
				current.Reset()
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}

	if s := strings.TrimSpace(current.String()); s != "" {
		paragraphs = append(paragraphs, s)
	}
	return paragraphs
}
