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
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// PresentationExtractor emits one page record per slide, each holding the
// concatenated text of all shapes on the slide. Slides are the
// ppt/slides/slideN.xml parts of the .pptx archive.
type PresentationExtractor struct{}

func NewPresentationExtractor() *PresentationExtractor {
	return &PresentationExtractor{}
}

func (e *PresentationExtractor) Name() string {
	return "PresentationExtractor"
}

func (e *PresentationExtractor) CanExtract(filename string) bool {
	return hasExt(filename, ".pptx")
}

func (e *PresentationExtractor) Priority() int {
	return 10
}

var slidePathRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

func (e *PresentationExtractor) Extract(data []byte, filename string) ([]PageRecord, error) {
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, NewCorruptFileError(filename, err)
	}

	type slide struct {
		number int
		file   *zip.File
	}
	var slides []slide
	for _, f := range archive.File {
		if m := slidePathRe.FindStringSubmatch(f.Name); m != nil {
			n, _ := strconv.Atoi(m[1])
			slides = append(slides, slide{number: n, file: f})
		}
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].number < slides[j].number })

	var records []PageRecord
	for _, s := range slides {
		rc, err := s.file.Open()
		if err != nil {
			continue
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}
		records = append(records, PageRecord{
			Page:    s.number,
			Content: slideText(content),
		})
	}

	return records, nil
}

// slideText collects the a:t text runs of a slide, one line per
// paragraph (a:p).
func slideText(content []byte) string {
	dec := xml.NewDecoder(bytes.NewReader(content))

	var b strings.Builder
	inText := false

	for {
		tok, err := dec.Token()
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
				b.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}

	return b.String()
}
