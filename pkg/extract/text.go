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
	"regexp"
	"strings"
)

// TextExtractor handles plain text and Markdown files. Markdown syntax is
// stripped to its text, preserving paragraph breaks.
type TextExtractor struct{}

func NewTextExtractor() *TextExtractor {
	return &TextExtractor{}
}

func (e *TextExtractor) Name() string {
	return "TextExtractor"
}

func (e *TextExtractor) CanExtract(filename string) bool {
	return hasExt(filename, ".txt", ".md", ".markdown", ".csv", ".log")
}

func (e *TextExtractor) Priority() int {
	return 10
}

func (e *TextExtractor) Extract(data []byte, filename string) ([]PageRecord, error) {
	text, err := DecodeText(data, filename)
	if err != nil {
		return nil, err
	}
	if hasExt(filename, ".md", ".markdown") {
		text = stripMarkdown(text)
	}
	return []PageRecord{{Page: 1, Content: text}}, nil
}

var (
	mdHeadingRe = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	mdLinkRe    = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	mdImageRe   = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	mdCodeRe    = regexp.MustCompile("(?s)```[^`]*```")
	mdEmphRe    = regexp.MustCompile(`(\*{1,3}|_{1,3}|~~)`)
	mdQuoteRe   = regexp.MustCompile(`(?m)^>\s?`)
)

// stripMarkdown removes the common Markdown markers while keeping code
// block contents and link text.
func stripMarkdown(text string) string {
	text = mdCodeRe.ReplaceAllStringFunc(text, func(block string) string {
		return strings.Trim(block, "`")
	})
	text = mdImageRe.ReplaceAllString(text, "")
	text = mdLinkRe.ReplaceAllString(text, "$1")
	text = mdHeadingRe.ReplaceAllString(text, "")
	text = mdQuoteRe.ReplaceAllString(text, "")
	text = mdEmphRe.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "`", "")
	return text
}
