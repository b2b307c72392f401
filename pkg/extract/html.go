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

	"golang.org/x/net/html"
)

// HTMLExtractor strips markup from HTML documents, emitting paragraph
// breaks at block element boundaries. Script and style content is dropped.
type HTMLExtractor struct{}

func NewHTMLExtractor() *HTMLExtractor {
	return &HTMLExtractor{}
}

func (e *HTMLExtractor) Name() string {
	return "HTMLExtractor"
}

func (e *HTMLExtractor) CanExtract(filename string) bool {
	return hasExt(filename, ".html", ".htm", ".xhtml")
}

func (e *HTMLExtractor) Priority() int {
	return 10
}

var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"table": true, "section": true, "article": true, "blockquote": true,
	"ul": true, "ol": true, "pre": true,
}

func (e *HTMLExtractor) Extract(data []byte, filename string) ([]PageRecord, error) {
	text, err := DecodeText(data, filename)
	if err != nil {
		return nil, err
	}

	doc, err := html.Parse(bytes.NewReader([]byte(text)))
	if err != nil {
		return nil, NewCorruptFileError(filename, err)
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockTags[n.Data] {
			b.WriteString("\n\n")
		}
	}
	walk(doc)

	return []PageRecord{{Page: 1, Content: b.String()}}, nil
}
