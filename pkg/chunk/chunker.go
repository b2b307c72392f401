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

// Package chunk splits extracted document text into overlapping pieces
// sized for embedding.
package chunk

import (
	"fmt"
	"strings"
)

// Config holds chunker settings.
type Config struct {
	// ChunkSize is the target piece length in runes.
	ChunkSize int `yaml:"chunk_size"`
	// ChunkOverlap is how many runes consecutive pieces share.
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.ChunkSize == 0 {
		c.ChunkSize = 2048
	}
	if c.ChunkOverlap == 0 {
		c.ChunkOverlap = 200
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 {
		return fmt.Errorf("chunk_overlap must not be negative, got %d", c.ChunkOverlap)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk_overlap (%d) must be smaller than chunk_size (%d)",
			c.ChunkOverlap, c.ChunkSize)
	}
	return nil
}

// Chunker splits text into pieces.
type Chunker interface {
	Chunk(text string) []string
}

// separators tried in order: paragraph break, line break, word break, and
// finally a hard rune cut.
var separators = []string{"\n\n", "\n", " ", ""}

// recursiveChunker splits on the coarsest separator that yields pieces
// within the size limit, recursing into oversized pieces with the next
// finer separator.
type recursiveChunker struct {
	size    int
	overlap int
}

// New creates a chunker from the config. Call SetDefaults and Validate on
// the config first.
func New(cfg Config) Chunker {
	return &recursiveChunker{size: cfg.ChunkSize, overlap: cfg.ChunkOverlap}
}

func (c *recursiveChunker) Chunk(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return c.split(text, 0)
}

func (c *recursiveChunker) split(text string, sepIdx int) []string {
	if len([]rune(text)) <= c.size {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []string{text}
	}

	sep := separators[sepIdx]
	if sep == "" {
		return c.hardSplit(text)
	}

	parts := strings.Split(text, sep)

	// Separator absent: fall through to the next one.
	if len(parts) == 1 {
		return c.split(text, sepIdx+1)
	}

	var pieces []string
	for _, part := range parts {
		if len([]rune(part)) > c.size {
			pieces = append(pieces, c.split(part, sepIdx+1)...)
		} else if strings.TrimSpace(part) != "" {
			pieces = append(pieces, part)
		}
	}

	return c.merge(pieces, sep)
}

// merge greedily packs adjacent pieces back together up to the size limit,
// carrying overlap runes from the tail of each emitted chunk into the next.
func (c *recursiveChunker) merge(pieces []string, sep string) []string {
	var chunks []string
	var current strings.Builder

	flush := func() {
		text := strings.TrimSpace(current.String())
		if text != "" {
			chunks = append(chunks, text)
		}
		current.Reset()
	}

	sepLen := len([]rune(sep))
	for _, piece := range pieces {
		pieceLen := len([]rune(piece))
		if current.Len() > 0 && len([]rune(current.String()))+sepLen+pieceLen > c.size {
			tail := overlapTail(current.String(), c.overlap)
			flush()
			// Seed the overlap only when it still leaves room for the
			// piece; otherwise the chunk would outgrow the size limit.
			if tail != "" && len([]rune(tail))+sepLen+pieceLen <= c.size {
				current.WriteString(tail)
			}
		}
		if current.Len() > 0 {
			current.WriteString(sep)
		}
		current.WriteString(piece)
	}
	flush()

	return chunks
}

func (c *recursiveChunker) hardSplit(text string) []string {
	runes := []rune(text)
	step := c.size - c.overlap

	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			chunks = append(chunks, piece)
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// overlapTail returns the last n runes of text, cut at a word boundary
// when one is near.
func overlapTail(text string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	tail := string(runes[len(runes)-n:])
	if idx := strings.IndexAny(tail, " \n"); idx >= 0 && idx < len(tail)-1 {
		tail = tail[idx+1:]
	}
	return strings.TrimSpace(tail)
}
