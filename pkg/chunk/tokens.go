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

package chunk

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// TokenSplitter re-splits text by model token count rather than runes.
// The summarizer uses it to keep pieces inside the model context window.
type TokenSplitter struct {
	enc     *tiktoken.Tiktoken
	size    int
	overlap int
}

// NewTokenSplitter creates a splitter using the cl100k_base encoding.
func NewTokenSplitter(size, overlap int) (*TokenSplitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("token chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("token overlap must be in [0, %d), got %d", size, overlap)
	}

	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to load token encoding: %w", err)
	}
	return &TokenSplitter{enc: enc, size: size, overlap: overlap}, nil
}

// Count returns the token count of the text.
func (t *TokenSplitter) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// Split cuts the text into pieces of at most the configured token count,
// with consecutive pieces sharing the configured overlap.
func (t *TokenSplitter) Split(text string) []string {
	tokens := t.enc.Encode(text, nil, nil)
	if len(tokens) == 0 {
		return nil
	}
	if len(tokens) <= t.size {
		return []string{text}
	}

	step := t.size - t.overlap
	var pieces []string
	for start := 0; start < len(tokens); start += step {
		end := start + t.size
		if end > len(tokens) {
			end = len(tokens)
		}
		pieces = append(pieces, t.enc.Decode(tokens[start:end]))
		if end == len(tokens) {
			break
		}
	}
	return pieces
}
