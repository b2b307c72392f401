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

// Package search prepares user queries for hybrid retrieval: it extracts
// quoted phrases and keyword terms and assembles the lexical query string
// the store backends rank against.
package search

import (
	"regexp"
	"strings"
)

// quotedRe matches text enclosed in double quotes, single quotes, or
// square brackets.
var quotedRe = regexp.MustCompile(`["'\[]([^"'\[\]]+)["'\]]`)

// ExtractQuoted returns the substrings enclosed in quotes or brackets.
// If nothing is quoted the whole trimmed text is returned as the single
// element, so callers can treat every query uniformly.
func ExtractQuoted(text string) []string {
	matches := quotedRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		return []string{trimmed}
	}

	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if s := strings.TrimSpace(m[1]); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// SplitKeywords tokenizes a query for lexical matching. Quoted phrases are
// kept intact and come first; the remaining text is split on whitespace.
// Single-character tokens and duplicates are dropped.
func SplitKeywords(query string) []string {
	var keywords []string
	seen := make(map[string]bool)

	add := func(k string) {
		k = strings.TrimSpace(k)
		if len([]rune(k)) <= 1 || seen[k] {
			return
		}
		seen[k] = true
		keywords = append(keywords, k)
	}

	rest := query
	for _, m := range quotedRe.FindAllStringSubmatch(query, -1) {
		add(m[1])
		rest = strings.Replace(rest, m[0], " ", 1)
	}

	for _, tok := range strings.Fields(rest) {
		add(tok)
	}

	return keywords
}

// BuildTSQuery assembles a to_tsquery expression from keywords: words
// within a phrase are AND-ed, distinct keywords are OR-ed, and every word
// gets a ':*' suffix for prefix matching.
func BuildTSQuery(keywords []string) string {
	terms := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		words := strings.Fields(kw)
		if len(words) == 0 {
			continue
		}
		parts := make([]string, len(words))
		for i, w := range words {
			parts[i] = sanitizeTSWord(w) + ":*"
		}
		terms = append(terms, strings.Join(parts, " & "))
	}
	return strings.Join(terms, " | ")
}

// tsUnsafe strips characters with meaning inside a tsquery expression.
var tsUnsafe = strings.NewReplacer(
	"'", "", "&", "", "|", "", "!", "", "(", "", ")", "", ":", "", "*", "", "\\", "",
)

func sanitizeTSWord(w string) string {
	return tsUnsafe.Replace(w)
}

// Clamp bounds a score to [0, 1].
func Clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// Fuse combines a lexical and a vector score under the fixed fusion rule:
// both sides present gives 0.3*lexical + 0.7*vector; a single side passes
// through. The result is clamped to [0, 1].
func Fuse(lexical, vector float64, hasLexical, hasVector bool) float64 {
	switch {
	case hasLexical && hasVector:
		return Clamp(0.3*lexical + 0.7*vector)
	case hasLexical:
		return Clamp(lexical)
	default:
		return Clamp(vector)
	}
}

// IsCandidate reports whether a chunk enters the candidate set:
// lexical > 0.1 or vector >= threshold.
func IsCandidate(lexical, vector, threshold float64, hasLexical, hasVector bool) bool {
	if hasLexical && lexical > 0.1 {
		return true
	}
	return hasVector && vector >= threshold
}
