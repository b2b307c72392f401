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

package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/munbongshin/RAGSEARCH/pkg/acl"
	"github.com/munbongshin/RAGSEARCH/pkg/llm"
	"github.com/munbongshin/RAGSEARCH/pkg/search"
	"github.com/munbongshin/RAGSEARCH/pkg/store"
)

func (s *Server) chat(r *http.Request, provider llm.Provider, model, system, user string) (string, error) {
	var messages []llm.Message
	if system != "" {
		messages = append(messages, llm.Message{Role: "system", Content: system})
	}
	messages = append(messages, llm.Message{Role: "user", Content: user})
	return provider.Chat(r.Context(), llm.ChatRequest{Model: model, Messages: messages})
}

// buildSearchRequest assembles the hybrid request: keywords and tsquery
// from the text, plus its embedding.
func (s *Server) buildSearchRequest(r *http.Request, query string, collectionIDs []int,
	limit int, scoreMin float64) (store.SearchRequest, error) {

	keywords := search.SplitKeywords(query)
	vector, err := s.embed.EmbedOne(r.Context(), query)
	if err != nil {
		return store.SearchRequest{}, fmt.Errorf("failed to embed query: %w", err)
	}

	if limit <= 0 {
		limit = s.cfg.Search.DocNum
	}
	return store.SearchRequest{
		CollectionIDs: collectionIDs,
		QueryText:     query,
		TSQuery:       search.BuildTSQuery(keywords),
		Keywords:      keywords,
		QueryVector:   vector,
		Limit:         limit,
		ScoreMin:      scoreMin,
	}, nil
}

// handleSearchDocuments is the plain retrieval endpoint: ranked chunks,
// no answer synthesis.
func (s *Server) handleSearchDocuments(w http.ResponseWriter, r *http.Request) {
	collection := r.URL.Query().Get("collection_name")
	query := r.URL.Query().Get("source_search")
	if collection == "" || query == "" {
		writeMessage(w, http.StatusBadRequest, "collection_name and source_search are required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	coll, ok := s.requireCollection(w, r, collection, func(p acl.Perms) bool { return p.Read })
	if !ok {
		return
	}

	req, err := s.buildSearchRequest(r, query, []int{coll.ID}, limit, s.cfg.Search.Similarity)
	if err != nil {
		s.writeError(w, err)
		return
	}
	hits, err := s.store.Search(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	results := make([]map[string]any, 0, len(hits))
	for _, h := range hits {
		results = append(results, map[string]any{
			"content": h.Content,
			"metadata": map[string]any{
				"source":  h.Source,
				"page":    h.Page,
				"snippet": h.Snippet,
			},
			"score": h.Score,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   len(results),
		"results": results,
		"query_info": map[string]any{
			"collection": collection,
			"query":      query,
			"keywords":   req.Keywords,
			"limit":      req.Limit,
		},
	})
}

// querySourceRef names one document inside one collection.
type querySourceRef struct {
	Collection string `json:"collection"`
	Source     string `json:"source"`
}

type processQueryRequest struct {
	Query          string           `json:"query"`
	Collections    []string         `json:"collections"`
	LLMName        string           `json:"llm_name"`
	LLMModel       string           `json:"llm_model"`
	SelectSources  []querySourceRef `json:"select_sources"`
	RAGMode        string           `json:"ragmode"`
	ScoreThreshold float64          `json:"score_threshold"`
	SystemMessage  string           `json:"system_message"`
}

// ragEnabled reports whether the client asked for retrieval. Anything
// other than the literal "RAG" means the question goes to the model
// directly.
func (q processQueryRequest) ragEnabled() bool {
	return q.RAGMode == "RAG"
}

// handleProcessQuery runs retrieval over the chosen collections and asks
// the LLM to answer from the retrieved context. With ragmode off the
// question goes to the model directly.
func (s *Server) handleProcessQuery(w http.ResponseWriter, r *http.Request) {
	var body processQueryRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Query) == "" {
		writeMessage(w, http.StatusBadRequest, "query is required")
		return
	}

	provider, err := s.llms.Get(body.LLMName)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	system := body.SystemMessage
	if system == "" {
		system = s.prompts.SelectedMessage()
	}

	var hits []store.SearchResult
	var collectionIDs []int
	if body.ragEnabled() {
		if len(body.Collections) == 0 {
			writeMessage(w, http.StatusBadRequest, "at least one collection is required in RAG mode")
			return
		}

		// Selected sources are scoped to their own collection.
		sourcesByCollection := make(map[string][]string)
		for _, ref := range body.SelectSources {
			if ref.Source == "" {
				continue
			}
			sourcesByCollection[ref.Collection] = append(sourcesByCollection[ref.Collection], ref.Source)
		}

		sourceFilter := make(map[int][]string)
		for _, name := range body.Collections {
			coll, ok := s.requireCollection(w, r, name, func(p acl.Perms) bool { return p.Read })
			if !ok {
				return
			}
			collectionIDs = append(collectionIDs, coll.ID)
			if srcs := sourcesByCollection[name]; len(srcs) > 0 {
				sourceFilter[coll.ID] = srcs
			}
		}

		threshold := body.ScoreThreshold
		if threshold <= 0 {
			threshold = s.cfg.Search.Similarity
		}
		req, err := s.buildSearchRequest(r, body.Query, collectionIDs, s.cfg.Search.DocNum, threshold)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if len(sourceFilter) > 0 {
			req.Sources = sourceFilter
		}

		hits, err = s.store.Search(r.Context(), req)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if len(hits) > s.cfg.Search.FilteredDocNum {
			hits = hits[:s.cfg.Search.FilteredDocNum]
		}
	}

	prompt := body.Query
	if body.ragEnabled() {
		var ctxParts []string
		for _, h := range hits {
			ctxParts = append(ctxParts, fmt.Sprintf("[%s p.%d] %s", h.Source, h.Page, h.Content))
		}
		prompt = fmt.Sprintf("Context:\n%s\n\nQuestion: %s", strings.Join(ctxParts, "\n\n"), body.Query)
	}

	answer, err := s.chat(r, provider, body.LLMModel, system, prompt)
	if err != nil {
		s.writeError(w, err)
		return
	}

	docs := make([]map[string]any, 0, len(hits))
	sources := make(map[string]bool)
	for _, h := range hits {
		sources[h.Source] = true
		docs = append(docs, map[string]any{
			"content": h.Content,
			"source":  h.Source,
			"page":    h.Page,
			"score":   h.Score,
		})
	}
	sourceList := make([]string, 0, len(sources))
	for src := range sources {
		sourceList = append(sourceList, src)
	}

	searchMode := "direct"
	if body.ragEnabled() {
		searchMode = "hybrid"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"result": answer,
		"metadata": map[string]any{
			"collections": body.Collections,
			"sources":     sourceList,
			"search_mode": searchMode,
			"backend":     provider.Name(),
			"model":       body.LLMModel,
			"doc_count":   len(docs),
		},
		"docs": docs,
	})
}
