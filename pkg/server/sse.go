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
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/munbongshin/RAGSEARCH/pkg/acl"
	"github.com/munbongshin/RAGSEARCH/pkg/summarize"
)

// sseDocument is one entry of the documents query parameter.
type sseDocument struct {
	Source struct {
		Collection string `json:"collection"`
		Source     string `json:"source"`
	} `json:"source"`
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}

// handleSummarizeSSE streams summarization events for the requested
// documents, one document at a time, with overall progress attached to
// every frame. Validation failures answer plain JSON before the stream
// starts; once streaming, errors travel as events.
func (s *Server) handleSummarizeSSE(w http.ResponseWriter, r *http.Request) {
	var documents []sseDocument
	if raw := r.URL.Query().Get("documents"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &documents); err != nil {
			writeMessage(w, http.StatusBadRequest, "documents must be a JSON array")
			return
		}
	}
	backend := r.URL.Query().Get("llm_name")
	model := r.URL.Query().Get("llm_model")
	if len(documents) == 0 || model == "" {
		writeMessage(w, http.StatusBadRequest, "documents and llm_model are required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeMessage(w, http.StatusInternalServerError, "streaming is not supported")
		return
	}

	// Resolve and authorize every document up front so a bad request
	// still gets a clean status code.
	type job struct {
		collection   string
		collectionID int
		source       string
	}
	var jobs []job
	seen := make(map[string]int)
	for _, doc := range documents {
		name, source := doc.Source.Collection, doc.Source.Source
		if name == "" || source == "" {
			writeMessage(w, http.StatusBadRequest, "each document needs a collection and a source")
			return
		}
		id, ok := seen[name]
		if !ok {
			coll, granted := s.requireCollection(w, r, name, func(p acl.Perms) bool { return p.Read })
			if !granted {
				return
			}
			id = coll.ID
			seen[name] = id
		}
		jobs = append(jobs, job{collection: name, collectionID: id, source: source})
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	total := len(jobs)
	for i, j := range jobs {
		writeSSE(w, flusher, map[string]any{
			"type":     summarize.Progress,
			"status":   "processing",
			"document": j.source,
			"progress": float64(i) / float64(total) * 100,
		})

		events, err := s.summarizer.Run(r.Context(), summarize.Request{
			CollectionID: j.collectionID,
			Collection:   j.collection,
			Sources:      []string{j.source},
			Backend:      backend,
			Model:        model,
		})
		if err != nil {
			writeSSE(w, flusher, map[string]any{"type": summarize.Error, "value": err.Error()})
			continue
		}

		done := float64(i+1) / float64(total) * 100
		for event := range events {
			writeSSE(w, flusher, map[string]any{
				"type":     event.Type,
				"value":    event.Value,
				"document": j.source,
				"progress": done,
			})
			if r.Context().Err() != nil {
				return
			}
		}
	}
	writeSSE(w, flusher, map[string]any{"type": "complete", "progress": 100})
}

// handleSummarizePageContent summarizes one page of one source. The
// stream is drained server side; only the final summary is returned.
func (s *Server) handleSummarizePageContent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CollectionID int    `json:"collection_id"`
		Source       string `json:"source"`
		PageNum      int    `json:"page_num"`
		LLMName      string `json:"llm_name"`
		LLMModel     string `json:"llm_model"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.CollectionID == 0 || body.Source == "" || body.PageNum <= 0 {
		writeMessage(w, http.StatusBadRequest, "collection_id, source and a positive page_num are required")
		return
	}

	coll, ok := s.requireCollectionByID(w, r, body.CollectionID, func(p acl.Perms) bool { return p.Read })
	if !ok {
		return
	}

	events, err := s.summarizer.Run(r.Context(), summarize.Request{
		CollectionID: coll.ID,
		Collection:   coll.Name,
		Sources:      []string{body.Source},
		Page:         body.PageNum,
		Backend:      body.LLMName,
		Model:        body.LLMModel,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	// Progress frames are skipped; the terminal summary (or first error)
	// decides the response.
	var summary *summarize.SummaryValue
	var streamErr string
	for event := range events {
		switch event.Type {
		case summarize.Summary:
			if v, ok := event.Value.(summarize.SummaryValue); ok {
				summary = &v
			}
		case summarize.Error:
			if msg, ok := event.Value.(string); ok && streamErr == "" {
				streamErr = msg
			}
		}
	}
	if summary == nil {
		if streamErr == "" {
			streamErr = "summarization produced no output"
		}
		writeMessage(w, http.StatusInternalServerError, streamErr)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"pages":    summary.Pages,
		"metadata": summary.Metadata,
	})
}
