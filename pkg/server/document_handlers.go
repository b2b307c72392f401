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
	"io"
	"net/http"
	"strconv"

	"github.com/munbongshin/RAGSEARCH/pkg/acl"
)

func (s *Server) handleUploadAndEmbed(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.Server.MaxUploadBytes); err != nil {
		writeMessage(w, http.StatusBadRequest, "file exceeds the upload size limit or the form is malformed")
		return
	}

	collection := r.FormValue("collection")
	if collection == "" {
		writeMessage(w, http.StatusBadRequest, "collection is required")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "a file part is required")
		return
	}
	defer file.Close()

	coll, ok := s.requireCollection(w, r, collection, func(p acl.Perms) bool { return p.Write })
	if !ok {
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "failed to read uploaded file")
		return
	}

	report, err := s.ingestor.Ingest(r.Context(), coll.ID, header.Filename, data)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"message":       fmt.Sprintf("%s stored in %s", report.Source, collection),
		"source":        report.Source,
		"chunks_stored": report.Stored,
		"chunks_failed": report.Failed,
		"replaced":      report.Deleted,
	})
}

func (s *Server) handleCheckFileExists(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Collection string `json:"collection"`
		Filename   string `json:"filename"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Collection == "" || body.Filename == "" {
		writeMessage(w, http.StatusBadRequest, "collection and filename are required")
		return
	}

	coll, ok := s.requireCollection(w, r, body.Collection, func(p acl.Perms) bool { return p.Read })
	if !ok {
		return
	}

	exists, err := s.store.SourceExists(r.Context(), coll.ID, body.Filename)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"exists": exists})
}

type deleteSourceRef struct {
	Collection   string `json:"collection"`
	CollectionID int    `json:"collection_id"`
	Source       string `json:"source"`
}

// handleDeleteSources removes documents across collections. Each source
// is attempted independently; partial failure answers 207.
func (s *Server) handleDeleteSources(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Documents []struct {
			Source deleteSourceRef `json:"source"`
		} `json:"documents"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if len(body.Documents) == 0 {
		writeMessage(w, http.StatusBadRequest, "no documents to delete")
		return
	}

	// Group sources by collection so permissions are checked once per
	// collection.
	byCollection := make(map[string][]string)
	for _, doc := range body.Documents {
		ref := doc.Source
		if ref.Collection == "" || ref.Source == "" {
			writeMessage(w, http.StatusBadRequest, "each document needs a collection and a source")
			return
		}
		byCollection[ref.Collection] = append(byCollection[ref.Collection], ref.Source)
	}

	var successful, failed []string
	for collection, sources := range byCollection {
		coll, err := s.store.GetCollection(r.Context(), collection)
		if err != nil {
			failed = append(failed, sources...)
			continue
		}
		perms, err := s.effectivePerms(r, coll)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if !perms.Delete {
			failed = append(failed, sources...)
			continue
		}

		report, err := s.ingestor.DeleteSources(r.Context(), coll.ID, sources)
		if err != nil {
			s.writeError(w, err)
			return
		}
		successful = append(successful, report.Successful...)
		failed = append(failed, report.Failed...)
	}

	total := len(successful) + len(failed)
	status := http.StatusOK
	message := "all documents deleted"
	if len(failed) > 0 {
		status = http.StatusMultiStatus
		message = "some documents could not be deleted"
	}
	writeJSON(w, status, map[string]any{
		"success": len(failed) == 0,
		"message": message,
		"results": map[string]any{
			"successful":      successful,
			"failed":          failed,
			"total_processed": total,
			"success_rate":    fmt.Sprintf("%.1f%%", float64(len(successful))/float64(total)*100),
		},
	})
}

func (s *Server) handleAllDocumentsSource(w http.ResponseWriter, r *http.Request) {
	names := r.URL.Query()["collection_name"]
	if len(names) == 0 {
		names = r.URL.Query()["collection_name[]"]
	}
	if len(names) == 0 {
		writeMessage(w, http.StatusBadRequest, "at least one collection_name is required")
		return
	}

	out := make(map[string]any, len(names))
	total := 0
	for _, name := range names {
		coll, ok := s.requireCollection(w, r, name, func(p acl.Perms) bool { return p.Read })
		if !ok {
			return
		}
		sources, err := s.store.Sources(r.Context(), coll.ID, "")
		if err != nil {
			s.writeError(w, err)
			return
		}

		documents := make([]map[string]any, 0, len(sources))
		for _, source := range sources {
			meta := map[string]any{}
			if pages, err := s.store.Pages(r.Context(), coll.ID, source); err == nil {
				meta["pages"] = pages
			}
			documents = append(documents, map[string]any{
				"source":   source,
				"metadata": meta,
			})
		}
		out[name] = map[string]any{
			"documents": documents,
			"count":     len(documents),
		}
		total += len(documents)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"collections": out,
		"total_count": total,
	})
}

// handleDocumentPages answers both GET (query params) and POST (JSON
// body) with the page count of one source.
func (s *Server) handleDocumentPages(w http.ResponseWriter, r *http.Request) {
	var collectionID int
	var source string
	if r.Method == http.MethodGet {
		collectionID, _ = strconv.Atoi(r.URL.Query().Get("collection_id"))
		source = r.URL.Query().Get("source")
	} else {
		var body struct {
			CollectionID int    `json:"collection_id"`
			Source       string `json:"source"`
		}
		if !decodeJSON(w, r, &body) {
			return
		}
		collectionID, source = body.CollectionID, body.Source
	}
	if collectionID == 0 || source == "" {
		writeMessage(w, http.StatusBadRequest, "collection_id and source are required")
		return
	}

	coll, ok := s.requireCollectionByID(w, r, collectionID, func(p acl.Perms) bool { return p.Read })
	if !ok {
		return
	}

	pages, err := s.store.Pages(r.Context(), coll.ID, source)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"documents": map[string]any{
			"collection_id": coll.ID,
			"source":        source,
			"pages":         pages,
		},
	})
}

func (s *Server) handlePageContent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CollectionID int    `json:"collection_id"`
		Source       string `json:"source"`
		PageNum      int    `json:"page_num"`
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

	content, err := s.store.PageContent(r.Context(), coll.ID, body.Source, body.PageNum)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"pages":   content,
		"source":  body.Source,
		"page":    body.PageNum,
	})
}
