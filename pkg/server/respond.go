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
	"errors"
	"net/http"

	"github.com/munbongshin/RAGSEARCH/pkg/auth"
	"github.com/munbongshin/RAGSEARCH/pkg/extract"
	"github.com/munbongshin/RAGSEARCH/pkg/llm"
	"github.com/munbongshin/RAGSEARCH/pkg/store"
	"github.com/munbongshin/RAGSEARCH/pkg/summarize"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": status < 400, "message": message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// writeError maps component errors to HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var storeErr *store.StoreError
	if errors.As(err, &storeErr) {
		switch storeErr.Kind {
		case store.InvalidName:
			writeMessage(w, http.StatusBadRequest, store.NamingRule)
		case store.AlreadyExists:
			writeMessage(w, http.StatusBadRequest, storeErr.Error())
		case store.NotFound:
			writeMessage(w, http.StatusNotFound, storeErr.Error())
		default:
			s.logger.Error("store failure", "error", err)
			writeMessage(w, http.StatusInternalServerError, storeErr.Error())
		}
		return
	}

	var extractErr *extract.ExtractionError
	if errors.As(err, &extractErr) {
		writeMessage(w, http.StatusBadRequest, extractErr.Error())
		return
	}

	var tooLarge *summarize.TooLargeError
	if errors.As(err, &tooLarge) {
		writeMessage(w, http.StatusBadRequest, tooLarge.Error())
		return
	}

	var rateLimited *llm.RateLimitError
	if errors.As(err, &rateLimited) {
		writeMessage(w, http.StatusTooManyRequests, rateLimited.Error())
		return
	}

	switch {
	case errors.Is(err, auth.ErrUserNotFound), errors.Is(err, auth.ErrGroupNotFound),
		errors.Is(err, auth.ErrSessionNotFound):
		writeMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, auth.ErrUserExists), errors.Is(err, auth.ErrGroupExists),
		errors.Is(err, auth.ErrUsernameTooShort), errors.Is(err, auth.ErrPasswordTooShort):
		writeMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrTokenExpired):
		writeMessage(w, http.StatusUnauthorized, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		writeMessage(w, http.StatusInternalServerError, err.Error())
	}
}
