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
	"errors"
	"net/http"

	"github.com/munbongshin/RAGSEARCH/pkg/sysprompt"
)

func (s *Server) writePromptError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sysprompt.ErrNotFound):
		writeMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, sysprompt.ErrInvalidName), errors.Is(err, sysprompt.ErrProtected):
		writeMessage(w, http.StatusBadRequest, err.Error())
	default:
		s.writeError(w, err)
	}
}

func (s *Server) handleSystemMessageList(w http.ResponseWriter, r *http.Request) {
	templates, err := s.prompts.List()
	if err != nil {
		s.writePromptError(w, err)
		return
	}
	if len(templates) == 0 {
		writeMessage(w, http.StatusNotFound, "no system messages found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"messages": templates,
	})
}

func (s *Server) handleGetSystemMessage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	tpl, err := s.prompts.Load(body.Name)
	if err != nil {
		s.writePromptError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": tpl,
	})
}

func (s *Server) handleSaveSystemMessage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name        string `json:"name"`
		Message     string `json:"message"`
		Description string `json:"description"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Name == "" || body.Message == "" {
		writeMessage(w, http.StatusBadRequest, "name and message are required")
		return
	}

	if err := s.prompts.Save(sysprompt.Template{
		Name:        body.Name,
		Message:     body.Message,
		Description: body.Description,
	}); err != nil {
		s.writePromptError(w, err)
		return
	}
	writeMessage(w, http.StatusCreated, "system message "+body.Name+" saved")
}

func (s *Server) handleUpdateSystemMessage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name        string  `json:"name"`
		Message     string  `json:"message"`
		Description *string `json:"description"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Name == "" || body.Message == "" {
		writeMessage(w, http.StatusBadRequest, "name and message are required")
		return
	}

	if err := s.prompts.Update(body.Name, body.Message, body.Description); err != nil {
		s.writePromptError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "system message "+body.Name+" updated")
}

func (s *Server) handleDeleteSystemMessage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	if err := s.prompts.Delete(body.Name); err != nil {
		s.writePromptError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "system message "+body.Name+" deleted")
}

func (s *Server) handleGetSelectedMessage(w http.ResponseWriter, r *http.Request) {
	name := s.prompts.Selected()
	tpl, err := s.prompts.Load(name)
	if err != nil {
		s.writePromptError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"selectedMessage": name,
		"message":         tpl,
	})
}

func (s *Server) handleSaveSelectedMessage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SelectedMessage string `json:"selectedMessage"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.SelectedMessage == "" {
		writeMessage(w, http.StatusBadRequest, "selectedMessage is required")
		return
	}

	// The selection must point at an existing template.
	if _, err := s.prompts.Load(body.SelectedMessage); err != nil {
		s.writePromptError(w, err)
		return
	}
	if err := s.prompts.SetSelected(body.SelectedMessage); err != nil {
		s.writePromptError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "selected message updated")
}
