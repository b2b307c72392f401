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

// Package sysprompt manages system prompt templates as JSON files on
// disk: one file per template plus a pointer file naming the currently
// selected one. A default template is seeded when the directory is first
// created.
package sysprompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultName is the template seeded on first use and the fallback
	// selection.
	DefaultName = "default"

	selectedFile = "selected_message.json"
)

const defaultMessage = `You are an intelligent assistant.
You always provide well-reasoned answers that are both correct and helpful.
If you don't know the answer, just say that you don't know.
Please answer in Korean.`

var (
	ErrNotFound    = errors.New("system message not found")
	ErrInvalidName = errors.New("invalid system message name")
	ErrProtected   = errors.New("the default system message cannot be deleted")
)

// Template is one stored system prompt.
type Template struct {
	Name        string `json:"name"`
	Message     string `json:"message"`
	Description string `json:"description"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

type selection struct {
	SelectedMessage string `json:"selectedMessage"`
}

// Manager reads and writes templates under one directory. Safe for
// concurrent use.
type Manager struct {
	dir string
	mu  sync.Mutex
}

// NewManager creates the storage directory if needed and seeds the
// default template and selection pointer.
func NewManager(dir string) (*Manager, error) {
	m := &Manager{dir: dir}

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create system message directory: %w", err)
		}
		if err := m.Save(Template{
			Name:        DefaultName,
			Message:     defaultMessage,
			Description: "기본 시스템 메시지",
		}); err != nil {
			return nil, err
		}
	}

	if _, err := os.Stat(filepath.Join(dir, selectedFile)); os.IsNotExist(err) {
		if err := m.SetSelected(DefaultName); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// validName rejects names that would escape the storage directory or
// collide with the pointer file.
func validName(name string) bool {
	if name == "" || name == strings.TrimSuffix(selectedFile, ".json") {
		return false
	}
	return name == filepath.Base(name) && !strings.ContainsAny(name, `/\`) && name != "." && name != ".."
}

func (m *Manager) path(name string) string {
	return filepath.Join(m.dir, name+".json")
}

// List returns every stored template sorted by name. Files that are not
// valid templates are skipped.
func (m *Manager) List() ([]Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read system message directory: %w", err)
	}

	var templates []Template
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") || entry.Name() == selectedFile {
			continue
		}
		data, err := os.ReadFile(filepath.Join(m.dir, entry.Name()))
		if err != nil {
			continue
		}
		var t Template
		if err := json.Unmarshal(data, &t); err != nil || t.Name == "" || t.Message == "" {
			continue
		}
		templates = append(templates, t)
	}

	sort.Slice(templates, func(i, j int) bool { return templates[i].Name < templates[j].Name })
	return templates, nil
}

// Load returns a template by name.
func (m *Manager) Load(name string) (*Template, error) {
	if !validName(name) {
		return nil, ErrInvalidName
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load(name)
}

func (m *Manager) load(name string) (*Template, error) {
	data, err := os.ReadFile(m.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read system message: %w", err)
	}
	var t Template
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse system message: %w", err)
	}
	return &t, nil
}

// Save creates or overwrites a template, stamping created_at.
func (m *Manager) Save(t Template) error {
	if !validName(t.Name) {
		return ErrInvalidName
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	t.CreatedAt = time.Now().Format(time.RFC3339)
	t.UpdatedAt = ""
	return m.write(t)
}

// Update edits an existing template's message and, when non-nil,
// description. Stamps updated_at.
func (m *Manager) Update(name, message string, description *string) error {
	if !validName(name) {
		return ErrInvalidName
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.load(name)
	if err != nil {
		return err
	}
	t.Message = message
	if description != nil {
		t.Description = *description
	}
	t.UpdatedAt = time.Now().Format(time.RFC3339)
	return m.write(*t)
}

func (m *Manager) write(t Template) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode system message: %w", err)
	}
	if err := os.WriteFile(m.path(t.Name), data, 0o644); err != nil {
		return fmt.Errorf("failed to write system message: %w", err)
	}
	return nil
}

// Delete removes a template. The default template cannot be deleted.
func (m *Manager) Delete(name string) error {
	if !validName(name) {
		return ErrInvalidName
	}
	if name == DefaultName {
		return ErrProtected
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	err := os.Remove(m.path(name))
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	return err
}

// Selected returns the name of the currently selected template, falling
// back to the default when the pointer is missing or unreadable.
func (m *Manager) Selected() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(m.dir, selectedFile))
	if err != nil {
		return DefaultName
	}
	var sel selection
	if err := json.Unmarshal(data, &sel); err != nil || sel.SelectedMessage == "" {
		return DefaultName
	}
	return sel.SelectedMessage
}

// SetSelected points the selection at a template name.
func (m *Manager) SetSelected(name string) error {
	if !validName(name) {
		return ErrInvalidName
	}
	data, err := json.Marshal(selection{SelectedMessage: name})
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(m.dir, selectedFile), data, 0o644); err != nil {
		return fmt.Errorf("failed to write selection: %w", err)
	}
	return nil
}

// SelectedMessage returns the message body of the selected template,
// falling back to the default template, then to the built-in text.
func (m *Manager) SelectedMessage() string {
	name := m.Selected()

	m.mu.Lock()
	defer m.mu.Unlock()
	if t, err := m.load(name); err == nil {
		return t.Message
	}
	if t, err := m.load(DefaultName); err == nil {
		return t.Message
	}
	return defaultMessage
}
