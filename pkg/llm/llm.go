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

// Package llm wraps the chat-completion backends used for answer
// synthesis and summarization: Groq (hosted), a local Ollama instance,
// and any OpenAI-compatible endpoint.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/munbongshin/RAGSEARCH/pkg/config"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is one completion call. Zero MaxTokens and Temperature use
// the provider defaults.
type ChatRequest struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// RateLimitError reports a backend that kept throttling until the retry
// budget ran out.
type RateLimitError struct {
	Backend  string
	Attempts int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: rate limited after %d attempts", e.Backend, e.Attempts)
}

// Provider is a chat-completion backend.
type Provider interface {
	// Name identifies the backend ("Groq", "Ollama", "OpenAI").
	Name() string
	// Chat returns the assistant reply for the conversation.
	Chat(ctx context.Context, req ChatRequest) (string, error)
	// Models lists the model names the backend serves.
	Models(ctx context.Context) ([]string, error)
}

// Manager holds the configured backends and resolves them by name.
type Manager struct {
	providers map[string]Provider
	def       string
}

// NewManager builds the backends from config. Backends without enough
// configuration (e.g. Groq without an API key) are simply absent.
func NewManager(cfg config.LLMConfig) *Manager {
	m := &Manager{providers: make(map[string]Provider), def: cfg.DefaultBackend}

	m.add(NewOllamaProvider(cfg))
	if cfg.GroqAPIKey != "" {
		m.add(NewGroqProvider(cfg))
	}
	if cfg.OpenAIBaseURL != "" {
		m.add(NewOpenAIProvider(cfg))
	}
	return m
}

func (m *Manager) add(p Provider) {
	m.providers[strings.ToLower(p.Name())] = p
}

// Get resolves a backend by name, case-insensitively. An empty name
// returns the default backend.
func (m *Manager) Get(name string) (Provider, error) {
	if name == "" {
		name = m.def
	}
	p, ok := m.providers[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown LLM backend: %s", name)
	}
	return p, nil
}

// Names lists the configured backends.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.providers))
	for _, p := range m.providers {
		names = append(names, p.Name())
	}
	return names
}
