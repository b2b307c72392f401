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

// Package embedder maps text to fixed-dimension dense vectors via a local
// Ollama instance.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/munbongshin/RAGSEARCH/pkg/config"
)

// maxInputRunes is the truncation limit applied before sending text to
// the model. Oversized inputs are cut, not rejected.
const maxInputRunes = 8192

// Provider computes dense embeddings.
type Provider interface {
	// EmbedOne embeds a single text.
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch embeds texts in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension is the vector length every embedding has.
	Dimension() int
}

// OllamaProvider embeds through the Ollama /api/embeddings endpoint.
// Requests are serialized: Ollama's llama runner crashes with SIGABRT
// when receiving concurrent embedding requests.
type OllamaProvider struct {
	host       string
	model      string
	dimension  int
	maxRetries int
	client     *http.Client

	mu sync.Mutex
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// NewOllamaProvider creates a provider from the embedder config.
func NewOllamaProvider(cfg config.EmbedderConfig) *OllamaProvider {
	return &OllamaProvider{
		host:       strings.TrimRight(cfg.Host, "/"),
		model:      cfg.Model,
		dimension:  cfg.Dimension,
		maxRetries: cfg.MaxRetries,
		client:     &http.Client{Timeout: cfg.Timeout},
	}
}

func (p *OllamaProvider) Dimension() int {
	return p.dimension
}

func (p *OllamaProvider) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.embed(ctx, text)
}

func (p *OllamaProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := p.embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, vec)
	}
	return vectors, nil
}

func (p *OllamaProvider) embed(ctx context.Context, text string) ([]float32, error) {
	if runes := []rune(text); len(runes) > maxInputRunes {
		text = string(runes[:maxInputRunes])
	}

	slog.Debug("embedding request", "model", p.model, "text_length", len(text))

	payload, err := json.Marshal(embedRequest{Model: p.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embed request: %w", err)
	}

	var resp *http.Response
	for attempt := 0; attempt < p.maxRetries; attempt++ {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost,
			p.host+"/api/embeddings", bytes.NewReader(payload))
		if reqErr != nil {
			return nil, fmt.Errorf("failed to build embed request: %w", reqErr)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err = p.client.Do(req)
		if err == nil {
			break
		}

		slog.Debug("embedding retry", "attempt", attempt+1, "error", err)
		if attempt < p.maxRetries-1 {
			select {
			case <-time.After(time.Duration(attempt+1) * time.Second):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if err != nil {
		slog.Error("embedding failed", "error", err, "model", p.model)
		return nil, fmt.Errorf("failed to reach embedding backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding backend returned status %d: %s", resp.StatusCode, string(body))
	}

	var response embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}

	if len(response.Embedding) == 0 {
		return nil, fmt.Errorf("received empty embedding")
	}
	if len(response.Embedding) != p.dimension {
		return nil, fmt.Errorf("embedding dimension mismatch: got %d, want %d",
			len(response.Embedding), p.dimension)
	}

	return response.Embedding, nil
}
