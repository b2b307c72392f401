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

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/munbongshin/RAGSEARCH/pkg/config"
	"github.com/munbongshin/RAGSEARCH/pkg/httpclient"
)

// throttleRetries bounds the body-hint retry loop on top of the
// transport-level retries.
const throttleRetries = 5

// openaiCompat speaks the OpenAI chat-completions wire format. Groq and
// generic OpenAI-compatible endpoints share it.
type openaiCompat struct {
	name        string
	baseURL     string
	apiKey      string
	maxTokens   int
	temperature float64
	client      *httpclient.Client
}

// NewGroqProvider creates the hosted Groq backend.
func NewGroqProvider(cfg config.LLMConfig) Provider {
	return newOpenAICompat("Groq", cfg.GroqBaseURL, cfg.GroqAPIKey, httpclient.ParseGroqHeaders, cfg)
}

// NewOpenAIProvider creates a backend for any OpenAI-compatible endpoint.
func NewOpenAIProvider(cfg config.LLMConfig) Provider {
	return newOpenAICompat("OpenAI", cfg.OpenAIBaseURL, "", httpclient.ParseOpenAIHeaders, cfg)
}

func newOpenAICompat(name, baseURL, apiKey string, parser httpclient.RateLimitHeaderParser, cfg config.LLMConfig) *openaiCompat {
	return &openaiCompat{
		name:        name,
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		client: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: cfg.ReadTimeout}),
			httpclient.WithHeaderParser(parser),
			// Throttles are handled here so the response body, which may
			// carry a wait hint, stays readable.
			httpclient.WithRetryStrategy(func(code int) httpclient.RetryStrategy {
				if code == http.StatusTooManyRequests {
					return httpclient.NoRetry
				}
				return httpclient.DefaultRetryStrategy(code)
			}),
		),
	}
}

func (p *openaiCompat) Name() string {
	return p.name
}

type chatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (p *openaiCompat) Chat(ctx context.Context, req ChatRequest) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.maxTokens
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = p.temperature
	}

	payload, err := json.Marshal(chatCompletionRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	for attempt := 0; attempt <= throttleRetries; attempt++ {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
			p.baseURL+"/chat/completions", bytes.NewReader(payload))
		if err != nil {
			return "", fmt.Errorf("failed to build chat request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if p.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
		}

		resp, doErr := p.client.Do(httpReq)
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()

			if attempt == throttleRetries {
				return "", &RateLimitError{Backend: p.name, Attempts: attempt + 1}
			}

			wait := httpclient.ParseThrottleHint(string(body))
			if wait == 0 {
				wait = time.Duration(attempt+1) * time.Second
			}
			slog.Info("chat backend throttled, waiting", "backend", p.name, "wait", wait)
			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		if doErr != nil {
			if resp != nil {
				resp.Body.Close()
			}
			return "", fmt.Errorf("%s chat request failed: %w", p.name, doErr)
		}

		var out chatCompletionResponse
		err = json.NewDecoder(resp.Body).Decode(&out)
		resp.Body.Close()
		if err != nil {
			return "", fmt.Errorf("failed to decode chat response: %w", err)
		}
		if out.Error != nil {
			return "", fmt.Errorf("%s: %s", p.name, out.Error.Message)
		}
		if len(out.Choices) == 0 {
			return "", fmt.Errorf("%s: empty completion", p.name)
		}
		return out.Choices[0].Message.Content, nil
	}

	return "", &RateLimitError{Backend: p.name, Attempts: throttleRetries + 1}
}

type modelListResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (p *openaiCompat) Models(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build models request: %w", err)
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("%s models request failed: %w", p.name, err)
	}
	defer resp.Body.Close()

	var out modelListResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode models response: %w", err)
	}

	models := make([]string, 0, len(out.Data))
	for _, m := range out.Data {
		models = append(models, m.ID)
	}
	return models, nil
}
