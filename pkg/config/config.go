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

// Package config defines the explicit configuration records for the service.
// Configuration is loaded once at startup from an optional YAML file and
// overlaid with environment variables; nothing reloads at runtime.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration record.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Chunker    ChunkerConfig    `yaml:"chunker"`
	Embedder   EmbedderConfig   `yaml:"embedder"`
	LLM        LLMConfig        `yaml:"llm"`
	Auth       AuthConfig       `yaml:"auth"`
	Search     SearchConfig     `yaml:"search"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	Sysprompt  SyspromptConfig  `yaml:"sysprompt"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string `yaml:"host,omitempty"`
	Port            int    `yaml:"port,omitempty"`
	LogLevel        string `yaml:"log_level,omitempty"`
	LogFormat       string `yaml:"log_format,omitempty"`
	MaxUploadBytes  int64  `yaml:"max_upload_bytes,omitempty"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty"`
}

// DatabaseConfig selects and configures the chunk store backend plus the
// relational identity/ACL database. Type is fixed at startup; switching
// backends requires a restart.
type DatabaseConfig struct {
	// Type is "postgres" or "chroma".
	Type string `yaml:"type,omitempty"`

	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	Name     string `yaml:"name,omitempty"`
	User     string `yaml:"user,omitempty"`
	Password string `yaml:"password,omitempty"`
	SSLMode  string `yaml:"sslmode,omitempty"`

	// Dialect of the relational identity/ACL store: postgres, sqlite, mysql.
	// With Type=postgres it defaults to postgres; with Type=chroma it
	// defaults to sqlite.
	Dialect string `yaml:"dialect,omitempty"`

	// SQLitePath is the database file used when Dialect is sqlite.
	SQLitePath string `yaml:"sqlite_path,omitempty"`

	// ChromaPersistPath enables file persistence for the chroma backend.
	ChromaPersistPath string `yaml:"chroma_persist_path,omitempty"`

	MaxOpenConns int           `yaml:"max_open_conns,omitempty"`
	MaxIdleConns int           `yaml:"max_idle_conns,omitempty"`
	QueryTimeout time.Duration `yaml:"query_timeout,omitempty"`
}

// ChunkerConfig configures document chunking.
type ChunkerConfig struct {
	Size    int `yaml:"size,omitempty"`
	Overlap int `yaml:"overlap,omitempty"`
	MinSize int `yaml:"min_size,omitempty"`
}

// EmbedderConfig configures the embedding provider.
type EmbedderConfig struct {
	Host       string        `yaml:"host,omitempty"`
	Model      string        `yaml:"model,omitempty"`
	Dimension  int           `yaml:"dimension,omitempty"`
	Timeout    time.Duration `yaml:"timeout,omitempty"`
	MaxRetries int           `yaml:"max_retries,omitempty"`
}

// LLMConfig configures the answer-synthesis backends.
type LLMConfig struct {
	DefaultBackend string  `yaml:"default_backend,omitempty"`
	GroqAPIKey     string  `yaml:"groq_api_key,omitempty"`
	GroqBaseURL    string  `yaml:"groq_base_url,omitempty"`
	OpenAIBaseURL  string  `yaml:"openai_base_url,omitempty"`
	OllamaHost     string  `yaml:"ollama_host,omitempty"`
	MaxTokens      int     `yaml:"max_tokens,omitempty"`
	Temperature    float64 `yaml:"temperature,omitempty"`
	MaxWorkers     int     `yaml:"max_workers,omitempty"`

	ConnectTimeout time.Duration `yaml:"connect_timeout,omitempty"`
	ReadTimeout    time.Duration `yaml:"read_timeout,omitempty"`
}

// AuthConfig configures tokens and sessions.
type AuthConfig struct {
	// JWTSecret signs bearer tokens (HS256). Required.
	JWTSecret  string        `yaml:"jwt_secret,omitempty"`
	TokenTTL   time.Duration `yaml:"token_ttl,omitempty"`
	BcryptCost int           `yaml:"bcrypt_cost,omitempty"`
}

// SearchConfig configures hybrid retrieval defaults.
type SearchConfig struct {
	// DocNum is the default number of passages returned.
	DocNum int `yaml:"doc_num,omitempty"`
	// Similarity is the default minimum combined score.
	Similarity float64 `yaml:"similarity,omitempty"`
	// FilteredDocNum caps passages handed to the LLM.
	FilteredDocNum int `yaml:"filtered_doc_num,omitempty"`
}

// SummarizerConfig bounds the map-reduce summarizer.
type SummarizerConfig struct {
	MaxPages     int `yaml:"max_pages,omitempty"`
	MaxChunks    int `yaml:"max_chunks,omitempty"`
	PieceTokens  int `yaml:"piece_tokens,omitempty"`
	PieceOverlap int `yaml:"piece_overlap,omitempty"`
	ReduceWords  int `yaml:"reduce_words,omitempty"`
	PageWords    int `yaml:"page_words,omitempty"`
}

// SyspromptConfig locates the system prompt template storage.
type SyspromptConfig struct {
	Dir string `yaml:"dir,omitempty"`
}

// Load reads the optional YAML file at path, overlays environment variables
// (a .env file is honored when present), applies defaults, and validates.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Database.Type, "DB_TYPE")
	setString(&c.Database.Host, "DB_HOST")
	setInt(&c.Database.Port, "DB_PORT")
	setString(&c.Database.Name, "DB_NAME")
	setString(&c.Database.User, "DB_USER")
	setString(&c.Database.Password, "DB_PASSWORD")
	setString(&c.Database.SQLitePath, "SQLITE_PATH")
	setString(&c.Database.ChromaPersistPath, "CHROMA_PERSIST_PATH")

	setString(&c.Auth.JWTSecret, "JWT_SECRET_KEY")

	setInt(&c.Chunker.Size, "CHUNK_SIZE")
	setInt(&c.Chunker.Overlap, "CHUNK_OVERLAP")

	setInt(&c.Search.DocNum, "DOC_NUM")
	setFloat(&c.Search.Similarity, "SIMILARITY")
	// Misspelled in the historical deployment environment; recognized as-is.
	setInt(&c.Search.FilteredDocNum, "FILLTERED_DOC_NUMBER")

	setString(&c.Embedder.Host, "OLLAMA_HOST")
	setString(&c.LLM.OllamaHost, "OLLAMA_HOST")
	setString(&c.LLM.GroqAPIKey, "GROQ_API_KEY")
	setString(&c.LLM.OpenAIBaseURL, "BASE_URL")
	setString(&c.LLM.DefaultBackend, "DEFAULT_LLMNAME")
}

// SetDefaults fills unset fields with the design defaults.
func (c *Config) SetDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 5000
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.MaxUploadBytes == 0 {
		c.Server.MaxUploadBytes = 50 << 20
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}

	if c.Database.Type == "" {
		c.Database.Type = "postgres"
	}
	if c.Database.Host == "" {
		c.Database.Host = "localhost"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.Dialect == "" {
		if c.Database.Type == "chroma" {
			c.Database.Dialect = "sqlite"
		} else {
			c.Database.Dialect = "postgres"
		}
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "ragsearch.db"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 2
	}
	if c.Database.QueryTimeout == 0 {
		c.Database.QueryTimeout = 30 * time.Second
	}

	if c.Chunker.Size == 0 {
		c.Chunker.Size = 2048
	}
	if c.Chunker.Overlap == 0 {
		c.Chunker.Overlap = 200
	}
	if c.Chunker.MinSize == 0 {
		c.Chunker.MinSize = 10
	}

	if c.Embedder.Host == "" {
		c.Embedder.Host = "http://localhost:11434"
	}
	if c.Embedder.Model == "" {
		c.Embedder.Model = "nomic-embed-text"
	}
	if c.Embedder.Dimension == 0 {
		c.Embedder.Dimension = 768
	}
	if c.Embedder.Timeout == 0 {
		c.Embedder.Timeout = 60 * time.Second
	}
	if c.Embedder.MaxRetries == 0 {
		c.Embedder.MaxRetries = 3
	}

	if c.LLM.DefaultBackend == "" {
		c.LLM.DefaultBackend = "Ollama"
	}
	if c.LLM.GroqBaseURL == "" {
		c.LLM.GroqBaseURL = "https://api.groq.com/openai/v1"
	}
	if c.LLM.OllamaHost == "" {
		c.LLM.OllamaHost = "http://localhost:11434"
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 4096
	}
	if c.LLM.MaxWorkers == 0 {
		c.LLM.MaxWorkers = 5
	}
	if c.LLM.ConnectTimeout == 0 {
		c.LLM.ConnectTimeout = 10 * time.Second
	}
	if c.LLM.ReadTimeout == 0 {
		c.LLM.ReadTimeout = 300 * time.Second
	}

	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 9 * time.Hour
	}
	if c.Auth.BcryptCost == 0 {
		c.Auth.BcryptCost = 12
	}

	if c.Search.DocNum == 0 {
		c.Search.DocNum = 5
	}
	if c.Search.Similarity == 0 {
		c.Search.Similarity = 0.5
	}
	if c.Search.FilteredDocNum == 0 {
		c.Search.FilteredDocNum = 5
	}

	if c.Summarizer.MaxPages == 0 {
		c.Summarizer.MaxPages = 100
	}
	if c.Summarizer.MaxChunks == 0 {
		c.Summarizer.MaxChunks = 100
	}
	if c.Summarizer.PieceTokens == 0 {
		c.Summarizer.PieceTokens = 1000
	}
	if c.Summarizer.PieceOverlap == 0 {
		c.Summarizer.PieceOverlap = 100
	}
	if c.Summarizer.ReduceWords == 0 {
		c.Summarizer.ReduceWords = 10240
	}
	if c.Summarizer.PageWords == 0 {
		c.Summarizer.PageWords = 2048
	}

	if c.Sysprompt.Dir == "" {
		c.Sysprompt.Dir = "system_messages"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Database.Type {
	case "postgres", "chroma":
	default:
		return fmt.Errorf("invalid database type %q (supported: postgres, chroma)", c.Database.Type)
	}

	switch c.Database.Dialect {
	case "postgres", "sqlite", "mysql":
	default:
		return fmt.Errorf("invalid database dialect %q (supported: postgres, sqlite, mysql)", c.Database.Dialect)
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET_KEY must be set")
	}

	if c.Chunker.Overlap >= c.Chunker.Size {
		return fmt.Errorf("chunk overlap (%d) must be less than chunk size (%d)", c.Chunker.Overlap, c.Chunker.Size)
	}

	if c.Embedder.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", c.Embedder.Dimension)
	}

	if c.Search.Similarity < 0 || c.Search.Similarity > 1 {
		return fmt.Errorf("similarity threshold must be in [0,1], got %g", c.Search.Similarity)
	}

	return nil
}

// PostgresDSN builds the lib/pq connection string.
func (c *DatabaseConfig) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Name, c.User, c.Password, c.SSLMode)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
