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

// Package store persists document chunks with their dense and lexical
// representations and serves hybrid ranked retrieval. Two backends exist:
// PostgreSQL (pgvector + tsvector) for shared deployments and an embedded
// chromem database for single-node ones. The backend is chosen once at
// startup.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/munbongshin/RAGSEARCH/pkg/config"
)

// Collection groups the chunks of related documents.
type Collection struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	CreatorID int       `json:"creator_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Metadata travels with every chunk.
type Metadata struct {
	Source      string    `json:"source"`
	Page        int       `json:"page"`
	ProcessedAt time.Time `json:"processed_at"`
}

// ChunkRecord is the ingestor's input to InsertChunks.
type ChunkRecord struct {
	Content  string
	Metadata Metadata
	Vector   []float32
}

// Chunk is a stored chunk as read back from the store.
type Chunk struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Metadata  Metadata  `json:"metadata"`
	CreatedAt time.Time `json:"created_at"`
}

// SearchRequest describes one hybrid search. TSQuery is the assembled
// lexical query expression; Keywords are the raw terms for backends that
// score lexically in process.
type SearchRequest struct {
	CollectionIDs []int
	QueryText     string
	TSQuery       string
	Keywords      []string
	QueryVector   []float32
	Limit         int
	ScoreMin      float64
	// Sources restricts results to the given sources per collection id.
	// A nil map applies no filter.
	Sources map[int][]string
}

// SearchResult is one ranked hit.
type SearchResult struct {
	CollectionID int     `json:"collection_id"`
	Content      string  `json:"content"`
	Source       string  `json:"source"`
	Page         int     `json:"page"`
	Snippet      string  `json:"snippet,omitempty"`
	LexicalScore float64 `json:"lexical_score"`
	VectorScore  float64 `json:"vector_score"`
	Score        float64 `json:"score"`
}

// Store is the persistence interface the rest of the system programs
// against.
type Store interface {
	CreateCollection(ctx context.Context, name string, creatorID int) (int, error)
	DeleteCollection(ctx context.Context, name string) error
	GetCollection(ctx context.Context, name string) (*Collection, error)
	ListCollections(ctx context.Context) ([]Collection, error)

	// InsertChunks writes a batch. Per-record failures are skipped and
	// counted; only surviving rows commit.
	InsertChunks(ctx context.Context, collectionID int, records []ChunkRecord) (stored, failed int, err error)
	DeleteBySource(ctx context.Context, collectionID int, source string) (int, error)

	Sources(ctx context.Context, collectionID int, substr string) ([]string, error)
	Pages(ctx context.Context, collectionID int, source string) (int, error)
	PageContent(ctx context.Context, collectionID int, source string, page int) (string, error)
	SourceContent(ctx context.Context, collectionID int, source string) ([]Chunk, error)
	RecentChunks(ctx context.Context, collectionID, limit int) ([]Chunk, error)
	SourceExists(ctx context.Context, collectionID int, source string) (bool, error)

	Search(ctx context.Context, req SearchRequest) ([]SearchResult, error)

	Close() error
}

// New selects and opens the backend named by the config.
func New(cfg config.DatabaseConfig, dimension int) (Store, error) {
	switch cfg.Type {
	case "postgres":
		db, err := sql.Open("postgres", cfg.PostgresDSN())
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		return NewPostgresStore(db, dimension)
	case "chroma", "chromem":
		return NewChromemStore(cfg.ChromaPersistPath, dimension)
	default:
		return nil, fmt.Errorf("unsupported store type: %s (supported: postgres, chroma)", cfg.Type)
	}
}

// NamingRule is the user-facing text of the collection naming rule.
const NamingRule = "Collection name must: (1) contain 3-63 characters, " +
	"(2) start and end with alphanumeric, " +
	"(3) contain only alphanumeric, underscores or hyphens, " +
	"(4) no consecutive periods, (5) not be a valid IPv4 address"

var collectionNameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{1,61}[a-zA-Z0-9]$`)

// ValidateCollectionName checks a collection name against the naming
// rule.
func ValidateCollectionName(name string) error {
	if !collectionNameRe.MatchString(name) {
		return NewInvalidNameError(name)
	}
	if strings.Contains(name, "..") {
		return NewInvalidNameError(name)
	}
	if ip := net.ParseIP(name); ip != nil && ip.To4() != nil {
		return NewInvalidNameError(name)
	}
	return nil
}
