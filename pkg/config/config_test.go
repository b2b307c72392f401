package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "test-secret")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.Equal(t, "postgres", cfg.Database.Dialect)
	assert.Equal(t, 2048, cfg.Chunker.Size)
	assert.Equal(t, 200, cfg.Chunker.Overlap)
	assert.Equal(t, 768, cfg.Embedder.Dimension)
	assert.Equal(t, 5, cfg.Search.DocNum)
	assert.InDelta(t, 0.5, cfg.Search.Similarity, 1e-9)
	assert.Equal(t, 9*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 100, cfg.Summarizer.MaxPages)
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET_KEY")
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte("database:\n  type: postgres\n  host: filehost\nchunker:\n  size: 512\n")
	require.NoError(t, os.WriteFile(path, data, 0644))

	t.Setenv("JWT_SECRET_KEY", "s")
	t.Setenv("DB_TYPE", "chroma")
	t.Setenv("CHUNK_SIZE", "1024")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "chroma", cfg.Database.Type)
	assert.Equal(t, "filehost", cfg.Database.Host)
	assert.Equal(t, 1024, cfg.Chunker.Size)
	// chroma backend defaults the relational side to sqlite
	assert.Equal(t, "sqlite", cfg.Database.Dialect)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad db type", func(c *Config) { c.Database.Type = "oracle" }},
		{"bad dialect", func(c *Config) { c.Database.Dialect = "mongo" }},
		{"overlap >= size", func(c *Config) { c.Chunker.Overlap = c.Chunker.Size }},
		{"similarity out of range", func(c *Config) { c.Search.Similarity = 1.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.SetDefaults()
			cfg.Auth.JWTSecret = "s"
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestPostgresDSN(t *testing.T) {
	db := DatabaseConfig{
		Host: "db", Port: 5433, Name: "rag", User: "u", Password: "p", SSLMode: "require",
	}
	assert.Equal(t, "host=db port=5433 dbname=rag user=u password=p sslmode=require", db.PostgresDSN())
}
