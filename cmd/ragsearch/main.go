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

// Command ragsearch runs the retrieval-augmented document QA service.
//
// Usage:
//
//	ragsearch serve --config config.yaml
//	ragsearch serve --port 5000
//	ragsearch hash-password
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/alecthomas/kong"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/munbongshin/RAGSEARCH/pkg/acl"
	"github.com/munbongshin/RAGSEARCH/pkg/auth"
	"github.com/munbongshin/RAGSEARCH/pkg/chunk"
	"github.com/munbongshin/RAGSEARCH/pkg/config"
	"github.com/munbongshin/RAGSEARCH/pkg/embedder"
	"github.com/munbongshin/RAGSEARCH/pkg/extract"
	"github.com/munbongshin/RAGSEARCH/pkg/ingest"
	"github.com/munbongshin/RAGSEARCH/pkg/llm"
	"github.com/munbongshin/RAGSEARCH/pkg/logger"
	"github.com/munbongshin/RAGSEARCH/pkg/server"
	"github.com/munbongshin/RAGSEARCH/pkg/store"
	"github.com/munbongshin/RAGSEARCH/pkg/summarize"
	"github.com/munbongshin/RAGSEARCH/pkg/sysprompt"
)

// CLI defines the command-line interface.
type CLI struct {
	Version      VersionCmd      `cmd:"" help:"Show version information."`
	Serve        ServeCmd        `cmd:"" default:"1" help:"Start the HTTP server."`
	HashPassword HashPasswordCmd `cmd:"" name:"hash-password" help:"Hash a password for manual account setup."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple or verbose)." default:"simple"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("ragsearch version %s\n", version)
	return nil
}

// ServeCmd starts the HTTP server.
type ServeCmd struct {
	Host string `help:"Address to bind."`
	Port int    `help:"Port to listen on."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	if c.Host != "" {
		cfg.Server.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	log := logger.GetLogger()

	identityDB, err := openIdentityDB(cfg.Database)
	if err != nil {
		return err
	}
	defer identityDB.Close()

	authStore, err := auth.NewStore(identityDB, cfg.Database.Dialect)
	if err != nil {
		return err
	}
	aclStore, err := acl.NewStore(identityDB, cfg.Database.Dialect)
	if err != nil {
		return err
	}
	tokens, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}
	authSvc := auth.NewService(authStore, auth.NewHasher(cfg.Auth.BcryptCost), tokens, log)

	st, err := store.New(cfg.Database, cfg.Embedder.Dimension)
	if err != nil {
		return err
	}
	defer st.Close()

	embed := embedder.NewOllamaProvider(cfg.Embedder)
	chunker := chunk.New(chunk.Config{
		ChunkSize:    cfg.Chunker.Size,
		ChunkOverlap: cfg.Chunker.Overlap,
	})
	ingestor := ingest.New(extract.NewRegistry(), chunker, embed, st, cfg.LLM.MaxWorkers, log)

	llms := llm.NewManager(cfg.LLM)
	summarizer, err := summarize.New(st, llms, cfg.Summarizer, log)
	if err != nil {
		return err
	}
	prompts, err := sysprompt.NewManager(cfg.Sysprompt.Dir)
	if err != nil {
		return err
	}

	srv := server.New(cfg, authSvc, aclStore, st, ingestor, embed, llms, summarizer, prompts, log)
	return srv.ListenAndServe(ctx)
}

// openIdentityDB opens the relational database holding users, groups,
// sessions, and collection grants.
func openIdentityDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	switch cfg.Dialect {
	case "postgres":
		return sql.Open("postgres", cfg.PostgresDSN())
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name)
		return sql.Open("mysql", dsn)
	case "sqlite", "sqlite3":
		return sql.Open("sqlite3", cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported identity database dialect: %s", cfg.Dialect)
	}
}

func main() {
	cli := &CLI{}
	kctx := kong.Parse(cli,
		kong.Name("ragsearch"),
		kong.Description("Retrieval-augmented document QA service."),
		kong.UsageOnError(),
	)

	cleanup, err := initLoggerFromCLI(cli.LogLevel, cli.LogFile, cli.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if cleanup != nil {
		defer cleanup()
	}

	if err := kctx.Run(cli); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
