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

// Package server binds the HTTP surface to the components: auth and group
// administration, collection and document management, hybrid search with
// answer synthesis, and streaming summarization.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/munbongshin/RAGSEARCH/pkg/acl"
	"github.com/munbongshin/RAGSEARCH/pkg/auth"
	"github.com/munbongshin/RAGSEARCH/pkg/config"
	"github.com/munbongshin/RAGSEARCH/pkg/embedder"
	"github.com/munbongshin/RAGSEARCH/pkg/ingest"
	"github.com/munbongshin/RAGSEARCH/pkg/llm"
	"github.com/munbongshin/RAGSEARCH/pkg/store"
	"github.com/munbongshin/RAGSEARCH/pkg/summarize"
	"github.com/munbongshin/RAGSEARCH/pkg/sysprompt"
)

// Server holds every component the handlers dispatch to.
type Server struct {
	cfg        *config.Config
	auth       *auth.Service
	acl        *acl.Store
	store      store.Store
	ingestor   *ingest.Ingestor
	embed      embedder.Provider
	llms       *llm.Manager
	summarizer *summarize.Summarizer
	prompts    *sysprompt.Manager
	logger     *slog.Logger
}

// New wires the components into a server.
func New(cfg *config.Config, authSvc *auth.Service, aclStore *acl.Store, st store.Store,
	ingestor *ingest.Ingestor, embed embedder.Provider, llms *llm.Manager,
	summarizer *summarize.Summarizer, prompts *sysprompt.Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:        cfg,
		auth:       authSvc,
		acl:        aclStore,
		store:      st,
		ingestor:   ingestor,
		embed:      embed,
		llms:       llms,
		summarizer: summarizer,
		prompts:    prompts,
		logger:     logger,
	}
}

// Router assembles the full route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(s.loggingMiddleware)
	r.Use(corsMiddleware)

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Post("/register", s.handleRegister)
		r.Post("/logout", s.handleLogout)
		r.Get("/check-session", s.handleCheckSession)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Get("/check-auth", s.handleCheckAuth)
			r.Post("/change-password", s.handleChangePassword)
			r.Get("/groups", s.handleListGroups)
			r.Post("/groups/groupusers", s.handleGroupUsers)
			r.Post("/users/grouplist", s.handleUserGroups)
			r.Post("/permissionsave", s.handlePermissionSave)
			r.Post("/permissionlist", s.handlePermissionList)

			r.Group(func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Get("/list", s.handleListUsers)
				r.Post("/update-status", s.handleUpdateStatus)
				r.Post("/bulk-update", s.handleBulkUpdate)
				r.Post("/groups/create", s.handleCreateGroup)
				r.Post("/groups/update", s.handleUpdateGroup)
				r.Post("/groups/delete", s.handleDeleteGroup)
				r.Post("/users/savegroups", s.handleSaveUserGroups)
				r.Post("/users/assigngroup", s.handleAssignGroup)
				r.Delete("/users/deletegroup", s.handleRemoveUserGroup)
			})
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Get("/health", s.handleHealth)
		r.Get("/models", s.handleModels)

		r.Post("/create-collection", s.handleCreateCollection)
		r.Get("/list-collections", s.handleListCollections)
		r.Get("/collections", s.handleCollectionsForUser)
		r.Post("/delete-collection", s.handleDeleteCollection)
		r.Get("/user/id", s.handleUserID)

		r.Post("/upload_and_embed", s.handleUploadAndEmbed)
		r.Post("/check_file_exists", s.handleCheckFileExists)
		r.Post("/delete-sources", s.handleDeleteSources)
		r.Get("/get-all-documents-source", s.handleAllDocumentsSource)
		r.Get("/view-collection", s.handleViewCollection)
		r.Get("/get-document-pages", s.handleDocumentPages)
		r.Post("/get-document-pages", s.handleDocumentPages)
		r.Post("/page-content", s.handlePageContent)

		r.Get("/search-documents", s.handleSearchDocuments)
		r.Post("/process_query", s.handleProcessQuery)

		r.Get("/summarize-sse", s.handleSummarizeSSE)
		r.Post("/summarize-page-content", s.handleSummarizePageContent)

		r.Post("/get_system_message_list", s.handleSystemMessageList)
		r.Post("/get_system_message", s.handleGetSystemMessage)
		r.Post("/save_system_message", s.handleSaveSystemMessage)
		r.Post("/update_system_message", s.handleUpdateSystemMessage)
		r.Post("/delete_system_message", s.handleDeleteSystemMessage)
		r.Post("/get_current_selected_message", s.handleGetSelectedMessage)
		r.Post("/save_selected_message", s.handleSaveSelectedMessage)
	})

	return r
}

// ListenAndServe runs the server until ctx is cancelled, then drains
// in-flight requests within the configured shutdown timeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	connected := true
	if _, err := s.store.ListCollections(r.Context()); err != nil {
		connected = false
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"database": map[string]any{
			"type":      s.cfg.Database.Type,
			"connected": connected,
		},
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	backend := r.URL.Query().Get("llm_name")
	provider, err := s.llms.Get(backend)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	models, err := provider.Models(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"backend": provider.Name(),
		"models":  models,
	})
}
