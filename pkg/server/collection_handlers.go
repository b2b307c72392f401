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
	"fmt"
	"net/http"
	"strconv"

	"github.com/munbongshin/RAGSEARCH/pkg/acl"
	"github.com/munbongshin/RAGSEARCH/pkg/auth"
	"github.com/munbongshin/RAGSEARCH/pkg/store"
)

// effectivePerms resolves what the calling user may do with a collection.
func (s *Server) effectivePerms(r *http.Request, coll *store.Collection) (acl.Perms, error) {
	claims, _ := auth.ClaimsFromContext(r.Context())

	groups, err := s.auth.Store().UserGroups(r.Context(), claims.UserID)
	if err != nil {
		return acl.Perms{}, err
	}
	ids := make([]string, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, g.ID)
	}

	groupPerms, err := s.acl.GroupPerms(r.Context(), ids)
	if err != nil {
		return acl.Perms{}, err
	}
	d := acl.Decision{CollectionID: coll.ID, CreatorID: coll.CreatorID}
	return acl.Effective(d, claims.UserID, claims.IsAdmin, groupPerms), nil
}

// requireCollection resolves a collection by name and checks one
// permission. Writes the response itself on failure.
func (s *Server) requireCollection(w http.ResponseWriter, r *http.Request, name string,
	check func(acl.Perms) bool) (*store.Collection, bool) {

	coll, err := s.store.GetCollection(r.Context(), name)
	if err != nil {
		s.writeError(w, err)
		return nil, false
	}
	perms, err := s.effectivePerms(r, coll)
	if err != nil {
		s.writeError(w, err)
		return nil, false
	}
	if !check(perms) {
		writeMessage(w, http.StatusForbidden, "you do not have permission for this collection")
		return nil, false
	}
	return coll, true
}

// requireCollectionByID is requireCollection for endpoints addressing a
// collection by numeric id.
func (s *Server) requireCollectionByID(w http.ResponseWriter, r *http.Request, id int,
	check func(acl.Perms) bool) (*store.Collection, bool) {

	collections, err := s.store.ListCollections(r.Context())
	if err != nil {
		s.writeError(w, err)
		return nil, false
	}
	for _, c := range collections {
		if c.ID == id {
			return s.requireCollection(w, r, c.Name, check)
		}
	}
	writeMessage(w, http.StatusNotFound, fmt.Sprintf("collection %d not found", id))
	return nil, false
}

func (s *Server) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name    string `json:"name"`
		Creator int    `json:"creator"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Name == "" {
		writeMessage(w, http.StatusBadRequest, "collection name is required")
		return
	}

	creator := body.Creator
	if creator == 0 {
		claims, _ := auth.ClaimsFromContext(r.Context())
		creator = claims.UserID
	}

	if _, err := s.store.CreateCollection(r.Context(), body.Name, creator); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "collection " + body.Name + " created",
	})
}

func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	collections, err := s.store.ListCollections(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	names := make([]string, 0, len(collections))
	for _, c := range collections {
		names = append(names, c.Name)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"collections": names,
	})
}

// handleCollectionsForUser lists the collections the user may touch,
// with their effective permissions.
func (s *Server) handleCollectionsForUser(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.Atoi(r.URL.Query().Get("user_id"))
	if err != nil || userID <= 0 {
		writeMessage(w, http.StatusBadRequest, "a positive numeric user_id is required")
		return
	}

	claims, _ := auth.ClaimsFromContext(r.Context())
	if claims.UserID != userID && !claims.IsAdmin {
		writeMessage(w, http.StatusForbidden, "you may only list your own collections")
		return
	}

	isAdmin, err := s.auth.IsAdmin(r.Context(), userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	groups, err := s.auth.Store().UserGroups(r.Context(), userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	groupIDs := make([]string, 0, len(groups))
	for _, g := range groups {
		groupIDs = append(groupIDs, g.ID)
	}
	groupPerms, err := s.acl.GroupPerms(r.Context(), groupIDs)
	if err != nil {
		s.writeError(w, err)
		return
	}

	collections, err := s.store.ListCollections(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	type collectionView struct {
		store.Collection
		Permissions acl.Perms `json:"permissions"`
	}
	visible := make([]collectionView, 0, len(collections))
	for _, c := range collections {
		d := acl.Decision{CollectionID: c.ID, CreatorID: c.CreatorID}
		perms := acl.Effective(d, userID, isAdmin, groupPerms)
		if !perms.Any() {
			continue
		}
		visible = append(visible, collectionView{Collection: c, Permissions: perms})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"collections": visible,
		"count":       len(visible),
	})
}

func (s *Server) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Name == "" {
		writeMessage(w, http.StatusBadRequest, "collection name is required")
		return
	}

	coll, ok := s.requireCollection(w, r, body.Name, func(p acl.Perms) bool { return p.Delete })
	if !ok {
		return
	}

	if err := s.store.DeleteCollection(r.Context(), body.Name); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.acl.RemoveCollection(r.Context(), coll.ID); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "collection " + body.Name + " deleted",
	})
}

func (s *Server) handleUserID(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" {
		writeMessage(w, http.StatusBadRequest, "username is required")
		return
	}

	user, _, err := s.auth.Store().GetUserByUsername(r.Context(), username)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"user_id":  user.ID,
		"username": username,
	})
}

func (s *Server) handleViewCollection(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("collection_name")
	if name == "" {
		writeMessage(w, http.StatusBadRequest, "collection name is required")
		return
	}

	coll, ok := s.requireCollection(w, r, name, func(p acl.Perms) bool { return p.Read })
	if !ok {
		return
	}

	chunks, err := s.store.RecentChunks(r.Context(), coll.ID, s.cfg.Search.DocNum)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"documents": chunks,
	})
}
