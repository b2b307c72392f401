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
	"net/http"

	"github.com/munbongshin/RAGSEARCH/pkg/acl"
	"github.com/munbongshin/RAGSEARCH/pkg/auth"
)

const sessionCookie = "session_id"

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	result, err := s.auth.Login(r.Context(), body.Username, body.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !result.OK {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"message":    result.Reason.Message(),
			"error_code": string(result.Reason),
		})
		return
	}

	groups, err := s.auth.Store().UserGroups(r.Context(), result.User.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	groupID := ""
	if len(groups) > 0 {
		groupID = groups[0].ID
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    result.SessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "Login successful",
		"token":    result.Token,
		"username": result.User.Username,
		"group_id": groupID,
		"user_id":  result.User.ID,
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Username == "" || body.Email == "" || body.Password == "" {
		writeMessage(w, http.StatusBadRequest, "username, email and password are required")
		return
	}

	user, err := s.auth.Register(r.Context(), body.Username, body.Email, body.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":  "registration complete, awaiting activation",
		"username": user.Username,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		if err := s.auth.Logout(r.Context(), cookie.Value); err != nil {
			s.writeError(w, err)
			return
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
	writeMessage(w, http.StatusOK, "Logout successful")
}

func (s *Server) handleCheckAuth(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"username":      claims.Username,
		"user_id":       claims.UserID,
		"is_admin":      claims.IsAdmin,
	})
}

// handleCheckSession answers from the session cookie alone, independent
// of the bearer token.
func (s *Server) handleCheckSession(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"valid": false})
		return
	}
	valid, err := s.auth.CheckSession(r.Context(), cookie.Value)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": valid})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.CurrentPassword == "" || body.NewPassword == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false, "message": "both passwords are required",
		})
		return
	}

	claims, _ := auth.ClaimsFromContext(r.Context())
	if err := s.auth.ChangePassword(r.Context(), claims.UserID, body.CurrentPassword, body.NewPassword); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false, "message": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true, "message": "password changed",
	})
}

// =============================================================================
// User administration
// =============================================================================

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.auth.Store().ListUsers(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	active := 0
	for _, u := range users {
		if u.IsActive {
			active++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"users":       users,
		"totalCount":  len(users),
		"activeCount": active,
	})
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserIDs  []int `json:"user_ids"`
		IsActive *bool `json:"is_active"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.IsActive == nil {
		writeMessage(w, http.StatusBadRequest, "is_active is required")
		return
	}

	updated := 0
	for _, id := range body.UserIDs {
		if err := s.auth.Store().SetUserActive(r.Context(), id, *body.IsActive); err != nil {
			s.writeError(w, err)
			return
		}
		updated++
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true, "updated": updated,
	})
}

func (s *Server) handleBulkUpdate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IsActive *bool `json:"is_active"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.IsActive == nil {
		writeMessage(w, http.StatusBadRequest, "is_active is required")
		return
	}

	users, err := s.auth.Store().ListUsers(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	for _, u := range users {
		if err := s.auth.Store().SetUserActive(r.Context(), u.ID, *body.IsActive); err != nil {
			s.writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true, "updated": len(users),
	})
}

// =============================================================================
// Groups
// =============================================================================

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.auth.Store().ListGroups(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"groups":  groups,
	})
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Name == "" {
		writeMessage(w, http.StatusBadRequest, "group name is required")
		return
	}

	id, err := s.auth.Store().CreateGroup(r.Context(), body.Name, body.Description)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"group_id": id,
	})
}

func (s *Server) handleUpdateGroup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		GroupID     string `json:"group_id"`
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.GroupID == "" || body.Name == "" {
		writeMessage(w, http.StatusBadRequest, "group_id and name are required")
		return
	}

	if err := s.auth.Store().UpdateGroup(r.Context(), body.GroupID, body.Name, body.Description); err != nil {
		s.writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "group updated")
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		GroupID string `json:"group_id"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.GroupID == "" {
		writeMessage(w, http.StatusBadRequest, "group_id is required")
		return
	}

	if err := s.auth.Store().DeleteGroup(r.Context(), body.GroupID); err != nil {
		s.writeError(w, err)
		return
	}
	// Grants held by the group go with it.
	if err := s.acl.RemoveGroup(r.Context(), body.GroupID); err != nil {
		s.writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "group deleted")
}

func (s *Server) handleGroupUsers(w http.ResponseWriter, r *http.Request) {
	var body struct {
		GroupID string `json:"group_id"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	users, err := s.auth.Store().GroupMembers(r.Context(), body.GroupID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (s *Server) handleUserGroups(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID int `json:"user_id"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.UserID == 0 {
		writeMessage(w, http.StatusBadRequest, "user_id is required")
		return
	}

	groups, err := s.auth.Store().UserGroups(r.Context(), body.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": groups})
}

func (s *Server) handleSaveUserGroups(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID   int      `json:"user_id"`
		GroupIDs []string `json:"group_ids"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.UserID == 0 || body.GroupIDs == nil {
		writeMessage(w, http.StatusBadRequest, "user_id and group_ids are required")
		return
	}

	if err := s.auth.Store().ReplaceUserGroups(r.Context(), body.UserID, body.GroupIDs); err != nil {
		s.writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "groups updated")
}

func (s *Server) handleAssignGroup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID  int    `json:"user_id"`
		GroupID string `json:"group_id"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.UserID == 0 || body.GroupID == "" {
		writeMessage(w, http.StatusBadRequest, "user_id and group_id are required")
		return
	}

	if err := s.auth.Store().AddUserToGroup(r.Context(), body.UserID, body.GroupID); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true, "message": "group assigned",
	})
}

func (s *Server) handleRemoveUserGroup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID  int    `json:"user_id"`
		GroupID string `json:"group_id"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.UserID == 0 || body.GroupID == "" {
		writeMessage(w, http.StatusBadRequest, "user_id and group_id are required")
		return
	}

	if err := s.auth.Store().RemoveUserFromGroup(r.Context(), body.UserID, body.GroupID); err != nil {
		s.writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "group removed")
}

// =============================================================================
// Collection permissions
// =============================================================================

func (s *Server) handlePermissionSave(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CollectionID     int         `json:"collection_id"`
		GroupPermissions []acl.Grant `json:"group_permissions"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.CollectionID == 0 {
		writeMessage(w, http.StatusBadRequest, "collection_id is required")
		return
	}
	if len(body.GroupPermissions) == 0 {
		writeMessage(w, http.StatusBadRequest, "at least one group permission is required")
		return
	}

	if err := s.acl.ReplaceGrants(r.Context(), body.CollectionID, body.GroupPermissions); err != nil {
		s.writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "permissions saved")
}

func (s *Server) handlePermissionList(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CollectionID int `json:"collection_id"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.CollectionID == 0 {
		writeMessage(w, http.StatusBadRequest, "collection_id is required")
		return
	}

	grants, err := s.acl.Grants(r.Context(), body.CollectionID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	// Decorate with group names for the admin UI.
	groups, err := s.auth.Store().ListGroups(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	names := make(map[string]string, len(groups))
	for _, g := range groups {
		names[g.ID] = g.Name
	}

	type grantWithName struct {
		acl.Grant
		GroupName string `json:"group_name"`
	}
	out := make([]grantWithName, 0, len(grants))
	for _, g := range grants {
		out = append(out, grantWithName{Grant: g, GroupName: names[g.GroupID]})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"groups":  out,
	})
}
