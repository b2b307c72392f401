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

// Package auth implements account management: registration, login with
// server-side sessions and signed access tokens, group membership, and
// password reset.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// LoginResult is the outcome of a login attempt. Rejections are data, not
// errors: OK is false and Reason says why. An error return is reserved for
// infrastructure failures.
type LoginResult struct {
	OK        bool
	Reason    LoginReason
	Token     string
	ExpiresAt time.Time
	SessionID string
	User      *User
	IsAdmin   bool
}

// Service ties the identity store, the password hasher, and the token
// issuer together.
type Service struct {
	store  *Store
	hasher *Hasher
	tokens *TokenIssuer
	logger *slog.Logger
}

// NewService creates an auth service.
func NewService(store *Store, hasher *Hasher, tokens *TokenIssuer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, hasher: hasher, tokens: tokens, logger: logger}
}

// Store exposes the underlying identity store for administrative handlers.
func (s *Service) Store() *Store {
	return s.store
}

// Login authenticates a user. On success it replaces any prior session
// with a fresh one and issues an access token.
func (s *Service) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	user, hash, err := s.store.GetUserByUsername(ctx, username)
	if err == ErrUserNotFound {
		s.logger.Info("login rejected", "username", username, "reason", ReasonUserNotFound)
		return &LoginResult{Reason: ReasonUserNotFound}, nil
	}
	if err != nil {
		return nil, err
	}

	if !user.IsActive {
		s.logger.Info("login rejected", "username", username, "reason", ReasonUserInactive)
		return &LoginResult{Reason: ReasonUserInactive}, nil
	}

	if !s.hasher.Verify(hash, password) {
		s.logger.Info("login rejected", "username", username, "reason", ReasonInvalidPassword)
		return &LoginResult{Reason: ReasonInvalidPassword}, nil
	}

	isAdmin, err := s.store.IsMember(ctx, user.ID, AdminGroupID)
	if err != nil {
		return nil, err
	}

	sess, err := s.store.CreateSession(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	token, exp, err := s.tokens.Issue(&Claims{
		UserID:   user.ID,
		Username: user.Username,
		IsAdmin:  isAdmin,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("login succeeded", "username", username, "user_id", user.ID, "is_admin", isAdmin)
	return &LoginResult{
		OK:        true,
		Token:     token,
		ExpiresAt: exp,
		SessionID: sess.ID,
		User:      user,
		IsAdmin:   isAdmin,
	}, nil
}

// Logout deactivates the given session. Unknown sessions are a no-op so
// logout is idempotent.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	return s.store.DeactivateSession(ctx, sessionID)
}

// Register creates a new inactive account and places it in the default
// group. The account must be activated by an administrator before login.
func (s *Service) Register(ctx context.Context, username, email, password string) (*User, error) {
	if username == "" || email == "" {
		return nil, fmt.Errorf("username and email are required")
	}
	if len([]rune(username)) < MinCredentialLength {
		return nil, ErrUsernameTooShort
	}
	if len([]rune(password)) < MinCredentialLength {
		return nil, ErrPasswordTooShort
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	id, err := s.store.CreateUser(ctx, username, email, hash)
	if err != nil {
		return nil, err
	}

	if err := s.store.AddUserToGroup(ctx, id, DefaultGroupID); err != nil {
		return nil, err
	}

	s.logger.Info("user registered", "username", username, "user_id", id)
	return s.store.GetUser(ctx, id)
}

// CheckSession reports whether a session exists, is active, and has not
// expired. Expired-but-active sessions are deactivated on the way out.
func (s *Service) CheckSession(ctx context.Context, sessionID string) (bool, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err == ErrSessionNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !sess.IsActive {
		return false, nil
	}
	if time.Now().After(sess.ExpiresAt) {
		if err := s.store.DeactivateSession(ctx, sessionID); err != nil {
			s.logger.Warn("failed to deactivate expired session", "error", err)
		}
		return false, nil
	}
	return true, nil
}

// ValidateToken checks an access token and returns its claims.
func (s *Service) ValidateToken(token string) (*Claims, error) {
	return s.tokens.Validate(token)
}

// ChangePassword verifies the current password and replaces it.
func (s *Service) ChangePassword(ctx context.Context, userID int, current, next string) error {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	_, hash, err := s.store.GetUserByUsername(ctx, user.Username)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(hash, current) {
		return fmt.Errorf("current password does not match")
	}

	newHash, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	if err := s.store.UpdatePassword(ctx, userID, newHash); err != nil {
		return err
	}
	s.logger.Info("password changed", "user_id", userID)
	return nil
}

// RequestPasswordReset issues a reset token for the account registered
// under the given email. The token is valid for one hour.
func (s *Service) RequestPasswordReset(ctx context.Context, username string) (string, error) {
	user, _, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return "", err
	}
	return s.store.CreateResetToken(ctx, user.ID, time.Hour)
}

// ResetPassword consumes a reset token and sets the new password.
func (s *Service) ResetPassword(ctx context.Context, token, next string) error {
	userID, err := s.store.ConsumeResetToken(ctx, token)
	if err != nil {
		return err
	}
	hash, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	if err := s.store.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}
	s.logger.Info("password reset", "user_id", userID)
	return nil
}

// IsAdmin reports whether the user belongs to the admin group.
func (s *Service) IsAdmin(ctx context.Context, userID int) (bool, error) {
	return s.store.IsMember(ctx, userID, AdminGroupID)
}
