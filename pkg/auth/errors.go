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

package auth

import "errors"

// MinCredentialLength is the minimum username and password length in
// characters, enforced at registration.
const MinCredentialLength = 9

var (
	// ErrUserNotFound is returned when no user matches the given name or id.
	ErrUserNotFound = errors.New("user not found")

	// ErrUsernameTooShort and ErrPasswordTooShort reject registrations with
	// credentials under the minimum length.
	ErrUsernameTooShort = errors.New("username must be at least 9 characters long")
	ErrPasswordTooShort = errors.New("password must be at least 9 characters long")

	// ErrUserExists is returned on registration with a taken username or email.
	ErrUserExists = errors.New("username or email already registered")

	// ErrGroupNotFound is returned when no group matches the given id or name.
	ErrGroupNotFound = errors.New("group not found")

	// ErrGroupExists is returned when creating a group whose name is taken.
	ErrGroupExists = errors.New("group already exists")

	// ErrSessionNotFound is returned when a session id is unknown or inactive.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidToken is returned for tokens that fail signature or claim
	// validation.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned for structurally valid but expired tokens.
	ErrTokenExpired = errors.New("token expired")

	// ErrResetTokenInvalid is returned for unknown, used, or expired password
	// reset tokens.
	ErrResetTokenInvalid = errors.New("password reset token invalid")
)

// LoginReason tags why a login attempt was rejected. An empty reason means
// the attempt succeeded.
type LoginReason string

const (
	ReasonUserNotFound    LoginReason = "USER_NOT_FOUND"
	ReasonUserInactive    LoginReason = "USER_INACTIVE"
	ReasonInvalidPassword LoginReason = "INVALID_PASSWORD"
)

// Message returns the user-facing text for a rejection reason.
func (r LoginReason) Message() string {
	switch r {
	case ReasonUserNotFound:
		return "user does not exist"
	case ReasonUserInactive:
		return "account is not activated"
	case ReasonInvalidPassword:
		return "password does not match"
	default:
		return string(r)
	}
}
