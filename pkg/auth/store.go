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

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	// SQL drivers
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Well-known groups seeded at startup. Admin membership is defined as
// membership in AdminGroupID; new registrations join DefaultGroupID.
const (
	AdminGroupID   = "GRP000001"
	DefaultGroupID = "GRP000002"
)

// SessionTTL is how long a login session stays valid.
const SessionTTL = 9 * time.Hour

// User is an account row.
type User struct {
	ID        int       `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Group is a named permission group. IDs follow the GRPnnnnnn form.
type Group struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Session is a server-side login session. At most one active session
// exists per user.
type Session struct {
	ID        string
	UserID    int
	IsActive  bool
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Store persists users, groups, sessions, and password reset tokens in a
// SQL database. Concurrency is handled by database-level locking.
type Store struct {
	db      *sql.DB
	dialect string
}

const createUsersSchemaSQL = `
CREATE TABLE IF NOT EXISTS users (
    %s,
    username VARCHAR(255) NOT NULL UNIQUE,
    email VARCHAR(255) NOT NULL UNIQUE,
    password_hash VARCHAR(255) NOT NULL,
    is_active BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP NOT NULL
)`

const createGroupsSchemaSQL = `
CREATE TABLE IF NOT EXISTS groups (
    id VARCHAR(16) PRIMARY KEY,
    name VARCHAR(255) NOT NULL UNIQUE,
    description TEXT
)`

const createUserGroupsSchemaSQL = `
CREATE TABLE IF NOT EXISTS user_groups (
    user_id INTEGER NOT NULL,
    group_id VARCHAR(16) NOT NULL,
    PRIMARY KEY (user_id, group_id)
)`

const createSessionsSchemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
    id VARCHAR(64) PRIMARY KEY,
    user_id INTEGER NOT NULL,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMP NOT NULL,
    expires_at TIMESTAMP NOT NULL
)`

const createSessionsIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id, is_active)`

const createResetTokensSchemaSQL = `
CREATE TABLE IF NOT EXISTS password_reset_tokens (
    token VARCHAR(64) PRIMARY KEY,
    user_id INTEGER NOT NULL,
    used BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP NOT NULL,
    expires_at TIMESTAMP NOT NULL
)`

// NewStore creates an identity store over an open database connection and
// initializes the schema, including the two built-in groups.
func NewStore(db *sql.DB, dialect string) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	switch dialect {
	case "postgres", "mysql", "sqlite", "sqlite3":
		if dialect == "sqlite3" {
			dialect = "sqlite"
		}
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: postgres, mysql, sqlite)", dialect)
	}

	s := &Store{db: db, dialect: dialect}

	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// initSchema creates the required tables if they don't exist and seeds the
// built-in admin and default groups.
func (s *Store) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var userIDCol string
	switch s.dialect {
	case "postgres":
		userIDCol = "id SERIAL PRIMARY KEY"
	case "mysql":
		userIDCol = "id INTEGER PRIMARY KEY AUTO_INCREMENT"
	default:
		userIDCol = "id INTEGER PRIMARY KEY AUTOINCREMENT"
	}

	// Execute each statement separately for SQLite compatibility
	statements := []string{
		fmt.Sprintf(createUsersSchemaSQL, userIDCol),
		createGroupsSchemaSQL,
		createUserGroupsSchemaSQL,
		createSessionsSchemaSQL,
		createResetTokensSchemaSQL,
	}
	if s.dialect != "mysql" {
		// MySQL has no CREATE INDEX IF NOT EXISTS; the PK and the user_id
		// prefix of queries keep lookups fast enough there.
		statements = append(statements, createSessionsIndexSQL)
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	seeds := []Group{
		{ID: AdminGroupID, Name: "admin", Description: "administrators"},
		{ID: DefaultGroupID, Name: "user", Description: "default group for new users"},
	}
	for _, g := range seeds {
		if err := s.seedGroup(ctx, g); err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) seedGroup(ctx context.Context, g Group) error {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		s.q("SELECT EXISTS(SELECT 1 FROM groups WHERE id = ?)"), g.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check group %s: %w", g.ID, err)
	}
	if exists {
		return nil
	}
	_, err = s.db.ExecContext(ctx,
		s.q("INSERT INTO groups (id, name, description) VALUES (?, ?, ?)"),
		g.ID, g.Name, g.Description)
	if err != nil {
		return fmt.Errorf("failed to seed group %s: %w", g.ID, err)
	}
	return nil
}

// q converts '?' placeholders to PostgreSQL's $N form when needed.
func (s *Store) q(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
		} else {
			b.WriteRune(ch)
		}
	}
	return b.String()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// Users
// =============================================================================

// CreateUser inserts a new account. New accounts start inactive until an
// administrator activates them.
func (s *Store) CreateUser(ctx context.Context, username, email, passwordHash string) (int, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		s.q("SELECT EXISTS(SELECT 1 FROM users WHERE username = ? OR email = ?)"),
		username, email).Scan(&exists)
	if err != nil {
		return 0, fmt.Errorf("failed to check existing user: %w", err)
	}
	if exists {
		return 0, ErrUserExists
	}

	now := time.Now().UTC()

	if s.dialect == "postgres" {
		var id int
		err := s.db.QueryRowContext(ctx,
			"INSERT INTO users (username, email, password_hash, is_active, created_at) VALUES ($1, $2, $3, $4, $5) RETURNING id",
			username, email, passwordHash, false, now).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("failed to create user: %w", err)
		}
		return id, nil
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO users (username, email, password_hash, is_active, created_at) VALUES (?, ?, ?, ?, ?)",
		username, email, passwordHash, false, now)
	if err != nil {
		return 0, fmt.Errorf("failed to create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read new user id: %w", err)
	}
	return int(id), nil
}

// GetUserByUsername fetches a user and their password hash by username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, string, error) {
	var u User
	var hash string
	err := s.db.QueryRowContext(ctx,
		s.q("SELECT id, username, email, password_hash, is_active, created_at FROM users WHERE username = ?"),
		username).Scan(&u.ID, &u.Username, &u.Email, &hash, &u.IsActive, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, "", ErrUserNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to get user: %w", err)
	}
	return &u, hash, nil
}

// GetUser fetches a user by id.
func (s *Store) GetUser(ctx context.Context, id int) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		s.q("SELECT id, username, email, is_active, created_at FROM users WHERE id = ?"),
		id).Scan(&u.ID, &u.Username, &u.Email, &u.IsActive, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// ListUsers returns all accounts ordered by id.
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, username, email, is_active, created_at FROM users ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.IsActive, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// SetUserActive toggles the activation flag of an account.
func (s *Store) SetUserActive(ctx context.Context, id int, active bool) error {
	res, err := s.db.ExecContext(ctx,
		s.q("UPDATE users SET is_active = ? WHERE id = ?"), active, id)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return requireAffected(res, ErrUserNotFound)
}

// UpdatePassword replaces a user's password hash.
func (s *Store) UpdatePassword(ctx context.Context, id int, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		s.q("UPDATE users SET password_hash = ? WHERE id = ?"), passwordHash, id)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return requireAffected(res, ErrUserNotFound)
}

// DeleteUser removes an account together with its group memberships and
// sessions.
func (s *Store) DeleteUser(ctx context.Context, id int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Rollback if not committed

	for _, stmt := range []string{
		"DELETE FROM user_groups WHERE user_id = ?",
		"DELETE FROM sessions WHERE user_id = ?",
		"DELETE FROM password_reset_tokens WHERE user_id = ?",
	} {
		if _, err := tx.ExecContext(ctx, s.q(stmt), id); err != nil {
			return fmt.Errorf("failed to delete user data: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, s.q("DELETE FROM users WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if err := requireAffected(res, ErrUserNotFound); err != nil {
		return err
	}

	return tx.Commit()
}

// =============================================================================
// Groups
// =============================================================================

// CreateGroup inserts a new group and returns its generated GRPnnnnnn id.
func (s *Store) CreateGroup(ctx context.Context, name, description string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Rollback if not committed

	var exists bool
	err = tx.QueryRowContext(ctx,
		s.q("SELECT EXISTS(SELECT 1 FROM groups WHERE name = ?)"), name).Scan(&exists)
	if err != nil {
		return "", fmt.Errorf("failed to check group name: %w", err)
	}
	if exists {
		return "", ErrGroupExists
	}

	// Next id from the numeric suffix of the highest existing id. The
	// SUBSTR/CAST form works across all three dialects.
	var maxSeq sql.NullInt64
	err = tx.QueryRowContext(ctx,
		"SELECT MAX(CAST(SUBSTR(id, 4) AS INTEGER)) FROM groups").Scan(&maxSeq)
	if err != nil {
		return "", fmt.Errorf("failed to read group sequence: %w", err)
	}
	id := fmt.Sprintf("GRP%06d", maxSeq.Int64+1)

	_, err = tx.ExecContext(ctx,
		s.q("INSERT INTO groups (id, name, description) VALUES (?, ?, ?)"),
		id, name, description)
	if err != nil {
		return "", fmt.Errorf("failed to create group: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}
	return id, nil
}

// GetGroupByName fetches a group by its unique name.
func (s *Store) GetGroupByName(ctx context.Context, name string) (*Group, error) {
	var g Group
	var desc sql.NullString
	err := s.db.QueryRowContext(ctx,
		s.q("SELECT id, name, description FROM groups WHERE name = ?"),
		name).Scan(&g.ID, &g.Name, &desc)
	if err == sql.ErrNoRows {
		return nil, ErrGroupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	g.Description = desc.String
	return &g, nil
}

// UpdateGroup renames a group and replaces its description.
func (s *Store) UpdateGroup(ctx context.Context, id, name, description string) error {
	res, err := s.db.ExecContext(ctx,
		s.q("UPDATE groups SET name = ?, description = ? WHERE id = ?"),
		name, description, id)
	if err != nil {
		return fmt.Errorf("failed to update group: %w", err)
	}
	return requireAffected(res, ErrGroupNotFound)
}

// ReplaceUserGroups replaces every membership of a user in one
// transaction.
func (s *Store) ReplaceUserGroups(ctx context.Context, userID int, groupIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Rollback if not committed

	if _, err := tx.ExecContext(ctx, s.q("DELETE FROM user_groups WHERE user_id = ?"), userID); err != nil {
		return fmt.Errorf("failed to clear memberships: %w", err)
	}

	seen := make(map[string]bool)
	for _, gid := range groupIDs {
		if gid == "" || seen[gid] {
			continue
		}
		seen[gid] = true
		if _, err := tx.ExecContext(ctx,
			s.q("INSERT INTO user_groups (user_id, group_id) VALUES (?, ?)"),
			userID, gid); err != nil {
			return fmt.Errorf("failed to insert membership: %w", err)
		}
	}

	return tx.Commit()
}

// ListGroups returns all groups ordered by id.
func (s *Store) ListGroups(ctx context.Context) ([]Group, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, description FROM groups ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var groups []Group
	for rows.Next() {
		var g Group
		var desc sql.NullString
		if err := rows.Scan(&g.ID, &g.Name, &desc); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		g.Description = desc.String
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// DeleteGroup removes a group and its memberships. The two built-in groups
// cannot be deleted.
func (s *Store) DeleteGroup(ctx context.Context, id string) error {
	if id == AdminGroupID || id == DefaultGroupID {
		return fmt.Errorf("group %s is built in and cannot be deleted", id)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Rollback if not committed

	if _, err := tx.ExecContext(ctx, s.q("DELETE FROM user_groups WHERE group_id = ?"), id); err != nil {
		return fmt.Errorf("failed to delete memberships: %w", err)
	}
	res, err := tx.ExecContext(ctx, s.q("DELETE FROM groups WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	if err := requireAffected(res, ErrGroupNotFound); err != nil {
		return err
	}

	return tx.Commit()
}

// AddUserToGroup records a membership. Adding an existing membership is a
// no-op.
func (s *Store) AddUserToGroup(ctx context.Context, userID int, groupID string) error {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		s.q("SELECT EXISTS(SELECT 1 FROM user_groups WHERE user_id = ? AND group_id = ?)"),
		userID, groupID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check membership: %w", err)
	}
	if exists {
		return nil
	}
	_, err = s.db.ExecContext(ctx,
		s.q("INSERT INTO user_groups (user_id, group_id) VALUES (?, ?)"),
		userID, groupID)
	if err != nil {
		return fmt.Errorf("failed to add membership: %w", err)
	}
	return nil
}

// RemoveUserFromGroup deletes a membership if present.
func (s *Store) RemoveUserFromGroup(ctx context.Context, userID int, groupID string) error {
	_, err := s.db.ExecContext(ctx,
		s.q("DELETE FROM user_groups WHERE user_id = ? AND group_id = ?"),
		userID, groupID)
	if err != nil {
		return fmt.Errorf("failed to remove membership: %w", err)
	}
	return nil
}

// UserGroups returns the groups a user belongs to, ordered by group id.
func (s *Store) UserGroups(ctx context.Context, userID int) ([]Group, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT g.id, g.name, g.description
		FROM groups g JOIN user_groups ug ON ug.group_id = g.id
		WHERE ug.user_id = ?
		ORDER BY g.id`), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user groups: %w", err)
	}
	defer rows.Close()

	var groups []Group
	for rows.Next() {
		var g Group
		var desc sql.NullString
		if err := rows.Scan(&g.ID, &g.Name, &desc); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		g.Description = desc.String
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// GroupMembers returns the users belonging to a group, ordered by user id.
func (s *Store) GroupMembers(ctx context.Context, groupID string) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT u.id, u.username, u.email, u.is_active, u.created_at
		FROM users u JOIN user_groups ug ON ug.user_id = u.id
		WHERE ug.group_id = ?
		ORDER BY u.id`), groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list group members: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.IsActive, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// IsMember reports whether the user belongs to the group.
func (s *Store) IsMember(ctx context.Context, userID int, groupID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		s.q("SELECT EXISTS(SELECT 1 FROM user_groups WHERE user_id = ? AND group_id = ?)"),
		userID, groupID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return exists, nil
}

// =============================================================================
// Sessions
// =============================================================================

// CreateSession deactivates any prior sessions for the user and opens a
// fresh one. The returned id is 32 random bytes hex encoded.
func (s *Store) CreateSession(ctx context.Context, userID int) (*Session, error) {
	id, err := randomHex(32)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sess := &Session{
		ID:        id,
		UserID:    userID,
		IsActive:  true,
		CreatedAt: now,
		ExpiresAt: now.Add(SessionTTL),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Rollback if not committed

	if _, err := tx.ExecContext(ctx,
		s.q("UPDATE sessions SET is_active = ? WHERE user_id = ? AND is_active = ?"),
		false, userID, true); err != nil {
		return nil, fmt.Errorf("failed to deactivate prior sessions: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		s.q("INSERT INTO sessions (id, user_id, is_active, created_at, expires_at) VALUES (?, ?, ?, ?, ?)"),
		sess.ID, sess.UserID, sess.IsActive, sess.CreatedAt, sess.ExpiresAt); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return sess, nil
}

// GetSession fetches a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	var sess Session
	err := s.db.QueryRowContext(ctx,
		s.q("SELECT id, user_id, is_active, created_at, expires_at FROM sessions WHERE id = ?"),
		id).Scan(&sess.ID, &sess.UserID, &sess.IsActive, &sess.CreatedAt, &sess.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &sess, nil
}

// DeactivateSession marks a session inactive. Unknown ids are a no-op.
func (s *Store) DeactivateSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		s.q("UPDATE sessions SET is_active = ? WHERE id = ?"), false, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate session: %w", err)
	}
	return nil
}

// =============================================================================
// Password reset tokens
// =============================================================================

// CreateResetToken issues a single-use password reset token valid for the
// given duration.
func (s *Store) CreateResetToken(ctx context.Context, userID int, ttl time.Duration) (string, error) {
	token, err := randomHex(32)
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		s.q("INSERT INTO password_reset_tokens (token, user_id, used, created_at, expires_at) VALUES (?, ?, ?, ?, ?)"),
		token, userID, false, now, now.Add(ttl))
	if err != nil {
		return "", fmt.Errorf("failed to create reset token: %w", err)
	}
	return token, nil
}

// ConsumeResetToken validates a reset token, marks it used, and returns
// the user it belongs to.
func (s *Store) ConsumeResetToken(ctx context.Context, token string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Rollback if not committed

	var userID int
	var used bool
	var expiresAt time.Time
	err = tx.QueryRowContext(ctx,
		s.q("SELECT user_id, used, expires_at FROM password_reset_tokens WHERE token = ?"),
		token).Scan(&userID, &used, &expiresAt)
	if err == sql.ErrNoRows {
		return 0, ErrResetTokenInvalid
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get reset token: %w", err)
	}
	if used || time.Now().After(expiresAt) {
		return 0, ErrResetTokenInvalid
	}

	if _, err := tx.ExecContext(ctx,
		s.q("UPDATE password_reset_tokens SET used = ? WHERE token = ?"), true, token); err != nil {
		return 0, fmt.Errorf("failed to mark reset token used: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return userID, nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
