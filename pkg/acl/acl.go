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

// Package acl grants document collections to permission groups with
// per-grant read/write/delete flags. Effective permissions for a user OR
// the flags over their groups; creators and administrators hold all three
// implicitly.
package acl

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Grant is one permission row: what a single group may do with a
// collection.
type Grant struct {
	GroupID string `json:"group_id"`
	Read    bool   `json:"can_read"`
	Write   bool   `json:"can_write"`
	Delete  bool   `json:"can_delete"`
}

// Perms is an effective permission set.
type Perms struct {
	Read   bool `json:"can_read"`
	Write  bool `json:"can_write"`
	Delete bool `json:"can_delete"`
}

// AllPerms is what creators and administrators hold.
var AllPerms = Perms{Read: true, Write: true, Delete: true}

func (p Perms) or(q Perms) Perms {
	return Perms{
		Read:   p.Read || q.Read,
		Write:  p.Write || q.Write,
		Delete: p.Delete || q.Delete,
	}
}

// Any reports whether at least one action is allowed.
func (p Perms) Any() bool {
	return p.Read || p.Write || p.Delete
}

// Store persists collection-to-group grants.
type Store struct {
	db      *sql.DB
	dialect string
}

const createPermissionsSchemaSQL = `
CREATE TABLE IF NOT EXISTS collection_permissions (
    collection_id INTEGER NOT NULL,
    group_id VARCHAR(16) NOT NULL,
    can_read BOOLEAN NOT NULL DEFAULT FALSE,
    can_write BOOLEAN NOT NULL DEFAULT FALSE,
    can_delete BOOLEAN NOT NULL DEFAULT FALSE,
    PRIMARY KEY (collection_id, group_id)
)`

// NewStore creates the grants store and initializes its schema.
func NewStore(db *sql.DB, dialect string) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if dialect == "sqlite3" {
		dialect = "sqlite"
	}

	s := &Store{db: db, dialect: dialect}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, createPermissionsSchemaSQL); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

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

// ReplaceGrants atomically replaces the permission rows of a collection.
// Passing an empty set revokes all grants, leaving the collection visible
// only to its creator and administrators.
func (s *Store) ReplaceGrants(ctx context.Context, collectionID int, grants []Grant) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Rollback if not committed

	if _, err := tx.ExecContext(ctx,
		s.q("DELETE FROM collection_permissions WHERE collection_id = ?"),
		collectionID); err != nil {
		return fmt.Errorf("failed to clear grants: %w", err)
	}

	seen := make(map[string]bool)
	for _, g := range grants {
		if g.GroupID == "" || seen[g.GroupID] {
			continue
		}
		seen[g.GroupID] = true
		if _, err := tx.ExecContext(ctx,
			s.q(`INSERT INTO collection_permissions
			(collection_id, group_id, can_read, can_write, can_delete)
			VALUES (?, ?, ?, ?, ?)`),
			collectionID, g.GroupID, g.Read, g.Write, g.Delete); err != nil {
			return fmt.Errorf("failed to insert grant: %w", err)
		}
	}

	return tx.Commit()
}

// Grants returns the permission rows of a collection, sorted by group id.
func (s *Store) Grants(ctx context.Context, collectionID int) ([]Grant, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT group_id, can_read, can_write, can_delete
		FROM collection_permissions WHERE collection_id = ? ORDER BY group_id`),
		collectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	defer rows.Close()

	var grants []Grant
	for rows.Next() {
		var g Grant
		if err := rows.Scan(&g.GroupID, &g.Read, &g.Write, &g.Delete); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// GroupPerms returns, per collection, the OR of the grant flags held by
// any of the given groups.
func (s *Store) GroupPerms(ctx context.Context, groupIDs []string) (map[int]Perms, error) {
	perms := make(map[int]Perms)
	if len(groupIDs) == 0 {
		return perms, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(groupIDs)), ", ")
	args := make([]any, len(groupIDs))
	for i, gid := range groupIDs {
		args[i] = gid
	}

	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT collection_id, can_read, can_write, can_delete
		FROM collection_permissions WHERE group_id IN (`+placeholders+")"),
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list group permissions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int
		var p Perms
		if err := rows.Scan(&id, &p.Read, &p.Write, &p.Delete); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms[id] = perms[id].or(p)
	}
	return perms, rows.Err()
}

// RemoveCollection drops all grants of a deleted collection.
func (s *Store) RemoveCollection(ctx context.Context, collectionID int) error {
	_, err := s.db.ExecContext(ctx,
		s.q("DELETE FROM collection_permissions WHERE collection_id = ?"), collectionID)
	if err != nil {
		return fmt.Errorf("failed to remove grants: %w", err)
	}
	return nil
}

// RemoveGroup drops all grants held by a deleted group.
func (s *Store) RemoveGroup(ctx context.Context, groupID string) error {
	_, err := s.db.ExecContext(ctx,
		s.q("DELETE FROM collection_permissions WHERE group_id = ?"), groupID)
	if err != nil {
		return fmt.Errorf("failed to remove group grants: %w", err)
	}
	return nil
}

// Decision is the input to an access check for one collection.
type Decision struct {
	CollectionID int
	CreatorID    int
}

// Effective applies the access rule: administrators and creators hold all
// permissions, everyone else gets the OR of their group grants.
func Effective(d Decision, userID int, isAdmin bool, groupPerms map[int]Perms) Perms {
	if isAdmin || d.CreatorID == userID {
		return AllPerms
	}
	return groupPerms[d.CollectionID]
}
