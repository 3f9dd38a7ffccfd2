// Copyright 2026 The WikiForge Authors
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

package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/wikiforge/wikiforge/internal/ref"
	"github.com/wikiforge/wikiforge/internal/wiki"
)

// Store implements wiki.Store on PostgreSQL.
type Store struct {
	db *DB
}

// NewStore creates a document store backed by db.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// GetDocument loads a document by reference. A missing document is returned
// as an empty document with IsNew set, matching how preference documents are
// consulted optimistically.
func (s *Store) GetDocument(ctx context.Context, wikiID string, r ref.EntityRef) (*wiki.Document, error) {
	var (
		creator      string
		passwordHash string
		prefsJSON    []byte
		localJSON    []byte
		globalJSON   []byte
	)

	err := s.db.pool.QueryRow(ctx, `
		SELECT creator, password_hash, preferences, local_rights, global_rights
		FROM documents
		WHERE wiki_id = $1 AND space = $2 AND name = $3
	`, strings.ToLower(wikiID), r.Space, r.Name).Scan(
		&creator, &passwordHash, &prefsJSON, &localJSON, &globalJSON,
	)

	if err == pgx.ErrNoRows {
		return &wiki.Document{Ref: r, IsNew: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	d := &wiki.Document{
		Ref:      r,
		Password: passwordHash,
	}
	if creator != "" {
		d.Creator = ref.Parse(creator, wikiID)
	}
	if err := json.Unmarshal(prefsJSON, &d.Preferences); err != nil {
		return nil, fmt.Errorf("failed to decode preferences: %w", err)
	}
	if err := json.Unmarshal(localJSON, &d.LocalRights); err != nil {
		return nil, fmt.Errorf("failed to decode local rights: %w", err)
	}
	if err := json.Unmarshal(globalJSON, &d.GlobalRights); err != nil {
		return nil, fmt.Errorf("failed to decode global rights: %w", err)
	}
	return d, nil
}

// Exists reports whether a document exists with exactly this name.
func (s *Store) Exists(ctx context.Context, wikiID string, r ref.EntityRef) (bool, error) {
	var one int
	err := s.db.pool.QueryRow(ctx, `
		SELECT 1 FROM documents
		WHERE wiki_id = $1 AND space = $2 AND name = $3
	`, strings.ToLower(wikiID), r.Space, r.Name).Scan(&one)

	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check document: %w", err)
	}
	return true, nil
}

// SearchUserName finds a user document in the XWiki space by name,
// case-insensitively. Returns "" when not found.
func (s *Store) SearchUserName(ctx context.Context, wikiID, name string) (string, error) {
	var found string
	err := s.db.pool.QueryRow(ctx, `
		SELECT name FROM documents
		WHERE wiki_id = $1 AND space = $2 AND LOWER(name) = LOWER($3)
		ORDER BY name
		LIMIT 1
	`, strings.ToLower(wikiID), ref.DefaultSpace, name).Scan(&found)

	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to search user: %w", err)
	}
	return found, nil
}

// GroupsForMember returns the local names of groups listing any of the name
// variants as a member.
func (s *Store) GroupsForMember(ctx context.Context, wikiID string, variants []string, limit, offset int) ([]string, error) {
	if limit <= 0 {
		limit = 1000
	}

	rows, err := s.db.pool.Query(ctx, `
		SELECT DISTINCT group_name FROM group_members
		WHERE wiki_id = $1 AND member = ANY($2)
		ORDER BY group_name
		LIMIT $3 OFFSET $4
	`, strings.ToLower(wikiID), variants, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer rows.Close()

	var groups []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// CreateUser provisions an empty user document, used by the trusted-header
// authenticator. Reports whether a document was actually created.
func (s *Store) CreateUser(ctx context.Context, wikiID, name string) (bool, error) {
	tag, err := s.db.pool.Exec(ctx, `
		INSERT INTO documents (wiki_id, space, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (wiki_id, space, name) DO NOTHING
	`, strings.ToLower(wikiID), ref.DefaultSpace, name)
	if err != nil {
		return false, fmt.Errorf("failed to create user: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// PutDocument inserts or replaces the access-relevant view of a document.
// Used by provisioning tooling and integration tests.
func (s *Store) PutDocument(ctx context.Context, wikiID string, d *wiki.Document) error {
	prefsJSON, err := json.Marshal(orEmptyMap(d.Preferences))
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}
	localJSON, err := json.Marshal(orEmptySlice(d.LocalRights))
	if err != nil {
		return fmt.Errorf("failed to encode local rights: %w", err)
	}
	globalJSON, err := json.Marshal(orEmptySlice(d.GlobalRights))
	if err != nil {
		return fmt.Errorf("failed to encode global rights: %w", err)
	}

	creator := ""
	if d.Creator.Name != "" {
		creator = d.Creator.Full()
	}

	_, err = s.db.pool.Exec(ctx, `
		INSERT INTO documents (wiki_id, space, name, creator, password_hash, preferences, local_rights, global_rights)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (wiki_id, space, name) DO UPDATE SET
			creator = EXCLUDED.creator,
			password_hash = EXCLUDED.password_hash,
			preferences = EXCLUDED.preferences,
			local_rights = EXCLUDED.local_rights,
			global_rights = EXCLUDED.global_rights,
			updated_at = now()
	`, strings.ToLower(wikiID), d.Ref.Space, d.Ref.Name, creator, d.Password, prefsJSON, localJSON, globalJSON)
	if err != nil {
		return fmt.Errorf("failed to put document: %w", err)
	}
	return nil
}

// AddGroupMember records a membership pair. The member string is stored
// literally, in whichever serialization the source document carried.
func (s *Store) AddGroupMember(ctx context.Context, wikiID, group, member string) error {
	_, err := s.db.pool.Exec(ctx, `
		INSERT INTO group_members (wiki_id, group_name, member)
		VALUES ($1, $2, $3)
		ON CONFLICT (wiki_id, group_name, member) DO NOTHING
	`, strings.ToLower(wikiID), group, member)
	if err != nil {
		return fmt.Errorf("failed to add group member: %w", err)
	}
	return nil
}

// LoadDescriptor reads a wiki descriptor row. Suitable as the load function
// of wiki.NewRegistry; an unknown wiki resolves to nil so the registry falls
// back to its default descriptor.
func (s *Store) LoadDescriptor(ctx context.Context, wikiID string) (*wiki.Descriptor, error) {
	var d wiki.Descriptor
	err := s.db.pool.QueryRow(ctx, `
		SELECT id, owner, readonly, all_group_implicit
		FROM wikis
		WHERE id = $1
	`, strings.ToLower(wikiID)).Scan(&d.ID, &d.Owner, &d.ReadOnly, &d.AllGroupImplicit)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load wiki descriptor: %w", err)
	}
	return &d, nil
}

func orEmptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func orEmptySlice(s []wiki.RightObject) []wiki.RightObject {
	if s == nil {
		return []wiki.RightObject{}
	}
	return s
}
