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

// Package memory is an in-memory wiki.Store. It backs the package tests and
// serves as the default store when no database is configured.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/wikiforge/wikiforge/internal/ref"
	"github.com/wikiforge/wikiforge/internal/wiki"
)

// Store implements wiki.Store over process memory. Safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	docs map[string]map[string]*wiki.Document // wiki -> Space.Name -> doc

	// members maps wiki -> group local name -> member entries, mirroring
	// the membership objects attached to group documents.
	members map[string]map[string][]string
}

// New creates an empty store.
func New() *Store {
	return &Store{
		docs:    make(map[string]map[string]*wiki.Document),
		members: make(map[string]map[string][]string),
	}
}

func wikiKey(wikiID string) string { return strings.ToLower(wikiID) }

// PutDocument stores a document, replacing any previous version.
func (s *Store) PutDocument(wikiID string, d *wiki.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := wikiKey(wikiID)
	if s.docs[w] == nil {
		s.docs[w] = make(map[string]*wiki.Document)
	}
	d.Ref.Wiki = wikiID
	s.docs[w][d.Ref.Local()] = d
}

// PutUser stores a minimal user document with the given stored password.
func (s *Store) PutUser(wikiID, name, password string) {
	s.PutDocument(wikiID, &wiki.Document{
		Ref:      ref.EntityRef{Wiki: wikiID, Space: ref.DefaultSpace, Name: name},
		Password: password,
	})
}

// CreateUser stores an empty user document unless one already exists. It
// reports whether a document was created.
func (s *Store) CreateUser(ctx context.Context, wikiID, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := wikiKey(wikiID)
	r := ref.EntityRef{Wiki: wikiID, Space: ref.DefaultSpace, Name: name}
	if _, ok := s.docs[w][r.Local()]; ok {
		return false, nil
	}
	if s.docs[w] == nil {
		s.docs[w] = make(map[string]*wiki.Document)
	}
	s.docs[w][r.Local()] = &wiki.Document{Ref: r}
	return true, nil
}

// AddGroupMember records that member (any serialized form) belongs to the
// named group in the given wiki, creating the group document if needed.
func (s *Store) AddGroupMember(wikiID, group, member string) {
	groupRef := ref.Parse(group, wikiID)
	s.PutDocument(wikiID, &wiki.Document{Ref: groupRef})

	s.mu.Lock()
	defer s.mu.Unlock()

	w := wikiKey(wikiID)
	if s.members[w] == nil {
		s.members[w] = make(map[string][]string)
	}
	local := groupRef.Local()
	s.members[w][local] = append(s.members[w][local], member)
}

// GetDocument implements wiki.Store. A missing document is returned as a new
// empty document, never an error.
func (s *Store) GetDocument(ctx context.Context, wikiID string, r ref.EntityRef) (*wiki.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if d, ok := s.docs[wikiKey(wikiID)][r.Local()]; ok {
		return d, nil
	}
	r.Wiki = wikiID
	return &wiki.Document{Ref: r, IsNew: true}, nil
}

// Exists implements wiki.Store.
func (s *Store) Exists(ctx context.Context, wikiID string, r ref.EntityRef) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.docs[wikiKey(wikiID)][r.Local()]
	return ok, nil
}

// SearchUserName implements wiki.Store with a case-insensitive scan of the
// XWiki space, matching the behavior of case-insensitive SQL backends.
func (s *Store) SearchUserName(ctx context.Context, wikiID, name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, d := range s.docs[wikiKey(wikiID)] {
		if d.Ref.Space == ref.DefaultSpace && strings.EqualFold(d.Ref.Name, name) {
			return d.Ref.Local(), nil
		}
	}
	return "", nil
}

// GroupsForMember implements wiki.Store: every group whose member list
// contains any of the given name variants, ordered by name.
func (s *Store) GroupsForMember(ctx context.Context, wikiID string, variants []string, limit, offset int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var groups []string
	for group, members := range s.members[wikiKey(wikiID)] {
		if matchesAny(members, variants) {
			groups = append(groups, group)
		}
	}
	sort.Strings(groups)

	if offset > 0 {
		if offset >= len(groups) {
			return nil, nil
		}
		groups = groups[offset:]
	}
	if limit > 0 && limit < len(groups) {
		groups = groups[:limit]
	}
	return groups, nil
}

func matchesAny(members, variants []string) bool {
	for _, m := range members {
		for _, v := range variants {
			if m == v {
				return true
			}
		}
	}
	return false
}
