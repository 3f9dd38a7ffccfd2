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

// Package wiki defines the contracts this core consumes from the document
// storage layer, plus the per-wiki descriptor registry. The storage layer
// itself (versioning, attachments, rendering) is an external collaborator.
package wiki

import (
	"context"
	"errors"

	"github.com/wikiforge/wikiforge/internal/ref"
)

// Domain errors
var (
	ErrWikiNotFound = errors.New("wiki not found")
	ErrNotFound     = errors.New("document not found")
)

// RightObject is one rights record attached to a document. Users and Groups
// are mutually exclusive subject lists; Levels is matched literally, never
// merged across records.
type RightObject struct {
	Users  []string
	Groups []string
	Levels []string
	Allow  bool
}

// Document is the read-only view of a stored document that the rights and
// authentication services need.
type Document struct {
	Ref     ref.EntityRef
	Creator ref.EntityRef

	// IsNew marks a document that does not exist in the store. Lookups
	// return an empty new document rather than an error, mirroring how
	// preference documents are consulted optimistically.
	IsNew bool

	// LocalRights are document-scope records; GlobalRights are the
	// space/wiki-scope records carried by preference documents.
	LocalRights  []RightObject
	GlobalRights []RightObject

	// Preferences holds the document's string preferences ("parent",
	// "authenticate_edit", ...). Nil when the document carries none.
	Preferences map[string]string

	// Password is the stored credential for user documents, in whatever
	// encoding the password checker understands. Empty for non-users.
	Password string
}

// Preference returns a document preference, or "" when unset.
func (d *Document) Preference(key string) string {
	if d == nil || d.Preferences == nil {
		return ""
	}
	return d.Preferences[key]
}

// Store is the query surface of the backing document store. Implementations
// must treat a missing document as a Document with IsNew set, not an error;
// errors are reserved for genuine backend failures (which rights checks
// resolve to deny and authentication resolves to failure).
type Store interface {
	// GetDocument loads a document by reference from the given wiki.
	GetDocument(ctx context.Context, wikiID string, r ref.EntityRef) (*Document, error)

	// Exists reports whether a document exists with exactly this name.
	Exists(ctx context.Context, wikiID string, r ref.EntityRef) (bool, error)

	// SearchUserName finds a user document in the XWiki space by name,
	// case-insensitively when the backend is. Returns "" when not found.
	SearchUserName(ctx context.Context, wikiID, name string) (string, error)

	// GroupsForMember returns the local names of groups that list any of
	// the given name variants as a member, in the given wiki.
	GroupsForMember(ctx context.Context, wikiID string, variants []string, limit, offset int) ([]string, error)
}
