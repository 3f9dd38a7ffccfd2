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

// Package ref defines qualified references to wiki entities: users, groups
// and documents. A reference has the textual forms "wiki:Space.Name",
// "Space.Name" and "Name"; the short forms are resolved against the current
// wiki and the default space.
package ref

import "strings"

// Reserved identities and locations.
const (
	// Guest is the name of the anonymous pseudo-user. It is never backed
	// by a stored user document.
	Guest = "XWikiGuest"

	// SuperAdmin is the reserved super-administrator identity. Comparison
	// is case-insensitive.
	SuperAdmin = "superadmin"

	// DefaultSpace is the space holding users, groups and wiki-level
	// preference documents.
	DefaultSpace = "XWiki"

	// AllGroup is the distinguished group every non-guest user implicitly
	// belongs to when implicit-all-group mode is enabled.
	AllGroup = "XWikiAllGroup"

	// WikiPreferencesPage is the document carrying wiki-scope rights.
	WikiPreferencesPage = "XWikiPreferences"

	// SpacePreferencesPage is the per-space document carrying space-scope
	// rights and the parent-space pointer.
	SpacePreferencesPage = "WebPreferences"
)

// EntityRef identifies a user, group or document. All fields are always
// populated after Parse; the zero value is not a valid reference.
type EntityRef struct {
	Wiki  string
	Space string
	Name  string
}

// Parse resolves a possibly partial reference against the current wiki.
// Accepted forms: "wiki:Space.Name", "Space.Name", "wiki:Name" and "Name".
// A missing space defaults to the XWiki space, a missing wiki to currentWiki.
func Parse(s, currentWiki string) EntityRef {
	r := EntityRef{Wiki: currentWiki, Space: DefaultSpace}

	if i := strings.Index(s, ":"); i >= 0 {
		if i > 0 {
			r.Wiki = s[:i]
		}
		s = s[i+1:]
	}
	if i := strings.LastIndex(s, "."); i >= 0 {
		if i > 0 {
			r.Space = s[:i]
		}
		s = s[i+1:]
	}
	r.Name = s

	return r
}

// Full returns the fully qualified "wiki:Space.Name" form used for
// cross-wiki comparisons.
func (r EntityRef) Full() string {
	return r.Wiki + ":" + r.Space + "." + r.Name
}

// Local returns the wiki-less "Space.Name" form.
func (r EntityRef) Local() string {
	return r.Space + "." + r.Name
}

// Compact returns the shortest unambiguous form relative to currentWiki.
// The wiki prefix is dropped when it matches, so that author fields persisted
// in the current wiki never leak a redundant wiki qualifier.
func (r EntityRef) Compact(currentWiki string) string {
	if r.Wiki == currentWiki {
		return r.Local()
	}
	return r.Full()
}

// SpaceRef returns the reference of the space's preferences document.
func (r EntityRef) SpaceRef() EntityRef {
	return EntityRef{Wiki: r.Wiki, Space: r.Space, Name: SpacePreferencesPage}
}

// IsGuest reports whether the reference names the anonymous pseudo-user.
func (r EntityRef) IsGuest() bool {
	return r.Name == Guest
}

// IsSuperAdmin reports whether the reference names the reserved
// super-administrator, in any case combination and from any wiki or space.
func (r EntityRef) IsSuperAdmin() bool {
	return strings.EqualFold(r.Name, SuperAdmin)
}

// WikiPreferences returns the reference of a wiki's global preferences
// document, the attachment point for wiki-scope rights.
func WikiPreferences(wikiID string) EntityRef {
	return EntityRef{Wiki: wikiID, Space: DefaultSpace, Name: WikiPreferencesPage}
}

// SpacePreferences returns the reference of a space's preferences document.
func SpacePreferences(wikiID, space string) EntityRef {
	return EntityRef{Wiki: wikiID, Space: space, Name: SpacePreferencesPage}
}
