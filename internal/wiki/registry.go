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

package wiki

import (
	"context"
	"strings"
	"sync"
)

// Descriptor holds the per-wiki settings the access core reads. Owner is a
// serialized principal reference; an empty Owner means the wiki has none.
type Descriptor struct {
	ID       string
	Owner    string
	ReadOnly bool

	// AllGroupImplicit makes every non-guest user of this wiki an implicit
	// member of XWiki.XWikiAllGroup.
	AllGroupImplicit bool
}

// Registry resolves wiki descriptors and identifies the main wiki, whose
// user and group documents are visible as a fallback from every tenant.
// Descriptors are cached by wiki id; the cache is rebuilt explicitly on
// configuration change via Invalidate, never implicitly.
type Registry struct {
	mainWiki string
	load     func(ctx context.Context, wikiID string) (*Descriptor, error)

	mu    sync.RWMutex
	cache map[string]*Descriptor
}

// NewRegistry creates a registry. load may be nil, in which case unknown
// wikis resolve to a default descriptor (no owner, writable).
func NewRegistry(mainWiki string, load func(ctx context.Context, wikiID string) (*Descriptor, error)) *Registry {
	return &Registry{
		mainWiki: mainWiki,
		load:     load,
		cache:    make(map[string]*Descriptor),
	}
}

// MainWiki returns the id of the main/shared wiki.
func (r *Registry) MainWiki() string {
	return r.mainWiki
}

// IsMainWiki reports whether wikiID is the main wiki, case-insensitively.
func (r *Registry) IsMainWiki(wikiID string) bool {
	return strings.EqualFold(wikiID, r.mainWiki)
}

// Descriptor returns the descriptor for a wiki, building and caching it on
// first use.
func (r *Registry) Descriptor(ctx context.Context, wikiID string) (*Descriptor, error) {
	key := strings.ToLower(wikiID)

	r.mu.RLock()
	d, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return d, nil
	}

	if r.load != nil {
		var err error
		d, err = r.load(ctx, wikiID)
		if err != nil {
			return nil, err
		}
	}
	if d == nil {
		d = &Descriptor{ID: wikiID}
	}

	r.mu.Lock()
	r.cache[key] = d
	r.mu.Unlock()

	return d, nil
}

// Put registers or replaces a descriptor. Used by static configuration and
// by tests.
func (r *Registry) Put(d *Descriptor) {
	r.mu.Lock()
	r.cache[strings.ToLower(d.ID)] = d
	r.mu.Unlock()
}

// Invalidate drops the cached descriptor for a wiki, forcing a rebuild on
// next use. With an empty id the whole cache is dropped.
func (r *Registry) Invalidate(wikiID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if wikiID == "" {
		r.cache = make(map[string]*Descriptor)
		return
	}
	delete(r.cache, strings.ToLower(wikiID))
}

// Owner returns the wiki owner's serialized reference, or "".
func (r *Registry) Owner(ctx context.Context, wikiID string) string {
	d, err := r.Descriptor(ctx, wikiID)
	if err != nil {
		return ""
	}
	return d.Owner
}

// ReadOnly reports whether the wiki is in global read-only mode.
func (r *Registry) ReadOnly(ctx context.Context, wikiID string) bool {
	d, err := r.Descriptor(ctx, wikiID)
	if err != nil {
		return false
	}
	return d.ReadOnly
}
