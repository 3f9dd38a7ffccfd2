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

// Package group resolves group membership for users and groups. Membership
// records live on group documents in the backing store; historical storage
// conventions mean the same identity may be listed under several serialized
// forms, so lookups match all applicable name variants.
package group

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wikiforge/wikiforge/internal/ref"
	"github.com/wikiforge/wikiforge/internal/wiki"
)

// Cache is an optional cross-request membership cache. Implementations must
// be safe for concurrent use; a nil Cache disables cross-request caching.
type Cache interface {
	Get(ctx context.Context, wikiID, member string) ([]string, bool)
	Set(ctx context.Context, wikiID, member string, groups []string)
	Invalidate(ctx context.Context, wikiID string) error
}

// Context memoizes group lookups within a single rights evaluation. It must
// be created fresh per top-level authorization decision and discarded
// afterwards; it is not safe to share across concurrent requests.
type Context struct {
	memo map[string][]ref.EntityRef
}

// NewContext creates an empty evaluation-scoped memo.
func NewContext() *Context {
	return &Context{memo: make(map[string][]ref.EntityRef)}
}

// Resolver answers "which groups does this principal belong to" against one
// wiki at a time. Transitive closure is driven by the caller (the rights
// evaluator re-enters per group); the resolver only performs the direct
// lookup plus the implicit all-group rule.
type Resolver struct {
	store    wiki.Store
	registry *wiki.Registry
	cache    Cache
}

// NewResolver creates a resolver. cache may be nil.
func NewResolver(store wiki.Store, registry *wiki.Registry, cache Cache) *Resolver {
	return &Resolver{store: store, registry: registry, cache: cache}
}

// GroupsFor returns the groups of member in wikiID. Lookups with the default
// limit/offset (<=0) are memoized in ec and, when a Cache is configured,
// shared across requests.
func (r *Resolver) GroupsFor(ctx context.Context, ec *Context, wikiID string, member ref.EntityRef, limit, offset int) ([]ref.EntityRef, error) {
	key := wikiID + "/" + member.Full()
	cacheable := limit <= 0 && offset <= 0

	if cacheable && ec != nil {
		if groups, ok := ec.memo[key]; ok {
			return groups, nil
		}
	}

	var names []string
	cached := false
	if cacheable && r.cache != nil {
		names, cached = r.cache.Get(ctx, wikiID, member.Full())
	}

	if !cached {
		var err error
		names, err = r.store.GroupsForMember(ctx, wikiID, r.nameVariants(wikiID, member), limit, offset)
		if err != nil {
			return nil, fmt.Errorf("failed to list groups for %s in wiki %s: %w", member.Full(), wikiID, err)
		}
		if cacheable && r.cache != nil {
			r.cache.Set(ctx, wikiID, member.Full(), names)
		}
	}

	groups := make([]ref.EntityRef, 0, len(names)+1)
	for _, name := range names {
		groups = append(groups, ref.Parse(name, wikiID))
	}

	groups = r.addImplicitAllGroup(ctx, wikiID, member, groups)

	if cacheable && ec != nil {
		ec.memo[key] = groups
	}
	return groups, nil
}

// nameVariants returns the member identifiers a membership record may use.
// Same-wiki members (and the guest pseudo-user, which is never document
// backed) may be stored fully prefixed, wiki-less or bare; members from
// another wiki are only ever stored fully prefixed.
func (r *Resolver) nameVariants(wikiID string, member ref.EntityRef) []string {
	if member.Wiki == wikiID || (member.Space == ref.DefaultSpace && member.IsGuest()) {
		return []string{member.Full(), member.Local(), member.Name}
	}
	return []string{member.Full()}
}

// addImplicitAllGroup appends XWiki.XWikiAllGroup for wikis configured with
// the implicit all-group semantic. Guest is excluded, as is the group itself
// to avoid a self-membership cycle.
func (r *Resolver) addImplicitAllGroup(ctx context.Context, wikiID string, member ref.EntityRef, groups []ref.EntityRef) []ref.EntityRef {
	d, err := r.registry.Descriptor(ctx, wikiID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to resolve wiki descriptor", "wiki", wikiID, "error", err)
		return groups
	}
	if !d.AllGroupImplicit || member.Wiki != wikiID || member.IsGuest() {
		return groups
	}

	allGroup := ref.EntityRef{Wiki: wikiID, Space: ref.DefaultSpace, Name: ref.AllGroup}
	if member == allGroup {
		return groups
	}
	return append(groups, allGroup)
}

// InvalidateWiki drops all cached memberships of a wiki from the shared
// cache, typically after a group document was edited.
func (r *Resolver) InvalidateWiki(ctx context.Context, wikiID string) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Invalidate(ctx, wikiID)
}
