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

package rights

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wikiforge/wikiforge/internal/group"
	"github.com/wikiforge/wikiforge/internal/ref"
	"github.com/wikiforge/wikiforge/internal/store/memory"
	"github.com/wikiforge/wikiforge/internal/wiki"
)

const mainWiki = "xwiki"

func newTestEvaluator(t *testing.T) (*Evaluator, *memory.Store, *wiki.Registry) {
	t.Helper()

	store := memory.New()
	registry := wiki.NewRegistry(mainWiki, nil)
	groups := group.NewResolver(store, registry, nil)
	return NewEvaluator(store, registry, groups, 0), store, registry
}

func allowUsers(levels []string, users ...string) wiki.RightObject {
	return wiki.RightObject{Users: users, Levels: levels, Allow: true}
}

func allowGroups(levels []string, groups ...string) wiki.RightObject {
	return wiki.RightObject{Groups: groups, Levels: levels, Allow: true}
}

func denyUsers(levels []string, users ...string) wiki.RightObject {
	return wiki.RightObject{Users: users, Levels: levels, Allow: false}
}

func TestHasAccessLevelDefaultOpen(t *testing.T) {
	e, _, _ := newTestEvaluator(t)
	ctx := context.Background()

	assert.True(t, e.HasAccessLevel(ctx, LevelView, "XWiki.Bob", "Main.WebHome", mainWiki))
	assert.True(t, e.HasAccessLevel(ctx, LevelEdit, "XWiki.Bob", "Main.WebHome", mainWiki))
	assert.True(t, e.HasAccessLevel(ctx, LevelView, "XWiki.XWikiGuest", "Main.WebHome", mainWiki))
}

func TestHasAccessLevelDocumentAllowRestricts(t *testing.T) {
	e, store, _ := newTestEvaluator(t)
	ctx := context.Background()

	store.PutDocument(mainWiki, &wiki.Document{
		Ref:         ref.Parse("Main.Secret", mainWiki),
		LocalRights: []wiki.RightObject{allowUsers([]string{"view"}, "XWiki.Alice")},
	})

	assert.True(t, e.HasAccessLevel(ctx, LevelView, "XWiki.Alice", "Main.Secret", mainWiki))
	assert.False(t, e.HasAccessLevel(ctx, LevelView, "XWiki.Bob", "Main.Secret", mainWiki))

	// The record only covers view; edit stays open by default.
	assert.True(t, e.HasAccessLevel(ctx, LevelEdit, "XWiki.Bob", "Main.Secret", mainWiki))
}

func TestHasAccessLevelStrongerScopeSuppressesWeaker(t *testing.T) {
	e, store, _ := newTestEvaluator(t)
	ctx := context.Background()

	// Bob could view through the wiki-scope group grant...
	store.AddGroupMember(mainWiki, "XWiki.StaffGroup", "XWiki.Bob")
	store.PutDocument(mainWiki, &wiki.Document{
		Ref:          ref.WikiPreferences(mainWiki),
		GlobalRights: []wiki.RightObject{allowGroups([]string{"view", "edit"}, "XWiki.StaffGroup")},
	})
	assert.True(t, e.HasAccessLevel(ctx, LevelView, "XWiki.Bob", "Main.Secret", mainWiki))

	// ...but a document-scope allow record reserves the level to Alice and
	// the wiki grant no longer applies.
	store.PutDocument(mainWiki, &wiki.Document{
		Ref:         ref.Parse("Main.Secret", mainWiki),
		LocalRights: []wiki.RightObject{allowUsers([]string{"view"}, "XWiki.Alice")},
	})
	assert.True(t, e.HasAccessLevel(ctx, LevelView, "XWiki.Alice", "Main.Secret", mainWiki))
	assert.False(t, e.HasAccessLevel(ctx, LevelView, "XWiki.Bob", "Main.Secret", mainWiki))
}

func TestHasAccessLevelDenyBeatsAllow(t *testing.T) {
	e, store, _ := newTestEvaluator(t)
	ctx := context.Background()

	store.PutDocument(mainWiki, &wiki.Document{
		Ref:         ref.Parse("Main.Doc", mainWiki),
		LocalRights: []wiki.RightObject{allowUsers([]string{"view"}, "XWiki.Bob")},
	})
	store.PutDocument(mainWiki, &wiki.Document{
		Ref:          ref.WikiPreferences(mainWiki),
		GlobalRights: []wiki.RightObject{denyUsers([]string{"view"}, "XWiki.Bob")},
	})

	assert.False(t, e.HasAccessLevel(ctx, LevelView, "XWiki.Bob", "Main.Doc", mainWiki))
}

func TestHasAccessLevelDelete(t *testing.T) {
	e, store, _ := newTestEvaluator(t)
	ctx := context.Background()

	store.PutDocument(mainWiki, &wiki.Document{
		Ref:     ref.Parse("Main.Doc", mainWiki),
		Creator: ref.Parse("XWiki.Alice", mainWiki),
	})
	store.PutDocument(mainWiki, &wiki.Document{
		Ref:          ref.WikiPreferences(mainWiki),
		GlobalRights: []wiki.RightObject{allowUsers([]string{"admin"}, "XWiki.Carol")},
	})

	t.Run("closed by default", func(t *testing.T) {
		assert.False(t, e.HasAccessLevel(ctx, LevelDelete, "XWiki.Bob", "Main.Doc", mainWiki))
	})

	t.Run("creator may delete", func(t *testing.T) {
		assert.True(t, e.HasAccessLevel(ctx, LevelDelete, "XWiki.Alice", "Main.Doc", mainWiki))
	})

	t.Run("admin implies delete", func(t *testing.T) {
		assert.True(t, e.HasAccessLevel(ctx, LevelDelete, "XWiki.Carol", "Main.Doc", mainWiki))
	})
}

func TestHasAccessLevelSuperAdmin(t *testing.T) {
	e, store, _ := newTestEvaluator(t)
	ctx := context.Background()

	store.PutDocument(mainWiki, &wiki.Document{
		Ref:         ref.Parse("Main.Doc", mainWiki),
		LocalRights: []wiki.RightObject{denyUsers([]string{"view"}, "XWiki.SuperAdmin")},
	})

	// Reserved identity wins regardless of records, in any case combination.
	assert.True(t, e.HasAccessLevel(ctx, LevelView, "XWiki.superadmin", "Main.Doc", mainWiki))
	assert.True(t, e.HasAccessLevel(ctx, LevelView, "SuperAdmin", "Main.Doc", mainWiki))
	assert.True(t, e.HasAccessLevel(ctx, LevelAdmin, "sub:XWiki.SUPERADMIN", "sub:Main.Doc", "sub"))
}

func TestHasAccessLevelWikiOwner(t *testing.T) {
	e, store, registry := newTestEvaluator(t)
	ctx := context.Background()

	registry.Put(&wiki.Descriptor{ID: "sub", Owner: "xwiki:XWiki.Owen"})
	store.PutDocument("sub", &wiki.Document{
		Ref:         ref.Parse("Main.Doc", "sub"),
		LocalRights: []wiki.RightObject{allowUsers([]string{"view", "edit"}, "XWiki.Alice")},
	})

	assert.True(t, e.HasAccessLevel(ctx, LevelEdit, "xwiki:XWiki.Owen", "sub:Main.Doc", "sub"))
	assert.False(t, e.HasAccessLevel(ctx, LevelEdit, "sub:XWiki.Bob", "sub:Main.Doc", "sub"))
}

func TestHasAccessLevelReadOnlyWiki(t *testing.T) {
	e, _, registry := newTestEvaluator(t)
	ctx := context.Background()

	registry.Put(&wiki.Descriptor{ID: mainWiki, ReadOnly: true})

	assert.True(t, e.HasAccessLevel(ctx, LevelView, "XWiki.Bob", "Main.Doc", mainWiki))
	assert.False(t, e.HasAccessLevel(ctx, LevelEdit, "XWiki.Bob", "Main.Doc", mainWiki))

	// Read-only outranks even the reserved identity for mutating levels.
	assert.False(t, e.HasAccessLevel(ctx, LevelDelete, "XWiki.superadmin", "Main.Doc", mainWiki))
}

func TestHasAccessLevelGuestAuthenticationGate(t *testing.T) {
	e, store, _ := newTestEvaluator(t)
	ctx := context.Background()

	store.PutDocument(mainWiki, &wiki.Document{
		Ref:         ref.WikiPreferences(mainWiki),
		Preferences: map[string]string{"authenticate_view": "yes"},
	})

	assert.False(t, e.HasAccessLevel(ctx, LevelView, "XWiki.XWikiGuest", "Main.Doc", mainWiki))
	assert.True(t, e.HasAccessLevel(ctx, LevelView, "XWiki.Bob", "Main.Doc", mainWiki))

	t.Run("space preference", func(t *testing.T) {
		store.PutDocument(mainWiki, &wiki.Document{
			Ref:         ref.SpacePreferences(mainWiki, "Private"),
			Preferences: map[string]string{"authenticate_edit": "1"},
		})
		assert.False(t, e.HasAccessLevel(ctx, LevelEdit, "XWiki.XWikiGuest", "Private.Doc", mainWiki))
		assert.True(t, e.HasAccessLevel(ctx, LevelEdit, "XWiki.XWikiGuest", "Main.Doc", mainWiki))
	})
}

func TestHasAccessLevelRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("open by default", func(t *testing.T) {
		e, _, _ := newTestEvaluator(t)
		assert.True(t, e.HasAccessLevel(ctx, LevelRegister, "XWiki.XWikiGuest", "XWiki.Register", mainWiki))
	})

	t.Run("deny record", func(t *testing.T) {
		e, store, _ := newTestEvaluator(t)
		store.PutDocument(mainWiki, &wiki.Document{
			Ref:          ref.WikiPreferences(mainWiki),
			GlobalRights: []wiki.RightObject{denyUsers([]string{"register"}, "XWiki.XWikiGuest")},
		})
		assert.False(t, e.HasAccessLevel(ctx, LevelRegister, "XWiki.XWikiGuest", "XWiki.Register", mainWiki))
	})

	t.Run("reserved by allow record", func(t *testing.T) {
		e, store, _ := newTestEvaluator(t)
		store.PutDocument(mainWiki, &wiki.Document{
			Ref:          ref.WikiPreferences(mainWiki),
			GlobalRights: []wiki.RightObject{allowUsers([]string{"register"}, "XWiki.Alice")},
		})
		assert.True(t, e.HasAccessLevel(ctx, LevelRegister, "XWiki.Alice", "XWiki.Register", mainWiki))
		assert.False(t, e.HasAccessLevel(ctx, LevelRegister, "XWiki.XWikiGuest", "XWiki.Register", mainWiki))
	})
}

func TestHasAccessLevelSpaceAdminEscalation(t *testing.T) {
	e, store, _ := newTestEvaluator(t)
	ctx := context.Background()

	store.AddGroupMember(mainWiki, "XWiki.OpsGroup", "XWiki.Bob")
	store.PutDocument(mainWiki, &wiki.Document{
		Ref:          ref.WikiPreferences(mainWiki),
		GlobalRights: []wiki.RightObject{allowUsers([]string{"admin"}, "XWiki.Root")},
	})
	store.PutDocument(mainWiki, &wiki.Document{
		Ref:          ref.SpacePreferences(mainWiki, "Ops"),
		GlobalRights: []wiki.RightObject{allowGroups([]string{"admin"}, "XWiki.OpsGroup")},
	})
	store.PutDocument(mainWiki, &wiki.Document{
		Ref:         ref.Parse("Ops.Runbook", mainWiki),
		LocalRights: []wiki.RightObject{allowUsers([]string{"view"}, "XWiki.Alice")},
	})

	// Space admins bypass the document-scope restriction, in their space only.
	assert.True(t, e.HasAccessLevel(ctx, LevelView, "XWiki.Bob", "Ops.Runbook", mainWiki))
	assert.True(t, e.HasAccessLevel(ctx, LevelDelete, "XWiki.Bob", "Ops.Runbook", mainWiki))
	assert.False(t, e.HasAccessLevel(ctx, LevelDelete, "XWiki.Bob", "Main.Doc", mainWiki))
}

func TestHasAccessLevelParentSpaceWalk(t *testing.T) {
	e, store, _ := newTestEvaluator(t)
	ctx := context.Background()

	store.PutDocument(mainWiki, &wiki.Document{
		Ref:          ref.SpacePreferences(mainWiki, "Top"),
		GlobalRights: []wiki.RightObject{allowUsers([]string{"admin"}, "XWiki.Alice")},
		// Cycle back to the child; the walk must still terminate.
		Preferences: map[string]string{"parent": "Sub"},
	})
	store.PutDocument(mainWiki, &wiki.Document{
		Ref:         ref.SpacePreferences(mainWiki, "Sub"),
		Preferences: map[string]string{"parent": "Top"},
	})
	store.PutDocument(mainWiki, &wiki.Document{
		Ref:         ref.Parse("Sub.Doc", mainWiki),
		LocalRights: []wiki.RightObject{allowUsers([]string{"view"}, "XWiki.Carol")},
	})

	assert.True(t, e.HasAccessLevel(ctx, LevelView, "XWiki.Alice", "Sub.Doc", mainWiki))
	assert.False(t, e.HasAccessLevel(ctx, LevelView, "XWiki.Bob", "Sub.Doc", mainWiki))
}

func TestHasAccessLevelGroupCycle(t *testing.T) {
	e, store, _ := newTestEvaluator(t)
	ctx := context.Background()

	store.AddGroupMember(mainWiki, "XWiki.G1", "XWiki.Bob")
	store.AddGroupMember(mainWiki, "XWiki.G2", "XWiki.G1")
	store.AddGroupMember(mainWiki, "XWiki.G1", "XWiki.G2")

	store.PutDocument(mainWiki, &wiki.Document{
		Ref:         ref.Parse("Main.Doc", mainWiki),
		LocalRights: []wiki.RightObject{allowGroups([]string{"view"}, "XWiki.G2")},
	})

	assert.True(t, e.HasAccessLevel(ctx, LevelView, "XWiki.Bob", "Main.Doc", mainWiki))
	assert.False(t, e.HasAccessLevel(ctx, LevelView, "XWiki.Carol", "Main.Doc", mainWiki))
}

func TestHasAccessLevelCrossWikiMainAdmin(t *testing.T) {
	e, store, _ := newTestEvaluator(t)
	ctx := context.Background()

	store.PutDocument(mainWiki, &wiki.Document{
		Ref:          ref.WikiPreferences(mainWiki),
		GlobalRights: []wiki.RightObject{allowUsers([]string{"admin"}, "XWiki.Alice")},
	})
	store.PutDocument("sub", &wiki.Document{
		Ref:         ref.Parse("Main.Doc", "sub"),
		LocalRights: []wiki.RightObject{allowUsers([]string{"view"}, "sub:XWiki.Eve")},
	})

	// Main wiki admins hold every level on every wiki.
	assert.True(t, e.HasAccessLevel(ctx, LevelView, "xwiki:XWiki.Alice", "sub:Main.Doc", "sub"))
	assert.False(t, e.HasAccessLevel(ctx, LevelView, "sub:XWiki.Bob", "sub:Main.Doc", "sub"))
}

func TestHasProgrammingRights(t *testing.T) {
	e, store, _ := newTestEvaluator(t)
	ctx := context.Background()

	store.PutDocument(mainWiki, &wiki.Document{
		Ref: ref.WikiPreferences(mainWiki),
		GlobalRights: []wiki.RightObject{
			allowUsers([]string{"programming"}, "XWiki.Alice", "XWiki.Eve"),
			denyUsers([]string{"programming"}, "XWiki.Eve"),
		},
	})

	assert.True(t, e.HasProgrammingRights(ctx, "XWiki.Alice", mainWiki))
	assert.False(t, e.HasProgrammingRights(ctx, "XWiki.Eve", mainWiki), "deny beats allow")
	assert.False(t, e.HasProgrammingRights(ctx, "XWiki.Bob", mainWiki), "closed by default")

	// Principals of other wikis can never hold programming rights, even
	// when a record names them.
	store.PutDocument(mainWiki, &wiki.Document{
		Ref: ref.WikiPreferences(mainWiki),
		GlobalRights: []wiki.RightObject{
			allowUsers([]string{"programming"}, "sub:XWiki.Mallory"),
		},
	})
	assert.False(t, e.HasProgrammingRights(ctx, "sub:XWiki.Mallory", "sub"))
}

func TestHasAccessLevelEditOnPreferencesNeedsAdmin(t *testing.T) {
	e, store, _ := newTestEvaluator(t)
	ctx := context.Background()

	store.PutDocument(mainWiki, &wiki.Document{
		Ref:          ref.WikiPreferences(mainWiki),
		GlobalRights: []wiki.RightObject{allowUsers([]string{"admin"}, "XWiki.Alice")},
	})

	assert.True(t, e.HasAccessLevel(ctx, LevelEdit, "XWiki.Alice", "XWiki.XWikiPreferences", mainWiki))
	assert.False(t, e.HasAccessLevel(ctx, LevelEdit, "XWiki.Bob", "XWiki.XWikiPreferences", mainWiki))
	assert.False(t, e.HasAccessLevel(ctx, LevelEdit, "XWiki.Bob", "Ops.WebPreferences", mainWiki))
}

func TestCheckAccess(t *testing.T) {
	e, store, _ := newTestEvaluator(t)
	ctx := context.Background()

	store.PutDocument(mainWiki, &wiki.Document{
		Ref:         ref.Parse("Main.Secret", mainWiki),
		LocalRights: []wiki.RightObject{allowUsers([]string{"view"}, "XWiki.Alice")},
	})
	store.PutDocument(mainWiki, &wiki.Document{
		Ref:          ref.WikiPreferences(mainWiki),
		GlobalRights: []wiki.RightObject{allowUsers([]string{"admin"}, "XWiki.Root")},
	})

	tests := []struct {
		action    string
		principal string
		ok        bool
		level     Level
	}{
		{"view", "XWiki.Alice", true, LevelView},
		{"download", "XWiki.Bob", false, LevelView},
		{"login", "XWiki.XWikiGuest", true, LevelLogin},
		{"commentsave", "XWiki.Bob", true, LevelComment},
		{"delete", "XWiki.Bob", false, LevelDelete},
	}
	for _, tt := range tests {
		t.Run(tt.action+"/"+tt.principal, func(t *testing.T) {
			ok, level := e.CheckAccess(ctx, tt.action, tt.principal, "Main.Secret", mainWiki)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.level, level)
		})
	}
}

func TestHasAdminRights(t *testing.T) {
	e, store, _ := newTestEvaluator(t)
	ctx := context.Background()

	store.PutDocument(mainWiki, &wiki.Document{
		Ref:          ref.SpacePreferences(mainWiki, "Ops"),
		GlobalRights: []wiki.RightObject{allowUsers([]string{"admin"}, "XWiki.Alice")},
	})
	store.PutDocument(mainWiki, &wiki.Document{
		Ref:          ref.WikiPreferences(mainWiki),
		GlobalRights: []wiki.RightObject{allowUsers([]string{"admin"}, "XWiki.Root")},
	})

	assert.True(t, e.HasAdminRights(ctx, "XWiki.Alice", "Ops.Runbook", mainWiki))
	assert.False(t, e.HasAdminRights(ctx, "XWiki.Alice", "Main.Doc", mainWiki))
	assert.True(t, e.HasAdminRights(ctx, "XWiki.Root", "Main.Doc", mainWiki))
	assert.True(t, e.HasWikiAdminRights(ctx, "XWiki.Root", mainWiki))
	assert.False(t, e.HasWikiAdminRights(ctx, "XWiki.Alice", mainWiki))
}
