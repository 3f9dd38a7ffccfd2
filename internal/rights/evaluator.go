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

// Package rights decides whether a principal may perform an access level on a
// document. Decisions walk an ordered chain of gates and scopes: platform
// reserved identities, wiki ownership, admin escalation through the space
// hierarchy, then deny records before allow records from the document scope
// outward. Any backend failure resolves to a refusal.
package rights

import (
	"context"
	"log/slog"
	"strings"

	"github.com/wikiforge/wikiforge/internal/group"
	"github.com/wikiforge/wikiforge/internal/ref"
	"github.com/wikiforge/wikiforge/internal/wiki"
)

// Evaluator answers access-level questions for one deployment. It is
// stateless across calls and safe for concurrent use; per-decision state
// (group memoization, cycle guards) lives in values created per call.
type Evaluator struct {
	store    wiki.Store
	registry *wiki.Registry
	groups   *group.Resolver

	// maxSpaceChecks bounds the parent walk through nested space
	// preference documents.
	maxSpaceChecks int
}

// NewEvaluator creates an evaluator. maxSpaceChecks <= 0 selects the default
// bound of 30 parent hops.
func NewEvaluator(store wiki.Store, registry *wiki.Registry, groups *group.Resolver, maxSpaceChecks int) *Evaluator {
	if maxSpaceChecks <= 0 {
		maxSpaceChecks = 30
	}
	return &Evaluator{store: store, registry: registry, groups: groups, maxSpaceChecks: maxSpaceChecks}
}

// HasAccessLevel reports whether the named principal holds level on the named
// document. Names are parsed relative to currentWiki. The decision never
// errors: a backend failure is logged and refused.
func (e *Evaluator) HasAccessLevel(ctx context.Context, level Level, principalName, docName, currentWiki string) bool {
	principal := ref.Parse(principalName, currentWiki)
	docRef := ref.Parse(docName, currentWiki)

	ok, err := e.evaluate(ctx, group.NewContext(), level, principal, docRef, true)
	if err != nil {
		slog.ErrorContext(ctx, "access check failed, refusing",
			"level", string(level), "principal", principal.Full(), "document", docRef.Full(), "error", err)
		return false
	}
	return ok
}

// CheckAccess reports whether the principal may perform a UI action on the
// document, and returns the level the action mapped to. Login-class actions
// are always permitted.
func (e *Evaluator) CheckAccess(ctx context.Context, action, principalName, docName, currentWiki string) (bool, Level) {
	level := LevelForAction(action)
	if level == LevelLogin {
		return true, level
	}
	return e.HasAccessLevel(ctx, level, principalName, docName, currentWiki), level
}

// HasAdminRights reports whether the principal administers the document's
// wiki or its space.
func (e *Evaluator) HasAdminRights(ctx context.Context, principalName, docName, currentWiki string) bool {
	docRef := ref.Parse(docName, currentWiki)
	if e.HasWikiAdminRights(ctx, principalName, docRef.Wiki) {
		return true
	}
	return e.HasAccessLevel(ctx, LevelAdmin, principalName,
		ref.SpacePreferences(docRef.Wiki, docRef.Space).Full(), currentWiki)
}

// HasWikiAdminRights reports whether the principal administers the wiki.
func (e *Evaluator) HasWikiAdminRights(ctx context.Context, principalName, wikiID string) bool {
	return e.HasAccessLevel(ctx, LevelAdmin, principalName,
		ref.WikiPreferences(wikiID).Full(), wikiID)
}

// HasProgrammingRights reports whether the principal holds programming
// rights, which are only ever granted on the main wiki.
func (e *Evaluator) HasProgrammingRights(ctx context.Context, principalName, currentWiki string) bool {
	main := e.registry.MainWiki()
	return e.HasAccessLevel(ctx, LevelProgramming, principalName,
		ref.WikiPreferences(main).Full(), currentWiki)
}

// evaluate runs the ordered decision chain for one (level, principal,
// document) triple. isUser distinguishes a user principal from a group
// principal re-entering through membership.
func (e *Evaluator) evaluate(ctx context.Context, ec *group.Context, level Level, principal, docRef ref.EntityRef, isUser bool) (bool, error) {
	// Read-only wikis refuse every mutating level before any record is
	// consulted.
	if e.registry.ReadOnly(ctx, docRef.Wiki) && level.Mutating() {
		return e.deny(ctx, level, principal, docRef, "wiki is read-only"), nil
	}

	// A wiki or space may demand authentication for a level, which the
	// guest pseudo-user can never satisfy.
	if principal.IsGuest() && e.needsAuth(ctx, level, docRef) {
		return e.deny(ctx, level, principal, docRef, "authentication required"), nil
	}

	// Creators may always delete their own documents.
	if level == LevelDelete && isUser {
		doc, err := e.store.GetDocument(ctx, docRef.Wiki, docRef)
		if err != nil {
			return false, err
		}
		if !doc.IsNew && doc.Creator.Name != "" && doc.Creator == principal {
			return e.allow(ctx, level, principal, docRef, "document creator"), nil
		}
	}

	if principal.IsSuperAdmin() {
		return e.allow(ctx, level, principal, docRef, "superadmin"), nil
	}

	mainWiki := e.registry.MainWiki()
	mainPrefs, err := e.store.GetDocument(ctx, mainWiki, ref.WikiPreferences(mainWiki))
	if err != nil {
		return false, err
	}

	// Admins of the main wiki hold every level everywhere.
	d, err := e.checkRight(ctx, ec, principal, mainPrefs, LevelAdmin, isUser, true, true, newSeen(principal))
	if err != nil {
		return false, err
	}
	if d == DecisionGranted {
		return e.allow(ctx, level, principal, docRef, "main wiki admin"), nil
	}

	// Programming rights are decided entirely at the main wiki scope and
	// are closed by default.
	if level == LevelProgramming {
		if !strings.EqualFold(principal.Wiki, mainWiki) {
			return e.deny(ctx, level, principal, docRef, "programming is reserved to main wiki principals"), nil
		}
		d, err := e.checkRight(ctx, ec, principal, mainPrefs, LevelProgramming, isUser, false, true, newSeen(principal))
		if err != nil {
			return false, err
		}
		if d == DecisionGranted {
			return e.deny(ctx, level, principal, docRef, "programming denied"), nil
		}
		d, err = e.checkRight(ctx, ec, principal, mainPrefs, LevelProgramming, isUser, true, true, newSeen(principal))
		if err != nil {
			return false, err
		}
		if d == DecisionGranted {
			return e.allow(ctx, level, principal, docRef, "programming granted"), nil
		}
		return e.deny(ctx, level, principal, docRef, "programming closed by default"), nil
	}

	// Wiki owners hold every remaining level on their wiki.
	owner := e.registry.Owner(ctx, docRef.Wiki)
	if owner != "" && ref.Parse(owner, docRef.Wiki) == principal {
		return e.allow(ctx, level, principal, docRef, "wiki owner"), nil
	}

	// Editing a preferences document is an administrative act.
	if level == LevelEdit && e.isPreferencesDoc(docRef) {
		level = LevelAdmin
	}

	wikiPrefs, err := e.store.GetDocument(ctx, docRef.Wiki, ref.WikiPreferences(docRef.Wiki))
	if err != nil {
		return false, err
	}

	// Register is decided solely at the wiki scope and is open by default.
	if level == LevelRegister {
		d, err := e.checkRight(ctx, ec, principal, wikiPrefs, LevelRegister, isUser, false, true, newSeen(principal))
		if err != nil {
			return false, err
		}
		if d == DecisionGranted {
			return e.deny(ctx, level, principal, docRef, "register denied"), nil
		}
		d, err = e.checkRight(ctx, ec, principal, wikiPrefs, LevelRegister, isUser, true, true, newSeen(principal))
		if err != nil {
			return false, err
		}
		switch d {
		case DecisionGranted:
			return e.allow(ctx, level, principal, docRef, "register granted"), nil
		case DecisionRefused:
			return e.deny(ctx, level, principal, docRef, "register reserved to others"), nil
		}
		return e.allow(ctx, level, principal, docRef, "register open by default"), nil
	}

	// Wiki and space admins hold every remaining level within their realm.
	d, err = e.checkRight(ctx, ec, principal, wikiPrefs, LevelAdmin, isUser, true, true, newSeen(principal))
	if err != nil {
		return false, err
	}
	if d == DecisionGranted {
		return e.allow(ctx, level, principal, docRef, "wiki admin"), nil
	}

	spaces, err := e.spaceChain(ctx, docRef)
	if err != nil {
		return false, err
	}
	for _, sp := range spaces {
		d, err := e.checkRight(ctx, ec, principal, sp, LevelAdmin, isUser, true, true, newSeen(principal))
		if err != nil {
			return false, err
		}
		if d == DecisionGranted {
			return e.allow(ctx, level, principal, docRef, "space admin"), nil
		}
	}

	doc, err := e.store.GetDocument(ctx, docRef.Wiki, docRef)
	if err != nil {
		return false, err
	}

	// Deny records, strongest scope first. A deny anywhere is final.
	d, err = e.checkRight(ctx, ec, principal, doc, level, isUser, false, false, newSeen(principal))
	if err != nil {
		return false, err
	}
	if d == DecisionGranted {
		return e.deny(ctx, level, principal, docRef, "denied at document scope"), nil
	}
	for _, sp := range spaces {
		d, err := e.checkRight(ctx, ec, principal, sp, level, isUser, false, true, newSeen(principal))
		if err != nil {
			return false, err
		}
		if d == DecisionGranted {
			return e.deny(ctx, level, principal, docRef, "denied at space scope"), nil
		}
	}
	d, err = e.checkRight(ctx, ec, principal, wikiPrefs, level, isUser, false, true, newSeen(principal))
	if err != nil {
		return false, err
	}
	if d == DecisionGranted {
		return e.deny(ctx, level, principal, docRef, "denied at wiki scope"), nil
	}

	// Allow records, strongest scope first. Once any scope carries an
	// allow record for the level, weaker scopes no longer apply and the
	// principal must be named at that scope.
	found := false
	d, err = e.checkRight(ctx, ec, principal, doc, level, isUser, true, false, newSeen(principal))
	if err != nil {
		return false, err
	}
	switch d {
	case DecisionGranted:
		return e.allow(ctx, level, principal, docRef, "allowed at document scope"), nil
	case DecisionRefused:
		found = true
	}

	for _, sp := range spaces {
		if found {
			break
		}
		d, err := e.checkRight(ctx, ec, principal, sp, level, isUser, true, true, newSeen(principal))
		if err != nil {
			return false, err
		}
		switch d {
		case DecisionGranted:
			return e.allow(ctx, level, principal, docRef, "allowed at space scope"), nil
		case DecisionRefused:
			found = true
		}
	}

	if !found {
		d, err = e.checkRight(ctx, ec, principal, wikiPrefs, level, isUser, true, true, newSeen(principal))
		if err != nil {
			return false, err
		}
		switch d {
		case DecisionGranted:
			return e.allow(ctx, level, principal, docRef, "allowed at wiki scope"), nil
		case DecisionRefused:
			found = true
		}
	}

	if found {
		return e.deny(ctx, level, principal, docRef, "level reserved to others"), nil
	}

	// Delete stays closed unless the principal would qualify as admin.
	if level == LevelDelete {
		ok, err := e.evaluate(ctx, ec, LevelAdmin, principal, docRef, isUser)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		return e.deny(ctx, level, principal, docRef, "delete closed by default"), nil
	}

	return e.allow(ctx, level, principal, docRef, "open by default"), nil
}

// needsAuth reports whether an authenticate_<level> preference demands a
// logged-in user for the level, at wiki scope then space scope. Unreadable
// preferences do not demand authentication.
func (e *Evaluator) needsAuth(ctx context.Context, level Level, docRef ref.EntityRef) bool {
	key := "authenticate_" + string(level)

	for _, prefRef := range []ref.EntityRef{
		ref.WikiPreferences(docRef.Wiki),
		ref.SpacePreferences(docRef.Wiki, docRef.Space),
	} {
		doc, err := e.store.GetDocument(ctx, docRef.Wiki, prefRef)
		if err != nil {
			slog.DebugContext(ctx, "failed to read authentication preference",
				"document", prefRef.Full(), "error", err)
			continue
		}
		v := strings.TrimSpace(strings.ToLower(doc.Preference(key)))
		if v == "yes" || v == "1" {
			return true
		}
	}
	return false
}

// spaceChain returns the existing space preference documents from the
// document's space up through its parent spaces. The walk follows the
// "parent" preference, skips already-visited spaces and stops at the
// configured bound.
func (e *Evaluator) spaceChain(ctx context.Context, docRef ref.EntityRef) ([]*wiki.Document, error) {
	var chain []*wiki.Document

	visited := make(map[string]bool)
	space := docRef.Space
	for i := 0; i < e.maxSpaceChecks && space != "" && !visited[space]; i++ {
		visited[space] = true

		doc, err := e.store.GetDocument(ctx, docRef.Wiki, ref.SpacePreferences(docRef.Wiki, space))
		if err != nil {
			return nil, err
		}
		if doc.IsNew {
			break
		}
		chain = append(chain, doc)
		space = doc.Preference("parent")
	}
	return chain, nil
}

func (e *Evaluator) isPreferencesDoc(docRef ref.EntityRef) bool {
	if docRef.Name == ref.SpacePreferencesPage {
		return true
	}
	return docRef.Space == ref.DefaultSpace && docRef.Name == ref.WikiPreferencesPage
}

func (e *Evaluator) allow(ctx context.Context, level Level, principal, docRef ref.EntityRef, reason string) bool {
	slog.DebugContext(ctx, "access granted",
		"level", string(level), "principal", principal.Full(), "document", docRef.Full(), "reason", reason)
	return true
}

func (e *Evaluator) deny(ctx context.Context, level Level, principal, docRef ref.EntityRef, reason string) bool {
	slog.InfoContext(ctx, "access denied",
		"level", string(level), "principal", principal.Full(), "document", docRef.Full(), "reason", reason)
	return false
}

// newSeen seeds a cycle guard for one scope check with the principal itself.
func newSeen(principal ref.EntityRef) map[string]bool {
	return map[string]bool{principal.Full(): true}
}
