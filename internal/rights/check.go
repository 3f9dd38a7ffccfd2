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
	"log/slog"

	"github.com/wikiforge/wikiforge/internal/group"
	"github.com/wikiforge/wikiforge/internal/ref"
	"github.com/wikiforge/wikiforge/internal/wiki"
)

// Decision is the outcome of matching one principal against the right
// records of one document at one scope.
type Decision int

const (
	// DecisionNotFound: no record carries the requested level for the
	// requested allow/deny side. The caller continues to the next scope.
	DecisionNotFound Decision = iota

	// DecisionGranted: a matching record names the principal (directly or
	// through a group).
	DecisionGranted

	// DecisionRefused: at least one record carries the level but none
	// names the principal. For allow checks this "found" outcome blocks
	// weaker scopes from granting.
	DecisionRefused
)

// checkRight matches principal against the right objects attached to doc.
// global selects the space/wiki-scope record list, allow selects the
// allow or deny side, and isUser selects the users or groups subject field.
// When no direct match is found the check recurses through the principal's
// groups; seen guards against membership cycles.
func (e *Evaluator) checkRight(ctx context.Context, ec *group.Context, principal ref.EntityRef, doc *wiki.Document, level Level, isUser, allow, global bool, seen map[string]bool) (Decision, error) {
	if !global && level == LevelAdmin {
		// Admin rights do not exist at document scope.
		return DecisionNotFound, nil
	}

	records := doc.LocalRights
	if global {
		records = doc.GlobalRights
	}

	found := false
	for _, rec := range records {
		if rec.Allow != allow || !containsLevel(rec.Levels, level) {
			continue
		}
		found = true

		subjects := rec.Users
		if !isUser {
			subjects = rec.Groups
		}
		for _, entry := range subjects {
			if ref.Parse(entry, doc.Ref.Wiki) == principal {
				return DecisionGranted, nil
			}
		}
	}

	// No direct match at this scope; retry with each group the principal
	// belongs to substituted as the subject.
	groups, err := e.memberGroups(ctx, ec, principal, doc.Ref.Wiki)
	if err != nil {
		return DecisionNotFound, err
	}
	for _, g := range groups {
		if seen[g.Full()] {
			continue
		}
		seen[g.Full()] = true

		d, err := e.checkRight(ctx, ec, g, doc, level, false, allow, global, seen)
		if err != nil {
			slog.ErrorContext(ctx, "failed to check right for group",
				"group", g.Full(), "document", doc.Ref.Full(), "level", string(level), "error", err)
			continue
		}
		if d == DecisionGranted {
			return DecisionGranted, nil
		}
	}

	if found {
		return DecisionRefused, nil
	}
	return DecisionNotFound, nil
}

// memberGroups collects the principal's groups from the document's wiki and,
// for cross-wiki principals, from the principal's home wiki as well.
func (e *Evaluator) memberGroups(ctx context.Context, ec *group.Context, principal ref.EntityRef, docWiki string) ([]ref.EntityRef, error) {
	groups, err := e.groups.GroupsFor(ctx, ec, docWiki, principal, 0, 0)
	if err != nil {
		return nil, err
	}
	if principal.Wiki == docWiki {
		return groups, nil
	}

	home, err := e.groups.GroupsFor(ctx, ec, principal.Wiki, principal, 0, 0)
	if err != nil {
		return nil, err
	}
	return append(groups, home...), nil
}

func containsLevel(levels []string, level Level) bool {
	for _, l := range levels {
		if l == string(level) {
			return true
		}
	}
	return false
}
