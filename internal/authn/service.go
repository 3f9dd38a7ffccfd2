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

// Package authn verifies credentials against stored user documents and
// authenticates HTTP requests through the configured mechanisms.
package authn

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"

	"github.com/wikiforge/wikiforge/internal/audit"
	"github.com/wikiforge/wikiforge/internal/ref"
	"github.com/wikiforge/wikiforge/internal/wiki"
)

// Authentication failure reasons. Callers map these to user-facing messages;
// beyond the blank-field cases no detail about the failure is exposed.
var (
	ErrNoUsername         = errors.New("no username provided")
	ErrNoPassword         = errors.New("no password provided")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Service authenticates username/password pairs against user documents.
type Service struct {
	store    wiki.Store
	registry *wiki.Registry
	hasher   *PasswordHasher
	audit    audit.Logger

	// superAdminPassword enables the reserved superadmin login when
	// non-empty.
	superAdminPassword string
}

// NewService creates an authentication service. auditLogger may be nil;
// superAdminPassword empty disables the superadmin login.
func NewService(store wiki.Store, registry *wiki.Registry, hasher *PasswordHasher, auditLogger audit.Logger, superAdminPassword string) *Service {
	if hasher == nil {
		hasher = DefaultPasswordHasher()
	}
	if auditLogger == nil {
		auditLogger = audit.NopLogger{}
	}
	return &Service{
		store:              store,
		registry:           registry,
		hasher:             hasher,
		audit:              auditLogger,
		superAdminPassword: superAdminPassword,
	}
}

// Authenticate verifies a credential pair against currentWiki, falling back
// to the main wiki for users that only exist there. The username may carry a
// wiki qualifier ("wikiname:User") to target another wiki, or a space
// qualifier ("XWiki.User") which is stripped.
func (s *Service) Authenticate(ctx context.Context, username, password, currentWiki string) (ref.EntityRef, error) {
	if strings.TrimSpace(username) == "" {
		return ref.EntityRef{}, ErrNoUsername
	}
	if strings.TrimSpace(password) == "" {
		return ref.EntityRef{}, ErrNoPassword
	}

	// Users may type their name with stray spaces.
	username = strings.ReplaceAll(username, " ", "")

	if r := ref.Parse(username, currentWiki); r.IsSuperAdmin() {
		return s.authenticateSuperAdmin(ctx, password, currentWiki)
	}

	// Split off an explicit wiki qualifier and reduce the rest to the bare
	// user name.
	targetWiki := currentWiki
	name := username
	if w, rest, ok := strings.Cut(name, ":"); ok && w != "" {
		targetWiki = w
		name = rest
	}
	if i := strings.Index(name, "."); i >= 0 {
		name = name[i+1:]
	}

	principal, ok, err := s.checkUser(ctx, targetWiki, name, password)
	if err != nil {
		return ref.EntityRef{}, err
	}
	if ok {
		s.logResult(ctx, principal.Full(), targetWiki, true)
		return principal, nil
	}

	// Users of the main wiki may log into any wiki.
	if !s.registry.IsMainWiki(targetWiki) {
		main := s.registry.MainWiki()
		principal, ok, err := s.checkUser(ctx, main, name, password)
		if err != nil {
			return ref.EntityRef{}, err
		}
		if ok {
			s.logResult(ctx, principal.Full(), main, true)
			return principal, nil
		}
	}

	s.logResult(ctx, username, currentWiki, false)
	return ref.EntityRef{}, ErrInvalidCredentials
}

// checkUser finds the user document in one wiki and verifies the password.
func (s *Service) checkUser(ctx context.Context, wikiID, name, password string) (ref.EntityRef, bool, error) {
	local, err := s.findUser(ctx, wikiID, name)
	if err != nil {
		return ref.EntityRef{}, false, err
	}
	if local == "" {
		return ref.EntityRef{}, false, nil
	}

	userRef := ref.Parse(local, wikiID)
	doc, err := s.store.GetDocument(ctx, wikiID, userRef)
	if err != nil {
		return ref.EntityRef{}, false, err
	}
	if doc.IsNew || !s.hasher.Check(password, doc.Password) {
		return ref.EntityRef{}, false, nil
	}
	return userRef, true, nil
}

// findUser locates a user document by name: an exact lookup first, then a
// search whose case sensitivity follows the backing store.
func (s *Service) findUser(ctx context.Context, wikiID, name string) (string, error) {
	exact := ref.EntityRef{Wiki: wikiID, Space: ref.DefaultSpace, Name: name}
	ok, err := s.store.Exists(ctx, wikiID, exact)
	if err != nil {
		return "", err
	}
	if ok {
		return exact.Local(), nil
	}
	return s.store.SearchUserName(ctx, wikiID, name)
}

func (s *Service) authenticateSuperAdmin(ctx context.Context, password, currentWiki string) (ref.EntityRef, error) {
	if s.superAdminPassword == "" ||
		subtle.ConstantTimeCompare([]byte(password), []byte(s.superAdminPassword)) != 1 {
		s.logResult(ctx, ref.SuperAdmin, currentWiki, false)
		return ref.EntityRef{}, ErrInvalidCredentials
	}

	principal := ref.EntityRef{
		Wiki:  s.registry.MainWiki(),
		Space: ref.DefaultSpace,
		Name:  ref.SuperAdmin,
	}
	s.logResult(ctx, principal.Full(), currentWiki, true)
	return principal, nil
}

func (s *Service) logResult(ctx context.Context, actor, wikiID string, success bool) {
	eventType := audit.TypeLoginFailed
	if success {
		eventType = audit.TypeLoginSuccess
	}
	s.audit.Log(ctx, audit.Event{Type: eventType, WikiID: wikiID, ActorID: actor})

	if success {
		slog.DebugContext(ctx, "authentication succeeded", "user", actor, "wiki", wikiID)
	} else {
		slog.InfoContext(ctx, "authentication failed", "user", actor, "wiki", wikiID)
	}
}
