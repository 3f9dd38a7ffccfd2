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

package authn

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/wikiforge/wikiforge/internal/audit"
	"github.com/wikiforge/wikiforge/internal/cookie"
	"github.com/wikiforge/wikiforge/internal/ref"
)

// ErrTooManyAttempts is returned once a client address exhausts the basic
// authentication retry budget.
var ErrTooManyAttempts = errors.New("too many failed authentication attempts")

const (
	maxBasicFailures   = 3
	basicFailureWindow = 5 * time.Minute
)

// Kind selects the request authentication mechanism of a wiki.
type Kind string

const (
	// KindForm resumes persistent cookie logins; interactive form logins
	// are handled by the login endpoint.
	KindForm Kind = "form"

	// KindBasic authenticates every request from an Authorization header.
	KindBasic Kind = "basic"

	// KindTrustedHeader trusts an upstream proxy to assert the remote user
	// in a request header.
	KindTrustedHeader Kind = "trusted_header"
)

// Provisioner creates user documents for externally asserted identities.
// CreateUser must be idempotent and report whether a document was created.
type Provisioner interface {
	CreateUser(ctx context.Context, wikiID, name string) (bool, error)
}

// TrustedHeaderConfig configures KindTrustedHeader.
type TrustedHeaderConfig struct {
	// UserHeader carries the asserted remote user, e.g. "X-Remote-User".
	UserHeader string

	// GroupHeader optionally carries the user's external groups.
	GroupHeader string

	// GroupSeparator splits GroupHeader values. Defaults to "|".
	GroupSeparator string

	// CreateUsers provisions a user document on first sight of an
	// asserted identity.
	CreateUsers bool
}

// Authenticator resolves the principal of an HTTP request for one wiki.
// Requests without usable credentials resolve to the guest pseudo-user;
// an error is returned only for credentials that were presented and failed.
type Authenticator struct {
	kind        Kind
	service     *Service
	cookies     *cookie.Manager
	trusted     TrustedHeaderConfig
	provisioner Provisioner
	audit       audit.Logger

	mu       sync.Mutex
	failures map[string]*failureRecord
}

type failureRecord struct {
	count int
	since time.Time
}

// NewFormAuthenticator authenticates via the persistent login cookie set.
func NewFormAuthenticator(service *Service, cookies *cookie.Manager) *Authenticator {
	return &Authenticator{kind: KindForm, service: service, cookies: cookies, audit: audit.NopLogger{}}
}

// NewBasicAuthenticator authenticates via HTTP basic credentials. Failed
// attempts are counted per client address and cut off after a few retries.
func NewBasicAuthenticator(service *Service) *Authenticator {
	return &Authenticator{
		kind:     KindBasic,
		service:  service,
		audit:    audit.NopLogger{},
		failures: make(map[string]*failureRecord),
	}
}

// NewTrustedHeaderAuthenticator trusts identity headers set by an upstream
// proxy. provisioner may be nil, in which case unknown users are accepted
// without a backing document.
func NewTrustedHeaderAuthenticator(cfg TrustedHeaderConfig, provisioner Provisioner, auditLogger audit.Logger) *Authenticator {
	if cfg.GroupSeparator == "" {
		cfg.GroupSeparator = "|"
	}
	if auditLogger == nil {
		auditLogger = audit.NopLogger{}
	}
	return &Authenticator{kind: KindTrustedHeader, trusted: cfg, provisioner: provisioner, audit: auditLogger}
}

// Kind returns the authenticator's mechanism.
func (a *Authenticator) Kind() Kind {
	return a.kind
}

// CheckAuth resolves the request principal. The response writer is used only
// to clear unusable cookies.
func (a *Authenticator) CheckAuth(w http.ResponseWriter, r *http.Request, currentWiki string) (ref.EntityRef, error) {
	switch a.kind {
	case KindBasic:
		return a.checkBasic(r, currentWiki)
	case KindTrustedHeader:
		return a.checkTrustedHeader(r, currentWiki)
	default:
		return a.checkForm(w, r, currentWiki)
	}
}

// Guest returns the guest principal of a wiki.
func Guest(wikiID string) ref.EntityRef {
	return ref.EntityRef{Wiki: wikiID, Space: ref.DefaultSpace, Name: ref.Guest}
}

func (a *Authenticator) checkForm(w http.ResponseWriter, r *http.Request, currentWiki string) (ref.EntityRef, error) {
	username, password, err := a.cookies.Recall(r)
	switch {
	case err == nil:
	case err == cookie.ErrNoCookies:
		return Guest(currentWiki), nil
	default:
		// Tampered or undecryptable cookies are cleared so the client
		// does not retry them forever.
		a.cookies.Forget(w, r)
		return Guest(currentWiki), nil
	}

	principal, err := a.service.Authenticate(r.Context(), username, password, currentWiki)
	if err != nil {
		// Remembered credentials that stopped working (password change,
		// deleted user) degrade to guest.
		a.cookies.Forget(w, r)
		slog.InfoContext(r.Context(), "remembered login no longer valid", "wiki", currentWiki)
		return Guest(currentWiki), nil
	}
	return principal, nil
}

func (a *Authenticator) checkBasic(r *http.Request, currentWiki string) (ref.EntityRef, error) {
	username, password, ok := r.BasicAuth()
	if !ok {
		return Guest(currentWiki), nil
	}

	clientIP := cookie.ClientIP(r)
	if a.exhausted(clientIP) {
		return Guest(currentWiki), ErrTooManyAttempts
	}

	principal, err := a.service.Authenticate(r.Context(), username, password, currentWiki)
	if err != nil {
		a.recordFailure(clientIP)
		return Guest(currentWiki), err
	}
	a.clearFailures(clientIP)
	return principal, nil
}

// exhausted reports whether a client address has used up its retry budget.
// Records age out after the failure window.
func (a *Authenticator) exhausted(clientIP string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec, ok := a.failures[clientIP]
	if !ok {
		return false
	}
	if time.Since(rec.since) > basicFailureWindow {
		delete(a.failures, clientIP)
		return false
	}
	return rec.count >= maxBasicFailures
}

func (a *Authenticator) recordFailure(clientIP string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec, ok := a.failures[clientIP]
	if !ok || time.Since(rec.since) > basicFailureWindow {
		a.failures[clientIP] = &failureRecord{count: 1, since: time.Now()}
		return
	}
	rec.count++
}

func (a *Authenticator) clearFailures(clientIP string) {
	a.mu.Lock()
	delete(a.failures, clientIP)
	a.mu.Unlock()
}

func (a *Authenticator) checkTrustedHeader(r *http.Request, currentWiki string) (ref.EntityRef, error) {
	name := strings.TrimSpace(r.Header.Get(a.trusted.UserHeader))
	if name == "" {
		return Guest(currentWiki), nil
	}

	// The asserted name becomes a document name; strip characters that
	// would change its meaning as a reference.
	name = strings.Map(func(c rune) rune {
		switch c {
		case '.', ':', ' ':
			return '_'
		}
		return c
	}, name)

	principal := ref.EntityRef{Wiki: currentWiki, Space: ref.DefaultSpace, Name: name}

	if a.trusted.CreateUsers && a.provisioner != nil {
		created, err := a.provisioner.CreateUser(r.Context(), currentWiki, name)
		if err != nil {
			return Guest(currentWiki), err
		}
		if created {
			meta := map[string]any{}
			if a.trusted.GroupHeader != "" {
				if v := r.Header.Get(a.trusted.GroupHeader); v != "" {
					meta["groups"] = strings.Split(v, a.trusted.GroupSeparator)
				}
			}
			a.audit.Log(r.Context(), audit.Event{
				Type:      audit.TypeUserProvisioned,
				WikiID:    currentWiki,
				ActorID:   principal.Full(),
				IPAddress: cookie.ClientIP(r),
				Metadata:  meta,
			})
		}
	}
	return principal, nil
}
