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

// Package token holds the process-wide store of remote-procedure tokens. A
// token stands for one authenticated principal and is bound to the client
// address it was issued to; it stays valid until revoked or purged.
package token

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/wikiforge/wikiforge/internal/audit"
	"github.com/wikiforge/wikiforge/internal/ref"
)

// ErrInvalidToken covers unknown, revoked and wrong-address tokens alike; a
// caller can not distinguish the cases.
var ErrInvalidToken = errors.New("invalid token")

// mint draws 16 bytes from the system CSPRNG, hex encoded. rand.Read cannot
// fail on supported platforms.
func mint() string {
	var b [16]byte
	rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

type entry struct {
	principal ref.EntityRef
	clientIP  string
	issuedAt  time.Time
}

// Store is an in-memory token table, safe for concurrent use.
type Store struct {
	audit audit.Logger

	mu     sync.RWMutex
	tokens map[string]entry
}

// NewStore creates an empty store. auditLogger may be nil.
func NewStore(auditLogger audit.Logger) *Store {
	if auditLogger == nil {
		auditLogger = audit.NopLogger{}
	}
	return &Store{
		audit:  auditLogger,
		tokens: make(map[string]entry),
	}
}

// Issue mints a fresh 128-bit token for the principal, bound to clientIP.
func (s *Store) Issue(ctx context.Context, principal ref.EntityRef, clientIP string) string {
	t := mint()

	s.mu.Lock()
	s.tokens[t] = entry{principal: principal, clientIP: clientIP, issuedAt: time.Now()}
	s.mu.Unlock()

	s.audit.Log(ctx, audit.Event{
		Type:      audit.TypeTokenIssued,
		WikiID:    principal.Wiki,
		ActorID:   principal.Full(),
		IPAddress: clientIP,
	})
	return t
}

// Check resolves a token presented from clientIP to its principal.
func (s *Store) Check(ctx context.Context, token, clientIP string) (ref.EntityRef, error) {
	s.mu.RLock()
	e, ok := s.tokens[token]
	s.mu.RUnlock()

	if !ok || subtle.ConstantTimeCompare([]byte(e.clientIP), []byte(clientIP)) != 1 {
		return ref.EntityRef{}, ErrInvalidToken
	}
	return e.principal, nil
}

// Revoke removes a token presented from clientIP. It reports whether a token
// was actually removed; a token presented from the wrong address is left in
// place.
func (s *Store) Revoke(ctx context.Context, token, clientIP string) bool {
	s.mu.Lock()
	e, ok := s.tokens[token]
	if ok && e.clientIP == clientIP {
		delete(s.tokens, token)
	} else {
		ok = false
	}
	s.mu.Unlock()

	if ok {
		s.audit.Log(ctx, audit.Event{
			Type:      audit.TypeTokenRevoked,
			WikiID:    e.principal.Wiki,
			ActorID:   e.principal.Full(),
			IPAddress: clientIP,
		})
	}
	return ok
}

// Purge removes every token of a principal, regardless of address. Used when
// a user is disabled or changes their password. Returns the number of tokens
// removed.
func (s *Store) Purge(ctx context.Context, principal ref.EntityRef) int {
	s.mu.Lock()
	n := 0
	for t, e := range s.tokens {
		if e.principal == principal {
			delete(s.tokens, t)
			n++
		}
	}
	s.mu.Unlock()

	if n > 0 {
		s.audit.Log(ctx, audit.Event{
			Type:     audit.TypeTokenRevoked,
			WikiID:   principal.Wiki,
			ActorID:  principal.Full(),
			Metadata: map[string]any{"purged": n},
		})
	}
	return n
}
