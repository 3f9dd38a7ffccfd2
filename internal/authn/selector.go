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
	"strings"
	"sync"
)

// Selector hands out the request authenticator of each wiki. Authenticators
// are built once per wiki by the factory and cached until invalidated, so a
// configuration change takes effect through an explicit Invalidate, never
// implicitly.
type Selector struct {
	factory func(ctx context.Context, wikiID string) (*Authenticator, error)

	mu    sync.RWMutex
	cache map[string]*Authenticator
}

// NewSelector creates a selector around an authenticator factory.
func NewSelector(factory func(ctx context.Context, wikiID string) (*Authenticator, error)) *Selector {
	return &Selector{
		factory: factory,
		cache:   make(map[string]*Authenticator),
	}
}

// ForWiki returns the authenticator of a wiki, building it on first use.
func (s *Selector) ForWiki(ctx context.Context, wikiID string) (*Authenticator, error) {
	key := strings.ToLower(wikiID)

	s.mu.RLock()
	a, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		return a, nil
	}

	a, err := s.factory(ctx, wikiID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache[key] = a
	s.mu.Unlock()
	return a, nil
}

// Invalidate drops a wiki's cached authenticator; an empty id drops all.
func (s *Selector) Invalidate(wikiID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if wikiID == "" {
		s.cache = make(map[string]*Authenticator)
		return
	}
	delete(s.cache, strings.ToLower(wikiID))
}
