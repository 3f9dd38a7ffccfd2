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

package http

import (
	"context"

	"github.com/wikiforge/wikiforge/internal/ref"
)

type contextKey string

const (
	principalKey contextKey = "principal"
	wikiIDKey    contextKey = "wiki_id"
)

// GetPrincipal retrieves the authenticated principal from context. The zero
// value means no authentication middleware ran.
func GetPrincipal(ctx context.Context) ref.EntityRef {
	if val, ok := ctx.Value(principalKey).(ref.EntityRef); ok {
		return val
	}
	return ref.EntityRef{}
}

// GetWiki retrieves the current wiki ID from context.
func GetWiki(ctx context.Context) string {
	if val, ok := ctx.Value(wikiIDKey).(string); ok {
		return val
	}
	return ""
}
