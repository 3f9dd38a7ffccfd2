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
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wikiforge/wikiforge/internal/authn"
	"github.com/wikiforge/wikiforge/internal/observability/logger"
)

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			slog.InfoContext(r.Context(), "http_request_start",
				logger.RequestID(middleware.GetReqID(r.Context())),
				logger.Method(r.Method),
				logger.Path(r.URL.Path),
				logger.RemoteAddr(r.RemoteAddr),
			)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				slog.InfoContext(r.Context(), "http_request_end",
					logger.RequestID(middleware.GetReqID(r.Context())),
					logger.Method(r.Method),
					logger.Path(r.URL.Path),
					logger.RemoteAddr(r.RemoteAddr),
					logger.UserAgent(r.UserAgent()),
					logger.StatusCode(ww.Status()),
					logger.Duration(time.Since(start).Milliseconds()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// WikiMiddleware resolves the current wiki for the request and adds it to the
// context. The {wiki} route parameter wins over the X-Wiki header; with
// neither present the request runs against the main wiki. Wiki IDs compare
// case-insensitively, so the resolved ID is lowercased once here.
func (h *Handler) WikiMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wikiID := chi.URLParam(r, "wiki")
		if wikiID == "" {
			wikiID = r.Header.Get("X-Wiki")
		}
		if wikiID == "" {
			wikiID = h.registry.MainWiki()
		}
		wikiID = strings.ToLower(wikiID)

		if _, err := h.registry.Descriptor(r.Context(), wikiID); err != nil {
			respondError(w, http.StatusNotFound, "unknown wiki")
			return
		}

		ctx := context.WithValue(r.Context(), wikiIDKey, wikiID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AuthMiddleware resolves the request principal through the wiki's configured
// authenticator and adds it to the context. An unauthenticated request still
// proceeds, as the guest principal; access decisions downstream handle guests.
// Bad explicit credentials are rejected outright.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wikiID := GetWiki(r.Context())

		a, err := h.selector.ForWiki(r.Context(), wikiID)
		if err != nil {
			slog.ErrorContext(r.Context(), "no authenticator for wiki",
				logger.Wiki(wikiID), logger.Error(err))
			respondError(w, http.StatusInternalServerError, "authentication unavailable")
			return
		}

		principal, err := a.CheckAuth(w, r, wikiID)
		if err != nil {
			if a.Kind() == authn.KindBasic {
				w.Header().Set("WWW-Authenticate", `Basic realm="wikiforge"`)
			}
			respondError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}

		ctx := context.WithValue(r.Context(), principalKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireUser rejects guest requests. Placed after AuthMiddleware on routes
// that only make sense for a signed-in principal.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetPrincipal(r.Context()).IsGuest() {
			respondError(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CSRFMiddleware protects against Cross-Site Request Forgery for
// state-changing requests. We enforce a custom header 'X-CSRF-Token': a
// cross-origin form post cannot set custom headers, so presence of the header
// proves a scripted same-origin request.
func CSRFMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions || r.Method == http.MethodTrace {
			next.ServeHTTP(w, r)
			return
		}

		csrfToken := r.Header.Get("X-CSRF-Token")
		if csrfToken == "" {
			slog.WarnContext(r.Context(), "missing CSRF token header", "method", r.Method, "path", r.URL.Path)
			respondError(w, http.StatusForbidden, "CSRF protection: X-CSRF-Token header is required for state-changing operations")
			return
		}

		next.ServeHTTP(w, r)
	})
}
