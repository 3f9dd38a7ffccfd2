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
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wikiforge/wikiforge/internal/audit"
	"github.com/wikiforge/wikiforge/internal/authn"
	"github.com/wikiforge/wikiforge/internal/cookie"
	"github.com/wikiforge/wikiforge/internal/group"
	"github.com/wikiforge/wikiforge/internal/observability/logger"
	"github.com/wikiforge/wikiforge/internal/rights"
	"github.com/wikiforge/wikiforge/internal/token"
	"github.com/wikiforge/wikiforge/internal/wiki"
)

// Handler holds HTTP handlers and dependencies
type Handler struct {
	authnService *authn.Service
	selector     *authn.Selector
	cookies      *cookie.Manager
	tokens       *token.Store
	rights       *rights.Evaluator
	registry     *wiki.Registry
	groups       *group.Resolver
	auditLogger  audit.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	authnService *authn.Service,
	selector *authn.Selector,
	cookies *cookie.Manager,
	tokens *token.Store,
	evaluator *rights.Evaluator,
	registry *wiki.Registry,
	groups *group.Resolver,
	auditLogger audit.Logger,
) *Handler {
	if auditLogger == nil {
		auditLogger = audit.NopLogger{}
	}
	return &Handler{
		authnService: authnService,
		selector:     selector,
		cookies:      cookies,
		tokens:       tokens,
		rights:       evaluator,
		registry:     registry,
		groups:       groups,
		auditLogger:  auditLogger,
	}
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check
	r.Get("/health", h.HealthCheck)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Session (cookie) authentication, against the main wiki or the
		// wiki named by the X-Wiki header. The cookie session is ambient
		// browser state, so every state-changing route here is CSRF-gated,
		// the login submit included.
		r.Group(func(r chi.Router) {
			r.Use(h.WikiMiddleware)
			r.Use(CSRFMiddleware)

			r.Post("/auth/login", h.Login)
			r.Post("/auth/logout", h.Logout)

			r.With(h.AuthMiddleware).Get("/auth/me", h.GetCurrentUser)
		})

		// Token RPC authentication, for remote clients that cannot hold
		// cookies. No ambient credentials, so no CSRF gate.
		r.Route("/rpc", func(r chi.Router) {
			r.Use(h.WikiMiddleware)

			r.Post("/login", h.TokenLogin)
			r.Post("/verify", h.TokenVerify)
			r.Post("/logout", h.TokenLogout)
		})

		// Per-wiki access decisions.
		r.Route("/wikis/{wiki}", func(r chi.Router) {
			r.Use(h.WikiMiddleware)
			r.Use(h.AuthMiddleware)

			r.Get("/access", h.CheckAccessLevel)
			r.Post("/check", h.CheckDocumentAction)

			r.Group(func(r chi.Router) {
				r.Use(RequireUser)
				r.Use(CSRFMiddleware)
				r.Post("/groups/invalidate", h.InvalidateGroupCache)
			})
		})
	})

	return r
}

// HealthCheck returns the health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "wikiforge",
	})
}

// LoginRequest represents login credentials
type LoginRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

// Login authenticates a principal against the current wiki and, for the form
// mechanism, issues the persistent login cookies.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	wikiID := GetWiki(r.Context())

	principal, err := h.authnService.Authenticate(r.Context(), req.Username, req.Password, wikiID)
	switch {
	case errors.Is(err, authn.ErrNoUsername), errors.Is(err, authn.ErrNoPassword):
		respondError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, authn.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	case err != nil:
		slog.ErrorContext(r.Context(), "login failed",
			logger.Wiki(wikiID), logger.Error(err))
		respondError(w, http.StatusInternalServerError, "authentication unavailable")
		return
	}

	// Only the form mechanism carries a cookie session; basic and trusted
	// header clients re-authenticate every request.
	a, err := h.selector.ForWiki(r.Context(), wikiID)
	if err == nil && a.Kind() == authn.KindForm {
		if err := h.cookies.Remember(w, r, principal.Full(), req.Password, req.RememberMe); err != nil {
			slog.ErrorContext(r.Context(), "issuing login cookies failed",
				logger.Wiki(wikiID), logger.Principal(principal.Full()), logger.Error(err))
			respondError(w, http.StatusInternalServerError, "login session unavailable")
			return
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"principal": principal.Full(),
		"wiki":      wikiID,
	})
}

// Logout clears the persistent login cookies.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.cookies.Forget(w, r)
	respondJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// GetCurrentUser reports the principal the request resolved to.
func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	principal := GetPrincipal(r.Context())
	respondJSON(w, http.StatusOK, map[string]any{
		"principal": principal.Full(),
		"wiki":      GetWiki(r.Context()),
		"guest":     principal.IsGuest(),
	})
}

// TokenLoginRequest represents remote client credentials
type TokenLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenLogin authenticates a remote client and issues an access token bound
// to the client address.
func (h *Handler) TokenLogin(w http.ResponseWriter, r *http.Request) {
	var req TokenLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	wikiID := GetWiki(r.Context())

	principal, err := h.authnService.Authenticate(r.Context(), req.Username, req.Password, wikiID)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	tok := h.tokens.Issue(r.Context(), principal, cookie.ClientIP(r))
	respondJSON(w, http.StatusOK, map[string]string{
		"token":     tok,
		"principal": principal.Full(),
	})
}

// TokenRequest carries a previously issued token
type TokenRequest struct {
	Token string `json:"token"`
}

// TokenVerify resolves a token to its principal. The token must be presented
// from the address it was issued to.
func (h *Handler) TokenVerify(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	principal, err := h.tokens.Check(r.Context(), req.Token, cookie.ClientIP(r))
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"principal": principal.Full()})
}

// TokenLogout revokes a token.
func (h *Handler) TokenLogout(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !h.tokens.Revoke(r.Context(), req.Token, cookie.ClientIP(r)) {
		respondError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

// CheckAccessLevel answers whether a principal holds an access level on a
// document. The principal query parameter lets wiki tooling ask about other
// users; absent, the question is about the request's own principal.
func (h *Handler) CheckAccessLevel(w http.ResponseWriter, r *http.Request) {
	wikiID := GetWiki(r.Context())
	q := r.URL.Query()

	level := rights.Level(q.Get("level"))
	if !rights.ValidLevel(level) {
		respondError(w, http.StatusBadRequest, "unknown access level")
		return
	}
	document := q.Get("document")
	if document == "" {
		respondError(w, http.StatusBadRequest, "document is required")
		return
	}

	principalName := q.Get("principal")
	if principalName == "" {
		principalName = GetPrincipal(r.Context()).Full()
	}

	allowed := h.rights.HasAccessLevel(r.Context(), level, principalName, document, wikiID)
	respondJSON(w, http.StatusOK, map[string]any{
		"allowed":   allowed,
		"level":     string(level),
		"principal": principalName,
		"document":  document,
	})
}

// CheckActionRequest names a UI action against a document
type CheckActionRequest struct {
	Action   string `json:"action"`
	Document string `json:"document"`
}

// CheckDocumentAction maps a UI action to its access level and evaluates it
// for the request's principal.
func (h *Handler) CheckDocumentAction(w http.ResponseWriter, r *http.Request) {
	var req CheckActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Action == "" || req.Document == "" {
		respondError(w, http.StatusBadRequest, "action and document are required")
		return
	}

	principal := GetPrincipal(r.Context())
	allowed, level := h.rights.CheckAccess(r.Context(), req.Action, principal.Full(), req.Document, GetWiki(r.Context()))
	respondJSON(w, http.StatusOK, map[string]any{
		"allowed":   allowed,
		"action":    req.Action,
		"level":     string(level),
		"principal": principal.Full(),
		"document":  req.Document,
	})
}

// InvalidateGroupCache drops the cached group memberships and the cached
// authenticator of the current wiki. Wiki administrators only.
func (h *Handler) InvalidateGroupCache(w http.ResponseWriter, r *http.Request) {
	wikiID := GetWiki(r.Context())
	principal := GetPrincipal(r.Context())

	if !h.rights.HasWikiAdminRights(r.Context(), principal.Full(), wikiID) {
		h.auditLogger.Log(r.Context(), audit.Event{
			Type:      audit.TypeAccessDenied,
			WikiID:    wikiID,
			ActorID:   principal.Full(),
			Resource:  "group_cache",
			IPAddress: cookie.ClientIP(r),
		})
		respondError(w, http.StatusForbidden, "wiki administration rights required")
		return
	}

	if err := h.groups.InvalidateWiki(r.Context(), wikiID); err != nil {
		slog.ErrorContext(r.Context(), "group cache invalidation failed",
			logger.Wiki(wikiID), logger.Error(err))
		respondError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.selector.Invalidate(wikiID)

	respondJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
