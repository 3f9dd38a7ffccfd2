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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wikiforge/wikiforge/internal/audit"
	"github.com/wikiforge/wikiforge/internal/authn"
	"github.com/wikiforge/wikiforge/internal/config"
	"github.com/wikiforge/wikiforge/internal/cookie"
	"github.com/wikiforge/wikiforge/internal/group"
	"github.com/wikiforge/wikiforge/internal/observability/logger"
	"github.com/wikiforge/wikiforge/internal/observability/metrics"
	"github.com/wikiforge/wikiforge/internal/observability/tracing"
	"github.com/wikiforge/wikiforge/internal/rights"
	"github.com/wikiforge/wikiforge/internal/store/memory"
	"github.com/wikiforge/wikiforge/internal/store/postgres"
	"github.com/wikiforge/wikiforge/internal/token"
	transportHTTP "github.com/wikiforge/wikiforge/internal/transport/http"
	"github.com/wikiforge/wikiforge/internal/wiki"
)

// docStore is the storage surface the access core needs: the read queries
// plus user provisioning for the trusted-header authenticator.
type docStore interface {
	wiki.Store
	CreateUser(ctx context.Context, wikiID, name string) (bool, error)
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})
	slog.Info("starting wikiforge access core")

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrate(cfg); err != nil {
			fmt.Printf("Migration failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Initialize context
	ctx := context.Background()

	// Initialize tracer
	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   1.0,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
	} else {
		defer tracer.Shutdown(ctx)
	}

	// Initialize meter
	_, err = metrics.New(ctx, metrics.Config{
		Enabled: cfg.Observability.OTELEnabled,
	}, cfg.Observability.ServiceName)
	if err != nil {
		slog.Error("failed to initialize meter", logger.Error(err))
	}

	// Initialize the document store. Without a database the core runs on
	// the in-memory store, which is only useful for development.
	var (
		store    docStore
		loadDesc func(ctx context.Context, wikiID string) (*wiki.Descriptor, error)
	)
	if cfg.Database.Host != "" {
		db, err := postgres.New(ctx, postgres.Config{
			Host:            cfg.Database.Host,
			Port:            cfg.Database.Port,
			User:            cfg.Database.User,
			Password:        cfg.Database.Password,
			Database:        cfg.Database.Database,
			SSLMode:         cfg.Database.SSLMode,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime.D(),
		})
		if err != nil {
			slog.Error("failed to connect to database", logger.Error(err))
			os.Exit(1)
		}
		defer db.Close()
		slog.Info("connected to database")

		pgStore := postgres.NewStore(db)
		store = pgStore
		loadDesc = pgStore.LoadDescriptor
	} else {
		slog.Warn("no database configured, using the in-memory document store")
		store = memory.New()
	}

	// Wiki registry: statically configured descriptors win over database
	// rows; everything else resolves to the writable default.
	registry := wiki.NewRegistry(cfg.Wikis.Main, loadDesc)
	mainListed := false
	for _, d := range cfg.Wikis.Descriptors {
		registry.Put(&wiki.Descriptor{
			ID:               d.ID,
			Owner:            d.Owner,
			ReadOnly:         d.ReadOnly,
			AllGroupImplicit: cfg.Rights.AllGroupImplicit,
		})
		if registry.IsMainWiki(d.ID) {
			mainListed = true
		}
	}
	if !mainListed {
		registry.Put(&wiki.Descriptor{
			ID:               cfg.Wikis.Main,
			AllGroupImplicit: cfg.Rights.AllGroupImplicit,
		})
	}

	// Shared group membership cache
	var groupCache group.Cache
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			slog.Error("failed to connect to redis", logger.Error(err))
			os.Exit(1)
		}
		groupCache = group.NewRedisCache(client, cfg.Redis.CacheTTL.D())
		slog.Info("connected to redis group cache")
	}

	groups := group.NewResolver(store, registry, groupCache)
	evaluator := rights.NewEvaluator(store, registry, groups, cfg.Rights.MaxRecursiveSpaceChecks)

	// Initialize helpers
	auditLogger := audit.NewSlogLogger()
	passwordHasher := authn.NewPasswordHasher(
		cfg.Auth.Argon2Memory,
		cfg.Auth.Argon2Iterations,
		cfg.Auth.Argon2Parallelism,
		cfg.Auth.Argon2SaltLength,
		cfg.Auth.Argon2KeyLength,
	)

	authnService := authn.NewService(store, registry, passwordHasher, auditLogger, cfg.Auth.SuperAdminPassword)

	cookies, err := cookie.NewManager(cookie.Config{
		Prefix:        cfg.Cookie.Prefix,
		Path:          cfg.Cookie.Path,
		Domains:       cfg.Cookie.Domains,
		Lifetime:      cfg.Cookie.Lifetime.D(),
		Protection:    cookie.Protection(cfg.Cookie.Protection),
		UseIP:         cfg.Cookie.UseIP,
		EncryptionKey: []byte(cfg.Cookie.EncryptionKey),
		ValidationKey: []byte(cfg.Cookie.ValidationKey),
	}, auditLogger)
	if err != nil {
		slog.Error("failed to initialize cookie manager", logger.Error(err))
		os.Exit(1)
	}

	// One authenticator per wiki, built on demand. All wikis currently
	// share the configured mechanism; the per-wiki factory is the seam for
	// descriptor-driven overrides.
	selector := authn.NewSelector(func(ctx context.Context, wikiID string) (*authn.Authenticator, error) {
		switch cfg.Auth.Mechanism {
		case "basic":
			return authn.NewBasicAuthenticator(authnService), nil
		case "trusted_header":
			return authn.NewTrustedHeaderAuthenticator(authn.TrustedHeaderConfig{
				UserHeader:     cfg.Auth.TrustedUserHeader,
				GroupHeader:    cfg.Auth.TrustedGroupHeader,
				GroupSeparator: cfg.Auth.TrustedGroupSep,
				CreateUsers:    cfg.Auth.TrustedCreateUsers,
			}, store, auditLogger), nil
		default:
			return authn.NewFormAuthenticator(authnService, cookies), nil
		}
	})

	tokens := token.NewStore(auditLogger)

	// Rate Limiter
	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)

	// Initialize HTTP handler
	handler := transportHTTP.NewHandler(
		authnService,
		selector,
		cookies,
		tokens,
		evaluator,
		registry,
		groups,
		auditLogger,
	)

	// Create router
	router := transportHTTP.NewRouter(handler, rateLimiter)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.D(),
		WriteTimeout: cfg.Server.WriteTimeout.D(),
		IdleTimeout:  cfg.Server.IdleTimeout.D(),
	}

	// Start server
	go func() {
		slog.Info("starting http server", logger.Component("server"), logger.Operation("listen"))
		slog.Info(fmt.Sprintf("listening on %s", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", logger.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", logger.Error(err))
	}

	slog.Info("server stopped")
}

func runMigrate(cfg *config.Config) error {
	ctx := context.Background()
	db, err := postgres.New(ctx, postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime.D(),
	})
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Println("Applying initial schema...")
	if err := db.Migrate(ctx, postgres.InitialSchema); err != nil {
		return err
	}
	fmt.Println("Migration successful.")
	return nil
}
