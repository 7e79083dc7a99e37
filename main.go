package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/personakit/persona-engine/pkg/audit"
	"github.com/personakit/persona-engine/pkg/auth"
	"github.com/personakit/persona-engine/pkg/config"
	"github.com/personakit/persona-engine/pkg/database"
	"github.com/personakit/persona-engine/pkg/handlers"
	"github.com/personakit/persona-engine/pkg/middleware"
	"github.com/personakit/persona-engine/pkg/models"
	"github.com/personakit/persona-engine/pkg/privacy"
	"github.com/personakit/persona-engine/pkg/repositories"
	"github.com/personakit/persona-engine/pkg/retry"
	"github.com/personakit/persona-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Log startup configuration
	log.Printf("Configuration loaded:")
	log.Printf("  Environment: %s", cfg.Env)
	log.Printf("  Base URL: %s", cfg.BaseURL)
	log.Printf("  Auth verification: %v", cfg.Auth.EnableVerification)
	log.Printf("  Database: %s@%s:%d/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)
	log.Printf("  Redis: %s:%d", cfg.Redis.Host, cfg.Redis.Port)
	log.Printf("  Single-user mode: %v", cfg.Privacy.SingleUser)

	logger := newLogger(cfg.Env)
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	// Run migrations over a plain database/sql connection; the pgx pool is
	// for request traffic only.
	migrateDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal("Failed to open migration connection", zap.Error(err))
	}
	if err := retry.Do(ctx, nil, func() error {
		return database.RunMigrations(migrateDB, cfg.Database.MigrationsPath, logger)
	}); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	_ = migrateDB.Close()

	// The database and cache may come up after us; retry with backoff
	// before giving up.
	db, err := retry.DoWithResult(ctx, nil, func() (*database.DB, error) {
		return database.NewConnection(ctx, &database.Config{
			URL:            cfg.Database.ConnectionString(),
			MaxConnections: cfg.Database.MaxConnections,
		})
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := retry.DoWithResult(ctx, nil, func() (*redis.Client, error) {
		return database.NewRedisClient(&cfg.Redis)
	})
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	if redisClient == nil {
		logger.Info("Filtered-view cache disabled (no Redis host configured)")
	}

	ruleSet, err := privacy.LoadRules(cfg.Privacy.RulesPath, logger)
	if err != nil {
		// A broken rule file must not take liveness down with it, but no
		// filtered content is served until it is fixed.
		logger.Error("Failed to load privacy rules, refusing to serve personal content", zap.Error(err))
		serveDegraded(cfg, logger)
		return
	}
	ruleStore := privacy.NewStore(ruleSet)
	logger.Info("Privacy rules loaded", zap.Int("rules", ruleSet.Len()))
	go reloadRulesOnSIGHUP(cfg.Privacy.RulesPath, ruleStore, logger)

	validator, err := auth.NewJWKSClient(&auth.JWKSConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSURL:            cfg.Auth.JWKSURL,
	})
	if err != nil {
		logger.Fatal("Failed to create JWKS client", zap.Error(err))
	}
	var sessions *auth.SessionStore
	if cfg.Auth.SessionKey != "" {
		sessions = auth.NewSessionStore(cfg.Auth.SessionKey, cfg.Env != "local")
	}
	authService := auth.NewAuthService(validator, sessions, logger)
	authMiddleware := auth.NewMiddleware(authService, logger)

	entryRepo := repositories.NewEntryRepository()
	userRepo := repositories.NewUserRepository(db)
	auditRepo := repositories.NewAuditRepository(db)
	runRepo := repositories.NewImportRunRepository(db)

	securityAuditor := audit.NewSecurityAuditor(logger)
	auditService := services.NewAuditService(auditRepo, logger)

	nsCfg := services.NamespaceConfig{SingleUser: cfg.Privacy.SingleUser}
	if cfg.Privacy.SingleUser {
		sole, err := userRepo.Sole(ctx)
		if err != nil {
			logger.Fatal("Single-user mode needs exactly one account", zap.Error(err))
		}
		nsCfg.SoleOwner = sole.Username
		logger.Info("Single-user mode active", zap.String("owner", sole.Username))
	}
	namespaceService := services.NewNamespaceService(userRepo, auditService, securityAuditor, nsCfg, logger)

	viewCache := services.NewViewCache(redisClient, logger)
	entryService := services.NewEntryService(entryRepo, ruleStore, viewCache, auditService, securityAuditor,
		cfg.Privacy.UnlistedInAdminListings, logger)
	importService := services.NewImportService(entryRepo, runRepo, auditService, securityAuditor, viewCache,
		cfg.Import.SourceDir, logger)

	resolver := middleware.NewNamespaceResolver(namespaceService, db, logger)
	importScope := func(next http.HandlerFunc) http.HandlerFunc {
		return resolver.WriteScopeFor(models.AuditActionImport, next)
	}
	queryScope := func(next http.HandlerFunc) http.HandlerFunc {
		return resolver.WriteScopeFor(models.AuditActionResolve, next)
	}

	mux := http.NewServeMux()

	// Register handlers
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewEntriesHandler(entryService, logger).RegisterRoutes(mux, authMiddleware, resolver.ReadScope, resolver.WriteScope)
	handlers.NewImportsHandler(importService, logger).RegisterRoutes(mux, authMiddleware, importScope, queryScope)
	handlers.NewAuditHandler(auditService, logger).RegisterRoutes(mux, authMiddleware)

	handler := middleware.RequestLogger(logger)(mux)

	log.Printf("Starting persona-engine on %s:%s (version: %s)", cfg.BindAddr, cfg.Port, cfg.Version)
	if err := http.ListenAndServe(cfg.BindAddr+":"+cfg.Port, handler); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// serveDegraded keeps health checks answering while every data endpoint
// reports the configuration error. Fix the rule file and restart.
func serveDegraded(cfg *config.Config, logger *zap.Logger) {
	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		if err := handlers.ErrorResponse(w, http.StatusServiceUnavailable,
			"configuration_error", "Privacy rules failed to load; personal content is unavailable"); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
	})

	log.Printf("Starting persona-engine DEGRADED on %s:%s (version: %s)", cfg.BindAddr, cfg.Port, cfg.Version)
	if err := http.ListenAndServe(cfg.BindAddr+":"+cfg.Port, middleware.RequestLogger(logger)(mux)); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func newLogger(env string) *zap.Logger {
	if env == "local" {
		logger, err := zap.NewDevelopment()
		if err != nil {
			log.Fatalf("Failed to create logger: %v", err)
		}
		return logger
	}
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	return logger
}

// reloadRulesOnSIGHUP swaps in a freshly loaded rule set on SIGHUP. A load
// failure keeps the current snapshot; filtering never runs ruleless.
func reloadRulesOnSIGHUP(rulesPath string, store *privacy.Store, logger *zap.Logger) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP)
	for range ch {
		rs, err := privacy.LoadRules(rulesPath, logger)
		if err != nil {
			logger.Error("Rule reload failed, keeping current rules", zap.Error(err))
			continue
		}
		store.Reload(rs)
		logger.Info("Privacy rules reloaded", zap.Int("rules", rs.Len()))
	}
}
