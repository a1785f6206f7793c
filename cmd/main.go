package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"abhyasika/internal/auth"
	"abhyasika/internal/cache"
	"abhyasika/internal/config"
	"abhyasika/internal/handlers"
	"abhyasika/internal/identity"
	"abhyasika/internal/logger"
	"abhyasika/internal/metrics"
	"abhyasika/internal/remote"
	"abhyasika/internal/repositories"
	"abhyasika/internal/services"
)

func main() {
	// A missing .env is fine; the environment and YAML still apply.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.Logging)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	localCache, closeCache, err := cache.Open(cfg.Cache)
	if err != nil {
		zl.Fatal("failed to open local cache", zap.String("backend", cfg.Cache.Backend), zap.Error(err))
	}
	defer func() { _ = closeCache() }()

	ctx := context.Background()
	var (
		store       remote.Store
		credentials identity.CredentialStore
	)
	if cfg.Database.DSN != "" {
		db, err := remote.Open(cfg.Database)
		if err != nil {
			zl.Fatal("failed to connect database", zap.Error(err))
		}
		gs := remote.NewGormStore(db)
		if err := gs.Migrate(ctx); err != nil {
			zl.Fatal("failed to migrate document store", zap.Error(err))
		}
		if err := identity.Migrate(ctx, db); err != nil {
			zl.Fatal("failed to migrate identities", zap.Error(err))
		}
		store, credentials = gs, identity.NewGormCredentialStore(db)
	} else {
		zl.Warn("no database configured, remote store is in-memory")
		store, credentials = remote.NewMemory(), identity.NewMemoryCredentialStore()
	}

	idp := identity.NewService(credentials, identity.Options{
		Enabled:           cfg.Auth.PasswordSignInEnabled,
		BcryptCost:        cfg.Auth.BcryptCost,
		MinPasswordLength: cfg.Auth.MinPasswordLength,
		Logger:            zl.Named("identity"),
	})

	loc, err := time.LoadLocation(cfg.Sync.Timezone)
	if err != nil {
		zl.Fatal("unknown timezone", zap.String("timezone", cfg.Sync.Timezone), zap.Error(err))
	}

	repos := repositories.New(localCache, store, zl.Named("repositories"), m)
	library := services.NewLibraryService(repos, zl.Named("library"), nil)

	var strategies []services.LoginStrategy
	if cfg.SuperAdmin.Email != "" {
		strategies = append(strategies, services.SuperAdminStrategy(cfg.SuperAdmin))
	}
	if cfg.Demo.Email != "" {
		strategies = append(strategies, services.DemoStrategy(cfg.Demo))
	}

	sessions := services.NewSessionService(services.SessionServiceConfig{
		Repos:      repos,
		Store:      store,
		Provider:   idp,
		Tokens:     auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		Library:    library,
		Strategies: strategies,
		Logger:     zl.Named("sessions"),
		Metrics:    m,
	})

	if cfg.Logging.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), handlers.RequestLogger(zl.Named("http"), m))

	handlers.RegisterRoutes(router, handlers.Deps{
		Library:       library,
		Sessions:      sessions,
		Accounts:      services.NewAccountService(repos, store, idp, zl.Named("accounts")),
		Notifications: services.NewNotificationService(repos, store, cfg.Sync.BroadcastBatchSize, zl.Named("notifications"), m, nil),
		Attendance:    services.NewAttendanceService(repos, loc, cfg.Sync.ScanCooldown, zl.Named("attendance"), nil),
		Verifier:      idp,
		MetricsPage:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Logger:        zl.Named("http"),
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		zl.Info("starting server", zap.String("addr", cfg.Server.Addr), zap.String("cache", cfg.Cache.Backend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	zl.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("graceful shutdown failed", zap.Error(err))
	}
	// Let in-flight remote writes land before the cache closes.
	repos.Propagator.Wait()
}
