package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/janisto/profile-api/internal/http/v1/routes"
	"github.com/janisto/profile-api/internal/platform/config"
	"github.com/janisto/profile-api/internal/platform/firebase"
	applog "github.com/janisto/profile-api/internal/platform/logging"
	appmiddleware "github.com/janisto/profile-api/internal/platform/middleware"
	platformpg "github.com/janisto/profile-api/internal/platform/postgres"
	platformredis "github.com/janisto/profile-api/internal/platform/redis"
	"github.com/janisto/profile-api/internal/platform/respond"
	profilesvc "github.com/janisto/profile-api/internal/service/profile"
	firestorestore "github.com/janisto/profile-api/internal/store/firestore"
	"github.com/janisto/profile-api/internal/store/jsonfile"
	pgstore "github.com/janisto/profile-api/internal/store/postgres"
	redisstore "github.com/janisto/profile-api/internal/store/redis"
)

// Version can be overridden at build time: -ldflags "-X main.Version=1.2.3"
var Version = "dev"

const maxBodyBytes = 1 << 20 // 1 MB

func main() {
	defer func() {
		if err := applog.Sync(); err != nil {
			applog.LogError(context.Background(), "logger sync error", err)
		}
	}()
	if err := applog.Err(); err != nil {
		applog.LogError(context.Background(), "logger init error", err)
	}

	if err := run(); err != nil {
		applog.LogError(context.Background(), "server failed", err)
		_ = applog.Sync()
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := applog.SetLevel(cfg.LogLevel); err != nil {
		return err
	}
	applog.SetProjectID(cfg.Firebase.ProjectID)

	ctx := context.Background()
	store, closeStore, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(profilesvc.NewService(store), cfg.CORSOrigins),
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    64 << 10, // 64 KB
	}

	listenErr := make(chan error, 1)
	go func() {
		applog.LogInfo(ctx, "server listening",
			zap.String("addr", srv.Addr), zap.String("storage", cfg.Storage), zap.String("version", Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-listenErr:
		return fmt.Errorf("listen on %s: %w", srv.Addr, err)
	case <-stop:
		applog.LogInfo(ctx, "shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		applog.LogError(shutdownCtx, "server shutdown error", err)
	}
	applog.LogInfo(ctx, "server exited")
	return nil
}

// newRouter builds the chi router with the full middleware stack and every
// API route.
func newRouter(svc profilesvc.Service, corsOrigins []string) http.Handler {
	respond.Install()

	router := chi.NewRouter()
	router.NotFound(respond.NotFoundHandler())
	router.MethodNotAllowed(respond.MethodNotAllowedHandler())

	// Base middleware stack
	router.Use(
		appmiddleware.Security(routes.DocsPath),
		appmiddleware.Vary(),
		appmiddleware.CORS(corsOrigins...),
		appmiddleware.RequestID(),
		// RealIP trusts X-Real-IP and X-Forwarded-For. Only deploy behind a
		// proxy that overwrites them.
		chimiddleware.RealIP,
		chimiddleware.RequestSize(maxBodyBytes),
		applog.RequestLogger(),
		applog.AccessLogger(),
		respond.Recoverer(),
	)

	api := humachi.New(router, routes.Config("Profile API", Version))
	routes.Register(api, svc)
	return router
}

// newStore opens the backend selected by PROFILE_STORAGE. The returned
// func releases its connections.
func newStore(ctx context.Context, cfg *config.Config) (profilesvc.Store, func(), error) {
	noop := func() {}

	switch cfg.Storage {
	case config.StorageMemory:
		return profilesvc.NewMemoryStore(), noop, nil

	case config.StorageFile:
		s, err := jsonfile.Open(cfg.DataFile)
		if err != nil {
			return nil, nil, fmt.Errorf("open profile file: %w", err)
		}
		applog.LogInfo(ctx, "using file storage", zap.String("path", s.Path()))
		return s, noop, nil

	case config.StoragePostgres:
		db, err := platformpg.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		s, err := pgstore.Open(ctx, db, pgstore.DefaultTable)
		if err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("prepare profiles table: %w", err)
		}
		return s, func() { _ = db.Close() }, nil

	case config.StorageFirestore:
		client, err := firebase.NewFirestore(ctx, cfg.Firebase)
		if err != nil {
			return nil, nil, err
		}
		return firestorestore.New(client), func() { _ = client.Close() }, nil

	case config.StorageRedis:
		client, err := platformredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return redisstore.New(client), client.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
	}
}
