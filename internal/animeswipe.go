package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/animeswipe/animeswipe/internal/config"
	"github.com/animeswipe/animeswipe/internal/crypto"
	"github.com/animeswipe/animeswipe/internal/idp"
	"github.com/animeswipe/animeswipe/internal/log"
	"github.com/animeswipe/animeswipe/internal/server"
	"github.com/animeswipe/animeswipe/internal/session"
	"github.com/animeswipe/animeswipe/internal/storage"
	"github.com/animeswipe/animeswipe/internal/web"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

// App is the complete application: the API listener, the page listener and
// the storage they share
type App struct {
	config    config.Config
	apiServer *server.HTTPServer
	webServer *server.HTTPServer
	storage   storage.Storage
	cleanup   *storage.CleanupManager
}

// NewApp creates the application with all dependencies built
func NewApp(ctx context.Context, cfg config.Config) (*App, error) {
	log.LogInfoWithFields("animeswipe", "Building application", map[string]any{
		"api":     cfg.API.BaseURL,
		"web":     cfg.Web.BaseURL,
		"storage": string(cfg.Storage.Kind),
	})

	store, err := setupStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	provider, err := idp.NewProvider(cfg.Auth)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create identity provider: %w", err)
	}

	sessions, err := session.NewManager([]byte(cfg.Auth.JWTSecret), cfg.Auth.SessionDuration)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create session manager: %w", err)
	}

	apiHandler := server.NewAPIRouter(cfg, server.APIDeps{
		Auth:     server.NewAuthHandlers(provider, store, sessions, cfg.Auth, cfg.Web.BaseURL),
		Session:  server.NewSessionHandlers(store),
		Sessions: sessions,
	})
	webHandler := web.NewRouter(web.NewHandlers(cfg.Web, nil))

	return &App{
		config:    cfg,
		apiServer: server.NewHTTPServer("api", apiHandler, cfg.API.Addr),
		webServer: server.NewHTTPServer("web", webHandler, cfg.Web.Addr),
		storage:   store,
		cleanup:   storage.NewCleanupManager(store, cfg.Storage.CleanupInterval, cfg.Auth.LoginTimeout),
	}, nil
}

// Run listens on the configured addresses and serves until ctx is cancelled,
// SIGINT or SIGTERM arrives, or a listener fails.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	apiLn, err := net.Listen("tcp", a.config.API.Addr)
	if err != nil {
		_ = a.storage.Close()
		return fmt.Errorf("api listener: %w", err)
	}
	webLn, err := net.Listen("tcp", a.config.Web.Addr)
	if err != nil {
		_ = apiLn.Close()
		_ = a.storage.Close()
		return fmt.Errorf("web listener: %w", err)
	}
	return a.Serve(ctx, apiLn, webLn)
}

// Serve runs both services on existing listeners until ctx is done or one of
// them fails, then shuts everything down. The storage is closed on return.
func (a *App) Serve(ctx context.Context, apiLn, webLn net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	a.cleanup.Start(gctx)

	g.Go(func() error {
		if err := a.apiServer.Serve(apiLn); err != nil {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := a.webServer.Serve(webLn); err != nil {
			return fmt.Errorf("web server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.LogInfoWithFields("animeswipe", "Starting graceful shutdown", map[string]any{
			"reason":  context.Cause(gctx).Error(),
			"timeout": shutdownTimeout.String(),
		})

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(
			a.apiServer.Stop(shutdownCtx),
			a.webServer.Stop(shutdownCtx),
		)
	})

	err := g.Wait()
	a.cleanup.Stop()
	if cerr := a.storage.Close(); cerr != nil {
		log.LogErrorWithFields("animeswipe", "Failed to close storage", map[string]any{
			"error": cerr.Error(),
		})
	}

	if err != nil {
		log.LogErrorWithFields("animeswipe", "Application stopped with error", map[string]any{
			"error": err.Error(),
		})
		return err
	}
	log.LogInfoWithFields("animeswipe", "Application shutdown complete", nil)
	return nil
}

// setupStorage creates the configured backend. Backends that persist outside
// the process get an encryptor for provider tokens.
func setupStorage(ctx context.Context, cfg config.Config) (storage.Storage, error) {
	sc := cfg.Storage

	switch sc.Kind {
	case config.StorageKindSQLite, config.StorageKindFirestore:
		encryptor, err := crypto.NewEncryptor([]byte(cfg.Auth.EncryptionKey))
		if err != nil {
			return nil, fmt.Errorf("failed to create encryptor: %w", err)
		}
		if sc.Kind == config.StorageKindSQLite {
			log.LogInfoWithFields("storage", "Using SQLite storage", map[string]any{
				"path": sc.Path,
			})
			return storage.NewSQLiteStorage(ctx, sc.Path, encryptor)
		}
		log.LogInfoWithFields("storage", "Using Firestore storage", map[string]any{
			"project":    sc.GCPProject,
			"database":   sc.FirestoreDatabase,
			"collection": sc.FirestoreCollection,
		})
		return storage.NewFirestoreStorage(ctx, sc.GCPProject, sc.FirestoreDatabase, sc.FirestoreCollection, encryptor)
	case config.StorageKindMemory, "":
		log.LogInfoWithFields("storage", "Using in-memory storage", nil)
		return storage.NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unknown storage kind %q", sc.Kind)
	}
}
