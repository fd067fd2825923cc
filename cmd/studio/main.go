// Package main runs the persona studio server.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/easeaico/persona-studio/internal/catalog"
	"github.com/easeaico/persona-studio/internal/config"
	"github.com/easeaico/persona-studio/internal/embedding"
	"github.com/easeaico/persona-studio/internal/media"
	"github.com/easeaico/persona-studio/internal/models"
	"github.com/easeaico/persona-studio/internal/pipeline"
	"github.com/easeaico/persona-studio/internal/server"
	"github.com/easeaico/persona-studio/internal/storage"
	"github.com/easeaico/persona-studio/internal/studio"
	"github.com/easeaico/persona-studio/internal/vault"
)

func main() {
	cfg := config.Load()
	cleanup := config.SetupLogger(cfg)
	defer cleanup()

	cat, err := catalog.Load()
	if err != nil {
		slog.Error("failed to load catalog", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	gateway, secretVault, closeStore, err := openStorage(ctx, cfg)
	cancel()
	if err != nil {
		slog.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	var embedder embedding.Embedder
	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	genaiEmbedder, err := embedding.NewEmbedder(ctx, cfg.GoogleAPIKey, cfg.EmbeddingModel)
	cancel()
	if err != nil {
		slog.Warn("similarity search disabled", "error", err)
	} else {
		embedder = genaiEmbedder
	}

	mediaStore, err := media.NewDiskStore(cfg.MediaDir, cfg.MediaBaseURL)
	if err != nil {
		slog.Error("failed to prepare media directory", "error", err)
		os.Exit(1)
	}

	registry := models.NewRegistry(cfg.AmbientCredentials(), cfg.AspectRatio)
	pipe := pipeline.New(cat, mediaStore, func(label string) {
		slog.Info("generation progress", "stage", label)
	})

	var secrets studio.CredentialSource
	var secretStore server.SecretStore
	if secretVault != nil {
		secrets = secretVault
		secretStore = secretVault
	}

	service := studio.New(gateway, registry, secrets, cat, pipe, embedder)
	srv := server.New(service, cat, secretStore, cfg.HistoryLimit)

	mux := http.NewServeMux()
	srv.Routes(mux)
	mux.Handle("GET /media/", http.StripPrefix("/media/", http.FileServer(http.Dir(cfg.MediaDir))))

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 300 * time.Second, // generation runs are slow
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("starting persona studio", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// openStorage picks the backend: Postgres with pgvector and the credential
// vault when DATABASE_URL is set, an embedded sqlite file otherwise.
func openStorage(ctx context.Context, cfg config.Config) (studio.Gateway, *vault.Vault, func(), error) {
	if cfg.DatabaseURL != "" {
		store, err := storage.NewStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		var secretVault *vault.Vault
		if cfg.VaultMasterKey != "" {
			secretVault, err = vault.New(store.DB(), cfg.VaultMasterKey)
			if err != nil {
				store.Close()
				return nil, nil, nil, err
			}
		} else {
			slog.Warn("VAULT_MASTER_KEY not set, per-user credentials disabled")
		}
		return store, secretVault, store.Close, nil
	}

	slog.Info("DATABASE_URL not set, using embedded sqlite", "path", cfg.LocalDBPath)
	local, err := storage.NewLocal(cfg.LocalDBPath)
	if err != nil {
		return nil, nil, nil, err
	}
	return local, nil, func() { local.Close() }, nil
}
