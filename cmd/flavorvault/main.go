package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/flavortown-bot/flavorvault/internal/adapter/driven/flavortown"
	"github.com/flavortown-bot/flavorvault/internal/adapter/driven/hackatime"
	"github.com/flavortown-bot/flavorvault/internal/adapter/driven/rest"
	sqliteadapter "github.com/flavortown-bot/flavorvault/internal/adapter/driven/sqlite"
	httphandler "github.com/flavortown-bot/flavorvault/internal/adapter/driving/http"
	"github.com/flavortown-bot/flavorvault/internal/application"
	"github.com/flavortown-bot/flavorvault/internal/config"
	"github.com/flavortown-bot/flavorvault/internal/crypto"
	"github.com/flavortown-bot/flavorvault/internal/domain/model"
	"github.com/flavortown-bot/flavorvault/internal/domain/port/driven"
	"github.com/flavortown-bot/flavorvault/internal/session"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"session_ttl", cfg.SessionTTL,
		"kdf_iterations", cfg.KDFIterations,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on the writer connection, then fold in any rows left
	// behind by the single-service schema.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	if migrated, err := sqliteadapter.MigrateLegacy(ctx, db.Writer); err != nil {
		return err
	} else if migrated > 0 {
		slog.Info("legacy credentials migrated", "rows", migrated)
	}
	slog.Info("migrations complete")

	// 5. Wire the driven adapters.
	store := sqliteadapter.NewCredentialRepo(db)

	stats := rest.NewStats()
	restClient := rest.NewClient(rest.Options{
		MaxRetries: cfg.MaxRetries,
		Backoffs:   cfg.Backoffs,
		Timeout:    cfg.HTTPTimeout,
		Stats:      stats,
		Logger:     slog.Default(),
	})
	ftClient := flavortown.NewClient(restClient, cfg.FlavortownURL)
	htClient := hackatime.NewClient(restClient, cfg.HackatimeURL)

	// 6. Assemble the vault.
	engine := crypto.NewEngine(cfg.KDFIterations)
	sessions := session.New(cfg.SessionTTL)
	vault := application.NewVaultService(store, engine, sessions, map[model.Service]driven.KeyVerifier{
		model.ServiceFlavortown: ftClient,
		model.ServiceHackatime:  htClient,
	}, slog.Default())
	challenges := application.NewChallengeManager(vault, cfg.ChallengeTTL)

	// 7. Start the admin HTTP server.
	handler := httphandler.NewHandler(stats, vault, challenges, slog.Default())
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.NewServeMux(handler, slog.Default()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("admin server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("admin server error", "error", err)
		}
	}()

	// 8. Sweep expired challenges in the background so abandoned prompts do
	// not accumulate between admin sweeps.
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := challenges.Sweep(); removed > 0 {
					slog.Debug("expired challenges swept", "removed", removed)
				}
			}
		}
	}()

	slog.Info("flavorvault started", "listen_addr", cfg.ListenAddr)

	// 9. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 10. Graceful shutdown with a 10s drain timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("admin server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
