// Package main is the entrypoint for the trainboard API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kiranshivaraju/trainboard/internal/api"
	"github.com/kiranshivaraju/trainboard/internal/api/handler"
	mw "github.com/kiranshivaraju/trainboard/internal/api/middleware"
	"github.com/kiranshivaraju/trainboard/internal/auth"
	"github.com/kiranshivaraju/trainboard/internal/cache"
	"github.com/kiranshivaraju/trainboard/internal/config"
	"github.com/kiranshivaraju/trainboard/internal/inference/provider"
	"github.com/kiranshivaraju/trainboard/internal/store"
	"github.com/kiranshivaraju/trainboard/internal/training"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := newRootCmd().Execute(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var issueFor string

	cmd := &cobra.Command{
		Use:           "trainboard-server",
		Short:         "Serve the trainboard API",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if issueFor != "" {
				return issueToken(cmd.OutOrStdout(), issueFor)
			}
			return run()
		},
	}
	cmd.Flags().StringVar(&issueFor, "issue-token", "", "print a bearer token for the given user id and exit")
	return cmd
}

// issueToken signs a token with the configured secret. Operators use it to
// bootstrap a user before any API key exists.
func issueToken(w io.Writer, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New("issue-token: user id must not be blank")
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	token, err := auth.IssueToken(cfg.Auth.JWTSecret, userID, cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	_, err = fmt.Fprintln(w, token)
	return err
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "inference_provider", cfg.Inference.Provider, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create inference provider
	inferenceProvider, err := provider.New(cfg.Inference)
	if err != nil {
		return fmt.Errorf("create inference provider: %w", err)
	}
	slog.Info("inference provider initialized", "provider", inferenceProvider.Name())

	// 6. Create store and training service
	pgStore := store.NewPostgresStore(pool)

	svc := training.NewService(inferenceProvider, pgStore, redisCache, training.Options{
		Timeout:       cfg.Inference.Timeout,
		TrainingDelay: cfg.Inference.TrainingDelay,
	})
	defer svc.Close()

	resumed, err := svc.Resume(ctx)
	if err != nil {
		return fmt.Errorf("resume training: %w", err)
	}
	if resumed > 0 {
		slog.Info("resumed unfinished training runs", "count", resumed)
	}

	// 7. Build router with dependencies
	router := api.NewRouter(newDependencies(cfg, inferenceProvider.Name(), pgStore, redisCache, svc))

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: cfg.Inference.Timeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// newDependencies wires every handler against the given backends.
func newDependencies(cfg *config.Config, providerName string, st store.Store, ca cache.Cache, svc handler.Lifecycle) api.Dependencies {
	return api.Dependencies{
		Auth:        mw.NewAuth(st, cfg.Auth.JWTSecret),
		RateLimit:   mw.NewRateLimit(ca, cfg.Server.RequestsPerMinute),
		CORSOrigins: cfg.Server.CORSOrigins,

		HealthHandler: handler.NewHealthHandler(providerName, map[string]handler.Pinger{
			"database": st,
			"cache":    ca,
		}),
		StatsHandler: handler.NewStatsHandler(st, ca, cfg.Redis.StatsTTL),

		ListDatasets:  handler.NewListDatasetsHandler(st),
		UploadDataset: handler.NewUploadDatasetHandler(svc),

		ListModels:      handler.NewListModelsHandler(st),
		TrainModel:      handler.NewTrainHandler(svc),
		TestModel:       handler.NewTestModelHandler(svc),
		Predict:         handler.NewPredictHandler(svc),
		ListDeployments: handler.NewListDeploymentsHandler(st),
		DeployModel:     handler.NewDeployHandler(svc),

		CreateKeyHandler: handler.NewCreateKeyHandler(st),
		ListKeysHandler:  handler.NewListKeysHandler(st),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(st),
	}
}
