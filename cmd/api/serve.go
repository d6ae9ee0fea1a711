package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"stealthcompany.com/medicapi/internal/analytics"
	"stealthcompany.com/medicapi/internal/api"
	"stealthcompany.com/medicapi/internal/auth"
	"stealthcompany.com/medicapi/internal/config"
	"stealthcompany.com/medicapi/internal/couchbase"
	"stealthcompany.com/medicapi/internal/login"
	"stealthcompany.com/medicapi/internal/metrics"
	"stealthcompany.com/medicapi/internal/proxy"
	"stealthcompany.com/medicapi/internal/records"
)

const (
	shutdownTimeout       = 30 * time.Second
	systemMetricsInterval = 15 * time.Second
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig("medicapi")
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg)
		},
	}
}

func runServer(ctx context.Context, cfg *config.Config) error {
	if cfg.CouchbaseURL == "" {
		return fmt.Errorf("COUCHBASE_URL is required to serve")
	}

	storeClient, err := newStoreClient(cfg)
	if err != nil {
		return err
	}

	cb, err := couchbase.NewClient(couchbase.Options{
		URL:                    cfg.CouchbaseURL,
		Username:               cfg.CouchbaseUsername,
		Password:               cfg.CouchbasePassword,
		Bucket:                 cfg.CouchbaseBucket,
		AuditCollection:        cfg.AuditCollection,
		UserSettingsCollection: cfg.UserSettingsCollection,
	})
	if err != nil {
		return fmt.Errorf("failed to create couchbase client: %w", err)
	}
	defer func() {
		if err := cb.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close couchbase connection")
		}
	}()

	authService := auth.NewService(cfg.SessionSecret, cfg.Permissions, cb.UserSettings(),
		auth.WithCredentialChecker(storeClient),
		auth.WithSessionVerifier(storeClient))

	pathPrefix := "/" + cfg.StoreDB + "/"
	storeProxy := proxy.NewStoreProxy(storeClient.Target(), pathPrefix, login.AppPrefix(cfg.StoreDB, cfg.StoreDDoc)+"/", nil)

	server := api.NewServer(api.Options{
		DB:                 cfg.StoreDB,
		DDoc:               cfg.StoreDDoc,
		Version:            version,
		SessionTTL:         cfg.SessionTTL,
		SecureCookies:      !cfg.IsDev(),
		UnallocatedEnabled: cfg.DistrictAdminsAccessUnallocated,
	}, api.Dependencies{
		Auth:    authService,
		Reports: analytics.NewEngine(storeClient, cfg.AnalyticsSettings()),
		Records: records.NewService(storeClient, storeClient.AppPath()),
		Store:   storeClient,
		Proxy:   storeProxy,
		Audit:   proxy.NewAuditProxy(authService, cb.AuditStore(), storeProxy),
		Guard:   proxy.NewReplicationGuard(cfg.StoreDDoc),
		Metrics: metrics.Handler(),
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	metrics.StartSystemMetrics(gctx, systemMetricsInterval)

	g.Go(func() error {
		log.Info().
			Str("port", cfg.APIPort).
			Str("store", storeClient.Target().String()).
			Msg("Server starting")

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		log.Info().Msg("Server exited")
		return nil
	})

	return g.Wait()
}
