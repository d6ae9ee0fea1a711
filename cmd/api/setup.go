package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"stealthcompany.com/medicapi/internal/config"
	"stealthcompany.com/medicapi/internal/metrics"
	"stealthcompany.com/medicapi/internal/store"
	"stealthcompany.com/medicapi/pkg/zerolog_config"
)

// loadConfig loads .env files and the configuration, then starts the logger
func loadConfig(appName string) (*config.Config, error) {
	config.LoadDotEnv()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	zerolog_config.SetAppPrefix(appName)
	if err := zerolog_config.StartupWithEnv(cfg.ElasticsearchURL, cfg.ElasticsearchIndex, cfg.LogLevel); err != nil {
		return nil, err
	}

	metrics.Configure(metrics.Options{
		Business: cfg.EnableBusinessMetrics,
		System:   cfg.EnableSystemMetrics,
	})

	log.Info().
		Str("env", cfg.Env).
		Str("store_db", cfg.StoreDB).
		Str("store_ddoc", cfg.StoreDDoc).
		Msg("Configuration loaded")
	return cfg, nil
}

func newStoreClient(cfg *config.Config) (*store.Client, error) {
	return store.NewClient(store.Settings{
		URL:      cfg.StoreURL,
		DB:       cfg.StoreDB,
		DDoc:     cfg.StoreDDoc,
		Username: cfg.StoreUsername,
		Password: cfg.StorePassword,
		Timeout:  cfg.StoreTimeout,
	})
}
