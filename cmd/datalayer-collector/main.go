package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/csaeum/wsc-datalayer/internal/config"
	"github.com/csaeum/wsc-datalayer/internal/relay"
	"github.com/csaeum/wsc-datalayer/internal/server"
	"github.com/csaeum/wsc-datalayer/internal/track"
)

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load config
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/collector.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().Msg("Starting DataLayer collector...")

	// Forwarders
	var forwarders relay.Multi
	if cfg.Relay.Enabled {
		if cfg.Relay.URL == "" || cfg.Relay.WriteKey == "" {
			log.Fatal().Msg("Relay enabled without url or write key")
		}
		forwarders = append(forwarders, relay.NewHTTPForwarder(cfg.Relay.URL, cfg.Relay.WriteKey, !cfg.Relay.SkipSSLVerify, cfg.Debug))
		log.Info().Str("url", cfg.Relay.URL).Msg("HTTP relay enabled")
	}
	if cfg.Kafka.Enabled {
		kafkaForwarder := relay.NewKafkaForwarder(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer kafkaForwarder.Close()
		forwarders = append(forwarders, kafkaForwarder)
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("Kafka relay enabled")
	}
	var forwarder relay.Forwarder
	if len(forwarders) > 0 {
		forwarder = forwarders
	}

	enricher := relay.NewEnricher(cfg.GeoIP.DatabasePath)
	defer enricher.Close()

	// Tracking options
	opts := track.Options{
		Debug:            cfg.Debug,
		FallbackCurrency: cfg.Tracking.FallbackCurrency,
		CartEndpoint:     cfg.Tracking.CartEndpoint,
		RemoveActions:    cfg.Tracking.RemoveActions,
	}
	if cfg.Tracking.DebounceMs > 0 {
		opts.DebounceWindow = time.Duration(cfg.Tracking.DebounceMs) * time.Millisecond
	}

	registry := server.NewSessionRegistry(opts, forwarder, enricher, cfg.Tracking.SessionTTLDuration())
	handler := server.NewHandler(registry)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: server.NewRouter(handler),
	}

	go func() {
		log.Info().Int("port", cfg.Server.HTTPPort).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to serve HTTP")
		}
	}()

	// Periodic idle-session eviction
	evictCtx, stopEvict := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-evictCtx.Done():
				return
			case <-ticker.C:
				registry.EvictIdle()
			}
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	stopEvict()
	httpServer.Shutdown(context.Background())
	log.Info().Msg("Server stopped")
}
