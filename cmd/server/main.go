// Package main is the entry point for the llm-relay server, an
// OpenAI-compatible chat completion proxy that fans requests out across
// multiple upstream providers with automatic failover.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/nghyane/llm-relay/internal/api"
	"github.com/nghyane/llm-relay/internal/config"
	"github.com/nghyane/llm-relay/internal/gateway"
	"github.com/nghyane/llm-relay/internal/logging"
	"github.com/nghyane/llm-relay/internal/quota"
	"github.com/nghyane/llm-relay/internal/ratelimit"
	"github.com/nghyane/llm-relay/internal/registry"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func init() {
	logging.SetupBaseLogger()
}

func main() {
	fmt.Printf("llm-relay Version: %s, Commit: %s, BuiltAt: %s\n", Version, Commit, BuildDate)

	var configPath string
	var port int
	flag.StringVar(&configPath, "config", "config.yaml", "path to the configuration file")
	flag.IntVar(&port, "port", 0, "listen port, overrides the configuration file")
	flag.Parse()

	// Local .env files are a development convenience; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(configPath, true)
	if err != nil {
		logging.Fatalf("load config: %v", err)
	}
	if port != 0 {
		cfg.Port = port
	}

	if err := logging.ConfigureLogOutput(cfg.LoggingToFile, cfg.LogDir); err != nil {
		logging.WithError(err).Warn("file logging unavailable, using stdout")
	}
	if cfg.Debug {
		logging.SetLevel(slog.LevelDebug)
	}

	creds := registry.EnvCredentials{}
	if available := registry.AvailableProviders(creds); len(available) == 0 {
		logging.Warn("no provider credentials configured, completion requests will fail")
	} else {
		logging.Infof("providers available: %d", len(available))
	}

	var gate quota.Gate = quota.NopGate{}
	var store *quota.Store
	if cfg.Quota.DBPath != "" {
		store, err = quota.OpenStore(cfg.Quota.DBPath, cfg.Quota.FreeLimits)
		if err != nil {
			logging.Fatalf("open usage store: %v", err)
		}
		gate = store
	}

	limiter := ratelimit.NewLimiter(cfg.RateLimitPerMinute)
	orchestrator := gateway.NewOrchestrator(creds, cfg.CloudflareAccountID,
		gateway.WithAttemptTimeout(time.Duration(cfg.RequestTimeoutSeconds)*time.Second))
	server := api.NewServer(cfg, limiter, gate, orchestrator, creds)

	watcher := config.NewWatcher(configPath, func(next *config.Config) {
		limiter.SetLimit(next.RateLimitPerMinute)
		logging.Infof("configuration reloaded, rate limit now %d/min", next.RateLimitPerMinute)
	})
	if err := watcher.Start(); err != nil {
		logging.WithError(err).Warn("config watcher failed to start, continuing without hot reload")
	} else {
		defer watcher.Stop()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Infof("received %s, shutting down", sig)
	case err := <-errCh:
		if err != nil {
			logging.WithError(err).Error("server stopped")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.WithError(err).Error("graceful shutdown failed")
	}
	if store != nil {
		if err := store.Close(); err != nil {
			logging.WithError(err).Error("closing usage store failed")
		}
	}
}
