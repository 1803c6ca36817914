package airdropd

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"refdrop/internal/passphrase"
	"refdrop/config"
	"refdrop/crypto"
	"refdrop/observability/logging"
	telemetry "refdrop/observability/otel"
	"refdrop/storage"
)

// Version is stamped at build time.
var Version = "dev"

// Main initialises and runs the airdrop daemon.
func Main() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/airdropd/config.yaml", "path to airdropd configuration")
	flag.Parse()

	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	env := strings.TrimSpace(os.Getenv("REFDROP_ENV"))
	logger := logging.New(logging.Options{
		Service:    "airdropd",
		Env:        env,
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})

	insecure := true
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	otlpEndpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName:    "airdropd",
		ServiceVersion: Version,
		Environment:    env,
		Endpoint:       otlpEndpoint,
		Insecure:       insecure,
		Headers:        telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Metrics:        otlpEndpoint != "",
		Traces:         otlpEndpoint != "",
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	params, err := config.Load(cfg.ParamsPath)
	if err != nil {
		return fmt.Errorf("load params: %w", err)
	}

	master, err := loadMasterKey(cfg.Signer, passphrase.NewSource(cfg.Signer.PassphraseEnv, "signer keystore").Get, logger)
	if err != nil {
		return fmt.Errorf("load signer: %w", err)
	}
	derived, err := crypto.NewDerivedResolver(master, cfg.Signer.ResolveLatency.Duration)
	if err != nil {
		return err
	}

	db, err := storage.Open(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("close storage", slog.Any("error", err))
		}
	}()

	engine, err := buildEngine(params, cfg, derivedAddresses{resolver: derived}, db, logger)
	if err != nil {
		return err
	}

	server := NewServer(engine, NewAuthenticator(cfg.Auth, logger), NewRateLimiter(cfg.RateLimit), logger)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() {
		logger.Info("airdropd listening", slog.String("address", cfg.ListenAddress), slog.String("storage", cfg.Storage.Backend))
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-stopCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
	case err := <-errs:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	}
	return saveFinal(engine, db)
}
