package payoutd

import (
	"context"
	"errors"
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

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"refdrop/observability/logging"
	telemetry "refdrop/observability/otel"
	api "refdrop/sdk/airdrop"
	"refdrop/services/payoutd/wallet"
)

// Main initialises and runs the payout daemon.
func Main() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/payoutd/config.yaml", "path to payoutd configuration")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("REFDROP_ENV"))
	logger := logging.Setup("payoutd", env)
	otlpEndpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	insecure := true
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "payoutd",
		Environment: env,
		Endpoint:    otlpEndpoint,
		Insecure:    insecure,
		Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Metrics:     otlpEndpoint != "",
		Traces:      otlpEndpoint != "",
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	enforcer, err := NewPolicyEnforcer(cfg.Policy)
	if err != nil {
		return fmt.Errorf("init policies: %w", err)
	}

	journal, err := OpenJournal(cfg.Journal.DSN)
	if err != nil {
		return err
	}
	defer func() { _ = journal.Close() }()

	client, err := api.New(cfg.Airdropd.Endpoint, cfg.Airdropd.Token, api.WithHTTPClient(&http.Client{
		Timeout:   cfg.Airdropd.Timeout.Duration,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}))
	if err != nil {
		return fmt.Errorf("airdropd client: %w", err)
	}

	// Treasury wallet integration is injected externally; default to returning errors until configured.
	var hotWallet wallet.ERC20Wallet = wallet.FuncWallet{
		TransferFunc: func(context.Context, string, string, uint64) (string, error) {
			return "", errors.New("treasury wallet not configured")
		},
	}
	if cfg.Wallet.DryRun {
		logger.Warn("wallet dry run enabled, no funds will move")
		hotWallet = wallet.DryRun{}
	}

	ctx := context.Background()
	drainer, err := NewDrainer(ctx, client, journal, enforcer,
		WithWallet(hotWallet),
		WithLogger(logger),
		WithPollInterval(cfg.Wallet.PollInterval.Duration),
	)
	if err != nil {
		return err
	}
	if cfg.PauseOnStart {
		drainer.Pause()
	}

	auth, err := NewAuthenticator(cfg.Admin.BearerToken)
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           otelhttp.NewHandler(NewAdminServer(drainer, auth), "payoutd"),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	stopCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 2)
	go func() {
		logger.Info("payoutd listening", slog.String("address", cfg.ListenAddress))
		errs <- httpServer.ListenAndServe()
	}()
	go func() {
		errs <- drainer.Run(stopCtx, cfg.PollInterval.Duration)
	}()

	select {
	case <-stopCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
		return nil
	case err := <-errs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}
}
