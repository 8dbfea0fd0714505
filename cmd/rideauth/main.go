// Command rideauth is the terminal sign-in client of the rental service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	rideAuth "github.com/MrEthical07/rideAuth"
	"github.com/MrEthical07/rideAuth/internal/logging"
	"github.com/MrEthical07/rideAuth/internal/tui"
	promexport "github.com/MrEthical07/rideAuth/metrics/export/prometheus"
)

func main() {
	configPath := flag.String("config", "rideauth.toml", "path to the TOML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "rideauth: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = rideAuth.WithDeviceID(ctx, uuid.NewString())

	deps, err := wire(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close()

	builder := rideAuth.New().
		WithConfig(controllerConfig(cfg)).
		WithBackend(deps.backend).
		WithLogger(logger)
	if deps.federated != nil {
		builder = builder.WithFederatedProvider(deps.federated)
	}
	if deps.auditSink != nil {
		builder = builder.WithAuditSink(deps.auditSink)
	}

	ctrl, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build controller: %w", err)
	}
	defer ctrl.Close()

	if cfg.Metrics.Addr != "" {
		srv := serveMetrics(cfg.Metrics.Addr, ctrl, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("rideauth started",
		zap.String("backend", cfg.Backend.Kind),
		zap.Bool("federated", deps.federated != nil),
		zap.Bool("require_email_verification", cfg.RequireEmailVerification),
	)

	program := tea.NewProgram(tui.New(ctx, ctrl, logger), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run ui: %w", err)
	}
	return nil
}

func controllerConfig(cfg fileConfig) rideAuth.Config {
	out := rideAuth.DefaultConfig()
	out.RequireEmailVerification = cfg.RequireEmailVerification
	out.WebClientID = cfg.WebClientID
	if out.WebClientID == "" {
		out.WebClientID = cfg.Google.ClientID
	}
	out.Metrics.EnableLatencyHistograms = true
	out.Audit.Enabled = cfg.Audit.Enabled && cfg.Audit.Path != ""
	return out
}

func serveMetrics(addr string, ctrl *rideAuth.Controller, logger *zap.Logger) *http.Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		promexport.NewPrometheusExporter(ctrl),
		collectors.NewGoCollector(),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	return srv
}
