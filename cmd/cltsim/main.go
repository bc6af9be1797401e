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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container
	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/cltsim/internal/adapter/driven/people"
	"github.com/ericfisherdev/cltsim/internal/adapter/driven/transport"
	v8 "github.com/ericfisherdev/cltsim/internal/adapter/driven/v8"
	httphandler "github.com/ericfisherdev/cltsim/internal/adapter/driving/http"
	"github.com/ericfisherdev/cltsim/internal/application"
	"github.com/ericfisherdev/cltsim/internal/config"
	"github.com/ericfisherdev/cltsim/internal/platform/metrics"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on missing required env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	logger.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"v8_base_url", cfg.V8BaseURL,
		"people_base_url", cfg.PeopleBaseURL,
		"poll_interval", cfg.PollInterval,
		"poll_attempts", cfg.PollAttempts,
		"http_timeout", cfg.HTTPTimeout,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Metrics registry.
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// 4. Wire driven adapters over the shared outbound transport.
	httpClient := transport.NewClient(cfg.HTTPTimeout, logger)

	authenticator := v8.NewAuthenticator(httpClient, v8.Credentials{
		TokenURL: cfg.V8AuthURL,
		ClientID: cfg.V8ClientID,
		Audience: cfg.V8BaseURL,
		Username: cfg.V8Username,
		Password: cfg.V8Password,
	})
	platform := v8.NewClient(httpClient, cfg.V8BaseURL)
	lookup := people.NewClient(httpClient, cfg.PeopleBaseURL, cfg.PeopleToken)

	// 5. Application services.
	tokens := application.NewTokenCache(authenticator, m, logger)
	registrar := application.NewConsentRegistrar(platform, tokens, logger)
	poller := application.NewMarginPoller(platform, tokens, cfg.PollInterval, cfg.PollAttempts, m, logger)
	negotiator := application.NewInstallmentNegotiator(platform, tokens, m, logger)
	simulations := application.NewSimulationService(lookup, platform, tokens, registrar, poller, negotiator, m, logger)

	// 6. HTTP server. A simulation may wait out the whole polling budget, so
	// the write timeout is derived from it.
	handler := httphandler.NewServeMux(httphandler.NewHandler(simulations, m.Handler(), logger), logger)
	writeTimeout := cfg.PollInterval*time.Duration(cfg.PollAttempts) + time.Minute

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server starting", "addr", cfg.ListenAddr, "write_timeout", writeTimeout)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// 7. Wait for shutdown signal (or a server failure), then drain.
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
