package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bioprotocol-io/bioprotocol/internal/api"
	"github.com/bioprotocol-io/bioprotocol/internal/api/middleware"
	"github.com/bioprotocol-io/bioprotocol/internal/config"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the article protocol HTTP API",
		Long: `Start the HTTP API: /ping, /ready, /status, /metrics and /article/{msid}.

Protocols are stored in PostgreSQL when DATABASE_URL is set, in memory otherwise.
Partner API keys are required on writes when BIOPROTOCOL_AUTH_ENABLED=true.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	serverConfig := api.LoadServerConfig()
	if err := serverConfig.Validate(); err != nil {
		return fmt.Errorf("invalid server configuration: %w", err)
	}

	logger := config.NewLogger(serverConfig.LogLevel)

	logger.Info("Starting bioprotocol service",
		slog.String("service", name),
		slog.String("version", Version),
	)

	logger.Info("Loaded server configuration",
		slog.String("host", serverConfig.Host),
		slog.Int("port", serverConfig.Port),
		slog.Duration("read_timeout", serverConfig.ReadTimeout),
		slog.Duration("write_timeout", serverConfig.WriteTimeout),
		slog.Duration("shutdown_timeout", serverConfig.ShutdownTimeout),
		slog.String("log_level", serverConfig.LogLevel.String()),
		slog.String("elife_content_type", serverConfig.ElifeContentType),
	)

	verifier, err := newKeyVerifier(serverConfig, logger)
	if err != nil {
		return err
	}

	rateLimiter, err := newRateLimiter(logger)
	if err != nil {
		return err
	}

	b, err := openBackend(logger)
	if err != nil {
		return err
	}

	deps := api.Dependencies{
		Protocols:   b.projector,
		Ingester:    b.pipeline,
		Health:      b.health,
		KeyVerifier: verifier,
		Logger:      logger,
	}

	// A nil *InMemoryRateLimiter in the interface would not read as "disabled".
	if rateLimiter != nil {
		deps.RateLimiter = rateLimiter
	}

	server, err := api.NewServer(serverConfig, deps)
	if err != nil {
		_ = b.Close()

		return err
	}

	// The storage backend and the rate limiter are closed by the server on shutdown.
	if err := server.Start(); err != nil {
		_ = b.Close()

		return err
	}

	logger.Info("bioprotocol service stopped")

	return nil
}

func newKeyVerifier(cfg *api.ServerConfig, logger *slog.Logger) (*middleware.KeyVerifier, error) {
	if !cfg.AuthEnabled {
		logger.Warn("Partner authentication disabled",
			slog.String("security", "Only use in trusted networks (localhost, VPN, internal)"),
			slog.String("note", "Set BIOPROTOCOL_AUTH_ENABLED=true to require partner API keys on writes"),
		)

		return nil, nil //nolint:nilnil
	}

	keys, err := middleware.ParsePartnerKeys(cfg.AuthKeyHashes)
	if err != nil {
		return nil, fmt.Errorf("invalid partner key hashes: %w", err)
	}

	verifier, err := middleware.NewKeyVerifier(keys)
	if err != nil {
		return nil, err
	}

	logger.Info("Partner authentication enabled", slog.Int("partner_keys", len(keys)))

	return verifier, nil
}

func newRateLimiter(logger *slog.Logger) (*middleware.InMemoryRateLimiter, error) {
	rateConfig := middleware.LoadConfig()
	if err := rateConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rate limit configuration: %w", err)
	}

	if !rateConfig.Enabled {
		logger.Warn("Rate limiting disabled")

		return nil, nil //nolint:nilnil
	}

	rateLimiter := middleware.NewInMemoryRateLimiter(rateConfig)

	logger.Info("Rate limiter initialized",
		slog.Int("global_rps", rateConfig.GlobalRPS),
		slog.Int("global_burst", rateConfig.GlobalBurst),
		slog.Int("partner_rps", rateConfig.PartnerRPS),
		slog.Int("partner_burst", rateConfig.PartnerBurst),
		slog.Int("unauth_rps", rateConfig.UnAuthRPS),
		slog.Int("unauth_burst", rateConfig.UnAuthBurst),
	)

	return rateLimiter, nil
}
