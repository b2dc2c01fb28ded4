package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bioprotocol-io/bioprotocol/internal/listener"
)

func listenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Consume article update events and deliver protocols to the partner",
		Long: `Consume article update events from Kafka. Every "article" event downloads the article-json,
extracts its materials and methods sections and sends them to the partner.

Brokers, topic and consumer group come from BIOPROTOCOL_KAFKA_* or the queue section of the
config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runListen(ctx, newLogger())
		},
	}
}

func runListen(ctx context.Context, logger *slog.Logger) error {
	listenerConfig := listener.LoadConfig()
	if err := listenerConfig.Validate(); err != nil {
		return fmt.Errorf("invalid listener configuration: %w", err)
	}

	b, err := openBackend(logger)
	if err != nil {
		return err
	}

	defer func() {
		_ = b.Close()
	}()

	service, err := newSyncService(b, logger)
	if err != nil {
		return err
	}

	reader := listener.NewReader(listenerConfig)

	defer func() {
		if err := reader.Close(); err != nil {
			logger.Error("Failed to close Kafka reader", slog.String("error", err.Error()))
		}
	}()

	l, err := listener.New(reader, service, listenerConfig.CommitTimeout, logger)
	if err != nil {
		return err
	}

	logger.Info("Starting article update listener",
		slog.String("brokers", strings.Join(listenerConfig.Brokers, ",")),
		slog.String("topic", listenerConfig.Topic),
		slog.String("group_id", listenerConfig.GroupID),
	)

	return l.Run(ctx)
}
