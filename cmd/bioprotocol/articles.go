package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bioprotocol-io/bioprotocol/internal/articlesync"
	"github.com/bioprotocol-io/bioprotocol/internal/client"
	"github.com/bioprotocol-io/bioprotocol/internal/projection"
)

func reloadArticleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload-article <msid>",
		Short: "Fetch an article's protocols from the partner and store them",
		Long: `Fetch the partner's protocol rows of an article, ingest them and print the stored
protocols as served by GET /article/{msid}.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msid, err := parseMsid(args[0])
			if err != nil {
				return err
			}

			logger := newLogger()

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

			if _, err := service.ReloadArticleData(cmd.Context(), msid); err != nil {
				return err
			}

			data, err := b.projector.Query(cmd.Context(), msid)
			if errors.Is(err, projection.ErrNotFound) {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "article not found: %d\n", msid)

				return err
			}

			if err != nil {
				return err
			}

			return printJSON(cmd.OutOrStdout(), data)
		},
	}
}

func resendArticleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resend-article <msid>",
		Short: "Download an article, extract its protocols and send them to the partner",
		Long: `Run the delivery an article update event triggers and print the payload sent to the
partner. POA and empty articles are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msid, err := parseMsid(args[0])
			if err != nil {
				return err
			}

			logger := newLogger()

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

			delivery, err := service.DownloadParseDeliver(cmd.Context(), msid)
			if err != nil {
				return err
			}

			if delivery == nil {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "article %d skipped: POA or empty\n", msid)

				return err
			}

			return printJSON(cmd.OutOrStdout(), delivery.Payload)
		},
	}
}

// newSyncService wires the publisher and partner clients to the backend's ingest pipeline.
func newSyncService(b *backend, logger *slog.Logger) (*articlesync.Service, error) {
	clientConfig := client.LoadConfig()
	if err := clientConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client configuration: %w", err)
	}

	publisher := client.NewPublisher(clientConfig, client.WithLogger(logger))
	partner := client.NewPartner(clientConfig, client.WithLogger(logger))

	return articlesync.NewService(publisher, partner, b.pipeline, logger)
}

func printJSON(out io.Writer, v any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")

	return encoder.Encode(v)
}
