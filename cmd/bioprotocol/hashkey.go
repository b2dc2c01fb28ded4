package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bioprotocol-io/bioprotocol/internal/api/middleware"
)

func hashKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash-key [api-key]",
		Short: "Hash a partner API key for BIOPROTOCOL_AUTH_KEY_HASHES",
		Long: `Print the bcrypt hash of a partner API key as a "name:hash" entry for
BIOPROTOCOL_AUTH_KEY_HASHES. Without an argument a new key is generated and printed too.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			partner, err := cmd.Flags().GetString("partner")
			if err != nil {
				return err
			}

			generated := len(args) == 0

			var apiKey string
			if generated {
				apiKey, err = middleware.GenerateAPIKey()
				if err != nil {
					return err
				}
			} else {
				apiKey = args[0]
			}

			hash, err := middleware.HashAPIKey(apiKey)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			if generated {
				if _, err := fmt.Fprintf(out, "key:   %s\n", apiKey); err != nil {
					return err
				}
			}

			_, err = fmt.Fprintf(out, "entry: %s:%s\n", partner, hash)

			return err
		},
	}

	cmd.Flags().StringP("partner", "p", "bio-protocol", "partner name recorded with the hash")

	return cmd
}
