// Package main is the bioprotocol service: the article protocol API, the article update
// listener and the management commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set at build time with -ldflags.
var (
	Version   = "1.0.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

const name = "bioprotocol"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           name,
		Short:         "Synchronizes article protocols between eLife and Bio-protocol",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", Version, GitCommit, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(listenCmd())
	rootCmd.AddCommand(reloadArticleCmd())
	rootCmd.AddCommand(resendArticleCmd())
	rootCmd.AddCommand(hashKeyCmd())

	return rootCmd
}
