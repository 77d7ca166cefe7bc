package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev" // Set at build time using -ldflags

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "gateway <command>",
		Short:        "Tool-call gateway for the agency's third-party APIs",
		SilenceUsage: true,
		Version:      version,
	}
	root.AddCommand(newServeCmd(), newToolsCmd(), newHealthCmd())
	return root
}
