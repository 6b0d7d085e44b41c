package main

import (
	"github.com/spf13/cobra"

	"github.com/aretw0/comfyctl/internal/cli"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List jobs recorded in the ledger",
	Long:  `Prints every job recorded in a persistent ledger (see --ledger), oldest first.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.Jobs(cmd.Context(), cfg, streams())
	},
}

func init() {
	rootCmd.AddCommand(jobsCmd)
}
