package main

import (
	"github.com/spf13/cobra"

	"github.com/aretw0/comfyctl/internal/cli"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the ComfyUI server is reachable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.Ping(cmd.Context(), cfg, streams())
	},
}

func init() {
	rootCmd.AddCommand(pingCmd)
}
