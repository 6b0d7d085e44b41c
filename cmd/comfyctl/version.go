package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/comfyctl"
	"github.com/aretw0/comfyctl/internal/presentation/tui"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of comfyctl",
	// version needs no configuration.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		tui.NewStatus(os.Stdout).Banner(comfyctl.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
