package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/comfyctl/internal/cli"
	"github.com/aretw0/comfyctl/internal/config"
	"github.com/aretw0/comfyctl/internal/presentation/tui"
)

// cfg is resolved once per invocation by the root pre-run hook.
var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "comfyctl",
	Short: "comfyctl runs ComfyUI workflows from the command line",
	Long: `comfyctl submits a ComfyUI workflow to an execution server, optionally
uploading an input image and overriding node parameters, then waits for the
job and downloads every file it produced.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: resolveConfig,
}

// Execute runs the root command and reports a failure on stderr.
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		tui.NewStatus(os.Stderr).Failure("%s", cli.Describe(err))
	}
	return err
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("server", "", "ComfyUI server address (host:port or URL) [COMFY_SERVER]")
	flags.String("timeout", "", "per-request timeout, e.g. 30s or 30 [COMFY_TIMEOUT]")
	flags.Bool("insecure", false, "skip TLS certificate verification [COMFY_INSECURE]")
	flags.Bool("debug", false, "enable debug logging [COMFY_DEBUG]")
	flags.String("ledger", "", "job ledger: memory or a redis:// URL [COMFY_LEDGER]")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address [COMFY_METRICS_ADDR]")
	flags.StringSlice("env-file", nil, "read settings from these files instead of .env")
}

// resolveConfig loads .env and COMFY_* settings, then applies explicit flags.
func resolveConfig(cmd *cobra.Command, _ []string) error {
	envFiles, _ := cmd.Flags().GetStringSlice("env-file")
	loaded, err := config.Load(envFiles...)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("server") {
		loaded.Server, _ = flags.GetString("server")
	}
	if flags.Changed("timeout") {
		raw, _ := flags.GetString("timeout")
		if loaded.Timeout, err = config.ParseDuration(raw); err != nil {
			return fmt.Errorf("invalid --timeout: %w", err)
		}
	}
	if flags.Changed("insecure") {
		loaded.Insecure, _ = flags.GetBool("insecure")
	}
	if flags.Changed("debug") {
		loaded.Debug, _ = flags.GetBool("debug")
	}
	if flags.Changed("ledger") {
		loaded.Ledger, _ = flags.GetString("ledger")
	}
	if flags.Changed("metrics-addr") {
		loaded.MetricsAddr, _ = flags.GetString("metrics-addr")
	}
	if err := applyRunFlags(cmd, &loaded); err != nil {
		return err
	}

	if err := loaded.Validate(); err != nil {
		return err
	}
	cfg = loaded
	return nil
}

func streams() cli.Streams {
	return cli.Streams{Out: os.Stdout, Err: os.Stderr, TTY: tui.IsTerminal(os.Stdout)}
}
