package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aretw0/comfyctl/internal/cli"
	"github.com/aretw0/comfyctl/internal/config"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Submit a workflow and download its outputs",
	Long: `Submits a workflow file (JSON or YAML, API format) to the server, waits for
the job to finish and writes every produced file into the output directory.
Saved file paths are printed on stdout, one per line.`,
	Example: `  comfyctl run -w video.json -i input.png --set 52.inputs.steps=12
  comfyctl run -w video.json --dry-run --set 6.inputs.text="a red fox"
  comfyctl run --test-only --server 10.0.0.5:8188`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		workflow, _ := cmd.Flags().GetString("workflow")
		asset, _ := cmd.Flags().GetString("image")
		sets, _ := cmd.Flags().GetStringArray("set")
		updates, _ := cmd.Flags().GetStringArray("update")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		testOnly, _ := cmd.Flags().GetBool("test-only")

		return cli.Run(cmd.Context(), cfg, cli.RunOptions{
			Workflow:  workflow,
			Asset:     asset,
			Sets:      append(sets, updates...),
			OutputDir: cfg.OutputDir,
			DryRun:    dryRun,
			TestOnly:  testOnly,
		}, streams())
	},
}

// applyRunFlags copies run-only flags into c when cmd carries them.
func applyRunFlags(cmd *cobra.Command, c *config.Config) error {
	flags := cmd.Flags()
	if f := flags.Lookup("output"); f != nil && f.Changed {
		c.OutputDir = f.Value.String()
	}
	for name, dst := range map[string]*time.Duration{
		"poll-interval": &c.PollInterval,
		"max-wait":      &c.MaxWait,
	} {
		f := flags.Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		d, err := config.ParseDuration(f.Value.String())
		if err != nil {
			return fmt.Errorf("invalid --%s: %w", name, err)
		}
		*dst = d
	}
	return nil
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("workflow", "w", "", "workflow file (.json, .yaml)")
	runCmd.Flags().StringP("image", "i", "", "input image to upload and bind to the first LoadImage node")
	runCmd.Flags().StringArray("set", nil, "override a node parameter: node.section.field=value or node_<id>_<section>_<field>=value (repeatable)")
	runCmd.Flags().StringArray("update", nil, "alias of --set")
	runCmd.Flags().StringP("output", "o", "", "directory for downloaded files [COMFY_OUTPUT_DIR]")
	runCmd.Flags().Bool("dry-run", false, "print the patched workflow without contacting the server")
	runCmd.Flags().Bool("test-only", false, "only check that the server is reachable")
	runCmd.Flags().String("poll-interval", "", "delay between history checks [COMFY_POLL_INTERVAL]")
	runCmd.Flags().String("max-wait", "", "give up waiting after this long, 0 waits forever [COMFY_MAX_WAIT]")
	_ = runCmd.Flags().MarkHidden("update")
}
