package main

import (
	"github.com/spf13/cobra"

	"github.com/aretw0/comfyctl/internal/cli"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Export the workflow graph visualization",
	Long: `Reads a workflow and outputs a Mermaid diagram (graph LR) of its nodes and
links. Nodes changed by --set overrides and the node an --image would bind
to are highlighted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		workflow, _ := cmd.Flags().GetString("workflow")
		sets, _ := cmd.Flags().GetStringArray("set")
		asset, _ := cmd.Flags().GetBool("image")

		return cli.Graph(cmd.Context(), cli.GraphOptions{
			Workflow: workflow,
			Sets:     sets,
			Asset:    asset,
		}, streams())
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)

	graphCmd.Flags().StringP("workflow", "w", "", "workflow file (.json, .yaml)")
	graphCmd.Flags().StringArray("set", nil, "parameter override to highlight (repeatable)")
	graphCmd.Flags().Bool("image", false, "highlight the node an uploaded image would be bound to")
}
