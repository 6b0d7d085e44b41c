package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/comfyctl/internal/presentation/mermaid"
	"github.com/aretw0/comfyctl/internal/presentation/tui"
	"github.com/aretw0/comfyctl/pkg/assets"
	"github.com/aretw0/comfyctl/pkg/graph"
	"github.com/aretw0/comfyctl/pkg/orchestrator"
)

// GraphOptions configures the graph command.
type GraphOptions struct {
	Workflow string
	Sets     []string
	// Asset highlights the node an uploaded asset would be bound to.
	Asset bool
}

// Graph prints the workflow as a Mermaid flowchart, marking patched nodes.
func Graph(ctx context.Context, opts GraphOptions, s Streams) error {
	if opts.Workflow == "" {
		return errors.New("a workflow is required (--workflow)")
	}
	updates, err := graph.ParseUpdates(opts.Sets)
	if err != nil {
		return err
	}
	doc, report, err := orchestrator.New(nil).Prepare(ctx, orchestrator.Request{Workflow: opts.Workflow, Updates: updates})
	if err != nil {
		return err
	}
	for _, w := range report.Warnings() {
		tui.NewStatus(s.Err).Warn("update skipped: %s", w)
	}

	overlay := &mermaid.Overlay{}
	for _, u := range report.Applied {
		overlay.Patched = append(overlay.Patched, u.NodeID)
	}
	if opts.Asset {
		if id, _, ok := doc.FirstOfKind(assets.DefaultKind); ok {
			overlay.Asset = id
		}
	}
	_, err = fmt.Fprint(s.Out, mermaid.Generate(doc, overlay))
	return err
}
