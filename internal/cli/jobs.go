package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/comfyctl/internal/config"
	"github.com/aretw0/comfyctl/internal/presentation/tui"
	"github.com/aretw0/comfyctl/pkg/domain"
)

// Jobs prints the ledger entries, oldest first.
func Jobs(ctx context.Context, cfg config.Config, s Streams) error {
	if cfg.Ledger == "" || cfg.Ledger == "memory" {
		return errors.New("jobs needs a persistent ledger (--ledger redis://...)")
	}
	ledger, closer, err := openLedger(cfg.Ledger)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer()
	}

	entries, err := ledger.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list jobs: %w", err)
	}
	if len(entries) == 0 {
		tui.NewStatus(s.Err).Info("no jobs recorded")
		return nil
	}

	table := jobsTable(entries)
	if s.TTY {
		if rendered, err := tui.NewRenderer()(table); err == nil {
			table = rendered
		}
	}
	_, err = fmt.Fprint(s.Out, table)
	return err
}

// jobsTable renders entries as a markdown table.
func jobsTable(entries []domain.JobEntry) string {
	var sb strings.Builder
	sb.WriteString("| Job | Status | Submitted | Workflow | Output |\n")
	sb.WriteString("|---|---|---|---|---|\n")
	for _, e := range entries {
		output := e.PrimaryOutput
		if output == "" {
			output = e.Error
		}
		fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s |\n",
			cell(e.JobID),
			cell(string(e.Status)),
			e.SubmittedAt.Local().Format(time.DateTime),
			cell(e.Workflow),
			cell(output),
		)
	}
	return sb.String()
}

func cell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
