package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/comfyctl"
	"github.com/aretw0/comfyctl/internal/config"
	"github.com/aretw0/comfyctl/internal/presentation/tui"
	"github.com/aretw0/comfyctl/pkg/domain"
	"github.com/aretw0/comfyctl/pkg/graph"
	"github.com/aretw0/comfyctl/pkg/orchestrator"
)

// RunOptions contains all the configuration for the run command.
type RunOptions struct {
	Workflow  string
	Asset     string
	Sets      []string
	OutputDir string
	DryRun    bool
	TestOnly  bool
}

// Run handles the run command: a connectivity test, a dry run or a full job.
func Run(ctx context.Context, cfg config.Config, opts RunOptions, s Streams) error {
	if opts.TestOnly {
		return Ping(ctx, cfg, s)
	}
	if opts.Workflow == "" {
		return errors.New("a workflow is required (--workflow)")
	}
	updates, err := graph.ParseUpdates(opts.Sets)
	if err != nil {
		return err
	}
	if opts.DryRun {
		return dryRun(ctx, cfg, opts, updates, s)
	}

	env, err := newEnvironment(cfg, s)
	if err != nil {
		return err
	}
	defer env.Close()

	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = cfg.OutputDir
	}

	session, err := comfyctl.Open(cfg.ClientOptions(env.logger, env.metrics),
		orchestrator.WithPollInterval(cfg.PollInterval),
		orchestrator.WithMaxWait(cfg.MaxWait),
		orchestrator.WithLedger(env.ledger),
		orchestrator.WithHooks(runHooks(env)),
	)
	if err != nil {
		return err
	}
	defer session.Close()

	env.status.Info("submitting %s to %s", opts.Workflow, session.Client().BaseURL())
	result, err := session.Run(ctx, orchestrator.Request{
		Workflow:  opts.Workflow,
		AssetPath: opts.Asset,
		Updates:   updates,
		OutputDir: outputDir,
	})
	if result != nil {
		for _, w := range result.Report.Warnings() {
			env.status.Warn("update skipped: %s", w)
		}
	}
	if err != nil {
		if domain.IsCancelled(err) && result != nil && result.JobID != "" {
			env.status.Warn("interrupted; job %s may still run on the server", result.JobID)
		}
		return err
	}

	env.status.Success("job %s finished with %d file(s)", result.JobID, len(result.Files))
	for _, path := range result.Files {
		fmt.Fprintln(s.Out, path)
	}
	return nil
}

func runHooks(env *environment) domain.LifecycleHooks {
	logger := env.logger
	return domain.LifecycleHooks{
		OnStateChange: func(_ context.Context, e *domain.StateEvent) {
			logger.Debug("run state", "from", e.From, "to", e.To, "job_id", e.JobID)
		},
		OnDownload: func(_ context.Context, f domain.OutputFile, path string) {
			env.status.Success("saved %s (%s)", path, f.Category)
		},
	}
}

// dryRun prints the patched workflow without contacting the server.
func dryRun(ctx context.Context, cfg config.Config, opts RunOptions, updates []domain.ParameterUpdate, s Streams) error {
	status := tui.NewStatus(s.Err)
	o := orchestrator.New(nil)
	doc, report, err := o.Prepare(ctx, orchestrator.Request{Workflow: opts.Workflow, Updates: updates})
	if err != nil {
		return err
	}
	for _, w := range report.Warnings() {
		status.Warn("update skipped: %s", w)
	}
	if opts.Asset != "" {
		status.Info("dry run: %s would be uploaded and bound to the first LoadImage node", opts.Asset)
	}
	out, err := tui.FormatJSON(doc, s.TTY)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(s.Out, out)
	return err
}

// Ping checks that the configured server answers.
func Ping(ctx context.Context, cfg config.Config, s Streams) error {
	env, err := newEnvironment(cfg, s)
	if err != nil {
		return err
	}
	defer env.Close()

	session, err := comfyctl.Open(cfg.ClientOptions(env.logger, env.metrics))
	if err != nil {
		return err
	}
	defer session.Close()

	if !session.Ping(ctx) {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrCancelled, err)
		}
		return fmt.Errorf("%w: %s", domain.ErrConnectivity, session.Client().BaseURL())
	}
	env.status.Success("server %s is reachable", session.Client().BaseURL())
	return nil
}
