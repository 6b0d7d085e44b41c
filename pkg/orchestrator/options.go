package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/aretw0/comfyctl/pkg/domain"
	"github.com/aretw0/comfyctl/pkg/graph"
	"github.com/aretw0/comfyctl/pkg/observability"
	"github.com/aretw0/comfyctl/pkg/ports"
)

// Defaults for a run.
const (
	DefaultPollInterval = 2 * time.Second
	DefaultOutputDir    = "output"
)

// AssetResolver turns a local asset into the updates that reference it.
type AssetResolver interface {
	Resolve(ctx context.Context, doc *graph.Document, localPath string) ([]domain.ParameterUpdate, error)
}

// Loader reads a workflow source into a document.
type Loader func(path string) (*graph.Document, error)

// Clock abstracts time for the poll loop.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Option defines a functional option for configuring the Orchestrator.
type Option func(*Orchestrator)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithPollInterval sets the wait between history checks.
func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithMaxWait bounds the time spent polling. Zero waits until the job
// finishes or the context is done.
func WithMaxWait(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.maxWait = d
		}
	}
}

// WithLedger records every submitted job and its outcome.
func WithLedger(ledger ports.JobLedger) Option {
	return func(o *Orchestrator) {
		o.ledger = ledger
	}
}

// WithMetrics configures the Prometheus collectors.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithHooks sets the lifecycle callbacks.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(o *Orchestrator) {
		o.hooks = hooks
	}
}

// WithResolver replaces the default asset resolver.
func WithResolver(r AssetResolver) Option {
	return func(o *Orchestrator) {
		o.resolver = r
	}
}

// WithLoader replaces graph.Load as the workflow reader.
func WithLoader(l Loader) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.loader = l
		}
	}
}

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c Clock) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.clock = c
		}
	}
}
