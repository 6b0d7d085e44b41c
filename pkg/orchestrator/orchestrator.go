package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/comfyctl/pkg/assets"
	"github.com/aretw0/comfyctl/pkg/domain"
	"github.com/aretw0/comfyctl/pkg/graph"
	"github.com/aretw0/comfyctl/pkg/observability"
	"github.com/aretw0/comfyctl/pkg/ports"
)

// Request describes one job to run.
type Request struct {
	// Workflow is the path of the graph document. It is ignored when Document is set.
	Workflow string
	// Document is an already loaded graph. It is cloned, never modified.
	Document *graph.Document
	// AssetPath is an optional local file to upload and bind.
	AssetPath string
	// Updates are applied after the asset binding, later entries winning.
	Updates []domain.ParameterUpdate
	// OutputDir receives the downloaded files. Defaults to DefaultOutputDir.
	OutputDir string
}

// Result is the outcome of a run. It is returned alongside errors too, with
// whatever was known when the run stopped.
type Result struct {
	JobID    string
	ClientID string
	// Primary is the first file downloaded, in node-then-category order.
	Primary string
	// Files lists every downloaded file.
	Files  []string
	Record *domain.HistoryRecord
	Report graph.Report
	State  domain.RunState
}

// Orchestrator runs jobs through a transport, one at a time.
type Orchestrator struct {
	transport    ports.Transport
	logger       *slog.Logger
	pollInterval time.Duration
	maxWait      time.Duration
	ledger       ports.JobLedger
	metrics      *observability.Metrics
	hooks        domain.LifecycleHooks
	resolver     AssetResolver
	loader       Loader
	clock        Clock

	mu sync.Mutex
}

// New creates an Orchestrator over transport.
func New(transport ports.Transport, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		transport:    transport,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		pollInterval: DefaultPollInterval,
		loader:       graph.Load,
		clock:        realClock{},
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.resolver == nil {
		o.resolver = assets.NewResolver(transport, assets.WithLogger(o.logger))
	}
	return o
}

// RunOnce executes req and closes transport on every exit path.
func RunOnce(ctx context.Context, transport ports.Transport, req Request, opts ...Option) (result *Result, err error) {
	o := New(transport, opts...)
	defer func() {
		if cerr := transport.Close(); cerr != nil {
			o.logger.Warn("failed to close transport", "err", cerr)
		}
	}()
	return o.Execute(ctx, req)
}

// Prepare loads and patches the workflow without touching the network. Asset
// binding is skipped since it needs an upload.
func (o *Orchestrator) Prepare(_ context.Context, req Request) (*graph.Document, graph.Report, error) {
	doc, err := o.load(req)
	if err != nil {
		return nil, graph.Report{}, err
	}
	patched, report := graph.Patch(doc, req.Updates)
	o.logSkipped(report)
	return patched, report, nil
}

// Execute runs req to a terminal state. Errors wrap the domain sentinels;
// a done context yields domain.ErrCancelled.
func (o *Orchestrator) Execute(ctx context.Context, req Request) (*Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	r := &execution{
		o:      o,
		req:    req,
		result: &Result{State: domain.StateIdle, ClientID: o.transport.SessionID()},
	}
	err := r.run(ctx)
	o.metrics.ObserveRun(string(r.result.State))
	return r.result, err
}

func (o *Orchestrator) load(req Request) (*graph.Document, error) {
	if req.Document != nil {
		return req.Document.Clone(), nil
	}
	if req.Workflow == "" {
		return nil, fmt.Errorf("%w: no workflow source given", domain.ErrNotFound)
	}
	return o.loader(req.Workflow)
}

func (o *Orchestrator) logSkipped(report graph.Report) {
	for _, s := range report.Skipped {
		o.logger.Warn("parameter update skipped",
			"path", s.Update.Path(),
			"node_id", s.Update.NodeID,
			"reason", s.Reason,
		)
	}
}

// execution carries the state of one Execute call.
type execution struct {
	o      *Orchestrator
	req    Request
	result *Result
	entry  *domain.JobEntry
}

func (r *execution) run(ctx context.Context) error {
	o := r.o
	logger := o.logger.With("client_id", r.result.ClientID)

	if !o.transport.CheckConnection(ctx) {
		return r.fail(ctx, fmt.Errorf("%w: probe failed", domain.ErrConnectivity))
	}
	r.enter(ctx, domain.StateConnected, nil)

	doc, err := o.load(r.req)
	if err != nil {
		return r.fail(ctx, err)
	}
	r.enter(ctx, domain.StateLoaded, nil)
	logger.Debug("workflow loaded", "workflow", r.req.Workflow, "nodes", doc.Len())

	var updates []domain.ParameterUpdate
	if r.req.AssetPath != "" {
		bound, err := o.resolver.Resolve(ctx, doc, r.req.AssetPath)
		if err != nil {
			return r.fail(ctx, err)
		}
		updates = append(updates, bound...)
	}
	r.enter(ctx, domain.StateAssetResolved, nil)

	updates = append(updates, r.req.Updates...)
	patched, report := graph.Patch(doc, updates)
	r.result.Report = report
	o.logSkipped(report)
	r.enter(ctx, domain.StatePatched, nil)
	logger.Debug("parameters applied", "applied", len(report.Applied), "skipped", len(report.Skipped))

	sub, err := o.transport.Submit(ctx, patched)
	if err != nil {
		return r.fail(ctx, err)
	}
	r.result.JobID = sub.JobID
	if sub.ClientID != "" {
		r.result.ClientID = sub.ClientID
	}
	r.enter(ctx, domain.StateSubmitted, nil)
	r.record(ctx, domain.EntrySubmitted, "")

	r.enter(ctx, domain.StatePolling, nil)
	record, err := r.poll(ctx)
	if err != nil {
		return r.fail(ctx, err)
	}
	r.result.Record = record
	if record.Status.Failed() {
		o.logger.Warn("server reported an execution error",
			"job_id", sub.JobID,
			"status", record.Status.Status,
		)
	}

	if err := r.collect(ctx, record); err != nil {
		return r.fail(ctx, err)
	}
	r.enter(ctx, domain.StateCompleted, nil)

	note := ""
	if record.Status.Failed() {
		note = "server status: " + record.Status.Status
	}
	r.record(ctx, domain.EntryCompleted, note)
	o.logger.Info("job completed",
		"job_id", sub.JobID,
		"primary", r.result.Primary,
		"files", len(r.result.Files),
	)
	return nil
}

// fail moves the run to failed, or to cancelled when ctx is done, and returns
// the error the caller sees.
func (r *execution) fail(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil || domain.IsCancelled(err) {
		if ctxErr == nil {
			ctxErr = context.Canceled
		}
		if !errors.Is(err, domain.ErrCancelled) {
			err = fmt.Errorf("%w: %w", domain.ErrCancelled, ctxErr)
		}
		r.enter(ctx, domain.StateCancelled, err)
		r.record(ctx, domain.EntryInterrupted, err.Error())
		r.o.logger.Warn("run interrupted", "job_id", r.result.JobID, "state", r.result.State)
		return err
	}

	r.enter(ctx, domain.StateFailed, err)
	r.record(ctx, domain.EntryFailed, err.Error())
	r.o.logger.Error("run failed", "job_id", r.result.JobID, "err", err)
	return err
}

func (r *execution) enter(ctx context.Context, to domain.RunState, err error) {
	from := r.result.State
	r.result.State = to
	r.o.logger.Debug("run state changed", "from", from, "to", to, "job_id", r.result.JobID)
	if r.o.hooks.OnStateChange != nil {
		r.o.hooks.OnStateChange(ctx, &domain.StateEvent{
			Timestamp: r.o.clock.Now(),
			From:      from,
			To:        to,
			JobID:     r.result.JobID,
			Err:       err,
		})
	}
}

// record writes the ledger entry of the submitted job. Nothing is recorded
// before a job id exists. Ledger writes outlive cancellation of ctx.
func (r *execution) record(ctx context.Context, status domain.EntryStatus, note string) {
	if r.o.ledger == nil || r.result.JobID == "" {
		return
	}
	now := r.o.clock.Now()
	if r.entry == nil {
		r.entry = &domain.JobEntry{
			JobID:       r.result.JobID,
			ClientID:    r.result.ClientID,
			Workflow:    r.req.Workflow,
			SubmittedAt: now,
		}
	}
	r.entry.Status = status
	r.entry.Error = note
	r.entry.PrimaryOutput = r.result.Primary
	r.entry.Outputs = append([]string(nil), r.result.Files...)
	r.entry.UpdatedAt = now

	if err := r.o.ledger.Record(context.WithoutCancel(ctx), *r.entry); err != nil {
		r.o.logger.Warn("failed to record job", "job_id", r.entry.JobID, "status", status, "err", err)
	}
}
