package orchestrator_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/comfyctl/pkg/adapters/comfy"
	"github.com/aretw0/comfyctl/pkg/adapters/memory"
	"github.com/aretw0/comfyctl/pkg/comfytest"
	"github.com/aretw0/comfyctl/pkg/domain"
	"github.com/aretw0/comfyctl/pkg/graph"
	"github.com/aretw0/comfyctl/pkg/observability"
	"github.com/aretw0/comfyctl/pkg/orchestrator"
)

const workflowJSON = `{
  "52": {"class_type": "KSampler", "inputs": {"steps": 20, "cfg": 7, "seed": 42}},
  "58": {"class_type": "LoadImage", "inputs": {"image": "example.png", "upload": "image"}},
  "9":  {"class_type": "SaveImage", "inputs": {"filename_prefix": "out", "images": ["52", 0]}}
}`

func writeWorkflow(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workflow_api.json")
	require.NoError(t, os.WriteFile(path, []byte(workflowJSON), 0o644))
	return path
}

func newClient(t *testing.T, srv *comfytest.Server) *comfy.Client {
	t.Helper()
	client, err := comfy.New(comfy.Options{
		Server: srv.URL,
		Retry:  comfy.RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func fast(opts ...orchestrator.Option) []orchestrator.Option {
	return append([]orchestrator.Option{orchestrator.WithPollInterval(time.Millisecond)}, opts...)
}

func steps(n int64) domain.ParameterUpdate {
	return domain.ParameterUpdate{NodeID: "52", Section: domain.SectionInputs, Field: "steps", Value: n}
}

func submittedInputs(t *testing.T, srv *comfytest.Server, nodeID string) map[string]any {
	t.Helper()
	subs := srv.Submissions()
	require.Len(t, subs, 1)
	node, ok := subs[0].Prompt[nodeID].(map[string]any)
	require.True(t, ok, "node %s not submitted", nodeID)
	return node["inputs"].(map[string]any)
}

func TestExecute_ConnectivityFailure(t *testing.T) {
	srv := comfytest.New(t)
	srv.FailNext(comfytest.RouteQueue, 503, 503, 503)
	loads := 0
	loader := func(path string) (*graph.Document, error) {
		loads++
		return graph.Load(path)
	}

	result, err := orchestrator.RunOnce(context.Background(), newClient(t, srv),
		orchestrator.Request{Workflow: writeWorkflow(t)},
		fast(orchestrator.WithLoader(loader))...)

	require.ErrorIs(t, err, domain.ErrConnectivity)
	assert.Equal(t, domain.StateFailed, result.State)
	assert.Zero(t, loads, "workflow must not be loaded")
	assert.Zero(t, srv.Calls(comfytest.RoutePrompt))
}

func TestExecute_EndToEnd(t *testing.T) {
	srv := comfytest.New(t,
		comfytest.WithJobID("abc123"),
		comfytest.WithHistory(nil, &comfytest.Record{
			Nodes: []comfytest.Node{{ID: "9", Images: []string{"out.png"}}},
		}),
		comfytest.WithFile("out.png", []byte("pixels")),
	)
	client := newClient(t, srv)
	ledger := memory.NewLedger()
	outDir := filepath.Join(t.TempDir(), "output")

	result, err := orchestrator.RunOnce(context.Background(), client, orchestrator.Request{
		Workflow:  writeWorkflow(t),
		Updates:   []domain.ParameterUpdate{steps(12)},
		OutputDir: outDir,
	}, fast(orchestrator.WithLedger(ledger))...)
	require.NoError(t, err)

	assert.Equal(t, domain.StateCompleted, result.State)
	assert.Equal(t, "abc123", result.JobID)
	assert.Equal(t, client.SessionID(), result.ClientID)
	assert.Equal(t, filepath.Join(outDir, "out.png"), result.Primary)
	assert.Equal(t, []string{result.Primary}, result.Files)
	data, err := os.ReadFile(result.Primary)
	require.NoError(t, err)
	assert.Equal(t, []byte("pixels"), data)

	assert.Equal(t, float64(12), submittedInputs(t, srv, "52")["steps"])
	assert.Equal(t, 2, srv.Calls(comfytest.RouteHistory))
	assert.True(t, client.Closed())

	entry, err := ledger.Get(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, domain.EntryCompleted, entry.Status)
	assert.Equal(t, result.Primary, entry.PrimaryOutput)
}

func TestExecute_NoOutput(t *testing.T) {
	for name, record := range map[string]*comfytest.Record{
		"empty outputs": {},
		"nodes without files": {Nodes: []comfytest.Node{{ID: "9"}, {ID: "12"}}},
	} {
		t.Run(name, func(t *testing.T) {
			srv := comfytest.New(t, comfytest.WithHistory(record))

			result, err := orchestrator.RunOnce(context.Background(), newClient(t, srv),
				orchestrator.Request{Workflow: writeWorkflow(t), OutputDir: t.TempDir()}, fast()...)

			require.ErrorIs(t, err, domain.ErrNoOutput)
			assert.False(t, errors.Is(err, domain.ErrTransport))
			assert.Equal(t, domain.StateFailed, result.State)
			assert.Zero(t, srv.Calls(comfytest.RouteView))
		})
	}
}

func TestExecute_CancelMidPoll(t *testing.T) {
	srv := comfytest.New(t, comfytest.WithJobID("abc123"), comfytest.WithHistory(nil))
	client := newClient(t, srv)
	ledger := memory.NewLedger()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hooks := domain.LifecycleHooks{
		OnPoll: func(_ context.Context, ev *domain.PollEvent) {
			if ev.Attempt == 2 {
				cancel()
			}
		},
	}
	result, err := orchestrator.RunOnce(ctx, client,
		orchestrator.Request{Workflow: writeWorkflow(t)},
		fast(orchestrator.WithHooks(hooks), orchestrator.WithLedger(ledger))...)

	require.ErrorIs(t, err, domain.ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, domain.IsCancelled(err))
	assert.Equal(t, domain.StateCancelled, result.State)
	assert.Equal(t, "abc123", result.JobID)
	assert.True(t, client.Closed(), "connection pool released")

	entry, err := ledger.Get(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, domain.EntryInterrupted, entry.Status)
}

func TestExecute_AssetBinding(t *testing.T) {
	srv := comfytest.New(t,
		comfytest.WithUploadName("portrait (1).png"),
		comfytest.WithHistory(&comfytest.Record{Nodes: []comfytest.Node{{ID: "9", Images: []string{"a.png"}}}}),
	)
	asset := filepath.Join(t.TempDir(), "portrait.png")
	require.NoError(t, os.WriteFile(asset, []byte("img"), 0o644))

	_, err := orchestrator.RunOnce(context.Background(), newClient(t, srv), orchestrator.Request{
		Workflow:  writeWorkflow(t),
		AssetPath: asset,
		OutputDir: t.TempDir(),
	}, fast()...)
	require.NoError(t, err)

	require.Len(t, srv.Uploads(), 1)
	assert.Equal(t, "portrait (1).png", submittedInputs(t, srv, "58")["image"])
}

func TestExecute_CallerUpdateOverridesAsset(t *testing.T) {
	srv := comfytest.New(t,
		comfytest.WithHistory(&comfytest.Record{Nodes: []comfytest.Node{{ID: "9", Images: []string{"a.png"}}}}),
	)
	asset := filepath.Join(t.TempDir(), "portrait.png")
	require.NoError(t, os.WriteFile(asset, []byte("img"), 0o644))

	_, err := orchestrator.RunOnce(context.Background(), newClient(t, srv), orchestrator.Request{
		Workflow:  writeWorkflow(t),
		AssetPath: asset,
		Updates:   []domain.ParameterUpdate{{NodeID: "58", Section: "inputs", Field: "image", Value: "manual.png"}},
		OutputDir: t.TempDir(),
	}, fast()...)
	require.NoError(t, err)
	assert.Equal(t, "manual.png", submittedInputs(t, srv, "58")["image"])
}

func TestExecute_UploadFailureAborts(t *testing.T) {
	srv := comfytest.New(t)
	srv.FailNext(comfytest.RouteUpload, 400)
	asset := filepath.Join(t.TempDir(), "portrait.png")
	require.NoError(t, os.WriteFile(asset, []byte("img"), 0o644))

	result, err := orchestrator.RunOnce(context.Background(), newClient(t, srv),
		orchestrator.Request{Workflow: writeWorkflow(t), AssetPath: asset}, fast()...)

	require.ErrorIs(t, err, domain.ErrUpload)
	assert.Equal(t, domain.StateFailed, result.State)
	assert.Zero(t, srv.Calls(comfytest.RoutePrompt))
}

func TestExecute_SubmissionRejected(t *testing.T) {
	srv := comfytest.New(t)
	srv.FailNext(comfytest.RoutePrompt, 400)
	ledger := memory.NewLedger()

	_, err := orchestrator.RunOnce(context.Background(), newClient(t, srv),
		orchestrator.Request{Workflow: writeWorkflow(t)}, fast(orchestrator.WithLedger(ledger))...)

	require.ErrorIs(t, err, domain.ErrSubmission)
	entries, err := ledger.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries, "nothing was queued")
}

func TestExecute_MissingWorkflow(t *testing.T) {
	srv := comfytest.New(t)

	result, err := orchestrator.RunOnce(context.Background(), newClient(t, srv),
		orchestrator.Request{Workflow: filepath.Join(t.TempDir(), "missing.json")}, fast()...)

	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, domain.StateFailed, result.State)
	assert.Zero(t, srv.Calls(comfytest.RoutePrompt))
}

func TestExecute_PartialDownloadFailure(t *testing.T) {
	srv := comfytest.New(t,
		comfytest.WithHistory(&comfytest.Record{Nodes: []comfytest.Node{
			{ID: "9", Images: []string{"gone.png"}},
			{ID: "54", Gifs: []string{"clip.gif"}, Videos: []string{"clip.mp4"}},
		}}),
		comfytest.WithMissingFile("gone.png"),
	)
	outDir := t.TempDir()

	result, err := orchestrator.RunOnce(context.Background(), newClient(t, srv),
		orchestrator.Request{Workflow: writeWorkflow(t), OutputDir: outDir}, fast()...)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(outDir, "clip.gif"), result.Primary)
	assert.Equal(t, []string{filepath.Join(outDir, "clip.gif"), filepath.Join(outDir, "clip.mp4")}, result.Files)
}

func TestExecute_AllDownloadsFail(t *testing.T) {
	srv := comfytest.New(t,
		comfytest.WithHistory(&comfytest.Record{Nodes: []comfytest.Node{{ID: "9", Images: []string{"gone.png"}}}}),
		comfytest.WithMissingFile("gone.png"),
	)

	_, err := orchestrator.RunOnce(context.Background(), newClient(t, srv),
		orchestrator.Request{Workflow: writeWorkflow(t), OutputDir: t.TempDir()}, fast()...)

	require.ErrorIs(t, err, domain.ErrDownload)
	assert.False(t, errors.Is(err, domain.ErrNoOutput))
}

func TestExecute_HistoryErrorsAreRetried(t *testing.T) {
	srv := comfytest.New(t,
		comfytest.WithHistory(&comfytest.Record{Nodes: []comfytest.Node{{ID: "9", Images: []string{"a.png"}}}}),
	)
	srv.FailNext(comfytest.RouteHistory, 404, 404)

	result, err := orchestrator.RunOnce(context.Background(), newClient(t, srv),
		orchestrator.Request{Workflow: writeWorkflow(t), OutputDir: t.TempDir()}, fast()...)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, result.State)
	assert.Equal(t, 3, srv.Calls(comfytest.RouteHistory))
}

func TestExecute_ClosedTransportStopsPolling(t *testing.T) {
	srv := comfytest.New(t, comfytest.WithJobID("abc123"), comfytest.WithHistory(nil))
	client := newClient(t, srv)
	ledger := memory.NewLedger()
	hooks := domain.LifecycleHooks{
		OnPoll: func(_ context.Context, ev *domain.PollEvent) {
			if ev.Attempt == 1 {
				_ = client.Close()
			}
		},
	}

	result, err := orchestrator.New(client, fast(orchestrator.WithHooks(hooks), orchestrator.WithLedger(ledger))...).
		Execute(context.Background(), orchestrator.Request{Workflow: writeWorkflow(t)})
	require.ErrorIs(t, err, domain.ErrClientClosed)
	assert.False(t, domain.IsCancelled(err))
	assert.Equal(t, domain.StateFailed, result.State)
	assert.Equal(t, 1, srv.Calls(comfytest.RouteHistory))

	entry, err := ledger.Get(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, domain.EntryFailed, entry.Status)
}

func TestExecute_QueueErrorsDoNotAbort(t *testing.T) {
	srv := comfytest.New(t,
		comfytest.WithHistory(nil, nil, &comfytest.Record{Nodes: []comfytest.Node{{ID: "9", Images: []string{"a.png"}}}}),
	)
	var mu sync.Mutex
	var queueErrs int
	hooks := domain.LifecycleHooks{
		OnStateChange: func(_ context.Context, ev *domain.StateEvent) {
			if ev.To == domain.StatePolling {
				srv.FailNext(comfytest.RouteQueue, 400, 400)
			}
		},
		OnPoll: func(_ context.Context, ev *domain.PollEvent) {
			mu.Lock()
			defer mu.Unlock()
			if ev.QueueErr != nil {
				queueErrs++
			}
		},
	}

	_, err := orchestrator.RunOnce(context.Background(), newClient(t, srv),
		orchestrator.Request{Workflow: writeWorkflow(t), OutputDir: t.TempDir()},
		fast(orchestrator.WithHooks(hooks))...)
	require.NoError(t, err)
	assert.Equal(t, 2, queueErrs)
}

func TestExecute_MaxWait(t *testing.T) {
	srv := comfytest.New(t, comfytest.WithJobID("slow"), comfytest.WithHistory(nil))
	ledger := memory.NewLedger()

	result, err := orchestrator.RunOnce(context.Background(), newClient(t, srv),
		orchestrator.Request{Workflow: writeWorkflow(t)},
		fast(orchestrator.WithMaxWait(20*time.Millisecond), orchestrator.WithLedger(ledger))...)

	require.ErrorIs(t, err, domain.ErrPollTimeout)
	assert.Equal(t, domain.StateFailed, result.State)
	entry, err := ledger.Get(context.Background(), "slow")
	require.NoError(t, err)
	assert.Equal(t, domain.EntryFailed, entry.Status)
}

func TestExecute_ServerReportedError(t *testing.T) {
	srv := comfytest.New(t,
		comfytest.WithJobID("j"),
		comfytest.WithHistory(&comfytest.Record{Status: "error", Nodes: []comfytest.Node{{ID: "9", Images: []string{"a.png"}}}}),
	)
	ledger := memory.NewLedger()

	result, err := orchestrator.RunOnce(context.Background(), newClient(t, srv),
		orchestrator.Request{Workflow: writeWorkflow(t), OutputDir: t.TempDir()},
		fast(orchestrator.WithLedger(ledger))...)
	require.NoError(t, err)
	assert.True(t, result.Record.Status.Failed())

	entry, err := ledger.Get(context.Background(), "j")
	require.NoError(t, err)
	assert.Equal(t, domain.EntryCompleted, entry.Status)
	assert.Contains(t, entry.Error, "error")
}

func TestExecute_StateSequence(t *testing.T) {
	srv := comfytest.New(t,
		comfytest.WithHistory(nil, &comfytest.Record{Nodes: []comfytest.Node{{ID: "9", Images: []string{"a.png"}}}}),
	)
	var states []domain.RunState
	var downloaded []string
	hooks := domain.LifecycleHooks{
		OnStateChange: func(_ context.Context, ev *domain.StateEvent) { states = append(states, ev.To) },
		OnDownload:    func(_ context.Context, f domain.OutputFile, _ string) { downloaded = append(downloaded, f.Filename) },
	}

	_, err := orchestrator.RunOnce(context.Background(), newClient(t, srv),
		orchestrator.Request{Workflow: writeWorkflow(t), OutputDir: t.TempDir()},
		fast(orchestrator.WithHooks(hooks))...)
	require.NoError(t, err)

	assert.Equal(t, []domain.RunState{
		domain.StateConnected,
		domain.StateLoaded,
		domain.StateAssetResolved,
		domain.StatePatched,
		domain.StateSubmitted,
		domain.StatePolling,
		domain.StateCompleted,
	}, states)
	assert.Equal(t, []string{"a.png"}, downloaded)
}

func TestExecute_Metrics(t *testing.T) {
	srv := comfytest.New(t,
		comfytest.WithHistory(nil, &comfytest.Record{Nodes: []comfytest.Node{{ID: "9", Images: []string{"a.png"}}}}),
	)
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	_, err := orchestrator.RunOnce(context.Background(), newClient(t, srv),
		orchestrator.Request{Workflow: writeWorkflow(t), OutputDir: t.TempDir()},
		fast(orchestrator.WithMetrics(metrics))...)
	require.NoError(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Runs.WithLabelValues("completed")))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.PollTicks))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Downloads.WithLabelValues("ok")))
}

func TestExecute_PreloadedDocumentIsNotModified(t *testing.T) {
	srv := comfytest.New(t,
		comfytest.WithHistory(&comfytest.Record{Nodes: []comfytest.Node{{ID: "9", Images: []string{"a.png"}}}}),
	)
	doc, err := graph.Parse([]byte(workflowJSON), graph.FormatJSON)
	require.NoError(t, err)

	_, err = orchestrator.RunOnce(context.Background(), newClient(t, srv), orchestrator.Request{
		Document:  doc,
		Updates:   []domain.ParameterUpdate{steps(3)},
		OutputDir: t.TempDir(),
	}, fast()...)
	require.NoError(t, err)

	node, _ := doc.Get("52")
	inputs, _ := node.Section("inputs")
	assert.NotEqual(t, int64(3), inputs["steps"])
	assert.Equal(t, float64(3), submittedInputs(t, srv, "52")["steps"])
}

func TestPrepare_DoesNotTouchTheServer(t *testing.T) {
	srv := comfytest.New(t)
	o := orchestrator.New(newClient(t, srv))

	doc, report, err := o.Prepare(context.Background(), orchestrator.Request{
		Workflow: writeWorkflow(t),
		Updates: []domain.ParameterUpdate{
			steps(30),
			{NodeID: "404", Section: "inputs", Field: "x", Value: 1},
		},
	})
	require.NoError(t, err)
	assert.Len(t, report.Applied, 1)
	assert.Len(t, report.Skipped, 1)

	node, _ := doc.Get("52")
	inputs, _ := node.Section("inputs")
	assert.Equal(t, int64(30), inputs["steps"])

	assert.Zero(t, srv.Calls(comfytest.RouteQueue))
	assert.Zero(t, srv.Calls(comfytest.RoutePrompt))
}
