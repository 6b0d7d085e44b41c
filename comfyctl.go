package comfyctl

import (
	"context"
	"fmt"

	"github.com/aretw0/comfyctl/pkg/adapters/comfy"
	"github.com/aretw0/comfyctl/pkg/graph"
	"github.com/aretw0/comfyctl/pkg/orchestrator"
)

// Session pairs one transport client with an orchestrator. A session runs one
// job at a time and must be closed to release its connection pool.
type Session struct {
	client *comfy.Client
	orch   *orchestrator.Orchestrator
}

// Open creates a session against the server described by clientOpts.
func Open(clientOpts comfy.Options, opts ...orchestrator.Option) (*Session, error) {
	client, err := comfy.New(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	if clientOpts.Logger != nil {
		opts = append([]orchestrator.Option{orchestrator.WithLogger(clientOpts.Logger)}, opts...)
	}
	if clientOpts.Metrics != nil {
		opts = append([]orchestrator.Option{orchestrator.WithMetrics(clientOpts.Metrics)}, opts...)
	}
	return &Session{
		client: client,
		orch:   orchestrator.New(client, opts...),
	}, nil
}

// Run executes req to a terminal state.
func (s *Session) Run(ctx context.Context, req orchestrator.Request) (*orchestrator.Result, error) {
	return s.orch.Execute(ctx, req)
}

// Prepare returns the patched document of req without contacting the server.
func (s *Session) Prepare(ctx context.Context, req orchestrator.Request) (*graph.Document, graph.Report, error) {
	return s.orch.Prepare(ctx, req)
}

// Ping reports whether the server answers its status probe.
func (s *Session) Ping(ctx context.Context) bool {
	return s.client.CheckConnection(ctx)
}

// Client exposes the underlying transport.
func (s *Session) Client() *comfy.Client {
	return s.client
}

// Close releases the connection pool. It is safe to call more than once.
func (s *Session) Close() error {
	return s.client.Close()
}

// Run opens a session, executes req and closes the session.
func Run(ctx context.Context, clientOpts comfy.Options, req orchestrator.Request, opts ...orchestrator.Option) (*orchestrator.Result, error) {
	session, err := Open(clientOpts, opts...)
	if err != nil {
		return nil, err
	}
	defer session.Close()
	return session.Run(ctx, req)
}
