package ports

import (
	"context"

	"github.com/aretw0/comfyctl/pkg/domain"
	"github.com/aretw0/comfyctl/pkg/graph"
)

// Uploader pushes a local file to the server's input store.
type Uploader interface {
	UploadAsset(ctx context.Context, localPath string) (*domain.UploadedAsset, error)
}

// Transport is the set of server verbs the orchestrator sequences.
type Transport interface {
	Uploader

	// CheckConnection probes the server. It reports failures as false, never as an error.
	CheckConnection(ctx context.Context) bool

	// Submit queues the document as a job.
	Submit(ctx context.Context, doc *graph.Document) (*domain.Submission, error)

	// FetchHistory returns nil, nil while the job is not yet terminal.
	FetchHistory(ctx context.Context, jobID string) (*domain.HistoryRecord, error)

	// FetchQueue returns the server's running and pending counters.
	FetchQueue(ctx context.Context) (domain.QueueState, error)

	// Download stores the output file under destDir and returns its local path.
	Download(ctx context.Context, file domain.OutputFile, destDir string) (string, error)

	// SessionID is the client identifier attached to every submission.
	SessionID() string

	// Close releases the connection pool. It is safe to call more than once.
	Close() error
}
