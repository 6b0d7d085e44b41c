package ports

import (
	"context"

	"github.com/aretw0/comfyctl/pkg/domain"
)

// JobLedger keeps the client's record of submitted jobs so that a run which
// is interrupted mid-poll still leaves a trace of the job it queued.
type JobLedger interface {
	// Record inserts or replaces the entry for entry.JobID.
	Record(ctx context.Context, entry domain.JobEntry) error

	// Get returns domain.ErrJobNotFound for unknown identifiers.
	Get(ctx context.Context, jobID string) (*domain.JobEntry, error)

	// List returns entries ordered by submission time, oldest first.
	List(ctx context.Context) ([]domain.JobEntry, error)
}
