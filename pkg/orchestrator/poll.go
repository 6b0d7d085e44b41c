package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/comfyctl/pkg/domain"
)

// poll checks the history every interval until the job has a record. History
// failures are retried on the next tick, except on a closed transport; queue
// failures only affect progress.
func (r *execution) poll(ctx context.Context) (*domain.HistoryRecord, error) {
	o := r.o
	jobID := r.result.JobID
	start := o.clock.Now()

	for attempt := 1; ; attempt++ {
		record, err := o.transport.FetchHistory(ctx, jobID)
		o.metrics.ObservePoll()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		switch {
		case errors.Is(err, domain.ErrClientClosed):
			return nil, err
		case err != nil:
			o.logger.Warn("history check failed, retrying",
				"job_id", jobID,
				"attempt", attempt,
				"err", err,
			)
		case record != nil:
			o.metrics.ObserveWait(o.clock.Now().Sub(start))
			o.logger.Debug("job finished", "job_id", jobID, "attempts", attempt)
			return record, nil
		default:
			r.progress(ctx, attempt)
		}

		if o.maxWait > 0 && o.clock.Now().Sub(start) >= o.maxWait {
			return nil, fmt.Errorf("%w: job %s after %s", domain.ErrPollTimeout, jobID, o.maxWait)
		}
		if err := o.clock.Sleep(ctx, o.pollInterval); err != nil {
			return nil, err
		}
	}
}

func (r *execution) progress(ctx context.Context, attempt int) {
	o := r.o
	queue, err := o.transport.FetchQueue(ctx)
	if err != nil {
		o.logger.Debug("queue check failed", "job_id", r.result.JobID, "err", err)
	} else {
		o.logger.Info("waiting for job",
			"job_id", r.result.JobID,
			"attempt", attempt,
			"running", queue.Running,
			"pending", queue.Pending,
		)
	}
	if o.hooks.OnPoll != nil {
		o.hooks.OnPoll(ctx, &domain.PollEvent{
			Timestamp: o.clock.Now(),
			JobID:     r.result.JobID,
			Attempt:   attempt,
			Queue:     queue,
			QueueErr:  err,
		})
	}
}
