package orchestrator

import (
	"context"
	"fmt"

	"github.com/aretw0/comfyctl/pkg/domain"
)

// collect downloads every listed file in node-then-category order. Individual
// failures are logged; the run fails only when nothing could be retrieved.
func (r *execution) collect(ctx context.Context, record *domain.HistoryRecord) error {
	o := r.o
	files := record.Files()
	if len(files) == 0 {
		return fmt.Errorf("%w: job %s", domain.ErrNoOutput, record.JobID)
	}

	dir := r.req.OutputDir
	if dir == "" {
		dir = DefaultOutputDir
	}

	for _, node := range record.Outputs {
		for _, file := range node.Files {
			path, err := o.transport.Download(ctx, file, dir)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			o.metrics.ObserveDownload(err == nil)
			if err != nil {
				o.logger.Warn("output download failed",
					"job_id", record.JobID,
					"node_id", node.NodeID,
					"file", file.Filename,
					"err", err,
				)
				continue
			}
			if r.result.Primary == "" {
				r.result.Primary = path
			}
			r.result.Files = append(r.result.Files, path)
			if o.hooks.OnDownload != nil {
				o.hooks.OnDownload(ctx, file, path)
			}
		}
	}

	if len(r.result.Files) == 0 {
		return fmt.Errorf("%w: none of %d files could be retrieved", domain.ErrDownload, len(files))
	}
	return nil
}
