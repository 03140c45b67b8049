package workflows

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tendant/simple-content-derivatives/pkg/pipeline"
)

// Workflow processes a single descriptor
type Workflow interface {
	// Execute runs the workflow for the descriptor at path
	Execute(ctx context.Context, path string) (pipeline.Outcome, error)

	// Name returns the workflow name
	Name() string
}

// RunnerConfig controls how a batch is scheduled
type RunnerConfig struct {
	// Workers is the number of descriptors processed at once.
	// Values below 2 process strictly sequentially.
	Workers int

	// KeepGoing continues past failed descriptors. The run still returns
	// an error combining every failure.
	KeepGoing bool
}

// BatchRunner executes a workflow over an ordered list of descriptors
type BatchRunner struct {
	log      *zap.Logger
	workflow Workflow
	config   RunnerConfig
	newRunID func() string
	now      func() time.Time
}

// NewBatchRunner creates a runner for workflow
func NewBatchRunner(log *zap.Logger, workflow Workflow, config RunnerConfig) *BatchRunner {
	if config.Workers < 1 {
		config.Workers = 1
	}
	return &BatchRunner{
		log:      log,
		workflow: workflow,
		config:   config,
		newRunID: uuid.NewString,
		now:      time.Now,
	}
}

// Run processes paths in order. The report lists an outcome for every
// descriptor that was attempted, in input order. In fail-fast mode the
// first failure stops the batch and is returned; with KeepGoing all
// failures are combined.
func (r *BatchRunner) Run(ctx context.Context, paths []string) (*pipeline.Report, error) {
	report := &pipeline.Report{
		RunID:     r.newRunID(),
		StartedAt: r.now(),
	}
	log := r.log.With(zap.String("run_id", report.RunID), zap.String("workflow", r.workflow.Name()))

	if len(paths) == 0 {
		log.Info("no descriptor files to process")
		report.FinishedAt = r.now()
		return report, nil
	}

	log.Info("starting run", zap.Int("descriptors", len(paths)), zap.Int("workers", r.config.Workers))

	var err error
	if r.config.Workers == 1 {
		report.Outcomes, err = r.runSequential(ctx, paths)
	} else {
		report.Outcomes, err = r.runPool(ctx, paths)
	}
	report.FinishedAt = r.now()

	log.Info("run finished",
		zap.Int("generated", report.Count(pipeline.StateGenerated)),
		zap.Int("skipped", report.Count(pipeline.StateSkipped)),
		zap.Int("failed", report.Count(pipeline.StateFailed)),
		zap.Int("uploaded", report.Uploaded()),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)))

	return report, err
}

func (r *BatchRunner) runSequential(ctx context.Context, paths []string) ([]pipeline.Outcome, error) {
	outcomes := make([]pipeline.Outcome, 0, len(paths))
	var failures []error

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			failures = append(failures, err)
			break
		}

		outcome, err := r.workflow.Execute(ctx, path)
		outcomes = append(outcomes, outcome)
		if err != nil {
			failures = append(failures, err)
			if !r.config.KeepGoing {
				break
			}
		}
	}

	return outcomes, errs.Combine(failures...)
}

// runPool processes up to Workers descriptors concurrently. Each worker
// writes only its own slot, so outcomes keep input order.
func (r *BatchRunner) runPool(ctx context.Context, paths []string) ([]pipeline.Outcome, error) {
	slots := make([]pipeline.Outcome, len(paths))
	attempted := make([]bool, len(paths))
	failures := make([]error, len(paths))

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(r.config.Workers)

	for i, path := range paths {
		if gctx.Err() != nil {
			break
		}
		group.Go(func() error {
			if err := gctx.Err(); err != nil {
				return nil
			}
			outcome, err := r.workflow.Execute(gctx, path)
			slots[i] = outcome
			attempted[i] = true
			if err != nil {
				failures[i] = err
				if !r.config.KeepGoing {
					return err
				}
			}
			return nil
		})
	}
	waitErr := group.Wait()

	outcomes := make([]pipeline.Outcome, 0, len(paths))
	for i := range paths {
		if attempted[i] {
			outcomes = append(outcomes, slots[i])
		}
	}

	if !r.config.KeepGoing && waitErr != nil {
		return outcomes, waitErr
	}
	combined := errs.Combine(failures...)
	if combined == nil && ctx.Err() != nil {
		combined = ctx.Err()
	}
	return outcomes, combined
}
