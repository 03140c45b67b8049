package runner

import (
	"context"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/tendant/simple-content-derivatives/internal/config"
	"github.com/tendant/simple-content-derivatives/internal/descriptors"
	"github.com/tendant/simple-content-derivatives/internal/keys"
	"github.com/tendant/simple-content-derivatives/internal/ledger"
	"github.com/tendant/simple-content-derivatives/internal/metrics"
	"github.com/tendant/simple-content-derivatives/internal/storage"
	"github.com/tendant/simple-content-derivatives/internal/workflows"
	"github.com/tendant/simple-content-derivatives/pkg/pipeline"
)

// MetricsJob is the Pushgateway job name run metrics are pushed under
const MetricsJob = "derivatives"

type (
	// Config holds the generator configuration
	Config = config.Config

	// Selection picks the descriptors a run considers
	Selection = descriptors.Selection

	// KeySet is the object keys of one descriptor version
	KeySet = keys.Set
)

// NoRevision selects every descriptor when used as Selection.From
const NoRevision = descriptors.NoRevision

// Option customizes a Runner
type Option func(*Runner)

// WithStore uses store instead of building one from the configuration
func WithStore(store storage.ObjectStore) Option {
	return func(r *Runner) {
		r.store = store
	}
}

// WithDiffer uses differ to list changed files instead of git
func WithDiffer(differ descriptors.Differ) Option {
	return func(r *Runner) {
		r.differ = differ
	}
}

// Runner provides a high-level API for generating derivatives
type Runner struct {
	log    *zap.Logger
	cfg    Config
	store  storage.ObjectStore
	differ descriptors.Differ
}

// New creates a runner. cfg is completed with defaults and validated;
// store credentials are checked only once a run has work to do.
func New(log *zap.Logger, cfg Config, opts ...Option) (*Runner, error) {
	cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Runner{log: log, cfg: cfg}
	for _, opt := range opts {
		opt(r)
	}
	if r.differ == nil {
		var gitOpts []descriptors.GitOption
		if cfg.RepoDir != "" {
			gitOpts = append(gitOpts, descriptors.WithRepoDir(cfg.RepoDir))
		}
		r.differ = descriptors.NewGitDiffer(gitOpts...)
	}
	return r, nil
}

// Keys returns the object keys for id at version
func Keys(id string, version int) KeySet {
	return keys.Derive(id, version)
}

// Generate selects descriptors and ensures each has its derivatives. An
// empty selection returns an empty report and no error.
func (r *Runner) Generate(ctx context.Context, sel Selection) (_ *pipeline.Report, err error) {
	source := descriptors.NewSource(r.log, r.cfg.ContentDir, r.differ)
	paths, err := source.Select(ctx, sel)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		r.log.Info("no descriptor files to process", zap.String("content_dir", r.cfg.ContentDir))
		return &pipeline.Report{}, nil
	}

	// Step 1: Open the object store
	store, err := r.openStore()
	if err != nil {
		return nil, err
	}

	options := []workflows.WorkflowOption{}

	// Step 2: Open the optional ledger
	if r.cfg.LedgerDatabaseURL != "" {
		tracker, openErr := ledger.Open(ctx, r.log, r.cfg.LedgerDatabaseURL)
		if openErr != nil {
			return nil, openErr
		}
		defer func() { err = errs.Combine(err, tracker.Close()) }()
		options = append(options, workflows.WithLedger(tracker))
	}

	// Step 3: Collect metrics when they have somewhere to go
	var prom *metrics.Prom
	if r.cfg.PushgatewayURL != "" {
		prom = metrics.NewProm()
		options = append(options, workflows.WithMetrics(prom))
	}

	workflow, err := workflows.NewDerivativesWorkflow(r.log, store, r.options(), options...)
	if err != nil {
		return nil, err
	}

	batch := workflows.NewBatchRunner(r.log, workflow, workflows.RunnerConfig{
		Workers:   r.cfg.Workers,
		KeepGoing: r.cfg.KeepGoing,
	})
	report, runErr := batch.Run(ctx, paths)

	if prom != nil {
		if err := prom.Push(r.cfg.PushgatewayURL, MetricsJob); err != nil {
			r.log.Warn("failed to push metrics", zap.String("url", r.cfg.PushgatewayURL), zap.Error(err))
		}
	}

	return report, runErr
}

func (r *Runner) openStore() (storage.ObjectStore, error) {
	if r.store != nil {
		return r.store, nil
	}

	if r.cfg.StoreDir != "" {
		r.log.Info("using local store", zap.String("dir", r.cfg.StoreDir))
		return storage.NewFilesystemStorage(r.cfg.StoreDir)
	}

	if err := r.cfg.ValidateStore(); err != nil {
		return nil, err
	}
	r.log.Info("using S3 store", zap.String("endpoint", r.cfg.S3.URL), zap.String("bucket", r.cfg.Bucket))
	return storage.NewS3Store(r.log, r.cfg.S3Config())
}

// options starts from the default renditions and applies the configured
// sizes and qualities. cfg has already been through WithDefaults.
func (r *Runner) options() workflows.Options {
	opts := workflows.DefaultOptions()
	opts.Web.LongEdge = r.cfg.WebSize
	opts.Web.Quality = r.cfg.WebQuality
	opts.Thumb.LongEdge = r.cfg.ThumbSize
	opts.Thumb.Quality = r.cfg.ThumbQuality
	return opts
}
