package workflows

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tendant/simple-content-derivatives/internal/config"
	"github.com/tendant/simple-content-derivatives/internal/descriptors"
	"github.com/tendant/simple-content-derivatives/internal/keys"
	"github.com/tendant/simple-content-derivatives/internal/ledger"
	"github.com/tendant/simple-content-derivatives/internal/metrics"
	"github.com/tendant/simple-content-derivatives/internal/storage"
	"github.com/tendant/simple-content-derivatives/internal/transform"
	"github.com/tendant/simple-content-derivatives/pkg/pipeline"
)

// Ledger records generated derivatives. *ledger.Tracker implements it.
type Ledger interface {
	Record(ctx context.Context, e ledger.Entry) (int, error)
}

// Rendition describes one derivative kind
type Rendition struct {
	Kind     string
	LongEdge int
	Quality  int
}

// Options configures the renditions a workflow produces
type Options struct {
	Web   Rendition
	Thumb Rendition
}

// DefaultOptions returns the web and thumb renditions built from the
// configuration defaults
func DefaultOptions() Options {
	return Options{
		Web:   Rendition{Kind: pipeline.DerivedTypeWeb, LongEdge: config.DefaultWebSize, Quality: config.DefaultWebQuality},
		Thumb: Rendition{Kind: pipeline.DerivedTypeThumb, LongEdge: config.DefaultThumbSize, Quality: config.DefaultThumbQuality},
	}
}

func (o Options) validate() error {
	for _, r := range []Rendition{o.Web, o.Thumb} {
		if r.LongEdge < 1 {
			return fmt.Errorf("%w: %s long edge must be positive, got %d", ErrInvalidOptions, r.Kind, r.LongEdge)
		}
		if r.Quality < 0 || r.Quality > 100 {
			return fmt.Errorf("%w: %s quality must be within 0-100, got %d", ErrInvalidOptions, r.Kind, r.Quality)
		}
	}
	return nil
}

// DerivativesWorkflow ensures the web and thumb derivatives of one
// descriptor exist, generating only the missing ones
type DerivativesWorkflow struct {
	log     *zap.Logger
	store   storage.ObjectStore
	opts    Options
	ledger  Ledger
	metrics metrics.Recorder
}

// WorkflowOption customizes a DerivativesWorkflow
type WorkflowOption func(*DerivativesWorkflow)

// WithLedger records every upload in l
func WithLedger(l Ledger) WorkflowOption {
	return func(w *DerivativesWorkflow) {
		w.ledger = l
	}
}

// WithMetrics reports descriptor outcomes, uploads and transform time to r
func WithMetrics(r metrics.Recorder) WorkflowOption {
	return func(w *DerivativesWorkflow) {
		w.metrics = r
	}
}

// NewDerivativesWorkflow creates a workflow writing to store
func NewDerivativesWorkflow(log *zap.Logger, store storage.ObjectStore, opts Options, options ...WorkflowOption) (*DerivativesWorkflow, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	w := &DerivativesWorkflow{
		log:     log,
		store:   store,
		opts:    opts,
		metrics: metrics.Noop{},
	}
	for _, opt := range options {
		opt(w)
	}
	return w, nil
}

// Name returns the workflow name
func (w *DerivativesWorkflow) Name() string {
	return "DerivativesWorkflow"
}

type target struct {
	rendition Rendition
	key       string
}

// Execute processes the descriptor at path. The returned outcome is always
// populated; on failure its Err matches the returned error.
func (w *DerivativesWorkflow) Execute(ctx context.Context, path string) (pipeline.Outcome, error) {
	outcome := pipeline.Outcome{Descriptor: path}
	log := w.log.With(zap.String("descriptor", path))

	fail := func(err error) (pipeline.Outcome, error) {
		outcome.State = pipeline.StateFailed
		outcome.Err = err
		outcome.Error = err.Error()
		w.metrics.ObserveDescriptor(string(pipeline.StateFailed))
		log.Error("descriptor failed", zap.Error(err))
		return outcome, err
	}

	// Step 1: Load and validate the descriptor
	desc, err := descriptors.Load(path)
	if err != nil {
		return fail(&DescriptorError{Path: path, Step: "load descriptor", Err: err})
	}
	outcome.ID = desc.ID
	outcome.Version = desc.Version

	// Step 2: Derive object keys
	set := keys.Derive(desc.ID, desc.Version)
	log = log.With(zap.String("id", desc.ID), zap.Int("version", desc.Version))

	// Step 3: Check which derivatives already exist
	var missing []target
	for _, t := range []target{
		{rendition: w.opts.Web, key: set.Web},
		{rendition: w.opts.Thumb, key: set.Thumb},
	} {
		if err := ctx.Err(); err != nil {
			return fail(&DescriptorError{Path: path, Step: "check", Key: t.key, Err: err})
		}
		exists, err := w.store.Exists(ctx, t.key)
		if err != nil {
			return fail(&DescriptorError{Path: path, Step: "check", Key: t.key, Err: err})
		}
		if !exists {
			missing = append(missing, t)
		}
	}

	if len(missing) == 0 {
		log.Info("skipped, derivatives already exist")
		outcome.State = pipeline.StateSkipped
		w.metrics.ObserveDescriptor(string(pipeline.StateSkipped))
		return outcome, nil
	}

	log.Info("processing", zap.Int("missing", len(missing)))

	// Step 4: Fetch the original once
	original, err := w.store.Fetch(ctx, set.Original)
	if err != nil {
		return fail(&DescriptorError{Path: path, Step: "fetch original", Key: set.Original, Err: err})
	}
	log.Debug("original fetched", zap.String("key", set.Original), zap.Int("bytes", len(original)))

	// Step 5: Render and upload each missing derivative
	for _, t := range missing {
		if err := ctx.Err(); err != nil {
			return fail(&DescriptorError{Path: path, Step: "render", Key: t.key, Err: err})
		}

		started := time.Now()
		res, err := transform.Render(original, t.rendition.LongEdge, t.rendition.Quality)
		if err != nil {
			return fail(&DescriptorError{Path: path, Step: "render", Key: t.key, Err: err})
		}
		w.metrics.ObserveTransform(t.rendition.Kind, time.Since(started))

		if err := w.store.Store(ctx, t.key, res.Data, storage.DerivativeMetadata(len(res.Data))); err != nil {
			return fail(&DescriptorError{Path: path, Step: "upload", Key: t.key, Err: err})
		}

		upload := pipeline.Upload{
			Kind:   t.rendition.Kind,
			Key:    t.key,
			Bytes:  len(res.Data),
			Width:  res.Width,
			Height: res.Height,
		}
		outcome.Uploads = append(outcome.Uploads, upload)
		w.metrics.ObserveUpload(upload.Kind, upload.Bytes)
		log.Info("uploaded",
			zap.String("key", t.key),
			zap.Int("bytes", upload.Bytes),
			zap.Int("width", res.Width),
			zap.Int("height", res.Height))

		w.record(ctx, log, desc, upload)
	}

	outcome.State = pipeline.StateGenerated
	w.metrics.ObserveDescriptor(string(pipeline.StateGenerated))
	return outcome, nil
}

// record writes upload to the ledger. The ledger is an audit trail, so a
// failure is logged and does not fail the descriptor.
func (w *DerivativesWorkflow) record(ctx context.Context, log *zap.Logger, desc descriptors.Descriptor, upload pipeline.Upload) {
	if w.ledger == nil {
		return
	}

	count, err := w.ledger.Record(ctx, ledger.Entry{
		Key:          upload.Key,
		DescriptorID: desc.ID,
		Version:      desc.Version,
		Kind:         upload.Kind,
		Bytes:        upload.Bytes,
	})
	if err != nil {
		log.Warn("failed to record derivative in ledger", zap.String("key", upload.Key), zap.Error(err))
		return
	}
	if count > 1 {
		log.Warn("derivative regenerated", zap.String("key", upload.Key), zap.Int("generation_count", count))
	}
}
