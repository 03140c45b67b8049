// Package metrics counts what a derivative run did and optionally pushes
// the totals to a Prometheus Pushgateway when the batch ends.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/zeebo/errs"
)

const namespace = "derivatives"

// Error is the error class for metric export failures
var Error = errs.Class("metrics")

// Recorder observes pipeline events
type Recorder interface {
	ObserveDescriptor(outcome string)
	ObserveUpload(kind string, bytes int)
	ObserveTransform(kind string, d time.Duration)
}

// Noop implements Recorder without emitting anything
type Noop struct{}

func (Noop) ObserveDescriptor(string)               {}
func (Noop) ObserveUpload(string, int)              {}
func (Noop) ObserveTransform(string, time.Duration) {}

// Prom implements Recorder backed by a dedicated Prometheus registry
type Prom struct {
	registry    *prometheus.Registry
	descriptors *prometheus.CounterVec
	uploads     *prometheus.CounterVec
	uploadBytes *prometheus.CounterVec
	transform   *prometheus.HistogramVec
	lastRun     prometheus.Gauge
}

// NewProm creates the run metrics on their own registry
func NewProm() *Prom {
	p := &Prom{
		registry: prometheus.NewRegistry(),
		descriptors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "descriptors_total",
			Help:      "Descriptors processed by outcome",
		}, []string{"outcome"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Derivatives uploaded by kind",
		}, []string{"kind"}),
		uploadBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_bytes_total",
			Help:      "Bytes of derivatives uploaded by kind",
		}, []string{"kind"}),
		transform: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transform_seconds",
			Help:      "Time spent resizing and encoding one derivative",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"kind"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),
	}
	p.registry.MustRegister(p.descriptors, p.uploads, p.uploadBytes, p.transform, p.lastRun)
	return p
}

// Registry exposes the registry for gathering
func (p *Prom) Registry() *prometheus.Registry {
	return p.registry
}

func (p *Prom) ObserveDescriptor(outcome string) {
	p.descriptors.WithLabelValues(outcome).Inc()
}

func (p *Prom) ObserveUpload(kind string, bytes int) {
	p.uploads.WithLabelValues(kind).Inc()
	p.uploadBytes.WithLabelValues(kind).Add(float64(bytes))
}

func (p *Prom) ObserveTransform(kind string, d time.Duration) {
	p.transform.WithLabelValues(kind).Observe(d.Seconds())
}

// Push stamps the run end time and sends every metric to the Pushgateway
// at url under job.
func (p *Prom) Push(url, job string) error {
	p.lastRun.SetToCurrentTime()
	if err := push.New(url, job).Gatherer(p.registry).Push(); err != nil {
		return Error.Wrap(err)
	}
	return nil
}
