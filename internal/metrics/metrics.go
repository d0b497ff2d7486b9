// Package metrics collects run counters on a private prometheus registry and
// exports them in the node_exporter textfile format.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "yoloaug"

// Pair outcome labels.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Recorder holds the run metrics. It implements augment.Observer.
type Recorder struct {
	registry *prometheus.Registry

	pairsTotal     *prometheus.CounterVec
	artifactsTotal *prometheus.CounterVec
	boxesDropped   *prometheus.CounterVec
	linesSkipped   prometheus.Counter
	orphansTotal   *prometheus.CounterVec
	conflictsTotal prometheus.Counter
	pairDuration   prometheus.Histogram
	runDuration    prometheus.Gauge
}

// New creates a recorder with its own registry so repeated runs in one
// process never collide on the default registerer.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		pairsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pairs_total",
				Help:      "Image/label pairs processed",
			},
			[]string{"split", "status"},
		),
		artifactsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "artifacts_total",
				Help:      "Image/label artifacts written",
			},
			[]string{"operation"},
		),
		boxesDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "boxes_dropped_total",
				Help:      "Bounding boxes removed because their center left the frame",
			},
			[]string{"operation"},
		),
		linesSkipped: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "annotation_lines_skipped_total",
				Help:      "Malformed annotation lines skipped",
			},
		),
		orphansTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orphans_total",
				Help:      "Files without a counterpart",
			},
			[]string{"split", "action"}, // action: skip, delete, quarantine
		),
		conflictsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ambiguous_stems_total",
				Help:      "Basenames shared by more than one file on the same side",
			},
		),
		pairDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "pair_duration_seconds",
				Help:      "Time spent processing one pair",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
		),
		runDuration: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Wall time of the last run",
			},
		),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// ArtifactWritten counts one written artifact.
func (r *Recorder) ArtifactWritten(operation string) {
	r.artifactsTotal.WithLabelValues(operation).Inc()
}

// BoxesDropped counts boxes removed by operation.
func (r *Recorder) BoxesDropped(operation string, n int) {
	r.boxesDropped.WithLabelValues(operation).Add(float64(n))
}

// LinesSkipped counts malformed annotation lines.
func (r *Recorder) LinesSkipped(n int) {
	r.linesSkipped.Add(float64(n))
}

// PairDone records the outcome and duration of one pair.
func (r *Recorder) PairDone(split string, d time.Duration, err error) {
	status := StatusOK
	if err != nil {
		status = StatusFailed
	}
	r.pairsTotal.WithLabelValues(split, status).Inc()
	r.pairDuration.Observe(d.Seconds())
}

// Orphans counts orphan files handled with action.
func (r *Recorder) Orphans(split, action string, n int) {
	if n > 0 {
		r.orphansTotal.WithLabelValues(split, action).Add(float64(n))
	}
}

// Conflicts counts ambiguous basenames.
func (r *Recorder) Conflicts(n int) {
	r.conflictsTotal.Add(float64(n))
}

// RunFinished records the total run time.
func (r *Recorder) RunFinished(d time.Duration) {
	r.runDuration.Set(d.Seconds())
}

// WriteTextfile writes all metrics to path in the textfile collector format.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}
	return nil
}
