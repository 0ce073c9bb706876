// Package metrics records batch processing telemetry as Prometheus
// collectors on a private registry, optionally exported in the node
// exporter textfile format.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "prostateview"

// Recorder holds the collectors for one process
type Recorder struct {
	registry *prometheus.Registry

	// subjectsTotal counts finished subjects by outcome
	subjectsTotal *prometheus.CounterVec

	// subjectDuration tracks end-to-end time per subject
	subjectDuration prometheus.Histogram

	// stageDuration tracks time spent in each enhancement stage
	stageDuration *prometheus.HistogramVec

	// fallbacks counts subjects that skipped enhancement, by reason
	fallbacks *prometheus.CounterVec

	// contrastGain tracks the in-mask contrast ratio after enhancement
	contrastGain prometheus.Histogram

	lastRun prometheus.Gauge
}

// NewRecorder registers all collectors on a fresh registry
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		subjectsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "subjects_total",
				Help:      "Total number of processed subjects by outcome",
			},
			[]string{"outcome"},
		),
		subjectDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "subject_duration_seconds",
				Help:      "Time to load, enhance and render one subject",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Enhancement stage duration in seconds",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
			},
			[]string{"stage"},
		),
		fallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fallbacks_total",
				Help:      "Subjects whose slice or region skipped enhancement",
			},
			[]string{"reason"},
		),
		contrastGain: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "contrast_gain_ratio",
				Help:      "In-mask standard deviation after enhancement over before",
				Buckets:   []float64{.5, .75, 1, 1.25, 1.5, 2, 3, 5},
			},
		),
		lastRun: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time the last batch finished",
			},
		),
	}
}

// Registry exposes the underlying registry, e.g. for gathering in tests
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// RecordSubject records one finished subject
func (r *Recorder) RecordSubject(outcome string, duration time.Duration) {
	r.subjectsTotal.WithLabelValues(outcome).Inc()
	r.subjectDuration.Observe(duration.Seconds())
}

// RecordStage records the duration of one enhancement stage
func (r *Recorder) RecordStage(stage string, duration time.Duration) {
	r.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordFallback counts a subject that took a fallback path
func (r *Recorder) RecordFallback(reason string) {
	r.fallbacks.WithLabelValues(reason).Inc()
}

// RecordContrastGain observes the contrast ratio of one subject
func (r *Recorder) RecordContrastGain(gain float64) {
	r.contrastGain.Observe(gain)
}

// MarkRunFinished stamps the completion time of a batch
func (r *Recorder) MarkRunFinished(at time.Time) {
	r.lastRun.Set(float64(at.Unix()))
}

// WriteTextfile writes all collectors to path in the text exposition format
func (r *Recorder) WriteTextfile(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create metrics directory: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
