// Package metrics exposes per-run Prometheus metrics and pushes them to a
// Pushgateway when the run ends. A harvest run is a batch job, so nothing
// is scraped; all methods are safe on a nil *Metrics.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Skip reasons for events the reader drops.
const (
	SkipMalformed = "malformed"
	SkipRateLimit = "rate_limit"
	SkipKeepalive = "keepalive"
)

// JobName is the Pushgateway job label.
const JobName = "harvest"

// Metrics holds the collectors for one run on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	EventsAdmitted   prometheus.Counter
	EventsSkipped    *prometheus.CounterVec
	RecordsCollected prometheus.Counter
	RecordsWritten   prometheus.Counter
	HandoffDepth     prometheus.Gauge
	Progress         prometheus.Gauge
	RunDuration      prometheus.Gauge
	LastSuccess      prometheus.Gauge
}

// New registers a fresh set of collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		EventsAdmitted: f.NewCounter(prometheus.CounterOpts{
			Name: "harvest_events_admitted_total",
			Help: "Events forwarded from the stream to the collector",
		}),
		EventsSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "harvest_events_skipped_total",
			Help: "Stream lines dropped by the reader",
		}, []string{"reason"}),
		RecordsCollected: f.NewCounter(prometheus.CounterOpts{
			Name: "harvest_records_collected_total",
			Help: "Events normalized into the ordering buffer",
		}),
		RecordsWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "harvest_records_written_total",
			Help: "Rows written to the output file",
		}),
		HandoffDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "harvest_handoff_depth",
			Help: "Events waiting in the handoff queue",
		}),
		Progress: f.NewGauge(prometheus.GaugeOpts{
			Name: "harvest_progress_ratio",
			Help: "Fraction of the larger budget consumed, 0 to 1",
		}),
		RunDuration: f.NewGauge(prometheus.GaugeOpts{
			Name: "harvest_run_duration_seconds",
			Help: "Wall-clock duration of the last run",
		}),
		LastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Name: "harvest_last_success_timestamp_seconds",
			Help: "Unix time the last successful run finished",
		}),
	}
}

func (m *Metrics) Admitted() {
	if m == nil {
		return
	}
	m.EventsAdmitted.Inc()
}

func (m *Metrics) Skipped(reason string) {
	if m == nil {
		return
	}
	m.EventsSkipped.WithLabelValues(reason).Inc()
}

func (m *Metrics) Collected() {
	if m == nil {
		return
	}
	m.RecordsCollected.Inc()
}

func (m *Metrics) Written(n int) {
	if m == nil {
		return
	}
	m.RecordsWritten.Add(float64(n))
}

func (m *Metrics) SetHandoffDepth(n int) {
	if m == nil {
		return
	}
	m.HandoffDepth.Set(float64(n))
}

func (m *Metrics) SetProgress(f float64) {
	if m == nil {
		return
	}
	m.Progress.Set(f)
}

// Finish records the run duration and, on success, the completion time.
func (m *Metrics) Finish(durationSeconds float64, finishedUnix int64, ok bool) {
	if m == nil {
		return
	}
	m.RunDuration.Set(durationSeconds)
	if ok {
		m.LastSuccess.Set(float64(finishedUnix))
	}
}

// Push replaces this job's metrics on the Pushgateway at url, grouped by
// run filter so concurrent harvesters do not overwrite each other.
func (m *Metrics) Push(ctx context.Context, url, filter string) error {
	if m == nil || url == "" {
		return nil
	}
	p := push.New(url, JobName).Gatherer(m.Registry)
	if filter != "" {
		p = p.Grouping("filter", filter)
	}
	if err := p.PushContext(ctx); err != nil {
		return fmt.Errorf("pushing metrics to %s: %w", url, err)
	}
	return nil
}
