// Package metrics records export run metrics with Prometheus collectors.
//
// deepexport is a batch tool, so nothing is served over HTTP. At the end
// of a run the registry can be written in the text exposition format to
// a file, ready for the node_exporter textfile collector.
//
// All Collector methods are safe to call on a nil *Collector, which is
// how metrics are disabled.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shinji-kodama/deepexport/internal/model"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "deepexport"

// Collector holds the run metrics.
type Collector struct {
	registry *prometheus.Registry

	folders   prometheus.Counter
	documents prometheus.Counter
	exported  prometheus.Counter
	failed    prometheus.Counter
	bytes     prometheus.Counter
	skipped   *prometheus.CounterVec
	queries   *prometheus.CounterVec
	duration  prometheus.Gauge
	lastRun   prometheus.Gauge
}

// NewCollector creates the collectors and registers them with registry.
// If registry is nil a new one is created.
func NewCollector(namespace string, registry *prometheus.Registry) (*Collector, error) {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}

	c := &Collector{
		registry: registry,
		folders: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "folders_total",
			Help:      "Sub folders entered during the export.",
		}),
		documents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_attempted_total",
			Help:      "Documents for which an export was attempted.",
		}),
		exported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_exported_total",
			Help:      "Documents written to disk.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_failed_total",
			Help:      "Documents whose content could not be written.",
		}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exported_bytes_total",
			Help:      "Bytes of content written to disk.",
		}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "objects_skipped_total",
			Help:      "Objects skipped, by reason.",
		}, []string{"reason"}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "repository_queries_total",
			Help:      "Repository queries issued, by kind.",
		}, []string{"kind"}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of the last run.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time at which the last run finished.",
		}),
	}

	for _, col := range []prometheus.Collector{
		c.folders, c.documents, c.exported, c.failed, c.bytes,
		c.skipped, c.queries, c.duration, c.lastRun,
	} {
		if err := registry.Register(col); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}
	return c, nil
}

// Registry returns the registry the collectors are registered with.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// FolderEntered records a sub folder visit.
func (c *Collector) FolderEntered() {
	if c == nil {
		return
	}
	c.folders.Inc()
}

// DocumentAttempted records an export attempt.
func (c *Collector) DocumentAttempted() {
	if c == nil {
		return
	}
	c.documents.Inc()
}

// DocumentExported records a written file of n bytes.
func (c *Collector) DocumentExported(n int64) {
	if c == nil {
		return
	}
	c.exported.Inc()
	c.bytes.Add(float64(n))
}

// DocumentFailed records a failed write.
func (c *Collector) DocumentFailed() {
	if c == nil {
		return
	}
	c.failed.Inc()
}

// Skipped records a skipped object.
func (c *Collector) Skipped(reason model.SkipReason) {
	if c == nil {
		return
	}
	c.skipped.WithLabelValues(reason.String()).Inc()
}

// Queries records n repository queries of the given kind ("children",
// "count", ...).
func (c *Collector) Queries(kind string, n int) {
	if c == nil {
		return
	}
	c.queries.WithLabelValues(kind).Add(float64(n))
}

// RunFinished records the run duration and completion time.
func (c *Collector) RunFinished(d time.Duration, at time.Time) {
	if c == nil {
		return
	}
	c.duration.Set(d.Seconds())
	c.lastRun.Set(float64(at.Unix()))
}

// WriteTextfile writes all metrics to path in the text exposition format.
func (c *Collector) WriteTextfile(path string) error {
	if c == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}
