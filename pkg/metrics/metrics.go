// Package metrics records converge runs for the node_exporter textfile collector.
package metrics

import (
	"time"

	"github.com/errm/queuestrap/pkg/system"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "queuestrap"

// Collector holds the converge metrics of this process.
type Collector struct {
	registry *prometheus.Registry

	runs          *prometheus.CounterVec
	notifications *prometheus.CounterVec
	changed       prometheus.Gauge
	duration      prometheus.Gauge
	lastRun       prometheus.Gauge
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "converge_runs_total",
			Help:      "Converge runs by outcome.",
		}, []string{"outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifications acted on by action.",
		}, []string{"action"}),
		changed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "artifacts_changed",
			Help:      "Artifacts written by the last converge run.",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "converge_duration_seconds",
			Help:      "Duration of the last converge run.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_converge_timestamp_seconds",
			Help:      "Unix time the last converge run finished.",
		}),
	}
	c.registry.MustRegister(c.runs, c.notifications, c.changed, c.duration, c.lastRun)
	return c
}

// Observe records a converge run that took d and ended with err.
func (c *Collector) Observe(result system.Result, d time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	c.runs.WithLabelValues(outcome).Inc()
	c.changed.Set(float64(len(result.Changed)))
	for _, n := range result.Notified {
		c.notifications.WithLabelValues(string(n.Action)).Inc()
	}
	c.duration.Set(d.Seconds())
	c.lastRun.SetToCurrentTime()
}

// Write replaces the textfile at path.
func (c *Collector) Write(path string) error {
	return errors.Wrapf(prometheus.WriteToTextfile(path, c.registry), "unable to write metrics to %s", path)
}
