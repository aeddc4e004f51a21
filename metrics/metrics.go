// Package metrics exposes session-level observability for a TFTP process.
// It has no effect on protocol behaviour; it exists purely so operators can
// see session counts, timeouts and retransmits, following the
// prometheus.Collector pattern used across the reference corpus's TCP
// connection exporters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Role labels a session by which side does the local reading or writing.
type Role string

const (
	RoleReader Role = "reader"
	RoleWriter Role = "writer"
)

// Collector tracks counts across every session in the process. A single
// Collector is shared by every Session and by the dispatcher; all of its
// methods are safe for concurrent use, matching the corpus's
// prometheus.Collector implementations.
type Collector struct {
	started     *prometheus.CounterVec
	completed   *prometheus.CounterVec
	failed      *prometheus.CounterVec
	timeouts    prometheus.Counter
	retransmits prometheus.Counter
	active      prometheus.Gauge
}

// New builds a Collector. Register it with a prometheus.Registerer (or
// prometheus.DefaultRegisterer) to expose it over promhttp.
func New() *Collector {
	return &Collector{
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tftp_sessions_started_total",
			Help: "TFTP sessions started, labelled by local role.",
		}, []string{"role"}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tftp_sessions_completed_total",
			Help: "TFTP sessions completed successfully, labelled by local role.",
		}, []string{"role"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tftp_sessions_failed_total",
			Help: "TFTP sessions that ended in a fault, labelled by local role.",
		}, []string{"role"}),
		timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tftp_session_timeouts_total",
			Help: "Socket receive timeouts observed across all sessions.",
		}),
		retransmits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tftp_session_retransmits_total",
			Help: "Datagram retransmissions sent across all sessions.",
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tftp_active_sessions",
			Help: "Sessions currently in flight.",
		}),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.started.Describe(ch)
	c.completed.Describe(ch)
	c.failed.Describe(ch)
	ch <- c.timeouts.Desc()
	ch <- c.retransmits.Desc()
	ch <- c.active.Desc()
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.started.Collect(ch)
	c.completed.Collect(ch)
	c.failed.Collect(ch)
	ch <- c.timeouts
	ch <- c.retransmits
	ch <- c.active
}

// SessionStarted records a new session, incrementing the active gauge.
func (c *Collector) SessionStarted(role Role) {
	c.started.WithLabelValues(string(role)).Inc()
	c.active.Inc()
}

// SessionEnded records a session's end, decrementing the active gauge and
// crediting either the completed or failed counter.
func (c *Collector) SessionEnded(role Role, ok bool) {
	c.active.Dec()
	if ok {
		c.completed.WithLabelValues(string(role)).Inc()
	} else {
		c.failed.WithLabelValues(string(role)).Inc()
	}
}

// Timeout records one socket receive timeout.
func (c *Collector) Timeout() { c.timeouts.Inc() }

// Retransmit records one retransmitted datagram.
func (c *Collector) Retransmit() { c.retransmits.Inc() }

// Snapshot is a point-in-time read of a Collector's counters, for a process
// (the client) that wants to report them once at exit instead of serving
// them over promhttp.
type Snapshot struct {
	SessionsStarted   int
	SessionsCompleted int
	SessionsFailed    int
	Timeouts          int
	Retransmits       int
}

// Snapshot reads the Collector's current counter values. It never fails: a
// counter that cannot be read (which does not happen for the counter types
// this package constructs) simply contributes zero.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		SessionsStarted:   sumCounterVec(c.started),
		SessionsCompleted: sumCounterVec(c.completed),
		SessionsFailed:    sumCounterVec(c.failed),
		Timeouts:          readCounter(c.timeouts),
		Retransmits:       readCounter(c.retransmits),
	}
}

func readCounter(c prometheus.Counter) int {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return int(m.GetCounter().GetValue())
}

func sumCounterVec(cv *prometheus.CounterVec) int {
	ch := make(chan prometheus.Metric, 8)
	go func() {
		cv.Collect(ch)
		close(ch)
	}()
	total := 0
	for metric := range ch {
		var m dto.Metric
		if err := metric.Write(&m); err == nil {
			total += int(m.GetCounter().GetValue())
		}
	}
	return total
}
