package sync

import "github.com/prometheus/client_golang/prometheus"

// Collector exposes recovery counters.
type Collector struct {
	recoveriesTotal prometheus.Counter
	failuresTotal   prometheus.Counter
	alertsTotal     prometheus.Counter
}

// NewCollector builds the recovery collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		recoveriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "identity",
			Subsystem: "recovery",
			Name:      "recoveries_total",
			Help:      "Identities recovered from the upstream provider.",
		}),
		failuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "identity",
			Subsystem: "recovery",
			Name:      "failures_total",
			Help:      "Recovery attempts that failed.",
		}),
		alertsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "identity",
			Subsystem: "recovery",
			Name:      "alerts_total",
			Help:      "Times the daily recovery count crossed the alert threshold.",
		}),
	}
	if reg != nil {
		reg.MustRegister(c.recoveriesTotal, c.failuresTotal, c.alertsTotal)
	}
	return c
}

// RecordRecovery counts one successful recovery.
func (c *Collector) RecordRecovery() {
	if c == nil {
		return
	}
	c.recoveriesTotal.Inc()
}

// RecordFailure counts one failed recovery attempt.
func (c *Collector) RecordFailure() {
	if c == nil {
		return
	}
	c.failuresTotal.Inc()
}

// RecordAlert counts one threshold crossing.
func (c *Collector) RecordAlert() {
	if c == nil {
		return
	}
	c.alertsTotal.Inc()
}
