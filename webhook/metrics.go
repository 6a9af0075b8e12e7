package webhook

import "github.com/prometheus/client_golang/prometheus"

// Collector exposes webhook processing counters.
type Collector struct {
	eventsTotal   *prometheus.CounterVec
	rejectedTotal prometheus.Counter
}

// NewCollector builds the webhook collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "identity",
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Webhook events processed, by event type and outcome.",
		}, []string{"type", "outcome"}),
		rejectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "identity",
			Subsystem: "webhook",
			Name:      "rejected_total",
			Help:      "Webhook deliveries rejected before processing.",
		}),
	}
	if reg != nil {
		reg.MustRegister(c.eventsTotal, c.rejectedTotal)
	}
	return c
}

// RecordEvent counts one processed event.
func (c *Collector) RecordEvent(eventType, outcome string) {
	if c == nil {
		return
	}
	c.eventsTotal.WithLabelValues(eventType, outcome).Inc()
}

// RecordRejection counts a delivery that failed verification or decoding.
func (c *Collector) RecordRejection() {
	if c == nil {
		return
	}
	c.rejectedTotal.Inc()
}
