// Package metrics exposes Prometheus collectors for the gateway and the room coordinator.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "chaincraft"

// Collector holds every collector. A nil *Collector is valid and records nothing.
type Collector struct {
	connections   prometheus.Gauge
	events        *prometheus.CounterVec
	eventDuration *prometheus.HistogramVec
	outbound      *prometheus.CounterVec
	slowConsumers prometheus.Counter
	panics        prometheus.Counter
	roomsCreated  prometheus.Counter
	roomFull      prometheus.Counter
	roomsEvicted  prometheus.Counter
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "connections",
			Help:      "Open websocket connections",
		}),
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "events_total",
			Help:      "Inbound events by name and outcome",
		}, []string{"event", "outcome"}),
		eventDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "event_duration_seconds",
			Help:      "Inbound event handling duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event"}),
		outbound: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "outbound_total",
			Help:      "Outbound frames queued by event name",
		}, []string{"event"}),
		slowConsumers: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "slow_consumers_total",
			Help:      "Connections closed because their send queue overflowed",
		}),
		panics: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "handler_panics_total",
			Help:      "Recovered panics in inbound event handlers",
		}),
		roomsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_created_total",
			Help:      "Rooms created lazily on first join",
		}),
		roomFull: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "room_full_total",
			Help:      "Joins rejected because the room was at capacity",
		}),
		roomsEvicted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_evicted_total",
			Help:      "Rooms removed by the retention sweeper",
		}),
	}
}

func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.connections.Inc()
}

func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.connections.Dec()
}

// Event records one handled inbound event.
func (c *Collector) Event(event, outcome string, took time.Duration) {
	if c == nil {
		return
	}
	c.events.WithLabelValues(event, outcome).Inc()
	c.eventDuration.WithLabelValues(event).Observe(took.Seconds())
}

func (c *Collector) Outbound(event string, frames int) {
	if c == nil {
		return
	}
	c.outbound.WithLabelValues(event).Add(float64(frames))
}

func (c *Collector) SlowConsumer() {
	if c == nil {
		return
	}
	c.slowConsumers.Inc()
}

func (c *Collector) Panic() {
	if c == nil {
		return
	}
	c.panics.Inc()
}

func (c *Collector) RoomCreated() {
	if c == nil {
		return
	}
	c.roomsCreated.Inc()
}

func (c *Collector) RoomFull() {
	if c == nil {
		return
	}
	c.roomFull.Inc()
}

func (c *Collector) RoomsEvicted(n int) {
	if c == nil || n == 0 {
		return
	}
	c.roomsEvicted.Add(float64(n))
}
