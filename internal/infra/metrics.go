package infra

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the prometheus instruments the engine updates each tick.
//
//	oms_tick_duration_seconds      – scheduler tick latency histogram
//	oms_orders_total{outcome}      – placements by outcome (placed|rejected|transport)
//	oms_fills_total{result}        – terminal dispositions (complete|rejected)
//	oms_recovery_dropped_total     – orders declared failed by timeout
//	oms_open_orders                – current open-orders map size
//	oms_dispatch_queue_depth       – current dispatch queue length
//	oms_barriers_completed_total   – barriers reached by the drain loop
//	oms_stream_connected           – push subscription state (0/1)
type Metrics struct {
	TickDuration      prometheus.Histogram
	Orders            *prometheus.CounterVec
	Fills             *prometheus.CounterVec
	RecoveryDropped   prometheus.Counter
	OpenOrders        prometheus.Gauge
	QueueDepth        prometheus.Gauge
	BarriersCompleted prometheus.Counter
	StreamConnected   prometheus.Gauge
}

// NewMetrics creates and registers the instrument set on the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "oms_tick_duration_seconds",
			Help:    "Scheduler loop tick duration",
			Buckets: []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1},
		}),
		Orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oms_orders_total",
			Help: "Placement attempts by outcome",
		}, []string{"outcome"}),
		Fills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oms_fills_total",
			Help: "Terminal order dispositions",
		}, []string{"result"}),
		RecoveryDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oms_recovery_dropped_total",
			Help: "Orders declared permanently failed by the recovery timeout",
		}),
		OpenOrders: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "oms_open_orders",
			Help: "Orders currently believed live at the broker",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "oms_dispatch_queue_depth",
			Help: "Intents waiting in the dispatch queue",
		}),
		BarriersCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oms_barriers_completed_total",
			Help: "Barrier sentinels completed by the drain loop",
		}),
		StreamConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "oms_stream_connected",
			Help: "Push subscription connectivity (1 connected, 0 down)",
		}),
	}

	reg.MustRegister(m.TickDuration, m.Orders, m.Fills, m.RecoveryDropped,
		m.OpenOrders, m.QueueDepth, m.BarriersCompleted, m.StreamConnected)
	return m
}

// NewTestMetrics returns an unregistered instrument set for tests.
func NewTestMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
