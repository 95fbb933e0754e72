package server

import (
	"github.com/iliastsa/httpd"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "httpd"

// Listener labels for the connections counter.
const (
	listenerService = "service"
	listenerControl = "control"
)

// Metrics holds the Prometheus collectors of one Server.
type Metrics struct {
	connections    *prometheus.CounterVec // accepted connections by listener.
	responses      *prometheus.CounterVec // HTTP responses by status code.
	commands       *prometheus.CounterVec // control commands by name.
	submitFailures prometheus.Counter     // tasks the pool refused.
	revivedWorkers prometheus.Counter     // workers respawned by supervision.
	pagesServed    prometheus.Counter
	bytesServed    prometheus.Counter
	poolIdle       prometheus.Gauge // 1 while no task is running or queued.
}

func newMetrics() *Metrics {
	return &Metrics{
		connections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "connections_accepted_total",
			Help:      "Connections accepted per listener",
		}, []string{"listener"}),
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "responses_total",
			Help:      "HTTP responses sent per status code",
		}, []string{"code"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "control_commands_total",
			Help:      "Control channel commands received",
		}, []string{"command"}),
		submitFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "task_submit_failures_total",
			Help:      "Connections closed because the worker pool refused the task",
		}),
		revivedWorkers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "workers_revived_total",
			Help:      "Workers respawned after an abnormal exit",
		}),
		pagesServed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "pages_served_total",
			Help:      "Files sent in full",
		}),
		bytesServed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "bytes_served_total",
			Help:      "File bytes sent in full responses",
		}),
		poolIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "pool_idle",
			Help:      "1 when no task is running or queued",
		}),
	}
}

// register adds the collectors, plus gauges sampled from the pool, to reg.
func (m *Metrics) register(reg prometheus.Registerer, pool *httpd.WorkerPool) error {
	collectors := []prometheus.Collector{
		m.connections,
		m.responses,
		m.commands,
		m.submitFailures,
		m.revivedWorkers,
		m.pagesServed,
		m.bytesServed,
		m.poolIdle,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "workers_alive",
			Help:      "Worker goroutines currently alive",
		}, func() float64 { return float64(pool.Stats().Alive) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "workers_active",
			Help:      "Workers currently executing a task",
		}, func() float64 { return float64(pool.Stats().Active) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "queue_depth",
			Help:      "Tasks waiting for a worker",
		}, func() float64 { return float64(pool.Stats().Queued) }),
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}

	return nil
}
