package queue

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/protosignal/metric"
)

// queueMetrics holds Prometheus metrics for queue operations.
type queueMetrics struct {
	puts      prometheus.Counter
	gets      prometheus.Counter
	overflows prometheus.Counter
	drops     prometheus.Counter

	size        prometheus.Gauge
	utilization prometheus.Gauge
}

func newQueueMetrics(registry *metric.MetricsRegistry, prefix string) (*queueMetrics, error) {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "queue",
			Name:        name,
			ConstLabels: prometheus.Labels{"component": prefix},
			Help:        help,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "queue",
			Name:        name,
			ConstLabels: prometheus.Labels{"component": prefix},
			Help:        help,
		})
	}

	m := &queueMetrics{
		puts:        counter("puts_total", "Total number of queued items"),
		gets:        counter("gets_total", "Total number of dequeued items"),
		overflows:   counter("overflows_total", "Total number of puts into a full queue"),
		drops:       counter("drops_total", "Total number of items evicted by overflow"),
		size:        gauge("size", "Current number of items in queue"),
		utilization: gauge("utilization", "Queue utilization as a fraction of capacity (0.0 to 1.0)"),
	}

	if err := registry.RegisterCounter(prefix, "queue_puts", m.puts); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "queue_gets", m.gets); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "queue_overflows", m.overflows); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "queue_drops", m.drops); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(prefix, "queue_size", m.size); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(prefix, "queue_utilization", m.utilization); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *queueMetrics) recordPut(size, capacity int) {
	m.puts.Inc()
	m.updateSize(size, capacity)
}

func (m *queueMetrics) recordGet(size, capacity int) {
	m.gets.Inc()
	m.updateSize(size, capacity)
}

func (m *queueMetrics) recordOverflow() { m.overflows.Inc() }
func (m *queueMetrics) recordDrop()     { m.drops.Inc() }

func (m *queueMetrics) updateSize(size, capacity int) {
	m.size.Set(float64(size))
	m.utilization.Set(float64(size) / float64(capacity))
}
