package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SimCollector bundles the Prometheus metrics of a simulation run. It
// satisfies mac.Observer and its ObserveEvent method fits the scheduler's
// per-event hook.
type SimCollector struct {
	gatherer prometheus.Gatherer

	EventsExecuted    prometheus.Counter
	FramesTransmitted *prometheus.CounterVec
	FramesReceived    *prometheus.CounterVec
	VirtualTime       prometheus.Gauge
	QueueDepths       *prometheus.GaugeVec
	FlowThroughput    *prometheus.GaugeVec
	RunDuration       prometheus.Histogram
}

// NewSimCollector registers simulator metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	events, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wifisim_events_executed_total",
		Help: "Total number of scheduler events executed.",
	}), "wifisim_events_executed_total")
	if err != nil {
		return nil, err
	}

	transmitted, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wifisim_frames_transmitted_total",
		Help: "Frames put on air, labeled by transmitting device.",
	}, []string{"device"}), "wifisim_frames_transmitted_total")
	if err != nil {
		return nil, err
	}

	received, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wifisim_frames_received_total",
		Help: "Reception attempts, labeled by receiving device and outcome.",
	}, []string{"device", "result"}), "wifisim_frames_received_total")
	if err != nil {
		return nil, err
	}

	virtualTime, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wifisim_virtual_time_seconds",
		Help: "Current virtual time of the running simulation.",
	}), "wifisim_virtual_time_seconds")
	if err != nil {
		return nil, err
	}

	depths, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "wifisim_mac_queue_depth",
		Help: "Frames waiting in a device's MAC queue.",
	}, []string{"device"}), "wifisim_mac_queue_depth")
	if err != nil {
		return nil, err
	}

	throughput, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "wifisim_flow_throughput_mbps",
		Help: "Running throughput of each flow in Mbps.",
	}, []string{"flow"}), "wifisim_flow_throughput_mbps")
	if err != nil {
		return nil, err
	}

	duration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "wifisim_run_duration_seconds",
		Help:    "Wall-clock duration of completed simulation runs.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	}), "wifisim_run_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &SimCollector{
		gatherer:          gatherer,
		EventsExecuted:    events,
		FramesTransmitted: transmitted,
		FramesReceived:    received,
		VirtualTime:       virtualTime,
		QueueDepths:       depths,
		FlowThroughput:    throughput,
		RunDuration:       duration,
	}, nil
}

// ObserveEvent counts one executed event at virtual time now
func (c *SimCollector) ObserveEvent(now float64) {
	if c == nil {
		return
	}
	c.EventsExecuted.Inc()
	c.VirtualTime.Set(now)
}

func (c *SimCollector) FrameTransmitted(device string) {
	if c == nil {
		return
	}
	c.FramesTransmitted.WithLabelValues(device).Inc()
}

func (c *SimCollector) FrameReceived(device, result string) {
	if c == nil {
		return
	}
	c.FramesReceived.WithLabelValues(device, result).Inc()
}

func (c *SimCollector) QueueDepth(device string, depth int) {
	if c == nil {
		return
	}
	c.QueueDepths.WithLabelValues(device).Set(float64(depth))
}

// SetFlowThroughput publishes the running throughput of a flow
func (c *SimCollector) SetFlowThroughput(flow string, mbps float64) {
	if c == nil {
		return
	}
	c.FlowThroughput.WithLabelValues(flow).Set(mbps)
}

// ObserveRun records the wall-clock seconds a run took
func (c *SimCollector) ObserveRun(seconds float64) {
	if c == nil {
		return
	}
	c.RunDuration.Observe(seconds)
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SimCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}
