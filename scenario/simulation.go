package scenario

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/saintparish4/wifisim/channel"
	"github.com/saintparish4/wifisim/chaos"
	"github.com/saintparish4/wifisim/logging"
	"github.com/saintparish4/wifisim/mac"
	"github.com/saintparish4/wifisim/nodes"
	"github.com/saintparish4/wifisim/observability"
	"github.com/saintparish4/wifisim/qos"
	"github.com/saintparish4/wifisim/report"
	"github.com/saintparish4/wifisim/rssi"
	"github.com/saintparish4/wifisim/simulator"
	"github.com/saintparish4/wifisim/traffic"
)

// DefaultSlice is the virtual time Run advances between cancellation checks.
const DefaultSlice = 0.5

// Simulation is one built scenario. It is driven from a single goroutine.
type Simulation struct {
	cfg     Config
	runID   string
	ctx     context.Context
	log     logging.Logger
	metrics *observability.SimCollector

	sched     *simulator.Scheduler
	model     *channel.Model
	nodes     []*nodes.Node
	byName    map[string]*nodes.Node
	macs      map[string]*mac.MAC
	sinks     map[string]*traffic.Sink
	sources   []*traffic.Source
	collector *qos.Collector
	rssi      *rssi.Logger
	monitored []*nodes.Node
	injector  *chaos.OutageInjector
	health    *chaos.HealthChecker
	demand    qos.DemandTable

	final *qos.Report
}

// RunID returns the unique id of this run
func (s *Simulation) RunID() string { return s.runID }

// Config returns the validated scenario
func (s *Simulation) Config() Config { return s.cfg }

// Now returns the current virtual time
func (s *Simulation) Now() float64 { return s.sched.Now() }

// Scheduler exposes the event kernel
func (s *Simulation) Scheduler() *simulator.Scheduler { return s.sched }

// Nodes returns the nodes in file order
func (s *Simulation) Nodes() []*nodes.Node { return s.nodes }

// Node looks up a node by name
func (s *Simulation) Node(name string) (*nodes.Node, bool) {
	n, ok := s.byName[name]
	return n, ok
}

// MAC returns the MAC of the named node
func (s *Simulation) MAC(name string) (*mac.MAC, bool) {
	m, ok := s.macs[name]
	return m, ok
}

// Sink returns the receiving application of the named node
func (s *Simulation) Sink(name string) (*traffic.Sink, bool) {
	sink, ok := s.sinks[name]
	return sink, ok
}

func (s *Simulation) Sources() []*traffic.Source { return s.sources }

func (s *Simulation) Collector() *qos.Collector { return s.collector }

func (s *Simulation) RSSI() *rssi.Logger { return s.rssi }

func (s *Simulation) Injector() *chaos.OutageInjector { return s.injector }

// Health returns the device health checker, nil when disabled
func (s *Simulation) Health() *chaos.HealthChecker { return s.health }

// Demand returns the demand table used for QoS ratios
func (s *Simulation) Demand() qos.DemandTable { return s.demand }

// Done reports whether the run reached its duration or was finished
func (s *Simulation) Done() bool {
	return s.final != nil || s.sched.Now() >= s.cfg.Duration
}

// Advance executes events up to until, capped at the scenario duration. It
// returns the number of events executed.
func (s *Simulation) Advance(until float64) int {
	if s.final != nil {
		return 0
	}
	return s.sched.RunUntil(math.Min(until, s.cfg.Duration))
}

// Run drives the simulation to its duration in virtual-time slices,
// checking ctx between slices, and returns the final report.
func (s *Simulation) Run(ctx context.Context) (qos.Report, error) {
	ctx = logging.ContextWithRunID(ctx, s.runID)
	ctx, span := observability.StartRunSpan(ctx, observability.RunAttributes{
		RunID:    s.runID,
		Scenario: s.cfg.Name,
		Nodes:    len(s.nodes),
		Flows:    len(s.sources),
		Duration: s.cfg.Duration,
	})
	defer span.End()

	start := time.Now()
	s.log.Info(ctx, "simulation started", logging.Float("duration", s.cfg.Duration))

	for !s.Done() {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "cancelled")
			s.log.Warn(ctx, "simulation cancelled", logging.SimTime(s.Now()), logging.Err(err))
			return qos.Report{}, fmt.Errorf("run %s: %w", s.runID, err)
		}
		s.Advance(s.Now() + DefaultSlice)
	}

	r := s.Finish()
	elapsed := time.Since(start)
	s.metrics.ObserveRun(elapsed.Seconds())

	stats := s.sched.Stats()
	span.SetAttributes(
		attribute.Int64("wifisim.events", stats.Executed),
		attribute.Int("wifisim.rssi_samples", s.rssi.Len()),
	)
	s.log.Info(ctx, "simulation finished",
		logging.SimTime(s.Now()),
		logging.Any("events", stats.Executed),
		logging.Int("rssi_samples", s.rssi.Len()),
		logging.Int("anomalies", s.collector.Anomalies()),
		logging.String("wall", elapsed.String()))
	return r, nil
}

// Finish stops all sources and beacons and freezes the flow statistics.
// Later calls return the same report.
func (s *Simulation) Finish() qos.Report {
	if s.final != nil {
		return *s.final
	}
	for _, src := range s.sources {
		src.Stop()
	}
	for _, m := range s.macs {
		m.StopBeacons()
	}
	if s.health != nil {
		s.health.Stop()
	}
	r := s.collector.Finalize(s.demand)
	s.final = &r
	s.publishThroughput(r)
	return r
}

// Report returns the final report after Finish, or the running statistics
// before it.
func (s *Simulation) Report() qos.Report {
	if s.final != nil {
		return *s.final
	}
	return s.collector.Snapshot(s.demand)
}

func (s *Simulation) publishThroughput(r qos.Report) {
	if s.metrics == nil {
		return
	}
	for _, f := range r.Flows {
		s.metrics.SetFlowThroughput(f.ID.String(), f.ThroughputMbps)
	}
}

// MonitoredNodes returns the nodes whose RSSI is written to CSV
func (s *Simulation) MonitoredNodes() []*nodes.Node { return s.monitored }

// WriteOutputs writes the flow metrics CSV and one RSSI CSV per monitored
// node under dir, or the scenario's output dir when dir is empty. It
// returns the paths written.
func (s *Simulation) WriteOutputs(dir string) ([]string, error) {
	if dir == "" {
		dir = s.cfg.Output.Dir
	}
	var written []string

	metricsPath := filepath.Join(dir, s.cfg.Output.MetricsFile)
	if err := report.WriteFlowsFile(metricsPath, s.Report()); err != nil {
		return written, err
	}
	written = append(written, metricsPath)

	for _, n := range s.monitored {
		path := filepath.Join(dir, s.cfg.Output.RSSIPrefix+n.Name+".csv")
		if err := report.WriteRSSIFile(path, s.rssi.Samples(n.Device().ID)); err != nil {
			return written, err
		}
		written = append(written, path)
	}

	s.log.Info(s.ctx, "outputs written", logging.Any("files", written))
	return written, nil
}
