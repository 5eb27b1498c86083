package scenario

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/saintparish4/wifisim/channel"
	"github.com/saintparish4/wifisim/chaos"
	"github.com/saintparish4/wifisim/logging"
	"github.com/saintparish4/wifisim/mac"
	"github.com/saintparish4/wifisim/nodes"
	"github.com/saintparish4/wifisim/observability"
	"github.com/saintparish4/wifisim/qos"
	"github.com/saintparish4/wifisim/rssi"
	"github.com/saintparish4/wifisim/simulator"
	"github.com/saintparish4/wifisim/traffic"
)

// Options are the optional collaborators of a run
type Options struct {
	Logger  logging.Logger
	Metrics *observability.SimCollector
}

// Build validates cfg and wires a runnable simulation. Sources, beacons and
// outages are scheduled but nothing executes until the simulation advances.
func Build(cfg Config, opts Options) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base := opts.Logger
	if base == nil {
		base = logging.Noop()
	}
	ctx, log, runID := logging.WithRunLogger(context.Background(), base)

	sim := &Simulation{
		cfg:     cfg,
		runID:   runID,
		ctx:     ctx,
		log:     log,
		metrics: opts.Metrics,
		sched:   simulator.NewScheduler(),
		byName:  make(map[string]*nodes.Node, len(cfg.Nodes)),
		macs:    make(map[string]*mac.MAC, len(cfg.Nodes)),
		sinks:   make(map[string]*traffic.Sink, len(cfg.Nodes)),
	}
	if opts.Metrics != nil {
		sim.sched.OnEventExecuted(opts.Metrics.ObserveEvent)
	}

	wifi := cfg.WiFi
	rates, err := channel.NewRateManager(wifi.RateManager, wifi.DataMode, wifi.ChannelWidthMHz)
	if err != nil {
		return nil, err
	}
	reference := channel.MCS0
	if wifi.RateManager == "" || wifi.RateManager == "constant" {
		reference, _ = channel.ParseDataMode(wifi.DataMode)
	}
	errModel, _ := channel.ParseErrorModel(wifi.ErrorModel)
	sim.model, err = channel.NewModel(channel.Config{
		WidthMHz:         wifi.ChannelWidthMHz,
		TxPowerDbm:       wifi.TxPowerDbm,
		RxSensitivityDbm: wifi.RxSensitivityDbm,
		Propagation:      wifi.Propagation,
		ErrorModel:       errModel,
		ReferenceMCS:     reference,
		Seed:             cfg.Seed,
	})
	if err != nil {
		return nil, err
	}
	control, err := channel.ParseDataMode(wifi.ControlMode)
	if err != nil {
		return nil, fmt.Errorf("control mode: %w", err)
	}

	if err := sim.placeNodes(); err != nil {
		return nil, err
	}

	sim.collector = qos.NewCollector(log)
	monitored := sim.monitoredNodes()
	ids := make([]int, len(monitored))
	for i, n := range monitored {
		ids[i] = n.Device().ID
	}
	sim.monitored = monitored
	sim.rssi = rssi.NewLogger(ids...)

	env := mac.Env{
		Scheduler: sim.sched,
		Channel:   sim.model,
		Rates:     rates,
		Medium:    mac.NewMedium(),
		Config:    wifi.macConfig(control),
		Signals:   sim.rssi,
		Logger:    log,
	}
	if opts.Metrics != nil {
		env.Observer = opts.Metrics
	}
	sim.injector = chaos.NewOutageInjector(sim.sched, cfg.Seed, log)

	for _, n := range sim.nodes {
		m, err := mac.New(n.Device(), env)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", n.Name, err)
		}
		sink := traffic.NewSink(sim.collector)
		m.SetReceiver(sink)
		sim.macs[n.Name] = m
		sim.sinks[n.Name] = sink
		sim.injector.Register(n.Name, m)

		if n.IsAccessPoint() {
			if err := m.StartBeacons(0); err != nil {
				return nil, err
			}
		}
	}

	if hc := cfg.HealthCheck; hc.Interval > 0 {
		sim.health, err = chaos.NewHealthChecker(sim.sched, hc.Interval, hc.MaxQueue, log)
		if err != nil {
			return nil, err
		}
		for _, n := range sim.nodes {
			sim.health.Watch(n.Name, sim.macs[n.Name])
		}
		if err := sim.health.Start(0); err != nil {
			return nil, err
		}
	}

	if err := sim.addFlows(); err != nil {
		return nil, err
	}

	for _, o := range cfg.Outages {
		if err := sim.injector.InjectRadioOutage(o.Node, o.At, o.Duration); err != nil {
			return nil, err
		}
	}
	if r := cfg.RandomOutages; r != nil {
		chosen, err := sim.injector.RandomOutages(r.Min, r.Max, r.At, r.Duration)
		if err != nil {
			return nil, err
		}
		log.Info(ctx, "random outages scheduled", logging.Any("nodes", chosen))
	}
	if cfg.Chaos != nil {
		if _, err := chaos.NewExperimentScheduler(sim.injector).Schedule(*cfg.Chaos); err != nil {
			return nil, err
		}
	}

	log.Info(ctx, "simulation built",
		logging.String("scenario", cfg.Name),
		logging.Int("nodes", len(sim.nodes)),
		logging.Int("flows", len(sim.sources)),
		logging.String("rate_manager", rates.Name()),
		logging.Int("width_mhz", wifi.ChannelWidthMHz))
	return sim, nil
}

// placeNodes creates nodes in file order and assigns addresses to stations
// first, then access points.
func (s *Simulation) placeNodes() error {
	pool, err := nodes.NewAddressPool(s.cfg.AddressBase)
	if err != nil {
		return err
	}
	for i, nc := range s.cfg.Nodes {
		kind, _ := nodes.ParseKind(nc.Kind)
		pos, err := nc.Vec()
		if err != nil {
			return err
		}
		n := nodes.NewNode(i, nc.Name, kind, pos)
		s.nodes = append(s.nodes, n)
		s.byName[n.Name] = n
	}

	for _, kind := range []nodes.Kind{nodes.KindStation, nodes.KindAccessPoint} {
		for _, n := range s.nodes {
			if n.Kind != kind {
				continue
			}
			addr, err := pool.Allocate()
			if err != nil {
				return err
			}
			if _, err := n.AttachDevice(addr, s.cfg.WiFi.TxPowerDbm); err != nil {
				return err
			}
		}
	}
	return nil
}

// monitoredNodes resolves the monitor list. An empty list monitors every
// station.
func (s *Simulation) monitoredNodes() []*nodes.Node {
	var out []*nodes.Node
	if len(s.cfg.Monitor) == 0 {
		for _, n := range s.nodes {
			if !n.IsAccessPoint() {
				out = append(out, n)
			}
		}
		return out
	}
	for _, name := range s.cfg.Monitor {
		out = append(out, s.byName[name])
	}
	return out
}

func (s *Simulation) addFlows() error {
	s.demand = qos.DemandTable{
		ByFlow:   make(map[nodes.FlowID]float64, len(s.cfg.Flows)),
		BySource: make(map[netip.Addr]float64, len(s.cfg.Demand.BySource)),
		Default:  s.cfg.Demand.DefaultMbps,
	}
	for name, mbps := range s.cfg.Demand.BySource {
		s.demand.BySource[s.byName[name].Device().Address] = mbps
	}

	for i, fc := range s.cfg.Flows {
		src := s.byName[fc.Source]
		dst := s.byName[fc.Dest]
		size := fc.PacketSize
		if size == 0 {
			size = DefaultPacketSize
		}
		stop := fc.Stop
		if stop == 0 {
			stop = s.cfg.Duration
		}

		source, err := traffic.NewSource(traffic.SourceConfig{
			Source:      src.Device().Address,
			Destination: dst.Device().Address,
			PacketSize:  size,
			RateBps:     float64(fc.Rate),
			Start:       fc.Start,
			Stop:        stop,
			MaxPackets:  fc.MaxPackets,
			Pattern:     traffic.Pattern(fc.Pattern),
			Seed:        s.cfg.Seed + int64(i) + 1,
		}, s.sched, s.macs[fc.Source], s.collector)
		if err != nil {
			return fmt.Errorf("flow %s -> %s: %w", fc.Source, fc.Dest, err)
		}
		if err := source.Start(); err != nil {
			return fmt.Errorf("flow %s -> %s: %w", fc.Source, fc.Dest, err)
		}
		s.sources = append(s.sources, source)

		if demand, ok := s.flowDemand(fc); ok {
			s.demand.ByFlow[source.Flow()] = demand
		}
	}
	return nil
}

// flowDemand picks the flow's own demand, then the per-source entry, then
// the scenario default, then the configured rate.
func (s *Simulation) flowDemand(fc FlowConfig) (float64, bool) {
	if fc.DemandMbps > 0 {
		return fc.DemandMbps, true
	}
	if _, ok := s.cfg.Demand.BySource[fc.Source]; ok {
		return 0, false
	}
	if s.cfg.Demand.DefaultMbps > 0 {
		return 0, false
	}
	return fc.Rate.Mbps(), true
}
