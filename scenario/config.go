package scenario

import (
	"errors"
	"fmt"
	"math"

	"github.com/saintparish4/wifisim/channel"
	"github.com/saintparish4/wifisim/chaos"
	"github.com/saintparish4/wifisim/mac"
	"github.com/saintparish4/wifisim/nodes"
	"github.com/saintparish4/wifisim/simulator"
	"github.com/saintparish4/wifisim/traffic"
)

// ErrUnknownNode is returned when a flow, monitor or outage names a node
// that is not defined.
var ErrUnknownNode = errors.New("unknown node")

// Defaults taken from the two-UAV driver.
const (
	DefaultDuration    = 11.0
	DefaultPacketSize  = 1472
	DefaultAddressBase = "192.168.1.0/24"
	DefaultStandard    = "802.11ax"
	DefaultDataMode    = "HeMcs5"
	DefaultControlMode = "HeMcs0"
	DefaultMetricsFile = "wifi6_metrics.csv"
	DefaultRSSIPrefix  = "rssi_"
)

// Config is the root of a scenario file
type Config struct {
	Name          string              `yaml:"name,omitempty"`
	Duration      float64             `yaml:"duration"` // seconds of virtual time
	Seed          int64               `yaml:"seed"`
	WiFi          WiFiConfig          `yaml:"wifi"`
	AddressBase   string              `yaml:"address_base"`
	Nodes         []NodeConfig        `yaml:"nodes"`
	Flows         []FlowConfig        `yaml:"flows"`
	Monitor       []string            `yaml:"monitor,omitempty"`
	Outages       []OutageConfig      `yaml:"outages,omitempty"`
	RandomOutages *RandomOutageConfig `yaml:"random_outages,omitempty"`
	Chaos         *chaos.Experiment   `yaml:"chaos,omitempty"`
	HealthCheck   HealthCheckConfig   `yaml:"health_check"`
	Demand        DemandConfig        `yaml:"demand,omitempty"`
	Output        OutputConfig        `yaml:"output"`
}

// WiFiConfig holds the PHY and MAC settings shared by every device
type WiFiConfig struct {
	Standard         string              `yaml:"standard"`
	ChannelWidthMHz  int                 `yaml:"channel_width_mhz"`
	RateManager      string              `yaml:"rate_manager"`
	DataMode         string              `yaml:"data_mode"`
	ControlMode      string              `yaml:"control_mode"`
	ErrorModel       string              `yaml:"error_model"`
	TxPowerDbm       float64             `yaml:"tx_power_dbm"`
	RxSensitivityDbm float64             `yaml:"rx_sensitivity_dbm"`
	Propagation      channel.LogDistance `yaml:"propagation"`
	PropagationDelay float64             `yaml:"propagation_delay_s"`
	BeaconInterval   float64             `yaml:"beacon_interval_s"`
	BeaconSize       int                 `yaml:"beacon_size"`
}

// NodeConfig places one node. Position is [x, y] or [x, y, z] in metres.
type NodeConfig struct {
	Name     string    `yaml:"name"`
	Kind     string    `yaml:"kind"`
	Position []float64 `yaml:"position"`
}

// FlowConfig is one UDP client sending to a node's sink.
type FlowConfig struct {
	Source     string  `yaml:"source"`
	Dest       string  `yaml:"dest"`
	Rate       Rate    `yaml:"rate"`
	PacketSize int     `yaml:"packet_size,omitempty"` // 0 means 1472
	Start      float64 `yaml:"start"`
	Stop       float64 `yaml:"stop,omitempty"` // 0 means the scenario duration
	MaxPackets uint64  `yaml:"max_packets,omitempty"`
	Pattern    string  `yaml:"pattern,omitempty"`
	DemandMbps float64 `yaml:"demand_mbps,omitempty"`
}

// OutageConfig turns a node's radio off at At for Duration seconds
// (0 = until the end of the run).
type OutageConfig struct {
	Node     string  `yaml:"node"`
	At       float64 `yaml:"at"`
	Duration float64 `yaml:"duration"`
}

// RandomOutageConfig picks between Min and Max nodes for an outage
type RandomOutageConfig struct {
	Min      int     `yaml:"min"`
	Max      int     `yaml:"max"`
	At       float64 `yaml:"at"`
	Duration float64 `yaml:"duration"`
}

// DemandConfig is the expected rate used for the QoS ratio when a flow
// does not set demand_mbps.
type DemandConfig struct {
	DefaultMbps float64            `yaml:"default_mbps,omitempty"`
	BySource    map[string]float64 `yaml:"by_source,omitempty"`
}

// HealthCheckConfig controls the periodic device health check. A zero
// interval disables it.
type HealthCheckConfig struct {
	Interval float64 `yaml:"interval_s"`
	MaxQueue int     `yaml:"max_queue"`
}

// OutputConfig names the CSV files written after a run
type OutputConfig struct {
	Dir         string `yaml:"dir"`
	MetricsFile string `yaml:"metrics_file"`
	RSSIPrefix  string `yaml:"rssi_prefix"`
}

// Default returns a scenario with no nodes and the driver's radio settings.
func Default() Config {
	return Config{
		Duration: DefaultDuration,
		Seed:     1,
		WiFi: WiFiConfig{
			Standard:         DefaultStandard,
			ChannelWidthMHz:  channel.DefaultWidthMHz,
			RateManager:      "constant",
			DataMode:         DefaultDataMode,
			ControlMode:      DefaultControlMode,
			ErrorModel:       string(channel.ErrorModelTable),
			TxPowerDbm:       channel.DefaultTxPowerDbm,
			RxSensitivityDbm: channel.DefaultRxSensitivityDbm,
			Propagation:      channel.DefaultLogDistance(),
			PropagationDelay: mac.DefaultPropagationDelay,
			BeaconInterval:   mac.DefaultBeaconInterval,
			BeaconSize:       mac.DefaultBeaconSize,
		},
		AddressBase: DefaultAddressBase,
		HealthCheck: HealthCheckConfig{Interval: 0.5, MaxQueue: 500},
		Output: OutputConfig{
			Dir:         ".",
			MetricsFile: DefaultMetricsFile,
			RSSIPrefix:  DefaultRSSIPrefix,
		},
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, simulator.ErrInvalidArgument)...)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Validate checks the whole scenario before anything is built
func (c *Config) Validate() error {
	if !finite(c.Duration) || c.Duration <= 0 {
		return invalid("duration %v", c.Duration)
	}
	if err := c.WiFi.Validate(); err != nil {
		return fmt.Errorf("wifi: %w", err)
	}
	if _, err := nodes.NewAddressPool(c.AddressBase); err != nil {
		return invalid("address base %q", c.AddressBase)
	}
	if len(c.Nodes) == 0 {
		return invalid("scenario has no nodes")
	}

	names := make(map[string]bool, len(c.Nodes))
	for i, n := range c.Nodes {
		if n.Name == "" {
			return invalid("node %d has no name", i)
		}
		if names[n.Name] {
			return invalid("duplicate node %q", n.Name)
		}
		names[n.Name] = true
		if _, err := nodes.ParseKind(n.Kind); err != nil {
			return invalid("node %q kind %q", n.Name, n.Kind)
		}
		if _, err := n.Vec(); err != nil {
			return err
		}
	}

	type pair struct{ src, dst string }
	seen := make(map[pair]bool, len(c.Flows))
	for i, f := range c.Flows {
		if !names[f.Source] {
			return fmt.Errorf("flow %d source %q: %w", i, f.Source, ErrUnknownNode)
		}
		if !names[f.Dest] {
			return fmt.Errorf("flow %d dest %q: %w", i, f.Dest, ErrUnknownNode)
		}
		if f.Source == f.Dest {
			return invalid("flow %d sends to itself", i)
		}
		if seen[pair{f.Source, f.Dest}] {
			return invalid("duplicate flow %s -> %s", f.Source, f.Dest)
		}
		seen[pair{f.Source, f.Dest}] = true
		if !finite(float64(f.Rate)) || f.Rate <= 0 {
			return invalid("flow %d rate %v", i, f.Rate)
		}
		if f.PacketSize < 0 {
			return invalid("flow %d packet size %d", i, f.PacketSize)
		}
		if !finite(f.Start) || f.Start < 0 || !finite(f.Stop) || f.Stop < 0 {
			return invalid("flow %d times %v-%v", i, f.Start, f.Stop)
		}
		if f.Stop != 0 && f.Stop < f.Start {
			return invalid("flow %d stop %v before start %v", i, f.Stop, f.Start)
		}
		switch traffic.Pattern(f.Pattern) {
		case "", traffic.PatternConstant, traffic.PatternPoisson:
		default:
			return invalid("flow %d pattern %q", i, f.Pattern)
		}
		if !finite(f.DemandMbps) || f.DemandMbps < 0 {
			return invalid("flow %d demand %v", i, f.DemandMbps)
		}
	}

	for _, name := range c.Monitor {
		if !names[name] {
			return fmt.Errorf("monitor %q: %w", name, ErrUnknownNode)
		}
	}
	for _, o := range c.Outages {
		if !names[o.Node] {
			return fmt.Errorf("outage %q: %w", o.Node, ErrUnknownNode)
		}
		if !finite(o.At) || o.At < 0 || !finite(o.Duration) || o.Duration < 0 {
			return invalid("outage on %q at %v for %v", o.Node, o.At, o.Duration)
		}
	}
	if r := c.RandomOutages; r != nil {
		if r.Min < 0 || r.Max < r.Min || !finite(r.At) || r.At < 0 || !finite(r.Duration) || r.Duration < 0 {
			return invalid("random outages %+v", *r)
		}
	}
	if e := c.Chaos; e != nil {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("chaos: %w", err)
		}
		for _, ev := range e.Events {
			for _, name := range append([]string{ev.Target}, ev.Targets...) {
				if name != "" && !names[name] {
					return fmt.Errorf("chaos target %q: %w", name, ErrUnknownNode)
				}
			}
		}
	}
	for name, v := range c.Demand.BySource {
		if !names[name] {
			return fmt.Errorf("demand for %q: %w", name, ErrUnknownNode)
		}
		if !finite(v) || v < 0 {
			return invalid("demand for %q: %v", name, v)
		}
	}
	if !finite(c.Demand.DefaultMbps) || c.Demand.DefaultMbps < 0 {
		return invalid("default demand %v", c.Demand.DefaultMbps)
	}
	if h := c.HealthCheck; !finite(h.Interval) || h.Interval < 0 || h.MaxQueue < 0 {
		return invalid("health check %+v", h)
	}
	if c.Output.MetricsFile == "" {
		return invalid("output metrics_file is empty")
	}
	return nil
}

// Validate checks the radio settings
func (w WiFiConfig) Validate() error {
	if w.Standard != "" && w.Standard != DefaultStandard {
		return invalid("standard %q", w.Standard)
	}
	if !channel.ValidWidth(w.ChannelWidthMHz) {
		return invalid("channel width %d MHz", w.ChannelWidthMHz)
	}
	if _, err := channel.NewRateManager(w.RateManager, w.DataMode, w.ChannelWidthMHz); err != nil {
		return err
	}
	if _, err := channel.ParseDataMode(w.ControlMode); err != nil {
		return fmt.Errorf("control mode: %w", err)
	}
	if _, err := channel.ParseErrorModel(w.ErrorModel); err != nil {
		return err
	}
	if !finite(w.TxPowerDbm) || !finite(w.RxSensitivityDbm) {
		return invalid("tx power %v / sensitivity %v", w.TxPowerDbm, w.RxSensitivityDbm)
	}
	if err := w.Propagation.Validate(); err != nil {
		return err
	}
	return w.macConfig(channel.MCS0).Validate()
}

func (w WiFiConfig) macConfig(control channel.MCS) mac.Config {
	return mac.Config{
		PropagationDelay: w.PropagationDelay,
		ControlMCS:       control,
		BeaconInterval:   w.BeaconInterval,
		BeaconSize:       w.BeaconSize,
	}
}

// Vec converts Position to a point; z defaults to 0.
func (n NodeConfig) Vec() (nodes.Vec3, error) {
	p := n.Position
	if len(p) != 2 && len(p) != 3 {
		return nodes.Vec3{}, invalid("node %q position needs 2 or 3 coordinates, got %d", n.Name, len(p))
	}
	for _, v := range p {
		if !finite(v) {
			return nodes.Vec3{}, invalid("node %q position %v", n.Name, p)
		}
	}
	v := nodes.Vec3{X: p[0], Y: p[1]}
	if len(p) == 3 {
		v.Z = p[2]
	}
	return v, nil
}

// ChaosTargets splits the node names by kind for the experiment library
func (c *Config) ChaosTargets() chaos.Targets {
	var t chaos.Targets
	for _, n := range c.Nodes {
		if k, err := nodes.ParseKind(n.Kind); err == nil && k == nodes.KindAccessPoint {
			t.AccessPoints = append(t.AccessPoints, n.Name)
		} else {
			t.Stations = append(t.Stations, n.Name)
		}
	}
	return t
}

// Node returns the config of the named node
func (c *Config) Node(name string) (NodeConfig, bool) {
	for _, n := range c.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return NodeConfig{}, false
}
