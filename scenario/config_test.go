package scenario

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saintparish4/wifisim/chaos"
	"github.com/saintparish4/wifisim/nodes"
	"github.com/saintparish4/wifisim/simulator"
)

const twoUAVYAML = `
name: two_uav
duration: 11
seed: 7
wifi:
  channel_width_mhz: 160
  rate_manager: constant
  data_mode: HeMcs5
  control_mode: HeMcs0
nodes:
  - {name: uav0, kind: station, position: [1, 1, 0]}
  - {name: uav1, kind: sta, position: [13.5, 13.5]}
  - {name: ap, kind: ap, position: [0, 0, 0]}
flows:
  - {source: uav0, dest: ap, rate: 5Mbps, packet_size: 1472, start: 1, stop: 10}
  - {source: uav1, dest: ap, rate: 50Mbps, packet_size: 1472, start: 1, stop: 10}
monitor: [uav0, uav1]
output:
  dir: out
`

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(twoUAVYAML))
	require.NoError(t, err)

	assert.Equal(t, "two_uav", cfg.Name)
	assert.Equal(t, int64(7), cfg.Seed)
	assert.Equal(t, 11.0, cfg.Duration)
	assert.Equal(t, DefaultAddressBase, cfg.AddressBase)
	assert.Equal(t, DefaultStandard, cfg.WiFi.Standard)
	assert.Equal(t, "table", cfg.WiFi.ErrorModel)
	assert.InDelta(t, 3.0, cfg.WiFi.Propagation.Exponent, 1e-12)
	assert.InDelta(t, 0.1024, cfg.WiFi.BeaconInterval, 1e-12)

	require.Len(t, cfg.Flows, 2)
	assert.InDelta(t, 5e6, float64(cfg.Flows[0].Rate), 1e-6)
	assert.InDelta(t, 50e6, float64(cfg.Flows[1].Rate), 1e-6)

	// Partially set output keeps the default file names
	assert.Equal(t, "out", cfg.Output.Dir)
	assert.Equal(t, DefaultMetricsFile, cfg.Output.MetricsFile)
	assert.Equal(t, DefaultRSSIPrefix, cfg.Output.RSSIPrefix)

	pos, err := cfg.Nodes[1].Vec()
	require.NoError(t, err)
	assert.Equal(t, 0.0, pos.Z)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte(twoUAVYAML + "\nbogus_key: 1\n"))
	assert.Error(t, err)
}

func TestParseRate(t *testing.T) {
	cases := []struct {
		in   string
		want Rate
		ok   bool
	}{
		{"5Mbps", 5e6, true},
		{"50 Mbps", 50e6, true},
		{"500kbps", 500e3, true},
		{"1.5Gb/s", 1.5e9, true},
		{"64000", 64000, true},
		{"100bps", 100, true},
		{"", 0, false},
		{"fast", 0, false},
		{"-5Mbps", 0, false},
		{"0Mbps", 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseRate(tc.in)
			if !tc.ok {
				assert.ErrorIs(t, err, simulator.ErrInvalidArgument)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, float64(tc.want), float64(got), 1e-6)
		})
	}
}

func TestRateString(t *testing.T) {
	assert.Equal(t, "5Mbps", Mbps(5).String())
	assert.Equal(t, "1.5Gbps", Rate(1.5e9).String())
	assert.Equal(t, "500Kbps", Rate(500e3).String())
	assert.Equal(t, "10bps", Rate(10).String())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		target error
	}{
		{"zero duration", func(c *Config) { c.Duration = 0 }, simulator.ErrInvalidArgument},
		{"bad width", func(c *Config) { c.WiFi.ChannelWidthMHz = 60 }, simulator.ErrInvalidArgument},
		{"bad data mode", func(c *Config) { c.WiFi.DataMode = "VhtMcs5" }, simulator.ErrInvalidArgument},
		{"bad control mode", func(c *Config) { c.WiFi.ControlMode = "HeMcs12" }, simulator.ErrInvalidArgument},
		{"bad rate manager", func(c *Config) { c.WiFi.RateManager = "arf" }, simulator.ErrInvalidArgument},
		{"bad error model", func(c *Config) { c.WiFi.ErrorModel = "nist" }, simulator.ErrInvalidArgument},
		{"bad standard", func(c *Config) { c.WiFi.Standard = "802.11n" }, simulator.ErrInvalidArgument},
		{"negative exponent", func(c *Config) { c.WiFi.Propagation.Exponent = -1 }, simulator.ErrInvalidArgument},
		{"negative beacon interval", func(c *Config) { c.WiFi.BeaconInterval = -1 }, simulator.ErrInvalidArgument},
		{"bad address base", func(c *Config) { c.AddressBase = "fe80::/64" }, simulator.ErrInvalidArgument},
		{"no nodes", func(c *Config) { c.Nodes = nil; c.Flows = nil; c.Monitor = nil }, simulator.ErrInvalidArgument},
		{"duplicate node", func(c *Config) { c.Nodes[1].Name = "uav0" }, simulator.ErrInvalidArgument},
		{"bad kind", func(c *Config) { c.Nodes[0].Kind = "mesh" }, simulator.ErrInvalidArgument},
		{"short position", func(c *Config) { c.Nodes[0].Position = []float64{1} }, simulator.ErrInvalidArgument},
		{"unknown flow source", func(c *Config) { c.Flows[0].Source = "uav9" }, ErrUnknownNode},
		{"unknown flow dest", func(c *Config) { c.Flows[0].Dest = "ap2" }, ErrUnknownNode},
		{"self flow", func(c *Config) { c.Flows[0].Dest = "uav0" }, simulator.ErrInvalidArgument},
		{"duplicate flow", func(c *Config) { c.Flows[1].Source = "uav0" }, simulator.ErrInvalidArgument},
		{"zero rate", func(c *Config) { c.Flows[0].Rate = 0 }, simulator.ErrInvalidArgument},
		{"negative size", func(c *Config) { c.Flows[0].PacketSize = -1 }, simulator.ErrInvalidArgument},
		{"negative start", func(c *Config) { c.Flows[0].Start = -1 }, simulator.ErrInvalidArgument},
		{"stop before start", func(c *Config) { c.Flows[0].Stop = 0.5 }, simulator.ErrInvalidArgument},
		{"bad pattern", func(c *Config) { c.Flows[0].Pattern = "bursty" }, simulator.ErrInvalidArgument},
		{"unknown monitor", func(c *Config) { c.Monitor = []string{"ghost"} }, ErrUnknownNode},
		{"unknown outage", func(c *Config) { c.Outages = []OutageConfig{{Node: "ghost", At: 1}} }, ErrUnknownNode},
		{"negative outage", func(c *Config) { c.Outages = []OutageConfig{{Node: "ap", At: 1, Duration: -1}} }, simulator.ErrInvalidArgument},
		{"bad random outages", func(c *Config) { c.RandomOutages = &RandomOutageConfig{Min: 2, Max: 1} }, simulator.ErrInvalidArgument},
		{"unknown demand source", func(c *Config) { c.Demand.BySource = map[string]float64{"ghost": 5} }, ErrUnknownNode},
		{"unknown chaos target", func(c *Config) {
			c.Chaos = &chaos.Experiment{Events: []chaos.EventConfig{{Type: chaos.EventRadioOutage, Target: "ghost"}}}
		}, ErrUnknownNode},
		{"bad chaos event", func(c *Config) {
			c.Chaos = &chaos.Experiment{Events: []chaos.EventConfig{{Type: "meteor"}}}
		}, simulator.ErrInvalidArgument},
		{"negative health interval", func(c *Config) { c.HealthCheck.Interval = -1 }, simulator.ErrInvalidArgument},
		{"no metrics file", func(c *Config) { c.Output.MetricsFile = "" }, simulator.ErrInvalidArgument},
	}

	base := TwoUAV()
	require.NoError(t, base.Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := TwoUAV()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.target), "got %v", err)
		})
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "single.yaml")
	cfg := SingleUAV()
	cfg.Outages = []OutageConfig{{Node: "ap", At: 4, Duration: 1}}
	require.NoError(t, Save(&cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, *loaded)
}

func TestLoadNamesScenarioAfterFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corridor.yaml")
	cfg := TwoUAV()
	cfg.Name = ""
	require.NoError(t, Save(&cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "corridor", loaded.Name)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestPresets(t *testing.T) {
	for _, name := range []string{"two_uav", "single-uav"} {
		cfg, ok := Preset(name)
		require.True(t, ok, name)
		assert.NoError(t, cfg.Validate(), name)
	}
	_, ok := Preset("nope")
	assert.False(t, ok)
}

func TestPlacement(t *testing.T) {
	line := GenerateLine("uav", 3, nodes.Vec3{}, 5)
	require.Len(t, line, 3)
	assert.Equal(t, "uav2", line[2].Name)
	assert.Equal(t, []float64{10, 0, 0}, line[2].Position)

	grid := GenerateGrid("g", 2, 3, 4, 10)
	require.Len(t, grid, 6)
	assert.Equal(t, "g5", grid[5].Name)
	assert.Equal(t, []float64{8, 4, 10}, grid[5].Position)

	ring := GenerateRing("r", 4, nodes.Vec3{}, 10)
	require.Len(t, ring, 4)
	assert.InDelta(t, 10, ring[0].Position[0], 1e-9)
	assert.InDelta(t, 10, ring[1].Position[1], 1e-9)

	cfg := Default()
	cfg.Nodes = append(grid, NodeConfig{Name: "ap", Kind: "ap", Position: []float64{4, 2, 0}})
	cfg.Flows = UplinkFlows(grid, "ap", Mbps(1), 0, 1)
	assert.NoError(t, cfg.Validate())
	assert.Len(t, cfg.Flows, 6)
}

func TestBundledScenariosMatchPresets(t *testing.T) {
	for name, want := range map[string]Config{
		"two_uav":    TwoUAV(),
		"single_uav": SingleUAV(),
	} {
		t.Run(name, func(t *testing.T) {
			got, err := Load(filepath.Join("..", "scenarios", name+".yaml"))
			require.NoError(t, err)
			assert.Equal(t, want, *got)
		})
	}
}

func TestChaosTargets(t *testing.T) {
	cfg := TwoUAV()
	got := cfg.ChaosTargets()
	assert.Equal(t, []string{"uav0", "uav1"}, got.Stations)
	assert.Equal(t, []string{"ap"}, got.AccessPoints)
}
