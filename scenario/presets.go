package scenario

// TwoUAV is the two-station uplink run: uav0 near the AP sending 5 Mbps and
// uav1 at (13.5, 13.5) sending 50 Mbps, both HeMcs5 on a 160 MHz channel.
func TwoUAV() Config {
	cfg := Default()
	cfg.Name = "two_uav"
	cfg.Nodes = []NodeConfig{
		{Name: "uav0", Kind: "station", Position: []float64{1, 1, 0}},
		{Name: "uav1", Kind: "station", Position: []float64{13.5, 13.5, 0}},
		{Name: "ap", Kind: "ap", Position: []float64{0, 0, 0}},
	}
	cfg.Flows = []FlowConfig{
		{Source: "uav0", Dest: "ap", Rate: Mbps(5), PacketSize: DefaultPacketSize, Start: 1, Stop: 10},
		{Source: "uav1", Dest: "ap", Rate: Mbps(50), PacketSize: DefaultPacketSize, Start: 1, Stop: 10},
	}
	cfg.Monitor = []string{"uav0", "uav1"}
	return cfg
}

// SingleUAV is one station at (10, 10) sending 1000-byte packets at 5 Mbps
// over a 20 MHz channel with the adaptive rate manager.
func SingleUAV() Config {
	cfg := Default()
	cfg.Name = "single_uav"
	cfg.WiFi.ChannelWidthMHz = 20
	cfg.WiFi.RateManager = "minstrel"
	cfg.WiFi.DataMode = ""
	cfg.Nodes = []NodeConfig{
		{Name: "uav0", Kind: "station", Position: []float64{10, 10, 0}},
		{Name: "ap", Kind: "ap", Position: []float64{0, 0, 0}},
	}
	cfg.Flows = []FlowConfig{
		{Source: "uav0", Dest: "ap", Rate: Mbps(5), PacketSize: 1000, Start: 1, Stop: 10},
	}
	cfg.Monitor = []string{"uav0"}
	cfg.Demand.DefaultMbps = 5
	return cfg
}

// Preset returns a built-in scenario by name
func Preset(name string) (Config, bool) {
	switch name {
	case "two_uav", "two-uav":
		return TwoUAV(), true
	case "single_uav", "single-uav":
		return SingleUAV(), true
	}
	return Config{}, false
}
