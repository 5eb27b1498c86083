package scenario

// FlowState is the running view of one flow sent to live clients
type FlowState struct {
	ID             int     `json:"id"`
	Source         string  `json:"source"`
	Dest           string  `json:"dest"`
	TxPackets      uint64  `json:"tx_packets"`
	RxPackets      uint64  `json:"rx_packets"`
	ThroughputMbps float64 `json:"throughput_mbps"`
	DelayS         float64 `json:"delay_s"`
	JitterS        float64 `json:"jitter_s"`
	LossRatio      float64 `json:"loss_ratio"`
	QoS            float64 `json:"qos"`
}

// DeviceState is the running view of one device
type DeviceState struct {
	Name     string     `json:"name"`
	Kind     string     `json:"kind"`
	Address  string     `json:"address"`
	Position [3]float64 `json:"position"`
	Radio    string     `json:"radio"`
	MAC      string     `json:"mac_state"`
	Queue    int        `json:"queue"`
	Sent     int64      `json:"frames_sent"`
	Healthy  bool       `json:"healthy"`
	RSSI     *float64   `json:"rssi_dbm,omitempty"`
}

// State is a point-in-time snapshot of a run
type State struct {
	RunID    string        `json:"run_id"`
	Scenario string        `json:"scenario"`
	Time     float64       `json:"time"`
	Duration float64       `json:"duration"`
	Done     bool          `json:"done"`
	Events   int64         `json:"events"`
	Pending  int           `json:"pending"`
	Flows    []FlowState   `json:"flows"`
	Devices  []DeviceState `json:"devices"`
}

// Snapshot captures the current state. It must be called on the goroutine
// driving the simulation.
func (s *Simulation) Snapshot() State {
	r := s.Report()
	s.publishThroughput(r)

	st := State{
		RunID:    s.runID,
		Scenario: s.cfg.Name,
		Time:     s.Now(),
		Duration: s.cfg.Duration,
		Done:     s.Done(),
		Events:   s.sched.Stats().Executed,
		Pending:  s.sched.Pending(),
		Flows:    make([]FlowState, 0, len(r.Flows)),
		Devices:  make([]DeviceState, 0, len(s.nodes)),
	}
	for _, f := range r.Flows {
		st.Flows = append(st.Flows, FlowState{
			ID:             f.Number,
			Source:         f.ID.Source.String(),
			Dest:           f.ID.Destination.String(),
			TxPackets:      f.TxPackets,
			RxPackets:      f.RxPackets,
			ThroughputMbps: f.ThroughputMbps,
			DelayS:         f.AvgDelay,
			JitterS:        f.AvgJitter,
			LossRatio:      f.LossRatio,
			QoS:            f.QoSRatio,
		})
	}
	for _, n := range s.nodes {
		dev := n.Device()
		m := s.macs[n.Name]
		ds := DeviceState{
			Name:     n.Name,
			Kind:     string(n.Kind),
			Address:  dev.Address.String(),
			Position: [3]float64{n.Position.X, n.Position.Y, n.Position.Z},
			Radio:    string(dev.Radio()),
			MAC:      string(m.State()),
			Queue:    m.QueueLen(),
			Sent:     m.Stats().Transmitted,
			Healthy:  s.health == nil || s.health.IsHealthy(n.Name),
		}
		if sample, ok := s.rssi.Latest(dev.ID); ok {
			v := sample.SignalDbm
			ds.RSSI = &v
		}
		st.Devices = append(st.Devices, ds)
	}
	return st
}
