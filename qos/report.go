package qos

import (
	"fmt"
	"io"
	"net/netip"

	"github.com/saintparish4/wifisim/nodes"
)

// Demand supplies the expected rate of a flow in Mbps.
type Demand interface {
	DemandMbps(id nodes.FlowID) (float64, bool)
}

// DemandTable resolves a flow's demand by exact flow id, then by source
// address, then Default. A zero Default means no demand.
type DemandTable struct {
	ByFlow   map[nodes.FlowID]float64
	BySource map[netip.Addr]float64
	Default  float64
}

func (d DemandTable) DemandMbps(id nodes.FlowID) (float64, bool) {
	if v, ok := d.ByFlow[id]; ok {
		return v, true
	}
	if v, ok := d.BySource[id.Source]; ok {
		return v, true
	}
	if d.Default > 0 {
		return d.Default, true
	}
	return 0, false
}

// FlowReport is the finalized view of one flow
type FlowReport struct {
	Number    int
	ID        nodes.FlowID
	TxPackets uint64
	RxPackets uint64
	RxBytes   uint64

	ThroughputMbps float64
	AvgDelay       float64 // seconds
	AvgJitter      float64 // seconds
	LossRatio      float64
	DemandMbps     float64
	QoSRatio       float64
}

// Report holds one row per flow ordered by flow number
type Report struct {
	Flows []FlowReport
}

// Flow looks up the row for id
func (r Report) Flow(id nodes.FlowID) (FlowReport, bool) {
	for _, f := range r.Flows {
		if f.ID == id {
			return f, true
		}
	}
	return FlowReport{}, false
}

// WriteSummary prints a human readable table of the report
func (r Report) WriteSummary(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "\n=== Flow Statistics ==="); err != nil {
		return err
	}
	for _, f := range r.Flows {
		_, err := fmt.Fprintf(w, "Flow %d %s: tx=%d rx=%d (%.1f%% loss) throughput=%.3f Mbps delay=%.6fs jitter=%.6fs qos=%.3f\n",
			f.Number, f.ID, f.TxPackets, f.RxPackets, f.LossRatio*100,
			f.ThroughputMbps, f.AvgDelay, f.AvgJitter, f.QoSRatio)
		if err != nil {
			return err
		}
	}
	return nil
}
