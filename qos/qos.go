package qos

import (
	"context"
	"math"

	"github.com/saintparish4/wifisim/logging"
	"github.com/saintparish4/wifisim/nodes"
)

// Flow accumulates the statistics of one unidirectional flow
type Flow struct {
	Number int // 1-based, in first-sight order
	ID     nodes.FlowID

	TxPackets uint64
	TxBytes   uint64
	RxPackets uint64
	RxBytes   uint64

	FirstTxTime float64
	LastRxTime  float64

	DelaySum  float64
	JitterSum float64
	LastDelay float64
}

// Collector aggregates per-flow statistics from send and receive events.
// It is driven from the scheduler's drain loop and is not safe for
// concurrent use.
type Collector struct {
	flows     map[nodes.FlowID]*Flow
	order     []*Flow
	log       logging.Logger
	anomalies int
	finalized bool
}

// NewCollector creates an empty collector. log may be nil.
func NewCollector(log logging.Logger) *Collector {
	if log == nil {
		log = logging.Noop()
	}
	return &Collector{
		flows: make(map[nodes.FlowID]*Flow),
		log:   log,
	}
}

func (c *Collector) newFlow(id nodes.FlowID, firstTx float64) *Flow {
	flow := &Flow{
		Number:      len(c.order) + 1,
		ID:          id,
		FirstTxTime: firstTx,
	}
	c.flows[id] = flow
	c.order = append(c.order, flow)
	return flow
}

// OnSend counts a transmitted packet, creating the flow on first sight.
func (c *Collector) OnSend(pkt nodes.Packet) {
	if c.finalized {
		return
	}
	flow, ok := c.flows[pkt.Flow]
	if !ok {
		flow = c.newFlow(pkt.Flow, pkt.SendTime)
	}
	flow.TxPackets++
	flow.TxBytes += uint64(pkt.Size)
}

// OnReceive records an arrival at rxTime and updates delay and jitter.
// A packet of a flow never seen sending is logged and counted under a new
// flow whose first transmit time is the packet's send time.
func (c *Collector) OnReceive(pkt nodes.Packet, rxTime float64) {
	if c.finalized {
		return
	}
	flow, ok := c.flows[pkt.Flow]
	if !ok {
		c.anomalies++
		c.log.Warn(context.Background(), "receive for unknown flow",
			logging.String("flow", pkt.Flow.String()),
			logging.Any("seq", pkt.Seq),
			logging.SimTime(rxTime))
		flow = c.newFlow(pkt.Flow, pkt.SendTime)
	}

	delay := rxTime - pkt.SendTime
	if flow.RxPackets > 0 {
		flow.JitterSum += math.Abs(delay - flow.LastDelay)
	}
	flow.LastDelay = delay
	flow.DelaySum += delay

	flow.RxPackets++
	flow.RxBytes += uint64(pkt.Size)
	flow.LastRxTime = rxTime
}

// Flows returns the flows in first-sight order
func (c *Collector) Flows() []Flow {
	out := make([]Flow, len(c.order))
	for i, f := range c.order {
		out[i] = *f
	}
	return out
}

// Anomalies returns how many receptions referenced an unknown flow
func (c *Collector) Anomalies() int {
	return c.anomalies
}

// Finalized reports whether Finalize has been called
func (c *Collector) Finalized() bool {
	return c.finalized
}

// Snapshot computes a report of the running statistics without freezing
// the collector.
func (c *Collector) Snapshot(demand Demand) Report {
	report := Report{Flows: make([]FlowReport, 0, len(c.order))}
	for _, f := range c.order {
		report.Flows = append(report.Flows, summarize(f, demand))
	}
	return report
}

// Finalize freezes the collector and returns the final report. Later
// events are ignored.
func (c *Collector) Finalize(demand Demand) Report {
	c.finalized = true
	return c.Snapshot(demand)
}

func summarize(f *Flow, demand Demand) FlowReport {
	r := FlowReport{
		Number:    f.Number,
		ID:        f.ID,
		TxPackets: f.TxPackets,
		RxPackets: f.RxPackets,
		RxBytes:   f.RxBytes,
	}

	if span := f.LastRxTime - f.FirstTxTime; f.RxPackets > 0 && span > 0 {
		r.ThroughputMbps = float64(f.RxBytes*8) / (span * 1e6)
	}
	if f.RxPackets > 0 {
		r.AvgDelay = f.DelaySum / float64(f.RxPackets)
		r.AvgJitter = f.JitterSum / float64(f.RxPackets)
	}
	if f.TxPackets > 0 && f.TxPackets >= f.RxPackets {
		r.LossRatio = float64(f.TxPackets-f.RxPackets) / float64(f.TxPackets)
	}

	if demand != nil {
		if d, ok := demand.DemandMbps(f.ID); ok && d > 0 {
			r.DemandMbps = d
			r.QoSRatio = r.ThroughputMbps / d
		}
	}
	return r
}
