package qos

import (
	"bytes"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saintparish4/wifisim/nodes"
)

var (
	sta0 = netip.MustParseAddr("192.168.1.1")
	sta1 = netip.MustParseAddr("192.168.1.2")
	ap   = netip.MustParseAddr("192.168.1.3")
)

func flowFrom(src netip.Addr) nodes.FlowID {
	return nodes.FlowID{Source: src, Destination: ap, Protocol: nodes.ProtocolUDP}
}

func pkt(id nodes.FlowID, seq uint64, sent float64) nodes.Packet {
	return nodes.Packet{Flow: id, Size: 1000, SendTime: sent, Seq: seq}
}

func TestOnSendCreatesFlowsInOrder(t *testing.T) {
	c := NewCollector(nil)

	c.OnSend(pkt(flowFrom(sta1), 0, 1.0))
	c.OnSend(pkt(flowFrom(sta0), 0, 1.5))
	c.OnSend(pkt(flowFrom(sta1), 1, 2.0))

	flows := c.Flows()
	require.Len(t, flows, 2)
	assert.Equal(t, 1, flows[0].Number)
	assert.Equal(t, sta1, flows[0].ID.Source)
	assert.Equal(t, uint64(2), flows[0].TxPackets)
	assert.Equal(t, uint64(2000), flows[0].TxBytes)
	assert.Equal(t, 1.0, flows[0].FirstTxTime, "first transmit time is not overwritten")
	assert.Equal(t, 2, flows[1].Number)
}

func TestDelayAndJitter(t *testing.T) {
	c := NewCollector(nil)
	id := flowFrom(sta0)

	// Delays 0.010, 0.030, 0.020
	sends := []float64{1.0, 2.0, 3.0}
	recvs := []float64{1.010, 2.030, 3.020}
	for i := range sends {
		c.OnSend(pkt(id, uint64(i), sends[i]))
	}
	for i := range recvs {
		c.OnReceive(pkt(id, uint64(i), sends[i]), recvs[i])
	}

	flow := c.Flows()[0]
	assert.InDelta(t, 0.060, flow.DelaySum, 1e-12)
	// |0.03-0.01| + |0.02-0.03|; the first packet contributes nothing
	assert.InDelta(t, 0.030, flow.JitterSum, 1e-12)
	assert.InDelta(t, 0.020, flow.LastDelay, 1e-12)

	report := c.Finalize(DemandTable{Default: 0.024})
	r := report.Flows[0]
	assert.InDelta(t, 0.020, r.AvgDelay, 1e-12)
	assert.InDelta(t, 0.010, r.AvgJitter, 1e-12)

	// 3000 bytes over 2.02 s
	want := 3000.0 * 8 / (2.02 * 1e6)
	assert.InDelta(t, want, r.ThroughputMbps, 1e-12)
	assert.InDelta(t, want/0.024, r.QoSRatio, 1e-9)
	assert.Zero(t, r.LossRatio)
}

func TestFirstPacketHasZeroJitter(t *testing.T) {
	c := NewCollector(nil)
	id := flowFrom(sta0)
	c.OnSend(pkt(id, 0, 1.0))
	c.OnReceive(pkt(id, 0, 1.0), 1.5)

	flow := c.Flows()[0]
	assert.Zero(t, flow.JitterSum)
	assert.Equal(t, 0.5, flow.DelaySum)
}

func TestZeroReceptionsAreGuarded(t *testing.T) {
	c := NewCollector(nil)
	id := flowFrom(sta1)
	for i := 0; i < 5; i++ {
		c.OnSend(pkt(id, uint64(i), float64(i)))
	}

	r := c.Finalize(DemandTable{Default: 50}).Flows[0]
	assert.Zero(t, r.ThroughputMbps)
	assert.Zero(t, r.AvgDelay)
	assert.Zero(t, r.AvgJitter)
	assert.Zero(t, r.QoSRatio)
	assert.Equal(t, 1.0, r.LossRatio)
}

func TestZeroTimeSpanIsGuarded(t *testing.T) {
	c := NewCollector(nil)
	id := flowFrom(sta0)

	// Received at the instant it was sent
	c.OnSend(pkt(id, 0, 2.0))
	c.OnReceive(pkt(id, 0, 2.0), 2.0)

	r := c.Finalize(nil).Flows[0]
	assert.Zero(t, r.ThroughputMbps)
	assert.Equal(t, uint64(1), r.RxPackets)
}

func TestUnknownFlowOnReceive(t *testing.T) {
	c := NewCollector(nil)
	id := flowFrom(sta0)

	c.OnReceive(pkt(id, 7, 1.0), 1.25)

	assert.Equal(t, 1, c.Anomalies())
	flows := c.Flows()
	require.Len(t, flows, 1)
	assert.Equal(t, 1.0, flows[0].FirstTxTime)
	assert.Zero(t, flows[0].TxPackets)
	assert.Equal(t, uint64(1), flows[0].RxPackets)

	r := c.Finalize(nil).Flows[0]
	assert.InDelta(t, 1000.0*8/(0.25*1e6), r.ThroughputMbps, 1e-12)
	assert.Zero(t, r.LossRatio, "loss is undefined without sends")
}

func TestDemandLookup(t *testing.T) {
	a := flowFrom(sta0)
	b := flowFrom(sta1)
	other := nodes.FlowID{Source: ap, Destination: sta0, Protocol: nodes.ProtocolUDP}

	table := DemandTable{
		ByFlow:   map[nodes.FlowID]float64{a: 5},
		BySource: map[netip.Addr]float64{sta1: 50},
	}

	d, ok := table.DemandMbps(a)
	assert.True(t, ok)
	assert.Equal(t, 5.0, d)

	d, ok = table.DemandMbps(b)
	assert.True(t, ok)
	assert.Equal(t, 50.0, d)

	_, ok = table.DemandMbps(other)
	assert.False(t, ok, "no default, no demand")

	table.Default = 1
	d, ok = table.DemandMbps(other)
	assert.True(t, ok)
	assert.Equal(t, 1.0, d)
}

func TestMissingOrZeroDemandGivesZeroQoS(t *testing.T) {
	c := NewCollector(nil)
	id := flowFrom(sta0)
	c.OnSend(pkt(id, 0, 1.0))
	c.OnReceive(pkt(id, 0, 1.0), 2.0)

	r := c.Snapshot(DemandTable{}).Flows[0]
	assert.NotZero(t, r.ThroughputMbps)
	assert.Zero(t, r.QoSRatio)

	r = c.Snapshot(DemandTable{ByFlow: map[nodes.FlowID]float64{id: 0}}).Flows[0]
	assert.Zero(t, r.QoSRatio)

	r = c.Snapshot(DemandTable{ByFlow: map[nodes.FlowID]float64{id: -3}}).Flows[0]
	assert.Zero(t, r.QoSRatio)
}

func TestFinalizeFreezes(t *testing.T) {
	c := NewCollector(nil)
	id := flowFrom(sta0)
	c.OnSend(pkt(id, 0, 1.0))

	before := c.Finalize(nil)
	assert.True(t, c.Finalized())

	c.OnSend(pkt(id, 1, 2.0))
	c.OnReceive(pkt(id, 0, 1.0), 2.5)

	after := c.Snapshot(nil)
	assert.Equal(t, before, after)
}

func TestSnapshotDoesNotFreeze(t *testing.T) {
	c := NewCollector(nil)
	id := flowFrom(sta0)
	c.OnSend(pkt(id, 0, 1.0))
	c.Snapshot(nil)

	c.OnSend(pkt(id, 1, 2.0))
	assert.False(t, c.Finalized())
	assert.Equal(t, uint64(2), c.Flows()[0].TxPackets)
}

func TestConstantRateFlowMatchesDemand(t *testing.T) {
	tests := []struct {
		name   string
		rate   float64 // bps
		demand float64 // Mbps
	}{
		{"5Mbps", 5e6, 5},
		{"50Mbps", 50e6, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCollector(nil)
			id := flowFrom(sta0)
			interval := 1472.0 * 8 / tt.rate
			const delay = 0.0005

			for i := 0; ; i++ {
				sent := 1.0 + float64(i)*interval
				if sent >= 10.0 {
					break
				}
				p := nodes.Packet{Flow: id, Size: 1472, SendTime: sent, Seq: uint64(i)}
				c.OnSend(p)
				c.OnReceive(p, sent+delay)
			}

			r := c.Finalize(DemandTable{ByFlow: map[nodes.FlowID]float64{id: tt.demand}}).Flows[0]
			assert.InDelta(t, tt.demand, r.ThroughputMbps, tt.demand*0.01)
			assert.InDelta(t, 1.0, r.QoSRatio, 0.01)
			assert.InDelta(t, delay, r.AvgDelay, 1e-9)
			assert.Less(t, r.AvgJitter, 1e-9)
		})
	}
}

func TestWriteSummary(t *testing.T) {
	c := NewCollector(nil)
	id := flowFrom(sta0)
	c.OnSend(pkt(id, 0, 1.0))
	c.OnReceive(pkt(id, 0, 1.0), 1.5)

	var buf bytes.Buffer
	require.NoError(t, c.Finalize(DemandTable{Default: 5}).WriteSummary(&buf))
	assert.Contains(t, buf.String(), "Flow 1 192.168.1.1 -> 192.168.1.3 (UDP)")

	r, ok := c.Snapshot(nil).Flow(id)
	assert.True(t, ok)
	assert.Equal(t, 1, r.Number)
}
