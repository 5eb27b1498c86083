package traffic

import (
	"github.com/saintparish4/wifisim/nodes"
)

// ReceiveObserver is told about every packet a sink accepts. Implemented by
// qos.Collector.
type ReceiveObserver interface {
	OnReceive(pkt nodes.Packet, rxTime float64)
}

// Sink is the passive receiving application of a device.
type Sink struct {
	observer ReceiveObserver
	packets  uint64
	bytes    uint64
	lastRx   float64
}

// NewSink creates a sink forwarding to observer, which may be nil
func NewSink(observer ReceiveObserver) *Sink {
	return &Sink{observer: observer}
}

// Receive records pkt and forwards it with the local receive time.
func (s *Sink) Receive(pkt nodes.Packet, now float64) {
	s.packets++
	s.bytes += uint64(pkt.Size)
	s.lastRx = now
	if s.observer != nil {
		s.observer.OnReceive(pkt, now)
	}
}

// Received returns packet and byte totals
func (s *Sink) Received() (packets, bytes uint64) {
	return s.packets, s.bytes
}

// LastReceive returns the time of the most recent packet
func (s *Sink) LastReceive() float64 {
	return s.lastRx
}
