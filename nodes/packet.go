package nodes

import (
	"fmt"
	"net/netip"
)

// Protocol is the IP protocol number carried in a flow id.
type Protocol uint8

const (
	ProtocolUDP Protocol = 17
)

func (p Protocol) String() string {
	switch p {
	case ProtocolUDP:
		return "UDP"
	}
	return fmt.Sprintf("proto-%d", uint8(p))
}

// BroadcastAddress is the destination of beacon frames.
var BroadcastAddress = netip.AddrFrom4([4]byte{255, 255, 255, 255})

// FlowID identifies a unidirectional flow. It is comparable and used as a
// map key.
type FlowID struct {
	Source      netip.Addr
	Destination netip.Addr
	Protocol    Protocol
}

func (f FlowID) String() string {
	return fmt.Sprintf("%s -> %s (%s)", f.Source, f.Destination, f.Protocol)
}

// Packet is an application datagram. It is passed by value and never
// modified after creation.
type Packet struct {
	Flow     FlowID
	Size     int     // bytes
	SendTime float64 // virtual seconds
	Seq      uint64
}

func (p Packet) String() string {
	return fmt.Sprintf("Packet{%s seq=%d size=%d sent=%.6f}", p.Flow, p.Seq, p.Size, p.SendTime)
}
