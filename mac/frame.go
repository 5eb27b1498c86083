package mac

import (
	"fmt"
	"net/netip"

	"github.com/saintparish4/wifisim/channel"
	"github.com/saintparish4/wifisim/nodes"
)

// FrameKind distinguishes application data from management traffic
type FrameKind string

const (
	FrameData   FrameKind = "data"
	FrameBeacon FrameKind = "beacon"
)

// Frame is one over-the-air transmission.
type Frame struct {
	Kind   FrameKind
	Source *nodes.Device
	Dest   netip.Addr
	Size   int // bytes on air
	MCS    channel.MCS

	// Packet is set for data frames only
	Packet nodes.Packet
}

// IsBroadcast reports whether every receiver is addressed
func (f Frame) IsBroadcast() bool {
	return f.Dest == nodes.BroadcastAddress
}

// AddressedTo reports whether dev should hand the frame up the stack
func (f Frame) AddressedTo(dev *nodes.Device) bool {
	return f.IsBroadcast() || f.Dest == dev.Address
}

func (f Frame) String() string {
	return fmt.Sprintf("Frame{%s %s -> %s size=%d %s}", f.Kind, f.Source.Address, f.Dest, f.Size, f.MCS)
}
