package nodes

import (
	"errors"
	"fmt"
	"math"
	"net/netip"
)

var (
	// ErrDeviceAttached is returned when a node already owns a device.
	ErrDeviceAttached = errors.New("device already attached")
	// ErrInvalidAddress is returned for zero or non-IPv4 device addresses.
	ErrInvalidAddress = errors.New("invalid device address")
)

// Kind represents the role of a node in the WLAN
type Kind string

const (
	KindStation     Kind = "station"
	KindAccessPoint Kind = "ap"
)

// ParseKind accepts the names used in scenario files.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "station", "sta":
		return KindStation, nil
	case "ap", "access-point", "access_point":
		return KindAccessPoint, nil
	}
	return "", fmt.Errorf("unknown node kind %q", s)
}

// Vec3 is a position in metres.
type Vec3 struct {
	X, Y, Z float64
}

// DistanceTo returns the Euclidean distance between two positions.
func (v Vec3) DistanceTo(o Vec3) float64 {
	dx := v.X - o.X
	dy := v.Y - o.Y
	dz := v.Z - o.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func (v Vec3) String() string {
	return fmt.Sprintf("(%g, %g, %g)", v.X, v.Y, v.Z)
}

// Node is a placed station or access point. Its position never changes
// once the simulation is built.
type Node struct {
	ID       int
	Name     string
	Kind     Kind
	Position Vec3

	device *Device
}

// NewNode creates a node without a device
func NewNode(id int, name string, kind Kind, position Vec3) *Node {
	if name == "" {
		name = fmt.Sprintf("node%d", id)
	}
	return &Node{
		ID:       id,
		Name:     name,
		Kind:     kind,
		Position: position,
	}
}

// AttachDevice installs the node's single wireless device.
func (n *Node) AttachDevice(addr netip.Addr, txPowerDbm float64) (*Device, error) {
	if n.device != nil {
		return nil, fmt.Errorf("node %s: %w", n.Name, ErrDeviceAttached)
	}
	if !addr.IsValid() || !addr.Is4() {
		return nil, fmt.Errorf("node %s address %v: %w", n.Name, addr, ErrInvalidAddress)
	}

	n.device = &Device{
		ID:         n.ID,
		Node:       n,
		Address:    addr,
		TxPowerDbm: txPowerDbm,
		radio:      RadioOn,
	}
	return n.device, nil
}

// Device returns the attached device, or nil
func (n *Node) Device() *Device {
	return n.device
}

// IsAccessPoint reports whether the node acts as the AP
func (n *Node) IsAccessPoint() bool {
	return n.Kind == KindAccessPoint
}

// String returns a string representation of the node
func (n *Node) String() string {
	addr := "-"
	if n.device != nil {
		addr = n.device.Address.String()
	}
	return fmt.Sprintf("Node{ID: %d, Name: %s, Kind: %s, Position: %s, Address: %s}", n.ID, n.Name, n.Kind, n.Position, addr)
}
