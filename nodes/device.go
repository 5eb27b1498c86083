package nodes

import (
	"fmt"
	"net/netip"
)

// RadioState represents whether a device can use the medium
type RadioState string

const (
	RadioOn  RadioState = "ON"
	RadioOff RadioState = "OFF"
)

// Device is the wireless interface of a node. Device IDs equal the owning
// node's ID.
type Device struct {
	ID         int
	Node       *Node
	Address    netip.Addr
	TxPowerDbm float64

	radio RadioState
}

// Position returns the owning node's position
func (d *Device) Position() Vec3 {
	return d.Node.Position
}

// Radio returns the current radio state
func (d *Device) Radio() RadioState {
	return d.radio
}

// RadioEnabled reports whether the device may transmit and receive
func (d *Device) RadioEnabled() bool {
	return d.radio == RadioOn
}

// SetRadio switches the radio and reports whether the state changed.
func (d *Device) SetRadio(state RadioState) bool {
	if d.radio == state {
		return false
	}
	d.radio = state
	return true
}

// Name returns the owning node's name
func (d *Device) Name() string {
	return d.Node.Name
}

func (d *Device) String() string {
	return fmt.Sprintf("Device{ID: %d, Node: %s, Address: %s, Radio: %s}", d.ID, d.Node.Name, d.Address, d.radio)
}
