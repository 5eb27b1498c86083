package mac

// Medium is the shared channel all MACs of a run transmit on. Receivers are
// evaluated in attach order.
type Medium struct {
	macs []*MAC
}

func NewMedium() *Medium {
	return &Medium{}
}

func (m *Medium) attach(mac *MAC) {
	m.macs = append(m.macs, mac)
}

// MACs returns the attached MACs in attach order
func (m *Medium) MACs() []*MAC {
	return m.macs
}

// Len returns the number of attached MACs
func (m *Medium) Len() int {
	return len(m.macs)
}
