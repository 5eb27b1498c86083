package nodes

import (
	"errors"
	"fmt"
	"net/netip"
)

// ErrAddressExhausted is returned when a pool has no host addresses left.
var ErrAddressExhausted = errors.New("address pool exhausted")

// AddressPool hands out consecutive host addresses from an IPv4 prefix,
// starting at .1 of the network.
type AddressPool struct {
	prefix netip.Prefix
	next   netip.Addr
}

// NewAddressPool parses a prefix such as "192.168.1.0/24".
func NewAddressPool(cidr string) (*AddressPool, error) {
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return nil, fmt.Errorf("parse address base %q: %w", cidr, err)
	}
	if !prefix.Addr().Is4() {
		return nil, fmt.Errorf("address base %q: %w", cidr, ErrInvalidAddress)
	}
	prefix = prefix.Masked()
	return &AddressPool{
		prefix: prefix,
		next:   prefix.Addr().Next(),
	}, nil
}

// Allocate returns the next free host address.
func (p *AddressPool) Allocate() (netip.Addr, error) {
	addr := p.next
	// The last address in the prefix is the subnet broadcast.
	if !addr.IsValid() || !p.prefix.Contains(addr) || !p.prefix.Contains(addr.Next()) {
		return netip.Addr{}, fmt.Errorf("%s: %w", p.prefix, ErrAddressExhausted)
	}
	p.next = addr.Next()
	return addr, nil
}

// Prefix returns the pool's network
func (p *AddressPool) Prefix() netip.Prefix {
	return p.prefix
}
