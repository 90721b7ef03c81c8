package vpn

import (
	"errors"
	"fmt"
	"net/netip"
)

// ErrPoolExhausted reports a full address pool. A /24 with the server on the
// first host serves at most 253 concurrent peers.
var ErrPoolExhausted = errors.New("address pool exhausted")

// Allocator hands out host addresses from the tunnel subnet. The network
// address, the broadcast address and the server's own host (first usable)
// are never assigned. Lowest free wins, so an address freed by revocation is
// reused immediately; that is safe because revocation removes the device key
// before the record, and only recordless addresses are free.
type Allocator struct {
	prefix netip.Prefix
}

func NewAllocator(cidr string) (*Allocator, error) {
	p, err := netip.ParsePrefix(cidr)
	if err != nil {
		return nil, fmt.Errorf("parse subnet: %w", err)
	}
	if !p.Addr().Is4() {
		return nil, fmt.Errorf("subnet must be IPv4: %s", cidr)
	}
	return &Allocator{prefix: p.Masked()}, nil
}

// Subnet returns the masked CIDR the allocator draws from.
func (a *Allocator) Subnet() string {
	return a.prefix.String()
}

// ServerAddress is the first usable host, reserved for the server itself.
func (a *Allocator) ServerAddress() string {
	return a.prefix.Addr().Next().String()
}

// Next returns the lowest host address not present in used.
func (a *Allocator) Next(used map[string]bool) (string, error) {
	server := a.prefix.Addr().Next()
	last := lastAddr(a.prefix)
	for ip := server.Next(); a.prefix.Contains(ip) && ip != last; ip = ip.Next() {
		if !used[ip.String()] {
			return ip.String(), nil
		}
	}
	return "", ErrPoolExhausted
}

// lastAddr is the broadcast address of an IPv4 prefix.
func lastAddr(p netip.Prefix) netip.Addr {
	a4 := p.Addr().As4()
	v := uint32(a4[0])<<24 | uint32(a4[1])<<16 | uint32(a4[2])<<8 | uint32(a4[3])
	v |= 1<<(32-p.Bits()) - 1
	return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}
