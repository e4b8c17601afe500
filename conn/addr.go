package conn

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
)

// Addr is a destination as sent by a client: a port number combined with
// either an IPv4 address or a domain name. The zero value is not a valid address.
type Addr struct {
	ip     netip.Addr
	port   uint16
	domain string
}

var errDomainTooLong = errors.New("domain name exceeds 255 bytes")

// IsIP reports whether a holds an IP address rather than a domain name.
func (a Addr) IsIP() bool {
	return a.ip.IsValid()
}

// IP returns the IP address, or the zero netip.Addr for domain names.
func (a Addr) IP() netip.Addr {
	return a.ip
}

// Domain returns the domain name, or "" for IP addresses.
func (a Addr) Domain() string {
	return a.domain
}

func (a Addr) Port() uint16 {
	return a.port
}

// ResolveIPPort returns the address itself, or the first address the resolver
// returns for the domain name, with the port number.
func (a Addr) ResolveIPPort(ctx context.Context, resolver Resolver) (netip.AddrPort, error) {
	if a.ip.IsValid() {
		return netip.AddrPortFrom(a.ip, a.port), nil
	}
	return ResolveAddrPort(ctx, resolver, a.domain, a.port)
}

func (a Addr) String() string {
	if a.ip.IsValid() {
		return netip.AddrPortFrom(a.ip, a.port).String()
	}
	return net.JoinHostPort(a.domain, strconv.FormatUint(uint64(a.port), 10))
}

// AddrFromIPPort returns an Addr holding addrPort.
func AddrFromIPPort(addrPort netip.AddrPort) Addr {
	return Addr{ip: addrPort.Addr(), port: addrPort.Port()}
}

// AddrFromDomainPort returns an Addr holding domain and port.
// Domains longer than 255 bytes cannot be encoded and are rejected.
func AddrFromDomainPort(domain string, port uint16) (Addr, error) {
	if len(domain) > 255 {
		return Addr{}, fmt.Errorf("%w: %q", errDomainTooLong, domain)
	}
	return Addr{domain: domain, port: port}, nil
}

// MustAddrFromDomainPort is like [AddrFromDomainPort] but panics on error.
func MustAddrFromDomainPort(domain string, port uint16) Addr {
	addr, err := AddrFromDomainPort(domain, port)
	if err != nil {
		panic(err)
	}
	return addr
}
