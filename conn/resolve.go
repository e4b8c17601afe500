package conn

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
)

// ErrResolutionFailed is returned when a domain name cannot be resolved to any address.
var ErrResolutionFailed = errors.New("name resolution failed")

// Resolver looks up IP addresses of a host.
//
// [*net.Resolver] implements Resolver.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// DefaultResolver is the platform resolver.
var DefaultResolver Resolver = net.DefaultResolver

// ResolveAddrPort resolves host with resolver and combines the first returned address with port.
// A nil resolver means [DefaultResolver].
//
// The order of the returned addresses is the resolver's. No caching is done, and no address
// family is preferred over the other.
func ResolveAddrPort(ctx context.Context, resolver Resolver, host string, port uint16) (netip.AddrPort, error) {
	if resolver == nil {
		resolver = DefaultResolver
	}

	hostPort := net.JoinHostPort(host, strconv.FormatUint(uint64(port), 10))

	ips, err := resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("%w: %s: %w", ErrResolutionFailed, hostPort, err)
	}
	if len(ips) == 0 {
		return netip.AddrPort{}, fmt.Errorf("%w: %s: lookup returned no addresses and no error", ErrResolutionFailed, hostPort)
	}

	return netip.AddrPortFrom(ips[0].Unmap(), port), nil
}
