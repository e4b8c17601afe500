package conn

import (
	"context"
	"errors"
	"net/netip"
	"testing"
)

type staticResolver map[string][]netip.Addr

func (r staticResolver) LookupNetIP(_ context.Context, _, host string) ([]netip.Addr, error) {
	ips, ok := r[host]
	if !ok {
		return nil, errors.New("no such host")
	}
	return ips, nil
}

func TestResolveAddrPortFirstResult(t *testing.T) {
	resolver := staticResolver{
		"dns.example": {
			netip.MustParseAddr("::ffff:198.51.100.7"),
			netip.MustParseAddr("198.51.100.8"),
		},
	}

	addrPort, err := ResolveAddrPort(context.Background(), resolver, "dns.example", 53)
	if err != nil {
		t.Fatal(err)
	}
	expected := netip.MustParseAddrPort("198.51.100.7:53")
	if addrPort != expected {
		t.Errorf("Expected %s, got %s", expected, addrPort)
	}
}

func TestResolveAddrPortFailures(t *testing.T) {
	resolver := staticResolver{
		"empty.example": nil,
	}

	for _, host := range []string{"empty.example", "nxdomain.example"} {
		_, err := ResolveAddrPort(context.Background(), resolver, host, 53)
		if !errors.Is(err, ErrResolutionFailed) {
			t.Errorf("%s: expected ErrResolutionFailed, got %v", host, err)
		}
	}
}

func TestResolveAddrPortLiteral(t *testing.T) {
	addrPort, err := ResolveAddrPort(context.Background(), nil, "127.0.0.1", 8080)
	if err != nil {
		t.Fatal(err)
	}
	if addrPort != netip.MustParseAddrPort("127.0.0.1:8080") {
		t.Errorf("Expected 127.0.0.1:8080, got %s", addrPort)
	}
}
