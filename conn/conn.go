// Package conn provides addresses, name resolution, and socket dialers and listeners
// used by the tunnel server.
package conn

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/database64128/tfo-go/v2"
)

// ALongTimeAgo is a non-zero time, far in the past, used for immediate deadlines.
var ALongTimeAgo = time.Unix(1, 0)

// DialerConfig is the configuration for a [Dialer].
type DialerConfig struct {
	// DisableTFO disables TCP Fast Open on outgoing TCP connections.
	DisableTFO bool

	// Fwmark sets SO_MARK on outgoing sockets.
	//
	// Available on Linux.
	Fwmark int
}

// NewDialer returns a new dialer with the configured socket options applied.
func (c DialerConfig) NewDialer() *Dialer {
	control := fwmarkControl(c.Fwmark)
	d := Dialer{
		tcp: tfo.Dialer{
			DisableTFO: c.DisableTFO,
		},
		udp: net.Dialer{
			Control: control,
		},
	}
	d.tcp.Control = control
	return &d
}

// Dialer opens TCP and UDP sockets to a destination.
type Dialer struct {
	tcp tfo.Dialer
	udp net.Dialer
}

// DialTCP opens a TCP connection to addrPort.
func (d *Dialer) DialTCP(ctx context.Context, addrPort netip.AddrPort) (*net.TCPConn, error) {
	c, err := d.tcp.DialContext(ctx, "tcp", addrPort.String(), nil)
	if err != nil {
		return nil, err
	}
	tc, ok := c.(*net.TCPConn)
	if !ok {
		c.Close()
		return nil, fmt.Errorf("unexpected connection type %T", c)
	}
	return tc, nil
}

// DialUDP opens a UDP socket bound to an ephemeral local port and connected to addrPort.
func (d *Dialer) DialUDP(ctx context.Context, addrPort netip.AddrPort) (*net.UDPConn, error) {
	c, err := d.udp.DialContext(ctx, "udp", addrPort.String())
	if err != nil {
		return nil, err
	}
	return c.(*net.UDPConn), nil
}

// ListenConfig is the configuration for listening on TCP.
type ListenConfig struct {
	// FastOpen enables TCP Fast Open on the listener.
	FastOpen bool

	// Fwmark sets SO_MARK on the listener socket.
	//
	// Available on Linux.
	Fwmark int
}

// TFOListenConfig returns a [tfo.ListenConfig] with the configured socket options applied.
func (c ListenConfig) TFOListenConfig() tfo.ListenConfig {
	lc := tfo.ListenConfig{
		DisableTFO: !c.FastOpen,
	}
	lc.Control = fwmarkControl(c.Fwmark)
	return lc
}

// ListenTCP listens on the TCP address.
func (c ListenConfig) ListenTCP(ctx context.Context, address string) (*net.TCPListener, error) {
	lc := c.TFOListenConfig()
	l, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	return l.(*net.TCPListener), nil
}
