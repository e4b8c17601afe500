// Package outbound implements the destination-facing side of a tunnel session.
package outbound

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"os"
	"time"

	"github.com/tunnelkit/vtunnel/conn"
	"github.com/tunnelkit/vtunnel/header"
	"github.com/tunnelkit/vtunnel/relay"
)

// DialError is returned when the outbound endpoint cannot be opened.
type DialError struct {
	Network     string
	Destination netip.AddrPort
	Err         error
}

func (e *DialError) Unwrap() error {
	return e.Err
}

func (e *DialError) Error() string {
	return fmt.Sprintf("failed to open %s endpoint to %s: %v", e.Network, e.Destination, e.Err)
}

// Dialer opens outbound endpoints.
type Dialer struct {
	dialer *conn.Dialer

	// UDPIdleTimeout, if positive, ends a UDP session when no datagram
	// has been received from the destination for this long.
	UDPIdleTimeout time.Duration
}

// NewDialer returns a new Dialer that opens sockets with d.
func NewDialer(d *conn.Dialer, udpIdleTimeout time.Duration) *Dialer {
	return &Dialer{
		dialer:         d,
		UDPIdleTimeout: udpIdleTimeout,
	}
}

// Dial opens the outbound endpoint for cmd to dest.
// Failures are returned as [*DialError].
func (d *Dialer) Dial(ctx context.Context, cmd header.Command, dest netip.AddrPort) (relay.Endpoint, error) {
	switch cmd {
	case header.CommandTCP:
		tc, err := d.dialer.DialTCP(ctx, dest)
		if err != nil {
			return nil, &DialError{Network: "tcp", Destination: dest, Err: err}
		}
		return NewTCPEndpoint(tc), nil

	case header.CommandUDP:
		uc, err := d.dialer.DialUDP(ctx, dest)
		if err != nil {
			return nil, &DialError{Network: "udp", Destination: dest, Err: err}
		}
		return NewUDPEndpoint(uc, d.UDPIdleTimeout), nil

	default:
		return nil, &DialError{
			Network:     cmd.String(),
			Destination: dest,
			Err:         fmt.Errorf("%w: %d", header.ErrUnknownCommand, cmd),
		}
	}
}

// TCPEndpoint passes bytes through a TCP connection unchanged.
type TCPEndpoint struct {
	c *net.TCPConn
}

// NewTCPEndpoint returns a new TCPEndpoint over c.
func NewTCPEndpoint(c *net.TCPConn) *TCPEndpoint {
	return &TCPEndpoint{c: c}
}

// Read implements [relay.Endpoint.Read].
func (e *TCPEndpoint) Read(b []byte) (int, error) {
	return e.c.Read(b)
}

// Write implements [relay.Endpoint.Write].
func (e *TCPEndpoint) Write(b []byte) (int, error) {
	return e.c.Write(b)
}

// CloseWrite implements [relay.Endpoint.CloseWrite].
func (e *TCPEndpoint) CloseWrite() error {
	return e.c.CloseWrite()
}

// Close implements [relay.Endpoint.Close].
func (e *TCPEndpoint) Close() error {
	return e.c.Close()
}

// UDPEndpoint exchanges datagrams with a single destination over a connected UDP socket.
// Each Read returns one datagram. Each Write sends one datagram.
type UDPEndpoint struct {
	c           *net.UDPConn
	idleTimeout time.Duration
}

// NewUDPEndpoint returns a new UDPEndpoint over the connected socket c.
// If idleTimeout is positive, Read returns [io.EOF] after idleTimeout without a datagram.
func NewUDPEndpoint(c *net.UDPConn, idleTimeout time.Duration) *UDPEndpoint {
	return &UDPEndpoint{
		c:           c,
		idleTimeout: idleTimeout,
	}
}

// Read implements [relay.Endpoint.Read].
func (e *UDPEndpoint) Read(b []byte) (int, error) {
	if e.idleTimeout > 0 {
		if err := e.c.SetReadDeadline(time.Now().Add(e.idleTimeout)); err != nil {
			return 0, err
		}
	}

	n, err := e.c.Read(b)
	if err != nil && e.idleTimeout > 0 && errors.Is(err, os.ErrDeadlineExceeded) {
		return n, io.EOF
	}
	return n, err
}

// Write implements [relay.Endpoint.Write].
func (e *UDPEndpoint) Write(b []byte) (int, error) {
	return e.c.Write(b)
}

// CloseWrite implements [relay.Endpoint.CloseWrite].
// UDP has no half-close, so this is a no-op.
func (e *UDPEndpoint) CloseWrite() error {
	return nil
}

// Close implements [relay.Endpoint.Close].
func (e *UDPEndpoint) Close() error {
	return e.c.Close()
}
