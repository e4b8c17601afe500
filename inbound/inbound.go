// Package inbound implements the client-facing side of a tunnel session.
//
// The first bytes written back to the client are always [AckPrefix].
// TCP sessions then pass bytes through unchanged. UDP sessions carry
// datagrams as length-prefixed frames in both directions.
package inbound

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/tunnelkit/vtunnel/header"
	"github.com/tunnelkit/vtunnel/netio"
	"github.com/tunnelkit/vtunnel/relay"
)

// AckLength is the length of [AckPrefix].
const AckLength = 2

// AckPrefix is written before the first response byte of every session.
var AckPrefix = [AckLength]byte{0, 0}

// New returns the inbound endpoint for cmd over the client connection c.
func New(cmd header.Command, c netio.Conn) (relay.Endpoint, error) {
	switch cmd {
	case header.CommandTCP:
		return NewStreamEndpoint(c), nil
	case header.CommandUDP:
		return NewFrameEndpoint(c), nil
	default:
		return nil, fmt.Errorf("%w: %d", header.ErrUnknownCommand, cmd)
	}
}

// StreamEndpoint is the inbound endpoint of a TCP session.
type StreamEndpoint struct {
	c     netio.Conn
	acked bool
}

// NewStreamEndpoint returns a new StreamEndpoint over c.
func NewStreamEndpoint(c netio.Conn) *StreamEndpoint {
	return &StreamEndpoint{c: c}
}

// Read implements [relay.Endpoint.Read].
func (e *StreamEndpoint) Read(b []byte) (int, error) {
	return e.c.Read(b)
}

// Write implements [relay.Endpoint.Write].
//
// The first successful call puts [AckPrefix] in front of b in a single write
// to the underlying connection. The returned count never includes the prefix.
func (e *StreamEndpoint) Write(b []byte) (int, error) {
	if e.acked {
		return e.c.Write(b)
	}

	bufs := net.Buffers{AckPrefix[:], b}
	n, err := bufs.WriteTo(e.c)
	if err != nil {
		return max(int(n)-AckLength, 0), err
	}
	e.acked = true
	return len(b), nil
}

// CloseWrite implements [relay.Endpoint.CloseWrite].
func (e *StreamEndpoint) CloseWrite() error {
	return e.c.CloseWrite()
}

// Close implements [relay.Endpoint.Close].
func (e *StreamEndpoint) Close() error {
	return e.c.Close()
}

// FrameEndpoint is the inbound endpoint of a UDP session.
//
// Each Write sends one datagram as a frame. Each Read returns the payload of one frame.
type FrameEndpoint struct {
	c     netio.Conn
	r     *FrameReader
	acked bool
	hdr   [AckLength + FrameHeaderLength]byte
}

// NewFrameEndpoint returns a new FrameEndpoint over c.
func NewFrameEndpoint(c netio.Conn) *FrameEndpoint {
	return &FrameEndpoint{
		c: c,
		r: NewFrameReader(c, MaxBufferedBytes),
	}
}

// Read implements [relay.Endpoint.Read].
// See [FrameReader.Read] for details.
func (e *FrameEndpoint) Read(b []byte) (int, error) {
	return e.r.Read(b)
}

// Write implements [relay.Endpoint.Write].
//
// Payloads longer than [MaxPayloadLength] are rejected with [ErrPayloadTooLarge]
// without writing anything.
func (e *FrameEndpoint) Write(b []byte) (int, error) {
	if len(b) > MaxPayloadLength {
		return 0, fmt.Errorf("%w: %d", ErrPayloadTooLarge, len(b))
	}

	hdr := e.hdr[AckLength:]
	if !e.acked {
		hdr = e.hdr[:]
		copy(hdr, AckPrefix[:])
	}
	binary.BigEndian.PutUint16(hdr[len(hdr)-FrameHeaderLength:], uint16(len(b)))

	bufs := net.Buffers{hdr, b}
	n, err := bufs.WriteTo(e.c)
	if err != nil {
		return max(int(n)-len(hdr), 0), err
	}
	e.acked = true
	return len(b), nil
}

// CloseWrite implements [relay.Endpoint.CloseWrite].
func (e *FrameEndpoint) CloseWrite() error {
	return e.c.CloseWrite()
}

// Close implements [relay.Endpoint.Close].
func (e *FrameEndpoint) Close() error {
	return e.c.Close()
}
