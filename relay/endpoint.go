// Package relay moves data units between the two endpoints of a tunnel session.
package relay

import "io"

// Endpoint is one side of a relay session.
//
// Each Read call returns exactly one data unit: an arbitrary chunk of bytes for
// stream endpoints, one datagram or frame payload for packet endpoints.
// Read returns [io.EOF] when the endpoint has no more data.
//
// Each Write call sends exactly one data unit.
type Endpoint interface {
	io.ReadWriteCloser

	// CloseWrite signals that no more data will be written.
	CloseWrite() error
}
