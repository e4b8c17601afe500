// Package netio defines the connection types shared by the tunnel endpoints.
package netio

import (
	"errors"
	"io"
	"net"
	"os"
)

// Conn is [net.Conn] with CloseWrite.
//
// [*net.TCPConn] implements Conn.
type Conn interface {
	net.Conn

	// CloseWrite shuts down the writing side of the connection.
	CloseWrite() error
}

// IsClosedOrEOF reports whether err is the result of reading from or writing to
// a connection that has been closed or reached EOF.
func IsClosedOrEOF(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, os.ErrDeadlineExceeded)
}
