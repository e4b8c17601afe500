package netio

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"testing"
)

var _ Conn = (*net.TCPConn)(nil)

func TestIsClosedOrEOF(t *testing.T) {
	for _, c := range []struct {
		err  error
		want bool
	}{
		{io.EOF, true},
		{fmt.Errorf("uplink: %w", io.EOF), true},
		{net.ErrClosed, true},
		{&net.OpError{Op: "read", Net: "tcp", Err: net.ErrClosed}, true},
		{os.ErrDeadlineExceeded, true},
		{io.ErrUnexpectedEOF, false},
		{errors.New("connection refused"), false},
		{nil, false},
	} {
		if got := IsClosedOrEOF(c.err); got != c.want {
			t.Errorf("IsClosedOrEOF(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}
