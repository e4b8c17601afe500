package relay

import (
	"errors"
	"fmt"
	"io"
)

// MaxUnitSize is the size of the buffer each direction reads units into.
// It holds the largest frame payload and the largest UDP datagram.
const MaxUnitSize = 65535

// ShortWriteError is returned when the destination endpoint accepted
// a different number of bytes than were read from the source endpoint.
type ShortWriteError struct {
	Read    int
	Written int
}

func (e *ShortWriteError) Unwrap() error {
	return io.ErrShortWrite
}

func (e *ShortWriteError) Error() string {
	return fmt.Sprintf("short write: read %d bytes, wrote %d bytes", e.Read, e.Written)
}

// Traffic counts the data relayed in one direction.
type Traffic struct {
	Bytes uint64
	Units uint64
}

// Relay reads units from src into b and writes each of them to dst,
// until src returns [io.EOF] or an error occurs.
//
// onUnit, if not nil, is called with the length of each unit after it has been written.
//
// A clean end of src returns a nil error.
func Relay(dst io.Writer, src io.Reader, b []byte, onUnit func(n int)) (t Traffic, err error) {
	for {
		n, rerr := src.Read(b)
		if n > 0 || rerr == nil {
			written, werr := dst.Write(b[:n])
			t.Bytes += uint64(written)
			if werr != nil {
				return t, werr
			}
			if written != n {
				return t, &ShortWriteError{Read: n, Written: written}
			}
			t.Units++
			if onUnit != nil {
				onUnit(n)
			}
		}

		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return t, nil
			}
			return t, rerr
		}
	}
}
