package inbound

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	// FrameHeaderLength is the length of the big-endian length prefix of a frame.
	FrameHeaderLength = 2

	// MaxPayloadLength is the maximum payload length of a frame.
	MaxPayloadLength = math.MaxUint16

	// MaxBufferedBytes is the default capacity of the reassembly buffer.
	// It holds exactly one frame with the maximum payload length.
	//
	// A frame whose header and payload do not fit in the buffer can never be
	// reassembled, and is reported as [ErrBufferOverflow].
	MaxBufferedBytes = FrameHeaderLength + MaxPayloadLength

	// maxConsecutiveEmptyReads matches bufio's limit on reads returning no data and no error.
	maxConsecutiveEmptyReads = 100
)

var (
	ErrBufferOverflow  = errors.New("reassembly buffer overflow")
	ErrTruncatedFrame  = errors.New("stream ended in the middle of a frame")
	ErrPayloadTooLarge = errors.New("payload exceeds maximum frame length")
)

// AppendFrame appends payload as a length-prefixed frame to b.
//
//	+--------+---------+
//	| length | payload |
//	+--------+---------+
//	| u16be  | length  |
//	+--------+---------+
func AppendFrame(b, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadLength {
		return b, fmt.Errorf("%w: %d", ErrPayloadTooLarge, len(payload))
	}
	b = binary.BigEndian.AppendUint16(b, uint16(len(payload)))
	return append(b, payload...), nil
}

// FrameReader reassembles length-prefixed frames from a byte stream.
//
// Each Read call returns the payload of exactly one frame. Bytes of subsequent
// frames that arrived with it stay buffered for later calls.
//
// FrameReader is not safe for concurrent use.
type FrameReader struct {
	r     io.Reader
	buf   []byte
	start int
	end   int
	rerr  error
}

// NewFrameReader returns a new FrameReader that reads from r with a reassembly buffer of size bytes.
// If size is not positive, [MaxBufferedBytes] is used.
func NewFrameReader(r io.Reader, size int) *FrameReader {
	if size <= 0 {
		size = MaxBufferedBytes
	}
	return &FrameReader{
		r:   r,
		buf: make([]byte, size),
	}
}

// Buffered returns the number of bytes read from the underlying reader but not yet returned.
func (fr *FrameReader) Buffered() int {
	return fr.end - fr.start
}

// peek returns the payload of the frame at the front of the buffer,
// or false if the frame is not complete yet.
func (fr *FrameReader) peek() ([]byte, bool) {
	buffered := fr.buf[fr.start:fr.end]
	if len(buffered) < FrameHeaderLength {
		return nil, false
	}
	payloadLen := int(binary.BigEndian.Uint16(buffered))
	if len(buffered) < FrameHeaderLength+payloadLen {
		return nil, false
	}
	return buffered[FrameHeaderLength : FrameHeaderLength+payloadLen], true
}

// Read reads the payload of the next frame into b.
//
// Read blocks until a whole frame has been buffered. If b is shorter than the payload,
// [io.ErrShortBuffer] is returned and the frame stays buffered.
//
// When the underlying reader returns [io.EOF] on a frame boundary, Read returns [io.EOF].
// If it ends in the middle of a frame, the returned error wraps both [ErrTruncatedFrame]
// and [io.ErrUnexpectedEOF].
func (fr *FrameReader) Read(b []byte) (int, error) {
	for emptyReads := 0; ; {
		if payload, ok := fr.peek(); ok {
			if len(b) < len(payload) {
				return 0, fmt.Errorf("%w: frame payload is %d bytes, buffer is %d bytes", io.ErrShortBuffer, len(payload), len(b))
			}
			n := copy(b, payload)
			fr.start += FrameHeaderLength + n
			if fr.start == fr.end {
				fr.start, fr.end = 0, 0
			}
			return n, nil
		}

		if fr.rerr != nil {
			if fr.rerr == io.EOF && fr.end > fr.start {
				return 0, fmt.Errorf("%w: %d bytes buffered: %w", ErrTruncatedFrame, fr.end-fr.start, io.ErrUnexpectedEOF)
			}
			return 0, fr.rerr
		}

		if fr.start > 0 {
			fr.end = copy(fr.buf, fr.buf[fr.start:fr.end])
			fr.start = 0
		}

		if fr.end == len(fr.buf) {
			return 0, fmt.Errorf("%w: frame declares %d payload bytes, buffer holds %d bytes",
				ErrBufferOverflow, binary.BigEndian.Uint16(fr.buf), len(fr.buf))
		}

		n, err := fr.r.Read(fr.buf[fr.end:])
		fr.end += n
		if err != nil {
			fr.rerr = err
			continue
		}

		if n == 0 {
			emptyReads++
			if emptyReads >= maxConsecutiveEmptyReads {
				return 0, io.ErrNoProgress
			}
			continue
		}
		emptyReads = 0
	}
}
