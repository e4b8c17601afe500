// Package header implements the tunnel handshake header.
//
// The handshake is sent once by the client at the start of a connection:
//
//	+---------+------------+--------+---------+---------+-------+------+---------+
//	| version | session id | optlen | options | command | port  | atyp | address |
//	+---------+------------+--------+---------+---------+-------+------+---------+
//	|   1B    |    16B     |   1B   | optlen  |   1B    | u16be |  1B  |   var   |
//	+---------+------------+--------+---------+---------+-------+------+---------+
//
// The address is 4 bytes for [AtypIPv4], or a length byte followed by
// the domain name for [AtypDomainName].
package header

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"strings"

	"github.com/google/uuid"
	"github.com/tunnelkit/vtunnel/conn"
	"go.uber.org/zap/zapcore"
)

// Version is the only supported protocol version.
const Version = 0

// Address types.
const (
	AtypIPv4       = 1
	AtypDomainName = 2
)

const (
	// SessionIDLength is the length of the session identifier.
	SessionIDLength = 16

	// MaxOptionsLength is the maximum length of the options field.
	MaxOptionsLength = 255

	// MaxDomainLength is the maximum length of a domain name destination.
	MaxDomainLength = 255

	// MaxHeaderLength is the maximum length of an encoded header.
	MaxHeaderLength = 1 + SessionIDLength + 1 + MaxOptionsLength + 1 + 2 + 1 + 1 + MaxDomainLength
)

var (
	ErrUnsupportedVersion     = errors.New("unsupported protocol version")
	ErrUnknownCommand         = errors.New("unknown command")
	ErrUnknownAddressType     = errors.New("unknown address type")
	ErrTruncated              = errors.New("truncated header")
	ErrUnsupportedDestination = errors.New("destination must be an IPv4 address or a domain name")
	ErrOptionsTooLong         = errors.New("options exceed 255 bytes")
)

// FieldError is returned when a header field cannot be read or is invalid.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

func (e *FieldError) Error() string {
	return "header field " + e.Field + ": " + e.Err.Error()
}

// Command selects the destination transport and the inbound framing.
type Command byte

const (
	CommandTCP Command = 1
	CommandUDP Command = 2
)

// ParseCommand returns the command for the wire value b.
func ParseCommand(b byte) (Command, error) {
	switch cmd := Command(b); cmd {
	case CommandTCP, CommandUDP:
		return cmd, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnknownCommand, b)
	}
}

// String returns "TCP", "UDP", or the numeric value for unknown commands.
func (c Command) String() string {
	switch c {
	case CommandTCP:
		return "TCP"
	case CommandUDP:
		return "UDP"
	default:
		return fmt.Sprintf("Command(%d)", byte(c))
	}
}

// Header is a parsed handshake header.
type Header struct {
	Version   byte
	SessionID uuid.UUID
	Command   Command

	// Addr is the destination as sent by the client.
	Addr conn.Addr

	// Destination is the resolved destination address.
	// For domain name destinations, it is the first address returned by the resolver.
	Destination netip.AddrPort
}

// MarshalLogObject implements [zapcore.ObjectMarshaler].
func (h Header) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("sessionID", h.SessionID.String())
	enc.AddString("command", h.Command.String())
	enc.AddString("addr", h.Addr.String())
	enc.AddString("destination", h.Destination.String())
	return nil
}

// readField reads exactly len(b) bytes of a field from r.
func readField(r io.Reader, b []byte, field string) error {
	if _, err := io.ReadFull(r, b); err != nil {
		return &FieldError{Field: field, Err: fmt.Errorf("%w: %w", ErrTruncated, err)}
	}
	return nil
}

// Parse reads a handshake header from r, resolving domain name destinations with resolver.
// A nil resolver means [conn.DefaultResolver].
//
// Parse consumes exactly the bytes of the header. Bytes that follow it are left in r.
func Parse(ctx context.Context, r io.Reader, resolver conn.Resolver) (h Header, err error) {
	var b [1 + SessionIDLength + 1]byte

	// Version
	if err = readField(r, b[:1], "version"); err != nil {
		return
	}
	if b[0] != Version {
		err = &FieldError{Field: "version", Err: fmt.Errorf("%w: %d", ErrUnsupportedVersion, b[0])}
		return
	}
	h.Version = b[0]

	// Session ID
	if err = readField(r, h.SessionID[:], "session id"); err != nil {
		return
	}

	// Options
	if err = readField(r, b[:1], "options length"); err != nil {
		return
	}
	if optLen := int(b[0]); optLen > 0 {
		var opts [MaxOptionsLength]byte
		if err = readField(r, opts[:optLen], "options"); err != nil {
			return
		}
	}

	// Command
	if err = readField(r, b[:1], "command"); err != nil {
		return
	}
	if h.Command, err = ParseCommand(b[0]); err != nil {
		err = &FieldError{Field: "command", Err: err}
		return
	}

	// Port
	if err = readField(r, b[:2], "port"); err != nil {
		return
	}
	port := binary.BigEndian.Uint16(b[:2])

	// Address
	if err = readField(r, b[:1], "address type"); err != nil {
		return
	}

	switch atyp := b[0]; atyp {
	case AtypIPv4:
		var ip4 [4]byte
		if err = readField(r, ip4[:], "IPv4 address"); err != nil {
			return
		}
		h.Addr = conn.AddrFromIPPort(netip.AddrPortFrom(netip.AddrFrom4(ip4), port))

	case AtypDomainName:
		if err = readField(r, b[:1], "domain length"); err != nil {
			return
		}
		var domainBuf [MaxDomainLength]byte
		domainBytes := domainBuf[:b[0]]
		if err = readField(r, domainBytes, "domain"); err != nil {
			return
		}
		domain := strings.ToValidUTF8(string(domainBytes), "\uFFFD")

		if h.Addr, err = conn.AddrFromDomainPort(domain, port); err != nil {
			err = &FieldError{Field: "domain", Err: err}
			return
		}

	default:
		err = &FieldError{Field: "address type", Err: fmt.Errorf("%w: %d", ErrUnknownAddressType, atyp)}
		return
	}

	if h.Destination, err = h.Addr.ResolveIPPort(ctx, resolver); err != nil {
		err = &FieldError{Field: "domain", Err: err}
	}
	return
}

// Append encodes a handshake header and appends it to b.
//
// addr must be an IPv4 address (IPv4-mapped IPv6 addresses are accepted) or a domain name.
func Append(b []byte, sessionID uuid.UUID, options []byte, cmd Command, addr conn.Addr) ([]byte, error) {
	if len(options) > MaxOptionsLength {
		return b, ErrOptionsTooLong
	}
	if cmd != CommandTCP && cmd != CommandUDP {
		return b, fmt.Errorf("%w: %d", ErrUnknownCommand, byte(cmd))
	}

	b = append(b, Version)
	b = append(b, sessionID[:]...)
	b = append(b, byte(len(options)))
	b = append(b, options...)
	b = append(b, byte(cmd))
	b = binary.BigEndian.AppendUint16(b, addr.Port())

	switch {
	case addr.IsIP():
		ip := addr.IP()
		if !ip.Is4() && !ip.Is4In6() {
			return b, fmt.Errorf("%w: %s", ErrUnsupportedDestination, addr)
		}
		ip4 := ip.As4()
		b = append(b, AtypIPv4)
		b = append(b, ip4[:]...)
	case addr.Domain() != "":
		domain := addr.Domain()
		b = append(b, AtypDomainName, byte(len(domain)))
		b = append(b, domain...)
	default:
		return b, fmt.Errorf("%w: %s", ErrUnsupportedDestination, addr)
	}

	return b, nil
}
