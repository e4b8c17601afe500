package relay

import (
	"fmt"
	"net/netip"
	"sync"

	"go.uber.org/zap"
)

// Direction identifies one of the two relay directions of a session.
type Direction uint8

const (
	// Uplink is client to destination.
	Uplink Direction = iota

	// Downlink is destination to client.
	Downlink
)

func (d Direction) String() string {
	switch d {
	case Uplink:
		return "uplink"
	case Downlink:
		return "downlink"
	default:
		return fmt.Sprintf("Direction(%d)", d)
	}
}

// DirectionError records the direction in which a relay error occurred.
type DirectionError struct {
	Direction Direction
	Err       error
}

func (e *DirectionError) Unwrap() error {
	return e.Err
}

func (e *DirectionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Direction, e.Err)
}

// Session relays data between the inbound and outbound endpoints of one tunnel session.
type Session struct {
	// Network is the transport kind, used in log entries.
	Network string

	ClientAddr  netip.AddrPort
	Destination netip.AddrPort

	Inbound  Endpoint
	Outbound Endpoint
}

// Result is the outcome of a finished session.
type Result struct {
	Uplink   Traffic
	Downlink Traffic

	// EndedBy is the direction that finished first and ended the session.
	EndedBy Direction
}

// Run relays in both directions concurrently and blocks until the session ends.
//
// The first direction to finish, cleanly or with an error, ends the session:
// the other side is half-closed, then both endpoints are closed, which unblocks
// the other direction. Errors caused by closing the endpoints are not returned.
//
// Both endpoints are closed when Run returns.
func (s *Session) Run(logger *zap.Logger) (Result, error) {
	var (
		result   Result
		firstErr error
		once     sync.Once
		wg       sync.WaitGroup
	)

	finish := func(dir Direction, dst Endpoint, err error) {
		once.Do(func() {
			result.EndedBy = dir
			if err == nil {
				_ = dst.CloseWrite()
			} else {
				firstErr = &DirectionError{Direction: dir, Err: err}
			}
			_ = s.Inbound.Close()
			_ = s.Outbound.Close()
		})
	}

	wg.Go(func() {
		t, err := Relay(s.Outbound, s.Inbound, make([]byte, MaxUnitSize), s.unitLogger(logger, Uplink))
		result.Uplink = t
		finish(Uplink, s.Outbound, err)
	})

	wg.Go(func() {
		t, err := Relay(s.Inbound, s.Outbound, make([]byte, MaxUnitSize), s.unitLogger(logger, Downlink))
		result.Downlink = t
		finish(Downlink, s.Inbound, err)
	})

	wg.Wait()
	return result, firstErr
}

func (s *Session) unitLogger(logger *zap.Logger, dir Direction) func(n int) {
	if !logger.Core().Enabled(zap.DebugLevel) {
		return nil
	}
	return func(n int) {
		if ce := logger.Check(zap.DebugLevel, "Relayed unit"); ce != nil {
			ce.Write(
				zap.String("network", s.Network),
				zap.Stringer("clientAddress", s.ClientAddr),
				zap.Stringer("destination", s.Destination),
				zap.Stringer("direction", dir),
				zap.Int("bytes", n),
			)
		}
	}
}
