// Package tunnel runs tunnel sessions on accepted client connections.
package tunnel

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/tunnelkit/vtunnel/conn"
	"github.com/tunnelkit/vtunnel/header"
	"github.com/tunnelkit/vtunnel/inbound"
	"github.com/tunnelkit/vtunnel/netio"
	"github.com/tunnelkit/vtunnel/outbound"
	"github.com/tunnelkit/vtunnel/policy"
	"github.com/tunnelkit/vtunnel/relay"
	"github.com/tunnelkit/vtunnel/stats"
	"go.uber.org/zap"
)

// Stage is the phase of a session in which an error occurred.
type Stage uint8

const (
	StageHandshake Stage = iota
	StagePolicy
	StageDial
	StageRelay
)

func (s Stage) String() string {
	switch s {
	case StageHandshake:
		return "handshake"
	case StagePolicy:
		return "policy"
	case StageDial:
		return "dial"
	case StageRelay:
		return "relay"
	default:
		return fmt.Sprintf("Stage(%d)", s)
	}
}

// SessionError is returned by [Server.HandleConn] when a session fails.
type SessionError struct {
	Stage Stage
	Err   error
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session failed at %s: %v", e.Stage, e.Err)
}

// DefaultHandshakeTimeout is the default time allowed for a client to send its handshake.
const DefaultHandshakeTimeout = 30 * time.Second

// Config is the configuration for a [Server].
type Config struct {
	// Resolver resolves domain name destinations.
	// If nil, [conn.DefaultResolver] is used.
	Resolver conn.Resolver

	// Dialer opens outbound endpoints.
	// If nil, a dialer with default socket options is used.
	Dialer *outbound.Dialer

	// Policy rejects destinations. A nil policy allows every destination.
	Policy *policy.Policy

	// Collector collects traffic statistics.
	// If nil, statistics are not collected.
	Collector stats.Collector

	// HandshakeTimeout is the time allowed for the client to send its handshake.
	// If zero, [DefaultHandshakeTimeout] is used. If negative, there is no timeout.
	HandshakeTimeout time.Duration
}

// Server runs tunnel sessions.
type Server struct {
	resolver         conn.Resolver
	dialer           *outbound.Dialer
	policy           *policy.Policy
	collector        stats.Collector
	handshakeTimeout time.Duration
}

// NewServer returns a new server with the given configuration.
func NewServer(c Config) *Server {
	s := Server{
		resolver:         c.Resolver,
		dialer:           c.Dialer,
		policy:           c.Policy,
		collector:        c.Collector,
		handshakeTimeout: c.HandshakeTimeout,
	}
	if s.resolver == nil {
		s.resolver = conn.DefaultResolver
	}
	if s.dialer == nil {
		s.dialer = outbound.NewDialer(conn.DialerConfig{}.NewDialer(), 0)
	}
	if s.collector == nil {
		s.collector = stats.NoopCollector{}
	}
	if s.handshakeTimeout == 0 {
		s.handshakeTimeout = DefaultHandshakeTimeout
	}
	return &s
}

// HandleConn runs one tunnel session on the client connection c from peer.
// It blocks until the session ends and closes c before returning.
//
// A nil error means the session ran to completion. Otherwise the error is a [*SessionError].
func (s *Server) HandleConn(ctx context.Context, c netio.Conn, peer netip.AddrPort, logger *zap.Logger) error {
	defer c.Close()

	h, inEndpoint, err := s.handshake(ctx, c)
	if err != nil {
		s.collector.CollectFailedSession()
		return &SessionError{Stage: StageHandshake, Err: err}
	}

	if ce := logger.Check(zap.DebugLevel, "Received handshake"); ce != nil {
		ce.Write(
			zap.Stringer("clientAddress", peer),
			zap.Object("header", h),
		)
	}

	if err = s.policy.Check(h.Destination); err != nil {
		s.collector.CollectFailedSession()
		return &SessionError{Stage: StagePolicy, Err: err}
	}

	outEndpoint, err := s.dialer.Dial(ctx, h.Command, h.Destination)
	if err != nil {
		s.collector.CollectFailedSession()
		return &SessionError{Stage: StageDial, Err: err}
	}

	session := relay.Session{
		Network:     h.Command.String(),
		ClientAddr:  peer,
		Destination: h.Destination,
		Inbound:     inEndpoint,
		Outbound:    outEndpoint,
	}

	result, err := session.Run(logger)

	switch h.Command {
	case header.CommandTCP:
		s.collector.CollectTCPSession(result.Uplink.Bytes, result.Downlink.Bytes)
	case header.CommandUDP:
		s.collector.CollectUDPSession(result.Uplink.Units, result.Uplink.Bytes, result.Downlink.Units, result.Downlink.Bytes)
	}

	if err != nil {
		s.collector.CollectFailedSession()
		return &SessionError{Stage: StageRelay, Err: err}
	}

	logger.Info("Session completed",
		zap.Stringer("clientAddress", peer),
		zap.Stringer("sessionID", h.SessionID),
		zap.Stringer("command", h.Command),
		zap.Stringer("addr", h.Addr),
		zap.Stringer("destination", h.Destination),
		zap.Uint64("uplinkBytes", result.Uplink.Bytes),
		zap.Uint64("downlinkBytes", result.Downlink.Bytes),
		zap.Stringer("endedBy", result.EndedBy),
	)
	return nil
}

// handshake reads the handshake header from c within the handshake timeout
// and returns the client endpoint for the requested command.
func (s *Server) handshake(ctx context.Context, c netio.Conn) (header.Header, relay.Endpoint, error) {
	if s.handshakeTimeout > 0 {
		deadline := time.Now().Add(s.handshakeTimeout)
		if err := c.SetReadDeadline(deadline); err != nil {
			return header.Header{}, nil, err
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}

	h, err := header.Parse(ctx, c, s.resolver)
	if err != nil {
		return h, nil, err
	}

	ep, err := inbound.New(h.Command, c)
	if err != nil {
		return h, nil, err
	}

	if s.handshakeTimeout > 0 {
		if err = c.SetReadDeadline(time.Time{}); err != nil {
			return h, nil, err
		}
	}
	return h, ep, nil
}
