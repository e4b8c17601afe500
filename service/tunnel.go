package service

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"

	"github.com/tunnelkit/vtunnel/conn"
	"github.com/tunnelkit/vtunnel/netio"
	"github.com/tunnelkit/vtunnel/policy"
	"github.com/tunnelkit/vtunnel/stats"
	"github.com/tunnelkit/vtunnel/tunnel"
	"go.uber.org/zap"
)

// TunnelService accepts client connections and runs a tunnel session on each of them.
//
// TunnelService implements [vtunnel.Service].
type TunnelService struct {
	serverName    string
	listenAddress string
	listenConfig  conn.ListenConfig
	server        *tunnel.Server
	policy        *policy.Policy
	collector     stats.Collector
	logger        *zap.Logger

	listener *net.TCPListener
	cancel   context.CancelFunc
	acceptWg sync.WaitGroup
	connWg   sync.WaitGroup

	mu    sync.Mutex
	conns map[*net.TCPConn]struct{}
}

// NewTunnelService returns a new tunnel service.
func NewTunnelService(
	serverName, listenAddress string,
	listenConfig conn.ListenConfig,
	server *tunnel.Server,
	p *policy.Policy,
	collector stats.Collector,
	logger *zap.Logger,
) *TunnelService {
	return &TunnelService{
		serverName:    serverName,
		listenAddress: listenAddress,
		listenConfig:  listenConfig,
		server:        server,
		policy:        p,
		collector:     collector,
		logger:        logger,
		conns:         make(map[*net.TCPConn]struct{}),
	}
}

// Collector returns the stats collector of the service.
func (s *TunnelService) Collector() stats.Collector {
	return s.collector
}

// Addr returns the listener address, or nil if the service has not been started.
func (s *TunnelService) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ZapField implements [vtunnel.Service.ZapField].
func (s *TunnelService) ZapField() zap.Field {
	return zap.String("server", s.serverName)
}

// Start implements [vtunnel.Service.Start].
func (s *TunnelService) Start(ctx context.Context) error {
	ln, err := s.listenConfig.ListenTCP(ctx, s.listenAddress)
	if err != nil {
		return err
	}
	s.listener = ln

	ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))

	s.acceptWg.Go(func() {
		for {
			clientConn, err := ln.AcceptTCP()
			if err != nil {
				if errors.Is(err, os.ErrDeadlineExceeded) {
					return
				}
				s.logger.Warn("Failed to accept TCP connection",
					zap.String("server", s.serverName),
					zap.String("listenAddress", s.listenAddress),
					zap.Error(err),
				)
				continue
			}

			s.mu.Lock()
			s.conns[clientConn] = struct{}{}
			s.mu.Unlock()

			s.connWg.Go(func() {
				s.handleConn(ctx, clientConn)

				s.mu.Lock()
				delete(s.conns, clientConn)
				s.mu.Unlock()
			})
		}
	})

	s.logger.Info("Started tunnel service",
		zap.String("server", s.serverName),
		zap.Stringer("listenAddress", ln.Addr()),
	)
	return nil
}

// handleConn runs a tunnel session on an accepted connection and logs its failure.
func (s *TunnelService) handleConn(ctx context.Context, clientConn *net.TCPConn) {
	clientAddrPort := clientConn.RemoteAddr().(*net.TCPAddr).AddrPort()

	if ce := s.logger.Check(zap.DebugLevel, "Accepted connection"); ce != nil {
		ce.Write(
			zap.String("server", s.serverName),
			zap.String("listenAddress", s.listenAddress),
			zap.Stringer("clientAddress", clientAddrPort),
		)
	}

	err := s.server.HandleConn(ctx, clientConn, clientAddrPort, s.logger)
	if err == nil {
		return
	}

	var sessionErr *tunnel.SessionError
	if errors.As(err, &sessionErr) && sessionErr.Stage == tunnel.StageHandshake {
		s.logger.Warn("Handshake failed",
			zap.String("server", s.serverName),
			zap.String("listenAddress", s.listenAddress),
			zap.Stringer("clientAddress", clientAddrPort),
			zap.Error(sessionErr.Err),
		)
		return
	}

	if sessionErr != nil && sessionErr.Stage == tunnel.StageRelay && netio.IsClosedOrEOF(err) {
		s.logger.Debug("Session ended by closed connection",
			zap.String("server", s.serverName),
			zap.Stringer("clientAddress", clientAddrPort),
			zap.Error(err),
		)
		return
	}

	s.logger.Warn("Session failed",
		zap.String("server", s.serverName),
		zap.String("listenAddress", s.listenAddress),
		zap.Stringer("clientAddress", clientAddrPort),
		zap.Error(err),
	)
}

// Stop implements [vtunnel.Service.Stop].
//
// Stop closes the listener and all active client connections,
// and waits for their sessions to end.
func (s *TunnelService) Stop() error {
	if s.listener == nil {
		return nil
	}

	if err := s.listener.SetDeadline(conn.ALongTimeAgo); err != nil {
		return err
	}
	s.acceptWg.Wait()
	s.cancel()

	s.mu.Lock()
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	s.connWg.Wait()

	if err := s.policy.Close(); err != nil {
		s.logger.Warn("Failed to close policy", zap.String("server", s.serverName), zap.Error(err))
	}
	return s.listener.Close()
}
