// Package service configures and runs tunnel servers and the API server.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/tunnelkit/vtunnel"
	"github.com/tunnelkit/vtunnel/api"
	v1 "github.com/tunnelkit/vtunnel/api/v1"
	"github.com/tunnelkit/vtunnel/conn"
	"github.com/tunnelkit/vtunnel/jsoncfg"
	"github.com/tunnelkit/vtunnel/outbound"
	"github.com/tunnelkit/vtunnel/policy"
	"github.com/tunnelkit/vtunnel/stats"
	"github.com/tunnelkit/vtunnel/tunnel"
	"go.uber.org/zap"
)

// Config is the main configuration structure.
// It may be marshaled as or unmarshaled from JSON.
type Config struct {
	Servers []ServerConfig `json:"servers"`
	API     api.Config     `json:"api"`
}

// ServerConfig is the configuration of a tunnel server.
type ServerConfig struct {
	// Name identifies the server in logs and the API.
	Name string `json:"name"`

	// Listen is the TCP address to accept client connections on.
	Listen string `json:"listen"`

	// FastOpen enables TCP Fast Open on the listener.
	FastOpen bool `json:"listenerTFO"`

	// ListenerFwmark sets SO_MARK on the listener on Linux.
	ListenerFwmark int `json:"listenerFwmark"`

	// DialerFwmark sets SO_MARK on outbound sockets on Linux.
	DialerFwmark int `json:"dialerFwmark"`

	// DialerTFO enables TCP Fast Open on outbound TCP connections.
	DialerTFO bool `json:"dialerTFO"`

	// HandshakeTimeout is the time allowed for a client to send its handshake.
	// Defaults to 30s. A negative value disables the timeout.
	HandshakeTimeout jsoncfg.Duration `json:"handshakeTimeout"`

	// UDPIdleTimeout ends a UDP session when no datagram has been received
	// from the destination for this long. Zero disables the timeout.
	UDPIdleTimeout jsoncfg.Duration `json:"udpIdleTimeout"`

	// Policy restricts the destinations clients may connect to.
	Policy policy.Config `json:"policy"`

	// Stats configures traffic statistics. It is enabled implicitly when the API is enabled.
	Stats stats.Config `json:"stats"`
}

// TunnelService returns a new tunnel service from the configuration.
func (sc *ServerConfig) TunnelService(statsConfig stats.Config, logger *zap.Logger) (*TunnelService, error) {
	if sc.Listen == "" {
		return nil, errors.New("no listen address specified")
	}

	p, err := sc.Policy.Policy(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create policy: %w", err)
	}

	if sc.Stats.Enabled {
		statsConfig.Enabled = true
	}
	collector := statsConfig.Collector()

	dialer := conn.DialerConfig{
		DisableTFO: !sc.DialerTFO,
		Fwmark:     sc.DialerFwmark,
	}.NewDialer()

	server := tunnel.NewServer(tunnel.Config{
		Dialer:           outbound.NewDialer(dialer, sc.UDPIdleTimeout.Value()),
		Policy:           p,
		Collector:        collector,
		HandshakeTimeout: sc.HandshakeTimeout.Value(),
	})

	return NewTunnelService(sc.Name, sc.Listen, conn.ListenConfig{
		FastOpen: sc.FastOpen,
		Fwmark:   sc.ListenerFwmark,
	}, server, p, collector, logger), nil
}

// Manager initializes the service manager.
//
// Initialization order: API server -> tunnel servers
func (c *Config) Manager(logger *zap.Logger) (*Manager, error) {
	if len(c.Servers) == 0 {
		return nil, errors.New("no services to start")
	}

	services := make([]vtunnel.Service, 0, 1+len(c.Servers))

	var (
		apiSM       *v1.ServerManager
		statsConfig stats.Config
	)

	if c.API.Enabled {
		statsConfig.Enabled = true

		apiServer, sm, err := c.API.NewServer(logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create API server: %w", err)
		}
		apiSM = sm
		services = append(services, apiServer)
	}

	serverIndexByName := make(map[string]int, len(c.Servers))

	for i := range c.Servers {
		serverConfig := &c.Servers[i]

		if dupIndex, ok := serverIndexByName[serverConfig.Name]; ok {
			return nil, fmt.Errorf("duplicate server name: %q (index %d and %d)", serverConfig.Name, dupIndex, i)
		}
		serverIndexByName[serverConfig.Name] = i

		ts, err := serverConfig.TunnelService(statsConfig, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create tunnel service %q: %w", serverConfig.Name, err)
		}
		services = append(services, ts)

		if apiSM != nil {
			apiSM.AddServer(serverConfig.Name, ts.Collector())
		}
	}

	return &Manager{services, logger}, nil
}

// Manager manages the services.
type Manager struct {
	services []vtunnel.Service
	logger   *zap.Logger
}

// Start starts all configured services.
func (m *Manager) Start(ctx context.Context) error {
	for _, s := range m.services {
		if err := s.Start(ctx); err != nil {
			kv := s.ZapField()
			return fmt.Errorf("failed to start %s=%q: %w", kv.Key, kv.String, err)
		}
	}
	return nil
}

// Stop stops all running services.
func (m *Manager) Stop() {
	for _, s := range m.services {
		kv := s.ZapField()
		if err := s.Stop(); err != nil {
			m.logger.Warn("Failed to stop service", kv, zap.Error(err))
			continue
		}
		m.logger.Info("Stopped service", kv)
	}
}
