// Package api serves the RESTful API for inspecting running tunnel servers.
package api

import (
	"context"
	"errors"

	"github.com/gofiber/contrib/fiberzap"
	"github.com/gofiber/fiber/v2"
	v1 "github.com/tunnelkit/vtunnel/api/v1"
	"github.com/tunnelkit/vtunnel/conn"
	"go.uber.org/zap"
)

// Config stores the configuration for the RESTful API.
type Config struct {
	// Enabled controls whether the API server is enabled.
	Enabled bool `json:"enabled"`

	// EnableTrustedProxyCheck enables trusted proxy checks.
	EnableTrustedProxyCheck bool `json:"enableTrustedProxyCheck"`

	// TrustedProxies is the list of trusted proxies.
	// This only takes effect if EnableTrustedProxyCheck is true.
	TrustedProxies []string `json:"trustedProxies"`

	// ProxyHeader is the header used to determine the client's IP address.
	// If empty, the remote peer's address is used.
	ProxyHeader string `json:"proxyHeader"`

	// Listen is the address to listen on.
	Listen string `json:"listen"`

	// SecretPath adds a secret path prefix to all API endpoints.
	SecretPath string `json:"secretPath"`

	// FastOpen enables TCP Fast Open on the listener.
	FastOpen bool `json:"fastOpen"`

	// ListenerFwmark sets SO_MARK on the listener on Linux.
	ListenerFwmark int `json:"listenerFwmark"`
}

// NewServer returns a new API server from the config,
// and the server manager for registering tunnel servers.
func (c *Config) NewServer(logger *zap.Logger) (*Server, *v1.ServerManager, error) {
	if c.Listen == "" {
		return nil, nil, errors.New("no listen address specified")
	}

	app := fiber.New(fiber.Config{
		ProxyHeader:             c.ProxyHeader,
		DisableStartupMessage:   true,
		EnableTrustedProxyCheck: c.EnableTrustedProxyCheck,
		TrustedProxies:          c.TrustedProxies,
	})

	app.Use(fiberzap.New(fiberzap.Config{
		Logger: logger,
	}))

	var router fiber.Router = app
	if c.SecretPath != "" {
		router = app.Group(c.SecretPath)
	}

	api := router.Group("/api")
	sm := v1.Routes(api)

	return &Server{
		logger: logger,
		app:    app,
		listenConfig: conn.ListenConfig{
			FastOpen: c.FastOpen,
			Fwmark:   c.ListenerFwmark,
		},
		listen: c.Listen,
	}, sm, nil
}

// Server is the RESTful API server.
type Server struct {
	logger       *zap.Logger
	app          *fiber.App
	listenConfig conn.ListenConfig
	listen       string
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// ZapField implements [vtunnel.Service.ZapField].
func (s *Server) ZapField() zap.Field {
	return zap.String("service", "API server")
}

// Start implements [vtunnel.Service.Start].
func (s *Server) Start(ctx context.Context) error {
	ln, err := s.listenConfig.ListenTCP(ctx, s.listen)
	if err != nil {
		return err
	}

	go func() {
		if err := s.app.Listener(ln); err != nil {
			s.logger.Error("Failed to serve API", zap.Error(err))
		}
	}()

	s.logger.Info("Started API server", zap.Stringer("listenAddress", ln.Addr()))
	return nil
}

// Stop implements [vtunnel.Service.Stop].
func (s *Server) Stop() error {
	return s.app.Shutdown()
}
