// Package v1 implements version 1 of the RESTful API.
package v1

import (
	"github.com/gofiber/fiber/v2"
	"github.com/tunnelkit/vtunnel"
	"github.com/tunnelkit/vtunnel/stats"
)

// StandardError is the standard error response.
type StandardError struct {
	Message string `json:"error"`
}

// ServerInfo contains information about the API server.
type ServerInfo struct {
	Name       string `json:"server"`
	Version    string `json:"version"`
	APIVersion string `json:"apiVersion"`
}

var serverInfo = ServerInfo{
	Name:       "vtunnel",
	Version:    vtunnel.Version,
	APIVersion: "v1",
}

// GetServerInfo returns information about the API server.
func GetServerInfo(c *fiber.Ctx) error {
	return c.JSON(&serverInfo)
}

// Routes sets up the /v1 routes on router and returns the server manager
// for registering tunnel servers.
func Routes(router fiber.Router) *ServerManager {
	v1 := router.Group("/v1")
	v1.Get("/", GetServerInfo)
	sm := NewServerManager()
	sm.Routes(v1)
	return sm
}

// ServerManager handles server statistics API requests.
type ServerManager struct {
	collectors  map[string]stats.Collector
	serverNames []string
}

// NewServerManager returns a new server manager.
func NewServerManager() *ServerManager {
	return &ServerManager{
		collectors: make(map[string]stats.Collector),
	}
}

// AddServer adds a server and its stats collector to the server manager.
//
// AddServer must not be called after the API server has started.
func (sm *ServerManager) AddServer(name string, sc stats.Collector) {
	sm.collectors[name] = sc
	sm.serverNames = append(sm.serverNames, name)
}

// Routes sets up routes for the /v1/servers endpoint.
func (sm *ServerManager) Routes(v1 fiber.Router) {
	v1.Get("/servers", sm.ListServers)

	server := v1.Group("/servers/:server", sm.ContextCollector)
	server.Get("/stats", sm.GetStats)
}

// ListServers lists all managed servers.
func (sm *ServerManager) ListServers(c *fiber.Ctx) error {
	names := sm.serverNames
	if names == nil {
		names = []string{}
	}
	return c.JSON(names)
}

// ContextCollector is a middleware for the servers group.
// It adds the stats collector of the named server to the request context.
func (sm *ServerManager) ContextCollector(c *fiber.Ctx) error {
	sc, ok := sm.collectors[c.Params("server")]
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(&StandardError{Message: "server not found"})
	}
	c.Locals(0, sc)
	return c.Next()
}

// GetStats returns server traffic statistics.
// With the query parameter clear=true, the statistics are reset after the snapshot.
func (sm *ServerManager) GetStats(c *fiber.Ctx) error {
	sc := c.Locals(0).(stats.Collector)
	if c.QueryBool("clear", false) {
		return c.JSON(sc.SnapshotAndReset())
	}
	return c.JSON(sc.Snapshot())
}
