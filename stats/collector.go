// Package stats collects traffic statistics of tunnel servers.
package stats

import "sync/atomic"

// Traffic stores the traffic statistics.
type Traffic struct {
	DownlinkPackets uint64 `json:"downlinkPackets"`
	DownlinkBytes   uint64 `json:"downlinkBytes"`
	UplinkPackets   uint64 `json:"uplinkPackets"`
	UplinkBytes     uint64 `json:"uplinkBytes"`
	TCPSessions     uint64 `json:"tcpSessions"`
	UDPSessions     uint64 `json:"udpSessions"`
}

// Server stores the server's traffic statistics.
type Server struct {
	Traffic

	// FailedSessions is the number of sessions that ended before or during relaying
	// because of an error.
	FailedSessions uint64 `json:"failedSessions"`
}

// Collector collects server traffic statistics.
type Collector interface {
	// CollectTCPSession collects a finished TCP session.
	CollectTCPSession(uplinkBytes, downlinkBytes uint64)

	// CollectUDPSession collects a finished UDP session.
	CollectUDPSession(uplinkPackets, uplinkBytes, downlinkPackets, downlinkBytes uint64)

	// CollectFailedSession counts a session that failed.
	CollectFailedSession()

	// Snapshot returns the server's traffic statistics.
	Snapshot() Server

	// SnapshotAndReset returns the server's traffic statistics and resets the statistics.
	SnapshotAndReset() Server
}

type serverCollector struct {
	downlinkPackets atomic.Uint64
	downlinkBytes   atomic.Uint64
	uplinkPackets   atomic.Uint64
	uplinkBytes     atomic.Uint64
	tcpSessions     atomic.Uint64
	udpSessions     atomic.Uint64
	failedSessions  atomic.Uint64
}

// NewServerCollector returns a new collector for collecting server traffic statistics.
func NewServerCollector() Collector {
	return &serverCollector{}
}

// CollectTCPSession implements [Collector.CollectTCPSession].
func (sc *serverCollector) CollectTCPSession(uplinkBytes, downlinkBytes uint64) {
	sc.uplinkBytes.Add(uplinkBytes)
	sc.downlinkBytes.Add(downlinkBytes)
	sc.tcpSessions.Add(1)
}

// CollectUDPSession implements [Collector.CollectUDPSession].
func (sc *serverCollector) CollectUDPSession(uplinkPackets, uplinkBytes, downlinkPackets, downlinkBytes uint64) {
	sc.uplinkPackets.Add(uplinkPackets)
	sc.uplinkBytes.Add(uplinkBytes)
	sc.downlinkPackets.Add(downlinkPackets)
	sc.downlinkBytes.Add(downlinkBytes)
	sc.udpSessions.Add(1)
}

// CollectFailedSession implements [Collector.CollectFailedSession].
func (sc *serverCollector) CollectFailedSession() {
	sc.failedSessions.Add(1)
}

// Snapshot implements [Collector.Snapshot].
func (sc *serverCollector) Snapshot() Server {
	return Server{
		Traffic: Traffic{
			DownlinkPackets: sc.downlinkPackets.Load(),
			DownlinkBytes:   sc.downlinkBytes.Load(),
			UplinkPackets:   sc.uplinkPackets.Load(),
			UplinkBytes:     sc.uplinkBytes.Load(),
			TCPSessions:     sc.tcpSessions.Load(),
			UDPSessions:     sc.udpSessions.Load(),
		},
		FailedSessions: sc.failedSessions.Load(),
	}
}

// SnapshotAndReset implements [Collector.SnapshotAndReset].
func (sc *serverCollector) SnapshotAndReset() Server {
	return Server{
		Traffic: Traffic{
			DownlinkPackets: sc.downlinkPackets.Swap(0),
			DownlinkBytes:   sc.downlinkBytes.Swap(0),
			UplinkPackets:   sc.uplinkPackets.Swap(0),
			UplinkBytes:     sc.uplinkBytes.Swap(0),
			TCPSessions:     sc.tcpSessions.Swap(0),
			UDPSessions:     sc.udpSessions.Swap(0),
		},
		FailedSessions: sc.failedSessions.Swap(0),
	}
}

// NoopCollector is a no-op collector.
// Its collect methods do nothing and its snapshot methods return empty statistics.
type NoopCollector struct{}

// CollectTCPSession implements [Collector.CollectTCPSession].
func (NoopCollector) CollectTCPSession(uplinkBytes, downlinkBytes uint64) {}

// CollectUDPSession implements [Collector.CollectUDPSession].
func (NoopCollector) CollectUDPSession(uplinkPackets, uplinkBytes, downlinkPackets, downlinkBytes uint64) {
}

// CollectFailedSession implements [Collector.CollectFailedSession].
func (NoopCollector) CollectFailedSession() {}

// Snapshot implements [Collector.Snapshot].
func (NoopCollector) Snapshot() Server {
	return Server{}
}

// SnapshotAndReset implements [Collector.SnapshotAndReset].
func (NoopCollector) SnapshotAndReset() Server {
	return Server{}
}

// Config stores configuration for the stats collector.
type Config struct {
	Enabled bool `json:"enabled"`
}

// Collector returns a new stats collector from the config.
func (c Config) Collector() Collector {
	if c.Enabled {
		return NewServerCollector()
	}
	return NoopCollector{}
}
