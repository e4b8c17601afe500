package stats

import (
	"sync"
	"testing"
)

func collect(c Collector) {
	c.CollectTCPSession(1024, 2048)
	c.CollectUDPSession(1, 3, 2, 4096)
	c.CollectFailedSession()
	c.CollectTCPSession(5120, 6144)
	c.CollectUDPSession(4, 7168, 8, 8192)
	c.CollectFailedSession()
}

var expectedServer = Server{
	Traffic: Traffic{
		DownlinkPackets: 10,
		DownlinkBytes:   20480,
		UplinkPackets:   5,
		UplinkBytes:     13315,
		TCPSessions:     2,
		UDPSessions:     2,
	},
	FailedSessions: 2,
}

func TestServerCollector(t *testing.T) {
	c := Config{Enabled: true}.Collector()
	collect(c)

	if s := c.Snapshot(); s != expectedServer {
		t.Errorf("c.Snapshot() = %+v, want %+v", s, expectedServer)
	}
	if s := c.SnapshotAndReset(); s != expectedServer {
		t.Errorf("c.SnapshotAndReset() = %+v, want %+v", s, expectedServer)
	}
	if s := c.Snapshot(); s != (Server{}) {
		t.Errorf("c.Snapshot() after reset = %+v, want zero", s)
	}
}

func TestServerCollectorConcurrent(t *testing.T) {
	c := NewServerCollector()

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			collect(c)
		})
	}
	wg.Wait()

	s := c.Snapshot()
	if s.TCPSessions != 16 {
		t.Errorf("s.TCPSessions = %d, want 16", s.TCPSessions)
	}
	if s.DownlinkBytes != 8*expectedServer.DownlinkBytes {
		t.Errorf("s.DownlinkBytes = %d, want %d", s.DownlinkBytes, 8*expectedServer.DownlinkBytes)
	}
	if s.FailedSessions != 16 {
		t.Errorf("s.FailedSessions = %d, want 16", s.FailedSessions)
	}
}

func TestNoopCollector(t *testing.T) {
	c := Config{}.Collector()
	collect(c)

	if s := c.Snapshot(); s != (Server{}) {
		t.Errorf("c.Snapshot() = %+v, want zero", s)
	}
	if s := c.SnapshotAndReset(); s != (Server{}) {
		t.Errorf("c.SnapshotAndReset() = %+v, want zero", s)
	}
}
