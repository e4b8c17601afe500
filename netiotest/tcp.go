// Package netiotest provides loopback socket helpers for tests.
package netiotest

import (
	"net"
	"net/netip"
	"testing"
)

// NewTCPConnPair returns a connected pair of loopback TCP connections.
// Both connections are closed when the test finishes.
func NewTCPConnPair(t testing.TB) (client, server *net.TCPConn) {
	t.Helper()

	ln, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("net.ListenTCP failed: %v", err)
	}
	defer ln.Close()

	type acceptResult struct {
		c   *net.TCPConn
		err error
	}
	ch := make(chan acceptResult, 1)
	go func() {
		c, err := ln.AcceptTCP()
		ch <- acceptResult{c, err}
	}()

	client, err = net.DialTCP("tcp", nil, ln.Addr().(*net.TCPAddr))
	if err != nil {
		t.Fatalf("net.DialTCP failed: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	res := <-ch
	if res.err != nil {
		t.Fatalf("AcceptTCP failed: %v", res.err)
	}
	server = res.c
	t.Cleanup(func() { server.Close() })

	return client, server
}

// ListenUDP returns a UDP socket bound to an ephemeral loopback port and its address.
// The socket is closed when the test finishes.
func ListenUDP(t testing.TB) (*net.UDPConn, netip.AddrPort) {
	t.Helper()

	uc, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("net.ListenUDP failed: %v", err)
	}
	t.Cleanup(func() { uc.Close() })

	return uc, uc.LocalAddr().(*net.UDPAddr).AddrPort()
}

// ListenTCP returns a TCP listener bound to an ephemeral loopback port and its address.
// The listener is closed when the test finishes.
func ListenTCP(t testing.TB) (*net.TCPListener, netip.AddrPort) {
	t.Helper()

	ln, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("net.ListenTCP failed: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	return ln, ln.Addr().(*net.TCPAddr).AddrPort()
}
