package outbound

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/tunnelkit/vtunnel/conn"
	"github.com/tunnelkit/vtunnel/header"
	"github.com/tunnelkit/vtunnel/netiotest"
)

func newTestDialer(udpIdleTimeout time.Duration) *Dialer {
	return NewDialer(conn.DialerConfig{DisableTFO: true}.NewDialer(), udpIdleTimeout)
}

func TestDialTCP(t *testing.T) {
	ln, addrPort := netiotest.ListenTCP(t)

	go func() {
		c, err := ln.AcceptTCP()
		if err != nil {
			t.Errorf("AcceptTCP failed: %v", err)
			return
		}
		defer c.Close()
		b, err := io.ReadAll(c)
		if err != nil {
			t.Errorf("io.ReadAll failed: %v", err)
			return
		}
		if _, err = c.Write(b); err != nil {
			t.Errorf("c.Write failed: %v", err)
		}
		c.CloseWrite()
	}()

	ep, err := newTestDialer(0).Dial(t.Context(), header.CommandTCP, addrPort)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer ep.Close()

	if _, ok := ep.(*TCPEndpoint); !ok {
		t.Errorf("Dial(TCP) returned %T, want *TCPEndpoint", ep)
	}

	if _, err = ep.Write([]byte("ping")); err != nil {
		t.Fatalf("ep.Write failed: %v", err)
	}
	if err = ep.CloseWrite(); err != nil {
		t.Fatalf("ep.CloseWrite failed: %v", err)
	}

	got, err := io.ReadAll(ep)
	if err != nil {
		t.Fatalf("io.ReadAll failed: %v", err)
	}
	if string(got) != "ping" {
		t.Errorf("ep received %q, want %q", got, "ping")
	}
}

func TestDialUDPOneDatagramPerCall(t *testing.T) {
	uc, addrPort := netiotest.ListenUDP(t)

	ep, err := newTestDialer(0).Dial(t.Context(), header.CommandUDP, addrPort)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer ep.Close()

	for _, p := range []string{"foo", "", "quux"} {
		if _, err = ep.Write([]byte(p)); err != nil {
			t.Fatalf("ep.Write failed: %v", err)
		}
	}

	b := make([]byte, 1500)
	for _, want := range []string{"foo", "", "quux"} {
		n, clientAddr, err := uc.ReadFromUDPAddrPort(b)
		if err != nil {
			t.Fatalf("ReadFromUDPAddrPort failed: %v", err)
		}
		if got := string(b[:n]); got != want {
			t.Errorf("destination received %q, want %q", got, want)
		}
		if _, err = uc.WriteToUDPAddrPort(b[:n], clientAddr); err != nil {
			t.Fatalf("WriteToUDPAddrPort failed: %v", err)
		}
	}

	for _, want := range []string{"foo", "", "quux"} {
		n, err := ep.Read(b)
		if err != nil {
			t.Fatalf("ep.Read failed: %v", err)
		}
		if got := string(b[:n]); got != want {
			t.Errorf("ep.Read() = %q, want %q", got, want)
		}
	}
}

func TestUDPEndpointIdleTimeout(t *testing.T) {
	_, addrPort := netiotest.ListenUDP(t)

	ep, err := newTestDialer(50*time.Millisecond).Dial(t.Context(), header.CommandUDP, addrPort)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer ep.Close()

	if err = ep.CloseWrite(); err != nil {
		t.Errorf("ep.CloseWrite() = %v, want nil", err)
	}
	if _, err = ep.Read(make([]byte, 1500)); err != io.EOF {
		t.Errorf("ep.Read() error = %v, want io.EOF", err)
	}
}

func TestDialError(t *testing.T) {
	ln, addrPort := netiotest.ListenTCP(t)
	ln.Close()

	_, err := newTestDialer(0).Dial(t.Context(), header.CommandTCP, addrPort)
	var dialErr *DialError
	if !errors.As(err, &dialErr) {
		t.Fatalf("Dial() error = %v, want *DialError", err)
	}
	if dialErr.Network != "tcp" {
		t.Errorf("dialErr.Network = %q, want %q", dialErr.Network, "tcp")
	}
	if dialErr.Destination != addrPort {
		t.Errorf("dialErr.Destination = %v, want %v", dialErr.Destination, addrPort)
	}

	_, err = newTestDialer(0).Dial(t.Context(), header.Command(0), addrPort)
	if !errors.Is(err, header.ErrUnknownCommand) {
		t.Errorf("Dial(0) error = %v, want %v", err, header.ErrUnknownCommand)
	}
}
