//go:build !linux

package conn

import "syscall"

func fwmarkControl(_ int) func(network, address string, c syscall.RawConn) error {
	return nil
}
