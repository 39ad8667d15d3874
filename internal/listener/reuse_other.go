//go:build !linux && !darwin && !freebsd

package listener

import "syscall"

// reuseAddrControl is a no-op on platforms without a golang.org/x/sys/unix
// SO_REUSEPORT binding; Go's net package already sets SO_REUSEADDR on
// Windows sockets by default.
func reuseAddrControl(network, address string, c syscall.RawConn) error {
	return nil
}
