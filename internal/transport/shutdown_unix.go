//go:build unix

package transport

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// shutdown disables both directions of the socket so the peer sees an
// orderly FIN before the descriptor is closed.
func shutdown(conn net.Conn) error {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return nil
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return err
	}

	var shutErr error
	err = rc.Control(func(fd uintptr) {
		shutErr = unix.Shutdown(int(fd), unix.SHUT_RDWR)
	})
	if err != nil {
		return err
	}
	return shutErr
}
