//go:build openbsd

package forward

import "golang.org/x/sys/unix"

// OpenBSD sets the option at socket level, unlike FreeBSD.
func setBindAny(fd int, _ string) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_BINDANY, 1)
}
