//go:build freebsd || openbsd

package forward

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"syscall"
)

// IsTransparentSupported is true on OSes with transparent listeners.
const IsTransparentSupported = true

// ListenTransparentTCP listens on addr with the platform's bind-any option
// so the socket can accept connections redirected by IPFW fwd or PF rdr-to
// rules. Requires root.
func ListenTransparentTCP(ctx context.Context, addr string, ka net.KeepAliveConfig) (net.Listener, error) {
	lc := listenConfig(ka, func(network, _ string, c syscall.RawConn) error {
		var ctrlErr error
		err := c.Control(func(fd uintptr) {
			ctrlErr = setBindAny(int(fd), network)
		})
		if err != nil {
			return err
		}
		return ctrlErr
	})
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen transparent %s: %w", addr, err)
	}
	return ln, nil
}

// OriginalDst returns the destination of a redirected connection. The
// firewall preserves it as the local address of the accepted socket.
func OriginalDst(c net.Conn) (netip.AddrPort, bool) {
	tc, ok := c.(*net.TCPConn)
	if !ok {
		return netip.AddrPort{}, false
	}
	ap, err := netip.ParseAddrPort(tc.LocalAddr().String())
	if err != nil {
		return netip.AddrPort{}, false
	}
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port()), true
}
