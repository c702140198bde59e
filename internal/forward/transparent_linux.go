//go:build linux

package forward

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"
	"syscall"

	"golang.org/x/sys/unix"
)

// IsTransparentSupported is true on OSes with transparent listeners.
const IsTransparentSupported = true

// ListenTransparentTCP listens on addr with IP_TRANSPARENT set so the socket
// can accept connections redirected by iptables/nftables TPROXY or REDIRECT
// rules. Requires CAP_NET_ADMIN.
func ListenTransparentTCP(ctx context.Context, addr string, ka net.KeepAliveConfig) (net.Listener, error) {
	lc := listenConfig(ka, func(_, _ string, c syscall.RawConn) error {
		var ctrlErr error
		err := c.Control(func(fd uintptr) {
			ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_IP, unix.IP_TRANSPARENT, 1)
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

// OriginalDst returns the pre-redirect IPv4 destination of c.
func OriginalDst(c net.Conn) (netip.AddrPort, bool) {
	tc, ok := c.(*net.TCPConn)
	if !ok {
		return netip.AddrPort{}, false
	}
	rc, err := tc.SyscallConn()
	if err != nil {
		return netip.AddrPort{}, false
	}

	var (
		dst   netip.AddrPort
		found bool
	)
	_ = rc.Control(func(fd uintptr) {
		// SO_ORIGINAL_DST fills a sockaddr_in; IPv6Mreq is a 20 byte buffer
		// large enough to carry it.
		mreq, err := unix.GetsockoptIPv6Mreq(int(fd), unix.SOL_IP, unix.SO_ORIGINAL_DST)
		if err != nil {
			return
		}
		sa := mreq.Multiaddr
		if binary.NativeEndian.Uint16(sa[0:2]) != unix.AF_INET {
			return
		}
		port := binary.BigEndian.Uint16(sa[2:4])
		dst = netip.AddrPortFrom(netip.AddrFrom4([4]byte(sa[4:8])), port)
		found = true
	})
	return dst, found
}
