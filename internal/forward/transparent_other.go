//go:build !linux && !freebsd && !openbsd

package forward

import (
	"context"
	"errors"
	"net"
	"net/netip"
)

// IsTransparentSupported is true on OSes with transparent listeners.
const IsTransparentSupported = false

func ListenTransparentTCP(_ context.Context, _ string, _ net.KeepAliveConfig) (net.Listener, error) {
	return nil, errors.New("transparent listeners are only supported on linux, freebsd and openbsd")
}

func OriginalDst(_ net.Conn) (netip.AddrPort, bool) {
	return netip.AddrPort{}, false
}
