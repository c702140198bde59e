package forward

import (
	"context"
	"fmt"
	"net"
	"syscall"
)

// ListenTCP listens on network/addr. Accepted connections get ka; with ka
// disabled they get no keep-alives at all rather than the runtime default.
func ListenTCP(ctx context.Context, network, addr string, ka net.KeepAliveConfig) (net.Listener, error) {
	lc := listenConfig(ka, nil)
	ln, err := lc.Listen(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s %s: %w", network, addr, err)
	}
	return ln, nil
}

// listenConfig builds the ListenConfig shared by the plain and transparent
// listeners. control, if non-nil, runs on the socket before bind.
func listenConfig(ka net.KeepAliveConfig, control func(network, address string, c syscall.RawConn) error) net.ListenConfig {
	lc := net.ListenConfig{Control: control, KeepAliveConfig: ka}
	if !ka.Enable {
		lc.KeepAlive = -1
	}
	return lc
}
