package dialer

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/die-net/socksdial/internal/socks"
)

type directDialer struct {
	cfg Config
}

// NewDirectDialer returns a Dialer that connects without a proxy. Host
// names go through cfg.Resolver when set, the same as for proxied dials.
func NewDirectDialer(cfg Config) Dialer {
	return &directDialer{cfg: cfg}
}

func (f *directDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if f.cfg.Resolver != nil {
		host, port, err := splitTarget(address)
		if err != nil {
			return nil, fmt.Errorf("dial %s %s: %w", network, address, err)
		}
		family := "ip"
		switch {
		case strings.HasSuffix(network, "4"):
			family = "ip4"
		case strings.HasSuffix(network, "6"):
			family = "ip6"
		}
		a, err := socks.Resolve(ctx, f.cfg.Resolver, family, host, port)
		if err != nil {
			return nil, fmt.Errorf("dial %s %s: %w", network, address, err)
		}
		address = a.String()
	}

	dd := net.Dialer{Timeout: f.cfg.DialTimeout, KeepAliveConfig: f.cfg.KeepAlive}
	conn, err := dd.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("dial %s %s: %w", network, address, err)
	}
	return conn, nil
}
