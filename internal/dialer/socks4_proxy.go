package dialer

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/die-net/socksdial/internal/socks4"
)

type SOCKS4ProxyDialer struct {
	cfg       Config
	proxyHost string
	proxyPort int
	userID    string
}

func NewSOCKS4ProxyDialer(cfg Config, proxyHost string, proxyPort int, userID string) Dialer {
	return &SOCKS4ProxyDialer{cfg: cfg, proxyHost: proxyHost, proxyPort: proxyPort, userID: userID}
}

// ProxyAddr returns the host:port of the upstream proxy.
func (f *SOCKS4ProxyDialer) ProxyAddr() string {
	return net.JoinHostPort(f.proxyHost, strconv.Itoa(f.proxyPort))
}

func (f *SOCKS4ProxyDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if network != "tcp" && network != "tcp4" {
		return nil, fmt.Errorf("socks4 proxy dial %s %s: unsupported network", network, address)
	}
	host, port, err := splitTarget(address)
	if err != nil {
		return nil, fmt.Errorf("socks4 proxy dial %s %s: %w", network, address, err)
	}

	tc := f.cfg.proxyTransport()
	c, err := socks4.NewFromHosts(ctx, f.proxyHost, f.proxyPort, host, port, socks4.Config{
		Config: f.cfg.socksConfig(tc, "", ""),
		UserID: f.userID,
	})
	if err != nil {
		return nil, fmt.Errorf("socks4 proxy init: %w", err)
	}

	conn, err := establish(ctx, tc, c, func(ctx context.Context) error {
		return c.AutoConnect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("socks4 proxy dial %s %s: %w", network, address, err)
	}
	return conn, nil
}
