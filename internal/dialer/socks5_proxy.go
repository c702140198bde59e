package dialer

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/die-net/socksdial/internal/socks5"
)

type SOCKS5ProxyDialer struct {
	cfg           Config
	proxyHost     string
	proxyPort     int
	user          string
	pass          string
	remoteResolve bool
}

func NewSOCKS5ProxyDialer(cfg Config, proxyHost string, proxyPort int, user, pass string, remoteResolve bool) Dialer {
	return &SOCKS5ProxyDialer{
		cfg:           cfg,
		proxyHost:     proxyHost,
		proxyPort:     proxyPort,
		user:          user,
		pass:          pass,
		remoteResolve: remoteResolve,
	}
}

// ProxyAddr returns the host:port of the upstream proxy.
func (f *SOCKS5ProxyDialer) ProxyAddr() string {
	return net.JoinHostPort(f.proxyHost, strconv.Itoa(f.proxyPort))
}

func (f *SOCKS5ProxyDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if network != "tcp" && network != "tcp4" && network != "tcp6" {
		return nil, fmt.Errorf("socks5 proxy dial %s %s: unsupported network", network, address)
	}
	host, port, err := splitTarget(address)
	if err != nil {
		return nil, fmt.Errorf("socks5 proxy dial %s %s: %w", network, address, err)
	}

	tc := f.cfg.proxyTransport()
	c, err := socks5.NewFromHosts(ctx, f.proxyHost, f.proxyPort, host, port, socks5.Config{
		Config:          f.cfg.socksConfig(tc, f.user, f.pass),
		RemoteResolve:   f.remoteResolve,
		UserPassVersion: socks5.UserPassVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("socks5 proxy init: %w", err)
	}

	conn, err := establish(ctx, tc, c, func(ctx context.Context) error {
		return c.AutoConnect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("socks5 proxy dial %s %s: %w", network, address, err)
	}
	return conn, nil
}
