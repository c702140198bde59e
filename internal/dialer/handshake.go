package dialer

import (
	"context"
	"fmt"
	"net"

	"github.com/die-net/socksdial/internal/socks"
	"github.com/die-net/socksdial/internal/transport"
)

// engine is the part of a socks4 or socks5 client the dialers drive.
type engine interface {
	NetConn() (net.Conn, error)
	Close() error
}

// proxyTransport returns the connection a single proxied dial runs on.
func (cfg Config) proxyTransport() *transport.Conn {
	return transport.New(transport.Config{
		Timeout:     cfg.NegotiationTimeout,
		DialTimeout: cfg.DialTimeout,
		KeepAlive:   cfg.KeepAlive,
	})
}

func (cfg Config) socksConfig(tc *transport.Conn, user, pass string) socks.Config {
	return socks.Config{
		Timeout:     cfg.NegotiationTimeout,
		DialTimeout: cfg.DialTimeout,
		KeepAlive:   cfg.KeepAlive,
		Username:    user,
		Password:    pass,
		Resolver:    cfg.Resolver,
		Transport:   tc,
		Bus:         cfg.Bus,
	}
}

// establish runs handshake and hands back the relayed socket. Canceling ctx
// closes tc, which fails whatever operation the engine has in flight.
func establish(ctx context.Context, tc *transport.Conn, e engine, handshake func(context.Context) error) (net.Conn, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = tc.Close()
	})

	err := handshake(ctx)
	if !stop() {
		_ = e.Close()
		return nil, fmt.Errorf("handshake: %w", context.Cause(ctx))
	}
	if err != nil {
		_ = e.Close()
		return nil, err
	}

	conn, err := e.NetConn()
	if err != nil {
		_ = e.Close()
		return nil, fmt.Errorf("handshake: %w", err)
	}
	return conn, nil
}
