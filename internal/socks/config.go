package socks

import (
	"context"
	"net"
	"time"

	"github.com/die-net/socksdial/internal/notify"
	"github.com/die-net/socksdial/internal/transport"
)

// DefaultTimeout bounds every send and receive unless Config.Timeout is set.
const DefaultTimeout = transport.DefaultTimeout

// Conn is the transport an engine drives. *transport.Conn implements it.
type Conn interface {
	Connect(ctx context.Context, address string) error
	ConnectAsync(ctx context.Context, address string, done func(error))
	Send(p []byte) error
	SendAsync(p []byte, done func(error))
	Receive(n int) ([]byte, error)
	ReceiveAsync(n int, done func([]byte, error))
	Connected() bool
	NetConn() (net.Conn, error)
	Disconnect() error
	Close() error
}

var _ Conn = (*transport.Conn)(nil)

// Config holds the settings shared by both engines. The zero value is
// usable.
type Config struct {
	// Timeout bounds each send and receive. Zero means DefaultTimeout.
	Timeout time.Duration
	// DialTimeout bounds the connection to the proxy. Zero falls back to
	// Timeout.
	DialTimeout time.Duration
	KeepAlive   net.KeepAliveConfig

	Username string
	Password string

	// Resolver resolves proxy and target host names. Nil uses
	// net.DefaultResolver.
	Resolver Resolver
	// Transport replaces the default TCP transport.
	Transport Conn
	// Bus receives notifications. Nil allocates a private bus.
	Bus *notify.Bus
}

// NewSession builds the session an engine runs on, using cfg.Transport and
// cfg.Bus when set.
func (cfg Config) NewSession(ep Endpoint) *Session {
	conn := cfg.Transport
	if conn == nil {
		conn = transport.New(transport.Config{
			Timeout:     cfg.Timeout,
			DialTimeout: cfg.DialTimeout,
			KeepAlive:   cfg.KeepAlive,
		})
	}
	bus := cfg.Bus
	if bus == nil {
		bus = notify.New()
	}
	return NewSession(conn, bus, ep)
}
