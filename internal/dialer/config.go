package dialer

import (
	"net"
	"time"

	"github.com/die-net/socksdial/internal/notify"
	"github.com/die-net/socksdial/internal/socks"
)

type Config struct {
	// DialTimeout bounds DNS lookup and the TCP connect to the proxy or
	// target.
	DialTimeout time.Duration
	// NegotiationTimeout bounds each send and receive of a proxy handshake.
	NegotiationTimeout time.Duration
	KeepAlive          net.KeepAliveConfig

	// Resolver resolves proxy and target names. Nil uses net.DefaultResolver.
	Resolver socks.Resolver
	// Bus, when set, receives the handshake notifications of every dial.
	Bus *notify.Bus
}
