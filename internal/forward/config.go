package forward

import (
	"net"
	"time"

	"github.com/die-net/socksdial/internal/dialer"
)

type Config struct {
	// Target is the host:port every connection is forwarded to. Empty means
	// the original destination of a transparently redirected connection.
	Target string

	// IOTimeout, when positive, bounds the lifetime of a forwarded
	// connection.
	IOTimeout time.Duration

	KeepAlive net.KeepAliveConfig

	Dialer dialer.Dialer
}
