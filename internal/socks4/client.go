// Package socks4 implements the client side of a SOCKS4 CONNECT: a single
// request/reply round trip after the connection to the proxy is up.
package socks4

import (
	"context"
	"net"
	"strings"

	"github.com/die-net/socksdial/internal/notify"
	"github.com/die-net/socksdial/internal/packet"
	"github.com/die-net/socksdial/internal/socks"
)

const (
	// Version is the SOCKS4 protocol version.
	Version = 0x04
	// CmdConnect asks the proxy to open a TCP connection.
	CmdConnect = 0x01

	replySize = 8
)

type Config struct {
	socks.Config

	// UserID is sent in the request's USERID field.
	UserID string
}

// Client drives one SOCKS4 handshake. It is not safe for concurrent use.
type Client struct {
	cfg  Config
	sess *socks.Session
}

// New returns a client for ep. The target must be an IPv4 address.
func New(ep socks.Endpoint, cfg Config) (*Client, error) {
	if ep.Target.IsDomain() || !ep.Target.IP.Is4() {
		return nil, socks.Argumentf("socks4 target %s is not an IPv4 address", ep.Target)
	}
	if ep.Proxy.IsDomain() {
		return nil, socks.Argumentf("proxy %s is not resolved", ep.Proxy)
	}
	if strings.IndexByte(cfg.UserID, 0) >= 0 {
		return nil, socks.Argumentf("userid contains a NUL byte")
	}
	return &Client{cfg: cfg, sess: cfg.NewSession(ep)}, nil
}

// NewFromHosts resolves the proxy and the target (IPv4 only) with
// cfg.Resolver and returns a client for them.
func NewFromHosts(ctx context.Context, proxyHost string, proxyPort int, targetHost string, targetPort int, cfg Config) (*Client, error) {
	proxy, err := socks.Resolve(ctx, cfg.Resolver, "ip", proxyHost, proxyPort)
	if err != nil {
		return nil, err
	}
	target, err := socks.Resolve(ctx, cfg.Resolver, "ip4", targetHost, targetPort)
	if err != nil {
		return nil, err
	}
	return New(socks.Endpoint{Proxy: proxy, Target: target}, cfg)
}

// Bus returns the bus the client publishes on.
func (c *Client) Bus() *notify.Bus { return c.sess.Bus() }

// State returns the handshake state.
func (c *Client) State() socks.State { return c.sess.State() }

// Connected reports whether the proxy granted the request.
func (c *Client) Connected() bool { return c.sess.Established() }

// NetConn returns the relayed connection after a granted request.
func (c *Client) NetConn() (net.Conn, error) { return c.sess.NetConn() }

// Close disconnects from the proxy. It may be called more than once.
func (c *Client) Close() error { return c.sess.Close() }

// Connect opens the connection to the proxy.
func (c *Client) Connect(ctx context.Context) error {
	return c.sess.Connect(ctx)
}

// ConnectAsync opens the connection to the proxy and calls done when the
// attempt completes.
func (c *Client) ConnectAsync(ctx context.Context, done func(error)) {
	c.sess.ConnectAsync(ctx, done)
}

// SendRequest sends the CONNECT request and waits for the reply. A refusal
// leaves the client Failed with the transport torn down and returns a
// *socks.StatusError. State and the bus report the same outcome, so callers
// that only watch events may ignore the error.
func (c *Client) SendRequest() error {
	step, err := c.request()
	if err != nil {
		return err
	}
	return c.sess.Run(step)
}

// SendRequestAsync is SendRequest issued without blocking; done receives
// the same result.
func (c *Client) SendRequestAsync(done func(error)) {
	step, err := c.request()
	if err != nil {
		done(err)
		return
	}
	c.sess.RunAsync(step, done)
}

// AutoConnect connects to the proxy and performs the handshake. As with
// SendRequest, a refusal is also visible through State and the bus.
func (c *Client) AutoConnect(ctx context.Context) error {
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.sess.Drive(c.next)
}

// AutoConnectAsync starts AutoConnect and returns at once. Completion is
// reported on the bus: RequestAccepted on success, Failed otherwise.
func (c *Client) AutoConnectAsync(ctx context.Context) {
	c.ConnectAsync(ctx, func(err error) {
		if err != nil {
			c.sess.Fail(err)
			return
		}
		c.sess.DriveAsync(c.next, func(err error) {
			if err != nil {
				c.sess.Fail(err)
			}
		})
	})
}

func (c *Client) next() (socks.Step, bool, error) {
	switch c.sess.State() {
	case socks.AwaitingConnect:
		step, err := c.request()
		return step, err == nil, err
	case socks.Established:
		return socks.Step{}, false, nil
	default:
		return socks.Step{}, false, socks.ErrState
	}
}

func (c *Client) request() (socks.Step, error) {
	if c.sess.State() != socks.AwaitingConnect {
		return socks.Step{}, socks.ErrState
	}
	p, err := EncodeRequest(c.sess.Endpoint().Target, c.cfg.UserID)
	if err != nil {
		return socks.Step{}, err
	}
	return socks.Step{
		Name:   "request",
		State:  socks.Requesting,
		Packet: p,
		Sent:   "Request sent.",
		Reply:  socks.FixedReply(replySize),
		Check:  c.checkResponse,
	}, nil
}

func (c *Client) checkResponse(reply []byte) error {
	r, err := socks.ParseReply(reply)
	if err != nil {
		return err
	}

	status := Status(r.Code)
	if status != Granted {
		c.sess.Bus().Status("Response: %s. Connected: false", status)
		return &socks.StatusError{Stage: "request", Code: r.Code, Reason: status.String()}
	}

	c.sess.SetState(socks.Established)
	c.sess.Bus().Publish(notify.Event{Kind: notify.RequestAccepted})
	c.sess.Bus().Status("Response: %s. Connected: true", status)
	return nil
}

// EncodeRequest builds VN CD DSTPORT DSTIP USERID NUL for target.
func EncodeRequest(target socks.Addr, userID string) ([]byte, error) {
	if target.IsDomain() || !target.IP.Is4() {
		return nil, socks.Argumentf("socks4 target %s is not an IPv4 address", target)
	}
	ip := target.IP.As4()
	return packet.New(9 + len(userID)).
		Byte(Version).
		Byte(CmdConnect).
		Uint16(target.Port).
		Raw(ip[:]).
		String(userID).
		Byte(0x00).
		Bytes(), nil
}
