package socks5

import (
	"context"
	"fmt"
	"net"
	"slices"

	txsocks5 "github.com/txthinking/socks5"

	"github.com/die-net/socksdial/internal/notify"
	"github.com/die-net/socksdial/internal/packet"
	"github.com/die-net/socksdial/internal/socks"
)

const (
	// Version is the SOCKS5 protocol version.
	Version = txsocks5.Ver
	// CmdConnect is the SOCKS5 CONNECT command value.
	CmdConnect = txsocks5.CmdConnect
	// UserPassVersion is the RFC 1929 credentials sub-negotiation version.
	UserPassVersion = txsocks5.UserPassVer

	maxField = 255
)

type Config struct {
	socks.Config

	// RemoteResolve sends target host names to the proxy as domain
	// literals instead of resolving them locally. Used by NewFromHosts.
	RemoteResolve bool
	// UserPassVersion is the version byte of the credentials exchange.
	// Zero means Version; RFC 1929 servers expect UserPassVersion.
	UserPassVersion byte
}

// Client drives one SOCKS5 handshake. It is not safe for concurrent use.
type Client struct {
	cfg  Config
	sess *socks.Session

	offer         []Method
	method        Method
	negotiated    bool
	authenticated bool
}

// New returns a client for ep. The target may be a domain literal.
func New(ep socks.Endpoint, cfg Config) (*Client, error) {
	if ep.Proxy.IsDomain() {
		return nil, socks.Argumentf("proxy %s is not resolved", ep.Proxy)
	}
	if ep.Target.IsDomain() {
		if _, err := socks.DomainAddr(ep.Target.Host, ep.Target.Port); err != nil {
			return nil, err
		}
	}
	if cfg.UserPassVersion == 0 {
		cfg.UserPassVersion = Version
	}
	return &Client{cfg: cfg, sess: cfg.NewSession(ep)}, nil
}

// NewFromHosts resolves the proxy, and the target unless cfg.RemoteResolve
// is set, and returns a client for them.
func NewFromHosts(ctx context.Context, proxyHost string, proxyPort int, targetHost string, targetPort int, cfg Config) (*Client, error) {
	proxy, err := socks.Resolve(ctx, cfg.Resolver, "ip", proxyHost, proxyPort)
	if err != nil {
		return nil, err
	}
	target, err := socks.ResolveTarget(ctx, cfg.Resolver, targetHost, targetPort, cfg.RemoteResolve)
	if err != nil {
		return nil, err
	}
	return New(socks.Endpoint{Proxy: proxy, Target: target}, cfg)
}

// Bus returns the bus the client publishes on.
func (c *Client) Bus() *notify.Bus { return c.sess.Bus() }

// State returns the handshake state.
func (c *Client) State() socks.State { return c.sess.State() }

// Connected reports whether the proxy accepted the CONNECT request.
func (c *Client) Connected() bool { return c.sess.Established() }

// NegotiatedMethod returns the method selected by the proxy, or
// NoneAcceptable before negotiation.
func (c *Client) NegotiatedMethod() Method {
	if !c.negotiated {
		return NoneAcceptable
	}
	return c.method
}

// NetConn returns the relayed connection once established.
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

// Negotiate offers methods, in preference order, and records the one the
// proxy selects.
func (c *Client) Negotiate(methods ...Method) error {
	step, err := c.negotiation(methods)
	if err != nil {
		return err
	}
	return c.sess.Run(step)
}

// NegotiateAsync is Negotiate issued without blocking.
func (c *Client) NegotiateAsync(done func(error), methods ...Method) {
	step, err := c.negotiation(methods)
	if err != nil {
		done(err)
		return
	}
	c.sess.RunAsync(step, done)
}

// Authenticate sends the configured username and password. It is only
// valid after the proxy selected Credentials.
func (c *Client) Authenticate() error {
	step, err := c.credentials()
	if err != nil {
		return err
	}
	return c.sess.Run(step)
}

// AuthenticateAsync is Authenticate issued without blocking.
func (c *Client) AuthenticateAsync(done func(error)) {
	step, err := c.credentials()
	if err != nil {
		done(err)
		return
	}
	c.sess.RunAsync(step, done)
}

// Request sends the CONNECT request for the target.
func (c *Client) Request() error {
	step, err := c.request()
	if err != nil {
		return err
	}
	return c.sess.Run(step)
}

// RequestAsync is Request issued without blocking.
func (c *Client) RequestAsync(done func(error)) {
	step, err := c.request()
	if err != nil {
		done(err)
		return
	}
	c.sess.RunAsync(step, done)
}

// AutoConnect connects to the proxy and runs every applicable stage. With no
// methods it offers NoAuthentication, plus Credentials when a username is
// configured.
func (c *Client) AutoConnect(ctx context.Context, methods ...Method) error {
	offer, err := c.prepare(methods)
	if err != nil {
		return err
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	c.offer = offer
	return c.sess.Drive(c.next)
}

// AutoConnectAsync starts AutoConnect and returns at once. Argument faults
// are returned directly; everything else is reported on the bus:
// HandshakeAccepted on success, Failed otherwise.
func (c *Client) AutoConnectAsync(ctx context.Context, methods ...Method) error {
	offer, err := c.prepare(methods)
	if err != nil {
		return err
	}
	c.ConnectAsync(ctx, func(err error) {
		if err != nil {
			c.sess.Fail(err)
			return
		}
		c.offer = offer
		c.sess.DriveAsync(c.next, func(err error) {
			if err != nil {
				c.sess.Fail(err)
			}
		})
	})
	return nil
}

func (c *Client) prepare(methods []Method) ([]Method, error) {
	if len(methods) == 0 {
		methods = []Method{NoAuthentication}
		if c.cfg.Username != "" {
			methods = append(methods, Credentials)
		}
	}
	if err := c.checkOffer(methods); err != nil {
		return nil, err
	}
	if c.sess.State() != socks.Start {
		return nil, socks.ErrState
	}
	return methods, nil
}

func (c *Client) checkOffer(methods []Method) error {
	if len(methods) == 0 || len(methods) > maxField {
		return socks.Argumentf("offer %d methods, want 1 to %d", len(methods), maxField)
	}
	if slices.Contains(methods, Credentials) && (c.cfg.Username == "" || c.cfg.Password == "") {
		return socks.Argumentf("credentials offered without username and password")
	}
	if len(c.cfg.Username) > maxField || len(c.cfg.Password) > maxField {
		return socks.Argumentf("username and password must not exceed %d bytes", maxField)
	}
	return nil
}

func (c *Client) next() (socks.Step, bool, error) {
	var (
		step socks.Step
		err  error
	)
	switch {
	case c.sess.State() == socks.Established:
		return socks.Step{}, false, nil
	case !c.negotiated:
		step, err = c.negotiation(c.offer)
	case c.method == Credentials && !c.authenticated:
		step, err = c.credentials()
	default:
		step, err = c.request()
	}
	return step, err == nil, err
}

func (c *Client) negotiation(methods []Method) (socks.Step, error) {
	if err := c.checkOffer(methods); err != nil {
		return socks.Step{}, err
	}
	if c.negotiated || c.sess.State() != socks.AwaitingConnect {
		return socks.Step{}, socks.ErrState
	}
	c.offer = methods

	return socks.Step{
		Name:   "negotiation",
		State:  socks.Negotiating,
		Packet: EncodeNegotiation(methods),
		Sent:   "Sent negotiation.",
		Reply:  socks.FixedReply(2),
		Check:  c.checkNegotiation,
	}, nil
}

func (c *Client) credentials() (socks.Step, error) {
	if !c.negotiated || c.method != Credentials || c.authenticated || c.sess.State().Terminal() {
		return socks.Step{}, socks.ErrState
	}
	p, err := EncodeCredentials(c.cfg.UserPassVersion, c.cfg.Username, c.cfg.Password)
	if err != nil {
		return socks.Step{}, err
	}

	return socks.Step{
		Name:   "authentication",
		State:  socks.Authenticating,
		Packet: p,
		Sent:   "Sent credentials.",
		Reply:  socks.FixedReply(2),
		Check:  c.checkCredentials,
	}, nil
}

func (c *Client) request() (socks.Step, error) {
	if !c.negotiated || (c.method == Credentials && !c.authenticated) || c.sess.State().Terminal() {
		return socks.Step{}, socks.ErrState
	}
	p, err := EncodeRequest(c.sess.Endpoint().Target)
	if err != nil {
		return socks.Step{}, err
	}

	return socks.Step{
		Name:   "request",
		State:  socks.Requesting,
		Packet: p,
		Sent:   "Sent handshake.",
		Reply:  socks.ReplyPlan{Size: 4, More: replyRemaining},
		Check:  c.checkRequest,
	}, nil
}

func (c *Client) checkNegotiation(reply []byte) error {
	r, err := socks.ParseReply(reply)
	if err != nil {
		return err
	}
	if err := r.CheckVersion("negotiation", Version); err != nil {
		return err
	}

	m := Method(r.Code)
	switch {
	case m == NoneAcceptable:
		c.sess.Bus().Status("No acceptable authentication method.")
		return &socks.StatusError{Stage: "negotiation", Code: r.Code, Reason: "no acceptable method"}
	case !slices.Contains(c.offer, m):
		return &socks.StatusError{Stage: "negotiation", Code: r.Code, Reason: "method not offered"}
	case m != NoAuthentication && m != Credentials:
		return &socks.StatusError{Stage: "negotiation", Code: r.Code, Reason: "unsupported method " + m.String()}
	}

	c.method = m
	c.negotiated = true
	c.sess.Bus().Publish(notify.Event{Kind: notify.MethodAccepted})
	c.sess.Bus().Status("Negotiated method: %s.", m)
	return nil
}

func (c *Client) checkCredentials(reply []byte) error {
	r, err := socks.ParseReply(reply)
	if err != nil {
		return err
	}
	if err := r.CheckVersion("authentication", c.cfg.UserPassVersion); err != nil {
		return err
	}
	if r.Code != txsocks5.UserPassStatusSuccess {
		c.sess.Bus().Status("Credentials rejected.")
		return &socks.StatusError{Stage: "authentication", Code: r.Code, Reason: "credentials not accepted"}
	}

	c.authenticated = true
	c.sess.Bus().Publish(notify.Event{Kind: notify.CredentialsAccepted})
	c.sess.Bus().Status("Credentials accepted.")
	return nil
}

func (c *Client) checkRequest(reply []byte) error {
	r, err := socks.ParseReply(reply)
	if err != nil {
		return err
	}
	if err := r.CheckVersion("request", Version); err != nil {
		return err
	}

	rep := Reply(r.Code)
	if rep != Succeeded {
		c.sess.Bus().Status("Response: %s. Connected: false", rep)
		return &socks.StatusError{Stage: "request", Code: r.Code, Reason: rep.String()}
	}
	// The bound address of an unknown ATYP cannot be skipped, so the relay
	// would start misaligned.
	if atyp := reply[3]; atyp != txsocks5.ATYPIPv4 && atyp != txsocks5.ATYPIPv6 && atyp != txsocks5.ATYPDomain {
		c.sess.Bus().Status("Response: unknown address type 0x%02x. Connected: false", atyp)
		return &socks.StatusError{Stage: "request", Code: r.Code, Reason: fmt.Sprintf("unknown address type 0x%02x", atyp)}
	}

	c.sess.SetState(socks.Established)
	c.sess.Bus().Publish(notify.Event{Kind: notify.HandshakeAccepted})
	c.sess.Bus().Status("Response: %s. Connected: true", rep)
	return nil
}

// replyRemaining sizes the rest of a CONNECT reply from what has been read:
// the bound address length follows from ATYP. Failed or foreign replies stop
// after the header since their address is never used.
func replyRemaining(got []byte) int {
	if got[0] != Version || Reply(got[1]) != Succeeded {
		return 0
	}

	want := 0
	switch got[3] {
	case txsocks5.ATYPIPv4:
		want = 4 + 4 + 2
	case txsocks5.ATYPIPv6:
		want = 4 + 16 + 2
	case txsocks5.ATYPDomain:
		if len(got) < 5 {
			return 1
		}
		want = 5 + int(got[4]) + 2
	}
	return max(want-len(got), 0)
}

// EncodeNegotiation builds VER NMETHODS METHODS.
func EncodeNegotiation(methods []Method) []byte {
	b := packet.New(2 + len(methods)).Byte(Version).Byte(byte(len(methods)))
	for _, m := range methods {
		b.Byte(byte(m))
	}
	return b.Bytes()
}

// EncodeCredentials builds VER ULEN UNAME PLEN PASSWD.
func EncodeCredentials(ver byte, username, password string) ([]byte, error) {
	if username == "" || password == "" {
		return nil, socks.Argumentf("missing username or password")
	}
	if len(username) > maxField || len(password) > maxField {
		return nil, socks.Argumentf("username and password must not exceed %d bytes", maxField)
	}
	return packet.New(3 + len(username) + len(password)).
		Byte(ver).
		LenPrefixed([]byte(username)).
		LenPrefixed([]byte(password)).
		Bytes(), nil
}

// AddressType returns the ATYP for target.
func AddressType(target socks.Addr) byte {
	switch {
	case target.IsDomain():
		return txsocks5.ATYPDomain
	case target.IP.Is4():
		return txsocks5.ATYPIPv4
	default:
		return txsocks5.ATYPIPv6
	}
}

// EncodeRequest builds VER CMD RSV ATYP DST.ADDR DST.PORT for a CONNECT to
// target.
func EncodeRequest(target socks.Addr) ([]byte, error) {
	atyp := AddressType(target)
	b := packet.New(22).Byte(Version).Byte(CmdConnect).Byte(0x00).Byte(atyp)

	switch atyp {
	case txsocks5.ATYPDomain:
		if target.Host == "" || len(target.Host) > socks.MaxDomainLen {
			return nil, socks.Argumentf("domain %q must be 1 to %d bytes", target.Host, socks.MaxDomainLen)
		}
		b.LenPrefixed([]byte(target.Host))
	case txsocks5.ATYPIPv4:
		ip := target.IP.As4()
		b.Raw(ip[:])
	default:
		ip := target.IP.As16()
		b.Raw(ip[:])
	}
	return b.Uint16(target.Port).Bytes(), nil
}
