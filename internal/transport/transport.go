// Package transport adapts a stream socket to the operations the handshake
// engines need: connect, send and receive, each available as a blocking call
// or as an issue-now, complete-later call with a continuation.
//
// Every send and receive is bounded by the configured timeout. Teardown is
// idempotent and may be called from any goroutine; it is the only way to
// abandon an operation in flight.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultTimeout applies to every send and receive when Config.Timeout is zero.
const DefaultTimeout = 5 * time.Second

var (
	// ErrBusy is returned when an operation is issued while another one is
	// still in flight on the same Conn.
	ErrBusy = errors.New("transport: operation already in flight")
	// ErrNotConnected is returned by send and receive before Connect succeeds.
	ErrNotConnected = errors.New("transport: not connected")
	// ErrClosed is returned once the Conn has been torn down.
	ErrClosed = errors.New("transport: closed")
)

// ContextDialer mirrors net.Dialer.DialContext.
type ContextDialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

type Config struct {
	// Timeout bounds each send and receive. Zero means DefaultTimeout,
	// negative disables deadlines.
	Timeout time.Duration
	// DialTimeout bounds Connect. Zero falls back to Timeout.
	DialTimeout time.Duration
	KeepAlive   net.KeepAliveConfig
	// Dialer establishes the socket. Nil uses a net.Dialer.
	Dialer ContextDialer
}

// Conn is a single connection to a proxy. At most one operation may be in
// flight at a time.
type Conn struct {
	cfg  Config
	busy atomic.Bool

	mu     sync.Mutex
	conn   net.Conn
	closed bool
}

// New returns an unconnected Conn.
func New(cfg Config) *Conn {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = cfg.Timeout
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &net.Dialer{KeepAliveConfig: cfg.KeepAlive}
	}
	return &Conn{cfg: cfg}
}

// Wrap returns a Conn around an already connected socket.
func Wrap(conn net.Conn, cfg Config) *Conn {
	c := New(cfg)
	c.conn = conn
	return c
}

// Timeout reports the per-operation timeout in effect.
func (c *Conn) Timeout() time.Duration {
	return c.cfg.Timeout
}

// Connect opens a TCP connection to address.
func (c *Conn) Connect(ctx context.Context, address string) error {
	if !c.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer c.busy.Store(false)

	return c.connect(ctx, address)
}

// ConnectAsync issues Connect and returns immediately; done runs on another
// goroutine once the connection attempt completes.
func (c *Conn) ConnectAsync(ctx context.Context, address string, done func(error)) {
	if !c.busy.CompareAndSwap(false, true) {
		go done(ErrBusy)
		return
	}
	go func() {
		err := c.connect(ctx, address)
		c.busy.Store(false)
		done(err)
	}()
}

func (c *Conn) connect(ctx context.Context, address string) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.conn != nil:
		c.mu.Unlock()
		return fmt.Errorf("connect %s: already connected", address)
	}
	c.mu.Unlock()

	if c.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.DialTimeout)
		defer cancel()
	}

	conn, err := c.cfg.Dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("connect %s: %w", address, err)
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetKeepAliveConfig(c.cfg.KeepAlive)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		_ = conn.Close()
		return ErrClosed
	}
	c.conn = conn
	return nil
}

// Send writes all of p.
func (c *Conn) Send(p []byte) error {
	if !c.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer c.busy.Store(false)

	return c.send(p)
}

// SendAsync issues Send and returns immediately; done runs on another
// goroutine once the write completes.
func (c *Conn) SendAsync(p []byte, done func(error)) {
	if !c.busy.CompareAndSwap(false, true) {
		go done(ErrBusy)
		return
	}
	go func() {
		err := c.send(p)
		c.busy.Store(false)
		done(err)
	}()
}

func (c *Conn) send(p []byte) error {
	conn, err := c.current()
	if err != nil {
		return err
	}
	if c.cfg.Timeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.Timeout))
	}
	if _, err := conn.Write(p); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// Receive reads exactly n bytes into a fresh buffer.
func (c *Conn) Receive(n int) ([]byte, error) {
	if !c.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer c.busy.Store(false)

	return c.receive(n)
}

// ReceiveAsync issues Receive and returns immediately; done runs on another
// goroutine once n bytes arrived or the read failed.
func (c *Conn) ReceiveAsync(n int, done func([]byte, error)) {
	if !c.busy.CompareAndSwap(false, true) {
		go done(nil, ErrBusy)
		return
	}
	go func() {
		buf, err := c.receive(n)
		c.busy.Store(false)
		done(buf, err)
	}()
}

func (c *Conn) receive(n int) ([]byte, error) {
	conn, err := c.current()
	if err != nil {
		return nil, err
	}
	if c.cfg.Timeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.Timeout))
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return nil, fmt.Errorf("receive: %w", err)
	}
	return buf, nil
}

func (c *Conn) current() (net.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.closed:
		return nil, ErrClosed
	case c.conn == nil:
		return nil, ErrNotConnected
	}
	return c.conn, nil
}

// Connected reports whether a socket is open.
func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.conn != nil && !c.closed
}

// NetConn returns the underlying socket with deadlines cleared, for use
// once the handshake has completed.
func (c *Conn) NetConn() (net.Conn, error) {
	conn, err := c.current()
	if err != nil {
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})
	return conn, nil
}

// Disconnect shuts the socket down in both directions and closes it.
// Errors from the shutdown are ignored. Subsequent calls return nil.
func (c *Conn) Disconnect() error {
	conn := c.detach()
	if conn == nil {
		return nil
	}
	_ = shutdown(conn)
	return conn.Close()
}

// Close closes the socket without a shutdown. Subsequent calls return nil.
func (c *Conn) Close() error {
	conn := c.detach()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (c *Conn) detach() net.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn
}
