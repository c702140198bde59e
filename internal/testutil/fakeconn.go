package testutil

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
)

var errFakeClosed = errors.New("fake conn: closed")

// FakeConn is a scripted proxy transport. Receives are served from the
// concatenation of the scripted replies; every send is recorded.
type FakeConn struct {
	// ConnectErr, when set, fails Connect.
	ConnectErr error

	mu          sync.Mutex
	replies     bytes.Buffer
	sent        [][]byte
	connected   bool
	closed      bool
	disconnects int
	closes      int
	local       net.Conn
	remote      net.Conn
}

// NewFakeConn returns a FakeConn that will answer with replies, in order.
func NewFakeConn(replies ...[]byte) *FakeConn {
	f := &FakeConn{}
	for _, r := range replies {
		f.replies.Write(r)
	}
	return f
}

func (f *FakeConn) Connect(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ConnectErr != nil {
		return f.ConnectErr
	}
	if f.closed {
		return errFakeClosed
	}
	f.connected = true
	return nil
}

func (f *FakeConn) ConnectAsync(ctx context.Context, address string, done func(error)) {
	go func() { done(f.Connect(ctx, address)) }()
}

func (f *FakeConn) Send(p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed || !f.connected {
		return errFakeClosed
	}
	f.sent = append(f.sent, bytes.Clone(p))
	return nil
}

func (f *FakeConn) SendAsync(p []byte, done func(error)) {
	go func() { done(f.Send(p)) }()
}

func (f *FakeConn) Receive(n int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed || !f.connected {
		return nil, errFakeClosed
	}
	if f.replies.Len() < n {
		f.replies.Reset()
		return nil, io.ErrUnexpectedEOF
	}
	return bytes.Clone(f.replies.Next(n)), nil
}

func (f *FakeConn) ReceiveAsync(n int, done func([]byte, error)) {
	go func() { done(f.Receive(n)) }()
}

func (f *FakeConn) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.connected && !f.closed
}

// NetConn returns one end of an in-memory pipe; the other end is available
// from Remote.
func (f *FakeConn) NetConn() (net.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, errFakeClosed
	}
	if f.local == nil {
		f.local, f.remote = net.Pipe()
	}
	return f.local, nil
}

// Remote returns the far end of the pipe handed out by NetConn.
func (f *FakeConn) Remote() net.Conn {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.remote
}

func (f *FakeConn) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.disconnects++
	return f.closeLocked()
}

func (f *FakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closes++
	return f.closeLocked()
}

func (f *FakeConn) closeLocked() error {
	f.closed = true
	if f.local != nil {
		_ = f.local.Close()
		_ = f.remote.Close()
	}
	return nil
}

// Sent returns a copy of every packet sent so far.
func (f *FakeConn) Sent() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([][]byte, len(f.sent))
	for i, p := range f.sent {
		out[i] = bytes.Clone(p)
	}
	return out
}

// Disconnects counts graceful teardowns.
func (f *FakeConn) Disconnects() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.disconnects
}

// Closes counts abrupt teardowns.
func (f *FakeConn) Closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.closes
}

// Teardowns counts teardowns of either kind.
func (f *FakeConn) Teardowns() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.disconnects + f.closes
}
