package socks5

import (
	"bytes"
	"context"
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	txsocks5 "github.com/txthinking/socks5"
	"golang.org/x/net/proxy"
	"golang.org/x/sync/errgroup"

	"github.com/die-net/socksdial/internal/socks"
	"github.com/die-net/socksdial/internal/testutil"
	"github.com/die-net/socksdial/internal/transport"
)

// recordingConn keeps a copy of everything read from it.
type recordingConn struct {
	net.Conn

	mu  sync.Mutex
	buf bytes.Buffer
}

func (c *recordingConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	c.mu.Lock()
	c.buf.Write(p[:n])
	c.mu.Unlock()
	return n, err
}

func (c *recordingConn) Bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return bytes.Clone(c.buf.Bytes())
}

// pipeDialer hands out the client end of a fresh net.Pipe and serves the
// other end with peer, recording what the client sent.
type pipeDialer struct {
	g    *errgroup.Group
	peer testutil.SOCKS5Peer
	rec  *recordingConn
}

func (d *pipeDialer) Dial(network, address string) (net.Conn, error) {
	return d.DialContext(context.Background(), network, address)
}

func (d *pipeDialer) DialContext(ctx context.Context, _, _ string) (net.Conn, error) {
	client, server := net.Pipe()
	d.rec = &recordingConn{Conn: server}
	d.g.Go(func() error {
		defer server.Close()
		_, err := d.peer.Serve(ctx, d.rec)
		return err
	})
	return client, nil
}

// Wire bytes must match those of golang.org/x/net/proxy for the same dial.
func TestWireParityWithXNetProxy(t *testing.T) {
	tests := []struct {
		name string
		user string
		pass string
	}{
		{name: "no_auth"},
		{name: "user_pass", user: "user", pass: "secret"},
	}

	target := netip.MustParseAddrPort("1.2.3.4:80")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			peer := testutil.SOCKS5Peer{Username: tt.user, Password: tt.pass, Rep: txsocks5.RepSuccess}

			// Reference client.
			var refGroup errgroup.Group
			ref := &pipeDialer{g: &refGroup, peer: peer}
			var auth *proxy.Auth
			if tt.user != "" {
				auth = &proxy.Auth{User: tt.user, Password: tt.pass}
			}
			xd, err := proxy.SOCKS5("tcp", "127.0.0.1:1080", auth, ref)
			if err != nil {
				t.Fatal(err)
			}
			xc, err := xd.Dial("tcp", target.String())
			if err != nil {
				t.Fatal(err)
			}
			_ = xc.Close()
			if err := refGroup.Wait(); err != nil {
				t.Fatal(err)
			}

			// Our client, over the same kind of pipe.
			var ourGroup errgroup.Group
			ours := &pipeDialer{g: &ourGroup, peer: peer}
			cfg := Config{UserPassVersion: UserPassVersion}
			cfg.Username, cfg.Password = tt.user, tt.pass
			cfg.Transport = transport.New(transport.Config{Dialer: ours})

			c, err := New(socks.NewEndpoint(netip.MustParseAddrPort("127.0.0.1:1080"), target), cfg)
			if err != nil {
				t.Fatal(err)
			}
			if err := c.AutoConnect(ctx); err != nil {
				t.Fatal(err)
			}
			_ = c.Close()
			if err := ourGroup.Wait(); err != nil {
				t.Fatal(err)
			}

			if got, want := ours.rec.Bytes(), ref.rec.Bytes(); !bytes.Equal(got, want) {
				t.Fatalf("wire bytes differ:\nours % x\nx/net % x", got, want)
			}
		})
	}
}
