package dialer

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/die-net/socksdial/internal/socks"
	"github.com/die-net/socksdial/internal/testutil"
)

func TestSOCKS4ProxyDialerDialSuccess(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	echoLn := testutil.StartEchoTCPServer(t, ctx)
	defer echoLn.Close()

	var d net.Dialer
	var req *testutil.SOCKS4Request
	upLn, waitUp := testutil.StartSingleAcceptServer(t, ctx, func(c net.Conn) {
		req, _ = testutil.SOCKS4Peer{Dial: d.DialContext}.Serve(ctx, c)
	})

	upAddr := upLn.Addr().(*net.TCPAddr)
	f := NewSOCKS4ProxyDialer(Config{DialTimeout: 2 * time.Second}, upAddr.IP.String(), upAddr.Port, "alice")

	conn, err := f.DialContext(ctx, "tcp", echoLn.Addr().String())
	if err != nil {
		t.Fatal(err)
	}

	testutil.AssertEcho(t, conn, conn, []byte("hello"))
	_ = conn.Close()

	waitUp()

	if req == nil || req.Target != netip.MustParseAddrPort(echoLn.Addr().String()) || req.UserID != "alice" {
		t.Fatalf("proxy saw %+v", req)
	}
}

func TestSOCKS4ProxyDialerRejected(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	upLn, waitUp := testutil.StartSingleAcceptServer(t, ctx, func(c net.Conn) {
		_, _ = testutil.SOCKS4Peer{Status: 0x5b}.Serve(ctx, c)
	})

	upAddr := upLn.Addr().(*net.TCPAddr)
	f := NewSOCKS4ProxyDialer(Config{}, upAddr.IP.String(), upAddr.Port, "")

	_, err := f.DialContext(ctx, "tcp", "127.0.0.1:1")
	if !errors.Is(err, socks.ErrRejected) {
		t.Fatalf("got %v want ErrRejected", err)
	}

	waitUp()
}

func TestSOCKS4ProxyDialerArguments(t *testing.T) {
	f := NewSOCKS4ProxyDialer(Config{}, "127.0.0.1", 1080, "")

	tests := []struct {
		name    string
		network string
		address string
	}{
		{"ipv6 network", "tcp6", "[::1]:80"},
		{"ipv6 target", "tcp", "[::1]:80"},
		{"missing port", "tcp", "127.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.DialContext(context.Background(), tt.network, tt.address); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
