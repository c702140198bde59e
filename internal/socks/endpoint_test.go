package socks

import (
	"context"
	"errors"
	"net/netip"
	"strings"
	"testing"
)

type staticResolver map[string][]netip.Addr

func (r staticResolver) LookupNetIP(_ context.Context, _, host string) ([]netip.Addr, error) {
	ips, ok := r[host]
	if !ok {
		return nil, errors.New("no such host")
	}
	return ips, nil
}

func TestResolve(t *testing.T) {
	r := staticResolver{
		"dual.example": {netip.MustParseAddr("2001:db8::1"), netip.MustParseAddr("192.0.2.7")},
		"v6.example":   {netip.MustParseAddr("2001:db8::2")},
	}

	tests := []struct {
		name    string
		network string
		host    string
		port    int
		want    string
		wantErr bool
	}{
		{name: "ipv4 literal", network: "ip", host: "1.2.3.4", port: 80, want: "1.2.3.4:80"},
		{name: "ipv6 literal", network: "ip", host: "2001:db8::9", port: 443, want: "[2001:db8::9]:443"},
		{name: "mapped literal unmaps", network: "ip4", host: "::ffff:10.0.0.1", port: 1, want: "10.0.0.1:1"},
		{name: "first answer", network: "ip", host: "dual.example", port: 80, want: "[2001:db8::1]:80"},
		{name: "ip4 filter", network: "ip4", host: "dual.example", port: 80, want: "192.0.2.7:80"},
		{name: "no ip4 answer", network: "ip4", host: "v6.example", port: 80, wantErr: true},
		{name: "ipv6 literal for ip4", network: "ip4", host: "::1", port: 80, wantErr: true},
		{name: "unresolved", network: "ip", host: "missing.example", port: 80, wantErr: true},
		{name: "empty host", network: "ip", host: "", port: 80, wantErr: true},
		{name: "port zero", network: "ip", host: "1.2.3.4", port: 0, wantErr: true},
		{name: "port too large", network: "ip", host: "1.2.3.4", port: 65536, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(context.Background(), r, tt.network, tt.host, tt.port)
			if tt.wantErr {
				if !errors.Is(err, ErrArgument) {
					t.Fatalf("got %v want ErrArgument", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got.String() != tt.want {
				t.Fatalf("got %s want %s", got, tt.want)
			}
		})
	}
}

func TestResolveTarget(t *testing.T) {
	r := staticResolver{"host.example": {netip.MustParseAddr("192.0.2.1")}}

	local, err := ResolveTarget(context.Background(), r, "host.example", 80, false)
	if err != nil {
		t.Fatal(err)
	}
	if local.IsDomain() || local.IP != netip.MustParseAddr("192.0.2.1") {
		t.Fatalf("local resolution gave %+v", local)
	}

	remote, err := ResolveTarget(context.Background(), r, "host.example", 80, true)
	if err != nil {
		t.Fatal(err)
	}
	if !remote.IsDomain() || remote.Host != "host.example" || remote.String() != "host.example:80" {
		t.Fatalf("remote resolution gave %+v", remote)
	}

	lit, err := ResolveTarget(context.Background(), nil, "10.1.2.3", 22, true)
	if err != nil {
		t.Fatal(err)
	}
	if lit.IsDomain() {
		t.Fatal("IP literal kept as a domain")
	}

	if _, err := ResolveTarget(context.Background(), nil, strings.Repeat("a", 256), 80, true); !errors.Is(err, ErrArgument) {
		t.Fatalf("got %v want ErrArgument", err)
	}
}

func TestParseReply(t *testing.T) {
	// Byte 1 is recovered whatever the trailing bytes hold.
	for _, tail := range [][]byte{make([]byte, 16), bytesOf(0xff, 16), {1, 2, 3}} {
		b := append([]byte{0x05, 0x04}, tail...)
		r, err := ParseReply(b)
		if err != nil {
			t.Fatal(err)
		}
		if r.Version != 0x05 || r.Code != 0x04 || len(r.Rest) != len(tail) {
			t.Fatalf("got %+v", r)
		}
	}

	if _, err := ParseReply([]byte{0x05}); !errors.Is(err, ErrShortReply) {
		t.Fatalf("got %v want ErrShortReply", err)
	}
}

func TestReplyCheckVersion(t *testing.T) {
	r := Reply{Version: 0x04, Code: 0x00}

	err := r.CheckVersion("negotiation", 0x05)
	var ve *VersionError
	if !errors.As(err, &ve) || ve.Got != 0x04 || ve.Want != 0x05 || ve.Stage != "negotiation" {
		t.Fatalf("got %v", err)
	}
	if !errors.Is(err, ErrProtocolVersion) || errors.Is(err, ErrRejected) {
		t.Fatalf("version fault not distinguishable: %v", err)
	}

	if err := (Reply{Version: 0x05, Code: 0x01}).CheckVersion("request", 0x05); err != nil {
		t.Fatal(err)
	}

	se := &StatusError{Stage: "request", Code: 0x04, Reason: "HostUnreachable"}
	if !errors.Is(se, ErrRejected) || errors.Is(se, ErrProtocolVersion) {
		t.Fatalf("status fault not distinguishable: %v", se)
	}
}

func TestStateString(t *testing.T) {
	if Requesting.String() != "Requesting" || State(42).String() != "State(42)" {
		t.Fatal("unexpected state names")
	}
	for _, s := range []State{Established, Failed, Closed} {
		if !s.Terminal() {
			t.Fatalf("%v not terminal", s)
		}
	}
	if Negotiating.Terminal() {
		t.Fatal("Negotiating is terminal")
	}
}

func bytesOf(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}
