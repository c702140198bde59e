package testutil

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"strconv"
)

// SOCKS4Request is a decoded SOCKS4 CONNECT request.
type SOCKS4Request struct {
	Cmd    byte
	Target netip.AddrPort
	UserID string
}

// SOCKS4Peer plays the proxy side of one SOCKS4 CONNECT.
type SOCKS4Peer struct {
	// Status is written in the reply when Dial is nil.
	Status byte
	// Dial, when set, connects to the requested target and relays to it.
	Dial func(ctx context.Context, network, address string) (net.Conn, error)
}

// Serve reads one request from conn, answers it and returns it. In relay
// mode it returns once either side closes.
func (p SOCKS4Peer) Serve(ctx context.Context, conn net.Conn) (*SOCKS4Request, error) {
	br := bufio.NewReader(conn)

	hdr := make([]byte, 8)
	if _, err := io.ReadFull(br, hdr); err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	if hdr[0] != 0x04 {
		return nil, errors.New("not a socks4 request")
	}
	user, err := br.ReadString(0x00)
	if err != nil {
		return nil, fmt.Errorf("userid: %w", err)
	}

	req := &SOCKS4Request{
		Cmd:    hdr[1],
		Target: netip.AddrPortFrom(netip.AddrFrom4([4]byte(hdr[4:8])), binary.BigEndian.Uint16(hdr[2:4])),
		UserID: user[:len(user)-1],
	}

	if p.Dial == nil {
		_, err := conn.Write([]byte{0x00, p.Status, 0, 0, 0, 0, 0, 0})
		return req, err
	}

	dst, err := p.Dial(ctx, "tcp", net.JoinHostPort(req.Target.Addr().String(), strconv.Itoa(int(req.Target.Port()))))
	if err != nil {
		_, _ = conn.Write([]byte{0x00, 0x5b, 0, 0, 0, 0, 0, 0})
		return req, err
	}
	defer dst.Close()

	if _, err := conn.Write([]byte{0x00, 0x5a, 0, 0, 0, 0, 0, 0}); err != nil {
		return req, err
	}

	go func() {
		_, _ = io.Copy(dst, br)
		_ = dst.Close()
	}()
	_, _ = io.Copy(conn, dst)
	return req, nil
}
