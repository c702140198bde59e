package testutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"slices"

	txsocks5 "github.com/txthinking/socks5"
)

// SOCKS5Peer plays the proxy side of one SOCKS5 handshake using the
// txthinking/socks5 wire types. With Username set it requires RFC 1929
// username/password authentication.
type SOCKS5Peer struct {
	Username string
	Password string

	// Rep is written in the CONNECT reply when Dial is nil.
	Rep byte
	// Dial, when set, connects to the requested target and relays to it.
	Dial func(ctx context.Context, network, address string) (net.Conn, error)
}

// Serve runs the handshake on conn and returns the CONNECT request. In relay
// mode it returns once either side closes.
func (p SOCKS5Peer) Serve(ctx context.Context, conn net.Conn) (*txsocks5.Request, error) {
	if err := p.negotiate(conn); err != nil {
		return nil, err
	}

	req, err := txsocks5.NewRequestFrom(conn)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	if req.Cmd != txsocks5.CmdConnect {
		_, _ = newZeroAddrReply(txsocks5.RepCommandNotSupported).WriteTo(conn)
		return req, fmt.Errorf("unexpected command: %d", req.Cmd)
	}

	if p.Dial == nil {
		if _, err := newZeroAddrReply(p.Rep).WriteTo(conn); err != nil {
			return req, fmt.Errorf("reply: %w", err)
		}
		return req, nil
	}

	dst, err := p.Dial(ctx, "tcp", req.Address())
	if err != nil {
		_, _ = newZeroAddrReply(txsocks5.RepHostUnreachable).WriteTo(conn)
		return req, err
	}
	defer dst.Close()

	a, addr, port, err := txsocks5.ParseAddress(dst.LocalAddr().String())
	if err != nil {
		return req, err
	}
	if a == txsocks5.ATYPDomain {
		addr = addr[1:]
	}
	if _, err := txsocks5.NewReply(txsocks5.RepSuccess, a, addr, port).WriteTo(conn); err != nil {
		return req, err
	}

	go func() {
		_, _ = io.Copy(dst, conn)
		_ = dst.Close()
	}()
	_, _ = io.Copy(conn, dst)
	return req, nil
}

func (p SOCKS5Peer) negotiate(conn net.Conn) error {
	neg, err := txsocks5.NewNegotiationRequestFrom(conn)
	if err != nil {
		return fmt.Errorf("negotiation request: %w", err)
	}

	if p.Username == "" {
		if !slices.Contains(neg.Methods, txsocks5.MethodNone) {
			_, _ = txsocks5.NewNegotiationReply(txsocks5.MethodUnsupportAll).WriteTo(conn)
			return errors.New("client does not support no-auth")
		}
		_, err := txsocks5.NewNegotiationReply(txsocks5.MethodNone).WriteTo(conn)
		return err
	}

	if !slices.Contains(neg.Methods, txsocks5.MethodUsernamePassword) {
		_, _ = txsocks5.NewNegotiationReply(txsocks5.MethodUnsupportAll).WriteTo(conn)
		return errors.New("client does not support username/password")
	}
	if _, err := txsocks5.NewNegotiationReply(txsocks5.MethodUsernamePassword).WriteTo(conn); err != nil {
		return fmt.Errorf("negotiation reply: %w", err)
	}

	urq, err := txsocks5.NewUserPassNegotiationRequestFrom(conn)
	if err != nil {
		return fmt.Errorf("read userpass: %w", err)
	}
	if string(urq.Uname) != p.Username || string(urq.Passwd) != p.Password {
		_, _ = txsocks5.NewUserPassNegotiationReply(txsocks5.UserPassStatusFailure).WriteTo(conn)
		return errors.New("auth failed")
	}
	_, err = txsocks5.NewUserPassNegotiationReply(txsocks5.UserPassStatusSuccess).WriteTo(conn)
	return err
}

func newZeroAddrReply(rep byte) *txsocks5.Reply {
	return txsocks5.NewReply(rep, txsocks5.ATYPIPv4, []byte{0x00, 0x00, 0x00, 0x00}, []byte{0x00, 0x00})
}
