package dialer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

const defaultProxyPort = "1080"

// Dialer mirrors the net.Dialer interface.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// New parses upstream and constructs the appropriate outbound Dialer.
//
// Supported schemes:
//   - direct://
//   - socks4://[userid@]host:port
//   - socks5://[user:pass@]host:port (target resolved locally)
//   - socks5h://[user:pass@]host:port (target resolved by the proxy)
//
// A missing port defaults to 1080.
func New(cfg Config, upstream string) (Dialer, error) {
	u, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)

	if u.Path != "" && u.Path != "/" {
		return nil, errors.New("invalid URL: path should be empty")
	}

	switch u.Scheme {
	case "":
		return nil, errors.New("invalid url: missing scheme")
	case "direct":
		return NewDirectDialer(cfg), nil
	case "socks4", "socks5", "socks5h":
		host := u.Hostname()
		if host == "" {
			return nil, errors.New("invalid url: missing host")
		}
		portStr := u.Port()
		if portStr == "" {
			portStr = defaultProxyPort
		}
		port, err := strconv.Atoi(portStr)
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("invalid url: bad port %q", portStr)
		}

		var user, pass string
		var hasPass bool
		if u.User != nil {
			user = u.User.Username()
			pass, hasPass = u.User.Password()
		}

		switch u.Scheme {
		case "socks4":
			if hasPass {
				return nil, errors.New("invalid url: socks4 does not take a password")
			}
			return NewSOCKS4ProxyDialer(cfg, host, port, user), nil
		default:
			if (user == "") != (pass == "") {
				return nil, errors.New("invalid url: socks5 needs both username and password")
			}
			return NewSOCKS5ProxyDialer(cfg, host, port, user, pass, u.Scheme == "socks5h"), nil
		}
	default:
		return nil, fmt.Errorf("invalid url scheme: %q", u.Scheme)
	}
}

// splitTarget splits a dial address into host and numeric port.
func splitTarget(address string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("port %q: %w", portStr, err)
	}
	return host, port, nil
}
