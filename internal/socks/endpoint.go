package socks

import (
	"context"
	"net"
	"net/netip"
	"strconv"
)

// MaxDomainLen is the longest domain literal a SOCKS5 request can carry.
const MaxDomainLen = 255

// Addr is a host and port. Exactly one of IP and Host is set; Host holds a
// domain literal that the proxy resolves.
type Addr struct {
	IP   netip.Addr
	Host string
	Port uint16
}

// AddrFrom returns an Addr for a concrete IP address.
func AddrFrom(ap netip.AddrPort) Addr {
	return Addr{IP: ap.Addr().Unmap(), Port: ap.Port()}
}

// DomainAddr returns an Addr carrying host as a domain literal.
func DomainAddr(host string, port uint16) (Addr, error) {
	if host == "" || len(host) > MaxDomainLen {
		return Addr{}, Argumentf("domain %q must be 1 to %d bytes", host, MaxDomainLen)
	}
	return Addr{Host: host, Port: port}, nil
}

// IsDomain reports whether a is a domain literal rather than an IP address.
func (a Addr) IsDomain() bool {
	return !a.IP.IsValid()
}

func (a Addr) String() string {
	host := a.Host
	if a.IP.IsValid() {
		host = a.IP.String()
	}
	return net.JoinHostPort(host, strconv.Itoa(int(a.Port)))
}

// Endpoint pairs the proxy with the target it should connect to. It is a
// value and is not modified once built.
type Endpoint struct {
	Proxy  Addr
	Target Addr
}

// NewEndpoint builds an Endpoint from resolved addresses.
func NewEndpoint(proxy, target netip.AddrPort) Endpoint {
	return Endpoint{Proxy: AddrFrom(proxy), Target: AddrFrom(target)}
}

// Resolver looks up the addresses of a host. *net.Resolver satisfies it.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// Resolve turns host into a concrete address of the given network ("ip",
// "ip4" or "ip6"). IP literals are used as is; names go through r and the
// first suitable answer wins.
func Resolve(ctx context.Context, r Resolver, network, host string, port int) (Addr, error) {
	if port <= 0 || port > 65535 {
		return Addr{}, Argumentf("port %d out of range", port)
	}
	if host == "" {
		return Addr{}, Argumentf("missing host")
	}

	if ip, err := netip.ParseAddr(host); err == nil {
		ip = ip.Unmap()
		if !matchNetwork(network, ip) {
			return Addr{}, Argumentf("address %s is not %s", ip, network)
		}
		return Addr{IP: ip, Port: uint16(port)}, nil
	}

	if r == nil {
		r = net.DefaultResolver
	}
	ips, err := r.LookupNetIP(ctx, network, host)
	if err != nil {
		return Addr{}, Argumentf("resolve %s: %v", host, err)
	}
	for _, ip := range ips {
		ip = ip.Unmap()
		if matchNetwork(network, ip) {
			return Addr{IP: ip, Port: uint16(port)}, nil
		}
	}
	return Addr{}, Argumentf("resolve %s: no %s address", host, network)
}

// ResolveTarget is Resolve for a SOCKS5 style target: when remote is set,
// names are kept as domain literals for the proxy to resolve.
func ResolveTarget(ctx context.Context, r Resolver, host string, port int, remote bool) (Addr, error) {
	if !remote {
		return Resolve(ctx, r, "ip", host, port)
	}
	if port <= 0 || port > 65535 {
		return Addr{}, Argumentf("port %d out of range", port)
	}
	if ip, err := netip.ParseAddr(host); err == nil {
		return Addr{IP: ip.Unmap(), Port: uint16(port)}, nil
	}
	return DomainAddr(host, uint16(port))
}

func matchNetwork(network string, ip netip.Addr) bool {
	switch network {
	case "ip4":
		return ip.Is4()
	case "ip6":
		return ip.Is6()
	default:
		return true
	}
}
