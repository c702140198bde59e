// Package dialer provides outbound dialing implementations used by socksdial.
//
// Dialers implement a small interface (DialContext) and establish outbound
// connections either directly or through a SOCKS4 or SOCKS5 proxy, running
// the handshake with the socks4 and socks5 engines.
package dialer
