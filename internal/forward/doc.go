// Package forward implements the listener side of socksdial: every accepted
// TCP connection is dialed onward through a dialer.Dialer, usually a SOCKS
// proxy, and the two sockets are spliced together.
//
// The destination is either a fixed target or, for transparent listeners,
// the original destination of a connection redirected by the firewall.
//
// On Linux, transparent listeners use IP_TRANSPARENT and read the original
// destination with SO_ORIGINAL_DST. On FreeBSD (IP_BINDANY) and OpenBSD
// (SO_BINDANY) the local address of the accepted socket is the original
// destination. Other platforms do not support transparent listeners.
package forward
