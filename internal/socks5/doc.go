// Package socks5 implements the client side of a SOCKS5 CONNECT.
//
// The handshake runs method negotiation, then username/password
// verification when the proxy selects Credentials, then the CONNECT
// request. Each stage is available on its own, blocking or with a
// continuation, and AutoConnect/AutoConnectAsync chain all of them.
//
// Wire constants come from github.com/txthinking/socks5.
package socks5
