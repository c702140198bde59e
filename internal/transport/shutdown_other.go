//go:build !unix

package transport

import "net"

func shutdown(conn net.Conn) error {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	_ = tc.CloseWrite()
	return tc.CloseRead()
}
