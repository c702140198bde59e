package forward

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
)

type Server struct {
	ctx     context.Context
	cfg     Config
	Verbose bool
}

func NewServer(ctx context.Context, cfg Config, verbose bool) *Server {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Server{ctx: ctx, cfg: cfg, Verbose: verbose}
}

// Serve accepts connections on ln until it is closed. It returns nil when
// the server's context has been canceled.
func (s *Server) Serve(ln net.Listener) error {
	for {
		c, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil && errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go func() {
			if err := s.handle(c); err != nil && s.Verbose {
				log.Printf("forward: %s: %v", c.RemoteAddr(), err)
			}
		}()
	}
}

func (s *Server) handle(conn net.Conn) error {
	defer conn.Close()
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	dst, err := s.destination(conn)
	if err != nil {
		return err
	}

	up, err := s.cfg.Dialer.DialContext(ctx, "tcp", dst)
	if err != nil {
		return err
	}
	defer up.Close()

	if err := CopyBidirectional(ctx, conn, up, s.cfg.IOTimeout); err != nil {
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	return nil
}

func (s *Server) destination(conn net.Conn) (string, error) {
	if s.cfg.Target != "" {
		return s.cfg.Target, nil
	}
	dst, ok := OriginalDst(conn)
	if !ok {
		return "", errors.New("original destination unavailable")
	}
	return dst.String(), nil
}
