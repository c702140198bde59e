package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/die-net/socksdial/internal/dialer"
	"github.com/die-net/socksdial/internal/forward"
	"github.com/die-net/socksdial/internal/notify"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		listen            = pflag.String("listen", "", "Forwarding listen address (e.g. 127.0.0.1:8443); every connection goes to --target. Empty disables.")
		transparentListen = pflag.String("transparent-listen", "", "Transparent listen address (e.g. 127.0.0.1:1234) for firewall-redirected connections. Empty disables.")
		target            = pflag.String("target", "", "Target host:port. Without a listener, dial it once, report the handshake and exit.")

		upstream = pflag.String("upstream", defaultUpstream(), "Upstream proxy URL: direct:// | socks4://[userid@]host:port | socks5://[user:pass@]host:port | socks5h://[user:pass@]host:port")

		dialTimeout        = pflag.Duration("dial-timeout", 10*time.Second, "Timeout for outbound DNS lookup and TCP connect")
		negotiationTimeout = pflag.Duration("negotiation-timeout", 5*time.Second, "Timeout for each send and receive of the proxy handshake")
		ioTimeout          = pflag.Duration("io-timeout", 0, "Maximum lifetime of a forwarded connection; 0 disables")
		tcpKeepAlive       = pflag.String("tcp-keepalive", "45:45:3", "TCP keepalive: on|off|keepidle:keepintvl:keepcnt")
		verbose            = pflag.Bool("verbose", false, "Log handshake progress and per-connection errors")
	)

	if !forward.IsTransparentSupported {
		_ = pflag.CommandLine.MarkHidden("transparent-listen")
	}

	pflag.CommandLine.SortFlags = false
	pflag.Parse()

	ka, err := parseTCPKeepAlive(*tcpKeepAlive)
	if err != nil {
		return fmt.Errorf("invalid --tcp-keepalive: %w", err)
	}

	if *listen != "" && *target == "" {
		return errors.New("--listen requires --target")
	}
	if *listen == "" && *transparentListen == "" && *target == "" {
		return errors.New("nothing to do (set --target, optionally with --listen, or --transparent-listen)")
	}

	dialCfg := dialer.Config{
		DialTimeout:        *dialTimeout,
		NegotiationTimeout: *negotiationTimeout,
		KeepAlive:          ka,
	}
	probe := *listen == "" && *transparentListen == ""
	if *verbose || probe {
		dialCfg.Bus = notify.New()
		logEvents(dialCfg.Bus)
	}

	d, err := dialer.New(dialCfg, *upstream)
	if err != nil {
		return fmt.Errorf("invalid --upstream: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if probe {
		return dialOnce(ctx, d, *target, *dialTimeout+*negotiationTimeout*3)
	}

	g, ctx := errgroup.WithContext(ctx)

	cfg := forward.Config{
		Target:    *target,
		IOTimeout: *ioTimeout,
		KeepAlive: ka,
		Dialer:    d,
	}

	if *listen != "" {
		ln, err := forward.ListenTCP(ctx, "tcp", *listen, cfg.KeepAlive)
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		srv := forward.NewServer(ctx, cfg, *verbose)
		context.AfterFunc(ctx, func() {
			_ = ln.Close()
		})

		g.Go(func() error {
			if err := srv.Serve(ln); err != nil {
				return fmt.Errorf("forward serve: %w", err)
			}
			return nil
		})
		log.Printf("forwarding %s to %s via %s", *listen, *target, *upstream)
	}

	if *transparentListen != "" {
		ln, err := forward.ListenTransparentTCP(ctx, *transparentListen, cfg.KeepAlive)
		if err != nil {
			return fmt.Errorf("transparent listen: %w", err)
		}
		tcfg := cfg
		tcfg.Target = ""
		tsrv := forward.NewServer(ctx, tcfg, *verbose)
		context.AfterFunc(ctx, func() {
			_ = ln.Close()
		})

		g.Go(func() error {
			if err := tsrv.Serve(ln); err != nil {
				return fmt.Errorf("transparent serve: %w", err)
			}
			return nil
		})
		log.Printf("transparent listening on %s via %s", *transparentListen, *upstream)
	}

	err = g.Wait()

	log.Print("shutting down")
	return err
}

// dialOnce connects to target through d, reports the result and hangs up.
func dialOnce(ctx context.Context, d dialer.Dialer, target string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := d.DialContext(ctx, "tcp", target)
	if err != nil {
		return fmt.Errorf("dial %s: %w", target, err)
	}
	defer conn.Close()

	log.Printf("connected to %s (local %s, remote %s)", target, conn.LocalAddr(), conn.RemoteAddr())
	return nil
}

func logEvents(bus *notify.Bus) {
	bus.Subscribe(notify.StatusChanged, func(ev notify.Event) {
		log.Printf("socks: %s", ev.Status)
	})
	bus.Subscribe(notify.Failed, func(ev notify.Event) {
		log.Printf("socks: handshake failed: %v", ev.Err)
	})
}

func parseTCPKeepAlive(s string) (net.KeepAliveConfig, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return net.KeepAliveConfig{}, errors.New("empty")
	}
	if s == "on" {
		return net.KeepAliveConfig{Enable: true}, nil
	}
	if s == "off" {
		return net.KeepAliveConfig{Enable: false}, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return net.KeepAliveConfig{}, errors.New("expected on|off|keepidle:keepintvl:keepcnt")
	}
	keepIdle, err := parsePositiveSeconds(parts[0])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepidle: %w", err)
	}
	keepIntvl, err := parsePositiveSeconds(parts[1])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepintvl: %w", err)
	}
	keepCnt, err := parsePositiveInt(parts[2])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepcnt: %w", err)
	}

	return net.KeepAliveConfig{
		Enable:   true,
		Idle:     keepIdle,
		Interval: keepIntvl,
		Count:    keepCnt,
	}, nil
}

func parsePositiveSeconds(s string) (time.Duration, error) {
	n, err := parsePositiveInt(s)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be > 0")
	}
	return n, nil
}

func defaultUpstream() string {
	if p := os.Getenv("ALL_PROXY"); p != "" {
		return p
	}

	if p := os.Getenv("all_proxy"); p != "" {
		return p
	}

	return "direct://"
}
