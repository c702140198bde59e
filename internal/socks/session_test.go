package socks

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/netip"
	"testing"
	"time"

	"github.com/die-net/socksdial/internal/notify"
	"github.com/die-net/socksdial/internal/testutil"
)

var testEndpoint = NewEndpoint(
	netip.MustParseAddrPort("127.0.0.1:1080"),
	netip.MustParseAddrPort("1.2.3.4:80"),
)

func echoStep(reply ReplyPlan, check func([]byte) error) Step {
	return Step{
		Name:   "echo",
		State:  Requesting,
		Packet: []byte{0x01, 0x02},
		Sent:   "Sent echo.",
		Reply:  reply,
		Check:  check,
	}
}

func runBoth(t *testing.T, fn func(t *testing.T, run func(*Session, Step) error)) {
	t.Run("blocking", func(t *testing.T) {
		fn(t, func(s *Session, step Step) error { return s.Run(step) })
	})
	t.Run("async", func(t *testing.T) {
		fn(t, func(s *Session, step Step) error {
			done := make(chan error, 1)
			s.RunAsync(step, func(err error) { done <- err })
			select {
			case err := <-done:
				return err
			case <-time.After(2 * time.Second):
				t.Fatal("step did not complete")
				return nil
			}
		})
	})
}

func TestSessionRun(t *testing.T) {
	runBoth(t, func(t *testing.T, run func(*Session, Step) error) {
		conn := testutil.NewFakeConn([]byte{0xaa, 0xbb, 0xcc})
		s := NewSession(conn, notify.New(), testEndpoint)
		events := testutil.RecordEvents(s.Bus())

		if err := s.Connect(context.Background()); err != nil {
			t.Fatal(err)
		}

		var got []byte
		err := run(s, echoStep(FixedReply(3), func(reply []byte) error {
			got = reply
			s.SetState(Established)
			return nil
		}))
		if err != nil {
			t.Fatal(err)
		}

		if !bytes.Equal(got, []byte{0xaa, 0xbb, 0xcc}) {
			t.Fatalf("reply % x", got)
		}
		if sent := conn.Sent(); len(sent) != 1 || !bytes.Equal(sent[0], []byte{0x01, 0x02}) {
			t.Fatalf("sent % x", sent)
		}
		if s.State() != Established {
			t.Fatalf("state %v", s.State())
		}
		if events.Count(notify.Connected) != 1 {
			t.Fatal("missing Connected event")
		}
		want := []string{"Connected.", "Sent echo."}
		if got := events.Statuses(); !equalStrings(got, want) {
			t.Fatalf("statuses %q want %q", got, want)
		}
	})
}

func TestSessionRunReplyPlan(t *testing.T) {
	// A length byte at index 1 announces how many more bytes follow.
	plan := ReplyPlan{Size: 2, More: func(got []byte) int {
		return 2 + int(got[1]) - len(got)
	}}

	runBoth(t, func(t *testing.T, run func(*Session, Step) error) {
		conn := testutil.NewFakeConn([]byte{0x05, 0x03, 'a', 'b', 'c', 0xff})
		s := NewSession(conn, notify.New(), testEndpoint)
		if err := s.Connect(context.Background()); err != nil {
			t.Fatal(err)
		}

		var got []byte
		err := run(s, echoStep(plan, func(reply []byte) error {
			got = reply
			return nil
		}))
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, []byte{0x05, 0x03, 'a', 'b', 'c'}) {
			t.Fatalf("reply % x", got)
		}
	})
}

func TestSessionRunFaults(t *testing.T) {
	tests := []struct {
		name          string
		check         func([]byte) error
		replies       []byte
		wantIs        error
		wantDisconn   int
		wantCloses    int
		wantTransport bool
	}{
		{
			name:       "version fault closes at once",
			replies:    []byte{0x04, 0x00},
			check:      func(b []byte) error { r, _ := ParseReply(b); return r.CheckVersion("echo", 0x05) },
			wantIs:     ErrProtocolVersion,
			wantCloses: 1,
		},
		{
			name:        "status fault disconnects gracefully",
			replies:     []byte{0x05, 0x01},
			check:       func([]byte) error { return &StatusError{Stage: "echo", Code: 1, Reason: "no"} },
			wantIs:      ErrRejected,
			wantDisconn: 1,
		},
		{
			name:          "short reply is a transport fault",
			replies:       []byte{0x05},
			check:         func([]byte) error { return nil },
			wantIs:        io.ErrUnexpectedEOF,
			wantCloses:    1,
			wantTransport: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runBoth(t, func(t *testing.T, run func(*Session, Step) error) {
				conn := testutil.NewFakeConn(tt.replies)
				s := NewSession(conn, notify.New(), testEndpoint)
				events := testutil.RecordEvents(s.Bus())
				if err := s.Connect(context.Background()); err != nil {
					t.Fatal(err)
				}

				err := run(s, echoStep(FixedReply(2), tt.check))
				if !errors.Is(err, tt.wantIs) {
					t.Fatalf("got %v want %v", err, tt.wantIs)
				}
				var te *TransportError
				if errors.As(err, &te) != tt.wantTransport {
					t.Fatalf("transport error %v, want %v", err, tt.wantTransport)
				}
				if s.State() != Failed {
					t.Fatalf("state %v want Failed", s.State())
				}
				if conn.Disconnects() != tt.wantDisconn || conn.Closes() != tt.wantCloses {
					t.Fatalf("disconnects %d closes %d", conn.Disconnects(), conn.Closes())
				}

				// Teardown again: no fault, no second teardown.
				if err := s.Close(); err != nil {
					t.Fatal(err)
				}
				if conn.Teardowns() != 1 {
					t.Fatalf("teardowns %d want 1", conn.Teardowns())
				}
				if events.Count(notify.Disconnected) != 1 {
					t.Fatalf("Disconnected fired %d times", events.Count(notify.Disconnected))
				}
				if s.State() != Failed {
					t.Fatalf("state %v after close, want Failed", s.State())
				}
			})
		})
	}
}

func TestSessionRequiresConnection(t *testing.T) {
	conn := testutil.NewFakeConn()
	s := NewSession(conn, notify.New(), testEndpoint)

	err := s.Run(echoStep(FixedReply(2), func([]byte) error { return nil }))
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("got %v want ErrNotConnected", err)
	}
	if len(conn.Sent()) != 0 {
		t.Fatal("packet sent without a connection")
	}
	if s.State() != Start {
		t.Fatalf("state %v want Start", s.State())
	}
}

func TestSessionConnectFailure(t *testing.T) {
	conn := testutil.NewFakeConn()
	conn.ConnectErr = errors.New("connection refused")
	s := NewSession(conn, notify.New(), testEndpoint)
	events := testutil.RecordEvents(s.Bus())

	err := s.Connect(context.Background())
	var te *TransportError
	if !errors.As(err, &te) || te.Stage != "connect" {
		t.Fatalf("got %v want connect TransportError", err)
	}
	if s.State() != Failed {
		t.Fatalf("state %v", s.State())
	}
	if events.Count(notify.Connected) != 0 || events.Count(notify.Disconnected) != 0 {
		t.Fatal("lifecycle events for a connection that never opened")
	}
	if err := s.Connect(context.Background()); !errors.Is(err, ErrState) {
		t.Fatalf("second connect: got %v want ErrState", err)
	}
}

func TestSessionDrive(t *testing.T) {
	steps := 0
	next := func(s *Session) Next {
		return func() (Step, bool, error) {
			if s.State() == Established {
				return Step{}, false, nil
			}
			return echoStep(FixedReply(1), func([]byte) error {
				steps++
				if steps == 3 {
					s.SetState(Established)
				}
				return nil
			}), true, nil
		}
	}

	t.Run("blocking", func(t *testing.T) {
		steps = 0
		conn := testutil.NewFakeConn([]byte{1, 2, 3})
		s := NewSession(conn, notify.New(), testEndpoint)
		if err := s.Connect(context.Background()); err != nil {
			t.Fatal(err)
		}
		if err := s.Drive(next(s)); err != nil {
			t.Fatal(err)
		}
		if steps != 3 || len(conn.Sent()) != 3 {
			t.Fatalf("steps %d sent %d", steps, len(conn.Sent()))
		}
	})

	t.Run("async", func(t *testing.T) {
		steps = 0
		conn := testutil.NewFakeConn([]byte{1, 2, 3})
		s := NewSession(conn, notify.New(), testEndpoint)
		done := make(chan error, 1)
		s.ConnectAsync(context.Background(), func(err error) {
			if err != nil {
				done <- err
				return
			}
			s.DriveAsync(next(s), func(err error) { done <- err })
		})
		if err := <-done; err != nil {
			t.Fatal(err)
		}
		if steps != 3 || len(conn.Sent()) != 3 {
			t.Fatalf("steps %d sent %d", steps, len(conn.Sent()))
		}
		if s.State() != Established {
			t.Fatalf("state %v", s.State())
		}
	})
}

func TestSessionNetConn(t *testing.T) {
	conn := testutil.NewFakeConn()
	s := NewSession(conn, notify.New(), testEndpoint)
	if _, err := s.NetConn(); !errors.Is(err, ErrState) {
		t.Fatalf("got %v want ErrState", err)
	}

	if err := s.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	s.SetState(Established)
	nc, err := s.NetConn()
	if err != nil || nc == nil {
		t.Fatalf("NetConn: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if s.State() != Closed || s.Established() {
		t.Fatalf("state %v after close", s.State())
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
