package socks

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/die-net/socksdial/internal/notify"
)

// Step is one request/reply round trip of a handshake.
type Step struct {
	// Name identifies the stage in errors, e.g. "negotiation".
	Name string
	// State is the engine state while the step is in flight.
	State  State
	Packet []byte
	// Sent is published as a status once Packet has been written.
	Sent  string
	Reply ReplyPlan
	// Check validates the reply. A *VersionError closes the transport at
	// once; any other error disconnects it gracefully.
	Check func(reply []byte) error
}

// Next yields the step that follows the current state. ok is false once the
// handshake has nothing left to do.
type Next func() (step Step, ok bool, err error)

// Session is the transport, notification and state capability shared by
// the engines.
// Close may run concurrently with an asynchronous handshake.
type Session struct {
	conn Conn
	bus  *notify.Bus
	ep   Endpoint

	mu     sync.Mutex
	state  State
	opened bool
	torn   bool
}

// NewSession returns a session in state Start.
func NewSession(conn Conn, bus *notify.Bus, ep Endpoint) *Session {
	return &Session{conn: conn, bus: bus, ep: ep}
}

func (s *Session) Bus() *notify.Bus   { return s.bus }
func (s *Session) Endpoint() Endpoint { return s.ep }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// SetState moves the session to state. It has no effect once the transport
// has been torn down.
func (s *Session) SetState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.torn {
		s.state = state
	}
}

// Established reports whether the handshake completed and the session has
// not been closed since.
func (s *Session) Established() bool {
	return s.State() == Established
}

// Connect opens the transport to the proxy.
func (s *Session) Connect(ctx context.Context) error {
	if err := s.beginConnect(); err != nil {
		return err
	}
	return s.connected(s.conn.Connect(ctx, s.ep.Proxy.String()))
}

// ConnectAsync opens the transport to the proxy without blocking; done runs
// once the attempt completes.
func (s *Session) ConnectAsync(ctx context.Context, done func(error)) {
	if err := s.beginConnect(); err != nil {
		done(err)
		return
	}
	s.conn.ConnectAsync(ctx, s.ep.Proxy.String(), func(err error) {
		done(s.connected(err))
	})
}

func (s *Session) beginConnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Start {
		return ErrState
	}
	s.state = AwaitingConnect
	return nil
}

func (s *Session) connected(err error) error {
	if err != nil {
		return s.transportFault("connect", err)
	}

	s.mu.Lock()
	torn := s.torn
	s.opened = !torn
	s.mu.Unlock()
	if torn {
		// Closed while connecting.
		_ = s.conn.Close()
		return &TransportError{Stage: "connect", Err: net.ErrClosed}
	}

	s.bus.Publish(notify.Event{Kind: notify.Connected})
	s.bus.Status("Connected.")
	return nil
}

// Run performs step on the calling goroutine.
func (s *Session) Run(step Step) error {
	if err := s.begin(step); err != nil {
		return err
	}
	if err := s.conn.Send(step.Packet); err != nil {
		return s.transportFault(step.Name, err)
	}
	s.bus.Status("%s", step.Sent)

	reply, err := s.conn.Receive(step.Reply.Size)
	for err == nil {
		n := step.Reply.next(reply)
		if n <= 0 {
			break
		}
		var more []byte
		more, err = s.conn.Receive(n)
		reply = append(reply, more...)
	}
	if err != nil {
		return s.transportFault(step.Name, err)
	}
	return s.finish(step, reply)
}

// RunAsync issues step and returns; done runs on the goroutine that
// completes the last operation of the step.
func (s *Session) RunAsync(step Step, done func(error)) {
	if err := s.begin(step); err != nil {
		done(err)
		return
	}
	s.conn.SendAsync(step.Packet, func(err error) {
		if err != nil {
			done(s.transportFault(step.Name, err))
			return
		}
		s.bus.Status("%s", step.Sent)

		s.receiveAsync(step.Reply, nil, step.Reply.Size, func(reply []byte, err error) {
			if err != nil {
				done(s.transportFault(step.Name, err))
				return
			}
			done(s.finish(step, reply))
		})
	})
}

func (s *Session) receiveAsync(plan ReplyPlan, got []byte, n int, done func([]byte, error)) {
	s.conn.ReceiveAsync(n, func(buf []byte, err error) {
		if err != nil {
			done(nil, err)
			return
		}
		got = append(got, buf...)
		if m := plan.next(got); m > 0 {
			s.receiveAsync(plan, got, m, done)
			return
		}
		done(got, nil)
	})
}

// Drive runs the steps produced by next until none remain or one fails.
func (s *Session) Drive(next Next) error {
	for {
		step, ok, err := next()
		if err != nil || !ok {
			return err
		}
		if err := s.Run(step); err != nil {
			return err
		}
	}
}

// DriveAsync is Drive with every step issued through RunAsync; each
// continuation asks next for the following step.
func (s *Session) DriveAsync(next Next, done func(error)) {
	step, ok, err := next()
	if err != nil || !ok {
		done(err)
		return
	}
	s.RunAsync(step, func(err error) {
		if err != nil {
			done(err)
			return
		}
		s.DriveAsync(next, done)
	})
}

func (s *Session) begin(step Step) error {
	if !s.conn.Connected() {
		return ErrNotConnected
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.torn || !s.opened {
		return ErrNotConnected
	}
	if s.state.Terminal() {
		return ErrState
	}
	s.state = step.State
	return nil
}

func (s *Session) finish(step Step, reply []byte) error {
	err := step.Check(reply)
	if err == nil {
		s.mu.Lock()
		torn := s.torn
		s.mu.Unlock()
		if torn {
			return &TransportError{Stage: step.Name, Err: net.ErrClosed}
		}
		return nil
	}

	s.fail()
	var ve *VersionError
	if errors.As(err, &ve) {
		s.teardown(false)
	} else {
		s.teardown(true)
	}
	return err
}

func (s *Session) transportFault(stage string, err error) error {
	s.fail()
	s.teardown(false)
	s.bus.Status("%s failed: %v", stage, err)
	return &TransportError{Stage: stage, Err: err}
}

// Close disconnects from the proxy. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state != Failed {
		s.state = Closed
	}
	s.mu.Unlock()

	return s.teardown(true)
}

// fail records a fault unless Close got there first.
func (s *Session) fail() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Closed {
		s.state = Failed
	}
}

func (s *Session) teardown(graceful bool) error {
	s.mu.Lock()
	torn, opened := s.torn, s.opened
	s.torn = true
	s.mu.Unlock()
	if torn {
		return nil
	}

	var err error
	if graceful {
		err = s.conn.Disconnect()
	} else {
		err = s.conn.Close()
	}

	if opened {
		s.bus.Publish(notify.Event{Kind: notify.Disconnected})
		s.bus.Status("Disconnected.")
	}
	return err
}

// NetConn returns the relayed connection once the handshake is established.
func (s *Session) NetConn() (net.Conn, error) {
	if s.State() != Established {
		return nil, ErrState
	}
	return s.conn.NetConn()
}

// Fail publishes a Failed event for err. Engines use it to report the
// outcome of an asynchronous auto-connect.
func (s *Session) Fail(err error) {
	s.bus.Publish(notify.Event{Kind: notify.Failed, Err: err})
}
