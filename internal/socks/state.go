package socks

import "fmt"

// State is the position of an engine in its handshake.
type State int

const (
	Start State = iota
	AwaitingConnect
	Negotiating
	Authenticating
	Requesting
	Established
	Failed
	Closed
)

var stateNames = [...]string{
	Start:           "Start",
	AwaitingConnect: "AwaitingConnect",
	Negotiating:     "Negotiating",
	Authenticating:  "Authenticating",
	Requesting:      "Requesting",
	Established:     "Established",
	Failed:          "Failed",
	Closed:          "Closed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether no further stage can run from s.
func (s State) Terminal() bool {
	return s == Established || s == Failed || s == Closed
}
