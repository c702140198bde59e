package socks4

import "fmt"

// Status is the reply code of a SOCKS4 CONNECT.
type Status byte

const (
	Granted     Status = 0x5a
	Rejected    Status = 0x5b
	Failed      Status = 0x5c
	UserUnknown Status = 0x5d
)

func (s Status) String() string {
	switch s {
	case Granted:
		return "Granted"
	case Rejected:
		return "Rejected"
	case Failed:
		return "Failed"
	case UserUnknown:
		return "UserUnknown"
	default:
		return fmt.Sprintf("Status(%#02x)", byte(s))
	}
}
