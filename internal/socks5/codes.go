package socks5

import (
	"fmt"

	txsocks5 "github.com/txthinking/socks5"
)

// Method is an authentication method code offered during negotiation.
type Method byte

const (
	NoAuthentication = Method(txsocks5.MethodNone)
	GSSAPI           = Method(txsocks5.MethodGSSAPI)
	Credentials      = Method(txsocks5.MethodUsernamePassword)
	NoneAcceptable   = Method(txsocks5.MethodUnsupportAll)
)

func (m Method) String() string {
	switch m {
	case NoAuthentication:
		return "NoAuthentication"
	case GSSAPI:
		return "GSSAPI"
	case Credentials:
		return "Credentials"
	case NoneAcceptable:
		return "NoneAcceptable"
	default:
		return fmt.Sprintf("Method(%#02x)", byte(m))
	}
}

// Reply is the response code of a CONNECT request.
type Reply byte

const (
	Succeeded               = Reply(txsocks5.RepSuccess)
	GeneralFailure          = Reply(txsocks5.RepServerFailure)
	NotAllowed              = Reply(txsocks5.RepNotAllowed)
	NetworkUnreachable      = Reply(txsocks5.RepNetworkUnreachable)
	HostUnreachable         = Reply(txsocks5.RepHostUnreachable)
	ConnectionRefused       = Reply(txsocks5.RepConnectionRefused)
	TTLExpired              = Reply(txsocks5.RepTTLExpired)
	CommandNotSupported     = Reply(txsocks5.RepCommandNotSupported)
	AddressTypeNotSupported = Reply(txsocks5.RepAddressNotSupported)
)

var replyNames = [...]string{
	Succeeded:               "Succeeded",
	GeneralFailure:          "GeneralFailure",
	NotAllowed:              "NotAllowed",
	NetworkUnreachable:      "NetworkUnreachable",
	HostUnreachable:         "HostUnreachable",
	ConnectionRefused:       "ConnectionRefused",
	TTLExpired:              "TTLExpired",
	CommandNotSupported:     "CommandNotSupported",
	AddressTypeNotSupported: "AddressTypeNotSupported",
}

func (r Reply) String() string {
	if int(r) < len(replyNames) {
		return replyNames[r]
	}
	return fmt.Sprintf("Reply(%#02x)", byte(r))
}
