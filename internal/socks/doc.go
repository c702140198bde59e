// Package socks holds what the SOCKS4 and SOCKS5 client engines share: the
// endpoint model and host resolution, the error taxonomy, engine state, reply
// decoding and the stage runner.
//
// A handshake stage is a Step: one outbound packet, a reply plan and a check.
// Session runs a Step either blocking the caller (Run) or by issuing the send
// and continuing in completion callbacks (RunAsync). Encoding and validation
// are identical in both; only the point of suspension differs. Drive and
// DriveAsync run a protocol's transition function until it has no more steps.
//
// Engines are not safe for concurrent use. Only one stage is ever outstanding,
// and callers must not overlap operations on the same engine.
package socks
