package socks

// Reply is an inbound handshake message. Version is byte 0 and Code byte 1;
// what Code means depends on the stage. Rest is kept but not interpreted.
type Reply struct {
	Version byte
	Code    byte
	Rest    []byte
}

// ParseReply decodes the two leading bytes of b.
func ParseReply(b []byte) (Reply, error) {
	if len(b) < 2 {
		return Reply{}, ErrShortReply
	}
	return Reply{Version: b[0], Code: b[1], Rest: b[2:]}, nil
}

// CheckVersion returns a *VersionError if r does not carry want.
func (r Reply) CheckVersion(stage string, want byte) error {
	if r.Version != want {
		return &VersionError{Stage: stage, Want: want, Got: r.Version}
	}
	return nil
}

// ReplyPlan describes how to read a reply: Size bytes first, then as long
// as More reports a positive count given everything read so far, that many
// more.
type ReplyPlan struct {
	Size int
	More func(got []byte) int
}

// FixedReply is a plan for a reply of exactly n bytes.
func FixedReply(n int) ReplyPlan {
	return ReplyPlan{Size: n}
}

func (p ReplyPlan) next(got []byte) int {
	if p.More == nil {
		return 0
	}
	return p.More(got)
}
