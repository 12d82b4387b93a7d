package gsmtap

import "errors"

var (
	// ErrShortPacket is returned when a datagram is shorter than the
	// fixed GSMTAP header.
	ErrShortPacket = errors.New("gsmtap: packet shorter than header")

	// ErrBadVersion is returned for any header version other than 2.
	ErrBadVersion = errors.New("gsmtap: unsupported version")
)
