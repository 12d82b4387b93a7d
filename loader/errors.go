package loader

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyPayload is returned by New when there is no application to
	// upload.
	ErrEmptyPayload = errors.New("empty application payload")

	// ErrUnknownVariant is returned for phone variants without a known
	// chainloader layout.
	ErrUnknownVariant = errors.New("unknown phone variant")

	// ErrNoPort is returned by New when no serial port is given.
	ErrNoPort = errors.New("no serial port configured")
)

// ProtocolError describes the packet that moved the loader into the Error
// state.
type ProtocolError struct {
	State  State
	Packet []byte
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("boot protocol violation in state %s: %s (packet % x)", e.State, e.Reason, e.Packet)
}
