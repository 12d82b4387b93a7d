package framer

import "errors"

var (
	// ErrOverflow is returned when a frame grows past the ring capacity.
	//
	// This means the line is delivering garbage faster than frames can be
	// completed (for example a missing closing HDLC flag). It is fatal for
	// the serial task, which must be recreated by its owner.
	ErrOverflow = errors.New("serial ring buffer overflow")

	// ErrNoHandler is returned by New when no frame handler is given.
	ErrNoHandler = errors.New("no frame handler configured")
)
