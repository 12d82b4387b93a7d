package celllog

import "errors"

var (
	// ErrNoSection is returned for a field line that arrives before any
	// [power] or [sysinfo] header.
	ErrNoSection = errors.New("celllog: field outside of a section")

	// ErrMalformedLine is returned when a field line cannot be parsed.
	ErrMalformedLine = errors.New("celllog: malformed line")

	// ErrNoBands is returned by Args when no band is enabled; cell_log
	// must not be started in that case.
	ErrNoBands = errors.New("celllog: no band enabled")

	// ErrExited is returned by Process.Run when cell_log terminated on its
	// own.
	ErrExited = errors.New("celllog: cell_log exited")
)
