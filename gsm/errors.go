package gsm

import "errors"

var (
	// ErrUnknownBand is returned when an ARFCN (or band name) does not
	// belong to any supported band.
	ErrUnknownBand = errors.New("unknown band")

	// ErrShortSI3 is returned when a System Information 3 payload is too
	// short to carry a cell identity and location area.
	ErrShortSI3 = errors.New("system information 3 too short")
)
