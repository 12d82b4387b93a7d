package gsm

import (
	"fmt"
	"strings"
)

// Band identifies one of the four GSM frequency bands a Calypso phone can tune.
type Band int

const (
	GSM900 Band = iota
	GSM850
	DCS1800
	PCS1900
)

const (
	// ARFCNMask selects the canonical 14-bit channel number from the
	// osmocom wire representation.
	ARFCNMask = 0x3fff
	// PCSFlag is set on the wire when a channel in the 512-810 range
	// refers to PCS1900 rather than DCS1800.
	PCSFlag = 0x8000
)

// Bands lists every band in wire id order.
var Bands = []Band{GSM900, GSM850, DCS1800, PCS1900}

func (b Band) String() string {
	switch b {
	case GSM900:
		return "GSM900"
	case GSM850:
		return "GSM850"
	case DCS1800:
		return "DCS1800"
	case PCS1900:
		return "PCS1900"
	default:
		return fmt.Sprintf("Band(%d)", int(b))
	}
}

// ParseBand accepts a band name in any case, e.g. "gsm850" or "PCS1900".
func ParseBand(s string) (Band, error) {
	for _, b := range Bands {
		if strings.EqualFold(s, b.String()) {
			return b, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownBand, s)
}

// MarshalText implements encoding.TextMarshaler so bands appear by name in
// JSON records and config files.
func (b Band) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *Band) UnmarshalText(text []byte) error {
	parsed, err := ParseBand(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// BandFromARFCN maps a canonical ARFCN plus the PCS flag onto its band.
//
// DCS1800 and PCS1900 share channel numbers, so the flag is what tells
// them apart. Channels outside every band yield ErrUnknownBand.
func BandFromARFCN(arfcn uint16, pcs bool) (Band, error) {
	switch {
	case arfcn <= 124:
		return GSM900, nil
	case arfcn >= 128 && arfcn <= 251:
		return GSM850, nil
	case arfcn >= 512 && arfcn <= 885 && !pcs:
		return DCS1800, nil
	case arfcn >= 512 && arfcn <= 810 && pcs:
		return PCS1900, nil
	default:
		return 0, fmt.Errorf("%w: arfcn %d (pcs=%t)", ErrUnknownBand, arfcn, pcs)
	}
}

// SplitARFCN separates an osmocom wire ARFCN into the canonical channel
// number and the PCS flag.
func SplitARFCN(raw uint16) (arfcn uint16, pcs bool) {
	return raw & ARFCNMask, raw&PCSFlag != 0
}

// ChannelRange returns the first and last ARFCN of a band.
func (b Band) ChannelRange() (first, last uint16) {
	switch b {
	case GSM900:
		return 0, 124
	case GSM850:
		return 128, 251
	case DCS1800:
		return 512, 885
	default:
		return 512, 810
	}
}
