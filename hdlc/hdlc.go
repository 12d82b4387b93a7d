// Package hdlc implements the simplified HDLC framing spoken by osmocom
// layer1 firmware on the Calypso serial line.
//
// Wire format:
//
//	FLAG (0x7E)
//	DLCI       : logical channel
//	CTRL (0x03): unnumbered information
//	payload    : byte stuffed
//	FLAG (0x7E)
//
// Payload bytes equal to FLAG (0x7E), ESC (0x7D) or 0x00 are sent as ESC,
// byte^0x20. The codec performs no I/O and never fails; malformed input is
// rejected by IsFrame.
package hdlc

const (
	Flag    = 0x7e
	Escape  = 0x7d
	Control = 0x03

	escXor = 0x20

	// MinFrameLen is FLAG + DLCI + CTRL + FLAG.
	MinFrameLen = 4
	headerLen   = 3
)

// DLCI selects a logical channel multiplexed over the serial link.
type DLCI byte

const (
	// L1AL23 carries L1CTL messages between the firmware and the
	// layer 2/3 process.
	L1AL23 DLCI = 5
	// Console carries printf output of the firmware.
	Console DLCI = 10
)

func (d DLCI) String() string {
	switch d {
	case L1AL23:
		return "l1a_l23"
	case Console:
		return "console"
	default:
		return "unknown"
	}
}

func needsEscape(b byte) bool {
	return b == Flag || b == Escape || b == 0x00
}

// Encode wraps payload into a frame for the given channel.
func Encode(dlci DLCI, payload []byte) []byte {
	n := MinFrameLen + len(payload)
	for _, b := range payload {
		if needsEscape(b) {
			n++
		}
	}

	frame := make([]byte, 0, n)
	frame = append(frame, Flag, byte(dlci), Control)
	for _, b := range payload {
		if needsEscape(b) {
			frame = append(frame, Escape, b^escXor)
		} else {
			frame = append(frame, b)
		}
	}
	return append(frame, Flag)
}

// Decode returns the unstuffed payload of a frame, i.e. bytes
// [3, len-1) with escapes expanded. Callers should check IsFrame first;
// an escape immediately before the closing flag is dropped.
func Decode(frame []byte) []byte {
	if len(frame) < MinFrameLen {
		return nil
	}

	body := frame[headerLen : len(frame)-1]
	payload := make([]byte, 0, len(body))
	for i := 0; i < len(body); i++ {
		if body[i] != Escape {
			payload = append(payload, body[i])
			continue
		}
		i++
		if i < len(body) {
			payload = append(payload, body[i]^escXor)
		}
	}
	return payload
}

// IsFrame reports whether buf is a complete frame: at least four bytes,
// flags at both ends and the UI control byte at offset 2.
func IsFrame(buf []byte) bool {
	if len(buf) < MinFrameLen {
		return false
	}
	return buf[0] == Flag && buf[2] == Control && buf[len(buf)-1] == Flag
}

// Channel returns the DLCI of a frame. It must only be called on buffers
// accepted by IsFrame.
func Channel(frame []byte) DLCI {
	return DLCI(frame[1])
}
