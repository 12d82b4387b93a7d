// Package gsmtap decodes the GSMTAP v2 datagrams the layer 2/3 stack emits
// for every air-interface frame it sees.
//
// Header layout (16 bytes, network byte order):
//
//	0  version      1  hdr_len (32-bit words)  2  type        3  timeslot
//	4  arfcn (BE16, bit 15 = PCS, bit 14 = uplink)  6  signal dBm  7  snr
//	8  frame number (BE32)
//	12 sub_type     13 antenna                14 sub_slot    15 reserved
package gsmtap

import (
	"encoding/binary"
	"fmt"
	"time"

	"i4.energy/across/osmocon/gsm"
)

const (
	// Version is the only header version accepted by Decode.
	Version = 2
	// HeaderLen is the size of the fixed header in bytes.
	HeaderLen = 16
	// DefaultAddr is where the layer 2/3 stack sends GSMTAP by convention.
	DefaultAddr = "127.0.0.1:4729"
)

// Decode parses one GSMTAP datagram into a packet stamped with at. The
// payload is copied, so buf may be reused by the caller.
func Decode(buf []byte, at time.Time) (gsm.Packet, error) {
	if len(buf) < HeaderLen {
		return gsm.Packet{}, fmt.Errorf("%w: %d bytes", ErrShortPacket, len(buf))
	}
	if buf[0] != Version {
		return gsm.Packet{}, fmt.Errorf("%w: %d", ErrBadVersion, buf[0])
	}

	arfcn, pcs := gsm.SplitARFCN(binary.BigEndian.Uint16(buf[4:6]))
	band, err := gsm.BandFromARFCN(arfcn, pcs)
	if err != nil {
		return gsm.Packet{}, fmt.Errorf("gsmtap: %w", err)
	}

	payload := make([]byte, len(buf)-HeaderLen)
	copy(payload, buf[HeaderLen:])

	return gsm.Packet{
		Header: gsm.Header{
			Timestamp: at,
			ARFCN:     arfcn,
			Band:      band,
			DBm:       int8(buf[6]), // signal_dbm; byte 7 is the SNR
		},
		Type:        buf[2],
		Timeslot:    buf[3],
		FrameNumber: binary.BigEndian.Uint32(buf[8:12]),
		Subtype:     buf[12],
		Payload:     payload,
	}, nil
}

// Encode builds the datagram Relay sends for a packet. The PCS flag is set
// for PCS1900 packets; SNR, antenna and sub-slot are written as zero.
func Encode(p gsm.Packet) []byte {
	buf := make([]byte, HeaderLen, HeaderLen+len(p.Payload))
	buf[0] = Version
	buf[1] = HeaderLen / 4
	buf[2] = p.Type
	buf[3] = p.Timeslot

	arfcn := p.ARFCN & gsm.ARFCNMask
	if p.Band == gsm.PCS1900 {
		arfcn |= gsm.PCSFlag
	}
	binary.BigEndian.PutUint16(buf[4:6], arfcn)
	buf[6] = byte(p.DBm)
	binary.BigEndian.PutUint32(buf[8:12], p.FrameNumber)
	buf[12] = p.Subtype

	return append(buf, p.Payload...)
}
