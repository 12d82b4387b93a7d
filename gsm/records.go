package gsm

import (
	"bytes"
	"time"
)

// NoTA marks a cell observation for which cell_log reported no timing
// advance.
const NoTA uint8 = 0xff

// Header is the measurement metadata shared by every record type.
type Header struct {
	Timestamp time.Time `json:"timestamp"`
	ARFCN     uint16    `json:"arfcn"`
	Band      Band      `json:"band"`
	DBm       int8      `json:"dbm"`
}

// Packet is one air-interface frame captured through GSMTAP.
//
// Packets are values: the payload slice is owned by the packet and must
// not be modified once the packet has been handed to a sink.
type Packet struct {
	Header
	Type        uint8  `json:"type"`
	Subtype     uint8  `json:"subtype"`
	Timeslot    uint8  `json:"timeslot"`
	FrameNumber uint32 `json:"frame_number"`
	Payload     []byte `json:"payload"`
}

// SpectrumMeasurement is a single received power reading on one channel.
type SpectrumMeasurement struct {
	Header
}

// CellObservation is everything cell_log reported about one cell while it
// was camped on its BCCH.
type CellObservation struct {
	Header
	MCC       uint16 `json:"mcc"`
	MNC       uint16 `json:"mnc"`
	LAC       uint16 `json:"lac"`
	CellID    uint16 `json:"cell_id"`
	BSIC      uint8  `json:"bsic"`
	TA        uint8  `json:"ta"`
	SI1       []byte `json:"si1,omitempty"`
	SI2       []byte `json:"si2,omitempty"`
	SI2quater []byte `json:"si2quater,omitempty"`
	SI3       []byte `json:"si3,omitempty"`
	SI4       []byte `json:"si4,omitempty"`
	SI13      []byte `json:"si13,omitempty"`
}

// HasTA reports whether a timing advance was present.
func (c CellObservation) HasTA() bool {
	return c.TA != NoTA
}

// Identity returns the cell global identity parts of the observation.
func (c CellObservation) Identity() CellIdentity {
	return CellIdentity{MCC: c.MCC, MNC: c.MNC, LAC: c.LAC, CellID: c.CellID}
}

// Equal compares two observations field by field, including payloads.
func (c CellObservation) Equal(o CellObservation) bool {
	return c.Header == o.Header &&
		c.Identity() == o.Identity() &&
		c.BSIC == o.BSIC && c.TA == o.TA &&
		bytes.Equal(c.SI1, o.SI1) &&
		bytes.Equal(c.SI2, o.SI2) &&
		bytes.Equal(c.SI2quater, o.SI2quater) &&
		bytes.Equal(c.SI3, o.SI3) &&
		bytes.Equal(c.SI4, o.SI4) &&
		bytes.Equal(c.SI13, o.SI13)
}
