package gsm

import (
	"encoding/binary"
	"fmt"
)

// CellIdentity is the MCC/MNC/LAC/CI tuple identifying a cell.
type CellIdentity struct {
	MCC    uint16 `json:"mcc"`
	MNC    uint16 `json:"mnc"`
	LAC    uint16 `json:"lac"`
	CellID uint16 `json:"cell_id"`
}

func (c CellIdentity) String() string {
	return fmt.Sprintf("%03d-%02d-%d-%d", c.MCC, c.MNC, c.LAC, c.CellID)
}

// minSI3Len covers the L2 pseudo length, protocol discriminator, message
// type, cell identity and location area identification.
const minSI3Len = 10

// ParseSI3 extracts the cell identity from a System Information Type 3
// message as cell_log prints it (starting at the L2 pseudo length octet).
//
// Cell identity sits at octets 3-4 and the LAI at octets 5-9. MCC and MNC
// are BCD digits: octet 5 holds MCC digits 2|1, octet 6 MNC digit 3|MCC
// digit 3 and octet 7 MNC digits 2|1. A filler nibble of 0xf for MNC digit 3
// means a two-digit MNC.
func ParseSI3(si3 []byte) (CellIdentity, error) {
	if len(si3) < minSI3Len {
		return CellIdentity{}, fmt.Errorf("%w: %d bytes", ErrShortSI3, len(si3))
	}

	mcc := uint16(si3[5]&0x0f)*100 + uint16(si3[5]>>4)*10 + uint16(si3[6]&0x0f)
	mnc := uint16(si3[7]&0x0f)*10 + uint16(si3[7]>>4)
	if d3 := si3[6] >> 4; d3 != 0x0f {
		mnc = mnc*10 + uint16(d3)
	}

	return CellIdentity{
		MCC:    mcc,
		MNC:    mnc,
		LAC:    binary.BigEndian.Uint16(si3[8:10]),
		CellID: binary.BigEndian.Uint16(si3[3:5]),
	}, nil
}
