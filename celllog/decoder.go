// Package celllog consumes the text log the cell_log scanner writes to its
// FIFO and turns it into spectrum measurements and cell observations.
//
// The log is a sequence of sections:
//
//	[power]
//	time 1551441600
//	arfcn 128 -90 -91 -88
//
//	[sysinfo]
//	arfcn 130
//	time 1551441602
//	rxlev -71
//	bsic 3,5
//	ta 1
//	si3 49 06 1b 12 34 13 00 62 04 57
//
// A power arfcn line carries one reading per consecutive channel. A sysinfo
// record ends with a blank line.
package celllog

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"i4.energy/across/osmocon/gsm"
)

type Section int

const (
	SectionNone Section = iota
	SectionPower
	SectionSysinfo
)

func (s Section) String() string {
	switch s {
	case SectionPower:
		return "power"
	case SectionSysinfo:
		return "sysinfo"
	default:
		return "none"
	}
}

// Sink receives decoded records from the goroutine feeding the Decoder.
type Sink interface {
	HandleSpectrum(m gsm.SpectrumMeasurement)
	HandleCell(c gsm.CellObservation)
}

type Option func(*Decoder)

func WithLogger(l *slog.Logger) Option {
	return func(d *Decoder) {
		d.logger = l
	}
}

// Decoder is the section state machine. It is not safe for concurrent use.
type Decoder struct {
	sink   Sink
	logger *slog.Logger

	section Section
	header  gsm.Header
	// timed is set once the section carried an explicit time line
	timed bool
	cell  gsm.CellObservation
	// identified is set when the record named its cell identity directly
	identified bool
}

func NewDecoder(sink Sink, opts ...Option) *Decoder {
	d := &Decoder{
		sink:   sink,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "celllog")
	return d
}

func (d *Decoder) Section() Section {
	return d.section
}

// Reset drops any partially read record.
func (d *Decoder) Reset() {
	d.section = SectionNone
	d.header = gsm.Header{}
	d.timed = false
	d.cell = gsm.CellObservation{}
	d.identified = false
}

// HandleLine feeds one line received at the given time. A returned error
// means the line was skipped; the decoder state is still consistent and
// the next line may be fed.
func (d *Decoder) HandleLine(line string, at time.Time) error {
	switch Classify(line) {
	case LineSection:
		d.startSection(line, at)
		return nil
	case LineBlank:
		if d.section == SectionSysinfo {
			d.emitCell()
		}
		return nil
	}

	if d.section == SectionNone {
		return fmt.Errorf("%w: %q", ErrNoSection, line)
	}

	key, rest, _ := strings.Cut(line, " ")
	values := strings.Fields(rest)
	if err := d.field(key, values, at); err != nil {
		return fmt.Errorf("%w: %q: %w", ErrMalformedLine, line, err)
	}
	return nil
}

func (d *Decoder) startSection(line string, at time.Time) {
	d.Reset()
	switch line {
	case SectionPowerHeader:
		d.section = SectionPower
	case SectionSysinfoHeader:
		d.section = SectionSysinfo
		d.cell.TA = gsm.NoTA
	default:
		d.logger.Debug("ignoring unknown section", "section", line)
		return
	}
	d.header.Timestamp = at
}

func (d *Decoder) field(key string, values []string, at time.Time) error {
	switch key {
	case "time":
		secs, err := single(values, 64, strconv.ParseInt)
		if err != nil {
			return err
		}
		d.header.Timestamp = time.Unix(secs, 0)
		d.timed = true
	case "arfcn":
		return d.arfcn(values, at)
	case "rxlev":
		dbm, err := single(values, 8, strconv.ParseInt)
		if err != nil {
			return err
		}
		d.header.DBm = int8(dbm)
	case "ta":
		ta, err := single(values, 8, strconv.ParseUint)
		if err != nil {
			return err
		}
		d.cell.TA = uint8(ta)
	case "bsic":
		return d.bsic(values)
	case "si1", "si2", "si2quater", "si3", "si4", "si13":
		return d.sysinfo(key, values)
	case "mcc", "mnc", "lac", "cell_id":
		v, err := single(values, 16, strconv.ParseUint)
		if err != nil {
			return err
		}
		d.identity(key, uint16(v))
	default:
		d.logger.Debug("ignoring unknown field", "field", key, "section", d.section)
	}
	return nil
}

// arfcn handles "arfcn N [dBm...]". In a power section every dBm token is
// a reading for the next channel up; readings that fail to parse or land
// outside a band are skipped individually.
func (d *Decoder) arfcn(values []string, at time.Time) error {
	if len(values) == 0 {
		return errors.New("missing channel")
	}
	raw, err := strconv.ParseUint(values[0], 10, 16)
	if err != nil {
		return err
	}
	arfcn, pcs := gsm.SplitARFCN(uint16(raw))
	band, err := gsm.BandFromARFCN(arfcn, pcs)
	if err != nil {
		return err
	}

	d.header.ARFCN = arfcn
	d.header.Band = band
	if !d.timed {
		d.header.Timestamp = at
	}
	if d.section != SectionPower {
		return nil
	}

	var errs []error
	for i, tok := range values[1:] {
		ch := arfcn + uint16(i)
		dbm, err := strconv.ParseInt(tok, 10, 8)
		if err != nil {
			errs = append(errs, fmt.Errorf("arfcn %d: %w", ch, err))
			continue
		}
		band, err := gsm.BandFromARFCN(ch, pcs)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		h := d.header
		h.ARFCN, h.Band, h.DBm = ch, band, int8(dbm)
		d.sink.HandleSpectrum(gsm.SpectrumMeasurement{Header: h})
	}
	return errors.Join(errs...)
}

// bsic parses "n,m" and packs the two digits as nibbles.
func (d *Decoder) bsic(values []string) error {
	if len(values) != 1 {
		return errors.New("want one value")
	}
	ncc, bcc, ok := strings.Cut(values[0], ",")
	if !ok {
		return errors.New("want ncc,bcc")
	}
	n, err := strconv.ParseUint(ncc, 10, 4)
	if err != nil {
		return err
	}
	b, err := strconv.ParseUint(bcc, 10, 4)
	if err != nil {
		return err
	}
	d.cell.BSIC = uint8(n<<4 | b)
	return nil
}

func (d *Decoder) sysinfo(key string, values []string) error {
	payload := make([]byte, len(values))
	for i, tok := range values {
		b, err := strconv.ParseUint(tok, 16, 8)
		if err != nil {
			return err
		}
		payload[i] = byte(b)
	}

	switch key {
	case "si1":
		d.cell.SI1 = payload
	case "si2":
		d.cell.SI2 = payload
	case "si2quater":
		d.cell.SI2quater = payload
	case "si3":
		d.cell.SI3 = payload
	case "si4":
		d.cell.SI4 = payload
	case "si13":
		d.cell.SI13 = payload
	}
	return nil
}

func (d *Decoder) identity(key string, v uint16) {
	switch key {
	case "mcc":
		d.cell.MCC = v
	case "mnc":
		d.cell.MNC = v
	case "lac":
		d.cell.LAC = v
	case "cell_id":
		d.cell.CellID = v
	}
	d.identified = true
}

func (d *Decoder) emitCell() {
	cell := d.cell
	cell.Header = d.header
	if !d.identified && cell.SI3 != nil {
		id, err := gsm.ParseSI3(cell.SI3)
		if err != nil {
			d.logger.Warn("cell identity unavailable", "arfcn", cell.ARFCN, "error", err)
		} else {
			cell.MCC, cell.MNC, cell.LAC, cell.CellID = id.MCC, id.MNC, id.LAC, id.CellID
		}
	}
	d.sink.HandleCell(cell)
	d.Reset()
}

// single parses the only value of a field line.
func single[T any](values []string, bits int, parse func(string, int, int) (T, error)) (T, error) {
	var zero T
	if len(values) != 1 {
		return zero, fmt.Errorf("want one value, got %d", len(values))
	}
	return parse(values[0], 10, bits)
}
