package celllog_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"i4.energy/across/osmocon/celllog"
	"i4.energy/across/osmocon/gsm"
)

type records struct {
	spectrum []gsm.SpectrumMeasurement
	cells    []gsm.CellObservation
}

func (r *records) HandleSpectrum(m gsm.SpectrumMeasurement) { r.spectrum = append(r.spectrum, m) }
func (r *records) HandleCell(c gsm.CellObservation)         { r.cells = append(r.cells, c) }

var arrival = time.Date(2019, 3, 1, 12, 0, 0, 0, time.UTC)

// feed runs every line through the decoder and returns the line errors.
func feed(d *celllog.Decoder, log string) []error {
	var errs []error
	for _, line := range strings.Split(log, "\n") {
		if err := d.HandleLine(line, arrival); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func TestPowerSection(t *testing.T) {
	rec := &records{}
	d := celllog.NewDecoder(rec)

	errs := feed(d, "[power]\narfcn 128 -90 -91 -88")
	require.Empty(t, errs)
	require.Len(t, rec.spectrum, 3)

	for i, m := range rec.spectrum {
		assert.Equal(t, uint16(128+i), m.ARFCN)
		assert.Equal(t, gsm.GSM850, m.Band)
		assert.Equal(t, arrival, m.Timestamp)
	}
	assert.Equal(t, []int8{-90, -91, -88}, []int8{rec.spectrum[0].DBm, rec.spectrum[1].DBm, rec.spectrum[2].DBm})
	assert.Equal(t, celllog.SectionPower, d.Section())

	t.Run("PCS channels keep their band", func(t *testing.T) {
		rec := &records{}
		d := celllog.NewDecoder(rec)
		require.Empty(t, feed(d, "[power]\narfcn 33300 -100 -101"))
		require.Len(t, rec.spectrum, 2)
		assert.Equal(t, uint16(532), rec.spectrum[0].ARFCN)
		assert.Equal(t, uint16(533), rec.spectrum[1].ARFCN)
		assert.Equal(t, gsm.PCS1900, rec.spectrum[1].Band)
	})

	t.Run("explicit time line wins over arrival time", func(t *testing.T) {
		rec := &records{}
		d := celllog.NewDecoder(rec)
		require.Empty(t, feed(d, "[power]\ntime 1551441600\narfcn 1 -60"))
		require.Len(t, rec.spectrum, 1)
		assert.True(t, time.Unix(1551441600, 0).Equal(rec.spectrum[0].Timestamp))
	})

	t.Run("bad readings are skipped one by one", func(t *testing.T) {
		rec := &records{}
		d := celllog.NewDecoder(rec)
		errs := feed(d, "[power]\narfcn 123 -60 x -62 -63")
		require.Len(t, errs, 1)
		assert.ErrorIs(t, errs[0], celllog.ErrMalformedLine)

		// 124 is skipped as unparsable, 125 and 126 fall between bands.
		require.Len(t, rec.spectrum, 1)
		assert.Equal(t, uint16(123), rec.spectrum[0].ARFCN)
	})
}

func TestSysinfoSection(t *testing.T) {
	rec := &records{}
	d := celllog.NewDecoder(rec)

	log := strings.Join([]string{
		"[sysinfo]",
		"arfcn 130",
		"time 1551441602",
		"rxlev -71",
		"bsic 3,5",
		"ta 1",
		"si1 55 06 19",
		"si3 49 06 1b 12 34 13 00 62 04 57",
		"si13 01 ff",
		"",
	}, "\n")
	require.Empty(t, feed(d, log))
	require.Len(t, rec.cells, 1)

	c := rec.cells[0]
	assert.Equal(t, uint16(130), c.ARFCN)
	assert.Equal(t, gsm.GSM850, c.Band)
	assert.Equal(t, int8(-71), c.DBm)
	assert.True(t, time.Unix(1551441602, 0).Equal(c.Timestamp))
	assert.Equal(t, uint8(0x35), c.BSIC)
	assert.Equal(t, uint8(1), c.TA)
	assert.True(t, c.HasTA())
	assert.Equal(t, []byte{0x55, 0x06, 0x19}, c.SI1)
	assert.Equal(t, []byte{0x01, 0xff}, c.SI13)
	assert.Nil(t, c.SI2)
	assert.Equal(t, gsm.CellIdentity{MCC: 310, MNC: 260, LAC: 0x0457, CellID: 0x1234}, c.Identity())

	assert.Equal(t, celllog.SectionNone, d.Section(), "blank line closes the record")
	assert.Empty(t, rec.spectrum, "arfcn lines outside power emit nothing")
}

func TestSysinfoDefaults(t *testing.T) {
	t.Run("missing ta reads as no timing advance", func(t *testing.T) {
		rec := &records{}
		d := celllog.NewDecoder(rec)
		require.Empty(t, feed(d, "[sysinfo]\narfcn 5\n"))
		require.Len(t, rec.cells, 1)
		assert.Equal(t, gsm.NoTA, rec.cells[0].TA)
		assert.False(t, rec.cells[0].HasTA())
		assert.Equal(t, arrival, rec.cells[0].Timestamp)
	})

	t.Run("explicit identity lines override SI3", func(t *testing.T) {
		rec := &records{}
		d := celllog.NewDecoder(rec)
		log := "[sysinfo]\narfcn 5\nmcc 262\nmnc 1\nlac 7\ncell_id 42\nsi3 49 06 1b 12 34 13 00 62 04 57\n"
		require.Empty(t, feed(d, log))
		require.Len(t, rec.cells, 1)
		assert.Equal(t, "262-01-7-42", rec.cells[0].Identity().String())
	})

	t.Run("unterminated record is discarded at a new section", func(t *testing.T) {
		rec := &records{}
		d := celllog.NewDecoder(rec)
		require.Empty(t, feed(d, "[sysinfo]\narfcn 5\nta 3\n[sysinfo]\narfcn 6\n"))
		require.Len(t, rec.cells, 1)
		assert.Equal(t, uint16(6), rec.cells[0].ARFCN)
		assert.Equal(t, gsm.NoTA, rec.cells[0].TA)
	})

	t.Run("blank line in power section emits nothing", func(t *testing.T) {
		rec := &records{}
		d := celllog.NewDecoder(rec)
		require.Empty(t, feed(d, "[power]\n\n"))
		assert.Empty(t, rec.cells)
		assert.Equal(t, celllog.SectionPower, d.Section())
	})
}

func TestMalformedLines(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"time without value", "time"},
		{"rxlev out of range", "rxlev -300"},
		{"bsic without comma", "bsic 35"},
		{"bsic digit too large", "bsic 3,99"},
		{"non hex system information", "si3 49 zz"},
		{"arfcn outside every band", "arfcn 300"},
		{"arfcn not a number", "arfcn abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &records{}
			d := celllog.NewDecoder(rec)
			require.NoError(t, d.HandleLine("[sysinfo]", arrival))

			err := d.HandleLine(tt.line, arrival)
			assert.ErrorIs(t, err, celllog.ErrMalformedLine)

			// The record survives the bad line.
			require.NoError(t, d.HandleLine("arfcn 10", arrival))
			require.NoError(t, d.HandleLine("", arrival))
			require.Len(t, rec.cells, 1)
			assert.Equal(t, uint16(10), rec.cells[0].ARFCN)
		})
	}

	t.Run("field before any section", func(t *testing.T) {
		d := celllog.NewDecoder(&records{})
		assert.ErrorIs(t, d.HandleLine("arfcn 10 -50", arrival), celllog.ErrNoSection)
	})

	t.Run("unknown fields are ignored", func(t *testing.T) {
		d := celllog.NewDecoder(&records{})
		require.NoError(t, d.HandleLine("[sysinfo]", arrival))
		assert.NoError(t, d.HandleLine("neigh 1 2 3", arrival))
	})
}
