package store

import "i4.energy/across/osmocon/gsm"

// NoSignal is the level of a channel that has not been measured.
const NoSignal = -110

// Spectrogram holds the latest power reading of every channel in a band.
type Spectrogram struct {
	Band  gsm.Band `json:"band"`
	First uint16   `json:"first_arfcn"`
	DBm   []int    `json:"dbm"`
	// Sweeps counts readings of the last channel of the band, i.e.
	// completed scans.
	Sweeps int `json:"sweeps"`
}

func NewSpectrogram(b gsm.Band) *Spectrogram {
	first, last := b.ChannelRange()
	s := &Spectrogram{
		Band:  b,
		First: first,
		DBm:   make([]int, int(last-first)+1),
	}
	for i := range s.DBm {
		s.DBm[i] = NoSignal
	}
	return s
}

// Set stores a reading. It reports false for readings of another band or
// outside the band's channels.
func (s *Spectrogram) Set(m gsm.SpectrumMeasurement) bool {
	if m.Band != s.Band || m.ARFCN < s.First {
		return false
	}
	i := int(m.ARFCN - s.First)
	if i >= len(s.DBm) {
		return false
	}
	s.DBm[i] = int(m.DBm)
	if i == len(s.DBm)-1 {
		s.Sweeps++
	}
	return true
}

func (s *Spectrogram) clone() Spectrogram {
	c := *s
	c.DBm = append([]int(nil), s.DBm...)
	return c
}
