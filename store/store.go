// Package store aggregates everything the phone reports: boot status,
// console output, GSMTAP packets, spectrum readings and cell observations.
// It keeps the latest view in memory for the status API and optionally
// records every measurement through a Recorder.
package store

import (
	"cmp"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"i4.energy/across/osmocon/gsm"
	"i4.energy/across/osmocon/loader"
)

// DefaultConsoleLines is how many console lines are kept.
const DefaultConsoleLines = 200

type Option func(*Store)

// WithRecorder records every packet, reading and observation.
func WithRecorder(r *Recorder) Option {
	return func(s *Store) {
		s.recorder = r
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

func WithConsoleLines(n int) Option {
	return func(s *Store) {
		s.consoleMax = n
	}
}

// Status is a snapshot of the whole pipeline.
type Status struct {
	Boot      loader.Status `json:"boot"`
	UpdatedAt time.Time     `json:"updated_at"`
	Packets   uint64        `json:"packets"`
	Readings  uint64        `json:"readings"`
	Cells     int           `json:"cells"`
	Recorded  uint64        `json:"recorded"`
}

type cellKey struct {
	band  gsm.Band
	arfcn uint16
}

// Store is safe for concurrent use. The sink methods are called from the
// reader goroutines; the getters from HTTP handlers.
type Store struct {
	recorder   *Recorder
	logger     *slog.Logger
	consoleMax int
	now        func() time.Time

	mu           sync.RWMutex
	status       loader.Status
	updatedAt    time.Time
	console      []string
	partial      strings.Builder
	packets      uint64
	readings     uint64
	spectrograms map[gsm.Band]*Spectrogram
	cells        map[cellKey]gsm.CellObservation
}

func New(opts ...Option) *Store {
	s := &Store{
		logger:       slog.Default(),
		consoleMax:   DefaultConsoleLines,
		now:          time.Now,
		spectrograms: make(map[gsm.Band]*Spectrogram, len(gsm.Bands)),
		cells:        make(map[cellKey]gsm.CellObservation),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "store")
	for _, b := range gsm.Bands {
		s.spectrograms[b] = NewSpectrogram(b)
	}
	return s
}

// SetStatus tracks boot progress. It matches the modem status callback.
func (s *Store) SetStatus(st loader.Status) {
	s.mu.Lock()
	s.status = st
	s.updatedAt = s.now()
	s.mu.Unlock()

	if st.State == loader.Error || st.State == loader.AppRunning {
		s.logger.Info("boot finished", "state", st.State, "bytes", st.BytesSent)
	}
}

// AppendConsole collects console text into lines. Text without a trailing
// newline is held until the line completes.
func (s *Store) AppendConsole(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.partial.WriteString(text)
	buffered := s.partial.String()
	i := strings.LastIndexByte(buffered, '\n')
	if i < 0 {
		return
	}
	s.partial.Reset()
	s.partial.WriteString(buffered[i+1:])

	for _, line := range strings.Split(buffered[:i], "\n") {
		s.console = append(s.console, strings.TrimSuffix(line, "\r"))
	}
	if over := len(s.console) - s.consoleMax; over > 0 {
		s.console = slices.Delete(s.console, 0, over)
	}
}

func (s *Store) HandlePacket(p gsm.Packet) {
	s.mu.Lock()
	s.packets++
	s.mu.Unlock()

	s.record("packet", p)
}

func (s *Store) HandleSpectrum(m gsm.SpectrumMeasurement) {
	s.mu.Lock()
	s.readings++
	sg, ok := s.spectrograms[m.Band]
	ok = ok && sg.Set(m)
	s.mu.Unlock()

	if !ok {
		s.logger.Debug("reading outside band", "band", m.Band, "arfcn", m.ARFCN)
	}
	s.record("spectrum", m)
}

// HandleCell keeps the latest observation per channel.
func (s *Store) HandleCell(c gsm.CellObservation) {
	s.mu.Lock()
	s.cells[cellKey{c.Band, c.ARFCN}] = c
	s.mu.Unlock()

	s.logger.Info("cell observed", "band", c.Band, "arfcn", c.ARFCN, "cell", c.Identity(), "dbm", c.DBm)
	s.record("cell", c)
}

func (s *Store) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		Boot:      s.status,
		UpdatedAt: s.updatedAt,
		Packets:   s.packets,
		Readings:  s.readings,
		Cells:     len(s.cells),
	}
	if s.recorder != nil {
		st.Recorded = s.recorder.Count()
	}
	return st
}

// Console returns the most recent complete console lines, oldest first.
func (s *Store) Console() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.console)
}

func (s *Store) Spectrum(b gsm.Band) (Spectrogram, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sg, ok := s.spectrograms[b]
	if !ok {
		return Spectrogram{}, false
	}
	return sg.clone(), true
}

// Cells returns the latest observation per channel ordered by band and
// channel.
func (s *Store) Cells() []gsm.CellObservation {
	s.mu.RLock()
	cells := make([]gsm.CellObservation, 0, len(s.cells))
	for _, c := range s.cells {
		cells = append(cells, c)
	}
	s.mu.RUnlock()

	slices.SortFunc(cells, func(a, b gsm.CellObservation) int {
		return cmp.Or(cmp.Compare(a.Band, b.Band), cmp.Compare(a.ARFCN, b.ARFCN))
	})
	return cells
}

func (s *Store) record(kind string, v any) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(kind, v); err != nil {
		s.logger.Warn("recording failed", "kind", kind, "error", err)
	}
}
