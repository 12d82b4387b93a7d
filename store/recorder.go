package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lestrrat-go/strftime"
)

// Recorder appends records as JSON lines to a file named by a strftime
// pattern, e.g. "/var/lib/osmocon/%Y-%m-%d.jsonl". A new file is opened
// whenever the formatted name changes, so the pattern sets the rotation.
type Recorder struct {
	pattern *strftime.Strftime
	now     func() time.Time

	mu    sync.Mutex
	name  string
	file  *os.File
	enc   *json.Encoder
	count uint64
}

// entry is one line of the record file.
type entry struct {
	Kind   string `json:"kind"`
	Record any    `json:"record"`
}

func NewRecorder(pattern string) (*Recorder, error) {
	p, err := strftime.New(pattern)
	if err != nil {
		return nil, fmt.Errorf("record path pattern %q: %w", pattern, err)
	}
	return &Recorder{pattern: p, now: time.Now}, nil
}

// Record writes one record of the given kind.
func (r *Recorder) Record(kind string, record any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.rotate(); err != nil {
		return err
	}
	if err := r.enc.Encode(entry{Kind: kind, Record: record}); err != nil {
		return fmt.Errorf("write %s record: %w", kind, err)
	}
	r.count++
	return nil
}

// Name returns the file currently written to, or "" before the first
// record.
func (r *Recorder) Name() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.name
}

func (r *Recorder) Count() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file, r.enc, r.name = nil, nil, ""
	return err
}

func (r *Recorder) rotate() error {
	name := r.pattern.FormatString(r.now())
	if r.file != nil && name == r.name {
		return nil
	}
	if r.file != nil {
		r.file.Close()
		r.file, r.enc = nil, nil
	}

	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return fmt.Errorf("create record directory: %w", err)
	}
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("open record file: %w", err)
	}
	r.file, r.enc, r.name = f, json.NewEncoder(f), name
	return nil
}
