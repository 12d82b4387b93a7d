package celllog

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultRetryInterval is how often Reader checks whether cell_log has
// created its FIFO yet.
const DefaultRetryInterval = 100 * time.Millisecond

type ReaderOption func(*Reader)

func WithRetryInterval(d time.Duration) ReaderOption {
	return func(r *Reader) {
		r.retry = d
	}
}

func WithReaderLogger(l *slog.Logger) ReaderOption {
	return func(r *Reader) {
		r.logger = l
	}
}

// WithClock replaces time.Now as the arrival time of lines.
func WithClock(now func() time.Time) ReaderOption {
	return func(r *Reader) {
		r.now = now
	}
}

// Reader follows the cell_log FIFO and feeds every line to a Decoder.
type Reader struct {
	path    string
	decoder *Decoder
	retry   time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

func NewReader(path string, decoder *Decoder, opts ...ReaderOption) *Reader {
	r := &Reader{
		path:    path,
		decoder: decoder,
		retry:   DefaultRetryInterval,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "celllog", "path", path)
	return r
}

// MakeFIFO creates the named pipe cell_log writes to. An existing FIFO at
// path is reused.
func MakeFIFO(path string) error {
	err := unix.Mkfifo(path, 0o600)
	if err == nil {
		return nil
	}
	if errors.Is(err, unix.EEXIST) {
		if fi, statErr := os.Stat(path); statErr == nil && fi.Mode()&fs.ModeNamedPipe != 0 {
			return nil
		}
	}
	return fmt.Errorf("create fifo %s: %w", path, err)
}

// Run opens the log, waiting for it to appear, and decodes lines until the
// writer closes it, ctx is cancelled or a read fails. A record left open
// at the end of the stream is discarded. Run returns nil at end of stream.
func (r *Reader) Run(ctx context.Context) error {
	f, err := r.open(ctx)
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() {
		f.Close()
	})
	defer stop()
	defer f.Close()
	defer r.decoder.Reset()

	scanner := bufio.NewScanner(f)
	scanner.Split(Splitter)
	for scanner.Scan() {
		line := scanner.Text()
		if err := r.decoder.HandleLine(line, r.now()); err != nil {
			r.logger.Warn("skipping line", "error", err)
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read cell log: %w", err)
	}
	r.logger.Info("cell log closed by writer")
	return nil
}

// open retries until the file exists. Opening a FIFO blocks until a writer
// shows up, so the open runs aside and is released on cancellation by
// briefly opening the write end.
func (r *Reader) open(ctx context.Context) (*os.File, error) {
	for {
		f, err := r.openOnce(ctx)
		if err == nil {
			r.logger.Debug("cell log opened")
			return f, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.retry):
		}
	}
}

func (r *Reader) openOnce(ctx context.Context) (*os.File, error) {
	type result struct {
		f   *os.File
		err error
	}
	opened := make(chan result, 1)
	go func() {
		f, err := os.Open(r.path)
		opened <- result{f, err}
	}()

	select {
	case res := <-opened:
		return res.f, res.err
	case <-ctx.Done():
		if fd, err := unix.Open(r.path, unix.O_WRONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0); err == nil {
			unix.Close(fd)
		}
		if res := <-opened; res.f != nil {
			res.f.Close()
		}
		return nil, ctx.Err()
	}
}
