package gsmtap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"i4.energy/across/osmocon/gsm"
)

// maxDatagram is large enough for any UDP payload.
const maxDatagram = 65535

// Sink receives decoded packets. It is called from the reader goroutine.
type Sink interface {
	HandlePacket(p gsm.Packet)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(gsm.Packet)

func (f SinkFunc) HandlePacket(p gsm.Packet) { f(p) }

type Option func(*Reader)

func WithLogger(l *slog.Logger) Option {
	return func(r *Reader) {
		r.logger = l
	}
}

// WithClock replaces time.Now as the source of packet timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Reader) {
		r.now = now
	}
}

// Reader receives GSMTAP datagrams and hands the decoded packets to a Sink.
type Reader struct {
	conn   net.PacketConn
	sink   Sink
	logger *slog.Logger
	now    func() time.Time
}

// Listen binds the UDP socket GSMTAP is received on.
func Listen(addr string) (net.PacketConn, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen gsmtap on %s: %w", addr, err)
	}
	return conn, nil
}

func NewReader(conn net.PacketConn, sink Sink, opts ...Option) *Reader {
	r := &Reader{
		conn:   conn,
		sink:   sink,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "gsmtap")
	return r
}

// Run reads datagrams until ctx is cancelled or the socket fails. Reads
// have no deadline; cancellation closes the socket to release them.
// Malformed datagrams are logged and skipped.
func (r *Reader) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		r.conn.Close()
	})
	defer stop()

	buf := make([]byte, maxDatagram)
	for {
		n, from, err := r.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			return fmt.Errorf("read gsmtap datagram: %w", err)
		}

		p, err := Decode(buf[:n], r.now())
		if err != nil {
			r.logger.Warn("skipping malformed datagram", "from", from, "len", n, "error", err)
			continue
		}
		r.sink.HandlePacket(p)
	}
}
