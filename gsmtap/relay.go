package gsmtap

import (
	"fmt"
	"log/slog"
	"net"

	"i4.energy/across/osmocon/gsm"
)

// Relay re-emits every packet as a GSMTAP datagram to another address, so
// Wireshark or a remote collector can follow the capture.
type Relay struct {
	conn   net.Conn
	logger *slog.Logger
}

func DialRelay(addr string, logger *slog.Logger) (*Relay, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial gsmtap relay %s: %w", addr, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{conn: conn, logger: logger.With("component", "gsmtap-relay")}, nil
}

// HandlePacket sends p. Send errors are logged; a missing listener must not
// stop the capture.
func (r *Relay) HandlePacket(p gsm.Packet) {
	if _, err := r.conn.Write(Encode(p)); err != nil {
		r.logger.Debug("relay failed", "arfcn", p.ARFCN, "error", err)
	}
}

func (r *Relay) Close() error {
	return r.conn.Close()
}

// Tee hands each packet to every sink in order.
func Tee(sinks ...Sink) Sink {
	return SinkFunc(func(p gsm.Packet) {
		for _, s := range sinks {
			s.HandlePacket(p)
		}
	})
}
