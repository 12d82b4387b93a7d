// Package bridge relays L1A/L23 messages between the phone and a single
// layer 2/3 client connected to a local socket.
//
// Messages on the socket are framed as a big-endian 16 bit length followed
// by the payload, in both directions.
package bridge

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"time"
)

// MaxPayload is the largest message the length prefix can describe.
const MaxPayload = 0xffff

// DefaultWriteTimeout bounds each Forward write to a client that stopped
// reading.
const DefaultWriteTimeout = 100 * time.Millisecond

// Handler receives each message read from the client.
type Handler func(payload []byte) error

type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithWriteTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.writeTimeout = d
	}
}

// Server accepts one client at a time. The zero value is not usable; build
// one with New.
type Server struct {
	handler      Handler
	logger       *slog.Logger
	writeTimeout time.Duration

	// connMu guards client and is never held across I/O.
	connMu sync.Mutex
	client net.Conn

	// writeMu keeps messages from interleaving on the socket.
	writeMu sync.Mutex
}

func New(handler Handler, opts ...Option) *Server {
	s := &Server{
		handler:      handler,
		logger:       slog.Default(),
		writeTimeout: DefaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "bridge")
	return s
}

// Listen opens a unix socket listener. Names starting with '@' live in the
// Linux abstract namespace; otherwise a stale socket file is removed first.
func Listen(path string) (net.Listener, error) {
	if !strings.HasPrefix(path, "@") {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale socket %s: %w", path, err)
		}
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", path, err)
	}
	return ln, nil
}

// Serve accepts clients on ln until the context is cancelled or Accept
// fails. Clients are served one after another in this goroutine, which
// enforces the single client rule. The listener is closed on return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		ln.Close()
		if conn := s.conn(); conn != nil {
			conn.Close()
		}
	})
	defer stop()
	defer ln.Close()

	s.logger.Info("waiting for layer 2/3 client", "addr", ln.Addr().String())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("accept: %w", err)
		}

		s.attach(conn)
		if ctx.Err() != nil {
			s.detach(conn)
			return ctx.Err()
		}
		err = s.handle(conn)
		s.detach(conn)

		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, io.EOF):
			s.logger.Info("client disconnected")
		default:
			s.logger.Warn("client dropped", "error", err)
		}
	}
}

// Connected reports whether a client is attached.
func (s *Server) Connected() bool {
	return s.conn() != nil
}

// Forward sends payload to the attached client. Without a client the
// payload is dropped and Forward returns nil. A client that does not take
// the message within the write timeout loses it and ErrClientStalled is
// returned; if part of the message already went out the client is dropped,
// since its stream can no longer be framed.
func (s *Server) Forward(payload []byte) error {
	if len(payload) > MaxPayload {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}

	msg := make([]byte, 2+len(payload))
	binary.BigEndian.PutUint16(msg, uint16(len(payload)))
	copy(msg[2:], payload)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	conn := s.conn()
	if conn == nil {
		s.logger.Debug("no client, dropping message", "len", len(payload))
		return nil
	}

	if s.writeTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
			conn.Close()
			return fmt.Errorf("set write deadline: %w", err)
		}
	}
	n, err := conn.Write(msg)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, os.ErrDeadlineExceeded) && n == 0:
		return fmt.Errorf("%w: dropped %d bytes", ErrClientStalled, len(payload))
	case errors.Is(err, os.ErrDeadlineExceeded):
		// Unblocks the reader, which detaches the client.
		conn.Close()
		return fmt.Errorf("%w: wrote %d of %d bytes", ErrClientStalled, n, len(msg))
	default:
		conn.Close()
		return fmt.Errorf("write to client: %w", err)
	}
}

func (s *Server) conn() net.Conn {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.client
}

func (s *Server) attach(conn net.Conn) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	s.client = conn
	s.logger.Info("client connected")
}

func (s *Server) detach(conn net.Conn) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	conn.Close()
	s.client = nil
}

// handle reads length prefixed messages until the client goes away. A
// failing handler drops the message but keeps the client.
func (s *Server) handle(conn net.Conn) error {
	r := bufio.NewReader(conn)
	var hdr [2]byte
	for {
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return err
		}
		payload := make([]byte, binary.BigEndian.Uint16(hdr[:]))
		if _, err := io.ReadFull(r, payload); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return err
		}
		if s.handler == nil {
			continue
		}
		if err := s.handler(payload); err != nil {
			s.logger.Warn("dropping message from client", "len", len(payload), "error", err)
		}
	}
}
