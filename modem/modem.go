package modem

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"i4.energy/across/osmocon/framer"
	"i4.energy/across/osmocon/hdlc"
	"i4.energy/across/osmocon/loader"
)

// readSize is the largest single read from the serial line.
const readSize = 4096

// Modem represents a Calypso phone attached to a serial line. It drives the
// boot sequence and, once the application runs, multiplexes its HDLC
// channels. All reads happen in Loop; writes from any goroutine are
// serialised.
type Modem struct {
	// port is the serial line, shared by the loop, the beacon and SendToPhone
	port *lockedPort
	// config contains the modem configuration settings
	config Config
	logger *slog.Logger

	// classifier splits the byte stream into frames; owned by Loop
	classifier *framer.Classifier
	// loader runs the boot protocol until the application is running
	loader *loader.Loader

	mu     sync.Mutex
	closed bool
	// loopRunning indicates if the Loop is currently running
	loopRunning atomic.Bool
}

// chunk is one read from the serial line with its arrival time.
type chunk struct {
	data []byte
	at   time.Time
}

// New opens the serial line through the configured Dialer, switches it to
// 115200 baud and prepares the boot sequence. Nothing is written until the
// phone sends its first prompt, so the phone may be powered on before or
// after New returns.
func New(ctx context.Context, config Config) (*Modem, error) {
	if config.dialer == nil {
		return nil, ErrNoDialer
	}
	config.setDefaults()

	port, err := config.dialer.Dial(ctx)
	if err != nil {
		return nil, err
	}
	if port == nil {
		return nil, ErrNotInitialized
	}

	if err := port.SetBaudRate(DefaultBaudRate); err != nil {
		port.Close()
		return nil, fmt.Errorf("initialize serial line: %w", err)
	}

	m := &Modem{
		port:   &lockedPort{port: port},
		config: config,
		logger: config.logger.With("component", "modem"),
	}

	m.loader, err = loader.New(m.port, config.variant, config.payload,
		loader.WithBeaconInterval(config.beaconInterval),
		loader.WithStatusCallback(config.onStatus),
		loader.WithLogger(config.logger),
	)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("initialize loader: %w", err)
	}

	m.classifier, err = framer.New(m.handleFrame, framer.WithTimeout(config.resyncTimeout))
	if err != nil {
		port.Close()
		return nil, err
	}

	return m, nil
}

// Loop is the serial task. It must be called once after New. It reads the
// serial line until the context is cancelled, the line fails, the frame
// buffer overflows or the boot sequence fails, and closes the Modem before
// returning so that a blocked read is released.
//
// A Modem whose Loop returned cannot be restarted; build a new one with New.
//
// Usage:
//
//	m, err := modem.New(ctx, config)
//	if err != nil { return err }
//	err = m.Loop(ctx)
func (m *Modem) Loop(ctx context.Context) error {
	if !m.loopRunning.CompareAndSwap(false, true) {
		return ErrLoopRunning
	}
	defer m.loopRunning.Store(false)
	defer m.Close()
	defer m.loader.Close()

	chunks := make(chan chunk, 16)
	readErrs := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		defer close(chunks)
		for {
			buf := make([]byte, readSize)
			n, err := m.port.port.Read(buf)
			if n > 0 {
				select {
				case chunks <- chunk{data: buf[:n], at: time.Now()}:
				case <-done:
					return
				}
			}
			if err != nil {
				readErrs <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case c, ok := <-chunks:
			if !ok {
				select {
				case err := <-readErrs:
					return fmt.Errorf("read serial line: %w", err)
				default:
					return ctx.Err()
				}
			}
			if err := m.classifier.Feed(c.data, c.at); err != nil {
				return err
			}
		}
	}
}

// State returns the boot progress.
func (m *Modem) State() loader.State {
	return m.loader.State()
}

// SendToPhone wraps payload into an HDLC frame on the given channel and
// writes it to the phone.
func (m *Modem) SendToPhone(dlci hdlc.DLCI, payload []byte) error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return ErrAlreadyClosed
	}
	if !m.loader.Running() {
		return ErrNotRunning
	}

	if _, err := m.port.Write(hdlc.Encode(dlci, payload)); err != nil {
		return fmt.Errorf("write %s frame: %w", dlci, err)
	}
	return nil
}

// Close releases the serial line. After calling Close(), the modem cannot
// be reused.
func (m *Modem) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrAlreadyClosed
	}
	m.closed = true

	return m.port.port.Close()
}

// handleFrame is the classifier callback; it runs on the Loop goroutine.
func (m *Modem) handleFrame(kind framer.Kind, frame []byte) error {
	switch kind {
	case framer.Bootloader:
		if err := m.loader.HandleBootloader(frame); err != nil {
			return err
		}
	case framer.Romloader:
		if err := m.loader.HandleRomloader(frame); err != nil {
			return err
		}
	case framer.HDLC:
		m.dispatch(frame)
	}

	if m.loader.State() == loader.Error {
		return fmt.Errorf("boot failed: %w", m.loader.Err())
	}
	return nil
}

// dispatch routes a complete HDLC frame by its DLCI. A well-formed frame
// arriving before any bootloader prompt means the phone still runs layer1
// from an earlier session; the loader adopts it and the frame is relayed.
func (m *Modem) dispatch(frame []byte) {
	if !hdlc.IsFrame(frame) {
		m.logger.Debug("dropping malformed hdlc frame", "frame", fmt.Sprintf("% x", frame))
		return
	}
	if !m.loader.Adopt(frame) {
		m.logger.Debug("dropping hdlc frame during boot", "state", m.loader.State(), "len", len(frame))
		return
	}

	payload := hdlc.Decode(frame)
	switch dlci := hdlc.Channel(frame); dlci {
	case hdlc.L1AL23:
		if m.config.forwarder == nil {
			return
		}
		if err := m.config.forwarder.Forward(payload); err != nil {
			m.logger.Warn("forward l1a_l23 frame", "error", err)
		}
	case hdlc.Console:
		if m.config.onConsole != nil {
			m.config.onConsole(string(payload))
		}
	default:
		m.logger.Warn("dropping frame on unknown dlci", "dlci", int(dlci), "len", len(payload))
	}
}
