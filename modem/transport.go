package modem

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"go.bug.st/serial"
)

//go:generate go tool mockgen -source=transport.go -destination=mock_transport.go -package=modem

// DefaultBaudRate is the rate the Calypso bootloader talks at.
const DefaultBaudRate = 115200

// SerialPort represents an opened serial line to a Calypso phone.
//
// Besides the byte stream it exposes the operations the boot sequence needs:
// changing the line speed on the fly and starting a large write without
// blocking the reader. Typical implementations are a USB serial adapter
// opened through go.bug.st/serial or in-memory fakes used for testing.
type SerialPort interface {
	io.ReadWriteCloser

	// SetBaudRate reconfigures the line speed. Bytes already written are
	// not guaranteed to have left the port.
	SetBaudRate(baud int) error

	// WriteAsync starts writing p in the background and returns
	// immediately. Only one asynchronous write may be pending.
	WriteAsync(p []byte) error

	// AwaitAsyncWrite blocks until the pending asynchronous write has been
	// transmitted and returns its error. It returns nil when nothing is
	// pending.
	AwaitAsyncWrite() error
}

// Dialer opens a SerialPort.
//
// Dialer abstracts how the serial line is created (a local tty, a test
// double) and is used during Modem construction only.
type Dialer interface {
	// Dial creates and returns an opened SerialPort. It should respect
	// cancellation of the context before blocking operations.
	Dial(ctx context.Context) (SerialPort, error)
}

// SerialDialer opens a local serial device with go.bug.st/serial.
type SerialDialer struct {
	// PortName is the device path, for example /dev/ttyUSB0.
	PortName string
	// Mode overrides the default 115200 8N1 line settings.
	Mode *serial.Mode
}

func (d SerialDialer) Dial(ctx context.Context) (SerialPort, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if d.PortName == "" {
		return nil, ErrNoPortName
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := serial.Mode{
		BaudRate: DefaultBaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	if d.Mode != nil {
		mode = *d.Mode
	}

	port, err := serial.Open(d.PortName, &mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", d.PortName, err)
	}
	return &serialPort{port: port, mode: mode}, nil
}

// serialPort adapts a go.bug.st/serial port to SerialPort.
type serialPort struct {
	port    serial.Port
	mode    serial.Mode
	pending chan error
}

func (p *serialPort) Read(b []byte) (int, error) {
	return p.port.Read(b)
}

func (p *serialPort) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

func (p *serialPort) Close() error {
	return p.port.Close()
}

func (p *serialPort) SetBaudRate(baud int) error {
	p.mode.BaudRate = baud
	if err := p.port.SetMode(&p.mode); err != nil {
		return fmt.Errorf("set baud rate %d: %w", baud, err)
	}
	return nil
}

func (p *serialPort) WriteAsync(b []byte) error {
	if p.pending != nil {
		return ErrAsyncWritePending
	}

	buf := bytes.Clone(b)
	done := make(chan error, 1)
	p.pending = done
	go func() {
		_, err := p.port.Write(buf)
		if err == nil {
			err = p.port.Drain()
		}
		done <- err
	}()
	return nil
}

func (p *serialPort) AwaitAsyncWrite() error {
	if p.pending == nil {
		return nil
	}
	err := <-p.pending
	p.pending = nil
	return err
}

// lockedPort serialises writes coming from the serial loop, the boot
// beacon and the bridge.
type lockedPort struct {
	mu   sync.Mutex
	port SerialPort
}

func (p *lockedPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.port.Write(b)
}

func (p *lockedPort) SetBaudRate(baud int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.port.SetBaudRate(baud)
}

func (p *lockedPort) WriteAsync(b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.port.WriteAsync(b)
}

// AwaitAsyncWrite holds the lock until the pending write drained so no
// other write interleaves with it.
func (p *lockedPort) AwaitAsyncWrite() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.port.AwaitAsyncWrite()
}
