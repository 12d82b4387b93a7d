package modem

import (
	"bytes"
	"context"
	"io"
	"sync"
)

// TestPort is a test helper that simulates a blocking serial line using channels.
// This is needed because the Loop's reader goroutine continuously reads from the port,
// and we need reads to block until data is available (like a real serial port would).
type TestPort struct {
	mu       sync.Mutex
	readChan chan []byte
	closed   bool
	writes   [][]byte
	bauds    []int
}

// NewTestPort creates a new test port for testing.
// Exported for use in tests.
func NewTestPort() *TestPort {
	return &TestPort{
		readChan: make(chan []byte, 10),
	}
}

func (t *TestPort) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, io.ErrClosedPipe
	}
	t.writes = append(t.writes, bytes.Clone(p))
	return len(p), nil
}

func (t *TestPort) Read(p []byte) (n int, err error) {
	data, ok := <-t.readChan
	if !ok {
		return 0, io.EOF
	}
	return copy(p, data), nil
}

func (t *TestPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.readChan)
	return nil
}

func (t *TestPort) SetBaudRate(baud int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bauds = append(t.bauds, baud)
	return nil
}

func (t *TestPort) WriteAsync(p []byte) error {
	_, err := t.Write(p)
	return err
}

func (t *TestPort) AwaitAsyncWrite() error {
	return nil
}

// SendData queues data to be read by the port.
// This simulates receiving data from the phone.
func (t *TestPort) SendData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.readChan <- data
	}
}

// Writes returns a copy of everything written so far, one entry per call.
func (t *TestPort) Writes() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]byte(nil), t.writes...)
}

// LastWrite returns the most recent write or nil.
func (t *TestPort) LastWrite() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.writes) == 0 {
		return nil
	}
	return t.writes[len(t.writes)-1]
}

// BaudRates returns every rate passed to SetBaudRate.
func (t *TestPort) BaudRates() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]int(nil), t.bauds...)
}

// TestDialer hands out a fixed port.
type TestDialer struct {
	Port SerialPort
}

func (d TestDialer) Dial(ctx context.Context) (SerialPort, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.Port, nil
}
