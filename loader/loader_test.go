package loader_test

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"i4.energy/across/osmocon/loader"
)

var (
	prompt1   = []byte{0x1b, 0xf6, 0x02, 0x00, 0x41, 0x01, 0x40}
	prompt2   = []byte{0x1b, 0xf6, 0x02, 0x00, 0x41, 0x02, 0x43}
	dnload    = []byte{0x1b, 0xf6, 0x02, 0x00, 0x52, 0x01, 0x53}
	ack       = []byte{0x1b, 0xf6, 0x02, 0x00, 0x41, 0x03, 0x42}
	nack      = []byte{0x1b, 0xf6, 0x02, 0x00, 0x45, 0x53, 0x16}
	nackMagic = []byte{0x1b, 0xf6, 0x02, 0x00, 0x41, 0x03, 0x57}

	identAck  = []byte(">i")
	paramAck  = []byte{'>', 'p', 64, 0}
	blockAck  = []byte(">w")
	branchAck = []byte(">b")
)

type fakePort struct {
	mu     sync.Mutex
	writes [][]byte
	bauds  []int
	async  [][]byte
	err    error
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return 0, p.err
	}
	p.writes = append(p.writes, bytes.Clone(b))
	return len(b), nil
}

func (p *fakePort) SetBaudRate(baud int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bauds = append(p.bauds, baud)
	return nil
}

func (p *fakePort) WriteAsync(b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.async = append(p.async, bytes.Clone(b))
	return nil
}

func (p *fakePort) AwaitAsyncWrite() error {
	return nil
}

func (p *fakePort) Writes() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.writes...)
}

func (p *fakePort) Last() []byte {
	w := p.Writes()
	if len(w) == 0 {
		return nil
	}
	return w[len(w)-1]
}

func (p *fakePort) count(prefix string) int {
	n := 0
	for _, w := range p.Writes() {
		if bytes.HasPrefix(w, []byte(prefix)) {
			n++
		}
	}
	return n
}

type statusLog struct {
	mu     sync.Mutex
	states []loader.State
	last   loader.Status
}

func (s *statusLog) record(st loader.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.states); n == 0 || s.states[n-1] != st.State {
		s.states = append(s.states, st.State)
	}
	s.last = st
}

func newLoader(t *testing.T, payload []byte, opts ...loader.Option) (*loader.Loader, *fakePort, *statusLog) {
	t.Helper()

	port := &fakePort{}
	log := &statusLog{}
	opts = append([]loader.Option{
		loader.WithBeaconInterval(time.Hour),
		loader.WithStatusCallback(log.record),
	}, opts...)

	l, err := loader.New(port, loader.C123, payload, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l, port, log
}

// bootToIdent drives a loader through the bootloader stage.
func bootToIdent(t *testing.T, l *loader.Loader) {
	t.Helper()
	require.NoError(t, l.HandleBootloader(prompt1))
	require.NoError(t, l.HandleBootloader(prompt2))
	require.NoError(t, l.HandleBootloader(ack))
	require.Equal(t, loader.Ident, l.State())
}

func payloadOf(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i * 7)
	}
	return p
}

func TestNew(t *testing.T) {
	t.Run("rejects an empty payload", func(t *testing.T) {
		_, err := loader.New(&fakePort{}, loader.C123, nil)
		assert.ErrorIs(t, err, loader.ErrEmptyPayload)
	})

	t.Run("rejects an unknown variant", func(t *testing.T) {
		_, err := loader.New(&fakePort{}, loader.Variant(42), []byte{1})
		assert.ErrorIs(t, err, loader.ErrUnknownVariant)
	})

	t.Run("rejects a nil port", func(t *testing.T) {
		_, err := loader.New(nil, loader.C123, []byte{1})
		assert.ErrorIs(t, err, loader.ErrNoPort)
	})

	t.Run("starts in prompt1 without writing", func(t *testing.T) {
		l, port, _ := newLoader(t, []byte{1})
		assert.Equal(t, loader.Prompt1, l.State())
		assert.Empty(t, port.Writes())
	})
}

func TestHappyPath(t *testing.T) {
	const size = 130
	payload := payloadOf(size)
	l, port, log := newLoader(t, payload)

	require.NoError(t, l.HandleBootloader(prompt1))
	assert.Equal(t, dnload, port.Last())

	require.NoError(t, l.HandleBootloader(prompt2))
	chain, err := loader.BuildChainloader(loader.C123)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{chain}, port.async)

	require.NoError(t, l.HandleBootloader(ack))
	require.NoError(t, l.HandleRomloader(identAck))
	assert.Equal(t, []byte{'<', 'p', 0, 0, 0, 4, 0, 0, 0, 0, 0}, port.Last())

	require.NoError(t, l.HandleRomloader(paramAck))
	assert.Equal(t, []int{19200, 115200}, port.bauds)

	for l.State() == loader.DownloadAppBlocks {
		require.NoError(t, l.HandleRomloader(blockAck))
	}
	require.Equal(t, loader.AppChecksum, l.State())

	var blocks [][]byte
	for _, w := range port.Writes() {
		if bytes.HasPrefix(w, []byte("<w")) {
			blocks = append(blocks, w)
		}
	}
	// ceil(130 / (64 - 10))
	require.Len(t, blocks, 3)

	var (
		sum     byte
		data    []byte
		address = loader.DefaultLoadAddress
	)
	for _, b := range blocks {
		n := int(b[4])<<8 | int(b[5])
		assert.Equal(t, []byte{'<', 'w', 1, 1}, b[:4])
		assert.Len(t, b, 10+n)
		assert.LessOrEqual(t, len(b), 64)
		assert.Equal(t, address, uint32(b[6])<<24|uint32(b[7])<<16|uint32(b[8])<<8|uint32(b[9]))

		blockSum := byte(5)
		for _, c := range b[5:] {
			blockSum += c
		}
		sum += ^blockSum
		data = append(data, b[10:]...)
		address += uint32(n)
	}
	assert.Equal(t, payload, data)

	cmd := port.Last()
	require.Equal(t, []byte{'<', 'c', ^sum}, cmd)

	require.NoError(t, l.HandleRomloader([]byte{'>', 'c', sum}))
	assert.Equal(t, []byte{'<', 'b', 0x00, 0x82, 0x00, 0x00}, port.Last())

	require.NoError(t, l.HandleRomloader(branchAck))
	assert.True(t, l.Running())
	assert.NoError(t, l.Err())

	want := []loader.State{
		loader.Prompt2,
		loader.Chainloader,
		loader.Ident,
		loader.Param,
		loader.DownloadAppBlocks,
		loader.AppChecksum,
		loader.Branch,
		loader.AppRunning,
	}
	assert.Equal(t, want, log.states)
	assert.Equal(t, loader.Status{State: loader.AppRunning, BytesSent: size, BytesTotal: size}, log.last)
}

func TestProtocolViolations(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, l *loader.Loader)
		feed  func(l *loader.Loader) error
	}{
		{
			name:  "prompt2 while waiting for prompt1",
			setup: func(*testing.T, *loader.Loader) {},
			feed:  func(l *loader.Loader) error { return l.HandleBootloader(prompt2) },
		},
		{
			name: "nack during chainloader",
			setup: func(t *testing.T, l *loader.Loader) {
				require.NoError(t, l.HandleBootloader(prompt1))
				require.NoError(t, l.HandleBootloader(prompt2))
			},
			feed: func(l *loader.Loader) error { return l.HandleBootloader(nack) },
		},
		{
			name: "nack magic during chainloader",
			setup: func(t *testing.T, l *loader.Loader) {
				require.NoError(t, l.HandleBootloader(prompt1))
				require.NoError(t, l.HandleBootloader(prompt2))
			},
			feed: func(l *loader.Loader) error { return l.HandleBootloader(nackMagic) },
		},
		{
			name:  "param ack during ident",
			setup: bootToIdent,
			feed:  func(l *loader.Loader) error { return l.HandleRomloader(paramAck) },
		},
		{
			name:  "prompt1 during ident",
			setup: bootToIdent,
			feed:  func(l *loader.Loader) error { return l.HandleBootloader(prompt1) },
		},
		{
			name: "max block without room for data",
			setup: func(t *testing.T, l *loader.Loader) {
				bootToIdent(t, l)
				require.NoError(t, l.HandleRomloader(identAck))
			},
			feed: func(l *loader.Loader) error { return l.HandleRomloader([]byte{'>', 'p', 10, 0}) },
		},
		{
			name: "checksum nack",
			setup: func(t *testing.T, l *loader.Loader) {
				bootToIdent(t, l)
				require.NoError(t, l.HandleRomloader(identAck))
				require.NoError(t, l.HandleRomloader(paramAck))
				require.NoError(t, l.HandleRomloader(blockAck))
			},
			feed: func(l *loader.Loader) error { return l.HandleRomloader([]byte{'>', 'C', 0}) },
		},
		{
			name: "checksum mismatch",
			setup: func(t *testing.T, l *loader.Loader) {
				bootToIdent(t, l)
				require.NoError(t, l.HandleRomloader(identAck))
				require.NoError(t, l.HandleRomloader(paramAck))
				require.NoError(t, l.HandleRomloader(blockAck))
				require.Equal(t, loader.AppChecksum, l.State())
			},
			feed: func(l *loader.Loader) error {
				return l.HandleRomloader([]byte{'>', 'c', 0xa5})
			},
		},
		{
			name:  "hdlc frame during ident",
			setup: bootToIdent,
			feed: func(l *loader.Loader) error {
				l.Adopt([]byte{0x7e, 0x05, 0x03, 0x01, 0x7e})
				return nil
			},
		},
		{
			name: "branch ack during app checksum",
			setup: func(t *testing.T, l *loader.Loader) {
				bootToIdent(t, l)
				require.NoError(t, l.HandleRomloader(identAck))
				require.NoError(t, l.HandleRomloader(paramAck))
				require.NoError(t, l.HandleRomloader(blockAck))
			},
			feed: func(l *loader.Loader) error { return l.HandleRomloader(branchAck) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// A single zero byte fits in one block; its checksum is 0x77.
			l, port, log := newLoader(t, []byte{0x00})
			tt.setup(t, l)

			require.NoError(t, tt.feed(l))
			assert.Equal(t, loader.Error, l.State())

			var perr *loader.ProtocolError
			require.True(t, errors.As(l.Err(), &perr))
			assert.NotEqual(t, loader.Error, perr.State)

			writes := len(port.Writes())
			for _, pkt := range [][]byte{prompt1, prompt2, ack} {
				require.NoError(t, l.HandleBootloader(pkt))
			}
			for _, pkt := range [][]byte{identAck, paramAck, blockAck, branchAck} {
				require.NoError(t, l.HandleRomloader(pkt))
			}
			assert.Equal(t, loader.Error, l.State(), "error state must be absorbing")
			assert.Len(t, port.Writes(), writes, "no writes after error")
			assert.Equal(t, loader.Error, log.states[len(log.states)-1])
		})
	}
}

func TestAdopt(t *testing.T) {
	frame := []byte{0x7e, 0x05, 0x03, 0x01, 0x7e}

	t.Run("a phone already running layer1 is adopted in prompt1", func(t *testing.T) {
		l, port, log := newLoader(t, []byte{1, 2, 3})

		assert.True(t, l.Adopt(frame))
		assert.True(t, l.Running())
		assert.NoError(t, l.Err())
		assert.Empty(t, port.Writes())
		assert.Equal(t, []loader.State{loader.AppRunning}, log.states)
	})

	t.Run("adopting a running application changes nothing", func(t *testing.T) {
		l, _, log := newLoader(t, []byte{1})
		require.True(t, l.Adopt(frame))
		assert.True(t, l.Adopt(frame))
		assert.Equal(t, []loader.State{loader.AppRunning}, log.states)
	})

	t.Run("a failed boot stays failed", func(t *testing.T) {
		l, _, _ := newLoader(t, []byte{1})
		require.NoError(t, l.HandleBootloader(prompt2))
		require.Equal(t, loader.Error, l.State())

		assert.False(t, l.Adopt(frame))
		assert.Equal(t, loader.Error, l.State())
	})

	t.Run("mid-boot frames fail the boot", func(t *testing.T) {
		l, _, _ := newLoader(t, []byte{1})
		require.NoError(t, l.HandleBootloader(prompt1))

		assert.False(t, l.Adopt(frame))
		assert.Equal(t, loader.Error, l.State())

		var perr *loader.ProtocolError
		require.ErrorAs(t, l.Err(), &perr)
		assert.Equal(t, loader.Prompt2, perr.State)
	})
}

func TestBeacon(t *testing.T) {
	port := &fakePort{}
	l, err := loader.New(port, loader.C123, []byte{1}, loader.WithBeaconInterval(5*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	require.NoError(t, l.HandleBootloader(prompt1))
	require.NoError(t, l.HandleBootloader(prompt2))
	assert.Zero(t, port.count("<i"), "no beacon before ack")

	require.NoError(t, l.HandleBootloader(ack))
	assert.Eventually(t, func() bool {
		return port.count("<i") >= 3
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, l.HandleRomloader(identAck))
	sent := port.count("<i")
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, sent, port.count("<i"), "beacon must stop once ident is acknowledged")
}

func TestTransportErrors(t *testing.T) {
	port := &fakePort{err: errors.New("usb gone")}
	l, err := loader.New(port, loader.C123, []byte{1})
	require.NoError(t, err)

	err = l.HandleBootloader(prompt1)
	assert.ErrorContains(t, err, "usb gone")
	assert.Equal(t, loader.Prompt1, l.State())
}
