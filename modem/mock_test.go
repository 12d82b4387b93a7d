package modem_test

import (
	"io"

	gomock "go.uber.org/mock/gomock"
	"i4.energy/across/osmocon/modem"
)

var (
	prompt1 = []byte{0x1b, 0xf6, 0x02, 0x00, 0x41, 0x01, 0x40}
	prompt2 = []byte{0x1b, 0xf6, 0x02, 0x00, 0x41, 0x02, 0x43}
	dnload  = []byte{0x1b, 0xf6, 0x02, 0x00, 0x52, 0x01, 0x53}
	ack     = []byte{0x1b, 0xf6, 0x02, 0x00, 0x41, 0x03, 0x42}
	nack    = []byte{0x1b, 0xf6, 0x02, 0x00, 0x45, 0x53, 0x16}
)

// openMockCalls are the calls New makes on a fresh port.
func openMockCalls(dialer *modem.MockDialer, port *modem.MockSerialPort) []any {
	return []any{
		dialer.EXPECT().Dial(gomock.Any()).Return(port, nil),
		port.EXPECT().SetBaudRate(modem.DefaultBaudRate).Return(nil),
	}
}

// MockSequenceBuilder scripts a conversation with the phone. Reads and
// host actions are recorded as two separate ordered chains; each phone
// packet is only returned by Read after the host reacted to the previous
// one, the way a real phone waits for its peer.
type MockSequenceBuilder struct {
	port   *modem.MockSerialPort
	reads  []any
	writes []any
	turn   chan struct{}
}

func NewMockSequence(port *modem.MockSerialPort) *MockSequenceBuilder {
	b := &MockSequenceBuilder{
		port: port,
		turn: make(chan struct{}, 1),
	}
	b.turn <- struct{}{}
	return b
}

func (b *MockSequenceBuilder) pass() {
	b.turn <- struct{}{}
}

func (b *MockSequenceBuilder) phone(pkt []byte) {
	b.reads = append(b.reads,
		b.port.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
			<-b.turn
			return copy(p, pkt), nil
		}),
	)
}

func (b *MockSequenceBuilder) Prompt1() *MockSequenceBuilder {
	b.phone(prompt1)
	b.writes = append(b.writes,
		b.port.EXPECT().Write(dnload).DoAndReturn(func(p []byte) (int, error) {
			b.pass()
			return len(p), nil
		}),
	)
	return b
}

func (b *MockSequenceBuilder) Prompt2() *MockSequenceBuilder {
	b.phone(prompt2)
	b.writes = append(b.writes,
		b.port.EXPECT().WriteAsync(gomock.Any()).Return(nil),
		b.port.EXPECT().AwaitAsyncWrite().DoAndReturn(func() error {
			b.pass()
			return nil
		}),
	)
	return b
}

func (b *MockSequenceBuilder) Ack() *MockSequenceBuilder {
	b.phone(ack)
	b.writes = append(b.writes,
		b.port.EXPECT().SetBaudRate(19200).DoAndReturn(func(int) error {
			b.pass()
			return nil
		}),
	)
	return b
}

// Nack rejects the chainloader; the host does not answer.
func (b *MockSequenceBuilder) Nack() *MockSequenceBuilder {
	b.phone(nack)
	return b
}

// Hangup ends the stream once the host answered the last packet.
func (b *MockSequenceBuilder) Hangup() *MockSequenceBuilder {
	b.reads = append(b.reads,
		b.port.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
			<-b.turn
			return 0, io.EOF
		}),
	)
	return b
}

// Build returns the read chain and the host action chain.
func (b *MockSequenceBuilder) Build() (reads, writes []any) {
	return b.reads, b.writes
}
