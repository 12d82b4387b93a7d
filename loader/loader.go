// Package loader uploads an application image into a Calypso phone.
//
// The phone's factory bootloader is talked into accepting a small
// chainloader, which starts the romloader. The romloader then receives the
// application block by block, verifies a checksum and branches into it.
// A Loader is single use: any protocol violation moves it into the
// absorbing Error state and a new Loader must be built to retry.
package loader

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBeaconInterval is how often the ident request is repeated while
// the romloader has not answered yet.
const DefaultBeaconInterval = 50 * time.Millisecond

// Port is the part of a serial port the loader writes to. Implementations
// must allow Write to be called from the beacon goroutine concurrently with
// the packet handlers.
type Port interface {
	Write(p []byte) (int, error)
	SetBaudRate(baud int) error
	// WriteAsync starts a write and returns without waiting for the
	// bytes to leave the port.
	WriteAsync(p []byte) error
	// AwaitAsyncWrite blocks until the last WriteAsync has drained.
	AwaitAsyncWrite() error
}

type Option func(*Loader)

func WithBeaconInterval(d time.Duration) Option {
	return func(l *Loader) {
		l.beaconInterval = d
	}
}

func WithLoadAddress(addr uint32) Option {
	return func(l *Loader) {
		l.loadAddress = addr
	}
}

// WithStatusCallback registers fn to be called synchronously from the
// packet handlers.
func WithStatusCallback(fn func(Status)) Option {
	return func(l *Loader) {
		l.onStatus = fn
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

type Loader struct {
	port        Port
	payload     []byte
	chainloader []byte

	logger         *slog.Logger
	onStatus       func(Status)
	beaconInterval time.Duration
	loadAddress    uint32

	// state is read by the beacon goroutine.
	state atomic.Int32
	err   error

	maxBlock int
	dest     uint32
	cursor   int
	lastLen  int
	lastSum  byte
	checksum byte

	beaconCancel context.CancelFunc
	beaconWG     sync.WaitGroup
}

// New prepares an upload of payload for a phone of the given variant. The
// loader starts in Prompt1 and does not write anything until the first
// PROMPT1 packet arrives.
func New(port Port, variant Variant, payload []byte, opts ...Option) (*Loader, error) {
	if port == nil {
		return nil, ErrNoPort
	}
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}
	chain, err := BuildChainloader(variant)
	if err != nil {
		return nil, err
	}

	l := &Loader{
		port:           port,
		payload:        payload,
		chainloader:    chain,
		logger:         slog.Default(),
		beaconInterval: DefaultBeaconInterval,
		loadAddress:    DefaultLoadAddress,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("component", "loader", "variant", variant.String())
	l.state.Store(int32(Prompt1))
	return l, nil
}

func (l *Loader) State() State {
	return State(l.state.Load())
}

// Running reports whether the application has been started and the serial
// line now carries HDLC traffic.
func (l *Loader) Running() bool {
	return l.State() == AppRunning
}

// Err returns the protocol violation that stopped the loader, if any.
func (l *Loader) Err() error {
	return l.err
}

// Status returns the current progress.
func (l *Loader) Status() Status {
	return Status{State: l.State(), BytesSent: l.cursor, BytesTotal: len(l.payload)}
}

// Close stops the beacon goroutine if it is running. It must not be called
// concurrently with the packet handlers.
func (l *Loader) Close() error {
	l.stopBeacon()
	return nil
}

// Adopt handles an HDLC frame seen before the application was started. In
// Prompt1 the phone is already running layer1 from an earlier session, so the
// loader moves straight to AppRunning. Anywhere else in the boot sequence the
// frame is a protocol violation. It reports whether the loader is running.
func (l *Loader) Adopt(frame []byte) bool {
	switch l.State() {
	case AppRunning:
		return true
	case Error:
		return false
	case Prompt1:
		l.logger.Info("adopted running application")
		l.setState(AppRunning)
		return true
	default:
		l.fail(frame, "hdlc frame during boot")
		return false
	}
}

// HandleBootloader processes a seven byte bootloader packet. The returned
// error reports transport failures only.
func (l *Loader) HandleBootloader(pkt []byte) error {
	switch state := l.State(); {
	case state == Error:
		return nil

	case state == Prompt1 && bytes.Equal(pkt, prompt1):
		if _, err := l.port.Write(dnload); err != nil {
			return fmt.Errorf("write dnload: %w", err)
		}
		l.setState(Prompt2)

	case state == Prompt2 && bytes.Equal(pkt, prompt2):
		if err := l.port.WriteAsync(l.chainloader); err != nil {
			return fmt.Errorf("write chainloader: %w", err)
		}
		l.setState(Chainloader)
		if err := l.port.AwaitAsyncWrite(); err != nil {
			return fmt.Errorf("drain chainloader: %w", err)
		}

	case state == Chainloader && bytes.Equal(pkt, ack):
		if err := l.port.SetBaudRate(identBaud); err != nil {
			return fmt.Errorf("switch to %d baud: %w", identBaud, err)
		}
		l.setState(Ident)
		l.startBeacon()

	case state == Chainloader && bytes.Equal(pkt, nack):
		l.fail(pkt, "chainloader rejected (NACK)")

	case state == Chainloader && bytes.Equal(pkt, nackMagic):
		l.fail(pkt, "chainloader rejected (NACK_MAGIC)")

	default:
		l.fail(pkt, "unexpected bootloader packet")
	}
	return nil
}

// HandleRomloader processes a romloader reply. The returned error reports
// transport failures only.
func (l *Loader) HandleRomloader(pkt []byte) error {
	switch state := l.State(); {
	case state == Error:
		return nil

	case state == Ident && bytes.Equal(pkt, romIdentAck):
		if _, err := l.port.Write(romParam); err != nil {
			return fmt.Errorf("write param request: %w", err)
		}
		l.setState(Param)

	case state == Param && len(pkt) == 4 && pkt[0] == '>' && pkt[1] == 'p':
		return l.handleParamAck(pkt)

	case state == DownloadAppBlocks && bytes.Equal(pkt, romBlockAck):
		return l.handleBlockAck()

	case state == AppChecksum && len(pkt) == 3 && pkt[0] == '>' && pkt[1] == 'c':
		if pkt[2] != l.checksum {
			l.fail(pkt, fmt.Sprintf("checksum mismatch: phone %#02x, local %#02x", pkt[2], l.checksum))
			return nil
		}
		if _, err := l.port.Write(romBranch); err != nil {
			return fmt.Errorf("write branch: %w", err)
		}
		l.setState(Branch)

	case state == AppChecksum && len(pkt) >= 2 && pkt[0] == '>' && pkt[1] == 'C':
		l.fail(pkt, "checksum rejected")

	case state == Branch && bytes.Equal(pkt, romBranchAck):
		l.setState(AppRunning)
		l.logger.Info("application running", "bytes", len(l.payload))

	default:
		l.fail(pkt, "unexpected romloader packet")
	}
	return nil
}

func (l *Loader) handleParamAck(pkt []byte) error {
	maxBlock := int(binary.LittleEndian.Uint16(pkt[2:4]))
	if maxBlock <= blockHeaderLen {
		l.fail(pkt, fmt.Sprintf("max block size %d leaves no room for data", maxBlock))
		return nil
	}
	if err := l.port.SetBaudRate(downloadBaud); err != nil {
		return fmt.Errorf("switch to %d baud: %w", downloadBaud, err)
	}

	l.maxBlock = maxBlock
	l.dest = l.loadAddress
	l.cursor = 0
	l.checksum = 0
	l.logger.Debug("romloader parameters", "max_block", maxBlock)
	l.setState(DownloadAppBlocks)
	return l.sendBlock()
}

func (l *Loader) handleBlockAck() error {
	l.cursor += l.lastLen
	l.checksum += l.lastSum
	l.report()

	if l.cursor < len(l.payload) {
		return l.sendBlock()
	}

	l.setState(AppChecksum)
	if _, err := l.port.Write([]byte{'<', 'c', ^l.checksum}); err != nil {
		return fmt.Errorf("write checksum: %w", err)
	}
	return nil
}

// sendBlock writes the block starting at the payload cursor. Its checksum
// contribution is applied when the phone acknowledges it.
func (l *Loader) sendBlock() error {
	n := min(len(l.payload)-l.cursor, l.maxBlock-blockHeaderLen)

	block := make([]byte, blockHeaderLen+n)
	block[0], block[1], block[2], block[3] = '<', 'w', 0x01, 0x01
	binary.BigEndian.PutUint16(block[4:6], uint16(n))
	binary.BigEndian.PutUint32(block[6:10], l.dest)
	copy(block[blockHeaderLen:], l.payload[l.cursor:l.cursor+n])

	if _, err := l.port.Write(block); err != nil {
		return fmt.Errorf("write block at %#x: %w", l.dest, err)
	}

	sum := byte(blockSumSeed)
	for _, b := range block[blockSumStart:] {
		sum += b
	}
	l.lastSum = ^sum
	l.lastLen = n
	l.dest += uint32(n)
	return nil
}

func (l *Loader) fail(pkt []byte, reason string) {
	l.err = &ProtocolError{State: l.State(), Packet: bytes.Clone(pkt), Reason: reason}
	l.logger.Warn("boot failed", "error", l.err)
	l.setState(Error)
}

func (l *Loader) setState(s State) {
	prev := State(l.state.Swap(int32(s)))
	if prev != s {
		l.logger.Debug("state change", "from", prev, "to", s)
	}
	if s != Ident {
		l.stopBeacon()
	}
	l.report()
}

func (l *Loader) report() {
	if l.onStatus != nil {
		l.onStatus(l.Status())
	}
}

func (l *Loader) startBeacon() {
	ctx, cancel := context.WithCancel(context.Background())
	l.beaconCancel = cancel
	l.beaconWG.Add(1)
	go func() {
		defer l.beaconWG.Done()
		l.beacon(ctx)
	}()
}

func (l *Loader) stopBeacon() {
	if l.beaconCancel == nil {
		return
	}
	l.beaconCancel()
	l.beaconCancel = nil
	l.beaconWG.Wait()
}

// beacon repeats the ident request until the romloader answers.
func (l *Loader) beacon(ctx context.Context) {
	ticker := time.NewTicker(l.beaconInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if l.State() != Ident {
			return
		}
		if _, err := l.port.Write(romIdent); err != nil {
			l.logger.Debug("write ident beacon", "error", err)
		}
	}
}
