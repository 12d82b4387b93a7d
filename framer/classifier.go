// Package framer splits the raw byte stream of a Calypso serial line into
// bootloader packets, romloader packets and HDLC frames.
package framer

import (
	"time"
)

// DefaultTimeout is the receive gap after which a partial frame is dropped.
const DefaultTimeout = 1000 * time.Millisecond

const (
	bootloaderLead = 0x1b
	hdlcFlag       = 0x7e

	// BootloaderLen is the fixed size of a bootloader packet.
	BootloaderLen = 7
)

// Kind is the wire format of the frame currently being accumulated.
type Kind int

const (
	None Kind = iota
	Bootloader
	Romloader
	HDLC
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case Bootloader:
		return "bootloader"
	case Romloader:
		return "romloader"
	case HDLC:
		return "hdlc"
	default:
		return "unknown"
	}
}

// Handler receives each completed frame. The frame slice is owned by the
// handler. A non-nil error is returned unchanged from Feed.
type Handler func(kind Kind, frame []byte) error

type Option func(*Classifier)

// WithTimeout sets the resynchronisation gap. Zero or negative values
// disable the gap rule.
func WithTimeout(d time.Duration) Option {
	return func(c *Classifier) {
		c.timeout = d
	}
}

// WithCapacity sets the ring buffer size.
func WithCapacity(n int) Option {
	return func(c *Classifier) {
		c.ring = NewRing(n)
	}
}

// Classifier is not safe for concurrent use; it belongs to the serial task.
type Classifier struct {
	handler Handler
	ring    *Ring
	kind    Kind
	timeout time.Duration
	last    time.Time
}

func New(handler Handler, opts ...Option) (*Classifier, error) {
	if handler == nil {
		return nil, ErrNoHandler
	}

	c := &Classifier{
		handler: handler,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.ring == nil {
		c.ring = NewRing(DefaultRingSize)
	}
	return c, nil
}

// Kind returns the classification of the partial frame, None between frames.
func (c *Classifier) Kind() Kind {
	return c.kind
}

// Buffered returns the number of bytes of the partial frame.
func (c *Classifier) Buffered() int {
	return c.ring.Len()
}

// Reset drops any partial frame.
func (c *Classifier) Reset() {
	c.kind = None
	c.ring.Reset()
}

// Feed consumes one read from the serial line received at the given time.
// If more than the timeout elapsed since the previous read, the partial
// frame is discarded before the new bytes are looked at.
func (c *Classifier) Feed(chunk []byte, at time.Time) error {
	if c.timeout > 0 && !c.last.IsZero() && at.Sub(c.last) > c.timeout {
		c.Reset()
	}
	c.last = at

	for _, b := range chunk {
		if c.kind == None {
			switch b {
			case bootloaderLead:
				c.kind = Bootloader
			case hdlcFlag:
				c.kind = HDLC
			case '<', '>':
				c.kind = Romloader
			default:
				continue
			}
		}

		if err := c.ring.WriteByte(b); err != nil {
			c.Reset()
			return err
		}

		if !c.complete(b) {
			continue
		}

		kind := c.kind
		frame := c.ring.Take()
		c.kind = None
		if err := c.handler(kind, frame); err != nil {
			return err
		}
	}
	return nil
}

func (c *Classifier) complete(last byte) bool {
	n := c.ring.Len()
	switch c.kind {
	case Bootloader:
		return n == BootloaderLen
	case HDLC:
		return n > 1 && last == hdlcFlag
	case Romloader:
		return n >= 2 && n == romloaderLen(c.ring.At(1))
	default:
		return false
	}
}

// romloaderLen returns the packet length implied by the type byte.
func romloaderLen(typ byte) int {
	switch typ {
	case 'c', 'C':
		return 3
	case 'p':
		return 4
	default:
		return 2
	}
}
