package framer

// DefaultRingSize matches the largest read the serial loop performs.
const DefaultRingSize = 4096

// Ring is a fixed-capacity circular byte buffer with explicit read and
// write cursors. It never grows and never overwrites unread data: writing
// into a full ring fails with ErrOverflow.
type Ring struct {
	buf   []byte
	read  int
	write int
	n     int
}

// NewRing allocates a ring holding up to size bytes.
func NewRing(size int) *Ring {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Ring{buf: make([]byte, size)}
}

// WriteByte appends b. It implements io.ByteWriter.
func (r *Ring) WriteByte(b byte) error {
	if r.n == len(r.buf) {
		return ErrOverflow
	}
	r.buf[r.write] = b
	r.write = (r.write + 1) % len(r.buf)
	r.n++
	return nil
}

// Len returns the number of unread bytes.
func (r *Ring) Len() int {
	return r.n
}

// Cap returns the ring capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// At returns the i-th unread byte without consuming it.
func (r *Ring) At(i int) byte {
	return r.buf[(r.read+i)%len(r.buf)]
}

// Take copies out every unread byte, handling wraparound, and marks them
// consumed.
func (r *Ring) Take() []byte {
	out := make([]byte, r.n)
	if r.read+r.n <= len(r.buf) {
		copy(out, r.buf[r.read:r.read+r.n])
	} else {
		k := copy(out, r.buf[r.read:])
		copy(out[k:], r.buf[:r.n-k])
	}
	r.read = r.write
	r.n = 0
	return out
}

// Reset discards unread bytes.
func (r *Ring) Reset() {
	r.read = r.write
	r.n = 0
}
