// Package bitstream holds packed, MSB-first bit buffers shared by the
// clock recovery, sync detection and fusion stages.
package bitstream

// ByteLen returns the number of bytes needed to hold n bits.
func ByteLen(n int) int {
	if n <= 0 {
		return 0
	}
	return (n + 7) / 8
}

// Get returns bit i of buf (0 or 1). Out-of-range reads return 0.
func Get(buf []byte, i int) uint8 {
	if i < 0 || i/8 >= len(buf) {
		return 0
	}
	return (buf[i/8] >> (7 - uint(i%8))) & 1
}

// Set writes bit i of buf. Out-of-range writes are ignored.
func Set(buf []byte, i int, v uint8) {
	if i < 0 || i/8 >= len(buf) {
		return
	}
	mask := byte(1) << (7 - uint(i%8))
	if v != 0 {
		buf[i/8] |= mask
	} else {
		buf[i/8] &^= mask
	}
}

// FromString parses a string of '0' and '1' characters into a packed buffer.
// Any other character is skipped. Mostly useful for fixtures.
func FromString(s string) ([]byte, int) {
	n := 0
	for _, c := range s {
		if c == '0' || c == '1' {
			n++
		}
	}
	buf := make([]byte, ByteLen(n))
	i := 0
	for _, c := range s {
		switch c {
		case '1':
			Set(buf, i, 1)
			i++
		case '0':
			i++
		}
	}
	return buf, n
}

// String renders the first n bits of buf as '0'/'1' characters.
func String(buf []byte, n int) string {
	if n > len(buf)*8 {
		n = len(buf) * 8
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = '0' + Get(buf, i)
	}
	return string(out)
}

// Writer appends bits to a buffer with a hard capacity. Bits written past
// the capacity are dropped and counted rather than growing the buffer.
type Writer struct {
	buf     []byte
	n       int
	limit   int
	dropped int
}

// NewWriter returns a Writer that holds at most capacity bits.
func NewWriter(capacity int) *Writer {
	if capacity < 0 {
		capacity = 0
	}
	return &Writer{
		buf:   make([]byte, 0, ByteLen(capacity)),
		limit: capacity,
	}
}

// WriteBit appends one bit. It reports false when the bit was dropped.
func (w *Writer) WriteBit(v uint8) bool {
	if w.n >= w.limit {
		w.dropped++
		return false
	}
	if w.n%8 == 0 {
		w.buf = append(w.buf, 0)
	}
	if v != 0 {
		w.buf[w.n/8] |= 1 << (7 - uint(w.n%8))
	}
	w.n++
	return true
}

// Len returns the number of bits held.
func (w *Writer) Len() int { return w.n }

// Dropped returns how many bits were rejected for lack of capacity.
func (w *Writer) Dropped() int { return w.dropped }

// Bytes returns the packed buffer. The final byte is zero padded.
func (w *Writer) Bytes() []byte { return w.buf }

// Reset empties the writer, keeping its capacity.
func (w *Writer) Reset() {
	w.buf = w.buf[:0]
	w.n = 0
	w.dropped = 0
}
