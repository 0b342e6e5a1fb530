package syncmark

import "github.com/banshee-data/fluxrecovery/internal/flux/bitstream"

// Raw 16-bit MFM sync words.
const (
	// PatternA1 is 0xA1 with the clock bit between data bits 4 and 5
	// suppressed; it precedes ID and data fields.
	PatternA1 uint16 = 0x4489
	// PatternC2 is 0xC2 with a suppressed clock; it precedes index marks.
	PatternC2 uint16 = 0x5224
	// PatternA1Decayed is 0xA1 with its clock intact, as seen when a worn
	// mark has lost the violation.
	PatternA1Decayed uint16 = 0x44A9
)

// Gap filler and mark bytes.
const (
	ByteA1 byte = 0xA1
	ByteC2 byte = 0xC2
)

var gapBytes = [...]byte{0x4E, 0x00, 0xFF}

func isGapByte(b byte) bool {
	for _, g := range gapBytes {
		if b == g {
			return true
		}
	}
	return false
}

// DecodeMFM extracts the eight data bits of a raw MFM word (the odd
// positions counting from the MSB).
func DecodeMFM(word uint16) byte {
	var b byte
	for i := 0; i < 8; i++ {
		b <<= 1
		b |= byte(word>>(14-2*i)) & 1
	}
	return b
}

// EncodeMFM encodes b with standard clocking. prevBit is the last data bit
// written before b.
func EncodeMFM(b byte, prevBit uint8) uint16 {
	var w uint16
	prev := prevBit & 1
	for i := 7; i >= 0; i-- {
		d := (b >> uint(i)) & 1
		var c uint8
		if prev == 0 && d == 0 {
			c = 1
		}
		w = w<<2 | uint16(c)<<1 | uint16(d)
		prev = d
	}
	return w
}

// HasMissingClock reports whether word contains a clock bit of zero where
// MFM rules require a one (both neighbouring data bits zero).
func HasMissingClock(word uint16, prevDataBit uint8) bool {
	prev := prevDataBit & 1
	for i := 0; i < 8; i++ {
		c := uint8(word>>(15-2*i)) & 1
		d := uint8(word>>(14-2*i)) & 1
		if prev == 0 && d == 0 && c == 0 {
			return true
		}
		prev = d
	}
	return false
}

// MFMWriter builds a raw MFM bit stream, tracking the last data bit so
// consecutive bytes are clocked correctly.
type MFMWriter struct {
	w    *bitstream.Writer
	prev uint8
}

// NewMFMWriter returns a writer holding at most capacity raw bits.
func NewMFMWriter(capacity int) *MFMWriter {
	return &MFMWriter{w: bitstream.NewWriter(capacity)}
}

func (m *MFMWriter) writeWord(w uint16) {
	for i := 15; i >= 0; i-- {
		m.w.WriteBit(uint8(w>>uint(i)) & 1)
	}
	m.prev = uint8(w) & 1
}

// WriteByte appends one encoded data byte.
func (m *MFMWriter) WriteByte(b byte) error {
	m.writeWord(EncodeMFM(b, m.prev))
	return nil
}

// WriteBytes appends each byte of data.
func (m *MFMWriter) WriteBytes(data []byte) {
	for _, b := range data {
		m.writeWord(EncodeMFM(b, m.prev))
	}
}

// WriteRepeat appends n copies of b.
func (m *MFMWriter) WriteRepeat(b byte, n int) {
	for i := 0; i < n; i++ {
		m.writeWord(EncodeMFM(b, m.prev))
	}
}

// WriteSync appends a raw sync word verbatim.
func (m *MFMWriter) WriteSync(pattern uint16) {
	m.writeWord(pattern)
}

// Bits returns the packed stream and its length in bits.
func (m *MFMWriter) Bits() ([]byte, int) { return m.w.Bytes(), m.w.Len() }
