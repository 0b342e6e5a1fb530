package fusion

import "github.com/banshee-data/fluxrecovery/internal/flux/bitstream"

const (
	// alignWindowBits bounds how many reference bits are compared per
	// offset.
	alignWindowBits = 512
	// alignMinOverlap is the overlap below which an offset is not scored.
	alignMinOverlap = 64
)

// Alignment is the best offset found by Align. Bit i of the reference
// lines up with bit i+Offset of the revision.
type Alignment struct {
	Offset   int
	Matches  int
	Compared int
}

// Score returns the fraction of compared bits that matched.
func (a Alignment) Score() float64 {
	if a.Compared == 0 {
		return 0
	}
	return float64(a.Matches) / float64(a.Compared)
}

// Align searches every offset in [-searchBits, searchBits] for the one
// where rev best matches the start of ref. Ties go to the smallest
// absolute offset, then to the negative one.
func Align(ref, rev *Revision, searchBits int) Alignment {
	if searchBits < 0 {
		searchBits = 0
	}
	window := min(ref.BitCount, alignWindowBits)

	var best Alignment
	found := false
	for off := -searchBits; off <= searchBits; off++ {
		a := Alignment{Offset: off}
		for i := max(0, -off, rev.Skip-off); i < window; i++ {
			j := i + off
			if j >= rev.BitCount {
				break
			}
			a.Compared++
			if ref.bit(i) == rev.bit(j) {
				a.Matches++
			}
		}
		if a.Compared < min(alignMinOverlap, window) {
			continue
		}
		if !found || better(a, best) {
			best, found = a, true
		}
	}
	return best
}

func better(a, b Alignment) bool {
	// Compare match fractions without division.
	l, r := a.Matches*b.Compared, b.Matches*a.Compared
	if l != r {
		return l > r
	}
	return abs(a.Offset) < abs(b.Offset)
}

// Shift returns a copy of rev moved so that its bit offset lands on bit 0.
// A positive offset drops leading bits; a negative one prepends positions
// counted in Skip, which never vote. The input is not modified.
func Shift(rev *Revision, offset int) Revision {
	if offset >= 0 {
		n := max(rev.BitCount-offset, 0)
		out := Revision{
			Bits:        make([]byte, bitstream.ByteLen(n)),
			BitCount:    n,
			Skip:        max(rev.Skip-offset, 0),
			IntegrityOK: rev.IntegrityOK,
			Quality:     rev.Quality,
		}
		for i := 0; i < n; i++ {
			bitstream.Set(out.Bits, i, rev.bit(i+offset))
		}
		if rev.Confidence != nil {
			out.Confidence = append([]byte(nil), rev.Confidence[min(offset, len(rev.Confidence)):]...)
		}
		if rev.Timing != nil {
			out.Timing = append([]uint32(nil), rev.Timing[min(offset, len(rev.Timing)):]...)
		}
		return out
	}

	pad := -offset
	n := rev.BitCount + pad
	out := Revision{
		Bits:        make([]byte, bitstream.ByteLen(n)),
		BitCount:    n,
		Skip:        rev.Skip + pad,
		IntegrityOK: rev.IntegrityOK,
		Quality:     rev.Quality,
	}
	for i := 0; i < rev.BitCount; i++ {
		bitstream.Set(out.Bits, i+pad, rev.bit(i))
	}
	if rev.Confidence != nil {
		out.Confidence = make([]byte, pad, pad+len(rev.Confidence))
		out.Confidence = append(out.Confidence, rev.Confidence...)
	}
	if rev.Timing != nil {
		out.Timing = make([]uint32, pad, pad+len(rev.Timing))
		out.Timing = append(out.Timing, rev.Timing...)
	}
	return out
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
