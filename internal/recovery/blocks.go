package recovery

import (
	"errors"
	"fmt"

	"github.com/banshee-data/fluxrecovery/internal/flux/rs"
)

var ErrBlockLength = errors.New("recovery: invalid RS block length")

// BlockOutcome is the result of correcting one codeword.
type BlockOutcome struct {
	Offset    int
	Length    int
	Corrected int
	// Err is non-nil when the block was left unmodified, either because it
	// was uncorrectable or because it was too short to carry parity.
	Err error
}

// BlockSummary totals a CorrectBlocks run.
type BlockSummary struct {
	Blocks        int
	Clean         int
	Corrected     int // blocks with at least one symbol fixed
	Symbols       int // symbols fixed across all blocks
	Uncorrectable int
}

// Summarise totals per-block outcomes.
func Summarise(outcomes []BlockOutcome) BlockSummary {
	var s BlockSummary
	for _, o := range outcomes {
		s.Blocks++
		switch {
		case o.Err != nil:
			s.Uncorrectable++
		case o.Corrected > 0:
			s.Corrected++
			s.Symbols += o.Corrected
		default:
			s.Clean++
		}
	}
	return s
}

func checkBlockLength(codec *rs.Codec, blockLen int) error {
	if blockLen <= codec.ParitySymbols() || blockLen > rs.MaxCodewordLength {
		return fmt.Errorf("%w: %d with %d parity symbols", ErrBlockLength, blockLen, codec.ParitySymbols())
	}
	return nil
}

// CorrectBlocks splits data into consecutive codewords of blockLen symbols
// and corrects each in place. A trailing remainder is decoded as a
// shortened codeword. Each block is all-or-nothing: a block that cannot be
// corrected is left exactly as it was.
func CorrectBlocks(codec *rs.Codec, data []byte, blockLen int) ([]BlockOutcome, error) {
	if err := checkBlockLength(codec, blockLen); err != nil {
		return nil, err
	}
	outcomes := make([]BlockOutcome, 0, (len(data)+blockLen-1)/blockLen)
	for off := 0; off < len(data); off += blockLen {
		end := min(off+blockLen, len(data))
		o := BlockOutcome{Offset: off, Length: end - off}
		o.Corrected, o.Err = codec.Decode(data[off:end])
		if o.Err != nil {
			opsf("block at %d (%d symbols): %v", off, o.Length, o.Err)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, nil
}

// EncodeBlocks is the inverse of CorrectBlocks: it cuts data into messages
// of blockLen minus parity bytes and appends parity to each.
func EncodeBlocks(codec *rs.Codec, data []byte, blockLen int) ([]byte, error) {
	if err := checkBlockLength(codec, blockLen); err != nil {
		return nil, err
	}
	msgLen := blockLen - codec.ParitySymbols()
	blocks := (len(data) + msgLen - 1) / msgLen
	out := make([]byte, 0, len(data)+blocks*codec.ParitySymbols())
	for off := 0; off < len(data); off += msgLen {
		cw, err := codec.Encode(data[off:min(off+msgLen, len(data))])
		if err != nil {
			return nil, err
		}
		out = append(out, cw...)
	}
	return out, nil
}
