package syncmark

import "fmt"

// MarkType is the kind of field a sync mark introduces.
type MarkType int

const (
	MarkUnknown MarkType = iota
	MarkID
	MarkData
	MarkDeleted
	MarkIndex
)

func (m MarkType) String() string {
	switch m {
	case MarkID:
		return "id"
	case MarkData:
		return "data"
	case MarkDeleted:
		return "deleted"
	case MarkIndex:
		return "index"
	default:
		return "unknown"
	}
}

// markTypeFor maps the address-mark byte that follows the A1 run.
func markTypeFor(b byte) MarkType {
	switch b {
	case 0xFE:
		return MarkID
	case 0xFB, 0xFA:
		return MarkData
	case 0xF8, 0xF9:
		return MarkDeleted
	case 0xFC:
		return MarkIndex
	default:
		return MarkUnknown
	}
}

// Candidate is one detected sync pattern with its score breakdown.
type Candidate struct {
	// Position is the stream index of the first bit of the pattern.
	Position int
	Pattern  uint16
	Type     MarkType

	Confidence   int // 0..100
	PatternScore int // 0..50
	TimingScore  int // 0..50
	ContextScore int // 0..30

	MissingClock bool
}

func (c Candidate) String() string {
	return fmt.Sprintf("sync %04X @%d %s conf=%d (p=%d t=%d c=%d)",
		c.Pattern, c.Position, c.Type, c.Confidence, c.PatternScore, c.TimingScore, c.ContextScore)
}
