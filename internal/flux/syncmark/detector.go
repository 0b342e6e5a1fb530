// Package syncmark finds MFM sync marks in a raw cell stream and scores how
// likely each match is to be a real mark rather than coincidental data.
package syncmark

import "github.com/banshee-data/fluxrecovery/internal/config"

const (
	patternBaseScore  = 30
	missingClockBonus = 20

	firstTimingScore    = 25
	maxTimingScore      = 50
	multipleTimingScore = 20

	contextBytes       = 8
	syncContextScore   = 30
	maxGapContextScore = 20

	// markResolveBytes is how many decoded bytes after an A1 mark are
	// searched for the address-mark byte.
	markResolveBytes = 4
)

// Config controls scoring and acceptance.
type Config struct {
	// ExpectedGap is the nominal distance in bits between sync marks. Zero
	// disables gap scoring and every candidate gets the first-mark score.
	ExpectedGap   int
	GapTolerance  int
	MinSeparation int

	Strict          bool
	StrictThreshold int
	LooseThreshold  int

	// Capacity bounds the accepted candidates held until Drain.
	Capacity int
}

func DefaultConfig() Config {
	return Config{
		GapTolerance:    32,
		MinSeparation:   64,
		Strict:          true,
		StrictThreshold: 70,
		LooseThreshold:  50,
		Capacity:        64,
	}
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		ExpectedGap:     cfg.GetExpectedGapBits(),
		GapTolerance:    cfg.GetGapToleranceBits(),
		MinSeparation:   cfg.GetMinSeparationBits(),
		Strict:          cfg.GetStrictMode(),
		StrictThreshold: cfg.GetStrictThreshold(),
		LooseThreshold:  cfg.GetLooseThreshold(),
		Capacity:        cfg.GetCandidateCapacity(),
	}
}

// Stats counts detector outcomes since the last Reset. Superseded counts C2
// matches dropped because an A1 mark overlapped them: a run of 0x00 gap
// bytes followed by A1 contains 0x5224 five bits before the A1.
type Stats struct {
	Seen       int // pattern matches
	Accepted   int
	Rejected   int // below threshold, echoes and superseded
	Echoes     int // too close to the last accepted mark
	Superseded int
	Dropped    int // accepted but the candidate list was full
}

// Detector scans a bit stream one bit at a time. A Detector belongs to a
// single decode pipeline.
type Detector struct {
	cfg Config

	shift uint32
	bits  int

	lastAccepted int
	haveAccepted bool

	context    [contextBytes]byte
	contextLen int
	contextPos int
	phase      int

	candidates []Candidate
	pending    int
	pendingN   int

	// held is a C2 match waiting to see whether an A1 overlaps it.
	held     Candidate
	holding  bool
	heldCtx  [contextBytes]byte
	heldLen  int
	heldNext int

	stats Stats
}

// New returns a detector. A non-positive Capacity selects the default.
func New(cfg Config) *Detector {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultConfig().Capacity
	}
	d := &Detector{
		cfg:        cfg,
		candidates: make([]Candidate, 0, cfg.Capacity),
	}
	d.Reset()
	return d
}

// Reset clears all carried state: stream position, last accepted mark,
// decoded context, held candidates and statistics.
func (d *Detector) Reset() {
	d.shift = 0
	d.bits = 0
	d.lastAccepted = 0
	d.haveAccepted = false
	d.context = [contextBytes]byte{}
	d.contextLen = 0
	d.contextPos = 0
	d.phase = 0
	d.candidates = d.candidates[:0]
	d.pending = -1
	d.pendingN = 0
	d.holding = false
	d.stats = Stats{}
}

// Position returns the number of bits fed so far.
func (d *Detector) Position() int { return d.bits }

// LastAccepted returns the position of the most recently accepted mark.
func (d *Detector) LastAccepted() (int, bool) { return d.lastAccepted, d.haveAccepted }

// Stats returns the outcome counters.
func (d *Detector) Stats() Stats { return d.stats }

// Candidates returns a copy of the held candidates, oldest first.
func (d *Detector) Candidates() []Candidate {
	out := make([]Candidate, len(d.candidates))
	copy(out, d.candidates)
	return out
}

// Drain returns the held candidates and empties the list. A mark whose type
// is still being resolved stays MarkUnknown in the returned copy.
func (d *Detector) Drain() []Candidate {
	out := d.Candidates()
	d.candidates = d.candidates[:0]
	d.pending = -1
	return out
}

// FeedBit pushes one bit and returns the candidate accepted at this bit,
// if any. C2 marks are reported 15 bits after they end, once no A1 mark can
// overlap them.
func (d *Detector) FeedBit(bit uint8) (Candidate, bool) {
	d.shift = d.shift<<1 | uint32(bit&1)
	d.bits++
	d.phase++
	word := uint16(d.shift)

	var out Candidate
	var ok bool
	if d.holding {
		switch {
		case word == PatternA1 && d.bits-16 < d.held.Position+16:
			d.holding = false
			d.stats.Superseded++
			d.stats.Rejected++
		case d.bits-d.held.Position >= 31:
			out, ok = d.commitHeld(), true
		}
	}
	if d.bits >= 16 {
		switch word {
		case PatternA1, PatternC2, PatternA1Decayed:
			if c, accepted := d.evaluate(word); accepted {
				out, ok = c, true
			}
		}
	}
	if d.phase == 16 {
		d.phase = 0
		d.pushByte(DecodeMFM(word))
	}
	return out, ok
}

// Flush accepts a C2 mark still held at the end of the stream.
func (d *Detector) Flush() (Candidate, bool) {
	if !d.holding {
		return Candidate{}, false
	}
	return d.commitHeld(), true
}

// FeedByte pushes the eight bits of b, MSB first, and returns any
// candidates accepted along the way.
func (d *Detector) FeedByte(b byte) []Candidate {
	var out []Candidate
	for i := 7; i >= 0; i-- {
		if c, ok := d.FeedBit((b >> uint(i)) & 1); ok {
			out = append(out, c)
		}
	}
	return out
}

// FeedBits pushes the first n bits of a packed buffer.
func (d *Detector) FeedBits(buf []byte, n int) []Candidate {
	if n > len(buf)*8 {
		n = len(buf) * 8
	}
	var out []Candidate
	for i := 0; i < n; i++ {
		if c, ok := d.FeedBit((buf[i/8] >> (7 - uint(i%8))) & 1); ok {
			out = append(out, c)
		}
	}
	return out
}

func (d *Detector) evaluate(word uint16) (Candidate, bool) {
	d.stats.Seen++
	pos := d.bits - 16

	ref, haveRef := d.lastAccepted, d.haveAccepted
	if d.holding {
		ref, haveRef = d.held.Position, true
	}
	if haveRef && pos-ref < d.cfg.MinSeparation {
		d.stats.Echoes++
		d.stats.Rejected++
		return Candidate{}, false
	}

	prevData := uint8(d.shift>>16) & 1
	c := Candidate{
		Position:     pos,
		Pattern:      word,
		MissingClock: HasMissingClock(word, prevData),
	}
	c.PatternScore = patternBaseScore
	if c.MissingClock {
		c.PatternScore += missingClockBonus
	}
	c.TimingScore = d.timingScore(pos)
	c.ContextScore = d.contextScore()
	c.Confidence = c.PatternScore + c.TimingScore + c.ContextScore
	if c.Confidence > 100 {
		c.Confidence = 100
	}

	threshold := d.cfg.LooseThreshold
	if d.cfg.Strict {
		threshold = d.cfg.StrictThreshold
	}
	if c.Confidence < threshold {
		d.stats.Rejected++
		return Candidate{}, false
	}

	if word == PatternC2 {
		c.Type = MarkIndex
		d.held = c
		d.holding = true
		d.heldCtx, d.heldLen, d.heldNext = d.context, d.contextLen, d.contextPos
		return Candidate{}, false
	}
	d.accept(c)
	return c, true
}

// commitHeld accepts the held C2 mark with the context it was scored
// against.
func (d *Detector) commitHeld() Candidate {
	d.holding = false
	d.context, d.contextLen, d.contextPos = d.heldCtx, d.heldLen, d.heldNext
	d.accept(d.held)
	return d.held
}

func (d *Detector) accept(c Candidate) {
	d.stats.Accepted++
	d.lastAccepted = c.Position
	d.haveAccepted = true

	// The mark ends on a byte boundary; realign context decoding to it.
	// A run of back-to-back A1 marks shares one address-mark byte, so the
	// first unresolved mark of the run stays pending.
	first := d.pending
	d.pending = -1
	d.pushByte(DecodeMFM(c.Pattern))
	d.phase = d.bits - (c.Position + 16)

	if len(d.candidates) < d.cfg.Capacity {
		d.candidates = append(d.candidates, c)
		if first < 0 {
			first = len(d.candidates) - 1
		}
	} else {
		d.stats.Dropped++
	}
	if c.Type == MarkUnknown && first >= 0 {
		d.pending = first
		d.pendingN = 0
	}
}

func (d *Detector) timingScore(pos int) int {
	if !d.haveAccepted || d.cfg.ExpectedGap <= 0 {
		return firstTimingScore
	}
	dist := pos - d.lastAccepted
	gap, tol := d.cfg.ExpectedGap, d.cfg.GapTolerance
	diff := abs(dist - gap)
	if diff <= tol {
		if tol == 0 {
			return maxTimingScore
		}
		return maxTimingScore - diff*(maxTimingScore/2)/tol
	}
	for m := 2; m <= 4; m++ {
		if abs(dist-m*gap) <= tol {
			return multipleTimingScore
		}
	}
	return 0
}

func (d *Detector) contextScore() int {
	gaps := 0
	for i := 0; i < d.contextLen; i++ {
		b := d.context[(d.contextPos-1-i+contextBytes)%contextBytes]
		if b == ByteA1 || b == ByteC2 {
			return syncContextScore
		}
		if isGapByte(b) {
			gaps++
		}
	}
	return gaps * maxGapContextScore / contextBytes
}

// pushByte records a decoded byte and, while A1 marks are awaiting their
// address-mark byte, resolves their type.
func (d *Detector) pushByte(b byte) {
	if d.pending >= 0 {
		d.pendingN++
		if b != ByteA1 {
			t := markTypeFor(b)
			for i := d.pending; i < len(d.candidates); i++ {
				if d.candidates[i].Type == MarkUnknown {
					d.candidates[i].Type = t
				}
			}
			d.pending = -1
		} else if d.pendingN >= markResolveBytes {
			d.pending = -1
		}
	}
	d.context[d.contextPos] = b
	d.contextPos = (d.contextPos + 1) % contextBytes
	if d.contextLen < contextBytes {
		d.contextLen++
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
