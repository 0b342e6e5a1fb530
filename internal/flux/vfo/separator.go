package vfo

import (
	"math"

	"github.com/banshee-data/fluxrecovery/internal/flux/bitstream"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// PulseClass places a pulse relative to the data window.
type PulseClass int

const (
	PulseValid PulseClass = iota
	PulseEarly
	PulseLate
)

// Pulse is the result of separating one flux interval into cells.
type Pulse struct {
	// Zeros is the number of empty cells before the cell holding the pulse.
	Zeros int
	// Offset is the pulse position inside its cell, in ticks.
	Offset float64
	// Cell is the cell size the interval was measured against.
	Cell  float64
	Ticks uint32
	Class PulseClass
	// Clamped is set when the interval was longer than the separator allows.
	Clamped bool
}

// Stats summarises the pulses seen since the last Reset.
type Stats struct {
	Pulses  int
	Valid   int
	Early   int
	Late    int
	Clamped int
	// PhaseError is an exponential moving average of |offset-centre|/cell.
	PhaseError float64

	CellMean   float64
	CellStdDev float64
	CellMin    float64
	CellMax    float64
}

const (
	cellSampleLimit = 4096
	phaseErrorDecay = 0.99
)

// Separator turns flux intervals into cell bits using a ClockState. It
// tracks where inside the current cell the last pulse fell so that the
// fractional remainder carries into the next interval.
type Separator struct {
	clock    *ClockState
	maxCells int
	phase    float64

	stats   Stats
	samples []float64
	next    int

	trace      []float64
	traceLimit int
}

// NewSeparator wraps clock. maxCells <= 0 selects DefaultMaxCellsPerInterval.
func NewSeparator(clock *ClockState, maxCells int) *Separator {
	if maxCells <= 0 {
		maxCells = DefaultMaxCellsPerInterval
	}
	s := &Separator{clock: clock, maxCells: maxCells}
	s.resetPhase()
	return s
}

// Clock returns the underlying oscillator.
func (s *Separator) Clock() *ClockState { return s.clock }

func (s *Separator) resetPhase() {
	// The previous pulse is assumed to have landed dead centre.
	s.phase = -s.clock.CellSize() / 2
}

// Reset restores the clock and clears counters, for a new track.
func (s *Separator) Reset() {
	s.clock.Reset()
	s.resetPhase()
	s.stats = Stats{}
	s.samples = s.samples[:0]
	s.next = 0
	s.trace = s.trace[:0]
}

// Resync soft-resets the clock without touching the counters.
func (s *Separator) Resync() {
	s.clock.SoftReset()
	s.resetPhase()
}

// EnableTrace records up to limit cell sizes, one per pulse. A limit of zero
// disables tracing.
func (s *Separator) EnableTrace(limit int) {
	if limit < 0 {
		limit = 0
	}
	s.traceLimit = limit
	s.trace = make([]float64, 0, limit)
}

// Trace returns the recorded cell sizes.
func (s *Separator) Trace() []float64 { return s.trace }

// Step separates one flux interval.
func (s *Separator) Step(ticks uint32) Pulse {
	cell := s.clock.CellSize()
	acc := s.phase + float64(ticks)

	p := Pulse{Cell: cell, Ticks: ticks}
	if acc < 0 {
		p.Offset = 0
	} else {
		n := int(math.Floor(acc / cell))
		p.Zeros = n
		p.Offset = acc - float64(n)*cell
	}
	if p.Zeros > s.maxCells-1 {
		p.Zeros = s.maxCells - 1
		p.Offset = s.clock.Center()
		p.Clamped = true
	}

	start, end := s.clock.Window()
	switch {
	case p.Offset < start:
		p.Class = PulseEarly
	case p.Offset > end:
		p.Class = PulseLate
	default:
		p.Class = PulseValid
	}
	s.account(p)

	s.clock.Process(p.Offset)
	s.phase = p.Offset - cell
	s.sample(s.clock.CellSize())
	return p
}

func (s *Separator) account(p Pulse) {
	s.stats.Pulses++
	switch p.Class {
	case PulseEarly:
		s.stats.Early++
	case PulseLate:
		s.stats.Late++
	default:
		s.stats.Valid++
	}
	if p.Clamped {
		s.stats.Clamped++
		debugf("interval %d ticks clamped to %d cells", p.Ticks, s.maxCells)
	}
	e := math.Abs(p.Offset-p.Cell/2) / p.Cell
	s.stats.PhaseError = phaseErrorDecay*s.stats.PhaseError + (1-phaseErrorDecay)*e
}

func (s *Separator) sample(cell float64) {
	if len(s.samples) < cellSampleLimit {
		s.samples = append(s.samples, cell)
	} else {
		s.samples[s.next] = cell
		s.next = (s.next + 1) % cellSampleLimit
	}
	if len(s.trace) < s.traceLimit {
		s.trace = append(s.trace, cell)
	}
}

// Stats returns the counters plus cell-size statistics over the most recent
// pulses.
func (s *Separator) Stats() Stats {
	st := s.stats
	if len(s.samples) > 0 {
		st.CellMean, st.CellStdDev = stat.MeanStdDev(s.samples, nil)
		if len(s.samples) == 1 {
			st.CellStdDev = 0
		}
		st.CellMin = floats.Min(s.samples)
		st.CellMax = floats.Max(s.samples)
	}
	return st
}

// Decoded is a bit stream recovered from one revolution.
type Decoded struct {
	Bits     []byte
	BitCount int
	// Timing holds, per bit, the interval length for pulse bits and the
	// cell size for empty cells, in ticks.
	Timing  []uint32
	Dropped int
}

// Decode drains src, emitting Zeros empty cells followed by a one for every
// interval. At most maxBits bits are kept.
func (s *Separator) Decode(src FluxSource, maxBits int) Decoded {
	w := bitstream.NewWriter(maxBits)
	timing := make([]uint32, 0, maxBits)
	for {
		ticks, ok := src.NextFlux()
		if !ok {
			break
		}
		p := s.Step(ticks)
		cellTicks := uint32(math.Round(p.Cell))
		for i := 0; i < p.Zeros; i++ {
			if w.WriteBit(0) {
				timing = append(timing, cellTicks)
			}
		}
		if w.WriteBit(1) {
			timing = append(timing, ticks)
		}
	}
	return Decoded{
		Bits:     w.Bytes(),
		BitCount: w.Len(),
		Timing:   timing,
		Dropped:  w.Dropped(),
	}
}
