package vfo

// FluxSource yields flux intervals in sampling-clock ticks. ok is false once
// the source is exhausted.
type FluxSource interface {
	NextFlux() (ticks uint32, ok bool)
}

// IntervalSource replays a slice of intervals.
type IntervalSource struct {
	intervals []uint32
	pos       int
}

func NewIntervalSource(intervals []uint32) *IntervalSource {
	return &IntervalSource{intervals: intervals}
}

func (s *IntervalSource) NextFlux() (uint32, bool) {
	if s.pos >= len(s.intervals) {
		return 0, false
	}
	v := s.intervals[s.pos]
	s.pos++
	return v, true
}

// Rewind restarts the source from the first interval.
func (s *IntervalSource) Rewind() { s.pos = 0 }

// TransitionSource converts absolute transition timestamps (ticks since the
// index pulse) into intervals. Timestamps that go backwards yield zero.
type TransitionSource struct {
	times []uint64
	pos   int
	last  uint64
}

func NewTransitionSource(times []uint64) *TransitionSource {
	return &TransitionSource{times: times}
}

func (s *TransitionSource) NextFlux() (uint32, bool) {
	if s.pos >= len(s.times) {
		return 0, false
	}
	t := s.times[s.pos]
	s.pos++
	var d uint64
	if t > s.last {
		d = t - s.last
	}
	s.last = t
	if d > uint64(^uint32(0)) {
		d = uint64(^uint32(0))
	}
	return uint32(d), true
}

// Intervals drains src into a slice.
func Intervals(src FluxSource) []uint32 {
	var out []uint32
	for {
		v, ok := src.NextFlux()
		if !ok {
			return out
		}
		out = append(out, v)
	}
}
