package vfo

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/banshee-data/fluxrecovery/internal/config"
	"github.com/banshee-data/fluxrecovery/internal/flux/bitstream"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClock(t *testing.T) *ClockState {
	t.Helper()
	c, err := New(DefaultConfig())
	require.NoError(t, err)
	return c
}

func TestConfigure(t *testing.T) {
	t.Parallel()

	c := newClock(t)
	assert.Equal(t, 80.0, c.ReferenceCellSize())
	assert.Equal(t, 80.0, c.CellSize())
	assert.Equal(t, 40.0, c.Center())
	start, end := c.Window()
	assert.InDelta(t, 10.0, start, 1e-9)
	assert.InDelta(t, 70.0, end, 1e-9)

	t.Run("invalid rates", func(t *testing.T) {
		t.Parallel()
		for _, tc := range []struct{ sr, br float64 }{
			{0, 500000}, {40e6, 0}, {-1, 1}, {1, 1},
		} {
			_, err := New(Config{SamplingRate: tc.sr, BitRate: tc.br})
			assert.ErrorIs(t, err, ErrInvalidRate, "sr=%g br=%g", tc.sr, tc.br)
		}
	})

	t.Run("window ratio falls back", func(t *testing.T) {
		t.Parallel()
		c, err := New(Config{SamplingRate: 40e6, BitRate: 500e3, WindowRatio: 0.1})
		require.NoError(t, err)
		start, end := c.Window()
		assert.InDelta(t, 60.0, end-start, 1e-9)
	})
}

func TestProcess_ZeroJitterHoldsReference(t *testing.T) {
	t.Parallel()

	c := newClock(t)
	for i := 0; i < 1000; i++ {
		c.Process(c.Center())
		require.Equal(t, 80.0, c.CellSize(), "pulse %d", i)
	}
}

func TestProcess_LatePulseStretchesCell(t *testing.T) {
	t.Parallel()

	c := newClock(t)
	c.Process(50)
	assert.InDelta(t, 82.03125, c.CellSize(), 1e-9)

	c = newClock(t)
	c.Process(30)
	assert.Less(t, c.CellSize(), 80.0)
}

func TestProcess_CellStaysBounded(t *testing.T) {
	t.Parallel()

	c := newClock(t)
	rng := rand.New(rand.NewSource(42))
	lo, hi := 80.0/Tolerance, 80.0*Tolerance
	for i := 0; i < 10000; i++ {
		c.Process(rng.Float64() * 160)
		cell := c.CellSize()
		require.GreaterOrEqual(t, cell, lo)
		require.LessOrEqual(t, cell, hi)
	}
}

func TestProcess_PhaseWrap(t *testing.T) {
	t.Parallel()

	c := newClock(t)
	c.SetPID(PID{})

	c.Process(0.5)
	assert.InDelta(t, -0.2, c.Process(79.8), 1e-9)

	c.Reset()
	c.Process(79.8)
	assert.InDelta(t, 80.5, c.Process(0.5), 1e-9)

	c.Reset()
	c.Process(30)
	assert.InDelta(t, 50.0, c.Process(50), 1e-9)
}

func TestGainSlew(t *testing.T) {
	t.Parallel()

	c := newClock(t)
	assert.Equal(t, GainHigh, c.Mode())
	assert.Equal(t, DefaultGainHigh, c.GainInUse())

	c.SelectGain(GainLow)
	c.Process(40)
	assert.InDelta(t, 0.95, c.GainInUse(), 1e-9)
	for i := 0; i < 30; i++ {
		c.Process(40)
	}
	assert.Equal(t, DefaultGainLow, c.GainInUse())

	c.SelectGain(GainHigh)
	c.Process(40)
	assert.InDelta(t, 0.35, c.GainInUse(), 1e-9)
	assert.Equal(t, "high", c.Mode().String())
}

func TestResetVersusSoftReset(t *testing.T) {
	t.Parallel()

	c := newClock(t)
	c.SelectGain(GainLow)
	for i := 0; i < 10; i++ {
		c.Process(55)
	}
	require.NotEqual(t, 80.0, c.CellSize())

	gain := c.GainInUse()
	c.SoftReset()
	assert.Equal(t, 80.0, c.CellSize())
	assert.Equal(t, GainLow, c.Mode())
	assert.Equal(t, gain, c.GainInUse())
	// The first pulse after a soft reset primes the filter again.
	c.Process(40)
	assert.Equal(t, 80.0, c.CellSize())

	c.Reset()
	assert.Equal(t, GainHigh, c.Mode())
	assert.Equal(t, DefaultGainHigh, c.GainInUse())
}

func TestSources(t *testing.T) {
	t.Parallel()

	src := NewIntervalSource([]uint32{1, 2, 3})
	assert.Equal(t, []uint32{1, 2, 3}, Intervals(src))
	_, ok := src.NextFlux()
	assert.False(t, ok)
	src.Rewind()
	v, ok := src.NextFlux()
	assert.True(t, ok)
	assert.Equal(t, uint32(1), v)

	ts := NewTransitionSource([]uint64{100, 260, 250, 500})
	assert.Equal(t, []uint32{100, 160, 0, 250}, Intervals(ts))
}

func newSeparator(t *testing.T) *Separator {
	t.Helper()
	return NewSeparator(newClock(t), 0)
}

func TestSeparator_SteadyStream(t *testing.T) {
	t.Parallel()

	s := newSeparator(t)
	intervals := make([]uint32, 8)
	for i := range intervals {
		intervals[i] = 160
	}
	d := s.Decode(NewIntervalSource(intervals), 1024)
	assert.Equal(t, 16, d.BitCount)
	assert.Equal(t, strings.Repeat("01", 8), bitstream.String(d.Bits, d.BitCount))
	require.Len(t, d.Timing, 16)
	assert.Equal(t, uint32(80), d.Timing[0])
	assert.Equal(t, uint32(160), d.Timing[1])

	st := s.Stats()
	assert.Equal(t, 8, st.Pulses)
	assert.Equal(t, 8, st.Valid)
	assert.Equal(t, 80.0, st.CellMean)
	assert.Zero(t, st.CellStdDev)
	assert.Equal(t, 80.0, st.CellMin)
	assert.Equal(t, 80.0, st.CellMax)
	assert.Zero(t, st.PhaseError)
}

func TestSeparator_MFMRunLengths(t *testing.T) {
	t.Parallel()

	s := newSeparator(t)
	d := s.Decode(NewIntervalSource([]uint32{160, 240, 320, 240, 160}), 64)
	assert.Equal(t, "01"+"001"+"0001"+"001"+"01", bitstream.String(d.Bits, d.BitCount))
}

func TestSeparator_TracksJitterAndDrift(t *testing.T) {
	t.Parallel()

	// Cells 1% long with up to ±6 ticks of jitter per interval.
	rb := make([]byte, 4000)
	seed := uint32(7)
	for i := range rb {
		seed = (seed*1103515245 + 12345) & 0x7fffffff
		rb[i] = byte(seed >> 16)
	}
	var want strings.Builder
	intervals := make([]uint32, 2000)
	for i := range intervals {
		k := 2 + int(rb[i])%3
		jitter := int(rb[2000+i])%13 - 6
		intervals[i] = uint32(k*808/10 + jitter)
		want.WriteString(strings.Repeat("0", k-1))
		want.WriteByte('1')
	}

	s := newSeparator(t)
	d := s.Decode(NewIntervalSource(intervals), 1<<16)
	assert.Equal(t, want.String(), bitstream.String(d.Bits, d.BitCount))
	assert.Greater(t, s.Clock().CellSize(), 80.0)
	assert.Equal(t, 2000, s.Stats().Valid)
}

func TestSeparator_ClampsLongIntervals(t *testing.T) {
	t.Parallel()

	s := newSeparator(t)
	p := s.Step(80 * 20)
	assert.True(t, p.Clamped)
	assert.Equal(t, DefaultMaxCellsPerInterval-1, p.Zeros)
	assert.Equal(t, 1, s.Stats().Clamped)

	p = s.Step(160)
	assert.Equal(t, 1, p.Zeros)
	assert.False(t, p.Clamped)
}

func TestSeparator_CapacityAndTrace(t *testing.T) {
	t.Parallel()

	s := newSeparator(t)
	s.EnableTrace(3)
	intervals := []uint32{160, 160, 160, 160, 160, 160, 160, 160}
	d := s.Decode(NewIntervalSource(intervals), 5)
	assert.Equal(t, 5, d.BitCount)
	assert.Equal(t, 11, d.Dropped)
	assert.Len(t, d.Timing, 5)
	assert.Equal(t, []float64{80, 80, 80}, s.Trace())

	s.Reset()
	assert.Empty(t, s.Trace())
	assert.Zero(t, s.Stats().Pulses)
}

func TestConfigFromTuning(t *testing.T) {
	t.Parallel()

	got := ConfigFromTuning(config.MustLoadDefaultConfig())
	if diff := cmp.Diff(DefaultConfig(), got); diff != "" {
		t.Errorf("ConfigFromTuning mismatch (-want +got):\n%s", diff)
	}
}
