package syncmark

import (
	"testing"

	"github.com/banshee-data/fluxrecovery/internal/config"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sectorStream is an ID field followed by a short data field, laid out the
// way an IBM double-density track writes them.
func sectorStream() ([]byte, int) {
	w := NewMFMWriter(1 << 14)
	w.WriteRepeat(0x4E, 20)
	w.WriteRepeat(0x00, 12)
	for i := 0; i < 3; i++ {
		w.WriteSync(PatternA1)
	}
	w.WriteByte(0xFE)
	w.WriteBytes([]byte{2, 0, 5, 2, 0x12, 0x34})
	w.WriteRepeat(0x4E, 22)
	w.WriteRepeat(0x00, 12)
	for i := 0; i < 3; i++ {
		w.WriteSync(PatternA1)
	}
	w.WriteByte(0xFB)
	w.WriteRepeat(0xE5, 64)
	w.WriteBytes([]byte{0xAB, 0xCD})
	w.WriteRepeat(0x4E, 8)
	return w.Bits()
}

func run(d *Detector, buf []byte, n int) []Candidate {
	out := d.FeedBits(buf, n)
	if c, ok := d.Flush(); ok {
		out = append(out, c)
	}
	return out
}

func TestMFMHelpers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, PatternA1Decayed, EncodeMFM(0xA1, 0))
	assert.Equal(t, PatternA1Decayed, EncodeMFM(0xA1, 1))
	assert.Equal(t, uint16(0xAAAA), EncodeMFM(0x00, 0))
	assert.Equal(t, uint16(0x2AAA), EncodeMFM(0x00, 1))
	assert.Equal(t, uint16(0x9254), EncodeMFM(0x4E, 0))
	assert.Equal(t, uint16(0x5554), EncodeMFM(0xFE, 1))

	assert.Equal(t, ByteA1, DecodeMFM(PatternA1))
	assert.Equal(t, ByteA1, DecodeMFM(PatternA1Decayed))
	assert.Equal(t, ByteC2, DecodeMFM(PatternC2))

	assert.True(t, HasMissingClock(PatternA1, 0))
	assert.True(t, HasMissingClock(PatternA1, 1))
	assert.True(t, HasMissingClock(PatternC2, 0))
	assert.False(t, HasMissingClock(PatternA1Decayed, 0))

	for b := 0; b < 256; b++ {
		for _, prev := range []uint8{0, 1} {
			w := EncodeMFM(byte(b), prev)
			require.Equal(t, byte(b), DecodeMFM(w))
			require.False(t, HasMissingClock(w, prev), "byte %02X prev %d", b, prev)
		}
	}
}

func TestDetector_SectorMarks(t *testing.T) {
	t.Parallel()

	buf, n := sectorStream()
	d := New(DefaultConfig())
	got := run(d, buf, n)
	require.Len(t, got, 2)

	want := []Candidate{
		{Position: 512, Pattern: PatternA1, Type: MarkID, Confidence: 95,
			PatternScore: 50, TimingScore: 25, ContextScore: 20, MissingClock: true},
		{Position: 1216, Pattern: PatternA1, Type: MarkData, Confidence: 95,
			PatternScore: 50, TimingScore: 25, ContextScore: 20, MissingClock: true},
	}
	if diff := cmp.Diff(want, d.Candidates()); diff != "" {
		t.Errorf("candidates mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, Stats{Seen: 8, Accepted: 2, Rejected: 6, Echoes: 4, Superseded: 2}, d.Stats())
	pos, ok := d.LastAccepted()
	assert.True(t, ok)
	assert.Equal(t, 1216, pos)
}

func TestDetector_IndexMark(t *testing.T) {
	t.Parallel()

	w := NewMFMWriter(1 << 13)
	w.WriteRepeat(0x4E, 40)
	w.WriteRepeat(0x00, 12)
	for i := 0; i < 3; i++ {
		w.WriteSync(PatternC2)
	}
	w.WriteByte(0xFC)
	w.WriteRepeat(0x4E, 50)
	w.WriteRepeat(0x00, 12)
	for i := 0; i < 3; i++ {
		w.WriteSync(PatternA1)
	}
	w.WriteByte(0xFE)
	w.WriteBytes([]byte{0, 0, 1, 2, 0xCA, 0x6F})
	w.WriteRepeat(0x4E, 10)
	buf, n := w.Bits()

	d := New(DefaultConfig())
	run(d, buf, n)
	got := d.Candidates()
	require.Len(t, got, 2)
	assert.Equal(t, 832, got[0].Position)
	assert.Equal(t, MarkIndex, got[0].Type)
	assert.Equal(t, PatternC2, got[0].Pattern)
	assert.Equal(t, 1888, got[1].Position)
	assert.Equal(t, MarkID, got[1].Type)
	assert.Equal(t, 1, d.Stats().Superseded)
}

func TestDetector_ContextScore(t *testing.T) {
	t.Parallel()

	w := NewMFMWriter(1 << 12)
	w.WriteRepeat(0x4E, 20)
	w.WriteRepeat(0x00, 12)
	for i := 0; i < 3; i++ {
		w.WriteSync(PatternA1)
	}
	w.WriteByte(0xFE)
	w.WriteRepeat(0x4E, 8)
	buf, n := w.Bits()

	type mark struct {
		Pos, Context, Conf int
		Type               MarkType
	}
	tests := []struct {
		name          string
		minSeparation int
		want          []mark
	}{
		{"echoes suppressed", 64, []mark{{512, 20, 95, MarkID}}},
		// A preceding sync byte scores 30 and stops the gap count.
		{"back to back", 8, []mark{
			{512, 20, 95, MarkID},
			{528, 30, 100, MarkID},
			{544, 30, 100, MarkID},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.MinSeparation = tt.minSeparation
			d := New(cfg)
			run(d, buf, n)

			var got []mark
			for _, c := range d.Candidates() {
				got = append(got, mark{c.Position, c.ContextScore, c.Confidence, c.Type})
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetector_FlushCommitsTrailingC2(t *testing.T) {
	t.Parallel()

	w := NewMFMWriter(1024)
	w.WriteRepeat(0x4E, 8)
	w.WriteSync(PatternC2)
	buf, n := w.Bits()

	d := New(DefaultConfig())
	assert.Empty(t, d.FeedBits(buf, n))
	c, ok := d.Flush()
	require.True(t, ok)
	assert.Equal(t, 128, c.Position)
	assert.Equal(t, MarkIndex, c.Type)
	_, ok = d.Flush()
	assert.False(t, ok)
}

func TestDetector_Determinism(t *testing.T) {
	t.Parallel()

	buf, n := sectorStream()
	d := New(DefaultConfig())
	first := run(d, buf, n)
	firstHeld := d.Candidates()
	firstStats := d.Stats()

	d.Reset()
	assert.Zero(t, d.Position())
	second := run(d, buf, n)

	assert.Empty(t, cmp.Diff(first, second))
	assert.Empty(t, cmp.Diff(firstHeld, d.Candidates()))
	assert.Equal(t, firstStats, d.Stats())
}

func TestDetector_TimingScore(t *testing.T) {
	t.Parallel()

	w := NewMFMWriter(1 << 12)
	w.WriteRepeat(0xE5, 4)
	for _, gap := range []int{12, 13, 25, 18} {
		w.WriteSync(PatternA1)
		w.WriteRepeat(0xE5, gap)
	}
	w.WriteSync(PatternA1)
	w.WriteRepeat(0xE5, 4)
	buf, n := w.Bits()

	d := New(Config{ExpectedGap: 208, GapTolerance: 20, MinSeparation: 64, LooseThreshold: 0})
	got := run(d, buf, n)
	require.Len(t, got, 5)

	type score struct{ Pos, Timing, Conf int }
	var scores []score
	for _, c := range got {
		scores = append(scores, score{c.Position, c.TimingScore, c.Confidence})
	}
	want := []score{
		{64, 25, 75},   // first mark, no reference
		{272, 50, 100}, // exactly on the expected gap
		{496, 30, 80},  // 16 bits late
		{912, 20, 70},  // two gaps
		{1216, 0, 50},  // neither
	}
	assert.Equal(t, want, scores)
}

func TestDetector_DecayedPattern(t *testing.T) {
	t.Parallel()

	w := NewMFMWriter(1024)
	w.WriteRepeat(0xE5, 4)
	w.WriteByte(0xA1)
	w.WriteRepeat(0xE5, 4)
	buf, n := w.Bits()

	strict := New(DefaultConfig())
	assert.Empty(t, run(strict, buf, n))
	assert.Equal(t, Stats{Seen: 1, Rejected: 1}, strict.Stats())

	cfg := DefaultConfig()
	cfg.Strict = false
	loose := New(cfg)
	got := run(loose, buf, n)
	require.Len(t, got, 1)
	assert.False(t, got[0].MissingClock)
	assert.Equal(t, 30, got[0].PatternScore)
	assert.Equal(t, 55, got[0].Confidence)
}

func TestDetector_CapacityDropsExtraMarks(t *testing.T) {
	t.Parallel()

	w := NewMFMWriter(1 << 12)
	for i := 0; i < 3; i++ {
		w.WriteRepeat(0x00, 12)
		w.WriteSync(PatternA1)
		w.WriteByte(0xFE)
		w.WriteRepeat(0x4E, 10)
	}
	buf, n := w.Bits()

	cfg := DefaultConfig()
	cfg.Capacity = 2
	d := New(cfg)
	got := run(d, buf, n)
	assert.Len(t, got, 3)

	held := d.Candidates()
	require.Len(t, held, 2)
	assert.Equal(t, 192, held[0].Position)
	assert.Equal(t, 576, held[1].Position)
	assert.Equal(t, MarkID, held[1].Type)
	assert.Equal(t, 1, d.Stats().Dropped)
	pos, _ := d.LastAccepted()
	assert.Equal(t, 960, pos)

	drained := d.Drain()
	assert.Len(t, drained, 2)
	assert.Empty(t, d.Candidates())
}

func TestDetector_SeparationInvariant(t *testing.T) {
	t.Parallel()

	w := NewMFMWriter(1 << 12)
	for i := 0; i < 20; i++ {
		w.WriteSync(PatternA1)
		w.WriteRepeat(0x00, 2)
	}
	buf, n := w.Bits()

	cfg := DefaultConfig()
	cfg.Strict = false
	cfg.LooseThreshold = 0
	d := New(cfg)
	run(d, buf, n)

	got := d.Candidates()
	assert.Len(t, got, 10)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i].Position-got[i-1].Position, cfg.MinSeparation)
	}
	assert.Equal(t, d.Stats().Seen, d.Stats().Accepted+d.Stats().Rejected)
}

func TestDetector_FeedByteMatchesFeedBits(t *testing.T) {
	t.Parallel()

	buf, n := sectorStream()
	require.Zero(t, n%8)

	a := New(DefaultConfig())
	var viaBytes []Candidate
	for _, b := range buf {
		viaBytes = append(viaBytes, a.FeedByte(b)...)
	}
	b := New(DefaultConfig())
	viaBits := b.FeedBits(buf, n)
	assert.Empty(t, cmp.Diff(viaBits, viaBytes))
}

func TestConfigFromTuning(t *testing.T) {
	t.Parallel()

	got := ConfigFromTuning(config.MustLoadDefaultConfig())
	assert.Equal(t, DefaultConfig(), got)
}

func TestMarkTypeString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "id", MarkID.String())
	assert.Equal(t, "deleted", markTypeFor(0xF8).String())
	assert.Equal(t, "unknown", markTypeFor(0x00).String())
	assert.Contains(t, Candidate{Pattern: PatternA1, Position: 7}.String(), "4489 @7")
}
