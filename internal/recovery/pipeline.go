// Package recovery runs flux captures through clock recovery, sync
// detection, alignment and fusion, and cleans up byte streams protected by
// Reed–Solomon parity.
//
// The flux packages it drives never log; this package reports on the ops,
// diag and trace streams configured with SetLogWriters.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/banshee-data/fluxrecovery/internal/flux/bitstream"
	"github.com/banshee-data/fluxrecovery/internal/flux/fusion"
	"github.com/banshee-data/fluxrecovery/internal/flux/syncmark"
	"github.com/banshee-data/fluxrecovery/internal/flux/vfo"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var ErrNoRevolutions = errors.New("recovery: no revolutions")

// Per-bit confidence assigned from the class of the pulse that produced
// the bit.
const (
	confidenceValid    = 255
	confidenceMarginal = 128
	confidenceDropout  = 32
)

// Revolution is one decoded pass over a track.
type Revolution struct {
	Bits       []byte
	BitCount   int
	Timing     []uint32
	Confidence []byte

	Marks     []syncmark.Candidate
	SyncStats syncmark.Stats
	Clock     vfo.Stats

	// Dropped counts bits beyond MaxTrackBits.
	Dropped int
	// Resyncs counts soft resets after losing sync.
	Resyncs int
	// Trace holds cell sizes per pulse when tracing is enabled.
	Trace []float64
}

// FirstMark returns the position of the first accepted sync mark.
func (r *Revolution) FirstMark() (int, bool) {
	if len(r.Marks) == 0 {
		return 0, false
	}
	return r.Marks[0].Position, true
}

func (r *Revolution) revision() fusion.Revision {
	return fusion.Revision{
		Bits:       r.Bits,
		BitCount:   r.BitCount,
		Confidence: r.Confidence,
		Timing:     r.Timing,
	}
}

// Track is the set of revolutions captured for one physical track.
type Track struct {
	Label       string
	Revolutions [][]uint32
}

// TrackResult is the outcome of RecoverTrack.
type TrackResult struct {
	ID        string
	Label     string
	StartedAt time.Time
	Duration  time.Duration

	Revolutions []*Revolution
	// Offsets[i] is where revolution i was cut to line up with the
	// reference; AlignedOnMark[i] is false when correlation was used.
	Offsets       []int
	AlignedOnMark []bool
	Reference     int

	Fused *fusion.Result
}

// Recorder persists track results. Implementations must be safe for
// concurrent use when RecoverTracks is used.
type Recorder interface {
	RecordTrack(ctx context.Context, res *TrackResult) error
}

// Pipeline decodes and fuses tracks with a fixed set of Params. A Pipeline
// holds no per-track state and may be shared by concurrent callers.
type Pipeline struct {
	params     Params
	recorder   Recorder
	traceLimit int
}

// NewPipeline returns a pipeline. recorder may be nil.
func NewPipeline(params Params, recorder Recorder) *Pipeline {
	if params.MaxTrackBits <= 0 {
		params.MaxTrackBits = DefaultMaxTrackBits
	}
	if params.AlignSearchBits < 0 {
		params.AlignSearchBits = 0
	}
	return &Pipeline{params: params, recorder: recorder}
}

// Params returns the settings the pipeline was built with.
func (p *Pipeline) Params() Params { return p.params }

// EnableTrace keeps up to limit cell sizes per revolution. Call before the
// pipeline is shared.
func (p *Pipeline) EnableTrace(limit int) { p.traceLimit = limit }

// DecodeRevolution recovers cell bits from one revolution of flux
// intervals. The clock runs at high gain until the first sync mark is
// accepted and at low gain afterwards; when no mark arrives for
// ResyncGapFactor expected gaps the clock is soft-reset and returns to high
// gain.
func (p *Pipeline) DecodeRevolution(intervals []uint32) (*Revolution, error) {
	clock, err := vfo.New(p.params.VFO)
	if err != nil {
		return nil, fmt.Errorf("configure clock: %w", err)
	}
	sep := vfo.NewSeparator(clock, p.params.VFO.MaxCellsPerInterval)
	if p.traceLimit > 0 {
		sep.EnableTrace(p.traceLimit)
	}
	det := syncmark.New(p.params.Sync)

	maxBits := p.params.MaxTrackBits
	estimate := min(maxBits, len(intervals)*4)
	w := bitstream.NewWriter(maxBits)
	timing := make([]uint32, 0, estimate)
	conf := make([]byte, 0, estimate)

	rev := &Revolution{}
	resyncAfter := p.params.ResyncGapFactor * p.params.Sync.ExpectedGap
	locked := false
	lastMark := 0

	onMark := func(c syncmark.Candidate) {
		tracef("mark %s", c)
		lastMark = c.Position
		if !locked {
			clock.SelectGain(vfo.GainLow)
			locked = true
		}
	}
	emit := func(bit uint8, ticks uint32, c byte) {
		if !w.WriteBit(bit) {
			return
		}
		timing = append(timing, ticks)
		conf = append(conf, c)
		if m, ok := det.FeedBit(bit); ok {
			onMark(m)
		}
	}

	for _, ticks := range intervals {
		pulse := sep.Step(ticks)
		c := byte(confidenceValid)
		switch {
		case pulse.Clamped:
			c = confidenceDropout
		case pulse.Class != vfo.PulseValid:
			c = confidenceMarginal
		}
		cellTicks := uint32(math.Round(pulse.Cell))
		for i := 0; i < pulse.Zeros; i++ {
			emit(0, cellTicks, c)
		}
		emit(1, ticks, c)

		if locked && resyncAfter > 0 && w.Len()-lastMark > resyncAfter {
			sep.Resync()
			clock.SelectGain(vfo.GainHigh)
			locked = false
			rev.Resyncs++
			tracef("sync lost at bit %d, last mark %d; clock soft reset", w.Len(), lastMark)
		}
	}
	if m, ok := det.Flush(); ok {
		onMark(m)
	}

	rev.Bits = w.Bytes()
	rev.BitCount = w.Len()
	rev.Timing = timing
	rev.Confidence = conf
	rev.Dropped = w.Dropped()
	rev.Marks = det.Drain()
	rev.SyncStats = det.Stats()
	rev.Clock = sep.Stats()
	if p.traceLimit > 0 {
		rev.Trace = sep.Trace()
	}
	if rev.Dropped > 0 {
		opsf("revolution truncated: %d bits beyond the %d bit limit", rev.Dropped, maxBits)
	}
	return rev, nil
}

// RecoverTrack decodes every revolution, lines them up on their first
// accepted sync mark (falling back to correlation against the reference
// revolution), fuses them and reports the result to the recorder.
func (p *Pipeline) RecoverTrack(ctx context.Context, track Track) (*TrackResult, error) {
	if len(track.Revolutions) == 0 {
		return nil, ErrNoRevolutions
	}
	res := &TrackResult{
		ID:        uuid.NewString(),
		Label:     track.Label,
		StartedAt: time.Now(),
	}

	for i, intervals := range track.Revolutions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rev, err := p.DecodeRevolution(intervals)
		if err != nil {
			return nil, fmt.Errorf("revolution %d: %w", i, err)
		}
		tracef("%s rev %d: %d bits, %d marks, cell %.2f±%.2f, %d resyncs",
			track.Label, i, rev.BitCount, len(rev.Marks), rev.Clock.CellMean, rev.Clock.CellStdDev, rev.Resyncs)
		res.Revolutions = append(res.Revolutions, rev)
	}

	revs := p.align(res)
	fused, err := fusion.Merge(revs, p.params.Fusion)
	if err != nil {
		return nil, fmt.Errorf("fuse %s: %w", track.Label, err)
	}
	res.Fused = fused
	res.Duration = time.Since(res.StartedAt)
	diagf("%s: %d revolutions, %d bits, %d weak, agreement %.3f (%s)",
		track.Label, len(res.Revolutions), fused.TotalBits, fused.WeakBits, fused.AgreementRatio(), fused.Method)

	if p.recorder != nil {
		if err := p.recorder.RecordTrack(ctx, res); err != nil {
			opsf("record track %s (%s): %v", track.Label, res.ID, err)
		}
	}
	return res, nil
}

// align picks the first revolution with a sync mark as the reference and
// shifts the others onto it.
func (p *Pipeline) align(res *TrackResult) []fusion.Revision {
	n := len(res.Revolutions)
	res.Offsets = make([]int, n)
	res.AlignedOnMark = make([]bool, n)
	for i, rev := range res.Revolutions {
		if _, ok := rev.FirstMark(); ok {
			res.Reference = i
			break
		}
	}

	ref := res.Revolutions[res.Reference]
	refRev := ref.revision()
	refMark, refHasMark := ref.FirstMark()
	out := make([]fusion.Revision, n)
	for i, rev := range res.Revolutions {
		r := rev.revision()
		if i == res.Reference {
			out[i] = r
			res.AlignedOnMark[i] = refHasMark
			continue
		}
		var offset int
		if mark, ok := rev.FirstMark(); ok && refHasMark {
			offset = mark - refMark
			res.AlignedOnMark[i] = true
		} else {
			a := fusion.Align(&refRev, &r, p.params.AlignSearchBits)
			offset = a.Offset
			diagf("%s rev %d: no sync mark, correlation offset %d (score %.3f)", res.Label, i, offset, a.Score())
		}
		res.Offsets[i] = offset
		out[i] = fusion.Shift(&r, offset)
	}
	return out
}

// RecoverTracks runs RecoverTrack over independent tracks concurrently.
// Results are returned in input order.
func (p *Pipeline) RecoverTracks(ctx context.Context, tracks []Track) ([]*TrackResult, error) {
	out := make([]*TrackResult, len(tracks))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range tracks {
		g.Go(func() error {
			res, err := p.RecoverTrack(gCtx, tracks[i])
			if err != nil {
				return fmt.Errorf("track %d (%s): %w", i, tracks[i].Label, err)
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
