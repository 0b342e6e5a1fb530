package fusion

import (
	"math"

	"github.com/banshee-data/fluxrecovery/internal/flux/bitstream"
	"gonum.org/v1/gonum/stat"
)

// uncertainConfidence is the confidence below which a position counts as
// uncertain: the winning value carried less than half the weight.
const uncertainConfidence = 128

// FusedBit is the outcome of the vote at one bit position.
type FusedBit struct {
	Value      uint8
	Confidence uint8 // winning weight / total weight, scaled to 0..255
	Weak       bool
	Agreeing   int // voters that returned Value
	Voters     int // revisions covering the position

	// TimingVariance is the variance of the voters' timing values, zero when
	// fewer than two voters carry timing.
	TimingVariance float64
}

// Unanimous reports whether every voter agreed. A position with no voters
// is never unanimous.
func (b FusedBit) Unanimous() bool { return b.Voters > 0 && b.Agreeing == b.Voters }

// Result aggregates a merge across the longest revision.
type Result struct {
	Bits     []byte
	BitCount int
	// Confidence and WeakMask are only populated when requested. WeakMask
	// is packed like Bits.
	Confidence []byte
	WeakMask   []byte

	TotalBits     int
	UnanimousBits int
	// MajorityBits counts positions won by a strict majority of voters
	// that were not unanimous.
	MajorityBits  int
	WeakBits      int
	UncertainBits int
	// OverallConfidence is the mean per-position confidence in [0,1].
	OverallConfidence float64

	Method    Method
	Revisions []RevisionStats
}

// AgreementRatio returns (unanimous + majority) / total.
func (r *Result) AgreementRatio() float64 {
	if r.TotalBits == 0 {
		return 0
	}
	return float64(r.UnanimousBits+r.MajorityBits) / float64(r.TotalBits)
}

// FuseBit votes on a single position. MethodAuto is resolved with
// Recommend.
func FuseBit(revs []Revision, pos int, opts Options) (FusedBit, error) {
	if _, err := checkRevisions(revs, bitSpan); err != nil {
		return FusedBit{}, err
	}
	opts.normalise()
	if opts.Method == MethodAuto {
		opts.Method = Recommend(revs)
	}
	f := newBitFuser(revs, &opts)
	return f.fuse(pos), nil
}

// Merge fuses every position up to the longest revision. Revisions shorter
// than that do not vote past their own end.
func Merge(revs []Revision, opts Options) (*Result, error) {
	n, err := checkRevisions(revs, bitSpan)
	if err != nil {
		return nil, err
	}
	opts.normalise()
	if opts.Method == MethodAuto {
		opts.Method = Recommend(revs)
	}

	res := &Result{
		Bits:      make([]byte, bitstream.ByteLen(n)),
		BitCount:  n,
		TotalBits: n,
		Method:    opts.Method,
		Revisions: make([]RevisionStats, len(revs)),
	}
	if opts.WantConfidence {
		res.Confidence = make([]byte, n)
	}
	if opts.WantWeakMask {
		res.WeakMask = make([]byte, bitstream.ByteLen(n))
	}

	f := newBitFuser(revs, &opts)
	var confSum float64
	for pos := 0; pos < n; pos++ {
		b := f.fuse(pos)
		bitstream.Set(res.Bits, pos, b.Value)
		if res.Confidence != nil {
			res.Confidence[pos] = b.Confidence
		}
		if b.Weak {
			res.WeakBits++
			if res.WeakMask != nil {
				bitstream.Set(res.WeakMask, pos, 1)
			}
		}
		switch {
		case b.Unanimous():
			res.UnanimousBits++
		case 2*b.Agreeing > b.Voters:
			res.MajorityBits++
		}
		if b.Confidence < uncertainConfidence {
			res.UncertainBits++
		}
		confSum += float64(b.Confidence) / 255

		for _, i := range f.voters {
			res.Revisions[i].Covered++
			if revs[i].bit(pos) == b.Value {
				res.Revisions[i].Agreeing++
			}
		}
	}
	res.OverallConfidence = confSum / float64(n)
	return res, nil
}

// bitFuser holds per-call scratch space so a merge does not allocate per
// position.
type bitFuser struct {
	revs []Revision
	opts *Options

	voters  []int
	timings []float64
}

func newBitFuser(revs []Revision, opts *Options) *bitFuser {
	return &bitFuser{
		revs:    revs,
		opts:    opts,
		voters:  make([]int, 0, len(revs)),
		timings: make([]float64, 0, len(revs)),
	}
}

func (f *bitFuser) fuse(pos int) FusedBit {
	f.voters = f.voters[:0]
	f.timings = f.timings[:0]
	allTiming := true
	for i := range f.revs {
		r := &f.revs[i]
		if !r.covers(pos) {
			continue
		}
		f.voters = append(f.voters, i)
		if r.hasTiming(pos) {
			f.timings = append(f.timings, float64(r.Timing[pos]))
		} else {
			allTiming = false
		}
	}

	var out FusedBit
	out.Voters = len(f.voters)
	if out.Voters == 0 {
		out.Weak = true
		return out
	}

	method := f.opts.Method
	if method == MethodAdaptive {
		method = MethodWeighted
		if allTiming {
			method = MethodTimingAware
		}
	}

	var mean, spread float64
	if len(f.timings) >= 2 {
		mean, out.TimingVariance = stat.MeanVariance(f.timings, nil)
		if mean > 0 {
			spread = math.Sqrt(out.TimingVariance) / mean
		}
	} else if len(f.timings) == 1 {
		mean = f.timings[0]
	}

	var votes [2]float64
	for _, i := range f.voters {
		r := &f.revs[i]
		w := f.opts.revisionWeight(r, i, pos, method)
		if method == MethodTimingAware && mean > 0 && r.hasTiming(pos) {
			rel := math.Abs(float64(r.Timing[pos])-mean) / mean / f.opts.TimingSpread
			w /= 1 + rel*rel
		}
		votes[r.bit(pos)] += w
	}

	// Ties go to 0.
	if votes[1] > votes[0] {
		out.Value = 1
	}
	if total := votes[0] + votes[1]; total > 0 {
		out.Confidence = uint8(math.Round(votes[out.Value] / total * 255))
	}
	for _, i := range f.voters {
		if f.revs[i].bit(pos) == out.Value {
			out.Agreeing++
		}
	}

	disagree := out.Agreeing < out.Voters
	out.Weak = disagree && out.Voters >= f.opts.WeakThreshold
	if method == MethodTimingAware && spread > f.opts.TimingSpread {
		out.Weak = true
	}
	return out
}

// revisionWeight is the vote weight of revision idx at pos before any
// timing adjustment.
func (o *Options) revisionWeight(r *Revision, idx, pos int, m Method) float64 {
	if m == MethodMajority {
		return o.BaseWeight
	}
	w := o.BaseWeight
	if r.hasConfidence(pos) {
		w *= float64(r.Confidence[pos]) / 255
	}
	if r.Quality > 0 {
		w *= float64(r.Quality) / 100
	}
	if r.IntegrityOK {
		w += o.IntegrityBonus
	}
	return w + o.RecencyBonus*float64(idx)
}
