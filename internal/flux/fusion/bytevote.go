package fusion

import (
	"math"

	"github.com/banshee-data/fluxrecovery/internal/flux/bitstream"
)

// ByteResult is the outcome of MergeBytes. Confidence and WeakMask hold one
// entry per byte position; WeakMask is packed MSB-first.
type ByteResult struct {
	Data       []byte
	Confidence []byte
	WeakMask   []byte

	TotalBytes     int
	UnanimousBytes int
	MajorityBytes  int
	WeakBytes      int
	UncertainBytes int
	// OverallConfidence is the mean per-position confidence in [0,1].
	OverallConfidence float64

	Strategy Strategy
	// Source is the revision copied by StrategyBestWhole, otherwise -1.
	Source int
	// Scores holds each revision's quality score when the strategy used
	// them.
	Scores    []int
	Revisions []RevisionStats
}

// AgreementRatio returns (unanimous + majority) / total.
func (r *ByteResult) AgreementRatio() float64 {
	if r.TotalBytes == 0 {
		return 0
	}
	return float64(r.UnanimousBytes+r.MajorityBytes) / float64(r.TotalBytes)
}

// IsWeak reports whether position pos was flagged weak. It is false when
// the weak mask was not requested.
func (r *ByteResult) IsWeak(pos int) bool {
	if r.WeakMask == nil || pos < 0 || pos >= r.TotalBytes {
		return false
	}
	return bitstream.Get(r.WeakMask, pos) == 1
}

func byteSpan(r *Revision) int { return bitstream.ByteLen(r.BitCount) }

// MergeBytes fuses byte-aligned copies of the same region, such as sector
// payloads from several reads, using opts.Strategy.
func MergeBytes(revs []Revision, opts Options) (*ByteResult, error) {
	n, err := checkRevisions(revs, byteSpan)
	if err != nil {
		return nil, err
	}
	opts.normalise()

	res := &ByteResult{
		Strategy:  opts.Strategy,
		Source:    -1,
		Revisions: make([]RevisionStats, len(revs)),
	}
	if opts.Strategy != StrategyMajority {
		res.Scores = make([]int, len(revs))
		for i := range revs {
			res.Scores[i] = opts.score(&revs[i])
		}
	}
	if opts.Strategy == StrategyBestWhole {
		res.Source = bestWhole(revs, res.Scores, opts.IntegrityBonus)
		n = byteSpan(&revs[res.Source])
	}

	res.Data = make([]byte, n)
	res.TotalBytes = n
	if opts.WantConfidence {
		res.Confidence = make([]byte, n)
	}
	if opts.WantWeakMask {
		res.WeakMask = make([]byte, bitstream.ByteLen(n))
	}

	var votes [256]float64
	voters := make([]int, 0, len(revs))
	var confSum float64
	for pos := 0; pos < n; pos++ {
		voters = voters[:0]
		for i := range revs {
			r := &revs[i]
			if pos >= byteSpan(r) || pos*8 < r.Skip {
				continue
			}
			voters = append(voters, i)
		}

		var value byte
		var conf uint8
		switch opts.Strategy {
		case StrategyBestWhole:
			value = revs[res.Source].Bits[pos]
		case StrategyConfidence:
			best := -1
			for _, i := range voters {
				if best < 0 || res.Scores[i] > res.Scores[best] {
					best = i
				}
			}
			if best >= 0 {
				value = revs[best].Bits[pos]
			}
		default:
			var total float64
			for _, i := range voters {
				w := float64(max(res.scoreOf(i), 1))
				if opts.Strategy == StrategyMajority {
					w = opts.revisionWeight(&revs[i], i, pos, MethodWeighted)
				}
				votes[revs[i].Bits[pos]] += w
				total += w
			}
			// Ties go to the lowest byte value.
			for _, i := range voters {
				b := revs[i].Bits[pos]
				if votes[b] > votes[value] || (votes[b] == votes[value] && b < value) {
					value = b
				}
			}
			if total > 0 {
				conf = uint8(math.Round(votes[value] / total * 255))
			}
			for _, i := range voters {
				votes[revs[i].Bits[pos]] = 0
			}
		}

		agreeing := 0
		for _, i := range voters {
			st := &res.Revisions[i]
			st.Covered++
			if revs[i].Bits[pos] == value {
				st.Agreeing++
				agreeing++
			}
		}
		if opts.Strategy == StrategyBestWhole || opts.Strategy == StrategyConfidence {
			if len(voters) > 0 {
				conf = uint8(math.Round(float64(agreeing) / float64(len(voters)) * 255))
			}
		}

		res.Data[pos] = value
		if res.Confidence != nil {
			res.Confidence[pos] = conf
		}
		weak := len(voters) == 0 || (agreeing < len(voters) && len(voters) >= opts.WeakThreshold)
		if weak {
			res.WeakBytes++
			if res.WeakMask != nil {
				bitstream.Set(res.WeakMask, pos, 1)
			}
		}
		switch {
		case len(voters) > 0 && agreeing == len(voters):
			res.UnanimousBytes++
		case 2*agreeing > len(voters):
			res.MajorityBytes++
		}
		if conf < uncertainConfidence {
			res.UncertainBytes++
		}
		confSum += float64(conf) / 255
	}
	if n > 0 {
		res.OverallConfidence = confSum / float64(n)
	}
	return res, nil
}

func (r *ByteResult) scoreOf(i int) int {
	if r.Scores == nil {
		return 0
	}
	return r.Scores[i]
}

// bestWhole returns the index of the highest scoring revision, counting an
// integrity pass as bonus points. Ties go to the earlier revision; empty
// revisions are never picked while a non-empty one exists.
func bestWhole(revs []Revision, scores []int, bonus float64) int {
	best, bestKey := -1, 0.0
	for i := range revs {
		if revs[i].BitCount == 0 {
			continue
		}
		key := float64(scores[i])
		if revs[i].IntegrityOK {
			key += bonus
		}
		if best < 0 || key > bestKey {
			best, bestKey = i, key
		}
	}
	return best
}
