package fusion

import (
	"math"

	"github.com/banshee-data/fluxrecovery/internal/flux/bitstream"
	"gonum.org/v1/gonum/stat"
)

const (
	// longRunBits is the longest run of identical bits that still looks
	// like plausible data.
	longRunBits = 8

	// expectedRunBits is the mean run length of well-mixed data.
	expectedRunBits = 2

	maxJitterPenalty = 50
)

// Quality scores a decoded bit buffer from 0 to 100. Runs longer than eight
// identical bits are counted as errors. The mean run length is compared
// with the two bits expected of mixed data; the relative difference, taken
// as a fraction of one cell at bitRate, is the jitter estimate. The jitter
// penalty grows smoothly towards maxJitterPenalty and is half of it when
// the estimate equals toleranceNs.
func Quality(bits []byte, bitCount int, bitRate, toleranceNs float64) int {
	if bitCount > len(bits)*8 {
		bitCount = len(bits) * 8
	}
	if bitCount <= 0 || bitRate <= 0 || toleranceNs <= 0 {
		return 0
	}

	runs := make([]float64, 0, bitCount/expectedRunBits+1)
	longRuns := 0
	endRun := func(n int) {
		runs = append(runs, float64(n))
		if n > longRunBits {
			longRuns++
		}
	}
	run := 1
	prev := bitstream.Get(bits, 0)
	for i := 1; i < bitCount; i++ {
		b := bitstream.Get(bits, i)
		if b == prev {
			run++
			continue
		}
		endRun(run)
		run, prev = 1, b
	}
	endRun(run)

	bytesSeen := bitCount / 8
	if bytesSeen == 0 {
		bytesSeen = 1
	}
	score := 100 - float64(longRuns)/float64(bytesSeen)*100

	rel := math.Abs(stat.Mean(runs, nil)-expectedRunBits) / expectedRunBits
	jitterNs := rel * 1e9 / bitRate
	score -= maxJitterPenalty * jitterNs / (jitterNs + toleranceNs)

	return int(math.Round(math.Max(0, math.Min(100, score))))
}

// score returns the revision's own quality or, when unscored, the computed
// one.
func (o *Options) score(r *Revision) int {
	if r.Quality > 0 {
		return r.Quality
	}
	return Quality(r.Bits, r.BitCount, o.QualityBitRate, o.JitterToleranceNs)
}
