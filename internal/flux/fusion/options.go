package fusion

import (
	"fmt"

	"github.com/banshee-data/fluxrecovery/internal/config"
)

// Method selects how bit votes are weighted.
type Method int

const (
	// MethodAuto picks a method per call with Recommend.
	MethodAuto Method = iota
	// MethodMajority gives every covering revision the base weight.
	MethodMajority
	// MethodWeighted applies confidence, quality, integrity and recency.
	MethodWeighted
	// MethodTimingAware is MethodWeighted further scaled down for revisions
	// whose flux timing strays from the other revisions at that position.
	MethodTimingAware
	// MethodAdaptive uses MethodTimingAware where every covering revision
	// has timing and MethodWeighted elsewhere.
	MethodAdaptive
)

var methodNames = [...]string{"auto", "majority", "weighted", "timing-aware", "adaptive"}

func (m Method) String() string {
	if m >= 0 && int(m) < len(methodNames) {
		return methodNames[m]
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

// ParseMethod converts a name accepted in tuning files to a Method.
func ParseMethod(s string) (Method, error) {
	for i, name := range methodNames {
		if s == name {
			return Method(i), nil
		}
	}
	return 0, fmt.Errorf("fusion: unknown method %q", s)
}

// Strategy selects how MergeBytes combines byte-aligned copies.
type Strategy int

const (
	// StrategyMajority runs a weighted vote over the 256 byte values.
	StrategyMajority Strategy = iota
	// StrategyBestWhole copies the single best scoring revision verbatim.
	StrategyBestWhole
	// StrategyWeighted votes with weights taken only from revision quality.
	StrategyWeighted
	// StrategyConfidence takes each position from the highest quality
	// revision that covers it.
	StrategyConfidence
)

var strategyNames = [...]string{"majority", "best-whole", "weighted", "confidence"}

func (s Strategy) String() string {
	if s >= 0 && int(s) < len(strategyNames) {
		return strategyNames[s]
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// ParseStrategy converts a name accepted in tuning files to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	for i, name := range strategyNames {
		if s == name {
			return Strategy(i), nil
		}
	}
	return 0, fmt.Errorf("fusion: unknown strategy %q", s)
}

// Options tunes a merge. The zero value is not useful; start from
// DefaultOptions.
type Options struct {
	Method   Method
	Strategy Strategy

	BaseWeight     float64
	IntegrityBonus float64
	// RecencyBonus is added once per rank, so the revision at index i gets
	// i*RecencyBonus on top of its weight.
	RecencyBonus float64
	// WeakThreshold is the number of voters at which a disagreement marks
	// a position weak.
	WeakThreshold int

	// TimingSpread is the relative timing deviation at which a revision's
	// timing-aware weight halves, and the coefficient of variation above
	// which a position is weak regardless of the vote.
	TimingSpread float64

	// QualityBitRate and JitterToleranceNs drive Quality when a revision
	// has no score of its own.
	QualityBitRate    float64
	JitterToleranceNs float64

	// WantConfidence and WantWeakMask request the optional outputs.
	WantConfidence bool
	WantWeakMask   bool
}

const (
	DefaultBaseWeight        = 100
	DefaultIntegrityBonus    = 50
	DefaultRecencyBonus      = 5
	DefaultWeakThreshold     = 2
	DefaultTimingSpread      = 0.1
	DefaultQualityBitRate    = 250_000
	DefaultJitterToleranceNs = 500
)

func DefaultOptions() Options {
	return Options{
		BaseWeight:        DefaultBaseWeight,
		IntegrityBonus:    DefaultIntegrityBonus,
		RecencyBonus:      DefaultRecencyBonus,
		WeakThreshold:     DefaultWeakThreshold,
		TimingSpread:      DefaultTimingSpread,
		QualityBitRate:    DefaultQualityBitRate,
		JitterToleranceNs: DefaultJitterToleranceNs,
		WantConfidence:    true,
		WantWeakMask:      true,
	}
}

// OptionsFromTuning builds Options from a loaded TuningConfig. Names were
// checked by TuningConfig.Validate, so unknown values fall back to the
// defaults.
func OptionsFromTuning(cfg *config.TuningConfig) Options {
	opts := DefaultOptions()
	opts.BaseWeight = cfg.GetBaseWeight()
	opts.IntegrityBonus = cfg.GetIntegrityBonus()
	opts.RecencyBonus = cfg.GetRecencyBonus()
	opts.WeakThreshold = cfg.GetWeakThreshold()
	opts.QualityBitRate = cfg.GetQualityBitRate()
	opts.JitterToleranceNs = cfg.GetJitterToleranceNs()
	if m, err := ParseMethod(cfg.GetFusionMethod()); err == nil {
		opts.Method = m
	}
	if s, err := ParseStrategy(cfg.GetFusionStrategy()); err == nil {
		opts.Strategy = s
	}
	return opts
}

func (o *Options) normalise() {
	if o.BaseWeight <= 0 {
		o.BaseWeight = DefaultBaseWeight
	}
	if o.WeakThreshold < 1 {
		o.WeakThreshold = DefaultWeakThreshold
	}
	if o.TimingSpread <= 0 {
		o.TimingSpread = DefaultTimingSpread
	}
	if o.QualityBitRate <= 0 {
		o.QualityBitRate = DefaultQualityBitRate
	}
	if o.JitterToleranceNs <= 0 {
		o.JitterToleranceNs = DefaultJitterToleranceNs
	}
}
