package recovery

import (
	"github.com/banshee-data/fluxrecovery/internal/config"
	"github.com/banshee-data/fluxrecovery/internal/flux/fusion"
	"github.com/banshee-data/fluxrecovery/internal/flux/syncmark"
	"github.com/banshee-data/fluxrecovery/internal/flux/vfo"
)

// Params gathers the settings of every stage a track passes through.
type Params struct {
	VFO    vfo.Config
	Sync   syncmark.Config
	Fusion fusion.Options

	// MaxTrackBits caps the bits kept per revolution.
	MaxTrackBits int
	// ResyncGapFactor is how many expected sync gaps may pass without an
	// accepted mark before the clock is soft-reset. Zero disables resync,
	// as does a zero expected gap.
	ResyncGapFactor int
	// AlignSearchBits bounds the correlation search used when a revolution
	// has no accepted mark to align on.
	AlignSearchBits int

	RSParitySymbols int
	RSBlockLength   int
}

const (
	DefaultMaxTrackBits    = 400_000
	DefaultResyncGapFactor = 4
	DefaultAlignSearchBits = 64
	DefaultRSParitySymbols = 16
	DefaultRSBlockLength   = 255
)

func DefaultParams() Params {
	return Params{
		VFO:             vfo.DefaultConfig(),
		Sync:            syncmark.DefaultConfig(),
		Fusion:          fusion.DefaultOptions(),
		MaxTrackBits:    DefaultMaxTrackBits,
		ResyncGapFactor: DefaultResyncGapFactor,
		AlignSearchBits: DefaultAlignSearchBits,
		RSParitySymbols: DefaultRSParitySymbols,
		RSBlockLength:   DefaultRSBlockLength,
	}
}

// ParamsFromTuning builds Params from a loaded TuningConfig.
func ParamsFromTuning(cfg *config.TuningConfig) Params {
	return Params{
		VFO:             vfo.ConfigFromTuning(cfg),
		Sync:            syncmark.ConfigFromTuning(cfg),
		Fusion:          fusion.OptionsFromTuning(cfg),
		MaxTrackBits:    cfg.GetMaxTrackBits(),
		ResyncGapFactor: cfg.GetResyncGapFactor(),
		AlignSearchBits: cfg.GetAlignSearchBits(),
		RSParitySymbols: cfg.GetRSParitySymbols(),
		RSBlockLength:   cfg.GetRSBlockLength(),
	}
}
