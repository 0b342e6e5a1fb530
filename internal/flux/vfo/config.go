package vfo

import "github.com/banshee-data/fluxrecovery/internal/config"

// Config carries everything needed to build a ClockState and a Separator.
// Zero-valued fields fall back to the package defaults.
type Config struct {
	// SamplingRate is the capture clock in ticks per second.
	SamplingRate float64
	// BitRate is the raw cell rate in cells per second (500000 for
	// double-density MFM).
	BitRate float64

	WindowRatio float64
	GainLow     float64
	GainHigh    float64
	GainSlew    float64
	PID         PID

	// MaxCellsPerInterval bounds how many cells a single flux interval may
	// expand to. Longer gaps are treated as dropouts.
	MaxCellsPerInterval int
}

const (
	DefaultSamplingRate        = 40_000_000
	DefaultBitRate             = 500_000
	DefaultMaxCellsPerInterval = 8
)

// DefaultConfig returns a configuration for double-density MFM captured at
// 40 MHz (80 ticks per cell).
func DefaultConfig() Config {
	return Config{
		SamplingRate:        DefaultSamplingRate,
		BitRate:             DefaultBitRate,
		WindowRatio:         DefaultWindowRatio,
		GainLow:             DefaultGainLow,
		GainHigh:            DefaultGainHigh,
		GainSlew:            DefaultGainSlew,
		PID:                 DefaultPID(),
		MaxCellsPerInterval: DefaultMaxCellsPerInterval,
	}
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		SamplingRate: cfg.GetSamplingRateHz(),
		BitRate:      cfg.GetBitRate(),
		WindowRatio:  cfg.GetWindowRatio(),
		GainLow:      cfg.GetGainLow(),
		GainHigh:     cfg.GetGainHigh(),
		GainSlew:     cfg.GetGainSlew(),
		PID: PID{
			P: cfg.GetPIDP(),
			I: cfg.GetPIDI(),
			D: cfg.GetPIDD(),
		},
		MaxCellsPerInterval: cfg.GetMaxCellsPerInterval(),
	}
}
