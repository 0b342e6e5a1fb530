package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// Recognised values for FusionMethod and FusionStrategy. The fusion package
// parses these; they live here so Validate does not depend on it.
var (
	FusionMethods    = []string{"auto", "majority", "weighted", "timing-aware", "adaptive"}
	FusionStrategies = []string{"majority", "best-whole", "weighted", "confidence"}
)

// TuningConfig holds every tunable of the recovery pipeline. Fields are
// pointers so that a partial JSON file only overrides what it names; the
// Get* methods supply defaults for the rest.
type TuningConfig struct {
	// Clock recovery
	SamplingRateHz      *float64 `json:"sampling_rate_hz,omitempty"`
	BitRate             *float64 `json:"bit_rate,omitempty"` // raw cells per second
	WindowRatio         *float64 `json:"window_ratio,omitempty"`
	GainLow             *float64 `json:"gain_low,omitempty"`
	GainHigh            *float64 `json:"gain_high,omitempty"`
	GainSlew            *float64 `json:"gain_slew,omitempty"`
	PIDP                *float64 `json:"pid_p,omitempty"`
	PIDI                *float64 `json:"pid_i,omitempty"`
	PIDD                *float64 `json:"pid_d,omitempty"`
	MaxCellsPerInterval *int     `json:"max_cells_per_interval,omitempty"`
	MaxTrackBits        *int     `json:"max_track_bits,omitempty"`

	// Sync detection
	ExpectedGapBits   *int  `json:"expected_gap_bits,omitempty"` // 0 disables gap scoring
	GapToleranceBits  *int  `json:"gap_tolerance_bits,omitempty"`
	MinSeparationBits *int  `json:"min_separation_bits,omitempty"`
	StrictMode        *bool `json:"strict_mode,omitempty"`
	StrictThreshold   *int  `json:"strict_threshold,omitempty"`
	LooseThreshold    *int  `json:"loose_threshold,omitempty"`
	CandidateCapacity *int  `json:"candidate_capacity,omitempty"`
	ResyncGapFactor   *int  `json:"resync_gap_factor,omitempty"`

	// Fusion
	BaseWeight        *float64 `json:"base_weight,omitempty"`
	IntegrityBonus    *float64 `json:"integrity_bonus,omitempty"`
	RecencyBonus      *float64 `json:"recency_bonus,omitempty"`
	WeakThreshold     *int     `json:"weak_threshold,omitempty"`
	QualityBitRate    *float64 `json:"quality_bit_rate,omitempty"`
	JitterToleranceNs *float64 `json:"jitter_tolerance_ns,omitempty"`
	AlignSearchBits   *int     `json:"align_search_bits,omitempty"`
	FusionMethod      *string  `json:"fusion_method,omitempty"`
	FusionStrategy    *string  `json:"fusion_strategy,omitempty"`

	// Error correction
	RSParitySymbols *int `json:"rs_parity_symbols,omitempty"`
	RSBlockLength   *int `json:"rs_block_length,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted
// from the file fall back to the Get* defaults.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches the current directory and parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/flux/vfo/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.SamplingRateHz != nil && *c.SamplingRateHz <= 0 {
		return fmt.Errorf("sampling_rate_hz must be positive, got %f", *c.SamplingRateHz)
	}
	if c.BitRate != nil && *c.BitRate <= 0 {
		return fmt.Errorf("bit_rate must be positive, got %f", *c.BitRate)
	}
	if c.SamplingRateHz != nil && c.BitRate != nil && *c.SamplingRateHz/(*c.BitRate) < 2 {
		return fmt.Errorf("sampling_rate_hz must be at least twice bit_rate, got %f / %f", *c.SamplingRateHz, *c.BitRate)
	}
	if c.WindowRatio != nil && (*c.WindowRatio < 0.2 || *c.WindowRatio > 0.9) {
		return fmt.Errorf("window_ratio must be between 0.2 and 0.9, got %f", *c.WindowRatio)
	}
	for name, v := range map[string]*float64{"gain_low": c.GainLow, "gain_high": c.GainHigh, "gain_slew": c.GainSlew} {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %f", name, *v)
		}
	}
	for name, v := range map[string]*float64{"pid_p": c.PIDP, "pid_i": c.PIDI, "pid_d": c.PIDD} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must be non-negative, got %f", name, *v)
		}
	}
	if c.MaxCellsPerInterval != nil && *c.MaxCellsPerInterval < 2 {
		return fmt.Errorf("max_cells_per_interval must be at least 2, got %d", *c.MaxCellsPerInterval)
	}
	if c.MaxTrackBits != nil && *c.MaxTrackBits <= 0 {
		return fmt.Errorf("max_track_bits must be positive, got %d", *c.MaxTrackBits)
	}

	for name, v := range map[string]*int{
		"expected_gap_bits":   c.ExpectedGapBits,
		"gap_tolerance_bits":  c.GapToleranceBits,
		"min_separation_bits": c.MinSeparationBits,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must be non-negative, got %d", name, *v)
		}
	}
	for name, v := range map[string]*int{"strict_threshold": c.StrictThreshold, "loose_threshold": c.LooseThreshold} {
		if v != nil && (*v < 0 || *v > 100) {
			return fmt.Errorf("%s must be between 0 and 100, got %d", name, *v)
		}
	}
	if c.CandidateCapacity != nil && (*c.CandidateCapacity < 1 || *c.CandidateCapacity > 4096) {
		return fmt.Errorf("candidate_capacity must be between 1 and 4096, got %d", *c.CandidateCapacity)
	}
	if c.ResyncGapFactor != nil && *c.ResyncGapFactor < 1 {
		return fmt.Errorf("resync_gap_factor must be at least 1, got %d", *c.ResyncGapFactor)
	}

	for name, v := range map[string]*float64{
		"base_weight":         c.BaseWeight,
		"integrity_bonus":     c.IntegrityBonus,
		"recency_bonus":       c.RecencyBonus,
		"jitter_tolerance_ns": c.JitterToleranceNs,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must be non-negative, got %f", name, *v)
		}
	}
	if c.BaseWeight != nil && *c.BaseWeight == 0 {
		return fmt.Errorf("base_weight must be positive")
	}
	if c.WeakThreshold != nil && *c.WeakThreshold < 1 {
		return fmt.Errorf("weak_threshold must be at least 1, got %d", *c.WeakThreshold)
	}
	if c.QualityBitRate != nil && *c.QualityBitRate <= 0 {
		return fmt.Errorf("quality_bit_rate must be positive, got %f", *c.QualityBitRate)
	}
	if c.AlignSearchBits != nil && *c.AlignSearchBits < 0 {
		return fmt.Errorf("align_search_bits must be non-negative, got %d", *c.AlignSearchBits)
	}
	if c.FusionMethod != nil && !contains(FusionMethods, *c.FusionMethod) {
		return fmt.Errorf("unknown fusion_method %q", *c.FusionMethod)
	}
	if c.FusionStrategy != nil && !contains(FusionStrategies, *c.FusionStrategy) {
		return fmt.Errorf("unknown fusion_strategy %q", *c.FusionStrategy)
	}

	if c.RSParitySymbols != nil && (*c.RSParitySymbols < 2 || *c.RSParitySymbols > 128) {
		return fmt.Errorf("rs_parity_symbols must be between 2 and 128, got %d", *c.RSParitySymbols)
	}
	if c.RSBlockLength != nil && *c.RSBlockLength > 255 {
		return fmt.Errorf("rs_block_length must be at most 255, got %d", *c.RSBlockLength)
	}
	if c.GetRSBlockLength() <= c.GetRSParitySymbols() {
		return fmt.Errorf("rs_block_length %d must exceed rs_parity_symbols %d", c.GetRSBlockLength(), c.GetRSParitySymbols())
	}

	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func getFloat(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func getInt(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

// GetSamplingRateHz returns the capture clock, default 40 MHz.
func (c *TuningConfig) GetSamplingRateHz() float64 { return getFloat(c.SamplingRateHz, 40_000_000) }

// GetBitRate returns the raw cell rate, default 500k (double-density MFM).
func (c *TuningConfig) GetBitRate() float64 { return getFloat(c.BitRate, 500_000) }

func (c *TuningConfig) GetWindowRatio() float64 { return getFloat(c.WindowRatio, 0.75) }
func (c *TuningConfig) GetGainLow() float64     { return getFloat(c.GainLow, 0.3) }
func (c *TuningConfig) GetGainHigh() float64    { return getFloat(c.GainHigh, 1.0) }
func (c *TuningConfig) GetGainSlew() float64    { return getFloat(c.GainSlew, 0.05) }
func (c *TuningConfig) GetPIDP() float64        { return getFloat(c.PIDP, 0.25) }
func (c *TuningConfig) GetPIDI() float64        { return getFloat(c.PIDI, 1.0/64) }
func (c *TuningConfig) GetPIDD() float64        { return getFloat(c.PIDD, 1.0/16) }

// GetMaxCellsPerInterval returns the longest run a single interval may
// expand to, default 8.
func (c *TuningConfig) GetMaxCellsPerInterval() int { return getInt(c.MaxCellsPerInterval, 8) }

// GetMaxTrackBits bounds the bits kept per revolution, default 400000.
func (c *TuningConfig) GetMaxTrackBits() int { return getInt(c.MaxTrackBits, 400_000) }

// GetExpectedGapBits returns the expected distance between sync marks.
// The default of 0 means no reference and every candidate gets the flat
// timing score.
func (c *TuningConfig) GetExpectedGapBits() int   { return getInt(c.ExpectedGapBits, 0) }
func (c *TuningConfig) GetGapToleranceBits() int  { return getInt(c.GapToleranceBits, 32) }
func (c *TuningConfig) GetMinSeparationBits() int { return getInt(c.MinSeparationBits, 64) }

// GetStrictMode returns the strict_mode value or the default (true).
func (c *TuningConfig) GetStrictMode() bool {
	if c.StrictMode == nil {
		return true
	}
	return *c.StrictMode
}

func (c *TuningConfig) GetStrictThreshold() int   { return getInt(c.StrictThreshold, 70) }
func (c *TuningConfig) GetLooseThreshold() int    { return getInt(c.LooseThreshold, 50) }
func (c *TuningConfig) GetCandidateCapacity() int { return getInt(c.CandidateCapacity, 64) }

// GetResyncGapFactor returns how many expected gaps may pass without an
// accepted mark before the clock is re-synchronised, default 4.
func (c *TuningConfig) GetResyncGapFactor() int { return getInt(c.ResyncGapFactor, 4) }

func (c *TuningConfig) GetBaseWeight() float64     { return getFloat(c.BaseWeight, 100) }
func (c *TuningConfig) GetIntegrityBonus() float64 { return getFloat(c.IntegrityBonus, 50) }
func (c *TuningConfig) GetRecencyBonus() float64   { return getFloat(c.RecencyBonus, 5) }
func (c *TuningConfig) GetWeakThreshold() int      { return getInt(c.WeakThreshold, 2) }

// GetQualityBitRate returns the data bit rate assumed when scoring a
// revision's timing jitter, default 250000.
func (c *TuningConfig) GetQualityBitRate() float64    { return getFloat(c.QualityBitRate, 250_000) }
func (c *TuningConfig) GetJitterToleranceNs() float64 { return getFloat(c.JitterToleranceNs, 500) }
func (c *TuningConfig) GetAlignSearchBits() int       { return getInt(c.AlignSearchBits, 64) }

// GetFusionMethod returns the bit merge method name, default "auto".
func (c *TuningConfig) GetFusionMethod() string {
	if c.FusionMethod == nil || *c.FusionMethod == "" {
		return "auto"
	}
	return *c.FusionMethod
}

// GetFusionStrategy returns the byte merge strategy name, default "majority".
func (c *TuningConfig) GetFusionStrategy() string {
	if c.FusionStrategy == nil || *c.FusionStrategy == "" {
		return "majority"
	}
	return *c.FusionStrategy
}

func (c *TuningConfig) GetRSParitySymbols() int { return getInt(c.RSParitySymbols, 16) }
func (c *TuningConfig) GetRSBlockLength() int   { return getInt(c.RSBlockLength, 255) }
