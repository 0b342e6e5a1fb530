package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := EmptyTuningConfig()

	if got := cfg.GetSamplingRateHz(); got != 40_000_000 {
		t.Errorf("GetSamplingRateHz() = %f, want 40e6", got)
	}
	if got := cfg.GetBitRate(); got != 500_000 {
		t.Errorf("GetBitRate() = %f, want 500000", got)
	}
	if got := cfg.GetPIDI(); got != 1.0/64 {
		t.Errorf("GetPIDI() = %f, want 1/64", got)
	}
	if !cfg.GetStrictMode() {
		t.Error("GetStrictMode() = false, want true")
	}
	if got := cfg.GetExpectedGapBits(); got != 0 {
		t.Errorf("GetExpectedGapBits() = %d, want 0", got)
	}
	if got := cfg.GetQualityBitRate(); got != 250_000 {
		t.Errorf("GetQualityBitRate() = %f, want 250000", got)
	}
	if got := cfg.GetFusionMethod(); got != "auto" {
		t.Errorf("GetFusionMethod() = %q, want auto", got)
	}
	if got := cfg.GetFusionStrategy(); got != "majority" {
		t.Errorf("GetFusionStrategy() = %q, want majority", got)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("empty config should validate: %v", err)
	}
}

func TestDefaultsFileMatchesGetters(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	empty := EmptyTuningConfig()

	checks := []struct {
		name      string
		file, def float64
	}{
		{"sampling_rate_hz", cfg.GetSamplingRateHz(), empty.GetSamplingRateHz()},
		{"bit_rate", cfg.GetBitRate(), empty.GetBitRate()},
		{"window_ratio", cfg.GetWindowRatio(), empty.GetWindowRatio()},
		{"gain_low", cfg.GetGainLow(), empty.GetGainLow()},
		{"gain_high", cfg.GetGainHigh(), empty.GetGainHigh()},
		{"pid_p", cfg.GetPIDP(), empty.GetPIDP()},
		{"pid_i", cfg.GetPIDI(), empty.GetPIDI()},
		{"pid_d", cfg.GetPIDD(), empty.GetPIDD()},
		{"max_cells_per_interval", float64(cfg.GetMaxCellsPerInterval()), float64(empty.GetMaxCellsPerInterval())},
		{"min_separation_bits", float64(cfg.GetMinSeparationBits()), float64(empty.GetMinSeparationBits())},
		{"strict_threshold", float64(cfg.GetStrictThreshold()), float64(empty.GetStrictThreshold())},
		{"candidate_capacity", float64(cfg.GetCandidateCapacity()), float64(empty.GetCandidateCapacity())},
		{"base_weight", cfg.GetBaseWeight(), empty.GetBaseWeight()},
		{"integrity_bonus", cfg.GetIntegrityBonus(), empty.GetIntegrityBonus()},
		{"weak_threshold", float64(cfg.GetWeakThreshold()), float64(empty.GetWeakThreshold())},
		{"quality_bit_rate", cfg.GetQualityBitRate(), empty.GetQualityBitRate()},
		{"rs_parity_symbols", float64(cfg.GetRSParitySymbols()), float64(empty.GetRSParitySymbols())},
		{"rs_block_length", float64(cfg.GetRSBlockLength()), float64(empty.GetRSBlockLength())},
	}
	for _, c := range checks {
		if c.file != c.def {
			t.Errorf("%s: defaults file has %v, getter default is %v", c.name, c.file, c.def)
		}
	}
}

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "tuning.json")

	testJSON := `{
  "bit_rate": 1000000,
  "strict_mode": false,
  "expected_gap_bits": 704,
  "fusion_strategy": "best-whole"
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.GetBitRate() != 1_000_000 {
		t.Errorf("GetBitRate() = %f, want 1e6", cfg.GetBitRate())
	}
	if cfg.GetStrictMode() {
		t.Error("GetStrictMode() = true, want false")
	}
	if cfg.GetExpectedGapBits() != 704 {
		t.Errorf("GetExpectedGapBits() = %d, want 704", cfg.GetExpectedGapBits())
	}
	if cfg.GetFusionStrategy() != "best-whole" {
		t.Errorf("GetFusionStrategy() = %q", cfg.GetFusionStrategy())
	}
	// Unset fields keep defaults.
	if cfg.GetSamplingRateHz() != 40_000_000 {
		t.Errorf("GetSamplingRateHz() = %f, want default", cfg.GetSamplingRateHz())
	}
}

func TestLoadTuningConfig_Rejects(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("extension", func(t *testing.T) {
		p := filepath.Join(tmpDir, "tuning.yaml")
		if err := os.WriteFile(p, []byte("{}"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadTuningConfig(p); err == nil || !strings.Contains(err.Error(), ".json") {
			t.Errorf("expected extension error, got %v", err)
		}
	})

	t.Run("missing", func(t *testing.T) {
		if _, err := LoadTuningConfig(filepath.Join(tmpDir, "nope.json")); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("too large", func(t *testing.T) {
		p := filepath.Join(tmpDir, "big.json")
		big := make([]byte, 1024*1024+1)
		if err := os.WriteFile(p, big, 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadTuningConfig(p); err == nil || !strings.Contains(err.Error(), "too large") {
			t.Errorf("expected size error, got %v", err)
		}
	})

	t.Run("bad json", func(t *testing.T) {
		p := filepath.Join(tmpDir, "bad.json")
		if err := os.WriteFile(p, []byte("{"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadTuningConfig(p); err == nil {
			t.Error("expected parse error")
		}
	})

	t.Run("invalid value", func(t *testing.T) {
		p := filepath.Join(tmpDir, "invalid.json")
		if err := os.WriteFile(p, []byte(`{"rs_parity_symbols": 200}`), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadTuningConfig(p); err == nil || !strings.Contains(err.Error(), "rs_parity_symbols") {
			t.Errorf("expected validation error, got %v", err)
		}
	})
}

func TestValidate(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	i := func(v int) *int { return &v }
	s := func(v string) *string { return &v }

	tests := []struct {
		name    string
		cfg     TuningConfig
		wantErr string
	}{
		{"ok", TuningConfig{WindowRatio: f(0.5), RSParitySymbols: i(32)}, ""},
		{"sampling", TuningConfig{SamplingRateHz: f(0)}, "sampling_rate_hz"},
		{"undersampled", TuningConfig{SamplingRateHz: f(500_000), BitRate: f(500_000)}, "twice"},
		{"window", TuningConfig{WindowRatio: f(0.95)}, "window_ratio"},
		{"gain", TuningConfig{GainLow: f(-1)}, "gain_low"},
		{"pid", TuningConfig{PIDD: f(-0.1)}, "pid_d"},
		{"cells", TuningConfig{MaxCellsPerInterval: i(1)}, "max_cells_per_interval"},
		{"gap", TuningConfig{GapToleranceBits: i(-1)}, "gap_tolerance_bits"},
		{"threshold", TuningConfig{StrictThreshold: i(101)}, "strict_threshold"},
		{"capacity", TuningConfig{CandidateCapacity: i(0)}, "candidate_capacity"},
		{"weak", TuningConfig{WeakThreshold: i(0)}, "weak_threshold"},
		{"base weight", TuningConfig{BaseWeight: f(0)}, "base_weight"},
		{"method", TuningConfig{FusionMethod: s("random")}, "fusion_method"},
		{"strategy", TuningConfig{FusionStrategy: s("best")}, "fusion_strategy"},
		{"parity", TuningConfig{RSParitySymbols: i(1)}, "rs_parity_symbols"},
		{"block", TuningConfig{RSBlockLength: i(300)}, "rs_block_length"},
		{"block vs parity", TuningConfig{RSBlockLength: i(16), RSParitySymbols: i(16)}, "must exceed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}
