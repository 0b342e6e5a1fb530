// Package vfo recovers the bit-cell clock from a stream of flux transitions.
//
// A ClockState is a PID-controlled oscillator: each observed pulse position
// (its offset inside the current bit cell) nudges the cell-size estimate so
// that pulses stay centred in the data window. The loop runs with a high
// gain while locking onto sync fields and a low gain through data fields,
// sliding between the two rather than jumping.
package vfo

import (
	"errors"
	"fmt"
	"math"
)

// GainMode selects which of the two loop gains is targeted.
type GainMode int

const (
	GainHigh GainMode = iota // fast lock (sync fields)
	GainLow                  // stability (data fields)
)

func (m GainMode) String() string {
	switch m {
	case GainHigh:
		return "high"
	case GainLow:
		return "low"
	default:
		return fmt.Sprintf("GainMode(%d)", int(m))
	}
}

const (
	DefaultWindowRatio = 0.75
	MinWindowRatio     = 0.2
	MaxWindowRatio     = 0.9

	DefaultGainLow  = 0.3
	DefaultGainHigh = 1.0

	// DefaultGainSlew is how far the gain in use moves toward the target
	// gain per processed pulse.
	DefaultGainSlew = 0.05

	// Tolerance bounds the cell size to reference/Tolerance ..
	// reference*Tolerance.
	Tolerance = 1.4

	// integralLimit caps |I·integral| at this fraction of the reference cell.
	integralLimit = 0.4

	// phaseWrapMargin is subtracted from the cell size to decide that a
	// pulse position jumped across a cell boundary.
	phaseWrapMargin = 1.1

	historyLen = 4
)

// historyWeights weight the filter taps oldest to newest.
var historyWeights = [historyLen]float64{1, 2, 3, 4}

const historyWeightSum = 10.0

var ErrInvalidRate = errors.New("vfo: invalid sampling or bit rate")

// PID holds the loop coefficients.
type PID struct {
	P float64
	I float64
	D float64
}

// DefaultPID returns the empirically tuned coefficients.
func DefaultPID() PID {
	return PID{P: 0.25, I: 1.0 / 64, D: 1.0 / 16}
}

// ClockState is the state of one oscillator. It is owned by a single decode
// pipeline and must not be shared without external locking.
type ClockState struct {
	refCell     float64
	cell        float64
	center      float64
	windowRatio float64
	winStart    float64
	winEnd      float64

	pid      PID
	prevErr  float64
	integral float64

	history  [historyLen]float64
	histNext int
	primed   bool
	prevPos  float64

	gainLow   float64
	gainHigh  float64
	gainSlew  float64
	gainInUse float64
	mode      GainMode
}

// New builds a ClockState from cfg.
func New(cfg Config) (*ClockState, error) {
	s := &ClockState{
		pid:      cfg.PID,
		gainLow:  DefaultGainLow,
		gainHigh: DefaultGainHigh,
		gainSlew: cfg.GainSlew,
	}
	if s.gainSlew <= 0 {
		s.gainSlew = DefaultGainSlew
	}
	if cfg.GainLow > 0 || cfg.GainHigh > 0 {
		s.SetGain(cfg.GainLow, cfg.GainHigh)
	}
	if err := s.Configure(cfg.SamplingRate, cfg.BitRate, cfg.WindowRatio); err != nil {
		return nil, err
	}
	return s, nil
}

// Configure derives the reference cell (samplingRate/bitRate ticks) and the
// data window, then fully resets the loop. A window ratio outside
// [MinWindowRatio, MaxWindowRatio] falls back to DefaultWindowRatio.
func (s *ClockState) Configure(samplingRate, bitRate, windowRatio float64) error {
	if !(samplingRate > 0) || !(bitRate > 0) || math.IsInf(samplingRate, 0) || math.IsInf(bitRate, 0) {
		return fmt.Errorf("%w: sampling=%g bit=%g", ErrInvalidRate, samplingRate, bitRate)
	}
	ref := samplingRate / bitRate
	if ref < 2 {
		return fmt.Errorf("%w: %.3f ticks per cell", ErrInvalidRate, ref)
	}
	if !(windowRatio >= MinWindowRatio && windowRatio <= MaxWindowRatio) {
		windowRatio = DefaultWindowRatio
	}
	s.refCell = ref
	s.windowRatio = windowRatio
	s.Reset()
	return nil
}

// SetGain sets the low and high gain levels. Non-positive values keep the
// defaults.
func (s *ClockState) SetGain(low, high float64) {
	if !(low > 0) {
		low = DefaultGainLow
	}
	if !(high > 0) {
		high = DefaultGainHigh
	}
	s.gainLow = low
	s.gainHigh = high
}

// SelectGain switches the targeted gain. The gain in use follows gradually.
func (s *ClockState) SelectGain(mode GainMode) {
	s.mode = mode
}

// SetPID replaces the loop coefficients.
func (s *ClockState) SetPID(p PID) {
	s.pid = p
	s.clampIntegral()
}

// Reset restores the loop to its just-configured state, for a new track.
func (s *ClockState) Reset() {
	s.SoftReset()
	s.mode = GainHigh
	s.gainInUse = s.gainHigh
}

// SoftReset keeps the reference cell and gain state but clears the PID,
// filter and window state, for re-synchronising mid-track.
func (s *ClockState) SoftReset() {
	s.setCell(s.refCell)
	s.prevErr = 0
	s.integral = 0
	s.history = [historyLen]float64{}
	s.histNext = 0
	s.primed = false
	s.prevPos = 0
}

// Process feeds one pulse position (ticks from the start of the current
// cell) through the loop and returns the phase-unwrapped position that was
// used. The cell size is updated as a side effect.
func (s *ClockState) Process(pos float64) float64 {
	if !s.primed {
		for i := range s.history {
			s.history[i] = pos
		}
		s.prevPos = pos
		s.primed = true
	}

	adjusted := pos
	if math.Abs(pos-s.prevPos) > s.cell-phaseWrapMargin {
		if pos > s.prevPos {
			adjusted -= s.cell
		} else {
			adjusted += s.cell
		}
	}

	target := s.gainHigh
	if s.mode == GainLow {
		target = s.gainLow
	}
	switch {
	case s.gainInUse < target:
		s.gainInUse = math.Min(target, s.gainInUse+s.gainSlew)
	case s.gainInUse > target:
		s.gainInUse = math.Max(target, s.gainInUse-s.gainSlew)
	}

	s.history[s.histNext] = adjusted
	s.histNext = (s.histNext + 1) % historyLen
	var filtered float64
	for k := 0; k < historyLen; k++ {
		// k=0 is the oldest sample, which sits at histNext after the write.
		filtered += historyWeights[k] * s.history[(s.histNext+k)%historyLen]
	}
	filtered /= historyWeightSum

	phaseErr := s.center - filtered
	deriv := phaseErr - s.prevErr
	s.integral += phaseErr
	s.clampIntegral()

	correction := s.pid.P*phaseErr - s.pid.D*deriv + s.pid.I*s.integral
	s.setCell(s.refCell - s.gainInUse*correction)

	s.prevPos = pos
	s.prevErr = phaseErr
	return adjusted
}

func (s *ClockState) clampIntegral() {
	if s.pid.I <= 0 {
		s.integral = 0
		return
	}
	limit := integralLimit * s.refCell / s.pid.I
	if s.integral > limit {
		s.integral = limit
	} else if s.integral < -limit {
		s.integral = -limit
	}
}

func (s *ClockState) setCell(cell float64) {
	lo, hi := s.refCell/Tolerance, s.refCell*Tolerance
	if math.IsNaN(cell) || cell < lo {
		cell = lo
	} else if cell > hi {
		cell = hi
	}
	s.cell = cell
	s.center = cell / 2
	half := s.windowRatio * cell / 2
	s.winStart = s.center - half
	s.winEnd = s.center + half
}

// CellSize returns the current cell estimate in ticks.
func (s *ClockState) CellSize() float64 { return s.cell }

// ReferenceCellSize returns the nominal cell in ticks.
func (s *ClockState) ReferenceCellSize() float64 { return s.refCell }

// Center returns the cell centre in ticks.
func (s *ClockState) Center() float64 { return s.center }

// Window returns the data window bounds inside the current cell.
func (s *ClockState) Window() (start, end float64) { return s.winStart, s.winEnd }

// GainInUse returns the smoothed gain currently applied.
func (s *ClockState) GainInUse() float64 { return s.gainInUse }

// Mode returns the targeted gain mode.
func (s *ClockState) Mode() GainMode { return s.mode }
