// Package units provides the recording-format presets and the conversions
// between sample ticks, bit cells and disk rotation used by the CLI.
package units

import (
	"fmt"
	"strings"
)

// Preset names
const (
	MFMDD    = "mfm-dd"     // double density, 300 rpm
	MFMDD360 = "mfm-dd-360" // double density read in a 360 rpm drive
	MFMHD    = "mfm-hd"     // high density, 300 rpm
	MFMED    = "mfm-ed"     // extended density, 300 rpm
	FMSD     = "fm-sd"      // single density, 300 rpm
)

// Encoding names
const (
	EncodingMFM = "mfm"
	EncodingFM  = "fm"
)

// Preset describes a recording format. DataRate is user data bits per
// second; CellRate is the flux cell rate the clock recovery locks to, which
// is twice the data rate for both FM and MFM.
type Preset struct {
	Name     string
	Encoding string
	DataRate float64
	CellRate float64
	RPM      float64
}

var presets = []Preset{
	{Name: MFMDD, Encoding: EncodingMFM, DataRate: 250000, CellRate: 500000, RPM: 300},
	{Name: MFMDD360, Encoding: EncodingMFM, DataRate: 300000, CellRate: 600000, RPM: 360},
	{Name: MFMHD, Encoding: EncodingMFM, DataRate: 500000, CellRate: 1000000, RPM: 300},
	{Name: MFMED, Encoding: EncodingMFM, DataRate: 1000000, CellRate: 2000000, RPM: 300},
	{Name: FMSD, Encoding: EncodingFM, DataRate: 125000, CellRate: 250000, RPM: 300},
}

// ValidPresets contains all preset names
var ValidPresets = []string{MFMDD, MFMDD360, MFMHD, MFMED, FMSD}

// IsValid checks if the given name is a known preset
func IsValid(name string) bool {
	_, ok := Lookup(name)
	return ok
}

// GetValidPresetsString returns a comma-separated string of presets for error messages
func GetValidPresetsString() string {
	return strings.Join(ValidPresets, ", ")
}

// Lookup returns the preset with the given name.
func Lookup(name string) (Preset, bool) {
	for _, p := range presets {
		if p.Name == name {
			return p, true
		}
	}
	return Preset{}, false
}

// MustLookup is Lookup for names from ValidPresets.
func MustLookup(name string) Preset {
	p, ok := Lookup(name)
	if !ok {
		panic(fmt.Sprintf("units: unknown preset %q", name))
	}
	return p
}

// CellsPerRevolution is the nominal number of cells on one track.
func (p Preset) CellsPerRevolution() float64 {
	return CellsPerRevolution(p.CellRate, p.RPM)
}

// TicksPerCell is the nominal cell size at the given sampling rate.
func (p Preset) TicksPerCell(samplingRate float64) float64 {
	return TicksPerCell(samplingRate, p.CellRate)
}
