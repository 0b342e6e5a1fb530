package units

import (
	"math"
	"testing"
)

func TestLookup(t *testing.T) {
	for _, name := range ValidPresets {
		p, ok := Lookup(name)
		if !ok {
			t.Errorf("Lookup(%q) failed", name)
			continue
		}
		if p.Name != name {
			t.Errorf("Lookup(%q).Name = %q", name, p.Name)
		}
		if p.CellRate != 2*p.DataRate {
			t.Errorf("%s: cell rate %g is not twice the data rate %g", name, p.CellRate, p.DataRate)
		}
	}
	if IsValid("gcr") {
		t.Errorf("IsValid(gcr) should be false")
	}
}

func TestGetValidPresetsString(t *testing.T) {
	want := "mfm-dd, mfm-dd-360, mfm-hd, mfm-ed, fm-sd"
	if got := GetValidPresetsString(); got != want {
		t.Errorf("GetValidPresetsString() = %q, want %q", got, want)
	}
}

func TestMustLookupPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("MustLookup should panic on an unknown preset")
		}
	}()
	MustLookup("nope")
}

func TestPresetGeometry(t *testing.T) {
	tests := []struct {
		name  string
		cells float64
		ticks float64
	}{
		{MFMDD, 100000, 80},
		{MFMDD360, 100000, 66.6667},
		{MFMHD, 200000, 40},
		{FMSD, 50000, 160},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := MustLookup(tt.name)
			if got := p.CellsPerRevolution(); math.Abs(got-tt.cells) > 0.01 {
				t.Errorf("CellsPerRevolution() = %f, want %f", got, tt.cells)
			}
			if got := p.TicksPerCell(40e6); math.Abs(got-tt.ticks) > 0.001 {
				t.Errorf("TicksPerCell() = %f, want %f", got, tt.ticks)
			}
		})
	}
}

func TestConversions(t *testing.T) {
	tests := []struct {
		name     string
		got      float64
		expected float64
	}{
		{"80 ticks at 40MHz", TicksToNs(80, 40e6), 2000},
		{"2us at 40MHz", NsToTicks(2000, 40e6), 80},
		{"revolution at 300rpm", RevolutionTicks(40e6, 300), 8e6},
		{"cells at 360rpm", CellsPerRevolution(500000, 360), 83333.33},
		{"zero sampling rate", TicksToNs(80, 0), 0},
		{"zero rpm", RevolutionTicks(40e6, 0), 0},
		{"zero cell rate", TicksPerCell(40e6, 0), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if math.Abs(tt.got-tt.expected) > 0.01 {
				t.Errorf("got %f, want %f", tt.got, tt.expected)
			}
		})
	}
}

func TestRPM(t *testing.T) {
	// 100000 cells of 80 ticks at 40MHz is one revolution at 300 rpm.
	intervals := make([]uint32, 50000)
	for i := range intervals {
		intervals[i] = 160
	}
	if got := TotalTicks(intervals); got != 8000000 {
		t.Fatalf("TotalTicks() = %d", got)
	}
	if got := RPM(intervals, 40e6); math.Abs(got-300) > 1e-9 {
		t.Errorf("RPM() = %f, want 300", got)
	}
	if got := RPM(nil, 40e6); got != 0 {
		t.Errorf("RPM(nil) = %f, want 0", got)
	}
}
