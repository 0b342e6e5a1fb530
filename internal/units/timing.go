package units

// TicksPerCell converts a cell rate to sample ticks per cell. Returns 0 for
// a non-positive cell rate.
func TicksPerCell(samplingRate, cellRate float64) float64 {
	if cellRate <= 0 {
		return 0
	}
	return samplingRate / cellRate
}

// TicksToNs converts sample ticks to nanoseconds.
func TicksToNs(ticks, samplingRate float64) float64 {
	if samplingRate <= 0 {
		return 0
	}
	return ticks * 1e9 / samplingRate
}

// NsToTicks converts nanoseconds to sample ticks.
func NsToTicks(ns, samplingRate float64) float64 {
	return ns * samplingRate / 1e9
}

// RevolutionTicks is the length of one revolution in sample ticks.
func RevolutionTicks(samplingRate, rpm float64) float64 {
	if rpm <= 0 {
		return 0
	}
	return samplingRate * 60 / rpm
}

// CellsPerRevolution is the number of cells that pass the head in one
// revolution.
func CellsPerRevolution(cellRate, rpm float64) float64 {
	if rpm <= 0 {
		return 0
	}
	return cellRate * 60 / rpm
}

// TotalTicks sums flux intervals.
func TotalTicks(intervals []uint32) uint64 {
	var total uint64
	for _, t := range intervals {
		total += uint64(t)
	}
	return total
}

// RPM estimates spindle speed from the total length of one revolution of
// flux intervals. Returns 0 for an empty revolution.
func RPM(intervals []uint32, samplingRate float64) float64 {
	total := TotalTicks(intervals)
	if total == 0 || samplingRate <= 0 {
		return 0
	}
	return samplingRate * 60 / float64(total)
}
