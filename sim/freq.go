package sim

import "log"

// VTimeInSec is a point on the simulated time axis, in seconds.
type VTimeInSec float64

// Freq is a clock rate in Hz.
type Freq float64

// Frequency units.
const (
	Hz  Freq = 1
	MHz Freq = 1e6
	GHz Freq = 1e9
)

// Period returns the length of one cycle.
func (f Freq) Period() VTimeInSec {
	if f <= 0 {
		log.Panicf("invalid frequency %g", float64(f))
	}

	return VTimeInSec(1 / f)
}

// CycleTime returns the simulated time at which a cycle starts.
func (f Freq) CycleTime(cycle uint64) VTimeInSec {
	return VTimeInSec(float64(cycle)) * f.Period()
}
