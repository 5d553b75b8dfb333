package rebin

import (
	"fmt"
	"math"

	"github.com/roman-kulish/spacelabel/internal/epoch"
)

// gridTolerance absorbs floating point noise in duration/step so an exact
// multiple does not gain a spurious trailing sample.
const gridTolerance = 1e-9

// Offsets returns the seconds elapsed from origin for each element of t.
// Interpolating against offsets keeps sub-second resolution that raw Julian
// dates lose to their large magnitude.
func Offsets(t []epoch.JulianDate, origin epoch.JulianDate) []float64 {
	out := make([]float64, len(t))
	for i, v := range t {
		out[i] = float64(v-origin) * 86400
	}
	return out
}

// TimeGrid returns a uniform grid starting at t[0] with the given step in
// seconds and ceil(duration/step)+1 samples, so that it covers t[len(t)-1].
func TimeGrid(t []epoch.JulianDate, step float64) ([]epoch.JulianDate, error) {
	if len(t) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 time samples, got %d", ErrInsufficientAxisData, len(t))
	}
	if step <= 0 || math.IsNaN(step) || math.IsInf(step, 0) {
		return nil, fmt.Errorf("%w: time step %g", ErrInvalidResolution, step)
	}

	duration := float64(t[len(t)-1]-t[0]) * 86400
	n := int(math.Ceil(duration/step-gridTolerance)) + 1

	out := make([]epoch.JulianDate, n)
	for i := range out {
		out[i] = t[0] + epoch.JulianDate(float64(i)*step/86400)
	}
	return out, nil
}

// NativeStep returns the mean sample spacing of t in seconds.
func NativeStep(t []epoch.JulianDate) float64 {
	if len(t) < 2 {
		return 0
	}
	return float64(t[len(t)-1]-t[0]) * 86400 / float64(len(t)-1)
}
