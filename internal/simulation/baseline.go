package simulation

import (
	"math"
	"math/rand/v2"

	"reefer-telemetry-sim/internal/profile"
)

// Series is the multivariate synthetic sensor signal of one trip, one value per step
type Series struct {
	Temp  []float64
	Humid []float64
	CO2   []float64
	Light []float64
}

// NewSeries allocates a zeroed series of n steps
func NewSeries(n int) Series {
	return Series{
		Temp:  make([]float64, n),
		Humid: make([]float64, n),
		CO2:   make([]float64, n),
		Light: make([]float64, n),
	}
}

// Len returns the number of steps
func (s Series) Len() int {
	return len(s.Temp)
}

// Clone returns a deep copy
func (s Series) Clone() Series {
	return Series{
		Temp:  append([]float64(nil), s.Temp...),
		Humid: append([]float64(nil), s.Humid...),
		CO2:   append([]float64(nil), s.CO2...),
		Light: append([]float64(nil), s.Light...),
	}
}

// GenerateBaseline produces the ideal "Good" signal: a diurnal temperature cycle, steady
// humidity and light with jitter, and CO2 that accumulates until a periodic or
// threshold-triggered vent resets it.
func GenerateBaseline(r *rand.Rand, numSteps int, p profile.Profile) Series {
	sp := p.Setpoints
	s := NewSeries(numSteps)
	co2 := sp.CO2Base
	period := sp.CO2VentPeriodSteps

	for i := 0; i < numSteps; i++ {
		diurnal := math.Sin(float64(i)*(2*math.Pi/(24*profile.StepsPerHour))) * sp.AmpTemp
		s.Temp[i] = sp.Temp + diurnal + normal(r, 0, 0.1)

		s.Humid[i] = clamp(sp.Humid+normal(r, 0, 0.5), 0, 100)

		s.Light[i] = math.Max(normal(r, sp.LightMean, sp.LightStd), 0)

		co2 += sp.CO2RatePerHour/profile.StepsPerHour + normal(r, 0, 0.1)
		if (i > 0 && period > 0 && i%period == 0) || co2 > sp.CO2VentThreshold {
			co2 = sp.CO2Base + normal(r, 0, 5)
		}
		s.CO2[i] = co2
	}
	return s
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
