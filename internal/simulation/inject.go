package simulation

import (
	"errors"
	"math"
	"math/rand/v2"

	"reefer-telemetry-sim/internal/models"
	"reefer-telemetry-sim/internal/profile"
)

// ErrTripTooShort is returned when a trip has too few steps to host a fail window
var ErrTripTooShort = errors.New("trip too short for a fail window")

// dtHours is the length of one step in hours
const dtHours = 1.0 / profile.StepsPerHour

// Window is the inclusive step range of active fault injection
type Window struct {
	Start int
	End   int
}

// NoWindow marks a trip that received no fault
var NoWindow = Window{Start: -1, End: -1}

// Active reports whether a fault was injected
func (w Window) Active() bool {
	return w.Start >= 0
}

type regime int

const (
	regimeNone regime = iota
	regimeAmbient
	regimeOverVentilation
	regimeSaturation
	regimeCO2Accumulation
	regimeLinearDrift
)

func (g regime) String() string {
	switch g {
	case regimeAmbient:
		return "ambient"
	case regimeOverVentilation:
		return "over_ventilation"
	case regimeSaturation:
		return "saturation"
	case regimeCO2Accumulation:
		return "co2_accumulation"
	case regimeLinearDrift:
		return "linear_drift"
	default:
		return "none"
	}
}

// ambientCoupling holds the heat exchange rate of each breach scenario and whether
// outside air also floods in through an open seal.
var ambientCoupling = map[string]struct {
	kBase float64
	seal  bool
}{
	profile.ScenarioTempFail:      {kBase: 0.5},
	profile.ScenarioDoorAjar:      {kBase: 0.18, seal: true},
	profile.ScenarioLightExposure: {kBase: 0.25, seal: true},
}

// managesHumidity lists the scenarios whose regime owns the humidity signal
func managesHumidity(scenario string) bool {
	switch scenario {
	case profile.ScenarioDoorAjar, profile.ScenarioLightExposure, profile.ScenarioOverVentilation,
		profile.ScenarioHotHumidFail, profile.ScenarioSaturatedHeatFail:
		return true
	}
	return false
}

func selectRegime(scenario string, spec profile.InjectionSpec, hasEnv bool) regime {
	switch scenario {
	case profile.ScenarioTempFail, profile.ScenarioDoorAjar, profile.ScenarioLightExposure:
		if hasEnv {
			return regimeAmbient
		}
	case profile.ScenarioOverVentilation:
		if hasEnv && spec.CO2Level != nil {
			return regimeOverVentilation
		}
	case profile.ScenarioHotHumidFail, profile.ScenarioSaturatedHeatFail:
		if hasEnv && spec.TempDrift != nil {
			return regimeSaturation
		}
	}
	if spec.CO2Accumulate {
		return regimeCO2Accumulation
	}
	if spec.TempDrift != nil {
		return regimeLinearDrift
	}
	return regimeNone
}

// drawWindow picks the fail window: start in [20%, 50%) of the trip, 4 to 12 hours long
func drawWindow(r *rand.Rand, numSteps int) (Window, error) {
	lo := int(float64(numSteps) * 0.2)
	hi := int(float64(numSteps) * 0.5)
	if hi <= lo {
		return NoWindow, ErrTripTooShort
	}
	start := lo + r.IntN(hi-lo)
	hours := uniform(r, 4.0, 12.0)
	end := min(start+int(hours*profile.StepsPerHour), numSteps-1)
	if start >= end {
		return NoWindow, ErrTripTooShort
	}
	return Window{Start: start, End: end}, nil
}

// Inject perturbs a copy of the baseline according to the scenario. The no-fault scenario and
// scenarios without an injection spec return the baseline unchanged with NoWindow.
// env must be aligned step for step with the baseline to enable the weather-coupled regimes.
func Inject(r *rand.Rand, baseline Series, scenario string, p profile.Profile, env []models.WeatherSample) (Series, Window, error) {
	spec, ok := p.Injection[scenario]
	if scenario == profile.ScenarioGood || !ok {
		return baseline.Clone(), NoWindow, nil
	}
	w, err := drawWindow(r, baseline.Len())
	if err != nil {
		return baseline.Clone(), NoWindow, err
	}
	return injectWindow(r, baseline, scenario, p, spec, env, w), w, nil
}

// injectWindow runs the two injection stages over a fixed window: exactly one physical
// regime, then the level overlays.
func injectWindow(r *rand.Rand, baseline Series, scenario string, p profile.Profile, spec profile.InjectionSpec, env []models.WeatherSample, w Window) Series {
	s := baseline.Clone()
	hasEnv := len(env) == s.Len()

	switch selectRegime(scenario, spec, hasEnv) {
	case regimeAmbient:
		c := ambientCoupling[scenario]
		applyAmbient(r, s, w, env, c.kBase, c.seal)
	case regimeOverVentilation:
		applyOverVentilation(r, s, w, env, *spec.CO2Level)
	case regimeSaturation:
		applySaturation(r, s, w, env, spec, p.Setpoints.Temp)
	case regimeCO2Accumulation:
		applyCO2Accumulation(r, s, w, p.Setpoints.CO2RatePerHour)
	case regimeLinearDrift:
		total := uniform(r, spec.TempDrift.Min, spec.TempDrift.Max)
		ramp(s.Temp, w, total)
		hold(r, s.Temp, w.End, 0.2)
	}

	if spec.LightLevel != nil {
		level := uniform(r, spec.LightLevel.Min, spec.LightLevel.Max)
		if hasEnv {
			// heavy rain means overcast skies; an all-missing window takes the floor
			level *= shadeFactor(windowMean(env, w, func(e models.WeatherSample) float64 { return e.PrecipMm }))
		}
		overlay(r, s.Light, w.Start, level, 2.0)
	}
	if spec.CO2Level != nil && scenario != profile.ScenarioOverVentilation {
		overlay(r, s.CO2, w.Start, uniform(r, spec.CO2Level.Min, spec.CO2Level.Max), 2.0)
	}
	if spec.HumidLevel != nil && !managesHumidity(scenario) {
		overlay(r, s.Humid, w.Start, uniform(r, spec.HumidLevel.Min, spec.HumidLevel.Max), 0.1)
	}
	return s
}

// shadeFactor dims light by mean precipitation, floored at 0.5. A missing mean yields the floor.
func shadeFactor(precipMean float64) float64 {
	f := 1.0 - precipMean/50.0
	if math.IsNaN(f) || f < 0.5 {
		return 0.5
	}
	return f
}

// initialState returns the last pre-fault value, or the first window value when the
// window opens at step 0.
func initialState(xs []float64, w Window) float64 {
	if w.Start > 0 {
		return xs[w.Start-1]
	}
	return xs[w.Start]
}

// applyAmbient relaxes the hold toward outside air through a breached envelope
func applyAmbient(r *rand.Rand, s Series, w Window, env []models.WeatherSample, kBase float64, seal bool) {
	tIn := initialState(s.Temp, w)
	hIn := initialState(s.Humid, w)

	for i := w.Start; i <= w.End; i++ {
		e := env[i]
		tOut := valueOr(e.TempOut, tIn)
		windFactor := 1.0 + nonNegative(e.WindKmh)/100.0

		tIn = relax(tIn, tOut, kBase*windFactor)
		s.Temp[i] = tIn + normal(r, 0, 0.1)

		if seal {
			hOut := math.Min(100.0, valueOr(e.HumidOut, hIn)+nonNegative(e.PrecipMm)*0.5)
			hIn = relax(hIn, hOut, 0.35*windFactor)
			if !math.IsNaN(e.DewPointOut) && e.DewPointOut > tIn {
				hIn = math.Min(100.0, hIn+uniform(r, 2.0, 5.0))
			}
			s.Humid[i] = hIn + normal(r, 0, 0.2)
		}
	}

	hold(r, s.Temp, w.End, 0.2)
	if seal {
		hold(r, s.Humid, w.End, 0.2)
	}
}

// applyOverVentilation pulls temperature and humidity toward outside air and flushes CO2
// toward a low target drawn from the scenario range.
func applyOverVentilation(r *rand.Rand, s Series, w Window, env []models.WeatherSample, co2Level profile.Range) {
	tIn := initialState(s.Temp, w)
	hIn := initialState(s.Humid, w)
	cIn := initialState(s.CO2, w)
	co2Target := uniform(r, co2Level.Min, co2Level.Max)

	for i := w.Start; i <= w.End; i++ {
		e := env[i]
		windFactor := 1.0 + nonNegative(e.WindKmh)/80.0

		tIn = relax(tIn, valueOr(e.TempOut, tIn), 0.25*windFactor)
		s.Temp[i] = tIn + normal(r, 0, 0.1)

		hOut := math.Min(100.0, valueOr(e.HumidOut, hIn)+nonNegative(e.PrecipMm)*0.3)
		hIn = relax(hIn, hOut, 0.5*windFactor)
		if !math.IsNaN(e.DewPointOut) && e.DewPointOut > tIn {
			hIn = math.Min(100.0, hIn+uniform(r, 1.0, 3.0))
		}
		s.Humid[i] = hIn + normal(r, 0, 0.2)

		cIn = relax(cIn, co2Target, 0.6*windFactor)
		s.CO2[i] = cIn + normal(r, 0, 1.0)
	}

	hold(r, s.Temp, w.End, 0.2)
	hold(r, s.Humid, w.End, 0.3)
	hold(r, s.CO2, w.End, 2.0)
}

// applySaturation ramps temperature by a drift scaled with outside heat and wind, and pins
// humidity near saturation from the window start onward.
func applySaturation(r *rand.Rand, s Series, w Window, env []models.WeatherSample, spec profile.InjectionSpec, setTemp float64) {
	tOutMean := windowMean(env, w, func(e models.WeatherSample) float64 { return e.TempOut })
	windMean := windowMean(env, w, func(e models.WeatherSample) float64 { return e.WindKmh })

	excess := 0.0
	if !math.IsNaN(tOutMean) {
		excess = math.Max(tOutMean-setTemp, 0)
	}
	if math.IsNaN(windMean) {
		windMean = 0
	}
	scale := clamp(1.0+excess/15.0+windMean/200.0, 0.5, 2.5)

	total := uniform(r, spec.TempDrift.Min, spec.TempDrift.Max) * scale
	ramp(s.Temp, w, total)
	hold(r, s.Temp, w.End, 0.2)

	if spec.HumidLevel == nil {
		return
	}
	base := uniform(r, spec.HumidLevel.Min, spec.HumidLevel.Max)
	extra := 0.0
	if windowMean(env, w, func(e models.WeatherSample) float64 { return e.HumidOut }) > 90 {
		extra += 1.0
	}
	if windowMean(env, w, func(e models.WeatherSample) float64 { return e.DewPointOut }) > setTemp {
		extra += 1.5
	}
	overlay(r, s.Humid, w.Start, math.Min(100.0, base+extra), 0.2)
}

// applyCO2Accumulation models a scrubber failure: no venting after the window opens
func applyCO2Accumulation(r *rand.Rand, s Series, w Window, ratePerHour float64) {
	for i := w.Start + 1; i < s.Len(); i++ {
		s.CO2[i] = s.CO2[i-1] + ratePerHour/profile.StepsPerHour + normal(r, 0, 0.1)
	}
}

// relax is one step of exponential relaxation of x toward target with rate k per hour
func relax(x, target, k float64) float64 {
	return target + (x-target)*math.Exp(-k*dtHours)
}

// ramp adds a linear drift from 0 at w.Start to total at w.End
func ramp(xs []float64, w Window, total float64) {
	span := float64(w.End - w.Start)
	for i := w.Start; i <= w.End; i++ {
		xs[i] += total * float64(i-w.Start) / span
	}
}

// hold keeps the value at step from, with noise, until the end of the trip
func hold(r *rand.Rand, xs []float64, from int, std float64) {
	last := xs[from]
	for i := from; i < len(xs); i++ {
		xs[i] = last + normal(r, 0, std)
	}
}

// overlay replaces the signal from step from onward with a noisy level
func overlay(r *rand.Rand, xs []float64, from int, level, std float64) {
	for i := from; i < len(xs); i++ {
		xs[i] = level + normal(r, 0, std)
	}
}

// windowMean averages a weather field over the window, skipping missing samples.
// It returns NaN when no sample is present.
func windowMean(env []models.WeatherSample, w Window, field func(models.WeatherSample) float64) float64 {
	sum, n := 0.0, 0
	for i := w.Start; i <= w.End; i++ {
		if v := field(env[i]); !math.IsNaN(v) {
			sum += v
			n++
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

func valueOr(v, fallback float64) float64 {
	if math.IsNaN(v) {
		return fallback
	}
	return v
}

func nonNegative(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}
