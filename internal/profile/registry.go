package profile

import (
	"fmt"
	"sort"
)

// DefaultName is the profile substituted for unknown commodities
const DefaultName = "Orange"

// Registry maps commodity names to their profiles
type Registry struct {
	profiles    map[string]Profile
	defaultName string
}

// NewRegistry creates a registry holding the built-in commodity profiles
func NewRegistry() *Registry {
	r := &Registry{
		profiles:    make(map[string]Profile),
		defaultName: DefaultName,
	}
	for _, p := range builtins() {
		r.profiles[p.Name] = p
	}
	return r
}

// Get returns the profile for a commodity. When the name is unknown it returns the
// default profile and found=false so the caller can warn.
func (r *Registry) Get(commodity string) (p Profile, found bool) {
	if p, ok := r.profiles[commodity]; ok {
		return p.Clone(), true
	}
	return r.profiles[r.defaultName].Clone(), false
}

// Lookup returns the profile for an exact name without any fallback
func (r *Registry) Lookup(name string) (Profile, bool) {
	p, ok := r.profiles[name]
	if !ok {
		return Profile{}, false
	}
	return p.Clone(), true
}

// Names returns all registered commodity names, sorted
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.profiles))
	for n := range r.profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DefaultProfile returns the name of the fallback profile
func (r *Registry) DefaultProfile() string {
	return r.defaultName
}

// SetDefault changes the fallback profile
func (r *Registry) SetDefault(name string) error {
	if _, ok := r.profiles[name]; !ok {
		return fmt.Errorf("unknown default profile: %s", name)
	}
	r.defaultName = name
	return nil
}

// Merge validates and adds profiles, replacing built-ins with the same name
func (r *Registry) Merge(profiles []Profile) error {
	for _, p := range profiles {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	for _, p := range profiles {
		r.profiles[p.Name] = p.Clone()
	}
	return nil
}

func rng(min, max float64) *Range {
	return &Range{Min: min, Max: max}
}

func builtins() []Profile {
	return []Profile{orange(), banana(), tomato(), pineapple()}
}

func orange() Profile {
	return Profile{
		Name: "Orange",
		Setpoints: Setpoints{
			Temp: 22.5, AmpTemp: 0.5,
			Humid: 92.0, AmpHumid: 2.0,
			CO2Base: 280.0, CO2RatePerHour: 2.5,
			CO2VentThreshold: 350.0, CO2VentPeriodSteps: 12 * StepsPerHour,
			LightMean: 7.0, LightStd: 2.0,
		},
		Scenarios: []string{
			ScenarioGood, ScenarioGood, ScenarioGood, ScenarioGood,
			ScenarioDoorAjar, ScenarioTempFail,
		},
		Rules: []RuleSpec{
			{
				Name:       "rule_1",
				Conditions: []ConditionKind{TempAbove, LightAbove},
				Thresholds: map[ConditionKind]float64{TempAbove: 23.0, LightAbove: 13.5},
				Accel:      []Acceleration{{Kind: CO2Above, Threshold: 300.0}},

				DurationStepsFast:   1 * StepsPerHour,
				DurationStepsNormal: 2 * StepsPerHour,
			},
		},
		Injection: map[string]InjectionSpec{
			ScenarioDoorAjar: {LightLevel: rng(100.0, 200.0), TempDrift: rng(2.0, 5.0)},
			ScenarioTempFail: {TempDrift: rng(4.0, 8.0)},
		},
	}
}

// Rule: humidity above 94% and CO2 below 270 ppm, faster when the hold is at or below 24°C.
func banana() Profile {
	return Profile{
		Name: "Banana",
		Setpoints: Setpoints{
			Temp: 25.0, AmpTemp: 0.5,
			Humid: 89.0, AmpHumid: 3.0,
			CO2Base: 350.0, CO2RatePerHour: 5.0,
			CO2VentThreshold: 400.0, CO2VentPeriodSteps: 8 * StepsPerHour,
			LightMean: 20.0, LightStd: 1.0,
		},
		Scenarios: []string{
			ScenarioGood, ScenarioGood, ScenarioGood,
			ScenarioOverVentilation,
		},
		Rules: []RuleSpec{
			{
				Name:       "rule_1",
				Conditions: []ConditionKind{HumidAbove, CO2Below},
				Thresholds: map[ConditionKind]float64{HumidAbove: 94.0, CO2Below: 270.0},
				Accel:      []Acceleration{{Kind: TempAtOrBelow, Threshold: 24.0}},

				DurationStepsFast:   3 * StepsPerHour,
				DurationStepsNormal: 6 * StepsPerHour,
			},
		},
		Injection: map[string]InjectionSpec{
			// vent stuck open: humid sea air in, CO2 flushed out
			ScenarioOverVentilation: {
				HumidLevel: rng(95.0, 98.0),
				CO2Level:   rng(250.0, 269.0),
				TempDrift:  rng(-1.0, -3.0),
			},
		},
	}
}

func tomato() Profile {
	return Profile{
		Name: "Tomato",
		Setpoints: Setpoints{
			Temp: 23.0, AmpTemp: 1.0,
			Humid: 90.0, AmpHumid: 2.0,
			CO2Base: 320.0, CO2RatePerHour: 3.0,
			CO2VentThreshold: 400.0, CO2VentPeriodSteps: 10 * StepsPerHour,
			LightMean: 12.0, LightStd: 3.0,
		},
		Scenarios: []string{
			ScenarioGood, ScenarioGood, ScenarioGood, ScenarioGood,
			ScenarioHotHumidFail,
			ScenarioLightExposure,
		},
		Rules: []RuleSpec{
			{
				Name:                "rule_1_hot_humid",
				Conditions:          []ConditionKind{TempAbove, HumidAbove},
				Thresholds:          map[ConditionKind]float64{TempAbove: 24.0, HumidAbove: 94.0},
				DurationStepsNormal: 5 * StepsPerHour,
			},
			{
				Name:                "rule_2_light",
				Conditions:          []ConditionKind{LightAbove},
				Thresholds:          map[ConditionKind]float64{LightAbove: 20.0},
				DurationStepsNormal: 3 * StepsPerHour,
			},
		},
		Injection: map[string]InjectionSpec{
			ScenarioHotHumidFail: {
				TempDrift:  rng(2.0, 4.0),
				HumidLevel: rng(95.0, 95.1),
			},
			ScenarioLightExposure: {
				LightLevel: rng(170.0, 200.0),
				TempDrift:  rng(2.0, 4.0),
				HumidLevel: rng(95.0, 95.1),
			},
		},
	}
}

// Rule: warm, dark and saturated at once; faster when CO2 builds above 340 ppm.
func pineapple() Profile {
	return Profile{
		Name: "Pineapple",
		Setpoints: Setpoints{
			Temp: 22.0, AmpTemp: 0.5,
			Humid: 85.0, AmpHumid: 2.0,
			CO2Base: 310.0, CO2RatePerHour: 2.0,
			CO2VentThreshold: 350.0, CO2VentPeriodSteps: 12 * StepsPerHour,
			LightMean: 14.0, LightStd: 1.0,
		},
		Scenarios: []string{
			ScenarioGood, ScenarioGood, ScenarioGood,
			ScenarioSaturatedHeatFail,
		},
		Rules: []RuleSpec{
			{
				Name:       "rule_1",
				Conditions: []ConditionKind{TempAbove, LightBelow, HumidAbove},
				Thresholds: map[ConditionKind]float64{TempAbove: 24.0, LightBelow: 12.0, HumidAbove: 94.9},
				Accel:      []Acceleration{{Kind: CO2Above, Threshold: 340.0}},

				DurationStepsFast:   3 * StepsPerHour,
				DurationStepsNormal: 6 * StepsPerHour,
			},
		},
		Injection: map[string]InjectionSpec{
			// blocked vent plus a failed light sensor
			ScenarioSaturatedHeatFail: {
				TempDrift:  rng(3.0, 5.0),
				HumidLevel: rng(95.0, 95.1),
				LightLevel: rng(8.0, 11.0),
			},
		},
	}
}
