package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"gopkg.in/yaml.v3"
)

// StepsPerHour is the number of 10 minute backbone steps in one hour
const StepsPerHour = 6

// Failure scenario names. Duplicates in a profile's scenario list encode relative probability.
const (
	ScenarioGood              = "GOOD"
	ScenarioTempFail          = "TEMP_FAIL"
	ScenarioDoorAjar          = "DOOR_AJAR"
	ScenarioLightExposure     = "LIGHT_EXPOSURE"
	ScenarioOverVentilation   = "OVER_VENTILATION"
	ScenarioHotHumidFail      = "HOT_HUMID_FAIL"
	ScenarioSaturatedHeatFail = "SATURATED_HEAT_FAIL"
	ScenarioCO2Fail           = "CO2_FAIL"
)

// ConditionKind is one threshold comparison a labeling rule can require
type ConditionKind string

const (
	TempAbove  ConditionKind = "TEMP_ABOVE"
	TempBelow  ConditionKind = "TEMP_BELOW"
	LightAbove ConditionKind = "LIGHT_ABOVE"
	LightBelow ConditionKind = "LIGHT_BELOW"
	HumidAbove ConditionKind = "HUMID_ABOVE"
	CO2Below   ConditionKind = "CO2_BELOW"
)

// Valid returns true when the condition kind is supported
func (k ConditionKind) Valid() bool {
	switch k {
	case TempAbove, TempBelow, LightAbove, LightBelow, HumidAbove, CO2Below:
		return true
	default:
		return false
	}
}

// AccelKind is a secondary condition that shortens a rule's required run-length
type AccelKind string

const (
	CO2Above      AccelKind = "CO2_ABOVE"
	TempAtOrBelow AccelKind = "TEMP_AT_OR_BELOW"
)

// Valid returns true when the acceleration kind is supported
func (k AccelKind) Valid() bool {
	return k == CO2Above || k == TempAtOrBelow
}

// Setpoints holds the "Good" steady state of a commodity's cargo hold
type Setpoints struct {
	Temp               float64 `yaml:"temp" json:"temp"`
	AmpTemp            float64 `yaml:"amp_temp" json:"amp_temp"`
	Humid              float64 `yaml:"humid" json:"humid"`
	AmpHumid           float64 `yaml:"amp_humid" json:"amp_humid"`
	CO2Base            float64 `yaml:"co2_base" json:"co2_base"`
	CO2RatePerHour     float64 `yaml:"co2_rate_per_hour" json:"co2_rate_per_hour"`
	CO2VentThreshold   float64 `yaml:"co2_vent_threshold" json:"co2_vent_threshold"`
	CO2VentPeriodSteps int     `yaml:"co2_vent_period_steps" json:"co2_vent_period_steps"`
	LightMean          float64 `yaml:"light_mean" json:"light_mean"`
	LightStd           float64 `yaml:"light_std" json:"light_std"`
}

// Acceleration makes a rule use its fast duration while it holds
type Acceleration struct {
	Kind      AccelKind `yaml:"kind" json:"kind"`
	Threshold float64   `yaml:"threshold" json:"threshold"`
}

// RuleSpec is one expert labeling rule: a conjunction of conditions that must hold for a run of steps
type RuleSpec struct {
	Name                string                    `yaml:"name" json:"name"`
	Conditions          []ConditionKind           `yaml:"conditions" json:"conditions"`
	Thresholds          map[ConditionKind]float64 `yaml:"thresholds" json:"thresholds"`
	Accel               []Acceleration            `yaml:"accel,omitempty" json:"accel,omitempty"`
	DurationStepsFast   int                       `yaml:"duration_steps_fast,omitempty" json:"duration_steps_fast,omitempty"`
	DurationStepsNormal int                       `yaml:"duration_steps_normal,omitempty" json:"duration_steps_normal,omitempty"`
}

// Range is a closed [Min, Max] interval for uniform draws. Min may exceed Max.
type Range struct {
	Min float64
	Max float64
}

// UnmarshalYAML accepts a two element sequence such as [2.0, 5.0]
func (r *Range) UnmarshalYAML(value *yaml.Node) error {
	var pair []float64
	if err := value.Decode(&pair); err != nil {
		return fmt.Errorf("range: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("range: want 2 values, got %d", len(pair))
	}
	r.Min, r.Max = pair[0], pair[1]
	return nil
}

// MarshalYAML encodes the range as a flow sequence
func (r Range) MarshalYAML() (interface{}, error) {
	n := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
	for _, v := range []float64{r.Min, r.Max} {
		var c yaml.Node
		if err := c.Encode(v); err != nil {
			return nil, err
		}
		n.Content = append(n.Content, &c)
	}
	return n, nil
}

// MarshalJSON encodes the range as [min, max]
func (r Range) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{r.Min, r.Max})
}

// UnmarshalJSON accepts [min, max]
func (r *Range) UnmarshalJSON(b []byte) error {
	var pair [2]float64
	if err := json.Unmarshal(b, &pair); err != nil {
		return fmt.Errorf("range: %w", err)
	}
	r.Min, r.Max = pair[0], pair[1]
	return nil
}

// InjectionSpec holds the numeric ranges of one failure scenario. A nil range leaves that
// variable to the scenario's physical regime.
type InjectionSpec struct {
	TempDrift     *Range `yaml:"temp_drift,omitempty" json:"temp_drift,omitempty"`
	LightLevel    *Range `yaml:"light_level,omitempty" json:"light_level,omitempty"`
	CO2Level      *Range `yaml:"co2_level,omitempty" json:"co2_level,omitempty"`
	HumidLevel    *Range `yaml:"humid_level,omitempty" json:"humid_level,omitempty"`
	CO2Accumulate bool   `yaml:"co2_accumulate,omitempty" json:"co2_accumulate,omitempty"`

	// Ignored holds keys of a decoded spec that no regime reads
	Ignored []string `yaml:"-" json:"-"`
}

var injectionKeys = map[string]bool{
	"temp_drift":     true,
	"light_level":    true,
	"co2_level":      true,
	"humid_level":    true,
	"co2_accumulate": true,
}

// UnmarshalYAML decodes the known keys and records the rest in Ignored. A spec made only of
// unknown keys behaves as linear drift when it has temp_drift, and as a no-op otherwise.
func (s *InjectionSpec) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("injection: line %d: want a mapping", value.Line)
	}
	known := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map", Line: value.Line, Column: value.Column}
	var ignored []string
	for i := 0; i+1 < len(value.Content); i += 2 {
		if key := value.Content[i]; injectionKeys[key.Value] {
			known.Content = append(known.Content, key, value.Content[i+1])
		} else {
			ignored = append(ignored, key.Value)
		}
	}

	type plain InjectionSpec
	var out plain
	if err := known.Decode(&out); err != nil {
		return err
	}
	*s = InjectionSpec(out)
	s.Ignored = ignored
	return nil
}

// Profile is the full configuration of one commodity
type Profile struct {
	Name      string                   `yaml:"name" json:"name"`
	Setpoints Setpoints                `yaml:"setpoints" json:"setpoints"`
	Scenarios []string                 `yaml:"scenarios" json:"scenarios"`
	Rules     []RuleSpec               `yaml:"rules" json:"rules"`
	Injection map[string]InjectionSpec `yaml:"injection" json:"injection"`
}

// Clone returns a deep copy so callers cannot mutate registry state
func (p Profile) Clone() Profile {
	out := p
	out.Scenarios = append([]string(nil), p.Scenarios...)
	out.Rules = make([]RuleSpec, len(p.Rules))
	for i, r := range p.Rules {
		c := r
		c.Conditions = append([]ConditionKind(nil), r.Conditions...)
		c.Accel = append([]Acceleration(nil), r.Accel...)
		c.Thresholds = make(map[ConditionKind]float64, len(r.Thresholds))
		for k, v := range r.Thresholds {
			c.Thresholds[k] = v
		}
		out.Rules[i] = c
	}
	out.Injection = make(map[string]InjectionSpec, len(p.Injection))
	for k, v := range p.Injection {
		out.Injection[k] = v.clone()
	}
	return out
}

func (s InjectionSpec) clone() InjectionSpec {
	cp := func(r *Range) *Range {
		if r == nil {
			return nil
		}
		v := *r
		return &v
	}
	return InjectionSpec{
		TempDrift:     cp(s.TempDrift),
		LightLevel:    cp(s.LightLevel),
		CO2Level:      cp(s.CO2Level),
		HumidLevel:    cp(s.HumidLevel),
		CO2Accumulate: s.CO2Accumulate,
		Ignored:       append([]string(nil), s.Ignored...),
	}
}

// Validate checks the invariants the simulation engine relies on
func (p Profile) Validate() error {
	if p.Name == "" {
		return errors.New("profile: empty name")
	}
	if p.Setpoints.CO2VentPeriodSteps <= 0 {
		return fmt.Errorf("profile %s: co2_vent_period_steps must be positive", p.Name)
	}
	if p.Setpoints.LightStd < 0 {
		return fmt.Errorf("profile %s: light_std cannot be negative", p.Name)
	}
	if len(p.Scenarios) == 0 {
		return fmt.Errorf("profile %s: no scenarios", p.Name)
	}
	seen := make(map[string]bool, len(p.Rules))
	for _, r := range p.Rules {
		if r.Name == "" {
			return fmt.Errorf("profile %s: rule with empty name", p.Name)
		}
		if seen[r.Name] {
			return fmt.Errorf("profile %s: duplicate rule %s", p.Name, r.Name)
		}
		seen[r.Name] = true
		for _, c := range r.Conditions {
			if !c.Valid() {
				return fmt.Errorf("profile %s: rule %s: unknown condition %q", p.Name, r.Name, c)
			}
			v, ok := r.Thresholds[c]
			if !ok || math.IsNaN(v) {
				return fmt.Errorf("profile %s: rule %s: missing threshold for %s", p.Name, r.Name, c)
			}
		}
		for _, a := range r.Accel {
			if !a.Kind.Valid() {
				return fmt.Errorf("profile %s: rule %s: unknown acceleration %q", p.Name, r.Name, a.Kind)
			}
		}
		if r.DurationStepsFast < 0 || r.DurationStepsNormal < 0 {
			return fmt.Errorf("profile %s: rule %s: negative duration", p.Name, r.Name)
		}
	}
	return nil
}

// RequiredSteps returns the run-length that triggers the rule. A missing duration never triggers.
func (r RuleSpec) RequiredSteps(accelerated bool) int {
	d := r.DurationStepsNormal
	if accelerated {
		d = r.DurationStepsFast
	}
	if d <= 0 {
		return math.MaxInt
	}
	return d
}
