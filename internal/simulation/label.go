package simulation

import (
	"reefer-telemetry-sim/internal/models"
	"reefer-telemetry-sim/internal/profile"
)

// Labels is the outcome of running the expert rules over one series
type Labels struct {
	Classes   []models.Class
	Triggered bool
	Rule      string // rule that latched, empty when none did
	FirstBad  int    // -1 when every step is Good
}

// Label scans the series with one consecutive-violation counter per rule. The first rule in
// registration order whose counter reaches its required run-length latches the trip Bad,
// backdated to the start of that run.
func Label(s Series, p profile.Profile) Labels {
	n := s.Len()
	out := Labels{Classes: make([]models.Class, n), FirstBad: -1}
	for i := range out.Classes {
		out.Classes[i] = models.ClassGood
	}

	counters := make([]int, len(p.Rules))
	for i := 1; i < n; i++ {
		for ri, rule := range p.Rules {
			if !conditionsHold(rule, s, i) {
				counters[ri] = 0
				continue
			}
			counters[ri]++
			if counters[ri] < rule.RequiredSteps(accelerated(rule, s, i)) {
				continue
			}
			start := i - counters[ri] + 1
			for j := start; j < n; j++ {
				out.Classes[j] = models.ClassBad
			}
			out.Triggered = true
			out.Rule = rule.Name
			out.FirstBad = start
			return out
		}
	}
	return out
}

// conditionsHold evaluates the conjunction of a rule's conditions at step i
func conditionsHold(rule profile.RuleSpec, s Series, i int) bool {
	for _, c := range rule.Conditions {
		th, ok := rule.Thresholds[c]
		if !ok {
			return false
		}
		var holds bool
		switch c {
		case profile.TempAbove:
			holds = s.Temp[i] > th
		case profile.TempBelow:
			holds = s.Temp[i] < th
		case profile.LightAbove:
			holds = s.Light[i] > th
		case profile.LightBelow:
			holds = s.Light[i] < th
		case profile.HumidAbove:
			holds = s.Humid[i] > th
		case profile.CO2Below:
			holds = s.CO2[i] < th
		}
		if !holds {
			return false
		}
	}
	return true
}

func accelerated(rule profile.RuleSpec, s Series, i int) bool {
	for _, a := range rule.Accel {
		switch a.Kind {
		case profile.CO2Above:
			if s.CO2[i] > a.Threshold {
				return true
			}
		case profile.TempAtOrBelow:
			if s.Temp[i] <= a.Threshold {
				return true
			}
		}
	}
	return false
}

// clearLabels resets every step to Good
func clearLabels(l Labels) Labels {
	for i := range l.Classes {
		l.Classes[i] = models.ClassGood
	}
	l.Triggered = false
	l.Rule = ""
	l.FirstBad = -1
	return l
}
