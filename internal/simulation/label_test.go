package simulation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reefer-telemetry-sim/internal/models"
	"reefer-telemetry-sim/internal/profile"
)

// flatSeries returns a series holding the same readings at every step
func flatSeries(n int, temp, humid, co2, light float64) Series {
	s := NewSeries(n)
	for i := 0; i < n; i++ {
		s.Temp[i], s.Humid[i], s.CO2[i], s.Light[i] = temp, humid, co2, light
	}
	return s
}

func TestLabelBackdatesToRunStart(t *testing.T) {
	p := builtin(t, "Orange")
	s := flatSeries(60, 22.0, 90, 280, 5)
	for i := 5; i < 60; i++ {
		s.Temp[i], s.Light[i] = 25, 20
	}

	l := Label(s, p)
	require.True(t, l.Triggered)
	assert.Equal(t, 5, l.FirstBad)
	assert.Equal(t, "rule_1", l.Rule)
	for i := 0; i < 5; i++ {
		assert.Equal(t, models.ClassGood, l.Classes[i])
	}
	for i := 5; i < 60; i++ {
		assert.Equal(t, models.ClassBad, l.Classes[i])
	}
}

func TestLabelRequiresConsecutiveSteps(t *testing.T) {
	p := builtin(t, "Orange")
	s := flatSeries(60, 25, 90, 280, 20)
	// a single cool step every 10 steps keeps the normal run of 12 from completing
	for i := 0; i < 60; i += 10 {
		s.Temp[i] = 20
	}
	l := Label(s, p)
	assert.False(t, l.Triggered)
	assert.Equal(t, -1, l.FirstBad)

	// high CO2 shortens the run to 6
	for i := range s.CO2 {
		s.CO2[i] = 320
	}
	l = Label(s, p)
	require.True(t, l.Triggered)
	assert.Equal(t, 1, l.FirstBad)
}

func TestLabelStepZeroAlwaysGood(t *testing.T) {
	p := builtin(t, "Orange")
	l := Label(flatSeries(30, 30, 90, 400, 50), p)
	require.True(t, l.Triggered)
	assert.Equal(t, models.ClassGood, l.Classes[0])
	assert.Equal(t, 1, l.FirstBad)
}

func TestLabelAccelerationAtOrBelow(t *testing.T) {
	p := builtin(t, "Banana")
	// humid and flushed for 29 steps: only the fast run of 18 fits, and it needs the hold at or below 24
	cool := Label(flatSeries(30, 24, 96, 260, 20), p)
	require.True(t, cool.Triggered)
	assert.Equal(t, 1, cool.FirstBad)
	assert.Equal(t, 29, countBad(cool.Classes))

	warm := Label(flatSeries(30, 26, 96, 260, 20), p)
	assert.False(t, warm.Triggered)
}

func TestLabelFirstRuleInOrderWins(t *testing.T) {
	p := builtin(t, "Orange")
	p.Rules = []profile.RuleSpec{
		{Name: "humid", Conditions: []profile.ConditionKind{profile.HumidAbove}, Thresholds: map[profile.ConditionKind]float64{profile.HumidAbove: 80}, DurationStepsNormal: 6},
		{Name: "dark", Conditions: []profile.ConditionKind{profile.LightBelow}, Thresholds: map[profile.ConditionKind]float64{profile.LightBelow: 10}, DurationStepsNormal: 6},
	}
	s := flatSeries(40, 20, 90, 280, 5)
	assert.Equal(t, "humid", Label(s, p).Rule)

	p.Rules[0], p.Rules[1] = p.Rules[1], p.Rules[0]
	assert.Equal(t, "dark", Label(s, p).Rule)
}

func TestLabelShorterRuleWinsAcrossRules(t *testing.T) {
	p := builtin(t, "Tomato")
	// both rules hold from step 1; the light rule needs 18 steps, the hot-humid one 30
	l := Label(flatSeries(100, 26, 96, 330, 30), p)
	require.True(t, l.Triggered)
	assert.Equal(t, "rule_2_light", l.Rule)
	assert.Equal(t, 1, l.FirstBad)
}

func TestLabelMissingDurationNeverTriggers(t *testing.T) {
	p := builtin(t, "Tomato")
	p.Rules = p.Rules[:1]
	p.Rules[0].DurationStepsNormal = 0
	l := Label(flatSeries(500, 30, 99, 330, 5), p)
	assert.False(t, l.Triggered)
	assert.Zero(t, countBad(l.Classes))
}

func TestLabelMonotoneAcrossTrips(t *testing.T) {
	reg := profile.NewRegistry()
	for _, name := range reg.Names() {
		p, _ := reg.Lookup(name)
		for seed := uint64(0); seed < 40; seed++ {
			res, err := RunTrip(NewRand(seed), tripRecords("T", name, 48), "T", p)
			require.NoError(t, err)

			bad := false
			for _, row := range res.Rows {
				if bad {
					require.Equal(t, models.ClassBad, row.Class, "%s seed %d step %d", name, seed, row.Step)
				}
				bad = row.Class == models.ClassBad
			}
			assert.Equal(t, models.ClassGood, res.Rows[0].Class)
			if res.Summary.Scenario == profile.ScenarioGood {
				assert.Zero(t, res.Summary.BadSteps, "%s seed %d", name, seed)
				assert.False(t, res.Summary.FailStart >= 0)
			} else {
				assert.Less(t, res.Summary.FailStart, res.Summary.FailEnd)
				assert.LessOrEqual(t, res.Summary.FailEnd, res.Summary.NumSteps-1)
			}
		}
	}
}

func TestRunTripGoodScenarioNeverBad(t *testing.T) {
	p := builtin(t, "Orange")
	p.Scenarios = []string{profile.ScenarioGood}
	// thresholds any baseline satisfies
	p.Rules[0].Thresholds[profile.TempAbove] = -50
	p.Rules[0].Thresholds[profile.LightAbove] = -1
	require.True(t, Label(GenerateBaseline(NewRand(1), 100, p), p).Triggered)

	res, err := RunTrip(NewRand(1), tripRecords("T", "Orange", 24), "T", p)
	require.NoError(t, err)
	assert.False(t, res.Summary.Triggered)
	assert.Equal(t, -1, res.Summary.FirstBadStep)
	for _, row := range res.Rows {
		assert.Equal(t, models.ClassGood, row.Class)
	}
}
