package simulation

import (
	"errors"
	"math/rand/v2"

	"reefer-telemetry-sim/internal/models"
	"reefer-telemetry-sim/internal/profile"
)

// ErrNoData is returned for a trip whose records span no backbone step
var ErrNoData = errors.New("trip has no data")

// TripResult holds the labeled rows of one trip and how they were produced
type TripResult struct {
	Rows    []models.ResultRow
	Summary models.TripSummary
}

// RunTrip simulates one trip: backbone, weather alignment, scenario draw, baseline,
// injection and labeling, joined back onto the trip records.
func RunTrip(r *rand.Rand, records []models.TripRecord, tripID string, p profile.Profile) (*TripResult, error) {
	sorted := sortedRecords(records)
	if len(sorted) == 0 {
		return nil, ErrNoData
	}
	backbone := Backbone(sorted[0].Timestamp, sorted[len(sorted)-1].Timestamp)
	if len(backbone) == 0 {
		return nil, ErrNoData
	}
	env := AlignWeather(backbone, sorted)

	scenario := profile.ScenarioGood
	if len(p.Scenarios) > 0 {
		scenario = p.Scenarios[r.IntN(len(p.Scenarios))]
	}

	series := GenerateBaseline(r, len(backbone), p)
	series, window, err := Inject(r, series, scenario, p, env)
	if err != nil {
		return nil, err
	}
	labels := Label(series, p)
	if scenario == profile.ScenarioGood && labels.Triggered {
		labels = clearLabels(labels)
	}

	rows := make([]models.ResultRow, len(backbone))
	for i, j := range asofBackward(backbone, sorted) {
		rec := sorted[j]
		rows[i] = models.ResultRow{
			SimulatedStep: models.SimulatedStep{
				Step:      i,
				Timestamp: backbone[i],
				Temp:      series.Temp[i],
				Humid:     series.Humid[i],
				CO2:       series.CO2[i],
				Light:     series.Light[i],
				Class:     labels.Classes[i],
			},
			Latitude:        rec.Latitude,
			Longitude:       rec.Longitude,
			Speed:           rec.Speed,
			TemperatureOut:  rec.TemperatureOut,
			HumidityOut:     rec.HumidityOut,
			DewPointOut:     rec.DewPointOut,
			PressureOut:     rec.PressureOut,
			WindSpeed:       rec.WindSpeed,
			Precipitation:   rec.Precipitation,
			TripID:          tripID,
			FailureScenario: scenario,
			Commodity:       p.Name,
		}
	}

	return &TripResult{
		Rows: rows,
		Summary: models.TripSummary{
			TripID:       tripID,
			Commodity:    p.Name,
			Scenario:     scenario,
			NumSteps:     len(backbone),
			FailStart:    window.Start,
			FailEnd:      window.End,
			Triggered:    labels.Triggered,
			FirstBadStep: labels.FirstBad,
			BadSteps:     countBad(labels.Classes),
		},
	}, nil
}

func countBad(classes []models.Class) int {
	n := 0
	for _, c := range classes {
		if c == models.ClassBad {
			n++
		}
	}
	return n
}
