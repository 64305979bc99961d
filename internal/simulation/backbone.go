package simulation

import (
	"sort"
	"time"

	"reefer-telemetry-sim/internal/models"
)

// StepInterval is the cadence of the synthetic sensor
const StepInterval = 10 * time.Minute

// Backbone returns the timestamps from start to end inclusive at StepInterval.
// It is empty when end is before start.
func Backbone(start, end time.Time) []time.Time {
	if end.Before(start) {
		return nil
	}
	n := int(end.Sub(start)/StepInterval) + 1
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.Add(time.Duration(i) * StepInterval)
	}
	return out
}

// sortedRecords returns the records with a timestamp, ordered by time
func sortedRecords(records []models.TripRecord) []models.TripRecord {
	out := make([]models.TripRecord, 0, len(records))
	for _, r := range records {
		if r.Timestamp.IsZero() {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// asofBackward maps each backbone step to the last record at or before it, or -1.
// Records must be sorted.
func asofBackward(backbone []time.Time, records []models.TripRecord) []int {
	idx := make([]int, len(backbone))
	j := -1
	for i, ts := range backbone {
		for j+1 < len(records) && !records[j+1].Timestamp.After(ts) {
			j++
		}
		idx[i] = j
	}
	return idx
}

// nearest maps each backbone step to the closest record. Ties go to the earlier record.
func nearest(backbone []time.Time, records []models.TripRecord) []int {
	idx := asofBackward(backbone, records)
	for i, ts := range backbone {
		back := idx[i]
		fwd := back + 1
		if fwd >= len(records) {
			continue
		}
		if back < 0 || records[fwd].Timestamp.Sub(ts) < ts.Sub(records[back].Timestamp) {
			idx[i] = fwd
		}
	}
	return idx
}

// AlignWeather attaches the nearest real weather observation to every backbone step.
// Records must be sorted by timestamp and non-empty.
func AlignWeather(backbone []time.Time, records []models.TripRecord) []models.WeatherSample {
	out := make([]models.WeatherSample, len(backbone))
	for i, j := range nearest(backbone, records) {
		rec := records[j]
		out[i] = models.WeatherSample{
			TempOut:     rec.TemperatureOut,
			HumidOut:    rec.HumidityOut,
			DewPointOut: rec.DewPointOut,
			PressureOut: rec.PressureOut,
			WindKmh:     rec.WindSpeed,
			PrecipMm:    rec.Precipitation,
		}
	}
	return out
}
