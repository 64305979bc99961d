package simulation

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reefer-telemetry-sim/internal/models"
)

var t0 = time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC)

// tripRecords builds a trip sampled every 30 minutes for the given hours with steady weather
func tripRecords(id, commodity string, hours int) []models.TripRecord {
	var out []models.TripRecord
	for m := 0; m <= hours*60; m += 30 {
		out = append(out, models.TripRecord{
			TripID:         id,
			Commodity:      commodity,
			Timestamp:      t0.Add(time.Duration(m) * time.Minute),
			Latitude:       36.8 + float64(m)/6000,
			Longitude:      -2.4 + float64(m)/6000,
			Speed:          62.0,
			TemperatureOut: 30.0,
			HumidityOut:    70.0,
			DewPointOut:    18.0,
			PressureOut:    1012.0,
			WindSpeed:      15.0,
			Precipitation:  0.0,
		})
	}
	return out
}

func TestBackbone(t *testing.T) {
	b := Backbone(t0, t0.Add(25*time.Minute))
	require.Len(t, b, 3)
	assert.Equal(t, t0.Add(20*time.Minute), b[2])

	assert.Len(t, Backbone(t0, t0), 1)
	assert.Empty(t, Backbone(t0, t0.Add(-time.Minute)))
}

func TestSortedRecordsDropsMissingTimestamps(t *testing.T) {
	in := []models.TripRecord{
		{TripID: "a", Timestamp: t0.Add(time.Hour)},
		{TripID: "b"},
		{TripID: "c", Timestamp: t0},
	}
	out := sortedRecords(in)
	require.Len(t, out, 2)
	assert.Equal(t, "c", out[0].TripID)
	assert.Equal(t, "a", out[1].TripID)
}

func TestAsofBackwardAndNearest(t *testing.T) {
	records := []models.TripRecord{
		{Timestamp: t0.Add(5 * time.Minute)},
		{Timestamp: t0.Add(25 * time.Minute)},
	}
	backbone := []time.Time{t0, t0.Add(10 * time.Minute), t0.Add(15 * time.Minute), t0.Add(20 * time.Minute), t0.Add(40 * time.Minute)}

	assert.Equal(t, []int{-1, 0, 0, 0, 1}, asofBackward(backbone, records))
	// 15 minutes is equidistant from both records and resolves to the earlier one
	assert.Equal(t, []int{0, 0, 0, 1, 1}, nearest(backbone, records))
}

func TestAlignWeatherCarriesMissingReadings(t *testing.T) {
	records := []models.TripRecord{
		{Timestamp: t0, TemperatureOut: 31, HumidityOut: math.NaN(), WindSpeed: 12, Precipitation: 1.5, DewPointOut: 20, PressureOut: 1010},
	}
	env := AlignWeather(Backbone(t0, t0.Add(20*time.Minute)), records)
	require.Len(t, env, 3)
	assert.Equal(t, 31.0, env[2].TempOut)
	assert.True(t, math.IsNaN(env[2].HumidOut))
	assert.Equal(t, 12.0, env[1].WindKmh)
	assert.Equal(t, 1.5, env[0].PrecipMm)
}
