package parser

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reefer-telemetry-sim/internal/models"
)

const tripCSV = `trip_id,fruit_cate,timestamp,latitude,longitude,speed,temperature_C,humidity_%,dew_point_C,pressure_hPa,wind_speed_kmh,precipitation_mm
T-1,Orange,2024-07-01 08:00:00,36.84,-2.46,61.5,29.4,64,21.7,1013.2,14.1,0
T-1,Orange,2024-07-01 08:40:00,36.90,-2.40,70.0,,66,,1012.9,notanumber,0.2
T-1,Orange,yesterday,36.95,-2.35,71.0,30.0,60,20.0,1012.0,10.0,0
T-2,Banana,1719824400,9.93,-84.08,40.0,27.0,88,24.8,1009.0,5.0,3.5
`

func TestParseCSVAliasesAndMissingValues(t *testing.T) {
	recs, err := NewParser("csv", nil).Parse(strings.NewReader(tripCSV))
	require.NoError(t, err)
	require.Len(t, recs, 3, "the row with an unreadable timestamp is skipped")

	first := recs[0]
	assert.Equal(t, "T-1", first.TripID)
	assert.Equal(t, "Orange", first.Commodity)
	assert.Equal(t, time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC), first.Timestamp)
	assert.Equal(t, 29.4, first.TemperatureOut)
	assert.Equal(t, 64.0, first.HumidityOut)
	assert.Equal(t, 21.7, first.DewPointOut)
	assert.Equal(t, 1013.2, first.PressureOut)
	assert.Equal(t, 14.1, first.WindSpeed)
	assert.Equal(t, 0.0, first.Precipitation)

	second := recs[1]
	assert.True(t, math.IsNaN(second.TemperatureOut))
	assert.True(t, math.IsNaN(second.DewPointOut))
	assert.True(t, math.IsNaN(second.WindSpeed))
	assert.Equal(t, 0.2, second.Precipitation)

	assert.Equal(t, "Banana", recs[2].Commodity)
	assert.Equal(t, time.Unix(1719824400, 0).UTC(), recs[2].Timestamp)
}

func TestParseCSVMissingRequiredColumn(t *testing.T) {
	doc := "trip_id,timestamp,speed\nT-1,2024-07-01 08:00:00,10\n"
	_, err := NewParser("csv", nil).Parse(strings.NewReader(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "commodity")
}

func TestParseJSONArrayAndLines(t *testing.T) {
	array := `[
{"trip_id":"T-1","commodity":"Tomato","timestamp":"2024-07-01T08:00:00Z","temperature_out":25.5,"humidity_out":null},
{"trip_id":"T-1","commodity":"Tomato","timestamp":"2024-07-01T08:30:00Z","temperature_out":26.0}
]`
	recs, err := NewParser("json", nil).Parse(strings.NewReader(array))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 25.5, recs[0].TemperatureOut)
	assert.True(t, math.IsNaN(recs[0].HumidityOut))
	assert.True(t, math.IsNaN(recs[1].WindSpeed), "absent fields are missing readings")

	lines := `{"trip_id":"T-2","commodity":"Banana","timestamp":"2024-07-01T08:00:00Z","speed":40}
not json
{"trip_id":"T-2","commodity":"Banana","timestamp":"2024-07-01T08:10:00Z","speed":41}
`
	recs, err = NewParser("json", nil).Parse(strings.NewReader(lines))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 41.0, recs[1].Speed)
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trips.csv")
	require.NoError(t, os.WriteFile(path, []byte(tripCSV), 0o644))

	recs, err := NewParser("CSV", nil).ParseFile(path)
	require.NoError(t, err)
	assert.Len(t, recs, 3)

	_, err = NewParser("xml", nil).ParseFile(path)
	assert.Error(t, err)

	_, err = NewParser("csv", nil).ParseFile(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestParseTimestamp(t *testing.T) {
	for _, s := range []string{"2024-07-01T08:00:00Z", "2024-07-01 08:00:00", "2024/07/01 08:00:00", "07/01/2024 08:00:00", "2024-07-01 08:00"} {
		ts, err := ParseTimestamp(s)
		require.NoError(t, err, s)
		assert.Equal(t, time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC), ts.UTC(), s)
	}
	_, err := ParseTimestamp("")
	assert.Error(t, err)
}

func TestValidateTripRecord(t *testing.T) {
	nan := math.NaN()
	ok := models.TripRecord{
		TripID: "T", Commodity: "Orange", Timestamp: time.Now(),
		Latitude: 10, Longitude: 10, Speed: nan, HumidityOut: nan, WindSpeed: nan, Precipitation: nan,
	}
	assert.Empty(t, ValidateTripRecord(&ok))

	bad := models.TripRecord{Latitude: 91, Longitude: 200, Speed: -1, HumidityOut: 120, WindSpeed: -3, Precipitation: -1}
	assert.Len(t, ValidateTripRecord(&bad), 9)
}

func TestFilterValidDropsOutOfRangeRecords(t *testing.T) {
	ts := time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC)
	records := []models.TripRecord{
		{TripID: "T-1", Commodity: "Orange", Timestamp: ts, Latitude: 36.8, Longitude: -2.4, Speed: 50, HumidityOut: 70},
		{TripID: "T-1", Commodity: "Orange", Timestamp: ts.Add(time.Hour), Latitude: 95, Longitude: -2.4, Speed: 50, HumidityOut: 70},
		{TripID: "T-1", Commodity: "Orange", Timestamp: ts.Add(2 * time.Hour), Latitude: 36.9, Longitude: -2.5, Speed: 51, HumidityOut: math.NaN()},
	}

	valid, dropped := FilterValid(records, nil)
	assert.Equal(t, 1, dropped)
	require.Len(t, valid, 2)
	assert.Equal(t, ts, valid[0].Timestamp)
	assert.Equal(t, ts.Add(2*time.Hour), valid[1].Timestamp)
	assert.Equal(t, 95.0, records[1].Latitude, "input is left untouched")
}
