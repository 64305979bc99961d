package db

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reefer-telemetry-sim/internal/models"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "sim.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

var start = time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC)

func row(trip string, step int, class models.Class) models.ResultRow {
	return models.ResultRow{
		SimulatedStep: models.SimulatedStep{
			Step:      step,
			Timestamp: start.Add(time.Duration(step) * 10 * time.Minute),
			Temp:      22.5 + float64(step)/10,
			Humid:     91.0,
			CO2:       285.0,
			Light:     7.0,
			Class:     class,
		},
		Latitude:        36.8,
		Longitude:       -2.4,
		Speed:           60,
		TemperatureOut:  30,
		HumidityOut:     math.NaN(),
		DewPointOut:     19,
		PressureOut:     1012,
		WindSpeed:       12,
		Precipitation:   0,
		TripID:          trip,
		FailureScenario: "TEMP_FAIL",
		Commodity:       "Orange",
	}
}

func seedRun(t *testing.T, db *Database) models.RunSummary {
	t.Helper()
	run := models.RunSummary{ID: "run-1", Seed: 42, SeedMode: "sequential", StartedAt: start, Total: 3, Succeeded: 2, Skipped: 1}
	require.NoError(t, db.InsertRun(run))
	require.NoError(t, db.InsertTripSummaries(run.ID, []models.TripSummary{
		{TripID: "T-2", Commodity: "Banana", Scenario: "GOOD", NumSteps: 3, FailStart: -1, FailEnd: -1, FirstBadStep: -1},
		{TripID: "T-1", Commodity: "Orange", Scenario: "TEMP_FAIL", NumSteps: 4, FailStart: 1, FailEnd: 3, Triggered: true, FirstBadStep: 2, BadSteps: 2},
	}))
	n, err := db.InsertReadingsBatch(run.ID, []models.ResultRow{
		row("T-1", 0, models.ClassGood), row("T-1", 1, models.ClassGood),
		row("T-1", 2, models.ClassBad), row("T-1", 3, models.ClassBad),
		row("T-2", 0, models.ClassGood), row("T-2", 1, models.ClassGood), row("T-2", 2, models.ClassGood),
	})
	require.NoError(t, err)
	require.Equal(t, int64(7), n)
	return run
}

func TestRunsRoundTrip(t *testing.T) {
	db := openTestDB(t)
	run := seedRun(t, db)

	got, err := db.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, run, *got)

	runs, err := db.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)

	_, err = db.GetRun("missing")
	assert.Error(t, err)
}

func TestListTrips(t *testing.T) {
	db := openTestDB(t)
	seedRun(t, db)

	trips, err := db.ListTrips("run-1")
	require.NoError(t, err)
	require.Len(t, trips, 2)
	assert.Equal(t, "T-1", trips[0].TripID)
	assert.True(t, trips[0].Triggered)
	assert.Equal(t, 2, trips[0].FirstBadStep)
	assert.Equal(t, "run-1", trips[0].RunID)
	assert.False(t, trips[1].Triggered)
	assert.Equal(t, -1, trips[1].FailStart)
}

func TestQueryReadings(t *testing.T) {
	db := openTestDB(t)
	seedRun(t, db)

	all, err := db.QueryReadings(models.ReadingQuery{RunID: "run-1"})
	require.NoError(t, err)
	require.Len(t, all, 7)
	assert.Equal(t, "T-1", all[0].TripID)
	assert.Equal(t, start, all[0].Timestamp)
	assert.InDelta(t, 22.8, all[3].Temp, 1e-9)
	assert.True(t, math.IsNaN(all[0].HumidityOut), "NULL reads back as a missing reading")

	bad, err := db.QueryReadings(models.ReadingQuery{Class: models.ClassBad})
	require.NoError(t, err)
	require.Len(t, bad, 2)
	assert.Equal(t, 2, bad[0].Step)

	page, err := db.QueryReadings(models.ReadingQuery{TripID: "T-2", Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, 1, page[0].Step)

	window, err := db.QueryReadings(models.ReadingQuery{StartTime: start.Add(15 * time.Minute), EndTime: start.Add(30 * time.Minute)})
	require.NoError(t, err)
	assert.Len(t, window, 3) // T-1 steps 2 and 3, T-2 step 2
}

func TestGetStats(t *testing.T) {
	db := openTestDB(t)
	seedRun(t, db)

	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats["total_runs"])
	assert.Equal(t, int64(2), stats["total_trips"])
	assert.Equal(t, int64(1), stats["triggered_trips"])
	assert.Equal(t, int64(7), stats["total_readings"])
	assert.Equal(t, int64(2), stats["bad_readings"])
	assert.Equal(t, map[string]int64{"GOOD": 1, "TEMP_FAIL": 1}, stats["trips_by_scenario"])

	n, err := db.GetReadingCount()
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}

func TestRunSeedKeepsFullUint64Range(t *testing.T) {
	db := openTestDB(t)
	run := models.RunSummary{ID: "run-big", Seed: math.MaxUint64, SeedMode: "per-trip", StartedAt: start}
	require.NoError(t, db.InsertRun(run))

	got, err := db.GetRun("run-big")
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), got.Seed)

	runs, err := db.ListRuns(1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, uint64(math.MaxUint64), runs[0].Seed)
}
