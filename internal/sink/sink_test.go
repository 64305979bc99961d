package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reefer-telemetry-sim/internal/db"
	"reefer-telemetry-sim/internal/models"
	"reefer-telemetry-sim/internal/simulation"
)

var ts = time.Date(2024, 7, 1, 8, 30, 0, 0, time.UTC)

func sampleRow(step int) models.ResultRow {
	return models.ResultRow{
		SimulatedStep: models.SimulatedStep{
			Step: step, Timestamp: ts.Add(time.Duration(step) * simulation.StepInterval),
			Temp: 23.25, Humid: 91.5, CO2: 301, Light: 150.125, Class: models.ClassBad,
		},
		Latitude: 36.84, Longitude: -2.46, Speed: 61.5,
		TemperatureOut: 29.4, HumidityOut: math.NaN(), DewPointOut: 21.7,
		PressureOut: 1013.2, WindSpeed: 14.1, Precipitation: 0,
		TripID: "T-1", FailureScenario: "TEMP_FAIL", Commodity: "Orange",
	}
}

func sampleReport(n int) *simulation.BatchReport {
	rows := make([]models.ResultRow, n)
	for i := range rows {
		rows[i] = sampleRow(i)
	}
	return &simulation.BatchReport{
		RunID:     "run-1",
		Seed:      42,
		Mode:      simulation.SeedSequential,
		StartedAt: ts,
		Rows:      rows,
		Summaries: []models.TripSummary{{TripID: "T-1", Commodity: "Orange", Scenario: "TEMP_FAIL", NumSteps: n, FailStart: 0, FailEnd: n - 1, Triggered: true, FirstBadStep: 0, BadSteps: n}},
		Total:     1,
		Succeeded: 1,
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	s := NewCSV(&buf)
	require.NoError(t, s.Write(context.Background(), sampleReport(2)))
	require.NoError(t, s.Close())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(CSVHeader, ","), lines[0])
	assert.Equal(t, "0,2024-07-01T08:30:00Z,23.25,91.5,301,150.125,Bad,36.84,-2.46,61.5,29.4,,21.7,1013.2,14.1,0,T-1,TEMP_FAIL,Orange", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "1,2024-07-01T08:40:00Z,"))
}

func TestCSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	s, err := NewCSVFile(path)
	require.NoError(t, err)
	require.NoError(t, s.Write(context.Background(), sampleReport(3)))
	require.NoError(t, s.Close())
	assert.Equal(t, "csv", s.Name())
}

func TestToPointOmitsMissingReadings(t *testing.T) {
	p := toPoint("run-1", sampleRow(3))
	line := write.PointToLineProtocol(p, time.Second)

	assert.True(t, strings.HasPrefix(line, Measurement+","), line)
	assert.Contains(t, line, "trip_id=T-1")
	assert.Contains(t, line, "scenario=TEMP_FAIL")
	assert.Contains(t, line, "class=Bad")
	assert.Contains(t, line, "run_id=run-1")
	assert.Contains(t, line, "step=3i")
	assert.Contains(t, line, "temp=23.25")
	assert.NotContains(t, line, "humidity_out")
	assert.Equal(t, ts.Add(30*time.Minute), p.Time())
}

type fakePoints struct {
	calls []int
	err   error
}

func (f *fakePoints) WritePoint(_ context.Context, point ...*write.Point) error {
	f.calls = append(f.calls, len(point))
	return f.err
}

func TestInfluxWriteBatches(t *testing.T) {
	fake := &fakePoints{}
	s := &InfluxSink{writer: fake}
	require.NoError(t, s.Write(context.Background(), sampleReport(2500)))
	assert.Equal(t, []int{1000, 1000, 500}, fake.calls)
	assert.NoError(t, s.Close())

	fake.err = errors.New("unauthorized")
	assert.Error(t, s.Write(context.Background(), sampleReport(1)))
}

func TestToMessage(t *testing.T) {
	msg, err := toMessage("run-1", sampleRow(0))
	require.NoError(t, err)
	assert.Equal(t, []byte("T-1"), msg.Key)
	assert.Equal(t, ts, msg.Time)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "run_id", msg.Headers[0].Key)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Value, &body))
	assert.Equal(t, "Bad", body["class"])
	assert.Equal(t, 23.25, body["temp"])
	assert.Nil(t, body["humidity_out"])
	assert.Contains(t, body, "humidity_out")
}

type fakeMessages struct {
	batches [][]kafka.Message
	closed  bool
}

func (f *fakeMessages) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.batches = append(f.batches, append([]kafka.Message(nil), msgs...))
	return nil
}

func (f *fakeMessages) Close() error {
	f.closed = true
	return nil
}

func TestKafkaWriteBatches(t *testing.T) {
	fake := &fakeMessages{}
	s := &KafkaSink{writer: fake}
	require.NoError(t, s.Write(context.Background(), sampleReport(1200)))
	require.Len(t, fake.batches, 3)
	assert.Len(t, fake.batches[0], 500)
	assert.Len(t, fake.batches[2], 200)
	require.NoError(t, s.Close())
	assert.True(t, fake.closed)
}

func TestSQLiteSink(t *testing.T) {
	database, err := db.New(filepath.Join(t.TempDir(), "sink.db"))
	require.NoError(t, err)
	defer database.Close()

	s := NewSQLite(database)
	require.NoError(t, s.Write(context.Background(), sampleReport(4)))

	run, err := database.GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, 1, run.Succeeded)

	trips, err := database.ListTrips("run-1")
	require.NoError(t, err)
	require.Len(t, trips, 1)
	assert.Equal(t, 4, trips[0].BadSteps)

	n, err := database.GetReadingCount()
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}
