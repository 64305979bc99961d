package sink

import (
	"context"
	"fmt"
	"math"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"reefer-telemetry-sim/internal/models"
	"reefer-telemetry-sim/internal/simulation"
)

// Measurement is the InfluxDB measurement holding labeled readings
const Measurement = "reefer_readings"

const influxBatchSize = 1000

// InfluxConfig holds InfluxDB v2 connection settings
type InfluxConfig struct {
	URL    string
	Org    string
	Token  string
	Bucket string
}

type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// InfluxSink writes one point per labeled reading
type InfluxSink struct {
	client influxdb2.Client
	writer pointWriter
}

// NewInflux connects to InfluxDB and verifies the server is healthy
func NewInflux(ctx context.Context, cfg InfluxConfig) (*InfluxSink, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	if _, err := client.Health(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to InfluxDB: %w", err)
	}

	return &InfluxSink{client: client, writer: client.WriteAPIBlocking(cfg.Org, cfg.Bucket)}, nil
}

func (s *InfluxSink) Name() string { return "influx" }

func (s *InfluxSink) Write(ctx context.Context, report *simulation.BatchReport) error {
	batch := make([]*write.Point, 0, influxBatchSize)
	for _, r := range report.Rows {
		batch = append(batch, toPoint(report.RunID, r))
		if len(batch) == influxBatchSize {
			if err := s.writer.WritePoint(ctx, batch...); err != nil {
				return fmt.Errorf("influx write failed: %w", err)
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if err := s.writer.WritePoint(ctx, batch...); err != nil {
			return fmt.Errorf("influx write failed: %w", err)
		}
	}
	return nil
}

func (s *InfluxSink) Close() error {
	if s.client != nil {
		s.client.Close()
	}
	return nil
}

// toPoint maps a row to a point. Missing readings are omitted since line protocol has no NaN.
func toPoint(runID string, r models.ResultRow) *write.Point {
	fields := map[string]interface{}{"step": r.Step}
	for k, v := range map[string]float64{
		"temp":            r.Temp,
		"humid":           r.Humid,
		"co2":             r.CO2,
		"light":           r.Light,
		"latitude":        r.Latitude,
		"longitude":       r.Longitude,
		"speed":           r.Speed,
		"temperature_out": r.TemperatureOut,
		"humidity_out":    r.HumidityOut,
		"dew_point_out":   r.DewPointOut,
		"pressure_out":    r.PressureOut,
		"wind_speed":      r.WindSpeed,
		"precipitation":   r.Precipitation,
	} {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			fields[k] = v
		}
	}

	return write.NewPoint(
		Measurement,
		map[string]string{
			"run_id":    runID,
			"trip_id":   r.TripID,
			"commodity": r.Commodity,
			"scenario":  r.FailureScenario,
			"class":     string(r.Class),
		},
		fields,
		r.Timestamp,
	)
}
