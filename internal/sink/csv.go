package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"reefer-telemetry-sim/internal/models"
	"reefer-telemetry-sim/internal/simulation"
)

// CSVHeader is the column order of the labeled dataset
var CSVHeader = []string{
	"step", "timestamp", "temp", "humid", "co2", "light", "class",
	"latitude", "longitude", "speed", "temperature_out", "humidity_out", "dew_point_out",
	"pressure_out", "wind_speed", "precipitation",
	"trip_id", "failure_scenario", "commodity",
}

// CSVSink writes the concatenated rows of a run as one CSV table
type CSVSink struct {
	w      io.Writer
	closer io.Closer
}

// NewCSV writes to w. The caller owns w.
func NewCSV(w io.Writer) *CSVSink {
	return &CSVSink{w: w}
}

// NewCSVFile creates or truncates the file at path
func NewCSVFile(path string) (*CSVSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return &CSVSink{w: f, closer: f}, nil
}

func (s *CSVSink) Name() string { return "csv" }

// Write emits the header and every row
func (s *CSVSink) Write(_ context.Context, report *simulation.BatchReport) error {
	return WriteCSV(s.w, report.Rows)
}

// Close closes the underlying file, if the sink opened one
func (s *CSVSink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// WriteCSV writes rows with a header. Missing readings are left empty.
func WriteCSV(w io.Writer, rows []models.ResultRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(csvRecord(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvRecord(r models.ResultRow) []string {
	return []string{
		strconv.Itoa(r.Step),
		r.Timestamp.UTC().Format(time.RFC3339),
		formatFloat(r.Temp),
		formatFloat(r.Humid),
		formatFloat(r.CO2),
		formatFloat(r.Light),
		string(r.Class),
		formatFloat(r.Latitude),
		formatFloat(r.Longitude),
		formatFloat(r.Speed),
		formatFloat(r.TemperatureOut),
		formatFloat(r.HumidityOut),
		formatFloat(r.DewPointOut),
		formatFloat(r.PressureOut),
		formatFloat(r.WindSpeed),
		formatFloat(r.Precipitation),
		r.TripID,
		r.FailureScenario,
		r.Commodity,
	}
}
