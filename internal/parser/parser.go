package parser

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"reefer-telemetry-sim/internal/models"
)

// columnAliases maps each trip record field to the header names it may appear under
var columnAliases = map[string][]string{
	"trip_id":         {"trip_id", "tripid", "trip"},
	"commodity":       {"commodity", "fruit_cate", "fruit", "cargo"},
	"timestamp":       {"timestamp", "time", "datetime"},
	"latitude":        {"latitude", "lat"},
	"longitude":       {"longitude", "lon", "lng"},
	"speed":           {"speed", "speed_kmh"},
	"temperature_out": {"temperature_out", "temperature_c", "temp_out"},
	"humidity_out":    {"humidity_out", "humidity_%", "humidity"},
	"dew_point_out":   {"dew_point_out", "dew_point_c", "dew_point"},
	"pressure_out":    {"pressure_out", "pressure_hpa", "pressure"},
	"wind_speed":      {"wind_speed", "wind_speed_kmh", "wind_kmh"},
	"precipitation":   {"precipitation", "precipitation_mm", "precip_mm"},
}

var requiredColumns = []string{"trip_id", "timestamp", "commodity"}

// Parser handles parsing of trip record files
type Parser struct {
	format string
	log    *slog.Logger
}

// NewParser creates a new parser with the specified format
func NewParser(format string, log *slog.Logger) *Parser {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Parser{format: format, log: log}
}

// ParseFile parses a trip record file
func (p *Parser) ParseFile(filename string) ([]models.TripRecord, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return p.Parse(file)
}

// Parse reads trip records in the parser's format
func (p *Parser) Parse(r io.Reader) ([]models.TripRecord, error) {
	switch strings.ToLower(p.format) {
	case "csv":
		return p.parseCSV(r)
	case "json":
		return p.parseJSON(r)
	default:
		return nil, fmt.Errorf("unsupported format: %s", p.format)
	}
}

// parseCSV parses CSV formatted trip records. A missing required column is fatal; a row
// with an unreadable timestamp is skipped.
func (p *Parser) parseCSV(r io.Reader) ([]models.TripRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	indices := headerIndices(header)
	for _, col := range requiredColumns {
		if _, ok := indices[col]; !ok {
			return nil, fmt.Errorf("missing required column: %s", col)
		}
	}

	var results []models.TripRecord
	lineNum := 1

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		lineNum++
		if err != nil {
			return results, fmt.Errorf("error at line %d: %w", lineNum, err)
		}

		rec, err := recordToTrip(record, indices)
		if err != nil {
			p.log.Warn("skipping row", "line", lineNum, "error", err)
			continue
		}
		results = append(results, rec)
	}

	return results, nil
}

// headerIndices resolves the column position of every known field
func headerIndices(header []string) map[string]int {
	byName := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		byName[name] = i
	}

	indices := make(map[string]int)
	for field, aliases := range columnAliases {
		for _, a := range aliases {
			if idx, ok := byName[a]; ok {
				indices[field] = idx
				break
			}
		}
	}
	return indices
}

// recordToTrip converts a CSV record to a TripRecord. Missing or unreadable readings become NaN.
func recordToTrip(record []string, indices map[string]int) (models.TripRecord, error) {
	var t models.TripRecord
	var err error

	getValue := func(key string) string {
		if idx, ok := indices[key]; ok && idx < len(record) {
			return strings.TrimSpace(record[idx])
		}
		return ""
	}
	getFloat := func(key string) float64 {
		v, err := strconv.ParseFloat(getValue(key), 64)
		if err != nil {
			return math.NaN()
		}
		return v
	}

	t.TripID = getValue("trip_id")
	t.Commodity = getValue("commodity")

	t.Timestamp, err = ParseTimestamp(getValue("timestamp"))
	if err != nil {
		return t, fmt.Errorf("invalid timestamp: %w", err)
	}

	t.Latitude = getFloat("latitude")
	t.Longitude = getFloat("longitude")
	t.Speed = getFloat("speed")
	t.TemperatureOut = getFloat("temperature_out")
	t.HumidityOut = getFloat("humidity_out")
	t.DewPointOut = getFloat("dew_point_out")
	t.PressureOut = getFloat("pressure_out")
	t.WindSpeed = getFloat("wind_speed")
	t.Precipitation = getFloat("precipitation")

	return t, nil
}

// parseJSON parses a JSON array of trip records or newline-delimited JSON
func (p *Parser) parseJSON(r io.Reader) ([]models.TripRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}

	var results []models.TripRecord
	if err := json.Unmarshal(data, &results); err == nil {
		return results, nil
	}

	return p.parseJSONLines(bytes.NewReader(data))
}

// parseJSONLines parses newline-delimited JSON
func (p *Parser) parseJSONLines(r io.Reader) ([]models.TripRecord, error) {
	var results []models.TripRecord
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line == "[" || line == "]" {
			continue
		}

		line = strings.TrimSuffix(line, ",")

		var t models.TripRecord
		if err := json.Unmarshal([]byte(line), &t); err != nil {
			p.log.Warn("skipping line", "line", lineNum, "error", err)
			continue
		}
		results = append(results, t)
	}

	return results, scanner.Err()
}

// ParseTimestamp tries multiple timestamp formats
func ParseTimestamp(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04:05-07:00",
		"2006/01/02 15:04:05",
		"01/02/2006 15:04:05",
		"2006-01-02 15:04",
		"2006-01-02",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}

	if ts, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(ts, 0).UTC(), nil
	}

	return time.Time{}, fmt.Errorf("unable to parse timestamp: %q", s)
}

// ValidateTripRecord validates a trip record. Missing (NaN) readings are allowed.
func ValidateTripRecord(t *models.TripRecord) []string {
	var errors []string

	if t.TripID == "" {
		errors = append(errors, "trip_id is required")
	}
	if t.Commodity == "" {
		errors = append(errors, "commodity is required")
	}
	if t.Timestamp.IsZero() {
		errors = append(errors, "timestamp is required")
	}
	if t.Latitude < -90 || t.Latitude > 90 {
		errors = append(errors, "latitude must be between -90 and 90")
	}
	if t.Longitude < -180 || t.Longitude > 180 {
		errors = append(errors, "longitude must be between -180 and 180")
	}
	if t.Speed < 0 {
		errors = append(errors, "speed cannot be negative")
	}
	if t.HumidityOut < 0 || t.HumidityOut > 100 {
		errors = append(errors, "humidity_out must be between 0 and 100")
	}
	if t.WindSpeed < 0 {
		errors = append(errors, "wind_speed cannot be negative")
	}
	if t.Precipitation < 0 {
		errors = append(errors, "precipitation cannot be negative")
	}

	return errors
}

// FilterValid drops records that fail ValidateTripRecord, logging each one, and returns the
// kept records with the number dropped
func FilterValid(records []models.TripRecord, log *slog.Logger) ([]models.TripRecord, int) {
	valid := make([]models.TripRecord, 0, len(records))
	for i := range records {
		if errs := ValidateTripRecord(&records[i]); len(errs) > 0 {
			if log != nil {
				log.Warn("dropping invalid record", "trip_id", records[i].TripID, "timestamp", records[i].Timestamp, "errors", strings.Join(errs, "; "))
			}
			continue
		}
		valid = append(valid, records[i])
	}
	return valid, len(records) - len(valid)
}
