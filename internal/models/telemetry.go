package models

import (
	"encoding/json"
	"math"
	"time"
)

// Class is the ground-truth label of one simulated step
type Class string

const (
	ClassGood Class = "Good"
	ClassBad  Class = "Bad"
)

// TripRecord represents a single real GPS/weather observation of a trip.
// Missing numeric readings are carried as NaN.
type TripRecord struct {
	TripID         string    `json:"trip_id"`
	Commodity      string    `json:"commodity"`
	Timestamp      time.Time `json:"timestamp"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	Speed          float64   `json:"speed"`
	TemperatureOut float64   `json:"temperature_out"` // Celsius
	HumidityOut    float64   `json:"humidity_out"`    // percentage
	DewPointOut    float64   `json:"dew_point_out"`   // Celsius
	PressureOut    float64   `json:"pressure_out"`    // hPa
	WindSpeed      float64   `json:"wind_speed"`      // km/h
	Precipitation  float64   `json:"precipitation"`   // mm
}

// WeatherSample is the outside weather aligned onto one backbone step
type WeatherSample struct {
	TempOut     float64 `json:"temp_out"`
	HumidOut    float64 `json:"humid_out"`
	DewPointOut float64 `json:"dew_point_out"`
	PressureOut float64 `json:"pressure_out"`
	WindKmh     float64 `json:"wind_kmh"`
	PrecipMm    float64 `json:"precip_mm"`
}

// SimulatedStep is one synthetic sensor reading on the 10 minute backbone
type SimulatedStep struct {
	Step      int       `json:"step"`
	Timestamp time.Time `json:"timestamp"`
	Temp      float64   `json:"temp"`
	Humid     float64   `json:"humid"`
	CO2       float64   `json:"co2"`
	Light     float64   `json:"light"`
	Class     Class     `json:"class"`
}

// ResultRow is a labeled synthetic step joined with the trip record in effect at its timestamp
type ResultRow struct {
	SimulatedStep
	Latitude        float64 `json:"latitude"`
	Longitude       float64 `json:"longitude"`
	Speed           float64 `json:"speed"`
	TemperatureOut  float64 `json:"temperature_out"`
	HumidityOut     float64 `json:"humidity_out"`
	DewPointOut     float64 `json:"dew_point_out"`
	PressureOut     float64 `json:"pressure_out"`
	WindSpeed       float64 `json:"wind_speed"`
	Precipitation   float64 `json:"precipitation"`
	TripID          string  `json:"trip_id"`
	FailureScenario string  `json:"failure_scenario"`
	Commodity       string  `json:"commodity"`
}

// TripSummary describes how one trip was simulated and labeled
type TripSummary struct {
	RunID        string `json:"run_id,omitempty"`
	TripID       string `json:"trip_id"`
	Commodity    string `json:"commodity"`
	Scenario     string `json:"failure_scenario"`
	NumSteps     int    `json:"num_steps"`
	FailStart    int    `json:"fail_start_step"` // -1 when no fault was injected
	FailEnd      int    `json:"fail_end_step"`
	Triggered    bool   `json:"triggered"`
	FirstBadStep int    `json:"first_bad_step"` // -1 when every step is Good
	BadSteps     int    `json:"bad_steps"`
}

// RunSummary provides the totals of one batch run
type RunSummary struct {
	ID        string    `json:"id"`
	Seed      uint64    `json:"seed"`
	SeedMode  string    `json:"seed_mode"`
	StartedAt time.Time `json:"started_at"`
	Total     int       `json:"total_trips"`
	Succeeded int       `json:"succeeded"`
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed"`
}

// ReadingQuery represents query parameters for stored reading searches
type ReadingQuery struct {
	RunID     string
	TripID    string
	Class     Class
	StartTime time.Time
	EndTime   time.Time
	Limit     int
	Offset    int
}

// nullable maps NaN to a JSON null
func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func orNaN(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

type tripRecordJSON struct {
	TripID         string    `json:"trip_id"`
	Commodity      string    `json:"commodity"`
	Timestamp      time.Time `json:"timestamp"`
	Latitude       *float64  `json:"latitude"`
	Longitude      *float64  `json:"longitude"`
	Speed          *float64  `json:"speed"`
	TemperatureOut *float64  `json:"temperature_out"`
	HumidityOut    *float64  `json:"humidity_out"`
	DewPointOut    *float64  `json:"dew_point_out"`
	PressureOut    *float64  `json:"pressure_out"`
	WindSpeed      *float64  `json:"wind_speed"`
	Precipitation  *float64  `json:"precipitation"`
}

// MarshalJSON encodes missing readings as null
func (r TripRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(tripRecordJSON{
		TripID:         r.TripID,
		Commodity:      r.Commodity,
		Timestamp:      r.Timestamp,
		Latitude:       nullable(r.Latitude),
		Longitude:      nullable(r.Longitude),
		Speed:          nullable(r.Speed),
		TemperatureOut: nullable(r.TemperatureOut),
		HumidityOut:    nullable(r.HumidityOut),
		DewPointOut:    nullable(r.DewPointOut),
		PressureOut:    nullable(r.PressureOut),
		WindSpeed:      nullable(r.WindSpeed),
		Precipitation:  nullable(r.Precipitation),
	})
}

// UnmarshalJSON decodes null or absent readings as NaN
func (r *TripRecord) UnmarshalJSON(b []byte) error {
	var w tripRecordJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*r = TripRecord{
		TripID:         w.TripID,
		Commodity:      w.Commodity,
		Timestamp:      w.Timestamp,
		Latitude:       orNaN(w.Latitude),
		Longitude:      orNaN(w.Longitude),
		Speed:          orNaN(w.Speed),
		TemperatureOut: orNaN(w.TemperatureOut),
		HumidityOut:    orNaN(w.HumidityOut),
		DewPointOut:    orNaN(w.DewPointOut),
		PressureOut:    orNaN(w.PressureOut),
		WindSpeed:      orNaN(w.WindSpeed),
		Precipitation:  orNaN(w.Precipitation),
	}
	return nil
}

// MarshalJSON flattens the row and encodes missing readings as null
func (r ResultRow) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Step            int       `json:"step"`
		Timestamp       time.Time `json:"timestamp"`
		Temp            *float64  `json:"temp"`
		Humid           *float64  `json:"humid"`
		CO2             *float64  `json:"co2"`
		Light           *float64  `json:"light"`
		Class           Class     `json:"class"`
		Latitude        *float64  `json:"latitude"`
		Longitude       *float64  `json:"longitude"`
		Speed           *float64  `json:"speed"`
		TemperatureOut  *float64  `json:"temperature_out"`
		HumidityOut     *float64  `json:"humidity_out"`
		DewPointOut     *float64  `json:"dew_point_out"`
		PressureOut     *float64  `json:"pressure_out"`
		WindSpeed       *float64  `json:"wind_speed"`
		Precipitation   *float64  `json:"precipitation"`
		TripID          string    `json:"trip_id"`
		FailureScenario string    `json:"failure_scenario"`
		Commodity       string    `json:"commodity"`
	}{
		Step:            r.Step,
		Timestamp:       r.Timestamp,
		Temp:            nullable(r.Temp),
		Humid:           nullable(r.Humid),
		CO2:             nullable(r.CO2),
		Light:           nullable(r.Light),
		Class:           r.Class,
		Latitude:        nullable(r.Latitude),
		Longitude:       nullable(r.Longitude),
		Speed:           nullable(r.Speed),
		TemperatureOut:  nullable(r.TemperatureOut),
		HumidityOut:     nullable(r.HumidityOut),
		DewPointOut:     nullable(r.DewPointOut),
		PressureOut:     nullable(r.PressureOut),
		WindSpeed:       nullable(r.WindSpeed),
		Precipitation:   nullable(r.Precipitation),
		TripID:          r.TripID,
		FailureScenario: r.FailureScenario,
		Commodity:       r.Commodity,
	})
}
