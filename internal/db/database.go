package db

import (
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"reefer-telemetry-sim/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

// Database wraps the SQLite connection
type Database struct {
	conn *sql.DB
}

// New creates a new database connection
func New(dbPath string) (*Database, error) {
	// Enable WAL mode and other optimizations via connection string
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_loc=UTC", dbPath)

	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1) // SQLite works best with single writer
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	db := &Database{conn: conn}

	if err := db.initialize(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return db, nil
}

// initialize creates tables and indexes
func (db *Database) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		seed TEXT NOT NULL, -- decimal uint64
		seed_mode TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		total_trips INTEGER NOT NULL,
		succeeded INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		failed INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS trips (
		run_id TEXT NOT NULL,
		trip_id TEXT NOT NULL,
		commodity TEXT NOT NULL,
		failure_scenario TEXT NOT NULL,
		num_steps INTEGER NOT NULL,
		fail_start_step INTEGER NOT NULL,
		fail_end_step INTEGER NOT NULL,
		triggered INTEGER NOT NULL,
		first_bad_step INTEGER NOT NULL,
		bad_steps INTEGER NOT NULL,
		PRIMARY KEY (run_id, trip_id),
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	CREATE TABLE IF NOT EXISTS readings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		trip_id TEXT NOT NULL,
		step INTEGER NOT NULL,
		timestamp DATETIME NOT NULL,
		temp REAL,
		humid REAL,
		co2 REAL,
		light REAL,
		class TEXT NOT NULL,
		latitude REAL,
		longitude REAL,
		speed REAL,
		temperature_out REAL,
		humidity_out REAL,
		dew_point_out REAL,
		pressure_out REAL,
		wind_speed REAL,
		precipitation REAL,
		failure_scenario TEXT NOT NULL,
		commodity TEXT NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	CREATE INDEX IF NOT EXISTS idx_readings_run_trip ON readings(run_id, trip_id, step);
	CREATE INDEX IF NOT EXISTS idx_readings_timestamp ON readings(timestamp);
	CREATE INDEX IF NOT EXISTS idx_readings_bad ON readings(run_id) WHERE class = 'Bad';
	CREATE INDEX IF NOT EXISTS idx_trips_scenario ON trips(failure_scenario);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// Close closes the database connection
func (db *Database) Close() error {
	return db.conn.Close()
}

// nullFloat stores missing readings as NULL
func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func fromNull(n sql.NullFloat64) float64 {
	if !n.Valid {
		return math.NaN()
	}
	return n.Float64
}

// InsertRun adds a batch run
func (db *Database) InsertRun(r models.RunSummary) error {
	query := `
		INSERT INTO runs (id, seed, seed_mode, started_at, total_trips, succeeded, skipped, failed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.conn.Exec(query, r.ID, strconv.FormatUint(r.Seed, 10), r.SeedMode, r.StartedAt.UTC(), r.Total, r.Succeeded, r.Skipped, r.Failed)
	return err
}

const runColumns = `id, seed, seed_mode, started_at, total_trips, succeeded, skipped, failed`

func scanRun(row interface{ Scan(...any) error }) (models.RunSummary, error) {
	var r models.RunSummary
	var seed string
	if err := row.Scan(&r.ID, &seed, &r.SeedMode, &r.StartedAt, &r.Total, &r.Succeeded, &r.Skipped, &r.Failed); err != nil {
		return r, err
	}
	r.StartedAt = r.StartedAt.UTC()
	n, err := strconv.ParseUint(seed, 10, 64)
	if err != nil {
		return r, fmt.Errorf("run %s: bad seed %q: %w", r.ID, seed, err)
	}
	r.Seed = n
	return r, nil
}

// GetRun retrieves a run by ID
func (db *Database) GetRun(id string) (*models.RunSummary, error) {
	r, err := scanRun(db.conn.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRuns returns runs, most recent first
func (db *Database) ListRuns(limit int) ([]models.RunSummary, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.RunSummary
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// InsertTripSummaries stores the per-trip outcome of a run
func (db *Database) InsertTripSummaries(runID string, summaries []models.TripSummary) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO trips
		(run_id, trip_id, commodity, failure_scenario, num_steps, fail_start_step, fail_end_step,
		 triggered, first_bad_step, bad_steps)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, s := range summaries {
		_, err := stmt.Exec(runID, s.TripID, s.Commodity, s.Scenario, s.NumSteps, s.FailStart, s.FailEnd,
			s.Triggered, s.FirstBadStep, s.BadSteps)
		if err != nil {
			return fmt.Errorf("trip %s: %w", s.TripID, err)
		}
	}
	return tx.Commit()
}

// ListTrips returns the trip summaries of a run ordered by trip id
func (db *Database) ListTrips(runID string) ([]models.TripSummary, error) {
	query := `
		SELECT run_id, trip_id, commodity, failure_scenario, num_steps, fail_start_step, fail_end_step,
		       triggered, first_bad_step, bad_steps
		FROM trips
		WHERE run_id = ?
		ORDER BY trip_id
	`
	rows, err := db.conn.Query(query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trips []models.TripSummary
	for rows.Next() {
		var s models.TripSummary
		if err := rows.Scan(&s.RunID, &s.TripID, &s.Commodity, &s.Scenario, &s.NumSteps, &s.FailStart,
			&s.FailEnd, &s.Triggered, &s.FirstBadStep, &s.BadSteps); err != nil {
			return nil, err
		}
		trips = append(trips, s)
	}
	return trips, rows.Err()
}

// InsertReadingsBatch efficiently inserts the labeled rows of a run
func (db *Database) InsertReadingsBatch(runID string, rows []models.ResultRow) (int64, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO readings
		(run_id, trip_id, step, timestamp, temp, humid, co2, light, class,
		 latitude, longitude, speed, temperature_out, humidity_out, dew_point_out,
		 pressure_out, wind_speed, precipitation, failure_scenario, commodity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	var count int64
	for _, r := range rows {
		_, err := stmt.Exec(
			runID, r.TripID, r.Step, r.Timestamp.UTC(),
			nullFloat(r.Temp), nullFloat(r.Humid), nullFloat(r.CO2), nullFloat(r.Light), string(r.Class),
			nullFloat(r.Latitude), nullFloat(r.Longitude), nullFloat(r.Speed),
			nullFloat(r.TemperatureOut), nullFloat(r.HumidityOut), nullFloat(r.DewPointOut),
			nullFloat(r.PressureOut), nullFloat(r.WindSpeed), nullFloat(r.Precipitation),
			r.FailureScenario, r.Commodity,
		)
		if err != nil {
			return count, err
		}
		count++
	}

	return count, tx.Commit()
}

// QueryReadings retrieves labeled readings based on query parameters
func (db *Database) QueryReadings(q models.ReadingQuery) ([]models.ResultRow, error) {
	var conditions []string
	var args []interface{}

	baseQuery := `
		SELECT trip_id, step, timestamp, temp, humid, co2, light, class,
		       latitude, longitude, speed, temperature_out, humidity_out, dew_point_out,
		       pressure_out, wind_speed, precipitation, failure_scenario, commodity
		FROM readings
	`

	if q.RunID != "" {
		conditions = append(conditions, "run_id = ?")
		args = append(args, q.RunID)
	}
	if q.TripID != "" {
		conditions = append(conditions, "trip_id = ?")
		args = append(args, q.TripID)
	}
	if q.Class != "" {
		conditions = append(conditions, "class = ?")
		args = append(args, string(q.Class))
	}
	if !q.StartTime.IsZero() {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, q.StartTime.UTC())
	}
	if !q.EndTime.IsZero() {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, q.EndTime.UTC())
	}

	if len(conditions) > 0 {
		baseQuery += " WHERE " + strings.Join(conditions, " AND ")
	}

	baseQuery += " ORDER BY run_id, trip_id, step"

	if q.Limit > 0 {
		baseQuery += fmt.Sprintf(" LIMIT %d", q.Limit)
		if q.Offset > 0 {
			baseQuery += fmt.Sprintf(" OFFSET %d", q.Offset)
		}
	}

	rows, err := db.conn.Query(baseQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.ResultRow
	for rows.Next() {
		var r models.ResultRow
		var class string
		var temp, humid, co2, light, lat, lon, speed, tOut, hOut, dew, press, wind, precip sql.NullFloat64

		err := rows.Scan(
			&r.TripID, &r.Step, &r.Timestamp, &temp, &humid, &co2, &light, &class,
			&lat, &lon, &speed, &tOut, &hOut, &dew, &press, &wind, &precip,
			&r.FailureScenario, &r.Commodity,
		)
		if err != nil {
			return nil, err
		}
		r.Timestamp = r.Timestamp.UTC()
		r.Class = models.Class(class)
		r.Temp, r.Humid, r.CO2, r.Light = fromNull(temp), fromNull(humid), fromNull(co2), fromNull(light)
		r.Latitude, r.Longitude, r.Speed = fromNull(lat), fromNull(lon), fromNull(speed)
		r.TemperatureOut, r.HumidityOut, r.DewPointOut = fromNull(tOut), fromNull(hOut), fromNull(dew)
		r.PressureOut, r.WindSpeed, r.Precipitation = fromNull(press), fromNull(wind), fromNull(precip)
		results = append(results, r)
	}

	return results, rows.Err()
}

// GetReadingCount returns total stored readings
func (db *Database) GetReadingCount() (int64, error) {
	var count int64
	err := db.conn.QueryRow("SELECT COUNT(*) FROM readings").Scan(&count)
	return count, err
}

// GetStats returns database statistics
func (db *Database) GetStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	counts := []struct {
		key   string
		query string
	}{
		{"total_runs", "SELECT COUNT(*) FROM runs"},
		{"total_trips", "SELECT COUNT(*) FROM trips"},
		{"triggered_trips", "SELECT COUNT(*) FROM trips WHERE triggered = 1"},
		{"bad_readings", "SELECT COUNT(*) FROM readings WHERE class = 'Bad'"},
	}
	for _, c := range counts {
		var n int64
		if err := db.conn.QueryRow(c.query).Scan(&n); err != nil {
			return nil, fmt.Errorf("%s: %w", c.key, err)
		}
		stats[c.key] = n
	}

	readings, err := db.GetReadingCount()
	if err != nil {
		return nil, fmt.Errorf("total_readings: %w", err)
	}
	stats["total_readings"] = readings

	rows, err := db.conn.Query("SELECT failure_scenario, COUNT(*) FROM trips GROUP BY failure_scenario ORDER BY failure_scenario")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	scenarios := make(map[string]int64)
	for rows.Next() {
		var name string
		var n int64
		if err := rows.Scan(&name, &n); err != nil {
			return nil, err
		}
		scenarios[name] = n
	}
	stats["trips_by_scenario"] = scenarios

	return stats, rows.Err()
}
