package sink

import (
	"context"
	"fmt"

	"reefer-telemetry-sim/internal/db"
	"reefer-telemetry-sim/internal/simulation"
)

// SQLiteSink stores the run, its trip summaries and its readings
type SQLiteSink struct {
	db *db.Database
}

// NewSQLite writes into an open database. The caller owns the database.
func NewSQLite(database *db.Database) *SQLiteSink {
	return &SQLiteSink{db: database}
}

func (s *SQLiteSink) Name() string { return "sqlite" }

func (s *SQLiteSink) Write(_ context.Context, report *simulation.BatchReport) error {
	if err := s.db.InsertRun(report.Run()); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	if err := s.db.InsertTripSummaries(report.RunID, report.Summaries); err != nil {
		return fmt.Errorf("failed to insert trips: %w", err)
	}
	if _, err := s.db.InsertReadingsBatch(report.RunID, report.Rows); err != nil {
		return fmt.Errorf("failed to insert readings: %w", err)
	}
	return nil
}

func (s *SQLiteSink) Close() error { return nil }
