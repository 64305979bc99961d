package simulation

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"reefer-telemetry-sim/internal/models"
)

// SeedMode selects how random sources are assigned to trips
type SeedMode string

const (
	// SeedSequential consumes one source across all trips in sorted trip id order
	SeedSequential SeedMode = "sequential"
	// SeedPerTrip gives each trip its own source seeded from the trip id
	SeedPerTrip SeedMode = "per-trip"
)

// ParseSeedMode validates a seed mode name
func ParseSeedMode(s string) (SeedMode, error) {
	switch SeedMode(s) {
	case SeedSequential, SeedPerTrip:
		return SeedMode(s), nil
	case "":
		return SeedSequential, nil
	}
	return "", fmt.Errorf("invalid seed mode %q (want %s or %s)", s, SeedSequential, SeedPerTrip)
}

// BatchOptions configures a batch run
type BatchOptions struct {
	Seed    uint64
	Mode    SeedMode
	Workers int
}

// BatchReport is the outcome of a batch run. Rows and Summaries follow sorted trip id order.
type BatchReport struct {
	RunID     string
	Seed      uint64
	Mode      SeedMode
	StartedAt time.Time
	Rows      []models.ResultRow
	Summaries []models.TripSummary
	Total     int
	Succeeded int
	Skipped   int
	Failed    int
	Dropped   int // input rows without a trip id or commodity
	Failures  map[string]error
}

// Run returns the persisted form of the report totals
func (b *BatchReport) Run() models.RunSummary {
	return models.RunSummary{
		ID:        b.RunID,
		Seed:      b.Seed,
		SeedMode:  string(b.Mode),
		StartedAt: b.StartedAt,
		Total:     b.Total,
		Succeeded: b.Succeeded,
		Skipped:   b.Skipped,
		Failed:    b.Failed,
	}
}

type tripInput struct {
	id        string
	commodity string
	records   []models.TripRecord
}

type tripOutcome struct {
	result *TripResult
	err    error
}

// RunBatch simulates every trip in records. A failing trip is recorded in the report and never
// aborts the batch; only invalid options or a cancelled context return an error.
func (s *Simulator) RunBatch(ctx context.Context, records []models.TripRecord, opts BatchOptions) (*BatchReport, error) {
	mode, err := ParseSeedMode(string(opts.Mode))
	if err != nil {
		return nil, err
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if mode == SeedSequential && opts.Workers > 1 {
		return nil, errors.New("sequential seed mode cannot run with more than one worker")
	}

	trips, dropped := groupTrips(records)
	if dropped > 0 {
		s.log.Warn("dropped rows without trip id or commodity", "rows", dropped)
	}

	report := &BatchReport{
		RunID:     uuid.New().String(),
		Seed:      opts.Seed,
		Mode:      mode,
		StartedAt: time.Now().UTC(),
		Total:     len(trips),
		Dropped:   dropped,
		Failures:  make(map[string]error),
	}

	outcomes := make([]tripOutcome, len(trips))
	if mode == SeedSequential {
		r := NewRand(opts.Seed)
		for i, t := range trips {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			outcomes[i] = s.safeSimulate(r, t)
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(opts.Workers)
		for i, t := range trips {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				outcomes[i] = s.safeSimulate(NewRand(TripSeed(opts.Seed, t.id)), t)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	for i, o := range outcomes {
		id := trips[i].id
		switch {
		case errors.Is(o.err, ErrNoData):
			report.Skipped++
			s.log.Warn("trip skipped", "trip_id", id, "error", o.err)
		case o.err != nil:
			report.Failed++
			report.Failures[id] = o.err
			s.log.Error("trip failed", "trip_id", id, "error", o.err)
		default:
			report.Succeeded++
			sum := o.result.Summary
			sum.RunID = report.RunID
			report.Summaries = append(report.Summaries, sum)
			report.Rows = append(report.Rows, o.result.Rows...)
		}
	}

	s.log.Info("batch complete",
		"run_id", report.RunID,
		"trips", report.Total,
		"succeeded", report.Succeeded,
		"skipped", report.Skipped,
		"failed", report.Failed,
	)
	return report, nil
}

// safeSimulate converts a panic inside one trip into that trip's error
func (s *Simulator) safeSimulate(r *rand.Rand, t tripInput) (out tripOutcome) {
	defer func() {
		if rec := recover(); rec != nil {
			out = tripOutcome{err: fmt.Errorf("trip %s panicked: %v", t.id, rec)}
		}
	}()
	res, err := s.Simulate(r, t.commodity, t.records, t.id)
	return tripOutcome{result: res, err: err}
}

// groupTrips splits records by trip id in sorted id order. The commodity of a trip is taken
// from its first row.
func groupTrips(records []models.TripRecord) ([]tripInput, int) {
	byID := make(map[string]*tripInput)
	dropped := 0
	for _, rec := range records {
		if rec.TripID == "" || rec.Commodity == "" {
			dropped++
			continue
		}
		t, ok := byID[rec.TripID]
		if !ok {
			t = &tripInput{id: rec.TripID, commodity: rec.Commodity}
			byID[rec.TripID] = t
		}
		t.records = append(t.records, rec)
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]tripInput, len(ids))
	for i, id := range ids {
		out[i] = *byID[id]
	}
	return out, dropped
}
