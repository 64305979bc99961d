package simulation

import (
	"io"
	"log/slog"
	"math/rand/v2"

	"reefer-telemetry-sim/internal/models"
	"reefer-telemetry-sim/internal/profile"
)

// Simulator dispatches trips to the profile of their commodity
type Simulator struct {
	registry *profile.Registry
	log      *slog.Logger
}

// NewSimulator creates a simulator over a profile registry. A nil logger discards output.
func NewSimulator(registry *profile.Registry, log *slog.Logger) *Simulator {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Simulator{registry: registry, log: log}
}

// Registry returns the profile registry used for dispatch
func (s *Simulator) Registry() *profile.Registry {
	return s.registry
}

// Simulate runs one trip under the profile of its commodity, falling back to the default
// profile with a warning for unknown commodities.
func (s *Simulator) Simulate(r *rand.Rand, commodity string, records []models.TripRecord, tripID string) (*TripResult, error) {
	p, found := s.registry.Get(commodity)
	if !found {
		s.log.Warn("unknown commodity, using default profile", "commodity", commodity, "default", p.Name, "trip_id", tripID)
	}

	res, err := RunTrip(r, records, tripID, p)
	if err != nil {
		return nil, err
	}
	s.log.Info("trip simulated",
		"trip_id", tripID,
		"commodity", p.Name,
		"scenario", res.Summary.Scenario,
		"steps", res.Summary.NumSteps,
		"triggered", res.Summary.Triggered,
	)
	return res, nil
}
