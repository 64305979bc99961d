// Package sink hands the labeled table of a batch run to external stores.
package sink

import (
	"context"
	"math"
	"strconv"

	"reefer-telemetry-sim/internal/simulation"
)

// Sink persists or publishes a batch report
type Sink interface {
	Name() string
	Write(ctx context.Context, report *simulation.BatchReport) error
	Close() error
}

// formatFloat renders a reading with the shortest exact representation, or "" when missing
func formatFloat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
