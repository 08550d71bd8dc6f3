package progress

import (
	"fmt"
	"time"
)

// Snapshot is a point-in-time view of a run's throughput. Total is the
// unprocessed count captured when the run started; it is never refreshed, so
// rows inserted mid-run show up in the next run's total instead.
type Snapshot struct {
	Total     int64
	Processed int64
	Failed    int64
	Remaining int64
	Elapsed   time.Duration
	// PerMinute is the processing rate in records per minute.
	PerMinute float64
	// ETAMinutes estimates minutes until the remaining records drain at the
	// current rate. Zero when the rate is zero.
	ETAMinutes float64
}

// Compute derives rate and ETA from raw counters. Failed records stay
// unprocessed, so they remain part of the backlog.
func Compute(total, processed, failed int64, elapsed time.Duration) Snapshot {
	s := Snapshot{
		Total:     total,
		Processed: processed,
		Failed:    failed,
		Elapsed:   elapsed,
	}
	s.Remaining = total - processed
	if s.Remaining < 0 {
		s.Remaining = 0
	}
	if elapsed > 0 {
		s.PerMinute = float64(processed) / elapsed.Minutes()
	}
	if s.PerMinute > 0 {
		s.ETAMinutes = float64(s.Remaining) / s.PerMinute
	}
	return s
}

// String renders the one-line form printed after every batch.
func (s Snapshot) String() string {
	return fmt.Sprintf("processed %d/%d (%.1f/min, eta %.1f min, failed %d)",
		s.Processed, s.Total, s.PerMinute, s.ETAMinutes, s.Failed)
}
