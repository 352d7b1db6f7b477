package scheduler

import (
	"time"

	"github.com/nextlevelbuilder/dromio/internal/store"
)

// ApplyMisfirePolicy decides which of a job's missed fire times still get a
// run. missed must be ascending; the result is what to materialize:
//
//	skip                    nothing
//	run_if_late_within(N)   missed times no older than N
//	run_immediately         one run scheduled for now
//	coalesce                only the most recent missed time
//	run_all                 every missed time
func ApplyMisfirePolicy(p store.MisfirePolicy, missed []time.Time, now time.Time) []time.Time {
	if len(missed) == 0 {
		return nil
	}
	switch p.Kind {
	case store.MisfireRunAll:
		return missed
	case store.MisfireCoalesce:
		return missed[len(missed)-1:]
	case store.MisfireRunImmediately:
		return []time.Time{now.UTC().Truncate(time.Second)}
	case store.MisfireRunIfLateWithin:
		cutoff := now.Add(-p.LateWindow)
		var keep []time.Time
		for _, t := range missed {
			if !t.Before(cutoff) {
				keep = append(keep, t)
			}
		}
		return keep
	default: // skip
		return nil
	}
}
