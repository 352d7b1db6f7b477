package scheduler

import (
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"github.com/nextlevelbuilder/dromio/internal/store"
)

// FireTimesBetween returns every fire time of expr inside [from, to], both
// endpoints inclusive, in UTC ascending order. Cron has second granularity at
// best, so the window is truncated to whole seconds first.
func FireTimesBetween(expr string, from, to time.Time) ([]time.Time, error) {
	if err := store.ValidateCron(expr); err != nil {
		return nil, err
	}
	from = from.UTC().Truncate(time.Second)
	to = to.UTC().Truncate(time.Second)
	if to.Before(from) {
		return nil, nil
	}

	var fires []time.Time
	// First probe includes the window start itself.
	next, err := gronx.NextTickAfter(expr, from, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", store.ErrInvalidInput, expr, err)
	}
	for !next.After(to) {
		fires = append(fires, next.UTC())
		next, err = gronx.NextTickAfter(expr, next, false)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", store.ErrInvalidInput, expr, err)
		}
	}
	return fires, nil
}
