package recur

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"
)

// queryConcurrency caps the expansion fan-out per query. Expansion is pure
// CPU work, so a small pool is enough.
const queryConcurrency = 8

// QueryError tags an expansion failure with the event that caused it, so
// callers can exclude or report the offending event without losing the rest.
type QueryError struct {
	EventID string
	Err     error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("event %s: %v", e.EventID, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Query expands every event against the window and merges the results,
// ordered by occurrence start and then by event ID for ties. Expansion is
// fanned out across a worker pool since each event is independent; ordering
// only matters at the merge.
//
// A single bad rule fails the whole query with a *QueryError rather than
// silently dropping that event's occurrences.
func Query(ctx context.Context, events []Event, w Window, opts Options) ([]Occurrence, error) {
	return queryWith(ctx, events, w, opts, Expand)
}

func queryWith(ctx context.Context, events []Event, w Window, opts Options, expand func(Event, Rule, Window, Options) ([]Occurrence, error)) ([]Occurrence, error) {
	results := make([][]Occurrence, len(events))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(queryConcurrency)
	for i, ev := range events {
		i, ev := i, ev
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			occs, err := expand(ev, ev.Rule, w, opts)
			if err != nil {
				return &QueryError{EventID: ev.ID, Err: err}
			}
			results[i] = occs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []Occurrence
	for _, occs := range results {
		merged = append(merged, occs...)
	}
	sort.Slice(merged, func(i, j int) bool {
		if !merged[i].Start.Equal(merged[j].Start) {
			return merged[i].Start.Before(merged[j].Start)
		}
		return merged[i].EventID < merged[j].EventID
	})
	return merged, nil
}
