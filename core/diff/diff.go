// Package diff computes the human-auditable difference between two
// interval sets of the same group.
package diff

import "github.com/svitlobot/svitlo/core/model"

// Compute returns the exact-tuple set difference between previous and
// current. A one-minute boundary shift counts as one interval removed and
// one added, never as "unchanged": that literal semantics is what the
// notification text reports. Zero-length intervals are excluded. A missing
// previous snapshot is an empty set, so everything current shows as added.
func Compute(previous, current model.IntervalSet) model.DiffResult {
	return model.DiffResult{
		OnAdded:    missing(current.On, previous.On),
		OnRemoved:  missing(previous.On, current.On),
		OffAdded:   missing(current.Off, previous.Off),
		OffRemoved: missing(previous.Off, current.Off),
	}
}

// missing returns the non-empty intervals of a that have no exact tuple
// match in b, preserving a's order.
func missing(a, b []model.Interval) []model.Interval {
	var out []model.Interval
	for _, iv := range a {
		if iv.Empty() || contains(b, iv) {
			continue
		}
		out = append(out, iv)
	}
	return out
}

func contains(ivs []model.Interval, want model.Interval) bool {
	for _, iv := range ivs {
		if iv == want {
			return true
		}
	}
	return false
}
