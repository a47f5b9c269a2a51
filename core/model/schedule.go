package model

import (
	"fmt"
	"time"
)

// MinutesPerDay is the size of the minute domain for one day.
const MinutesPerDay = 1440

// RawScheduleEntry is one schedule record produced by a source adapter.
// It is ephemeral and rebuilt on every poll.
type RawScheduleEntry struct {
	GroupID      string `json:"group_id"`
	DateLabel    string `json:"date_label"`
	ScheduleText string `json:"schedule_text"`
}

// Interval is a half-open minute range [Start,End) within a day.
// Start and End are minutes of day in [0,1440].
type Interval struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Minutes returns the interval length in minutes.
func (iv Interval) Minutes() int { return iv.End - iv.Start }

// Empty reports whether the interval is zero length.
func (iv Interval) Empty() bool { return iv.Start == iv.End }

func (iv Interval) String() string {
	return fmt.Sprintf("%s-%s", FormatMinute(iv.Start), FormatMinute(iv.End))
}

// FormatMinute renders a minute of day as HH:MM; minute 1440 renders as
// 24:00, matching the upstream end-of-day convention.
func FormatMinute(m int) string {
	if m >= MinutesPerDay {
		return "24:00"
	}
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// IntervalSet is the canonical form of one day's schedule: disjoint,
// ascending "off" (power unavailable) spans plus their complement "on"
// spans, together covering [0,1440) exactly.
type IntervalSet struct {
	On  []Interval `json:"on"`
	Off []Interval `json:"off"`
}

// Snapshot is the persisted state for one (source, group) pair. Today and
// Tomorrow hold the most recently parsed schedule texts; PreviousToday and
// PreviousTomorrow hold the texts they replaced.
type Snapshot struct {
	SourceID         string    `json:"source_id"`
	GroupID          string    `json:"group_id"`
	Today            string    `json:"today"`
	Tomorrow         string    `json:"tomorrow"`
	PreviousToday    string    `json:"previous_today"`
	PreviousTomorrow string    `json:"previous_tomorrow"`
	ContentHash      string    `json:"content_hash"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// DiffResult lists the exact-tuple interval differences between a previous
// and a current IntervalSet.
type DiffResult struct {
	OnAdded    []Interval
	OnRemoved  []Interval
	OffAdded   []Interval
	OffRemoved []Interval
}

// Empty reports whether the diff carries no changes.
func (d DiffResult) Empty() bool {
	return len(d.OnAdded) == 0 && len(d.OnRemoved) == 0 &&
		len(d.OffAdded) == 0 && len(d.OffRemoved) == 0
}
