// Package source adapts heterogeneous upstream schedule documents into
// ordered per-group schedule entries.
package source

import (
	"errors"
	"strings"

	"github.com/svitlobot/svitlo/core/model"
)

// ErrUnparseable signals that the payload does not contain the structure
// the adapter expects. Adapters fail closed with this error instead of
// producing empty results from malformed input.
var ErrUnparseable = errors.New("source: unparseable payload")

// Adapter turns opaque upstream bytes into per-group schedule entries,
// ordered as they appear in the document.
type Adapter interface {
	// Parse decodes raw and returns the entries keyed by group ID, or
	// ErrUnparseable when the expected structure is absent.
	Parse(raw []byte) (map[string][]model.RawScheduleEntry, error)
}

// Kind selects an adapter implementation in configuration.
type Kind string

const (
	// KindPattern is the pattern-text adapter for HTML-origin menu
	// documents with free-text group blocks.
	KindPattern Kind = "pattern"
	// KindGrid is the hourly-grid adapter for 24-slot status documents.
	KindGrid Kind = "grid"
)

// SplitDays classifies a group's entries into today and tomorrow texts.
// Labels naming the day win; unlabeled entries fall back to position
// order, first filling today and then tomorrow.
func SplitDays(entries []model.RawScheduleEntry) (today, tomorrow string) {
	for _, e := range entries {
		label := strings.ToLower(e.DateLabel)
		switch {
		case strings.Contains(label, "сьогодні") || strings.Contains(label, "today"):
			today = e.ScheduleText
		case strings.Contains(label, "завтра") || strings.Contains(label, "tomorrow"):
			tomorrow = e.ScheduleText
		case today == "":
			today = e.ScheduleText
		case tomorrow == "":
			tomorrow = e.ScheduleText
		}
	}
	return today, tomorrow
}
