// Package metrics defines the observability contracts for the polling
// pipeline.
package metrics

import "time"

// CycleEvent summarizes one completed poll cycle.
type CycleEvent struct {
	Time          time.Time
	Duration      time.Duration
	Sources       int
	FetchErrors   int
	ParseErrors   int
	GroupsSeen    int
	GroupsChanged int
}

// DeliveryEvent records one notification delivery attempt.
type DeliveryEvent struct {
	Time        time.Time
	SourceID    string
	GroupID     string
	RecipientID string
	Success     bool
}

// Sink records pipeline events for observability purposes.
type Sink interface {
	RecordCycle(ev CycleEvent) error
	RecordDelivery(ev DeliveryEvent) error
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) RecordCycle(CycleEvent) error       { return nil }
func (NopSink) RecordDelivery(DeliveryEvent) error { return nil }
