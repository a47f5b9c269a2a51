package source

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/svitlobot/svitlo/core/model"
)

// statusPresent is the single grid status meaning power is available.
// Every other value (definite outage, half-slot outage, possible outage)
// starts or extends an outage run.
const statusPresent = "yes"

// noOutagesText stands in for an all-clear day. A day with power in every
// slot must still yield a non-empty schedule text so it persists and
// notifies like any other schedule; the interval builder reads any text
// without clock ranges as a full-day on span.
const noOutagesText = "no outages"

// gridDocument is the validated shape of the hourly-grid API response:
// one or more day sections, each mapping group IDs to a 24-slot status
// array keyed "1".."24".
type gridDocument struct {
	Days []gridDay `json:"days"`
}

type gridDay struct {
	Label  string                       `json:"label"`
	Groups map[string]map[string]string `json:"groups"`
}

// GridAdapter converts 24-slot status grids into the same human-readable
// range text the pattern adapter yields, so one interval builder serves
// both encodings. Slot-to-minute translation goes through the supplied
// slot table.
type GridAdapter struct {
	table SlotTable
}

// NewGridAdapter returns an hourly-grid adapter using the given slot table.
func NewGridAdapter(table SlotTable) *GridAdapter {
	return &GridAdapter{table: table}
}

// Parse implements Adapter.
func (a *GridAdapter) Parse(raw []byte) (map[string][]model.RawScheduleEntry, error) {
	var doc gridDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	if len(doc.Days) == 0 {
		return nil, fmt.Errorf("%w: no day sections", ErrUnparseable)
	}

	groups := make(map[string][]model.RawScheduleEntry)
	for _, day := range doc.Days {
		for groupID, slots := range day.Groups {
			groups[groupID] = append(groups[groupID], model.RawScheduleEntry{
				GroupID:      groupID,
				DateLabel:    day.Label,
				ScheduleText: a.describe(slots),
			})
		}
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("%w: no groups", ErrUnparseable)
	}
	return groups, nil
}

// describe walks the slots in order, closing an outage run when a present
// slot is seen or implicitly after slot 24, and renders the runs as
// "from HH:MM to HH:MM" ranges. A missing slot key counts as present.
func (a *GridAdapter) describe(slots map[string]string) string {
	var ranges []string
	runStart := 0 // first slot of the open run, 0 = no open run
	flush := func(lastSlot int) {
		if runStart == 0 {
			return
		}
		ranges = append(ranges, fmt.Sprintf("from %s to %s",
			model.FormatMinute(a.table.StartMinute(runStart)),
			model.FormatMinute(a.table.EndMinute(lastSlot))))
		runStart = 0
	}
	for slot := 1; slot <= slotCount; slot++ {
		status, ok := slots[strconv.Itoa(slot)]
		if !ok || status == statusPresent {
			flush(slot - 1)
			continue
		}
		if runStart == 0 {
			runStart = slot
		}
	}
	flush(slotCount)
	if len(ranges) == 0 {
		return noOutagesText
	}
	return strings.Join(ranges, ", ")
}
