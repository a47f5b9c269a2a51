package notify

import (
	"fmt"
	"strings"

	"github.com/svitlobot/svitlo/core/model"
)

// Rich presentation markup is a non-goal: messages are plain text and the
// delivery channel escapes structural characters when strict rendering is
// requested.

// ChangeMessage renders the notification body for one changed group: what
// changed between the previous and current day schedule, followed by the
// full current schedule for today and, when known, tomorrow.
func ChangeMessage(groupID string, d model.DiffResult, today model.IntervalSet, tomorrow *model.IntervalSet) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Schedule update for group %s\n", groupID)

	if !d.Empty() {
		b.WriteString("\nWhat changed:\n")
		writeSpans(&b, "Power restored in:", d.OffRemoved, false)
		writeSpans(&b, "New outages:", d.OffAdded, true)
		writeSpans(&b, "Power windows removed:", d.OnRemoved, false)
		writeSpans(&b, "Power windows added:", d.OnAdded, false)
	}

	b.WriteString("\nToday:\n")
	writeDay(&b, today)
	if tomorrow != nil {
		b.WriteString("\nTomorrow:\n")
		writeDay(&b, *tomorrow)
	}
	return b.String()
}

// ScheduleMessage renders the current schedule without a change section.
func ScheduleMessage(groupID string, today model.IntervalSet, tomorrow *model.IntervalSet) string {
	return ChangeMessage(groupID, model.DiffResult{}, today, tomorrow)
}

func writeDay(b *strings.Builder, set model.IntervalSet) {
	writeSpans(b, "Power on:", set.On, false)
	writeSpans(b, "Power off:", set.Off, true)
	total := 0
	for _, iv := range set.Off {
		total += iv.Minutes()
	}
	if total > 0 {
		fmt.Fprintf(b, "Total off: %s\n", formatHours(total))
	}
}

func writeSpans(b *strings.Builder, header string, spans []model.Interval, durations bool) {
	wrote := false
	for _, iv := range spans {
		if iv.Empty() {
			continue
		}
		if !wrote {
			b.WriteString(header + "\n")
			wrote = true
		}
		if durations {
			fmt.Fprintf(b, "  %s - %s (%s)\n",
				model.FormatMinute(iv.Start), model.FormatMinute(iv.End), formatHours(iv.Minutes()))
		} else {
			fmt.Fprintf(b, "  %s - %s\n",
				model.FormatMinute(iv.Start), model.FormatMinute(iv.End))
		}
	}
}

func formatHours(minutes int) string {
	return fmt.Sprintf("%.1f h", float64(minutes)/60)
}
