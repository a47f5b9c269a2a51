// Package interval converts raw schedule texts into canonical per-day
// interval sets with minute granularity.
package interval

import (
	"regexp"
	"sort"
	"strconv"

	"github.com/svitlobot/svitlo/core/model"
)

// rangePattern matches one "unavailable" clock range inside a schedule
// text. Upstream texts spell the connector differently ("з 03:00 до
// 06:30", "from 03:00 to 06:30", "03:00 — 06:30"), so only the two clock
// values are anchored.
var rangePattern = regexp.MustCompile(`(\d{1,2}):(\d{2})\s*(?:до|to|—|–|-)\s*(\d{1,2}):(\d{2})`)

// Build parses scheduleText into an IntervalSet. Off spans are the merged
// clock ranges found in the text; on spans are their complement within
// [0,1440). An empty or range-free text yields a full-day on span.
func Build(scheduleText string) model.IntervalSet {
	off := mergeIntervals(extractOff(scheduleText))
	return model.IntervalSet{On: complement(off), Off: off}
}

func extractOff(text string) []model.Interval {
	var out []model.Interval
	for _, m := range rangePattern.FindAllStringSubmatch(text, -1) {
		start := toMinutes(m[1], m[2])
		end := toMinutes(m[3], m[4])
		out = append(out, model.Interval{Start: start, End: end})
	}
	return out
}

// toMinutes converts a clock reading to a minute of day. An end time of
// 24:00 maps to minute 1440, not 0.
func toMinutes(hh, mm string) int {
	h, _ := strconv.Atoi(hh)
	m, _ := strconv.Atoi(mm)
	return h*60 + m
}

// mergeIntervals sorts the spans and coalesces overlapping or adjacent
// ones. Unmerged overlaps would break complement construction.
func mergeIntervals(ivs []model.Interval) []model.Interval {
	if len(ivs) == 0 {
		return nil
	}
	sort.Slice(ivs, func(i, j int) bool {
		if ivs[i].Start != ivs[j].Start {
			return ivs[i].Start < ivs[j].Start
		}
		return ivs[i].End < ivs[j].End
	})
	merged := []model.Interval{ivs[0]}
	for _, iv := range ivs[1:] {
		last := &merged[len(merged)-1]
		if iv.Start <= last.End {
			if iv.End > last.End {
				last.End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

// complement walks the merged off spans accumulating the gaps before each
// span plus one trailing gap up to minute 1440.
func complement(off []model.Interval) []model.Interval {
	var on []model.Interval
	cursor := 0
	for _, iv := range off {
		if cursor < iv.Start {
			on = append(on, model.Interval{Start: cursor, End: iv.Start})
		}
		if iv.End > cursor {
			cursor = iv.End
		}
	}
	if cursor < model.MinutesPerDay {
		on = append(on, model.Interval{Start: cursor, End: model.MinutesPerDay})
	}
	return on
}
