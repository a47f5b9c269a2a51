// Package export renders stored outage schedules for offline use.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"

	"github.com/svitlobot/svitlo/core/interval"
	"github.com/svitlobot/svitlo/core/model"
)

// Entry is one outage window of an exported schedule.
type Entry struct {
	SourceID string `json:"source_id"`
	GroupID  string `json:"group_id"`
	Day      string `json:"day"`
	Start    string `json:"start"`
	End      string `json:"end"`
}

// Entries flattens a snapshot into outage rows, today first.
func Entries(snap *model.Snapshot) []Entry {
	var entries []Entry
	appendDay := func(day, text string) {
		if text == "" {
			return
		}
		set := interval.Build(text)
		for _, iv := range set.Off {
			entries = append(entries, Entry{
				SourceID: snap.SourceID,
				GroupID:  snap.GroupID,
				Day:      day,
				Start:    model.FormatMinute(iv.Start),
				End:      model.FormatMinute(iv.End),
			})
		}
	}
	appendDay("today", snap.Today)
	appendDay("tomorrow", snap.Tomorrow)
	return entries
}

// WriteJSON writes the outage rows to w in JSON format.
func WriteJSON(w io.Writer, entries []Entry) error {
	enc := json.NewEncoder(w)
	return enc.Encode(entries)
}

// WriteCSV writes the outage rows to w in CSV format with a header line.
func WriteCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"source_id", "group_id", "day", "start", "end"}); err != nil {
		return err
	}
	for _, e := range entries {
		if err := cw.Write([]string{e.SourceID, e.GroupID, e.Day, e.Start, e.End}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
