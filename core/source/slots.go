package source

import (
	"fmt"
	"os"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/svitlobot/svitlo/core/model"
)

// slotCount is the number of hourly-grid slots in one day, keyed 1..24.
const slotCount = 24

// SlotTable translates grid slot indexes to minute-of-day boundaries.
// Boundary i is where slot i begins; boundary 24 closes the day. The table
// may express irregular slot boundaries, so conversions never assume a
// fixed 60 minutes per slot.
type SlotTable struct {
	bounds [slotCount + 1]int
}

// DefaultSlotTable maps slot n to [(n-1)*60, n*60).
func DefaultSlotTable() SlotTable {
	var t SlotTable
	for i := range t.bounds {
		t.bounds[i] = i * 60
	}
	return t
}

// StartMinute returns the minute at which slot (1-based) begins.
func (t SlotTable) StartMinute(slot int) int { return t.bounds[slot-1] }

// EndMinute returns the minute at which slot (1-based) ends. Slot 24 ends
// at minute 1440.
func (t SlotTable) EndMinute(slot int) int { return t.bounds[slot] }

var clockPattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

type slotTableFile struct {
	Boundaries []string `yaml:"boundaries"`
}

// LoadSlotTable reads a 25-entry boundary list ("00:00" .. "24:00") from a
// YAML file. The list must be strictly ascending, start at 00:00 and end
// at 24:00.
func LoadSlotTable(path string) (SlotTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return SlotTable{}, err
	}
	var f slotTableFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return SlotTable{}, fmt.Errorf("slot table %s: %w", path, err)
	}
	return parseSlotTable(f.Boundaries)
}

func parseSlotTable(boundaries []string) (SlotTable, error) {
	var t SlotTable
	if len(boundaries) != slotCount+1 {
		return t, fmt.Errorf("slot table needs %d boundaries, got %d", slotCount+1, len(boundaries))
	}
	for i, s := range boundaries {
		m := clockPattern.FindStringSubmatch(s)
		if m == nil {
			return t, fmt.Errorf("slot boundary %q: want HH:MM", s)
		}
		h, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		t.bounds[i] = h*60 + mm
		if i > 0 && t.bounds[i] <= t.bounds[i-1] {
			return t, fmt.Errorf("slot boundary %q not ascending", s)
		}
	}
	if t.bounds[0] != 0 || t.bounds[slotCount] != model.MinutesPerDay {
		return t, fmt.Errorf("slot table must span 00:00 to 24:00")
	}
	return t, nil
}
