package source

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/svitlobot/svitlo/core/model"
)

// groupBoundary marks the start of one group's block inside the extracted
// plain text. A block runs until the next boundary or the end of text.
var groupBoundary = regexp.MustCompile(`Група (\d+\.\d+)\.`)

// menuDocument is the validated shape of the upstream menu API response.
// Anything that does not decode into it is rejected as unparseable.
type menuDocument struct {
	Members []struct {
		MenuItems []struct {
			Name    string `json:"name"`
			RawHTML string `json:"rawHtml"`
		} `json:"menuItems"`
	} `json:"hydra:member"`
}

// PatternAdapter extracts group schedules from HTML-origin menu documents.
// Each menu item carries one day's page; its name is the date label and
// its HTML body holds the group-delimited schedule text.
type PatternAdapter struct{}

// NewPatternAdapter returns a pattern-text adapter.
func NewPatternAdapter() *PatternAdapter { return &PatternAdapter{} }

// Parse implements Adapter.
func (a *PatternAdapter) Parse(raw []byte) (map[string][]model.RawScheduleEntry, error) {
	var doc menuDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	if len(doc.Members) == 0 {
		return nil, fmt.Errorf("%w: no members", ErrUnparseable)
	}

	groups := make(map[string][]model.RawScheduleEntry)
	for _, member := range doc.Members {
		for _, item := range member.MenuItems {
			text := StripTags(item.RawHTML)
			for groupID, block := range groupBlocks(text) {
				groups[groupID] = append(groups[groupID], model.RawScheduleEntry{
					GroupID:      groupID,
					DateLabel:    item.Name,
					ScheduleText: block,
				})
			}
		}
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("%w: no group blocks", ErrUnparseable)
	}
	return groups, nil
}

// groupBlocks slices the text at every group boundary and returns the
// trimmed block following each marker.
func groupBlocks(text string) map[string]string {
	marks := groupBoundary.FindAllStringSubmatchIndex(text, -1)
	blocks := make(map[string]string, len(marks))
	for i, m := range marks {
		groupID := text[m[2]:m[3]]
		end := len(text)
		if i+1 < len(marks) {
			end = marks[i+1][0]
		}
		blocks[groupID] = strings.TrimSpace(text[m[1]:end])
	}
	return blocks
}

// StripTags is the deterministic HTML-to-text step upstream of pattern
// matching: tags are dropped and a handful of entities decoded. It makes
// no attempt to be a full HTML parser; boundary markers and clock ranges
// are plain text in the source documents.
func StripTags(html string) string {
	var b strings.Builder
	b.Grow(len(html))
	inTag := false
	for _, r := range html {
		switch {
		case r == '<':
			inTag = true
			// Keep blocks separated where tags were.
			b.WriteByte(' ')
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	text := b.String()
	for entity, repl := range map[string]string{
		"&nbsp;": " ",
		"&amp;":  "&",
		"&lt;":   "<",
		"&gt;":   ">",
		"&#39;":  "'",
		"&quot;": `"`,
	} {
		text = strings.ReplaceAll(text, entity, repl)
	}
	return text
}
