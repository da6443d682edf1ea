// Package plan enforces the structural contract of a generated content
// calendar: exactly N entries, each opened by a literal "День <n>:" marker,
// numbered contiguously 1..N. The generator is non-deterministic, so this
// numbering contract is the only structure the rest of the system can rely
// on; validation is strict and runs right after generation, never lazily.
package plan

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// DefaultDays is the standard calendar length.
const DefaultDays = 14

// Entry is one numbered item of a content calendar.
type Entry struct {
	Day         int    // 1..N
	Headline    string // rest of the marker line
	Description string // "Описание:" line, if present
	Objective   string // "Цель:" line, if present
	Body        string // full entry text between markers
}

// FormatError reports a calendar that violates the numbering contract.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string { return "plan: " + e.Reason }

// NotFoundError reports a missing entry during extraction.
type NotFoundError struct {
	Day int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("plan: entry for day %d not found", e.Day)
}

// markerRe matches an entry marker at the start of a line: "День 3:" or
// "День 3." with optional leading list decoration like "3." or "- ".
var markerRe = regexp.MustCompile(`(?m)^[\s\-*]*(?:\d+[.)]\s*)?День\s+(\d+)\s*[:.](.*)$`)

// Validate parses raw generated text and checks the contract: exactly days
// entries, numbered 1..days with no duplicates and no gaps. Entries are
// returned in ascending day order regardless of their order in the text.
func Validate(raw string, days int) ([]Entry, error) {
	entries := parseEntries(raw)
	if len(entries) == 0 {
		return nil, &FormatError{Reason: "no day markers found"}
	}
	if len(entries) != days {
		return nil, &FormatError{Reason: fmt.Sprintf("expected %d entries, found %d", days, len(entries))}
	}

	seen := make(map[int]bool, days)
	for _, e := range entries {
		if e.Day < 1 || e.Day > days {
			return nil, &FormatError{Reason: fmt.Sprintf("day %d outside 1..%d", e.Day, days)}
		}
		if seen[e.Day] {
			return nil, &FormatError{Reason: fmt.Sprintf("day %d appears more than once", e.Day)}
		}
		seen[e.Day] = true
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Day < entries[j].Day })
	return entries, nil
}

// Extract returns the entry for the given day. It re-parses raw leniently
// (the text may come from the store long after validation) and fails with
// NotFoundError for an absent day or an out-of-range request, never with
// anything else.
func Extract(raw string, day, days int) (Entry, error) {
	if day < 1 || day > days {
		return Entry{}, &NotFoundError{Day: day}
	}
	for _, e := range parseEntries(raw) {
		if e.Day == day {
			return e, nil
		}
	}
	return Entry{}, &NotFoundError{Day: day}
}

// parseEntries segments raw text on day markers. Each entry extends until
// the next marker or end of text. Malformed numbers are skipped.
func parseEntries(raw string) []Entry {
	locs := markerRe.FindAllStringSubmatchIndex(raw, -1)
	if len(locs) == 0 {
		return nil
	}

	entries := make([]Entry, 0, len(locs))
	for i, loc := range locs {
		day, err := strconv.Atoi(raw[loc[2]:loc[3]])
		if err != nil {
			continue
		}

		end := len(raw)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		body := strings.TrimSpace(raw[loc[0]:end])
		headline := strings.TrimSpace(raw[loc[4]:loc[5]])

		e := Entry{
			Day:      day,
			Headline: headline,
			Body:     body,
		}
		fillFields(&e, body)
		entries = append(entries, e)
	}
	return entries
}

// fillFields extracts the labeled description and objective lines.
func fillFields(e *Entry, body string) {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-*• \t"))
		switch {
		case hasLabel(line, "Описание"):
			e.Description = labelValue(line)
		case hasLabel(line, "Цель"):
			e.Objective = labelValue(line)
		}
	}
}

func hasLabel(line, label string) bool {
	return strings.HasPrefix(line, label+":") || strings.HasPrefix(line, label+" :")
}

func labelValue(line string) string {
	if idx := strings.Index(line, ":"); idx >= 0 {
		return strings.TrimSpace(line[idx+1:])
	}
	return ""
}
