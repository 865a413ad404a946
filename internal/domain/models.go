package domain

import (
	"time"
)

type Player struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// minimal metadata joined onto selections for reporting
type Event struct {
	ID       string
	Title    string
	Opponent string
	Date     time.Time
}

type PositionEntry struct {
	PlayerID     string
	Position     string
	Minutes      *int // nil when the entry has no explicit minutes
	IsSubstitute bool
	Index        int // index in the stored list at load time
}

type SubstituteEntry struct {
	PlayerID string
	Index    int
}

type SelectionRecord struct {
	ID              string
	EventID         string
	TeamID          string
	Period          int
	DurationMinutes int
	Positions       []PositionEntry
	Substitutes     []SubstituteEntry
	Malformed       []MalformedEntry
	Event           Event
}

// ExpectedMinutes falls back to the period duration when the entry carries none.
func (s *SelectionRecord) ExpectedMinutes(entry PositionEntry) int {
	if entry.Minutes != nil {
		return *entry.Minutes
	}
	return s.DurationMinutes
}

// raw row as stored; list columns are schemaless JSON arrays
type SelectionRow struct {
	ID              string
	EventID         string
	TeamID          string
	Period          int
	DurationMinutes int
	PositionsJSON   string
	SubstitutesJSON string
	Event           Event
	UpdatedAt       time.Time
}

type DerivedEventStat struct {
	EventID       string
	PlayerID      string
	Position      string
	MinutesPlayed int
	IsSubstitute  bool
	UpdatedAt     time.Time
}

type AggregateRecord struct {
	PlayerID          string
	MinutesByPosition map[string]int
	UpdatedAt         time.Time
}

type StatKey struct {
	EventID  string
	PlayerID string
}
