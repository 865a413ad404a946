package db

import (
	"database/sql"
	"time"
)

type Player struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Event struct {
	ID       string
	Title    string
	Opponent string
	Date     time.Time
}

type Selection struct {
	ID              string
	EventID         string
	TeamID          string
	Period          int64
	DurationMinutes int64
	Positions       string
	Substitutes     string
	UpdatedAt       time.Time
}

type SelectionWithEventRow struct {
	ID              string
	EventID         string
	TeamID          string
	Period          int64
	DurationMinutes int64
	Positions       string
	Substitutes     string
	UpdatedAt       time.Time
	EventTitle      sql.NullString
	EventOpponent   sql.NullString
	EventDate       sql.NullTime
}

type EventStat struct {
	EventID       string
	PlayerID      string
	Position      string
	MinutesPlayed int64
	IsSubstitute  bool
	UpdatedAt     time.Time
}

type PlayerAggregate struct {
	PlayerID          string
	MinutesByPosition string
	UpdatedAt         time.Time
}

type PositionMinutesRow struct {
	PlayerID     string
	Position     string
	TotalMinutes int64
}
