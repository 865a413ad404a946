package db

import (
	"context"
	"time"
)

const listSelectionsWithEvents = `SELECT s.id, s.event_id, s.team_id, s.period, s.duration_minutes,
       s.positions, s.substitutes, s.updated_at,
       e.title, e.opponent, e.date
FROM selections s
LEFT JOIN events e ON e.id = s.event_id
ORDER BY s.event_id, s.team_id, s.period, s.id`

func (q *Queries) ListSelectionsWithEvents(ctx context.Context) ([]SelectionWithEventRow, error) {
	rows, err := q.db.QueryContext(ctx, listSelectionsWithEvents)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []SelectionWithEventRow
	for rows.Next() {
		var i SelectionWithEventRow
		if err := rows.Scan(
			&i.ID,
			&i.EventID,
			&i.TeamID,
			&i.Period,
			&i.DurationMinutes,
			&i.Positions,
			&i.Substitutes,
			&i.UpdatedAt,
			&i.EventTitle,
			&i.EventOpponent,
			&i.EventDate,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getSelection = `SELECT id, event_id, team_id, period, duration_minutes, positions, substitutes, updated_at
FROM selections WHERE id = ?`

func (q *Queries) GetSelection(ctx context.Context, id string) (Selection, error) {
	row := q.db.QueryRowContext(ctx, getSelection, id)
	var i Selection
	err := row.Scan(
		&i.ID,
		&i.EventID,
		&i.TeamID,
		&i.Period,
		&i.DurationMinutes,
		&i.Positions,
		&i.Substitutes,
		&i.UpdatedAt,
	)
	return i, err
}

const updateSelectionLists = `UPDATE selections SET positions = ?, substitutes = ?, updated_at = ? WHERE id = ?`

type UpdateSelectionListsParams struct {
	Positions   string
	Substitutes string
	UpdatedAt   time.Time
	ID          string
}

func (q *Queries) UpdateSelectionLists(ctx context.Context, arg UpdateSelectionListsParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateSelectionLists, arg.Positions, arg.Substitutes, arg.UpdatedAt, arg.ID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const upsertSelection = `INSERT INTO selections (id, event_id, team_id, period, duration_minutes, positions, substitutes, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    event_id = excluded.event_id,
    team_id = excluded.team_id,
    period = excluded.period,
    duration_minutes = excluded.duration_minutes,
    positions = excluded.positions,
    substitutes = excluded.substitutes,
    updated_at = excluded.updated_at`

type UpsertSelectionParams struct {
	ID              string
	EventID         string
	TeamID          string
	Period          int64
	DurationMinutes int64
	Positions       string
	Substitutes     string
	UpdatedAt       time.Time
}

func (q *Queries) UpsertSelection(ctx context.Context, arg UpsertSelectionParams) error {
	_, err := q.db.ExecContext(ctx, upsertSelection,
		arg.ID,
		arg.EventID,
		arg.TeamID,
		arg.Period,
		arg.DurationMinutes,
		arg.Positions,
		arg.Substitutes,
		arg.UpdatedAt,
	)
	return err
}
