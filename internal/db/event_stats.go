package db

import (
	"context"
	"time"
)

const listEventStats = `SELECT event_id, player_id, position, minutes_played, is_substitute, updated_at
FROM event_stats ORDER BY event_id, player_id`

func (q *Queries) ListEventStats(ctx context.Context) ([]EventStat, error) {
	rows, err := q.db.QueryContext(ctx, listEventStats)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []EventStat
	for rows.Next() {
		var i EventStat
		if err := rows.Scan(
			&i.EventID,
			&i.PlayerID,
			&i.Position,
			&i.MinutesPlayed,
			&i.IsSubstitute,
			&i.UpdatedAt,
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

const countEventStats = `SELECT COUNT(*) FROM event_stats`

func (q *Queries) CountEventStats(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countEventStats)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const deleteAllEventStats = `DELETE FROM event_stats`

func (q *Queries) DeleteAllEventStats(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, deleteAllEventStats)
	return err
}

const upsertEventStat = `INSERT INTO event_stats (event_id, player_id, position, minutes_played, is_substitute, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(event_id, player_id) DO UPDATE SET
    position = excluded.position,
    minutes_played = excluded.minutes_played,
    is_substitute = excluded.is_substitute,
    updated_at = excluded.updated_at`

type UpsertEventStatParams struct {
	EventID       string
	PlayerID      string
	Position      string
	MinutesPlayed int64
	IsSubstitute  bool
	UpdatedAt     time.Time
}

func (q *Queries) UpsertEventStat(ctx context.Context, arg UpsertEventStatParams) error {
	_, err := q.db.ExecContext(ctx, upsertEventStat,
		arg.EventID,
		arg.PlayerID,
		arg.Position,
		arg.MinutesPlayed,
		arg.IsSubstitute,
		arg.UpdatedAt,
	)
	return err
}
