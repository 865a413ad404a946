package db

import (
	"context"
	"time"
)

const listAggregates = `SELECT player_id, minutes_by_position, updated_at FROM player_aggregates ORDER BY player_id`

func (q *Queries) ListAggregates(ctx context.Context) ([]PlayerAggregate, error) {
	rows, err := q.db.QueryContext(ctx, listAggregates)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PlayerAggregate
	for rows.Next() {
		var i PlayerAggregate
		if err := rows.Scan(&i.PlayerID, &i.MinutesByPosition, &i.UpdatedAt); err != nil {
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

const upsertAggregate = `INSERT INTO player_aggregates (player_id, minutes_by_position, updated_at)
VALUES (?, ?, ?)
ON CONFLICT(player_id) DO UPDATE SET
    minutes_by_position = excluded.minutes_by_position,
    updated_at = excluded.updated_at`

type UpsertAggregateParams struct {
	PlayerID          string
	MinutesByPosition string
	UpdatedAt         time.Time
}

func (q *Queries) UpsertAggregate(ctx context.Context, arg UpsertAggregateParams) error {
	_, err := q.db.ExecContext(ctx, upsertAggregate, arg.PlayerID, arg.MinutesByPosition, arg.UpdatedAt)
	return err
}

const deleteAllAggregates = `DELETE FROM player_aggregates`

func (q *Queries) DeleteAllAggregates(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, deleteAllAggregates)
	return err
}

const deleteAggregate = `DELETE FROM player_aggregates WHERE player_id = ?`

func (q *Queries) DeleteAggregate(ctx context.Context, playerID string) error {
	_, err := q.db.ExecContext(ctx, deleteAggregate, playerID)
	return err
}

const sumMinutesByPosition = `SELECT player_id, position, SUM(minutes_played) AS total_minutes
FROM event_stats
WHERE minutes_played > 0
GROUP BY player_id, position
ORDER BY player_id, position`

func (q *Queries) SumMinutesByPosition(ctx context.Context) ([]PositionMinutesRow, error) {
	return q.scanPositionMinutes(ctx, sumMinutesByPosition)
}

const sumMinutesByPositionForPlayer = `SELECT player_id, position, SUM(minutes_played) AS total_minutes
FROM event_stats
WHERE minutes_played > 0 AND player_id = ?
GROUP BY player_id, position
ORDER BY position`

func (q *Queries) SumMinutesByPositionForPlayer(ctx context.Context, playerID string) ([]PositionMinutesRow, error) {
	return q.scanPositionMinutes(ctx, sumMinutesByPositionForPlayer, playerID)
}

func (q *Queries) scanPositionMinutes(ctx context.Context, query string, args ...interface{}) ([]PositionMinutesRow, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PositionMinutesRow
	for rows.Next() {
		var i PositionMinutesRow
		if err := rows.Scan(&i.PlayerID, &i.Position, &i.TotalMinutes); err != nil {
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
