package db

import (
	"context"
	"time"
)

const probePlayers = `SELECT EXISTS(SELECT 1 FROM players LIMIT 1)`

func (q *Queries) ProbePlayers(ctx context.Context) (bool, error) {
	row := q.db.QueryRowContext(ctx, probePlayers)
	var exists bool
	err := row.Scan(&exists)
	return exists, err
}

const listPlayers = `SELECT id, name, created_at, updated_at FROM players ORDER BY id`

func (q *Queries) ListPlayers(ctx context.Context) ([]Player, error) {
	rows, err := q.db.QueryContext(ctx, listPlayers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Player
	for rows.Next() {
		var i Player
		if err := rows.Scan(&i.ID, &i.Name, &i.CreatedAt, &i.UpdatedAt); err != nil {
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

const upsertPlayer = `INSERT INTO players (id, name, created_at, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET name = excluded.name, updated_at = excluded.updated_at`

type UpsertPlayerParams struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (q *Queries) UpsertPlayer(ctx context.Context, arg UpsertPlayerParams) error {
	_, err := q.db.ExecContext(ctx, upsertPlayer, arg.ID, arg.Name, arg.CreatedAt, arg.UpdatedAt)
	return err
}

const deletePlayer = `DELETE FROM players WHERE id = ?`

func (q *Queries) DeletePlayer(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, deletePlayer, id)
	return err
}

const upsertEvent = `INSERT INTO events (id, title, opponent, date)
VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET title = excluded.title, opponent = excluded.opponent, date = excluded.date`

type UpsertEventParams struct {
	ID       string
	Title    string
	Opponent string
	Date     time.Time
}

func (q *Queries) UpsertEvent(ctx context.Context, arg UpsertEventParams) error {
	_, err := q.db.ExecContext(ctx, upsertEvent, arg.ID, arg.Title, arg.Opponent, arg.Date)
	return err
}
