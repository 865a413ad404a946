package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"squad-reconciler/internal/db"
	"squad-reconciler/internal/domain"

	"github.com/rs/zerolog"
)

type EventStatRepository struct {
	queries *db.Queries
	db      *sql.DB
	logger  zerolog.Logger
}

func NewEventStatRepository(sqlDB *sql.DB, queries *db.Queries, logger zerolog.Logger) *EventStatRepository {
	return &EventStatRepository{
		queries: queries,
		db:      sqlDB,
		logger:  logger,
	}
}

func (r *EventStatRepository) List(ctx context.Context) ([]domain.DerivedEventStat, error) {
	rows, err := r.queries.ListEventStats(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]domain.DerivedEventStat, len(rows))
	for i, row := range rows {
		result[i] = domain.DerivedEventStat{
			EventID:       row.EventID,
			PlayerID:      row.PlayerID,
			Position:      row.Position,
			MinutesPlayed: int(row.MinutesPlayed),
			IsSubstitute:  row.IsSubstitute,
			UpdatedAt:     row.UpdatedAt,
		}
	}
	return result, nil
}

func (r *EventStatRepository) Count(ctx context.Context) (int, error) {
	count, err := r.queries.CountEventStats(ctx)
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func (r *EventStatRepository) DeleteAll(ctx context.Context) error {
	if err := r.queries.DeleteAllEventStats(ctx); err != nil {
		return fmt.Errorf("failed to clear event stats: %w", err)
	}
	r.logger.Warn().Msg("event stats collection cleared")
	return nil
}

func (r *EventStatRepository) Upsert(ctx context.Context, stat *domain.DerivedEventStat) error {
	return r.queries.UpsertEventStat(ctx, db.UpsertEventStatParams{
		EventID:       stat.EventID,
		PlayerID:      stat.PlayerID,
		Position:      stat.Position,
		MinutesPlayed: int64(stat.MinutesPlayed),
		IsSubstitute:  stat.IsSubstitute,
		UpdatedAt:     time.Now(),
	})
}
