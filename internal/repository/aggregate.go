package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"squad-reconciler/internal/db"
	"squad-reconciler/internal/domain"

	"github.com/rs/zerolog"
)

type AggregateRepository struct {
	queries *db.Queries
	db      *sql.DB
	logger  zerolog.Logger
}

func NewAggregateRepository(sqlDB *sql.DB, queries *db.Queries, logger zerolog.Logger) *AggregateRepository {
	return &AggregateRepository{
		queries: queries,
		db:      sqlDB,
		logger:  logger,
	}
}

// List skips rows whose minutes map cannot be decoded; the validator then sees the
// player as having no aggregate, which is reported as an aggregation gap.
func (r *AggregateRepository) List(ctx context.Context) ([]domain.AggregateRecord, error) {
	rows, err := r.queries.ListAggregates(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]domain.AggregateRecord, 0, len(rows))
	for _, row := range rows {
		minutes := map[string]int{}
		if err := json.Unmarshal([]byte(row.MinutesByPosition), &minutes); err != nil {
			r.logger.Warn().Err(err).Str("player_id", row.PlayerID).Msg("skipping undecodable aggregate")
			continue
		}
		result = append(result, domain.AggregateRecord{
			PlayerID:          row.PlayerID,
			MinutesByPosition: minutes,
			UpdatedAt:         row.UpdatedAt,
		})
	}
	return result, nil
}

func (r *AggregateRepository) Upsert(ctx context.Context, record *domain.AggregateRecord) error {
	return upsertAggregate(ctx, r.queries, record.PlayerID, record.MinutesByPosition)
}

func upsertAggregate(ctx context.Context, q *db.Queries, playerID string, minutes map[string]int) error {
	if minutes == nil {
		minutes = map[string]int{}
	}
	encoded, err := json.Marshal(minutes)
	if err != nil {
		return fmt.Errorf("failed to encode aggregate for %s: %w", playerID, err)
	}
	return q.UpsertAggregate(ctx, db.UpsertAggregateParams{
		PlayerID:          playerID,
		MinutesByPosition: string(encoded),
		UpdatedAt:         time.Now(),
	})
}
