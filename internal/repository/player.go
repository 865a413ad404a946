package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"squad-reconciler/internal/constants"
	"squad-reconciler/internal/db"
	"squad-reconciler/internal/domain"

	"github.com/rs/zerolog"
)

type PlayerRepository struct {
	queries *db.Queries
	db      *sql.DB
	logger  zerolog.Logger
}

func NewPlayerRepository(sqlDB *sql.DB, queries *db.Queries, logger zerolog.Logger) *PlayerRepository {
	return &PlayerRepository{
		queries: queries,
		db:      sqlDB,
		logger:  logger,
	}
}

// Probe is the cheap connectivity check run before every snapshot.
func (r *PlayerRepository) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	exists, err := r.queries.ProbePlayers(ctx)
	if err != nil {
		return fmt.Errorf("players probe failed: %w", err)
	}
	r.logger.Debug().Bool("has_players", exists).Msg("store probe succeeded")
	return nil
}

func (r *PlayerRepository) List(ctx context.Context) ([]domain.Player, error) {
	players, err := r.queries.ListPlayers(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]domain.Player, len(players))
	for i, p := range players {
		result[i] = domain.Player{
			ID:        p.ID,
			Name:      p.Name,
			CreatedAt: p.CreatedAt,
			UpdatedAt: p.UpdatedAt,
		}
	}
	return result, nil
}

func (r *PlayerRepository) Upsert(ctx context.Context, player *domain.Player) error {
	now := time.Now()
	createdAt := player.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	return r.queries.UpsertPlayer(ctx, db.UpsertPlayerParams{
		ID:        player.ID,
		Name:      player.Name,
		CreatedAt: createdAt,
		UpdatedAt: now,
	})
}

func (r *PlayerRepository) UpsertBatch(ctx context.Context, players []domain.Player) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := r.queries.WithTx(tx)
	now := time.Now()

	for i := 0; i < len(players); i += constants.DBBatchSize {
		end := i + constants.DBBatchSize
		if end > len(players) {
			end = len(players)
		}

		for _, player := range players[i:end] {
			err := qtx.UpsertPlayer(ctx, db.UpsertPlayerParams{
				ID:        player.ID,
				Name:      player.Name,
				CreatedAt: now,
				UpdatedAt: now,
			})
			if err != nil {
				return fmt.Errorf("failed to upsert player %s: %w", player.ID, err)
			}
		}
	}

	return tx.Commit()
}

// Delete removes a player without touching the layers that reference it.
func (r *PlayerRepository) Delete(ctx context.Context, id string) error {
	return r.queries.DeletePlayer(ctx, id)
}
