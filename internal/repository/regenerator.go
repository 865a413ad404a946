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

// LocalRegenerator derives event stats and aggregates directly in the database. It is
// used when no remote statistics service is configured.
type LocalRegenerator struct {
	queries *db.Queries
	db      *sql.DB
	logger  zerolog.Logger
}

func NewLocalRegenerator(sqlDB *sql.DB, queries *db.Queries, logger zerolog.Logger) *LocalRegenerator {
	return &LocalRegenerator{
		queries: queries,
		db:      sqlDB,
		logger:  logger,
	}
}

// RegenerateEventStats rebuilds the whole event_stats table from selections. The first
// entry seen for an (event, player) pair wins, in selection period order.
func (g *LocalRegenerator) RegenerateEventStats(ctx context.Context) error {
	start := time.Now()

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := g.queries.WithTx(tx)

	players, err := qtx.ListPlayers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list players: %w", err)
	}
	known := make(map[string]struct{}, len(players))
	for _, p := range players {
		known[p.ID] = struct{}{}
	}

	selections, err := qtx.ListSelectionsWithEvents(ctx)
	if err != nil {
		return fmt.Errorf("failed to list selections: %w", err)
	}

	if err := qtx.DeleteAllEventStats(ctx); err != nil {
		return fmt.Errorf("failed to clear event stats: %w", err)
	}

	now := time.Now()
	written := make(map[domain.StatKey]struct{})
	skipped := 0
	for _, sel := range selections {
		entries, malformed := domain.ParsePositions(sel.Positions)
		skipped += len(malformed)

		for _, entry := range entries {
			if _, ok := known[entry.PlayerID]; !ok {
				skipped++
				continue
			}
			key := domain.StatKey{EventID: sel.EventID, PlayerID: entry.PlayerID}
			if _, ok := written[key]; ok {
				continue
			}

			minutes := int(sel.DurationMinutes)
			if entry.Minutes != nil {
				minutes = *entry.Minutes
			}
			if err := qtx.UpsertEventStat(ctx, db.UpsertEventStatParams{
				EventID:       sel.EventID,
				PlayerID:      entry.PlayerID,
				Position:      entry.Position,
				MinutesPlayed: int64(minutes),
				IsSubstitute:  entry.IsSubstitute,
				UpdatedAt:     now,
			}); err != nil {
				return fmt.Errorf("failed to write event stat %s/%s: %w", sel.EventID, entry.PlayerID, err)
			}
			written[key] = struct{}{}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit event stats: %w", err)
	}

	g.logger.Info().
		Int("selections", len(selections)).
		Int("rows_written", len(written)).
		Int("entries_skipped", skipped).
		Dur("duration", time.Since(start)).
		Msg("event stats regenerated")
	return nil
}

func (g *LocalRegenerator) RecomputeAllAggregates(ctx context.Context) error {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := g.queries.WithTx(tx)

	rows, err := qtx.SumMinutesByPosition(ctx)
	if err != nil {
		return fmt.Errorf("failed to sum minutes: %w", err)
	}

	byPlayer := make(map[string]map[string]int)
	var order []string
	for _, row := range rows {
		minutes, ok := byPlayer[row.PlayerID]
		if !ok {
			minutes = make(map[string]int)
			byPlayer[row.PlayerID] = minutes
			order = append(order, row.PlayerID)
		}
		minutes[row.Position] = int(row.TotalMinutes)
	}

	if err := qtx.DeleteAllAggregates(ctx); err != nil {
		return fmt.Errorf("failed to clear aggregates: %w", err)
	}
	for _, playerID := range order {
		if err := upsertAggregate(ctx, qtx, playerID, byPlayer[playerID]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit aggregates: %w", err)
	}

	g.logger.Info().Int("players", len(order)).Msg("aggregates recomputed")
	return nil
}

func (g *LocalRegenerator) RecomputePlayerAggregate(ctx context.Context, playerID string) error {
	rows, err := g.queries.SumMinutesByPositionForPlayer(ctx, playerID)
	if err != nil {
		return fmt.Errorf("failed to sum minutes for %s: %w", playerID, err)
	}

	if len(rows) == 0 {
		if err := g.queries.DeleteAggregate(ctx, playerID); err != nil {
			return fmt.Errorf("failed to delete aggregate for %s: %w", playerID, err)
		}
		g.logger.Debug().Str("player_id", playerID).Msg("player has no minutes, aggregate removed")
		return nil
	}

	minutes := make(map[string]int, len(rows))
	for _, row := range rows {
		minutes[row.Position] = int(row.TotalMinutes)
	}
	if err := upsertAggregate(ctx, g.queries, playerID, minutes); err != nil {
		return err
	}

	g.logger.Debug().Str("player_id", playerID).Int("positions", len(minutes)).Msg("player aggregate recomputed")
	return nil
}
