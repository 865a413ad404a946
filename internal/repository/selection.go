package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"squad-reconciler/internal/db"
	"squad-reconciler/internal/domain"

	"github.com/rs/zerolog"
)

type SelectionRepository struct {
	queries *db.Queries
	db      *sql.DB
	logger  zerolog.Logger
}

func NewSelectionRepository(sqlDB *sql.DB, queries *db.Queries, logger zerolog.Logger) *SelectionRepository {
	return &SelectionRepository{
		queries: queries,
		db:      sqlDB,
		logger:  logger,
	}
}

// ListWithEvents returns every selection joined with its event metadata. Selections
// whose event row is gone are still returned with empty metadata.
func (r *SelectionRepository) ListWithEvents(ctx context.Context) ([]domain.SelectionRow, error) {
	rows, err := r.queries.ListSelectionsWithEvents(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]domain.SelectionRow, len(rows))
	for i, row := range rows {
		result[i] = domain.SelectionRow{
			ID:              row.ID,
			EventID:         row.EventID,
			TeamID:          row.TeamID,
			Period:          int(row.Period),
			DurationMinutes: int(row.DurationMinutes),
			PositionsJSON:   row.Positions,
			SubstitutesJSON: row.Substitutes,
			UpdatedAt:       row.UpdatedAt,
			Event: domain.Event{
				ID:       row.EventID,
				Title:    row.EventTitle.String,
				Opponent: row.EventOpponent.String,
				Date:     row.EventDate.Time,
			},
		}
	}
	return result, nil
}

func (r *SelectionRepository) Get(ctx context.Context, id string) (*domain.SelectionRow, error) {
	row, err := r.queries.GetSelection(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("selection %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	return &domain.SelectionRow{
		ID:              row.ID,
		EventID:         row.EventID,
		TeamID:          row.TeamID,
		Period:          int(row.Period),
		DurationMinutes: int(row.DurationMinutes),
		PositionsJSON:   row.Positions,
		SubstitutesJSON: row.Substitutes,
		UpdatedAt:       row.UpdatedAt,
		Event:           domain.Event{ID: row.EventID},
	}, nil
}

func (r *SelectionRepository) UpdateLists(ctx context.Context, id, positions, substitutes string) error {
	affected, err := r.queries.UpdateSelectionLists(ctx, db.UpdateSelectionListsParams{
		Positions:   positions,
		Substitutes: substitutes,
		UpdatedAt:   time.Now(),
		ID:          id,
	})
	if err != nil {
		return fmt.Errorf("failed to update selection %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("selection %s: %w", id, ErrNotFound)
	}

	r.logger.Debug().Str("selection_id", id).Msg("selection lists updated")
	return nil
}

// Upsert writes an event and one selection for it in a single transaction.
func (r *SelectionRepository) Upsert(ctx context.Context, row *domain.SelectionRow) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := r.queries.WithTx(tx)

	eventDate := row.Event.Date
	if eventDate.IsZero() {
		eventDate = time.Now()
	}
	if err := qtx.UpsertEvent(ctx, db.UpsertEventParams{
		ID:       row.EventID,
		Title:    row.Event.Title,
		Opponent: row.Event.Opponent,
		Date:     eventDate,
	}); err != nil {
		return fmt.Errorf("failed to upsert event %s: %w", row.EventID, err)
	}

	positions := row.PositionsJSON
	if positions == "" {
		positions = "[]"
	}
	substitutes := row.SubstitutesJSON
	if substitutes == "" {
		substitutes = "[]"
	}

	if err := qtx.UpsertSelection(ctx, db.UpsertSelectionParams{
		ID:              row.ID,
		EventID:         row.EventID,
		TeamID:          row.TeamID,
		Period:          int64(row.Period),
		DurationMinutes: int64(row.DurationMinutes),
		Positions:       positions,
		Substitutes:     substitutes,
		UpdatedAt:       time.Now(),
	}); err != nil {
		return fmt.Errorf("failed to upsert selection %s: %w", row.ID, err)
	}

	return tx.Commit()
}
