package service

import (
	"context"

	"squad-reconciler/internal/domain"
)

type PlayerStore interface {
	Probe(ctx context.Context) error
	List(ctx context.Context) ([]domain.Player, error)
}

type SelectionStore interface {
	ListWithEvents(ctx context.Context) ([]domain.SelectionRow, error)
	Get(ctx context.Context, id string) (*domain.SelectionRow, error)
	UpdateLists(ctx context.Context, id, positions, substitutes string) error
}

type EventStatStore interface {
	List(ctx context.Context) ([]domain.DerivedEventStat, error)
	Count(ctx context.Context) (int, error)
	DeleteAll(ctx context.Context) error
}

type AggregateStore interface {
	List(ctx context.Context) ([]domain.AggregateRecord, error)
}

// Regenerator is the statistics recomputation collaborator. Implementations may be
// local (SQL) or remote (HTTP).
type Regenerator interface {
	RegenerateEventStats(ctx context.Context) error
	RecomputePlayerAggregate(ctx context.Context, playerID string) error
	RecomputeAllAggregates(ctx context.Context) error
}
