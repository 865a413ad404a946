package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"squad-reconciler/internal/database"
	"squad-reconciler/internal/db"
	"squad-reconciler/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRepos struct {
	sqlDB       *sql.DB
	players     *PlayerRepository
	selections  *SelectionRepository
	stats       *EventStatRepository
	aggregates  *AggregateRepository
	regenerator *LocalRegenerator
}

func newTestRepos(t *testing.T) testRepos {
	t.Helper()

	logger := zerolog.Nop()
	sqlDB, err := database.Open(filepath.Join(t.TempDir(), "squad.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	queries := db.New(sqlDB)
	return testRepos{
		sqlDB:       sqlDB,
		players:     NewPlayerRepository(sqlDB, queries, logger),
		selections:  NewSelectionRepository(sqlDB, queries, logger),
		stats:       NewEventStatRepository(sqlDB, queries, logger),
		aggregates:  NewAggregateRepository(sqlDB, queries, logger),
		regenerator: NewLocalRegenerator(sqlDB, queries, logger),
	}
}

func seedSquad(t *testing.T, r testRepos) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, r.players.UpsertBatch(ctx, []domain.Player{
		{ID: "P1", Name: "Ada"},
		{ID: "P2", Name: "Bo"},
	}))
	require.NoError(t, r.selections.Upsert(ctx, &domain.SelectionRow{
		ID:              "S1",
		EventID:         "E1",
		TeamID:          "first",
		Period:          1,
		DurationMinutes: 90,
		PositionsJSON:   `[{"playerId":"P1","position":"CB","minutes":90},{"playerId":"P2","position":"ST"},{"playerId":"GONE","position":"GK","minutes":90}]`,
		SubstitutesJSON: `["GONE"]`,
		Event:           domain.Event{Title: "League round 3", Opponent: "Rovers", Date: time.Date(2026, 9, 12, 15, 0, 0, 0, time.UTC)},
	}))
	require.NoError(t, r.selections.Upsert(ctx, &domain.SelectionRow{
		ID:              "S2",
		EventID:         "E2",
		TeamID:          "first",
		Period:          1,
		DurationMinutes: 60,
		PositionsJSON:   `[{"playerId":"P1","position":"CB","minutes":30},{"playerId":"P2","position":"GK","minutes":60,"isSubstitute":true}]`,
	}))
}

func TestPlayerRepository_ProbeAndList(t *testing.T) {
	r := newTestRepos(t)
	ctx := context.Background()

	require.NoError(t, r.players.Probe(ctx))

	seedSquad(t, r)
	players, err := r.players.List(ctx)
	require.NoError(t, err)
	require.Len(t, players, 2)
	assert.Equal(t, "P1", players[0].ID)
	assert.Equal(t, "Ada", players[0].Name)

	require.NoError(t, r.players.Delete(ctx, "P2"))
	players, err = r.players.List(ctx)
	require.NoError(t, err)
	assert.Len(t, players, 1)
}

func TestPlayerRepository_ProbeFailsOnClosedDB(t *testing.T) {
	r := newTestRepos(t)
	require.NoError(t, r.sqlDB.Close())

	assert.Error(t, r.players.Probe(context.Background()))
}

func TestSelectionRepository_ListGetUpdate(t *testing.T) {
	r := newTestRepos(t)
	ctx := context.Background()
	seedSquad(t, r)

	rows, err := r.selections.ListWithEvents(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "S1", rows[0].ID)
	assert.Equal(t, "League round 3", rows[0].Event.Title)
	assert.Equal(t, "Rovers", rows[0].Event.Opponent)
	assert.Equal(t, 90, rows[0].DurationMinutes)
	assert.Equal(t, `[]`, rows[1].SubstitutesJSON)

	require.NoError(t, r.selections.UpdateLists(ctx, "S1", `[{"playerId":"P1","position":"CB","minutes":90}]`, `[]`))

	got, err := r.selections.Get(ctx, "S1")
	require.NoError(t, err)
	entries, malformed := domain.ParsePositions(got.PositionsJSON)
	assert.Empty(t, malformed)
	require.Len(t, entries, 1)
	assert.Equal(t, "P1", entries[0].PlayerID)
}

func TestSelectionRepository_NotFound(t *testing.T) {
	r := newTestRepos(t)
	ctx := context.Background()

	_, err := r.selections.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	err = r.selections.UpdateLists(ctx, "missing", `[]`, `[]`)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalRegenerator_RegenerateEventStats(t *testing.T) {
	r := newTestRepos(t)
	ctx := context.Background()
	seedSquad(t, r)

	require.NoError(t, r.stats.Upsert(ctx, &domain.DerivedEventStat{EventID: "E9", PlayerID: "P1", Position: "LB", MinutesPlayed: 10}))

	require.NoError(t, r.regenerator.RegenerateEventStats(ctx))

	stats, err := r.stats.List(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 4, "stale row replaced, orphan skipped")

	byKey := map[domain.StatKey]domain.DerivedEventStat{}
	for _, s := range stats {
		byKey[domain.StatKey{EventID: s.EventID, PlayerID: s.PlayerID}] = s
	}
	assert.Equal(t, 90, byKey[domain.StatKey{EventID: "E1", PlayerID: "P1"}].MinutesPlayed)
	assert.Equal(t, 90, byKey[domain.StatKey{EventID: "E1", PlayerID: "P2"}].MinutesPlayed, "falls back to duration")
	assert.True(t, byKey[domain.StatKey{EventID: "E2", PlayerID: "P2"}].IsSubstitute)
	_, stale := byKey[domain.StatKey{EventID: "E9", PlayerID: "P1"}]
	assert.False(t, stale)

	count, err := r.stats.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	// idempotent
	require.NoError(t, r.regenerator.RegenerateEventStats(ctx))
	again, err := r.stats.List(ctx)
	require.NoError(t, err)
	assert.Len(t, again, 4)
}

func TestLocalRegenerator_Aggregates(t *testing.T) {
	r := newTestRepos(t)
	ctx := context.Background()
	seedSquad(t, r)
	require.NoError(t, r.regenerator.RegenerateEventStats(ctx))

	require.NoError(t, r.regenerator.RecomputeAllAggregates(ctx))

	aggs, err := r.aggregates.List(ctx)
	require.NoError(t, err)
	require.Len(t, aggs, 2)
	assert.Equal(t, map[string]int{"CB": 120}, aggs[0].MinutesByPosition)
	assert.Equal(t, map[string]int{"ST": 90, "GK": 60}, aggs[1].MinutesByPosition)

	require.NoError(t, r.aggregates.Upsert(ctx, &domain.AggregateRecord{PlayerID: "P1", MinutesByPosition: map[string]int{}}))
	require.NoError(t, r.regenerator.RecomputePlayerAggregate(ctx, "P1"))

	aggs, err = r.aggregates.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"CB": 120}, aggs[0].MinutesByPosition)
}

func TestLocalRegenerator_PlayerWithoutMinutes(t *testing.T) {
	r := newTestRepos(t)
	ctx := context.Background()
	seedSquad(t, r)

	require.NoError(t, r.aggregates.Upsert(ctx, &domain.AggregateRecord{PlayerID: "P2", MinutesByPosition: map[string]int{"ST": 5}}))
	require.NoError(t, r.stats.DeleteAll(ctx))
	require.NoError(t, r.regenerator.RecomputePlayerAggregate(ctx, "P2"))

	aggs, err := r.aggregates.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, aggs)
}
