package service

import (
	"context"
	"sort"
	"time"

	"squad-reconciler/internal/config"
	"squad-reconciler/internal/constants"
	"squad-reconciler/internal/domain"

	"github.com/rs/zerolog"
)

// Settings carries the tunables shared by the engine components.
type Settings struct {
	Workers                int
	RetryBackoff           time.Duration
	RevalidateDelay        time.Duration
	AggregateFallbackBatch int
}

func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Workers:                cfg.ValidatorWorkers,
		RetryBackoff:           cfg.RetryBackoff,
		RevalidateDelay:        cfg.RevalidateDelay,
		AggregateFallbackBatch: cfg.AggregateFallbackBatch,
	}
}

// Snapshot is the in-memory view of all four collections for one run. It is never
// modified after Load returns.
type Snapshot struct {
	Players          map[string]domain.Player
	PlayerIDs        []string
	Selections       []domain.SelectionRecord
	Stats            map[domain.StatKey]domain.DerivedEventStat
	PlayersWithStats map[string]struct{}
	Aggregates       map[string]domain.AggregateRecord
	LoadedAt         time.Time
}

func (s *Snapshot) HasPlayer(id string) bool {
	_, ok := s.Players[id]
	return ok
}

type Loader struct {
	players    PlayerStore
	selections SelectionStore
	stats      EventStatStore
	aggregates AggregateStore
	backoff    time.Duration
	logger     zerolog.Logger
}

func NewLoader(players PlayerStore, selections SelectionStore, stats EventStatStore, aggregates AggregateStore, settings Settings, logger zerolog.Logger) *Loader {
	backoff := settings.RetryBackoff
	if backoff <= 0 {
		backoff = constants.DefaultRetryBackoff
	}
	return &Loader{
		players:    players,
		selections: selections,
		stats:      stats,
		aggregates: aggregates,
		backoff:    backoff,
		logger:     logger,
	}
}

func (l *Loader) Load(ctx context.Context) (*Snapshot, error) {
	start := time.Now()

	if err := l.read(ctx, StageConnectivity, l.players.Probe); err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Players:          make(map[string]domain.Player),
		Stats:            make(map[domain.StatKey]domain.DerivedEventStat),
		PlayersWithStats: make(map[string]struct{}),
		Aggregates:       make(map[string]domain.AggregateRecord),
	}

	var players []domain.Player
	if err := l.read(ctx, StagePlayers, func(ctx context.Context) (err error) {
		players, err = l.players.List(ctx)
		return err
	}); err != nil {
		return nil, err
	}
	for _, p := range players {
		snap.Players[p.ID] = p
		snap.PlayerIDs = append(snap.PlayerIDs, p.ID)
	}
	sort.Strings(snap.PlayerIDs)

	var rows []domain.SelectionRow
	if err := l.read(ctx, StageSelections, func(ctx context.Context) (err error) {
		rows, err = l.selections.ListWithEvents(ctx)
		return err
	}); err != nil {
		return nil, err
	}
	malformed := 0
	snap.Selections = make([]domain.SelectionRecord, len(rows))
	for i := range rows {
		snap.Selections[i] = parseSelection(&rows[i])
		malformed += len(snap.Selections[i].Malformed)
	}

	var stats []domain.DerivedEventStat
	if err := l.read(ctx, StageEventStats, func(ctx context.Context) (err error) {
		stats, err = l.stats.List(ctx)
		return err
	}); err != nil {
		return nil, err
	}
	for _, s := range stats {
		snap.Stats[domain.StatKey{EventID: s.EventID, PlayerID: s.PlayerID}] = s
		snap.PlayersWithStats[s.PlayerID] = struct{}{}
	}

	var aggregates []domain.AggregateRecord
	if err := l.read(ctx, StageAggregates, func(ctx context.Context) (err error) {
		aggregates, err = l.aggregates.List(ctx)
		return err
	}); err != nil {
		return nil, err
	}
	for _, a := range aggregates {
		snap.Aggregates[a.PlayerID] = a
	}

	snap.LoadedAt = time.Now()
	l.logger.Info().
		Int("players", len(snap.Players)).
		Int("selections", len(snap.Selections)).
		Int("event_stats", len(snap.Stats)).
		Int("aggregates", len(snap.Aggregates)).
		Int("malformed_entries", malformed).
		Dur("duration", time.Since(start)).
		Msg("snapshot loaded")

	return snap, nil
}

func (l *Loader) read(ctx context.Context, stage string, fn func(context.Context) error) error {
	_, err := withRetry(ctx, l.backoff, fn, func(err error) {
		l.logger.Warn().Err(err).Str("stage", stage).Msg("snapshot read failed, retrying")
	})
	if err != nil {
		l.logger.Error().Err(err).Str("stage", stage).Msg("snapshot load aborted")
		return &LoadError{Stage: stage, Err: err}
	}
	return nil
}

func parseSelection(row *domain.SelectionRow) domain.SelectionRecord {
	positions, badPositions := domain.ParsePositions(row.PositionsJSON)
	substitutes, badSubstitutes := domain.ParseSubstitutes(row.SubstitutesJSON)

	event := row.Event
	if event.ID == "" {
		event.ID = row.EventID
	}

	return domain.SelectionRecord{
		ID:              row.ID,
		EventID:         row.EventID,
		TeamID:          row.TeamID,
		Period:          row.Period,
		DurationMinutes: row.DurationMinutes,
		Positions:       positions,
		Substitutes:     substitutes,
		Malformed:       append(badPositions, badSubstitutes...),
		Event:           event,
	}
}
