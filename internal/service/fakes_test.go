package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"squad-reconciler/internal/domain"
	"squad-reconciler/internal/metrics"
	"squad-reconciler/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var errInjected = errors.New("injected failure")

// fakeDB is an in-memory store shared by the per-collection fakes below. Failures are
// injected per operation name: a positive count fails that many calls, -1 fails all.
type fakeDB struct {
	mu         sync.Mutex
	players    []domain.Player
	selections []domain.SelectionRow
	stats      []domain.DerivedEventStat
	aggregates map[string]map[string]int

	failures map[string]int
	calls    map[string]int
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		aggregates: make(map[string]map[string]int),
		failures:   make(map[string]int),
		calls:      make(map[string]int),
	}
}

func (f *fakeDB) failOn(op string, times int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = times
}

func (f *fakeDB) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// enter must be called with mu held.
func (f *fakeDB) enter(op string) error {
	f.calls[op]++
	switch n := f.failures[op]; {
	case n < 0:
		return errInjected
	case n > 0:
		f.failures[op] = n - 1
		return errInjected
	}
	return nil
}

func (f *fakeDB) addPlayer(id, name string) {
	f.players = append(f.players, domain.Player{ID: id, Name: name})
}

func (f *fakeDB) addSelection(id, eventID string, duration int, positions, substitutes string) {
	f.selections = append(f.selections, domain.SelectionRow{
		ID:              id,
		EventID:         eventID,
		TeamID:          "first",
		Period:          1,
		DurationMinutes: duration,
		PositionsJSON:   positions,
		SubstitutesJSON: substitutes,
		Event:           domain.Event{ID: eventID, Title: "Match " + eventID, Opponent: "Rovers", Date: time.Date(2026, 9, 12, 0, 0, 0, 0, time.UTC)},
	})
}

func (f *fakeDB) addStat(eventID, playerID, position string, minutes int) {
	f.stats = append(f.stats, domain.DerivedEventStat{EventID: eventID, PlayerID: playerID, Position: position, MinutesPlayed: minutes})
}

func (f *fakeDB) setAggregate(playerID string, minutes map[string]int) {
	f.aggregates[playerID] = minutes
}

func (f *fakeDB) selection(id string) domain.SelectionRow {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.selections {
		if s.ID == id {
			return s
		}
	}
	return domain.SelectionRow{}
}

type fakePlayers struct{ *fakeDB }

func (f fakePlayers) Probe(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enter("probe")
}

func (f fakePlayers) List(ctx context.Context) ([]domain.Player, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("players"); err != nil {
		return nil, err
	}
	return append([]domain.Player(nil), f.players...), nil
}

type fakeSelections struct{ *fakeDB }

func (f fakeSelections) ListWithEvents(ctx context.Context) ([]domain.SelectionRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("selections"); err != nil {
		return nil, err
	}
	return append([]domain.SelectionRow(nil), f.selections...), nil
}

func (f fakeSelections) Get(ctx context.Context, id string) (*domain.SelectionRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("get:" + id); err != nil {
		return nil, err
	}
	for _, s := range f.selections {
		if s.ID == id {
			row := s
			return &row, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f fakeSelections) UpdateLists(ctx context.Context, id, positions, substitutes string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("update:" + id); err != nil {
		return err
	}
	for i := range f.selections {
		if f.selections[i].ID == id {
			f.selections[i].PositionsJSON = positions
			f.selections[i].SubstitutesJSON = substitutes
			return nil
		}
	}
	return repository.ErrNotFound
}

type fakeStats struct{ *fakeDB }

func (f fakeStats) List(ctx context.Context) ([]domain.DerivedEventStat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("stats"); err != nil {
		return nil, err
	}
	return append([]domain.DerivedEventStat(nil), f.stats...), nil
}

func (f fakeStats) Count(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("count"); err != nil {
		return 0, err
	}
	return len(f.stats), nil
}

func (f fakeStats) DeleteAll(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("delete_stats"); err != nil {
		return err
	}
	f.stats = nil
	return nil
}

type fakeAggregates struct{ *fakeDB }

func (f fakeAggregates) List(ctx context.Context) ([]domain.AggregateRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("aggregates"); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(f.aggregates))
	for id := range f.aggregates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]domain.AggregateRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.AggregateRecord{PlayerID: id, MinutesByPosition: f.aggregates[id]})
	}
	return out, nil
}

// fakeRegenerator derives stats the way the SQL regenerator does.
type fakeRegenerator struct{ *fakeDB }

func (f fakeRegenerator) RegenerateEventStats(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("regenerate"); err != nil {
		return err
	}

	known := make(map[string]struct{})
	for _, p := range f.players {
		known[p.ID] = struct{}{}
	}
	seen := make(map[domain.StatKey]struct{})
	var stats []domain.DerivedEventStat
	for _, s := range f.selections {
		rec := parseSelection(&s)
		for _, e := range rec.Positions {
			key := domain.StatKey{EventID: s.EventID, PlayerID: e.PlayerID}
			if _, ok := known[e.PlayerID]; !ok {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			stats = append(stats, domain.DerivedEventStat{
				EventID:       s.EventID,
				PlayerID:      e.PlayerID,
				Position:      e.Position,
				MinutesPlayed: rec.ExpectedMinutes(e),
				IsSubstitute:  e.IsSubstitute,
			})
		}
	}
	f.stats = stats
	return nil
}

func (f fakeRegenerator) RecomputeAllAggregates(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("recompute_all"); err != nil {
		return err
	}
	f.aggregates = make(map[string]map[string]int)
	for _, s := range f.stats {
		f.addMinutes(s)
	}
	return nil
}

func (f fakeRegenerator) RecomputePlayerAggregate(ctx context.Context, playerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("recompute:" + playerID); err != nil {
		return err
	}
	delete(f.aggregates, playerID)
	for _, s := range f.stats {
		if s.PlayerID == playerID {
			f.addMinutes(s)
		}
	}
	return nil
}

func (f fakeRegenerator) addMinutes(s domain.DerivedEventStat) {
	if s.MinutesPlayed <= 0 {
		return
	}
	m, ok := f.aggregates[s.PlayerID]
	if !ok {
		m = make(map[string]int)
		f.aggregates[s.PlayerID] = m
	}
	m[s.Position] += s.MinutesPlayed
}

func testSettings() Settings {
	return Settings{
		Workers:                4,
		RetryBackoff:           time.Millisecond,
		RevalidateDelay:        time.Millisecond,
		AggregateFallbackBatch: 2,
	}
}

func newTestLoader(f *fakeDB) *Loader {
	return NewLoader(fakePlayers{f}, fakeSelections{f}, fakeStats{f}, fakeAggregates{f}, testSettings(), zerolog.Nop())
}

func newTestOrchestrator(f *fakeDB, settings Settings) *RepairOrchestrator {
	return NewRepairOrchestrator(fakeSelections{f}, fakeStats{f}, fakeRegenerator{f}, settings, zerolog.Nop())
}

func newTestEngine(f *fakeDB) *Engine {
	settings := testSettings()
	return NewEngine(
		newTestLoader(f),
		NewValidator(settings, zerolog.Nop()),
		newTestOrchestrator(f, settings),
		metrics.NewManager(),
		settings,
		zerolog.Nop(),
	)
}

func loadSnapshot(t *testing.T, f *fakeDB) *Snapshot {
	t.Helper()
	snap, err := newTestLoader(f).Load(context.Background())
	require.NoError(t, err)
	return snap
}

func validate(t *testing.T, f *fakeDB) *Validation {
	t.Helper()
	v, err := NewValidator(testSettings(), zerolog.Nop()).Validate(context.Background(), loadSnapshot(t, f))
	require.NoError(t, err)
	return v
}

func issuesOfKind(issues []domain.ValidationIssue, kind domain.IssueKind) []domain.ValidationIssue {
	var out []domain.ValidationIssue
	for _, i := range issues {
		if i.Kind == kind {
			out = append(out, i)
		}
	}
	return out
}
