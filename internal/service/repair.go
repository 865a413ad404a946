package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"squad-reconciler/internal/constants"
	"squad-reconciler/internal/domain"
	"squad-reconciler/internal/repository"

	"github.com/rs/zerolog"
)

var transitions = map[domain.StepState][]domain.StepState{
	domain.StatePending:  {domain.StateRetrying, domain.StateFallback, domain.StateDone, domain.StateFailed},
	domain.StateRetrying: {domain.StateFallback, domain.StateDone, domain.StateFailed},
	domain.StateFallback: {domain.StateDone, domain.StateFailed},
}

func canTransition(from, to domain.StepState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type repairStep struct {
	name      domain.StepName
	dependsOn []domain.StepName
	run       func(ctx context.Context, run *stepRun)
}

// orderSteps resolves dependencies; steps with no ordering constraint keep their
// declared order.
func orderSteps(steps []repairStep) ([]repairStep, error) {
	byName := make(map[domain.StepName]int, len(steps))
	for i, s := range steps {
		if _, dup := byName[s.name]; dup {
			return nil, fmt.Errorf("duplicate repair step %s", s.name)
		}
		byName[s.name] = i
	}

	indegree := make([]int, len(steps))
	dependents := make([][]int, len(steps))
	for i, s := range steps {
		for _, dep := range s.dependsOn {
			j, ok := byName[dep]
			if !ok {
				return nil, fmt.Errorf("repair step %s depends on unknown step %s", s.name, dep)
			}
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	ordered := make([]repairStep, 0, len(steps))
	placed := make([]bool, len(steps))
	for len(ordered) < len(steps) {
		next := -1
		for i := range steps {
			if !placed[i] && indegree[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			return nil, errors.New("repair steps contain a dependency cycle")
		}
		placed[next] = true
		ordered = append(ordered, steps[next])
		for _, d := range dependents[next] {
			indegree[d]--
		}
	}
	return ordered, nil
}

// stepRun drives the state machine of a single step and writes to the shared outcome.
type stepRun struct {
	result  *domain.StepResult
	outcome *domain.RepairOutcome
	logger  zerolog.Logger
}

func (r *stepRun) transition(to domain.StepState) {
	from := r.result.State
	if from == to {
		return
	}
	if !canTransition(from, to) {
		r.logf(zerolog.ErrorLevel, "invalid state transition %s -> %s", from, to)
		to = domain.StateFailed
		if from == to {
			return
		}
	}
	r.result.State = to
	r.result.History = append(r.result.History, to)
}

func (r *stepRun) done(msg string) {
	r.logf(zerolog.InfoLevel, "%s", msg)
	r.transition(domain.StateDone)
}

func (r *stepRun) fail(err error) {
	stepErr := &RepairStepError{Step: r.result.Name, Err: err}
	r.result.Error = stepErr.Error()
	r.logf(zerolog.ErrorLevel, "%s", stepErr.Error())
	r.transition(domain.StateFailed)
}

func (r *stepRun) warn(reason string) {
	w := &PartialRepairWarning{Step: r.result.Name, Reason: reason}
	r.result.Warning = w.Error()
	r.outcome.Warnings = append(r.outcome.Warnings, w.Error())
	r.logf(zerolog.WarnLevel, "%s", w.Error())
}

func (r *stepRun) logf(level zerolog.Level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.outcome.Log = append(r.outcome.Log, domain.LogEntry{
		Time:    time.Now(),
		Step:    r.result.Name,
		Level:   level.String(),
		Message: msg,
	})
	r.logger.WithLevel(level).Str("step", string(r.result.Name)).Msg(msg)
}

type RepairOrchestrator struct {
	selections  SelectionStore
	stats       EventStatStore
	regenerator Regenerator
	backoff     time.Duration
	batch       int
	logger      zerolog.Logger
}

func NewRepairOrchestrator(selections SelectionStore, stats EventStatStore, regenerator Regenerator, settings Settings, logger zerolog.Logger) *RepairOrchestrator {
	backoff := settings.RetryBackoff
	if backoff <= 0 {
		backoff = constants.DefaultRetryBackoff
	}
	batch := settings.AggregateFallbackBatch
	if batch <= 0 {
		batch = constants.DefaultAggregateFallbackBatch
	}
	return &RepairOrchestrator{
		selections:  selections,
		stats:       stats,
		regenerator: regenerator,
		backoff:     backoff,
		batch:       batch,
		logger:      logger,
	}
}

func (o *RepairOrchestrator) steps(report domain.ReconciliationReport, issues []domain.ValidationIssue) []repairStep {
	return []repairStep{
		{
			name: domain.StepPurge,
			run: func(ctx context.Context, run *stepRun) {
				o.purge(ctx, run, issues)
			},
		},
		{
			name:      domain.StepRegenerate,
			dependsOn: []domain.StepName{domain.StepPurge},
			run:       o.regenerate,
		},
		{
			name:      domain.StepRecompute,
			dependsOn: []domain.StepName{domain.StepRegenerate},
			run: func(ctx context.Context, run *stepRun) {
				o.recompute(ctx, run, report)
			},
		},
		{
			name:      domain.StepVerify,
			dependsOn: []domain.StepName{domain.StepRecompute},
			run:       o.verify,
		},
	}
}

// Repair runs every step once, in dependency order. Step failures are recorded in
// the outcome and never abort later steps. The returned error is only set when ctx
// is cancelled between steps; the outcome is still returned in that case.
func (o *RepairOrchestrator) Repair(ctx context.Context, report domain.ReconciliationReport, issues []domain.ValidationIssue) (*domain.RepairOutcome, error) {
	logger := o.logger.With().Str("run_id", report.RunID).Logger()

	steps, err := orderSteps(o.steps(report, issues))
	if err != nil {
		return nil, err
	}

	outcome := &domain.RepairOutcome{
		RunID: report.RunID,
		Steps: make([]domain.StepResult, len(steps)),
		Log:   []domain.LogEntry{},
	}
	for i, s := range steps {
		outcome.Steps[i] = domain.StepResult{
			Name:      s.name,
			DependsOn: s.dependsOn,
			State:     domain.StatePending,
			History:   []domain.StepState{domain.StatePending},
		}
	}

	logger.Info().Int("orphans", report.OrphanCount).Int("issues", report.TotalIssues).Msg("repair started")

	for i, s := range steps {
		if err := ctx.Err(); err != nil {
			logger.Warn().Err(err).Str("step", string(s.name)).Msg("repair cancelled")
			return outcome, err
		}

		run := &stepRun{result: &outcome.Steps[i], outcome: outcome, logger: logger}
		for _, dep := range s.dependsOn {
			if r, ok := outcome.Step(dep); ok && r.State == domain.StateFailed {
				run.logf(zerolog.WarnLevel, "dependency %s failed, running anyway", dep)
			}
		}

		s.run(ctx, run)
		if !run.result.State.Terminal() {
			run.fail(fmt.Errorf("step ended in state %s", run.result.State))
		}
	}

	outcome.Success = true
	for _, s := range outcome.Steps {
		if s.State != domain.StateDone {
			outcome.Success = false
		}
	}

	logger.Info().
		Bool("success", outcome.Success).
		Int("purged", outcome.PurgedReferences).
		Int("event_stats", outcome.EventStatCount).
		Int("warnings", len(outcome.Warnings)).
		Msg("repair finished")

	return outcome, nil
}

// attempt runs fn with the shared retry policy and moves the step to Retrying before
// the second try.
func (o *RepairOrchestrator) attempt(ctx context.Context, run *stepRun, what string, fn func(context.Context) error) error {
	n, err := withRetry(ctx, o.backoff, fn, func(err error) {
		run.transition(domain.StateRetrying)
		run.logf(zerolog.WarnLevel, "%s failed, retrying: %v", what, err)
	})
	run.result.Attempts += n
	return err
}

func (o *RepairOrchestrator) purge(ctx context.Context, run *stepRun, issues []domain.ValidationIssue) {
	var order []string
	orphans := make(map[string]map[string]struct{})
	for _, issue := range issues {
		if issue.Kind != domain.IssueOrphanedSelection || issue.SelectionID == "" {
			continue
		}
		ids, ok := orphans[issue.SelectionID]
		if !ok {
			ids = make(map[string]struct{})
			orphans[issue.SelectionID] = ids
			order = append(order, issue.SelectionID)
		}
		ids[issue.PlayerID] = struct{}{}
	}

	if len(order) == 0 {
		run.done("no orphaned references to purge")
		return
	}

	var failed []string
	for _, selectionID := range order {
		removed := 0
		err := o.attempt(ctx, run, "purge of selection "+selectionID, func(ctx context.Context) error {
			n, err := o.purgeSelection(ctx, selectionID, orphans[selectionID])
			removed = n
			return err
		})
		if err != nil {
			failed = append(failed, selectionID)
			run.logf(zerolog.ErrorLevel, "selection %s not purged: %v", selectionID, err)
			continue
		}
		run.outcome.PurgedReferences += removed
		run.logf(zerolog.InfoLevel, "selection %s: removed %d references", selectionID, removed)
	}

	if len(failed) > 0 {
		run.fail(fmt.Errorf("%d of %d selections not purged: %s", len(failed), len(order), strings.Join(failed, ", ")))
		return
	}
	run.done(fmt.Sprintf("purged %d references from %d selections", run.outcome.PurgedReferences, len(order)))
}

// purgeSelection re-reads the record so removal matches the current lists, not the
// indices seen at check time.
func (o *RepairOrchestrator) purgeSelection(ctx context.Context, selectionID string, playerIDs map[string]struct{}) (int, error) {
	row, err := o.selections.Get(ctx, selectionID)
	if errors.Is(err, repository.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	positions, fromPositions, err := domain.RemovePlayers(row.PositionsJSON, playerIDs)
	if err != nil {
		return 0, fmt.Errorf("positions: %w", err)
	}
	substitutes, fromSubstitutes, err := domain.RemovePlayers(row.SubstitutesJSON, playerIDs)
	if err != nil {
		return 0, fmt.Errorf("substitutes: %w", err)
	}

	removed := fromPositions + fromSubstitutes
	if removed == 0 {
		return 0, nil
	}
	if err := o.selections.UpdateLists(ctx, selectionID, positions, substitutes); err != nil {
		return 0, err
	}
	return removed, nil
}

func (o *RepairOrchestrator) regenerate(ctx context.Context, run *stepRun) {
	err := o.attempt(ctx, run, "regenerate", o.regenerator.RegenerateEventStats)
	if err == nil {
		run.done("event stats regenerated")
		return
	}

	run.transition(domain.StateFallback)
	run.logf(zerolog.WarnLevel, "regenerate failed (%v), clearing event stats and rebuilding", err)

	if err := o.stats.DeleteAll(ctx); err != nil {
		run.fail(fmt.Errorf("clear event stats: %w", err))
		return
	}
	run.result.Attempts++
	if err := o.regenerator.RegenerateEventStats(ctx); err != nil {
		run.fail(fmt.Errorf("regenerate after clear: %w", err))
		return
	}

	run.warn("event stats were cleared and rebuilt from selections")
	run.done("event stats regenerated after clear")
}

func (o *RepairOrchestrator) recompute(ctx context.Context, run *stepRun, report domain.ReconciliationReport) {
	err := o.attempt(ctx, run, "recompute all aggregates", o.regenerator.RecomputeAllAggregates)
	if err == nil {
		run.done("aggregates recomputed")
		return
	}

	run.transition(domain.StateFallback)
	run.logf(zerolog.WarnLevel, "recompute all aggregates failed (%v), falling back to per-player recompute", err)

	orphaned := make(map[string]struct{}, len(report.OrphanedPlayerIDs))
	for _, id := range report.OrphanedPlayerIDs {
		orphaned[id] = struct{}{}
	}
	var candidates []string
	for _, id := range report.AffectedPlayerIDs {
		if _, ok := orphaned[id]; !ok {
			candidates = append(candidates, id)
		}
	}

	batch := candidates
	if len(batch) > o.batch {
		batch = batch[:o.batch]
	}

	ok, failed := 0, 0
	for _, playerID := range batch {
		run.result.Attempts++
		if err := o.regenerator.RecomputePlayerAggregate(ctx, playerID); err != nil {
			failed++
			run.logf(zerolog.ErrorLevel, "player %s: aggregate recompute failed: %v", playerID, err)
			continue
		}
		ok++
		run.logf(zerolog.InfoLevel, "player %s: aggregate recomputed", playerID)
	}

	run.warn(fmt.Sprintf("per-player recompute covered %d of %d affected players (%d failed, %d over batch limit)",
		ok, len(candidates), failed, len(candidates)-len(batch)))

	if ok == 0 && len(batch) > 0 {
		run.fail(fmt.Errorf("no player aggregate could be recomputed: %w", err))
		return
	}
	run.done(fmt.Sprintf("recomputed %d player aggregates", ok))
}

func (o *RepairOrchestrator) verify(ctx context.Context, run *stepRun) {
	var count int
	err := o.attempt(ctx, run, "count event stats", func(ctx context.Context) (err error) {
		count, err = o.stats.Count(ctx)
		return err
	})
	if err != nil {
		run.fail(err)
		return
	}
	run.outcome.EventStatCount = count
	run.done(fmt.Sprintf("%d event stats present", count))
}
