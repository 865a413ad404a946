package service

import (
	"context"
	"sync"
	"time"

	"squad-reconciler/internal/constants"
	"squad-reconciler/internal/domain"
	"squad-reconciler/internal/metrics"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// CheckResult is everything one check produced. The engine keeps the latest one so a
// repair can act on the exact issues the caller saw.
type CheckResult struct {
	Report  domain.ReconciliationReport
	Issues  []domain.ValidationIssue
	Results []domain.CrossValidationResult
}

// Engine runs checks and repairs against one store.
//
// Runs are not mutually exclusive: two engines (or processes) repairing the same store
// can interleave, e.g. one purging a reference the other already removed. Repair is
// idempotent, so a further check and repair converges; no locking is attempted.
type Engine struct {
	loader          *Loader
	validator       *Validator
	repairer        *RepairOrchestrator
	metrics         *metrics.Manager
	revalidateDelay time.Duration
	logger          zerolog.Logger

	mu   sync.Mutex
	last *CheckResult
}

func NewEngine(loader *Loader, validator *Validator, repairer *RepairOrchestrator, m *metrics.Manager, settings Settings, logger zerolog.Logger) *Engine {
	return &Engine{
		loader:          loader,
		validator:       validator,
		repairer:        repairer,
		metrics:         m,
		revalidateDelay: settings.RevalidateDelay,
		logger:          logger,
	}
}

// RunCheck loads, validates and summarises. It never writes to the store.
func (e *Engine) RunCheck(ctx context.Context) (domain.ReconciliationReport, error) {
	res, err := e.Check(ctx)
	if err != nil {
		return domain.ReconciliationReport{}, err
	}
	return res.Report, nil
}

// Check is RunCheck with the full issue and comparison lists.
func (e *Engine) Check(ctx context.Context) (*CheckResult, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.CheckTimeout)
	defer cancel()

	start := time.Now()
	runID, err := gonanoid.New()
	if err != nil {
		return nil, err
	}
	logger := e.logger.With().Str("run_id", runID).Logger()

	res, err := e.check(ctx, runID)
	if err != nil {
		e.metrics.RecordCheckError()
		logger.Error().Err(err).Msg("check failed")
		return nil, err
	}

	e.mu.Lock()
	e.last = res
	e.mu.Unlock()

	e.metrics.RecordCheck(&res.Report, time.Since(start))
	logger.Info().
		Int("issues", res.Report.TotalIssues).
		Int("checks", res.Report.TotalChecks).
		Int("orphans", res.Report.OrphanCount).
		Dur("duration", time.Since(start)).
		Msg("check finished")

	return res, nil
}

func (e *Engine) check(ctx context.Context, runID string) (*CheckResult, error) {
	snap, err := e.loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	validation, err := e.validator.Validate(ctx, snap)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := Summarize(validation.Issues, validation.Results)
	report.RunID = runID
	report.GeneratedAt = time.Now().UTC()
	report.ReferencesExamined = validation.ReferencesExamined
	report.OrphanedReferences = validation.OrphanedReferences

	return &CheckResult{
		Report:  report,
		Issues:  validation.Issues,
		Results: validation.Results,
	}, nil
}

// LastCheck returns the most recent successful check, if any.
func (e *Engine) LastCheck() (*CheckResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last, e.last != nil
}

// RunRepair repairs the issues of the check that produced report, waits
// RevalidateDelay and checks once more. report must come from the latest RunCheck.
func (e *Engine) RunRepair(ctx context.Context, report domain.ReconciliationReport) (*domain.RepairOutcome, domain.ReconciliationReport, error) {
	prior, ok := e.LastCheck()
	if !ok || report.RunID == "" || prior.Report.RunID != report.RunID {
		return nil, domain.ReconciliationReport{}, ErrNoPriorCheck
	}

	ctx, cancel := context.WithTimeout(ctx, constants.RepairTimeout)
	defer cancel()

	start := time.Now()
	logger := e.logger.With().Str("run_id", report.RunID).Logger()

	outcome, err := e.repairer.Repair(ctx, prior.Report, prior.Issues)
	if err != nil {
		e.metrics.RecordRepairError()
		return outcome, domain.ReconciliationReport{}, err
	}

	if e.revalidateDelay > 0 {
		timer := time.NewTimer(e.revalidateDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			e.metrics.RecordRepairError()
			return outcome, domain.ReconciliationReport{}, ctx.Err()
		case <-timer.C:
		}
	}

	post, err := e.Check(ctx)
	if err != nil {
		e.metrics.RecordRepairError()
		logger.Error().Err(err).Msg("re-validation failed")
		return outcome, domain.ReconciliationReport{}, err
	}

	e.metrics.RecordRepair(outcome, time.Since(start))
	logger.Info().
		Str("post_run_id", post.Report.RunID).
		Int("issues_before", prior.Report.TotalIssues).
		Int("issues_after", post.Report.TotalIssues).
		Bool("success", outcome.Success).
		Msg("repair and re-validation finished")

	return outcome, post.Report, nil
}
