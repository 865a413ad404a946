package service

import (
	"errors"
	"fmt"

	"squad-reconciler/internal/domain"
)

// ErrNoPriorCheck is returned by RunRepair when the report does not belong to the
// most recent RunCheck.
var ErrNoPriorCheck = errors.New("repair requires a report from the latest check")

const (
	StageConnectivity = "connectivity"
	StagePlayers      = "players"
	StageSelections   = "selections"
	StageEventStats   = "event_stats"
	StageAggregates   = "aggregates"
)

// LoadError aborts the run; no partial report is produced.
type LoadError struct {
	Stage string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("snapshot load failed at %s: %v", e.Stage, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// RepairStepError marks a step that failed after its retry budget. It is recorded in
// the outcome, never returned from RunRepair.
type RepairStepError struct {
	Step domain.StepName
	Err  error
}

func (e *RepairStepError) Error() string {
	return fmt.Sprintf("repair step %s failed: %v", e.Step, e.Err)
}

func (e *RepairStepError) Unwrap() error { return e.Err }

// PartialRepairWarning means data was changed through a fallback path and may be
// incomplete.
type PartialRepairWarning struct {
	Step   domain.StepName
	Reason string
}

func (w *PartialRepairWarning) Error() string {
	return fmt.Sprintf("repair step %s partially applied: %s", w.Step, w.Reason)
}
