package domain

import (
	"time"
)

type IssueKind string

const (
	IssueOrphanedSelection IssueKind = "orphaned_selection"
	IssueMissingPlayer     IssueKind = "missing_player"
	IssueMissingEventStat  IssueKind = "missing_event_stat"
	IssuePositionMismatch  IssueKind = "position_mismatch"
	IssueMinutesMismatch   IssueKind = "minutes_mismatch"
	IssueAggregationError  IssueKind = "aggregation_error"
	IssueMalformedEntry    IssueKind = "malformed_entry"
)

// order used as the last sort key for issues
var issueKindRank = map[IssueKind]int{
	IssueOrphanedSelection: 0,
	IssueMissingPlayer:     1,
	IssueMissingEventStat:  2,
	IssuePositionMismatch:  3,
	IssueMinutesMismatch:   4,
	IssueAggregationError:  5,
	IssueMalformedEntry:    6,
}

func (k IssueKind) Rank() int {
	if r, ok := issueKindRank[k]; ok {
		return r
	}
	return len(issueKindRank)
}

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

type ValidationIssue struct {
	Kind        IssueKind      `json:"kind"`
	Severity    Severity       `json:"severity"`
	Description string         `json:"description"`
	EventID     string         `json:"eventId,omitempty"`
	PlayerID    string         `json:"playerId,omitempty"`
	SelectionID string         `json:"selectionId,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
}

// CrossValidationResult is the three-way view of one compared selection entry.
type CrossValidationResult struct {
	EventID           string `json:"eventId"`
	PlayerID          string `json:"playerId"`
	SelectionID       string `json:"selectionId"`
	SelectionPosition string `json:"selectionPosition"`
	ExpectedMinutes   int    `json:"expectedMinutes"`
	HasEventStat      bool   `json:"hasEventStat"`
	StatPosition      string `json:"statPosition,omitempty"`
	StatMinutes       int    `json:"statMinutes"`
	AggregateMinutes  int    `json:"aggregateMinutes"`
	HasMismatch       bool   `json:"hasMismatch"`
}

type ReconciliationReport struct {
	RunID              string            `json:"runId"`
	GeneratedAt        time.Time         `json:"generatedAt"`
	TotalChecks        int               `json:"totalChecks"`
	TotalIssues        int               `json:"totalIssues"`
	BySeverity         map[Severity]int  `json:"bySeverity"`
	ByKind             map[IssueKind]int `json:"byKind"`
	OrphanCount        int               `json:"orphanCount"`
	OrphanedPlayerIDs  []string          `json:"orphanedPlayerIds"`
	MismatchCount      int               `json:"mismatchCount"`
	AffectedPlayerIDs  []string          `json:"affectedPlayerIds"`
	ReferencesExamined int               `json:"referencesExamined"`
	OrphanedReferences int               `json:"orphanedReferences"`
}

type StepName string

const (
	StepPurge      StepName = "purge"
	StepRegenerate StepName = "regenerate"
	StepRecompute  StepName = "recompute"
	StepVerify     StepName = "verify"
)

// StepState moves Pending -> Retrying -> Fallback -> Done|Failed; intermediate
// states are skipped when an attempt succeeds.
type StepState string

const (
	StatePending  StepState = "pending"
	StateRetrying StepState = "retrying"
	StateFallback StepState = "fallback"
	StateDone     StepState = "done"
	StateFailed   StepState = "failed"
)

func (s StepState) Terminal() bool {
	return s == StateDone || s == StateFailed
}

type StepResult struct {
	Name      StepName    `json:"name"`
	DependsOn []StepName  `json:"dependsOn,omitempty"`
	State     StepState   `json:"state"`
	History   []StepState `json:"history"`
	Attempts  int         `json:"attempts"`
	Error     string      `json:"error,omitempty"`
	Warning   string      `json:"warning,omitempty"`
}

type LogEntry struct {
	Time    time.Time `json:"time"`
	Step    StepName  `json:"step"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

type RepairOutcome struct {
	RunID            string       `json:"runId"`
	Steps            []StepResult `json:"steps"`
	Log              []LogEntry   `json:"log"`
	PurgedReferences int          `json:"purgedReferences"`
	EventStatCount   int          `json:"eventStatCount"`
	Warnings         []string     `json:"warnings,omitempty"`
	Success          bool         `json:"success"`
}

func (o *RepairOutcome) Step(name StepName) (StepResult, bool) {
	for _, s := range o.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return StepResult{}, false
}
