package service

import (
	"sort"

	"squad-reconciler/internal/domain"
)

var (
	allSeverities = []domain.Severity{domain.SeverityCritical, domain.SeverityWarning, domain.SeverityInfo}
	allKinds      = []domain.IssueKind{
		domain.IssueOrphanedSelection,
		domain.IssueMissingPlayer,
		domain.IssueMissingEventStat,
		domain.IssuePositionMismatch,
		domain.IssueMinutesMismatch,
		domain.IssueAggregationError,
		domain.IssueMalformedEntry,
	}
)

// Summarize aggregates a validation into a report. It has no side effects and does not
// touch its inputs; RunID and GeneratedAt are left for the caller.
func Summarize(issues []domain.ValidationIssue, results []domain.CrossValidationResult) domain.ReconciliationReport {
	report := domain.ReconciliationReport{
		TotalChecks: len(results),
		TotalIssues: len(issues),
		BySeverity:  make(map[domain.Severity]int, len(allSeverities)),
		ByKind:      make(map[domain.IssueKind]int, len(allKinds)),
	}
	for _, s := range allSeverities {
		report.BySeverity[s] = 0
	}
	for _, k := range allKinds {
		report.ByKind[k] = 0
	}

	orphaned := make(map[string]struct{})
	affected := make(map[string]struct{})
	for _, issue := range issues {
		report.BySeverity[issue.Severity]++
		report.ByKind[issue.Kind]++

		if issue.Kind == domain.IssueOrphanedSelection {
			report.OrphanCount++
			orphaned[issue.PlayerID] = struct{}{}
		}
		if issue.PlayerID != "" {
			affected[issue.PlayerID] = struct{}{}
		}
	}

	for _, r := range results {
		if r.HasMismatch {
			report.MismatchCount++
		}
	}

	report.OrphanedPlayerIDs = sortedKeys(orphaned)
	report.AffectedPlayerIDs = sortedKeys(affected)
	return report
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
