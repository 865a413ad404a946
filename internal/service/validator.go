package service

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"time"

	"squad-reconciler/internal/constants"
	"squad-reconciler/internal/domain"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Validation is the raw output of one validator run, before summarising.
type Validation struct {
	Issues             []domain.ValidationIssue
	Results            []domain.CrossValidationResult
	ReferencesExamined int
	OrphanedReferences int
}

type Validator struct {
	workers int
	logger  zerolog.Logger
}

func NewValidator(settings Settings, logger zerolog.Logger) *Validator {
	workers := settings.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Validator{
		workers: workers,
		logger:  logger,
	}
}

// one non-substitute entry of an existing player, compared in pass B
type comparison struct {
	selection *domain.SelectionRecord
	entry     domain.PositionEntry
}

func (v *Validator) Validate(ctx context.Context, snap *Snapshot) (*Validation, error) {
	start := time.Now()
	out := &Validation{}

	// pass A: references
	var pairs []comparison
	for i := range snap.Selections {
		sel := &snap.Selections[i]

		for _, entry := range sel.Positions {
			out.ReferencesExamined++
			if !snap.HasPlayer(entry.PlayerID) {
				out.OrphanedReferences++
				out.Issues = append(out.Issues, orphanIssue(sel, entry.PlayerID, domain.ListPositions, entry.Index))
				continue
			}
			if !entry.IsSubstitute {
				pairs = append(pairs, comparison{selection: sel, entry: entry})
			}
		}

		for _, sub := range sel.Substitutes {
			out.ReferencesExamined++
			if !snap.HasPlayer(sub.PlayerID) {
				out.OrphanedReferences++
				out.Issues = append(out.Issues, orphanIssue(sel, sub.PlayerID, domain.ListSubstitutes, sub.Index))
			}
		}

		for _, bad := range sel.Malformed {
			out.Issues = append(out.Issues, malformedIssue(sel, bad))
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// pass B: selection vs derived vs aggregate
	results := make([]domain.CrossValidationResult, len(pairs))
	found := make([][]domain.ValidationIssue, len(pairs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.workers)
	for i := range pairs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i], found[i] = compare(snap, pairs[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	missingStat := make(map[string]struct{})
	for _, issues := range found {
		for _, issue := range issues {
			if issue.Kind == domain.IssueMissingEventStat {
				missingStat[issue.PlayerID] = struct{}{}
			}
			out.Issues = append(out.Issues, issue)
		}
	}
	out.Results = results

	// players that never accrued stats; a missing_event_stat already covers the cause
	for _, id := range snap.PlayerIDs {
		if _, ok := snap.PlayersWithStats[id]; ok {
			continue
		}
		if _, ok := missingStat[id]; ok {
			continue
		}
		out.Issues = append(out.Issues, domain.ValidationIssue{
			Kind:        domain.IssueMissingPlayer,
			Severity:    domain.SeverityWarning,
			Description: fmt.Sprintf("player %s (%s) has no event stats", id, snap.Players[id].Name),
			PlayerID:    id,
		})
	}

	SortIssues(out.Issues)

	v.logger.Info().
		Int("references", out.ReferencesExamined).
		Int("orphaned", out.OrphanedReferences).
		Int("comparisons", len(out.Results)).
		Int("issues", len(out.Issues)).
		Int("workers", v.workers).
		Dur("duration", time.Since(start)).
		Msg("validation finished")

	return out, nil
}

func compare(snap *Snapshot, c comparison) (domain.CrossValidationResult, []domain.ValidationIssue) {
	sel, entry := c.selection, c.entry
	expected := sel.ExpectedMinutes(entry)

	result := domain.CrossValidationResult{
		EventID:           sel.EventID,
		PlayerID:          entry.PlayerID,
		SelectionID:       sel.ID,
		SelectionPosition: entry.Position,
		ExpectedMinutes:   expected,
	}

	issue := func(kind domain.IssueKind, severity domain.Severity, description string, details map[string]any) domain.ValidationIssue {
		return domain.ValidationIssue{
			Kind:        kind,
			Severity:    severity,
			Description: description,
			EventID:     sel.EventID,
			PlayerID:    entry.PlayerID,
			SelectionID: sel.ID,
			Details:     details,
		}
	}

	stat, ok := snap.Stats[domain.StatKey{EventID: sel.EventID, PlayerID: entry.PlayerID}]
	if !ok {
		result.HasMismatch = true
		return result, []domain.ValidationIssue{issue(
			domain.IssueMissingEventStat,
			domain.SeverityCritical,
			fmt.Sprintf("no event stat for player %s in %s", entry.PlayerID, eventLabel(sel)),
			map[string]any{
				"position":        entry.Position,
				"expectedMinutes": expected,
			},
		)}
	}

	result.HasEventStat = true
	result.StatPosition = stat.Position
	result.StatMinutes = stat.MinutesPlayed

	var issues []domain.ValidationIssue

	if stat.Position != entry.Position {
		issues = append(issues, issue(
			domain.IssuePositionMismatch,
			domain.SeverityCritical,
			fmt.Sprintf("player %s selected at %s but stat records %s in %s", entry.PlayerID, entry.Position, stat.Position, eventLabel(sel)),
			map[string]any{
				"selectionPosition": entry.Position,
				"statPosition":      stat.Position,
			},
		))
	}

	diff := abs(stat.MinutesPlayed - expected)
	if !entry.IsSubstitute && diff > constants.MinutesTolerance {
		issues = append(issues, issue(
			domain.IssueMinutesMismatch,
			domain.SeverityWarning,
			fmt.Sprintf("player %s minutes differ by %d in %s", entry.PlayerID, diff, eventLabel(sel)),
			map[string]any{
				"selectionMinutes": expected,
				"statMinutes":      stat.MinutesPlayed,
				"difference":       diff,
			},
		))
	}

	if agg, ok := snap.Aggregates[entry.PlayerID]; ok {
		result.AggregateMinutes = agg.MinutesByPosition[stat.Position]
	}
	if stat.MinutesPlayed > 0 && result.AggregateMinutes == 0 {
		issues = append(issues, issue(
			domain.IssueAggregationError,
			domain.SeverityWarning,
			fmt.Sprintf("player %s has %d minutes at %s but no aggregate entry", entry.PlayerID, stat.MinutesPlayed, stat.Position),
			map[string]any{
				"position":         stat.Position,
				"statMinutes":      stat.MinutesPlayed,
				"aggregateMinutes": result.AggregateMinutes,
			},
		))
	}

	result.HasMismatch = len(issues) > 0
	return result, issues
}

func orphanIssue(sel *domain.SelectionRecord, playerID, list string, index int) domain.ValidationIssue {
	return domain.ValidationIssue{
		Kind:        domain.IssueOrphanedSelection,
		Severity:    domain.SeverityCritical,
		Description: fmt.Sprintf("selection %s references unknown player %s in %s", sel.ID, playerID, list),
		EventID:     sel.EventID,
		PlayerID:    playerID,
		SelectionID: sel.ID,
		Details: map[string]any{
			"list":          list,
			"positionIndex": index,
			"event":         eventLabel(sel),
		},
	}
}

func malformedIssue(sel *domain.SelectionRecord, bad domain.MalformedEntry) domain.ValidationIssue {
	return domain.ValidationIssue{
		Kind:        domain.IssueMalformedEntry,
		Severity:    domain.SeverityInfo,
		Description: fmt.Sprintf("selection %s has an unreadable %s entry: %s", sel.ID, bad.List, bad.Reason),
		EventID:     sel.EventID,
		SelectionID: sel.ID,
		Details: map[string]any{
			"list":   bad.List,
			"index":  bad.Index,
			"reason": bad.Reason,
			"raw":    bad.Raw,
		},
	}
}

// SortIssues orders by event id, player id, then kind. Issues without an event go
// last. The sort is stable so ties keep iteration order.
func SortIssues(issues []domain.ValidationIssue) {
	sort.SliceStable(issues, func(i, j int) bool {
		a, b := issues[i], issues[j]
		if (a.EventID == "") != (b.EventID == "") {
			return b.EventID == ""
		}
		if a.EventID != b.EventID {
			return a.EventID < b.EventID
		}
		if a.PlayerID != b.PlayerID {
			return a.PlayerID < b.PlayerID
		}
		return a.Kind.Rank() < b.Kind.Rank()
	})
}

func eventLabel(sel *domain.SelectionRecord) string {
	ev := sel.Event
	if ev.Title == "" {
		return "event " + sel.EventID
	}
	label := ev.Title
	if ev.Opponent != "" {
		label += " vs " + ev.Opponent
	}
	if !ev.Date.IsZero() {
		label += " on " + ev.Date.Format("2006-01-02")
	}
	return label
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
