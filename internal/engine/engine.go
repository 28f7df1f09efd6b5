// Package engine wires HoldingsCalculator's pure next() step into a
// forward-pass recalculation driven by ActivityStore writes, the way
// the teacher's own write paths trigger dependent recomputation
// (internal/services/investment_service.go recalculating position
// state after a transaction mutation). It is the orchestration spec.md
// §4.7's "an edit/delete triggers reprocessing of every date from
// min(affected_activity_date) to today" describes, sitting between
// ActivityStore and SnapshotStore without either package depending on
// the other directly.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/wealthfolio/portfolio-engine/internal/holdings"
	"github.com/wealthfolio/portfolio-engine/internal/models"
)

// ActivityReader is the subset of activitystore.Store this package reads.
type ActivityReader interface {
	List(ctx context.Context, filter models.ActivityFilter) ([]models.Activity, error)
}

// SnapshotReadWriter is the subset of snapshotstore.Store this package
// reads from and writes to.
type SnapshotReadWriter interface {
	OnDate(ctx context.Context, accountID string, date time.Time) (models.AccountStateSnapshot, error)
	SaveRange(ctx context.Context, accountID string, snapshots []models.AccountStateSnapshot) error
}

// Recalculator drives the per-account forward pass.
type Recalculator struct {
	activities ActivityReader
	snapshots  SnapshotReadWriter
	fx         holdings.FxRater
	now        func() time.Time
}

// New builds a Recalculator. now defaults to time.Now when nil, and is
// only overridable for deterministic tests.
func New(activities ActivityReader, snapshots SnapshotReadWriter, fx holdings.FxRater, now func() time.Time) *Recalculator {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Recalculator{activities: activities, snapshots: snapshots, fx: fx, now: now}
}

// DefaultCurrency is the fallback account currency used only when a
// recompute starts with neither a prior snapshot nor any activity to
// infer one from (an empty account being recomputed speculatively).
// There is no Account model in this schema to carry a native currency
// (spec.md never defines one beyond the account_id string key), so the
// account's currency is inferred from its own activity history instead.
const DefaultCurrency = "USD"

// Recalculate rebuilds accountID's snapshot series for every date from
// fromDate through the later of today or the account's last activity
// date, per spec.md §4.7. Draft activities never affect snapshots
// (spec.md §3: "must be confirmed by the user before affecting
// snapshots"). Returns any HealthIssues HoldingsCalculator surfaced
// while applying activities (e.g. same-date collisions).
func (r *Recalculator) Recalculate(ctx context.Context, accountID string, fromDate time.Time) ([]models.HealthIssue, error) {
	fromDate = truncateToDay(fromDate)

	accountIDFilter := accountID
	activities, err := r.activities.List(ctx, models.ActivityFilter{
		AccountID: &accountIDFilter,
		StartDate: &fromDate,
	})
	if err != nil {
		return nil, fmt.Errorf("recalculate %s: load activities: %w", accountID, err)
	}

	byDay := make(map[string][]models.Activity)
	lastActivityDate := fromDate
	var earliest *models.Activity
	for i := range activities {
		a := activities[i]
		if a.IsDraft {
			continue
		}
		day := truncateToDay(a.ActivityDate)
		byDay[day.Format("2006-01-02")] = append(byDay[day.Format("2006-01-02")], a)
		if day.After(lastActivityDate) {
			lastActivityDate = day
		}
		if earliest == nil || a.ActivityDate.Before(earliest.ActivityDate) {
			earliest = &activities[i]
		}
	}

	prev, err := r.snapshots.OnDate(ctx, accountID, fromDate.AddDate(0, 0, -1))
	if err != nil {
		accountCurrency := DefaultCurrency
		if earliest != nil && earliest.Currency != "" {
			accountCurrency = earliest.Currency
		}
		prev = models.NewEmptySnapshot(accountID, accountCurrency, fromDate.AddDate(0, 0, -1))
	}

	today := truncateToDay(r.now())
	endDate := lastActivityDate
	if today.After(endDate) {
		endDate = today
	}

	var snapshots []models.AccountStateSnapshot
	var issues []models.HealthIssue
	for d := fromDate; !d.After(endDate); d = d.AddDate(0, 0, 1) {
		dayActivities := byDay[d.Format("2006-01-02")]
		next, dayIssues, err := holdings.Next(prev, dayActivities, d, r.fx)
		if err != nil {
			return nil, fmt.Errorf("recalculate %s on %s: %w", accountID, d.Format("2006-01-02"), err)
		}
		snapshots = append(snapshots, next)
		issues = append(issues, dayIssues...)
		prev = next
	}

	if err := r.snapshots.SaveRange(ctx, accountID, snapshots); err != nil {
		return nil, fmt.Errorf("recalculate %s: save snapshots: %w", accountID, err)
	}
	return issues, nil
}

func truncateToDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
