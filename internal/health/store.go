package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm/clause"

	"github.com/wealthfolio/portfolio-engine/internal/db"
	apperrors "github.com/wealthfolio/portfolio-engine/internal/errors"
	"github.com/wealthfolio/portfolio-engine/internal/models"
)

// Store persists HealthIssue rows so dismissals survive across check
// runs, and auto-revives a dismissed issue when its underlying
// condition's data_hash changes (spec.md §4.12), via
// models.HealthIssue.Revives.
type Store struct {
	db      *db.DB
	writeMu sync.Mutex
}

// NewStore builds a Store over an already-connected database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Reconcile replaces the stored issue set with freshly computed ones:
// issues whose ID already exists keep their CreatedAt and Dismissed
// state (unless Revives reports the condition changed), issues no
// longer present are deleted as resolved, and everything else is a
// plain insert. Returns the reconciled rows as persisted.
func (s *Store) Reconcile(ctx context.Context, fresh []models.HealthIssue) ([]models.HealthIssue, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var existing []models.HealthIssue
	if err := s.db.WithContext(ctx).Find(&existing).Error; err != nil {
		return nil, fmt.Errorf("load existing health issues: %w", err)
	}
	byID := make(map[string]models.HealthIssue, len(existing))
	for _, e := range existing {
		byID[e.ID] = e
	}

	freshIDs := make(map[string]bool, len(fresh))
	now := time.Now().UTC()
	for i := range fresh {
		freshIDs[fresh[i].ID] = true
		prior, ok := byID[fresh[i].ID]
		if !ok {
			fresh[i].CreatedAt = now
			continue
		}
		fresh[i].CreatedAt = prior.CreatedAt
		fresh[i].Dismissed = prior.Dismissed && !prior.Revives(fresh[i].DataHash)
	}

	var stale []string
	for id := range byID {
		if !freshIDs[id] {
			stale = append(stale, id)
		}
	}

	// Deletion of resolved issues and the upsert of current ones are
	// independent writes; run both and combine any failures rather than
	// abandoning the upsert just because cleanup hit an error (or vice
	// versa), so a transient failure in one never silently masks the
	// other's outcome.
	var errs error
	if len(stale) > 0 {
		if err := s.db.WithContext(ctx).Where("id IN ?", stale).Delete(&models.HealthIssue{}).Error; err != nil {
			errs = multierr.Append(errs, fmt.Errorf("delete resolved health issues: %w", err))
		}
	}
	if len(fresh) > 0 {
		err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"severity", "category", "title", "message", "affected_items",
				"data_hash", "fix_action", "dismissed", "updated_at",
			}),
		}).Create(&fresh).Error
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("upsert health issues: %w", err))
		}
	}
	if errs != nil {
		return nil, errs
	}
	return fresh, nil
}

// List returns stored issues, optionally including dismissed ones,
// ordered by severity (Critical first) then title.
func (s *Store) List(ctx context.Context, includeDismissed bool) ([]models.HealthIssue, error) {
	q := s.db.WithContext(ctx)
	if !includeDismissed {
		q = q.Where("dismissed = ?", false)
	}
	var rows []models.HealthIssue
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list health issues: %w", err)
	}
	sort.Slice(rows, func(i, j int) bool {
		si, sj := severityRank(rows[i].Severity), severityRank(rows[j].Severity)
		if si != sj {
			return si > sj
		}
		return rows[i].Title < rows[j].Title
	})
	return rows, nil
}

// Dismiss marks a stored issue dismissed; it auto-revives on the next
// Reconcile whose fresh DataHash differs from the dismissed row's.
func (s *Store) Dismiss(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	result := s.db.WithContext(ctx).Model(&models.HealthIssue{}).Where("id = ?", id).Update("dismissed", true)
	if result.Error != nil {
		return fmt.Errorf("dismiss health issue: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return &apperrors.ErrNotFound{Kind: "HealthIssue", ID: id}
	}
	return nil
}

func severityRank(s models.HealthSeverity) int {
	switch s {
	case models.SeverityCritical:
		return 3
	case models.SeverityError:
		return 2
	case models.SeverityWarning:
		return 1
	default:
		return 0
	}
}
