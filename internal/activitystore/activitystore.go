// Package activitystore implements ActivityStore (spec.md §4's activity
// persistence): CRUD over Activity with validation, draft-flag support,
// and a recomputation hook fired on edit/delete so HoldingsCalculator's
// forward pass can be re-run from the earliest touched date. Grounded on
// the teacher's internal/repositories/transaction_repository.go (the
// CRUD/filter/recompute shape) reworked onto GORM instead of raw SQL to
// match the rest of the new stores.
package activitystore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wealthfolio/portfolio-engine/internal/db"
	apperrors "github.com/wealthfolio/portfolio-engine/internal/errors"
	"github.com/wealthfolio/portfolio-engine/internal/models"
)

// RecomputeHook is invoked after a mutation with the account and the
// earliest date whose snapshot series must be recalculated. Wired to
// HoldingsCalculator + SnapshotStore by the caller that constructs the
// Store (cmd/server wiring), keeping this package free of a dependency
// on the calculator.
type RecomputeHook func(ctx context.Context, accountID string, fromDate time.Time)

// Store is the ActivityStore.
type Store struct {
	db      *db.DB
	writeMu sync.Mutex
	onWrite RecomputeHook
}

// New builds a Store. onWrite may be nil if recomputation is driven
// externally (e.g. by a batch import job that recomputes once at the end).
func New(database *db.DB, onWrite RecomputeHook) *Store {
	return &Store{db: database, onWrite: onWrite}
}

// Create validates and inserts a single activity.
func (s *Store) Create(ctx context.Context, a *models.Activity) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	s.writeMu.Lock()
	err := s.db.WithContext(ctx).Create(a).Error
	s.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("create activity: %w", err)
	}

	s.notify(ctx, a.AccountID, a.ActivityDate)
	return nil
}

// CreateBatch validates and inserts activities in one transaction,
// notifying the recompute hook once per distinct account with the
// earliest touched date (import-time fast path).
func (s *Store) CreateBatch(ctx context.Context, activities []*models.Activity) error {
	if len(activities) == 0 {
		return nil
	}
	for _, a := range activities {
		if err := a.Validate(); err != nil {
			return err
		}
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
	}

	s.writeMu.Lock()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, a := range activities {
			if err := tx.Create(a).Error; err != nil {
				return fmt.Errorf("create activity %s: %w", a.ID, err)
			}
		}
		return nil
	})
	s.writeMu.Unlock()
	if err != nil {
		return err
	}

	earliest := make(map[string]time.Time)
	for _, a := range activities {
		if d, ok := earliest[a.AccountID]; !ok || a.ActivityDate.Before(d) {
			earliest[a.AccountID] = a.ActivityDate
		}
	}
	for accountID, date := range earliest {
		s.notify(ctx, accountID, date)
	}
	return nil
}

// GetByID returns a single activity.
func (s *Store) GetByID(ctx context.Context, id string) (*models.Activity, error) {
	var a models.Activity
	err := s.db.WithContext(ctx).First(&a, "id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, &apperrors.ErrNotFound{Kind: "Activity", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get activity: %w", err)
	}
	return &a, nil
}

// List returns activities matching filter, ordered by activity_date
// ascending, then type priority, then id (HoldingsCalculator's required
// order, via models.ByDateThenPriority).
func (s *Store) List(ctx context.Context, filter models.ActivityFilter) ([]models.Activity, error) {
	q := s.db.WithContext(ctx).Model(&models.Activity{})
	q = applyFilter(q, filter)

	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var rows []models.Activity
	if err := q.Order("activity_date ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	return models.ByDateThenPriority(rows), nil
}

// GetCount returns the number of activities matching filter, ignoring
// Limit/Offset.
func (s *Store) GetCount(ctx context.Context, filter models.ActivityFilter) (int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Activity{})
	q = applyFilter(q, filter)
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count activities: %w", err)
	}
	return count, nil
}

func applyFilter(q *gorm.DB, filter models.ActivityFilter) *gorm.DB {
	if filter.AccountID != nil {
		q = q.Where("account_id = ?", *filter.AccountID)
	}
	if filter.AssetID != nil {
		q = q.Where("asset_id = ?", *filter.AssetID)
	}
	if len(filter.Types) > 0 {
		q = q.Where("activity_type IN ?", filter.Types)
	}
	if filter.StartDate != nil {
		q = q.Where("activity_date >= ?", *filter.StartDate)
	}
	if filter.EndDate != nil {
		q = q.Where("activity_date <= ?", *filter.EndDate)
	}
	if !filter.IncludeDraft {
		q = q.Where("is_draft = ?", false)
	}
	return q
}

// Update overwrites an activity, then recomputes from the earlier of
// the old and new activity_date (an edit can move an activity earlier
// or later in time).
func (s *Store) Update(ctx context.Context, a *models.Activity) error {
	if err := a.Validate(); err != nil {
		return err
	}

	existing, err := s.GetByID(ctx, a.ID)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	err = s.db.WithContext(ctx).Save(a).Error
	s.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("update activity: %w", err)
	}

	from := a.ActivityDate
	if existing.ActivityDate.Before(from) {
		from = existing.ActivityDate
	}
	s.notify(ctx, a.AccountID, from)
	return nil
}

// Delete removes an activity and recomputes from its activity_date
// forward.
func (s *Store) Delete(ctx context.Context, id string) error {
	existing, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	err = s.db.WithContext(ctx).Delete(&models.Activity{}, "id = ?", id).Error
	s.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("delete activity: %w", err)
	}

	s.notify(ctx, existing.AccountID, existing.ActivityDate)
	return nil
}

// ConfirmDraft clears is_draft on a broker-sync-imported activity so it
// starts affecting snapshots.
func (s *Store) ConfirmDraft(ctx context.Context, id string) error {
	existing, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	err = s.db.WithContext(ctx).Model(&models.Activity{}).Where("id = ?", id).Update("is_draft", false).Error
	s.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("confirm draft: %w", err)
	}

	s.notify(ctx, existing.AccountID, existing.ActivityDate)
	return nil
}

func (s *Store) notify(ctx context.Context, accountID string, fromDate time.Time) {
	if s.onWrite != nil {
		s.onWrite(ctx, accountID, fromDate)
	}
}
