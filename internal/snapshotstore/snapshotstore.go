// Package snapshotstore implements SnapshotStore (spec.md §4.8):
// immutable per-account daily snapshots plus a single-pass TOTAL rollup
// across accounts. Grounded on the teacher's GORM repository style, the
// same as quotestore/activitystore, with save_range's "atomically
// replace" semantics taken from the teacher's transactional batch-write
// pattern in internal/repositories/vault_transaction_repository.go.
package snapshotstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/wealthfolio/portfolio-engine/internal/db"
	apperrors "github.com/wealthfolio/portfolio-engine/internal/errors"
	"github.com/wealthfolio/portfolio-engine/internal/models"
)

// Store is the SnapshotStore. Writes are serialized through writeMu per
// spec.md §5.
type Store struct {
	db      *db.DB
	writeMu sync.Mutex
}

// New builds a Store over an already-connected database.
func New(database *db.DB) *Store {
	return &Store{db: database}
}

// SaveRange atomically replaces any existing snapshots for accountID
// whose date falls within [min(snapshots.SnapshotDate), max(...)],
// then inserts the given snapshots, inside a single transaction.
func (s *Store) SaveRange(ctx context.Context, accountID string, snapshots []models.AccountStateSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	start, end := snapshots[0].SnapshotDate, snapshots[0].SnapshotDate
	for _, snap := range snapshots {
		if snap.SnapshotDate.Before(start) {
			start = snap.SnapshotDate
		}
		if snap.SnapshotDate.After(end) {
			end = snap.SnapshotDate
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account_id = ? AND snapshot_date BETWEEN ? AND ?", accountID, start, end).
			Delete(&models.AccountStateSnapshot{}).Error; err != nil {
			return fmt.Errorf("delete existing snapshots: %w", err)
		}
		if err := tx.Create(&snapshots).Error; err != nil {
			return fmt.Errorf("insert snapshots: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save range: %w", err)
	}
	return nil
}

// Latest returns the most recent snapshot for an account.
func (s *Store) Latest(ctx context.Context, accountID string) (models.AccountStateSnapshot, error) {
	var snap models.AccountStateSnapshot
	err := s.db.WithContext(ctx).Where("account_id = ?", accountID).Order("snapshot_date DESC").First(&snap).Error
	if err == gorm.ErrRecordNotFound {
		return models.AccountStateSnapshot{}, &apperrors.ErrNotFound{Kind: "Snapshot", ID: accountID}
	}
	if err != nil {
		return models.AccountStateSnapshot{}, fmt.Errorf("latest snapshot: %w", err)
	}
	return snap, nil
}

// OnDate returns the snapshot for an account on an exact date.
func (s *Store) OnDate(ctx context.Context, accountID string, date time.Time) (models.AccountStateSnapshot, error) {
	var snap models.AccountStateSnapshot
	err := s.db.WithContext(ctx).Where("account_id = ? AND snapshot_date = ?", accountID, date).First(&snap).Error
	if err == gorm.ErrRecordNotFound {
		return models.AccountStateSnapshot{}, &apperrors.ErrNotFound{Kind: "Snapshot", ID: models.SnapshotID(accountID, date)}
	}
	if err != nil {
		return models.AccountStateSnapshot{}, fmt.Errorf("snapshot on date: %w", err)
	}
	return snap, nil
}

// Between returns snapshots for an account within [start, end], ascending.
func (s *Store) Between(ctx context.Context, accountID string, start, end time.Time) ([]models.AccountStateSnapshot, error) {
	var snaps []models.AccountStateSnapshot
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND snapshot_date BETWEEN ? AND ?", accountID, start, end).
		Order("snapshot_date ASC").
		Find(&snaps).Error
	if err != nil {
		return nil, fmt.Errorf("snapshots between: %w", err)
	}
	return snaps, nil
}

// LatestForMany returns the most recent snapshot on or before
// beforeDate, per account id.
func (s *Store) LatestForMany(ctx context.Context, accountIDs []string, beforeDate time.Time) (map[string]models.AccountStateSnapshot, error) {
	out := make(map[string]models.AccountStateSnapshot, len(accountIDs))
	if len(accountIDs) == 0 {
		return out, nil
	}
	var rows []models.AccountStateSnapshot
	err := s.db.WithContext(ctx).
		Where("account_id IN ? AND snapshot_date <= ?", accountIDs, beforeDate).
		Order("snapshot_date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("latest for many: %w", err)
	}
	for _, r := range rows {
		existing, ok := out[r.AccountID]
		if !ok || r.SnapshotDate.After(existing.SnapshotDate) {
			out[r.AccountID] = r
		}
	}
	return out, nil
}

// FxRater converts an amount denominated in from into to as of a date;
// satisfied by internal/fxcache.Cache.
type FxRater interface {
	Rate(from, to string, asOf time.Time) (decimal.Decimal, error)
}

// RecomputeTotal builds and saves the synthetic TOTAL snapshot for
// date, summing every real account's latest snapshot on or before date
// (via LatestForMany), converted to
// baseCurrency, per spec.md §4.8 ("TOTAL[d] = sum over accounts of
// snapshot[d].total_value × fx_to_base, net_contribution summed
// analogously"). Because SnapshotStore has no quote access, "value" at
// this layer is cost basis — the rollup ValuationService performs
// later re-prices TOTAL using market values; this pass keeps TOTAL's
// cost-basis/contribution columns dense for accounts that report no
// activity on date.
func (s *Store) RecomputeTotal(ctx context.Context, accountIDs []string, date time.Time, baseCurrency string, fx FxRater) (models.AccountStateSnapshot, error) {
	total := models.NewEmptySnapshot(models.TotalAccountID, baseCurrency, date)

	latest, err := s.LatestForMany(ctx, accountIDs, date)
	if err != nil {
		return models.AccountStateSnapshot{}, err
	}

	for _, accountID := range accountIDs {
		snap, ok := latest[accountID]
		if !ok {
			continue
		}
		rate, err := fx.Rate(snap.Currency, baseCurrency, date)
		if err != nil {
			return models.AccountStateSnapshot{}, fmt.Errorf("recompute total fx %s->%s: %w", snap.Currency, baseCurrency, err)
		}
		total.CostBasis = total.CostBasis.Add(snap.CostBasis.Mul(rate))
		total.NetContribution = total.NetContribution.Add(snap.NetContribution.Mul(rate))
		for ccy, amt := range snap.CashBalances {
			cashRate, err := fx.Rate(ccy, baseCurrency, date)
			if err != nil {
				return models.AccountStateSnapshot{}, fmt.Errorf("recompute total cash fx %s->%s: %w", ccy, baseCurrency, err)
			}
			total.CashBalances[baseCurrency] = total.CashBalances[baseCurrency].Add(amt.Mul(cashRate))
		}
	}

	total.CalculatedAt = date
	if err := s.SaveRange(ctx, models.TotalAccountID, []models.AccountStateSnapshot{total}); err != nil {
		return models.AccountStateSnapshot{}, err
	}
	return total, nil
}
