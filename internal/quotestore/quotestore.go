// Package quotestore implements QuoteStore (spec.md §4.5): persistent
// quotes keyed by (asset_id, day, source), grounded on the teacher's
// GORM-based repository style (internal/repositories/
// vault_transaction_repository.go) rather than its raw-SQL transaction
// repository, since quotes need upsert-on-conflict semantics GORM's
// clause.OnConflict expresses directly.
package quotestore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wealthfolio/portfolio-engine/internal/db"
	apperrors "github.com/wealthfolio/portfolio-engine/internal/errors"
	"github.com/wealthfolio/portfolio-engine/internal/models"
)

// Store is the QuoteStore. Writes are serialized through writeMu per
// spec.md §5 ("all writes are serialized through a single writer");
// reads are unrestricted.
type Store struct {
	db      *db.DB
	writeMu sync.Mutex
}

// New builds a Store over an already-connected database.
func New(database *db.DB) *Store {
	return &Store{db: database}
}

// Upsert writes quotes, updating mutable columns on (id) conflict.
func (s *Store) Upsert(ctx context.Context, quotes []models.Quote) error {
	if len(quotes) == 0 {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	for i := range quotes {
		quotes[i].NormalizeDay()
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"timestamp", "open", "high", "low", "close", "adjclose", "volume", "currency", "notes",
		}),
	}).Create(&quotes).Error
	if err != nil {
		return fmt.Errorf("upsert quotes: %w", err)
	}
	return nil
}

// Latest returns the most recent quote for an asset, optionally
// restricted to a single source.
func (s *Store) Latest(ctx context.Context, assetID string, source *models.QuoteSource) (models.Quote, error) {
	q := s.db.WithContext(ctx).Where("asset_id = ?", assetID)
	if source != nil {
		q = q.Where("source = ?", *source)
	}
	var quote models.Quote
	err := q.Order("day DESC").First(&quote).Error
	if err == gorm.ErrRecordNotFound {
		return models.Quote{}, &apperrors.ErrQuoteMissing{AssetID: assetID, Day: time.Now().UTC()}
	}
	if err != nil {
		return models.Quote{}, fmt.Errorf("latest quote: %w", err)
	}
	return quote, nil
}

// Range returns quotes for an asset between start and end (inclusive),
// ascending by day, optionally restricted to a single source.
func (s *Store) Range(ctx context.Context, assetID string, start, end time.Time, source *models.QuoteSource) ([]models.Quote, error) {
	q := s.db.WithContext(ctx).Where("asset_id = ? AND day BETWEEN ? AND ?", assetID, start, end)
	if source != nil {
		q = q.Where("source = ?", *source)
	}
	var quotes []models.Quote
	if err := q.Order("day ASC").Find(&quotes).Error; err != nil {
		return nil, fmt.Errorf("quote range: %w", err)
	}
	return quotes, nil
}

// LatestBatch returns the most recent quote per asset id in assetIDs;
// assets with no stored quote are simply absent from the result map.
func (s *Store) LatestBatch(ctx context.Context, assetIDs []string) (map[string]models.Quote, error) {
	out := make(map[string]models.Quote, len(assetIDs))
	if len(assetIDs) == 0 {
		return out, nil
	}
	var rows []models.Quote
	err := s.db.WithContext(ctx).
		Where("asset_id IN ? AND day = (SELECT MAX(day) FROM quotes q2 WHERE q2.asset_id = quotes.asset_id)", assetIDs).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("latest batch: %w", err)
	}
	for _, r := range rows {
		existing, ok := out[r.AssetID]
		if !ok || r.Day.After(existing.Day) {
			out[r.AssetID] = r
		}
	}
	return out, nil
}

// LatestWithPrevious returns a LatestQuotePair per asset id, for
// day-change display (spec.md §3).
func (s *Store) LatestWithPrevious(ctx context.Context, assetIDs []string) (map[string]models.LatestQuotePair, error) {
	out := make(map[string]models.LatestQuotePair, len(assetIDs))
	for _, id := range assetIDs {
		var rows []models.Quote
		err := s.db.WithContext(ctx).
			Where("asset_id = ?", id).
			Order("day DESC").
			Limit(2).
			Find(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("latest with previous for %s: %w", id, err)
		}
		if len(rows) == 0 {
			continue
		}
		pair := models.LatestQuotePair{Latest: rows[0]}
		if len(rows) > 1 {
			prev := rows[1]
			pair.Previous = &prev
		}
		out[id] = pair
	}
	return out, nil
}

// AsOfBatch returns, per asset id, the most recent quote with day <=
// asOf; assets with no quote on or before asOf are absent from the
// result map. NetWorthService uses this for its "latest quote on or
// before date" rule (spec.md §4.11), which differs from LatestBatch in
// that it must never look past asOf.
func (s *Store) AsOfBatch(ctx context.Context, assetIDs []string, asOf time.Time) (map[string]models.Quote, error) {
	out := make(map[string]models.Quote, len(assetIDs))
	if len(assetIDs) == 0 {
		return out, nil
	}
	var rows []models.Quote
	err := s.db.WithContext(ctx).
		Where("asset_id IN ? AND day <= ?", assetIDs, asOf).
		Order("day ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("as-of batch: %w", err)
	}
	for _, r := range rows {
		existing, ok := out[r.AssetID]
		if !ok || r.Day.After(existing.Day) {
			out[r.AssetID] = r
		}
	}
	return out, nil
}

// DayBounds reports the earliest and latest stored day for an asset's
// quotes under a given source.
type DayBounds struct {
	MinDay time.Time
	MaxDay time.Time
}

// Bounds returns per-asset (min_day, max_day) for the given source.
func (s *Store) Bounds(ctx context.Context, assetIDs []string, source models.QuoteSource) (map[string]DayBounds, error) {
	out := make(map[string]DayBounds, len(assetIDs))
	if len(assetIDs) == 0 {
		return out, nil
	}
	type row struct {
		AssetID string
		MinDay  time.Time
		MaxDay  time.Time
	}
	var rows []row
	err := s.db.WithContext(ctx).Model(&models.Quote{}).
		Select("asset_id, MIN(day) as min_day, MAX(day) as max_day").
		Where("asset_id IN ? AND source = ?", assetIDs, source).
		Group("asset_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("quote bounds: %w", err)
	}
	for _, r := range rows {
		out[r.AssetID] = DayBounds{MinDay: r.MinDay, MaxDay: r.MaxDay}
	}
	return out, nil
}

// DeleteForAsset removes every stored quote for an asset (used when an
// asset is deleted or re-classified).
func (s *Store) DeleteForAsset(ctx context.Context, assetID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.db.WithContext(ctx).Where("asset_id = ?", assetID).Delete(&models.Quote{}).Error; err != nil {
		return fmt.Errorf("delete quotes for asset: %w", err)
	}
	return nil
}
