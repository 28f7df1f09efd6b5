// Package assetcatalog implements AssetCatalog (spec.md §2's component
// table: "Asset records + metadata + auto-classification"). Persistence
// follows the teacher's GORM repository style; the classification rule
// table is grounded on original_source/crates/core/src/assets/
// auto_classification.rs, scaled down from that file's full
// taxonomy-assignment system (sectors/regions/GICS) to the single
// concern SPEC_FULL.md actually calls for: inferring Asset.Kind from a
// provider's quote_type/symbol shape when a caller hasn't set one.
package assetcatalog

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"gorm.io/gorm"

	"github.com/wealthfolio/portfolio-engine/internal/db"
	apperrors "github.com/wealthfolio/portfolio-engine/internal/errors"
	"github.com/wealthfolio/portfolio-engine/internal/idcodec"
	"github.com/wealthfolio/portfolio-engine/internal/models"
)

// Catalog is the AssetCatalog.
type Catalog struct {
	db      *db.DB
	writeMu sync.Mutex
}

// New builds a Catalog.
func New(database *db.DB) *Catalog {
	return &Catalog{db: database}
}

// Upsert inserts or updates an asset record by id.
func (c *Catalog) Upsert(ctx context.Context, asset *models.Asset) error {
	if _, err := idcodec.Parse(asset.ID); err != nil {
		return err
	}
	if err := asset.Validate(); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.db.WithContext(ctx).Save(asset).Error; err != nil {
		return fmt.Errorf("upsert asset: %w", err)
	}
	return nil
}

// Get returns a single asset by id.
func (c *Catalog) Get(ctx context.Context, id string) (*models.Asset, error) {
	var a models.Asset
	err := c.db.WithContext(ctx).First(&a, "id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, &apperrors.ErrNotFound{Kind: "Asset", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get asset: %w", err)
	}
	return &a, nil
}

// List returns all active assets, optionally filtered by kind.
func (c *Catalog) List(ctx context.Context, kind *models.AssetKind) ([]models.Asset, error) {
	q := c.db.WithContext(ctx).Where("is_active = ?", true)
	if kind != nil {
		q = q.Where("kind = ?", *kind)
	}
	var assets []models.Asset
	if err := q.Order("id ASC").Find(&assets).Error; err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	return assets, nil
}

// Deactivate marks an asset inactive rather than deleting it, so
// historical activities/snapshots referencing it remain valid.
func (c *Catalog) Deactivate(ctx context.Context, id string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	err := c.db.WithContext(ctx).Model(&models.Asset{}).Where("id = ?", id).Update("is_active", false).Error
	if err != nil {
		return fmt.Errorf("deactivate asset: %w", err)
	}
	return nil
}

// ClassificationInput is the subset of a provider profile used to infer
// an asset's Kind, grounded on auto_classification.rs's
// ClassificationInput (quote_type/sector/country), narrowed to the
// single field the Kind enum needs.
type ClassificationInput struct {
	QuoteType string // e.g. "EQUITY", "ETF", "MUTUALFUND", "CRYPTOCURRENCY", "CURRENCY", "BOND", "FUTURE"
}

// Classify infers an AssetKind from a provider's quote_type, mirroring
// auto_classification.rs's map_quote_type_to_instrument_type, narrowed
// to this catalog's flatter Kind enum. Returns ok=false (leave
// unclassified) for types the spec doesn't model, e.g. Yahoo's
// "ECNQUOTE"/"NONE".
func Classify(in ClassificationInput) (models.AssetKind, bool) {
	switch strings.ToUpper(in.QuoteType) {
	case "EQUITY":
		return models.AssetSecurity, true
	case "ETF":
		return models.AssetEtf, true
	case "MUTUALFUND", "MUTUAL FUND":
		return models.AssetFund, true
	case "BOND":
		return models.AssetBond, true
	case "CRYPTOCURRENCY", "CRYPTO":
		return models.AssetCrypto, true
	case "OPTION":
		return models.AssetOption, true
	case "FUTURE", "FUTURES":
		return models.AssetFuture, true
	case "CURRENCY", "FOREX", "FX":
		return models.AssetFxRate, true
	default:
		return "", false
	}
}

// ClassifyAndApply classifies asset in place if it carries no kind yet
// (Other is treated as unset), returning whether a classification was
// applied.
func ClassifyAndApply(asset *models.Asset, in ClassificationInput) bool {
	if asset.Kind != "" && asset.Kind != models.AssetOther {
		return false
	}
	kind, ok := Classify(in)
	if !ok {
		return false
	}
	asset.Kind = kind
	return true
}
