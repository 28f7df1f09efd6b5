package models

import "time"

// AssetKind enumerates every kind of asset the engine tracks (spec.md §3).
type AssetKind string

const (
	AssetSecurity        AssetKind = "Security"
	AssetEtf             AssetKind = "Etf"
	AssetFund            AssetKind = "Fund"
	AssetBond            AssetKind = "Bond"
	AssetCrypto          AssetKind = "Crypto"
	AssetOption          AssetKind = "Option"
	AssetFuture          AssetKind = "Future"
	AssetCash            AssetKind = "Cash"
	AssetFxRate          AssetKind = "FxRate"
	AssetProperty        AssetKind = "Property"
	AssetVehicle         AssetKind = "Vehicle"
	AssetCollectible     AssetKind = "Collectible"
	AssetPhysicalPrecious AssetKind = "PhysicalPrecious"
	AssetLiability       AssetKind = "Liability"
	AssetOther           AssetKind = "Other"
)

// PricingMode selects whether quotes are fetched from a provider or keyed
// in manually.
type PricingMode string

const (
	PricingMarket PricingMode = "Market"
	PricingManual PricingMode = "Manual"
)

// Asset is a tradeable or alternative holding identified by a canonical
// AssetId (see internal/idcodec).
type Asset struct {
	ID                 string            `json:"id" gorm:"primaryKey;column:id;type:varchar(255)"`
	Symbol             string            `json:"symbol" gorm:"column:symbol;type:varchar(50);not null"`
	Name               *string           `json:"name,omitempty" gorm:"column:name;type:varchar(255)"`
	Kind               AssetKind         `json:"kind" gorm:"column:kind;type:varchar(30);not null;index"`
	Currency           string            `json:"currency" gorm:"column:currency;type:varchar(10);not null"`
	PricingMode        PricingMode       `json:"pricing_mode" gorm:"column:pricing_mode;type:varchar(10);not null;default:'Market'"`
	PreferredProvider  *string           `json:"preferred_provider,omitempty" gorm:"column:preferred_provider;type:varchar(50)"`
	ProviderOverrides  map[string]string `json:"provider_overrides,omitempty" gorm:"column:provider_overrides;serializer:json"`
	Metadata           map[string]any    `json:"metadata,omitempty" gorm:"column:metadata;serializer:json"`
	IsActive           bool              `json:"is_active" gorm:"column:is_active;not null;default:true"`
	CreatedAt          time.Time         `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time         `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName implements GORM's naming hook.
func (Asset) TableName() string { return "assets" }

// IsAlternative reports whether the asset is a manually valued
// alternative asset or liability (spec.md glossary).
func (a Asset) IsAlternative() bool {
	switch a.Kind {
	case AssetProperty, AssetVehicle, AssetCollectible, AssetPhysicalPrecious, AssetLiability:
		return true
	default:
		return false
	}
}

// Validate enforces the Asset invariants from spec.md §3: Manual pricing
// mode implies quotes must carry source Manual, enforced by callers that
// write quotes (see internal/quotestore); here we validate the static
// shape only.
func (a Asset) Validate() error {
	if a.ID == "" {
		return fieldErr("id", "is required")
	}
	if a.Symbol == "" {
		return fieldErr("symbol", "is required")
	}
	if a.Currency == "" {
		return fieldErr("currency", "is required")
	}
	if a.Kind == "" {
		return fieldErr("kind", "is required")
	}
	return nil
}
