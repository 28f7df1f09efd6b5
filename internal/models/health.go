package models

import "time"

// HealthSeverity ranks a HealthIssue's urgency (spec.md §3, §4.12).
type HealthSeverity string

const (
	SeverityInfo     HealthSeverity = "Info"
	SeverityWarning  HealthSeverity = "Warning"
	SeverityError    HealthSeverity = "Error"
	SeverityCritical HealthSeverity = "Critical"
)

// HealthCategory groups issues by the check that produced them.
type HealthCategory string

const (
	CategoryPriceStaleness     HealthCategory = "PriceStaleness"
	CategoryQuoteSyncError     HealthCategory = "QuoteSyncError"
	CategoryFxIntegrity        HealthCategory = "FxIntegrity"
	CategoryUnclassifiedAsset  HealthCategory = "UnclassifiedAsset"
	CategoryDataConsistency    HealthCategory = "DataConsistency"
	CategoryUntrackedAccount   HealthCategory = "UntrackedAccount"
)

// HealthIssue is a single finding surfaced by HealthMonitor, persisted so
// dismissals survive across sync runs (spec.md §4.12).
type HealthIssue struct {
	ID            string         `json:"id" gorm:"primaryKey;column:id;type:varchar(255)"`
	Severity      HealthSeverity `json:"severity" gorm:"column:severity;type:varchar(20);not null"`
	Category      HealthCategory `json:"category" gorm:"column:category;type:varchar(40);not null;index"`
	Title         string         `json:"title" gorm:"column:title;type:text;not null"`
	Message       string         `json:"message" gorm:"column:message;type:text;not null"`
	AffectedItems []string       `json:"affected_items" gorm:"column:affected_items;type:jsonb;serializer:json"`
	// DataHash identifies the underlying condition, not the issue row;
	// when a dismissed issue's condition reoccurs with the same hash it
	// stays dismissed, but a changed hash auto-revives it.
	DataHash  string    `json:"data_hash" gorm:"column:data_hash;type:varchar(128);not null;index"`
	FixAction *string   `json:"fix_action,omitempty" gorm:"column:fix_action;type:text"`
	Dismissed bool      `json:"dismissed" gorm:"column:dismissed;not null;default:false"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName implements GORM's naming hook.
func (HealthIssue) TableName() string { return "health_issues" }

// Revives reports whether a freshly-detected issue with newHash should
// clear a previously dismissed issue's Dismissed flag.
func (h HealthIssue) Revives(newHash string) bool {
	return h.Dismissed && h.DataHash != newHash
}
