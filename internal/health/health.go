// Package health implements HealthMonitor (spec.md §4.12): a suite of
// checks run over caller-gathered portfolio state, each emitting zero
// or more HealthIssues. Grounded on
// original_source/crates/core/src/health/{service.rs,checks/price_staleness.rs}:
// the Rust HealthService takes pre-gathered slices from its callers
// rather than reaching into repositories itself, so callers (HoldingsCalculator,
// MarketDataClient, AssetCatalog output) stay decoupled from this
// package; Monitor.RunChecks mirrors run_checks_with_data's shape.
package health

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wealthfolio/portfolio-engine/internal/models"
)

// Config tunes the staleness and escalation thresholds (spec.md §4.12).
type Config struct {
	// PriceStaleWarningTradingDays/PriceStaleCriticalTradingDays count
	// weekdays only (original_source's trading_days_between skips
	// Saturday/Sunday), so a Friday close quote isn't flagged stale over
	// the weekend.
	PriceStaleWarningTradingDays  int
	PriceStaleCriticalTradingDays int
	// MVEscalationThreshold is the fraction of total portfolio value an
	// issue's affected holdings must exceed for its severity to jump to
	// Critical (spec.md: "default 30%").
	MVEscalationThreshold decimal.Decimal
}

// DefaultConfig mirrors original_source/crates/core/src/health/service.rs's
// HealthConfig defaults (24h/72h staleness thresholds, i.e. 1/3 trading
// days; 30% market-value escalation).
func DefaultConfig() Config {
	return Config{
		PriceStaleWarningTradingDays:  1,
		PriceStaleCriticalTradingDays: 3,
		MVEscalationThreshold:         decimal.NewFromFloat(0.30),
	}
}

// HoldingInfo is the priced-holding slice of state the price staleness
// check reads; callers build it from ValuationService's PriceHoldings
// output plus the asset's pricing mode.
type HoldingInfo struct {
	AssetID           string
	Symbol            string
	Name              string
	MarketValueBase   decimal.Decimal
	UsesMarketPricing bool
}

// HoldingInfoFromHolding builds a HoldingInfo from a priced Holding and
// its Asset record.
func HoldingInfoFromHolding(h models.Holding, asset *models.Asset) HoldingInfo {
	name := h.Symbol
	if asset != nil && asset.Name != nil {
		name = *asset.Name
	}
	return HoldingInfo{
		AssetID:           h.AssetID,
		Symbol:            h.Symbol,
		Name:              name,
		MarketValueBase:   h.MarketValueBase,
		UsesMarketPricing: asset == nil || asset.PricingMode == models.PricingMarket,
	}
}

// QuoteSyncErrorInfo describes a MarketDataClient sync failure for one
// asset.
type QuoteSyncErrorInfo struct {
	AssetID  string
	Symbol   string
	Provider string
	Message  string
}

// FxPairInfo describes whether a currency pair held somewhere in the
// portfolio has a resolvable FX rate.
type FxPairInfo struct {
	From    string
	To      string
	Missing bool
}

// ConsistencyKind enumerates spec.md §4.12's "data consistency" cases.
type ConsistencyKind string

const (
	ConsistencyNegativeCashNoMargin ConsistencyKind = "NegativeCashNoMargin"
	ConsistencySplitNotPropagated   ConsistencyKind = "SplitNotPropagated"
)

// ConsistencyIssueInfo is one data-consistency finding gathered by the
// caller (HoldingsCalculator detects these while applying activities).
type ConsistencyIssueInfo struct {
	AccountID string
	Kind      ConsistencyKind
	AssetID   *string
	Detail    string
}

// AccountInfo is the subset of account configuration the untracked-account
// check reads.
type AccountInfo struct {
	AccountID       string
	HasTrackingMode bool
}

// Inputs bundles everything a single RunChecks pass needs. Gathering
// this is the caller's job, exactly as
// HealthService::run_checks_with_data expects its callers to have
// already queried holdings/quotes/accounts themselves.
type Inputs struct {
	TotalPortfolioValueBase decimal.Decimal
	Holdings                []HoldingInfo
	LatestQuoteDay          map[string]time.Time
	QuoteSyncErrors         []QuoteSyncErrorInfo
	FxPairs                 []FxPairInfo
	Assets                  []models.Asset
	ConsistencyIssues       []ConsistencyIssueInfo
	Accounts                []AccountInfo
}

// Monitor runs the health check suite.
type Monitor struct {
	cfg Config
}

// New builds a Monitor with an explicit Config.
func New(cfg Config) *Monitor {
	return &Monitor{cfg: cfg}
}

// NewDefault builds a Monitor with DefaultConfig.
func NewDefault() *Monitor {
	return New(DefaultConfig())
}

// RunChecks executes every check and returns the union of issues found.
// Pure function of its inputs plus now, so it's trivially testable
// without a database.
func (m *Monitor) RunChecks(now time.Time, in Inputs) []models.HealthIssue {
	var issues []models.HealthIssue
	issues = append(issues, m.priceStaleness(in, now)...)
	issues = append(issues, quoteSyncIssues(in.QuoteSyncErrors)...)
	issues = append(issues, fxIntegrityIssues(in.FxPairs)...)
	issues = append(issues, unclassifiedAssetIssues(in.Assets)...)
	issues = append(issues, dataConsistencyIssues(in.ConsistencyIssues)...)
	issues = append(issues, untrackedAccountIssues(in.Accounts)...)
	return issues
}

// priceStaleness buckets market-priced holdings with a positive market
// value into warning/critical staleness tiers (spec.md: "trading-day
// aware; weekends don't count stale"), escalating severity when the
// affected share of the portfolio crosses MVEscalationThreshold.
// Direct generalization of price_staleness.rs's analyze().
func (m *Monitor) priceStaleness(in Inputs, now time.Time) []models.HealthIssue {
	var warning, critical []HoldingInfo
	var warningMV, criticalMV decimal.Decimal
	missing := make(map[string]bool)

	for _, h := range in.Holdings {
		if !h.UsesMarketPricing || !h.MarketValueBase.IsPositive() {
			continue
		}
		quoteDay, ok := in.LatestQuoteDay[h.AssetID]
		if !ok {
			critical = append(critical, h)
			criticalMV = criticalMV.Add(h.MarketValueBase)
			missing[h.AssetID] = true
			continue
		}
		days := tradingDaysBetween(quoteDay, now)
		switch {
		case days >= m.cfg.PriceStaleCriticalTradingDays:
			critical = append(critical, h)
			criticalMV = criticalMV.Add(h.MarketValueBase)
		case days >= m.cfg.PriceStaleWarningTradingDays:
			warning = append(warning, h)
			warningMV = warningMV.Add(h.MarketValueBase)
		}
	}

	var issues []models.HealthIssue
	if len(critical) > 0 {
		issues = append(issues, m.priceStalenessIssue("error", critical, criticalMV, models.SeverityError, in.TotalPortfolioValueBase, missing))
	}
	if len(warning) > 0 {
		issues = append(issues, m.priceStalenessIssue("warning", warning, warningMV, models.SeverityWarning, in.TotalPortfolioValueBase, missing))
	}
	return issues
}

func (m *Monitor) priceStalenessIssue(slot string, holdings []HoldingInfo, affectedMV decimal.Decimal, base models.HealthSeverity, total decimal.Decimal, missing map[string]bool) models.HealthIssue {
	mvPct := mvShare(affectedMV, total)
	severity := escalate(base, mvPct, m.cfg.MVEscalationThreshold)

	ids := make([]string, len(holdings))
	missingCount := 0
	for i, h := range holdings {
		ids[i] = h.AssetID
		if missing[h.AssetID] {
			missingCount++
		}
	}

	title := fmt.Sprintf("%d holding(s) with stale prices", len(holdings))
	if missingCount == len(holdings) {
		title = fmt.Sprintf("No market data for %d holding(s)", len(holdings))
	}
	message := "Some holdings haven't had prices updated recently; portfolio value may be inaccurate."
	if missingCount > 0 {
		message = "Unable to fetch market data for some holdings; portfolio value may be inaccurate."
	}

	return models.HealthIssue{
		ID:            fmt.Sprintf("price_staleness:%s", slot),
		Severity:      severity,
		Category:      models.CategoryPriceStaleness,
		Title:         title,
		Message:       message,
		AffectedItems: sortedCopy(ids),
		DataHash:      dataHash(ids, string(severity), mvPct),
	}
}

func quoteSyncIssues(errs []QuoteSyncErrorInfo) []models.HealthIssue {
	if len(errs) == 0 {
		return nil
	}
	ids := make([]string, len(errs))
	for i, e := range errs {
		ids[i] = e.AssetID
	}
	sort.Strings(ids)
	return []models.HealthIssue{{
		ID:            "quote_sync_error",
		Severity:      models.SeverityWarning,
		Category:      models.CategoryQuoteSyncError,
		Title:         fmt.Sprintf("%d asset(s) failed to sync quotes", len(errs)),
		Message:       "One or more market data providers returned errors during the last quote sync.",
		AffectedItems: ids,
		DataHash:      dataHash(ids, "quote_sync", decimal.Zero),
	}}
}

func fxIntegrityIssues(pairs []FxPairInfo) []models.HealthIssue {
	var missing []string
	for _, p := range pairs {
		if p.Missing {
			missing = append(missing, fmt.Sprintf("%s->%s", p.From, p.To))
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return []models.HealthIssue{{
		ID:            "fx_integrity",
		Severity:      models.SeverityWarning,
		Category:      models.CategoryFxIntegrity,
		Title:         fmt.Sprintf("%d currency pair(s) missing an FX rate", len(missing)),
		Message:       "Holdings in these currencies cannot be valued until a rate is available.",
		AffectedItems: missing,
		DataHash:      dataHash(missing, "fx_integrity", decimal.Zero),
	}}
}

func unclassifiedAssetIssues(assets []models.Asset) []models.HealthIssue {
	var ids []string
	for _, a := range assets {
		if a.Kind == "" || a.Kind == models.AssetOther {
			ids = append(ids, a.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	sort.Strings(ids)
	return []models.HealthIssue{{
		ID:            "unclassified_assets",
		Severity:      models.SeverityInfo,
		Category:      models.CategoryUnclassifiedAsset,
		Title:         fmt.Sprintf("%d asset(s) have no taxonomy classification", len(ids)),
		Message:       "These assets aren't assigned to any category, which may skew allocation breakdowns.",
		AffectedItems: ids,
		DataHash:      dataHash(ids, "unclassified", decimal.Zero),
	}}
}

func dataConsistencyIssues(consistencyIssues []ConsistencyIssueInfo) []models.HealthIssue {
	grouped := make(map[ConsistencyKind][]string)
	for _, ci := range consistencyIssues {
		item := ci.AccountID
		if ci.AssetID != nil {
			item = fmt.Sprintf("%s:%s", ci.AccountID, *ci.AssetID)
		}
		grouped[ci.Kind] = append(grouped[ci.Kind], item)
	}
	if len(grouped) == 0 {
		return nil
	}

	kinds := make([]ConsistencyKind, 0, len(grouped))
	for k := range grouped {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	var issues []models.HealthIssue
	for _, kind := range kinds {
		items := sortedCopy(grouped[kind])
		title, message := consistencyText(kind, len(items))
		issues = append(issues, models.HealthIssue{
			ID:            fmt.Sprintf("data_consistency:%s", kind),
			Severity:      models.SeverityWarning,
			Category:      models.CategoryDataConsistency,
			Title:         title,
			Message:       message,
			AffectedItems: items,
			DataHash:      dataHash(items, string(kind), decimal.Zero),
		})
	}
	return issues
}

func consistencyText(kind ConsistencyKind, count int) (title, message string) {
	switch kind {
	case ConsistencyNegativeCashNoMargin:
		return fmt.Sprintf("%d account(s) with negative cash and no margin flag", count),
			"Cash balance went negative without the account being flagged for margin trading."
	case ConsistencySplitNotPropagated:
		return fmt.Sprintf("%d split(s) not yet propagated to open lots", count),
			"A stock split was recorded but hasn't been applied to every affected position."
	default:
		return fmt.Sprintf("%d data consistency issue(s)", count), "Review flagged accounts for data issues."
	}
}

func untrackedAccountIssues(accounts []AccountInfo) []models.HealthIssue {
	var ids []string
	for _, a := range accounts {
		if !a.HasTrackingMode {
			ids = append(ids, a.AccountID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	sort.Strings(ids)
	return []models.HealthIssue{{
		ID:            "untracked_accounts",
		Severity:      models.SeverityInfo,
		Category:      models.CategoryUntrackedAccount,
		Title:         fmt.Sprintf("%d account(s) have no tracking mode set", len(ids)),
		Message:       "Accounts without a tracking mode default to full tracking, which may not match their intended use.",
		AffectedItems: ids,
		DataHash:      dataHash(ids, "untracked", decimal.Zero),
	}}
}

// tradingDaysBetween counts weekdays strictly after from up to and
// including to, mirroring original_source's trading_days_between:
// Saturdays and Sundays never count, so a Friday quote is still zero
// trading days old on Sunday and one trading day old on Monday.
func tradingDaysBetween(from, to time.Time) int {
	from = from.UTC().Truncate(24 * time.Hour)
	to = to.UTC().Truncate(24 * time.Hour)
	if !to.After(from) {
		return 0
	}
	days := 0
	for d := from.AddDate(0, 0, 1); !d.After(to); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			days++
		}
	}
	return days
}

// mvShare returns affected/total, or zero when total is non-positive.
func mvShare(affected, total decimal.Decimal) decimal.Decimal {
	if !total.IsPositive() {
		return decimal.Zero
	}
	return affected.Div(total)
}

// escalate bumps base to Critical when mvPct exceeds threshold.
func escalate(base models.HealthSeverity, mvPct, threshold decimal.Decimal) models.HealthSeverity {
	if mvPct.GreaterThan(threshold) {
		return models.SeverityCritical
	}
	return base
}

// dataHash identifies the underlying condition for dismiss/revive
// purposes (spec.md: "Dismissals persist and auto-revive when data_hash
// changes"), hashed the same way holdings.hashSignature hashes activity
// collision signatures.
func dataHash(ids []string, tag string, mvPct decimal.Decimal) string {
	sorted := sortedCopy(ids)
	h := sha256.New()
	for _, id := range sorted {
		h.Write([]byte(id))
		h.Write([]byte{0})
	}
	h.Write([]byte(tag))
	h.Write([]byte(mvPct.Round(2).String()))
	return hex.EncodeToString(h.Sum(nil))
}

func sortedCopy(ids []string) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	sort.Strings(out)
	return out
}
