// Package holdings implements HoldingsCalculator (spec.md §4.7): the
// pure next(prev, activities_on_date, date) -> next snapshot step that
// drives the forward-pass recalculation SnapshotStore persists.
// Grounded on the teacher's internal/models/investment.go for the
// cost-basis-reduction shape (proportional cost removal on partial
// withdrawal), reworked from that file's single weighted-average lot
// into the spec's ordered FIFO lot queue.
package holdings

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	apperrors "github.com/wealthfolio/portfolio-engine/internal/errors"
	"github.com/wealthfolio/portfolio-engine/internal/idcodec"
	"github.com/wealthfolio/portfolio-engine/internal/models"
)

// AddFeesToCostBasis resolves spec.md's Open Question on buy-side fee
// treatment: fees are folded entirely into the lot's cost basis at
// purchase time rather than expensed separately against cash flow
// (decision recorded in DESIGN.md).
const AddFeesToCostBasis = true

// FxRater is the subset of fxcache.Cache this package needs. Accepting
// the interface (not the concrete cache) keeps Next pure and testable
// without spinning up a live cache.
type FxRater interface {
	Rate(from, to string, asOf time.Time) (decimal.Decimal, error)
}

// Next computes the account's state on date from prev plus the
// activities dated exactly date, per the effect table in spec.md §4.7.
// It never mutates prev. Any HealthIssues detected while applying
// activities (currently: same-date signature collisions from broker
// sync) are returned alongside the snapshot rather than dropped.
func Next(prev models.AccountStateSnapshot, activitiesOnDate []models.Activity, date time.Time, fx FxRater) (models.AccountStateSnapshot, []models.HealthIssue, error) {
	next := prev.Clone()
	next.ID = models.SnapshotID(prev.AccountID, date)
	next.SnapshotDate = date
	next.CalculatedAt = date

	ordered := models.ByDateThenPriority(activitiesOnDate)

	for _, a := range ordered {
		if err := applyActivity(&next, a, fx); err != nil {
			return models.AccountStateSnapshot{}, nil, fmt.Errorf("apply activity %s: %w", a.ID, err)
		}
	}

	elideEmptyPositions(&next)
	if err := restateCostBasis(&next, fx); err != nil {
		return models.AccountStateSnapshot{}, nil, err
	}

	issues := detectCollisions(prev.AccountID, ordered)
	return next, issues, nil
}

func applyActivity(next *models.AccountStateSnapshot, a models.Activity, fx FxRater) error {
	switch a.Type {
	case models.ActivityBuy:
		return applyAcquire(next, a, fx, false)
	case models.ActivityAddHolding, models.ActivityTransferIn:
		if a.Type == models.ActivityTransferIn && idcodec.IsCashLike(a.AssetID) {
			return applyCashChange(next, a, fx, +1)
		}
		return applyAcquire(next, a, fx, true)
	case models.ActivitySell:
		return applyDispose(next, a, fx, false)
	case models.ActivityRemoveHolding, models.ActivityTransferOut:
		if a.Type == models.ActivityTransferOut && idcodec.IsCashLike(a.AssetID) {
			return applyCashChange(next, a, fx, -1)
		}
		return applyDispose(next, a, fx, true)
	case models.ActivityDeposit, models.ActivityConversionIn:
		return applyCashChange(next, a, fx, +1)
	case models.ActivityWithdrawal, models.ActivityConversionOut:
		return applyCashChange(next, a, fx, -1)
	case models.ActivityDividend, models.ActivityInterest:
		addCash(next, a.Currency, a.AmountOrZero().Sub(a.Fee))
		return nil
	case models.ActivityFee, models.ActivityTax:
		magnitude := a.Fee
		if magnitude.IsZero() {
			magnitude = a.AmountOrZero()
		}
		addCash(next, a.Currency, magnitude.Neg())
		return nil
	case models.ActivitySplit:
		return applySplit(next, a)
	default:
		return &apperrors.ErrCalculation{Op: "applyActivity", Message: "unhandled activity type: " + string(a.Type)}
	}
}

// applyAcquire handles Buy (affectsNetContribution=false, cash debited
// by qty*price+fee) and AddHolding/TransferIn-asset
// (affectsNetContribution=true, cash debited by fee only).
func applyAcquire(next *models.AccountStateSnapshot, a models.Activity, fx FxRater, affectsNetContribution bool) error {
	pos := next.Positions[a.AssetID]
	if pos.AssetID == "" {
		pos = models.Position{
			AccountID:     next.AccountID,
			AssetID:       a.AssetID,
			Currency:      a.Currency,
			InceptionDate: a.ActivityDate,
		}
	}

	lotCostLocal, err := addLot(&pos, a.ActivityDate, a.Quantity, a.UnitPrice, a.Fee, a.Currency, fx)
	if err != nil {
		return err
	}
	next.Positions[a.AssetID] = pos

	if affectsNetContribution {
		addCash(next, a.Currency, a.Fee.Neg())
		costAccount, err := convert(lotCostLocal, pos.Currency, next.Currency, a.ActivityDate, fx)
		if err != nil {
			return err
		}
		next.NetContribution = next.NetContribution.Add(costAccount)
	} else {
		addCash(next, a.Currency, a.Quantity.Mul(a.UnitPrice).Add(a.Fee).Neg())
	}
	return nil
}

// applyDispose handles Sell (affectsNetContribution=false, cash
// credited by qty*price-fee) and RemoveHolding/TransferOut-asset
// (affectsNetContribution=true, cash debited by fee only).
func applyDispose(next *models.AccountStateSnapshot, a models.Activity, fx FxRater, affectsNetContribution bool) error {
	pos, ok := next.Positions[a.AssetID]
	if !ok {
		return &apperrors.ErrCalculation{Op: "applyDispose", Message: "no open position for " + a.AssetID}
	}

	removedCostLocal, err := reduceLotsFIFO(&pos, a.Quantity)
	if err != nil {
		return err
	}
	if pos.IsElidable() {
		delete(next.Positions, a.AssetID)
	} else {
		next.Positions[a.AssetID] = pos
	}

	if affectsNetContribution {
		addCash(next, a.Currency, a.Fee.Neg())
		costAccount, err := convert(removedCostLocal, pos.Currency, next.Currency, a.ActivityDate, fx)
		if err != nil {
			return err
		}
		next.NetContribution = next.NetContribution.Sub(costAccount)
	} else {
		addCash(next, a.Currency, a.Quantity.Mul(a.UnitPrice).Sub(a.Fee))
	}
	return nil
}

// applyCashChange handles Deposit/Withdrawal, ConversionIn/Out, and the
// cash variants of TransferIn/TransferOut — the inbound direction
// credits `amount-fee`, the outbound direction debits `amount+fee`, and
// both adjust net_contribution by `amount` converted to account currency.
func applyCashChange(next *models.AccountStateSnapshot, a models.Activity, fx FxRater, sign int) error {
	amount := a.AmountOrZero()
	if sign > 0 {
		addCash(next, a.Currency, amount.Sub(a.Fee))
	} else {
		addCash(next, a.Currency, amount.Add(a.Fee).Neg())
	}

	amountAccount, err := convert(amount, a.Currency, next.Currency, a.ActivityDate, fx)
	if err != nil {
		return err
	}
	if sign > 0 {
		next.NetContribution = next.NetContribution.Add(amountAccount)
	} else {
		next.NetContribution = next.NetContribution.Sub(amountAccount)
	}
	return nil
}

// applySplit multiplies every lot's quantity by the ratio carried in
// Quantity and divides its acquisition_price by the same ratio;
// cost_basis per lot (a dollar figure) and cash are both unaffected.
func applySplit(next *models.AccountStateSnapshot, a models.Activity) error {
	pos, ok := next.Positions[a.AssetID]
	if !ok {
		return nil // nothing to split if there's no open position
	}
	ratio := a.Quantity
	if !ratio.IsPositive() {
		return &apperrors.ErrCalculation{Op: "applySplit", Message: "split ratio must be positive"}
	}

	for i := range pos.Lots {
		pos.Lots[i].Quantity = pos.Lots[i].Quantity.Mul(ratio)
		pos.Lots[i].AcquisitionPrice = pos.Lots[i].AcquisitionPrice.DivRound(ratio, 18)
	}
	pos.RecalculateFromLots()
	next.Positions[a.AssetID] = pos
	return nil
}

func addLot(pos *models.Position, date time.Time, qty, price, fee decimal.Decimal, activityCurrency string, fx FxRater) (decimal.Decimal, error) {
	acqPrice := price
	costLocal := qty.Mul(price)

	if activityCurrency != pos.Currency {
		rate, err := fx.Rate(activityCurrency, pos.Currency, date)
		if err != nil {
			return decimal.Zero, err
		}
		acqPrice = price.Mul(rate)
		costLocal = qty.Mul(acqPrice)
	}
	if AddFeesToCostBasis {
		feeLocal := fee
		if activityCurrency != pos.Currency {
			rate, err := fx.Rate(activityCurrency, pos.Currency, date)
			if err != nil {
				return decimal.Zero, err
			}
			feeLocal = fee.Mul(rate)
		}
		costLocal = costLocal.Add(feeLocal)
	}

	pos.Lots = append(pos.Lots, models.Lot{
		ID:               uuid.NewString(),
		PositionID:       pos.AccountID + ":" + pos.AssetID,
		AcquisitionDate:  date,
		Quantity:         qty,
		CostBasis:        costLocal,
		AcquisitionPrice: acqPrice,
		AcquisitionFees:  fee,
	})
	pos.RecalculateFromLots()
	return costLocal, nil
}

// reduceLotsFIFO consumes qty from the front of the lot queue, returning
// the cost basis (in position currency) carried by the consumed
// quantity, and an error if the position doesn't hold enough.
func reduceLotsFIFO(pos *models.Position, qty decimal.Decimal) (decimal.Decimal, error) {
	remaining := qty
	removedCost := decimal.Zero
	kept := make([]models.Lot, 0, len(pos.Lots))

	for _, lot := range pos.Lots {
		if remaining.LessThanOrEqual(decimal.Zero) {
			kept = append(kept, lot)
			continue
		}
		switch {
		case lot.Quantity.LessThanOrEqual(remaining):
			removedCost = removedCost.Add(lot.CostBasis)
			remaining = remaining.Sub(lot.Quantity)
		default:
			fraction := remaining.DivRound(lot.Quantity, 18)
			consumedCost := lot.CostBasis.Mul(fraction)
			removedCost = removedCost.Add(consumedCost)
			lot.Quantity = lot.Quantity.Sub(remaining)
			lot.CostBasis = lot.CostBasis.Sub(consumedCost)
			remaining = decimal.Zero
			kept = append(kept, lot)
		}
	}

	if remaining.GreaterThan(models.QuantityEpsilon) {
		return decimal.Zero, &apperrors.ErrCalculation{
			Op:      "reduceLotsFIFO",
			Message: fmt.Sprintf("insufficient quantity in %s: short by %s", pos.AssetID, remaining.String()),
		}
	}

	pos.Lots = kept
	pos.RecalculateFromLots()
	return removedCost, nil
}

func addCash(next *models.AccountStateSnapshot, currency string, delta decimal.Decimal) {
	next.CashBalances[currency] = next.CashBalances[currency].Add(delta)
}

func convert(amount decimal.Decimal, from, to string, asOf time.Time, fx FxRater) (decimal.Decimal, error) {
	if models.SameCurrency(from, to) {
		return amount, nil
	}
	rate, err := fx.Rate(from, to, asOf)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(rate), nil
}

// elideEmptyPositions drops positions whose quantity has fallen below
// models.QuantityEpsilon, per spec.md §3.
func elideEmptyPositions(next *models.AccountStateSnapshot) {
	for id, pos := range next.Positions {
		if pos.IsElidable() {
			delete(next.Positions, id)
		}
	}
}

// restateCostBasis recomputes the snapshot-wide cost_basis display field
// by converting every position's cost basis to account currency at the
// snapshot date's rate — the one place spec.md §4.7 permits
// snapshot-date (rather than activity-date) FX.
func restateCostBasis(next *models.AccountStateSnapshot, fx FxRater) error {
	total := decimal.Zero
	for _, pos := range next.Positions {
		amount, err := convert(pos.TotalCostBasis, pos.Currency, next.Currency, next.SnapshotDate, fx)
		if err != nil {
			return err
		}
		total = total.Add(amount)
	}
	next.CostBasis = total
	return nil
}

// detectCollisions flags activities that share accountID+assetID+type+
// quantity+price+fee+amount on the same date — a signature broker-sync
// duplicate-import produces — as a HealthIssue rather than silently
// merging them (spec.md Open Question resolution, see DESIGN.md).
// Both activities still apply; the issue exists for the user to review.
func detectCollisions(accountID string, ordered []models.Activity) []models.HealthIssue {
	bySignature := make(map[string][]string)
	for _, a := range ordered {
		sig := activitySignature(a)
		bySignature[sig] = append(bySignature[sig], a.ID)
	}

	var issues []models.HealthIssue
	sigs := make([]string, 0, len(bySignature))
	for sig := range bySignature {
		sigs = append(sigs, sig)
	}
	sort.Strings(sigs)

	for _, sig := range sigs {
		ids := bySignature[sig]
		if len(ids) < 2 {
			continue
		}
		issues = append(issues, models.HealthIssue{
			ID:            uuid.NewString(),
			Severity:      models.SeverityWarning,
			Category:      models.CategoryDataConsistency,
			Title:         "Duplicate activity detected",
			Message:       fmt.Sprintf("%d activities on the same date share identical type/quantity/price/fee for account %s", len(ids), accountID),
			AffectedItems: ids,
			DataHash:      hashSignature(sig),
		})
	}
	return issues
}

func activitySignature(a models.Activity) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s",
		a.AccountID, a.AssetID, a.Type,
		a.Quantity.String(), a.UnitPrice.String(), a.Fee.String(), a.AmountOrZero().String())
}

func hashSignature(sig string) string {
	sum := sha256.Sum256([]byte(sig))
	return hex.EncodeToString(sum[:])
}
