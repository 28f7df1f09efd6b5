package holdings

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/wealthfolio/portfolio-engine/internal/models"
)

// fixedFx is an FxRater with a static table, enough for tests that don't
// exercise fx drift across days.
type fixedFx map[string]decimal.Decimal

func (f fixedFx) Rate(from, to string, asOf time.Time) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	if r, ok := f[from+":"+to]; ok {
		return r, nil
	}
	if r, ok := f[to+":"+from]; ok {
		return decimal.NewFromInt(1).DivRound(r, 18), nil
	}
	return decimal.Zero, assertNever{}
}

type assertNever struct{}

func (assertNever) Error() string { return "fx rate not stubbed" }

func day(s string) time.Time {
	d, _ := time.Parse("2006-01-02", s)
	return d
}

func TestBuyThenSell(t *testing.T) {
	fx := fixedFx{}
	prev := models.NewEmptySnapshot("acc1", "USD", day("2024-01-01"))

	buy := models.Activity{ID: "a1", AccountID: "acc1", AssetID: "SEC:AAPL:XNAS", Type: models.ActivityBuy,
		ActivityDate: day("2024-01-02"), Quantity: decimal.NewFromInt(10), UnitPrice: decimal.NewFromInt(100),
		Fee: decimal.NewFromInt(5), Currency: "USD"}
	next, issues, err := Next(prev, []models.Activity{buy}, day("2024-01-02"), fx)
	require.NoError(t, err)
	require.Empty(t, issues)

	pos := next.Positions["SEC:AAPL:XNAS"]
	require.True(t, pos.Quantity.Equal(decimal.NewFromInt(10)))
	require.True(t, pos.TotalCostBasis.Equal(decimal.NewFromInt(1005))) // 10*100 + 5 fee
	require.True(t, next.CashBalances["USD"].Equal(decimal.NewFromInt(-1005)))

	sell := models.Activity{ID: "a2", AccountID: "acc1", AssetID: "SEC:AAPL:XNAS", Type: models.ActivitySell,
		ActivityDate: day("2024-01-10"), Quantity: decimal.NewFromInt(10), UnitPrice: decimal.NewFromInt(150),
		Fee: decimal.NewFromInt(2), Currency: "USD"}
	final, issues, err := Next(next, []models.Activity{sell}, day("2024-01-10"), fx)
	require.NoError(t, err)
	require.Empty(t, issues)

	_, stillOpen := final.Positions["SEC:AAPL:XNAS"]
	require.False(t, stillOpen, "position should be elided once fully sold")
	require.True(t, final.CashBalances["USD"].Equal(decimal.NewFromInt(-1005).Add(decimal.NewFromInt(1498))))
}

func TestSplitAfterBuyPreservesCostBasis(t *testing.T) {
	fx := fixedFx{}
	prev := models.NewEmptySnapshot("acc1", "USD", day("2024-01-01"))

	buy := models.Activity{ID: "a1", AccountID: "acc1", AssetID: "SEC:AAPL:XNAS", Type: models.ActivityBuy,
		ActivityDate: day("2024-01-02"), Quantity: decimal.NewFromInt(10), UnitPrice: decimal.NewFromInt(100),
		Currency: "USD"}
	afterBuy, _, err := Next(prev, []models.Activity{buy}, day("2024-01-02"), fx)
	require.NoError(t, err)

	split := models.Activity{ID: "a2", AccountID: "acc1", AssetID: "SEC:AAPL:XNAS", Type: models.ActivitySplit,
		ActivityDate: day("2024-01-05"), Quantity: decimal.NewFromInt(2), Currency: "USD"}
	afterSplit, _, err := Next(afterBuy, []models.Activity{split}, day("2024-01-05"), fx)
	require.NoError(t, err)

	pos := afterSplit.Positions["SEC:AAPL:XNAS"]
	require.True(t, pos.Quantity.Equal(decimal.NewFromInt(20)))
	require.True(t, pos.TotalCostBasis.Equal(decimal.NewFromInt(1000)), "cost basis must survive a split unchanged")
	require.True(t, pos.Lots[0].AcquisitionPrice.Equal(decimal.NewFromInt(50)))
}

func TestDepositAndWithdrawalTrackNetContribution(t *testing.T) {
	fx := fixedFx{}
	prev := models.NewEmptySnapshot("acc1", "USD", day("2024-01-01"))

	deposit := models.Activity{ID: "a1", AccountID: "acc1", AssetID: "CASH:USD", Type: models.ActivityDeposit,
		ActivityDate: day("2024-01-02"), Amount: decPtr(decimal.NewFromInt(1000)), Currency: "USD"}
	withdrawal := models.Activity{ID: "a2", AccountID: "acc1", AssetID: "CASH:USD", Type: models.ActivityWithdrawal,
		ActivityDate: day("2024-01-02"), Amount: decPtr(decimal.NewFromInt(200)), Currency: "USD"}

	next, _, err := Next(prev, []models.Activity{deposit, withdrawal}, day("2024-01-02"), fx)
	require.NoError(t, err)
	require.True(t, next.CashBalances["USD"].Equal(decimal.NewFromInt(800)))
	require.True(t, next.NetContribution.Equal(decimal.NewFromInt(800)))
}

func TestDuplicateActivitySameDateRaisesHealthIssueButBothApply(t *testing.T) {
	fx := fixedFx{}
	prev := models.NewEmptySnapshot("acc1", "USD", day("2024-01-01"))

	buy1 := models.Activity{ID: "a1", AccountID: "acc1", AssetID: "SEC:AAPL:XNAS", Type: models.ActivityBuy,
		ActivityDate: day("2024-01-02"), Quantity: decimal.NewFromInt(10), UnitPrice: decimal.NewFromInt(100), Currency: "USD"}
	buy2 := buy1
	buy2.ID = "a2"

	next, issues, err := Next(prev, []models.Activity{buy1, buy2}, day("2024-01-02"), fx)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	require.Equal(t, models.CategoryDataConsistency, issues[0].Category)

	pos := next.Positions["SEC:AAPL:XNAS"]
	require.True(t, pos.Quantity.Equal(decimal.NewFromInt(20)), "both activities must still apply")
}

func TestCrossCurrencyBuyConvertsLotCostAtActivityDateRate(t *testing.T) {
	fx := fixedFx{"USD:EUR": decimal.NewFromFloat(0.9)}
	prev := models.NewEmptySnapshot("acc1", "EUR", day("2024-01-01"))

	buy := models.Activity{ID: "a1", AccountID: "acc1", AssetID: "SEC:AAPL:XNAS", Type: models.ActivityAddHolding,
		ActivityDate: day("2024-01-02"), Quantity: decimal.NewFromInt(10), UnitPrice: decimal.NewFromInt(100), Currency: "USD"}

	next, _, err := Next(prev, []models.Activity{buy}, day("2024-01-02"), fx)
	require.NoError(t, err)

	pos := next.Positions["SEC:AAPL:XNAS"]
	require.Equal(t, "USD", pos.Currency)
	require.True(t, pos.TotalCostBasis.Equal(decimal.NewFromInt(1000)), "lot cost basis stays in position currency")
	require.True(t, next.NetContribution.Equal(decimal.NewFromInt(900)), "net contribution is in account currency")
}

func decPtr(d decimal.Decimal) *decimal.Decimal { return &d }
