package performance

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/wealthfolio/portfolio-engine/internal/models"
)

func day(s string) time.Time {
	d, _ := time.Parse("2006-01-02", s)
	return d
}

type fakeSeries struct {
	rows map[string][]models.DailyAccountValuation
}

func (f fakeSeries) Series(ctx context.Context, accountID string, start, end time.Time) ([]models.DailyAccountValuation, error) {
	var out []models.DailyAccountValuation
	for _, r := range f.rows[accountID] {
		if !r.ValuationDate.Before(start) && !r.ValuationDate.After(end) {
			out = append(out, r)
		}
	}
	return out, nil
}

func row(accountID string, d time.Time, total, netContribution float64) models.DailyAccountValuation {
	return models.DailyAccountValuation{
		AccountID: accountID, ValuationDate: d, AccountCurrency: "USD", BaseCurrency: "USD",
		TotalValue: decimal.NewFromFloat(total), NetContribution: decimal.NewFromFloat(netContribution),
		FxRateToBase: decimal.NewFromInt(1),
	}
}

func TestForAccountNoGrowthNoCashFlowIsZeroReturn(t *testing.T) {
	ctx := context.Background()
	e := New(fakeSeries{rows: map[string][]models.DailyAccountValuation{
		"acc1": {
			row("acc1", day("2024-01-01"), 1000, 1000),
			row("acc1", day("2024-01-02"), 1000, 1000),
		},
	}})

	m, err := e.ForAccount(ctx, "acc1", day("2024-01-01"), day("2024-01-02"))
	require.NoError(t, err)
	require.True(t, m.CumulativeTWR.Equal(decimal.Zero), "got %s", m.CumulativeTWR.String())
	require.True(t, m.SimpleReturn.Equal(decimal.Zero))
	require.Len(t, m.Returns, 2)
}

func TestForAccountGrowthWithNoCashFlow(t *testing.T) {
	ctx := context.Background()
	e := New(fakeSeries{rows: map[string][]models.DailyAccountValuation{
		"acc1": {
			row("acc1", day("2024-01-01"), 1000, 1000),
			row("acc1", day("2024-01-02"), 1100, 1000),
		},
	}})

	m, err := e.ForAccount(ctx, "acc1", day("2024-01-01"), day("2024-01-02"))
	require.NoError(t, err)
	require.True(t, m.CumulativeTWR.Equal(decimal.NewFromFloat(0.1)), "got %s", m.CumulativeTWR.String())
	require.True(t, m.SimpleReturn.Equal(decimal.NewFromFloat(0.1)))
	require.True(t, m.GainLossAmount.Equal(decimal.NewFromInt(100)))
}

func TestForAccountContributionExcludedFromReturn(t *testing.T) {
	ctx := context.Background()
	// Value doubles purely from a $500 deposit; the TWR denominator
	// absorbs the cash flow so the return is zero, not 100%.
	e := New(fakeSeries{rows: map[string][]models.DailyAccountValuation{
		"acc1": {
			row("acc1", day("2024-01-01"), 500, 500),
			row("acc1", day("2024-01-02"), 1000, 1000),
		},
	}})

	m, err := e.ForAccount(ctx, "acc1", day("2024-01-01"), day("2024-01-02"))
	require.NoError(t, err)
	require.True(t, m.CumulativeTWR.Equal(decimal.Zero), "got %s", m.CumulativeTWR.String())
	require.True(t, m.SimpleReturn.Equal(decimal.Zero))
}

func TestForAccountSingleRowReturnsEmptyMetrics(t *testing.T) {
	ctx := context.Background()
	e := New(fakeSeries{rows: map[string][]models.DailyAccountValuation{
		"acc1": {row("acc1", day("2024-01-01"), 1000, 1000)},
	}})

	m, err := e.ForAccount(ctx, "acc1", day("2024-01-01"), day("2024-01-01"))
	require.NoError(t, err)
	require.True(t, m.CumulativeTWR.IsZero())
	require.Empty(t, m.Returns)
}

func TestForAccountNegativeValueIsValidationError(t *testing.T) {
	ctx := context.Background()
	e := New(fakeSeries{rows: map[string][]models.DailyAccountValuation{
		"acc1": {
			row("acc1", day("2024-01-01"), 1000, 1000),
			row("acc1", day("2024-01-02"), -50, 1000),
		},
	}})

	_, err := e.ForAccount(ctx, "acc1", day("2024-01-01"), day("2024-01-02"))
	require.Error(t, err)
}

func TestMaxDrawdownFindsDeepestTrough(t *testing.T) {
	points := []point{
		{Date: day("2024-01-01"), Value: decimal.NewFromInt(100)},
		{Date: day("2024-01-02"), Value: decimal.NewFromInt(120)},
		{Date: day("2024-01-03"), Value: decimal.NewFromInt(90)},
		{Date: day("2024-01-04"), Value: decimal.NewFromInt(110)},
	}
	dd := maxDrawdown(points)
	require.True(t, dd.Equal(decimal.NewFromFloat(0.25)), "got %s", dd.String()) // (120-90)/120
}

func TestAnnualizeBelowOneYearReturnsRaw(t *testing.T) {
	r := annualize(decimal.NewFromFloat(0.05), 90)
	require.True(t, r.Equal(decimal.NewFromFloat(0.05)))
}

func TestAnnualizeFloorsAtMinusOne(t *testing.T) {
	r := annualize(decimal.NewFromFloat(-1.5), 400)
	require.True(t, r.Equal(decimal.NewFromInt(-1)))
}

func TestSimplePerformanceBatchWeightsAgainstTotal(t *testing.T) {
	ctx := context.Background()
	e := New(fakeSeries{rows: map[string][]models.DailyAccountValuation{
		models.TotalAccountID: {
			row(models.TotalAccountID, day("2024-06-09"), 1000, 1000),
			row(models.TotalAccountID, day("2024-06-10"), 2000, 1500),
		},
		"acc1": {
			row("acc1", day("2024-06-09"), 500, 500),
			row("acc1", day("2024-06-10"), 1000, 1000),
		},
	}})

	summaries, err := e.SimplePerformanceBatch(ctx, []string{"acc1"}, day("2024-06-10"))
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.True(t, summaries[0].PortfolioWeight.Equal(decimal.NewFromFloat(0.5)), "got %s", summaries[0].PortfolioWeight.String())
}
