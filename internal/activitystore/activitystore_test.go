package activitystore

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	wealthdb "github.com/wealthfolio/portfolio-engine/internal/db"
	"github.com/wealthfolio/portfolio-engine/internal/models"
)

func newTestStore(t *testing.T, hook RecomputeHook) *Store {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&models.Activity{}))
	return New(&wealthdb.DB{DB: gdb}, hook)
}

func buyActivity(accountID string, day string) *models.Activity {
	d, _ := time.Parse("2006-01-02", day)
	return &models.Activity{
		AccountID:    accountID,
		AssetID:      "SEC:AAPL:XNAS",
		Type:         models.ActivityBuy,
		ActivityDate: d,
		Quantity:     decimal.NewFromInt(10),
		UnitPrice:    decimal.NewFromInt(100),
		Currency:     "USD",
	}
}

func TestCreateValidatesAndNotifies(t *testing.T) {
	var notified []string
	s := newTestStore(t, func(ctx context.Context, accountID string, fromDate time.Time) {
		notified = append(notified, accountID)
	})

	a := buyActivity("acc1", "2024-01-05")
	require.NoError(t, s.Create(context.Background(), a))
	require.Contains(t, notified, "acc1")
	require.NotEmpty(t, a.ID)
}

func TestCreateRejectsInvalid(t *testing.T) {
	s := newTestStore(t, nil)
	a := &models.Activity{}
	require.Error(t, s.Create(context.Background(), a))
}

func TestUpdateNotifiesFromEarlierDate(t *testing.T) {
	var fromDates []time.Time
	s := newTestStore(t, func(ctx context.Context, accountID string, fromDate time.Time) {
		fromDates = append(fromDates, fromDate)
	})

	ctx := context.Background()
	a := buyActivity("acc1", "2024-01-10")
	require.NoError(t, s.Create(ctx, a))

	a.ActivityDate, _ = time.Parse("2006-01-02", "2024-01-01")
	require.NoError(t, s.Update(ctx, a))

	require.Len(t, fromDates, 2)
	earliest, _ := time.Parse("2006-01-02", "2024-01-01")
	require.True(t, fromDates[1].Equal(earliest))
}

func TestDeleteNotifiesAndRemoves(t *testing.T) {
	var notified []string
	s := newTestStore(t, func(ctx context.Context, accountID string, fromDate time.Time) {
		notified = append(notified, accountID)
	})
	ctx := context.Background()
	a := buyActivity("acc1", "2024-01-05")
	require.NoError(t, s.Create(ctx, a))

	require.NoError(t, s.Delete(ctx, a.ID))
	_, err := s.GetByID(ctx, a.ID)
	require.Error(t, err)
	require.Len(t, notified, 2)
}

func TestListFiltersByAccountAndExcludesDraftsByDefault(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	a1 := buyActivity("acc1", "2024-01-01")
	a2 := buyActivity("acc2", "2024-01-02")
	a3 := buyActivity("acc1", "2024-01-03")
	a3.IsDraft = true
	require.NoError(t, s.CreateBatch(ctx, []*models.Activity{a1, a2, a3}))

	accID := "acc1"
	rows, err := s.List(ctx, models.ActivityFilter{AccountID: &accID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, a1.ID, rows[0].ID)
}
