package health

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	wealthdb "github.com/wealthfolio/portfolio-engine/internal/db"
	"github.com/wealthfolio/portfolio-engine/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&models.HealthIssue{}))
	return NewStore(&wealthdb.DB{DB: gdb})
}

func TestReconcileInsertsNewIssues(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	fresh := []models.HealthIssue{{
		ID: "fx_integrity", Severity: models.SeverityWarning, Category: models.CategoryFxIntegrity,
		Title: "missing pair", DataHash: "hash1",
	}}
	out, err := store.Reconcile(ctx, fresh)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.False(t, out[0].Dismissed)

	rows, err := store.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestReconcileCarriesDismissedForwardWhenHashUnchanged(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Reconcile(ctx, []models.HealthIssue{{
		ID: "fx_integrity", Severity: models.SeverityWarning, DataHash: "hash1",
	}})
	require.NoError(t, err)
	require.NoError(t, store.Dismiss(ctx, "fx_integrity"))

	out, err := store.Reconcile(ctx, []models.HealthIssue{{
		ID: "fx_integrity", Severity: models.SeverityWarning, DataHash: "hash1",
	}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.True(t, out[0].Dismissed, "unchanged condition should stay dismissed")
}

func TestReconcileRevivesDismissedIssueWhenHashChanges(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Reconcile(ctx, []models.HealthIssue{{
		ID: "fx_integrity", Severity: models.SeverityWarning, DataHash: "hash1",
	}})
	require.NoError(t, err)
	require.NoError(t, store.Dismiss(ctx, "fx_integrity"))

	out, err := store.Reconcile(ctx, []models.HealthIssue{{
		ID: "fx_integrity", Severity: models.SeverityWarning, DataHash: "hash2",
	}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.False(t, out[0].Dismissed, "changed condition should auto-revive")
}

func TestReconcileDeletesResolvedIssues(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Reconcile(ctx, []models.HealthIssue{
		{ID: "fx_integrity", DataHash: "hash1"},
		{ID: "unclassified_assets", DataHash: "hash2"},
	})
	require.NoError(t, err)

	_, err = store.Reconcile(ctx, []models.HealthIssue{
		{ID: "fx_integrity", DataHash: "hash1"},
	})
	require.NoError(t, err)

	rows, err := store.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "fx_integrity", rows[0].ID)
}

func TestDismissUnknownIDReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	err := store.Dismiss(ctx, "nonexistent")
	require.Error(t, err)
}

func TestListExcludesDismissedByDefault(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Reconcile(ctx, []models.HealthIssue{
		{ID: "fx_integrity", Severity: models.SeverityWarning, DataHash: "hash1"},
	})
	require.NoError(t, err)
	require.NoError(t, store.Dismiss(ctx, "fx_integrity"))

	rows, err := store.List(ctx, false)
	require.NoError(t, err)
	require.Empty(t, rows)

	rows, err = store.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
