package main

// @title Portfolio Engine API
// @version 1.0
// @description Illustrative HTTP surface over the portfolio engine's core services.
// @BasePath /api

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	_swaggerHttp "github.com/swaggo/http-swagger"
	"go.uber.org/zap"

	_ "github.com/wealthfolio/portfolio-engine/docs"
	"github.com/wealthfolio/portfolio-engine/internal/activitystore"
	"github.com/wealthfolio/portfolio-engine/internal/assetcatalog"
	"github.com/wealthfolio/portfolio-engine/internal/db"
	"github.com/wealthfolio/portfolio-engine/internal/engine"
	"github.com/wealthfolio/portfolio-engine/internal/fxcache"
	"github.com/wealthfolio/portfolio-engine/internal/health"
	"github.com/wealthfolio/portfolio-engine/internal/httpapi"
	"github.com/wealthfolio/portfolio-engine/internal/logger"
	"github.com/wealthfolio/portfolio-engine/internal/marketdata"
	"github.com/wealthfolio/portfolio-engine/internal/marketdata/providers/alphavantage"
	"github.com/wealthfolio/portfolio-engine/internal/marketdata/providers/yahoo"
	"github.com/wealthfolio/portfolio-engine/internal/marketdata/registry"
	"github.com/wealthfolio/portfolio-engine/internal/marketdata/resolver"
	"github.com/wealthfolio/portfolio-engine/internal/models"
	"github.com/wealthfolio/portfolio-engine/internal/networth"
	"github.com/wealthfolio/portfolio-engine/internal/performance"
	"github.com/wealthfolio/portfolio-engine/internal/quotestore"
	"github.com/wealthfolio/portfolio-engine/internal/snapshotstore"
	"github.com/wealthfolio/portfolio-engine/internal/valuation"
)

func main() {
	_ = godotenv.Load()

	zl, err := logger.New()
	if err != nil {
		panic(err)
	}
	defer zl.Sync()
	sugar := zl.Sugar()

	config := db.NewConfig()
	database, err := db.Connect(config)
	if err != nil {
		sugar.Fatalf("failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := database.Health(); err != nil {
		sugar.Fatalf("database health check failed: %v", err)
	}
	sugar.Infow("database connection established")

	if err := autoMigrate(database); err != nil {
		sugar.Fatalf("failed to migrate schema: %v", err)
	}

	baseCurrency := getEnv("BASE_CURRENCY", "USD")

	// Domain stack wiring: every component from SPEC_FULL.md's component
	// table, built bottom-up.
	fx := fxcache.New(baseCurrency)
	snapshots := snapshotstore.New(database)
	quotes := quotestore.New(database)
	assets := assetcatalog.New(database)

	reg := registry.New(
		registry.Descriptor{ID: "yahoo", Enabled: true, Priority: 0, RateLimitPerSec: 5, SupportsBulk: true, SupportsFx: true},
		registry.Descriptor{ID: "alphavantage", Enabled: true, Priority: 1, RateLimitPerSec: 0.6, DailyQuota: 25, SupportsBulk: false, SupportsFx: false},
	)
	res := resolver.New()
	providers := map[string]marketdata.Provider{
		"yahoo":        yahoo.NewClient(),
		"alphavantage": alphavantage.NewClient(os.Getenv("ALPHAVANTAGE_API_KEY")),
	}
	market := marketdata.New(reg, res, quotes, quotes, providers)

	valuationSvc := valuation.New(database, snapshots, quotes, market, assets, fx)
	performanceEngine := performance.New(valuationSvc)
	netWorthSvc := networth.New(snapshots, quotes, assets, fx, valuationSvc)

	healthMonitor := health.NewDefault()
	healthStore := health.NewStore(database)

	// recalc is assigned after activities exists (the recompute hook
	// closure captures it by reference and only runs on a later write,
	// so the two-step wiring below never observes a nil Recalculator).
	var recalc *engine.Recalculator
	activities := activitystore.New(database, func(ctx context.Context, accountID string, fromDate time.Time) {
		issues, err := recalc.Recalculate(ctx, accountID, fromDate)
		if err != nil {
			sugar.Errorw("recompute failed", "account_id", accountID, "from", fromDate, "error", err)
			return
		}
		if len(issues) > 0 {
			if _, err := healthStore.Reconcile(ctx, issues); err != nil {
				sugar.Errorw("failed to persist collision issues", "account_id", accountID, "error", err)
			}
		}
	})
	recalc = engine.New(activities, snapshots, fx, nil)

	// Scheduled sync pipeline (spec.md §2: "an independent sync pipeline
	// triggered on a schedule"), grounded on aristath-sentinel/trader-go's
	// use of robfig/cron for its own periodic jobs.
	planner := &catalogSyncPlanner{catalog: assets}
	c := cron.New()
	if _, err := c.AddFunc(getEnv("SYNC_SCHEDULE", "0 */6 * * *"), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		report, err := market.Sync(ctx, models.SyncMode{Kind: models.SyncIncremental}, planner)
		if err != nil {
			sugar.Errorw("market data sync failed", "error", err)
			return
		}
		sugar.Infow("market data sync complete",
			"assets_planned", report.AssetsPlanned,
			"quotes_written", report.QuotesWritten,
			"failures", len(report.Failures),
		)
	}); err != nil {
		sugar.Fatalf("failed to schedule sync job: %v", err)
	}
	// Periodic health reconciliation (spec.md §4.12): Inputs here only
	// covers the unclassified-asset check since building the full
	// holdings/quote/fx picture needs per-account orchestration beyond
	// this illustrative wrapper's scope (see DESIGN.md).
	if _, err := c.AddFunc(getEnv("HEALTH_SCHEDULE", "30 * * * *"), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		assetList, err := assets.List(ctx, nil)
		if err != nil {
			sugar.Errorw("health check asset load failed", "error", err)
			return
		}
		issues := healthMonitor.RunChecks(time.Now().UTC(), health.Inputs{Assets: assetList})
		if _, err := healthStore.Reconcile(ctx, issues); err != nil {
			sugar.Errorw("health reconcile failed", "error", err)
		}
	}); err != nil {
		sugar.Fatalf("failed to schedule health check job: %v", err)
	}
	c.Start()
	defer c.Stop()

	// HTTP surface: thin illustrative wrapper (spec.md §1 Non-goals
	// excludes a fully spec'd API) wiring the core services.
	activityHandler := httpapi.NewActivityHandler(activities)
	assetHandler := httpapi.NewAssetHandler(assets)
	valuationHandler := httpapi.NewValuationHandler(valuationSvc)
	performanceHandler := httpapi.NewPerformanceHandler(performanceEngine)
	netWorthHandler := httpapi.NewNetWorthHandler(netWorthSvc)
	healthHandler := httpapi.NewHealthHandler(healthStore)

	router := mux.NewRouter()
	router.HandleFunc("/swagger", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/swagger/index.html", http.StatusFound)
	})
	router.PathPrefix("/swagger/").Handler(_swaggerHttp.WrapHandler)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"status":  "healthy",
			"service": "portfolio-engine",
		})
	})

	router.HandleFunc("/api/activities", activityHandler.HandleActivities).Methods(http.MethodGet, http.MethodPost)
	router.HandleFunc("/api/assets/{id}", assetHandler.HandleAsset).Methods(http.MethodGet)
	router.HandleFunc("/api/accounts/{id}/holdings", valuationHandler.HandleHoldings).Methods(http.MethodGet)
	router.HandleFunc("/api/accounts/{id}/performance", performanceHandler.HandlePerformance).Methods(http.MethodGet)
	router.HandleFunc("/api/networth", netWorthHandler.HandleNetWorth).Methods(http.MethodGet)
	router.HandleFunc("/api/networth/history", netWorthHandler.HandleNetWorthHistory).Methods(http.MethodGet)
	router.HandleFunc("/api/health/issues", healthHandler.HandleIssues).Methods(http.MethodGet)
	router.HandleFunc("/api/health/issues/{id}/dismiss", healthHandler.HandleDismiss).Methods(http.MethodPost)

	corsHandler := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}

	port := getEnv("SERVER_PORT", "8080")
	logged := requestLogger(zl)(router)
	server := http.Server{Addr: ":" + port, Handler: recovery(zl)(corsHandler(logged))}
	sugar.Infof("server starting on port %s", port)
	if err := server.ListenAndServe(); err != nil {
		sugar.Fatalf("server error: %v", err)
	}
}

// catalogSyncPlanner grounds MarketDataClient.Sync's SyncPlanner over
// AssetCatalog: every active, market-priced asset is a sync target,
// with no lot-level "earliest held date" refinement yet (see
// DESIGN.md's Open Question on sync planning scope).
type catalogSyncPlanner struct {
	catalog *assetcatalog.Catalog
}

func (p *catalogSyncPlanner) AssetsNeedingData(ctx context.Context) ([]marketdata.SyncTarget, error) {
	assets, err := p.catalog.List(ctx, nil)
	if err != nil {
		return nil, err
	}
	var targets []marketdata.SyncTarget
	for _, a := range assets {
		if !a.IsActive || a.PricingMode != models.PricingMarket || a.IsAlternative() {
			continue
		}
		targets = append(targets, marketdata.SyncTarget{
			AssetID:              a.ID,
			FallbackCurrency:     a.Currency,
			EarliestRequiredDate: time.Now().UTC().AddDate(0, 0, -7),
		})
	}
	return targets, nil
}

func autoMigrate(database *db.DB) error {
	return database.AutoMigrate(
		&models.Asset{},
		&models.Activity{},
		&models.AccountStateSnapshot{},
		&models.Quote{},
		&models.FxRate{},
		&models.DailyAccountValuation{},
		&models.HealthIssue{},
	)
}

func requestLogger(l *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote", r.RemoteAddr),
				zap.String("agent", r.UserAgent()),
			)
			next.ServeHTTP(w, r)
		})
	}
}

func recovery(l *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					l.Error("panic recovered", zap.Any("error", rec))
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte("internal server error"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
