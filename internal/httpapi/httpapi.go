// Package httpapi is the illustrative HTTP surface wiring the core
// services together (spec.md §1 Non-goals excludes a fully spec'd API;
// this is the thin wrapper cmd/server mounts). Grounded on the
// teacher's internal/handlers style: one struct per resource, plain
// encoding/json, swaggo annotations, errors written with http.Error.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/wealthfolio/portfolio-engine/internal/activitystore"
	"github.com/wealthfolio/portfolio-engine/internal/assetcatalog"
	"github.com/wealthfolio/portfolio-engine/internal/health"
	"github.com/wealthfolio/portfolio-engine/internal/models"
	"github.com/wealthfolio/portfolio-engine/internal/networth"
	"github.com/wealthfolio/portfolio-engine/internal/performance"
	"github.com/wealthfolio/portfolio-engine/internal/valuation"
)

// ActivityHandler exposes ActivityStore over HTTP.
type ActivityHandler struct {
	store *activitystore.Store
}

func NewActivityHandler(store *activitystore.Store) *ActivityHandler {
	return &ActivityHandler{store: store}
}

// HandleActivities dispatches on method for the collection endpoint.
// @Summary List or create activities
// @Tags activities
// @Produce json
// @Param account_id query string false "filter by account"
// @Success 200 {array} models.Activity
// @Router /activities [get]
func (h *ActivityHandler) HandleActivities(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.Method {
	case http.MethodGet:
		filter := models.ActivityFilter{Limit: 200}
		if acc := r.URL.Query().Get("account_id"); acc != "" {
			filter.AccountID = &acc
		}
		rows, err := h.store.List(r.Context(), filter)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(rows)
	case http.MethodPost:
		var a models.Activity
		if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		if err := h.store.Create(r.Context(), &a); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(a)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// AssetHandler exposes AssetCatalog over HTTP.
type AssetHandler struct {
	catalog *assetcatalog.Catalog
}

func NewAssetHandler(catalog *assetcatalog.Catalog) *AssetHandler {
	return &AssetHandler{catalog: catalog}
}

// @Summary Get an asset by id
// @Tags assets
// @Produce json
// @Param id path string true "asset id"
// @Success 200 {object} models.Asset
// @Router /assets/{id} [get]
func (h *AssetHandler) HandleAsset(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := mux.Vars(r)["id"]
	asset, err := h.catalog.Get(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(asset)
}

// ValuationHandler exposes holdings/valuation reads.
type ValuationHandler struct {
	valuation *valuation.Service
}

func NewValuationHandler(v *valuation.Service) *ValuationHandler {
	return &ValuationHandler{valuation: v}
}

// @Summary Get priced holdings for an account
// @Tags valuation
// @Produce json
// @Param id path string true "account id"
// @Param base query string false "base currency (default USD)"
// @Success 200 {array} models.Holding
// @Router /accounts/{id}/holdings [get]
func (h *ValuationHandler) HandleHoldings(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	accountID := mux.Vars(r)["id"]
	base := r.URL.Query().Get("base")
	if base == "" {
		base = "USD"
	}
	holdings, err := h.valuation.PriceHoldings(r.Context(), accountID, base)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(holdings)
}

// PerformanceHandler exposes PerformanceEngine reads.
type PerformanceHandler struct {
	engine *performance.Engine
}

func NewPerformanceHandler(e *performance.Engine) *PerformanceHandler {
	return &PerformanceHandler{engine: e}
}

// @Summary Get TWR/simple return metrics for an account over a range
// @Tags performance
// @Produce json
// @Param id path string true "account id"
// @Param start query string true "range start (YYYY-MM-DD)"
// @Param end query string true "range end (YYYY-MM-DD)"
// @Success 200 {object} models.PerformanceMetrics
// @Router /accounts/{id}/performance [get]
func (h *PerformanceHandler) HandlePerformance(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	accountID := mux.Vars(r)["id"]
	start, end, ok := parseRange(w, r)
	if !ok {
		return
	}
	metrics, err := h.engine.ForAccount(r.Context(), accountID, start, end)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(metrics)
}

// NetWorthHandler exposes NetWorthService reads.
type NetWorthHandler struct {
	service *networth.Service
}

func NewNetWorthHandler(s *networth.Service) *NetWorthHandler {
	return &NetWorthHandler{service: s}
}

// @Summary Get the current net worth breakdown
// @Tags networth
// @Produce json
// @Param accounts query string true "comma-separated account ids"
// @Param base query string false "base currency (default USD)"
// @Success 200 {object} models.NetWorthReport
// @Router /networth [get]
func (h *NetWorthHandler) HandleNetWorth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	accounts := splitCSV(r.URL.Query().Get("accounts"))
	base := r.URL.Query().Get("base")
	if base == "" {
		base = "USD"
	}
	report, err := h.service.NetWorth(r.Context(), accounts, time.Now().UTC(), base)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(report)
}

// @Summary Get the net worth history series
// @Tags networth
// @Produce json
// @Param start query string true "range start (YYYY-MM-DD)"
// @Param end query string true "range end (YYYY-MM-DD)"
// @Param base query string false "base currency (default USD)"
// @Success 200 {array} models.NetWorthHistoryPoint
// @Router /networth/history [get]
func (h *NetWorthHandler) HandleNetWorthHistory(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	start, end, ok := parseRange(w, r)
	if !ok {
		return
	}
	base := r.URL.Query().Get("base")
	if base == "" {
		base = "USD"
	}
	points, err := h.service.History(r.Context(), start, end, base)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(points)
}

// HealthHandler exposes the persisted HealthMonitor issue set.
type HealthHandler struct {
	store *health.Store
}

func NewHealthHandler(store *health.Store) *HealthHandler {
	return &HealthHandler{store: store}
}

// @Summary List open health issues
// @Tags health
// @Produce json
// @Param include_dismissed query bool false "include dismissed issues"
// @Success 200 {array} models.HealthIssue
// @Router /health/issues [get]
func (h *HealthHandler) HandleIssues(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	includeDismissed := r.URL.Query().Get("include_dismissed") == "true"
	issues, err := h.store.List(r.Context(), includeDismissed)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(issues)
}

// @Summary Dismiss a health issue
// @Tags health
// @Param id path string true "issue id"
// @Success 204
// @Router /health/issues/{id}/dismiss [post]
func (h *HealthHandler) HandleDismiss(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.store.Dismiss(r.Context(), id); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseRange(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	q := r.URL.Query()
	start, err := time.Parse("2006-01-02", q.Get("start"))
	if err != nil {
		http.Error(w, "invalid or missing start", http.StatusBadRequest)
		return time.Time{}, time.Time{}, false
	}
	end, err := time.Parse("2006-01-02", q.Get("end"))
	if err != nil {
		http.Error(w, "invalid or missing end", http.StatusBadRequest)
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
