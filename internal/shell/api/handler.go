// Package api provides HTTP handlers for the OOS workflow API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/trueclassic/oosflow/internal/core/analytics"
	"github.com/trueclassic/oosflow/internal/core/auth"
	"github.com/trueclassic/oosflow/internal/core/orders"
	"github.com/trueclassic/oosflow/internal/shell/refresh"
	"github.com/trueclassic/oosflow/internal/shell/store"
	"github.com/trueclassic/oosflow/internal/shell/warehouse"
)

// =============================================================================
// Collaborator Interfaces
// =============================================================================

// Warehouse is the warehouse surface the API needs. *warehouse.Service
// implements it.
type Warehouse interface {
	Configured() bool
	OOSOrders(ctx context.Context, source orders.Source) ([]map[string]any, error)
	OrderDetails(ctx context.Context, source orders.Source, orderID string) (map[string]any, error)
	LastRefreshTime(ctx context.Context) (*time.Time, error)
	HistoricalOOSOrders(ctx context.Context, start, end time.Time) ([]warehouse.SourcedOrder, error)
	ResolvedOrderTimes(ctx context.Context, start, end time.Time) ([]warehouse.ResolvedTimes, error)
	UserByUsername(ctx context.Context, username string) (*warehouse.User, error)
	AllUsers(ctx context.Context) ([]warehouse.User, error)
	CreateUser(ctx context.Context, user warehouse.User) error
	UpdatePassword(ctx context.Context, username, newHash string) error
	DeleteUser(ctx context.Context, username string) error
	AddComment(ctx context.Context, c warehouse.Comment) (warehouse.Comment, error)
	Comments(ctx context.Context, orderID, sku string) ([]warehouse.Comment, error)
}

// StordInventory looks up live Stord stock for one SKU.
type StordInventory interface {
	SKUInventory(ctx context.Context, sku string) (int, error)
}

// ShipbobInventory looks up live ShipBob stock for one SKU, split by
// fulfillment center.
type ShipbobInventory interface {
	SKUInventory(ctx context.Context, sku string) (fontana, other int, err error)
}

// Refresher triggers background refresh runs.
type Refresher interface {
	Trigger(trigger string, sources ...orders.Source) (string, error)
	Running() bool
}

// =============================================================================
// Handler
// =============================================================================

const defaultRateLimit = 100 // requests per minute per IP

// Config holds API handler configuration.
type Config struct {
	// AppUsername/AppPassword are the static service credentials used for
	// HTTP Basic auth and as a login fallback when user storage is empty.
	AppUsername string
	AppPassword string

	// AllowedOrigins is the CORS allow-list. Empty means no CORS headers.
	AllowedOrigins []string

	// RateLimit is the per-IP request budget per minute. 0 means the
	// default of 100.
	RateLimit int

	Version string
}

// Handler provides HTTP handlers for the API.
type Handler struct {
	warehouse Warehouse
	stord     StordInventory
	shipbob   ShipbobInventory
	refresher Refresher
	jobs      store.Store
	tokens    *auth.TokenIssuer
	logger    *slog.Logger
	cfg       Config
}

// NewHandler creates a new API handler. jobs may be nil when no local job
// journal is configured; stord/shipbob may be nil when a partner is not
// configured.
func NewHandler(wh Warehouse, stord StordInventory, shipbob ShipbobInventory, ref Refresher, jobs store.Store, tokens *auth.TokenIssuer, logger *slog.Logger, cfg Config) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	return &Handler{
		warehouse: wh,
		stord:     stord,
		shipbob:   shipbob,
		refresher: ref,
		jobs:      jobs,
		tokens:    tokens,
		logger:    logger,
		cfg:       cfg,
	}
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httprate.LimitByIP(h.cfg.RateLimit, time.Minute))
	r.Use(h.corsHeaders)
	r.Use(h.jsonContentType)
	r.Use(h.requestIDHeader)

	// Public endpoints
	r.Get("/", h.handleBanner)
	r.Get("/health", h.handleHealth)
	r.Get("/ready", h.handleReady)
	r.Get("/openapi.json", h.handleOpenAPI)
	r.Post("/token", h.handleToken)

	// Authenticated API
	r.Route("/api", func(r chi.Router) {
		r.Use(h.requireAuth)

		r.Get("/{source}/oos-orders", h.handleOOSOrders)
		r.Get("/{source}/order-details/{orderID}", h.handleOrderDetails)
		r.Post("/trigger-refresh", h.handleTriggerRefresh)
		r.Post("/trigger-refresh/{source}", h.handleTriggerRefresh)
		r.Get("/last-refresh-time", h.handleLastRefreshTime)
		r.Post("/inventory/bulk", h.handleBulkInventory)
		r.Get("/analytics", h.handleAnalytics)
		r.Get("/refresh-jobs", h.handleRefreshJobs)

		r.Post("/comments", h.handleCreateComment)
		r.Get("/comments", h.handleListComments)

		r.Get("/users/me", h.handleCurrentUser)
		r.Put("/users/me/reset-password", h.handleResetOwnPassword)

		// Admin-only user management
		r.Group(func(r chi.Router) {
			r.Use(h.requireAdmin)
			r.Post("/users", h.handleCreateUser)
			r.Get("/users", h.handleListUsers)
			r.Put("/users/{username}/force-reset-password", h.handleForceResetPassword)
			r.Delete("/users/{username}", h.handleDeleteUser)
		})
	})

	return r
}

// =============================================================================
// Public Handlers
// =============================================================================

func (h *Handler) handleBanner(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, BannerResponse{
		Service: "oosflow-api",
		Version: h.cfg.Version,
		Endpoints: map[string]string{
			"health":            "/health",
			"ready":             "/ready",
			"openapi":           "/openapi.json",
			"token":             "/token",
			"oos_orders":        "/api/{source}/oos-orders",
			"order_details":     "/api/{source}/order-details/{orderID}",
			"trigger_refresh":   "/api/trigger-refresh",
			"last_refresh_time": "/api/last-refresh-time",
			"inventory":         "/api/inventory/bulk",
			"analytics":         "/api/analytics",
			"refresh_jobs":      "/api/refresh-jobs",
			"comments":          "/api/comments",
			"users":             "/api/users",
		},
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)

	status := http.StatusOK
	ready := "ready"
	if h.warehouse.Configured() {
		checks["warehouse"] = "ok"
	} else {
		checks["warehouse"] = "not_configured"
		status = http.StatusServiceUnavailable
		ready = "not_ready"
	}

	h.writeJSON(w, status, ReadyResponse{Status: ready, Checks: checks})
}

// =============================================================================
// Order Handlers
// =============================================================================

func (h *Handler) handleOOSOrders(w http.ResponseWriter, r *http.Request) {
	source, ok := orders.ParseSource(chi.URLParam(r, "source"))
	if !ok {
		h.writeError(w, http.StatusBadRequest, "unknown source", "invalid_source")
		return
	}

	raws, err := h.warehouse.OOSOrders(r.Context(), source)
	if err != nil {
		h.warehouseError(w, err, "failed to list oos orders")
		return
	}

	converted := make([]orders.OrderDetails, 0, len(raws))
	for _, raw := range raws {
		converted = append(converted, orders.Convert(source, raw, true))
	}

	h.writeJSON(w, http.StatusOK, OOSOrdersResponse{
		Source: string(source),
		Count:  len(converted),
		Orders: converted,
	})
}

func (h *Handler) handleOrderDetails(w http.ResponseWriter, r *http.Request) {
	source, ok := orders.ParseSource(chi.URLParam(r, "source"))
	if !ok {
		h.writeError(w, http.StatusBadRequest, "unknown source", "invalid_source")
		return
	}
	orderID := chi.URLParam(r, "orderID")

	raw, err := h.warehouse.OrderDetails(r.Context(), source, orderID)
	if err != nil {
		if errors.Is(err, warehouse.ErrOrderNotFound) {
			h.writeError(w, http.StatusNotFound, "order not found", "order_not_found")
			return
		}
		h.warehouseError(w, err, "failed to get order")
		return
	}

	h.writeJSON(w, http.StatusOK, orders.Convert(source, raw, true))
}

// =============================================================================
// Refresh Handlers
// =============================================================================

func (h *Handler) handleTriggerRefresh(w http.ResponseWriter, r *http.Request) {
	var sources []orders.Source
	if seg := chi.URLParam(r, "source"); seg != "" {
		source, ok := orders.ParseSource(seg)
		if !ok {
			h.writeError(w, http.StatusBadRequest, "unknown source", "invalid_source")
			return
		}
		sources = []orders.Source{source}
	}

	jobID, err := h.refresher.Trigger("api", sources...)
	if err != nil {
		if errors.Is(err, refresh.ErrRefreshInProgress) {
			h.writeJSON(w, http.StatusAccepted, RefreshResponse{
				Status:  "already_running",
				Message: "a refresh is already in progress",
			})
			return
		}
		h.logger.Error("failed to trigger refresh", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to trigger refresh", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusAccepted, RefreshResponse{Status: "started", JobID: jobID})
}

func (h *Handler) handleLastRefreshTime(w http.ResponseWriter, r *http.Request) {
	ts, err := h.warehouse.LastRefreshTime(r.Context())
	if err != nil {
		h.warehouseError(w, err, "failed to read last refresh time")
		return
	}
	if ts == nil {
		h.writeError(w, http.StatusNotFound, "no refresh has completed yet", "no_data")
		return
	}
	h.writeJSON(w, http.StatusOK, LastRefreshResponse{LastRefreshTime: *ts})
}

func (h *Handler) handleRefreshJobs(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		h.writeError(w, http.StatusServiceUnavailable, "job journal not configured", "journal_unavailable")
		return
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	jobs, err := h.jobs.ListJobs(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list refresh jobs", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list refresh jobs", "internal_error")
		return
	}
	if jobs == nil {
		jobs = []store.RefreshJob{}
	}
	h.writeJSON(w, http.StatusOK, jobs)
}

// =============================================================================
// Inventory Handler
// =============================================================================

func (h *Handler) handleBulkInventory(w http.ResponseWriter, r *http.Request) {
	var req BulkInventoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}

	// Dedupe on the normalized key so "SKU-1 " and "sku-1" are one lookup.
	seen := make(map[string]bool)
	var skus []string
	for _, sku := range req.SKUs {
		key := orders.NormalizeSKU(sku)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		skus = append(skus, key)
	}

	results := make(map[string]orders.SkuInventory, len(skus))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, sku := range skus {
		wg.Add(1)
		go func(sku string) {
			defer wg.Done()
			inv := h.lookupInventory(r.Context(), sku)
			mu.Lock()
			results[sku] = inv
			mu.Unlock()
		}(sku)
	}
	wg.Wait()

	h.writeJSON(w, http.StatusOK, results)
}

// lookupInventory queries both partners for one SKU. Lookup failures are
// logged and reported as zero stock, matching the per-partner tolerance of
// the refresh path.
func (h *Handler) lookupInventory(ctx context.Context, sku string) orders.SkuInventory {
	inv := orders.SkuInventory{SKU: sku}

	var wg sync.WaitGroup
	if h.stord != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			qty, err := h.stord.SKUInventory(ctx, sku)
			if err != nil {
				h.logger.Warn("stord inventory lookup failed", "sku", sku, "error", err)
				return
			}
			inv.StordStock = qty
		}()
	}
	if h.shipbob != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fontana, other, err := h.shipbob.SKUInventory(ctx, sku)
			if err != nil {
				h.logger.Warn("shipbob inventory lookup failed", "sku", sku, "error", err)
				return
			}
			inv.ShipbobFontanaStock = fontana
			inv.ShipbobOtherStock = other
		}()
	}
	wg.Wait()
	return inv
}

// =============================================================================
// Analytics Handler
// =============================================================================

func (h *Handler) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseDateRange(r.URL.Query().Get("start"), r.URL.Query().Get("end"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "validation_error")
		return
	}

	historical, err := h.warehouse.HistoricalOOSOrders(r.Context(), start, end)
	if err != nil {
		h.warehouseError(w, err, "failed to load historical orders")
		return
	}
	resolvedTimes, err := h.warehouse.ResolvedOrderTimes(r.Context(), start, end)
	if err != nil {
		h.warehouseError(w, err, "failed to load resolution times")
		return
	}

	current := make([]orders.OrderDetails, 0, len(historical))
	for _, so := range historical {
		current = append(current, orders.Convert(so.Source, so.Raw, false))
	}
	resolved := make([]analytics.ResolvedOrder, 0, len(resolvedTimes))
	for _, rt := range resolvedTimes {
		source, ok := orders.ParseSource(rt.Source)
		if !ok {
			continue
		}
		resolved = append(resolved, analytics.ResolvedOrder{
			Source:     source,
			FirstSeen:  rt.FirstSeen,
			ResolvedAt: rt.ResolvedAt,
		})
	}

	h.writeJSON(w, http.StatusOK, analytics.Build(current, resolved, time.Now().UTC()))
}

// parseDateRange resolves the analytics window. Defaults to the trailing 30
// days; accepts RFC 3339 timestamps or plain dates.
func parseDateRange(startStr, endStr string) (time.Time, time.Time, error) {
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -30)

	var err error
	if startStr != "" {
		if start, err = parseFlexibleTime(startStr); err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid start date")
		}
	}
	if endStr != "" {
		if end, err = parseFlexibleTime(endStr); err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid end date")
		}
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, errors.New("end date before start date")
	}
	return start, end, nil
}

func parseFlexibleTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// =============================================================================
// Comment Handlers
// =============================================================================

func (h *Handler) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	var req CreateCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}
	if req.OrderID == "" || req.Text == "" {
		h.writeError(w, http.StatusBadRequest, "order_id and text are required", "validation_error")
		return
	}

	ident := identityFromContext(r.Context())
	created, err := h.warehouse.AddComment(r.Context(), warehouse.Comment{
		OrderID: req.OrderID,
		SKU:     req.SKU,
		Author:  ident.Username,
		Text:    req.Text,
	})
	if err != nil {
		h.warehouseError(w, err, "failed to add comment")
		return
	}

	h.writeJSON(w, http.StatusCreated, commentToResponse(created))
}

func (h *Handler) handleListComments(w http.ResponseWriter, r *http.Request) {
	orderID := r.URL.Query().Get("order_id")
	sku := r.URL.Query().Get("sku")
	if orderID == "" && sku == "" {
		h.writeError(w, http.StatusBadRequest, "order_id or sku is required", "validation_error")
		return
	}

	comments, err := h.warehouse.Comments(r.Context(), orderID, sku)
	if err != nil {
		h.warehouseError(w, err, "failed to list comments")
		return
	}

	out := make([]CommentResponse, 0, len(comments))
	for _, c := range comments {
		out = append(out, commentToResponse(c))
	}
	h.writeJSON(w, http.StatusOK, out)
}

func commentToResponse(c warehouse.Comment) CommentResponse {
	return CommentResponse{
		ID:        c.ID,
		OrderID:   c.OrderID,
		SKU:       c.SKU,
		Author:    c.Author,
		Text:      c.Text,
		CreatedAt: c.CreatedAt,
	}
}

// =============================================================================
// Helpers
// =============================================================================

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// warehouseError maps a warehouse failure onto the HTTP response. Anything
// that is not a specific sentinel is treated as the warehouse being
// unavailable.
func (h *Handler) warehouseError(w http.ResponseWriter, err error, logMsg string) {
	if errors.Is(err, warehouse.ErrNotConfigured) {
		h.writeError(w, http.StatusServiceUnavailable, "warehouse is not configured", "warehouse_unavailable")
		return
	}
	h.logger.Error(logMsg, "error", err)
	h.writeError(w, http.StatusServiceUnavailable, "warehouse is unavailable", "warehouse_unavailable")
}

func sortedUsernames(users []warehouse.User) []UserResponse {
	out := make([]UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, UserResponse{Username: u.Username, Role: u.Role})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}
