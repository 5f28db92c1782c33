package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/moverra/transit-reservation/internal/model"
	"github.com/moverra/transit-reservation/internal/repository"
	"github.com/moverra/transit-reservation/internal/worker"
)

// CancellationLogStore is the query surface over the cancellation audit log.
type CancellationLogStore interface {
	ListCancellationLogs(ctx context.Context, userID uint64, limit int) ([]model.CancellationLogEntry, error)
}

// NotificationStore covers manual enqueue and per-user history.
type NotificationStore interface {
	Enqueue(ctx context.Context, req *model.NotificationRequest) error
	ListByUser(ctx context.Context, userID uint64, limit int) ([]model.NotificationRequest, error)
}

// PreferenceStore is the pass-through to the preference storage.
type PreferenceStore interface {
	GetPreferences(ctx context.Context, userID uint64) (map[string]bool, error)
	SetPreference(ctx context.Context, userID uint64, channel string, enabled bool) error
}

// TripPricingStore is the single-trip lookup behind the fare endpoint.
// Implementations return repository.ErrNotFound for an unknown trip.
type TripPricingStore interface {
	GetPricing(ctx context.Context, tripID uint64) (model.TripPricingState, error)
}

// PriceCache is the read side of the fare mirror.  The boolean is false
// on a miss, after which the handler reads the row instead.
type PriceCache interface {
	Get(ctx context.Context, tripID uint64) (model.TripPricingState, bool)
}

// OperatorHandler exposes the operator-facing surface of the lifecycle
// core: manual cancellation sweeps, the runtime-adjustable timeout, the
// cancellation audit log, notification queue visibility, manual
// enqueueing, and per-user delivery preferences.  Authentication is the
// responsibility of the surrounding API layer; these handlers assume
// the request has already been authorized.
type OperatorHandler struct {
	Cancel        *worker.AutoCancelWorker // sweep trigger and timeout get/set
	Dispatch      *worker.DispatchWorker   // pending-count query
	Logs          CancellationLogStore     // cancellation log queries
	Notifications NotificationStore        // manual enqueue and history
	Preferences   PreferenceStore          // preference pass-through
	Trips         TripPricingStore         // single-trip fare lookup
	Prices        PriceCache               // fare mirror; nil means always read the row
}

// NewOperatorHandler constructs an OperatorHandler.  All dependencies
// except the price cache must be non-nil; a nil cache just means every
// fare read goes to the database.
func NewOperatorHandler(cancel *worker.AutoCancelWorker, dispatch *worker.DispatchWorker, logs CancellationLogStore, notifications NotificationStore, preferences PreferenceStore, trips TripPricingStore, prices PriceCache) *OperatorHandler {
	if cancel == nil || dispatch == nil || logs == nil || notifications == nil || preferences == nil || trips == nil {
		panic("nil dependency passed to NewOperatorHandler")
	}
	return &OperatorHandler{
		Cancel:        cancel,
		Dispatch:      dispatch,
		Logs:          logs,
		Notifications: notifications,
		Preferences:   preferences,
		Trips:         trips,
		Prices:        prices,
	}
}

// RunCancellation handles POST /v1/admin/cancellation/run.  It performs
// an on-demand auto-cancellation sweep.  The optional JSON body may
// carry "timeout_min" to override the configured timeout for this
// sweep only.  Responds with the number of reservations expired.
func (h *OperatorHandler) RunCancellation(c echo.Context) error {
	var body struct {
		TimeoutMin *int `json:"timeout_min"`
	}
	// An empty body is fine; only a malformed one is rejected.
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	var override *time.Duration
	if body.TimeoutMin != nil {
		if *body.TimeoutMin <= 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "timeout_min must be positive"})
		}
		d := time.Duration(*body.TimeoutMin) * time.Minute
		override = &d
	}
	expired, err := h.Cancel.RunNow(c.Request().Context(), override)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "sweep failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"expired": expired})
}

// GetCancellationTimeout handles GET /v1/admin/cancellation/timeout.
func (h *OperatorHandler) GetCancellationTimeout(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"timeout_min": int(h.Cancel.Timeout().Minutes())})
}

// SetCancellationTimeout handles PUT /v1/admin/cancellation/timeout.
// The body must carry a positive "timeout_min".  The new value applies
// from the next tick.
func (h *OperatorHandler) SetCancellationTimeout(c echo.Context) error {
	var body struct {
		TimeoutMin int `json:"timeout_min"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := h.Cancel.SetTimeout(time.Duration(body.TimeoutMin) * time.Minute); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "timeout_min must be positive"})
	}
	return c.JSON(http.StatusOK, echo.Map{"timeout_min": body.TimeoutMin})
}

// ListCancellationLogs handles GET /v1/admin/cancellation/logs.  The
// optional "user_id" query parameter restricts the result to one user;
// "limit" caps the page size (default 100, max 500).
func (h *OperatorHandler) ListCancellationLogs(c echo.Context) error {
	var userID uint64
	if raw := c.QueryParam("user_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || id == 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user_id"})
		}
		userID = id
	}
	entries, err := h.Logs.ListCancellationLogs(c.Request().Context(), userID, queryLimit(c))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"logs": entries})
}

// PendingNotificationCount handles GET /v1/admin/notifications/pending-count.
func (h *OperatorHandler) PendingNotificationCount(c echo.Context) error {
	n, err := h.Dispatch.PendingCount(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"pending": n})
}

// EnqueueNotification handles POST /v1/notifications.  Other services
// use this to push a notification synchronously; the dispatch worker
// delivers it on its next tick.
func (h *OperatorHandler) EnqueueNotification(c echo.Context) error {
	var body struct {
		UserID  uint64 `json:"user_id"`
		Channel string `json:"channel"`
		Payload string `json:"payload"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.UserID == 0 || body.Channel == "" || body.Payload == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "user_id, channel and payload are required"})
	}
	req := model.NotificationRequest{
		UserID:  body.UserID,
		Channel: body.Channel,
		Payload: body.Payload,
	}
	if err := h.Notifications.Enqueue(c.Request().Context(), &req); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusCreated, echo.Map{"id": req.ID, "status": req.Status})
}

// NotificationHistory handles GET /v1/users/:id/notifications.
func (h *OperatorHandler) NotificationHistory(c echo.Context) error {
	userID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || userID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	reqs, err := h.Notifications.ListByUser(c.Request().Context(), userID, queryLimit(c))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"notifications": reqs})
}

// GetPreferences handles GET /v1/users/:id/preferences.  Channels the
// user never toggled are reported as enabled.
func (h *OperatorHandler) GetPreferences(c echo.Context) error {
	userID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || userID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	prefs, err := h.Preferences.GetPreferences(c.Request().Context(), userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	// Fill in defaults for the well-known channels so the response is
	// complete even for users with no stored rows.
	for _, ch := range []string{model.ChannelEmail, model.ChannelSMS, model.ChannelPush} {
		if _, ok := prefs[ch]; !ok {
			prefs[ch] = true
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"preferences": prefs})
}

// SetPreferences handles PUT /v1/users/:id/preferences.  The body is a
// map of channel name to enabled flag; each entry is upserted.
func (h *OperatorHandler) SetPreferences(c echo.Context) error {
	userID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || userID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	var body struct {
		Preferences map[string]bool `json:"preferences"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if len(body.Preferences) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "preferences is required"})
	}
	ctx := c.Request().Context()
	for channel, enabled := range body.Preferences {
		if channel == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "empty channel name"})
		}
		if err := h.Preferences.SetPreference(ctx, userID, channel, enabled); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"preferences": body.Preferences})
}

// TripPrice handles GET /v1/trips/:id/price.  The cached fare is served
// when present; a miss falls through to the trips table, so callers see
// a live price even when the mirror is cold or disabled.
func (h *OperatorHandler) TripPrice(c echo.Context) error {
	tripID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || tripID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid trip id"})
	}
	ctx := c.Request().Context()
	if h.Prices != nil {
		if state, ok := h.Prices.Get(ctx, tripID); ok {
			return c.JSON(http.StatusOK, state)
		}
	}
	state, err := h.Trips.GetPricing(ctx, tripID)
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "trip not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, state)
}

// queryLimit parses the optional "limit" query parameter, defaulting to
// 100 and capping at 500.
func queryLimit(c echo.Context) int {
	limit := 100
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}
	return limit
}
