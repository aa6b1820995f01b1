package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/robfig/cron/v3"

	"puppyday/internal/core"
	"puppyday/internal/db"
	"puppyday/internal/types"
)

// cronParser accepts exactly five fields (minute through day-of-week).
// Descriptor forms like @daily and @every are rejected.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// SettingsStore mirrors the db.SettingsRepository methods the handler uses.
type SettingsStore interface {
	GetOrCreate(ctx context.Context, t types.NotificationType) (*types.NotificationSettings, error)
	Update(ctx context.Context, t types.NotificationType, update *db.SettingsUpdate) (*types.NotificationSettings, error)
}

// nullableString distinguishes an absent key from an explicit null in PUT
// payloads. schedule_cron: null disables scheduling, while an absent key
// leaves the stored cron untouched.
type nullableString struct {
	Set   bool
	Value string // empty when null
}

func (n *nullableString) UnmarshalJSON(b []byte) error {
	n.Set = true
	if string(b) == "null" {
		return nil
	}
	return json.Unmarshal(b, &n.Value)
}

// UpdateSettingsRequest is the request body for PUT /v1/notifications/settings/{type}.
// All fields are optional; at least one must be present.
type UpdateSettingsRequest struct {
	EmailEnabled       *bool          `json:"email_enabled"`
	SMSEnabled         *bool          `json:"sms_enabled"`
	ScheduleEnabled    *bool          `json:"schedule_enabled"`
	ScheduleCron       nullableString `json:"schedule_cron"`
	MaxRetries         *int           `json:"max_retries"`
	RetryDelaysSeconds *[]int         `json:"retry_delays_seconds"`
}

// SettingsHandler serves the per-type notification settings API.
type SettingsHandler struct {
	store  SettingsStore
	logger *slog.Logger
}

// NewSettingsHandler creates a SettingsHandler.
func NewSettingsHandler(store SettingsStore, logger *slog.Logger) *SettingsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SettingsHandler{store: store, logger: logger}
}

// RegisterRoutes mounts the settings routes under the given router.
func (h *SettingsHandler) RegisterRoutes(r chi.Router) {
	r.Route("/notifications/settings", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/{type}", h.Get)
		r.Put("/{type}", h.Update)
	})
}

// List handles GET /v1/notifications/settings. Rows are created with
// defaults for any type not yet configured.
func (h *SettingsHandler) List(w http.ResponseWriter, r *http.Request) {
	out := make([]*types.NotificationSettings, 0, len(types.AllNotificationTypes))
	for _, t := range types.AllNotificationTypes {
		s, err := h.store.GetOrCreate(r.Context(), t)
		if err != nil {
			core.Error(w, r, err)
			return
		}
		out = append(out, s)
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: out})
}

// Get handles GET /v1/notifications/settings/{type}.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := notificationTypeParam(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	s, err := h.store.GetOrCreate(r.Context(), t)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: s})
}

// Update handles PUT /v1/notifications/settings/{type}. Partial update: only
// the fields present in the body are written, after validation. An empty
// body performs zero writes and returns 400.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	t, err := notificationTypeParam(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var req UpdateSettingsRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	update, err := buildSettingsUpdate(&req)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	s, err := h.store.Update(r.Context(), t, update)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "notification settings updated", "type", t)
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: s})
}

// buildSettingsUpdate validates the request and maps it onto a repository
// update. Validation failures leave the row untouched.
func buildSettingsUpdate(req *UpdateSettingsRequest) (*db.SettingsUpdate, error) {
	update := &db.SettingsUpdate{
		EmailEnabled:       req.EmailEnabled,
		SMSEnabled:         req.SMSEnabled,
		ScheduleEnabled:    req.ScheduleEnabled,
		MaxRetries:         req.MaxRetries,
		RetryDelaysSeconds: req.RetryDelaysSeconds,
	}

	// Null and the empty string both clear the schedule; anything else must
	// be a valid 5-field expression.
	if req.ScheduleCron.Set {
		if req.ScheduleCron.Value != "" {
			if _, err := cronParser.Parse(req.ScheduleCron.Value); err != nil {
				return nil, types.NewAppError(
					types.ErrCodeValidationInvalidCron,
					"Invalid cron expression format",
					err,
				)
			}
		}
		cronVal := req.ScheduleCron.Value
		update.ScheduleCron = &cronVal
	}

	if req.MaxRetries != nil {
		if *req.MaxRetries < 0 || *req.MaxRetries > types.MaxRetriesCeiling {
			return nil, types.NewAppError(
				types.ErrCodeValidationInvalidRetries,
				fmt.Sprintf("max_retries must be between 0 and %d", types.MaxRetriesCeiling),
				nil,
			)
		}
	}

	if req.RetryDelaysSeconds != nil {
		for _, d := range *req.RetryDelaysSeconds {
			if d < 0 || d > types.MaxRetryDelaySecond {
				return nil, types.NewAppError(
					types.ErrCodeValidationInvalidDelays,
					fmt.Sprintf("retry delays must be between 0 and %d seconds", types.MaxRetryDelaySecond),
					nil,
				)
			}
		}
	}

	if update.IsEmpty() {
		return nil, types.NewAppError(
			types.ErrCodeValidationNoFields,
			"No valid fields provided for update",
			nil,
		)
	}

	return update, nil
}

func notificationTypeParam(r *http.Request) (types.NotificationType, error) {
	t := types.NotificationType(chi.URLParam(r, "type"))
	if !types.IsValidNotificationType(t) {
		return "", types.NewAppError(
			types.ErrCodeValidationInvalidType,
			"unknown notification type: "+string(t),
			nil,
		)
	}
	return t, nil
}
