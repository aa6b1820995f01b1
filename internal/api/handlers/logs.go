package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"puppyday/internal/core"
	notifcore "puppyday/internal/notifications/core"
	"puppyday/internal/types"
)

// LogStore mirrors the db.NotificationLogRepository methods the log viewer
// uses.
type LogStore interface {
	List(ctx context.Context, filter types.LogFilter) ([]*types.NotificationLog, types.PageInfo, error)
	GetByID(ctx context.Context, logID string) (*types.NotificationLog, error)
	ClaimForRetry(ctx context.Context, logID string) (bool, error)
	ReleaseClaim(ctx context.Context, logID string) error
	MarkDelivered(ctx context.Context, trackingID string) error
	MarkClicked(ctx context.Context, trackingID string) error
}

// Redeliverer re-drives one existing log row through the dispatch pipeline.
type Redeliverer interface {
	Redeliver(ctx context.Context, l *types.NotificationLog, schedule notifcore.RetrySchedule) (notifcore.Outcome, error)
}

// LogDTO is the log viewer wire shape: the stored row plus the derived
// exhausted flag, so the UI can distinguish "will retry later" from "no
// further automatic action".
type LogDTO struct {
	*types.NotificationLog
	Exhausted bool `json:"exhausted"`
}

// ResendResponse reports the outcome of a manual resend.
type ResendResponse struct {
	LogID  string          `json:"log_id"`
	Status types.LogStatus `json:"status"`
	Error  string          `json:"error,omitempty"`
}

// LogsHandler serves the admin log viewer: filtered listing, manual resend,
// and the provider tracking hooks.
type LogsHandler struct {
	logs       LogStore
	settings   SettingsStore
	dispatcher Redeliverer
	logger     *slog.Logger
}

// NewLogsHandler creates a LogsHandler.
func NewLogsHandler(logs LogStore, settings SettingsStore, dispatcher Redeliverer, logger *slog.Logger) *LogsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogsHandler{logs: logs, settings: settings, dispatcher: dispatcher, logger: logger}
}

// RegisterRoutes mounts the log viewer routes under the given router.
func (h *LogsHandler) RegisterRoutes(r chi.Router) {
	r.Route("/notifications/logs", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.Post("/{id}/resend", h.Resend)
	})
	r.Route("/notifications/track/{trackingID}", func(r chi.Router) {
		r.Post("/delivered", h.TrackDelivered)
		// GET serves the click-through link embedded in email bodies;
		// POST serves provider callbacks.
		r.Get("/clicked", h.TrackClicked)
		r.Post("/clicked", h.TrackClicked)
	})
}

// List handles GET /v1/notifications/logs with type/channel/status/date
// range/search filters and cursor pagination.
func (h *LogsHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseLogFilter(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	logs, pageInfo, err := h.logs.List(r.Context(), filter)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	dtos, err := h.decorate(r.Context(), logs)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, types.ListResponse[*LogDTO]{
		Data:     dtos,
		PageInfo: pageInfo,
	})
}

// Get handles GET /v1/notifications/logs/{id}.
func (h *LogsHandler) Get(w http.ResponseWriter, r *http.Request) {
	l, err := h.logs.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	dtos, err := h.decorate(r.Context(), []*types.NotificationLog{l})
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: dtos[0]})
}

// Resend handles POST /v1/notifications/logs/{id}/resend. Only failed rows
// can be resent; the conditional claim keeps a manual resend from racing the
// retry processor over the same row.
func (h *LogsHandler) Resend(w http.ResponseWriter, r *http.Request) {
	l, err := h.logs.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if l.Status != types.LogStatusFailed {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeConflictNotFailed,
			"only failed notifications can be resent",
			nil,
		))
		return
	}

	settings, err := h.settings.GetOrCreate(r.Context(), l.Type)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	claimed, err := h.logs.ClaimForRetry(r.Context(), l.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if !claimed {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeConflictNotFailed,
			"notification is already being retried",
			nil,
		))
		return
	}

	outcome, err := h.dispatcher.Redeliver(r.Context(), l, notifcore.ScheduleFromSettings(settings))
	if err != nil {
		if relErr := h.logs.ReleaseClaim(r.Context(), l.ID); relErr != nil {
			h.logger.ErrorContext(r.Context(), "failed to release resend claim", "log_id", l.ID, "error", relErr)
		}
		core.Error(w, r, err)
		return
	}

	resp := ResendResponse{LogID: outcome.LogID, Status: outcome.Status}
	if outcome.Err != nil {
		resp.Error = outcome.Err.Error()
	}
	h.logger.InfoContext(r.Context(), "manual resend completed", "log_id", l.ID, "status", outcome.Status)
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: resp})
}

// TrackDelivered handles POST /v1/notifications/track/{trackingID}/delivered.
// The timestamp is set once; repeated callbacks are no-ops.
func (h *LogsHandler) TrackDelivered(w http.ResponseWriter, r *http.Request) {
	if err := h.logs.MarkDelivered(r.Context(), chi.URLParam(r, "trackingID")); err != nil {
		core.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TrackClicked handles POST /v1/notifications/track/{trackingID}/clicked.
func (h *LogsHandler) TrackClicked(w http.ResponseWriter, r *http.Request) {
	if err := h.logs.MarkClicked(r.Context(), chi.URLParam(r, "trackingID")); err != nil {
		core.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decorate computes the exhausted flag for each row against its type's
// current max_retries. Settings rows are resolved once per type.
func (h *LogsHandler) decorate(ctx context.Context, logs []*types.NotificationLog) ([]*LogDTO, error) {
	maxRetries := make(map[types.NotificationType]int)
	dtos := make([]*LogDTO, 0, len(logs))
	for _, l := range logs {
		max, ok := maxRetries[l.Type]
		if !ok {
			s, err := h.settings.GetOrCreate(ctx, l.Type)
			if err != nil {
				return nil, err
			}
			max = s.MaxRetries
			maxRetries[l.Type] = max
		}
		dtos = append(dtos, &LogDTO{NotificationLog: l, Exhausted: l.Exhausted(max)})
	}
	return dtos, nil
}

// parseLogFilter maps query parameters onto a LogFilter, rejecting unknown
// enum values and malformed dates.
func parseLogFilter(r *http.Request) (types.LogFilter, error) {
	var filter types.LogFilter
	q := r.URL.Query()

	if v := q.Get("type"); v != "" {
		t := types.NotificationType(v)
		if !types.IsValidNotificationType(t) {
			return filter, types.NewAppError(types.ErrCodeValidationInvalidType, "unknown notification type: "+v, nil)
		}
		filter.Type = t
	}
	if v := q.Get("channel"); v != "" {
		c := types.Channel(v)
		if !types.IsValidChannel(c) {
			return filter, types.NewAppError(types.ErrCodeValidationInvalidChannel, "unknown channel: "+v, nil)
		}
		filter.Channel = c
	}
	if v := q.Get("status"); v != "" {
		s := types.LogStatus(v)
		if s != types.LogStatusPending && s != types.LogStatusSent && s != types.LogStatusFailed {
			return filter, types.NewAppError(types.ErrCodeValidationInvalidFilter, "unknown status: "+v, nil)
		}
		filter.Status = s
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, types.NewAppError(types.ErrCodeValidationInvalidFilter, "invalid from date; expected RFC3339", err)
		}
		filter.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, types.NewAppError(types.ErrCodeValidationInvalidFilter, "invalid to date; expected RFC3339", err)
		}
		filter.To = t
	}
	if v := q.Get("search"); v != "" {
		if len(v) > types.MaxSearchLength {
			return filter, types.NewAppError(types.ErrCodeValidationInvalidFilter, "search term too long", nil)
		}
		filter.Search = v
	}
	filter.Cursor = q.Get("cursor")
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return filter, types.NewAppError(types.ErrCodeValidationInvalidFilter, "limit must be a positive integer", err)
		}
		filter.Limit = n
	}

	return filter, nil
}
