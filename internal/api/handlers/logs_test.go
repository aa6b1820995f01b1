package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	notifcore "puppyday/internal/notifications/core"
	"puppyday/internal/types"
)

func failedLog(id string) *types.NotificationLog {
	return &types.NotificationLog{
		ID:           id,
		Type:         types.NotificationAppointmentReminder,
		Channel:      types.ChannelEmail,
		Recipient:    "maria@example.com",
		CustomerID:   "cust_1",
		Status:       types.LogStatusFailed,
		Content:      "Reminder: Biscuit has an appointment tomorrow.",
		ErrorMessage: "provider unavailable",
		AttemptCount: 1,
		CreatedAt:    clockNow.Add(-time.Hour),
	}
}

func newLogsRouter(logs *mockLogStore, settings *mockSettingsStore, dispatcher *mockRedeliverer) chi.Router {
	if settings == nil {
		settings = &mockSettingsStore{}
	}
	if dispatcher == nil {
		dispatcher = &mockRedeliverer{}
	}
	r := chi.NewRouter()
	NewLogsHandler(logs, settings, dispatcher, discardLogger()).RegisterRoutes(r)
	return r
}

func TestLogsList_PassesFilter(t *testing.T) {
	logs := &mockLogStore{listLogs: []*types.NotificationLog{failedLog("nlog_1")}}

	req := httptest.NewRequest(http.MethodGet,
		"/notifications/logs?type=appointment_reminder&channel=email&status=failed&search=maria&limit=10", nil)
	rec := httptest.NewRecorder()
	newLogsRouter(logs, nil, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.NotificationAppointmentReminder, logs.lastFilter.Type)
	assert.Equal(t, types.ChannelEmail, logs.lastFilter.Channel)
	assert.Equal(t, types.LogStatusFailed, logs.lastFilter.Status)
	assert.Equal(t, "maria", logs.lastFilter.Search)
	assert.Equal(t, 10, logs.lastFilter.Limit)
}

func TestLogsList_ParsesDateRange(t *testing.T) {
	logs := &mockLogStore{}

	req := httptest.NewRequest(http.MethodGet,
		"/notifications/logs?from=2026-03-01T00:00:00Z&to=2026-03-10T00:00:00Z", nil)
	rec := httptest.NewRecorder()
	newLogsRouter(logs, nil, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, logs.lastFilter.From.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, logs.lastFilter.To.Equal(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)))
}

func TestLogsList_RejectsBadFilters(t *testing.T) {
	tests := []struct {
		name  string
		query string
		code  types.ErrorCode
	}{
		{name: "unknown type", query: "type=carrier_pigeon", code: types.ErrCodeValidationInvalidType},
		{name: "unknown channel", query: "channel=fax", code: types.ErrCodeValidationInvalidChannel},
		{name: "unknown status", query: "status=maybe", code: types.ErrCodeValidationInvalidFilter},
		{name: "bad from date", query: "from=yesterday", code: types.ErrCodeValidationInvalidFilter},
		{name: "zero limit", query: "limit=0", code: types.ErrCodeValidationInvalidFilter},
		{name: "non numeric limit", query: "limit=ten", code: types.ErrCodeValidationInvalidFilter},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/notifications/logs?"+tc.query, nil)
			rec := httptest.NewRecorder()
			newLogsRouter(&mockLogStore{}, nil, nil).ServeHTTP(rec, req)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, string(tc.code), errorCode(t, rec))
		})
	}
}

func TestLogsList_DecoratesExhausted(t *testing.T) {
	exhausted := failedLog("nlog_1")
	exhausted.AttemptCount = 4 // 3 retries performed against max_retries 3
	fresh := failedLog("nlog_2")
	logs := &mockLogStore{listLogs: []*types.NotificationLog{exhausted, fresh}}
	settings := &mockSettingsStore{}

	req := httptest.NewRequest(http.MethodGet, "/notifications/logs", nil)
	rec := httptest.NewRecorder()
	newLogsRouter(logs, settings, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data []struct {
			ID        string `json:"id"`
			Exhausted bool   `json:"exhausted"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	assert.True(t, body.Data[0].Exhausted)
	assert.False(t, body.Data[1].Exhausted)

	// Both rows share a type; the settings row is resolved once.
	assert.Len(t, settings.gets, 1)
}

func TestLogsGet_NotFound(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/notifications/logs/nlog_missing", nil)
	rec := httptest.NewRecorder()
	newLogsRouter(&mockLogStore{}, nil, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(types.ErrCodeNotFoundLog), errorCode(t, rec))
}

func TestLogsResend_RedeliversFailedRow(t *testing.T) {
	l := failedLog("nlog_1")
	logs := &mockLogStore{logs: map[string]*types.NotificationLog{"nlog_1": l}}
	dispatcher := &mockRedeliverer{outcome: notifcore.Outcome{LogID: "nlog_1", Status: types.LogStatusSent}}

	req := httptest.NewRequest(http.MethodPost, "/notifications/logs/nlog_1/resend", nil)
	rec := httptest.NewRecorder()
	newLogsRouter(logs, nil, dispatcher).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"nlog_1"}, logs.claims)
	require.NotNil(t, dispatcher.gotLog)
	assert.Equal(t, "nlog_1", dispatcher.gotLog.ID)

	var body struct {
		Data ResendResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "nlog_1", body.Data.LogID)
	assert.Equal(t, types.LogStatusSent, body.Data.Status)
	assert.Empty(t, body.Data.Error)
}

func TestLogsResend_ReportsFailedOutcome(t *testing.T) {
	l := failedLog("nlog_1")
	logs := &mockLogStore{logs: map[string]*types.NotificationLog{"nlog_1": l}}
	dispatcher := &mockRedeliverer{outcome: notifcore.Outcome{
		LogID:  "nlog_1",
		Status: types.LogStatusFailed,
		Err:    errTransportTest,
	}}

	req := httptest.NewRequest(http.MethodPost, "/notifications/logs/nlog_1/resend", nil)
	rec := httptest.NewRecorder()
	newLogsRouter(logs, nil, dispatcher).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data ResendResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, types.LogStatusFailed, body.Data.Status)
	assert.Equal(t, "provider unavailable", body.Data.Error)
}

func TestLogsResend_ReleasesClaimOnPipelineError(t *testing.T) {
	l := failedLog("nlog_1")
	logs := &mockLogStore{logs: map[string]*types.NotificationLog{"nlog_1": l}}
	dispatcher := &mockRedeliverer{err: errTransportTest}

	req := httptest.NewRequest(http.MethodPost, "/notifications/logs/nlog_1/resend", nil)
	rec := httptest.NewRecorder()
	newLogsRouter(logs, nil, dispatcher).ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, []string{"nlog_1"}, logs.claims)
	assert.Equal(t, []string{"nlog_1"}, logs.releases)
}

func TestLogsResend_RejectsNonFailedRow(t *testing.T) {
	l := failedLog("nlog_1")
	l.Status = types.LogStatusSent
	logs := &mockLogStore{logs: map[string]*types.NotificationLog{"nlog_1": l}}
	dispatcher := &mockRedeliverer{}

	req := httptest.NewRequest(http.MethodPost, "/notifications/logs/nlog_1/resend", nil)
	rec := httptest.NewRecorder()
	newLogsRouter(logs, nil, dispatcher).ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(types.ErrCodeConflictNotFailed), errorCode(t, rec))
	assert.Empty(t, logs.claims)
	assert.Nil(t, dispatcher.gotLog)
}

func TestLogsResend_ClaimRaceReturnsConflict(t *testing.T) {
	l := failedLog("nlog_1")
	logs := &mockLogStore{logs: map[string]*types.NotificationLog{"nlog_1": l}, claimDenied: true}
	dispatcher := &mockRedeliverer{}

	req := httptest.NewRequest(http.MethodPost, "/notifications/logs/nlog_1/resend", nil)
	rec := httptest.NewRecorder()
	newLogsRouter(logs, nil, dispatcher).ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Nil(t, dispatcher.gotLog)
}

func TestTrack_DeliveredAndClicked(t *testing.T) {
	logs := &mockLogStore{}
	router := newLogsRouter(logs, nil, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/notifications/track/trk_abc/delivered", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/notifications/track/trk_abc/clicked", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	assert.Equal(t, []string{"trk_abc"}, logs.delivered)
	assert.Equal(t, []string{"trk_abc"}, logs.clicked)
}
