// Package handlers contains the HTTP handler implementations for the
// notification service: the cron job triggers, the settings API, and the
// admin log viewer.
//
// Handlers depend on locally defined interfaces rather than concrete
// scheduler or repository types, so tests can inject hand-written fakes.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"puppyday/internal/core"
	"puppyday/internal/scheduler"
	"puppyday/internal/types"
)

// ScanJob runs a cron-triggered eligibility scan (reminders, retention).
type ScanJob interface {
	Run(ctx context.Context, now time.Time) (scheduler.JobResult, error)
}

// RetryJob runs the retry processor.
type RetryJob interface {
	Run(ctx context.Context, now time.Time) (scheduler.RetryResult, error)
}

// cronScanResponse is the wire shape the external scheduler consumes. The
// cron endpoints return it bare, without the {data} envelope, to match what
// scheduler integrations already parse.
type cronScanResponse struct {
	Success   bool      `json:"success"`
	Processed int       `json:"processed"`
	Sent      int       `json:"sent"`
	Failed    int       `json:"failed"`
	Skipped   int       `json:"skipped"`
	Timestamp time.Time `json:"timestamp"`
}

type cronRetryResponse struct {
	Success    bool                   `json:"success"`
	Processed  int                    `json:"processed"`
	Succeeded  int                    `json:"succeeded"`
	Failed     int                    `json:"failed"`
	ErrorCount int                    `json:"error_count"`
	Errors     []scheduler.RetryError `json:"errors,omitempty"`
	DurationMS int64                  `json:"duration_ms"`
}

type cronSkippedResponse struct {
	Skipped bool   `json:"skipped"`
	Message string `json:"message"`
}

// CronHandler exposes the job trigger endpoints consumed by the external
// scheduler. Authentication happens in the router group, not here.
type CronHandler struct {
	reminders ScanJob
	retention ScanJob
	retry     RetryJob
	clock     types.Clock
	logger    *slog.Logger
}

// NewCronHandler creates a CronHandler with the provided jobs.
func NewCronHandler(reminders, retention ScanJob, retry RetryJob, clock types.Clock, logger *slog.Logger) *CronHandler {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CronHandler{
		reminders: reminders,
		retention: retention,
		retry:     retry,
		clock:     clock,
		logger:    logger,
	}
}

// RegisterRoutes mounts the cron routes. Both GET and POST trigger the same
// logic; schedulers differ in which verb they emit.
func (h *CronHandler) RegisterRoutes(r chi.Router) {
	r.Route("/notifications", func(r chi.Router) {
		r.Get("/reminders", h.Reminders)
		r.Post("/reminders", h.Reminders)
		r.Get("/retention", h.Retention)
		r.Post("/retention", h.Retention)
		r.Get("/retry", h.Retry)
		r.Post("/retry", h.Retry)
	})
}

// Reminders handles GET|POST /cron/notifications/reminders.
func (h *CronHandler) Reminders(w http.ResponseWriter, r *http.Request) {
	h.runScan(w, r, h.reminders)
}

// Retention handles GET|POST /cron/notifications/retention.
func (h *CronHandler) Retention(w http.ResponseWriter, r *http.Request) {
	h.runScan(w, r, h.retention)
}

func (h *CronHandler) runScan(w http.ResponseWriter, r *http.Request, job ScanJob) {
	now := h.clock.Now()
	res, err := job.Run(r.Context(), now)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, cronScanResponse{
		Success:   true,
		Processed: res.Processed,
		Sent:      res.Sent,
		Failed:    res.Failed,
		Skipped:   res.Skipped,
		Timestamp: now,
	})
}

// Retry handles GET|POST /cron/notifications/retry. A run blocked by the job
// lock is reported as a skip with HTTP 200 so the scheduler does not alert
// on ordinary overlap.
func (h *CronHandler) Retry(w http.ResponseWriter, r *http.Request) {
	res, err := h.retry.Run(r.Context(), h.clock.Now())
	if err != nil {
		if errors.Is(err, scheduler.ErrJobAlreadyRunning) {
			core.JSON(w, r, http.StatusOK, cronSkippedResponse{
				Skipped: true,
				Message: "Job already running",
			})
			return
		}
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, cronRetryResponse{
		Success:    true,
		Processed:  res.Processed,
		Succeeded:  res.Succeeded,
		Failed:     res.Failed,
		ErrorCount: res.ErrorCount,
		Errors:     res.Errors,
		DurationMS: res.DurationMS,
	})
}
