package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandleHealth_NoProbes(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	s.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	var body healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Status != "healthy" {
		t.Errorf("status = %q", body.Status)
	}
}

func TestHandleHealth_AllHealthy(t *testing.T) {
	s := newTestServer(t)
	s.HealthProbes = []HealthProbe{
		ProbeFunc{ProbeName: "database", Fn: func(context.Context) error { return nil }},
		ProbeFunc{ProbeName: "email_provider", Fn: func(context.Context) error { return nil }},
	}

	w := httptest.NewRecorder()
	s.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	var body healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Components["database"].Status != "healthy" {
		t.Errorf("database component = %+v", body.Components["database"])
	}
}

func TestHandleHealth_ProbeFailure(t *testing.T) {
	s := newTestServer(t)
	s.HealthProbes = []HealthProbe{
		ProbeFunc{ProbeName: "database", Fn: func(context.Context) error { return errors.New("connection refused") }},
		ProbeFunc{ProbeName: "email_provider", Fn: func(context.Context) error { return nil }},
	}

	w := httptest.NewRecorder()
	s.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	resp := w.Result()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", resp.StatusCode)
	}

	var body healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Status != "unhealthy" {
		t.Errorf("status = %q", body.Status)
	}
	if body.Components["database"].Message != "connection refused" {
		t.Errorf("database component = %+v", body.Components["database"])
	}
	if body.Components["email_provider"].Status != "healthy" {
		t.Errorf("email component = %+v", body.Components["email_provider"])
	}
}

func TestHandleHealth_ProbePanic(t *testing.T) {
	s := newTestServer(t)
	s.HealthProbes = []HealthProbe{
		ProbeFunc{ProbeName: "database", Fn: func(context.Context) error { panic("nil pool") }},
	}

	w := httptest.NewRecorder()
	s.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Result().StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Result().StatusCode)
	}
}
