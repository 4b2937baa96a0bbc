package health

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type staticChecker struct {
	check Check
}

func (s staticChecker) Check() Check { return s.check }

func TestHandler_AllHealthy(t *testing.T) {
	handler := NewHandler("checkout v1.0.0")
	handler.RegisterChecker("storage", NewSimpleChecker("storage", func() error { return nil }))
	handler.RegisterChecker("paystack", NewSimpleChecker("paystack", func() error { return nil }))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var response Response
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response.Status != StatusHealthy {
		t.Errorf("expected healthy, got %s", response.Status)
	}
	if response.Version != "checkout v1.0.0" {
		t.Errorf("unexpected version: %s", response.Version)
	}
	if len(response.Checks) != 2 {
		t.Fatalf("expected 2 checks, got %d", len(response.Checks))
	}
	// Проверки отсортированы по имени для стабильного ответа.
	if response.Checks[0].Name != "paystack" || response.Checks[1].Name != "storage" {
		t.Errorf("unexpected check order: %+v", response.Checks)
	}
}

func TestHandler_UnhealthyWins(t *testing.T) {
	handler := NewHandler("checkout v1.0.0")
	handler.RegisterChecker("storage", NewSimpleChecker("storage", func() error {
		return errors.New("connection refused")
	}))
	handler.RegisterChecker("paystack", NewSimpleChecker("paystack", func() error { return nil }))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}

	var response Response
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response.Status != StatusUnhealthy {
		t.Errorf("expected unhealthy, got %s", response.Status)
	}
}

func TestHandler_DegradedStays200(t *testing.T) {
	handler := NewHandler("checkout v1.0.0")
	handler.RegisterChecker("kafka", staticChecker{check: Check{
		Name:    "kafka",
		Status:  StatusDegraded,
		Message: "one broker down",
	}})

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for degraded, got %d", w.Code)
	}

	var response Response
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response.Status != StatusDegraded {
		t.Errorf("expected degraded, got %s", response.Status)
	}
}

func TestReadinessHandler(t *testing.T) {
	handler := NewHandler("checkout v1.0.0")
	handler.RegisterChecker("storage", NewSimpleChecker("storage", func() error { return nil }))

	w := httptest.NewRecorder()
	handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != "ready" {
		t.Errorf("expected body 'ready', got %q", w.Body.String())
	}
}

func TestReadinessHandler_NotReady(t *testing.T) {
	handler := NewHandler("checkout v1.0.0")
	handler.RegisterChecker("storage", NewSimpleChecker("storage", func() error {
		return errors.New("storage is down")
	}))

	w := httptest.NewRecorder()
	handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if w.Body.String() != "not ready" {
		t.Errorf("expected body 'not ready', got %q", w.Body.String())
	}
}

func TestReadinessHandler_DegradedIsReady(t *testing.T) {
	handler := NewHandler("checkout v1.0.0")
	handler.RegisterChecker("kafka", staticChecker{check: Check{Name: "kafka", Status: StatusDegraded}})

	w := httptest.NewRecorder()
	handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected degraded service to stay ready, got %d", w.Code)
	}
}

func TestLivenessHandler(t *testing.T) {
	w := httptest.NewRecorder()
	LivenessHandler(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != "ok" {
		t.Errorf("expected body 'ok', got %q", w.Body.String())
	}
}

func TestSimpleChecker(t *testing.T) {
	checker := NewSimpleChecker("storage", func() error { return nil })

	check := checker.Check()
	if check.Status != StatusHealthy {
		t.Errorf("expected healthy, got %s", check.Status)
	}
	if check.Name != "storage" {
		t.Errorf("expected name storage, got %s", check.Name)
	}
	if check.Message != "" {
		t.Errorf("expected empty message, got %q", check.Message)
	}
}

func TestSimpleChecker_Error(t *testing.T) {
	checker := NewSimpleChecker("paystack", func() error {
		return errors.New("api unreachable")
	})

	check := checker.Check()
	if check.Status != StatusUnhealthy {
		t.Errorf("expected unhealthy, got %s", check.Status)
	}
	if check.Message != "api unreachable" {
		t.Errorf("unexpected message: %q", check.Message)
	}
}

func TestStatusWorse(t *testing.T) {
	if got := StatusHealthy.worse(StatusDegraded); got != StatusDegraded {
		t.Errorf("expected degraded, got %s", got)
	}
	if got := StatusDegraded.worse(StatusUnhealthy); got != StatusUnhealthy {
		t.Errorf("expected unhealthy, got %s", got)
	}
	if got := StatusUnhealthy.worse(StatusHealthy); got != StatusUnhealthy {
		t.Errorf("expected unhealthy to stick, got %s", got)
	}
}
