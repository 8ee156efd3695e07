package health

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandler_AllProbesOK(t *testing.T) {
	t.Parallel()

	handler := NewHandler("v1.0.0")
	handler.Register("postgres", func() error { return nil })

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var report Report
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Status != StatusOK {
		t.Fatalf("overall status = %s, want ok", report.Status)
	}
	if report.Version != "v1.0.0" {
		t.Fatalf("version = %s, want v1.0.0", report.Version)
	}
	if report.Probes["postgres"].Status != StatusOK {
		t.Fatalf("unexpected postgres probe: %+v", report.Probes["postgres"])
	}
}

func TestHandler_DownDependency(t *testing.T) {
	t.Parallel()

	handler := NewHandler("v1.0.0")
	handler.Register("postgres", func() error { return nil })
	handler.Register("kafka", func() error {
		return errors.New("broker unreachable")
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}

	var report Report
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Status != StatusDown {
		t.Fatalf("overall status = %s, want down", report.Status)
	}
	if report.Probes["kafka"].Error != "broker unreachable" {
		t.Fatalf("unexpected kafka probe: %+v", report.Probes["kafka"])
	}
	if report.Probes["postgres"].Status != StatusOK {
		t.Fatalf("postgres probe must stay ok: %+v", report.Probes["postgres"])
	}
}

func TestReadinessHandler(t *testing.T) {
	t.Parallel()

	handler := NewHandler("v1.0.0")
	handler.Register("postgres", func() error { return nil })

	w := httptest.NewRecorder()
	handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("ready status = %d, want 200", w.Code)
	}

	handler.Register("redis", func() error {
		return errors.New("connection refused")
	})

	w = httptest.NewRecorder()
	handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("not-ready status = %d, want 503", w.Code)
	}
}

func TestLivenessHandler(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	LivenessHandler(w, httptest.NewRequest(http.MethodGet, "/livez", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("liveness status = %d, want 200", w.Code)
	}
}
