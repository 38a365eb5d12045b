package fakebin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDelayWaitsScaledSeconds(t *testing.T) {
	h := New(10 * time.Millisecond)

	start := time.Now()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/delay/3", nil))
	elapsed := time.Since(start)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if elapsed < 30*time.Millisecond {
		t.Fatalf("returned after %s, expected at least 30ms", elapsed)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if _, ok := body["url"]; !ok {
		t.Fatalf("missing url in %v", body)
	}
}

func TestDelayRejectsGarbage(t *testing.T) {
	for _, path := range []string{"/delay/x", "/delay/-2"} {
		rec := httptest.NewRecorder()
		New(0).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", path, rec.Code)
		}
	}
}

func TestSleepOrDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := SleepOrDone(ctx, time.Hour); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := SleepOrDone(context.Background(), 0); err != nil {
		t.Fatal(err)
	}
}
