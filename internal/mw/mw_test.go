package mw

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/unajo/vt/internal/logging"
)

func signHS256(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestRequireAuthHMAC(t *testing.T) {
	auth := HMACAuthenticator{Secret: []byte("dev-secret")}
	var gotSub string
	h := RequireAuth(auth, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSub, _ = Subject(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	exp := time.Now().Add(time.Hour).Unix()
	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not_bearer", "Basic Zm9vOmJhcg==", http.StatusUnauthorized},
		{"wrong_secret", "Bearer " + signHS256(t, "other", jwt.MapClaims{"sub": "u1", "exp": exp}), http.StatusUnauthorized},
		{"no_exp", "Bearer " + signHS256(t, "dev-secret", jwt.MapClaims{"sub": "u1"}), http.StatusUnauthorized},
		{"no_sub", "Bearer " + signHS256(t, "dev-secret", jwt.MapClaims{"exp": exp}), http.StatusUnauthorized},
		{"valid", "Bearer " + signHS256(t, "dev-secret", jwt.MapClaims{"sub": "u1", "exp": exp}), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotSub = ""
			req := httptest.NewRequest(http.MethodGet, "/delay/1", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
			if tt.want == http.StatusOK && gotSub != "u1" {
				t.Fatalf("expected subject u1, got %q", gotSub)
			}
		})
	}
}

func TestOptionalAuthPassesAnonymous(t *testing.T) {
	auth := HMACAuthenticator{Secret: []byte("dev-secret")}
	called := false
	h := OptionalAuth(auth, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if _, ok := Subject(r.Context()); ok {
			t.Error("anonymous request must not carry a subject")
		}
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))
	if !called {
		t.Fatal("handler not called")
	}
}

func TestRequestIDPropagatesOrGenerates(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != "abc-123" || rec.Header().Get(RequestIDHeader) != "abc-123" {
		t.Fatalf("expected propagated id, got ctx=%q header=%q", seen, rec.Header().Get(RequestIDHeader))
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if len(seen) != 36 || rec.Header().Get(RequestIDHeader) != seen {
		t.Fatalf("expected generated uuid, got %q", seen)
	}
}

func TestConcurrencyLimitRejectsWhenFull(t *testing.T) {
	sem := NewSemaphore(1)
	release := make(chan struct{})
	entered := make(chan struct{})

	h := WithEndpoint(ConcurrencyLimit(sem, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		close(entered)
		<-release
		w.WriteHeader(http.StatusOK)
	})), "delay")

	var wg sync.WaitGroup
	first := httptest.NewRecorder()
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/delay/1", nil))
	}()
	<-entered

	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/delay/1", nil))
	if second.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", second.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(second.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["error"] != "too_busy" || body["endpoint"] != "delay" {
		t.Fatalf("unexpected body %v", body)
	}

	close(release)
	wg.Wait()
	if first.Code != http.StatusOK {
		t.Fatalf("expected first request 200, got %d", first.Code)
	}
	if sem.InUse() != 0 {
		t.Fatalf("semaphore leaked: %d in use", sem.InUse())
	}
}

func TestDisabledSemaphoreIsPassThrough(t *testing.T) {
	sem := NewSemaphore(0)
	if sem.Enabled() || !sem.TryAcquire() || sem.Cap() != 0 {
		t.Fatal("zero-capacity semaphore must be disabled and always admit")
	}
	sem.Release()
}

func TestRequireAdminKey(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	rec := httptest.NewRecorder()
	RequireAdminKey("", ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/-/status", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without configured key, got %d", rec.Code)
	}

	h := RequireAdminKey("k", ok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/-/status", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/-/status", nil)
	req.Header.Set(AdminKeyHeader, "k")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRecoverTurnsPanicInto500(t *testing.T) {
	h := Recover(logging.Discard(), http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
