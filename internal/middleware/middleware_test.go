package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/threat-analyzer/internal/domain/analysis"
	"github.com/bryanwahyu/threat-analyzer/internal/domain/identity"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("ok"))
})

type fixedIdentity struct{ u *identity.User }

func (f fixedIdentity) Current() *identity.User { return f.u }

type checkerFunc func(context.Context) error

func (f checkerFunc) Check(ctx context.Context) error { return f(ctx) }

func TestRequireIdentity(t *testing.T) {
	t.Run("anonymous is redirected to login", func(t *testing.T) {
		h := RequireIdentity(fixedIdentity{}, "/login")(ok)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/analyses/new", nil))
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/login", rec.Header().Get("Location"))
	})

	t.Run("identity passes", func(t *testing.T) {
		h := RequireIdentity(fixedIdentity{&identity.User{ID: "1"}}, "/login")(ok)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/analyses/new", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestAPIKeyAuth(t *testing.T) {
	h := APIKeyAuth("s3cret")(ok)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/reports", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	APIKeyAuth("")(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "no key configured leaves the server open")
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, 1)
	rl.now = func() time.Time { return now }
	rl.lastSweep = now

	assert.True(t, rl.Allow("u1"))
	assert.True(t, rl.Allow("u1"))
	assert.False(t, rl.Allow("u1"))
	assert.True(t, rl.Allow("u2"), "buckets are per key")

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("u1"))

	now = now.Add(time.Hour)
	rl.Allow("u3")
	rl.mu.Lock()
	_, kept := rl.buckets["u2"]
	rl.mu.Unlock()
	assert.False(t, kept, "idle buckets are swept")
}

func TestRateLimitMiddleware(t *testing.T) {
	h := RateLimit(NewRateLimiter(1, 0), func(*http.Request) string { return "u1" })(ok)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/analyses/new", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/analyses/new", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc", seen)
}

func TestMetrics(t *testing.T) {
	m := NewMetrics()
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/fail", nil))
	m.AnalysisSubmitted()

	rec := httptest.NewRecorder()
	m.Handler(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	var snap map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, 2.0, snap["requests_total"])
	assert.Equal(t, 1.0, snap["requests_failed"])
	assert.Equal(t, 1.0, snap["analyses_submitted"])
	assert.Equal(t, 0.0, snap["requests_in_progress"])
}

func TestStatusHandler(t *testing.T) {
	checked := time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)

	t.Run("backend offline", func(t *testing.T) {
		h := StatusHandler(func() BackendStatus {
			return BackendStatus{State: "offline", LastChecked: &checked, Message: "backend offline"}
		}, map[string]HealthChecker{
			"storage": checkerFunc(func(context.Context) error { return nil }),
		})
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var report StatusReport
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
		assert.Equal(t, "unhealthy", report.Status)
		assert.Equal(t, "offline", report.Backend.State)
		assert.Equal(t, "backend offline", report.Backend.Message)
		require.NotNil(t, report.Backend.LastChecked)
		assert.True(t, checked.Equal(*report.Backend.LastChecked))
		assert.Equal(t, "healthy", report.Checks["storage"].Status)
	})

	t.Run("failing checker", func(t *testing.T) {
		h := StatusHandler(func() BackendStatus {
			return BackendStatus{State: "online", Online: true, LastChecked: &checked}
		}, map[string]HealthChecker{
			"storage": checkerFunc(func(context.Context) error { return errors.New("connection refused") }),
		})
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var report StatusReport
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
		assert.True(t, report.Backend.Online)
		assert.Equal(t, "connection refused", report.Checks["storage"].Message)
	})

	t.Run("never checked", func(t *testing.T) {
		h := StatusHandler(func() BackendStatus {
			return BackendStatus{State: "unknown", Message: "backend status unknown"}
		}, nil)
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.NotContains(t, rec.Body.String(), "lastChecked")
		assert.NotContains(t, rec.Body.String(), "checks")
	})
}

func TestValidators(t *testing.T) {
	assert.NoError(t, ValidateProjectParam("Shop API"))
	assert.Error(t, ValidateProjectParam("  "))
	assert.Error(t, ValidateProjectParam("a\nb"))

	assert.NoError(t, ValidateUpload("arch.yml", 100))
	var verr *domain.ValidationError
	assert.ErrorAs(t, ValidateUpload("arch.docx", 100), &verr)
	assert.ErrorAs(t, ValidateUpload("arch.pdf", MaxUploadSize+1), &verr)

	assert.Equal(t, "ab", SanitizeString(" a\x00b\x07 "))
	assert.Equal(t, 20, ValidateLimit(0))
	assert.Equal(t, 100, ValidateLimit(1000))
}
