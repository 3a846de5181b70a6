package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/threat-analyzer/internal/application/analyses"
	"github.com/bryanwahyu/threat-analyzer/internal/application/liveness"
	"github.com/bryanwahyu/threat-analyzer/internal/application/session"
	"github.com/bryanwahyu/threat-analyzer/internal/application/submission"
	domain "github.com/bryanwahyu/threat-analyzer/internal/domain/analysis"
	"github.com/bryanwahyu/threat-analyzer/internal/domain/identity"
	"github.com/bryanwahyu/threat-analyzer/internal/infra/kv"
	"github.com/bryanwahyu/threat-analyzer/internal/middleware"
)

const shopAPI = `{
  "project": "Shop API",
  "score_risque": 72,
  "analysis": {"menaces": [{"nom": "SQL Injection", "gravite": "Critique", "description": "...",
    "recommandations": ["Requêtes préparées", "ORM"], "cwe_id": "CWE-89", "mitre_attack_id": "T1190"}]},
  "dashboard": {"metriques": {"score_confiance_moyen": 0.91, "couverture": {"total_menaces": 1, "owasp_coverage": 100}}}
}`

type fakeBackend struct {
	healthErr  error
	analyzeErr error
	result     string
	submitted  []domain.Submission
}

func (f *fakeBackend) Check(context.Context) error { return f.healthErr }

func (f *fakeBackend) Login(_ context.Context, email, password string) (identity.User, error) {
	if password != "secret" {
		return identity.User{}, &identity.RejectedError{Message: "Email ou mot de passe incorrect"}
	}
	return identity.User{ID: "7", Email: email, Name: "Alice"}, nil
}

func (f *fakeBackend) Register(_ context.Context, email, _, name string) (identity.User, error) {
	return identity.User{ID: "8", Email: email, Name: name}, nil
}

func (f *fakeBackend) Analyze(_ context.Context, s domain.Submission) (domain.Analysis, error) {
	f.submitted = append(f.submitted, s)
	if f.analyzeErr != nil {
		return domain.Analysis{}, f.analyzeErr
	}
	raw := f.result
	if raw == "" {
		raw = shopAPI
	}
	return domain.Decode([]byte(raw))
}

func (f *fakeBackend) GeneratePDF(context.Context, domain.Analysis) ([]byte, error) {
	return []byte("%PDF-1.4"), nil
}

type fixture struct {
	backend *fakeBackend
	session *session.Service
	cache   *analyses.Service
	handler http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := kv.NewMemory()
	fb := &fakeBackend{}

	sess := session.NewService(fb, store)
	cache := analyses.NewService(store, nil)
	sess.OnChange(cache.Activate)
	sess.Restore(context.Background())

	probe := liveness.NewProbe(fb, nil)
	probe.Check(context.Background())

	sub := submission.NewService(fb, fb, cache, sess)
	h := NewRouter(sess, cache, sub, probe, Options{
		Version:        "test",
		AllowedOrigins: []string{"http://localhost:5173"},
		SubmitLimiter:  middleware.NewRateLimiter(2, 0),
	})
	return &fixture{backend: fb, session: sess, cache: cache, handler: h}
}

func (f *fixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) login(t *testing.T) {
	t.Helper()
	require.True(t, f.session.Login(context.Background(), "alice@example.com", "secret"))
}

func (f *fixture) seed(t *testing.T) {
	t.Helper()
	a, err := domain.Decode([]byte(shopAPI))
	require.NoError(t, err)
	_, err = f.cache.Add(context.Background(), a)
	require.NoError(t, err)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func multipartAnalysis(t *testing.T, fields map[string]string, fileName string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		fw.Write([]byte("openapi: 3.0.0"))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/analyses/new", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHealthAndStatus(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "healthy", body["status"])
	backend := body["backend"].(map[string]any)
	assert.Equal(t, "online", backend["state"])
	assert.Equal(t, true, backend["online"])
	assert.NotEmpty(t, backend["lastChecked"])
}

func TestStatusOffline(t *testing.T) {
	store := kv.NewMemory()
	fb := &fakeBackend{healthErr: domain.ErrUnreachable}
	sess := session.NewService(fb, store)
	cache := analyses.NewService(store, nil)
	probe := liveness.NewProbe(fb, nil)
	probe.Check(context.Background())
	h := NewRouter(sess, cache, submission.NewService(fb, fb, cache, sess), probe, Options{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	backend := decodeBody(t, rec)["backend"].(map[string]any)
	assert.Equal(t, "offline", backend["state"])
	assert.Equal(t, liveness.ErrOffline.Error(), backend["message"])
}

func TestStatusBeforeFirstCheck(t *testing.T) {
	store := kv.NewMemory()
	fb := &fakeBackend{}
	sess := session.NewService(fb, store)
	cache := analyses.NewService(store, nil)
	h := NewRouter(sess, cache, submission.NewService(fb, fb, cache, sess), liveness.NewProbe(fb, nil), Options{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	backend := decodeBody(t, rec)["backend"].(map[string]any)
	assert.Equal(t, "unknown", backend["state"])
	assert.Nil(t, backend["lastChecked"])
}

func TestHomeAndAbout(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "online", body["backend"])
	assert.EqualValues(t, 1, body["analysisCount"])
	assert.Nil(t, body["user"])

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/about", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test", decodeBody(t, rec)["version"])
}

func TestLogin(t *testing.T) {
	t.Run("json body", func(t *testing.T) {
		f := newFixture(t)
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"alice@example.com","password":"secret"}`))
		req.Header.Set("Content-Type", "application/json")

		rec := f.do(t, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, f.session.Current())
		assert.Equal(t, "7", f.session.Current().ID)
	})

	t.Run("form body", func(t *testing.T) {
		f := newFixture(t)
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("email=alice%40example.com&password=secret"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		rec := f.do(t, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, f.session.Authenticated())
	})

	t.Run("rejected", func(t *testing.T) {
		f := newFixture(t)
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"alice@example.com","password":"nope"}`))
		req.Header.Set("Content-Type", "application/json")

		rec := f.do(t, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Email ou mot de passe incorrect", decodeBody(t, rec)["error"])
		assert.False(t, f.session.Authenticated())
	})

	t.Run("missing fields", func(t *testing.T) {
		f := newFixture(t)
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":""}`))
		req.Header.Set("Content-Type", "application/json")

		rec := f.do(t, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Veuillez remplir tous les champs obligatoires", decodeBody(t, rec)["error"])
	})
}

func TestRegister(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		f := newFixture(t)
		req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(
			`{"name":"Bob","email":"bob@example.com","password":"secret1","confirmPassword":"secret1"}`))
		req.Header.Set("Content-Type", "application/json")

		rec := f.do(t, req)
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "Bob", f.session.Current().Name)
	})

	t.Run("mismatch is caught before the backend", func(t *testing.T) {
		f := newFixture(t)
		req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(
			`{"name":"Bob","email":"bob@example.com","password":"secret1","confirmPassword":"secret2"}`))
		req.Header.Set("Content-Type", "application/json")

		rec := f.do(t, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Les mots de passe ne correspondent pas", decodeBody(t, rec)["error"])
		assert.False(t, f.session.Authenticated())
	})
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	rec := f.do(t, httptest.NewRequest(http.MethodPost, "/logout", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, f.session.Authenticated())
}

func TestNewAnalysisRequiresIdentity(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/analyses/new", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	f.login(t)
	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/analyses/new", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["appTypes"], len(domain.AppTypes))
}

func TestReportViewsRequireIdentity(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/reports", nil),
		httptest.NewRequest(http.MethodGet, "/reports/Shop%20API", nil),
		httptest.NewRequest(http.MethodGet, "/reports/Shop%20API/pdf", nil),
		httptest.NewRequest(http.MethodDelete, "/reports/Shop%20API", nil),
		httptest.NewRequest(http.MethodDelete, "/reports", nil),
		httptest.NewRequest(http.MethodGet, "/threats/Shop%20API/SQL%20Injection", nil),
		httptest.NewRequest(http.MethodGet, "/metrics/Shop%20API", nil),
		httptest.NewRequest(http.MethodGet, "/attack-paths/Shop%20API", nil),
	} {
		rec := f.do(t, req)
		assert.Equal(t, http.StatusSeeOther, rec.Code, "%s %s", req.Method, req.URL.Path)
		assert.Equal(t, "/login", rec.Header().Get("Location"))
	}
	assert.Equal(t, 1, f.cache.Len())

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSubmit(t *testing.T) {
	fields := map[string]string{
		"project_name":             "Shop API",
		"app_type":                 "API REST",
		"architecture_description": "Go + MySQL",
	}

	t.Run("success with attachment", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)

		rec := f.do(t, multipartAnalysis(t, fields, "openapi.yaml"))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.Equal(t, "/reports/Shop%20API", rec.Header().Get("Location"))
		body := decodeBody(t, rec)
		assert.Equal(t, "72/100", body["scoreLabel"])

		require.Len(t, f.backend.submitted, 1)
		s := f.backend.submitted[0]
		assert.Equal(t, "7", s.UserID)
		require.NotNil(t, s.File)
		assert.Equal(t, "openapi.yaml", s.File.Name)
		assert.Equal(t, 1, f.cache.Len())
	})

	t.Run("bad attachment", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)

		rec := f.do(t, multipartAnalysis(t, fields, "diagram.png"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, f.backend.submitted)
	})

	t.Run("missing field", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)

		rec := f.do(t, multipartAnalysis(t, map[string]string{"project_name": "x"}, ""))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, f.backend.submitted)
	})

	t.Run("backend error field", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)
		f.backend.result = `{"error":"Quota dépassé"}`

		rec := f.do(t, multipartAnalysis(t, fields, ""))
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, "Quota dépassé", decodeBody(t, rec)["error"])
		assert.Equal(t, 0, f.cache.Len())
	})

	t.Run("backend unreachable", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)
		f.backend.analyzeErr = domain.ErrUnreachable

		rec := f.do(t, multipartAnalysis(t, fields, ""))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("rate limited per identity", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)

		for i := 0; i < 2; i++ {
			rec := f.do(t, multipartAnalysis(t, fields, ""))
			require.Equal(t, http.StatusCreated, rec.Code)
		}
		rec := f.do(t, multipartAnalysis(t, fields, ""))
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	})
}

func TestReports(t *testing.T) {
	t.Run("empty cache", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)
		rec := f.do(t, httptest.NewRequest(http.MethodGet, "/reports", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, decodeBody(t, rec)["empty"])
	})

	t.Run("named project", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)
		f.seed(t)
		rec := f.do(t, httptest.NewRequest(http.MethodGet, "/reports/Shop%20API", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "Shop API", body["project"])
		assert.Equal(t, "Critique", body["riskLabel"])
	})

	t.Run("unknown project", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)
		f.seed(t)
		rec := f.do(t, httptest.NewRequest(http.MethodGet, "/reports/nope", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, false, decodeBody(t, rec)["found"])
	})
}

func TestDeleteAndClear(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.seed(t)
	other, err := domain.Decode([]byte(`{"project":"Blog","score_risque":10}`))
	require.NoError(t, err)
	_, err = f.cache.Add(context.Background(), other)
	require.NoError(t, err)

	rec := f.do(t, httptest.NewRequest(http.MethodDelete, "/reports/Blog", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/reports/Shop%20API", decodeBody(t, rec)["next"])
	assert.Equal(t, 1, f.cache.Len())

	rec = f.do(t, httptest.NewRequest(http.MethodDelete, "/reports", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, f.cache.Len())
}

func TestThreatMetricsPaths(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.seed(t)

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/threats/Shop%20API/SQL%20Injection", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "SQL Injection", body["name"])
	cwe := body["cwe"].(map[string]any)
	assert.Equal(t, "https://cwe.mitre.org/data/definitions/89.html", cwe["url"])

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/threats/Shop%20API/XSS", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/threats/Ghost/XSS", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/metrics/Shop%20API", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["available"])

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/attack-paths/Shop%20API", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPDF(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.seed(t)

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/reports/Shop%20API/pdf", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "shop-api_rapport.pdf")
	assert.Equal(t, "%PDF-1.4", rec.Body.String())

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/reports/Ghost/pdf", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPIKey(t *testing.T) {
	store := kv.NewMemory()
	fb := &fakeBackend{}
	sess := session.NewService(fb, store)
	cache := analyses.NewService(store, nil)
	probe := liveness.NewProbe(fb, nil)
	h := NewRouter(sess, cache, submission.NewService(fb, fb, cache, sess), probe, Options{APIKey: "k"})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/about", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/about", nil)
	req.Header.Set("Authorization", "Bearer k")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
