package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/bryanwahyu/threat-analyzer/internal/application/analyses"
	"github.com/bryanwahyu/threat-analyzer/internal/application/liveness"
	"github.com/bryanwahyu/threat-analyzer/internal/application/session"
	"github.com/bryanwahyu/threat-analyzer/internal/application/submission"
	domain "github.com/bryanwahyu/threat-analyzer/internal/domain/analysis"
	"github.com/bryanwahyu/threat-analyzer/internal/middleware"
	"github.com/bryanwahyu/threat-analyzer/internal/view"
)

type Options struct {
	Version        string
	AllowedOrigins []string
	APIKey         string
	// Checkers are asked by /status next to the cached backend status.
	Checkers map[string]middleware.HealthChecker
	// SubmitLimiter bounds analysis submissions per identity.
	SubmitLimiter *middleware.RateLimiter
	Metrics       *middleware.Metrics
}

type Router struct {
	session  *session.Service
	cache    *analyses.Service
	submit   *submission.Service
	probe    *liveness.Probe
	metrics  *middleware.Metrics
	version  string
	checkers map[string]middleware.HealthChecker
}

func NewRouter(sess *session.Service, cache *analyses.Service, submit *submission.Service, probe *liveness.Probe, opts Options) http.Handler {
	r := &Router{
		session:  sess,
		cache:    cache,
		submit:   submit,
		probe:    probe,
		metrics:  opts.Metrics,
		version:  opts.Version,
		checkers: map[string]middleware.HealthChecker{},
	}
	for name, c := range opts.Checkers {
		r.checkers[name] = c
	}
	if r.metrics == nil {
		r.metrics = middleware.NewMetrics()
	}
	limiter := opts.SubmitLimiter
	if limiter == nil {
		limiter = middleware.NewRateLimiter(5, 0.1)
	}

	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.Logging)
	mux.Use(chimw.Recoverer)
	mux.Use(r.metrics.Middleware)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{"Location", "Content-Disposition", middleware.RequestIDHeader},
		MaxAge:         300,
	}))
	mux.Use(middleware.APIKeyAuth(opts.APIKey))

	mux.Get("/health", middleware.LivenessHandler)
	mux.Get("/status", r.wrap(r.handleStatus))
	mux.Get("/metrics", r.metrics.Handler)

	mux.Get("/", r.wrap(r.handleHome))
	mux.Get("/about", r.wrap(r.handleAbout))
	mux.Post("/login", r.wrap(r.handleLogin))
	mux.Post("/register", r.wrap(r.handleRegister))
	mux.Post("/logout", r.wrap(r.handleLogout))

	// everything below needs an identity
	mux.Group(func(rt chi.Router) {
		rt.Use(middleware.RequireIdentity(sess, "/login"))

		rt.Get("/analyses/new", r.wrap(r.handleNewAnalysisForm))
		rt.With(middleware.RateLimit(limiter, r.identityKey)).Post("/analyses/new", r.wrap(r.handleSubmit))

		rt.Get("/reports", r.wrap(r.handleResults))
		rt.Delete("/reports", r.wrap(r.handleClear))
		rt.Get("/reports/{project}", r.wrap(r.handleResults))
		rt.Delete("/reports/{project}", r.wrap(r.handleDelete))
		rt.Get("/reports/{project}/pdf", r.wrap(r.handlePDF))
		rt.Get("/threats/{project}/{threat}", r.wrap(r.handleThreat))
		rt.Get("/metrics/{project}", r.wrap(r.handleMetrics))
		rt.Get("/attack-paths/{project}", r.wrap(r.handleAttackPaths))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// statusError pins an HTTP status on an error message.
type statusError struct {
	status int
	msg    string
}

func (e *statusError) Error() string { return e.msg }

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}

		var (
			serr *statusError
			verr *domain.ValidationError
			berr *domain.BackendError
		)
		status := http.StatusInternalServerError
		msg := domain.Message(err)
		switch {
		case errors.As(err, &serr):
			status, msg = serr.status, serr.msg
		case errors.As(err, &verr):
			status = http.StatusBadRequest
		case errors.Is(err, domain.ErrNotFound):
			status = http.StatusNotFound
		case errors.As(err, &berr):
			status = http.StatusBadGateway
		case errors.Is(err, domain.ErrUnreachable):
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]string{"error": msg})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// param unescapes a path parameter; chi hands them over raw when the
// request path needed escaping.
func param(req *http.Request, name string) (string, error) {
	raw := chi.URLParam(req, name)
	v, err := url.PathUnescape(raw)
	if err != nil {
		v = raw
	}
	if err := middleware.ValidateProjectParam(v); err != nil {
		return "", &statusError{status: http.StatusBadRequest, msg: err.Error()}
	}
	return v, nil
}

func (r *Router) identityKey(req *http.Request) string {
	if u := r.session.Current(); u.Valid() {
		return "user:" + u.ID
	}
	return ""
}

// formValues reads a JSON object or a url-encoded/multipart form.
func formValues(req *http.Request) (func(string) string, error) {
	ct, _, _ := mime.ParseMediaType(req.Header.Get("Content-Type"))
	if ct == "application/json" {
		var body map[string]string
		if err := json.NewDecoder(io.LimitReader(req.Body, 1<<20)).Decode(&body); err != nil {
			return nil, &statusError{status: http.StatusBadRequest, msg: "invalid JSON body"}
		}
		return func(k string) string { return middleware.SanitizeString(body[k]) }, nil
	}
	if err := req.ParseMultipartForm(middleware.MaxUploadSize); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return nil, &statusError{status: http.StatusBadRequest, msg: "invalid form"}
	}
	return func(k string) string { return middleware.SanitizeString(req.FormValue(k)) }, nil
}

// GET /status
func (r *Router) handleStatus(w http.ResponseWriter, req *http.Request) error {
	middleware.StatusHandler(r.backendStatus, r.checkers)(w, req)
	return nil
}

func (r *Router) backendStatus() middleware.BackendStatus {
	st := middleware.BackendStatus{State: r.probe.Status().String(), Online: true}
	if err := r.probe.Cached().Check(context.Background()); err != nil {
		st.Online = false
		st.Message = err.Error()
	}
	if at := r.probe.LastChecked(); !at.IsZero() {
		st.LastChecked = &at
	}
	return st
}

// GET /
func (r *Router) handleHome(w http.ResponseWriter, req *http.Request) error {
	return writeJSON(w, http.StatusOK, view.NewHome(r.session.Current(), r.probe.Status().String(), r.cache.List()))
}

// GET /about
func (r *Router) handleAbout(w http.ResponseWriter, req *http.Request) error {
	return writeJSON(w, http.StatusOK, view.NewAbout(r.version))
}

// POST /login
func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) error {
	get, err := formValues(req)
	if err != nil {
		return err
	}
	f := submission.LoginForm{Email: get("email"), Password: get("password")}
	if err := submission.Validate(&f); err != nil {
		return err
	}
	if !r.session.Login(req.Context(), f.Email, f.Password) {
		return &statusError{status: http.StatusUnauthorized, msg: "Email ou mot de passe incorrect"}
	}
	return writeJSON(w, http.StatusOK, map[string]any{"user": r.session.Current()})
}

// POST /register
func (r *Router) handleRegister(w http.ResponseWriter, req *http.Request) error {
	get, err := formValues(req)
	if err != nil {
		return err
	}
	f := submission.RegisterForm{
		Name:            get("name"),
		Email:           get("email"),
		Password:        get("password"),
		ConfirmPassword: get("confirmPassword"),
	}
	if err := submission.ValidateRegistration(f); err != nil {
		return err
	}
	if !r.session.Register(req.Context(), f.Email, f.Password, f.Name) {
		return &statusError{status: http.StatusBadRequest, msg: "Erreur lors de l'inscription"}
	}
	return writeJSON(w, http.StatusCreated, map[string]any{"user": r.session.Current()})
}

// POST /logout
func (r *Router) handleLogout(w http.ResponseWriter, req *http.Request) error {
	r.session.Logout(req.Context())
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// GET /analyses/new
func (r *Router) handleNewAnalysisForm(w http.ResponseWriter, req *http.Request) error {
	return writeJSON(w, http.StatusOK, map[string]any{
		"appTypes":             domain.AppTypes,
		"attachmentExtensions": domain.AttachmentExtensions,
	})
}

// POST /analyses/new (multipart: project_name, app_type, architecture_description, file)
func (r *Router) handleSubmit(w http.ResponseWriter, req *http.Request) error {
	get, err := formValues(req)
	if err != nil {
		return err
	}
	f := submission.AnalysisForm{
		ProjectName:             get("project_name"),
		AppType:                 get("app_type"),
		ArchitectureDescription: get("architecture_description"),
	}

	if req.MultipartForm != nil {
		if file, hdr, err := req.FormFile("file"); err == nil {
			defer file.Close()
			if err := middleware.ValidateUpload(hdr.Filename, hdr.Size); err != nil {
				return err
			}
			content, err := io.ReadAll(io.LimitReader(file, middleware.MaxUploadSize))
			if err != nil {
				return &statusError{status: http.StatusBadRequest, msg: "invalid file"}
			}
			f.File = &domain.Attachment{Name: hdr.Filename, Content: content}
		}
	}

	a, err := r.submit.Submit(req.Context(), f)
	if err != nil {
		r.metrics.AnalysisFailed()
		return err
	}
	r.metrics.AnalysisSubmitted()

	w.Header().Set("Location", view.ReportPath(a.Project))
	return writeJSON(w, http.StatusCreated, view.NewResults(r.cache.List(), a.Project))
}

// GET /reports and /reports/{project}
func (r *Router) handleResults(w http.ResponseWriter, req *http.Request) error {
	project := ""
	if chi.URLParam(req, "project") != "" {
		p, err := param(req, "project")
		if err != nil {
			return err
		}
		project = p
	}

	res := view.NewResults(r.cache.List(), project)
	if limit, err := strconv.Atoi(req.URL.Query().Get("limit")); err == nil {
		limit = middleware.ValidateLimit(limit)
		if len(res.Others) > limit {
			res.Others = res.Others[:limit]
		}
	}
	if project != "" && !res.Found {
		return writeJSON(w, http.StatusNotFound, res)
	}
	return writeJSON(w, http.StatusOK, res)
}

// DELETE /reports/{project}
func (r *Router) handleDelete(w http.ResponseWriter, req *http.Request) error {
	project, err := param(req, "project")
	if err != nil {
		return err
	}
	if err := r.cache.Delete(req.Context(), project); err != nil {
		return err
	}

	next := "/reports"
	if p := view.NextAfterDelete(r.cache.List(), project); p != "" {
		next = view.ReportPath(p)
	}
	return writeJSON(w, http.StatusOK, map[string]string{"next": next})
}

// DELETE /reports
func (r *Router) handleClear(w http.ResponseWriter, req *http.Request) error {
	if err := r.cache.Clear(req.Context()); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (r *Router) lookup(req *http.Request) (domain.Analysis, error) {
	project, err := param(req, "project")
	if err != nil {
		return domain.Analysis{}, err
	}
	a, ok := r.cache.Get(project)
	if !ok {
		return domain.Analysis{}, domain.ErrNotFound
	}
	return a, nil
}

// GET /threats/{project}/{threat}
func (r *Router) handleThreat(w http.ResponseWriter, req *http.Request) error {
	a, err := r.lookup(req)
	if err != nil {
		return err
	}
	name, err := param(req, "threat")
	if err != nil {
		return err
	}
	d, ok := view.NewThreatDetail(a, name)
	if !ok {
		return &statusError{status: http.StatusNotFound, msg: "Menace introuvable"}
	}
	return writeJSON(w, http.StatusOK, d)
}

// GET /metrics/{project}
func (r *Router) handleMetrics(w http.ResponseWriter, req *http.Request) error {
	a, err := r.lookup(req)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, view.NewMetrics(a))
}

// GET /attack-paths/{project}
func (r *Router) handleAttackPaths(w http.ResponseWriter, req *http.Request) error {
	a, err := r.lookup(req)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, view.NewAttackPaths(a))
}

// GET /reports/{project}/pdf
func (r *Router) handlePDF(w http.ResponseWriter, req *http.Request) error {
	project, err := param(req, "project")
	if err != nil {
		return err
	}
	name, pdf, err := r.submit.RenderPDF(req.Context(), project)
	if err != nil {
		return err
	}
	r.metrics.ReportGenerated()

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	_, err = w.Write(pdf)
	return err
}
