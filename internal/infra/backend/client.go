package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	domain "github.com/bryanwahyu/threat-analyzer/internal/domain/analysis"
	"github.com/bryanwahyu/threat-analyzer/internal/domain/identity"
)

const (
	RequestIDHeader = "X-Request-ID"
	maxBody         = 32 << 20
)

// Client talks to the analysis backend. It implements the Authenticator,
// Analyzer, ReportRenderer and HealthChecker ports. Requests are never retried.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// NewClientWithHTTP is used by tests to plug an httptest client.
func NewClientWithHTTP(baseURL string, hc *http.Client) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

func (c *Client) BaseURL() string { return c.baseURL }

type form struct {
	buf bytes.Buffer
	w   *multipart.Writer
}

func newForm() *form {
	f := &form{}
	f.w = multipart.NewWriter(&f.buf)
	return f
}

func (f *form) field(name, value string) error {
	return f.w.WriteField(name, value)
}

func (f *form) file(field, name string, content []byte) error {
	part, err := f.w.CreateFormFile(field, name)
	if err != nil {
		return err
	}
	_, err = part.Write(content)
	return err
}

func (f *form) close() (io.Reader, string, error) {
	if err := f.w.Close(); err != nil {
		return nil, "", err
	}
	return &f.buf, f.w.FormDataContentType(), nil
}

// do sends the request and returns the body of a 2xx answer. Transport
// failures wrap domain.ErrUnreachable, other statuses become *domain.BackendError.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, errors.Wrapf(err, "build %s %s", method, path)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set(RequestIDHeader, uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Wrapf(domain.ErrUnreachable, "%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, errors.Wrapf(domain.ErrUnreachable, "read %s: %v", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &domain.BackendError{Status: resp.StatusCode, Message: errorText(raw)}
	}
	return raw, nil
}

// errorText picks the error field, then the message field, then the raw body.
func errorText(raw []byte) string {
	var env struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Detail  any    `json:"detail"`
	}
	if err := json.Unmarshal(raw, &env); err == nil {
		switch {
		case env.Error != "":
			return env.Error
		case env.Message != "":
			return env.Message
		}
		if s, ok := env.Detail.(string); ok && s != "" {
			return s
		}
		return ""
	}
	return strings.TrimSpace(string(raw))
}

// Check asks the backend health endpoint. Any 2xx answer is healthy;
// the body is not inspected.
func (c *Client) Check(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/health", nil, "")
	return err
}

type authEnvelope struct {
	Success bool           `json:"success"`
	User    *identity.User `json:"user"`
	Message string         `json:"message"`
}

func (c *Client) auth(ctx context.Context, path string, fields map[string]string) (identity.User, error) {
	f := newForm()
	for k, v := range fields {
		if err := f.field(k, v); err != nil {
			return identity.User{}, errors.Wrap(err, "encode form")
		}
	}
	body, ct, err := f.close()
	if err != nil {
		return identity.User{}, errors.Wrap(err, "encode form")
	}

	raw, err := c.do(ctx, http.MethodPost, path, body, ct)
	if err != nil {
		return identity.User{}, err
	}
	return decodeAuth(raw)
}

func decodeAuth(raw []byte) (identity.User, error) {
	var env authEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return identity.User{}, errors.Wrap(err, "decode auth response")
	}
	if !env.Success || env.User == nil {
		return identity.User{}, &identity.RejectedError{Message: env.Message}
	}
	return *env.User, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (identity.User, error) {
	return c.auth(ctx, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
}

func (c *Client) Register(ctx context.Context, email, password, name string) (identity.User, error) {
	return c.auth(ctx, "/api/auth/register", map[string]string{
		"email":    email,
		"password": password,
		"name":     name,
	})
}

// User fetches an account by id. Only used for explicit verification.
func (c *Client) User(ctx context.Context, id string) (identity.User, error) {
	raw, err := c.do(ctx, http.MethodGet, "/api/auth/user/"+url.PathEscape(id), nil, "")
	if err != nil {
		return identity.User{}, err
	}
	return decodeAuth(raw)
}

func (c *Client) Analyze(ctx context.Context, s domain.Submission) (domain.Analysis, error) {
	f := newForm()
	fields := [][2]string{
		{"project_name", s.ProjectName},
		{"app_type", s.AppType},
		{"architecture_description", s.ArchitectureDescription},
	}
	if s.UserID != "" {
		fields = append(fields, [2]string{"user_id", s.UserID})
	}
	for _, kv := range fields {
		if err := f.field(kv[0], kv[1]); err != nil {
			return domain.Analysis{}, errors.Wrap(err, "encode form")
		}
	}
	if s.File != nil {
		if err := f.file("file", s.File.Name, s.File.Content); err != nil {
			return domain.Analysis{}, errors.Wrap(err, "encode attachment")
		}
	}
	body, ct, err := f.close()
	if err != nil {
		return domain.Analysis{}, errors.Wrap(err, "encode form")
	}

	raw, err := c.do(ctx, http.MethodPost, "/analyze", body, ct)
	if err != nil {
		return domain.Analysis{}, err
	}
	a, err := domain.Decode(raw)
	if err != nil {
		return domain.Analysis{}, errors.Wrap(err, "decode analysis")
	}
	return a, nil
}

func (c *Client) GeneratePDF(ctx context.Context, a domain.Analysis) ([]byte, error) {
	dashboard, err := json.Marshal(a.Dashboard)
	if err != nil {
		return nil, errors.Wrap(err, "encode dashboard")
	}
	report, err := json.Marshal(a.Analysis)
	if err != nil {
		return nil, errors.Wrap(err, "encode analysis")
	}

	f := newForm()
	for _, kv := range [][2]string{
		{"project_name", a.Project},
		{"dashboard", string(dashboard)},
		{"analysis", string(report)},
	} {
		if err := f.field(kv[0], kv[1]); err != nil {
			return nil, errors.Wrap(err, "encode form")
		}
	}
	body, ct, err := f.close()
	if err != nil {
		return nil, errors.Wrap(err, "encode form")
	}
	return c.do(ctx, http.MethodPost, "/generate-pdf", body, ct)
}
