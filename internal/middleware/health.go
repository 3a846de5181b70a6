package middleware

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"
)

// HealthChecker is a dependency /status asks on every request.
type HealthChecker interface {
	Check(ctx context.Context) error
}

// SQLStorageChecker pings the mysql or postgres analysis store.
type SQLStorageChecker struct {
	DB *sql.DB
}

func (s *SQLStorageChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.DB.PingContext(ctx)
}

// BackendStatus is the last outcome of the liveness loop. It is read from
// memory, /status never calls the backend itself.
type BackendStatus struct {
	State       string     `json:"state"`
	Online      bool       `json:"online"`
	LastChecked *time.Time `json:"lastChecked,omitempty"`
	Message     string     `json:"message,omitempty"`
}

// StatusReport is the body of /status.
type StatusReport struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Backend   BackendStatus          `json:"backend"`
	Checks    map[string]CheckStatus `json:"checks,omitempty"`
}

type CheckStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// StatusHandler answers 503 unless the backend was last seen online and
// every checker passes.
func StatusHandler(backend func() BackendStatus, checkers map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		report := StatusReport{
			Status:    "healthy",
			Timestamp: time.Now().UTC(),
			Backend:   backend(),
		}
		if !report.Backend.Online {
			report.Status = "unhealthy"
		}
		if len(checkers) > 0 {
			report.Checks = make(map[string]CheckStatus, len(checkers))
		}
		for name, checker := range checkers {
			if err := checker.Check(ctx); err != nil {
				report.Status = "unhealthy"
				report.Checks[name] = CheckStatus{Status: "unhealthy", Message: err.Error()}
				continue
			}
			report.Checks[name] = CheckStatus{Status: "healthy"}
		}

		code := http.StatusOK
		if report.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(report)
	}
}

// LivenessHandler answers as long as the process serves requests
func LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
