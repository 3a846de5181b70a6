package liveness

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryanwahyu/threat-analyzer/internal/application"
	domain "github.com/bryanwahyu/threat-analyzer/internal/domain/analysis"
)

const (
	DefaultTimeout  = 5 * time.Second
	DefaultInterval = 10 * time.Second
)

type Status int32

const (
	Unknown Status = iota
	Online
	Offline
)

func (s Status) String() string {
	switch s {
	case Online:
		return "online"
	case Offline:
		return "offline"
	default:
		return "unknown"
	}
}

// ErrOffline is reported by Cached when the last cycle failed.
var ErrOffline = errors.New("backend offline")

// Probe polls the backend health endpoint and keeps the latest status.
type Probe struct {
	checker domain.HealthChecker
	clock   application.Clock

	Timeout  time.Duration
	Interval time.Duration

	status   atomic.Int32
	checked  atomic.Int64
	inFlight atomic.Bool

	mu    sync.Mutex
	hooks []func(online bool)
}

func NewProbe(checker domain.HealthChecker, clock application.Clock) *Probe {
	if clock == nil {
		clock = application.SystemClock{}
	}
	return &Probe{
		checker:  checker,
		clock:    clock,
		Timeout:  DefaultTimeout,
		Interval: DefaultInterval,
	}
}

// OnStatus registers a hook fired once per completed cycle with its outcome.
func (p *Probe) OnStatus(fn func(online bool)) {
	p.mu.Lock()
	p.hooks = append(p.hooks, fn)
	p.mu.Unlock()
}

func (p *Probe) Status() Status {
	return Status(p.status.Load())
}

// LastChecked is the completion time of the latest cycle, zero before the first.
func (p *Probe) LastChecked() time.Time {
	n := p.checked.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

// Check runs one cycle bounded by Timeout, records the outcome and fires the
// hooks. A cycle aborted by canceling ctx records nothing.
func (p *Probe) Check(ctx context.Context) bool {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := p.checker.Check(cctx)
	if ctx.Err() != nil {
		return false
	}
	online := err == nil
	if !online {
		slog.Debug("backend health check failed", "err", err)
	}

	next := Offline
	if online {
		next = Online
	}
	p.status.Store(int32(next))
	p.checked.Store(p.clock.Now().UnixNano())

	p.mu.Lock()
	hooks := make([]func(bool), len(p.hooks))
	copy(hooks, p.hooks)
	p.mu.Unlock()
	for _, h := range hooks {
		h(online)
	}
	return online
}

// Run checks immediately and then every Interval until ctx is done. A tick
// that fires while the previous cycle is still running is skipped.
func (p *Probe) Run(ctx context.Context) {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	p.tick(ctx, &wg)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx, &wg)
		}
	}
}

func (p *Probe) tick(ctx context.Context, wg *sync.WaitGroup) {
	if !p.inFlight.CompareAndSwap(false, true) {
		slog.Debug("skipping health check, previous one still running")
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer p.inFlight.Store(false)
		if ctx.Err() != nil {
			return
		}
		p.Check(ctx)
	}()
}

// Cached exposes the last known status as a health checker without
// issuing a request.
func (p *Probe) Cached() domain.HealthChecker {
	return cached{p}
}

type cached struct{ p *Probe }

func (c cached) Check(context.Context) error {
	switch c.p.Status() {
	case Online:
		return nil
	case Offline:
		return ErrOffline
	default:
		return errors.New("backend status unknown")
	}
}
