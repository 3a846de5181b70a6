package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/bryanwahyu/threat-analyzer/internal/domain/identity"
	"github.com/bryanwahyu/threat-analyzer/internal/domain/storage"
)

// Observer is told about every identity change; nil means anonymous.
type Observer func(ctx context.Context, u *identity.User)

// Service holds the authenticated identity and mirrors it to the store.
// Service is safe for concurrent use.
type Service struct {
	auth  identity.Authenticator
	store storage.Store

	mu        sync.RWMutex
	user      *identity.User
	observers []Observer
}

func NewService(auth identity.Authenticator, store storage.Store) *Service {
	return &Service{auth: auth, store: store}
}

// OnChange registers an observer. Register observers before Restore.
func (s *Service) OnChange(o Observer) {
	s.mu.Lock()
	s.observers = append(s.observers, o)
	s.mu.Unlock()
}

// Current returns a copy of the held identity, nil when anonymous.
func (s *Service) Current() *identity.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// Authenticated reports whether an identity is held.
func (s *Service) Authenticated() bool {
	return s.Current() != nil
}

// Restore loads the persisted identity. A value that does not parse is
// dropped and the session starts anonymous.
func (s *Service) Restore(ctx context.Context) {
	var restored *identity.User

	raw, err := s.store.Get(ctx, storage.UserKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		slog.Warn("could not read stored identity", "err", err)
	default:
		var u identity.User
		if err := json.Unmarshal(raw, &u); err != nil || !u.Valid() {
			slog.Warn("discarding unreadable stored identity", "err", err)
			if err := s.store.Remove(ctx, storage.UserKey); err != nil {
				slog.Warn("could not remove stored identity", "err", err)
			}
		} else {
			restored = &u
		}
	}

	s.mu.Lock()
	s.user = restored
	s.mu.Unlock()
	s.notify(ctx, restored)
}

// Login authenticates against the backend. Any failure returns false and
// keeps the identity held before the call.
func (s *Service) Login(ctx context.Context, email, password string) bool {
	u, err := s.auth.Login(ctx, email, password)
	if err != nil {
		slog.Info("login failed", "email", email, "err", err)
		return false
	}
	return s.adopt(ctx, u)
}

// Register creates an account; success also logs the new user in.
func (s *Service) Register(ctx context.Context, email, password, name string) bool {
	u, err := s.auth.Register(ctx, email, password, name)
	if err != nil {
		slog.Info("registration failed", "email", email, "err", err)
		return false
	}
	return s.adopt(ctx, u)
}

// Logout forgets the identity locally; the backend is not called.
func (s *Service) Logout(ctx context.Context) {
	s.mu.Lock()
	s.user = nil
	s.mu.Unlock()

	if err := s.store.Remove(ctx, storage.UserKey); err != nil {
		slog.Warn("could not remove stored identity", "err", err)
	}
	s.notify(ctx, nil)
}

func (s *Service) adopt(ctx context.Context, u identity.User) bool {
	if !u.Valid() {
		slog.Info("backend returned an identity without id")
		return false
	}
	raw, err := json.Marshal(u)
	if err != nil {
		slog.Error("could not encode identity", "err", err)
		return false
	}
	if err := s.store.Set(ctx, storage.UserKey, raw); err != nil {
		slog.Error("could not persist identity", "err", err)
		return false
	}

	s.mu.Lock()
	s.user = &u
	s.mu.Unlock()

	cp := u
	s.notify(ctx, &cp)
	return true
}

func (s *Service) notify(ctx context.Context, u *identity.User) {
	s.mu.RLock()
	observers := make([]Observer, len(s.observers))
	copy(observers, s.observers)
	s.mu.RUnlock()

	for _, o := range observers {
		if u == nil {
			o(ctx, nil)
			continue
		}
		cp := *u
		o(ctx, &cp)
	}
}
