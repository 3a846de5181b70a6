package analyses

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/pkg/errors"

	"github.com/bryanwahyu/threat-analyzer/internal/application"
	domain "github.com/bryanwahyu/threat-analyzer/internal/domain/analysis"
	"github.com/bryanwahyu/threat-analyzer/internal/domain/identity"
	"github.com/bryanwahyu/threat-analyzer/internal/domain/storage"
)

// Service is the local cache of analysis results for the active identity.
// Entries are kept most recent first; the persisted partition is rewritten on
// every mutation and memory only changes once the write went through.
// Service is safe for concurrent use within one process. Two processes
// sharing a partition race: last writer wins.
type Service struct {
	store storage.Store
	clock application.Clock

	mu       sync.RWMutex
	key      string
	analyses []domain.Analysis
}

func NewService(store storage.Store, clock application.Clock) *Service {
	if clock == nil {
		clock = application.SystemClock{}
	}
	return &Service{
		store:    store,
		clock:    clock,
		key:      storage.AnalysesKey(""),
		analyses: []domain.Analysis{},
	}
}

// Activate switches to the partition of u (guest when nil) and reloads it,
// discarding whatever was in memory. Its signature matches session.Observer.
func (s *Service) Activate(ctx context.Context, u *identity.User) {
	key := storage.AnalysesKey("")
	if u.Valid() {
		key = storage.AnalysesKey(u.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = key
	s.analyses = s.load(ctx, key)
}

func (s *Service) load(ctx context.Context, key string) []domain.Analysis {
	raw, err := s.store.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return []domain.Analysis{}
	}
	if err != nil {
		slog.Warn("could not read analyses, starting empty", "key", key, "err", err)
		return []domain.Analysis{}
	}

	var list []domain.Analysis
	if err := json.Unmarshal(raw, &list); err != nil {
		slog.Warn("stored analyses are corrupt, starting empty", "key", key, "err", err)
		return []domain.Analysis{}
	}
	if list == nil {
		list = []domain.Analysis{}
	}
	for i := range list {
		domain.Normalize(&list[i])
	}
	return list
}

// PartitionKey returns the storage key of the active identity.
func (s *Service) PartitionKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key
}

// Add stamps a creation time, puts a at the front and persists the partition.
// An existing entry with the same project name is kept behind the new one.
func (s *Service) Add(ctx context.Context, a domain.Analysis) (domain.Analysis, error) {
	a.CreatedAt = s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]domain.Analysis, 0, len(s.analyses)+1)
	next = append(next, a)
	next = append(next, s.analyses...)
	if err := s.persist(ctx, next); err != nil {
		return domain.Analysis{}, err
	}
	s.analyses = next
	return a, nil
}

// Get returns the most recently added analysis for project.
func (s *Service) Get(project string) (domain.Analysis, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.analyses {
		if a.Project == project {
			return a, true
		}
	}
	return domain.Analysis{}, false
}

// Delete removes every entry for project and persists the partition.
func (s *Service) Delete(ctx context.Context, project string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]domain.Analysis, 0, len(s.analyses))
	for _, a := range s.analyses {
		if a.Project != project {
			next = append(next, a)
		}
	}
	if err := s.persist(ctx, next); err != nil {
		return err
	}
	s.analyses = next
	return nil
}

// Clear empties the cache and removes the partition key from the store.
func (s *Service) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Remove(ctx, s.key); err != nil {
		return errors.Wrapf(err, "clear analyses %s", s.key)
	}
	s.analyses = []domain.Analysis{}
	return nil
}

// List returns a copy of the cached analyses, most recent first.
func (s *Service) List() []domain.Analysis {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Analysis, len(s.analyses))
	copy(out, s.analyses)
	return out
}

// Latest returns the most recently added analysis.
func (s *Service) Latest() (domain.Analysis, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.analyses) == 0 {
		return domain.Analysis{}, false
	}
	return s.analyses[0], true
}

func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.analyses)
}

// persist is called with s.mu held.
func (s *Service) persist(ctx context.Context, list []domain.Analysis) error {
	raw, err := json.Marshal(list)
	if err != nil {
		return errors.Wrap(err, "encode analyses")
	}
	if err := s.store.Set(ctx, s.key, raw); err != nil {
		return errors.Wrapf(err, "persist analyses %s", s.key)
	}
	return nil
}
