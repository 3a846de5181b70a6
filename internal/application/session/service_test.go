package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/threat-analyzer/internal/domain/identity"
	"github.com/bryanwahyu/threat-analyzer/internal/domain/storage"
	"github.com/bryanwahyu/threat-analyzer/internal/infra/kv"
)

type fakeAuth struct {
	users map[string]identity.User
	err   error
}

func (f *fakeAuth) Login(_ context.Context, email, _ string) (identity.User, error) {
	if f.err != nil {
		return identity.User{}, f.err
	}
	u, ok := f.users[email]
	if !ok {
		return identity.User{}, &identity.RejectedError{Message: "Email ou mot de passe incorrect"}
	}
	return u, nil
}

func (f *fakeAuth) Register(_ context.Context, email, _, name string) (identity.User, error) {
	if f.err != nil {
		return identity.User{}, f.err
	}
	if _, ok := f.users[email]; ok {
		return identity.User{}, &identity.RejectedError{Message: "Cet email est déjà utilisé"}
	}
	u := identity.User{ID: "new-" + email, Email: email, Name: name}
	f.users[email] = u
	return u, nil
}

type failingSet struct{ *kv.Memory }

func (failingSet) Set(context.Context, string, []byte) error { return errors.New("disk full") }

func newAuth() *fakeAuth {
	return &fakeAuth{users: map[string]identity.User{
		"a@example.com": {ID: "1", Email: "a@example.com", Name: "A"},
		"b@example.com": {ID: "2", Email: "b@example.com", Name: "B"},
	}}
}

func TestLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("success stores the identity and notifies", func(t *testing.T) {
		store := kv.NewMemory()
		s := NewService(newAuth(), store)
		var seen []*identity.User
		s.OnChange(func(_ context.Context, u *identity.User) { seen = append(seen, u) })

		assert.True(t, s.Login(ctx, "a@example.com", "secret"))
		require.NotNil(t, s.Current())
		assert.Equal(t, "1", s.Current().ID)

		raw, err := store.Get(ctx, storage.UserKey)
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":"1","email":"a@example.com","name":"A"}`, string(raw))

		require.Len(t, seen, 1)
		assert.Equal(t, "1", seen[0].ID)
	})

	t.Run("rejection keeps the prior identity", func(t *testing.T) {
		s := NewService(newAuth(), kv.NewMemory())
		require.True(t, s.Login(ctx, "a@example.com", "secret"))

		assert.False(t, s.Login(ctx, "nobody@example.com", "wrong"))
		assert.Equal(t, "1", s.Current().ID)
	})

	t.Run("transport failure returns false", func(t *testing.T) {
		auth := newAuth()
		auth.err = errors.New("connection refused")
		s := NewService(auth, kv.NewMemory())
		assert.False(t, s.Login(ctx, "a@example.com", "secret"))
		assert.False(t, s.Authenticated())
	})

	t.Run("persist failure leaves memory unchanged", func(t *testing.T) {
		s := NewService(newAuth(), failingSet{kv.NewMemory()})
		assert.False(t, s.Login(ctx, "a@example.com", "secret"))
		assert.Nil(t, s.Current())
	})

	t.Run("identity without id is refused", func(t *testing.T) {
		auth := newAuth()
		auth.users["c@example.com"] = identity.User{Email: "c@example.com"}
		s := NewService(auth, kv.NewMemory())
		assert.False(t, s.Login(ctx, "c@example.com", "secret"))
	})
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	s := NewService(newAuth(), kv.NewMemory())

	assert.True(t, s.Register(ctx, "new@example.com", "secret1", "New"))
	require.True(t, s.Authenticated())
	assert.Equal(t, "New", s.Current().Name)

	assert.False(t, s.Register(ctx, "a@example.com", "secret1", "Dup"))
	assert.Equal(t, "new@example.com", s.Current().Email)
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	s := NewService(newAuth(), store)
	require.True(t, s.Login(ctx, "a@example.com", "secret"))

	var last *identity.User = &identity.User{}
	s.OnChange(func(_ context.Context, u *identity.User) { last = u })
	s.Logout(ctx)

	assert.Nil(t, s.Current())
	assert.Nil(t, last)
	_, err := store.Get(ctx, storage.UserKey)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRestore(t *testing.T) {
	ctx := context.Background()

	t.Run("loads the stored identity", func(t *testing.T) {
		store := kv.NewMemory()
		require.NoError(t, store.Set(ctx, storage.UserKey, []byte(`{"id":7,"email":"a@example.com","name":"A"}`)))
		s := NewService(newAuth(), store)
		var seen *identity.User
		s.OnChange(func(_ context.Context, u *identity.User) { seen = u })

		s.Restore(ctx)
		require.NotNil(t, s.Current())
		assert.Equal(t, "7", s.Current().ID)
		require.NotNil(t, seen)
		assert.Equal(t, "7", seen.ID)
	})

	t.Run("corrupt value is discarded", func(t *testing.T) {
		store := kv.NewMemory()
		require.NoError(t, store.Set(ctx, storage.UserKey, []byte(`{not json`)))
		s := NewService(newAuth(), store)
		notified := false
		s.OnChange(func(_ context.Context, u *identity.User) {
			notified = true
			assert.Nil(t, u)
		})

		s.Restore(ctx)
		assert.Nil(t, s.Current())
		assert.True(t, notified)
		_, err := store.Get(ctx, storage.UserKey)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("absent value starts anonymous", func(t *testing.T) {
		s := NewService(newAuth(), kv.NewMemory())
		s.Restore(ctx)
		assert.False(t, s.Authenticated())
	})
}

func TestCurrentReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewService(newAuth(), kv.NewMemory())
	require.True(t, s.Login(ctx, "a@example.com", "secret"))

	u := s.Current()
	u.ID = "tampered"
	assert.Equal(t, "1", s.Current().ID)
}
