package identity

import "context"

// Authenticator port (backend auth endpoints)
type Authenticator interface {
	Login(ctx context.Context, email, password string) (User, error)
	Register(ctx context.Context, email, password, name string) (User, error)
}
