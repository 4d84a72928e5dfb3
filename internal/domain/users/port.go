package users

import "context"

// Repository port for user accounts. Lookups return (nil, nil) when absent.
type Repository interface {
	Save(ctx context.Context, u *User) error
	Get(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByToken(ctx context.Context, token string) (*User, error)
}
