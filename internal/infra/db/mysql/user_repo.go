package mysql

import (
	"context"
	"database/sql"
	"time"

	domain "github.com/vastulab/vastu-backend/internal/domain/users"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Save insert/update a user record
func (r *UserRepository) Save(ctx context.Context, u *domain.User) error {
	const q = `
INSERT INTO users (id, email, name, tier, api_token, is_active, created_at)
VALUES (?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
 email=VALUES(email), name=VALUES(name), tier=VALUES(tier),
 api_token=VALUES(api_token), is_active=VALUES(is_active);
`
	created := u.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q,
		u.ID, u.Email, u.Name, string(u.Tier), u.APIToken, u.IsActive, created)
	return err
}

func (r *UserRepository) Get(ctx context.Context, id string) (*domain.User, error) {
	return r.one(ctx, `WHERE id=?`, id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.one(ctx, `WHERE email=?`, email)
}

func (r *UserRepository) GetByToken(ctx context.Context, token string) (*domain.User, error) {
	return r.one(ctx, `WHERE api_token=?`, token)
}

func (r *UserRepository) one(ctx context.Context, where string, arg any) (*domain.User, error) {
	q := `SELECT id, email, name, tier, api_token, is_active, created_at FROM users ` + where + ` LIMIT 1;`
	var u domain.User
	err := r.db.QueryRowContext(ctx, q, arg).Scan(
		&u.ID, &u.Email, &u.Name, &u.Tier, &u.APIToken, &u.IsActive, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
