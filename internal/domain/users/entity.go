package users

import "time"

// Tier enum (entitlement)
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// User account. Token issuance/validation cryptography lives with the
// identity provider; the backend stores only the opaque token it hands out.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Tier      Tier      `json:"tier"`
	APIToken  string    `json:"-"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Principal is the resolved acting identity attached to a request
type Principal struct {
	ID       string `json:"id"`
	IsActive bool   `json:"is_active"`
	Tier     Tier   `json:"tier"`
}

func (u *User) Principal() Principal {
	return Principal{ID: u.ID, IsActive: u.IsActive, Tier: u.Tier}
}
