package users

import (
	"context"
	"log"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vastulab/vastu-backend/internal/application"
	domain "github.com/vastulab/vastu-backend/internal/domain/analyses"
	"github.com/vastulab/vastu-backend/internal/domain/notify"
	"github.com/vastulab/vastu-backend/internal/domain/users"
)

// Service implements account use-cases. Token issuance is an opaque
// uuid handed to the client once; validation is a repository lookup.
type Service struct {
	Repo  users.Repository
	Sink  notify.Sink
	Clock application.Clock
}

type RegisterCommand struct {
	Email string
	Name  string
	Tier  users.Tier
}

// Register creates an account and returns it with its api token set. The
// welcome notification is best-effort: delivery failure is logged and the
// registration still succeeds.
func (s *Service) Register(ctx context.Context, cmd RegisterCommand) (*users.User, error) {
	email := strings.ToLower(strings.TrimSpace(cmd.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, domain.Validationf("invalid email address")
	}
	if strings.TrimSpace(cmd.Name) == "" {
		return nil, domain.Validationf("name is required")
	}
	tier := cmd.Tier
	if tier == "" {
		tier = users.TierFree
	}
	if tier != users.TierFree && tier != users.TierPremium {
		return nil, domain.Validationf("unknown tier %q", tier)
	}

	existing, err := s.Repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.Conflictf("email already registered")
	}

	u := &users.User{
		ID:        uuid.New().String(),
		Email:     email,
		Name:      strings.TrimSpace(cmd.Name),
		Tier:      tier,
		APIToken:  uuid.New().String(),
		IsActive:  true,
		CreatedAt: s.Clock.Now(),
	}
	if err := s.Repo.Save(ctx, u); err != nil {
		return nil, err
	}

	if s.Sink != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		msg := notify.Message{
			Recipient: u.Email,
			Template:  "welcome",
			Data:      map[string]any{"name": u.Name},
		}
		if err := s.Sink.Send(sctx, msg); err != nil {
			log.Printf("welcome notification failed user=%s: %v", u.ID, err)
		}
	}
	return u, nil
}

// Resolve maps a bearer token to the acting principal. Unknown or inactive
// tokens resolve to nil without error; the caller decides whether the
// operation requires authentication.
func (s *Service) Resolve(ctx context.Context, token string) (*users.Principal, error) {
	if token == "" {
		return nil, nil
	}
	u, err := s.Repo.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if u == nil || !u.IsActive {
		return nil, nil
	}
	p := u.Principal()
	return &p, nil
}

// Get returns a user by id, NotFound when absent.
func (s *Service) Get(ctx context.Context, id string) (*users.User, error) {
	u, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, domain.NotFoundf("user %s not found", id)
	}
	return u, nil
}
