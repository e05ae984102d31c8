package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"examprep/backend/internal/models"
	"examprep/backend/internal/repository"
	"examprep/backend/internal/security"
)

// Identity is the resolved caller of an authenticated request.
type Identity struct {
	User     models.User
	Session  models.Session
	DeviceID string
	Token    string
}

// AuthGate admits a request only when its token verifies, its user is active
// and a live session row still carries that exact token.
type AuthGate struct {
	store  repository.Store
	tokens *security.TokenIssuer
	log    zerolog.Logger
	now    func() time.Time
}

func NewAuthGate(store repository.Store, tokens *security.TokenIssuer, log zerolog.Logger) *AuthGate {
	return &AuthGate{
		store:  store,
		tokens: tokens,
		log:    log,
		now:    time.Now,
	}
}

func (g *AuthGate) Authenticate(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrMissingToken
	}

	userID, err := g.tokens.Verify(token)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}

	// The user is re-read on every request so role, permission and status
	// changes apply without reissuing tokens.
	user, err := g.store.Users().GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return Identity{}, ErrInvalidToken
		}
		return Identity{}, fmt.Errorf("load user: %w", err)
	}
	if !user.IsActive {
		return Identity{}, ErrInvalidToken
	}

	session, err := g.store.Sessions().FindActiveByToken(ctx, user.ID, token)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return Identity{}, ErrSessionInvalid
		}
		return Identity{}, fmt.Errorf("load session: %w", err)
	}

	now := g.now()
	if err := g.store.Sessions().Touch(ctx, session.ID, now); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return Identity{}, ErrSessionInvalid
		}
		g.log.Warn().Err(err).Str("session_id", session.ID).Msg("session touch failed")
	} else {
		session.LastActivity = now
	}

	return Identity{
		User:     user,
		Session:  session,
		DeviceID: session.DeviceID,
		Token:    token,
	}, nil
}

// Authorize reports whether identity holds one of roles.
func Authorize(identity Identity, roles ...models.UserRole) error {
	for _, role := range roles {
		if identity.User.Role == role {
			return nil
		}
	}
	return ErrForbidden
}
