package repository

import (
	"context"
	"errors"
	"time"

	"examprep/backend/internal/models"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrSessionNotFound = errors.New("session not found")
	// ErrActiveSessionExists reports a write that would leave a user with two
	// active sessions.
	ErrActiveSessionExists = errors.New("user already has an active session")
)

// IdentityField names the unique user attribute a registration collided on.
type IdentityField string

const (
	FieldEmail    IdentityField = "email"
	FieldUsername IdentityField = "username"
	FieldPhone    IdentityField = "phone"
)

// DuplicateError is returned when a write violates one of the identity
// uniqueness constraints.
type DuplicateError struct {
	Field IdentityField
}

func (e *DuplicateError) Error() string {
	return "duplicate " + string(e.Field)
}

// UserAccess is a partial update of the authorization attributes. Nil fields
// are left untouched.
type UserAccess struct {
	Role        *models.UserRole
	Permissions models.Permissions
}

type UserStore interface {
	Create(ctx context.Context, user models.User) error
	// FindConflict returns any user matching one of the identity values.
	FindConflict(ctx context.Context, username, email, phone string) (models.User, error)
	FindActiveByEmail(ctx context.Context, email string) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	// LockByID takes a row lock for the rest of the enclosing transaction
	// and reports the user's is_active flag as of the lock.
	LockByID(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, limit, offset int) ([]models.User, int, error)
	Search(ctx context.Context, query string) ([]models.User, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	UpdateStatus(ctx context.Context, id string, active bool) error
	UpdateAccess(ctx context.Context, id string, access UserAccess) (models.User, error)
	Delete(ctx context.Context, id string) error
}

type SessionStore interface {
	Create(ctx context.Context, session models.Session) error
	FindActiveByDevice(ctx context.Context, userID, deviceID string) (models.Session, error)
	FindActiveByToken(ctx context.Context, userID, token string) (models.Session, error)
	ListByUser(ctx context.Context, userID string) ([]models.Session, error)
	RotateToken(ctx context.Context, id, token string, at time.Time) error
	Touch(ctx context.Context, id string, at time.Time) error
	// CloseByToken ends the active session carrying token. Closing nothing is
	// not an error.
	CloseByToken(ctx context.Context, token string, at time.Time) (int64, error)
	CloseActiveByUser(ctx context.Context, userID string, at time.Time, forced bool) (int64, error)
	CloseIdle(ctx context.Context, idleSince time.Time, at time.Time) (int64, error)
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}

// Store hands out repositories bound to one connection or transaction.
type Store interface {
	Users() UserStore
	Sessions() SessionStore
	// WithTx runs fn inside a transaction. fn's Store is bound to it; the
	// transaction commits when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(Store) error) error
	Ping(ctx context.Context) error
}
