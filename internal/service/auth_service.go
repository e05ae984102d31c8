package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"examprep/backend/internal/ids"
	"examprep/backend/internal/models"
	"examprep/backend/internal/repository"
	"examprep/backend/internal/security"
)

// LoginLimiter throttles failed credential checks per account key.
type LoginLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Fail(ctx context.Context, key string) error
	Reset(ctx context.Context, key string) error
}

type AuthService struct {
	store   repository.Store
	hasher  *security.PasswordHasher
	tokens  *security.TokenIssuer
	limiter LoginLimiter
	log     zerolog.Logger
	now     func() time.Time
}

func NewAuthService(
	store repository.Store,
	hasher *security.PasswordHasher,
	tokens *security.TokenIssuer,
	limiter LoginLimiter,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		store:   store,
		hasher:  hasher,
		tokens:  tokens,
		limiter: limiter,
		log:     log,
		now:     time.Now,
	}
}

// ClientInfo is the request metadata the device fingerprint is derived from.
type ClientInfo struct {
	UserAgent string
	IPAddress string
}

func (c ClientInfo) DeviceID() string {
	return security.DeviceFingerprint(c.UserAgent, c.IPAddress)
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
	Phone    string
	Client   ClientInfo
}

type LoginInput struct {
	Email    string
	Password string
	Client   ClientInfo
}

type AuthResult struct {
	User    models.User
	Token   string
	Session models.Session
	// Reused is true when an already active session of the same device was
	// refreshed in place.
	Reused bool
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizeUsername(username string) string {
	return strings.ToUpper(strings.TrimSpace(username))
}

// Register creates a basic account and opens its first session so the
// returned token is immediately usable.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (AuthResult, error) {
	username := normalizeUsername(input.Username)
	email := normalizeEmail(input.Email)
	phone := strings.TrimSpace(input.Phone)

	if phone == "" {
		return AuthResult{}, newError(KindValidation, "El número de teléfono es requerido")
	}
	if username == "" || email == "" || input.Password == "" {
		return AuthResult{}, ErrValidation
	}

	existing, err := s.store.Users().FindConflict(ctx, username, email, phone)
	switch {
	case err == nil:
		return AuthResult{}, duplicateError(conflictField(existing, username, email, phone))
	case !errors.Is(err, repository.ErrUserNotFound):
		return AuthResult{}, fmt.Errorf("check identity: %w", err)
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return AuthResult{}, err
	}

	user := models.User{
		ID:           ids.New(),
		Username:     username,
		Email:        email,
		Phone:        phone,
		PasswordHash: hash,
		Role:         models.UserRoleBasic,
		Permissions:  models.StarterPermissions(),
		IsActive:     true,
	}

	if err := s.store.Users().Create(ctx, user); err != nil {
		var dup *repository.DuplicateError
		if errors.As(err, &dup) {
			return AuthResult{}, duplicateError(dup.Field)
		}
		return AuthResult{}, fmt.Errorf("create user: %w", err)
	}

	s.log.Info().Str("user_id", user.ID).Msg("user registered")

	return s.openSession(ctx, user, input.Client)
}

func conflictField(existing models.User, username, email, phone string) repository.IdentityField {
	switch {
	case existing.Email == email:
		return repository.FieldEmail
	case existing.Username == username:
		return repository.FieldUsername
	case existing.Phone == phone:
		return repository.FieldPhone
	}
	return repository.FieldEmail
}

func duplicateError(field repository.IdentityField) *Error {
	msg := "Ya existe un usuario con "
	switch field {
	case repository.FieldUsername:
		msg += "este nombre de usuario"
	case repository.FieldPhone:
		msg += "este número de teléfono"
	default:
		msg += "este email"
	}
	return newError(KindDuplicateIdentity, msg)
}

// VerifyCredentials resolves an active account by email and password. Unknown
// accounts and wrong passwords fail identically.
func (s *AuthService) VerifyCredentials(ctx context.Context, email, password string) (models.User, error) {
	email = normalizeEmail(email)

	allowed, err := s.limiter.Allow(ctx, email)
	if err != nil {
		s.log.Warn().Err(err).Msg("login limiter unavailable")
	} else if !allowed {
		return models.User{}, ErrTooManyAttempts
	}

	user, err := s.store.Users().FindActiveByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.recordFailure(ctx, email)
			return models.User{}, ErrInvalidCredentials
		}
		return models.User{}, fmt.Errorf("find user: %w", err)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return models.User{}, fmt.Errorf("verify password for %s: %w", user.ID, err)
	}
	if !ok {
		s.recordFailure(ctx, email)
		return models.User{}, ErrInvalidCredentials
	}

	if err := s.limiter.Reset(ctx, email); err != nil {
		s.log.Warn().Err(err).Msg("login limiter reset failed")
	}
	return user, nil
}

func (s *AuthService) recordFailure(ctx context.Context, email string) {
	if err := s.limiter.Fail(ctx, email); err != nil {
		s.log.Warn().Err(err).Msg("login limiter record failed")
	}
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (AuthResult, error) {
	user, err := s.VerifyCredentials(ctx, input.Email, input.Password)
	if err != nil {
		return AuthResult{}, err
	}
	return s.openSession(ctx, user, input.Client)
}

func (s *AuthService) openSession(ctx context.Context, user models.User, client ClientInfo) (AuthResult, error) {
	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return AuthResult{}, err
	}

	deviceID := client.DeviceID()
	var (
		session models.Session
		reused  bool
	)
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		session, reused, err = s.reconcile(ctx, tx, user.ID, deviceID, token, client)
		return err
	})
	if err != nil {
		return AuthResult{}, fmt.Errorf("reconcile session: %w", err)
	}

	user.LastLogin = &session.LastActivity

	s.log.Info().
		Str("user_id", user.ID).
		Str("device_id", deviceID).
		Bool("reused", reused).
		Msg("session opened")

	return AuthResult{
		User:    user,
		Token:   token,
		Session: session,
		Reused:  reused,
	}, nil
}

// reconcile enforces one active session per user across devices while
// keeping one row per device. The user row lock serializes concurrent logins
// of the same account.
func (s *AuthService) reconcile(
	ctx context.Context,
	tx repository.Store,
	userID string,
	deviceID string,
	token string,
	client ClientInfo,
) (models.Session, bool, error) {
	active, err := tx.Users().LockByID(ctx, userID)
	if err != nil {
		return models.Session{}, false, err
	}
	// Deactivated after the credential check.
	if !active {
		return models.Session{}, false, ErrInvalidCredentials
	}

	now := s.now()
	var (
		session models.Session
		reused  bool
	)

	existing, err := tx.Sessions().FindActiveByDevice(ctx, userID, deviceID)
	switch {
	case err == nil:
		if err := tx.Sessions().RotateToken(ctx, existing.ID, token, now); err != nil {
			return models.Session{}, false, err
		}
		existing.Token = token
		existing.LastActivity = now
		session, reused = existing, true

	case errors.Is(err, repository.ErrSessionNotFound):
		closed, err := tx.Sessions().CloseActiveByUser(ctx, userID, now, true)
		if err != nil {
			return models.Session{}, false, err
		}
		if closed > 0 {
			s.log.Info().Str("user_id", userID).Int64("closed", closed).Msg("previous device sessions force-closed")
		}

		session = models.Session{
			ID:           ids.New(),
			UserID:       userID,
			DeviceID:     deviceID,
			Token:        token,
			UserAgent:    client.UserAgent,
			IPAddress:    client.IPAddress,
			LoginTime:    now,
			LastActivity: now,
			IsActive:     true,
		}
		if err := tx.Sessions().Create(ctx, session); err != nil {
			return models.Session{}, false, err
		}

	default:
		return models.Session{}, false, err
	}

	if err := tx.Users().UpdateLastLogin(ctx, userID, now); err != nil {
		return models.Session{}, false, err
	}
	return session, reused, nil
}

// Logout closes the session carrying token. Absent, unverifiable or already
// closed tokens are a no-op.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if _, err := s.tokens.Verify(token); err != nil {
		return nil
	}
	if _, err := s.store.Sessions().CloseByToken(ctx, token, s.now()); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}

func (s *AuthService) Profile(ctx context.Context, userID string) (models.User, error) {
	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, err
	}
	return user, nil
}
