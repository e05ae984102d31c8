package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"examprep/backend/internal/models"
	"examprep/backend/internal/repository"
)

type AdminService struct {
	store repository.Store
	log   zerolog.Logger
	now   func() time.Time
}

func NewAdminService(store repository.Store, log zerolog.Logger) *AdminService {
	return &AdminService{
		store: store,
		log:   log,
		now:   time.Now,
	}
}

func notFound(err error) error {
	if errors.Is(err, repository.ErrUserNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *AdminService) ListUsers(ctx context.Context, limit, offset int) ([]models.User, int, error) {
	return s.store.Users().List(ctx, limit, offset)
}

func (s *AdminService) SearchUsers(ctx context.Context, query string) ([]models.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, newError(KindValidation, "Query de búsqueda requerido")
	}
	return s.store.Users().Search(ctx, query)
}

func (s *AdminService) GetUser(ctx context.Context, id string) (models.User, error) {
	user, err := s.store.Users().GetByID(ctx, id)
	return user, notFound(err)
}

type UpdateAccessInput struct {
	Role        *string
	Permissions []models.PagePermission
}

// UpdateAccess edits role and permissions only. Live sessions are kept; the
// next authenticated request observes the new grants.
func (s *AdminService) UpdateAccess(ctx context.Context, id string, input UpdateAccessInput) (models.User, error) {
	var access repository.UserAccess
	if input.Role != nil {
		role := models.UserRole(*input.Role)
		if !role.Valid() {
			return models.User{}, newError(KindValidation, "Rol inválido")
		}
		access.Role = &role
	}
	if input.Permissions != nil {
		for _, perm := range input.Permissions {
			if strings.TrimSpace(perm.Page) == "" {
				return models.User{}, newError(KindValidation, "Cada permiso requiere una página")
			}
		}
		access.Permissions = models.PermissionsFromList(input.Permissions)
	}

	user, err := s.store.Users().UpdateAccess(ctx, id, access)
	if err != nil {
		return models.User{}, notFound(err)
	}
	s.log.Info().Str("user_id", id).Str("role", string(user.Role)).Msg("user access updated")
	return user, nil
}

// SetStatus enables or disables an account. Disabling force-closes every
// active session in the same transaction.
func (s *AdminService) SetStatus(ctx context.Context, id string, active bool) (models.User, error) {
	if !active {
		return s.Deactivate(ctx, id)
	}
	if err := s.store.Users().UpdateStatus(ctx, id, true); err != nil {
		return models.User{}, notFound(err)
	}
	return s.GetUser(ctx, id)
}

func (s *AdminService) Deactivate(ctx context.Context, id string) (models.User, error) {
	var user models.User
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		if err := tx.Users().UpdateStatus(ctx, id, false); err != nil {
			return err
		}
		closed, err := tx.Sessions().CloseActiveByUser(ctx, id, s.now(), true)
		if err != nil {
			return fmt.Errorf("close sessions: %w", err)
		}
		user, err = tx.Users().GetByID(ctx, id)
		if err != nil {
			return err
		}
		s.log.Info().Str("user_id", id).Int64("closed", closed).Msg("user deactivated")
		return nil
	})
	if err != nil {
		return models.User{}, notFound(err)
	}
	return user, nil
}

// ForceLogoutAll closes every active session of the user and leaves the
// account enabled.
func (s *AdminService) ForceLogoutAll(ctx context.Context, id string) (int64, error) {
	if _, err := s.store.Users().GetByID(ctx, id); err != nil {
		return 0, notFound(err)
	}
	closed, err := s.store.Sessions().CloseActiveByUser(ctx, id, s.now(), true)
	if err != nil {
		return 0, fmt.Errorf("close sessions: %w", err)
	}
	s.log.Info().Str("user_id", id).Int64("closed", closed).Msg("user logged out from all devices")
	return closed, nil
}

func (s *AdminService) ListSessions(ctx context.Context, id string) ([]models.Session, error) {
	if _, err := s.store.Users().GetByID(ctx, id); err != nil {
		return nil, notFound(err)
	}
	return s.store.Sessions().ListByUser(ctx, id)
}

// DeleteUser removes the user's sessions before the user row so no session
// outlives its owner.
func (s *AdminService) DeleteUser(ctx context.Context, id string) error {
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		if _, err := tx.Users().LockByID(ctx, id); err != nil {
			return err
		}
		deleted, err := tx.Sessions().DeleteByUser(ctx, id)
		if err != nil {
			return fmt.Errorf("delete sessions: %w", err)
		}
		if err := tx.Users().Delete(ctx, id); err != nil {
			return err
		}
		s.log.Info().Str("user_id", id).Int64("sessions", deleted).Msg("user deleted")
		return nil
	})
	return notFound(err)
}
