package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"examprep/backend/internal/models"
)

const userColumns = `id, username, email, phone, password_hash, role, permissions, is_active, last_login, created_at, updated_at`

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user models.User) error {
	const query = `
		INSERT INTO users (
			id, username, email, phone, password_hash, role, permissions, is_active, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW()
		)
	`

	perms, err := encodePermissions(user.Permissions)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, query,
		user.ID,
		user.Username,
		user.Email,
		user.Phone,
		user.PasswordHash,
		string(user.Role),
		perms,
		user.IsActive,
	)
	if pgErr, ok := isUniqueViolation(err); ok {
		return &DuplicateError{Field: fieldForConstraint(pgErr.ConstraintName)}
	}
	return err
}

func fieldForConstraint(name string) IdentityField {
	switch {
	case strings.Contains(name, "username"):
		return FieldUsername
	case strings.Contains(name, "phone"):
		return FieldPhone
	default:
		return FieldEmail
	}
}

func (r *UserRepository) FindConflict(ctx context.Context, username, email, phone string) (models.User, error) {
	// Ordered so that when several users collide the email match wins, then
	// username, then phone.
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE email = $1 OR username = $2 OR phone = $3
		ORDER BY (email = $1) DESC, (username = $2) DESC
		LIMIT 1
	`
	return r.getOne(ctx, query, email, username, phone)
}

func (r *UserRepository) FindActiveByEmail(ctx context.Context, email string) (models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1 AND is_active`
	return r.getOne(ctx, query, email)
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *UserRepository) LockByID(ctx context.Context, id string) (bool, error) {
	const query = `SELECT is_active FROM users WHERE id = $1 FOR UPDATE`
	var active bool
	if err := r.db.QueryRow(ctx, query, id).Scan(&active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrUserNotFound
		}
		return false, err
	}
	return active, nil
}

func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]models.User, int, error) {
	const countQuery = `SELECT COUNT(*) FROM users`
	var total int
	if err := r.db.QueryRow(ctx, countQuery).Scan(&total); err != nil {
		return nil, 0, err
	}

	const query = `
		SELECT ` + userColumns + `
		FROM users
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	users, err := r.getMany(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (r *UserRepository) Search(ctx context.Context, term string) ([]models.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE username ILIKE $1 OR email ILIKE $1 OR phone ILIKE $1
		ORDER BY created_at DESC
	`
	return r.getMany(ctx, query, "%"+likeEscaper.Replace(term)+"%")
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE users SET last_login = $2, updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, query, id, at)
}

func (r *UserRepository) UpdateStatus(ctx context.Context, id string, active bool) error {
	const query = `UPDATE users SET is_active = $2, updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, query, id, active)
}

func (r *UserRepository) UpdateAccess(ctx context.Context, id string, access UserAccess) (models.User, error) {
	const query = `
		UPDATE users
		SET role = COALESCE($2, role),
		    permissions = COALESCE($3, permissions),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns

	var role *string
	if access.Role != nil {
		name := string(*access.Role)
		role = &name
	}
	var perms []byte
	if access.Permissions != nil {
		encoded, err := encodePermissions(access.Permissions)
		if err != nil {
			return models.User{}, err
		}
		perms = encoded
	}
	return r.getOne(ctx, query, id, role, perms)
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM users WHERE id = $1`
	return r.execOne(ctx, query, id)
}

func (r *UserRepository) execOne(ctx context.Context, query string, args ...any) error {
	cmd, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) getOne(ctx context.Context, query string, args ...any) (models.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

func (r *UserRepository) getMany(ctx context.Context, query string, args ...any) ([]models.User, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func scanUser(row rowScanner) (models.User, error) {
	var (
		user  models.User
		role  string
		perms []byte
	)
	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.Phone,
		&user.PasswordHash,
		&role,
		&perms,
		&user.IsActive,
		&user.LastLogin,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return models.User{}, err
	}

	user.Role = models.UserRole(role)
	user.Permissions = models.Permissions{}
	if len(perms) > 0 {
		if err := json.Unmarshal(perms, &user.Permissions); err != nil {
			return models.User{}, fmt.Errorf("decode permissions: %w", err)
		}
	}
	return user, nil
}

func encodePermissions(perms models.Permissions) ([]byte, error) {
	if perms == nil {
		perms = models.Permissions{}
	}
	encoded, err := json.Marshal(perms)
	if err != nil {
		return nil, fmt.Errorf("encode permissions: %w", err)
	}
	return encoded, nil
}
