package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"examprep/backend/internal/models"
)

const sessionColumns = `id, user_id, device_id, token, user_agent, ip_address, login_time, last_activity, logout_time, is_active, forced_logout`

type SessionRepository struct {
	db DBTX
}

func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, session models.Session) error {
	const query = `
		INSERT INTO user_sessions (
			id, user_id, device_id, token, user_agent, ip_address, login_time, last_activity, is_active, forced_logout
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
	`

	_, err := r.db.Exec(ctx, query,
		session.ID,
		session.UserID,
		session.DeviceID,
		session.Token,
		session.UserAgent,
		session.IPAddress,
		session.LoginTime,
		session.LastActivity,
		session.IsActive,
		session.ForcedLogout,
	)
	if _, ok := isUniqueViolation(err); ok {
		return ErrActiveSessionExists
	}
	return err
}

func (r *SessionRepository) FindActiveByDevice(ctx context.Context, userID, deviceID string) (models.Session, error) {
	const query = `
		SELECT ` + sessionColumns + `
		FROM user_sessions
		WHERE user_id = $1 AND device_id = $2 AND is_active
		ORDER BY last_activity DESC
		LIMIT 1
	`
	return r.getOne(ctx, query, userID, deviceID)
}

func (r *SessionRepository) FindActiveByToken(ctx context.Context, userID, token string) (models.Session, error) {
	const query = `
		SELECT ` + sessionColumns + `
		FROM user_sessions
		WHERE user_id = $1 AND token = $2 AND is_active
	`
	return r.getOne(ctx, query, userID, token)
}

func (r *SessionRepository) ListByUser(ctx context.Context, userID string) ([]models.Session, error) {
	const query = `
		SELECT ` + sessionColumns + `
		FROM user_sessions
		WHERE user_id = $1
		ORDER BY login_time DESC
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []models.Session{}
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (r *SessionRepository) RotateToken(ctx context.Context, id, token string, at time.Time) error {
	const query = `UPDATE user_sessions SET token = $2, last_activity = $3 WHERE id = $1`
	cmd, err := r.db.Exec(ctx, query, id, token, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (r *SessionRepository) Touch(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE user_sessions SET last_activity = $2 WHERE id = $1 AND is_active`
	cmd, err := r.db.Exec(ctx, query, id, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (r *SessionRepository) CloseByToken(ctx context.Context, token string, at time.Time) (int64, error) {
	const query = `
		UPDATE user_sessions
		SET is_active = FALSE, logout_time = $2
		WHERE token = $1 AND is_active
	`
	return r.exec(ctx, query, token, at)
}

func (r *SessionRepository) CloseActiveByUser(ctx context.Context, userID string, at time.Time, forced bool) (int64, error) {
	const query = `
		UPDATE user_sessions
		SET is_active = FALSE, logout_time = $2, forced_logout = $3
		WHERE user_id = $1 AND is_active
	`
	return r.exec(ctx, query, userID, at, forced)
}

func (r *SessionRepository) CloseIdle(ctx context.Context, idleSince time.Time, at time.Time) (int64, error) {
	const query = `
		UPDATE user_sessions
		SET is_active = FALSE, logout_time = $2
		WHERE is_active AND last_activity < $1
	`
	return r.exec(ctx, query, idleSince, at)
}

func (r *SessionRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	const query = `DELETE FROM user_sessions WHERE user_id = $1`
	return r.exec(ctx, query, userID)
}

func (r *SessionRepository) exec(ctx context.Context, query string, args ...any) (int64, error) {
	cmd, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *SessionRepository) getOne(ctx context.Context, query string, args ...any) (models.Session, error) {
	session, err := scanSession(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Session{}, ErrSessionNotFound
		}
		return models.Session{}, err
	}
	return session, nil
}

func scanSession(row rowScanner) (models.Session, error) {
	var session models.Session
	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.DeviceID,
		&session.Token,
		&session.UserAgent,
		&session.IPAddress,
		&session.LoginTime,
		&session.LastActivity,
		&session.LogoutTime,
		&session.IsActive,
		&session.ForcedLogout,
	)
	return session, err
}
