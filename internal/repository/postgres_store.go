package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// DBTX is satisfied by *pgxpool.Pool, pgx.Tx and pgxmock.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Pool interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

type PostgresStore struct {
	pool     Pool
	db       DBTX
	inTx     bool
	users    *UserRepository
	sessions *SessionRepository
}

func NewPostgresStore(pool Pool) *PostgresStore {
	return bind(pool, pool, false)
}

func bind(pool Pool, db DBTX, inTx bool) *PostgresStore {
	return &PostgresStore{
		pool:     pool,
		db:       db,
		inTx:     inTx,
		users:    NewUserRepository(db),
		sessions: NewSessionRepository(db),
	}
}

func (s *PostgresStore) Users() UserStore {
	return s.users
}

func (s *PostgresStore) Sessions() SessionStore {
	return s.sessions
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(Store) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(bind(s.pool, tx, true)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return pgErr, true
	}
	return nil, false
}

type rowScanner interface {
	Scan(dest ...any) error
}
