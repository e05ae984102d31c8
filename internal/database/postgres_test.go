package database

import (
	"context"
	"errors"
	"io/fs"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"examprep/backend/internal/config"
	"examprep/backend/internal/database/migrations"
)

func TestMigrationsEmbedded(t *testing.T) {
	files, err := fs.Glob(migrations.FS, "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	body, err := fs.ReadFile(migrations.FS, "00001_users_sessions.sql")
	require.NoError(t, err)
	assert.Contains(t, string(body), "-- +goose Up")
	assert.Contains(t, string(body), "-- +goose Down")
	assert.Contains(t, string(body), "one_active_session_per_user")
	assert.Contains(t, string(body), "ON DELETE CASCADE")
}

func TestMigrate_WrapsError(t *testing.T) {
	orig := gooseUp
	t.Cleanup(func() { gooseUp = orig })

	called := false
	gooseUp = func(ctx context.Context, pool *pgxpool.Pool) error {
		called = true
		return errors.New("boom")
	}

	err := Migrate(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, called)
	assert.Contains(t, err.Error(), "migrate: boom")
}

func TestNewPostgresPool_BadDSN(t *testing.T) {
	_, err := NewPostgresPool(context.Background(), config.PostgresConfig{DSN: "postgres://%zz"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse dsn")
}

func TestBuildPoolConfig(t *testing.T) {
	pc, err := buildPoolConfig(config.PostgresConfig{
		DSN:             "postgres://app:pw@db.internal:5432/examprep",
		MaxOpen:         8,
		MaxIdle:         20,
		ConnMaxLifetime: 15 * time.Minute,
	})
	require.NoError(t, err)
	assert.Equal(t, int32(8), pc.MaxConns)
	assert.Equal(t, int32(8), pc.MinConns)
	assert.Equal(t, 15*time.Minute, pc.MaxConnLifetime)
	assert.Equal(t, "examprep-auth", pc.ConnConfig.RuntimeParams["application_name"])

	pc, err = buildPoolConfig(config.PostgresConfig{
		DSN: "postgres://db.internal/examprep?application_name=migrator",
	})
	require.NoError(t, err)
	assert.Equal(t, "migrator", pc.ConnConfig.RuntimeParams["application_name"])
}
