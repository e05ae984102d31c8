package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"examprep/backend/internal/config"
	"examprep/backend/internal/tasks"
)

func testHousekeeping() config.HousekeepingConfig {
	return config.HousekeepingConfig{
		Stream:        "sessions:housekeeping",
		SweepSchedule: "0 0 */1 * * *",
	}
}

func TestEnqueueSweep(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	s := NewScheduler(client, testHousekeeping(), zerolog.Nop())
	s.now = func() time.Time { return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC) }

	require.NoError(t, s.EnqueueSweep(context.Background()))

	msgs, err := client.XRange(context.Background(), "sessions:housekeeping", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, tasks.TypeSweepSessions, msgs[0].Values["type"])
	assert.Equal(t, "2025-03-01T09:00:00Z", msgs[0].Values["requestedAt"])
}

func TestScheduler_StartStop(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	s := NewScheduler(client, testHousekeeping(), zerolog.Nop())
	require.NoError(t, s.Start())
	assert.Len(t, s.cron.Entries(), 1)
	s.Stop()
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	cfg := testHousekeeping()
	cfg.SweepSchedule = "every hour"
	s := NewScheduler(client, cfg, zerolog.Nop())
	assert.Error(t, s.Start())
}

func TestScheduler_WithoutQueue(t *testing.T) {
	s := NewScheduler(nil, testHousekeeping(), zerolog.Nop())
	require.NoError(t, s.Start())
	assert.Empty(t, s.cron.Entries())
	assert.NoError(t, s.EnqueueSweep(context.Background()))
	s.Stop()
}
