package jobs

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"examprep/backend/internal/config"
	"examprep/backend/internal/tasks"
)

// Scheduler enqueues housekeeping tasks for the worker on a cron schedule.
type Scheduler struct {
	cron     *cron.Cron
	queue    *redis.Client
	stream   string
	schedule string
	log      zerolog.Logger
	now      func() time.Time
}

func NewScheduler(queue *redis.Client, cfg config.HousekeepingConfig, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		queue:    queue,
		stream:   cfg.Stream,
		schedule: cfg.SweepSchedule,
		log:      log,
		now:      time.Now,
	}
}

func (s *Scheduler) Start() error {
	if s.queue == nil || s.schedule == "" {
		s.log.Info().Msg("session sweep scheduling disabled")
		return nil
	}

	if _, err := s.cron.AddFunc(s.schedule, s.enqueueSweep); err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info().Str("schedule", s.schedule).Str("stream", s.stream).Msg("scheduler started")
	return nil
}

// Stop halts the cron and waits up to five seconds for a running job.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		s.log.Warn().Msg("scheduler stop timed out")
	}
}

func (s *Scheduler) enqueueSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.EnqueueSweep(ctx); err != nil {
		s.log.Error().Err(err).Msg("enqueue session sweep failed")
	}
}

func (s *Scheduler) EnqueueSweep(ctx context.Context) error {
	return s.enqueueTask(ctx, map[string]any{
		"type":        tasks.TypeSweepSessions,
		"requestedAt": s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Scheduler) enqueueTask(ctx context.Context, payload map[string]any) error {
	if s.queue == nil {
		return nil
	}
	_, err := s.queue.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: payload,
	}).Result()
	return err
}
