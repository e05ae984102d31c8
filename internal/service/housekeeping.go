package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"examprep/backend/internal/repository"
)

// SessionSweeper closes active sessions that saw no request for staleAfter.
// Config validation keeps staleAfter at or above the token TTL, so their
// tokens have expired by then and closing them only tidies the table.
type SessionSweeper struct {
	store      repository.Store
	staleAfter time.Duration
	log        zerolog.Logger
	now        func() time.Time
}

func NewSessionSweeper(store repository.Store, staleAfter time.Duration, log zerolog.Logger) *SessionSweeper {
	return &SessionSweeper{
		store:      store,
		staleAfter: staleAfter,
		log:        log,
		now:        time.Now,
	}
}

func (s *SessionSweeper) SweepIdle(ctx context.Context) (int64, error) {
	now := s.now()
	closed, err := s.store.Sessions().CloseIdle(ctx, now.Add(-s.staleAfter), now)
	if err != nil {
		return 0, fmt.Errorf("close idle sessions: %w", err)
	}
	s.log.Info().Int64("closed", closed).Dur("stale_after", s.staleAfter).Msg("idle sessions swept")
	return closed, nil
}
