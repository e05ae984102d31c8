package tasks

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const TypeSweepSessions = "sweep_sessions"

type SessionSweeper interface {
	SweepIdle(ctx context.Context) (int64, error)
}

type Processor struct {
	sweeper SessionSweeper
	logger  zerolog.Logger
}

type TaskPayload struct {
	Type        string `json:"type"`
	RequestedAt string `json:"requestedAt"`
}

func NewProcessor(sweeper SessionSweeper, logger zerolog.Logger) *Processor {
	return &Processor{
		sweeper: sweeper,
		logger:  logger,
	}
}

// Handle dispatches one stream message. Unknown task types are dropped so
// they do not stay pending forever.
func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	var payload TaskPayload
	if err := decodePayload(msg.Values, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	switch payload.Type {
	case TypeSweepSessions:
		return p.handleSweep(ctx, msg.ID, payload)
	default:
		p.logger.Warn().Str("type", payload.Type).Str("message_id", msg.ID).Msg("unknown task type")
		return nil
	}
}

func decodePayload(values map[string]interface{}, out *TaskPayload) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(values)
}

func (p *Processor) handleSweep(ctx context.Context, id string, payload TaskPayload) error {
	closed, err := p.sweeper.SweepIdle(ctx)
	if err != nil {
		return fmt.Errorf("sweep sessions: %w", err)
	}
	p.logger.Info().
		Str("message_id", id).
		Str("requested_at", payload.RequestedAt).
		Int64("closed", closed).
		Msg("sweep task done")
	return nil
}
