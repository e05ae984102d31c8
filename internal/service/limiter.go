package service

import "context"

// NopLimiter never throttles.
type NopLimiter struct{}

func (NopLimiter) Allow(context.Context, string) (bool, error) { return true, nil }
func (NopLimiter) Fail(context.Context, string) error          { return nil }
func (NopLimiter) Reset(context.Context, string) error         { return nil }
