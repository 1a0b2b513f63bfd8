package services

import (
	"context"
	"time"
)

const defaultCallTimeout = 10 * time.Second

// withTimeout runs fn under a context bounded by d when d is positive.
func withTimeout(ctx context.Context, d time.Duration, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	return fn(ctx)
}
