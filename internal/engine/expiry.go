package engine

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunExpiry sweeps overdue signature requests every interval until ctx is done.
func (e Engine) RunExpiry(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	e.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.sweep(ctx)
		}
	}
}

func (e Engine) sweep(ctx context.Context) {
	n, err := e.ExpireOverdue(ctx)
	if err != nil {
		if ctx.Err() == nil {
			e.Log.Warn("expiry sweep failed", zap.Error(err))
		}
		return
	}
	if n > 0 {
		e.Log.Info("expired signature requests", zap.Int("count", n))
	}
}
