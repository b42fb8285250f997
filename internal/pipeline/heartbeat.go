package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"vidproc/internal/logging"
)

// heartbeat keeps an admitted record's updated_at moving while the job is
// queued or running, so the stale sweep only fails jobs nobody holds.
type heartbeat struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (p *Pipeline) startHeartbeat(ctx context.Context, videoID string) *heartbeat {
	hb := &heartbeat{}
	if p.opts.HeartbeatInterval <= 0 {
		return hb
	}
	ctx, hb.cancel = context.WithCancel(ctx)
	hb.wg.Add(1)
	go p.heartbeatLoop(ctx, &hb.wg, videoID, p.opts.HeartbeatInterval)
	return hb
}

func (hb *heartbeat) stop() {
	if hb == nil || hb.cancel == nil {
		return
	}
	hb.cancel()
	hb.wg.Wait()
}

func (p *Pipeline) heartbeatLoop(ctx context.Context, wg *sync.WaitGroup, videoID string, interval time.Duration) {
	defer wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, p.logger)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			touched, err := p.store.Touch(ctx, videoID)
			switch {
			case errors.Is(err, context.Canceled):
				return
			case err != nil:
				logger.Warn("heartbeat update failed", logging.Error(err))
			case !touched:
				logger.Debug("record left processing; heartbeat stopped")
				return
			}
		}
	}
}
