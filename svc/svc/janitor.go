package svc

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"pastry/metrics"
	"pastry/pkg/domain"
	"pastry/svc/util"
)

const janitorBatchSize = 100

var (
	janitorOnce    sync.Once
	janitorRunning atomic.Bool
)

// StartJanitor prunes expired pastes on a ticker. It releases
// file-backed bodies before dropping rows so storage never leaks.
func (p *Paste) StartJanitor(ctx context.Context, interval time.Duration) error {
	if janitorRunning.Load() {
		return errors.New("janitor already running")
	}
	janitorOnce.Do(func() {
		janitorRunning.Store(true)
		go p.runJanitor(ctx, interval)
	})
	return nil
}

func (p *Paste) runJanitor(ctx context.Context, interval time.Duration) {
	defer janitorRunning.Store(false)
	requestID := util.NewRequestID()
	ctx = util.SetRequestID(ctx, requestID)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	util.Info().
		Str("request_id", requestID).
		Dur("interval", interval).
		Msg("janitor started")
	for {
		select {
		case <-ctx.Done():
			util.Info().
				Str("request_id", requestID).
				Msg("janitor shutting down")
			return
		case <-ticker.C:
			pruned, err := p.pruneExpired(ctx)
			if err != nil {
				util.Error().
					Err(err).
					Str("request_id", util.GetRequestID(ctx)).
					Msg("prune cycle failed")
			} else if pruned > 0 {
				util.Info().
					Int("pruned", pruned).
					Str("request_id", util.GetRequestID(ctx)).
					Msg("prune cycle completed")
			}
			metrics.PruneCycles.Inc()
		}
	}
}

func (p *Paste) pruneExpired(ctx context.Context) (int, error) {
	total := 0
	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}
		batch, err := p.db.ExpiredBatch(ctx, p.now(), janitorBatchSize)
		if err != nil {
			return total, errors.Wrap(err, "fetch expired batch")
		}
		if len(batch) == 0 {
			return total, nil
		}
		for _, e := range batch {
			if e.StorageMode == domain.StorageFile {
				if err := p.file.Delete(ctx, e.Content); err != nil {
					util.Warn().
						Err(err).
						Str("slug", e.Slug).
						Msg("expired paste file not removed")
				}
			}
			if err := p.db.DeletePaste(ctx, e.ID); err != nil {
				return total, errors.Wrap(err, "delete expired paste")
			}
			p.invalidate(ctx, e.Slug)
			total++
		}
		if len(batch) < janitorBatchSize {
			return total, nil
		}
	}
}
