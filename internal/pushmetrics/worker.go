package pushmetrics

import (
	"context"
	"time"

	"github.com/smallbiznis/tally/internal/lock"
	sitedomain "github.com/smallbiznis/tally/internal/site/domain"
	"go.uber.org/zap"
)

const leaderLockKey = "tally:pushmetrics:leader"

// Worker refreshes the collector and pushes it on a fixed interval. When a
// locker is present only the replica holding the lock pushes each tick.
type Worker struct {
	collector *Collector
	pusher    Pusher
	sites     sitedomain.Service
	locker    *lock.Locker
	interval  time.Duration
	log       *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewWorker(collector *Collector, pusher Pusher, sites sitedomain.Service, locker *lock.Locker, interval time.Duration, log *zap.Logger) *Worker {
	if interval <= 0 {
		interval = time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{
		collector: collector,
		pusher:    pusher,
		sites:     sites,
		locker:    locker,
		interval:  interval,
		log:       log.Named("pushmetrics"),
	}
}

func (w *Worker) Start() {
	if w.done != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		w.log.Info("starting metrics push worker", zap.Duration("interval", w.interval))
		w.tick(ctx)
		for {
			select {
			case <-ticker.C:
				w.tick(ctx)
			case <-ctx.Done():
				w.log.Info("stopping metrics push worker")
				return
			}
		}
	}()
}

func (w *Worker) Stop(ctx context.Context) error {
	if w.done == nil {
		return nil
	}
	w.cancel()
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) tick(ctx context.Context) {
	if w.locker == nil {
		if err := w.PushOnce(ctx); err != nil {
			w.log.Error("metrics push failed", zap.Error(err))
		}
		return
	}

	// The key is held for most of the interval so replicas whose tickers
	// fire later in the same interval find it taken.
	token, ok, err := w.locker.TryLock(ctx, leaderLockKey, leaderTTL(w.interval))
	if err != nil {
		w.log.Warn("metrics push lock failed", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	if err := w.PushOnce(ctx); err != nil {
		w.log.Error("metrics push failed", zap.Error(err))
		// Let another replica retry this interval.
		_ = w.locker.Release(context.Background(), leaderLockKey, token)
	}
}

// leaderTTL stays just under the interval so the next tick of the same
// replica can take the lock again.
func leaderTTL(interval time.Duration) time.Duration {
	ttl := interval - interval/10
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

// PushOnce refreshes the gauges and ships them once.
func (w *Worker) PushOnce(ctx context.Context) error {
	if err := w.collector.Refresh(ctx, w.sites); err != nil {
		w.log.Warn("refresh site stats", zap.Error(err))
	}
	pushCtx, cancel := context.WithTimeout(ctx, defaultPushTimeout)
	defer cancel()
	return w.pusher.Push(pushCtx, w.collector.Registry())
}
