package orchestrator

import (
	"context"
	"time"

	"github.com/attrforge/swarm/pkg/common/workerpool"
)

// startTimers submits the four long-lived periodic signals as workerpool
// tasks. Each task only ticks and pushes a lightweight tickEvent onto the
// central queue; the actual state mutation happens exclusively in the
// event-loop goroutine when it later dequeues that event (spec.md §5).
func (o *Orchestrator) startTimers(_ context.Context) {
	_ = o.pool.Submit(workerpool.TaskFunc(o.tickerTask(o.cfg.OptimizationInterval, tickOptimize)))
	_ = o.pool.Submit(workerpool.TaskFunc(o.tickerTask(o.cfg.BloomBroadcastInterval, tickBloomBroadcast)))
	_ = o.pool.Submit(workerpool.TaskFunc(o.tickerTask(o.cfg.HeartbeatCheckInterval, tickHeartbeatCheck)))
	_ = o.pool.Submit(workerpool.TaskFunc(o.tickerTask(o.cfg.FileSyncInterval, tickFileSync)))
}

// tickerTask returns a Task.Execute function that fires a tickEvent of
// kind every interval until ctx (the pool's internal context) is canceled.
// A tick is a non-blocking signal: if the central loop hasn't drained the
// previous one yet, this one is simply skipped rather than queued, since
// the next tick arrives shortly regardless.
func (o *Orchestrator) tickerTask(interval time.Duration, kind tickKind) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-o.done:
				return nil
			case <-ticker.C:
				select {
				case o.events <- tickEvent{kind: kind}:
				default:
				}
			}
		}
	}
}
