package orchestrator

import (
	"time"

	"github.com/attrforge/swarm/internal/perfstats"
)

// Snapshot is a read-only rollup of a run's current state, exposed to the
// dashboard metrics feed (spec.md §6's metrics frame). It is always built
// on the central event loop so reading it never races with the Ingest/
// Record/Append calls that are the loop's sole job (spec.md §3).
type Snapshot struct {
	Topic          string
	WorkerIDs      []string
	UniqueCount    int
	BloomFillRatio float64
	GlobalShort    perfstats.Metrics
	GlobalLong     perfstats.Metrics
	ProviderCounts map[string]int
	StrategyState  map[string]interface{}
	StartedAt      time.Time
	WantStop       bool
}

// Metrics returns a point-in-time Snapshot. Safe to call concurrently from
// any number of goroutines (the dashboard feed's HTTP handlers); it never
// returns a racy read of the loop's internal maps.
func (o *Orchestrator) Metrics() Snapshot {
	reply := make(chan Snapshot, 1)
	select {
	case o.events <- metricsRequestEvent{reply: reply}:
	case <-o.done:
		return Snapshot{}
	}
	select {
	case s := <-reply:
		return s
	case <-o.done:
		return Snapshot{}
	}
}

func (o *Orchestrator) handleMetricsRequest(e metricsRequestEvent) {
	now := time.Now()
	providerCounts := make(map[string]int, len(o.providerCounts))
	for k, v := range o.providerCounts {
		providerCounts[k] = v
	}

	e.reply <- Snapshot{
		Topic:          o.cfg.Topic,
		WorkerIDs:      append([]string(nil), o.workerIDs...),
		UniqueCount:    o.uniq.Len(),
		BloomFillRatio: o.uniq.FillRatio(),
		GlobalShort:    o.perf.GlobalMetrics(perfstats.ShortWindow, now),
		GlobalLong:     o.perf.GlobalMetrics(perfstats.LongWindow, now),
		ProviderCounts: providerCounts,
		StrategyState:  o.strategy.State(),
		StartedAt:      o.startedAt,
		WantStop:       o.wantStop,
	}
}
