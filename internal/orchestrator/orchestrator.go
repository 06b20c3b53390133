// Package orchestrator implements the central coordinator: the single
// event-loop goroutine that is the sole mutator of uniqueness, perfstats,
// and sink state (spec.md §3, §5). Everything else — the supervisor, the
// IPC connections, the timer tasks — only ever signals this loop through
// the bounded event queue; they never touch core state directly.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/attrforge/swarm/internal/errs"
	"github.com/attrforge/swarm/internal/filesink"
	"github.com/attrforge/swarm/internal/ipc"
	"github.com/attrforge/swarm/internal/optimizer"
	"github.com/attrforge/swarm/internal/perfstats"
	"github.com/attrforge/swarm/internal/supervisor"
	"github.com/attrforge/swarm/internal/uniqueness"
	"github.com/attrforge/swarm/pkg/common"
	"github.com/attrforge/swarm/pkg/common/workerpool"
)

// eventQueueCapacity bounds the central command/event queue (spec.md §5).
const eventQueueCapacity = 1024

// Orchestrator drives one TopicRun end to end: spawning workers, ingesting
// their batches, running periodic optimization and bloom redistribution,
// and persisting results.
type Orchestrator struct {
	cfg    Config
	logger *common.Logger

	sup      *supervisor.Supervisor
	uniq     *uniqueness.Tracker
	perf     *perfstats.Tracker
	strategy optimizer.Strategy
	sink     *filesink.Sink
	pool     *workerpool.WorkerPool

	events chan interface{}
	done   chan struct{}

	workerIDs       []string
	writers         map[string]*writerQueue
	assignments     map[string]optimizer.Assignment
	finishedWorkers map[string]bool
	providerCounts  map[string]int

	pingSentAt map[string]time.Time
	pingNonce  map[string]string

	startedAt time.Time
	hitBudget bool
	crashed   bool
	wantStop  bool
	stopReason string
}

// New opens the topic's output sink and wires a fresh Orchestrator. The
// caller still must call Run to spawn workers and start the event loop.
func New(cfg Config, strategy optimizer.Strategy, logger *common.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = common.NewLogger(os.Stdout, "[orchestrator] ", common.InfoLevel)
	}

	sink, err := filesink.Open(cfg.OutputDir, cfg.Topic, cfg.ProducerCount, cfg.Prompt, weightsFromProviders(cfg.Providers), cfg.PendingWriteLimit)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg:             cfg,
		logger:          logger,
		uniq:            uniqueness.NewTracker(cfg.BloomCapacity, cfg.BloomFalsePositive),
		perf:            perfstats.NewTracker(cfg.Prices),
		strategy:        strategy,
		sink:            sink,
		events:          make(chan interface{}, eventQueueCapacity),
		done:            make(chan struct{}),
		writers:         make(map[string]*writerQueue),
		assignments:     make(map[string]optimizer.Assignment),
		finishedWorkers: make(map[string]bool),
		providerCounts:  make(map[string]int),
		pingSentAt:      make(map[string]time.Time),
		pingNonce:       make(map[string]string),
	}

	supCfg := supervisor.Config{
		WorkerBinary:     cfg.WorkerBinary,
		WorkerArgs:       cfg.WorkerArgs,
		ListenHost:       cfg.ListenHost,
		BasePort:         cfg.BasePort,
		HeartbeatTimeout: cfg.HeartbeatTimeout,
		PingTimeout:      cfg.PingTimeout,
		DegradedGrace:    cfg.DegradedGrace,
		DrainDeadline:    cfg.DrainDeadline,
		MaxRestarts:      cfg.MaxRestarts,
		RestartWindow:    cfg.RestartWindow,
	}
	o.sup = supervisor.New(supCfg, logger, o.onConnected, o.onCrashed)

	return o, nil
}

func weightsFromProviders(providers []ipc.Provider) map[string]float64 {
	w := make(map[string]float64, len(providers))
	for _, p := range providers {
		w[p.ID] = p.Weight
	}
	return w
}

func providersFromWeights(weights map[string]float64, base []ipc.Provider) []ipc.Provider {
	out := make([]ipc.Provider, 0, len(base))
	for _, p := range base {
		w := p.Weight
		if v, ok := weights[p.ID]; ok {
			w = v
		}
		out = append(out, ipc.Provider{ID: p.ID, Model: p.Model, Weight: w})
	}
	return out
}

func weightsEqual(a, b map[string]float64) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// onConnected is the supervisor.OnConnected callback. It must not block
// meaningfully, so it only enqueues an event (spec.md §5).
func (o *Orchestrator) onConnected(workerID string, conn *ipc.Conn) {
	select {
	case o.events <- workerConnectedEvent{workerID: workerID, conn: conn}:
	case <-o.done:
	}
}

// onCrashed is the supervisor.OnCrashed callback.
func (o *Orchestrator) onCrashed(workerID string, err error) {
	select {
	case o.events <- crashedEvent{workerID: workerID, err: err}:
	case <-o.done:
	}
}

// readWorker decodes frames off one worker's connection until it errors,
// forwarding each to the central loop. It never interprets a frame itself.
func (o *Orchestrator) readWorker(workerID string, conn *ipc.Conn) {
	for {
		env, err := conn.Recv()
		if err != nil {
			select {
			case o.events <- crashedEvent{workerID: workerID, err: err}:
			case <-o.done:
			}
			return
		}
		select {
		case o.events <- frameEvent{workerID: workerID, env: env}:
		case <-o.done:
			return
		}
	}
}

// Run spawns the configured number of worker processes, starts the timer
// tasks, and runs the central event loop until ctx is canceled or the run
// completes (budget exhaustion or an explicit stop).
func (o *Orchestrator) Run(ctx context.Context) error {
	o.startedAt = time.Now()

	for i := 0; i < o.cfg.ProducerCount; i++ {
		id := fmt.Sprintf("w%d", i)
		o.workerIDs = append(o.workerIDs, id)
		if _, err := o.sup.Spawn(ctx, id); err != nil {
			close(o.done)
			return err
		}
	}

	poolCfg := &workerpool.Config{InitialSize: 4, MinSize: 4, MaxSize: 4, QueueSize: 4}
	o.pool = workerpool.NewWorkerPool(poolCfg)
	o.startTimers(ctx)

	for {
		select {
		case <-ctx.Done():
			return o.shutdown(ctx, "context canceled", o.crashed)
		case ev := <-o.events:
			o.dispatch(ctx, ev)
			if o.wantStop {
				return o.shutdown(ctx, o.stopReason, o.crashed)
			}
		}
	}
}

// Stop requests a clean shutdown of the run in progress (dashboard
// POST /v1/stop; CLI Ctrl-C cancels Run's context instead). Safe to call
// more than once (P3: idempotent).
func (o *Orchestrator) Stop() {
	select {
	case o.events <- stopTopicEvent{}:
	case <-o.done:
	}
}

func (o *Orchestrator) dispatch(ctx context.Context, ev interface{}) {
	switch e := ev.(type) {
	case workerConnectedEvent:
		o.handleConnected(e)
	case frameEvent:
		o.handleFrame(e)
	case crashedEvent:
		o.handleCrashed(ctx, e)
	case tickEvent:
		o.handleTick(ctx, e)
	case stopTopicEvent:
		if !o.wantStop {
			o.wantStop = true
			o.stopReason = "stop requested"
		}
	case metricsRequestEvent:
		o.handleMetricsRequest(e)
	}
}

func (o *Orchestrator) handleConnected(e workerConnectedEvent) {
	wq := newWriterQueue(e.conn)
	o.writers[e.workerID] = wq
	go wq.Run()
	go o.readWorker(e.workerID, e.conn)

	assignment := optimizer.Assignment{
		Prompt:      o.cfg.Prompt,
		Weights:     weightsFromProviders(o.cfg.Providers),
		Temperature: o.cfg.Params.Temperature,
		BatchSize:   o.cfg.Params.BatchSize,
	}
	o.assignments[e.workerID] = assignment

	wq.EnqueueStart(ipc.Start{
		Topic:  o.cfg.Topic,
		Prompt: assignment.Prompt,
		Weights: ipc.Routing{
			Strategy:  o.cfg.RoutingStrategy,
			Providers: o.cfg.Providers,
		},
		Params:          o.cfg.Params,
		IterationBudget: o.cfg.IterationBudget,
	})
}

func (o *Orchestrator) handleFrame(e frameEvent) {
	o.sup.RecordHeartbeat(e.workerID, time.Now())
	delete(o.pingSentAt, e.workerID)
	delete(o.pingNonce, e.workerID)

	switch e.env.Type {
	case ipc.TypeAttributeBatch:
		var batch ipc.AttributeBatch
		if err := ipc.DecodePayload(e.env, &batch); err == nil {
			o.handleAttributeBatch(e.workerID, batch)
		}
	case ipc.TypeStatusUpdate:
		var su ipc.StatusUpdate
		if err := ipc.DecodePayload(e.env, &su); err == nil {
			o.handleStatusUpdate(e.workerID, su)
		}
	case ipc.TypePong:
		// Liveness already recorded above; nothing further to do.
	}
}

func (o *Orchestrator) handleStatusUpdate(workerID string, su ipc.StatusUpdate) {
	switch su.State {
	case ipc.WorkerStateDegraded:
		o.sup.SetStatus(workerID, supervisor.StatusDegraded)
	case ipc.WorkerStateWorking:
		o.sup.SetStatus(workerID, supervisor.StatusWorking)
	case ipc.WorkerStateReady:
		o.sup.SetStatus(workerID, supervisor.StatusReady)
	case ipc.WorkerStateStopping:
		o.sup.SetStatus(workerID, supervisor.StatusStopping)
		if !o.wantStop {
			// Worker exhausted its own iteration budget unprompted.
			o.finishedWorkers[workerID] = true
			if len(o.finishedWorkers) >= len(o.workerIDs) {
				o.hitBudget = true
				o.wantStop = true
				o.stopReason = "iteration budget exhausted"
			}
		}
	}
}

// handleAttributeBatch is the single place Ingest/Record/Append are ever
// called from, preserving output ordering (P7) and credit stability (P6).
func (o *Orchestrator) handleAttributeBatch(workerID string, batch ipc.AttributeBatch) {
	candidates := make([]string, len(batch.Candidates))
	for i, c := range batch.Candidates {
		candidates[i] = c.Text
	}

	newAttrs, _ := o.uniq.Ingest(workerID, batch.ProviderID, batch.Model, batch.RequestTS, candidates)
	for _, a := range newAttrs {
		o.sink.Append(filesink.Entry{
			Attr:       a.Surface,
			ProducerID: a.ProducerID,
			ProviderID: a.ProviderID,
			Model:      a.Model,
			Timestamp:  a.Timestamp,
		})
		o.providerCounts[a.ProviderID]++
	}

	if templateID := o.strategy.CurrentTemplateID(workerID); templateID != "" {
		o.strategy.UpdatePerformance([]optimizer.Outcome{{
			WorkerID:   workerID,
			TemplateID: templateID,
			NewUnique:  len(newAttrs),
			At:         time.Now(),
		}})
	}

	o.perf.Record(perfstats.RequestOutcome{
		ProducerID:        workerID,
		ProviderID:        batch.ProviderID,
		TStart:            batch.RequestTS,
		Latency:           time.Duration(batch.LatencyMs) * time.Millisecond,
		TokensIn:          batch.TokensIn,
		TokensOut:         batch.TokensOut,
		CandidatesEmitted: len(candidates),
		NewUnique:         len(newAttrs),
		OK:                true,
	})
}

func (o *Orchestrator) handleCrashed(ctx context.Context, e crashedEvent) {
	if wq, ok := o.writers[e.workerID]; ok {
		wq.Close()
		delete(o.writers, e.workerID)
	}

	if o.wantStop {
		return
	}

	o.logger.Warn("worker %s crashed: %v", e.workerID, e.err)

	if _, err := o.sup.Restart(ctx, e.workerID, time.Now()); err != nil {
		o.logger.Error("worker %s exhausted restart budget: %v", e.workerID, err)
		o.crashed = true
		o.checkAllDead()
	}
}

// checkAllDead ends the run if every worker has been declared Dead.
func (o *Orchestrator) checkAllDead() {
	for _, id := range o.workerIDs {
		rec, ok := o.sup.Get(id)
		if !ok || rec.Status != supervisor.StatusDead {
			return
		}
	}
	o.wantStop = true
	o.stopReason = "all workers dead"
}

func (o *Orchestrator) handleTick(ctx context.Context, e tickEvent) {
	now := time.Now()
	switch e.kind {
	case tickOptimize:
		o.runOptimization(now)
	case tickBloomBroadcast:
		o.runBloomBroadcast()
	case tickHeartbeatCheck:
		o.runHeartbeatCheck(ctx, now)
	case tickFileSync:
		o.runFileSync()
	}
}

func (o *Orchestrator) runOptimization(now time.Time) {
	assignments := make(map[string]optimizer.Assignment, len(o.assignments))
	for k, v := range o.assignments {
		assignments[k] = v
	}

	globalShort := o.perf.GlobalMetrics(perfstats.ShortWindow, now)
	globalLong := o.perf.GlobalMetrics(perfstats.LongWindow, now)

	providerShort := make(map[string]optimizer.WindowStats, len(o.cfg.Providers))
	for _, p := range o.cfg.Providers {
		m := o.perf.ProviderMetrics(p.ID, perfstats.ShortWindow, now)
		providerShort[p.ID] = optimizer.WindowStats{UAM: m.UAM, CostPerMinute: m.CostPerMinute}
	}

	result := o.strategy.Optimize(optimizer.OptimizationContext{
		Topic:              o.cfg.Topic,
		WorkerIDs:          o.workerIDs,
		CurrentAssignments: assignments,
		GlobalShort:        optimizer.WindowStats{UAM: globalShort.UAM, CostPerMinute: globalShort.CostPerMinute},
		GlobalLong:         optimizer.WindowStats{UAM: globalLong.UAM, CostPerMinute: globalLong.CostPerMinute},
		ProviderShort:      providerShort,
		Defaults: optimizer.Assignment{
			Prompt:      o.cfg.Prompt,
			Weights:     weightsFromProviders(o.cfg.Providers),
			Temperature: o.cfg.Params.Temperature,
			BatchSize:   o.cfg.Params.BatchSize,
		},
		Now: now,
	})

	o.applyOptimizationResult(result)
}

// applyOptimizationResult diffs the strategy's output against each
// worker's live assignment and only sends UpdateConfig where something
// actually changed.
func (o *Orchestrator) applyOptimizationResult(result optimizer.OptimizationResult) {
	for _, workerID := range o.workerIDs {
		cur, ok := o.assignments[workerID]
		if !ok {
			continue
		}
		changed := false
		var update ipc.UpdateConfig

		if prompt, ok := result.PerWorkerPrompt[workerID]; ok && prompt != cur.Prompt {
			p := prompt
			update.Prompt = &p
			cur.Prompt = prompt
			changed = true
		}

		if weights, ok := result.PerWorkerWeights[workerID]; ok && !weightsEqual(weights, cur.Weights) {
			update.Weights = &ipc.Routing{
				Strategy:  o.cfg.RoutingStrategy,
				Providers: providersFromWeights(weights, o.cfg.Providers),
			}
			cur.Weights = weights
			changed = true
		}

		newTemp := cur.Temperature
		if result.ParamOverrides.Temperature != nil {
			newTemp = *result.ParamOverrides.Temperature
		}
		newBatch := cur.BatchSize
		if result.ParamOverrides.BatchSize != nil {
			newBatch = *result.ParamOverrides.BatchSize
		}
		if newTemp != cur.Temperature || newBatch != cur.BatchSize {
			update.Params = &ipc.Params{
				Temperature: newTemp,
				BatchSize:   newBatch,
				MaxTokens:   o.cfg.Params.MaxTokens,
			}
			cur.Temperature = newTemp
			cur.BatchSize = newBatch
			changed = true
		}

		if changed {
			o.assignments[workerID] = cur
			if wq, ok := o.writers[workerID]; ok {
				wq.EnqueueConfig(update)
			}
		}
	}
}

// runBloomBroadcast redistributes the current bloom snapshot to every
// connected worker, but only when the tracker has actually grown since the
// last broadcast (spec.md §5 "broadcast only if dirty").
func (o *Orchestrator) runBloomBroadcast() {
	if !o.uniq.Dirty() {
		return
	}
	m, k, bits := o.uniq.Snapshot()
	o.uniq.ClearDirty()
	version := o.uniq.Version()

	for _, wq := range o.writers {
		wq.EnqueueBloom(ipc.UpdateBloom{M: m, K: k, Version: version, Bits: bits})
	}
}

// runHeartbeatCheck implements spec.md §4.2's liveness state machine: ping
// workers overdue for a heartbeat, then restart ones that stay silent past
// ping_timeout + degraded_grace.
func (o *Orchestrator) runHeartbeatCheck(ctx context.Context, now time.Time) {
	for _, id := range o.sup.NeedsPing(now) {
		sentAt, pinged := o.pingSentAt[id]
		if !pinged {
			nonce := uuid.NewString()
			o.pingSentAt[id] = now
			o.pingNonce[id] = nonce
			o.sup.SetStatus(id, supervisor.StatusDegraded)
			if wq, ok := o.writers[id]; ok {
				wq.EnqueuePing(ipc.Ping{Nonce: nonce})
			}
			continue
		}

		if now.Sub(sentAt) >= o.cfg.PingTimeout+o.cfg.DegradedGrace {
			delete(o.pingSentAt, id)
			delete(o.pingNonce, id)
			if wq, ok := o.writers[id]; ok {
				wq.Close()
				delete(o.writers, id)
			}
			if _, err := o.sup.Restart(ctx, id, now); err != nil {
				o.logger.Error("worker %s exhausted restart budget: %v", id, err)
				o.crashed = true
				o.checkAllDead()
			}
		}
	}
}

// runFileSync flushes the sink on its periodic cadence; a persistent
// overflow is a code-2 condition (spec.md §7), so it ends the run.
func (o *Orchestrator) runFileSync() {
	if err := o.sink.Flush(); err != nil {
		o.logger.Error("file sync failed: %v", err)
		if errCode, ok := err.(*errs.Error); ok && errCode.Code == errs.ErrCodeSinkOverflow {
			o.crashed = true
			o.wantStop = true
			o.stopReason = "pending write overflow"
		}
	}
}

// shutdown runs the drain sequence (spec.md §4.2 "Shutdown"): broadcast
// Stop, wait up to DrainDeadline for workers to report Stopping or crash,
// then kill survivors and persist final output.
func (o *Orchestrator) shutdown(ctx context.Context, reason string, crashed bool) error {
	close(o.done)

	for _, wq := range o.writers {
		wq.EnqueueStop()
	}

	deadline := time.NewTimer(o.cfg.DrainDeadline)
	defer deadline.Stop()

drain:
	for len(o.writers) > 0 {
		select {
		case ev := <-o.events:
			switch e := ev.(type) {
			case frameEvent:
				o.handleFrame(e)
				if e.env.Type == ipc.TypeStatusUpdate {
					if wq, ok := o.writers[e.workerID]; ok {
						wq.Close()
						delete(o.writers, e.workerID)
					}
				}
			case crashedEvent:
				if wq, ok := o.writers[e.workerID]; ok {
					wq.Close()
					delete(o.writers, e.workerID)
				}
			}
		case <-deadline.C:
			break drain
		}
	}

	o.sup.KillAll()
	if o.pool != nil {
		o.pool.Close()
	}

	sinkErr := o.sink.Close()

	meta := filesink.Metadata{
		Topic:             o.cfg.Topic,
		StartedAt:         o.startedAt,
		EndedAt:           time.Now(),
		ProviderBreakdown: o.providerCounts,
		HitBudget:         o.hitBudget,
		Crashed:           crashed,
		Stopped:           reason == "stop requested",
	}
	metaErr := o.sink.WriteMetadata(meta)

	if sinkErr != nil {
		return sinkErr
	}
	return metaErr
}
