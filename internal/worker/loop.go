// Package worker implements the worker-side generation loop: provider
// selection, prompt construction, response parsing, local bloom
// pre-filtering, and batched emission (spec.md §4.6).
package worker

import (
	"context"
	"time"

	"github.com/attrforge/swarm/internal/ipc"
	"github.com/attrforge/swarm/internal/parser"
	"github.com/attrforge/swarm/internal/provider"
	"github.com/attrforge/swarm/internal/uniqueness"
	"github.com/attrforge/swarm/pkg/common"
)

const (
	defaultBackoffBase = 1 * time.Second
	defaultBackoffMax  = 30 * time.Second
)

// Loop drives one worker's generation cycles over a single IPC
// connection. Workers hold only the orchestrator's TCP address (via
// conn), never a handle into orchestrator state (spec.md §9).
type Loop struct {
	conn       *ipc.Conn
	producerID string
	logger     *common.Logger

	registry *provider.Registry

	prompt  string
	weights map[string]float64
	params  provider.Params
	topic   string

	iterationBudget *int
	cyclesDone      int

	localFilter *uniqueness.LocalFilter

	incoming chan ipc.Envelope
	stopped  bool

	transientErrors int
}

// New creates a Loop bound to conn. registry must already contain the
// worker's configured providers (built once from capabilities at
// startup); weights/prompt/params are filled in once Start arrives.
func New(conn *ipc.Conn, producerID string, registry *provider.Registry, logger *common.Logger) *Loop {
	return &Loop{
		conn:       conn,
		producerID: producerID,
		registry:   registry,
		logger:     logger,
		incoming:   make(chan ipc.Envelope, 32),
	}
}

// Run performs the mandatory handshake (Hello, then wait for Start),
// spawns the background frame reader, and runs generation cycles until
// Stop or iteration-budget exhaustion.
func (l *Loop) Run(ctx context.Context, caps ipc.Capabilities) error {
	if err := l.conn.Send(ipc.TypeHello, ipc.Hello{ProducerID: l.producerID, Capabilities: caps}); err != nil {
		return err
	}

	go l.readLoop()

	start, err := l.awaitStart()
	if err != nil {
		return err
	}
	l.applyStart(start)

	if err := l.conn.Send(ipc.TypeStatusUpdate, ipc.StatusUpdate{
		ProducerID: l.producerID,
		State:      ipc.WorkerStateReady,
	}); err != nil {
		return err
	}

	return l.generationLoop(ctx)
}

// awaitStart blocks until the orchestrator's Start frame arrives,
// transparently replying to any Ping received in the meantime.
func (l *Loop) awaitStart() (ipc.Start, error) {
	for env := range l.incoming {
		if env.Type != ipc.TypeStart {
			continue
		}
		var start ipc.Start
		if err := ipc.DecodePayload(env, &start); err != nil {
			return ipc.Start{}, err
		}
		return start, nil
	}
	return ipc.Start{}, context.Canceled
}

func (l *Loop) applyStart(start ipc.Start) {
	l.topic = start.Topic
	l.prompt = start.Prompt
	l.params = provider.Params{
		Temperature: start.Params.Temperature,
		MaxTokens:   start.Params.MaxTokens,
		BatchSize:   start.Params.BatchSize,
	}
	l.iterationBudget = start.IterationBudget

	weights := make(map[string]float64, len(start.Weights.Providers))
	for _, p := range start.Weights.Providers {
		weights[p.ID] = p.Weight
	}
	l.weights = weights
	l.registry.SetWeights(weights)
}

// readLoop continuously decodes frames off the wire. Ping is answered
// immediately (it never touches generation state); everything else is
// handed to the generation loop via the incoming channel so hot-swaps
// and Stop are only ever applied between cycles (spec.md §4.6 "Hot
// config").
func (l *Loop) readLoop() {
	defer close(l.incoming)
	for {
		env, err := l.conn.Recv()
		if err != nil {
			return
		}

		if env.Type == ipc.TypePing {
			var ping ipc.Ping
			if err := ipc.DecodePayload(env, &ping); err == nil {
				_ = l.conn.Send(ipc.TypePong, ipc.Pong{Nonce: ping.Nonce})
			}
			continue
		}

		l.incoming <- env
	}
}

// drainBetweenCycles applies any UpdateConfig/UpdateBloom queued since
// the last cycle and notices a pending Stop, all non-blockingly.
func (l *Loop) drainBetweenCycles() {
	for {
		select {
		case env, ok := <-l.incoming:
			if !ok {
				l.stopped = true
				return
			}
			l.applyControlFrame(env)
		default:
			return
		}
	}
}

func (l *Loop) applyControlFrame(env ipc.Envelope) {
	switch env.Type {
	case ipc.TypeStop:
		l.stopped = true
	case ipc.TypeUpdateConfig:
		var cfg ipc.UpdateConfig
		if err := ipc.DecodePayload(env, &cfg); err != nil {
			return
		}
		if cfg.Prompt != nil {
			l.prompt = *cfg.Prompt
		}
		if cfg.Params != nil {
			l.params = provider.Params{
				Temperature: cfg.Params.Temperature,
				MaxTokens:   cfg.Params.MaxTokens,
				BatchSize:   cfg.Params.BatchSize,
			}
		}
		if cfg.Weights != nil {
			weights := make(map[string]float64, len(cfg.Weights.Providers))
			for _, p := range cfg.Weights.Providers {
				weights[p.ID] = p.Weight
			}
			l.weights = weights
			l.registry.SetWeights(weights)
		}
	case ipc.TypeUpdateBloom:
		var ub ipc.UpdateBloom
		if err := ipc.DecodePayload(env, &ub); err != nil {
			return
		}
		lf, err := uniqueness.NewLocalFilterFromSnapshot(ub.Bits)
		if err == nil {
			l.localFilter = lf
		}
	}
}

// generationLoop runs cycles until Stop, iteration-budget exhaustion, or
// a fatal connection error.
func (l *Loop) generationLoop(ctx context.Context) error {
	for {
		l.drainBetweenCycles()
		if l.stopped {
			return l.sendFinalStatus()
		}
		if l.iterationBudget != nil && l.cyclesDone >= *l.iterationBudget {
			return l.sendFinalStatus()
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		if err := l.runCycle(ctx); err != nil {
			return err
		}
	}
}

func (l *Loop) runCycle(ctx context.Context) error {
	p, breaker, err := l.selectProviderWithBackoff(ctx)
	if err != nil {
		return err
	}

	prompt := buildPrompt(l.prompt, l.topic, l.params.BatchSize)

	start := time.Now()
	result, genErr := p.Generate(ctx, prompt, l.params)
	latency := time.Since(start)

	if genErr != nil {
		breaker.RecordFailure(time.Now())
		l.transientErrors++
		_ = l.conn.Send(ipc.TypeStatusUpdate, ipc.StatusUpdate{
			ProducerID: l.producerID,
			State:      ipc.WorkerStateWorking,
			LastError:  genErr.Error(),
			Stats:      ipc.StatsSnapshot{ErrorsTotal: int64(l.transientErrors)},
		})
		return nil
	}
	breaker.RecordSuccess()

	candidates := parser.Parse(result.Text, l.params.BatchSize)
	candidates = l.applyLocalFilter(candidates)

	l.cyclesDone++

	if len(candidates) == 0 {
		return nil
	}

	batch := ipc.AttributeBatch{
		ProducerID: l.producerID,
		ProviderID: p.ID(),
		Model:      "",
		TokensIn:   result.TokensIn,
		TokensOut:  result.TokensOut,
		LatencyMs:  latency.Milliseconds(),
		RequestTS:  start,
	}
	for _, c := range candidates {
		batch.Candidates = append(batch.Candidates, ipc.Candidate{Text: c})
	}

	return l.conn.Send(ipc.TypeAttributeBatch, batch)
}

// applyLocalFilter drops candidates the most-recently-received bloom
// snapshot says are probably already known. Best-effort: the
// orchestrator remains authoritative (spec.md §4.6 step 5, §9).
func (l *Loop) applyLocalFilter(candidates []string) []string {
	if l.localFilter == nil {
		return candidates
	}
	out := candidates[:0:0]
	for _, c := range candidates {
		if !l.localFilter.MightContain(c) {
			out = append(out, c)
		}
	}
	return out
}

// selectProviderWithBackoff implements spec.md §4.6 step 1: weighted
// random over healthy providers, backing off and retrying selection when
// none are currently healthy.
func (l *Loop) selectProviderWithBackoff(ctx context.Context) (provider.Provider, *provider.Breaker, error) {
	k := 0
	for {
		p, breaker, err := l.registry.Select(time.Now())
		if err == nil {
			return p, breaker, nil
		}

		wait := backoff(defaultBackoffBase, defaultBackoffMax, k)
		k++

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
}

func (l *Loop) sendFinalStatus() error {
	return l.conn.Send(ipc.TypeStatusUpdate, ipc.StatusUpdate{
		ProducerID: l.producerID,
		State:      ipc.WorkerStateStopping,
		Stats: ipc.StatsSnapshot{
			ErrorsTotal: int64(l.transientErrors),
		},
	})
}
