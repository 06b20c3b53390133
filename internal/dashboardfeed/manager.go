// Package dashboardfeed exposes the HTTP surface the (out-of-scope)
// dashboard collaborator consumes: a metrics snapshot, a poll-based push
// stream, and the StartTopic/StopGeneration control frames from spec.md
// §6, implemented with gin + cors exactly as the teacher's HTTP services
// are built.
package dashboardfeed

import (
	"context"
	"fmt"
	"sync"

	"github.com/attrforge/swarm/internal/config"
	"github.com/attrforge/swarm/internal/ipc"
	"github.com/attrforge/swarm/internal/optimizer"
	"github.com/attrforge/swarm/internal/orchestrator"
	"github.com/attrforge/swarm/pkg/common"
)

// StartRequest is the body of POST /v1/topics: the StartTopic control
// frame from spec.md §6.
type StartRequest struct {
	Topic           string        `json:"topic" binding:"required"`
	Prompt          string        `json:"prompt"`
	RoutingStrategy string        `json:"routing_strategy"`
	Providers       []ipc.Provider `json:"providers" binding:"required,min=1"`
	ProducerCount   int           `json:"producer_count"`
	IterationBudget *int          `json:"iteration_budget"`
	RequestSize     int           `json:"request_size"`
}

// StopRequest is the body of POST /v1/stop: the StopGeneration control
// frame from spec.md §6. Per the Open Question decision in DESIGN.md, this
// ends the named TopicRun; it does not idle a dashboard session (that
// concept belongs to the out-of-scope dashboard itself).
type StopRequest struct {
	Topic string `json:"topic" binding:"required"`
}

type run struct {
	orch   *orchestrator.Orchestrator
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Manager owns every concurrently running TopicRun the dashboard feed
// knows about, multiplexing them behind a topic-keyed map. It never
// touches an Orchestrator's internal state directly — only Run/Stop/
// Metrics, which are already safe for concurrent use.
type Manager struct {
	mu           sync.Mutex
	runs         map[string]*run
	base         orchestrator.Config
	logLevel     string
	logger       *common.Logger
	portOffset   int
	templateSeed []optimizer.PromptTemplate
}

// NewManager creates a Manager. base supplies every field StartRequest
// doesn't override (timer cadences, worker binary, output dir, price
// table); Topic/Providers/IterationBudget/WorkerArgs are always derived
// from the request, since they vary per TopicRun, while Prompt,
// RoutingStrategy, ProducerCount and the batch size (RequestSize) replace
// the base values only when the request sets them.
func NewManager(base orchestrator.Config, logLevel string, logger *common.Logger, templateCatalog []optimizer.PromptTemplate) *Manager {
	return &Manager{
		runs:         make(map[string]*run),
		base:         base,
		logLevel:     logLevel,
		logger:       logger,
		templateSeed: templateCatalog,
	}
}

// StartTopic launches a new TopicRun in the background. It returns once
// the Orchestrator is constructed and its event loop goroutine has been
// started; it does not wait for the run to finish.
func (m *Manager) StartTopic(req StartRequest) error {
	m.mu.Lock()
	if _, exists := m.runs[req.Topic]; exists {
		m.mu.Unlock()
		return fmt.Errorf("topic %q is already running", req.Topic)
	}

	cfg := m.base
	cfg.Topic = req.Topic
	if req.Prompt != "" {
		cfg.Prompt = req.Prompt
	}
	if req.RoutingStrategy != "" {
		cfg.RoutingStrategy = req.RoutingStrategy
	}
	cfg.Providers = req.Providers
	cfg.WorkerArgs = config.WorkerArgsFor(req.Providers, m.logLevel)
	if req.ProducerCount > 0 {
		cfg.ProducerCount = req.ProducerCount
	}
	cfg.IterationBudget = req.IterationBudget
	if req.RequestSize > 0 {
		cfg.Params.BatchSize = req.RequestSize
	}
	// Each concurrent run needs its own worker-listener port range; the
	// supervisor assigns ports sequentially from BasePort per Orchestrator
	// instance, so distinct runs must start from disjoint ranges.
	cfg.BasePort = m.base.BasePort + m.portOffset*1000
	m.portOffset++

	strategy := optimizer.Strategy(optimizer.NewBasic(cfg.Prompt))
	if len(m.templateSeed) > 0 {
		strategy = optimizer.NewAdaptive(m.templateSeed)
	}

	orch, err := orchestrator.New(cfg, strategy, m.logger)
	if err != nil {
		m.mu.Unlock()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{orch: orch, cancel: cancel, done: make(chan struct{})}
	m.runs[req.Topic] = r
	m.mu.Unlock()

	go func() {
		defer close(r.done)
		r.err = orch.Run(ctx)
		m.mu.Lock()
		delete(m.runs, req.Topic)
		m.mu.Unlock()
	}()

	return nil
}

// StopTopic requests a clean shutdown of topic's run (idempotent, per
// spec.md P3: Orchestrator.Stop can be called more than once safely).
func (m *Manager) StopTopic(topic string) error {
	m.mu.Lock()
	r, ok := m.runs[topic]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("topic %q is not running", topic)
	}
	r.orch.Stop()
	return nil
}

// Snapshot returns topic's current metrics rollup, or false if no run is
// active for that topic.
func (m *Manager) Snapshot(topic string) (orchestrator.Snapshot, bool) {
	m.mu.Lock()
	r, ok := m.runs[topic]
	m.mu.Unlock()
	if !ok {
		return orchestrator.Snapshot{}, false
	}
	return r.orch.Metrics(), true
}

// AllSnapshots returns a metrics rollup for every currently running topic.
func (m *Manager) AllSnapshots() []orchestrator.Snapshot {
	m.mu.Lock()
	active := make([]*run, 0, len(m.runs))
	for _, r := range m.runs {
		active = append(active, r)
	}
	m.mu.Unlock()

	snaps := make([]orchestrator.Snapshot, 0, len(active))
	for _, r := range active {
		snaps = append(snaps, r.orch.Metrics())
	}
	return snaps
}

// Shutdown cancels every still-running TopicRun's context, used when the
// dashboard-mode process itself is shutting down.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	active := make([]*run, 0, len(m.runs))
	for _, r := range m.runs {
		active = append(active, r)
	}
	m.mu.Unlock()

	for _, r := range active {
		r.cancel()
		<-r.done
	}
}
