package supervisor

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"sync"
	"time"

	"github.com/attrforge/swarm/internal/errs"
	"github.com/attrforge/swarm/internal/ipc"
	"github.com/attrforge/swarm/pkg/common"
)

// Config holds supervisor-wide tunables, all with spec.md §4.2 defaults.
type Config struct {
	WorkerBinary     string
	WorkerArgs       []string
	ListenHost       string // default "127.0.0.1"
	BasePort         int    // first port assigned to a worker listener
	HeartbeatTimeout time.Duration
	PingTimeout      time.Duration
	DegradedGrace    time.Duration
	DrainDeadline    time.Duration
	MaxRestarts      int
	RestartWindow    time.Duration
}

// DefaultConfig returns spec.md §4.2's stated defaults.
func DefaultConfig(workerBinary string) Config {
	return Config{
		WorkerBinary:     workerBinary,
		ListenHost:       "127.0.0.1",
		BasePort:         17300,
		HeartbeatTimeout: 30 * time.Second,
		PingTimeout:      5 * time.Second,
		DegradedGrace:    15 * time.Second,
		DrainDeadline:    10 * time.Second,
		MaxRestarts:      5,
		RestartWindow:    5 * time.Minute,
	}
}

// OnConnected is invoked from an accept goroutine as soon as a worker's
// connection is accepted; no frame has been read from it yet. Implementations (the orchestrator) must not
// block meaningfully here; the call is expected to just enqueue an event
// onto the central command/event queue (spec.md §5).
type OnConnected func(workerID string, conn *ipc.Conn)

// OnCrashed is invoked when a worker's connection drops unexpectedly or
// its process exits without a prior Stop.
type OnCrashed func(workerID string, err error)

// Supervisor owns worker process lifecycle: it is a leaf service the
// orchestrator's event loop calls into and receives callbacks from; it
// never touches uniqueness/performance/sink state itself (spec.md §3
// ownership rule).
type Supervisor struct {
	cfg    Config
	logger *common.Logger

	onConnected OnConnected
	onCrashed   OnCrashed

	mu        sync.Mutex
	workers   map[string]*Record
	listeners map[string]net.Listener
	restarts  map[string]*restartRing
	nextPort  int
}

// New creates a Supervisor. logger may be nil (the orchestrator always
// passes its own prefixed logger in practice).
func New(cfg Config, logger *common.Logger, onConnected OnConnected, onCrashed OnCrashed) *Supervisor {
	return &Supervisor{
		cfg:         cfg,
		logger:      logger,
		onConnected: onConnected,
		onCrashed:   onCrashed,
		workers:     make(map[string]*Record),
		listeners:   make(map[string]net.Listener),
		restarts:    make(map[string]*restartRing),
		nextPort:    cfg.BasePort,
	}
}

// Spawn assigns a worker a dedicated local listener port, starts its
// process, and accepts its single inbound connection in the background
// (spec.md §4.2: "assign each worker a unique local port, spawn the
// worker process with its id and orchestrator endpoint, accept its
// inbound connection").
func (s *Supervisor) Spawn(ctx context.Context, id string) (*Record, error) {
	s.mu.Lock()
	port := s.nextPort
	s.nextPort++
	s.mu.Unlock()

	addr := fmt.Sprintf("%s:%d", s.cfg.ListenHost, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errs.Wrap(errs.ErrCodeSupervisorSpawnFailed, fmt.Errorf("listen %s: %w", addr, err))
	}

	args := append([]string{}, s.cfg.WorkerArgs...)
	args = append(args, "--id", id, "--orchestrator-addr", addr)

	cmd := exec.CommandContext(ctx, s.cfg.WorkerBinary, args...)
	configureProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		ln.Close()
		return nil, errs.Wrap(errs.ErrCodeSupervisorSpawnFailed, fmt.Errorf("start worker %s: %w", id, err))
	}

	record := &Record{
		ID:            id,
		Endpoint:      addr,
		Cmd:           cmd,
		Status:        StatusSpawning,
		LastHeartbeat: time.Now(),
	}

	s.mu.Lock()
	s.workers[id] = record
	s.listeners[id] = ln
	if _, ok := s.restarts[id]; !ok {
		s.restarts[id] = &restartRing{}
	}
	s.mu.Unlock()

	go s.acceptLoop(id, ln)
	go s.reap(id, cmd)

	return record, nil
}

func (s *Supervisor) acceptLoop(id string, ln net.Listener) {
	nc, err := ln.Accept()
	if err != nil {
		// Listener closed during shutdown/respawn; not a crash.
		return
	}

	s.mu.Lock()
	if rec, ok := s.workers[id]; ok {
		rec.Status = StatusConnecting
		rec.LastHeartbeat = time.Now()
	}
	s.mu.Unlock()

	conn := ipc.NewConn(nc)
	if s.onConnected != nil {
		s.onConnected(id, conn)
	}
}

func (s *Supervisor) reap(id string, cmd *exec.Cmd) {
	err := cmd.Wait()

	s.mu.Lock()
	rec, ok := s.workers[id]
	stopping := ok && rec.Status == StatusStopping
	s.mu.Unlock()

	if !stopping && s.onCrashed != nil {
		s.onCrashed(id, err)
	}
}

// RecordHeartbeat marks a frame as received from id at t.
func (s *Supervisor) RecordHeartbeat(id string, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.workers[id]; ok {
		rec.LastHeartbeat = t
	}
}

// SetStatus transitions id to status.
func (s *Supervisor) SetStatus(id string, status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.workers[id]; ok {
		rec.Status = status
	}
}

// Get returns a copy of id's current record.
func (s *Supervisor) Get(id string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.workers[id]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// All returns a snapshot of every worker record, for metrics.
func (s *Supervisor) All() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.workers))
	for _, rec := range s.workers {
		out = append(out, *rec)
	}
	return out
}

// NeedsPing returns the ids of workers whose last frame is older than
// HeartbeatTimeout as of now (spec.md §4.2 liveness rule (b)).
func (s *Supervisor) NeedsPing(now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, rec := range s.workers {
		if rec.Status == StatusDead || rec.Status == StatusStopping {
			continue
		}
		if now.Sub(rec.LastHeartbeat) >= s.cfg.HeartbeatTimeout {
			ids = append(ids, id)
		}
	}
	return ids
}

// Restart enforces the bounded-restart policy (P4): kills the current
// process (if any), and if id is still under MaxRestarts within
// RestartWindow, respawns it with the same id. Exceeding the budget marks
// the worker Dead instead and returns errs.ErrCodeSupervisorRestartBudget.
func (s *Supervisor) Restart(ctx context.Context, id string, now time.Time) (*Record, error) {
	s.killLocked(id)

	s.mu.Lock()
	ring, ok := s.restarts[id]
	if !ok {
		ring = &restartRing{}
		s.restarts[id] = ring
	}
	count := ring.recordAndCount(now, s.cfg.RestartWindow)
	s.mu.Unlock()

	if count > s.cfg.MaxRestarts {
		s.SetStatus(id, StatusDead)
		return nil, errs.Wrap(errs.ErrCodeSupervisorRestartBudget,
			fmt.Errorf("worker %s exceeded %d restarts in %s", id, s.cfg.MaxRestarts, s.cfg.RestartWindow))
	}

	rec, err := s.Spawn(ctx, id)
	if err != nil {
		return nil, err
	}
	rec.RestartCount = count
	return rec, nil
}

// killLocked terminates id's process and closes its listener, without
// removing bookkeeping (a respawn reuses the same id).
func (s *Supervisor) killLocked(id string) {
	s.mu.Lock()
	rec := s.workers[id]
	ln := s.listeners[id]
	delete(s.listeners, id)
	s.mu.Unlock()

	if ln != nil {
		ln.Close()
	}
	if rec != nil && rec.Cmd != nil && rec.Cmd.Process != nil {
		terminateProcess(rec.Cmd)
	}
}

// Kill stops id permanently and marks it Dead.
func (s *Supervisor) Kill(id string) {
	s.SetStatus(id, StatusStopping)
	s.killLocked(id)
	s.SetStatus(id, StatusDead)
}

// DrainAll marks every live worker Stopping (the caller is responsible
// for sending the Stop IPC message); after deadline elapses the caller
// should invoke KillAll for any survivor.
func (s *Supervisor) DrainAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.workers {
		if rec.Status != StatusDead {
			rec.Status = StatusStopping
		}
	}
}

// KillAll force-terminates every worker process still running, used once
// DrainDeadline elapses during shutdown (spec.md §4.2 Shutdown).
func (s *Supervisor) KillAll() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.workers))
	for id := range s.workers {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.Kill(id)
	}
}
