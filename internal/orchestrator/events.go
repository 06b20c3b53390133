package orchestrator

import "github.com/attrforge/swarm/internal/ipc"

// tickKind discriminates the four periodic signals the timer tasks raise
// (spec.md §5): none of them mutate state themselves, they only wake the
// central loop, which is the sole mutator of uniqueness/perfstats/sink.
type tickKind int

const (
	tickOptimize tickKind = iota
	tickBloomBroadcast
	tickHeartbeatCheck
	tickFileSync
)

// workerConnectedEvent fires once per accepted worker connection
// (supervisor.OnConnected).
type workerConnectedEvent struct {
	workerID string
	conn     *ipc.Conn
}

// frameEvent carries one decoded frame read off a worker's connection.
type frameEvent struct {
	workerID string
	env      ipc.Envelope
}

// crashedEvent fires when a worker's process exits without a prior Stop,
// or its connection drops unexpectedly (supervisor.OnCrashed, or the
// per-worker reader goroutine observing Recv failing).
type crashedEvent struct {
	workerID string
	err      error
}

// tickEvent is raised by a timer task; see tickKind.
type tickEvent struct {
	kind tickKind
}

// stopTopicEvent requests a clean shutdown of the current run; Stop sends
// it (dashboard POST /v1/stop). CLI Ctrl-C cancels Run's context instead,
// and iteration-budget exhaustion sets the stop flag inside the loop.
type stopTopicEvent struct{}

// metricsRequestEvent asks the central loop for a point-in-time Snapshot,
// letting the dashboard feed read uniqueness/perfstats/optimizer state
// without ever touching it from another goroutine.
type metricsRequestEvent struct {
	reply chan Snapshot
}
