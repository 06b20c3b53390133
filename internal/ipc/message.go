// Package ipc implements the length-prefixed framing and message set used
// between the orchestrator and worker processes.
package ipc

import "time"

// Type identifies the payload carried by an Envelope.
type Type string

const (
	TypeHello          Type = "hello"
	TypeStart           Type = "start"
	TypeStop            Type = "stop"
	TypeUpdateBloom     Type = "update_bloom"
	TypeUpdateConfig    Type = "update_config"
	TypePing            Type = "ping"
	TypePong            Type = "pong"
	TypeAttributeBatch  Type = "attribute_batch"
	TypeStatusUpdate    Type = "status_update"
)

// Envelope is the outer wire shape: a type tag plus the sonic-encoded
// payload for that type. Correlation IDs are carried for request/response
// pairing (Ping/Pong) and for log correlation across the two processes.
type Envelope struct {
	ID      string `json:"id"`
	Type    Type   `json:"type"`
	Payload []byte `json:"payload"`
}

// Provider is one configured routing target.
type Provider struct {
	ID     string  `json:"id"`
	Model  string  `json:"model"`
	Weight float64 `json:"weight,omitempty"`
}

// Routing describes the strategy and provider set assigned to a run.
type Routing struct {
	Strategy  string     `json:"strategy"`
	Providers []Provider `json:"providers"`
}

// Params are the generation parameters hot-swappable between cycles.
type Params struct {
	Temperature float64 `json:"temperature"`
	BatchSize   int     `json:"batch_size"`
	MaxTokens   int     `json:"max_tokens"`
}

// Start is Orchestrator -> Worker: begin generating for a topic.
type Start struct {
	Topic            string  `json:"topic"`
	Prompt           string  `json:"prompt"`
	Weights          Routing `json:"weights"`
	Params           Params  `json:"params"`
	IterationBudget  *int    `json:"iteration_budget,omitempty"`
}

// Stop is Orchestrator -> Worker: drain and shut down.
type Stop struct{}

// UpdateBloom is Orchestrator -> Worker: replace the local filter snapshot.
type UpdateBloom struct {
	M       uint   `json:"m"`
	K       uint   `json:"k"`
	Version uint64 `json:"version"`
	Bits    []byte `json:"bits"`
}

// UpdateConfig is Orchestrator -> Worker: hot-swap prompt/weights/params.
type UpdateConfig struct {
	Prompt  *string  `json:"prompt,omitempty"`
	Weights *Routing `json:"weights,omitempty"`
	Params  *Params  `json:"params,omitempty"`
}

// Ping is Orchestrator -> Worker: liveness probe.
type Ping struct {
	Nonce string `json:"nonce"`
}

// Pong is Worker -> Orchestrator: liveness reply.
type Pong struct {
	Nonce string `json:"nonce"`
}

// Capabilities describes what a worker process can do, sent once in Hello.
type Capabilities struct {
	ProviderIDs   []string `json:"provider_ids"`
	MaxConcurrent int      `json:"max_concurrent"`
}

// Hello is Worker -> Orchestrator: the mandatory first frame on connect.
type Hello struct {
	ProducerID   string       `json:"producer_id"`
	Capabilities Capabilities `json:"capabilities"`
}

// Candidate is one parsed, not-yet-deduplicated attribute string.
type Candidate struct {
	Text string `json:"text"`
}

// AttributeBatch is Worker -> Orchestrator: a batch of survivors after the
// worker's local bloom pre-filter.
type AttributeBatch struct {
	ProducerID string      `json:"producer_id"`
	Candidates []Candidate `json:"candidates"`
	ProviderID string      `json:"provider_id"`
	Model      string      `json:"model"`
	TokensIn   int         `json:"tokens_in"`
	TokensOut  int         `json:"tokens_out"`
	LatencyMs  int64       `json:"latency_ms"`
	RequestTS  time.Time   `json:"request_ts"`
}

// WorkerState mirrors the coordinator-side WorkerRecord.status values that a
// worker can self-report.
type WorkerState string

const (
	WorkerStateReady    WorkerState = "ready"
	WorkerStateWorking  WorkerState = "working"
	WorkerStateDegraded WorkerState = "degraded"
	WorkerStateStopping WorkerState = "stopping"
)

// StatsSnapshot is a worker's self-reported rollup, included in StatusUpdate
// so the orchestrator can cross-check its own PerformanceTracker view.
type StatsSnapshot struct {
	RequestsTotal int64 `json:"requests_total"`
	ErrorsTotal   int64 `json:"errors_total"`
	CandidatesOut int64 `json:"candidates_out"`
}

// StatusUpdate is Worker -> Orchestrator: state transitions and periodic
// self-reported stats.
type StatusUpdate struct {
	ProducerID string        `json:"producer_id"`
	State      WorkerState   `json:"state"`
	LastError  string        `json:"last_error,omitempty"`
	Stats      StatsSnapshot `json:"stats"`
}
