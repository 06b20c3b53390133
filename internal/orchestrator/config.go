package orchestrator

import (
	"time"

	"github.com/attrforge/swarm/internal/ipc"
	"github.com/attrforge/swarm/internal/perfstats"
)

// Config holds one topic run's full configuration: the values every
// TopicRun operation in spec.md §4.1 needs, plus the timer cadences owned
// by §5's periodic tasks.
type Config struct {
	Topic           string
	Prompt          string
	RoutingStrategy string
	Providers       []ipc.Provider
	ProducerCount   int
	IterationBudget *int
	Params          ipc.Params
	Prices          perfstats.PriceTable

	OutputDir         string
	PendingWriteLimit int

	BloomCapacity      uint
	BloomFalsePositive float64

	OptimizationInterval   time.Duration
	BloomBroadcastInterval time.Duration
	HeartbeatCheckInterval time.Duration
	FileSyncInterval       time.Duration

	WorkerBinary string
	WorkerArgs   []string
	ListenHost   string
	BasePort     int

	HeartbeatTimeout time.Duration
	PingTimeout      time.Duration
	DegradedGrace    time.Duration
	DrainDeadline    time.Duration
	MaxRestarts      int
	RestartWindow    time.Duration
}

// DefaultConfig fills in every cadence/timeout default named in spec.md
// §4-§7, leaving the run-specific fields (Topic, Prompt, Providers, ...)
// for the caller (cmd/orchestrator) to set.
func DefaultConfig() Config {
	return Config{
		RoutingStrategy:        "weighted",
		PendingWriteLimit:      10_000,
		BloomCapacity:          1_000_000,
		BloomFalsePositive:     0.01,
		OptimizationInterval:   15 * time.Second,
		BloomBroadcastInterval: 2 * time.Second,
		HeartbeatCheckInterval: 5 * time.Second,
		FileSyncInterval:       2 * time.Second,
		ListenHost:             "127.0.0.1",
		BasePort:               17300,
		HeartbeatTimeout:       30 * time.Second,
		PingTimeout:            5 * time.Second,
		DegradedGrace:          15 * time.Second,
		DrainDeadline:          10 * time.Second,
		MaxRestarts:            5,
		RestartWindow:          5 * time.Minute,
	}
}
