// Command worker is the generation-process entrypoint the supervisor
// execs once per producer slot (spec.md §4.2). It dials the orchestrator
// at --orchestrator-addr, builds its provider registry from --providers,
// and hands off to worker.Loop.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/attrforge/swarm/internal/config"
	"github.com/attrforge/swarm/internal/ipc"
	"github.com/attrforge/swarm/internal/provider"
	"github.com/attrforge/swarm/internal/worker"
	"github.com/attrforge/swarm/pkg/common"
)

const httpCallTimeout = 20 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	var id, addr, logLevel, providersRaw string
	flag.StringVar(&id, "id", "", "producer ID assigned by the supervisor")
	flag.StringVar(&addr, "orchestrator-addr", "", "host:port of the orchestrator's listener for this worker")
	flag.StringVar(&logLevel, "log-level", "info", "one of {trace, debug, info, warn, error}")
	flag.StringVar(&providersRaw, "providers", "", "comma-separated provider[:model[:weight]] list")
	flag.Parse()

	logger := common.NewLogger(os.Stdout, fmt.Sprintf("[WORKER %s] ", id), common.ParseLevel(logLevel))

	if id == "" || addr == "" {
		logger.Error("--id and --orchestrator-addr are required")
		return 1
	}

	specs, err := config.ParseRoutingConfig(providersRaw)
	if err != nil {
		logger.Error("parse --providers: %v", err)
		return 1
	}

	registry, caps, err := buildRegistry(id, specs)
	if err != nil {
		logger.Error("build provider registry: %v", err)
		return 1
	}

	conn, err := ipc.Dial(addr)
	if err != nil {
		logger.Error("dial orchestrator at %s: %v", addr, err)
		return 2
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loop := worker.New(conn, id, registry, logger)
	if err := loop.Run(ctx, caps); err != nil && ctx.Err() == nil {
		logger.Error("generation loop exited: %v", err)
		return 2
	}
	return 0
}

// buildRegistry constructs one HTTPProvider per spec, keyed by the
// "<PROVIDER>_API_KEY"/"<PROVIDER>_API_BASE_URL" environment variables
// inherited from the orchestrator process that spawned this one.
func buildRegistry(workerID string, specs []config.ProviderSpec) (*provider.Registry, ipc.Capabilities, error) {
	registry := provider.NewRegistry(seedFromID(workerID))
	ids := make([]string, 0, len(specs))

	for _, spec := range specs {
		apiKey := os.Getenv(fmt.Sprintf("%s_API_KEY", upper(spec.ID)))
		baseURL := os.Getenv(fmt.Sprintf("%s_API_BASE_URL", upper(spec.ID)))
		if apiKey == "" || baseURL == "" {
			return nil, ipc.Capabilities{}, fmt.Errorf(
				"provider %q missing %s_API_KEY or %s_API_BASE_URL", spec.ID, upper(spec.ID), upper(spec.ID))
		}
		p := provider.NewHTTPProvider(spec.ID, spec.Model, baseURL, apiKey, httpCallTimeout)
		registry.Add(p, spec.Weight)
		ids = append(ids, spec.ID)
	}

	return registry, ipc.Capabilities{ProviderIDs: ids, MaxConcurrent: 1}, nil
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
	}
	return string(b)
}

// seedFromID derives a stable RNG seed from the producer ID so the
// registry's weighted-random selection differs per worker without being
// nondeterministic between restarts of the same worker.
func seedFromID(id string) int64 {
	var h int64 = 1469598103934665603
	for _, c := range id {
		h ^= int64(c)
		h *= 1099511628211
	}
	return h
}
