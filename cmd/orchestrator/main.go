// Command orchestrator is the coordinator entrypoint. With --topic it runs
// one TopicRun to completion (batch mode, spec.md §1, §6); without it, it
// idles serving the dashboard feed's HTTP API so TopicRuns can be started
// and stopped on demand (spec.md §6's StartTopic/StopGeneration frames).
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/attrforge/swarm/internal/config"
	"github.com/attrforge/swarm/internal/dashboardfeed"
	"github.com/attrforge/swarm/internal/ipc"
	"github.com/attrforge/swarm/internal/optimizer"
	"github.com/attrforge/swarm/internal/orchestrator"
	"github.com/attrforge/swarm/internal/perfstats"
	"github.com/attrforge/swarm/pkg/common"
)

// defaultDashboardAddr is where the dashboard feed listens in server mode.
const defaultDashboardAddr = "127.0.0.1:8090"

// defaultPromptTemplate is every run's initial prompt; the Adaptive catalog
// below is what a real run actually drives, spanning the categories spec.md §4.5 names.
const defaultPromptTemplate = "List {batch_size} distinct attributes of {topic}. One entry per line."

func defaultTemplateCatalog() []optimizer.PromptTemplate {
	return []optimizer.PromptTemplate{
		{ID: "concrete", Category: "concrete", Text: "List {batch_size} concrete, measurable attributes of {topic}. One entry per line."},
		{ID: "creative", Category: "creative", Text: "Brainstorm {batch_size} unusual or surprising attributes of {topic}. One entry per line."},
		{ID: "technical", Category: "technical", Text: "Enumerate {batch_size} technical or scientific attributes of {topic}. One entry per line."},
		{ID: "functional", Category: "functional", Text: "List {batch_size} attributes describing what {topic} is used for or does. One entry per line."},
		{ID: "structural", Category: "structural", Text: "List {batch_size} attributes describing the structure or composition of {topic}. One entry per line."},
		{ID: "contextual", Category: "contextual", Text: "List {batch_size} attributes of {topic} as they relate to its surrounding context or history. One entry per line."},
	}
}

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		return 1
	}

	logger := common.NewLogger(os.Stdout, "[ORCH] ", common.ParseLevel(cfg.LogLevel))

	workerBinary, err := workerBinaryPath()
	if err != nil {
		logger.Error("resolve worker binary: %v", err)
		return 1
	}

	orchCfg := orchestrator.DefaultConfig()
	orchCfg.Prompt = defaultPromptTemplate
	orchCfg.RoutingStrategy = cfg.RoutingStrategy
	orchCfg.ProducerCount = cfg.Producers
	orchCfg.Params = ipc.Params{Temperature: 0.7, BatchSize: cfg.RequestSize, MaxTokens: 512}
	orchCfg.OutputDir = cfg.OutputDir
	orchCfg.WorkerBinary = workerBinary

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Topic == "" {
		return runServerMode(ctx, orchCfg, cfg.LogLevel, logger)
	}

	orchCfg.Topic = cfg.Topic
	orchCfg.Providers = cfg.IPCProviders()
	orchCfg.IterationBudget = cfg.IterationBudget
	orchCfg.Prices = buildPriceTable(cfg)
	orchCfg.WorkerArgs = config.WorkerArgsFor(orchCfg.Providers, cfg.LogLevel)

	strategy := optimizer.NewAdaptive(defaultTemplateCatalog())

	orch, err := orchestrator.New(orchCfg, strategy, logger)
	if err != nil {
		logger.Error("init orchestrator: %v", err)
		return 1
	}

	if err := orch.Run(ctx); err != nil {
		logger.Error("run failed: %v", err)
		return 2
	}

	logger.Info("topic run complete")
	return 0
}

// runServerMode idles serving the dashboard feed until ctx is canceled,
// letting StartTopic/StopGeneration requests drive TopicRuns (spec.md §6).
func runServerMode(ctx context.Context, base orchestrator.Config, logLevel string, logger *common.Logger) int {
	mgr := dashboardfeed.NewManager(base, logLevel, logger, defaultTemplateCatalog())
	srv := &http.Server{Addr: defaultDashboardAddr, Handler: dashboardfeed.NewRouter(mgr)}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	logger.Info("dashboard feed listening on %s", defaultDashboardAddr)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("dashboard server failed: %v", err)
			return 2
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	mgr.Shutdown()

	return 0
}

func buildPriceTable(cfg *config.Config) perfstats.PriceTable {
	prices := make(perfstats.PriceTable, len(cfg.Providers))
	for _, p := range cfg.Providers {
		prices[p.ID] = perfstats.Price{PerTokenIn: 0, PerTokenOut: 0}
	}
	return prices
}

// workerBinaryPath resolves the worker binary the supervisor execs for
// every spawned process (spec.md §4.2), preferring "<this executable>-worker"
// installed alongside this executable over a $PATH lookup of "worker".
func workerBinaryPath() (string, error) {
	self, err := os.Executable()
	if err == nil {
		sibling := self + "-worker"
		if _, statErr := os.Stat(sibling); statErr == nil {
			return sibling, nil
		}
	}
	return exec.LookPath("worker")
}
