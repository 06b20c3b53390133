package orchestrator

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/attrforge/swarm/internal/ipc"
	"github.com/attrforge/swarm/internal/optimizer"
)

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Topic = "minerals"
	cfg.Prompt = "List {batch_size} attributes of {topic}."
	cfg.Providers = []ipc.Provider{{ID: "p1", Model: "m1", Weight: 1}, {ID: "p2", Model: "m2", Weight: 1}}
	cfg.ProducerCount = 2
	cfg.Params = ipc.Params{Temperature: 0.7, BatchSize: 20, MaxTokens: 256}
	cfg.OutputDir = t.TempDir()

	o, err := New(cfg, optimizer.NewBasic(cfg.Prompt), nil)
	require.NoError(t, err)
	o.workerIDs = []string{"w0", "w1"}
	o.assignments["w0"] = optimizer.Assignment{Prompt: cfg.Prompt, Weights: weightsFromProviders(cfg.Providers), Temperature: 0.7, BatchSize: 20}
	o.assignments["w1"] = optimizer.Assignment{Prompt: cfg.Prompt, Weights: weightsFromProviders(cfg.Providers), Temperature: 0.7, BatchSize: 20}
	return o
}

func TestHandleAttributeBatchDedupesAndAppendsToSink(t *testing.T) {
	o := newTestOrchestrator(t)

	batch := ipc.AttributeBatch{
		ProducerID: "w0",
		ProviderID: "p1",
		Candidates: []ipc.Candidate{{Text: "Hardness"}, {Text: "Luster"}},
		RequestTS:  time.Now(),
	}
	o.handleAttributeBatch("w0", batch)
	require.Equal(t, 2, o.sink.Len())
	require.Equal(t, 2, o.providerCounts["p1"])

	// Same candidates again (different surface case): no new appends.
	dup := ipc.AttributeBatch{
		ProducerID: "w0",
		ProviderID: "p1",
		Candidates: []ipc.Candidate{{Text: "hardness"}, {Text: "LUSTER"}},
		RequestTS:  time.Now(),
	}
	o.handleAttributeBatch("w0", dup)
	require.Equal(t, 2, o.sink.Len())
}

func TestApplyOptimizationResultOnlySendsChangedFields(t *testing.T) {
	o := newTestOrchestrator(t)

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()
	wq := newWriterQueue(ipc.NewConn(serverConn))
	o.writers["w0"] = wq
	go wq.Run()
	defer wq.Close()

	result := optimizer.OptimizationResult{
		PerWorkerPrompt: map[string]string{"w0": o.cfg.Prompt}, // unchanged
		PerWorkerWeights: map[string]map[string]float64{
			"w0": {"p1": 2, "p2": 1}, // changed
		},
	}
	o.applyOptimizationResult(result)

	orchSide := ipc.NewConn(clientConn)
	env, err := orchSide.Recv()
	require.NoError(t, err)
	require.Equal(t, ipc.TypeUpdateConfig, env.Type)

	var cfg ipc.UpdateConfig
	require.NoError(t, ipc.DecodePayload(env, &cfg))
	require.Nil(t, cfg.Prompt)
	require.NotNil(t, cfg.Weights)
	require.Equal(t, 2.0, weightFor(cfg.Weights.Providers, "p1"))
}

func weightFor(providers []ipc.Provider, id string) float64 {
	for _, p := range providers {
		if p.ID == id {
			return p.Weight
		}
	}
	return -1
}

func TestRunBloomBroadcastOnlyWhenDirty(t *testing.T) {
	o := newTestOrchestrator(t)

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()
	wq := newWriterQueue(ipc.NewConn(serverConn))
	o.writers["w0"] = wq
	go wq.Run()
	defer wq.Close()

	// Not dirty yet: no broadcast.
	o.runBloomBroadcast()

	o.handleAttributeBatch("w0", ipc.AttributeBatch{
		ProducerID: "w0", ProviderID: "p1",
		Candidates: []ipc.Candidate{{Text: "Cleavage"}},
		RequestTS:  time.Now(),
	})
	o.runBloomBroadcast()

	orchSide := ipc.NewConn(clientConn)
	env, err := orchSide.Recv()
	require.NoError(t, err)
	require.Equal(t, ipc.TypeUpdateBloom, env.Type)
}

func TestStopIsIdempotent(t *testing.T) {
	o := newTestOrchestrator(t)

	o.dispatch(nil, stopTopicEvent{})
	require.True(t, o.wantStop)
	reason := o.stopReason

	o.dispatch(nil, stopTopicEvent{})
	require.Equal(t, reason, o.stopReason)
}

func TestWriterQueueCoalescesBloomUpdates(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	wq := newWriterQueue(ipc.NewConn(serverConn))

	// Enqueue three bloom updates before the writer goroutine starts
	// draining; only the newest should ever be sent.
	wq.EnqueueBloom(ipc.UpdateBloom{Version: 1})
	wq.EnqueueBloom(ipc.UpdateBloom{Version: 2})
	wq.EnqueueBloom(ipc.UpdateBloom{Version: 3})
	go wq.Run()
	defer wq.Close()

	orchSide := ipc.NewConn(clientConn)
	env, err := orchSide.Recv()
	require.NoError(t, err)
	require.Equal(t, ipc.TypeUpdateBloom, env.Type)

	var ub ipc.UpdateBloom
	require.NoError(t, ipc.DecodePayload(env, &ub))
	require.Equal(t, uint64(3), ub.Version)
}

func TestMetricsReflectsIngestedBatch(t *testing.T) {
	o := newTestOrchestrator(t)

	o.handleAttributeBatch("w0", ipc.AttributeBatch{
		ProducerID: "w0", ProviderID: "p1",
		Candidates: []ipc.Candidate{{Text: "Hardness"}, {Text: "Luster"}},
		RequestTS:  time.Now(),
	})

	done := make(chan Snapshot, 1)
	go func() { done <- o.Metrics() }()

	select {
	case ev := <-o.events:
		o.dispatch(nil, ev)
	case <-time.After(time.Second):
		t.Fatal("metrics request never reached the event queue")
	}

	snap := <-done
	require.Equal(t, 2, snap.UniqueCount)
	require.Equal(t, "minerals", snap.Topic)
	require.Equal(t, 2, snap.ProviderCounts["p1"])
}

func TestWriterQueueNeverCoalescesStopOrStart(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	wq := newWriterQueue(ipc.NewConn(serverConn))
	wq.EnqueueStart(ipc.Start{Topic: "a"})
	wq.EnqueueStop()
	go wq.Run()
	defer wq.Close()

	orchSide := ipc.NewConn(clientConn)

	first, err := orchSide.Recv()
	require.NoError(t, err)
	require.Equal(t, ipc.TypeStart, first.Type)

	second, err := orchSide.Recv()
	require.NoError(t, err)
	require.Equal(t, ipc.TypeStop, second.Type)
}
