package perfstats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGlobalMetricsUAMAndSuccessRate(t *testing.T) {
	tr := NewTracker(nil)
	now := time.Now()

	tr.Record(RequestOutcome{ProducerID: "w1", ProviderID: "p1", TStart: now, NewUnique: 3, CandidatesEmitted: 4, OK: true})
	tr.Record(RequestOutcome{ProducerID: "w1", ProviderID: "p1", TStart: now, NewUnique: 2, CandidatesEmitted: 2, OK: true})
	tr.Record(RequestOutcome{ProducerID: "w2", ProviderID: "p1", TStart: now, OK: false, ErrorKind: "rate_limited"})

	m := tr.GlobalMetrics(ShortWindow, now)
	require.InDelta(t, 2.0/3.0, m.SuccessRate, 0.001)
	require.Greater(t, m.UAM, 0.0)
}

func TestWindowEvictsOldOutcomes(t *testing.T) {
	tr := NewTracker(nil)
	now := time.Now()
	old := now.Add(-5 * time.Minute)

	tr.Record(RequestOutcome{ProducerID: "w1", ProviderID: "p1", TStart: old, NewUnique: 10, OK: true})
	tr.Record(RequestOutcome{ProducerID: "w1", ProviderID: "p1", TStart: now, NewUnique: 1, OK: true})

	m := tr.GlobalMetrics(ShortWindow, now)
	// Only the recent outcome should count within the 60s short window.
	require.InDelta(t, 1.0/ShortWindow.minutes(), m.UAM, 0.001)
}

func TestCostPerMinuteUsesPriceTable(t *testing.T) {
	prices := PriceTable{"p1": {PerTokenIn: 0.001, PerTokenOut: 0.002}}
	tr := NewTracker(prices)
	now := time.Now()

	tr.Record(RequestOutcome{ProducerID: "w1", ProviderID: "p1", TStart: now, TokensIn: 100, TokensOut: 50, OK: true})

	m := tr.GlobalMetrics(ShortWindow, now)
	expectedCost := (100*0.001 + 50*0.002) / ShortWindow.minutes()
	require.InDelta(t, expectedCost, m.CostPerMinute, 0.0001)
}

func TestTrendDeclineDetection(t *testing.T) {
	require.InDelta(t, 0.5, Trend(60, 120), 0.0001)
	require.InDelta(t, 0, Trend(10, 0), 0.0001) // guarded against div by zero
	require.Less(t, Trend(150, 100), 0.0)       // improvement, not decline
}

func TestMetricsMonotonicWithMoreOutcomes(t *testing.T) {
	tr := NewTracker(nil)
	now := time.Now()

	tr.Record(RequestOutcome{ProducerID: "w1", ProviderID: "p1", TStart: now, NewUnique: 1, OK: true})
	before := tr.GlobalMetrics(LongWindow, now)

	tr.Record(RequestOutcome{ProducerID: "w1", ProviderID: "p1", TStart: now, NewUnique: 1, OK: true})
	after := tr.GlobalMetrics(LongWindow, now)

	require.GreaterOrEqual(t, after.UAM, before.UAM)
}
