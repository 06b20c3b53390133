package perfstats

import (
	"time"
)

// Tracker ingests RequestOutcome events and exposes windowed metrics. Like
// the uniqueness tracker, it is owned exclusively by the orchestrator's
// central event loop (spec.md §3) and holds no internal lock.
type Tracker struct {
	prices PriceTable

	global     []RequestOutcome
	byWorker   map[string][]RequestOutcome
	byProvider map[string][]RequestOutcome
}

// NewTracker creates an empty Tracker. prices may be nil, in which case
// cost_per_minute always reports zero.
func NewTracker(prices PriceTable) *Tracker {
	if prices == nil {
		prices = PriceTable{}
	}
	return &Tracker{
		prices:     prices,
		byWorker:   make(map[string][]RequestOutcome),
		byProvider: make(map[string][]RequestOutcome),
	}
}

// Record ingests one outcome. Eviction is lazy: entries older than the
// longest window are dropped the next time a window is queried, and each
// query counts only entries inside its own window, per "windows evict
// strictly by t_start < now - window_len" (spec.md §4.4).
func (t *Tracker) Record(o RequestOutcome) {
	t.global = append(t.global, o)
	t.byWorker[o.ProducerID] = append(t.byWorker[o.ProducerID], o)
	t.byProvider[o.ProviderID] = append(t.byProvider[o.ProviderID], o)
}

// evict returns the suffix of outcomes (preserving order) whose TStart is
// within window of now. Callers write the suffix for retention(window)
// back as the live slice so memory doesn't grow unbounded across a long run.
func evict(outcomes []RequestOutcome, window Window, now time.Time) []RequestOutcome {
	cutoff := now.Add(-time.Duration(window))
	start := 0
	for start < len(outcomes) && outcomes[start].TStart.Before(cutoff) {
		start++
	}
	if start == 0 {
		return outcomes
	}
	return append([]RequestOutcome(nil), outcomes[start:]...)
}

// retention is how long stored outcomes are kept: never less than
// LongWindow, so a short-window query cannot discard what a later
// long-window query still counts.
func retention(window Window) Window {
	if window > LongWindow {
		return window
	}
	return LongWindow
}

// GlobalMetrics returns derived metrics over the global outcome set within
// window, as of now.
func (t *Tracker) GlobalMetrics(window Window, now time.Time) Metrics {
	t.global = evict(t.global, retention(window), now)
	return computeMetrics(evict(t.global, window, now), t.prices, window, now)
}

// WorkerMetrics returns derived metrics for one producer_id within window.
func (t *Tracker) WorkerMetrics(producerID string, window Window, now time.Time) Metrics {
	t.byWorker[producerID] = evict(t.byWorker[producerID], retention(window), now)
	return computeMetrics(evict(t.byWorker[producerID], window, now), t.prices, window, now)
}

// ProviderMetrics returns derived metrics for one provider_id within
// window.
func (t *Tracker) ProviderMetrics(providerID string, window Window, now time.Time) Metrics {
	t.byProvider[providerID] = evict(t.byProvider[providerID], retention(window), now)
	return computeMetrics(evict(t.byProvider[providerID], window, now), t.prices, window, now)
}

func computeMetrics(outcomes []RequestOutcome, prices PriceTable, window Window, now time.Time) Metrics {
	windowMinutes := time.Duration(window).Minutes()
	if windowMinutes <= 0 {
		windowMinutes = 1
	}

	var (
		total       int
		successes   int
		newUnique   int
		candidates  int
		latencySum  time.Duration
		cost        float64
	)

	for _, o := range outcomes {
		total++
		if o.OK {
			successes++
		}
		newUnique += o.NewUnique
		candidates += o.CandidatesEmitted
		latencySum += o.Latency

		price := prices[o.ProviderID]
		cost += float64(o.TokensIn)*price.PerTokenIn + float64(o.TokensOut)*price.PerTokenOut
	}

	m := Metrics{
		UAM:           float64(newUnique) / windowMinutes,
		RequestsPerMin: float64(total) / windowMinutes,
		CostPerMinute: cost / windowMinutes,
	}

	if total > 0 {
		m.SuccessRate = float64(successes) / float64(total)
		m.MeanLatency = latencySum / time.Duration(total)
	}
	if candidates > 0 {
		m.UniquenessRatio = float64(newUnique) / float64(candidates)
	}

	return m
}

// Trend computes a decline-detection-friendly comparison between a short
// and long window's value of the same metric: 1 - short/long, guarded
// against division by zero and cold start (spec.md §4.4, §4.5 step 2).
// A positive result means the short window is below the long window
// (decline); zero or negative means flat or improving.
func Trend(short, long float64) float64 {
	if long <= 0 {
		return 0
	}
	return 1 - short/long
}
