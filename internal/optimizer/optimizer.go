// Package optimizer implements the Optimizer strategy capability: Basic
// (stateless/uniform) and Adaptive (UAM-decline-driven prompt rotation
// and routing bias) variants (spec.md §4.5).
package optimizer

import "time"

// AdaptationLevel grades how aggressively the Adaptive strategy reshapes
// assignments on a given tick (spec.md §4.5).
type AdaptationLevel int

const (
	LevelNone AdaptationLevel = iota
	LevelMinimal
	LevelModerate
	LevelAggressive
)

func (l AdaptationLevel) String() string {
	switch l {
	case LevelNone:
		return "none"
	case LevelMinimal:
		return "minimal"
	case LevelModerate:
		return "moderate"
	case LevelAggressive:
		return "aggressive"
	default:
		return "unknown"
	}
}

// WindowStats is the subset of perfstats.Metrics the optimizer needs,
// decoupled from the perfstats package so optimizer stays a leaf.
type WindowStats struct {
	UAM           float64
	CostPerMinute float64
}

// Assignment is what one worker is currently running with.
type Assignment struct {
	Prompt    string
	Weights   map[string]float64
	Temperature float64
	BatchSize   int
}

// OptimizationContext is the read-only view the orchestrator hands to a
// Strategy on each optimization tick (spec.md §3).
type OptimizationContext struct {
	Topic              string
	WorkerIDs          []string
	CurrentAssignments map[string]Assignment
	GlobalShort        WindowStats
	GlobalLong         WindowStats
	ProviderShort      map[string]WindowStats // provider_id -> short-window stats
	Defaults           Assignment
	Now                time.Time
}

// ParamOverrides carries only the fields the optimizer actually wants to
// change; nil means "leave as assigned" (spec.md §3).
type ParamOverrides struct {
	Temperature *float64
	BatchSize   *int
}

// OptimizationResult is what optimize() produces each tick (spec.md §3).
// The orchestrator diffs this against each worker's live assignment and
// emits UpdateConfig only where something actually changed.
type OptimizationResult struct {
	PerWorkerPrompt  map[string]string
	PerWorkerWeights map[string]map[string]float64
	ParamOverrides   ParamOverrides
	Rationale        string
}

// Outcome is the credit-assignment record the orchestrator feeds back via
// UpdatePerformance: which template was assigned to a worker at the
// instant its batch was received (spec.md §4.5: "credited to the worker's
// current prompt at the instant the generating batch was received, not
// the current assignment").
type Outcome struct {
	WorkerID   string
	TemplateID string
	NewUnique  int
	At         time.Time
}

// Strategy is the capability every optimization policy implements
// (spec.md §4.5).
type Strategy interface {
	Optimize(ctx OptimizationContext) OptimizationResult
	UpdatePerformance(outcomes []Outcome)
	Reset()
	State() map[string]interface{}

	// CurrentTemplateID returns the template the strategy last assigned to
	// workerID, or "" if the strategy doesn't track templates (e.g. Basic)
	// or the worker has no assignment yet. The orchestrator reads this at
	// batch-receipt time to build Outcome records, since crediting must
	// reflect the assignment in force when the batch was generated, not
	// whatever the next optimization tick later assigns (spec.md §4.5).
	CurrentTemplateID(workerID string) string
}
