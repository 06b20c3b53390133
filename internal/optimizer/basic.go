package optimizer

// Basic is the stateless strategy: a uniform prompt template (still
// carrying unresolved "{topic}"/"{batch_size}" placeholders — substitution
// happens worker-side per spec.md §4.6 step 2) and the configured default
// routing for every worker. Idempotent and deterministic (spec.md §4.5).
type Basic struct {
	promptTemplate string
}

// NewBasic creates a Basic strategy using promptTemplate, e.g.
// "List {batch_size} distinct attributes of {topic}. One entry per line.".
func NewBasic(promptTemplate string) *Basic {
	return &Basic{promptTemplate: promptTemplate}
}

func (b *Basic) Optimize(ctx OptimizationContext) OptimizationResult {
	perWorkerPrompt := make(map[string]string, len(ctx.WorkerIDs))
	perWorkerWeights := make(map[string]map[string]float64, len(ctx.WorkerIDs))
	for _, id := range ctx.WorkerIDs {
		perWorkerPrompt[id] = b.promptTemplate
		perWorkerWeights[id] = ctx.Defaults.Weights
	}

	return OptimizationResult{
		PerWorkerPrompt:  perWorkerPrompt,
		PerWorkerWeights: perWorkerWeights,
		Rationale:        "basic: uniform prompt and default routing",
	}
}

func (b *Basic) UpdatePerformance(_ []Outcome) {}
func (b *Basic) Reset()                       {}
func (b *Basic) State() map[string]interface{} {
	return map[string]interface{}{"strategy": "basic"}
}

// CurrentTemplateID is always empty: Basic has no template catalog, so the
// orchestrator skips credit bookkeeping entirely for this strategy.
func (b *Basic) CurrentTemplateID(_ string) string { return "" }
