package provider

import (
	"context"
	"strings"
	"sync/atomic"
)

// Step is one scripted response: either a canned error or a canned batch
// of newline-joined candidate lines.
type Step struct {
	Err   *Error
	Batch []string
}

// ScriptedProvider is the deterministic test backend referenced throughout
// spec.md §8's end-to-end scenarios: it replays a fixed sequence of steps,
// wrapping back to the start once exhausted, so tests can assert exact
// call-by-call behavior without a real LLM endpoint.
type ScriptedProvider struct {
	id    string
	steps []Step
	n     atomic.Uint64
}

// NewScriptedProvider creates a ScriptedProvider that cycles through
// steps. steps must be non-empty.
func NewScriptedProvider(id string, steps []Step) *ScriptedProvider {
	return &ScriptedProvider{id: id, steps: steps}
}

func (p *ScriptedProvider) ID() string { return p.id }

// Generate returns the next scripted step, advancing the call counter
// atomically so concurrent workers sharing one ScriptedProvider instance
// still observe a single well-defined call order (spec.md §8 scenario 1:
// a shared backend sequence across both test workers).
func (p *ScriptedProvider) Generate(_ context.Context, prompt string, _ Params) (Result, error) {
	idx := p.n.Add(1) - 1
	step := p.steps[int(idx)%len(p.steps)]

	if step.Err != nil {
		return Result{}, step.Err
	}

	text := strings.Join(step.Batch, "\n")
	return Result{
		Text:      text,
		TokensIn:  len(prompt),
		TokensOut: len(text),
	}, nil
}

// CallCount returns the number of Generate calls served so far.
func (p *ScriptedProvider) CallCount() uint64 {
	return p.n.Load()
}
