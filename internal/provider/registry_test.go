package provider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegistrySelectsOnlyHealthyProvider(t *testing.T) {
	r := NewRegistry(1)
	good := NewScriptedProvider("good", []Step{{Batch: []string{"A"}}})
	bad := NewScriptedProvider("bad", []Step{{Batch: []string{"B"}}})

	r.Add(good, 1)
	r.Add(bad, 1)

	now := time.Now()
	for i := 0; i < 3; i++ {
		p, breaker, err := r.Select(now)
		require.NoError(t, err)
		if p.ID() == "bad" {
			breaker.RecordFailure(now)
		}
	}

	// bad should now be excluded; repeated selection must only return good.
	for i := 0; i < 10; i++ {
		p, _, err := r.Select(now)
		require.NoError(t, err)
		require.Equal(t, "good", p.ID())
	}
}

func TestRegistryNoHealthyProviderReturnsErr(t *testing.T) {
	r := NewRegistry(1)
	p := NewScriptedProvider("only", []Step{{Batch: []string{"A"}}})
	r.Add(p, 1)

	now := time.Now()
	_, breaker, err := r.Select(now)
	require.NoError(t, err)
	breaker.RecordFailure(now)
	breaker.RecordFailure(now)
	breaker.RecordFailure(now)

	_, _, err = r.Select(now)
	require.ErrorIs(t, err, ErrNoHealthyProvider)
}

func TestScriptedProviderCyclesSteps(t *testing.T) {
	p := NewScriptedProvider("t", []Step{
		{Batch: []string{"A", "B", "C", "A"}},
		{Batch: []string{"B", "D"}},
		{Batch: []string{"E", "A"}},
	})

	r1, err := p.Generate(nil, "prompt", Params{})
	require.NoError(t, err)
	require.Equal(t, "A\nB\nC\nA", r1.Text)

	_, _ = p.Generate(nil, "prompt", Params{})
	r3, _ := p.Generate(nil, "prompt", Params{})
	require.Equal(t, "E\nA", r3.Text)

	// Wraps back to the first step.
	r4, _ := p.Generate(nil, "prompt", Params{})
	require.Equal(t, r1.Text, r4.Text)
}
