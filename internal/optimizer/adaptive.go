package optimizer

import (
	"fmt"
	"sort"
	"time"
)

// PromptTemplate is one catalog entry. Category values from spec.md §4.5:
// concrete, creative, technical, functional, structural, contextual.
type PromptTemplate struct {
	ID       string
	Category string
	Text     string
}

type templateState struct {
	tmpl          PromptTemplate
	usageCount    int
	cumulativeUAM float64
	lastUsed      time.Time
}

// decline-to-level thresholds (spec.md §4.5 step 3 defaults).
const (
	thresholdMinimal   = 0.15
	thresholdModerate  = 0.30
	thresholdAggressive = 0.50
	thresholdNone      = 0.05

	templateCooldown    = 60 * time.Second
	temperatureStep     = 0.1
	temperatureMin      = 0.3
	temperatureMax      = 1.1
	batchSizeWidenPct   = 0.20
)

// Adaptive is the UAM-decline-driven strategy (spec.md §4.5).
type Adaptive struct {
	templates []*templateState
	level     AdaptationLevel

	// workerTemplate records which template ID each worker is currently
	// assigned, for CurrentTemplateID, since OptimizationContext only
	// carries prompt text. UpdatePerformance credits each outcome's own
	// TemplateID and does not consult this map.
	workerTemplate map[string]string

	nextRoundRobin int
}

// NewAdaptive creates an Adaptive strategy seeded with catalog.
func NewAdaptive(catalog []PromptTemplate) *Adaptive {
	states := make([]*templateState, len(catalog))
	for i, t := range catalog {
		states[i] = &templateState{tmpl: t}
	}
	return &Adaptive{
		templates:      states,
		workerTemplate: make(map[string]string),
	}
}

func mapDeclineToLevel(decline float64) AdaptationLevel {
	switch {
	case decline >= thresholdAggressive:
		return LevelAggressive
	case decline >= thresholdModerate:
		return LevelModerate
	case decline >= thresholdMinimal:
		return LevelMinimal
	case decline < thresholdNone:
		return LevelNone
	default:
		// Between thresholdNone and thresholdMinimal: no tier changes yet.
		return LevelNone
	}
}

func decline(short, long float64) float64 {
	if long <= 0 {
		return 0
	}
	return 1 - short/long
}

// Optimize implements the full decision rule in spec.md §4.5.
func (a *Adaptive) Optimize(ctx OptimizationContext) OptimizationResult {
	d := decline(ctx.GlobalShort.UAM, ctx.GlobalLong.UAM)
	a.level = mapDeclineToLevel(d)

	result := OptimizationResult{
		PerWorkerPrompt:  make(map[string]string, len(ctx.WorkerIDs)),
		PerWorkerWeights: make(map[string]map[string]float64, len(ctx.WorkerIDs)),
		Rationale:        fmt.Sprintf("adaptive: decline=%.3f level=%s", d, a.level),
	}

	if a.level == LevelNone || len(a.templates) == 0 {
		for _, id := range ctx.WorkerIDs {
			result.PerWorkerWeights[id] = ctx.Defaults.Weights
		}
		return result
	}

	a.assignTemplates(ctx, &result)

	if a.level >= LevelModerate {
		temp := clampTemperature(ctx.Defaults.Temperature + temperatureStep)
		result.ParamOverrides.Temperature = &temp

		batch := int(float64(ctx.Defaults.BatchSize) * (1 + batchSizeWidenPct))
		result.ParamOverrides.BatchSize = &batch
	}

	if a.level == LevelAggressive {
		a.biasRoutingWeights(ctx, &result)
	} else {
		for _, id := range ctx.WorkerIDs {
			if _, ok := result.PerWorkerWeights[id]; !ok {
				result.PerWorkerWeights[id] = ctx.Defaults.Weights
			}
		}
	}

	return result
}

// assignTemplates implements step 4: at level >= Minimal, assign distinct
// templates round-robin over categories, preferring ones with the highest
// rolling UAM attribution that aren't in cooldown.
func (a *Adaptive) assignTemplates(ctx OptimizationContext, result *OptimizationResult) {
	eligible := make([]*templateState, 0, len(a.templates))
	for _, ts := range a.templates {
		if ctx.Now.Sub(ts.lastUsed) >= templateCooldown || ts.lastUsed.IsZero() {
			eligible = append(eligible, ts)
		}
	}
	if len(eligible) == 0 {
		eligible = a.templates
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].cumulativeUAM > eligible[j].cumulativeUAM
	})

	workers := append([]string(nil), ctx.WorkerIDs...)
	sort.Strings(workers)

	for _, workerID := range workers {
		ts := eligible[a.nextRoundRobin%len(eligible)]
		a.nextRoundRobin++

		result.PerWorkerPrompt[workerID] = ts.tmpl.Text
		a.workerTemplate[workerID] = ts.tmpl.ID
		ts.usageCount++
		ts.lastUsed = ctx.Now
	}
}

// biasRoutingWeights implements step 6: at Aggressive, bias weights
// toward the provider with the highest short-window UAM-per-cost.
func (a *Adaptive) biasRoutingWeights(ctx OptimizationContext, result *OptimizationResult) {
	best := ""
	bestScore := -1.0
	for providerID, stats := range ctx.ProviderShort {
		score := stats.UAM
		if stats.CostPerMinute > 0 {
			score = stats.UAM / stats.CostPerMinute
		}
		if score > bestScore {
			bestScore = score
			best = providerID
		}
	}

	for _, id := range ctx.WorkerIDs {
		weights := make(map[string]float64, len(ctx.Defaults.Weights))
		for k, v := range ctx.Defaults.Weights {
			weights[k] = v
		}
		if best != "" {
			if _, ok := weights[best]; ok {
				for k := range weights {
					if k == best {
						weights[k] = weights[k] * 1.5
					}
				}
			}
		}
		result.PerWorkerWeights[id] = weights
	}
}

func clampTemperature(t float64) float64 {
	if t < temperatureMin {
		return temperatureMin
	}
	if t > temperatureMax {
		return temperatureMax
	}
	return t
}

// UpdatePerformance attributes newly-credited unique attributes to the
// template each worker was assigned at emission time (spec.md §4.5
// "credit assignment").
func (a *Adaptive) UpdatePerformance(outcomes []Outcome) {
	byID := make(map[string]*templateState, len(a.templates))
	for _, ts := range a.templates {
		byID[ts.tmpl.ID] = ts
	}

	for _, o := range outcomes {
		ts, ok := byID[o.TemplateID]
		if !ok {
			continue
		}
		ts.cumulativeUAM += float64(o.NewUnique)
	}
}

func (a *Adaptive) Reset() {
	for _, ts := range a.templates {
		ts.usageCount = 0
		ts.cumulativeUAM = 0
		ts.lastUsed = time.Time{}
	}
	a.workerTemplate = make(map[string]string)
	a.level = LevelNone
	a.nextRoundRobin = 0
}

// CurrentTemplateID returns the template ID last assigned to workerID.
func (a *Adaptive) CurrentTemplateID(workerID string) string {
	return a.workerTemplate[workerID]
}

func (a *Adaptive) State() map[string]interface{} {
	templates := make([]map[string]interface{}, len(a.templates))
	for i, ts := range a.templates {
		templates[i] = map[string]interface{}{
			"id":             ts.tmpl.ID,
			"category":       ts.tmpl.Category,
			"usage_count":    ts.usageCount,
			"cumulative_uam": ts.cumulativeUAM,
		}
	}
	return map[string]interface{}{
		"strategy":  "adaptive",
		"level":     a.level.String(),
		"templates": templates,
	}
}
