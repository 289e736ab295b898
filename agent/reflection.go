package agent

import (
	"context"

	"github.com/TVScoundrel/agentforge-sub003/graph"
)

// Reflection channel names (spec.md 4.5).
const (
	ChannelDraft      = "draft"
	ChannelReflections = "reflections"
	ChannelRevisions  = "revisions"
)

// Reflection is the reviewer's structured output (spec.md 4.5: "{critique,
// issues, suggestions, score, meets_standards}").
type Reflection struct {
	Critique       string   `json:"critique"`
	Issues         []string `json:"issues,omitempty"`
	Suggestions    []string `json:"suggestions,omitempty"`
	Score          float64  `json:"score"`
	MeetsStandards bool     `json:"meets_standards"`
}

// Generator produces the initial draft from the task input.
type Generator func(ctx context.Context, state graph.State) (string, error)

// Reflector reviews the current draft.
type Reflector func(ctx context.Context, draft string, state graph.State) (Reflection, error)

// Reviser rewrites the draft given the latest reflection.
type Reviser func(ctx context.Context, draft string, reflection Reflection, state graph.State) (string, error)

// ReflectionConfig wires the generate -> reflect -> revise -> reflect ...
// loop (spec.md 4.5). Threshold is the minimum Reflection.Score treated
// as passing if MeetsStandards is not already true.
type ReflectionConfig struct {
	Generate      Generator
	Reflect       Reflector
	Revise        Reviser
	MaxIterations int
	Threshold     float64
}

// ReflectionAnnotation declares the channel set a reflection graph needs,
// layered on top of whatever input/output channels the embedding graph
// already has.
func ReflectionAnnotation() *graph.Annotation {
	return graph.NewAnnotation(map[string]graph.ChannelConfig{
		ChannelDraft: {
			Reduce:  graph.Overwrite,
			Default: func() any { return "" },
		},
		ChannelReflections: {
			Reduce:      graph.Append,
			Associative: true,
			Default:     func() any { return []any{} },
		},
		ChannelRevisions: {
			Reduce:      graph.Append,
			Associative: true,
			Default:     func() any { return []any{} },
		},
		ChannelIteration: {
			Reduce:  graph.Sum,
			Default: func() any { return 0.0 },
		},
		ChannelStatus: {
			Reduce:  graph.Overwrite,
			Default: func() any { return StatusRouting },
		},
	})
}

// GenerateNode produces the initial draft.
func GenerateNode(gen Generator) graph.Node {
	return graph.NodeFunc(func(ctx context.Context, state graph.State, rt graph.RuntimeConfig) graph.NodeResult {
		draft, err := gen(ctx, state)
		if err != nil {
			return graph.NodeResult{Err: &graph.TransientError{Message: "generation failed", Cause: err}}
		}
		return graph.NodeResult{Delta: graph.State{ChannelDraft: draft}}
	})
}

// ReflectNode reviews the current draft and records the reflection. It
// routes to reviseNodeID unless standards are met or MaxIterations is
// reached, in which case it routes to doneNodeID.
func ReflectNode(cfg ReflectionConfig, reviseNodeID, doneNodeID string) graph.Node {
	return graph.NodeFunc(func(ctx context.Context, state graph.State, rt graph.RuntimeConfig) graph.NodeResult {
		draft, _ := state[ChannelDraft].(string)
		reflection, err := cfg.Reflect(ctx, draft, state)
		if err != nil {
			return graph.NodeResult{Err: &graph.TransientError{Message: "reflection failed", Cause: err}}
		}
		if !reflection.MeetsStandards && reflection.Score >= cfg.Threshold {
			reflection.MeetsStandards = true
		}

		delta := graph.State{
			ChannelReflections: []any{reflection},
			ChannelIteration:   1.0,
		}

		iteration := int(asFloat(state[ChannelIteration])) + 1
		if reflection.MeetsStandards || iteration >= cfg.MaxIterations {
			delta[ChannelStatus] = StatusCompleted
			return graph.NodeResult{Delta: delta, Route: graph.Goto(doneNodeID)}
		}
		return graph.NodeResult{Delta: delta, Route: graph.Goto(reviseNodeID)}
	})
}

// ReviseNode rewrites the draft using the most recent reflection.
func ReviseNode(cfg ReflectionConfig, reflectNodeID string) graph.Node {
	return graph.NodeFunc(func(ctx context.Context, state graph.State, rt graph.RuntimeConfig) graph.NodeResult {
		draft, _ := state[ChannelDraft].(string)
		reflections, _ := state[ChannelReflections].([]any)
		var latest Reflection
		if len(reflections) > 0 {
			latest, _ = reflections[len(reflections)-1].(Reflection)
		}

		revised, err := cfg.Revise(ctx, draft, latest, state)
		if err != nil {
			return graph.NodeResult{Err: &graph.TransientError{Message: "revision failed", Cause: err}}
		}

		return graph.NodeResult{
			Delta: graph.State{
				ChannelDraft:     revised,
				ChannelRevisions: []any{revised},
			},
			Route: graph.Goto(reflectNodeID),
		}
	})
}
