package agent

import (
	"context"
	"testing"

	"github.com/TVScoundrel/agentforge-sub003/graph"
)

// TestReflectionLoop_S2ConvergesOnPassingScore reproduces spec.md S2: the
// reviewer rejects the first draft, the reviser produces an improved one,
// and the loop stops once the reflection's score clears the threshold.
func TestReflectionLoop_S2ConvergesOnPassingScore(t *testing.T) {
	var reflectCalls int
	cfg := ReflectionConfig{
		Generate: func(ctx context.Context, state graph.State) (string, error) {
			return "draft v1", nil
		},
		Reflect: func(ctx context.Context, draft string, state graph.State) (Reflection, error) {
			reflectCalls++
			if draft == "draft v1" {
				return Reflection{Critique: "too short", Score: 0.3}, nil
			}
			return Reflection{Critique: "looks good", Score: 0.9}, nil
		},
		Revise: func(ctx context.Context, draft string, reflection Reflection, state graph.State) (string, error) {
			return "draft v2", nil
		},
		MaxIterations: 5,
		Threshold:     0.8,
	}

	ann := ReflectionAnnotation()
	e, err := graph.NewEngine(ann)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	_ = e.AddNode("generate", GenerateNode(cfg.Generate))
	_ = e.AddNode("reflect", ReflectNode(cfg, "revise", graph.END))
	_ = e.AddNode("revise", ReviseNode(cfg, "reflect"))
	_ = e.AddEdge("generate", "reflect", nil)
	_ = e.StartAt("generate")
	if err := e.Compile(); err != nil {
		t.Fatalf("compile: %v", err)
	}

	final, interrupt, err := e.Run(context.Background(), "thread-s2", graph.State{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if interrupt != nil {
		t.Fatalf("unexpected interrupt: %+v", interrupt)
	}
	if final[ChannelDraft] != "draft v2" {
		t.Fatalf("expected final draft v2, got %v", final[ChannelDraft])
	}
	if final[ChannelStatus] != StatusCompleted {
		t.Fatalf("expected status completed, got %v", final[ChannelStatus])
	}
	if reflectCalls != 2 {
		t.Fatalf("expected exactly 2 reflect calls (reject then accept), got %d", reflectCalls)
	}
}

func TestReflectNode_StopsAtMaxIterationsEvenIfFailing(t *testing.T) {
	cfg := ReflectionConfig{
		Reflect: func(ctx context.Context, draft string, state graph.State) (Reflection, error) {
			return Reflection{Critique: "still bad", Score: 0.1}, nil
		},
		MaxIterations: 1,
		Threshold:     0.8,
	}
	node := ReflectNode(cfg, "revise", graph.END)
	res := node.Run(context.Background(), graph.State{ChannelDraft: "v1", ChannelIteration: 0.0}, graph.RuntimeConfig{})
	if res.Route.To != graph.END {
		t.Fatalf("expected route to END at max iterations, got %+v", res.Route)
	}
	if res.Delta[ChannelStatus] != StatusCompleted {
		t.Fatalf("expected status completed, got %v", res.Delta[ChannelStatus])
	}
}

func TestReflectNode_RoutesToReviseWhenBelowThreshold(t *testing.T) {
	cfg := ReflectionConfig{
		Reflect: func(ctx context.Context, draft string, state graph.State) (Reflection, error) {
			return Reflection{Critique: "needs work", Score: 0.2}, nil
		},
		MaxIterations: 10,
		Threshold:     0.8,
	}
	node := ReflectNode(cfg, "revise", graph.END)
	res := node.Run(context.Background(), graph.State{ChannelDraft: "v1", ChannelIteration: 0.0}, graph.RuntimeConfig{})
	if res.Route.To != "revise" {
		t.Fatalf("expected route to revise, got %+v", res.Route)
	}
}

func TestReviseNode_UsesLatestReflection(t *testing.T) {
	var gotReflection Reflection
	cfg := ReflectionConfig{
		Revise: func(ctx context.Context, draft string, reflection Reflection, state graph.State) (string, error) {
			gotReflection = reflection
			return draft + "-revised", nil
		},
	}
	node := ReviseNode(cfg, "reflect")
	state := graph.State{
		ChannelDraft:       "v1",
		ChannelReflections: []any{Reflection{Critique: "first"}, Reflection{Critique: "latest"}},
	}
	res := node.Run(context.Background(), state, graph.RuntimeConfig{})
	if res.Delta[ChannelDraft] != "v1-revised" {
		t.Fatalf("expected revised draft, got %v", res.Delta[ChannelDraft])
	}
	if gotReflection.Critique != "latest" {
		t.Fatalf("expected reviser to receive the latest reflection, got %+v", gotReflection)
	}
}
