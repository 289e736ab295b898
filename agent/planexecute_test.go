package agent

import (
	"context"
	"testing"

	"github.com/TVScoundrel/agentforge-sub003/graph"
	"github.com/TVScoundrel/agentforge-sub003/middleware"
)

func TestPlanNode_ProducesOrderedSteps(t *testing.T) {
	cfg := PlanExecuteConfig{
		Plan: func(ctx context.Context, goal string, state graph.State) ([]Step, error) {
			return []Step{{ID: "s1", Description: "first"}, {ID: "s2", Description: "second"}}, nil
		},
	}
	node := PlanNode(cfg, "execute")
	res := node.Run(context.Background(), graph.State{ChannelGoal: "ship it"}, graph.RuntimeConfig{})
	if res.Route.To != "execute" {
		t.Fatalf("expected route to execute, got %+v", res.Route)
	}
	plan := res.Delta[ChannelPlan].([]any)
	if len(plan) != 2 {
		t.Fatalf("expected 2 plan steps, got %d", len(plan))
	}
}

func TestStepNode_FailsOnUnmetDependency(t *testing.T) {
	cfg := PlanExecuteConfig{
		Execute: func(ctx context.Context, step Step, state graph.State) (any, error) {
			t.Fatal("Execute should not be called when a dependency is unmet")
			return nil, nil
		},
	}
	node := StepNode(cfg, "replan")
	state := graph.State{
		ChannelPlan: []any{Step{ID: "s2", Dependencies: []string{"s1"}}},
	}
	res := node.Run(context.Background(), state, graph.RuntimeConfig{})
	completed := res.Delta[ChannelPastSteps].([]any)
	cs := completed[0].(CompletedStep)
	if cs.Success {
		t.Fatal("expected unmet-dependency step to fail")
	}
	if cs.Error != ErrUnmetDependency.Error() {
		t.Fatalf("expected unmet dependency error, got %q", cs.Error)
	}
}

func TestStepNode_RoutesToReplanWhenPlanExhausted(t *testing.T) {
	node := StepNode(PlanExecuteConfig{}, "replan")
	state := graph.State{
		ChannelPlan:      []any{Step{ID: "s1"}},
		ChannelPastSteps: []any{CompletedStep{Step: Step{ID: "s1"}, Success: true}},
	}
	res := node.Run(context.Background(), state, graph.RuntimeConfig{})
	if res.Route.To != "replan" {
		t.Fatalf("expected route to replan when plan exhausted, got %+v", res.Route)
	}
}

// TestStepNode_S3DeduplicatesRepeatedToolCall reproduces spec.md S3: two
// distinct plan steps that resolve to the same (tool, args) pair execute
// the underlying call only once.
func TestStepNode_S3DeduplicatesRepeatedToolCall(t *testing.T) {
	var executeCalls int
	cfg := PlanExecuteConfig{
		Execute: func(ctx context.Context, step Step, state graph.State) (any, error) {
			executeCalls++
			return "search result", nil
		},
		Dedup: middleware.NewDeduplicator(),
	}
	node := StepNode(cfg, "replan")

	sharedArgs := map[string]interface{}{"query": "agentforge"}
	plan := []any{
		Step{ID: "s1", Tool: "search", Args: sharedArgs},
		Step{ID: "s2", Tool: "search", Args: sharedArgs},
	}

	state1 := graph.State{ChannelPlan: plan, ChannelPastSteps: []any{}}
	res1 := node.Run(context.Background(), state1, graph.RuntimeConfig{})
	completed1 := res1.Delta[ChannelPastSteps].([]any)
	if len(completed1) != 1 {
		t.Fatalf("expected 1 completed step, got %d", len(completed1))
	}

	state2 := graph.State{ChannelPlan: plan, ChannelPastSteps: []any{completed1[0]}}
	res2 := node.Run(context.Background(), state2, graph.RuntimeConfig{})
	completed2 := res2.Delta[ChannelPastSteps].([]any)
	if len(completed2) != 1 {
		t.Fatalf("expected 1 completed step from cached dedup result, got %d", len(completed2))
	}

	if executeCalls != 1 {
		t.Fatalf("expected Execute invoked exactly once across both steps, got %d", executeCalls)
	}
}

func TestReplanNode_StopsWhenPlanComplete(t *testing.T) {
	cfg := PlanExecuteConfig{
		Replan: func(ctx context.Context, completed []CompletedStep, state graph.State) (ReplanDecision, error) {
			return ReplanDecision{ShouldReplan: false}, nil
		},
		MaxIterations: 10,
	}
	node := ReplanNode(cfg, "plan", "execute", graph.END)
	state := graph.State{
		ChannelPlan:      []any{Step{ID: "s1"}},
		ChannelPastSteps: []any{CompletedStep{Step: Step{ID: "s1"}, Success: true}},
		ChannelIteration: 0.0,
	}
	res := node.Run(context.Background(), state, graph.RuntimeConfig{})
	if !res.Route.Terminal {
		t.Fatalf("expected terminal route when plan is exhausted, got %+v", res.Route)
	}
	if res.Delta[ChannelStatus] != StatusCompleted {
		t.Fatalf("expected status completed, got %v", res.Delta[ChannelStatus])
	}
}

func TestReplanNode_RestartsPlanningOnShouldReplan(t *testing.T) {
	cfg := PlanExecuteConfig{
		Replan: func(ctx context.Context, completed []CompletedStep, state graph.State) (ReplanDecision, error) {
			return ReplanDecision{ShouldReplan: true, NewGoal: "refined goal"}, nil
		},
		MaxIterations: 10,
	}
	node := ReplanNode(cfg, "plan", "execute", graph.END)
	res := node.Run(context.Background(), graph.State{ChannelIteration: 0.0}, graph.RuntimeConfig{})
	if res.Route.To != "plan" {
		t.Fatalf("expected route to plan, got %+v", res.Route)
	}
	if res.Delta[ChannelGoal] != "refined goal" {
		t.Fatalf("expected new goal propagated, got %v", res.Delta[ChannelGoal])
	}
}
