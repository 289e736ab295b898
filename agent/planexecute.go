package agent

import (
	"context"
	"time"

	"github.com/TVScoundrel/agentforge-sub003/graph"
	"github.com/TVScoundrel/agentforge-sub003/middleware"
)

// Plan-execute channel names (spec.md 4.5).
const (
	ChannelPlan      = "plan"
	ChannelPastSteps = "past_steps"
	ChannelGoal      = "goal"
)

// Step is one planner-issued unit of work (spec.md 4.5: "{id, description,
// tool?, args?, dependencies?}").
type Step struct {
	ID           string                 `json:"id"`
	Description  string                 `json:"description"`
	Tool         string                 `json:"tool,omitempty"`
	Args         map[string]interface{} `json:"args,omitempty"`
	Dependencies []string               `json:"dependencies,omitempty"`
}

// CompletedStep records one executed step's outcome (spec.md 4.5:
// "a completed-step {step, result, success, error?, timestamp}").
type CompletedStep struct {
	Step      Step      `json:"step"`
	Result    any       `json:"result,omitempty"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ReplanDecision is the replanner's output (spec.md 4.5: "{should_replan,
// reason, new_goal?}").
type ReplanDecision struct {
	ShouldReplan bool   `json:"should_replan"`
	Reason       string `json:"reason,omitempty"`
	NewGoal      string `json:"new_goal,omitempty"`
}

// Planner produces an ordered step list for goal.
type Planner func(ctx context.Context, goal string, state graph.State) ([]Step, error)

// StepExecutor runs one step, given the tool it names (if any).
type StepExecutor func(ctx context.Context, step Step, state graph.State) (any, error)

// Replanner decides whether to restart planning after each step.
type Replanner func(ctx context.Context, completed []CompletedStep, state graph.State) (ReplanDecision, error)

// PlanExecuteConfig wires the plan -> execute_step -> replan? loop.
type PlanExecuteConfig struct {
	Plan          Planner
	Execute       StepExecutor
	Replan        Replanner
	MaxIterations int

	// Dedup deduplicates repeated (tool, canonicalized args) step
	// executions across the whole plan (spec.md 4.3, 4.5: "Deduplication
	// is active across steps of a single plan"). Construct one per run
	// with middleware.NewDeduplicator() and share it across every
	// StepNode built from this config.
	Dedup *middleware.Deduplicator
}

// ErrUnmetDependency reports a step whose declared dependency has not yet
// completed successfully (spec.md 4.5: "Dependencies must be satisfied
// before a step runs or the step fails with an unmet-dependency error").
var ErrUnmetDependency = &graph.ValidationError{Message: "unmet step dependency"}

// PlanExecuteAnnotation declares the channel set a plan-execute graph
// needs.
func PlanExecuteAnnotation() *graph.Annotation {
	return graph.NewAnnotation(map[string]graph.ChannelConfig{
		ChannelGoal: {Reduce: graph.Overwrite, Default: func() any { return "" }},
		ChannelPlan: {Reduce: graph.Overwrite, Default: func() any { return []any{} }},
		ChannelPastSteps: {
			Reduce:      graph.Append,
			Associative: true,
			Default:     func() any { return []any{} },
		},
		ChannelIteration: {Reduce: graph.Sum, Default: func() any { return 0.0 }},
		ChannelStatus:    {Reduce: graph.Overwrite, Default: func() any { return StatusRouting }},
	})
}

// PlanNode produces (or re-produces, on replan) the step list.
func PlanNode(cfg PlanExecuteConfig, executeNodeID string) graph.Node {
	return graph.NodeFunc(func(ctx context.Context, state graph.State, rt graph.RuntimeConfig) graph.NodeResult {
		goal, _ := state[ChannelGoal].(string)
		steps, err := cfg.Plan(ctx, goal, state)
		if err != nil {
			return graph.NodeResult{Err: &graph.TransientError{Message: "planning failed", Cause: err}}
		}
		planValues := make([]any, len(steps))
		for i, s := range steps {
			planValues[i] = s
		}
		return graph.NodeResult{
			Delta: graph.State{ChannelPlan: planValues},
			Route: graph.Goto(executeNodeID),
		}
	})
}

// StepNode takes the first not-yet-completed step in the plan and executes
// it, deduplicating via cfg.Dedup, then routes to replanNodeID. If that
// step has a dependency that is not yet completed, it is not executed: a
// failed CompletedStep carrying ErrUnmetDependency is recorded instead.
func StepNode(cfg PlanExecuteConfig, replanNodeID string) graph.Node {
	base := graph.NodeFunc(func(ctx context.Context, state graph.State, rt graph.RuntimeConfig) graph.NodeResult {
		plan := planSteps(state)
		completed := completedSteps(state)
		doneIDs := make(map[string]bool, len(completed))
		for _, c := range completed {
			if c.Success {
				doneIDs[c.Step.ID] = true
			}
		}

		step, ok := nextStep(plan, doneIDs)
		if !ok {
			return graph.NodeResult{Delta: graph.State{}, Route: graph.Goto(replanNodeID)}
		}
		for _, dep := range step.Dependencies {
			if !doneIDs[dep] {
				cs := CompletedStep{Step: step, Success: false, Error: ErrUnmetDependency.Error(), Timestamp: time.Now()}
				return graph.NodeResult{Delta: graph.State{ChannelPastSteps: []any{cs}}, Route: graph.Goto(replanNodeID)}
			}
		}

		result, err := cfg.Execute(ctx, step, state)
		cs := CompletedStep{Step: step, Result: result, Success: err == nil, Timestamp: time.Now()}
		if err != nil {
			cs.Error = err.Error()
		}
		return graph.NodeResult{Delta: graph.State{ChannelPastSteps: []any{cs}}, Route: graph.Goto(replanNodeID)}
	})

	if cfg.Dedup == nil {
		return base
	}
	deduped := cfg.Dedup.Dedup(func(state graph.State) string {
		plan := planSteps(state)
		doneIDs := completedStepIDs(state)
		step, ok := nextStep(plan, doneIDs)
		if !ok {
			return "no-op"
		}
		return middleware.DedupKey(step.Tool, step.Args)
	})(base)
	return graph.NodeFunc(func(ctx context.Context, state graph.State, rt graph.RuntimeConfig) graph.NodeResult {
		res := deduped.Run(ctx, state, rt)
		// A cache hit replays the CompletedStep of the earlier step with the
		// same (tool, args); relabel it so the current step is marked done.
		if past, _ := res.Delta[ChannelPastSteps].([]any); len(past) == 1 {
			if cs, ok := past[0].(CompletedStep); ok {
				cs.Step, _ = nextStep(planSteps(state), completedStepIDs(state))
				delta := res.Delta.Clone()
				delta[ChannelPastSteps] = []any{cs}
				res.Delta = delta
			}
		}
		return res
	})
}

// ReplanNode asks cfg.Replan whether to restart planning, routing back to
// planNodeID on should_replan, to executeNodeID while plan steps remain,
// and ending the run with a terminal route (graph.Stop) and status
// completed when the plan is exhausted or MaxIterations is reached.
// doneNodeID is not used for routing.
func ReplanNode(cfg PlanExecuteConfig, planNodeID, executeNodeID, doneNodeID string) graph.Node {
	return graph.NodeFunc(func(ctx context.Context, state graph.State, rt graph.RuntimeConfig) graph.NodeResult {
		iteration := int(asFloat(state[ChannelIteration])) + 1
		completed := completedSteps(state)

		decision, err := cfg.Replan(ctx, completed, state)
		if err != nil {
			return graph.NodeResult{Err: &graph.TransientError{Message: "replanning failed", Cause: err}}
		}

		delta := graph.State{ChannelIteration: 1.0}
		if iteration >= cfg.MaxIterations {
			delta[ChannelStatus] = StatusCompleted
			return graph.NodeResult{Delta: delta, Route: graph.Stop()}
		}
		if decision.ShouldReplan {
			if decision.NewGoal != "" {
				delta[ChannelGoal] = decision.NewGoal
			}
			return graph.NodeResult{Delta: delta, Route: graph.Goto(planNodeID)}
		}

		plan := planSteps(state)
		doneIDs := completedStepIDs(state)
		if _, more := nextStep(plan, doneIDs); more {
			return graph.NodeResult{Delta: delta, Route: graph.Goto(executeNodeID)}
		}
		delta[ChannelStatus] = StatusCompleted
		return graph.NodeResult{Delta: delta, Route: graph.Stop()}
	})
}

func planSteps(state graph.State) []Step {
	raw, _ := state[ChannelPlan].([]any)
	out := make([]Step, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(Step); ok {
			out = append(out, s)
		}
	}
	return out
}

func completedSteps(state graph.State) []CompletedStep {
	raw, _ := state[ChannelPastSteps].([]any)
	out := make([]CompletedStep, 0, len(raw))
	for _, v := range raw {
		if c, ok := v.(CompletedStep); ok {
			out = append(out, c)
		}
	}
	return out
}

func completedStepIDs(state graph.State) map[string]bool {
	done := make(map[string]bool)
	for _, c := range completedSteps(state) {
		if c.Success {
			done[c.Step.ID] = true
		}
	}
	return done
}

func nextStep(plan []Step, done map[string]bool) (Step, bool) {
	for _, s := range plan {
		if !done[s.ID] {
			return s, true
		}
	}
	return Step{}, false
}
