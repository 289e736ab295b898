package agent

import (
	"context"
	"time"

	"github.com/TVScoundrel/agentforge-sub003/graph"
	"github.com/TVScoundrel/agentforge-sub003/graph/model"
	"github.com/google/uuid"
)

// Router decides the next routing decision given the current state. All
// five spec.md 4.4 strategies (llm_based, rule_based, round_robin,
// skill_based, load_balanced) implement this.
type Router func(ctx context.Context, state graph.State) (RoutingDecision, error)

// SupervisorConfig wires a routing strategy and the bookkeeping needed to
// detect the two stop conditions (spec.md 4.4: "(a) supervisor sets
// status = completed or failed; (b) iteration counter reaches
// max_iterations").
type SupervisorConfig struct {
	Router        Router
	MaxIterations int

	// Done inspects state after routing to decide whether the run should
	// stop (status already completed/failed, or the router judged the
	// task finished); nil means never stop early on status alone.
	Done func(state graph.State) bool

	// TaskFor derives the task description recorded on a target worker's
	// Assignment. Nil defaults to the run's input channel verbatim.
	TaskFor func(state graph.State, workerID string) string
}

// SupervisorNode builds the supervisor node: it evaluates cfg.Router,
// writes the routing decision and bumps the iteration counter, then
// routes to the chosen worker(s) or to the aggregator when done.
func SupervisorNode(cfg SupervisorConfig, aggregatorNodeID string) graph.Node {
	return graph.NodeFunc(func(ctx context.Context, state graph.State, rt graph.RuntimeConfig) graph.NodeResult {
		iteration := int(asFloat(state[ChannelIteration]))
		if iteration >= cfg.MaxIterations {
			return graph.NodeResult{
				Delta: graph.State{ChannelStatus: StatusCompleted},
				Route: graph.Goto(aggregatorNodeID),
			}
		}

		decision, err := cfg.Router(ctx, state)
		if err != nil {
			return graph.NodeResult{Err: &graph.TransientError{Message: "supervisor routing failed", Cause: err}}
		}
		decision.Timestamp = time.Now()

		delta := graph.State{
			ChannelRouting:   decision,
			ChannelIteration: 1.0,
		}

		if cfg.Done != nil && cfg.Done(state) {
			delta[ChannelStatus] = StatusCompleted
			return graph.NodeResult{Delta: delta, Route: graph.Goto(aggregatorNodeID)}
		}

		targets := decision.Targets()
		if len(targets) == 0 {
			delta[ChannelStatus] = StatusFailed
			return graph.NodeResult{Delta: delta, Route: graph.Goto(aggregatorNodeID)}
		}

		delta[ChannelStatus] = StatusExecuting
		delta[ChannelAssignments], delta[ChannelWorkers] = cfg.assign(state, targets)
		if len(targets) == 1 {
			return graph.NodeResult{Delta: delta, Route: graph.Goto(targets[0])}
		}
		return graph.NodeResult{Delta: delta, Route: graph.FanOut(targets...)}
	})
}

// assign issues one Assignment per target (spec.md 3: "a list of task
// assignments") with a fresh id from uuid, and returns the matching
// per-worker workload bump (ChannelWorkers' MergeMap reducer folds it in
// by key) so a worker's later decrement in WorkerNode nets back to its
// pre-dispatch value.
func (cfg SupervisorConfig) assign(state graph.State, targets []string) ([]any, map[string]any) {
	assignments := make([]any, 0, len(targets))
	workload := make(map[string]any, len(targets))
	now := time.Now()
	for _, target := range targets {
		task := ""
		if cfg.TaskFor != nil {
			task = cfg.TaskFor(state, target)
		} else if input, ok := state[ChannelInput].(string); ok {
			task = input
		}
		assignments = append(assignments, Assignment{
			ID:       uuid.NewString(),
			WorkerID: target,
			Task:     task,
			Issued:   now,
		})
		workload[target] = singleWorkerDelta(state, target, 1)
	}
	return assignments, workload
}

// singleWorkerDelta returns target's WorkerInfo with Workload shifted by
// delta, read from state's current snapshot so repeated fan-out targets
// in one routing decision each start from the same pre-dispatch workload.
func singleWorkerDelta(state graph.State, target string, delta int) WorkerInfo {
	workers, _ := state[ChannelWorkers].(map[string]any)
	info, _ := workers[target].(WorkerInfo)
	info.ID = target
	info.Workload += delta
	if info.Workload < 0 {
		info.Workload = 0
	}
	return info
}

func asFloat(v any) float64 {
	f, _ := v.(float64)
	return f
}

// RuleBasedRouter wraps a user-supplied pure function as a Router
// (spec.md 4.4: "rule_based (user-supplied function)").
func RuleBasedRouter(fn func(state graph.State) RoutingDecision) Router {
	return func(_ context.Context, state graph.State) (RoutingDecision, error) {
		d := fn(state)
		d.Strategy = StrategyRuleBased
		return d, nil
	}
}

// RoundRobinRouter cycles through the given worker ids in order,
// wrapping around. It is also the documented fallback for llm_based
// routing when the model names an unknown worker (spec.md 4.4: "fall
// back to round-robin over available workers and record confidence=0").
func RoundRobinRouter(workerIDs []string) Router {
	var next int
	return func(_ context.Context, _ graph.State) (RoutingDecision, error) {
		if len(workerIDs) == 0 {
			return RoutingDecision{Strategy: StrategyRoundRobin, Confidence: 0}, nil
		}
		id := workerIDs[next%len(workerIDs)]
		next++
		return RoutingDecision{TargetAgent: id, Strategy: StrategyRoundRobin, Reasoning: "round robin"}, nil
	}
}

// SkillBasedRouter matches the task's declared tags against each worker's
// skills, routing to every worker with at least one matching skill
// (spec.md 4.4: "skill_based (matches task tags to declared skills)").
func SkillBasedRouter(workers func(state graph.State) []WorkerInfo, taskTags func(state graph.State) []string) Router {
	return func(_ context.Context, state graph.State) (RoutingDecision, error) {
		tags := taskTags(state)
		tagSet := make(map[string]bool, len(tags))
		for _, t := range tags {
			tagSet[t] = true
		}
		var matched []string
		for _, w := range workers(state) {
			for _, skill := range w.Skills {
				if tagSet[skill] {
					matched = append(matched, w.ID)
					break
				}
			}
		}
		return RoutingDecision{TargetAgents: matched, Strategy: StrategySkillBased, Reasoning: "skill match", Confidence: 1}, nil
	}
}

// LoadBalancedRouter routes to the worker with the lowest current
// workload (spec.md 4.4: "load_balanced (chooses worker with lowest
// workload)").
func LoadBalancedRouter(workers func(state graph.State) []WorkerInfo) Router {
	return func(_ context.Context, state graph.State) (RoutingDecision, error) {
		all := workers(state)
		if len(all) == 0 {
			return RoutingDecision{Strategy: StrategyLoadBalanced, Confidence: 0}, nil
		}
		best := all[0]
		for _, w := range all[1:] {
			if w.Workload < best.Workload {
				best = w
			}
		}
		return RoutingDecision{TargetAgent: best.ID, Strategy: StrategyLoadBalanced, Reasoning: "lowest workload", Confidence: 1}, nil
	}
}

// LLMBasedRouter asks chat to choose among the given worker capability
// descriptors (spec.md 4.4: "llm_based (asks a model to choose given
// worker capability descriptors)"). If the model names a worker id not in
// workers, it falls back to round-robin and records confidence 0.
func LLMBasedRouter(chat model.ChatModel, workers func(state graph.State) []WorkerInfo, describe func(state graph.State, candidates []WorkerInfo) string) Router {
	var next int
	return func(ctx context.Context, state graph.State) (RoutingDecision, error) {
		candidates := workers(state)

		prompt := describe(state, candidates)
		out, err := chat.Chat(ctx, []model.Message{{Role: model.RoleUser, Content: prompt}}, nil)
		if err != nil {
			return RoutingDecision{}, err
		}

		chosen := out.Text
		for _, w := range candidates {
			if w.ID == chosen {
				return RoutingDecision{TargetAgent: chosen, Strategy: StrategyLLMBased, Reasoning: "model selection", Confidence: 1}, nil
			}
		}

		d := RoutingDecision{}
		if ids := workerIDs(candidates); len(ids) > 0 {
			d.TargetAgent = ids[next%len(ids)]
			next++
		}
		d.Strategy = StrategyLLMBased
		d.Confidence = 0
		d.Reasoning = "model returned unknown worker id; fell back to round robin"
		return d, nil
	}
}

func workerIDs(workers []WorkerInfo) []string {
	ids := make([]string, len(workers))
	for i, w := range workers {
		ids[i] = w.ID
	}
	return ids
}
