// Package agent implements the multi-agent supervisor pattern (spec.md
// 4.4) and the reflection and plan-execute single-agent patterns
// (spec.md 4.5) on top of the graph package's channel/node/edge model.
package agent

import (
	"time"

	"github.com/TVScoundrel/agentforge-sub003/graph"
)

// Channel names for multi-agent state (spec.md 3's "Multi-agent state
// fields"). Declared as constants so supervisor/worker/aggregator nodes
// and the annotation wiring them together can't typo a channel name.
const (
	ChannelInput           = "input"
	ChannelMessages        = "messages"
	ChannelRouting         = "routing_decision"
	ChannelCurrentWorker   = "current_worker"
	ChannelStatus          = "status"
	ChannelWorkers         = "workers"
	ChannelAssignments     = "assignments"
	ChannelTaskResults     = "task_results"
	ChannelIteration       = "iteration"
	ChannelToolRetryCount  = "tool_retry_count"
)

// Status is the multi-agent run's lifecycle state (spec.md 4.4: "status
// transitions routing -> executing -> aggregating -> completed").
type Status string

const (
	StatusRouting     Status = "routing"
	StatusExecuting   Status = "executing"
	StatusAggregating Status = "aggregating"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// Message is one entry in the append-only message log (spec.md 3).
type Message struct {
	From      string    `json:"from"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// RoutingStrategy names a supervisor routing algorithm (spec.md 4.4).
type RoutingStrategy string

const (
	StrategyLLMBased     RoutingStrategy = "llm_based"
	StrategyRuleBased    RoutingStrategy = "rule_based"
	StrategyRoundRobin   RoutingStrategy = "round_robin"
	StrategySkillBased   RoutingStrategy = "skill_based"
	StrategyLoadBalanced RoutingStrategy = "load_balanced"
)

// RoutingDecision is the supervisor's output channel value (spec.md 4.4:
// "{target_agent | target_agents, reasoning, confidence, strategy,
// timestamp}").
type RoutingDecision struct {
	TargetAgent  string          `json:"target_agent,omitempty"`
	TargetAgents []string        `json:"target_agents,omitempty"`
	Reasoning    string          `json:"reasoning"`
	Confidence   float64         `json:"confidence"`
	Strategy     RoutingStrategy `json:"strategy"`
	Timestamp    time.Time       `json:"timestamp"`
}

// Targets returns the one or more worker ids this decision routes to.
func (d RoutingDecision) Targets() []string {
	if len(d.TargetAgents) > 0 {
		return d.TargetAgents
	}
	if d.TargetAgent != "" {
		return []string{d.TargetAgent}
	}
	return nil
}

// WorkerInfo describes a registered worker: its declared skills (for
// skill_based routing) and live workload (for load_balanced routing).
type WorkerInfo struct {
	ID       string   `json:"id"`
	Skills   []string `json:"skills,omitempty"`
	Workload int      `json:"workload"`
}

// Assignment is a supervisor-issued unit of work for one worker.
type Assignment struct {
	ID       string    `json:"id"`
	WorkerID string    `json:"worker_id"`
	Task     string    `json:"task"`
	Issued   time.Time `json:"issued"`
}

// TaskResult is a worker's reported outcome (spec.md 4.4: "{assignment_id,
// worker_id, success, result, error?, completed_at, metadata?}").
type TaskResult struct {
	AssignmentID string                 `json:"assignment_id"`
	WorkerID     string                 `json:"worker_id"`
	Success      bool                   `json:"success"`
	Result       any                    `json:"result,omitempty"`
	Error        string                 `json:"error,omitempty"`
	CompletedAt  time.Time              `json:"completed_at"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// NewAnnotation builds the channel configuration for a multi-agent graph.
// messages/task_results append (parallel fan-out safe); workers merges by
// key (workload updates from concurrent workers); iteration and
// tool_retry_count sum; input, routing_decision and
// current_worker/status overwrite, per spec.md 9's Open
// Question decision: "treat [routing_decision] as overwrite... but reject
// parallel routers that emit simultaneous decisions" — enforced by the
// graph engine's ErrParallelOverwrite check since Associative defaults to
// false here.
func NewAnnotation() *graph.Annotation {
	return graph.NewAnnotation(map[string]graph.ChannelConfig{
		ChannelInput: {
			Reduce:  graph.Overwrite,
			Default: func() any { return "" },
		},
		ChannelMessages: {
			Reduce:      graph.Append,
			Associative: true,
			Default:     func() any { return []any{} },
		},
		ChannelRouting: {
			Reduce:  graph.Overwrite,
			Default: func() any { return nil },
		},
		ChannelCurrentWorker: {
			Reduce:  graph.Overwrite,
			Default: func() any { return "" },
		},
		ChannelStatus: {
			Reduce:  graph.Overwrite,
			Default: func() any { return StatusRouting },
		},
		ChannelWorkers: {
			Reduce:      graph.MergeMap,
			Associative: true,
			Default:     func() any { return map[string]any{} },
		},
		ChannelAssignments: {
			Reduce:      graph.Append,
			Associative: true,
			Default:     func() any { return []any{} },
		},
		ChannelTaskResults: {
			Reduce:      graph.Append,
			Associative: true,
			Default:     func() any { return []any{} },
		},
		ChannelIteration: {
			Reduce:  graph.Sum,
			Default: func() any { return 0.0 },
		},
		ChannelToolRetryCount: {
			Reduce:  graph.Sum,
			Default: func() any { return 0.0 },
		},
	})
}
