package agent

import (
	"context"

	"github.com/TVScoundrel/agentforge-sub003/graph"
)

// Summarizer combines the accumulated task results into the final output
// (spec.md 4.4: "Configurable: user function, or a model-based
// summarizer").
type Summarizer func(ctx context.Context, results []TaskResult, messages []Message) (any, error)

// AggregatorNode builds the terminal aggregator node: it reads
// task_results, invokes summarize, records the output as a message from
// "aggregator", and sets status to completed, or to failed if any task
// result is unsuccessful.
func AggregatorNode(summarize Summarizer) graph.Node {
	return graph.NodeFunc(func(ctx context.Context, state graph.State, rt graph.RuntimeConfig) graph.NodeResult {
		results := taskResults(state)
		messages := messageLog(state)

		out, err := summarize(ctx, results, messages)
		if err != nil {
			return graph.NodeResult{Err: &graph.TransientError{Message: "aggregation failed", Cause: err}}
		}

		final := StatusCompleted
		for _, r := range results {
			if !r.Success {
				final = StatusFailed
				break
			}
		}

		return graph.NodeResult{
			Delta: graph.State{
				ChannelStatus:   final,
				ChannelMessages: []any{Message{From: "aggregator", Content: toString(out)}},
			},
			Route: graph.Stop(),
		}
	})
}

func taskResults(state graph.State) []TaskResult {
	raw, _ := state[ChannelTaskResults].([]any)
	out := make([]TaskResult, 0, len(raw))
	for _, v := range raw {
		if tr, ok := v.(TaskResult); ok {
			out = append(out, tr)
		}
	}
	return out
}

func messageLog(state graph.State) []Message {
	raw, _ := state[ChannelMessages].([]any)
	out := make([]Message, 0, len(raw))
	for _, v := range raw {
		if m, ok := v.(Message); ok {
			out = append(out, m)
		}
	}
	return out
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
