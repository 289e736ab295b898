package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/TVScoundrel/agentforge-sub003/graph"
	"github.com/panjf2000/ants/v2"
)

// Callable is a worker's unit of work: given the assignment's task and
// the run's state, produce a result or fail.
type Callable func(ctx context.Context, task string, state graph.State) (any, error)

// WorkerConfig configures WorkerNode.
type WorkerConfig struct {
	ID       string
	Call     Callable   // set for a leaf worker
	Inner    *graph.Engine // set for a worker wrapping a compiled subgraph instead
	Pool     *ants.Pool // optional: dispatch Call through a shared goroutine pool
}

// WorkerNode builds a worker node wrapping either cfg.Call or cfg.Inner
// (exactly one should be set). The supervisor is expected to have
// recorded this worker's assignment (bumping its workload) when it made
// the routing decision; on exit here the worker decrements its own
// workload back down and emits a TaskResult into task_results (spec.md
// 4.4: "On entry, increments the worker's workload; on exit, decrements
// and emits a task result").
func WorkerNode(cfg WorkerConfig) graph.Node {
	return graph.NodeFunc(func(ctx context.Context, state graph.State, rt graph.RuntimeConfig) graph.NodeResult {
		assignment := currentAssignment(state, cfg.ID)

		result, err := cfg.run(ctx, assignment.Task, state, rt)

		if interrupt, ok := result.(*graph.Interrupt); ok && interrupt != nil {
			return graph.NodeResult{Interrupt: interrupt}
		}

		tr := TaskResult{
			AssignmentID: assignment.ID,
			WorkerID:     cfg.ID,
			Success:      err == nil,
			Result:       result,
			CompletedAt:  time.Now(),
		}
		content := toString(result)
		if err != nil {
			tr.Error = err.Error()
			content = err.Error()
		}

		delta := graph.State{
			ChannelTaskResults: []any{tr},
			ChannelWorkers:     adjustWorkload(state, cfg.ID, -1),
			ChannelMessages:    []any{Message{From: cfg.ID, Content: content, Timestamp: tr.CompletedAt}},
		}
		return graph.NodeResult{Delta: delta}
	})
}

func (cfg WorkerConfig) run(ctx context.Context, task string, state graph.State, rt graph.RuntimeConfig) (any, error) {
	if cfg.Inner != nil {
		// Route through graph.AsNode rather than calling cfg.Inner.Run
		// directly, so the subgraph's checkpoint history lands under a
		// namespace derived from the run's thread id and this worker's id
		// instead of colliding with the parent's (spec.md 4.2/4.4).
		res := graph.AsNode(cfg.ID, cfg.Inner).Run(ctx, state, rt)
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Interrupt != nil {
			return res.Interrupt, nil
		}
		return res.Delta, nil
	}
	if cfg.Call == nil {
		return nil, fmt.Errorf("worker %s: no Call or Inner configured", cfg.ID)
	}
	if cfg.Pool == nil {
		return cfg.Call(ctx, task, state)
	}
	return submitToPool(ctx, cfg.Pool, func() (any, error) { return cfg.Call(ctx, task, state) })
}

// submitToPool runs fn on cfg.Pool (ants goroutine pool) instead of a raw
// goroutine, bounding the number of concurrently in-flight worker
// callables process-wide rather than per-graph-run.
func submitToPool(ctx context.Context, pool *ants.Pool, fn func() (any, error)) (any, error) {
	type outcome struct {
		val any
		err error
	}
	done := make(chan outcome, 1)
	submitErr := pool.Submit(func() {
		v, err := fn()
		done <- outcome{v, err}
	})
	if submitErr != nil {
		return nil, submitErr
	}
	select {
	case o := <-done:
		return o.val, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func currentAssignment(state graph.State, workerID string) Assignment {
	raw, _ := state[ChannelAssignments].([]any)
	for i := len(raw) - 1; i >= 0; i-- {
		if a, ok := raw[i].(Assignment); ok && a.WorkerID == workerID {
			return a
		}
	}
	return Assignment{WorkerID: workerID}
}

// adjustWorkload returns a new workers map with workerID's Workload
// shifted by delta, suitable as a ChannelWorkers delta value (the
// channel's MergeMap reducer folds it into the current map by key).
func adjustWorkload(state graph.State, workerID string, delta int) map[string]any {
	workers, _ := state[ChannelWorkers].(map[string]any)
	info, _ := workers[workerID].(WorkerInfo)
	info.ID = workerID
	info.Workload += delta
	if info.Workload < 0 {
		info.Workload = 0
	}
	return map[string]any{workerID: info}
}
