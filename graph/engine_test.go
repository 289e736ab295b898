package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/TVScoundrel/agentforge-sub003/graph/store"
)

func simpleAnnotation() *Annotation {
	return NewAnnotation(map[string]ChannelConfig{
		"count":    {Reduce: Sum, Associative: true},
		"messages": {Reduce: Append, Associative: true, Default: func() any { return []any{} }},
		"status":   {Reduce: Overwrite},
	})
}

func TestEngine_CompileRejectsUnknownEdgeDestination(t *testing.T) {
	e, err := NewEngine(simpleAnnotation())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	_ = e.AddNode("a", NodeFunc(func(ctx context.Context, s State, rt RuntimeConfig) NodeResult {
		return NodeResult{Route: Stop()}
	}))
	_ = e.AddEdge("a", "nonexistent", nil)
	_ = e.StartAt("a")

	if err := e.Compile(); !errors.Is(err, ErrUnknownNode) {
		t.Fatalf("expected ErrUnknownNode, got %v", err)
	}
}

func TestEngine_CompileRejectsMissingEntry(t *testing.T) {
	e, _ := NewEngine(simpleAnnotation())
	_ = e.AddNode("a", NodeFunc(func(ctx context.Context, s State, rt RuntimeConfig) NodeResult { return NodeResult{} }))
	if err := e.Compile(); !errors.Is(err, ErrNoEntry) {
		t.Fatalf("expected ErrNoEntry, got %v", err)
	}
}

func TestEngine_LinearRun(t *testing.T) {
	e, _ := NewEngine(simpleAnnotation())
	_ = e.AddNode("step1", NodeFunc(func(ctx context.Context, s State, rt RuntimeConfig) NodeResult {
		return NodeResult{Delta: State{"count": 1.0}, Route: Goto("step2")}
	}))
	_ = e.AddNode("step2", NodeFunc(func(ctx context.Context, s State, rt RuntimeConfig) NodeResult {
		return NodeResult{Delta: State{"count": 2.0}, Route: Stop()}
	}))
	_ = e.StartAt("step1")
	if err := e.Compile(); err != nil {
		t.Fatalf("compile: %v", err)
	}

	final, interrupt, err := e.Run(context.Background(), "thread-1", State{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if interrupt != nil {
		t.Fatalf("unexpected interrupt: %+v", interrupt)
	}
	if final["count"].(float64) != 3.0 {
		t.Fatalf("expected count 3.0, got %v", final["count"])
	}
}

// TestEngine_ParallelFanOut mirrors spec.md S1's shape: a router fans out
// to two workers that both append to the same message-log channel; the
// engine must merge both in arrival order without error since Append is
// associative.
func TestEngine_ParallelFanOut(t *testing.T) {
	e, _ := NewEngine(simpleAnnotation())
	_ = e.AddNode("supervisor", NodeFunc(func(ctx context.Context, s State, rt RuntimeConfig) NodeResult {
		return NodeResult{Route: FanOut("researcher", "writer")}
	}))
	_ = e.AddNode("researcher", NodeFunc(func(ctx context.Context, s State, rt RuntimeConfig) NodeResult {
		return NodeResult{Delta: State{"messages": []any{"research done"}}, Route: Stop()}
	}))
	_ = e.AddNode("writer", NodeFunc(func(ctx context.Context, s State, rt RuntimeConfig) NodeResult {
		return NodeResult{Delta: State{"messages": []any{"summary written"}}, Route: Stop()}
	}))
	_ = e.StartAt("supervisor")
	if err := e.Compile(); err != nil {
		t.Fatalf("compile: %v", err)
	}

	final, interrupt, err := e.Run(context.Background(), "thread-parallel", State{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if interrupt != nil {
		t.Fatalf("unexpected interrupt: %+v", interrupt)
	}
	msgs := final["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages from parallel workers, got %d: %v", len(msgs), msgs)
	}
}

// TestEngine_RejectsParallelOverwrite enforces spec.md 4.2's rule that a
// parallel fan-out target channel must use an associative reducer.
func TestEngine_RejectsParallelOverwrite(t *testing.T) {
	ann := NewAnnotation(map[string]ChannelConfig{
		"status": {Reduce: Overwrite},
	})
	e, _ := NewEngine(ann)
	_ = e.AddNode("start", NodeFunc(func(ctx context.Context, s State, rt RuntimeConfig) NodeResult {
		return NodeResult{Route: FanOut("a", "b")}
	}))
	_ = e.AddNode("a", NodeFunc(func(ctx context.Context, s State, rt RuntimeConfig) NodeResult {
		return NodeResult{Delta: State{"status": "from-a"}, Route: Stop()}
	}))
	_ = e.AddNode("b", NodeFunc(func(ctx context.Context, s State, rt RuntimeConfig) NodeResult {
		return NodeResult{Delta: State{"status": "from-b"}, Route: Stop()}
	}))
	_ = e.StartAt("start")
	if err := e.Compile(); err != nil {
		t.Fatalf("compile: %v", err)
	}

	_, _, err := e.Run(context.Background(), "thread-overwrite", State{})
	if !errors.Is(err, ErrParallelOverwrite) {
		t.Fatalf("expected ErrParallelOverwrite, got %v", err)
	}
}

// TestEngine_InterruptAndResume reproduces spec.md S4: a worker raises an
// interrupt; the caller resumes with an answer and the run completes, with
// strictly-increasing checkpoint ids across both invocations.
func TestEngine_InterruptAndResume(t *testing.T) {
	mem := store.NewMemStore()
	e, _ := NewEngine(simpleAnnotation(), WithStore(mem))
	_ = e.AddNode("ask_human", NodeFunc(func(ctx context.Context, s State, rt RuntimeConfig) NodeResult {
		if resume, ok := s["__resume__"]; ok {
			return NodeResult{Delta: State{"status": resume.(string)}, Route: Stop()}
		}
		return NodeResult{Interrupt: &Interrupt{Question: "Approve $150 refund?", Priority: PriorityHigh}}
	}))
	_ = e.StartAt("ask_human")
	if err := e.Compile(); err != nil {
		t.Fatalf("compile: %v", err)
	}

	_, interrupt, err := e.Run(context.Background(), "thread-hitl", State{})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if interrupt == nil {
		t.Fatal("expected an interrupt on first run")
	}
	firstCheckpoint := interrupt.CheckpointID

	final, interrupt2, err := e.Run(context.Background(), "thread-hitl", State{}, WithResume("approved"))
	if err != nil {
		t.Fatalf("resume run: %v", err)
	}
	if interrupt2 != nil {
		t.Fatalf("unexpected second interrupt: %+v", interrupt2)
	}
	if final["status"] != "approved" {
		t.Fatalf("expected status 'approved', got %v", final["status"])
	}

	ids, err := mem.List(context.Background(), "root", "thread-hitl")
	if err != nil {
		t.Fatalf("list checkpoints: %v", err)
	}
	if len(ids) < 2 {
		t.Fatalf("expected at least 2 checkpoints, got %v", ids)
	}
	for i := 1; i < len(ids); i++ {
		if ids[i] <= ids[i-1] {
			t.Fatalf("expected strictly increasing checkpoint ids, got %v", ids)
		}
	}
	if firstCheckpoint <= 0 {
		t.Fatalf("expected positive first checkpoint id, got %d", firstCheckpoint)
	}
}

func TestEngine_MaxStepsExceeded(t *testing.T) {
	e, _ := NewEngine(simpleAnnotation(), WithMaxSteps(3))
	_ = e.AddNode("loop", NodeFunc(func(ctx context.Context, s State, rt RuntimeConfig) NodeResult {
		return NodeResult{Delta: State{"count": 1.0}, Route: Goto("loop")}
	}))
	_ = e.StartAt("loop")
	if err := e.Compile(); err != nil {
		t.Fatalf("compile: %v", err)
	}
	_, _, err := e.Run(context.Background(), "thread-loop", State{})
	if !errors.Is(err, ErrMaxStepsExceeded) {
		t.Fatalf("expected ErrMaxStepsExceeded, got %v", err)
	}
}

// TestEngine_ResumeIdempotence is spec.md 8 law 3: resuming a thread whose
// last checkpoint is terminal, with empty input, performs no further node
// executions and returns the terminal state.
func TestEngine_ResumeIdempotence(t *testing.T) {
	mem := store.NewMemStore()
	var executions int
	e, _ := NewEngine(simpleAnnotation(), WithStore(mem))
	_ = e.AddNode("once", NodeFunc(func(ctx context.Context, s State, rt RuntimeConfig) NodeResult {
		executions++
		return NodeResult{Delta: State{"count": 1.0}, Route: Stop()}
	}))
	_ = e.StartAt("once")
	if err := e.Compile(); err != nil {
		t.Fatalf("compile: %v", err)
	}

	if _, _, err := e.Run(context.Background(), "thread-done", State{}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if executions != 1 {
		t.Fatalf("expected exactly 1 execution, got %d", executions)
	}

	final, interrupt, err := e.Run(context.Background(), "thread-done", State{}, WithResume("ignored"))
	if err != nil {
		t.Fatalf("resume run: %v", err)
	}
	if interrupt != nil {
		t.Fatalf("unexpected interrupt on resume of a terminal thread: %+v", interrupt)
	}
	if executions != 1 {
		t.Fatalf("expected no additional node executions on resume, got %d total", executions)
	}
	if final["count"].(float64) != 1.0 {
		t.Fatalf("expected terminal state to be returned unchanged, got %v", final["count"])
	}
}

// TestEngine_NodeMetaAccumulatesIntoCostTracker verifies a node's
// NodeResult.Meta (distinct from Delta, which channel validation would
// otherwise reject) reaches the attached CostTracker.
func TestEngine_NodeMetaAccumulatesIntoCostTracker(t *testing.T) {
	tracker := NewCostTracker()
	e, _ := NewEngine(simpleAnnotation(), WithCostTracker(tracker))
	_ = e.AddNode("call_model", NodeFunc(func(ctx context.Context, s State, rt RuntimeConfig) NodeResult {
		return NodeResult{
			Delta: State{"count": 1.0},
			Route: Stop(),
			Meta:  map[string]interface{}{"tokens_in": int64(100), "tokens_out": int64(40), "cost_usd": 0.02},
		}
	}))
	_ = e.StartAt("call_model")
	if err := e.Compile(); err != nil {
		t.Fatalf("compile: %v", err)
	}

	if _, _, err := e.Run(context.Background(), "thread-cost", State{}); err != nil {
		t.Fatalf("run: %v", err)
	}

	summary := tracker.Snapshot()
	if summary.TokensIn != 100 || summary.TokensOut != 40 {
		t.Fatalf("expected tokens_in=100 tokens_out=40, got %+v", summary)
	}
	if summary.CostUSD != 0.02 {
		t.Fatalf("expected cost_usd=0.02, got %v", summary.CostUSD)
	}
	node, ok := summary.ByNode["call_model"]
	if !ok || node.Calls != 1 {
		t.Fatalf("expected one recorded call for call_model, got %+v", summary.ByNode)
	}
}
