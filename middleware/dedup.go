package middleware

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/TVScoundrel/agentforge-sub003/graph"
	"golang.org/x/sync/singleflight"
)

// DedupKey computes the cache key for a tool-call-shaped node invocation:
// tool name plus canonicalized arguments (spec.md 4.3: "compute a cache
// key from (tool_name, canonicalized_arguments)"). Canonicalization here
// is "marshal a key-sorted JSON representation," which is sufficient for
// map[string]any arguments produced by a ChatModel's ToolCall.Input.
func DedupKey(toolName string, args map[string]interface{}) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := make([]interface{}, 0, len(keys)*2)
	for _, k := range keys {
		ordered = append(ordered, k, args[k])
	}
	b, _ := json.Marshal(ordered)
	return toolName + ":" + string(b)
}

// Deduplicator caches completed results by key for the lifetime of one
// graph invocation (spec.md 4.3: "Cache lifetime = one graph invocation").
// A fresh Deduplicator must be constructed per run; sharing one across
// runs would leak results across threads, violating "per-run and
// single-owner" (spec.md 5).
type Deduplicator struct {
	group singleflight.Group

	mu    sync.RWMutex
	cache map[string]graph.NodeResult
}

// NewDeduplicator constructs an empty, per-run Deduplicator.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{cache: make(map[string]graph.NodeResult)}
}

// Dedup wraps node so that, given a key function producing a cache key
// from state, a repeated key returns the prior completed result (success
// or failure alike — spec.md 4.3: "Applies to both success and failure
// outcomes, to prevent thrash on deterministic failures") without
// re-invoking node. singleflight.Group additionally collapses concurrent
// callers sharing a key into a single in-flight execution.
func (d *Deduplicator) Dedup(keyFn func(state graph.State) string) Middleware {
	return func(node graph.Node) graph.Node {
		return graph.NodeFunc(func(ctx context.Context, state graph.State, rt graph.RuntimeConfig) graph.NodeResult {
			key := keyFn(state)

			d.mu.RLock()
			cached, hit := d.cache[key]
			d.mu.RUnlock()
			if hit {
				return cached
			}

			v, err, _ := d.group.Do(key, func() (interface{}, error) {
				res := node.Run(ctx, state, rt)
				if res.Interrupt == nil {
					d.mu.Lock()
					d.cache[key] = res
					d.mu.Unlock()
				}
				return res, nil
			})
			if err != nil {
				return graph.NodeResult{Err: err}
			}
			return v.(graph.NodeResult)
		})
	}
}
