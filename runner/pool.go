package runner

import (
	"context"

	"github.com/hszk-dev/edge-runtime/config"
	"github.com/hszk-dev/edge-runtime/runtime"
	"github.com/hszk-dev/edge-runtime/store"
)

// Pool bounds the number of instances running concurrently against one
// compiled Module. wazero has no wasmtime-style pooling allocator to
// pre-reserve instance/memory/table slots, so the pool substitutes a
// counting semaphore: max_instances becomes the number of concurrent
// Run calls admitted rather than a pre-sized memory arena. Everything else
// about the invocation lifecycle (instantiate, call, close) is unchanged.
type Pool struct {
	module *runtime.Module
	slots  chan struct{}
	engCfg config.EngineConfig
}

// NewPool creates a Pool over module, admitting at most engCfg.MaxInstances
// concurrent invocations. A zero MaxInstances means unbounded, matching
// pooling_allocator: false.
func NewPool(module *runtime.Module, engCfg config.EngineConfig) *Pool {
	p := &Pool{module: module, engCfg: engCfg}
	if engCfg.PoolingAllocator && engCfg.MaxInstances > 0 {
		p.slots = make(chan struct{}, engCfg.MaxInstances)
	}
	return p
}

// Run acquires a pool slot (blocking if the pool is saturated, unless ctx
// is cancelled first), then delegates to Run with the given execution
// config and worker context.
func (p *Pool) Run(ctx context.Context, wc *store.WorkerContext, execCfg config.ExecutionConfig, entryPoint string, args ...any) (ExecutionResult, store.Metrics, error) {
	if p.slots != nil {
		select {
		case p.slots <- struct{}{}:
			defer func() { <-p.slots }()
		case <-ctx.Done():
			return ExecutionResult{}, store.Metrics{}, ctx.Err()
		}
	}

	result, metrics := Run(ctx, p.module, wc, execCfg, entryPoint, args...)
	return result, metrics, nil
}

// InUse returns the number of slots currently checked out, or 0 for an
// unbounded pool.
func (p *Pool) InUse() int {
	if p.slots == nil {
		return 0
	}
	return len(p.slots)
}

// Capacity returns the pool's configured concurrency ceiling, or 0 for
// unbounded.
func (p *Pool) Capacity() int {
	if p.slots == nil {
		return 0
	}
	return cap(p.slots)
}
