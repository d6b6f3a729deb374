// Package runner drives one guest invocation end to end: instantiate,
// call the entry point under a fuel and wall-clock budget, and translate
// whatever comes back into an ExecutionResult plus Metrics. It is the Go
// analogue of a cooperative-scheduler task in the original design — here a
// goroutine bounded by a context deadline and an atomic fuel counter, since
// wazero has no native fuel or epoch primitive to lean on.
package runner

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"

	"github.com/hszk-dev/edge-runtime/config"
	edgeerrors "github.com/hszk-dev/edge-runtime/errors"
	"github.com/hszk-dev/edge-runtime/runtime"
	"github.com/hszk-dev/edge-runtime/store"
)

// State names a point in the invocation lifecycle (SPEC_FULL.md §4.6).
type State string

const (
	StatePending        State = "pending"
	StateInstantiating  State = "instantiating"
	StateRunning        State = "running"
	StateCompleted      State = "completed"
	StateTrapped        State = "trapped"
	StateFuelExhausted  State = "fuel-exhausted"
	StateTimeout        State = "timeout"
	StateMemoryExceeded State = "memory-exceeded"
)

// Trap describes a non-success outcome.
type Trap struct {
	Message string
	Code    string
}

// ExecutionResult is the sum type returned by Run: either a Value on
// success, or a Trap describing why the call did not complete.
type ExecutionResult struct {
	State State
	Value any
	Trap  *Trap
}

// Succeeded reports whether the invocation reached StateCompleted.
func (r ExecutionResult) Succeeded() bool {
	return r.State == StateCompleted
}

// fuelBudget tracks remaining fuel across the function-call boundaries a
// FunctionListenerFactory observes and cancels the run's context the
// instant it is exhausted. Charging happens per call rather than per
// instruction: a tight compute loop with no calls in it is not observable
// this way, a known limitation of building fuel metering on top of
// wazero's listener hook instead of a native interpreter counter.
type fuelBudget struct {
	remaining atomic.Int64
	exhausted atomic.Bool
	cancel    context.CancelFunc
}

func newFuelBudget(initial uint64, cancel context.CancelFunc) *fuelBudget {
	b := &fuelBudget{cancel: cancel}
	b.remaining.Store(int64(initial))
	return b
}

func (b *fuelBudget) charge(cost int64) {
	if b.remaining.Add(-cost) <= 0 {
		if b.exhausted.CompareAndSwap(false, true) {
			b.cancel()
		}
	}
}

func (b *fuelBudget) consumed(initial uint64) uint64 {
	r := b.remaining.Load()
	if r < 0 {
		return initial
	}
	if uint64(r) > initial {
		return 0
	}
	return initial - uint64(r)
}

// perCallFuelCost approximates the fuel a single exported or imported call
// boundary consumes. There is no native per-instruction fuel signal
// available through wazero's public API, so every function entry is
// charged a flat cost; callers that need instruction-accurate fuel should
// look at wazero's interpreter fork instead.
const perCallFuelCost = 1

type fuelListenerFactory struct {
	budget *fuelBudget
}

func (f *fuelListenerFactory) NewFunctionListener(_ api.FunctionDefinition) experimental.FunctionListener {
	return fuelFunctionListener{budget: f.budget}
}

type fuelFunctionListener struct {
	budget *fuelBudget
}

func (l fuelFunctionListener) Before(ctx context.Context, _ api.Module, _ api.FunctionDefinition, _ []uint64, _ experimental.StackIterator) context.Context {
	l.budget.charge(perCallFuelCost)
	return ctx
}

func (l fuelFunctionListener) After(context.Context, api.Module, api.FunctionDefinition, []uint64) {}

// Run instantiates module, calls entryPoint under the fuel and timeout
// budget described by execCfg, and returns the classified outcome along
// with the invocation's final Metrics. args are passed through to the
// call unchanged; entry points that take no arguments should pass none.
func Run(ctx context.Context, module *runtime.Module, wc *store.WorkerContext, execCfg config.ExecutionConfig, entryPoint string, args ...any) (ExecutionResult, store.Metrics) {
	runCtx, cancel := context.WithTimeout(ctx, execCfg.Timeout())
	defer cancel()

	var budget *fuelBudget
	var instCtx context.Context = runCtx
	if execCfg.FuelMetering {
		budget = newFuelBudget(execCfg.MaxFuel, cancel)
		instCtx = experimental.WithFunctionListenerFactory(runCtx, &fuelListenerFactory{budget: budget})
	}

	instance, err := module.Instantiate(instCtx)
	if err != nil {
		return classifyInstantiateError(err), wc.FinalMetrics(0, 0)
	}
	defer instance.Close(context.Background())

	callCtx := store.WithWorkerContext(instCtx, wc)
	value, callErr := instance.Call(callCtx, entryPoint, args...)

	memUsed := instance.MemoryUsedBytes()
	var fuelConsumed uint64
	if budget != nil {
		fuelConsumed = budget.consumed(execCfg.MaxFuel)
	}
	metrics := wc.FinalMetrics(wc.CalculateFuelConsumed(execCfg.MaxFuel-fuelConsumed), memUsed)

	if callErr == nil {
		return ExecutionResult{State: StateCompleted, Value: value}, metrics
	}

	if budget != nil && budget.exhausted.Load() {
		return ExecutionResult{
			State: StateFuelExhausted,
			Trap:  &Trap{Message: callErr.Error(), Code: edgeerrors.FuelExhausted(execCfg.MaxFuel).TrapCode()},
		}, metrics
	}
	if runCtx.Err() == context.DeadlineExceeded {
		return ExecutionResult{
			State: StateTimeout,
			Trap:  &Trap{Message: callErr.Error(), Code: edgeerrors.ExecutionTimeout(execCfg.TimeoutMS).TrapCode()},
		}, metrics
	}

	return classifyCallError(callErr), metrics
}

func classifyInstantiateError(err error) ExecutionResult {
	msg := err.Error()
	if strings.Contains(msg, "not found") || strings.Contains(msg, "unknown import") {
		return ExecutionResult{
			State: StateTrapped,
			Trap:  &Trap{Message: msg, Code: edgeerrors.InvalidConfig(msg).TrapCode()},
		}
	}
	return ExecutionResult{
		State: StateTrapped,
		Trap:  &Trap{Message: msg, Code: edgeerrors.CompilationFailed(err, msg).TrapCode()},
	}
}

// classifyCallError maps a wazero call error onto the trap taxonomy. wazero
// does not expose a typed trap-reason API on the public Call path, so the
// classification inspects the error text for the substrings wazero's
// interpreter and compiler backends are documented to produce.
func classifyCallError(err error) ExecutionResult {
	msg := err.Error()
	lower := strings.ToLower(msg)

	switch {
	case strings.Contains(lower, "out of bounds memory access"):
		return trapped(msg, edgeerrors.KindMemoryLimitExceeded)
	case strings.Contains(lower, "unreachable"):
		return trapped(msg, edgeerrors.KindTrap)
	case strings.Contains(lower, "function not found") || strings.Contains(lower, "not exported"):
		return trapped(msg, edgeerrors.KindModuleNotFound)
	case strings.Contains(lower, "context canceled") || strings.Contains(lower, "context deadline"):
		return trapped(msg, edgeerrors.KindExecutionTimeout)
	default:
		return trapped(msg, edgeerrors.KindTrap)
	}
}

func trapped(msg string, kind edgeerrors.Kind) ExecutionResult {
	code := strings.ReplaceAll(string(kind), "_", "-")
	state := StateTrapped
	if kind == edgeerrors.KindExecutionTimeout {
		state = StateTimeout
	}
	if kind == edgeerrors.KindMemoryLimitExceeded {
		state = StateMemoryExceeded
	}
	if kind == edgeerrors.KindModuleNotFound {
		return ExecutionResult{State: StateTrapped, Trap: &Trap{Message: msg, Code: code}}
	}
	return ExecutionResult{State: state, Trap: &Trap{Message: msg, Code: code}}
}
