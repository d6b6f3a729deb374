package runner

import (
	"context"
	"strings"
	"testing"

	"github.com/hszk-dev/edge-runtime/config"
	"github.com/hszk-dev/edge-runtime/engine"
	"github.com/hszk-dev/edge-runtime/host"
	"github.com/hszk-dev/edge-runtime/permissions"
	"github.com/hszk-dev/edge-runtime/runtime"
	"github.com/hszk-dev/edge-runtime/store"
)

func loadAdder(t *testing.T) *runtime.Module {
	t.Helper()
	ctx := context.Background()
	rt, err := runtime.NewWithConfig(ctx, &engine.Config{EpochInterruption: true})
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}
	t.Cleanup(func() { rt.Close(ctx) })

	watSource := `(module
		(func (export "add") (param i32 i32) (result i32)
			local.get 0
			local.get 1
			i32.add
		)
		(func (export "spin") (param i32) (result i32)
			(local i32)
			local.get 0
			local.set 1
			(loop $l
				local.get 1
				i32.const 1
				i32.sub
				local.tee 1
				i32.const 0
				i32.gt_s
				br_if $l
			)
			local.get 1
		)
		(func $countdown (export "countdown") (param i32) (result i32)
			local.get 0
			i32.const 0
			i32.le_s
			if (result i32)
				i32.const 0
			else
				local.get 0
				i32.const 1
				i32.sub
				call $countdown
			end
		)
	)`
	witText := `
		add: func(a: s32, b: s32) -> s32
		spin: func(n: s32) -> s32
		countdown: func(n: s32) -> s32
	`
	mod, err := rt.LoadWAT(ctx, watSource, witText)
	if err != nil {
		t.Fatalf("LoadWAT: %v", err)
	}
	return mod
}

func TestRunCompletesSuccessfully(t *testing.T) {
	mod := loadAdder(t)
	wc := store.New("req-1", 1_000_000, true)
	execCfg := config.ExecutionConfig{MaxFuel: 1_000_000, TimeoutMS: 1000, FuelMetering: true}

	result, metrics := Run(context.Background(), mod, wc, execCfg, "add", int32(2), int32(3))
	if !result.Succeeded() {
		t.Fatalf("expected success, got state=%v trap=%+v", result.State, result.Trap)
	}
	if metrics.Duration <= 0 {
		t.Error("expected a positive duration")
	}
}

func TestRunTimesOut(t *testing.T) {
	mod := loadAdder(t)
	wc := store.New("req-2", 0, false)
	execCfg := config.ExecutionConfig{TimeoutMS: 1, FuelMetering: false}

	// spin(n) burns enough wall-clock time for the 1ms deadline to elapse
	// mid-call, exercising engine.Config.EpochInterruption's
	// WithCloseOnContextDone wiring rather than the fuel path.
	result, _ := Run(context.Background(), mod, wc, execCfg, "spin", int32(1_000_000_000))
	if result.State != StateTimeout && result.State != StateTrapped {
		t.Fatalf("expected timeout (or a trap surfacing the cancellation), got %v: %+v", result.State, result.Trap)
	}
	if result.Trap == nil {
		t.Fatal("expected a trap describing the cancellation")
	}
	if result.State == StateTimeout && result.Trap.Code != "execution-timeout" {
		t.Errorf("trap code = %q, want hyphenated \"execution-timeout\"", result.Trap.Code)
	}
	if strings.Contains(result.Trap.Code, "_") {
		t.Errorf("trap code %q must be hyphenated, not underscored", result.Trap.Code)
	}
}

func TestRunFuelExhausted(t *testing.T) {
	mod := loadAdder(t)
	wc := store.New("req-3", 2, true)
	execCfg := config.ExecutionConfig{MaxFuel: 2, TimeoutMS: 5000, FuelMetering: true}

	// Fuel is charged per function-call boundary (SPEC_FULL.md §9), so a
	// tight compute loop with no calls in it never exhausts the budget;
	// recursion gives the fuel listener something to count.
	result, metrics := Run(context.Background(), mod, wc, execCfg, "countdown", int32(50))
	if result.State != StateFuelExhausted {
		t.Fatalf("expected fuel-exhausted, got %v: %+v", result.State, result.Trap)
	}
	if metrics.FuelConsumed == 0 {
		t.Error("expected non-zero fuel consumption on exhaustion")
	}
	if result.Trap == nil || result.Trap.Code != "fuel-exhausted" {
		t.Errorf("trap code = %+v, want hyphenated \"fuel-exhausted\"", result.Trap)
	}
}

// TestRunLogsViaRawABI exercises the core-module logging scenario end to
// end: a WAT guest that imports env.log (no WIT metadata, so it can only
// be reached through LoggingHost.BindRaw's raw wazero binding, not the
// canon-lowered Bind path) logs a message that must land on the
// invocation's WorkerContext.
func TestRunLogsViaRawABI(t *testing.T) {
	ctx := context.Background()
	rt, err := runtime.NewWithConfig(ctx, &engine.Config{EpochInterruption: true})
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}
	defer rt.Close(ctx)

	perms := permissions.NewBuilder().WithLoggingEnabled(true).Build()
	logHost := host.NewLoggingHost(perms, "test")
	if err := rt.RegisterHost(logHost); err != nil {
		t.Fatalf("RegisterHost: %v", err)
	}

	watSource := `(module
		(import "env" "log" (func $log (param i32 i32 i32)))
		(memory (export "memory") 1)
		(data (i32.const 8) "Hello from Wasm")
		(func (export "greet")
			i32.const 1
			i32.const 8
			i32.const 15
			call $log
		)
	)`
	mod, err := rt.LoadWAT(ctx, watSource, "greet: func()")
	if err != nil {
		t.Fatalf("LoadWAT: %v", err)
	}

	wc := store.New("req-5", 1_000_000, true)
	execCfg := config.ExecutionConfig{MaxFuel: 1_000_000, TimeoutMS: 1000, FuelMetering: true}

	result, _ := Run(ctx, mod, wc, execCfg, "greet")
	if !result.Succeeded() {
		t.Fatalf("expected success, got state=%v trap=%+v", result.State, result.Trap)
	}

	logs := wc.Logs()
	if len(logs) != 1 {
		t.Fatalf("expected 1 log entry from env.log, got %d", len(logs))
	}
	if logs[0].Level != store.LevelInfo {
		t.Errorf("level = %v, want Info", logs[0].Level)
	}
	if logs[0].Message != "Hello from Wasm" {
		t.Errorf("message = %q, want %q", logs[0].Message, "Hello from Wasm")
	}
}

func TestRunMissingEntryPoint(t *testing.T) {
	mod := loadAdder(t)
	wc := store.New("req-4", 1_000_000, true)
	execCfg := config.ExecutionConfig{MaxFuel: 1_000_000, TimeoutMS: 1000, FuelMetering: true}

	result, _ := Run(context.Background(), mod, wc, execCfg, "does-not-exist")
	if result.Succeeded() {
		t.Fatal("expected a non-success result for a missing entry point")
	}
}
