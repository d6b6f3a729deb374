// Package wasmruntime provides the sandboxed execution substrate for
// edge-runtime, an edge serverless host for WebAssembly guest functions.
//
// It wraps wazero with fuel/epoch/memory governance, capability-gated host
// functions (logging, outbound HTTP), and pooled instantiation, on top of
// the Component Model and core-module loading machinery below it.
//
// # Architecture Overview
//
//	wasmruntime/         Root package with core Memory and Allocator interfaces
//	├── runtime/         High-level API for loading, compiling and running guests
//	├── engine/          Low-level wazero integration and canonical ABI
//	├── linker/          Component instantiation and import resolution
//	├── component/       Component binary parsing and validation
//	├── transcoder/      Canonical ABI encoding/decoding between Go and WASM
//	├── wasm/            Core WASM binary manipulation primitives
//	├── wat/             WAT text format to WASM binary compiler
//	├── asyncify/        Pure Go asyncify transform for async operations
//	├── errors/          Structured error types with an execution-outcome taxonomy
//	├── permissions/     Capability allow-lists (HTTP hosts, logging, request ceilings)
//	├── store/           Per-invocation WorkerContext: logs, fuel, HTTP counters
//	├── host/            Guest-facing host function implementations
//	├── runner/          Fuel/epoch-governed Run and bounded-concurrency Pool
//	├── metrics/         Prometheus recorder for invocation and HTTP outcomes
//	├── config/          YAML configuration loading and validation
//	└── cmd/             CLI (cmd/run) and long-running HTTP host (cmd/edge-runtime)
//
// # Quick Start
//
// Load and run a guest function through the fuel/epoch-governed runner:
//
//	rt, err := runtime.New(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	mod, err := rt.LoadComponent(ctx, wasmBytes)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	wc := store.New("req-1", execCfg.MaxFuel, execCfg.FuelMetering)
//	result, metrics := runner.Run(ctx, mod, wc, execCfg, "handle", "hello")
//	fmt.Println(result.State, result.Value, metrics.FuelConsumed)
//
// # Component Model Support
//
// The library supports the full WIT type system:
//
//   - Primitives: bool, u8-u64, s8-s64, f32, f64, char, string
//   - Compound: list<T>, option<T>, result<T, E>, tuple<...>
//   - Named: record, variant, enum, flags
//   - Resources: resource handles with lifecycle management
//
// # Host Functions
//
// Guest-facing capabilities are registered once per Runtime and gated by a
// Permissions set built from config.PermissionsConfig; see host.LoggingHost
// and host.HTTPHost.
//
// # Thread Safety
//
// Runtime and Module are safe for concurrent use. Instance is NOT thread-safe
// and should be used by a single goroutine, or access must be synchronized.
// runner.Pool bounds concurrent instantiation with a semaphore sized from
// EngineConfig.MaxInstances.
//
// # Memory Model
//
// WASM linear memory can only grow, never shrink. This is a WebAssembly
// specification limitation. When guest applications free memory, it remains
// allocated but available for reuse within the WASM instance. Instances are
// closed and discarded after each invocation rather than recycled, so this
// only bounds a single call's footprint against engine.Config.MemoryLimitPages.
package wasmruntime
