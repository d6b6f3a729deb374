// Command run loads a worker component or core module and invokes a single
// exported function, printing the result and any captured guest log lines.
// It is meant for local inspection of a bundle before it is deployed to a
// worker pool; the long-running host is cmd/edge-runtime.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/hszk-dev/edge-runtime/component"
	"github.com/hszk-dev/edge-runtime/host"
	"github.com/hszk-dev/edge-runtime/permissions"
	"github.com/hszk-dev/edge-runtime/runtime"
	"github.com/hszk-dev/edge-runtime/store"
)

func main() {
	var (
		wasmFile = flag.String("wasm", "", "Path to component or core module wasm file")
		funcName = flag.String("func", "", "Function to call (optional)")
		strArg   = flag.String("arg", "", "String argument to pass")
		list     = flag.Bool("list", false, "List exported functions and exit")
		allowNet = flag.String("allow-net", "", "Comma-separated outbound HTTP host allowlist (supports *.suffix and *)")
	)
	flag.Parse()

	if *wasmFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: run -wasm <file.wasm> [-func name] [-arg string]")
		fmt.Fprintln(os.Stderr, "       run -wasm <file.wasm> -list")
		os.Exit(1)
	}

	if err := run(*wasmFile, *funcName, *strArg, *allowNet, *list); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(wasmFile, funcName, strArg, allowNet string, listOnly bool) error {
	ctx := context.Background()

	data, err := os.ReadFile(wasmFile)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	var exportedFuncs []string
	if component.IsComponent(data) {
		validated, err := component.DecodeAndValidate(data)
		if err != nil {
			return fmt.Errorf("decode: %w", err)
		}

		fmt.Printf("Component: %s\n", wasmFile)
		fmt.Printf("Core modules: %d\n", len(validated.Raw.CoreModules))
		fmt.Printf("Imports: %d\n", len(validated.Raw.Imports))
		fmt.Printf("Exports: %d\n", len(validated.Raw.Exports))

		resolver := component.NewTypeResolverWithInstances(
			validated.Raw.TypeIndexSpace,
			validated.Raw.InstanceTypes,
		)
		reg, err := component.NewCanonRegistry(validated.Raw, resolver)
		if err != nil {
			return fmt.Errorf("registry: %w", err)
		}

		fmt.Printf("\nExported functions:\n")
		for name, lift := range reg.Lifts {
			exportedFuncs = append(exportedFuncs, name)
			var params []string
			for i, p := range lift.Params {
				pname := fmt.Sprintf("arg%d", i)
				if i < len(lift.ParamNames) && lift.ParamNames[i] != "" {
					pname = lift.ParamNames[i]
				}
				params = append(params, pname+": "+fmt.Sprintf("%T", p))
			}
			result := ""
			if len(lift.Results) > 0 {
				result = " -> " + fmt.Sprintf("%T", lift.Results[0])
			}
			fmt.Printf("  %s(%s)%s\n", name, strings.Join(params, ", "), result)
		}
	} else {
		fmt.Printf("Core module: %s\n", wasmFile)
	}

	if listOnly {
		return nil
	}

	rt, err := runtime.New(ctx)
	if err != nil {
		return fmt.Errorf("create runtime: %w", err)
	}
	defer rt.Close(ctx)

	b := permissions.NewBuilder().WithLoggingEnabled(true)
	if allowNet != "" {
		b = b.WithHTTPEnabled(true).WithMaxHTTPRequests(permissions.All().MaxHTTPRequests())
		for _, h := range strings.Split(allowNet, ",") {
			b = b.AllowHTTPHost(strings.TrimSpace(h))
		}
	}
	perms := b.Build()

	logHost := host.NewLoggingHost(perms, "cli")
	if err := rt.RegisterHost(logHost); err != nil {
		return fmt.Errorf("register logging host: %w", err)
	}
	httpHost := host.NewHTTPHost(perms)
	if err := rt.RegisterHost(httpHost); err != nil {
		return fmt.Errorf("register http-outbound host: %w", err)
	}

	var module *runtime.Module
	if component.IsComponent(data) {
		module, err = rt.LoadComponent(ctx, data)
	} else {
		module, err = rt.LoadWASM(ctx, data, "")
	}
	if err != nil {
		return fmt.Errorf("load module: %w", err)
	}

	fmt.Printf("\nInstantiating...\n")
	instance, err := module.Instantiate(ctx)
	if err != nil {
		return fmt.Errorf("instantiate: %w", err)
	}
	defer instance.Close(ctx)

	if funcName == "" {
		for _, name := range []string{"_start", "run", "main", "handle"} {
			for _, f := range exportedFuncs {
				if f == name {
					funcName = name
					break
				}
			}
			if funcName != "" {
				break
			}
		}
		if funcName == "" && len(exportedFuncs) == 1 {
			funcName = exportedFuncs[0]
		}
		if funcName == "" {
			fmt.Printf("\nNo function specified and no common entry point found.\n")
			fmt.Printf("Use -func to specify a function to call.\n")
			return nil
		}
	}

	wc := store.New("cli-run", 0, false)
	callCtx := store.WithWorkerContext(ctx, wc)

	fmt.Printf("\nCalling %s", funcName)
	var result any
	if strArg != "" {
		fmt.Printf("(%q)...\n", strArg)
		result, err = instance.Call(callCtx, funcName, strArg)
	} else {
		fmt.Printf("()...\n")
		result, err = instance.Call(callCtx, funcName)
	}
	if err != nil {
		return fmt.Errorf("call %s: %w", funcName, err)
	}

	fmt.Printf("Result: %v\n", result)

	for _, entry := range wc.Logs() {
		fmt.Printf("[guest %s] %s\n", entry.Level, entry.Message)
	}

	return nil
}
