// Command edge-runtime is the long-running worker-pool host: it loads one
// guest binary and a YAML configuration file up front, then serves guest
// invocations over HTTP for the life of the process.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hszk-dev/edge-runtime/component"
	"github.com/hszk-dev/edge-runtime/config"
	"github.com/hszk-dev/edge-runtime/host"
	"github.com/hszk-dev/edge-runtime/metrics"
	"github.com/hszk-dev/edge-runtime/permissions"
	"github.com/hszk-dev/edge-runtime/runner"
	"github.com/hszk-dev/edge-runtime/runtime"
	"github.com/hszk-dev/edge-runtime/store"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "Path to the engine/execution/permissions config file")
		wasmPath   = flag.String("wasm", "", "Path to the component or core module to serve")
		addr       = flag.String("addr", ":8080", "HTTP listen address")
	)
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if *wasmPath == "" {
		logger.Fatal("missing -wasm")
	}

	if err := run(*configPath, *wasmPath, *addr, logger); err != nil {
		logger.Fatal("edge-runtime exited", zap.Error(err))
	}
}

func run(configPath, wasmPath, addr string, logger *zap.Logger) error {
	ctx := context.Background()

	file := config.DefaultFile()
	if _, statErr := os.Stat(configPath); statErr == nil {
		loaded, loadErr := config.Load(configPath)
		if loadErr != nil {
			return fmt.Errorf("load config: %w", loadErr)
		}
		file = loaded
	} else {
		logger.Warn("config file not found, using documented defaults", zap.String("path", configPath))
	}

	perms := permissions.NewBuilder().
		WithHTTPEnabled(file.Permissions.HTTPEnabled).
		WithMaxHTTPRequests(file.Permissions.MaxHTTPRequests).
		WithLoggingEnabled(file.Permissions.LoggingEnabled)
	for _, h := range file.Permissions.AllowedHTTPHosts {
		perms = perms.AllowHTTPHost(h)
	}
	permSet := perms.Build()

	rt, err := runtime.NewWithConfig(ctx, file.Engine.ToEngineConfig())
	if err != nil {
		return fmt.Errorf("create runtime: %w", err)
	}
	defer rt.Close(ctx)

	logHost := host.NewLoggingHost(permSet, "edge-runtime").WithLogger(logger)
	if err := rt.RegisterHost(logHost); err != nil {
		return fmt.Errorf("register logging host: %w", err)
	}
	httpHost := host.NewHTTPHost(permSet)
	if err := rt.RegisterHost(httpHost); err != nil {
		return fmt.Errorf("register http-outbound host: %w", err)
	}

	data, err := os.ReadFile(wasmPath)
	if err != nil {
		return fmt.Errorf("read wasm: %w", err)
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

	pool := runner.NewPool(module, file.Engine)
	registry := prometheus.NewRegistry()
	recorder := metrics.NewRecorder(registry)
	httpHost.WithObserver(recorder.ObserveHTTPOutcome)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	limiter := rate.NewLimiter(rate.Limit(file.Server.RequestsPerSecond), file.Server.Burst)
	mux.HandleFunc("/invoke", invokeHandler(pool, file.Execution, recorder, limiter, logger))

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("edge-runtime listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-sig:
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
	return nil
}

type invokeRequest struct {
	EntryPoint string `json:"entry_point"`
	Arg        string `json:"arg,omitempty"`
}

type invokeResponse struct {
	State        string `json:"state"`
	Value        any    `json:"value,omitempty"`
	TrapMessage  string `json:"trap_message,omitempty"`
	TrapCode     string `json:"trap_code,omitempty"`
	FuelConsumed uint64 `json:"fuel_consumed"`
	MemoryBytes  uint64 `json:"memory_used_bytes"`
	DurationMS   int64  `json:"duration_ms"`
	Logs         int    `json:"log_count"`
}

func invokeHandler(pool *runner.Pool, execCfg config.ExecutionConfig, recorder *metrics.Recorder, limiter *rate.Limiter, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		if !limiter.Allow() {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		var req invokeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		if req.EntryPoint == "" {
			http.Error(w, "entry_point is required", http.StatusBadRequest)
			return
		}

		requestID := uuid.NewString()
		wc := store.New(requestID, execCfg.MaxFuel, execCfg.FuelMetering)

		var args []any
		if req.Arg != "" {
			args = append(args, req.Arg)
		}

		result, m, err := pool.Run(r.Context(), wc, execCfg, req.EntryPoint, args...)
		recorder.InstancesInUse.Set(float64(pool.InUse()))
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		recorder.ObserveResult(result, m)

		resp := invokeResponse{
			State:        string(result.State),
			FuelConsumed: m.FuelConsumed,
			MemoryBytes:  m.MemoryUsedBytes,
			DurationMS:   m.Duration.Milliseconds(),
			Logs:         len(wc.Logs()),
		}
		if result.Trap != nil {
			resp.TrapMessage = result.Trap.Message
			resp.TrapCode = result.Trap.Code
		} else {
			resp.Value = result.Value
		}

		logger.Debug("invocation complete",
			zap.String("request_id", requestID),
			zap.String("state", resp.State),
			zap.Uint64("fuel_consumed", resp.FuelConsumed))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}
