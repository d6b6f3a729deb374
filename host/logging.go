// Package host implements the two capability-gated host function surfaces
// a guest world imports: logging and outbound HTTP. Both are ordinary
// runtime.Host implementations for Component Model guests, and additionally
// expose a raw wazero binding for core modules that carry no WIT metadata.
package host

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/hszk-dev/edge-runtime/engine"
	"github.com/hszk-dev/edge-runtime/permissions"
	"github.com/hszk-dev/edge-runtime/store"
)

// LoggingHost implements the guest:host/logging world. Registered once per
// Runtime/Module and shared across instances; the WorkerContext each call
// appends to is recovered from ctx via store.FromContext, so concurrent
// invocations of the same module never cross-contaminate each other's log
// buffers (SPEC_FULL.md §8.4).
type LoggingHost struct {
	logger *zap.Logger
	perms  permissions.Permissions
	source string
}

// NewLoggingHost creates a LoggingHost. source identifies the host process
// in the mirrored structured-log line (e.g. "cli", "worker-pool").
func NewLoggingHost(perms permissions.Permissions, source string) *LoggingHost {
	return &LoggingHost{
		logger: zap.NewNop(),
		perms:  perms,
		source: source,
	}
}

// WithLogger overrides the structured logger the host mirrors guest log
// lines to. Returns h for chaining.
func (h *LoggingHost) WithLogger(logger *zap.Logger) *LoggingHost {
	h.logger = logger
	return h
}

// Namespace implements runtime.Host.
func (h *LoggingHost) Namespace() string {
	return "guest:host/logging@0.1.0"
}

// Log appends a LogEntry to the invocation's WorkerContext (subject to the
// soft cap) and mirrors it to the structured logger. Returns nothing to the
// guest and never fails from the guest's perspective, per SPEC_FULL.md
// §4.5.
func (h *LoggingHost) Log(ctx context.Context, level int32, message string) {
	if !h.perms.LoggingEnabled() {
		return
	}
	wc := store.FromContext(ctx)
	lvl := store.LevelFromWire(level)
	if wc != nil {
		wc.AppendLog(lvl, message)
	}
	h.mirror(wc, lvl, message)
}

// Debug is sugar for Log(ctx, debug, message).
func (h *LoggingHost) Debug(ctx context.Context, message string) {
	h.Log(ctx, store.LevelDebug.ToWire(), message)
}

// Info is sugar for Log(ctx, info, message).
func (h *LoggingHost) Info(ctx context.Context, message string) {
	h.Log(ctx, store.LevelInfo.ToWire(), message)
}

// Warn is sugar for Log(ctx, warn, message).
func (h *LoggingHost) Warn(ctx context.Context, message string) {
	h.Log(ctx, store.LevelWarn.ToWire(), message)
}

// Error is sugar for Log(ctx, error, message).
func (h *LoggingHost) Error(ctx context.Context, message string) {
	h.Log(ctx, store.LevelError.ToWire(), message)
}

func (h *LoggingHost) mirror(wc *store.WorkerContext, level store.LogLevel, message string) {
	fields := []zap.Field{zap.String("source", h.source), zap.Bool("guest_log", true)}
	if wc != nil {
		fields = append(fields, zap.String("request_id", wc.RequestID))
	}
	switch level {
	case store.LevelDebug:
		h.logger.Debug(message, fields...)
	case store.LevelWarn:
		h.logger.Warn(message, fields...)
	case store.LevelError:
		h.logger.Error(message, fields...)
	default:
		h.logger.Info(message, fields...)
	}
}

// BindRaw registers the core-module ABI env.log(level, ptr, len) against
// mod, reading the UTF-8 message out of the guest's exported "memory" with
// bounds checks, matching the original implementation's memory-read
// protocol (SPEC_FULL.md §12). Used for WAT/core-module guests that carry
// no WIT metadata to drive canon-ABI lowering.
func (h *LoggingHost) BindRaw(mod *engine.WazeroModule) {
	fn := func(ctx context.Context, m api.Module, stack []uint64) {
		level := int32(uint32(stack[0]))
		ptr := uint32(stack[1])
		length := uint32(stack[2])

		mem := m.Memory()
		if mem == nil {
			h.logger.Warn("log: module has no memory export")
			return
		}
		data, ok := mem.Read(ptr, length)
		if !ok {
			h.logger.Warn("log: guest message out of bounds", zap.Uint32("ptr", ptr), zap.Uint32("len", length))
			return
		}
		h.Log(ctx, level, string(data))
	}
	mod.RegisterHostFuncRaw("env", "log",
		[]api.ValueType{api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32},
		nil,
		fn,
	)
}
