package host

import (
	"context"
	"testing"

	"github.com/hszk-dev/edge-runtime/permissions"
	"github.com/hszk-dev/edge-runtime/store"
)

func TestLogAppendsToWorkerContext(t *testing.T) {
	perms := permissions.NewBuilder().WithLoggingEnabled(true).Build()
	h := NewLoggingHost(perms, "test")

	wc := store.New("req-1", 0, false)
	ctx := store.WithWorkerContext(context.Background(), wc)

	h.Log(ctx, store.LevelWarn.ToWire(), "disk is getting full")

	logs := wc.Logs()
	if len(logs) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(logs))
	}
	if logs[0].Level != store.LevelWarn {
		t.Errorf("level = %v, want Warn", logs[0].Level)
	}
	if logs[0].Message != "disk is getting full" {
		t.Errorf("message = %q", logs[0].Message)
	}
}

func TestLogNoopWhenLoggingDisabled(t *testing.T) {
	perms := permissions.None()
	h := NewLoggingHost(perms, "test")

	wc := store.New("req-2", 0, false)
	ctx := store.WithWorkerContext(context.Background(), wc)

	h.Info(ctx, "should not be recorded")

	if len(wc.Logs()) != 0 {
		t.Fatal("expected no log entries when logging_enabled is false")
	}
}

func TestLogWithoutWorkerContextDoesNotPanic(t *testing.T) {
	perms := permissions.NewBuilder().WithLoggingEnabled(true).Build()
	h := NewLoggingHost(perms, "test")

	h.Error(context.Background(), "no worker context bound")
}

func TestConvenienceLevelsMapCorrectly(t *testing.T) {
	perms := permissions.NewBuilder().WithLoggingEnabled(true).Build()
	h := NewLoggingHost(perms, "test")
	wc := store.New("req-3", 0, false)
	ctx := store.WithWorkerContext(context.Background(), wc)

	h.Debug(ctx, "d")
	h.Info(ctx, "i")
	h.Warn(ctx, "w")
	h.Error(ctx, "e")

	logs := wc.Logs()
	if len(logs) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(logs))
	}
	want := []store.LogLevel{store.LevelDebug, store.LevelInfo, store.LevelWarn, store.LevelError}
	for i, lvl := range want {
		if logs[i].Level != lvl {
			t.Errorf("entry %d level = %v, want %v", i, logs[i].Level, lvl)
		}
	}
}
