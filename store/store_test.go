package store

import "testing"

func TestAppendLogAndCap(t *testing.T) {
	ctx := New("req-1", 1000, true)
	for i := 0; i < LogCap+5; i++ {
		ctx.AppendLog(LevelInfo, "hello")
	}
	logs := ctx.Logs()
	if len(logs) != LogCap {
		t.Fatalf("expected %d logs retained, got %d", LogCap, len(logs))
	}
	m := ctx.FinalMetrics(0, 0)
	if m.LogsDropped != 5 {
		t.Fatalf("expected 5 dropped logs, got %d", m.LogsDropped)
	}
}

func TestCalculateFuelConsumed(t *testing.T) {
	ctx := New("req-2", 1_000_000, true)
	if got := ctx.CalculateFuelConsumed(400_000); got != 600_000 {
		t.Fatalf("fuel consumed = %d, want 600000", got)
	}
	if got := ctx.CalculateFuelConsumed(0); got != 1_000_000 {
		t.Fatalf("fully exhausted fuel consumed = %d, want 1000000", got)
	}
}

func TestCalculateFuelConsumedMeteringOff(t *testing.T) {
	ctx := New("req-3", 1_000_000, false)
	if got := ctx.CalculateFuelConsumed(0); got != 0 {
		t.Fatalf("expected 0 with metering off, got %d", got)
	}
}

func TestLevelWireRoundTrip(t *testing.T) {
	for _, l := range []LogLevel{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		if got := LevelFromWire(l.ToWire()); got != l {
			t.Fatalf("round trip %v -> %d -> %v", l, l.ToWire(), got)
		}
	}
	if LevelFromWire(99) != LevelInfo {
		t.Fatal("unrecognized wire value should default to Info")
	}
}
