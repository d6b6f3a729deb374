package config

import "testing"

func TestParseAppliesDefaultsForMissingKeys(t *testing.T) {
	f, err := Parse([]byte(`
execution:
  timeout_ms: 250
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.Execution.TimeoutMS != 250 {
		t.Errorf("timeout_ms = %d, want 250", f.Execution.TimeoutMS)
	}
	if f.Execution.MaxFuel != DefaultExecutionConfig().MaxFuel {
		t.Errorf("max_fuel should keep its default, got %d", f.Execution.MaxFuel)
	}
	if f.Engine.MaxInstances != DefaultEngineConfig().MaxInstances {
		t.Errorf("engine section should be untouched by the execution-only document")
	}
}

func TestValidateRejectsInconsistentPool(t *testing.T) {
	f := DefaultFile()
	f.Engine.PoolingAllocator = true
	f.Engine.MaxInstances = 0
	if err := f.Validate(); err == nil {
		t.Fatal("expected an error for pooling_allocator with max_instances == 0")
	}
}

func TestValidateRejectsZeroInstanceMemory(t *testing.T) {
	f := DefaultFile()
	f.Engine.InstanceMemoryMB = 0
	if err := f.Validate(); err == nil {
		t.Fatal("expected an error for instance_memory_mb == 0")
	}
}

func TestValidateRejectsExecutionCeilingAboveEngineCeiling(t *testing.T) {
	f := DefaultFile()
	f.Engine.InstanceMemoryMB = 64
	f.Execution.MaxMemoryMB = 128
	if err := f.Validate(); err == nil {
		t.Fatal("expected an error when execution.max_memory_mb exceeds engine.instance_memory_mb")
	}
}

func TestValidateRejectsEpochWithoutTick(t *testing.T) {
	f := DefaultFile()
	f.Engine.EpochInterruption = true
	f.Engine.EpochTickMS = 0
	if err := f.Validate(); err == nil {
		t.Fatal("expected an error for epoch_interruption with epoch_tick_ms == 0")
	}
}

func TestDefaultFileIsValid(t *testing.T) {
	if err := DefaultFile().Validate(); err != nil {
		t.Fatalf("documented defaults should validate cleanly: %v", err)
	}
}

func TestToEngineConfigConvertsMemoryCeiling(t *testing.T) {
	ec := EngineConfig{InstanceMemoryMB: 64, CacheCompiledModules: true, CacheDir: "/tmp/cache", EpochInterruption: true}
	cfg := ec.ToEngineConfig()
	if cfg.MemoryLimitPages != 64*16 {
		t.Errorf("MemoryLimitPages = %d, want %d", cfg.MemoryLimitPages, 64*16)
	}
	if cfg.CacheDir != "/tmp/cache" {
		t.Errorf("CacheDir = %q, want /tmp/cache", cfg.CacheDir)
	}
	if !cfg.EpochInterruption {
		t.Error("EpochInterruption should propagate")
	}
}
