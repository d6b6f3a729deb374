// Package config holds the typed configuration records consumed by the
// engine, the per-invocation executor, and the outbound capability hosts,
// plus a YAML loader that applies documented defaults for missing keys.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hszk-dev/edge-runtime/engine"
	"github.com/hszk-dev/edge-runtime/errors"
)

// EngineConfig holds knobs fixed at engine construction.
type EngineConfig struct {
	PoolingAllocator     bool   `yaml:"pooling_allocator"`
	MaxInstances         uint32 `yaml:"max_instances"`
	InstanceMemoryMB     uint32 `yaml:"instance_memory_mb"`
	CacheCompiledModules bool   `yaml:"cache_compiled_modules"`
	CacheDir             string `yaml:"cache_dir"`
	EpochInterruption    bool   `yaml:"epoch_interruption"`
	EpochTickMS          uint64 `yaml:"epoch_tick_ms"`
}

// ExecutionConfig holds knobs applied to a single invocation.
type ExecutionConfig struct {
	MaxFuel      uint64 `yaml:"max_fuel"`
	TimeoutMS    uint64 `yaml:"timeout_ms"`
	MaxMemoryMB  uint32 `yaml:"max_memory_mb"`
	FuelMetering bool   `yaml:"fuel_metering"`
}

// Timeout returns the invocation deadline as a time.Duration.
func (c ExecutionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// ToEngineConfig maps the wire-level engine section onto the wazero-backed
// engine.Config. pooling_allocator and max_instances have no wazero
// equivalent (wazero instances are ordinary Go-heap allocations rather than
// a pre-sized pool); the runner package's Pool honors max_instances by
// bounding concurrent instantiations instead of the engine construction
// itself.
func (c EngineConfig) ToEngineConfig() *engine.Config {
	cfg := &engine.Config{
		MemoryLimitPages:  memoryMBToPages(c.InstanceMemoryMB),
		EpochInterruption: c.EpochInterruption,
	}
	if c.CacheCompiledModules {
		cfg.CacheDir = c.CacheDir
	}
	return cfg
}

// memoryMBToPages converts a megabyte ceiling to wazero's 64KiB page unit.
func memoryMBToPages(mb uint32) uint32 {
	return mb * 16
}

// PermissionsConfig is the wire shape for a capability set, decoded
// separately from permissions.Permissions so the config package does not
// need to depend on permissions' construction internals.
type PermissionsConfig struct {
	AllowedHTTPHosts []string `yaml:"allowed_http_hosts"`
	HTTPEnabled      bool     `yaml:"http_enabled"`
	MaxHTTPRequests  uint32   `yaml:"max_http_requests"`
	LoggingEnabled   bool     `yaml:"logging_enabled"`
}

// ServerConfig holds the admission-control knobs for cmd/edge-runtime's
// HTTP front door, independent of any single guest's Permissions.
type ServerConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// File is the top-level structured record loaded from an external source.
// Unknown keys are ignored by yaml.v3; missing keys retain the values set
// by DefaultFile before the document is unmarshalled over it.
type File struct {
	Engine      EngineConfig      `yaml:"engine"`
	Execution   ExecutionConfig   `yaml:"execution"`
	Permissions PermissionsConfig `yaml:"permissions"`
	Server      ServerConfig      `yaml:"server"`
}

// DefaultEngineConfig returns the documented defaults from SPEC_FULL.md §3.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		PoolingAllocator:     true,
		MaxInstances:         1000,
		InstanceMemoryMB:     64,
		CacheCompiledModules: true,
		CacheDir:             "./cache",
		EpochInterruption:    true,
		EpochTickMS:          1,
	}
}

// DefaultExecutionConfig returns the documented defaults from SPEC_FULL.md §3.
func DefaultExecutionConfig() ExecutionConfig {
	return ExecutionConfig{
		MaxFuel:      10_000_000,
		TimeoutMS:    100,
		MaxMemoryMB:  128,
		FuelMetering: true,
	}
}

// DefaultFile returns a File pre-populated with documented defaults and a
// deny-everything permission set, ready to be overridden by Load.
func DefaultFile() File {
	return File{
		Engine:    DefaultEngineConfig(),
		Execution: DefaultExecutionConfig(),
		Permissions: PermissionsConfig{
			AllowedHTTPHosts: nil,
			HTTPEnabled:      false,
			MaxHTTPRequests:  0,
			LoggingEnabled:   true,
		},
		Server: ServerConfig{
			RequestsPerSecond: 500,
			Burst:             100,
		},
	}
}

// Load reads and decodes a YAML configuration file, layering it over
// DefaultFile so that keys the document omits keep their documented
// defaults.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, errors.IoErr(err, "read config file "+path)
	}
	return Parse(data)
}

// Parse decodes a YAML document into a File, starting from DefaultFile.
func Parse(data []byte) (File, error) {
	f := DefaultFile()
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, errors.Wrap(errors.PhaseValidate, errors.KindInvalidData, err, "decode config yaml")
	}
	if err := f.Validate(); err != nil {
		return File{}, err
	}
	return f, nil
}

// Validate checks the pool/engine parameters for internal consistency,
// matching Engine.new's InvalidConfig failure mode in SPEC_FULL.md §4.1.
func (f File) Validate() error {
	if f.Engine.PoolingAllocator && f.Engine.MaxInstances == 0 {
		return errors.InvalidConfig("pooling_allocator enabled with max_instances == 0")
	}
	if f.Engine.InstanceMemoryMB == 0 {
		return errors.InvalidConfig("instance_memory_mb must be > 0")
	}
	if f.Execution.MaxMemoryMB > 0 && f.Engine.InstanceMemoryMB > 0 &&
		f.Execution.MaxMemoryMB > f.Engine.InstanceMemoryMB {
		return errors.InvalidConfig("execution.max_memory_mb exceeds engine.instance_memory_mb pool ceiling")
	}
	if f.Engine.EpochInterruption && f.Engine.EpochTickMS == 0 {
		return errors.InvalidConfig("epoch_interruption enabled with epoch_tick_ms == 0")
	}
	return nil
}
