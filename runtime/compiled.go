package runtime

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"time"

	"github.com/hszk-dev/edge-runtime/errors"
)

// Variant distinguishes the two Wasm binary shapes a CompiledModule can
// wrap.
type Variant string

const (
	VariantCore      Variant = "core"
	VariantComponent Variant = "component"
)

// wasmMagic is the four-byte header every valid Wasm binary starts with,
// core module or component alike.
var wasmMagic = [4]byte{0x00, 0x61, 0x73, 0x6d} // \0asm

// CompiledModule is an opaque, content-addressed handle to a compiled
// guest binary: ContentHash is stable across identical input bytes, so
// two CompiledModules built from the same bytes are interchangeable
// (SPEC_FULL.md §4.2). It wraps a *Module for actual instantiation.
type CompiledModule struct {
	ContentHash string
	CompiledAt  time.Time
	Variant     Variant
	module      *Module
}

// Module returns the underlying Module for instantiation.
func (c *CompiledModule) Module() *Module {
	return c.module
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func validateWasmHeader(data []byte) error {
	if len(data) < 4 || [4]byte(data[:4]) != wasmMagic {
		return errors.CompilationFailed(nil, "input does not begin with the \\0asm magic header")
	}
	return nil
}

// FromBytes compiles a core module, per SPEC_FULL.md §4.2's from_bytes.
// Rejects input whose header check fails before compilation is attempted.
func FromBytes(ctx context.Context, rt *Runtime, data []byte) (*CompiledModule, error) {
	if err := validateWasmHeader(data); err != nil {
		return nil, err
	}
	mod, err := rt.LoadWASM(ctx, data, "")
	if err != nil {
		return nil, errors.CompilationFailed(err, "compile core module")
	}
	return &CompiledModule{
		ContentHash: hashBytes(data),
		CompiledAt:  time.Now(),
		Variant:     VariantCore,
		module:      mod,
	}, nil
}

// FromComponentBytes compiles a Component Model binary.
func FromComponentBytes(ctx context.Context, rt *Runtime, data []byte) (*CompiledModule, error) {
	if err := validateWasmHeader(data); err != nil {
		return nil, err
	}
	mod, err := rt.LoadComponent(ctx, data)
	if err != nil {
		return nil, errors.CompilationFailed(err, "compile component")
	}
	return &CompiledModule{
		ContentHash: hashBytes(data),
		CompiledAt:  time.Now(),
		Variant:     VariantComponent,
		module:      mod,
	}, nil
}

// FromWAT compiles a text-format core module, used by tests that have no
// binary fixture on hand.
func FromWAT(ctx context.Context, rt *Runtime, watText, witText string) (*CompiledModule, error) {
	mod, err := rt.LoadWAT(ctx, watText, witText)
	if err != nil {
		return nil, errors.CompilationFailed(err, "compile WAT text")
	}
	return &CompiledModule{
		ContentHash: hashBytes([]byte(watText)),
		CompiledAt:  time.Now(),
		Variant:     VariantCore,
		module:      mod,
	}, nil
}

// FromPrecompiled reads a Wasm binary from path and compiles it exactly as
// FromBytes does. wazero exposes no public API to deserialize an
// AOT-compiled artifact directly from bytes the caller supplies: its
// compilation cache (wired via engine.Config.CacheDir,
// wazero.NewCompilationCacheWithDir) transparently persists and reuses
// compiled artifacts across process restarts keyed by content hash, but
// only for modules compiled the ordinary way through Runtime.CompileModule.
// FromPrecompiled is therefore an alias for "compile this file, letting an
// already-warm CacheDir make it cheap" rather than a distinct
// deserialize-a-blob code path; SPEC_FULL.md §4.2's from_precompiled is
// satisfied at the CacheDir layer, not here.
func FromPrecompiled(ctx context.Context, rt *Runtime, path string) (*CompiledModule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.IoErr(err, "read precompiled artifact "+path)
	}
	return FromBytes(ctx, rt, data)
}
