package runtime

import (
	"context"
	"testing"
)

func TestFromBytesRejectsBadHeader(t *testing.T) {
	ctx := context.Background()
	rt, err := New(ctx)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer rt.Close(ctx)

	if _, err := FromBytes(ctx, rt, []byte("not a wasm module")); err == nil {
		t.Fatal("expected an error for input missing the \\0asm header")
	}
}

func TestFromWATStableHash(t *testing.T) {
	ctx := context.Background()
	rt, err := New(ctx)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer rt.Close(ctx)

	watSource := `(module (func (export "noop")))`

	a, err := FromWAT(ctx, rt, watSource, "noop: func()")
	if err != nil {
		t.Fatalf("FromWAT: %v", err)
	}
	b, err := FromWAT(ctx, rt, watSource, "noop: func()")
	if err != nil {
		t.Fatalf("FromWAT: %v", err)
	}
	if a.ContentHash != b.ContentHash {
		t.Errorf("identical input should hash the same: %q vs %q", a.ContentHash, b.ContentHash)
	}
	if a.Variant != VariantCore {
		t.Errorf("variant = %v, want core", a.Variant)
	}
}
