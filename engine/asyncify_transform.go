package engine

import "github.com/hszk-dev/edge-runtime/asyncify"

// IsAsyncified checks if a WASM module has been asyncified.
var IsAsyncified = asyncify.IsAsyncified
