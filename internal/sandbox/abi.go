package sandbox

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/kline-runner/runner/pkg/errors"
)

// readGuestString allocates a bufCap-byte buffer in the guest via its
// exported malloc, calls fn(ptr, cap) expecting it to write a string into
// that buffer and return the number of bytes written, reads those bytes
// back out, then frees the buffer. Used for guest-to-host string returns
// like strategy_api_version, where a WASM function can't return a Go
// string directly.
func readGuestString(ctx context.Context, mod api.Module, malloc, free, fn api.Function, bufCap uint32) (string, error) {
	allocated, err := malloc.Call(ctx, uint64(bufCap))
	if err != nil {
		return "", err
	}

	ptr := uint32(allocated[0])
	defer free.Call(ctx, uint64(ptr), uint64(bufCap))

	results, err := fn.Call(ctx, uint64(ptr), uint64(bufCap))
	if err != nil {
		return "", err
	}

	if len(results) != 1 {
		return "", errors.New(errors.ErrCodeStrategyRuntimeError, "expected a single (length) result")
	}

	n := uint32(results[0])
	if n > bufCap {
		n = bufCap
	}

	buf, ok := mod.Memory().Read(ptr, n)
	if !ok {
		return "", errors.New(errors.ErrCodeStrategyRuntimeError, "failed to read guest memory")
	}

	return string(buf), nil
}

// writeGuestString allocates len(s) bytes in the guest via malloc, copies
// s into it, and returns the pointer plus a release func the caller must
// invoke (with the guest's free export) once it's done passing that
// pointer into further guest calls.
func writeGuestString(ctx context.Context, mod api.Module, malloc api.Function, s string) (ptr uint32, release func(ctx context.Context, free api.Function), err error) {
	allocated, err := malloc.Call(ctx, uint64(len(s)))
	if err != nil {
		return 0, nil, err
	}

	ptr = uint32(allocated[0])

	if !mod.Memory().Write(ptr, []byte(s)) {
		return 0, nil, errors.New(errors.ErrCodeStrategyRuntimeError, "failed to write guest memory")
	}

	size := uint32(len(s))
	release = func(ctx context.Context, free api.Function) {
		_, _ = free.Call(ctx, uint64(ptr), uint64(size))
	}

	return ptr, release, nil
}
