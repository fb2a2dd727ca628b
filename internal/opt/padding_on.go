//go:build !slim_disable_padding && (slim_enable_padding || !(amd64 || 386 || arm || mips || mipsle || wasm))

package opt

import (
	"unsafe"
)

// Counter_ is a per-worker counter slot padded to a full cache line so
// neighbouring workers do not share one.
// Use: go build -tags=slim_enable_padding to force it on amd64.
type Counter_ struct {
	C uintptr // accessed atomically
	_ [(CacheLineSize_ - unsafe.Sizeof(struct {
		C uintptr
	}{})%CacheLineSize_) % CacheLineSize_]byte
}
