//go:build slim_disable_padding || ((amd64 || 386 || arm || mips || mipsle || wasm) && !slim_enable_padding)

package opt

// Counter_ is a per-worker counter slot.
// Padding is disabled by default for amd64 and 32-bit architectures, or
// force-disabled via the slim_disable_padding build tag.
type Counter_ struct {
	C uintptr // accessed atomically
}
