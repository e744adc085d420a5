//go:build !release

package pmm

// DebugChecks enables double-free detection and free-page poisoning. A
// release build tags out this cost by building with -tags release.
const DebugChecks = true
