//go:build release

package pmm

const DebugChecks = false
