//go:build !debug

package pool

// debugLog is a no-op unless built with -tags debug.
func debugLog(format string, args ...interface{}) {}
