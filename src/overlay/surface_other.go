//go:build !windows

package overlay

// NativeSurface has no window on this platform: pages stay headless and the
// selection is driven by pointer input forwarded from the global hook, which
// the windows below the pointer receive as well.
func NativeSurface() Surface { return Headless{} }
