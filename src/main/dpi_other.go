//go:build !windows

package main

// enableDPIAwareness is a no-op; other platforms report physical pixels already.
func enableDPIAwareness() {}
