package screenshot

import "time"

// Filename returns the default name for a capture taken at t,
// e.g. screenshot_2024-01-01_12-00-00.png. The timestamp is UTC.
func Filename(t time.Time) string {
	return "screenshot_" + t.UTC().Format("2006-01-02_15-04-05") + ".png"
}
