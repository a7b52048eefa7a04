// Package desktop adapts the host interfaces to a local desktop session:
// displays stand in for tabs, the screen grabber is the compositor, and a
// downloads directory plays the download manager.
package desktop

import (
	"context"
	"fmt"
	"image"
	"log"

	"snipping-tool/src/host"
	"snipping-tool/src/screenshot"
)

// DisplayURL is the pseudo-URL of display index.
func DisplayURL(index int) string {
	return fmt.Sprintf("screen://%d", index)
}

// Tabs reports the primary display as the active tab. The viewport is the
// display bounds, the space the hook and the capture surface report the
// pointer in, so the ratio to the captured image can be derived per capture.
type Tabs struct {
	// DevicePixelRatio overrides the derived ratio when positive.
	DevicePixelRatio float64
	Displays         func() int                               // defaults to screenshot.NumDisplays
	Bounds           func(index int) (image.Rectangle, error) // defaults to screenshot.GetDisplayBounds
}

func (t Tabs) ActiveTab(ctx context.Context) (host.Tab, error) {
	count := screenshot.NumDisplays
	if t.Displays != nil {
		count = t.Displays
	}
	if count() < 1 {
		return host.Tab{}, host.ErrNoActiveTab
	}

	bounds := screenshot.GetDisplayBounds
	if t.Bounds != nil {
		bounds = t.Bounds
	}
	tab := host.Tab{ID: 0, WindowID: 0, URL: DisplayURL(0), DevicePixelRatio: max(t.DevicePixelRatio, 0)}
	if b, err := bounds(0); err == nil {
		tab.Width, tab.Height = b.Dx(), b.Dy()
	} else {
		log.Printf("Tabs: display bounds unavailable: %v", err)
	}
	return tab, nil
}

// Compositor grabs a whole display; the window id is the display index.
type Compositor struct {
	Capture func(index int) ([]byte, error) // defaults to screenshot.CaptureDisplay
}

func (c Compositor) CaptureVisible(ctx context.Context, windowID int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	capture := screenshot.CaptureDisplay
	if c.Capture != nil {
		capture = c.Capture
	}

	data, err := capture(windowID)
	if err != nil {
		return nil, err
	}
	log.Printf("Compositor: captured display %d (%d bytes)", windowID, len(data))
	return data, nil
}
