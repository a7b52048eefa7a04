// Package tray is the system tray entry surface.
package tray

import (
	"image"
	"image/color"
	"log"
	"sync"

	"github.com/getlantern/systray"

	"snipping-tool/src/screenshot"
)

// DefaultTooltip is shown while no status message is pending.
const DefaultTooltip = "Snipping Tool"

// Actions are invoked from the tray click loop; each should return quickly.
type Actions struct {
	Capture     func()
	Save        func()
	Discard     func()
	ResetFolder func()
	Quit        func()
}

// Tray wraps the systray menu.
type Tray struct {
	actions Actions
	base    string

	mu    sync.Mutex
	ready bool
}

func New(actions Actions) *Tray {
	return &Tray{actions: actions, base: DefaultTooltip}
}

// Run blocks on the UI thread until Quit.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit tears the tray down and makes Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

// SetStatus shows text in the tooltip next to the product name.
func (t *Tray) SetStatus(text string) {
	t.mu.Lock()
	ready := t.ready
	t.mu.Unlock()
	if ready {
		systray.SetTooltip(Tooltip(t.base, text))
	}
}

// Tooltip formats the tooltip for a status line.
func Tooltip(base, status string) string {
	if status == "" {
		return base
	}
	return base + ": " + status
}

func (t *Tray) onReady() {
	if icon, err := Icon(); err == nil {
		systray.SetIcon(icon)
	} else {
		log.Printf("Tray: icon unavailable: %v", err)
	}
	systray.SetTitle(DefaultTooltip)
	systray.SetTooltip(DefaultTooltip)

	mCapture := systray.AddMenuItem("Capture region", "Select a region to capture")
	mSave := systray.AddMenuItem("Save capture", "Save the pending capture")
	mDiscard := systray.AddMenuItem("Discard capture", "Discard the pending capture")
	mReset := systray.AddMenuItem("Reset save folder", "Save into the default folder")
	systray.AddSeparator()
	mQuit := systray.AddMenuItem("Quit", "Quit the application")

	t.mu.Lock()
	t.ready = true
	t.mu.Unlock()

	go func() {
		for {
			select {
			case <-mCapture.ClickedCh:
				call(t.actions.Capture)
			case <-mSave.ClickedCh:
				call(t.actions.Save)
			case <-mDiscard.ClickedCh:
				call(t.actions.Discard)
			case <-mReset.ClickedCh:
				call(t.actions.ResetFolder)
			case <-mQuit.ClickedCh:
				call(t.actions.Quit)
				systray.Quit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {
	t.mu.Lock()
	t.ready = false
	t.mu.Unlock()
}

func call(fn func()) {
	if fn != nil {
		fn()
	}
}

// Icon renders the 16x16 tray icon: a dashed selection frame.
func Icon() ([]byte, error) {
	const size = 16
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	frame := color.NRGBA{R: 0x00, G: 0xc8, B: 0x53, A: 0xff}
	for i := 2; i < size-2; i++ {
		if i%3 == 2 {
			continue
		}
		img.Set(i, 2, frame)
		img.Set(i, size-3, frame)
		img.Set(2, i, frame)
		img.Set(size-3, i, frame)
	}
	return screenshot.EncodePNG(img)
}
