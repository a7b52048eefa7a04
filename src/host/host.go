package host

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrNoActiveTab    = errors.New("no active tab")
	ErrRestrictedPage = errors.New("this page cannot be captured")
)

// ConflictUniquify asks the download manager to add a disambiguating suffix
// instead of overwriting an existing file.
const ConflictUniquify = "uniquify"

// restrictedPrefixes lists URL schemes the host refuses to capture or inject into.
var restrictedPrefixes = []string{"chrome://", "edge://", "chrome-extension://"}

// Tab identifies a capturable surface and the window that owns it.
// Width and Height are the viewport size in pointer coordinates, zero when
// unknown. A zero DevicePixelRatio is derived from each capture.
type Tab struct {
	ID               int
	WindowID         int
	URL              string
	DevicePixelRatio float64
	Width, Height    int
}

// Tabs resolves the active tab of the currently focused window.
type Tabs interface {
	ActiveTab(ctx context.Context) (Tab, error)
}

// Compositor rasterizes the visible contents of a window into PNG bytes.
type Compositor interface {
	CaptureVisible(ctx context.Context, windowID int) ([]byte, error)
}

// DownloadRequest describes a single hand-off to the download manager.
type DownloadRequest struct {
	Data           []byte
	Filename       string // relative path, may include one folder component
	ConflictAction string
}

// Downloads hands bytes to the host download manager and returns its tracking id.
type Downloads interface {
	Download(ctx context.Context, req DownloadRequest) (int, error)
}

// IsRestricted reports whether url belongs to a page the host will not capture.
func IsRestricted(url string) bool {
	for _, p := range restrictedPrefixes {
		if strings.HasPrefix(url, p) {
			return true
		}
	}
	return false
}

// CheckCapturable returns ErrRestrictedPage for restricted tabs.
func CheckCapturable(tab Tab) error {
	if IsRestricted(tab.URL) {
		return ErrRestrictedPage
	}
	return nil
}
