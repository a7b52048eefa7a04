// Package popup is the trusted entry surface: it starts captures and acts on
// the pending capture the selector relayed to the controller.
package popup

import (
	"context"
	"errors"
	"log"
	"time"

	"snipping-tool/src/host"
	"snipping-tool/src/messages"
	"snipping-tool/src/notification"
	"snipping-tool/src/overlay"
	"snipping-tool/src/screenshot"
	"snipping-tool/src/session"
)

// Status lines shown to the user.
const (
	StatusSaved         = "Saved"
	StatusDiscarded     = "Discarded"
	StatusFolderReset   = "Folder reset to default"
	StatusNoActiveTab   = "No active tab"
	StatusRestricted    = "This page cannot be captured"
	StatusStartFailed   = "Failed to start capture"
	StatusNothingToSave = "No capture to save"
)

var ErrNothingPending = errors.New("no pending capture")

// FolderStore is the part of the preferences the panel edits.
type FolderStore interface {
	SaveFolder() string
	SetSaveFolder(label string) (string, error)
	ResetSaveFolder() error
}

// Panel drives captures from a trusted surface (tray, hotkey, CLI).
type Panel struct {
	Controller     overlay.Messenger
	Tabs           host.Tabs
	StartSelection func(tab host.Tab) (*overlay.Selector, error)
	Folders        FolderStore
	Sink           notification.Sink
	Now            func() time.Time
}

func (p *Panel) notify(kind notification.Kind, text string) {
	if p.Sink != nil {
		p.Sink.Notify(kind, text)
	}
}

func (p *Panel) call(ctx context.Context, msg messages.Message) (messages.Result, error) {
	res, err := p.Controller.Call(ctx, msg)
	if err != nil {
		return messages.Result{}, err
	}
	return res, res.Err()
}

// StartCapture checks the active tab, clears any pending capture and injects
// a selector. The panel's job ends once the selector is running.
func (p *Panel) StartCapture(ctx context.Context) (*overlay.Selector, error) {
	tab, err := p.Tabs.ActiveTab(ctx)
	if err != nil {
		log.Printf("Popup: no active tab: %v", err)
		p.notify(notification.Error, StatusNoActiveTab)
		return nil, host.ErrNoActiveTab
	}
	if host.IsRestricted(tab.URL) {
		p.notify(notification.Error, StatusRestricted)
		return nil, host.ErrRestrictedPage
	}

	if _, err := p.call(ctx, messages.ClearPendingCapture{}); err != nil {
		log.Printf("Popup: failed to start capture: %v", err)
		p.notify(notification.Error, StatusStartFailed)
		return nil, err
	}
	sel, err := p.StartSelection(tab)
	if err != nil {
		log.Printf("Popup: failed to start capture: %v", err)
		p.notify(notification.Error, StatusStartFailed)
		return nil, err
	}
	return sel, nil
}

// LoadPending returns the pending capture, or "" when the slot is empty.
func (p *Panel) LoadPending(ctx context.Context) (string, error) {
	res, err := p.call(ctx, messages.GetPendingCapture{})
	if err != nil {
		return "", err
	}
	return res.DataURL, nil
}

// Preview returns a thumbnail of the pending capture.
func (p *Panel) Preview(ctx context.Context) ([]byte, error) {
	dataURL, err := p.LoadPending(ctx)
	if err != nil {
		return nil, err
	}
	if dataURL == "" {
		return nil, ErrNothingPending
	}
	_, png, err := screenshot.DecodeDataURL(dataURL)
	if err != nil {
		return nil, err
	}
	return screenshot.Thumbnail(png, screenshot.PreviewMaxWidth, screenshot.PreviewMaxHeight)
}

// Save persists the pending capture under the configured folder. The slot is
// cleared whether or not the save succeeded.
func (p *Panel) Save(ctx context.Context) (messages.Result, error) {
	dataURL, err := p.LoadPending(ctx)
	if err != nil {
		return messages.Result{}, err
	}
	if dataURL == "" {
		p.notify(notification.Info, StatusNothingToSave)
		return messages.Result{}, ErrNothingPending
	}

	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	res, saveErr := p.call(ctx, messages.PersistImage{
		DataURL:  dataURL,
		Filename: screenshot.Filename(now()),
		Folder:   p.Folders.SaveFolder(),
	})
	if saveErr != nil {
		p.notify(notification.Error, session.SaveFailedStatus(saveErr))
	} else {
		log.Printf("Popup: saved via %s", res.Method)
		p.notify(notification.Success, StatusSaved)
	}

	if _, err := p.call(ctx, messages.ClearPendingCapture{}); err != nil {
		log.Printf("Popup: failed to clear pending capture: %v", err)
	}
	return res, saveErr
}

// Discard empties the pending slot.
func (p *Panel) Discard(ctx context.Context) error {
	if _, err := p.call(ctx, messages.ClearPendingCapture{}); err != nil {
		return err
	}
	p.notify(notification.Info, StatusDiscarded)
	return nil
}

// SetFolder stores a new folder label and returns it normalized.
func (p *Panel) SetFolder(label string) (string, error) {
	return p.Folders.SetSaveFolder(label)
}

// ResetFolder restores the default folder label.
func (p *Panel) ResetFolder() error {
	if err := p.Folders.ResetSaveFolder(); err != nil {
		return err
	}
	p.notify(notification.Info, StatusFolderReset)
	return nil
}
