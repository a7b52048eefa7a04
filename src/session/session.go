// Package session delivers a finished capture: either as an in-page preview
// the user confirms, or relayed to the controller's pending slot.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"

	"snipping-tool/src/messages"
	"snipping-tool/src/notification"
	"snipping-tool/src/overlay"
)

// Capture delivery modes.
const (
	ModePreview = "preview"
	ModeRelay   = "relay"
)

// ErrorClass selects how a failure is reported.
type ErrorClass int

const (
	// ClassCapture covers selection, capture and crop failures.
	ClassCapture ErrorClass = iota
	// ClassPersistence covers save failures.
	ClassPersistence
)

// ReportPolicy maps error classes to reporting channels: capture failures go
// to the diagnostic log only, persistence failures become a status message.
type ReportPolicy struct {
	Sink notification.Sink
}

func (p ReportPolicy) Report(class ErrorClass, err error) {
	if err == nil {
		return
	}
	switch class {
	case ClassPersistence:
		log.Printf("Session: save failed: %v", err)
		if p.Sink != nil {
			p.Sink.Notify(notification.Error, SaveFailedStatus(err))
		}
	default:
		log.Printf("Session: capture failed: %v", err)
	}
}

// SaveFailedStatus is the status line for a failed save.
func SaveFailedStatus(err error) string {
	return fmt.Sprintf("Save failed: %v", err)
}

// RelayTarget hands the capture to the controller's pending slot.
type RelayTarget struct {
	Controller overlay.Messenger
	Sink       notification.Sink
}

func (t RelayTarget) Deliver(ctx context.Context, doc *overlay.Document, dataURL string) error {
	if t.Controller == nil {
		return errors.New("relay target missing controller")
	}
	res, err := t.Controller.Call(ctx, messages.SetPendingCapture{DataURL: dataURL})
	if err == nil {
		err = res.Err()
	}
	if err != nil {
		return fmt.Errorf("failed to store pending capture: %w", err)
	}
	if t.Sink != nil {
		t.Sink.Notify(notification.Info, "Capture ready")
	}
	return nil
}
