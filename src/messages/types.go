package messages

import (
	"errors"

	"snipping-tool/src/host"
)

// Message is the base interface for all inter-context messages
type Message interface {
	Type() string
}

// Action names, one handler per action on the receiving side
const (
	TypeCaptureVisibleSurface = "CaptureVisibleSurface"
	TypePersistImage          = "PersistImage"
	TypeSetPendingCapture     = "SetPendingCapture"
	TypeGetPendingCapture     = "GetPendingCapture"
	TypeClearPendingCapture   = "ClearPendingCapture"
	TypeWriteFile             = "WriteFile"
	TypeDieNow                = "DIENOW"
)

// Persistence methods reported in a successful PersistImage result
const (
	MethodFilesystem = "filesystem"
	MethodDownload   = "download"
)

// CaptureVisibleSurface - asks the controller for a raw snapshot of the caller's window.
// The window is inferred from the envelope sender, or from the active tab when absent.
type CaptureVisibleSurface struct{}

func (m CaptureVisibleSurface) Type() string { return TypeCaptureVisibleSurface }

// PersistImage - asks the controller to store an encoded image
type PersistImage struct {
	DataURL  string
	Filename string
	Folder   string // optional folder label for the download path
}

func (m PersistImage) Type() string { return TypePersistImage }

// SetPendingCapture - stores a finished capture in the controller's single slot
type SetPendingCapture struct {
	DataURL string
}

func (m SetPendingCapture) Type() string { return TypeSetPendingCapture }

// GetPendingCapture - reads the pending slot; DataURL is empty when nothing is pending
type GetPendingCapture struct{}

func (m GetPendingCapture) Type() string { return TypeGetPendingCapture }

// ClearPendingCapture - empties the pending slot
type ClearPendingCapture struct{}

func (m ClearPendingCapture) Type() string { return TypeClearPendingCapture }

// WriteFile - sent by the controller to the persistence agent only
type WriteFile struct {
	DataURL  string
	Filename string
}

func (m WriteFile) Type() string { return TypeWriteFile }

// DIENOW - emergency shutdown message sent to all contexts
type DIENOW struct{}

func (m DIENOW) Type() string { return TypeDieNow }

// Result is the single response shape for every action.
type Result struct {
	Success    bool
	Error      string
	DataURL    string
	Method     string
	DownloadID int
}

// Ok returns an empty successful result (ack).
func Ok() Result { return Result{Success: true} }

// Fail converts err into a failure result.
func Fail(err error) Result {
	if err == nil {
		err = errors.New("unknown error")
	}
	return Result{Success: false, Error: err.Error()}
}

// Err returns the failure carried by r as an error, or nil on success.
func (r Result) Err() error {
	if r.Success {
		return nil
	}
	if r.Error == "" {
		return errors.New("unknown error")
	}
	return errors.New(r.Error)
}

// Envelope wraps messages with metadata for routing
type Envelope struct {
	ID      string    // request id, used for log correlation
	From    string    // Source context name
	To      string    // Destination context name ("*" for broadcast)
	Sender  *host.Tab // originating tab when sent from page-injected code
	Message Message   // The actual message
	Reply   chan<- Result
}

// Respond delivers r to the waiting caller, if any. Safe to call once.
func (e Envelope) Respond(r Result) {
	if e.Reply == nil {
		return
	}
	e.Reply <- r
}

// Context names for routing
const (
	ContextController = "controller"
	ContextSelector   = "selector"
	ContextAgent      = "agent"
	ContextPopup      = "popup"
)
