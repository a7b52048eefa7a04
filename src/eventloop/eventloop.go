package eventloop

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"snipping-tool/src/host"
	"snipping-tool/src/hotkey"
	"snipping-tool/src/overlay"
	"snipping-tool/src/popup"
	"snipping-tool/src/process"
	"snipping-tool/src/session"
	"snipping-tool/src/singleinstance"
)

// Action is a user request coming from the tray or the hotkey.
type Action int

const (
	ActionCapture Action = iota
	ActionSave
	ActionDiscard
	ActionResetFolder
)

func (a Action) String() string {
	switch a {
	case ActionCapture:
		return "capture"
	case ActionSave:
		return "save"
	case ActionDiscard:
		return "discard"
	case ActionResetFolder:
		return "reset-folder"
	default:
		return "unknown"
	}
}

// Status texts returned to delegating clients.
const (
	StatusCaptureComplete = "Capture complete"
	StatusCancelled       = "selection cancelled"
)

// Input routes global pointer input to the active page.
type Input interface {
	SetForwarder(f hotkey.Forwarder) int
	ClearForwarder(token int)
}

// Selections injects selectors and feeds them pointer input until they end.
type Selections struct {
	Injector *overlay.Injector
	Input    Input
	Options  func(tab host.Tab) overlay.Options
}

// Start injects a selector into tab. Unless the page's surface delivers its
// own input, hook input is forwarded to the document until the selection
// terminates.
func (s *Selections) Start(tab host.Tab) (*overlay.Selector, error) {
	sel, err := s.Injector.Inject(tab, s.Options(tab))
	if err != nil {
		return nil, err
	}
	if s.Input != nil && !s.Injector.DeliversInput() {
		doc := s.Injector.Document(tab)
		token := s.Input.SetForwarder(doc.Dispatch)
		go func() {
			<-sel.Done()
			s.Input.ClearForwarder(token)
		}()
	}
	return sel, nil
}

// Processes reports the lifecycle state of the resident's actors.
type Processes interface {
	GetStatus() map[string]process.ProcessState
}

// Loop is the single-threaded coordinator for tray, hotkey and delegated requests.
type Loop struct {
	// Processes answers STATUS requests; nil reports no actors.
	Processes Processes

	panel   *popup.Panel
	pages   *overlay.Injector
	srv     singleinstance.Server
	actions chan Action
}

// New creates a loop driving panel. pages may be nil when no in-page
// preview can exist.
func New(panel *popup.Panel, pages *overlay.Injector) *Loop {
	return &Loop{
		panel:   panel,
		pages:   pages,
		actions: make(chan Action, 4),
	}
}

// Post queues a user action. Actions beyond the queue size are dropped.
func (l *Loop) Post(a Action) {
	select {
	case l.actions <- a:
	default:
		log.Printf("Eventloop: dropping %s, queue full", a)
	}
}

// HotkeyPressed is the hotkey callback.
func (l *Loop) HotkeyPressed() { l.Post(ActionCapture) }

// Run starts the singleinstance server and processes requests.
// It blocks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	l.srv = singleinstance.NewServer()
	if err := l.srv.Start(ctx); err != nil {
		return err
	}
	defer l.srv.Close()
	if p := l.srv.Port(); p > 0 {
		log.Printf("Resident listening on 127.0.0.1:%d", p)
	}

	// Accept loop in background to avoid blocking action handling
	reqCh := make(chan singleinstance.Conn, 4)
	go func() {
		defer close(reqCh)
		for {
			conn, err := l.srv.Next(ctx)
			if err != nil {
				return
			}
			reqCh <- conn
		}
	}()

	return l.loop(ctx, reqCh)
}

func (l *Loop) loop(ctx context.Context, reqCh <-chan singleinstance.Conn) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case a := <-l.actions:
			l.handleAction(ctx, a)
		case conn, ok := <-reqCh:
			if !ok {
				return nil
			}
			l.handleConn(ctx, conn)
		}
	}
}

func (l *Loop) handleAction(ctx context.Context, a Action) {
	log.Printf("Eventloop: %s", a)
	switch a {
	case ActionCapture:
		_, _ = l.panel.StartCapture(ctx)
	case ActionSave:
		if l.clickPreview(session.IDSaveButton) {
			return
		}
		_, _ = l.panel.Save(ctx)
	case ActionDiscard:
		if l.clickPreview(session.IDDiscard) {
			return
		}
		_ = l.panel.Discard(ctx)
	case ActionResetFolder:
		if err := l.panel.ResetFolder(); err != nil {
			log.Printf("Eventloop: reset folder failed: %v", err)
		}
	}
}

// clickPreview presses a button of an in-page preview, if one is showing.
func (l *Loop) clickPreview(button string) bool {
	if l.pages == nil {
		return false
	}
	doc := l.pages.Active()
	if doc == nil {
		return false
	}
	if _, ok := doc.Element(overlay.IDPreviewContainer); !ok {
		return false
	}
	return doc.Dispatch(overlay.Event{Type: overlay.Click, Target: button})
}

func (l *Loop) handleConn(ctx context.Context, conn singleinstance.Conn) {
	switch conn.Request().Command {
	case singleinstance.CommandCapture:
		sel, err := l.panel.StartCapture(ctx)
		if err != nil {
			respond(conn, "", err)
			return
		}
		// the selection is user driven; answer once it ends without blocking the loop
		go func() {
			<-sel.Done()
			err := sel.Err()
			if errors.Is(err, overlay.ErrSelectionCancelled) {
				err = errors.New(StatusCancelled)
			}
			respond(conn, StatusCaptureComplete, err)
		}()
	case singleinstance.CommandSave:
		_, err := l.panel.Save(ctx)
		respond(conn, popup.StatusSaved, err)
	case singleinstance.CommandDiscard:
		err := l.panel.Discard(ctx)
		respond(conn, popup.StatusDiscarded, err)
	case singleinstance.CommandStatus:
		respond(conn, l.statusText(), nil)
	default:
		respond(conn, "", errors.New("unknown command"))
	}
}

// statusText lists actor states as name=state pairs, sorted by name.
func (l *Loop) statusText() string {
	if l.Processes == nil {
		return ""
	}
	status := l.Processes.GetStatus()
	names := make([]string, 0, len(status))
	for name := range status {
		names = append(names, name)
	}
	sort.Strings(names)
	pairs := make([]string, len(names))
	for i, name := range names {
		pairs[i] = fmt.Sprintf("%s=%s", name, status[name])
	}
	return strings.Join(pairs, " ")
}

func respond(conn singleinstance.Conn, text string, err error) {
	defer conn.Close()
	if err != nil {
		_ = conn.RespondError(err.Error())
		return
	}
	_ = conn.RespondSuccess(text)
}
