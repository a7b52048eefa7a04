package overlay

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"snipping-tool/src/messages"
	"snipping-tool/src/screenshot"
)

var (
	ErrSelectionCancelled = errors.New("selection cancelled")
	ErrSuperseded         = errors.New("selection superseded by a newer activation")
)

// DefaultHideDelay lets the hidden overlay repaint away before the compositor grabs the surface.
const DefaultHideDelay = 150 * time.Millisecond

// InstructionText is shown at the top of the capture overlay.
const InstructionText = "Drag to select a region | Esc to cancel"

// activeKey holds the running selector of a document.
const activeKey = "__snippingToolInjected"

// State of a selection run.
type State int

const (
	Idle State = iota
	Selecting
	Dragging
	Captured
	Terminated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Selecting:
		return "selecting"
	case Dragging:
		return "dragging"
	case Captured:
		return "captured"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Messenger sends a request to the controller on behalf of the page.
type Messenger interface {
	Call(ctx context.Context, msg messages.Message) (messages.Result, error)
}

// Target receives the cropped capture once the overlay is gone.
type Target interface {
	Deliver(ctx context.Context, doc *Document, dataURL string) error
}

// Options configure one selection run.
// A zero DevicePixelRatio is derived from the capture and ViewportWidth.
type Options struct {
	Messenger        Messenger
	Target           Target
	DevicePixelRatio float64
	ViewportWidth    int
	HideDelay        time.Duration
}

// Selector runs one interactive selection on a document.
type Selector struct {
	doc  *Document
	opts Options

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     State
	anchor    screenshot.Point
	rect      screenshot.Rect
	err       error
	listeners []ListenerID
	dragging  []ListenerID

	done chan struct{}
}

// Activate starts a selection on doc. Any selection already running on the
// document is torn down first.
func Activate(ctx context.Context, doc *Document, opts Options) *Selector {
	if opts.DevicePixelRatio <= 0 && opts.ViewportWidth <= 0 {
		opts.DevicePixelRatio = 1
	}
	if opts.HideDelay < 0 {
		opts.HideDelay = 0
	}
	runCtx, cancel := context.WithCancel(ctx)
	s := &Selector{doc: doc, opts: opts, ctx: runCtx, cancel: cancel, done: make(chan struct{})}

	if !doc.Post(s.begin) {
		s.finish(ErrDocumentClosed)
	}
	return s
}

// Done is closed once the selector reaches Terminated.
func (s *Selector) Done() <-chan struct{} { return s.done }

func (s *Selector) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Rect is the last normalized selection rectangle.
func (s *Selector) Rect() screenshot.Rect {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rect
}

// Err reports why the run ended: nil after delivery, ErrSelectionCancelled
// for escape or a too-small selection, otherwise the failure.
func (s *Selector) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Selector) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Selector) begin() {
	if s.isDone() {
		return
	}
	if prev, ok := s.doc.Global(activeKey); ok {
		if p, ok := prev.(*Selector); ok && p != s {
			log.Printf("Selector: tearing down previous activation")
			p.terminate(ErrSuperseded)
		}
	}
	for _, id := range SelectorElementIDs {
		s.doc.Remove(id)
	}
	s.doc.SetGlobal(activeKey, s)

	for _, el := range []Element{
		{ID: IDCaptureOverlay, Class: "snip-overlay"},
		{ID: IDSelectionBox, Hidden: true},
		{ID: IDInstructionLabel, Text: InstructionText},
	} {
		if err := s.doc.Append(el); err != nil {
			s.terminate(err)
			return
		}
	}

	s.mu.Lock()
	s.listeners = append(s.listeners,
		s.doc.AddListener(PointerDown, IDCaptureOverlay, s.onPointerDown),
		s.doc.AddListener(KeyDown, "", s.onKeyDown),
	)
	s.state = Selecting
	s.mu.Unlock()
}

func (s *Selector) onPointerDown(ev Event) {
	if s.State() != Selecting {
		return
	}
	s.mu.Lock()
	s.anchor = screenshot.Point{X: ev.X, Y: ev.Y}
	s.rect = screenshot.Normalize(s.anchor, s.anchor)
	rect := s.rect
	s.dragging = []ListenerID{
		s.doc.AddListener(PointerMove, "", s.onPointerMove),
		s.doc.AddListener(PointerUp, "", s.onPointerUp),
	}
	s.state = Dragging
	s.mu.Unlock()

	s.doc.Update(IDSelectionBox, func(el *Element) {
		el.Hidden = false
		el.Bounds = rect
	})
}

func (s *Selector) onPointerMove(ev Event) {
	s.mu.Lock()
	if s.state != Dragging {
		s.mu.Unlock()
		return
	}
	s.rect = screenshot.Normalize(s.anchor, screenshot.Point{X: ev.X, Y: ev.Y})
	rect := s.rect
	s.mu.Unlock()

	s.doc.Update(IDSelectionBox, func(el *Element) { el.Bounds = rect })
}

func (s *Selector) onPointerUp(ev Event) {
	s.mu.Lock()
	if s.state != Dragging {
		s.mu.Unlock()
		return
	}
	s.rect = screenshot.Normalize(s.anchor, screenshot.Point{X: ev.X, Y: ev.Y})
	rect := s.rect
	dragging := s.dragging
	s.dragging = nil
	s.mu.Unlock()

	for _, id := range dragging {
		s.doc.RemoveListener(id)
	}

	if !rect.Valid() {
		log.Printf("Selector: selection %dx%d below minimum, ignoring", rect.Width, rect.Height)
		s.terminate(ErrSelectionCancelled)
		return
	}

	s.setState(Captured)
	for _, id := range SelectorElementIDs {
		s.doc.Update(id, func(el *Element) { el.Hidden = true })
	}
	go s.capture(rect)
}

func (s *Selector) onKeyDown(ev Event) {
	if ev.Key != KeyEscape {
		return
	}
	switch s.State() {
	case Selecting, Dragging:
		log.Printf("Selector: cancelled with Escape")
		s.terminate(ErrSelectionCancelled)
	}
}

// capture runs off the page loop; page state is only touched through Do.
func (s *Selector) capture(rect screenshot.Rect) {
	if err := s.wait(s.opts.HideDelay); err != nil {
		s.abort(err)
		return
	}

	res, err := s.opts.Messenger.Call(s.ctx, messages.CaptureVisibleSurface{})
	if err == nil {
		err = res.Err()
	}
	if err != nil {
		s.abort(fmt.Errorf("capture failed: %w", err))
		return
	}

	dpr := s.opts.DevicePixelRatio
	if dpr <= 0 {
		if dpr, err = screenshot.DeviceRatio(res.DataURL, s.opts.ViewportWidth); err != nil {
			s.abort(fmt.Errorf("crop failed: %w", err))
			return
		}
	}
	cropped, err := screenshot.CropDataURL(res.DataURL, rect, dpr)
	if err != nil {
		s.abort(fmt.Errorf("crop failed: %w", err))
		return
	}

	current := false
	if err := s.doc.Do(func() {
		if s.State() != Captured {
			return
		}
		current = true
		s.teardown()
	}); err != nil {
		s.finish(err)
		return
	}
	if !current {
		// superseded or torn down while capturing; the result is dropped
		return
	}

	if s.opts.Target != nil {
		if err := s.opts.Target.Deliver(s.ctx, s.doc, cropped); err != nil {
			log.Printf("Selector: delivery failed: %v", err)
			s.finish(err)
			return
		}
	}
	s.finish(nil)
}

func (s *Selector) wait(d time.Duration) error {
	if d <= 0 {
		return s.ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

func (s *Selector) abort(err error) {
	log.Printf("Selector: %v", err)
	if doErr := s.doc.Do(func() { s.terminate(err) }); doErr != nil {
		s.finish(err)
	}
}

// terminate tears down and ends the run. Runs on the page loop.
func (s *Selector) terminate(err error) {
	if s.State() == Terminated {
		return
	}
	s.teardown()
	s.finish(err)
}

// teardown removes every element and listener this run installed.
func (s *Selector) teardown() {
	s.mu.Lock()
	ids := append(s.listeners, s.dragging...)
	s.listeners, s.dragging = nil, nil
	s.mu.Unlock()

	for _, id := range ids {
		s.doc.RemoveListener(id)
	}
	for _, id := range SelectorElementIDs {
		s.doc.Remove(id)
	}
	if cur, ok := s.doc.Global(activeKey); ok && cur == s {
		s.doc.DeleteGlobal(activeKey)
	}
}

func (s *Selector) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isDone() {
		return
	}
	s.state = Terminated
	s.err = err
	s.cancel()
	close(s.done)
}

func (s *Selector) isDone() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
