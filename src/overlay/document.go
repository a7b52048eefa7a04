package overlay

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"snipping-tool/src/host"
	"snipping-tool/src/screenshot"
)

// Element ids of everything the tool places into a page.
const (
	IDCaptureOverlay   = "snip-capture-overlay"
	IDSelectionBox     = "snip-selection-box"
	IDInstructionLabel = "snip-instruction-label"
	IDPreviewContainer = "snip-preview-container"
	IDStyles           = "snip-styles"
)

// SelectorElementIDs are the elements owned by a selection run.
var SelectorElementIDs = []string{IDCaptureOverlay, IDSelectionBox, IDInstructionLabel}

var (
	ErrDocumentClosed = errors.New("document closed")
	ErrDuplicateID    = errors.New("element id already present")
)

// EventType names an input event delivered to a document.
type EventType string

const (
	PointerDown EventType = "pointerdown"
	PointerMove EventType = "pointermove"
	PointerUp   EventType = "pointerup"
	KeyDown     EventType = "keydown"
	Click       EventType = "click"
)

// KeyEscape is the Key value of an Escape key press.
const KeyEscape = "Escape"

// Event is an input event in viewport coordinates.
type Event struct {
	Type   EventType
	Target string // element id; empty targets the document itself
	X, Y   int
	Key    string
}

// Element is a node placed into the page. Parent links a child to the element
// whose removal also removes it.
type Element struct {
	ID       string
	Parent   string
	Class    string
	Text     string
	Hidden   bool
	Disabled bool
	Bounds   screenshot.Rect
	Image    []byte
}

// ListenerID identifies a registered listener for removal.
type ListenerID int

type listener struct {
	typ    EventType
	target string
	fn     func(Event)
}

// Document is the in-memory page a selector is injected into. All mutation
// happens on its task loop; Run must be called once for tasks to execute.
type Document struct {
	tab host.Tab

	mu        sync.Mutex
	order     []string
	elements  map[string]*Element
	listeners map[ListenerID]listener
	nextID    ListenerID
	globals   map[string]any

	tasks   chan func()
	changed chan struct{}
	closed  chan struct{}
	once    sync.Once
}

// NewDocument returns an empty document for tab.
func NewDocument(tab host.Tab) *Document {
	return &Document{
		tab:       tab,
		elements:  make(map[string]*Element),
		listeners: make(map[ListenerID]listener),
		globals:   make(map[string]any),
		tasks:     make(chan func(), 64),
		changed:   make(chan struct{}, 1),
		closed:    make(chan struct{}),
	}
}

func (d *Document) Tab() host.Tab { return d.tab }

// Changes signals after elements were added, updated or removed. Signals
// coalesce; a receiver should read the whole page with Snapshot.
func (d *Document) Changes() <-chan struct{} { return d.changed }

// Closed is closed once the task loop stops.
func (d *Document) Closed() <-chan struct{} { return d.closed }

func (d *Document) markChanged() {
	select {
	case d.changed <- struct{}{}:
	default:
	}
}

// Run executes posted tasks one at a time until ctx ends or Close is called.
func (d *Document) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.Close()
			return
		case <-d.closed:
			return
		case task := <-d.tasks:
			task()
		}
	}
}

// Close stops the task loop. Pending tasks are dropped.
func (d *Document) Close() {
	d.once.Do(func() { close(d.closed) })
}

// Post queues fn on the task loop. It reports false once the document is closed.
func (d *Document) Post(fn func()) bool {
	select {
	case <-d.closed:
		return false
	default:
	}
	select {
	case d.tasks <- fn:
		return true
	case <-d.closed:
		return false
	}
}

// Do runs fn on the task loop and waits for it. It must not be called from
// the loop itself.
func (d *Document) Do(fn func()) error {
	done := make(chan struct{})
	if !d.Post(func() { defer close(done); fn() }) {
		return ErrDocumentClosed
	}
	select {
	case <-done:
		return nil
	case <-d.closed:
		return ErrDocumentClosed
	}
}

// After posts fn to the loop once delay has elapsed. The returned func
// cancels it if it has not fired yet.
func (d *Document) After(delay time.Duration, fn func()) func() bool {
	t := time.AfterFunc(delay, func() { d.Post(fn) })
	return t.Stop
}

// Dispatch queues ev for delivery to matching listeners. Pointer events
// without a target hit the capture overlay while it is visible.
func (d *Document) Dispatch(ev Event) bool {
	return d.Post(func() { d.fire(ev) })
}

func (d *Document) fire(ev Event) {
	d.mu.Lock()
	if ev.Target == "" && ev.Type != KeyDown {
		if el, ok := d.elements[IDCaptureOverlay]; ok && !el.Hidden {
			ev.Target = IDCaptureOverlay
		}
	}
	ids := make([]ListenerID, 0, len(d.listeners))
	for id, l := range d.listeners {
		if l.typ == ev.Type && (l.target == "" || l.target == ev.Target) {
			ids = append(ids, id)
		}
	}
	d.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		d.mu.Lock()
		l, ok := d.listeners[id]
		d.mu.Unlock()
		if ok {
			l.fn(ev)
		}
	}
}

// AddListener registers fn for events of typ on target ("" for the document).
func (d *Document) AddListener(typ EventType, target string, fn func(Event)) ListenerID {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	d.listeners[d.nextID] = listener{typ: typ, target: target, fn: fn}
	return d.nextID
}

func (d *Document) RemoveListener(id ListenerID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.listeners, id)
}

// ListenerCount returns the number of registered listeners.
func (d *Document) ListenerCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.listeners)
}

// Append adds el to the page. Ids are unique within a document.
func (d *Document) Append(el Element) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.elements[el.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, el.ID)
	}
	copied := el
	d.elements[el.ID] = &copied
	d.order = append(d.order, el.ID)
	d.markChanged()
	return nil
}

// Element returns a copy of the element with id.
func (d *Document) Element(id string) (Element, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, ok := d.elements[id]
	if !ok {
		return Element{}, false
	}
	return *el, true
}

// Update applies mutate to the element with id, if present.
func (d *Document) Update(id string, mutate func(*Element)) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, ok := d.elements[id]
	if ok {
		mutate(el)
		d.markChanged()
	}
	return ok
}

// Remove deletes the element with id and its children.
func (d *Document) Remove(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.removeLocked(id) {
		return false
	}
	d.markChanged()
	return true
}

func (d *Document) removeLocked(id string) bool {
	if _, ok := d.elements[id]; !ok {
		return false
	}
	delete(d.elements, id)
	kept := d.order[:0]
	var children []string
	for _, other := range d.order {
		if other == id {
			continue
		}
		if el, ok := d.elements[other]; ok && el.Parent == id {
			children = append(children, other)
		}
		kept = append(kept, other)
	}
	d.order = kept
	for _, child := range children {
		d.removeLocked(child)
	}
	return true
}

// ElementIDs lists element ids in insertion order.
func (d *Document) ElementIDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.order...)
}

// Snapshot copies every element in insertion order.
func (d *Document) Snapshot() []Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Element, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, *d.elements[id])
	}
	return out
}

// Global reads a page-wide variable.
func (d *Document) Global(key string) (any, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.globals[key]
	return v, ok
}

func (d *Document) SetGlobal(key string, v any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.globals[key] = v
}

func (d *Document) DeleteGlobal(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.globals, key)
}
