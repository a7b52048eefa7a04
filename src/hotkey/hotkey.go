// Package hotkey owns the global keyboard and mouse hook.
package hotkey

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	gohook "github.com/robotn/gohook"

	"snipping-tool/src/overlay"
)

// Combo tracks the pressed state of one configured key combination.
type Combo struct {
	config string
	mu     sync.Mutex
	keys   []keyState
}

type keyState struct {
	name     string
	rawcodes []uint16
	pressed  bool
}

// NewCombo parses a hotkey like "Ctrl+Shift+S".
func NewCombo(hotkeyConfig string) (*Combo, error) {
	keys := parseHotkey(hotkeyConfig)
	log.Printf("Parsed hotkey configuration: %v", keys)

	c := &Combo{config: hotkeyConfig}
	for _, keyName := range keys {
		rawcodes := keyNameToRawcodes(keyName)
		if len(rawcodes) == 0 {
			log.Printf("ERROR: Cannot map key '%s' to rawcodes, hotkey may not work correctly", keyName)
			continue
		}
		c.keys = append(c.keys, keyState{name: keyName, rawcodes: rawcodes})
	}
	if len(c.keys) == 0 {
		return nil, fmt.Errorf("no valid keys in hotkey configuration %q", hotkeyConfig)
	}
	return c, nil
}

// Press records a key down and reports whether the whole combination is now
// held. A completed combination resets.
func (c *Combo) Press(rawcode uint16) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.keys {
		if c.keys[i].matches(rawcode) {
			c.keys[i].pressed = true
		}
	}
	for i := range c.keys {
		if !c.keys[i].pressed {
			return false
		}
	}
	log.Printf("HOTKEY COMBINATION DETECTED! %s", c.config)
	for i := range c.keys {
		c.keys[i].pressed = false
	}
	return true
}

// Release records a key up.
func (c *Combo) Release(rawcode uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.keys {
		if c.keys[i].matches(rawcode) {
			c.keys[i].pressed = false
		}
	}
}

func (k keyState) matches(rawcode uint16) bool {
	for _, rc := range k.rawcodes {
		if rc == rawcode {
			return true
		}
	}
	return false
}

// escapeKeycode is the scan-independent Escape code reported by the hook.
const escapeKeycode = 1

// Forwarder receives pointer and Escape events while a selection runs.
type Forwarder func(ev overlay.Event) bool

// Listener owns the global input hook: it fires the hotkey callback and
// forwards pointer input to the active selection.
type Listener struct {
	combo    *Combo
	onHotkey func()
	escape   []uint16

	mu      sync.Mutex
	forward Forwarder
	gen     int
	started bool
}

// NewListener builds a listener for hotkeyConfig.
func NewListener(hotkeyConfig string, onHotkey func()) (*Listener, error) {
	combo, err := NewCombo(hotkeyConfig)
	if err != nil {
		return nil, err
	}
	return &Listener{combo: combo, onHotkey: onHotkey, escape: keyNameToRawcodes("esc")}, nil
}

// SetForwarder routes pointer input to f and returns a token for ClearForwarder.
func (l *Listener) SetForwarder(f Forwarder) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gen++
	l.forward = f
	return l.gen
}

// ClearForwarder stops forwarding unless a newer forwarder replaced token's.
func (l *Listener) ClearForwarder(token int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.gen == token {
		l.forward = nil
	}
}

func (l *Listener) forwarder() Forwarder {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.forward
}

// Handle processes one hook event.
func (l *Listener) Handle(ev gohook.Event) {
	switch ev.Kind {
	case gohook.KeyDown, gohook.KeyHold:
		if l.isEscape(ev) {
			if fwd := l.forwarder(); fwd != nil {
				fwd(overlay.Event{Type: overlay.KeyDown, Key: overlay.KeyEscape})
			}
		}
		if l.combo.Press(ev.Rawcode) {
			log.Printf("Hotkey activated")
			if l.onHotkey != nil {
				l.onHotkey()
			}
		}
	case gohook.KeyUp:
		l.combo.Release(ev.Rawcode)
	default:
		typ, ok := pointerType(ev.Kind)
		if !ok {
			return
		}
		if fwd := l.forwarder(); fwd != nil {
			fwd(overlay.Event{Type: typ, X: int(ev.X), Y: int(ev.Y)})
		}
	}
}

func (l *Listener) isEscape(ev gohook.Event) bool {
	if ev.Keycode == escapeKeycode {
		return true
	}
	for _, rc := range l.escape {
		if ev.Rawcode == rc {
			return true
		}
	}
	return false
}

// pointerType maps hook mouse kinds to page events. The hook reports a button
// press as MouseHold and its release as MouseDown.
func pointerType(kind uint8) (overlay.EventType, bool) {
	switch kind {
	case gohook.MouseHold:
		return overlay.PointerDown, true
	case gohook.MouseDown:
		return overlay.PointerUp, true
	case gohook.MouseMove, gohook.MouseDrag:
		return overlay.PointerMove, true
	default:
		return "", false
	}
}

// Start begins reading the global hook on its own goroutine.
func (l *Listener) Start() error {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return nil
	}
	l.started = true
	l.mu.Unlock()

	log.Printf("Starting gohook event loop...")
	evChan := gohook.Start()
	if evChan == nil {
		return fmt.Errorf("gohook.Start() returned nil channel")
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("PANIC in hotkey goroutine: %v", r)
			}
		}()
		for ev := range evChan {
			l.Handle(ev)
		}
		log.Printf("Event channel closed")
	}()
	return nil
}

// Stop ends the global hook.
func (l *Listener) Stop() {
	l.mu.Lock()
	started := l.started
	l.started = false
	l.mu.Unlock()
	if started {
		gohook.End()
	}
}

var modifierAliases = map[string]string{
	"control": "ctrl",
	"option":  "alt",
	"win":     "cmd",
	"super":   "cmd",
	"meta":    "cmd",
}

// parseHotkey splits "Ctrl+Shift+S" into normalized lowercase key names.
func parseHotkey(hotkeyConfig string) []string {
	var keys []string
	for _, part := range strings.Split(strings.ToLower(hotkeyConfig), "+") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if alias, ok := modifierAliases[part]; ok {
			part = alias
		}
		keys = append(keys, part)
	}
	return keys
}

// Windows virtual key codes; gohook reports these as rawcodes on every platform
// it normalizes, and modifiers match either side.
var namedRawcodes = map[string][]uint16{
	"ctrl":  {162, 163},
	"alt":   {164, 165},
	"shift": {160, 161},
	"cmd":   {91, 92},

	"backspace":   {8},
	"tab":         {9},
	"enter":       {13},
	"return":      {13},
	"esc":         {27},
	"escape":      {27},
	"space":       {32},
	"pageup":      {33},
	"pgup":        {33},
	"pagedown":    {34},
	"pgdn":        {34},
	"end":         {35},
	"home":        {36},
	"left":        {37},
	"up":          {38},
	"right":       {39},
	"down":        {40},
	"insert":      {45},
	"ins":         {45},
	"delete":      {46},
	"del":         {46},
	"printscreen": {44},
	"prtsc":       {44},
}

// keyNameToRawcodes maps a key name to its rawcodes, or nil when unknown.
func keyNameToRawcodes(keyName string) []uint16 {
	keyName = strings.ToLower(strings.TrimSpace(keyName))
	if alias, ok := modifierAliases[keyName]; ok {
		keyName = alias
	}
	if codes, ok := namedRawcodes[keyName]; ok {
		return codes
	}

	if len(keyName) == 1 {
		switch c := keyName[0]; {
		case c >= 'a' && c <= 'z':
			return []uint16{uint16('A' + c - 'a')}
		case c >= '0' && c <= '9':
			return []uint16{uint16(c)}
		}
	}

	// F1 is 112 through F24 at 135.
	if strings.HasPrefix(keyName, "f") {
		if n, err := strconv.Atoi(keyName[1:]); err == nil && n >= 1 && n <= 24 {
			return []uint16{uint16(111 + n)}
		}
	}

	log.Printf("WARNING: Unknown key name '%s', cannot map to rawcode", keyName)
	return nil
}
