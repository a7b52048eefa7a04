package overlay

import "image"

// Pointer turns raw button, motion and key input on a surface into document
// events. A click fires when the button is released over the element it was
// pressed on. Methods are called from the surface's input thread only.
type Pointer struct {
	doc     *Document
	down    bool
	pressed string
}

func NewPointer(doc *Document) *Pointer {
	return &Pointer{doc: doc}
}

func (p *Pointer) Down(s Scene, at image.Point) {
	p.down = true
	p.pressed = s.HitTest(at)
	p.doc.Dispatch(Event{Type: PointerDown, Target: p.pressed, X: at.X, Y: at.Y})
}

// Move only reports motion while the button is held.
func (p *Pointer) Move(at image.Point) {
	if !p.down {
		return
	}
	p.doc.Dispatch(Event{Type: PointerMove, X: at.X, Y: at.Y})
}

func (p *Pointer) Up(s Scene, at image.Point) {
	if !p.down {
		return
	}
	p.down = false
	p.doc.Dispatch(Event{Type: PointerUp, X: at.X, Y: at.Y})
	if p.pressed != "" && s.HitTest(at) == p.pressed {
		p.doc.Dispatch(Event{Type: Click, Target: p.pressed, X: at.X, Y: at.Y})
	}
	p.pressed = ""
}

func (p *Pointer) Key(name string) {
	p.doc.Dispatch(Event{Type: KeyDown, Key: name})
}
