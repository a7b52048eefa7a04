package overlay

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"log"
	"strings"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// BoxKind says how a composed box is drawn.
type BoxKind int

const (
	BoxShade BoxKind = iota
	BoxSelection
	BoxLabel
	BoxPanel
	BoxText
	BoxImage
	BoxButton
)

// Box is one element placed on the viewport.
type Box struct {
	ID       string
	Kind     BoxKind
	Rect     image.Rectangle
	Text     string
	Class    string
	Image    []byte
	Disabled bool
}

// Scene is the drawable form of a document for one viewport. While Modal is
// set the whole viewport takes pointer input.
type Scene struct {
	Viewport image.Rectangle
	Modal    bool
	Boxes    []Box
}

// Layout in viewport pixels.
const (
	labelTop       = 16
	labelPadX      = 16
	labelPadY      = 8
	panelMargin    = 24
	panelPadding   = 16
	panelGap       = 12
	panelMaxWidth  = 400
	imageMaxHeight = 250
	buttonHeight   = 32
	buttonGap      = 8
	textHeight     = 16
	selectionEdge  = 2
)

// Shade alphas: the overlay alone, outside a selection, inside a selection.
// The inside stays above zero so the selection keeps receiving input.
const (
	shadeAlpha   = 89
	outsideAlpha = 115
	tintAlpha    = 20
)

var (
	selectionGreen = color.NRGBA{R: 0x00, G: 0xe6, B: 0x76, A: 0xff}
	labelGreen     = color.NRGBA{R: 0x00, G: 0xc8, B: 0x53, A: 0xff}
	panelWhite     = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	titleGray      = color.NRGBA{R: 0x55, G: 0x55, B: 0x55, A: 0xff}
	buttonGray     = color.NRGBA{R: 0xf5, G: 0xf5, B: 0xf5, A: 0xff}
	discardRed     = color.NRGBA{R: 0xd3, G: 0x2f, B: 0x2f, A: 0xff}
	textDark       = color.NRGBA{R: 0x21, G: 0x21, B: 0x21, A: 0xff}
)

var face = basicfont.Face7x13

// Compose lays out the visible elements of a page on viewport.
func Compose(els []Element, viewport image.Rectangle) Scene {
	scene := Scene{Viewport: viewport}
	var children []Element
	panel := false
	for _, el := range els {
		if el.Hidden {
			continue
		}
		switch {
		case el.ID == IDCaptureOverlay:
			scene.Modal = true
			scene.Boxes = append(scene.Boxes, Box{ID: el.ID, Kind: BoxShade, Rect: viewport})
		case el.ID == IDSelectionBox:
			r := image.Rect(el.Bounds.Left, el.Bounds.Top, el.Bounds.Right(), el.Bounds.Bottom()).Add(viewport.Min)
			if !r.Empty() {
				scene.Boxes = append(scene.Boxes, Box{ID: el.ID, Kind: BoxSelection, Rect: r})
			}
		case el.ID == IDInstructionLabel:
			w := font.MeasureString(face, el.Text).Ceil() + 2*labelPadX
			h := face.Height + 2*labelPadY
			x := viewport.Min.X + (viewport.Dx()-w)/2
			r := image.Rect(x, viewport.Min.Y+labelTop, x+w, viewport.Min.Y+labelTop+h)
			scene.Boxes = append(scene.Boxes, Box{ID: el.ID, Kind: BoxLabel, Rect: r, Text: el.Text})
		case el.ID == IDPreviewContainer:
			panel = true
		case el.Parent == IDPreviewContainer:
			children = append(children, el)
		}
	}
	if panel {
		scene.Boxes = append(scene.Boxes, layoutPanel(children, viewport)...)
	}
	return scene
}

// layoutPanel stacks text and images above one row of buttons, anchored to
// the bottom-right corner of viewport.
func layoutPanel(children []Element, viewport image.Rectangle) []Box {
	width := min(panelMaxWidth, viewport.Dx()-2*panelMargin)
	inner := width - 2*panelPadding
	if inner <= 0 {
		return nil
	}

	type item struct {
		el     Element
		kind   BoxKind
		width  int
		height int
	}
	var stack []item
	var buttons []Element
	for _, el := range children {
		switch {
		case strings.Contains(el.Class, "snip-btn"):
			buttons = append(buttons, el)
		case len(el.Image) > 0:
			cfg, err := png.DecodeConfig(bytes.NewReader(el.Image))
			if err != nil || cfg.Width == 0 || cfg.Height == 0 {
				log.Printf("Scene: skipping unreadable image %s: %v", el.ID, err)
				continue
			}
			w, h := fit(cfg.Width, cfg.Height, inner, imageMaxHeight)
			stack = append(stack, item{el: el, kind: BoxImage, width: w, height: h})
		default:
			stack = append(stack, item{el: el, kind: BoxText, width: inner, height: textHeight})
		}
	}

	height := 2 * panelPadding
	for i, it := range stack {
		if i > 0 {
			height += panelGap
		}
		height += it.height
	}
	if len(buttons) > 0 {
		if len(stack) > 0 {
			height += panelGap
		}
		height += buttonHeight
	}

	right := viewport.Max.X - panelMargin
	bottom := viewport.Max.Y - panelMargin
	panelRect := image.Rect(right-width, bottom-height, right, bottom)
	boxes := []Box{{ID: IDPreviewContainer, Kind: BoxPanel, Rect: panelRect}}

	x := panelRect.Min.X + panelPadding
	y := panelRect.Min.Y + panelPadding
	for _, it := range stack {
		r := image.Rect(x, y, x+it.width, y+it.height)
		boxes = append(boxes, Box{ID: it.el.ID, Kind: it.kind, Rect: r, Text: it.el.Text, Image: it.el.Image})
		y += it.height + panelGap
	}
	if n := len(buttons); n > 0 {
		bw := (inner - (n-1)*buttonGap) / n
		for i, el := range buttons {
			bx := x + i*(bw+buttonGap)
			boxes = append(boxes, Box{
				ID:       el.ID,
				Kind:     BoxButton,
				Rect:     image.Rect(bx, y, bx+bw, y+buttonHeight),
				Text:     el.Text,
				Class:    el.Class,
				Disabled: el.Disabled,
			})
		}
	}
	return boxes
}

// fit scales w x h down to fit maxW x maxH, keeping the aspect ratio.
func fit(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}
	if w*maxH > h*maxW {
		return maxW, max(1, h*maxW/w)
	}
	return max(1, w*maxH/h), maxH
}

// HitTest returns the id of the topmost panel element at p, or "" when p
// falls on the overlay or outside every element.
func (s Scene) HitTest(p image.Point) string {
	for i := len(s.Boxes) - 1; i >= 0; i-- {
		b := s.Boxes[i]
		switch b.Kind {
		case BoxPanel, BoxText, BoxImage, BoxButton:
			if p.In(b.Rect) {
				return b.ID
			}
		}
	}
	return ""
}

// Covers reports whether the surface takes the pointer at p instead of the
// windows below it.
func (s Scene) Covers(p image.Point) bool {
	if s.Modal {
		return p.In(s.Viewport)
	}
	for _, b := range s.Boxes {
		if b.Kind == BoxPanel && p.In(b.Rect) {
			return true
		}
	}
	return false
}

// Painter rasterizes scenes into premultiplied RGBA. Pixels outside every
// box stay fully transparent.
type Painter struct {
	lastPNG []byte
	lastImg image.Image
}

func (p *Painter) Paint(dst *image.RGBA, s Scene) {
	xdraw.Draw(dst, dst.Bounds(), image.Transparent, image.Point{}, xdraw.Src)

	var selection *Box
	for i := range s.Boxes {
		if s.Boxes[i].Kind == BoxSelection {
			selection = &s.Boxes[i]
		}
	}

	for _, b := range s.Boxes {
		switch b.Kind {
		case BoxShade:
			alpha := uint8(shadeAlpha)
			if selection != nil {
				alpha = outsideAlpha
			}
			fill(dst, b.Rect, color.NRGBA{A: alpha})
		case BoxSelection:
			tint := selectionGreen
			tint.A = tintAlpha
			fill(dst, b.Rect, tint)
			dashedFrame(dst, b.Rect, selectionEdge, selectionGreen)
		case BoxLabel:
			fill(dst, b.Rect, labelGreen)
			drawText(dst, b.Rect, b.Text, color.White, true)
		case BoxPanel:
			fill(dst, b.Rect, panelWhite)
		case BoxText:
			drawText(dst, b.Rect, b.Text, titleGray, false)
		case BoxImage:
			if img := p.decode(b.Image); img != nil {
				xdraw.ApproxBiLinear.Scale(dst, b.Rect, img, img.Bounds(), xdraw.Over, nil)
			}
		case BoxButton:
			bg, fg := buttonColors(b.Class)
			if b.Disabled {
				bg.A, fg.A = 0x99, 0x99
			}
			fill(dst, b.Rect, bg)
			drawText(dst, b.Rect, b.Text, fg, true)
		}
	}
}

func buttonColors(class string) (color.NRGBA, color.NRGBA) {
	switch {
	case strings.Contains(class, "snip-btn-save"):
		return labelGreen, panelWhite
	case strings.Contains(class, "snip-btn-discard"):
		return buttonGray, discardRed
	default:
		return buttonGray, textDark
	}
}

// decode keeps the last preview image; the same bytes come back on every repaint.
func (p *Painter) decode(data []byte) image.Image {
	if len(data) == len(p.lastPNG) && len(data) > 0 && &data[0] == &p.lastPNG[0] {
		return p.lastImg
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		log.Printf("Scene: preview image: %v", err)
		return nil
	}
	p.lastPNG, p.lastImg = data, img
	return img
}

func fill(dst *image.RGBA, r image.Rectangle, c color.Color) {
	xdraw.Draw(dst, r, image.NewUniform(c), image.Point{}, xdraw.Src)
}

func dashedFrame(dst *image.RGBA, r image.Rectangle, width int, c color.Color) {
	const dash, gap = 6, 4
	for x := r.Min.X; x < r.Max.X; x += dash + gap {
		end := min(x+dash, r.Max.X)
		fill(dst, image.Rect(x, r.Min.Y, end, r.Min.Y+width), c)
		fill(dst, image.Rect(x, r.Max.Y-width, end, r.Max.Y), c)
	}
	for y := r.Min.Y; y < r.Max.Y; y += dash + gap {
		end := min(y+dash, r.Max.Y)
		fill(dst, image.Rect(r.Min.X, y, r.Min.X+width, end), c)
		fill(dst, image.Rect(r.Max.X-width, y, r.Max.X, end), c)
	}
}

func drawText(dst *image.RGBA, r image.Rectangle, text string, c color.Color, center bool) {
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(c), Face: face}
	x := r.Min.X
	if center {
		x += (r.Dx() - d.MeasureString(text).Ceil()) / 2
	}
	y := r.Min.Y + (r.Dy()-face.Height)/2 + face.Ascent
	d.Dot = fixed.P(x, y)
	d.DrawString(text)
}

// toBGRA converts premultiplied RGBA pixels to the BGRA order of a 32-bit DIB.
func toBGRA(dst, src []byte) {
	for i := 0; i+3 < len(src) && i+3 < len(dst); i += 4 {
		dst[i], dst[i+1], dst[i+2], dst[i+3] = src[i+2], src[i+1], src[i], src[i+3]
	}
}
