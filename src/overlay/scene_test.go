package overlay

import (
	"context"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snipping-tool/src/host"
	"snipping-tool/src/messages"
	"snipping-tool/src/screenshot"
)

var viewport = image.Rect(0, 0, 800, 600)

func pngOf(t *testing.T, w, h int) []byte {
	t.Helper()
	data, err := screenshot.EncodePNG(image.NewRGBA(image.Rect(0, 0, w, h)))
	require.NoError(t, err)
	return data
}

func kinds(s Scene) []BoxKind {
	out := make([]BoxKind, len(s.Boxes))
	for i, b := range s.Boxes {
		out[i] = b.Kind
	}
	return out
}

func box(t *testing.T, s Scene, id string) Box {
	t.Helper()
	for _, b := range s.Boxes {
		if b.ID == id {
			return b
		}
	}
	t.Fatalf("no box %s in scene", id)
	return Box{}
}

func center(r image.Rectangle) image.Point {
	return image.Pt((r.Min.X+r.Max.X)/2, (r.Min.Y+r.Max.Y)/2)
}

func draggingPage() []Element {
	return []Element{
		{ID: IDCaptureOverlay},
		{ID: IDSelectionBox, Bounds: screenshot.Rect{Left: 100, Top: 100, Width: 200, Height: 150}},
		{ID: IDInstructionLabel, Text: InstructionText},
	}
}

func previewPage(t *testing.T, img []byte) []Element {
	return []Element{
		{ID: IDStyles, Text: ".snip-btn{}"},
		{ID: IDPreviewContainer},
		{ID: "title", Parent: IDPreviewContainer, Text: "Capture complete"},
		{ID: "image", Parent: IDPreviewContainer, Image: img},
		{ID: "discard", Parent: IDPreviewContainer, Class: "snip-btn snip-btn-discard", Text: "Discard"},
		{ID: "copy", Parent: IDPreviewContainer, Class: "snip-btn", Text: "Copy"},
		{ID: "save", Parent: IDPreviewContainer, Class: "snip-btn snip-btn-save", Text: "Save"},
	}
}

func TestComposeWhileDragging(t *testing.T) {
	s := Compose(draggingPage(), viewport)

	assert.True(t, s.Modal)
	assert.Equal(t, []BoxKind{BoxShade, BoxSelection, BoxLabel}, kinds(s))
	assert.Equal(t, viewport, box(t, s, IDCaptureOverlay).Rect)
	assert.Equal(t, image.Rect(100, 100, 300, 250), box(t, s, IDSelectionBox).Rect)

	label := box(t, s, IDInstructionLabel).Rect
	assert.Equal(t, labelTop, label.Min.Y)
	assert.InDelta(t, 400, center(label).X, 1)

	for _, p := range []image.Point{{0, 0}, {150, 150}, {799, 599}} {
		assert.True(t, s.Covers(p), "%v", p)
		assert.Empty(t, s.HitTest(p))
	}
}

func TestComposeSkipsHiddenElements(t *testing.T) {
	page := draggingPage()
	for i := range page {
		page[i].Hidden = true
	}
	s := Compose(page, viewport)
	assert.False(t, s.Modal)
	assert.Empty(t, s.Boxes)
	assert.False(t, s.Covers(image.Pt(10, 10)))
}

func TestComposeSkipsEmptySelection(t *testing.T) {
	s := Compose([]Element{{ID: IDCaptureOverlay}, {ID: IDSelectionBox}}, viewport)
	assert.Equal(t, []BoxKind{BoxShade}, kinds(s))
}

func TestComposePreviewPanel(t *testing.T) {
	vp := image.Rect(0, 0, 1280, 720)
	s := Compose(previewPage(t, pngOf(t, 200, 100)), vp)

	assert.False(t, s.Modal)
	assert.Equal(t, []BoxKind{BoxPanel, BoxText, BoxImage, BoxButton, BoxButton, BoxButton}, kinds(s))

	panel := box(t, s, IDPreviewContainer).Rect
	assert.Equal(t, image.Pt(1280-panelMargin, 720-panelMargin), panel.Max)
	assert.Equal(t, panelMaxWidth, panel.Dx())

	img := box(t, s, "image").Rect
	assert.Equal(t, image.Pt(200, 100), img.Size())
	assert.True(t, img.In(panel))

	var widths []int
	for _, id := range []string{"discard", "copy", "save"} {
		b := box(t, s, id)
		assert.True(t, b.Rect.In(panel), id)
		assert.Equal(t, buttonHeight, b.Rect.Dy())
		assert.Equal(t, id, s.HitTest(center(b.Rect)))
		widths = append(widths, b.Rect.Dx())
	}
	assert.Equal(t, widths[0], widths[1])
	assert.Equal(t, widths[1], widths[2])
	assert.Less(t, box(t, s, "discard").Rect.Min.X, box(t, s, "save").Rect.Min.X)

	assert.True(t, s.Covers(center(panel)))
	assert.False(t, s.Covers(image.Pt(10, 10)))
	assert.Empty(t, s.HitTest(image.Pt(10, 10)))
}

func TestComposeFitsLargeImage(t *testing.T) {
	s := Compose(previewPage(t, pngOf(t, 1000, 500)), image.Rect(0, 0, 1280, 720))
	inner := panelMaxWidth - 2*panelPadding
	assert.Equal(t, image.Pt(inner, 500*inner/1000), box(t, s, "image").Rect.Size())

	s = Compose(previewPage(t, pngOf(t, 100, 1000)), image.Rect(0, 0, 1280, 1200))
	assert.Equal(t, image.Pt(100*imageMaxHeight/1000, imageMaxHeight), box(t, s, "image").Rect.Size())
}

func TestComposeSkipsUnreadableImage(t *testing.T) {
	s := Compose(previewPage(t, []byte("not a png")), image.Rect(0, 0, 1280, 720))
	assert.NotContains(t, kinds(s), BoxImage)
}

func TestPaintShadesWholeViewport(t *testing.T) {
	dst := image.NewRGBA(viewport)
	var p Painter
	p.Paint(dst, Compose([]Element{{ID: IDCaptureOverlay}}, viewport))

	for _, pt := range []image.Point{{0, 0}, {400, 300}, {799, 599}} {
		assert.Equal(t, uint8(shadeAlpha), dst.RGBAAt(pt.X, pt.Y).A, "%v", pt)
	}
}

func TestPaintSelection(t *testing.T) {
	dst := image.NewRGBA(viewport)
	var p Painter
	p.Paint(dst, Compose(draggingPage(), viewport))

	assert.Equal(t, uint8(outsideAlpha), dst.RGBAAt(50, 500).A)
	inside := dst.RGBAAt(200, 175)
	assert.Equal(t, uint8(tintAlpha), inside.A)
	assert.NotZero(t, inside.G)
	assert.Equal(t, color.RGBA{R: 0x00, G: 0xe6, B: 0x76, A: 0xff}, dst.RGBAAt(101, 101))
}

func TestPaintLeavesUncoveredPixelsClear(t *testing.T) {
	vp := image.Rect(0, 0, 1280, 720)
	s := Compose(previewPage(t, pngOf(t, 200, 100)), vp)
	dst := image.NewRGBA(vp)
	var p Painter
	p.Paint(dst, s)

	assert.Zero(t, dst.RGBAAt(10, 10).A)
	panel := box(t, s, IDPreviewContainer).Rect
	assert.Equal(t, color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}, dst.RGBAAt(panel.Min.X+2, panel.Min.Y+2))
	save := box(t, s, "save").Rect
	assert.Equal(t, uint8(0xff), dst.RGBAAt(save.Min.X+1, save.Min.Y+1).A)

	// the same bytes are decoded once across repaints
	p.Paint(dst, s)
	assert.NotNil(t, p.lastImg)
}

func TestPaintClearsPreviousFrame(t *testing.T) {
	dst := image.NewRGBA(viewport)
	var p Painter
	p.Paint(dst, Compose([]Element{{ID: IDCaptureOverlay}}, viewport))
	p.Paint(dst, Scene{Viewport: viewport})
	assert.Zero(t, dst.RGBAAt(400, 300).A)
}

func TestToBGRA(t *testing.T) {
	dst := make([]byte, 8)
	toBGRA(dst, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	assert.Equal(t, []byte{3, 2, 1, 4, 7, 6, 5, 8}, dst)
}

func TestPointerClicksElementUnderRelease(t *testing.T) {
	doc := runningDocument(t)
	var clicks atomic.Int32
	doc.AddListener(Click, "save", func(Event) { clicks.Add(1) })
	s := Compose(previewPage(t, pngOf(t, 20, 20)), image.Rect(0, 0, 1280, 720))
	save := center(box(t, s, "save").Rect)

	p := NewPointer(doc)
	p.Down(s, save)
	p.Up(s, save)
	flush(t, doc)
	assert.Equal(t, int32(1), clicks.Load())

	// pressed on the button, released elsewhere
	p.Down(s, save)
	p.Up(s, image.Pt(10, 10))
	flush(t, doc)
	assert.Equal(t, int32(1), clicks.Load())

	// release without a press
	p.Up(s, save)
	flush(t, doc)
	assert.Equal(t, int32(1), clicks.Load())
}

func TestPointerDrivesSelection(t *testing.T) {
	doc := runningDocument(t)
	m := &fakeMessenger{dataURL: surfaceDataURL(t, 800, 600)}
	target := &recordingTarget{}
	sel := Activate(context.Background(), doc, Options{Messenger: m, Target: target, ViewportWidth: 800})
	flush(t, doc)

	p := NewPointer(doc)
	p.Move(image.Pt(50, 50))
	p.Down(Compose(doc.Snapshot(), viewport), image.Pt(100, 100))
	p.Move(image.Pt(200, 200))
	p.Up(Compose(doc.Snapshot(), viewport), image.Pt(300, 250))
	waitDone(t, sel)

	require.NoError(t, sel.Err())
	assert.Equal(t, screenshot.Rect{Left: 100, Top: 100, Width: 200, Height: 150}, sel.Rect())
	assert.Len(t, target.Delivered(), 1)
}

func TestPointerEscapeCancels(t *testing.T) {
	doc := runningDocument(t)
	sel := Activate(context.Background(), doc, Options{Messenger: &fakeMessenger{}})
	flush(t, doc)

	NewPointer(doc).Key(KeyEscape)
	waitDone(t, sel)
	assert.ErrorIs(t, sel.Err(), ErrSelectionCancelled)
}

// composingMessenger records what the surface would draw at the moment the
// visible surface is captured.
type composingMessenger struct {
	fakeMessenger
	doc   *Document
	mu    sync.Mutex
	boxes []Box
}

func (m *composingMessenger) Call(ctx context.Context, msg messages.Message) (messages.Result, error) {
	if _, ok := msg.(messages.CaptureVisibleSurface); ok {
		m.mu.Lock()
		m.boxes = Compose(m.doc.Snapshot(), viewport).Boxes
		m.mu.Unlock()
	}
	return m.fakeMessenger.Call(ctx, msg)
}

func TestSurfaceIsBlankWhenCaptured(t *testing.T) {
	doc := runningDocument(t)
	m := &composingMessenger{fakeMessenger: fakeMessenger{dataURL: surfaceDataURL(t, 800, 600)}, doc: doc}
	sel := Activate(context.Background(), doc, Options{Messenger: m, Target: &recordingTarget{}, ViewportWidth: 800})
	flush(t, doc)
	assert.True(t, Compose(doc.Snapshot(), viewport).Modal)

	drag(doc, screenshot.Point{X: 100, Y: 100}, screenshot.Point{X: 300, Y: 250})
	waitDone(t, sel)

	require.NoError(t, sel.Err())
	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Empty(t, m.boxes)
}

type recordingSurface struct {
	mu        sync.Mutex
	presented []host.Tab
	input     bool
}

func (s *recordingSurface) Present(ctx context.Context, doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presented = append(s.presented, doc.Tab())
	return nil
}

func (s *recordingSurface) DeliversInput() bool { return s.input }

func TestInjectorPresentsEachDocumentOnce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	surface := &recordingSurface{input: true}
	inj := NewInjector(ctx, surface)
	defer inj.Close()

	tab := host.Tab{ID: 3, WindowID: 1, URL: "screen://1"}
	inj.Document(tab)
	inj.Document(tab)
	inj.Document(host.Tab{ID: 4, URL: "screen://0"})

	surface.mu.Lock()
	defer surface.mu.Unlock()
	require.Len(t, surface.presented, 2)
	assert.Equal(t, 1, surface.presented[0].WindowID)
	assert.True(t, inj.DeliversInput())

	headless := NewInjector(ctx, nil)
	defer headless.Close()
	assert.False(t, headless.DeliversInput())
}
