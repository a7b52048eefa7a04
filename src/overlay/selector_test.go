package overlay

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snipping-tool/src/host"
	"snipping-tool/src/messages"
	"snipping-tool/src/screenshot"
)

type fakeMessenger struct {
	mu      sync.Mutex
	calls   int
	dataURL string
	err     error
	release chan struct{} // when set, Call blocks until closed or ctx ends
}

func (m *fakeMessenger) Call(ctx context.Context, msg messages.Message) (messages.Result, error) {
	m.mu.Lock()
	m.calls++
	release := m.release
	m.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return messages.Result{}, ctx.Err()
		}
	}
	if m.err != nil {
		return messages.Fail(m.err), nil
	}
	return messages.Result{Success: true, DataURL: m.dataURL}, nil
}

func (m *fakeMessenger) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type recordingTarget struct {
	mu        sync.Mutex
	delivered []string
}

func (r *recordingTarget) Deliver(ctx context.Context, doc *Document, dataURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delivered = append(r.delivered, dataURL)
	return nil
}

func (r *recordingTarget) Delivered() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.delivered...)
}

func surfaceDataURL(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), A: 255})
		}
	}
	png, err := screenshot.EncodePNG(img)
	require.NoError(t, err)
	return screenshot.EncodeDataURL(png)
}

func runningDocument(t *testing.T) *Document {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	doc := NewDocument(host.Tab{ID: 1, URL: "screen://0", DevicePixelRatio: 2})
	go doc.Run(ctx)
	return doc
}

func waitDone(t *testing.T, s *Selector) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(3 * time.Second):
		t.Fatalf("selector did not terminate, state %s", s.State())
	}
}

// flush waits until every task queued before it has run.
func flush(t *testing.T, doc *Document) {
	t.Helper()
	require.NoError(t, doc.Do(func() {}))
}

func drag(doc *Document, from, to screenshot.Point) {
	doc.Dispatch(Event{Type: PointerDown, X: from.X, Y: from.Y})
	doc.Dispatch(Event{Type: PointerMove, X: (from.X + to.X) / 2, Y: (from.Y + to.Y) / 2})
	doc.Dispatch(Event{Type: PointerUp, X: to.X, Y: to.Y})
}

func assertClean(t *testing.T, doc *Document) {
	t.Helper()
	for _, id := range SelectorElementIDs {
		_, ok := doc.Element(id)
		assert.False(t, ok, "element %s left behind", id)
	}
	assert.Equal(t, 0, doc.ListenerCount())
	_, ok := doc.Global(activeKey)
	assert.False(t, ok)
}

func TestSelectionCropsByDevicePixelRatio(t *testing.T) {
	doc := runningDocument(t)
	m := &fakeMessenger{dataURL: surfaceDataURL(t, 800, 600)}
	target := &recordingTarget{}

	s := Activate(context.Background(), doc, Options{Messenger: m, Target: target, DevicePixelRatio: 2})
	drag(doc, screenshot.Point{X: 100, Y: 100}, screenshot.Point{X: 300, Y: 250})
	waitDone(t, s)

	require.NoError(t, s.Err())
	assert.Equal(t, screenshot.Rect{Left: 100, Top: 100, Width: 200, Height: 150}, s.Rect())
	assert.Equal(t, 1, m.Calls())

	delivered := target.Delivered()
	require.Len(t, delivered, 1)
	_, png, err := screenshot.DecodeDataURL(delivered[0])
	require.NoError(t, err)
	img, err := screenshot.DecodePNG(png)
	require.NoError(t, err)
	assert.Equal(t, 400, img.Bounds().Dx())
	assert.Equal(t, 300, img.Bounds().Dy())

	assertClean(t, doc)
}

func cropSize(t *testing.T, dataURL string) (int, int) {
	t.Helper()
	_, png, err := screenshot.DecodeDataURL(dataURL)
	require.NoError(t, err)
	img, err := screenshot.DecodePNG(png)
	require.NoError(t, err)
	return img.Bounds().Dx(), img.Bounds().Dy()
}

func TestSelectionDerivesRatioFromCapture(t *testing.T) {
	tests := []struct {
		name          string
		viewportWidth int
		wantW, wantH  int
	}{
		{name: "capture twice the viewport", viewportWidth: 400, wantW: 400, wantH: 300},
		{name: "pointer already in physical pixels", viewportWidth: 800, wantW: 200, wantH: 150},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := runningDocument(t)
			m := &fakeMessenger{dataURL: surfaceDataURL(t, 800, 600)}
			target := &recordingTarget{}

			s := Activate(context.Background(), doc, Options{Messenger: m, Target: target, ViewportWidth: tt.viewportWidth})
			drag(doc, screenshot.Point{X: 100, Y: 100}, screenshot.Point{X: 300, Y: 250})
			waitDone(t, s)

			require.NoError(t, s.Err())
			delivered := target.Delivered()
			require.Len(t, delivered, 1)
			w, h := cropSize(t, delivered[0])
			assert.Equal(t, tt.wantW, w)
			assert.Equal(t, tt.wantH, h)
			assertClean(t, doc)
		})
	}
}

func TestTinySelectionIssuesNoCapture(t *testing.T) {
	doc := runningDocument(t)
	m := &fakeMessenger{dataURL: surfaceDataURL(t, 100, 100)}
	target := &recordingTarget{}

	s := Activate(context.Background(), doc, Options{Messenger: m, Target: target})
	drag(doc, screenshot.Point{X: 50, Y: 50}, screenshot.Point{X: 55, Y: 52})
	waitDone(t, s)

	assert.ErrorIs(t, s.Err(), ErrSelectionCancelled)
	assert.Equal(t, Terminated, s.State())
	assert.Equal(t, 0, m.Calls())
	assert.Empty(t, target.Delivered())
	assertClean(t, doc)
}

func TestEscapeBeforeCaptureTearsDown(t *testing.T) {
	doc := runningDocument(t)
	m := &fakeMessenger{dataURL: surfaceDataURL(t, 100, 100)}

	s := Activate(context.Background(), doc, Options{Messenger: m, Target: &recordingTarget{}})
	doc.Dispatch(Event{Type: PointerDown, X: 10, Y: 10})
	doc.Dispatch(Event{Type: PointerMove, X: 60, Y: 60})
	doc.Dispatch(Event{Type: KeyDown, Key: KeyEscape})
	waitDone(t, s)

	doc.Dispatch(Event{Type: PointerUp, X: 80, Y: 80})
	flush(t, doc)

	assert.ErrorIs(t, s.Err(), ErrSelectionCancelled)
	assert.Equal(t, 0, m.Calls())
	assert.Empty(t, doc.ElementIDs())
	assertClean(t, doc)
}

func TestOtherKeysAreIgnored(t *testing.T) {
	doc := runningDocument(t)
	s := Activate(context.Background(), doc, Options{Messenger: &fakeMessenger{}})
	doc.Dispatch(Event{Type: KeyDown, Key: "a"})
	flush(t, doc)
	assert.Equal(t, Selecting, s.State())
}

func TestReactivationLeavesOneOverlay(t *testing.T) {
	doc := runningDocument(t)
	m := &fakeMessenger{dataURL: surfaceDataURL(t, 100, 100)}

	first := Activate(context.Background(), doc, Options{Messenger: m})
	second := Activate(context.Background(), doc, Options{Messenger: m})
	flush(t, doc)
	waitDone(t, first)

	assert.ErrorIs(t, first.Err(), ErrSuperseded)
	assert.Equal(t, Selecting, second.State())
	assert.ElementsMatch(t, SelectorElementIDs, doc.ElementIDs())
	assert.Equal(t, 2, doc.ListenerCount())

	doc.Dispatch(Event{Type: KeyDown, Key: KeyEscape})
	waitDone(t, second)
	assertClean(t, doc)
}

func TestCaptureFailureTearsDownSilently(t *testing.T) {
	doc := runningDocument(t)
	m := &fakeMessenger{err: errors.New("compositor unavailable")}
	target := &recordingTarget{}

	s := Activate(context.Background(), doc, Options{Messenger: m, Target: target})
	drag(doc, screenshot.Point{X: 0, Y: 0}, screenshot.Point{X: 40, Y: 40})
	waitDone(t, s)

	require.Error(t, s.Err())
	assert.Contains(t, s.Err().Error(), "compositor unavailable")
	assert.Empty(t, target.Delivered())
	assertClean(t, doc)
}

func TestCropFailureTearsDown(t *testing.T) {
	doc := runningDocument(t)
	m := &fakeMessenger{dataURL: "data:image/png;base64,bm90LWEtcG5n"}
	target := &recordingTarget{}

	s := Activate(context.Background(), doc, Options{Messenger: m, Target: target})
	drag(doc, screenshot.Point{X: 0, Y: 0}, screenshot.Point{X: 40, Y: 40})
	waitDone(t, s)

	require.Error(t, s.Err())
	assert.Contains(t, s.Err().Error(), "crop failed")
	assert.Empty(t, target.Delivered())
	assertClean(t, doc)
}

func TestEscapeIgnoredOnceCaptured(t *testing.T) {
	doc := runningDocument(t)
	release := make(chan struct{})
	m := &fakeMessenger{dataURL: surfaceDataURL(t, 100, 100), release: release}
	target := &recordingTarget{}

	s := Activate(context.Background(), doc, Options{Messenger: m, Target: target})
	drag(doc, screenshot.Point{X: 0, Y: 0}, screenshot.Point{X: 40, Y: 40})
	doc.Dispatch(Event{Type: KeyDown, Key: KeyEscape})
	flush(t, doc)
	assert.Equal(t, Captured, s.State())

	overlay, ok := doc.Element(IDCaptureOverlay)
	require.True(t, ok)
	assert.True(t, overlay.Hidden)

	close(release)
	waitDone(t, s)
	require.NoError(t, s.Err())
	assert.Len(t, target.Delivered(), 1)
	assertClean(t, doc)
}

func TestSupersededCaptureIsDropped(t *testing.T) {
	doc := runningDocument(t)
	release := make(chan struct{})
	m := &fakeMessenger{dataURL: surfaceDataURL(t, 100, 100), release: release}
	target := &recordingTarget{}

	first := Activate(context.Background(), doc, Options{Messenger: m, Target: target})
	drag(doc, screenshot.Point{X: 0, Y: 0}, screenshot.Point{X: 40, Y: 40})
	require.Eventually(t, func() bool { return m.Calls() == 1 }, 2*time.Second, 5*time.Millisecond)

	second := Activate(context.Background(), doc, Options{Messenger: &fakeMessenger{}, Target: target})
	waitDone(t, first)
	close(release)
	flush(t, doc)

	assert.ErrorIs(t, first.Err(), ErrSuperseded)
	assert.Empty(t, target.Delivered())
	assert.Equal(t, Selecting, second.State())
	assert.ElementsMatch(t, SelectorElementIDs, doc.ElementIDs())
}

func TestActivateOnClosedDocument(t *testing.T) {
	doc := NewDocument(host.Tab{})
	doc.Close()
	s := Activate(context.Background(), doc, Options{Messenger: &fakeMessenger{}})
	waitDone(t, s)
	assert.ErrorIs(t, s.Err(), ErrDocumentClosed)
}
