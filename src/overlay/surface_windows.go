//go:build windows

package overlay

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"os"
	"runtime"
	"sync"
	"syscall"
	"unsafe"

	"github.com/lxn/win"

	"snipping-tool/src/screenshot"
)

const (
	wmRepaint = win.WM_USER + 1
	wmDismiss = win.WM_USER + 2
)

const (
	ulwAlpha   = 0x2
	acSrcOver  = 0x0
	acSrcAlpha = 0x1
)

var (
	user32DLL                    = syscall.NewLazyDLL("user32.dll")
	procUpdateLayeredWindow      = user32DLL.NewProc("UpdateLayeredWindow")
	procAllowSetForegroundWindow = user32DLL.NewProc("AllowSetForegroundWindow")
)

type blendFunction struct {
	BlendOp             byte
	BlendFlags          byte
	SourceConstantAlpha byte
	AlphaFormat         byte
}

var (
	classOnce   sync.Once
	classErr    error
	className   = syscall.StringToUTF16Ptr("SnipCaptureSurface")
	crossCursor win.HCURSOR

	// surfaces maps live window handles to their state for the window procedure.
	surfaces sync.Map
)

// windowSurface shows each document in a topmost layered window covering the
// document's display. Fully transparent pixels let the pointer through; while
// the capture overlay is up every pixel is shaded, so the window is modal.
type windowSurface struct{}

func NativeSurface() Surface { return windowSurface{} }

func (windowSurface) DeliversInput() bool { return true }

func (windowSurface) Present(ctx context.Context, doc *Document) error {
	bounds, err := screenshot.GetDisplayBounds(doc.Tab().WindowID)
	if err != nil {
		return fmt.Errorf("display bounds: %w", err)
	}

	ready := make(chan error, 1)
	go func() {
		// a window belongs to the thread that created it
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		w, err := newLayeredWindow(doc, bounds)
		ready <- err
		if err != nil {
			return
		}
		w.run(ctx)
	}()
	return <-ready
}

type layeredWindow struct {
	hwnd    win.HWND
	doc     *Document
	bounds  image.Rectangle
	canvas  *image.RGBA
	painter Painter
	pointer *Pointer
	scene   Scene
	shown   bool
	modal   bool
}

func registerClass() error {
	classOnce.Do(func() {
		crossCursor = win.LoadCursor(0, win.MAKEINTRESOURCE(win.IDC_CROSS))
		wc := win.WNDCLASSEX{
			CbSize:        uint32(unsafe.Sizeof(win.WNDCLASSEX{})),
			LpfnWndProc:   syscall.NewCallback(surfaceWndProc),
			HInstance:     win.GetModuleHandle(nil),
			HCursor:       win.LoadCursor(0, win.MAKEINTRESOURCE(win.IDC_ARROW)),
			LpszClassName: className,
		}
		if win.RegisterClassEx(&wc) == 0 {
			classErr = errors.New("failed to register surface window class")
		}
	})
	return classErr
}

func newLayeredWindow(doc *Document, bounds image.Rectangle) (*layeredWindow, error) {
	if err := registerClass(); err != nil {
		return nil, err
	}
	hwnd := win.CreateWindowEx(
		win.WS_EX_LAYERED|win.WS_EX_TOPMOST|win.WS_EX_TOOLWINDOW,
		className,
		syscall.StringToUTF16Ptr("Snip"),
		win.WS_POPUP,
		int32(bounds.Min.X), int32(bounds.Min.Y), int32(bounds.Dx()), int32(bounds.Dy()),
		0, 0, win.GetModuleHandle(nil), nil,
	)
	if hwnd == 0 {
		return nil, errors.New("failed to create surface window")
	}
	w := &layeredWindow{
		hwnd:    hwnd,
		doc:     doc,
		bounds:  bounds,
		canvas:  image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy())),
		pointer: NewPointer(doc),
	}
	surfaces.Store(hwnd, w)
	log.Printf("Surface: window %v over display %d at %v", hwnd, doc.Tab().WindowID, bounds)
	return w, nil
}

// run pumps the window's messages until it is destroyed. Document changes are
// posted to the window so every paint happens on its thread.
func (w *layeredWindow) run(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				win.PostMessage(w.hwnd, wmDismiss, 0, 0)
				return
			case <-w.doc.Closed():
				win.PostMessage(w.hwnd, wmDismiss, 0, 0)
				return
			case <-w.doc.Changes():
				win.PostMessage(w.hwnd, wmRepaint, 0, 0)
			}
		}
	}()

	var msg win.MSG
	for win.GetMessage(&msg, 0, 0, 0) > 0 {
		win.TranslateMessage(&msg)
		win.DispatchMessage(&msg)
	}
}

func (w *layeredWindow) repaint() {
	w.scene = Compose(w.doc.Snapshot(), w.canvas.Bounds())
	if len(w.scene.Boxes) == 0 {
		if w.shown {
			win.ReleaseCapture()
			win.ShowWindow(w.hwnd, win.SW_HIDE)
			w.shown, w.modal = false, false
		}
		return
	}

	w.painter.Paint(w.canvas, w.scene)
	if err := w.present(); err != nil {
		log.Printf("Surface: %v", err)
		return
	}
	if !w.shown {
		win.ShowWindow(w.hwnd, win.SW_SHOWNOACTIVATE)
		w.shown = true
	}
	if w.scene.Modal && !w.modal {
		procAllowSetForegroundWindow.Call(uintptr(os.Getpid()))
		win.SetForegroundWindow(w.hwnd)
		win.SetFocus(w.hwnd)
	}
	w.modal = w.scene.Modal
}

// present copies the canvas into a DIB and hands it to the layered window
// with per-pixel alpha.
func (w *layeredWindow) present() error {
	screenDC := win.GetDC(0)
	defer win.ReleaseDC(0, screenDC)
	memDC := win.CreateCompatibleDC(screenDC)
	defer win.DeleteDC(memDC)

	size := w.canvas.Bounds().Size()
	header := win.BITMAPINFOHEADER{
		BiSize:        uint32(unsafe.Sizeof(win.BITMAPINFOHEADER{})),
		BiWidth:       int32(size.X),
		BiHeight:      -int32(size.Y), // top-down
		BiPlanes:      1,
		BiBitCount:    32,
		BiCompression: win.BI_RGB,
	}
	var bits unsafe.Pointer
	bitmap := win.CreateDIBSection(memDC, &header, win.DIB_RGB_COLORS, &bits, 0, 0)
	if bitmap == 0 {
		return errors.New("CreateDIBSection failed")
	}
	defer win.DeleteObject(win.HGDIOBJ(bitmap))
	old := win.SelectObject(memDC, win.HGDIOBJ(bitmap))
	defer win.SelectObject(memDC, old)

	toBGRA(unsafe.Slice((*byte)(bits), len(w.canvas.Pix)), w.canvas.Pix)

	dst := win.POINT{X: int32(w.bounds.Min.X), Y: int32(w.bounds.Min.Y)}
	extent := win.SIZE{CX: int32(size.X), CY: int32(size.Y)}
	src := win.POINT{}
	blend := blendFunction{BlendOp: acSrcOver, SourceConstantAlpha: 255, AlphaFormat: acSrcAlpha}
	ret, _, callErr := procUpdateLayeredWindow.Call(
		uintptr(w.hwnd), uintptr(screenDC),
		uintptr(unsafe.Pointer(&dst)), uintptr(unsafe.Pointer(&extent)),
		uintptr(memDC), uintptr(unsafe.Pointer(&src)),
		0, uintptr(unsafe.Pointer(&blend)), ulwAlpha,
	)
	if ret == 0 {
		return fmt.Errorf("UpdateLayeredWindow: %v", callErr)
	}
	return nil
}

// clientPoint reads signed client coordinates; they go negative while the
// mouse is captured outside the window.
func clientPoint(lParam uintptr) image.Point {
	return image.Pt(int(int16(win.LOWORD(uint32(lParam)))), int(int16(win.HIWORD(uint32(lParam)))))
}

func surfaceWndProc(hwnd win.HWND, msg uint32, wParam, lParam uintptr) uintptr {
	v, ok := surfaces.Load(hwnd)
	if !ok {
		return win.DefWindowProc(hwnd, msg, wParam, lParam)
	}
	w := v.(*layeredWindow)

	switch msg {
	case wmRepaint:
		w.repaint()
		return 0
	case wmDismiss:
		win.DestroyWindow(hwnd)
		return 0
	case win.WM_LBUTTONDOWN:
		win.SetCapture(hwnd)
		w.pointer.Down(w.scene, clientPoint(lParam))
		return 0
	case win.WM_MOUSEMOVE:
		w.pointer.Move(clientPoint(lParam))
		return 0
	case win.WM_LBUTTONUP:
		win.ReleaseCapture()
		w.pointer.Up(w.scene, clientPoint(lParam))
		return 0
	case win.WM_KEYDOWN:
		if wParam == win.VK_ESCAPE {
			w.pointer.Key(KeyEscape)
		}
		return 0
	case win.WM_SETCURSOR:
		if w.modal && crossCursor != 0 {
			win.SetCursor(crossCursor)
			return 1
		}
	case win.WM_DESTROY:
		surfaces.Delete(hwnd)
		log.Printf("Surface: window %v destroyed", hwnd)
		win.PostQuitMessage(0)
		return 0
	}
	return win.DefWindowProc(hwnd, msg, wParam, lParam)
}
