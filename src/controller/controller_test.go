package controller

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snipping-tool/src/host"
	"snipping-tool/src/messages"
	"snipping-tool/src/screenshot"
)

type fakeTabs struct {
	tab host.Tab
	err error
}

func (f fakeTabs) ActiveTab(ctx context.Context) (host.Tab, error) { return f.tab, f.err }

type fakeCompositor struct {
	png      []byte
	err      error
	windowID int
}

func (f *fakeCompositor) CaptureVisible(ctx context.Context, windowID int) ([]byte, error) {
	f.windowID = windowID
	return f.png, f.err
}

type fakeDownloads struct {
	requests []host.DownloadRequest
	err      error
}

func (f *fakeDownloads) Download(ctx context.Context, req host.DownloadRequest) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.requests = append(f.requests, req)
	return len(f.requests), nil
}

type fakePrefs struct {
	folder       string
	useDirectory bool
}

func (p fakePrefs) SaveFolder() string { return p.folder }
func (p fakePrefs) UseDirectory() bool { return p.useDirectory }

type fakeLauncher struct {
	started []string
	err     error
}

func (l *fakeLauncher) EnsureRunning(name string) error {
	l.started = append(l.started, name)
	return l.err
}

type fakeRequester struct {
	result messages.Result
	err    error
	sent   []messages.Envelope
}

func (r *fakeRequester) Request(ctx context.Context, env messages.Envelope) (messages.Result, error) {
	r.sent = append(r.sent, env)
	return r.result, r.err
}

func handle(c *Controller, msg messages.Message) messages.Result {
	return c.Handle(context.Background(), messages.Envelope{From: messages.ContextPopup, To: messages.ContextController, Message: msg})
}

func TestCaptureUsesSenderWindow(t *testing.T) {
	comp := &fakeCompositor{png: []byte("raw")}
	c := New(Options{Tabs: fakeTabs{err: host.ErrNoActiveTab}, Compositor: comp})

	res := c.Handle(context.Background(), messages.Envelope{
		Sender:  &host.Tab{ID: 3, WindowID: 7, URL: "screen://0"},
		Message: messages.CaptureVisibleSurface{},
	})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 7, comp.windowID)
	assert.Equal(t, screenshot.EncodeDataURL([]byte("raw")), res.DataURL)
}

func TestCaptureFallsBackToActiveTab(t *testing.T) {
	comp := &fakeCompositor{png: []byte("raw")}
	c := New(Options{Tabs: fakeTabs{tab: host.Tab{WindowID: 2, URL: "screen://1"}}, Compositor: comp})

	res := handle(c, messages.CaptureVisibleSurface{})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 2, comp.windowID)
}

func TestCaptureErrors(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want string
	}{
		{
			name: "no active tab",
			opts: Options{Tabs: fakeTabs{err: host.ErrNoActiveTab}, Compositor: &fakeCompositor{}},
			want: host.ErrNoActiveTab.Error(),
		},
		{
			name: "restricted page",
			opts: Options{Tabs: fakeTabs{tab: host.Tab{URL: "chrome://settings"}}, Compositor: &fakeCompositor{}},
			want: host.ErrRestrictedPage.Error(),
		},
		{
			name: "compositor failure",
			opts: Options{Tabs: fakeTabs{tab: host.Tab{URL: "screen://0"}}, Compositor: &fakeCompositor{err: errors.New("display gone")}},
			want: "display gone",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := handle(New(tt.opts), messages.CaptureVisibleSurface{})
			assert.False(t, res.Success)
			assert.Contains(t, res.Error, tt.want)
		})
	}
}

func TestPersistToDownloadsUnderFolder(t *testing.T) {
	downloads := &fakeDownloads{}
	c := New(Options{Downloads: downloads, Prefs: fakePrefs{folder: "Reports"}})

	res := handle(c, messages.PersistImage{
		DataURL:  screenshot.EncodeDataURL([]byte("png")),
		Filename: "screenshot_2024-01-01_12-00-00.png",
		Folder:   "Reports",
	})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, messages.MethodDownload, res.Method)
	assert.Equal(t, 1, res.DownloadID)

	require.Len(t, downloads.requests, 1)
	req := downloads.requests[0]
	assert.Equal(t, "Reports/screenshot_2024-01-01_12-00-00.png", req.Filename)
	assert.Equal(t, host.ConflictUniquify, req.ConflictAction)
	assert.Equal(t, []byte("png"), req.Data)
}

func TestPersistToDownloadsWithoutFolder(t *testing.T) {
	downloads := &fakeDownloads{}
	c := New(Options{Downloads: downloads, Prefs: fakePrefs{}})

	res := handle(c, messages.PersistImage{DataURL: screenshot.EncodeDataURL([]byte("png")), Filename: "a.png", Folder: "  "})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "a.png", downloads.requests[0].Filename)
}

func TestPersistToDirectoryNeverDownloads(t *testing.T) {
	downloads := &fakeDownloads{}
	launcher := &fakeLauncher{}
	req := &fakeRequester{result: messages.Result{Success: true, Method: messages.MethodFilesystem}}
	c := New(Options{Downloads: downloads, Prefs: fakePrefs{useDirectory: true}, Agents: launcher, Router: req})

	res := handle(c, messages.PersistImage{DataURL: "data:image/png;base64,eA==", Filename: "a.png", Folder: "Reports"})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, messages.MethodFilesystem, res.Method)
	assert.Equal(t, []string{messages.ContextAgent}, launcher.started)
	require.Len(t, req.sent, 1)
	assert.Equal(t, messages.WriteFile{DataURL: "data:image/png;base64,eA==", Filename: "a.png"}, req.sent[0].Message)
	assert.Empty(t, downloads.requests)
}

func TestPersistToDirectoryFailureDoesNotFallBack(t *testing.T) {
	downloads := &fakeDownloads{}
	req := &fakeRequester{result: messages.Result{Error: "permission to the save directory was denied"}}
	c := New(Options{Downloads: downloads, Prefs: fakePrefs{useDirectory: true}, Agents: &fakeLauncher{}, Router: req})

	res := handle(c, messages.PersistImage{DataURL: screenshot.EncodeDataURL([]byte("png")), Filename: "a.png"})
	assert.False(t, res.Success)
	assert.Equal(t, "permission to the save directory was denied", res.Error)
	assert.Empty(t, downloads.requests)
}

func TestPersistAgentStartFailure(t *testing.T) {
	req := &fakeRequester{}
	c := New(Options{Prefs: fakePrefs{useDirectory: true}, Agents: &fakeLauncher{err: errors.New("boom")}, Router: req})

	res := handle(c, messages.PersistImage{DataURL: screenshot.EncodeDataURL([]byte("png")), Filename: "a.png"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "boom")
	assert.Empty(t, req.sent)
}

func TestPersistRejectsBadInput(t *testing.T) {
	c := New(Options{Downloads: &fakeDownloads{}, Prefs: fakePrefs{}})

	res := handle(c, messages.PersistImage{DataURL: screenshot.EncodeDataURL([]byte("png"))})
	assert.False(t, res.Success)

	res = handle(c, messages.PersistImage{DataURL: "garbage", Filename: "a.png"})
	assert.False(t, res.Success)
}

func TestPendingSlotHoldsOneCapture(t *testing.T) {
	c := New(Options{})

	res := handle(c, messages.GetPendingCapture{})
	require.True(t, res.Success)
	assert.Empty(t, res.DataURL)

	require.True(t, handle(c, messages.SetPendingCapture{DataURL: "first"}).Success)
	require.True(t, handle(c, messages.SetPendingCapture{DataURL: "second"}).Success)
	assert.Equal(t, "second", handle(c, messages.GetPendingCapture{}).DataURL)

	require.True(t, handle(c, messages.ClearPendingCapture{}).Success)
	assert.Empty(t, handle(c, messages.GetPendingCapture{}).DataURL)
}

func TestUnknownAction(t *testing.T) {
	res := handle(New(Options{}), messages.WriteFile{})
	assert.False(t, res.Success)
	assert.Equal(t, "Unknown action: WriteFile", res.Error)
}

func TestDownloadPath(t *testing.T) {
	assert.Equal(t, "a.png", DownloadPath("", "a.png"))
	assert.Equal(t, "Pictures/a.png", DownloadPath(" Pictures ", "a.png"))
	assert.Equal(t, "Work/Shots/a.png", DownloadPath("Work/Shots", "a.png"))
}
