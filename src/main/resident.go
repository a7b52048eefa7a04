package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"snipping-tool/src/clipboard"
	"snipping-tool/src/config"
	"snipping-tool/src/eventloop"
	"snipping-tool/src/host"
	"snipping-tool/src/host/desktop"
	"snipping-tool/src/hotkey"
	"snipping-tool/src/logutil"
	"snipping-tool/src/messages"
	"snipping-tool/src/notification"
	"snipping-tool/src/overlay"
	"snipping-tool/src/popup"
	"snipping-tool/src/router"
	"snipping-tool/src/runtimeinit"
	"snipping-tool/src/screenshot"
	"snipping-tool/src/session"
	"snipping-tool/src/settings"
	"snipping-tool/src/singleinstance"
	"snipping-tool/src/tray"
)

func setupLogging(cfg *config.Config) {
	logutil.Setup(cfg.DataDir, cfg.EnableFileLogging)
}

// claimResidentPort fails when another resident already holds the first port
// of the range.
func claimResidentPort() error {
	startPort, _ := singleinstance.PortRange()
	addr := fmt.Sprintf("127.0.0.1:%d", startPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		log.Printf("Pre-flight: port %d busy, resident already exists", startPort)
		return fmt.Errorf("one is already running on port %d", startPort)
	}
	// Released again so the event loop can bind it.
	_ = listener.Close()
	log.Printf("Pre-flight: port %d free", startPort)
	return nil
}

// selectorOptions builds the per-tab selector wiring: the selector talks to
// the controller as the tab, and hands its result to the mode's target.
func selectorOptions(cfg *config.Config, r *router.Router, prefs *settings.Store, sink notification.Sink) func(host.Tab) overlay.Options {
	return func(tab host.Tab) overlay.Options {
		sender := tab
		client := router.Client{
			Router: r,
			From:   messages.ContextSelector,
			To:     messages.ContextController,
			Sender: &sender,
		}

		var target overlay.Target
		if cfg.CaptureMode == config.CaptureModeRelay {
			target = session.RelayTarget{Controller: client, Sink: sink}
		} else {
			target = session.PreviewTarget{
				Controller: client,
				Folder:     prefs.SaveFolder,
				Copy:       clipboard.WriteImage,
				Policy:     session.ReportPolicy{Sink: sink},
			}
		}

		return overlay.Options{
			Messenger:        client,
			Target:           target,
			DevicePixelRatio: tab.DevicePixelRatio,
			ViewportWidth:    tab.Width,
			HideDelay:        cfg.HideDelay,
		}
	}
}

func runResident(opts *mainOptions) error {
	// DPI awareness must be set before any display metrics are read.
	enableDPIAwareness()

	// systray needs the main goroutine on one OS thread.
	runtime.LockOSThread()

	// Load .env early so SINGLEINSTANCE_PORT_* are available for pre-flight.
	_, _ = config.LoadWithOptions(opts.loadOptions())
	if err := claimResidentPort(); err != nil {
		return err
	}

	rt, err := runtimeinit.Bootstrap(runtimeinit.Options{
		LoadOptions:  opts.loadOptions(),
		SetupLogging: logutil.Setup,
	})
	if err != nil {
		notification.ShowBlockingError("Snipping tool failed to start", err.Error())
		return err
	}
	defer rt.Close()
	cfg := rt.Config
	logMonitorConfiguration()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	center := notification.NewCenter()
	pages := overlay.NewInjector(ctx, overlay.NativeSurface())
	defer pages.Close()

	r := rt.Manager.GetRouter()

	var loop *eventloop.Loop
	input, err := hotkey.NewListener(cfg.Hotkey, func() { loop.HotkeyPressed() })
	if err != nil {
		return fmt.Errorf("invalid hotkey %q: %w", cfg.Hotkey, err)
	}

	selections := &eventloop.Selections{
		Injector: pages,
		Input:    input,
		Options:  selectorOptions(cfg, r, rt.Prefs, center),
	}
	panel := &popup.Panel{
		Controller:     router.Client{Router: r, From: messages.ContextPopup, To: messages.ContextController},
		Tabs:           rt.Tabs,
		StartSelection: selections.Start,
		Folders:        rt.Prefs,
		Sink:           center,
	}
	loop = eventloop.New(panel, pages)
	loop.Processes = rt.Manager

	if err := input.Start(); err != nil {
		log.Printf("Hotkey unavailable: %v", err)
	} else {
		defer input.Stop()
	}

	t := tray.New(tray.Actions{
		Capture:     func() { loop.Post(eventloop.ActionCapture) },
		Save:        func() { loop.Post(eventloop.ActionSave) },
		Discard:     func() { loop.Post(eventloop.ActionDiscard) },
		ResetFolder: func() { loop.Post(eventloop.ActionResetFolder) },
		Quit:        cancel,
	})
	center.Subscribe(func(s notification.Status) { t.SetStatus(s.Text) })

	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
	}()

	go func() {
		if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("event loop stopped: %v", err)
		}
		cancel()
	}()
	go func() {
		<-ctx.Done()
		t.Quit()
	}()

	log.Printf("Snipping tool ready, hotkey %s, mode %s", cfg.Hotkey, cfg.CaptureMode)
	t.Run()
	cancel()
	return nil
}

func logMonitorConfiguration() {
	n := screenshot.NumDisplays()
	log.Printf("MONITOR: detected %d displays", n)
	for i := 0; i < n; i++ {
		if b, err := screenshot.GetDisplayBounds(i); err == nil {
			log.Printf("MONITOR: %s x:%d y:%d w:%d h:%d", desktop.DisplayURL(i), b.Min.X, b.Min.Y, b.Dx(), b.Dy())
		}
	}
}
