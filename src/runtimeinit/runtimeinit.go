package runtimeinit

import (
	"fmt"
	"log"
	"os"

	"snipping-tool/src/agent"
	"snipping-tool/src/clipboard"
	"snipping-tool/src/config"
	"snipping-tool/src/controller"
	"snipping-tool/src/handlestore"
	"snipping-tool/src/host"
	"snipping-tool/src/host/desktop"
	"snipping-tool/src/messages"
	"snipping-tool/src/process"
	"snipping-tool/src/settings"
)

const mailboxSize = 16

type Options struct {
	LoadOptions  config.LoadOptions
	SetupLogging func(dir string, enableFileLogging bool)

	// Host overrides; nil selects the desktop adapter.
	Tabs       host.Tabs
	Compositor host.Compositor
	Downloads  host.Downloads

	// SkipClipboard leaves the clipboard uninitialized (headless runs).
	SkipClipboard bool
}

// Runtime is everything a resident process or a one-shot command needs.
type Runtime struct {
	Config     *config.Config
	Prefs      *settings.Store
	Handles    *handlestore.Store
	Manager    *process.Manager
	Controller *controller.Controller
	Tabs       host.Tabs
}

// Close stops every context and releases the stores.
func (r *Runtime) Close() {
	if r.Manager != nil {
		r.Manager.StopAll()
	}
	if r.Handles != nil {
		if err := r.Handles.Close(); err != nil {
			log.Printf("Runtime: closing handle store: %v", err)
		}
	}
}

// LoadStores opens the preferences file and the handle database without
// starting any context.
func LoadStores(cfg *config.Config) (*settings.Store, *handlestore.Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	prefs, err := settings.Open(cfg.PreferencesPath())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open preferences: %w", err)
	}
	handles, err := handlestore.Open(cfg.HandleStorePath())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open handle store: %w", err)
	}
	return prefs, handles, nil
}

func Bootstrap(opts Options) (*Runtime, error) {
	cfg, err := config.LoadWithOptions(opts.LoadOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if opts.SetupLogging != nil {
		opts.SetupLogging(cfg.DataDir, cfg.EnableFileLogging)
	}

	prefs, handles, err := LoadStores(cfg)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{Config: cfg, Prefs: prefs, Handles: handles, Manager: process.NewManager()}
	rt.Manager.GetRouter().SetMessageLogging(cfg.EnableFileLogging)

	tabs := opts.Tabs
	if tabs == nil {
		tabs = desktop.Tabs{DevicePixelRatio: cfg.DevicePixelRatio}
	}
	compositor := opts.Compositor
	if compositor == nil {
		compositor = desktop.Compositor{}
	}
	downloads := opts.Downloads
	if downloads == nil {
		downloads = desktop.NewDownloads(cfg.DownloadsDir)
	}

	rt.Tabs = tabs
	rt.Controller = controller.New(controller.Options{
		Tabs:       tabs,
		Compositor: compositor,
		Downloads:  downloads,
		Prefs:      prefs,
		Agents:     rt.Manager,
		Router:     rt.Manager.GetRouter(),
	})

	if err := rt.Manager.Register(process.NewActor(messages.ContextController, mailboxSize, rt.Controller)); err != nil {
		rt.Close()
		return nil, err
	}
	// The agent is registered but only started when the first write needs it.
	if err := rt.Manager.Register(process.NewActor(messages.ContextAgent, mailboxSize, agent.New(handles))); err != nil {
		rt.Close()
		return nil, err
	}
	if err := rt.Manager.Start(messages.ContextController); err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to start controller: %w", err)
	}

	if !opts.SkipClipboard {
		if err := clipboard.Init(); err != nil {
			log.Printf("Clipboard unavailable, copy disabled: %v", err)
		}
	}

	log.Printf("Runtime: data dir %s, downloads %s, mode %s", cfg.DataDir, cfg.DownloadsDir, cfg.CaptureMode)
	return rt, nil
}
