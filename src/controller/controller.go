// Package controller is the privileged background context: it captures the
// visible surface, decides where captures are persisted, and owns the single
// pending-capture slot.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"strings"

	"snipping-tool/src/host"
	"snipping-tool/src/logutil"
	"snipping-tool/src/messages"
	"snipping-tool/src/screenshot"
	"snipping-tool/src/settings"
)

// AgentLauncher starts the persistence agent on first use and reuses it after.
type AgentLauncher interface {
	EnsureRunning(name string) error
}

// Requester delivers a request to another context and waits for its reply.
type Requester interface {
	Request(ctx context.Context, env messages.Envelope) (messages.Result, error)
}

// Options wires the controller to its host facilities.
type Options struct {
	Tabs       host.Tabs
	Compositor host.Compositor
	Downloads  host.Downloads
	Prefs      settings.Reader
	Agents     AgentLauncher
	Router     Requester
}

// Controller handles one message at a time; its fields are only touched from
// its own loop, so the pending slot needs no lock.
type Controller struct {
	opts    Options
	pending string
}

// New returns a controller with an empty pending slot.
func New(opts Options) *Controller {
	return &Controller{opts: opts}
}

// Handle implements process.Handler. Every outcome is a Result; errors never
// cross the message boundary as anything else.
func (c *Controller) Handle(ctx context.Context, env messages.Envelope) messages.Result {
	switch m := env.Message.(type) {
	case messages.CaptureVisibleSurface:
		dataURL, err := c.CaptureVisibleSurface(ctx, env.Sender)
		if err != nil {
			log.Printf("Controller: capture failed: %v", err)
			return messages.Fail(err)
		}
		return messages.Result{Success: true, DataURL: dataURL}

	case messages.PersistImage:
		res, err := c.Persist(ctx, m)
		if err != nil {
			log.Printf("Controller: persist %s failed: %v", m.Filename, err)
			return messages.Fail(err)
		}
		return res

	case messages.SetPendingCapture:
		c.pending = m.DataURL
		log.Printf("Controller: pending capture set to %s", logutil.TruncateForLog(m.DataURL, 48))
		return messages.Ok()

	case messages.GetPendingCapture:
		return messages.Result{Success: true, DataURL: c.pending}

	case messages.ClearPendingCapture:
		c.pending = ""
		return messages.Ok()

	default:
		return messages.Fail(fmt.Errorf("Unknown action: %s", env.Message.Type()))
	}
}

// CaptureVisibleSurface snapshots the window of sender, or of the active tab
// when the request came from a trusted surface without a tab.
func (c *Controller) CaptureVisibleSurface(ctx context.Context, sender *host.Tab) (string, error) {
	var tab host.Tab
	if sender != nil {
		tab = *sender
	} else {
		active, err := c.opts.Tabs.ActiveTab(ctx)
		if err != nil {
			return "", err
		}
		tab = active
	}

	if err := host.CheckCapturable(tab); err != nil {
		return "", err
	}

	png, err := c.opts.Compositor.CaptureVisible(ctx, tab.WindowID)
	if err != nil {
		return "", fmt.Errorf("capture of window %d failed: %w", tab.WindowID, err)
	}
	return screenshot.EncodeDataURL(png), nil
}

// Persist stores the image. With a granted directory configured the agent
// must write it; its failure is returned as is, never retried elsewhere.
// Without one, the download manager saves it under the folder label.
func (c *Controller) Persist(ctx context.Context, m messages.PersistImage) (messages.Result, error) {
	if strings.TrimSpace(m.Filename) == "" {
		return messages.Result{}, errors.New("filename is required")
	}

	if c.opts.Prefs != nil && c.opts.Prefs.UseDirectory() {
		return c.persistToDirectory(ctx, m)
	}
	return c.persistToDownloads(ctx, m)
}

func (c *Controller) persistToDirectory(ctx context.Context, m messages.PersistImage) (messages.Result, error) {
	if err := c.opts.Agents.EnsureRunning(messages.ContextAgent); err != nil {
		return messages.Result{}, fmt.Errorf("save agent unavailable: %w", err)
	}

	res, err := c.opts.Router.Request(ctx, messages.Envelope{
		From:    messages.ContextController,
		To:      messages.ContextAgent,
		Message: messages.WriteFile{DataURL: m.DataURL, Filename: m.Filename},
	})
	if err != nil {
		return messages.Result{}, fmt.Errorf("save agent unreachable: %w", err)
	}
	if !res.Success {
		return messages.Result{}, res.Err()
	}
	return messages.Result{Success: true, Method: messages.MethodFilesystem}, nil
}

func (c *Controller) persistToDownloads(ctx context.Context, m messages.PersistImage) (messages.Result, error) {
	_, data, err := screenshot.DecodeDataURL(m.DataURL)
	if err != nil {
		return messages.Result{}, err
	}

	id, err := c.opts.Downloads.Download(ctx, host.DownloadRequest{
		Data:           data,
		Filename:       DownloadPath(m.Folder, m.Filename),
		ConflictAction: host.ConflictUniquify,
	})
	if err != nil {
		return messages.Result{}, fmt.Errorf("download failed: %w", err)
	}
	return messages.Result{Success: true, Method: messages.MethodDownload, DownloadID: id}, nil
}

// DownloadPath joins the folder label and filename with a forward slash,
// the separator download managers expect regardless of platform.
func DownloadPath(folder, filename string) string {
	folder = strings.TrimSpace(folder)
	if folder == "" {
		return filename
	}
	return path.Join(folder, filename)
}
