// Package agent is the persistence agent: a document-less context that writes
// captures straight into the user's granted directory.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log"

	"snipping-tool/src/fsaccess"
	"snipping-tool/src/messages"
	"snipping-tool/src/screenshot"
)

// HandleLoader reads the granted directory from durable storage.
type HandleLoader interface {
	LoadDirectoryHandle(ctx context.Context) (fsaccess.Handle, error)
}

// Agent handles write-file requests. It keeps no state between requests.
type Agent struct {
	handles HandleLoader
}

// New returns an agent reading its directory grant from handles.
func New(handles HandleLoader) *Agent {
	return &Agent{handles: handles}
}

// Handle implements process.Handler.
func (a *Agent) Handle(ctx context.Context, env messages.Envelope) messages.Result {
	switch m := env.Message.(type) {
	case messages.WriteFile:
		if err := a.Write(ctx, m.DataURL, m.Filename); err != nil {
			log.Printf("Agent: write %s failed: %v", m.Filename, err)
			return messages.Fail(err)
		}
		return messages.Result{Success: true, Method: messages.MethodFilesystem}
	default:
		return messages.Fail(fmt.Errorf("Unknown action: %s", env.Message.Type()))
	}
}

// Write stores the image carried by dataURL as filename in the granted
// directory, replacing any file of the same name.
func (a *Agent) Write(ctx context.Context, dataURL, filename string) error {
	handle, err := a.handles.LoadDirectoryHandle(ctx)
	if err != nil {
		if errors.Is(err, fsaccess.ErrNotConfigured) {
			return err
		}
		return fmt.Errorf("failed to load save directory: %w", err)
	}

	if perm := handle.QueryPermission(); perm != fsaccess.PermissionGranted {
		log.Printf("Agent: permission for %s is %s, requesting again", handle.Path, perm)
		if handle.RequestPermission(false) != fsaccess.PermissionGranted {
			return fmt.Errorf("%w: %s", fsaccess.ErrPermissionDenied, handle.Path)
		}
	}

	_, data, err := screenshot.DecodeDataURL(dataURL)
	if err != nil {
		return err
	}

	if err := handle.WriteFile(filename, data); err != nil {
		return err
	}
	log.Printf("Agent: wrote %s (%d bytes) to %s", filename, len(data), handle.Path)
	return nil
}
