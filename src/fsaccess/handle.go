// Package fsaccess models a user-granted directory as an opaque, serializable
// capability. A token says nothing about whether the grant still holds; every
// use re-checks it.
package fsaccess

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotConfigured    = errors.New("no save directory is configured")
	ErrPermissionDenied = errors.New("no write permission for the save directory")
	ErrInvalidFilename  = errors.New("invalid filename")
)

// Permission mirrors the states a directory grant can be in.
type Permission string

const (
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
	PermissionPrompt  Permission = "prompt"
)

// Handle is a granted directory. It is persisted as JSON and may outlive the
// directory it points at.
type Handle struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	GrantedAt time.Time `json:"granted_at"`
}

// Grant creates a handle for dir after confirming the directory is writable.
// This is the interactive step; later checks never prompt.
func Grant(dir string) (Handle, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Handle{}, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	st, err := os.Stat(abs)
	if err != nil {
		return Handle{}, fmt.Errorf("failed to open %s: %w", abs, err)
	}
	if !st.IsDir() {
		return Handle{}, fmt.Errorf("%s is not a directory", abs)
	}
	if err := checkWritable(abs); err != nil {
		return Handle{}, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return Handle{
		ID:        uuid.NewString(),
		Path:      abs,
		Name:      filepath.Base(abs),
		GrantedAt: time.Now().UTC(),
	}, nil
}

// Marshal serializes h for durable storage.
func (h Handle) Marshal() ([]byte, error) {
	return json.Marshal(h)
}

// Unmarshal resurrects a stored token. A token that cannot be decoded is
// reported as a permission failure.
func Unmarshal(data []byte) (Handle, error) {
	var h Handle
	if err := json.Unmarshal(data, &h); err != nil {
		return Handle{}, fmt.Errorf("%w: stored directory handle is unreadable: %v", ErrPermissionDenied, err)
	}
	if h.Path == "" {
		return Handle{}, fmt.Errorf("%w: stored directory handle is empty", ErrPermissionDenied)
	}
	return h, nil
}

// QueryPermission reports the current write permission without prompting.
func (h Handle) QueryPermission() Permission {
	st, err := os.Stat(h.Path)
	if err != nil || !st.IsDir() {
		return PermissionDenied
	}
	if err := checkWritable(h.Path); err != nil {
		return PermissionPrompt
	}
	return PermissionGranted
}

// RequestPermission asks for write access again. Without a user gesture
// nothing can be upgraded, so a non-granted state ends as denied.
func (h Handle) RequestPermission(userGesture bool) Permission {
	p := h.QueryPermission()
	if p == PermissionGranted {
		return p
	}
	if !userGesture {
		return PermissionDenied
	}
	return p
}

// WriteFile creates or overwrites name inside the directory. Data goes to a
// temporary file first and is renamed into place when complete.
func (h Handle) WriteFile(name string, data []byte) error {
	if err := validateName(name); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(h.Path, ".snip-*.crswap")
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to finalize %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(h.Path, name)); err != nil {
		return fmt.Errorf("failed to finalize %s: %w", name, err)
	}
	return nil
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	if strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return fmt.Errorf("%w: %q must not contain path separators", ErrInvalidFilename, name)
	}
	return nil
}
