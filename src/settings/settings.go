// Package settings persists the user's save-destination preference.
package settings

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFolder is the folder label used when none is configured.
const DefaultFolder = "Pictures"

// Preferences is the on-disk shape of the preferences file.
type Preferences struct {
	SaveFolder   string `yaml:"save_folder"`
	UseDirectory bool   `yaml:"use_directory"`
}

// Reader is the read-only view the controller gets.
type Reader interface {
	SaveFolder() string
	UseDirectory() bool
}

// Store is a YAML-backed preferences file. Mutations write through immediately;
// reads pick up changes other processes made to the file.
type Store struct {
	path    string
	mu      sync.RWMutex
	prefs   Preferences
	modTime time.Time
	size    int64
}

// Open loads path, creating defaults when the file does not exist yet.
func Open(path string) (*Store, error) {
	s := &Store{path: path, prefs: Preferences{SaveFolder: DefaultFolder}}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read preferences: %w", err)
	}
	if err := yaml.Unmarshal(data, &s.prefs); err != nil {
		return nil, fmt.Errorf("parse preferences %s: %w", path, err)
	}
	s.prefs.SaveFolder = NormalizeFolder(s.prefs.SaveFolder)
	if st, err := os.Stat(path); err == nil {
		s.modTime, s.size = st.ModTime(), st.Size()
	}
	return s, nil
}

// NormalizeFolder trims label and falls back to DefaultFolder when empty.
func NormalizeFolder(label string) string {
	if trimmed := strings.TrimSpace(label); trimmed != "" {
		return trimmed
	}
	return DefaultFolder
}

// SaveFolder returns the folder label.
func (s *Store) SaveFolder() string {
	s.refresh()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs.SaveFolder
}

// UseDirectory reports whether a directly granted directory is in use.
func (s *Store) UseDirectory() bool {
	s.refresh()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs.UseDirectory
}

// Snapshot returns a copy of the current preferences.
func (s *Store) Snapshot() Preferences {
	s.refresh()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs
}

// SetSaveFolder stores a normalized folder label and returns it.
func (s *Store) SetSaveFolder(label string) (string, error) {
	label = NormalizeFolder(label)
	err := s.update(func(p *Preferences) { p.SaveFolder = label })
	return label, err
}

// ResetSaveFolder restores DefaultFolder.
func (s *Store) ResetSaveFolder() error {
	return s.update(func(p *Preferences) { p.SaveFolder = DefaultFolder })
}

// SetUseDirectory switches the directory preference on or off.
// When on, the folder label follows the granted directory's name.
func (s *Store) SetUseDirectory(use bool, label string) error {
	return s.update(func(p *Preferences) {
		p.UseDirectory = use
		if use && strings.TrimSpace(label) != "" {
			p.SaveFolder = strings.TrimSpace(label)
		}
	})
}

func (s *Store) update(mutate func(*Preferences)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.prefs
	mutate(&next)

	data, err := yaml.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create preferences dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}

	s.prefs = next
	if st, err := os.Stat(s.path); err == nil {
		s.modTime, s.size = st.ModTime(), st.Size()
	}
	log.Printf("Settings: save_folder=%q use_directory=%v", next.SaveFolder, next.UseDirectory)
	return nil
}

// refresh reloads the file when it changed since the last read or write.
func (s *Store) refresh() {
	st, err := os.Stat(s.path)
	if err != nil {
		return
	}
	s.mu.RLock()
	same := st.ModTime().Equal(s.modTime) && st.Size() == s.size
	s.mu.RUnlock()
	if same {
		return
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	var next Preferences
	if err := yaml.Unmarshal(data, &next); err != nil {
		log.Printf("Settings: ignoring unreadable %s: %v", s.path, err)
		return
	}
	next.SaveFolder = NormalizeFolder(next.SaveFolder)

	s.mu.Lock()
	s.prefs = next
	s.modTime, s.size = st.ModTime(), st.Size()
	s.mu.Unlock()
}
