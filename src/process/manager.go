package process

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"snipping-tool/src/messages"
	"snipping-tool/src/router"
)

// Process interface defines the lifecycle methods for all execution contexts
type Process interface {
	// Start registers the context's mailbox and begins serving it. It must not block.
	Start(ctx context.Context, router *router.Router) error

	// Stop gracefully shuts down the context
	Stop() error

	// IsRunning returns true if the context is currently serving messages
	IsRunning() bool

	// Name returns the context name used for routing
	Name() string
}

// ProcessState represents the current state of a process
type ProcessState int

const (
	StateStopped ProcessState = iota
	StateStarting
	StateRunning
	StateStopping
	StateCrashed
)

func (s ProcessState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateCrashed:
		return "crashed"
	default:
		return "unknown"
	}
}

// ProcessInfo holds information about a managed process
type ProcessInfo struct {
	Process    Process
	State      ProcessState
	StartTime  time.Time
	CrashCount int
	LastError  error
	Context    context.Context
	CancelFunc context.CancelFunc
}

// Manager manages the lifecycle of all execution contexts
type Manager struct {
	processes map[string]*ProcessInfo
	router    *router.Router
	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewManager creates a new process manager
func NewManager() *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		processes: make(map[string]*ProcessInfo),
		router:    router.NewRouter(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Register adds a process to the manager without starting it
func (m *Manager) Register(process Process) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := process.Name()
	if _, exists := m.processes[name]; exists {
		return fmt.Errorf("process %s already registered", name)
	}

	m.processes[name] = &ProcessInfo{
		Process: process,
		State:   StateStopped,
	}

	log.Printf("Process %s registered", name)
	return nil
}

// Start starts a specific process
func (m *Manager) Start(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, exists := m.processes[name]
	if !exists {
		return fmt.Errorf("process %s not found", name)
	}
	if info.State == StateRunning {
		return fmt.Errorf("process %s already running", name)
	}
	return m.startLocked(name, info)
}

// EnsureRunning starts the named process unless it is already running.
// Used for contexts that are instantiated lazily on first use.
func (m *Manager) EnsureRunning(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, exists := m.processes[name]
	if !exists {
		return fmt.Errorf("process %s not found", name)
	}
	if info.State == StateRunning && info.Process.IsRunning() {
		return nil
	}
	log.Printf("Process %s not running, starting on demand", name)
	return m.startLocked(name, info)
}

func (m *Manager) startLocked(name string, info *ProcessInfo) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			info.State = StateCrashed
			info.LastError = err
			info.CrashCount++
			log.Printf("Process %s failed to start: %v (crash count: %d)", name, err, info.CrashCount)
		}
	}()

	ctx, cancel := context.WithCancel(m.ctx)
	info.Context = ctx
	info.CancelFunc = cancel
	info.State = StateStarting
	info.StartTime = time.Now()

	log.Printf("Starting process %s", name)
	if err := info.Process.Start(ctx, m.router); err != nil {
		cancel()
		return err
	}

	info.State = StateRunning
	log.Printf("Process %s started successfully", name)
	return nil
}

// Stop stops a specific process
func (m *Manager) Stop(name string) error {
	m.mu.Lock()
	info, exists := m.processes[name]
	if !exists {
		m.mu.Unlock()
		return fmt.Errorf("process %s not found", name)
	}

	if info.State != StateRunning {
		m.mu.Unlock()
		return nil
	}

	info.State = StateStopping
	m.mu.Unlock()

	log.Printf("Stopping process %s", name)

	info.CancelFunc()
	if err := info.Process.Stop(); err != nil {
		log.Printf("Error stopping process %s: %v", name, err)
	}

	m.mu.Lock()
	info.State = StateStopped
	m.mu.Unlock()

	log.Printf("Process %s stopped", name)
	return nil
}

// StopAll stops all processes gracefully
func (m *Manager) StopAll() {
	log.Printf("Stopping all processes...")

	m.router.Broadcast(messages.Envelope{
		From:    "manager",
		To:      "*",
		Message: messages.DIENOW{},
	})

	m.mu.Lock()
	names := make([]string, 0, len(m.processes))
	for name := range m.processes {
		names = append(names, name)
	}
	m.mu.Unlock()

	for _, name := range names {
		_ = m.Stop(name)
	}

	m.cancel()
	m.router.Shutdown()

	log.Printf("All processes stopped")
}

// GetRouter returns the message router
func (m *Manager) GetRouter() *router.Router {
	return m.router
}

// GetStatus returns the status of all processes
func (m *Manager) GetStatus() map[string]ProcessState {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := make(map[string]ProcessState)
	for name, info := range m.processes {
		status[name] = info.State
	}
	return status
}
