package router

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"snipping-tool/src/host"
	"snipping-tool/src/messages"
)

var ErrShuttingDown = errors.New("router is shutting down")

// ChannelInfo holds information about a context mailbox
type ChannelInfo struct {
	Channel   chan messages.Envelope
	ContextID string
	Active    bool
	done      chan struct{}
}

// Router handles message routing between execution contexts.
// Contexts never share memory; everything crosses through a mailbox.
type Router struct {
	channels    map[string]*ChannelInfo
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
	logMessages bool
}

// NewRouter creates a new message router
func NewRouter() *Router {
	ctx, cancel := context.WithCancel(context.Background())
	return &Router{
		channels:    make(map[string]*ChannelInfo),
		ctx:         ctx,
		cancel:      cancel,
		logMessages: true,
	}
}

// Register registers a context with the router and returns its mailbox
func (r *Router) Register(contextID string, bufferSize int) (<-chan messages.Envelope, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.channels[contextID]; exists {
		return nil, fmt.Errorf("context %s already registered", contextID)
	}

	ch := make(chan messages.Envelope, bufferSize)
	r.channels[contextID] = &ChannelInfo{
		Channel:   ch,
		ContextID: contextID,
		Active:    true,
		done:      make(chan struct{}),
	}

	log.Printf("Router: Registered context %s with buffer size %d", contextID, bufferSize)
	return ch, nil
}

// Unregister removes a context from the router. Pending senders are released.
func (r *Router) Unregister(contextID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if info, exists := r.channels[contextID]; exists {
		info.Active = false
		close(info.done)
		delete(r.channels, contextID)
		log.Printf("Router: Unregistered context %s", contextID)
	}
}

// IsRegistered reports whether contextID currently has a mailbox.
func (r *Router) IsRegistered(contextID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.channels[contextID]
	return ok && info.Active
}

func (r *Router) lookup(contextID string) (*ChannelInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, exists := r.channels[contextID]
	if !exists {
		return nil, fmt.Errorf("context %s not found", contextID)
	}
	if !info.Active {
		return nil, fmt.Errorf("context %s is not active", contextID)
	}
	return info, nil
}

// Send enqueues a message for a specific context. It blocks until the mailbox
// accepts it, the caller gives up, or the target goes away.
func (r *Router) Send(ctx context.Context, envelope messages.Envelope) error {
	r.mu.RLock()
	logMessages := r.logMessages
	r.mu.RUnlock()

	if logMessages {
		log.Printf("Router: %s -> %s: %s", envelope.From, envelope.To, envelope.Message.Type())
	}

	if envelope.To == "*" {
		r.Broadcast(envelope)
		return nil
	}

	info, err := r.lookup(envelope.To)
	if err != nil {
		return err
	}

	select {
	case info.Channel <- envelope:
		return nil
	case <-info.done:
		return fmt.Errorf("context %s is not active", envelope.To)
	case <-ctx.Done():
		return ctx.Err()
	case <-r.ctx.Done():
		return ErrShuttingDown
	}
}

// Request sends a message and waits for the single reply produced by the
// target's handler. There is no built-in timeout; only ctx ends the wait.
func (r *Router) Request(ctx context.Context, envelope messages.Envelope) (messages.Result, error) {
	if envelope.ID == "" {
		envelope.ID = uuid.NewString()
	}
	reply := make(chan messages.Result, 1)
	envelope.Reply = reply

	if err := r.Send(ctx, envelope); err != nil {
		return messages.Result{}, err
	}

	select {
	case res := <-reply:
		return res, nil
	case <-ctx.Done():
		return messages.Result{}, ctx.Err()
	case <-r.ctx.Done():
		return messages.Result{}, ErrShuttingDown
	}
}

// Broadcast sends a message to all registered contexts except the sender
func (r *Router) Broadcast(envelope messages.Envelope) {
	r.mu.RLock()
	targets := make([]*ChannelInfo, 0, len(r.channels))
	for id, info := range r.channels {
		if info.Active && id != envelope.From {
			targets = append(targets, info)
		}
	}
	r.mu.RUnlock()

	log.Printf("Router: Broadcasting %s from %s", envelope.Message.Type(), envelope.From)

	var failed []string
	for _, info := range targets {
		envCopy := envelope
		envCopy.To = info.ContextID
		envCopy.Reply = nil

		select {
		case info.Channel <- envCopy:
		case <-info.done:
		case <-time.After(1 * time.Second):
			failed = append(failed, info.ContextID)
		case <-r.ctx.Done():
			return
		}
	}

	if len(failed) > 0 {
		log.Printf("Router: Broadcast timed out for %v", failed)
	}
}

// SetMessageLogging enables or disables message logging
func (r *Router) SetMessageLogging(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logMessages = enabled
}

// Shutdown releases every waiting sender and requester
func (r *Router) Shutdown() {
	log.Printf("Router: Shutting down...")

	r.cancel()

	r.mu.Lock()
	defer r.mu.Unlock()

	for id, info := range r.channels {
		if info.Active {
			info.Active = false
			close(info.done)
			log.Printf("Router: Closed mailbox for context %s", id)
		}
	}
	r.channels = make(map[string]*ChannelInfo)

	log.Printf("Router: Shutdown complete")
}

// Client is a typed request stub bound to one calling context and one target.
type Client struct {
	Router *Router
	From   string
	To     string
	Sender *host.Tab
}

// Call sends msg to the client's target and returns the handler's result.
func (c Client) Call(ctx context.Context, msg messages.Message) (messages.Result, error) {
	return c.Router.Request(ctx, messages.Envelope{
		From:    c.From,
		To:      c.To,
		Sender:  c.Sender,
		Message: msg,
	})
}
