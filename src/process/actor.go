package process

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"sync"

	"snipping-tool/src/messages"
	"snipping-tool/src/router"
)

var ErrContextStopped = errors.New("context stopped before handling the request")

// Handler answers one envelope. It runs on the owning context's loop only.
type Handler interface {
	Handle(ctx context.Context, env messages.Envelope) messages.Result
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, env messages.Envelope) messages.Result

func (f HandlerFunc) Handle(ctx context.Context, env messages.Envelope) messages.Result {
	return f(ctx, env)
}

// Actor is a Process that owns one mailbox and handles its messages strictly
// one at a time, each to completion, on a single goroutine.
type Actor struct {
	name    string
	buffer  int
	handler Handler

	mu      sync.Mutex
	running bool
	router  *router.Router
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewActor wraps handler into a startable context named name.
func NewActor(name string, bufferSize int, handler Handler) *Actor {
	return &Actor{name: name, buffer: bufferSize, handler: handler}
}

func (a *Actor) Name() string { return a.name }

func (a *Actor) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

func (a *Actor) Start(ctx context.Context, r *router.Router) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return nil
	}

	inbox, err := r.Register(a.name, a.buffer)
	if err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	a.router = r
	a.cancel = cancel
	a.done = make(chan struct{})
	a.running = true

	go func() {
		defer close(a.done)
		Serve(loopCtx, a.name, inbox, a.handler)
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
		r.Unregister(a.name)
	}()
	return nil
}

func (a *Actor) Stop() error {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// Serve is the context's event loop. A handler that suspends blocks the loop,
// so the next message starts only after the previous reply was produced.
func Serve(ctx context.Context, name string, inbox <-chan messages.Envelope, h Handler) {
	log.Printf("%s: serving", name)
	defer log.Printf("%s: stopped", name)

	for {
		if ctx.Err() != nil {
			failPending(inbox)
			return
		}
		select {
		case <-ctx.Done():
			failPending(inbox)
			return
		case env := <-inbox:
			if env.Message == nil {
				env.Respond(messages.Fail(errors.New("empty message")))
				continue
			}
			if env.Message.Type() == messages.TypeDieNow {
				log.Printf("%s: DIENOW received", name)
				failPending(inbox)
				return
			}
			env.Respond(safeHandle(ctx, name, h, env))
		}
	}
}

func safeHandle(ctx context.Context, name string, h Handler, env messages.Envelope) (res messages.Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("%s: handler for %s panicked: %v\n%s", name, env.Message.Type(), r, debug.Stack())
			res = messages.Fail(fmt.Errorf("%s failed: %v", env.Message.Type(), r))
		}
	}()
	return h.Handle(ctx, env)
}

func failPending(inbox <-chan messages.Envelope) {
	for {
		select {
		case env := <-inbox:
			env.Respond(messages.Fail(ErrContextStopped))
		default:
			return
		}
	}
}
