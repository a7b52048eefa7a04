package notification

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// maxStatusLen bounds status text shown in the tray tooltip.
const maxStatusLen = 200

// Kind classifies a status message.
type Kind int

const (
	Info Kind = iota
	Success
	Error
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case Error:
		return "error"
	default:
		return "info"
	}
}

// Status is one user-visible status message.
type Status struct {
	Kind Kind
	Text string
	At   time.Time
}

// Sink receives status messages for the user.
type Sink interface {
	Notify(kind Kind, text string)
}

// Center keeps the latest status and fans it out to subscribers.
type Center struct {
	mu          sync.Mutex
	last        Status
	subscribers []func(Status)
}

func NewCenter() *Center {
	return &Center{}
}

// Notify records text and hands it to every subscriber.
func (c *Center) Notify(kind Kind, text string) {
	if len(text) > maxStatusLen {
		text = text[:maxStatusLen] + "..."
	}
	st := Status{Kind: kind, Text: text, At: time.Now()}

	c.mu.Lock()
	c.last = st
	subs := make([]func(Status), len(c.subscribers))
	copy(subs, c.subscribers)
	c.mu.Unlock()

	log.Printf("Status (%s): %s", kind, text)
	for _, fn := range subs {
		fn(st)
	}
}

// Subscribe registers fn for future statuses.
func (c *Center) Subscribe(fn func(Status)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers = append(c.subscribers, fn)
}

// Last returns the most recent status.
func (c *Center) Last() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// ShowBlockingError reports a fatal startup problem on stderr, where it is
// seen even when file logging is off.
func ShowBlockingError(title, message string) {
	log.Printf("%s: %s", title, message)
	fmt.Fprintf(os.Stderr, "%s: %s\n", title, message)
}
